package api

import (
	"net/http"
	"time"

	"github.com/Domenick1991/airreservations/internal/domain"
	"github.com/Domenick1991/airreservations/internal/service/booking"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type ReservationHandler struct {
	service booking.BookingUseCase
	log     *logrus.Logger
}

type createReservationRequest struct {
	UserID   string   `json:"user_id"`
	FlightID int64    `json:"flight_id"`
	SeatIDs  []string `json:"seat_ids"`
	Amount   int64    `json:"amount"`
}

type changeSeatRequest struct {
	UserID    string `json:"user_id"`
	OldSeatID string `json:"old_seat_id"`
	NewSeatID string `json:"new_seat_id"`
}

type reservationResponse struct {
	ID        int64    `json:"id"`
	UserID    string   `json:"user_id"`
	FlightID  int64    `json:"flight_id"`
	SeatIDs   []string `json:"seat_ids"`
	Amount    int64    `json:"amount"`
	Status    string   `json:"status"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

func newReservationResponse(r *domain.Reservation) reservationResponse {
	return reservationResponse{
		ID:        r.ID,
		UserID:    r.ExternalUserID,
		FlightID:  r.FlightID,
		SeatIDs:   r.SeatIDs,
		Amount:    r.Amount,
		Status:    string(r.Status),
		CreatedAt: r.CreatedAt.Format(time.RFC3339),
		UpdatedAt: r.UpdatedAt.Format(time.RFC3339),
	}
}

func NewReservationHandler(service booking.BookingUseCase, log *logrus.Logger) *ReservationHandler {
	return &ReservationHandler{service: service, log: log}
}

func (h *ReservationHandler) Register(router *gin.RouterGroup) {
	router.POST("", h.create)
	router.GET("/:id", h.get)
	router.PUT("/:id/seat", h.changeSeat)
}

func (h *ReservationHandler) create(c *gin.Context) {
	var req createReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	res, err := h.service.CreateReservation(c.Request.Context(), booking.CreateReservationInput{
		UserID:   req.UserID,
		FlightID: req.FlightID,
		SeatIDs:  req.SeatIDs,
		Amount:   req.Amount,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusCreated, newReservationResponse(res))
}

func (h *ReservationHandler) get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	res, err := h.service.GetReservation(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, newReservationResponse(res))
}

func (h *ReservationHandler) changeSeat(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req changeSeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	res, err := h.service.ChangeSeat(c.Request.Context(), booking.ChangeSeatInput{
		ReservationID: id,
		UserID:        req.UserID,
		OldSeatID:     req.OldSeatID,
		NewSeatID:     req.NewSeatID,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, newReservationResponse(res))
}
