package api

import (
	"context"
	"net/http"

	"github.com/Domenick1991/airreservations/internal/domain"
	"github.com/Domenick1991/airreservations/internal/service/booking"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// PaymentHandler receives payment provider callbacks.
type PaymentHandler struct {
	service booking.BookingUseCase
	log     *logrus.Logger
}

type paymentRequest struct {
	ReservationID int64  `json:"reservation_id"`
	UserID        string `json:"user_id"`
}

type paymentFailureRequest struct {
	ReservationID int64  `json:"reservation_id"`
	UserID        string `json:"user_id"`
	Reason        string `json:"reason"`
}

func NewPaymentHandler(service booking.BookingUseCase, log *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{service: service, log: log}
}

func (h *PaymentHandler) Register(router *gin.RouterGroup) {
	router.POST("/confirm", h.handle(h.service.ConfirmPayment))
	router.POST("/cancel", h.handle(h.service.CancelPayment))
	router.POST("/refund", h.handle(h.service.RequestRefund))
	router.POST("/fail", h.fail)
}

type paymentAction func(ctx context.Context, reservationID int64, userID string) (*domain.Reservation, error)

func (h *PaymentHandler) handle(action paymentAction) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req paymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		res, err := action(c.Request.Context(), req.ReservationID, req.UserID)
		if err != nil {
			respondError(c, h.log, err)
			return
		}
		respond(c, http.StatusOK, newReservationResponse(res))
	}
}

func (h *PaymentHandler) fail(c *gin.Context) {
	var req paymentFailureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	res, err := h.service.FailPayment(c.Request.Context(), booking.PaymentFailure{
		ReservationID: req.ReservationID,
		UserID:        req.UserID,
		Reason:        req.Reason,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, newReservationResponse(res))
}
