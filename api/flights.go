package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Domenick1991/airreservations/internal/domain"
	"github.com/Domenick1991/airreservations/internal/service/booking"
	"github.com/Domenick1991/airreservations/internal/service/flights"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type FlightHandler struct {
	service  flights.FlightUseCase
	bookings booking.BookingUseCase
	log      *logrus.Logger
}

type flightResponse struct {
	ID              int64           `json:"id"`
	ExternalID      string          `json:"external_id"`
	AircraftType    string          `json:"aircraft_type"`
	ScheduledAt     string          `json:"scheduled_at"`
	DurationMinutes int             `json:"duration_minutes"`
	Origin          domain.Location `json:"origin"`
	Destination     domain.Location `json:"destination"`
	Status          string          `json:"status"`
	FreeSeats       int             `json:"free_seats"`
	OccupiedSeats   int             `json:"occupied_seats"`
}

type seatResponse struct {
	SeatID string `json:"seat_id"`
	Status string `json:"status"`
}

func newFlightResponse(f domain.Flight) flightResponse {
	return flightResponse{
		ID:              f.ID,
		ExternalID:      f.ExternalID,
		AircraftType:    f.AircraftType,
		ScheduledAt:     f.ScheduledAt.Format(time.RFC3339),
		DurationMinutes: f.DurationMinutes,
		Origin:          f.Origin,
		Destination:     f.Destination,
		Status:          string(f.Status),
		FreeSeats:       f.FreeSeats,
		OccupiedSeats:   f.OccupiedSeats,
	}
}

func NewFlightHandler(service flights.FlightUseCase, bookings booking.BookingUseCase, log *logrus.Logger) *FlightHandler {
	return &FlightHandler{service: service, bookings: bookings, log: log}
}

func (h *FlightHandler) Register(router *gin.RouterGroup) {
	router.GET("", h.list)
	router.GET("/:id", h.get)
	router.GET("/:id/seats", h.seats)
	router.POST("/:id/cancel", h.cancel)
}

func (h *FlightHandler) list(c *gin.Context) {
	list, err := h.service.List(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	out := make([]flightResponse, 0, len(list))
	for _, f := range list {
		out = append(out, newFlightResponse(f))
	}
	respond(c, http.StatusOK, out)
}

func (h *FlightHandler) get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	flight, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, newFlightResponse(*flight))
}

func (h *FlightHandler) seats(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	seats, err := h.service.Seats(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	out := make([]seatResponse, 0, len(seats))
	for _, s := range seats {
		out = append(out, seatResponse{SeatID: s.SeatID, Status: string(s.Status)})
	}
	respond(c, http.StatusOK, out)
}

// cancel runs the flight cancellation fan-out. A partial failure still
// reports the counts alongside the per-reservation errors.
func (h *FlightHandler) cancel(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	result, err := h.bookings.CancelAllReservationsForFlight(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, result)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid id")
		return 0, false
	}
	return id, true
}
