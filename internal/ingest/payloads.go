package ingest

import (
	"fmt"
	"time"

	"github.com/Domenick1991/airreservations/internal/domain"
)

type LocationPayload struct {
	Code      string `json:"code" validate:"required,len=3"`
	City      string `json:"city" validate:"required"`
	LocalTime string `json:"local_time"`
}

func (l LocationPayload) toDomain() domain.Location {
	return domain.Location{Code: l.Code, City: l.City, LocalTime: l.LocalTime}
}

// SeatLayout generates seat ids row by row: 1A, 1B, ... 2A.
type SeatLayout struct {
	Rows        int `json:"rows" validate:"gt=0,lte=200"`
	SeatsPerRow int `json:"seats_per_row" validate:"gt=0,lte=26"`
}

func (l SeatLayout) SeatIDs() []string {
	ids := make([]string, 0, l.Rows*l.SeatsPerRow)
	for row := 1; row <= l.Rows; row++ {
		for col := 0; col < l.SeatsPerRow; col++ {
			ids = append(ids, fmt.Sprintf("%d%c", row, 'A'+col))
		}
	}
	return ids
}

// FlightCreatedPayload carries either an explicit seat list or a layout.
type FlightCreatedPayload struct {
	FlightID        string          `json:"flight_id" validate:"required"`
	AircraftType    string          `json:"aircraft_type"`
	ScheduledAt     time.Time       `json:"scheduled_at" validate:"required"`
	DurationMinutes int             `json:"duration_minutes" validate:"gte=0"`
	Origin          LocationPayload `json:"origin"`
	Destination     LocationPayload `json:"destination"`
	Status          string          `json:"status" validate:"omitempty,oneof=ONTIME DELAYED"`
	Seats           []string        `json:"seats" validate:"omitempty,dive,required"`
	Layout          *SeatLayout     `json:"layout" validate:"omitempty"`
}

func (p FlightCreatedPayload) SeatIDs() []string {
	if len(p.Seats) > 0 {
		return p.Seats
	}
	if p.Layout != nil {
		return p.Layout.SeatIDs()
	}
	return nil
}

func (p FlightCreatedPayload) toDomain() domain.Flight {
	return domain.Flight{
		ExternalID:      p.FlightID,
		AircraftType:    p.AircraftType,
		ScheduledAt:     p.ScheduledAt,
		DurationMinutes: p.DurationMinutes,
		Origin:          p.Origin.toDomain(),
		Destination:     p.Destination.toDomain(),
		Status:          domain.FlightStatus(p.Status),
	}
}

type FlightUpdatedPayload struct {
	FlightID        string     `json:"flight_id" validate:"required"`
	Status          *string    `json:"status" validate:"omitempty,oneof=ONTIME DELAYED CANCELLED"`
	ScheduledAt     *time.Time `json:"scheduled_at"`
	DurationMinutes *int       `json:"duration_minutes" validate:"omitempty,gt=0"`
	AircraftType    *string    `json:"aircraft_type"`
}

func (p FlightUpdatedPayload) Cancelled() bool {
	return p.Status != nil && domain.FlightStatus(*p.Status) == domain.FlightStatusCancelled
}

// fieldUpdate is everything in the event except a cancellation.
func (p FlightUpdatedPayload) fieldUpdate() domain.FlightUpdate {
	update := domain.FlightUpdate{
		ScheduledAt:     p.ScheduledAt,
		DurationMinutes: p.DurationMinutes,
		AircraftType:    p.AircraftType,
	}
	if p.Status != nil && !p.Cancelled() {
		status := domain.FlightStatus(*p.Status)
		update.Status = &status
	}
	return update
}

type CartItemAddedPayload struct {
	UserID   string    `json:"user_id" validate:"required"`
	FlightID string    `json:"flight_id" validate:"required"`
	SeatIDs  []string  `json:"seat_ids" validate:"required,min=1,dive,required"`
	Price    int64     `json:"price" validate:"gte=0"`
	AddedAt  time.Time `json:"added_at"`
}

func (p CartItemAddedPayload) toDomain() domain.CartItem {
	return domain.CartItem{
		UserID:           p.UserID,
		FlightExternalID: p.FlightID,
		SeatIDs:          p.SeatIDs,
		Price:            p.Price,
		AddedAt:          p.AddedAt,
	}
}
