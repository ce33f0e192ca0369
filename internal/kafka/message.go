package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EventFlightCreated      = "flights.flight.created"
	EventFlightUpdated      = "flights.flight.updated"
	EventCartItemAdded      = "search.cart.item.added"
	EventReservationUpdated = "reservation.updated"
)

// SchemaVersion is the only envelope version this service reads and writes.
const SchemaVersion = 1

var ErrEmptyEventType = errors.New("event_type is required")

// Envelope wraps every message on the bus, inbound and outbound.
type Envelope struct {
	EventID       string          `json:"event_id,omitempty"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	SchemaVersion int             `json:"schema_version"`
}

func NewEnvelope(eventType string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		Payload:       data,
		SchemaVersion: SchemaVersion,
	}, nil
}

func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if env.EventType == "" {
		return Envelope{}, ErrEmptyEventType
	}
	return env, nil
}

// ReservationUpdated is the payload of reservation.updated.
type ReservationUpdated struct {
	ReservationID   int64     `json:"reservation_id"`
	NewStatus       string    `json:"new_status"`
	ReservationDate time.Time `json:"reservation_date"`
	FlightDate      time.Time `json:"flight_date"`
}

// ReservationNotification is what the notifications topic carries; the
// worker needs the user and flight to address the message.
type ReservationNotification struct {
	ReservationUpdated
	UserID   string   `json:"user_id"`
	FlightID int64    `json:"flight_id"`
	SeatIDs  []string `json:"seat_ids"`
}
