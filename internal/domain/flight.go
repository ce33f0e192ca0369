package domain

import "time"

type FlightStatus string

const (
	FlightStatusOnTime    FlightStatus = "ONTIME"
	FlightStatusDelayed   FlightStatus = "DELAYED"
	FlightStatusCancelled FlightStatus = "CANCELLED"
)

func (s FlightStatus) Valid() bool {
	switch s {
	case FlightStatusOnTime, FlightStatusDelayed, FlightStatusCancelled:
		return true
	}
	return false
}

type Location struct {
	Code      string `json:"code"`
	City      string `json:"city"`
	LocalTime string `json:"local_time"`
}

type Flight struct {
	ID              int64
	ExternalID      string
	AircraftType    string
	ScheduledAt     time.Time
	DurationMinutes int
	Origin          Location
	Destination     Location
	Status          FlightStatus
	FreeSeats       int
	OccupiedSeats   int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// FlightUpdate carries the optional schedule/status fields of a flight change.
// Nil fields are left untouched.
type FlightUpdate struct {
	Status          *FlightStatus
	ScheduledAt     *time.Time
	DurationMinutes *int
	AircraftType    *string
}

func (u FlightUpdate) Empty() bool {
	return u.Status == nil && u.ScheduledAt == nil && u.DurationMinutes == nil && u.AircraftType == nil
}
