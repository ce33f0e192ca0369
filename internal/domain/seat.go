package domain

import "time"

type SeatStatus string

const (
	SeatStatusAvailable SeatStatus = "AVAILABLE"
	SeatStatusReserved  SeatStatus = "RESERVED"
	SeatStatusConfirmed SeatStatus = "CONFIRMED"
)

type Seat struct {
	FlightID  int64
	SeatID    string
	Status    SeatStatus
	UpdatedAt time.Time
}

// Held reports whether the seat is occupied by a live reservation.
func (s SeatStatus) Held() bool {
	return s == SeatStatusReserved || s == SeatStatusConfirmed
}
