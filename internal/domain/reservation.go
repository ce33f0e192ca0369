package domain

import "time"

type ReservationStatus string

const (
	ReservationStatusPending       ReservationStatus = "PENDING"
	ReservationStatusPaid          ReservationStatus = "PAID"
	ReservationStatusPendingRefund ReservationStatus = "PENDING_REFUND"
	ReservationStatusCancelled     ReservationStatus = "CANCELLED"
	ReservationStatusFailed        ReservationStatus = "FAILED"
)

var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationStatusPending:       {ReservationStatusPaid, ReservationStatusFailed, ReservationStatusCancelled},
	ReservationStatusPaid:          {ReservationStatusPendingRefund, ReservationStatusCancelled},
	ReservationStatusPendingRefund: {ReservationStatusCancelled},
}

// CanTransition reports whether from -> to is an edge of the reservation state machine.
func CanTransition(from, to ReservationStatus) bool {
	for _, next := range reservationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Live reports whether the reservation still holds its seats.
func (s ReservationStatus) Live() bool {
	return s == ReservationStatusPending || s == ReservationStatusPaid || s == ReservationStatusPendingRefund
}

type Reservation struct {
	ID             int64
	ExternalUserID string
	FlightID       int64
	SeatIDs        []string
	Amount         int64
	Status         ReservationStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (r *Reservation) HasSeat(seatID string) bool {
	for _, s := range r.SeatIDs {
		if s == seatID {
			return true
		}
	}
	return false
}

// ReservationDates is what downstream notifications need besides the status.
type ReservationDates struct {
	ReservationDate time.Time
	FlightDate      time.Time
}
