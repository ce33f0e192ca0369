package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies an error for callers that need to decide between retrying,
// reporting a conflict or giving up.
type Kind string

const (
	KindValidation     Kind = "VALIDATION"
	KindConflict       Kind = "CONFLICT"
	KindNotFound       Kind = "NOT_FOUND"
	KindPartialFailure Kind = "PARTIAL_FAILURE"
	KindInfrastructure Kind = "INFRASTRUCTURE"
)

var (
	ErrSeatUnavailable        = errors.New("seat is not available")
	ErrSeatNotInExpectedState = errors.New("seat is not in expected state")
	ErrSeatsTaken             = errors.New("seats already taken")
	ErrIllegalTransition      = errors.New("illegal reservation status transition")
	ErrAlreadyConfirmed       = errors.New("reservation already confirmed")
	ErrInvalidState           = errors.New("reservation is in invalid state for this operation")
	ErrDuplicateRefund        = errors.New("refund already recorded for reservation")
	ErrDuplicateEvent         = errors.New("payment event already recorded")
	ErrFlightCancelled        = errors.New("flight is cancelled")

	ErrNotFound            = errors.New("not found")
	ErrReservationNotFound = fmt.Errorf("reservation %w", ErrNotFound)
	ErrFlightNotFound      = fmt.Errorf("flight %w", ErrNotFound)
	ErrSeatNotFound        = fmt.Errorf("seat %w", ErrNotFound)
	ErrNoPendingEvent      = fmt.Errorf("pending payment event %w", ErrNotFound)
)

var conflictErrors = []error{
	ErrSeatUnavailable,
	ErrSeatNotInExpectedState,
	ErrSeatsTaken,
	ErrIllegalTransition,
	ErrAlreadyConfirmed,
	ErrInvalidState,
	ErrDuplicateRefund,
	ErrDuplicateEvent,
	ErrFlightCancelled,
}

// ValidationError is returned for malformed input, before any transaction starts.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// SeatsTakenError lists the seats that blocked a reservation.
type SeatsTakenError struct {
	FlightID int64
	SeatIDs  []string
}

func (e *SeatsTakenError) Error() string {
	return fmt.Sprintf("seats already taken on flight %d: %s", e.FlightID, strings.Join(e.SeatIDs, ","))
}

func (e *SeatsTakenError) Unwrap() error { return ErrSeatsTaken }

// SeatsNotFoundError lists requested seats that do not exist on the flight.
type SeatsNotFoundError struct {
	FlightID int64
	SeatIDs  []string
}

func (e *SeatsNotFoundError) Error() string {
	return fmt.Sprintf("seats not found on flight %d: %s", e.FlightID, strings.Join(e.SeatIDs, ","))
}

func (e *SeatsNotFoundError) Unwrap() error { return ErrSeatNotFound }

// ReservationFailure is one failed sub-operation of a fan-out workflow.
type ReservationFailure struct {
	ReservationID int64
	Err           error
}

// PartialFailureError reports a fan-out where some sub-operations failed.
// Succeeded sub-operations stay committed.
type PartialFailureError struct {
	FlightID  int64
	Total     int
	Succeeded int
	Failures  []ReservationFailure
}

func (e *PartialFailureError) Error() string {
	failures := append([]ReservationFailure(nil), e.Failures...)
	sort.Slice(failures, func(i, j int) bool { return failures[i].ReservationID < failures[j].ReservationID })
	parts := make([]string, 0, len(failures))
	for _, f := range failures {
		parts = append(parts, fmt.Sprintf("reservation %d: %v", f.ReservationID, f.Err))
	}
	return fmt.Sprintf("flight %d: %d of %d reservations failed: %s", e.FlightID, len(e.Failures), e.Total, strings.Join(parts, "; "))
}

// KindOf maps any error returned by the services onto the error taxonomy.
// Unknown errors are treated as infrastructure failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return KindValidation
	}
	var partialErr *PartialFailureError
	if errors.As(err, &partialErr) {
		return KindPartialFailure
	}
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			return KindConflict
		}
	}
	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	return KindInfrastructure
}

// Code is a stable machine-readable identifier for API error bodies.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSeatsTaken):
		return "SEATS_TAKEN"
	case errors.Is(err, ErrSeatUnavailable):
		return "SEAT_UNAVAILABLE"
	case errors.Is(err, ErrSeatNotInExpectedState):
		return "SEAT_NOT_IN_EXPECTED_STATE"
	case errors.Is(err, ErrIllegalTransition):
		return "ILLEGAL_TRANSITION"
	case errors.Is(err, ErrAlreadyConfirmed):
		return "ALREADY_CONFIRMED"
	case errors.Is(err, ErrInvalidState):
		return "INVALID_STATE"
	case errors.Is(err, ErrDuplicateRefund):
		return "DUPLICATE_REFUND"
	case errors.Is(err, ErrDuplicateEvent):
		return "DUPLICATE_EVENT"
	case errors.Is(err, ErrFlightCancelled):
		return "FLIGHT_CANCELLED"
	case errors.Is(err, ErrNoPendingEvent):
		return "NO_PENDING_EVENT"
	case errors.Is(err, ErrReservationNotFound):
		return "RESERVATION_NOT_FOUND"
	case errors.Is(err, ErrFlightNotFound):
		return "FLIGHT_NOT_FOUND"
	case errors.Is(err, ErrSeatNotFound):
		return "SEAT_NOT_FOUND"
	}
	switch KindOf(err) {
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindPartialFailure:
		return "PARTIAL_FAILURE"
	case KindNotFound:
		return "NOT_FOUND"
	}
	return "INTERNAL_ERROR"
}
