package domain

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	testCases := []struct {
		from, to ReservationStatus
		allowed  bool
	}{
		{ReservationStatusPending, ReservationStatusPaid, true},
		{ReservationStatusPending, ReservationStatusFailed, true},
		{ReservationStatusPending, ReservationStatusCancelled, true},
		{ReservationStatusPaid, ReservationStatusPendingRefund, true},
		{ReservationStatusPaid, ReservationStatusCancelled, true},
		{ReservationStatusPendingRefund, ReservationStatusCancelled, true},

		{ReservationStatusPaid, ReservationStatusPending, false},
		{ReservationStatusPaid, ReservationStatusFailed, false},
		{ReservationStatusCancelled, ReservationStatusPending, false},
		{ReservationStatusCancelled, ReservationStatusPaid, false},
		{ReservationStatusFailed, ReservationStatusPending, false},
		{ReservationStatusFailed, ReservationStatusPaid, false},
		{ReservationStatusPendingRefund, ReservationStatusPaid, false},
		{ReservationStatusPending, ReservationStatusPending, false},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%s->%s", tc.from, tc.to), func(t *testing.T) {
			assert.Equal(t, tc.allowed, CanTransition(tc.from, tc.to))
		})
	}
}

func TestReservationStatus_Live(t *testing.T) {
	assert.True(t, ReservationStatusPending.Live())
	assert.True(t, ReservationStatusPaid.Live())
	assert.True(t, ReservationStatusPendingRefund.Live())
	assert.False(t, ReservationStatusCancelled.Live())
	assert.False(t, ReservationStatusFailed.Live())
}

func TestKindOf(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		kind Kind
	}{
		{"validation", NewValidationError("seat_ids", "must not be empty"), KindValidation},
		{"seats taken", &SeatsTakenError{FlightID: 1, SeatIDs: []string{"1A"}}, KindConflict},
		{"wrapped conflict", fmt.Errorf("confirm: %w", ErrAlreadyConfirmed), KindConflict},
		{"duplicate event", ErrDuplicateEvent, KindConflict},
		{"reservation not found", ErrReservationNotFound, KindNotFound},
		{"no pending event", ErrNoPendingEvent, KindNotFound},
		{"seats not found", &SeatsNotFoundError{FlightID: 1, SeatIDs: []string{"9Z"}}, KindNotFound},
		{"partial", &PartialFailureError{FlightID: 1, Total: 2}, KindPartialFailure},
		{"unknown", errors.New("connection refused"), KindInfrastructure},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.kind, KindOf(tc.err))
		})
	}
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestCode(t *testing.T) {
	assert.Equal(t, "SEATS_TAKEN", Code(&SeatsTakenError{SeatIDs: []string{"1A"}}))
	assert.Equal(t, "NO_PENDING_EVENT", Code(fmt.Errorf("confirm: %w", ErrNoPendingEvent)))
	assert.Equal(t, "RESERVATION_NOT_FOUND", Code(ErrReservationNotFound))
	assert.Equal(t, "VALIDATION_ERROR", Code(NewValidationError("amount", "must not be negative")))
	assert.Equal(t, "INTERNAL_ERROR", Code(errors.New("boom")))
}

func TestPartialFailureError_Message(t *testing.T) {
	err := &PartialFailureError{
		FlightID:  7,
		Total:     3,
		Succeeded: 1,
		Failures: []ReservationFailure{
			{ReservationID: 12, Err: errors.New("db down")},
			{ReservationID: 4, Err: ErrIllegalTransition},
		},
	}

	assert.Equal(t, "flight 7: 2 of 3 reservations failed: reservation 4: illegal reservation status transition; reservation 12: db down", err.Error())
}

func TestPartialFailureError_MessageLeavesFailuresUntouched(t *testing.T) {
	failures := []ReservationFailure{
		{ReservationID: 12, Err: errors.New("db down")},
		{ReservationID: 4, Err: ErrIllegalTransition},
	}
	err := &PartialFailureError{FlightID: 7, Total: 2, Failures: failures}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = err.Error()
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(12), failures[0].ReservationID)
	assert.Equal(t, int64(4), failures[1].ReservationID)
}
