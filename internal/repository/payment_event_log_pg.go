package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Domenick1991/airreservations/internal/domain"
	"github.com/jackc/pgx/v5"
)

type PaymentEventLog interface {
	// Record appends an event. A second FAILED or REFUND event for the same
	// reservation violates a unique index and is reported as ErrDuplicateEvent.
	Record(ctx context.Context, event *domain.PaymentEvent) error
	// FindPending returns the amount of the latest PENDING event.
	FindPending(ctx context.Context, reservationID int64, userID string) (int64, error)
	Exists(ctx context.Context, reservationID int64, status domain.PaymentStatus) (bool, error)
	ListByReservation(ctx context.Context, reservationID int64) ([]domain.PaymentEvent, error)
}

type PGPaymentEventLog struct {
	db DBTX
}

func NewPaymentEventLog(db DBTX) PaymentEventLog {
	return &PGPaymentEventLog{db: db}
}

func (l *PGPaymentEventLog) Record(ctx context.Context, event *domain.PaymentEvent) error {
	err := l.db.QueryRow(ctx, `
		INSERT INTO payment_events (reservation_id, external_user_id, payment_status, amount)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, event.ReservationID, event.ExternalUserID, event.Status, event.Amount).Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s event for reservation %d: %w", event.Status, event.ReservationID, domain.ErrDuplicateEvent)
		}
		return fmt.Errorf("insert payment event: %w", err)
	}
	return nil
}

func (l *PGPaymentEventLog) FindPending(ctx context.Context, reservationID int64, userID string) (int64, error) {
	var amount int64
	err := l.db.QueryRow(ctx, `
		SELECT amount FROM payment_events
		WHERE reservation_id=$1 AND external_user_id=$2 AND payment_status='PENDING'
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, reservationID, userID).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNoPendingEvent
	}
	if err != nil {
		return 0, fmt.Errorf("find pending payment event: %w", err)
	}
	return amount, nil
}

func (l *PGPaymentEventLog) Exists(ctx context.Context, reservationID int64, status domain.PaymentStatus) (bool, error) {
	var exists bool
	if err := l.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM payment_events WHERE reservation_id=$1 AND payment_status=$2)
	`, reservationID, status).Scan(&exists); err != nil {
		return false, fmt.Errorf("check payment event: %w", err)
	}
	return exists, nil
}

func (l *PGPaymentEventLog) ListByReservation(ctx context.Context, reservationID int64) ([]domain.PaymentEvent, error) {
	rows, err := l.db.Query(ctx, `
		SELECT id, reservation_id, external_user_id, payment_status, amount, created_at
		FROM payment_events WHERE reservation_id=$1 ORDER BY created_at, id
	`, reservationID)
	if err != nil {
		return nil, fmt.Errorf("list payment events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.PaymentEvent, 0)
	for rows.Next() {
		var e domain.PaymentEvent
		if err := rows.Scan(&e.ID, &e.ReservationID, &e.ExternalUserID, &e.Status, &e.Amount, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

var _ PaymentEventLog = (*PGPaymentEventLog)(nil)
