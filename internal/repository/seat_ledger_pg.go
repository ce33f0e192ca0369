package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Domenick1991/airreservations/internal/domain"
	"github.com/jackc/pgx/v5"
)

type SeatLedger interface {
	// CreateInventory inserts AVAILABLE seats; existing seats are left as they are.
	CreateInventory(ctx context.Context, flightID int64, seatIDs []string) (inserted int, err error)
	ListByFlight(ctx context.Context, flightID int64) ([]domain.Seat, error)
	// Statuses returns the status of each requested seat that exists on the flight.
	Statuses(ctx context.Context, flightID int64, seatIDs []string) (map[string]domain.SeatStatus, error)
	Reserve(ctx context.Context, flightID int64, seatID string) error
	// Confirm moves RESERVED seats to CONFIRMED and returns the seats it moved.
	// Seats in any other state are skipped, not treated as an error.
	Confirm(ctx context.Context, flightID int64, seatIDs []string) ([]string, error)
	Release(ctx context.Context, flightID int64, seatID string, from ...domain.SeatStatus) error
}

type PGSeatLedger struct {
	db DBTX
}

func NewSeatLedger(db DBTX) SeatLedger {
	return &PGSeatLedger{db: db}
}

func (l *PGSeatLedger) CreateInventory(ctx context.Context, flightID int64, seatIDs []string) (int, error) {
	if len(seatIDs) == 0 {
		return 0, nil
	}
	tag, err := l.db.Exec(ctx, `
		INSERT INTO seats (flight_id, seat_id, status)
		SELECT $1, s, 'AVAILABLE' FROM unnest($2::text[]) AS s
		ON CONFLICT (flight_id, seat_id) DO NOTHING
	`, flightID, seatIDs)
	if err != nil {
		return 0, fmt.Errorf("insert seat inventory: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (l *PGSeatLedger) ListByFlight(ctx context.Context, flightID int64) ([]domain.Seat, error) {
	rows, err := l.db.Query(ctx, `SELECT flight_id, seat_id, status, updated_at FROM seats WHERE flight_id=$1 ORDER BY seat_id`, flightID)
	if err != nil {
		return nil, fmt.Errorf("list seats: %w", err)
	}
	defer rows.Close()

	seats := make([]domain.Seat, 0)
	for rows.Next() {
		var s domain.Seat
		if err := rows.Scan(&s.FlightID, &s.SeatID, &s.Status, &s.UpdatedAt); err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

func (l *PGSeatLedger) Statuses(ctx context.Context, flightID int64, seatIDs []string) (map[string]domain.SeatStatus, error) {
	rows, err := l.db.Query(ctx, `SELECT seat_id, status FROM seats WHERE flight_id=$1 AND seat_id = ANY($2)`, flightID, seatIDs)
	if err != nil {
		return nil, fmt.Errorf("query seat statuses: %w", err)
	}
	defer rows.Close()

	statuses := make(map[string]domain.SeatStatus, len(seatIDs))
	for rows.Next() {
		var (
			id     string
			status domain.SeatStatus
		)
		if err := rows.Scan(&id, &status); err != nil {
			return nil, err
		}
		statuses[id] = status
	}
	return statuses, rows.Err()
}

func (l *PGSeatLedger) Reserve(ctx context.Context, flightID int64, seatID string) error {
	tag, err := l.db.Exec(ctx, `
		UPDATE seats SET status='RESERVED', updated_at=now()
		WHERE flight_id=$1 AND seat_id=$2 AND status='AVAILABLE'
	`, flightID, seatID)
	if err != nil {
		return fmt.Errorf("reserve seat %s: %w", seatID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("seat %s: %w", seatID, domain.ErrSeatUnavailable)
	}
	return nil
}

func (l *PGSeatLedger) Confirm(ctx context.Context, flightID int64, seatIDs []string) ([]string, error) {
	if len(seatIDs) == 0 {
		return nil, nil
	}
	rows, err := l.db.Query(ctx, `
		UPDATE seats SET status='CONFIRMED', updated_at=now()
		WHERE flight_id=$1 AND seat_id = ANY($2) AND status='RESERVED'
		RETURNING seat_id
	`, flightID, seatIDs)
	if err != nil {
		return nil, fmt.Errorf("confirm seats: %w", err)
	}
	defer rows.Close()

	confirmed := make([]string, 0, len(seatIDs))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		confirmed = append(confirmed, id)
	}
	return confirmed, rows.Err()
}

func (l *PGSeatLedger) Release(ctx context.Context, flightID int64, seatID string, from ...domain.SeatStatus) error {
	var released string
	err := l.db.QueryRow(ctx, `
		UPDATE seats SET status='AVAILABLE', updated_at=now()
		WHERE flight_id=$1 AND seat_id=$2 AND status = ANY($3)
		RETURNING seat_id
	`, flightID, seatID, toStrings(from)).Scan(&released)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("seat %s: %w", seatID, domain.ErrSeatNotInExpectedState)
	}
	if err != nil {
		return fmt.Errorf("release seat %s: %w", seatID, err)
	}
	return nil
}

var _ SeatLedger = (*PGSeatLedger)(nil)
