package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/airreservations/internal/domain"
	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
)

type ReservationLedger interface {
	// Create inserts a PENDING reservation and its live seat rows.
	Create(ctx context.Context, reservation *domain.Reservation) error
	Get(ctx context.Context, id int64) (*domain.Reservation, error)
	// GetForUpdate locks the reservation row until the transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*domain.Reservation, error)
	ListByFlight(ctx context.Context, flightID int64, statuses ...domain.ReservationStatus) ([]domain.Reservation, error)
	ListPendingBefore(ctx context.Context, deadline time.Time, limit int) ([]domain.Reservation, error)
	UpdateStatus(ctx context.Context, id int64, from, to domain.ReservationStatus) error
	ChangeSeat(ctx context.Context, id int64, oldSeatID, newSeatID string) error
	// DeactivateSeats frees the seat rows of a reservation that no longer holds them.
	DeactivateSeats(ctx context.Context, id int64) error
	Dates(ctx context.Context, id int64) (domain.ReservationDates, error)
}

type PGReservationLedger struct {
	db DBTX
	sb sq.StatementBuilderType
}

func NewReservationLedger(db DBTX) ReservationLedger {
	return &PGReservationLedger{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

const reservationSelect = `
	SELECT r.id, r.external_user_id, r.flight_id, r.amount, r.status, r.created_at, r.updated_at,
		ARRAY(SELECT rs.seat_id FROM reservation_seats rs WHERE rs.reservation_id = r.id ORDER BY rs.seat_id)
	FROM reservations r`

func scanReservation(row pgx.Row) (*domain.Reservation, error) {
	var r domain.Reservation
	if err := row.Scan(&r.ID, &r.ExternalUserID, &r.FlightID, &r.Amount, &r.Status, &r.CreatedAt, &r.UpdatedAt, &r.SeatIDs); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrReservationNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (l *PGReservationLedger) Create(ctx context.Context, reservation *domain.Reservation) error {
	if len(reservation.SeatIDs) == 0 {
		return domain.NewValidationError("seat_ids", "must not be empty")
	}

	reservation.Status = domain.ReservationStatusPending
	if err := l.db.QueryRow(ctx, `
		INSERT INTO reservations (external_user_id, flight_id, amount, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`, reservation.ExternalUserID, reservation.FlightID, reservation.Amount, reservation.Status).
		Scan(&reservation.ID, &reservation.CreatedAt, &reservation.UpdatedAt); err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}

	if _, err := l.db.Exec(ctx, `
		INSERT INTO reservation_seats (reservation_id, flight_id, seat_id, active)
		SELECT $1, $2, s, TRUE FROM unnest($3::text[]) AS s
	`, reservation.ID, reservation.FlightID, reservation.SeatIDs); err != nil {
		if isUniqueViolation(err) {
			return &domain.SeatsTakenError{FlightID: reservation.FlightID, SeatIDs: reservation.SeatIDs}
		}
		return fmt.Errorf("insert reservation seats: %w", err)
	}
	return nil
}

func (l *PGReservationLedger) Get(ctx context.Context, id int64) (*domain.Reservation, error) {
	return scanReservation(l.db.QueryRow(ctx, reservationSelect+` WHERE r.id=$1`, id))
}

func (l *PGReservationLedger) GetForUpdate(ctx context.Context, id int64) (*domain.Reservation, error) {
	var locked int64
	err := l.db.QueryRow(ctx, `SELECT id FROM reservations WHERE id=$1 FOR UPDATE`, id).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock reservation %d: %w", id, err)
	}
	return l.Get(ctx, id)
}

func (l *PGReservationLedger) ListByFlight(ctx context.Context, flightID int64, statuses ...domain.ReservationStatus) ([]domain.Reservation, error) {
	query := l.sb.
		Select("id").
		From("reservations").
		Where(sq.Eq{"flight_id": flightID}).
		OrderBy("id")
	if len(statuses) > 0 {
		query = query.Where(sq.Eq{"status": toStrings(statuses)})
	}
	return l.listWhere(ctx, query)
}

func (l *PGReservationLedger) ListPendingBefore(ctx context.Context, deadline time.Time, limit int) ([]domain.Reservation, error) {
	if limit <= 0 {
		limit = 100
	}
	query := l.sb.
		Select("id").
		From("reservations").
		Where(sq.Eq{"status": string(domain.ReservationStatusPending)}).
		Where(sq.LtOrEq{"created_at": deadline}).
		OrderBy("created_at", "id").
		Limit(uint64(limit))
	return l.listWhere(ctx, query)
}

func (l *PGReservationLedger) listWhere(ctx context.Context, ids sq.SelectBuilder) ([]domain.Reservation, error) {
	idSQL, args, err := ids.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build reservation query: %w", err)
	}

	rows, err := l.db.Query(ctx, reservationSelect+` WHERE r.id IN (`+idSQL+`) ORDER BY r.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	reservations := make([]domain.Reservation, 0)
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, *r)
	}
	return reservations, rows.Err()
}

func (l *PGReservationLedger) UpdateStatus(ctx context.Context, id int64, from, to domain.ReservationStatus) error {
	if !domain.CanTransition(from, to) {
		return fmt.Errorf("reservation %d %s -> %s: %w", id, from, to, domain.ErrIllegalTransition)
	}

	tag, err := l.db.Exec(ctx, `UPDATE reservations SET status=$1, updated_at=now() WHERE id=$2 AND status=$3`, to, id, from)
	if err != nil {
		return fmt.Errorf("update reservation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reservation %d is not %s: %w", id, from, domain.ErrIllegalTransition)
	}
	return nil
}

func (l *PGReservationLedger) ChangeSeat(ctx context.Context, id int64, oldSeatID, newSeatID string) error {
	tag, err := l.db.Exec(ctx, `
		UPDATE reservation_seats SET seat_id=$3
		WHERE reservation_id=$1 AND seat_id=$2 AND active
	`, id, oldSeatID, newSeatID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("seat %s: %w", newSeatID, domain.ErrSeatUnavailable)
		}
		return fmt.Errorf("change reservation seat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reservation %d does not hold seat %s: %w", id, oldSeatID, domain.ErrSeatNotFound)
	}
	return nil
}

func (l *PGReservationLedger) DeactivateSeats(ctx context.Context, id int64) error {
	if _, err := l.db.Exec(ctx, `UPDATE reservation_seats SET active=FALSE WHERE reservation_id=$1 AND active`, id); err != nil {
		return fmt.Errorf("deactivate reservation seats: %w", err)
	}
	return nil
}

func (l *PGReservationLedger) Dates(ctx context.Context, id int64) (domain.ReservationDates, error) {
	var dates domain.ReservationDates
	err := l.db.QueryRow(ctx, `
		SELECT r.created_at, f.scheduled_at
		FROM reservations r
		JOIN flights f ON f.id = r.flight_id
		WHERE r.id=$1
	`, id).Scan(&dates.ReservationDate, &dates.FlightDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return dates, domain.ErrReservationNotFound
	}
	if err != nil {
		return dates, fmt.Errorf("reservation dates: %w", err)
	}
	return dates, nil
}

var _ ReservationLedger = (*PGReservationLedger)(nil)
