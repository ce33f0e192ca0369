package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Domenick1991/airreservations/internal/domain"
	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
)

type FlightRepository interface {
	// Create inserts the flight unless one with the same external id exists.
	// created is false when the existing row is returned instead.
	Create(ctx context.Context, flight *domain.Flight) (created bool, err error)
	List(ctx context.Context) ([]domain.Flight, error)
	GetByID(ctx context.Context, id int64) (*domain.Flight, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.Flight, error)
	Update(ctx context.Context, id int64, update domain.FlightUpdate) (*domain.Flight, error)
	UpdateStatus(ctx context.Context, id int64, status domain.FlightStatus) error
	// AdjustCounters moves free/occupied counters by the given deltas. Only the
	// booking workflows call it, inside the transaction that changed the seats.
	AdjustCounters(ctx context.Context, id int64, freeDelta, occupiedDelta int) error
	// RecountSeats rebuilds both counters from the seat rows of the flight.
	RecountSeats(ctx context.Context, id int64) (*domain.Flight, error)
}

type PGFlightRepository struct {
	db DBTX
	sb sq.StatementBuilderType
}

func NewFlightRepository(db DBTX) FlightRepository {
	return &PGFlightRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

var flightColumns = []string{
	"id", "external_id", "aircraft_type", "scheduled_at", "duration_minutes",
	"origin_code", "origin_city", "origin_local_time",
	"dest_code", "dest_city", "dest_local_time",
	"status", "free_seats", "occupied_seats", "created_at", "updated_at",
}

func scanFlight(row pgx.Row) (*domain.Flight, error) {
	var f domain.Flight
	if err := row.Scan(
		&f.ID, &f.ExternalID, &f.AircraftType, &f.ScheduledAt, &f.DurationMinutes,
		&f.Origin.Code, &f.Origin.City, &f.Origin.LocalTime,
		&f.Destination.Code, &f.Destination.City, &f.Destination.LocalTime,
		&f.Status, &f.FreeSeats, &f.OccupiedSeats, &f.CreatedAt, &f.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrFlightNotFound
		}
		return nil, err
	}
	return &f, nil
}

func (r *PGFlightRepository) Create(ctx context.Context, flight *domain.Flight) (bool, error) {
	if flight.Status == "" {
		flight.Status = domain.FlightStatusOnTime
	}

	query := r.sb.
		Insert("flights").
		Columns(
			"external_id", "aircraft_type", "scheduled_at", "duration_minutes",
			"origin_code", "origin_city", "origin_local_time",
			"dest_code", "dest_city", "dest_local_time",
			"status", "free_seats", "occupied_seats",
		).
		Values(
			flight.ExternalID, flight.AircraftType, flight.ScheduledAt, flight.DurationMinutes,
			flight.Origin.Code, flight.Origin.City, flight.Origin.LocalTime,
			flight.Destination.Code, flight.Destination.City, flight.Destination.LocalTime,
			flight.Status, flight.FreeSeats, flight.OccupiedSeats,
		).
		Suffix("ON CONFLICT (external_id) DO NOTHING RETURNING id, created_at, updated_at")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert flight: %w", err)
	}

	err = r.db.QueryRow(ctx, sqlStr, args...).Scan(&flight.ID, &flight.CreatedAt, &flight.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, getErr := r.GetByExternalID(ctx, flight.ExternalID)
		if getErr != nil {
			return false, getErr
		}
		*flight = *existing
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert flight: %w", err)
	}
	return true, nil
}

func (r *PGFlightRepository) List(ctx context.Context) ([]domain.Flight, error) {
	sqlStr, args, err := r.sb.Select(flightColumns...).From("flights").OrderBy("scheduled_at", "id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list flights: %w", err)
	}

	rows, err := r.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list flights: %w", err)
	}
	defer rows.Close()

	flights := make([]domain.Flight, 0)
	for rows.Next() {
		f, err := scanFlight(rows)
		if err != nil {
			return nil, err
		}
		flights = append(flights, *f)
	}
	return flights, rows.Err()
}

func (r *PGFlightRepository) GetByID(ctx context.Context, id int64) (*domain.Flight, error) {
	return r.getBy(ctx, sq.Eq{"id": id})
}

func (r *PGFlightRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.Flight, error) {
	return r.getBy(ctx, sq.Eq{"external_id": externalID})
}

func (r *PGFlightRepository) getBy(ctx context.Context, pred sq.Eq) (*domain.Flight, error) {
	sqlStr, args, err := r.sb.Select(flightColumns...).From("flights").Where(pred).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get flight: %w", err)
	}
	return scanFlight(r.db.QueryRow(ctx, sqlStr, args...))
}

func (r *PGFlightRepository) Update(ctx context.Context, id int64, update domain.FlightUpdate) (*domain.Flight, error) {
	if update.Empty() {
		return r.GetByID(ctx, id)
	}

	query := r.sb.Update("flights").Set("updated_at", sq.Expr("now()")).Where(sq.Eq{"id": id})
	if update.Status != nil {
		query = query.Set("status", string(*update.Status))
	}
	if update.ScheduledAt != nil {
		query = query.Set("scheduled_at", *update.ScheduledAt)
	}
	if update.DurationMinutes != nil {
		query = query.Set("duration_minutes", *update.DurationMinutes)
	}
	if update.AircraftType != nil {
		query = query.Set("aircraft_type", *update.AircraftType)
	}

	sqlStr, args, err := query.Suffix("RETURNING " + strings.Join(flightColumns, ", ")).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update flight: %w", err)
	}
	return scanFlight(r.db.QueryRow(ctx, sqlStr, args...))
}

func (r *PGFlightRepository) UpdateStatus(ctx context.Context, id int64, status domain.FlightStatus) error {
	tag, err := r.db.Exec(ctx, `UPDATE flights SET status=$1, updated_at=now() WHERE id=$2`, status, id)
	if err != nil {
		return fmt.Errorf("update flight status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrFlightNotFound
	}
	return nil
}

func (r *PGFlightRepository) AdjustCounters(ctx context.Context, id int64, freeDelta, occupiedDelta int) error {
	if freeDelta == 0 && occupiedDelta == 0 {
		return nil
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE flights
		SET free_seats = free_seats + $2,
			occupied_seats = occupied_seats + $3,
			updated_at = now()
		WHERE id = $1
		AND free_seats + $2 >= 0
		AND occupied_seats + $3 >= 0
	`, id, freeDelta, occupiedDelta)
	if err != nil {
		return fmt.Errorf("adjust flight counters: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("flight %d counters would go negative (free %+d, occupied %+d)", id, freeDelta, occupiedDelta)
	}
	return nil
}

func (r *PGFlightRepository) RecountSeats(ctx context.Context, id int64) (*domain.Flight, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE flights f
		SET free_seats = c.free,
			occupied_seats = c.occupied,
			updated_at = now()
		FROM (
			SELECT count(*) FILTER (WHERE status = 'AVAILABLE') AS free,
				count(*) FILTER (WHERE status <> 'AVAILABLE') AS occupied
			FROM seats
			WHERE flight_id = $1
		) c
		WHERE f.id = $1
		RETURNING `+prefixed("f.", flightColumns), id)
	return scanFlight(row)
}

func prefixed(prefix string, cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = prefix + c
	}
	return strings.Join(out, ", ")
}

var _ FlightRepository = (*PGFlightRepository)(nil)
