package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UnitOfWork exposes the ledgers bound to a single database transaction.
type UnitOfWork interface {
	Seats() SeatLedger
	Reservations() ReservationLedger
	Payments() PaymentEventLog
	Flights() FlightRepository
}

// Transactor runs fn inside one transaction. fn returning an error, or a failed
// commit, rolls back every write made through the unit of work.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
}

type PGTransactor struct {
	db *pgxpool.Pool
}

func NewTransactor(db *pgxpool.Pool) *PGTransactor {
	return &PGTransactor{db: db}
}

func (t *PGTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error {
	tx, err := t.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, newPGUnitOfWork(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type pgUnitOfWork struct {
	seats        SeatLedger
	reservations ReservationLedger
	payments     PaymentEventLog
	flights      FlightRepository
}

func newPGUnitOfWork(db DBTX) *pgUnitOfWork {
	return &pgUnitOfWork{
		seats:        NewSeatLedger(db),
		reservations: NewReservationLedger(db),
		payments:     NewPaymentEventLog(db),
		flights:      NewFlightRepository(db),
	}
}

func (u *pgUnitOfWork) Seats() SeatLedger                { return u.seats }
func (u *pgUnitOfWork) Reservations() ReservationLedger { return u.reservations }
func (u *pgUnitOfWork) Payments() PaymentEventLog        { return u.payments }
func (u *pgUnitOfWork) Flights() FlightRepository        { return u.flights }

var _ Transactor = (*PGTransactor)(nil)
var _ UnitOfWork = (*pgUnitOfWork)(nil)
