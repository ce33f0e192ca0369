package flights

import (
	"context"
	"strings"

	"github.com/Domenick1991/airreservations/internal/domain"
	"github.com/Domenick1991/airreservations/internal/repository"
	"github.com/sirupsen/logrus"
)

type FlightUseCase interface {
	List(ctx context.Context) ([]domain.Flight, error)
	GetByID(ctx context.Context, id int64) (*domain.Flight, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.Flight, error)
	Seats(ctx context.Context, flightID int64) ([]domain.Seat, error)
	CreateFlight(ctx context.Context, flight domain.Flight, seatIDs []string) (*domain.Flight, bool, error)
	UpdateFlight(ctx context.Context, id int64, update domain.FlightUpdate) (*domain.Flight, error)
}

type FlightCache interface {
	GetFlights(ctx context.Context) ([]domain.Flight, error)
	SetFlights(ctx context.Context, flights []domain.Flight) error
	InvalidateFlights(ctx context.Context) error
}

type FlightService struct {
	repo  repository.FlightRepository
	seats repository.SeatLedger
	tx    repository.Transactor
	cache FlightCache
	log   *logrus.Logger
}

func NewFlightService(
	repo repository.FlightRepository,
	seats repository.SeatLedger,
	tx repository.Transactor,
	cache FlightCache,
	log *logrus.Logger,
) *FlightService {
	return &FlightService{repo: repo, seats: seats, tx: tx, cache: cache, log: log}
}

func (s *FlightService) List(ctx context.Context) ([]domain.Flight, error) {
	if s.cache != nil {
		cached, err := s.cache.GetFlights(ctx)
		if err != nil {
			s.log.WithError(err).Warn("flights cache read failed")
		} else if cached != nil {
			return cached, nil
		}
	}

	flights, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetFlights(ctx, flights); err != nil {
			s.log.WithError(err).Warn("flights cache write failed")
		}
	}
	return flights, nil
}

func (s *FlightService) GetByID(ctx context.Context, id int64) (*domain.Flight, error) {
	if id <= 0 {
		return nil, domain.NewValidationError("flight_id", "must be positive")
	}
	return s.repo.GetByID(ctx, id)
}

func (s *FlightService) GetByExternalID(ctx context.Context, externalID string) (*domain.Flight, error) {
	if strings.TrimSpace(externalID) == "" {
		return nil, domain.NewValidationError("external_id", "is required")
	}
	return s.repo.GetByExternalID(ctx, externalID)
}

func (s *FlightService) Seats(ctx context.Context, flightID int64) ([]domain.Seat, error) {
	if _, err := s.GetByID(ctx, flightID); err != nil {
		return nil, err
	}
	return s.seats.ListByFlight(ctx, flightID)
}

// CreateFlight stores the flight with an AVAILABLE seat inventory. A flight
// whose external id is already known is returned unchanged with created=false.
func (s *FlightService) CreateFlight(ctx context.Context, flight domain.Flight, seatIDs []string) (*domain.Flight, bool, error) {
	flight.ExternalID = strings.TrimSpace(flight.ExternalID)
	if flight.ExternalID == "" {
		return nil, false, domain.NewValidationError("external_id", "is required")
	}
	if flight.Status == "" {
		flight.Status = domain.FlightStatusOnTime
	}
	if !flight.Status.Valid() {
		return nil, false, domain.NewValidationError("status", "unknown flight status "+string(flight.Status))
	}
	if flight.Status == domain.FlightStatusCancelled {
		return nil, false, domain.NewValidationError("status", "a new flight cannot be cancelled")
	}
	if len(seatIDs) == 0 {
		return nil, false, domain.NewValidationError("seats", "must not be empty")
	}
	seen := make(map[string]struct{}, len(seatIDs))
	for _, id := range seatIDs {
		if id == "" {
			return nil, false, domain.NewValidationError("seats", "must not contain empty ids")
		}
		if _, dup := seen[id]; dup {
			return nil, false, domain.NewValidationError("seats", "seat "+id+" is listed twice")
		}
		seen[id] = struct{}{}
	}

	var (
		stored  *domain.Flight
		created bool
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		f := flight
		var err error
		created, err = uow.Flights().Create(ctx, &f)
		if err != nil {
			return err
		}
		if !created {
			stored = &f
			return nil
		}

		if _, err := uow.Seats().CreateInventory(ctx, f.ID, seatIDs); err != nil {
			return err
		}
		stored, err = uow.Flights().RecountSeats(ctx, f.ID)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		s.invalidate(ctx)
		s.log.WithFields(logrus.Fields{
			"flight_id":   stored.ID,
			"external_id": stored.ExternalID,
			"seats":       len(seatIDs),
		}).Info("flight created")
	}
	return stored, created, nil
}

// UpdateFlight applies schedule and status changes. Cancellation is not a field
// update: it has to go through the reservation fan-out.
func (s *FlightService) UpdateFlight(ctx context.Context, id int64, update domain.FlightUpdate) (*domain.Flight, error) {
	if id <= 0 {
		return nil, domain.NewValidationError("flight_id", "must be positive")
	}
	if update.Empty() {
		return nil, domain.NewValidationError("update", "no fields to change")
	}
	if update.Status != nil {
		if !update.Status.Valid() {
			return nil, domain.NewValidationError("status", "unknown flight status "+string(*update.Status))
		}
		if *update.Status == domain.FlightStatusCancelled {
			return nil, domain.NewValidationError("status", "cancel the flight through its reservations")
		}
	}
	if update.DurationMinutes != nil && *update.DurationMinutes <= 0 {
		return nil, domain.NewValidationError("duration_minutes", "must be positive")
	}

	var updated *domain.Flight
	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		current, err := uow.Flights().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if current.Status == domain.FlightStatusCancelled {
			return domain.ErrFlightCancelled
		}
		updated, err = uow.Flights().Update(ctx, id, update)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.log.WithField("flight_id", id).Info("flight updated")
	return updated, nil
}

func (s *FlightService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateFlights(ctx); err != nil {
		s.log.WithError(err).Warn("failed to invalidate flights cache")
	}
}

var _ FlightUseCase = (*FlightService)(nil)
