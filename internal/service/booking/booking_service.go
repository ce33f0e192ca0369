package booking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Domenick1991/airreservations/internal/domain"
	"github.com/Domenick1991/airreservations/internal/kafka"
	"github.com/Domenick1991/airreservations/internal/metrics"
	"github.com/Domenick1991/airreservations/internal/repository"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type BookingUseCase interface {
	CreateReservation(ctx context.Context, input CreateReservationInput) (*domain.Reservation, error)
	GetReservation(ctx context.Context, id int64) (*domain.Reservation, error)
	ConfirmPayment(ctx context.Context, reservationID int64, userID string) (*domain.Reservation, error)
	CancelPayment(ctx context.Context, reservationID int64, userID string) (*domain.Reservation, error)
	RequestRefund(ctx context.Context, reservationID int64, userID string) (*domain.Reservation, error)
	FailPayment(ctx context.Context, failure PaymentFailure) (*domain.Reservation, error)
	ChangeSeat(ctx context.Context, input ChangeSeatInput) (*domain.Reservation, error)
	CancelAllReservationsForFlight(ctx context.Context, flightID int64) (*FanOutResult, error)
	ExpirePendingReservations(ctx context.Context) (*ExpiryResult, error)
}

// Cache is the flight list cache; counters change under every booking workflow.
type Cache interface {
	InvalidateFlights(ctx context.Context) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type BookingService struct {
	tx                 repository.Transactor
	producer           Producer
	cache              Cache
	log                *logrus.Logger
	reservationsTopic  string
	notificationsTopic string
	paymentTimeout     time.Duration
	fanOutConcurrency  int
	sweepBatchSize     int
	now                func() time.Time
}

type CreateReservationInput struct {
	UserID   string   `json:"user_id"`
	FlightID int64    `json:"flight_id"`
	SeatIDs  []string `json:"seat_ids"`
	Amount   int64    `json:"amount"`
}

type ChangeSeatInput struct {
	ReservationID int64  `json:"reservation_id"`
	UserID        string `json:"user_id"`
	OldSeatID     string `json:"old_seat_id"`
	NewSeatID     string `json:"new_seat_id"`
}

const ReasonTimeout = "TIMEOUT"

type PaymentFailure struct {
	ReservationID int64  `json:"reservation_id"`
	UserID        string `json:"user_id"`
	Reason        string `json:"reason"`
}

// FanOutResult summarises a flight cancellation. Failures is empty when the
// flight was marked CANCELLED.
type FanOutResult struct {
	FlightID        int64                       `json:"flight_id"`
	Total           int                         `json:"total"`
	Refunded        int                         `json:"refunded"`
	Failed          int                         `json:"failed"`
	Skipped         int                         `json:"skipped"`
	FlightCancelled bool                        `json:"flight_cancelled"`
	Failures        []domain.ReservationFailure `json:"-"`
}

type ExpiryResult struct {
	Expired  []int64                     `json:"expired"`
	Skipped  int                         `json:"skipped"`
	Failures []domain.ReservationFailure `json:"-"`
}

type BookingServiceOption func(*BookingService)

func WithNotificationsTopic(topic string) BookingServiceOption {
	return func(s *BookingService) {
		s.notificationsTopic = topic
	}
}

func WithCache(cache Cache) BookingServiceOption {
	return func(s *BookingService) {
		s.cache = cache
	}
}

func WithLogger(log *logrus.Logger) BookingServiceOption {
	return func(s *BookingService) {
		s.log = log
	}
}

func WithPaymentTimeout(d time.Duration) BookingServiceOption {
	return func(s *BookingService) {
		s.paymentTimeout = d
	}
}

func WithFanOutConcurrency(n int) BookingServiceOption {
	return func(s *BookingService) {
		if n > 0 {
			s.fanOutConcurrency = n
		}
	}
}

func WithSweepBatchSize(n int) BookingServiceOption {
	return func(s *BookingService) {
		if n > 0 {
			s.sweepBatchSize = n
		}
	}
}

func NewBookingService(
	tx repository.Transactor,
	producer Producer,
	reservationsTopic string,
	opts ...BookingServiceOption,
) *BookingService {
	service := &BookingService{
		tx:                tx,
		producer:          producer,
		reservationsTopic: reservationsTopic,
		log:               logrus.StandardLogger(),
		paymentTimeout:    15 * time.Minute,
		fanOutConcurrency: 8,
		sweepBatchSize:    100,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (s *BookingService) CreateReservation(ctx context.Context, input CreateReservationInput) (res *domain.Reservation, err error) {
	defer s.observe("create_reservation", &err)

	seatIDs, err := validateCreate(&input)
	if err != nil {
		return nil, err
	}

	reservation := &domain.Reservation{
		ExternalUserID: input.UserID,
		FlightID:       input.FlightID,
		SeatIDs:        seatIDs,
		Amount:         input.Amount,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		flight, err := uow.Flights().GetByID(ctx, input.FlightID)
		if err != nil {
			return err
		}
		if flight.Status == domain.FlightStatusCancelled {
			return fmt.Errorf("flight %d: %w", flight.ID, domain.ErrFlightCancelled)
		}

		statuses, err := uow.Seats().Statuses(ctx, flight.ID, seatIDs)
		if err != nil {
			return err
		}
		var missing, taken []string
		for _, id := range seatIDs {
			status, ok := statuses[id]
			switch {
			case !ok:
				missing = append(missing, id)
			case status.Held():
				taken = append(taken, id)
			}
		}
		if len(missing) > 0 {
			return &domain.SeatsNotFoundError{FlightID: flight.ID, SeatIDs: missing}
		}
		if len(taken) > 0 {
			return &domain.SeatsTakenError{FlightID: flight.ID, SeatIDs: taken}
		}

		if err := uow.Reservations().Create(ctx, reservation); err != nil {
			return err
		}

		// a concurrent writer can still win a seat between the read above and here
		for _, id := range seatIDs {
			if err := uow.Seats().Reserve(ctx, flight.ID, id); err != nil {
				if errors.Is(err, domain.ErrSeatUnavailable) {
					taken = append(taken, id)
					continue
				}
				return err
			}
		}
		if len(taken) > 0 {
			return &domain.SeatsTakenError{FlightID: flight.ID, SeatIDs: taken}
		}

		if err := uow.Flights().AdjustCounters(ctx, flight.ID, -len(seatIDs), len(seatIDs)); err != nil {
			return err
		}

		return uow.Payments().Record(ctx, &domain.PaymentEvent{
			ReservationID:  reservation.ID,
			ExternalUserID: reservation.ExternalUserID,
			Status:         domain.PaymentStatusPending,
			Amount:         reservation.Amount,
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidateFlights(ctx)
	s.log.WithFields(logrus.Fields{
		"workflow":       "create_reservation",
		"reservation_id": reservation.ID,
		"flight_id":      reservation.FlightID,
		"user_id":        reservation.ExternalUserID,
		"seats":          strings.Join(reservation.SeatIDs, ","),
	}).Info("reservation created")
	return reservation, nil
}

func validateCreate(input *CreateReservationInput) ([]string, error) {
	input.UserID = strings.TrimSpace(input.UserID)
	if input.UserID == "" {
		return nil, domain.NewValidationError("user_id", "is required")
	}
	if input.FlightID <= 0 {
		return nil, domain.NewValidationError("flight_id", "must be positive")
	}
	if input.Amount < 0 {
		return nil, domain.NewValidationError("amount", "must not be negative")
	}
	if len(input.SeatIDs) == 0 {
		return nil, domain.NewValidationError("seat_ids", "must not be empty")
	}

	seen := make(map[string]struct{}, len(input.SeatIDs))
	seatIDs := make([]string, 0, len(input.SeatIDs))
	for _, raw := range input.SeatIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			return nil, domain.NewValidationError("seat_ids", "must not contain empty ids")
		}
		if _, dup := seen[id]; dup {
			return nil, domain.NewValidationError("seat_ids", "seat "+id+" is listed twice")
		}
		seen[id] = struct{}{}
		seatIDs = append(seatIDs, id)
	}
	return seatIDs, nil
}

func validateRef(reservationID int64, userID string) error {
	if reservationID <= 0 {
		return domain.NewValidationError("reservation_id", "must be positive")
	}
	if strings.TrimSpace(userID) == "" {
		return domain.NewValidationError("user_id", "is required")
	}
	return nil
}

func (s *BookingService) GetReservation(ctx context.Context, id int64) (*domain.Reservation, error) {
	if id <= 0 {
		return nil, domain.NewValidationError("reservation_id", "must be positive")
	}
	var reservation *domain.Reservation
	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		var err error
		reservation, err = uow.Reservations().Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

// lockOwned locks the reservation and hides it from callers that do not own it.
func lockOwned(ctx context.Context, uow repository.UnitOfWork, reservationID int64, userID string) (*domain.Reservation, error) {
	r, err := uow.Reservations().GetForUpdate(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if r.ExternalUserID != userID {
		return nil, domain.ErrReservationNotFound
	}
	return r, nil
}

func (s *BookingService) ConfirmPayment(ctx context.Context, reservationID int64, userID string) (res *domain.Reservation, err error) {
	defer s.observe("confirm_payment", &err)

	if err := validateRef(reservationID, userID); err != nil {
		return nil, err
	}

	var (
		reservation *domain.Reservation
		dates       domain.ReservationDates
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		r, err := lockOwned(ctx, uow, reservationID, userID)
		if err != nil {
			return err
		}
		switch r.Status {
		case domain.ReservationStatusPaid, domain.ReservationStatusPendingRefund:
			return fmt.Errorf("reservation %d: %w", r.ID, domain.ErrAlreadyConfirmed)
		case domain.ReservationStatusPending:
		default:
			return fmt.Errorf("reservation %d is %s: %w", r.ID, r.Status, domain.ErrIllegalTransition)
		}

		amount, err := uow.Payments().FindPending(ctx, r.ID, userID)
		if err != nil {
			return err
		}
		if err := uow.Payments().Record(ctx, &domain.PaymentEvent{
			ReservationID:  r.ID,
			ExternalUserID: userID,
			Status:         domain.PaymentStatusSuccess,
			Amount:         amount,
		}); err != nil {
			return err
		}
		if err := uow.Reservations().UpdateStatus(ctx, r.ID, domain.ReservationStatusPending, domain.ReservationStatusPaid); err != nil {
			return err
		}

		confirmed, err := uow.Seats().Confirm(ctx, r.FlightID, r.SeatIDs)
		if err != nil {
			return err
		}
		if len(confirmed) != len(r.SeatIDs) {
			s.log.WithFields(logrus.Fields{
				"reservation_id": r.ID,
				"flight_id":      r.FlightID,
				"expected":       len(r.SeatIDs),
				"confirmed":      len(confirmed),
			}).Warn("not every seat of the reservation was RESERVED at confirmation")
		}

		if dates, err = uow.Reservations().Dates(ctx, r.ID); err != nil {
			return err
		}
		r.Status = domain.ReservationStatusPaid
		reservation = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, reservation, dates)
	s.log.WithFields(logrus.Fields{
		"workflow":       "confirm_payment",
		"reservation_id": reservation.ID,
		"flight_id":      reservation.FlightID,
		"user_id":        userID,
	}).Info("payment confirmed")
	return reservation, nil
}

func (s *BookingService) CancelPayment(ctx context.Context, reservationID int64, userID string) (res *domain.Reservation, err error) {
	defer s.observe("cancel_payment", &err)

	if err := validateRef(reservationID, userID); err != nil {
		return nil, err
	}

	var (
		reservation *domain.Reservation
		dates       domain.ReservationDates
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		r, err := lockOwned(ctx, uow, reservationID, userID)
		if err != nil {
			return err
		}
		if r.Status != domain.ReservationStatusPending && r.Status != domain.ReservationStatusPendingRefund {
			return fmt.Errorf("reservation %d is %s: %w", r.ID, r.Status, domain.ErrInvalidState)
		}

		dates, err = s.refund(ctx, uow, r)
		if err != nil {
			return err
		}
		reservation = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateFlights(ctx)
	s.publish(ctx, reservation, dates)
	s.log.WithFields(logrus.Fields{
		"workflow":       "cancel_payment",
		"reservation_id": reservation.ID,
		"flight_id":      reservation.FlightID,
		"user_id":        userID,
	}).Info("reservation cancelled")
	return reservation, nil
}

// refund moves r to CANCELLED, records the REFUND event and gives its seats back.
// r must be locked by the caller.
func (s *BookingService) refund(ctx context.Context, uow repository.UnitOfWork, r *domain.Reservation) (domain.ReservationDates, error) {
	var dates domain.ReservationDates

	refunded, err := uow.Payments().Exists(ctx, r.ID, domain.PaymentStatusRefund)
	if err != nil {
		return dates, err
	}
	if refunded {
		return dates, fmt.Errorf("reservation %d: %w", r.ID, domain.ErrDuplicateRefund)
	}

	if err := uow.Reservations().UpdateStatus(ctx, r.ID, r.Status, domain.ReservationStatusCancelled); err != nil {
		return dates, err
	}
	if err := uow.Payments().Record(ctx, &domain.PaymentEvent{
		ReservationID:  r.ID,
		ExternalUserID: r.ExternalUserID,
		Status:         domain.PaymentStatusRefund,
		Amount:         r.Amount,
	}); err != nil {
		if errors.Is(err, domain.ErrDuplicateEvent) {
			return dates, fmt.Errorf("reservation %d: %w", r.ID, domain.ErrDuplicateRefund)
		}
		return dates, err
	}

	if err := s.releaseSeats(ctx, uow, r, domain.SeatStatusReserved, domain.SeatStatusConfirmed); err != nil {
		return dates, err
	}

	if dates, err = uow.Reservations().Dates(ctx, r.ID); err != nil {
		return dates, err
	}
	r.Status = domain.ReservationStatusCancelled
	return dates, nil
}

// releaseSeats frees every seat of r that is in one of from, deactivates the
// join rows and moves the flight counters by the number actually released.
func (s *BookingService) releaseSeats(ctx context.Context, uow repository.UnitOfWork, r *domain.Reservation, from ...domain.SeatStatus) error {
	released := 0
	for _, seatID := range r.SeatIDs {
		err := uow.Seats().Release(ctx, r.FlightID, seatID, from...)
		if errors.Is(err, domain.ErrSeatNotInExpectedState) {
			s.log.WithFields(logrus.Fields{
				"reservation_id": r.ID,
				"flight_id":      r.FlightID,
				"seat_id":        seatID,
			}).Warn("seat not released: unexpected state")
			continue
		}
		if err != nil {
			return err
		}
		released++
	}

	if err := uow.Reservations().DeactivateSeats(ctx, r.ID); err != nil {
		return err
	}
	if released == 0 {
		return nil
	}
	return uow.Flights().AdjustCounters(ctx, r.FlightID, released, -released)
}

func (s *BookingService) RequestRefund(ctx context.Context, reservationID int64, userID string) (res *domain.Reservation, err error) {
	defer s.observe("request_refund", &err)

	if err := validateRef(reservationID, userID); err != nil {
		return nil, err
	}

	var (
		reservation *domain.Reservation
		dates       domain.ReservationDates
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		r, err := lockOwned(ctx, uow, reservationID, userID)
		if err != nil {
			return err
		}
		switch r.Status {
		case domain.ReservationStatusPaid:
		case domain.ReservationStatusPendingRefund:
			return fmt.Errorf("reservation %d: %w", r.ID, domain.ErrDuplicateRefund)
		default:
			return fmt.Errorf("reservation %d is %s: %w", r.ID, r.Status, domain.ErrInvalidState)
		}

		if err := uow.Reservations().UpdateStatus(ctx, r.ID, domain.ReservationStatusPaid, domain.ReservationStatusPendingRefund); err != nil {
			return err
		}
		if dates, err = uow.Reservations().Dates(ctx, r.ID); err != nil {
			return err
		}
		r.Status = domain.ReservationStatusPendingRefund
		reservation = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, reservation, dates)
	s.log.WithFields(logrus.Fields{
		"workflow":       "request_refund",
		"reservation_id": reservation.ID,
		"user_id":        userID,
	}).Info("refund requested")
	return reservation, nil
}

func (s *BookingService) FailPayment(ctx context.Context, failure PaymentFailure) (res *domain.Reservation, err error) {
	defer s.observe("fail_payment", &err)

	if err := validateRef(failure.ReservationID, failure.UserID); err != nil {
		return nil, err
	}

	var (
		reservation *domain.Reservation
		dates       domain.ReservationDates
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		r, err := lockOwned(ctx, uow, failure.ReservationID, failure.UserID)
		if err != nil {
			return err
		}
		dates, err = s.fail(ctx, uow, r)
		if err != nil {
			return err
		}
		reservation = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateFlights(ctx)
	s.publish(ctx, reservation, dates)
	s.log.WithFields(logrus.Fields{
		"workflow":       "fail_payment",
		"reservation_id": reservation.ID,
		"flight_id":      reservation.FlightID,
		"user_id":        failure.UserID,
		"reason":         failure.Reason,
	}).Info("payment failed")
	return reservation, nil
}

// fail records the FAILED event, moves r to FAILED and frees its RESERVED seats.
func (s *BookingService) fail(ctx context.Context, uow repository.UnitOfWork, r *domain.Reservation) (domain.ReservationDates, error) {
	var dates domain.ReservationDates

	failed, err := uow.Payments().Exists(ctx, r.ID, domain.PaymentStatusFailed)
	if err != nil {
		return dates, err
	}
	if failed {
		return dates, fmt.Errorf("FAILED event for reservation %d: %w", r.ID, domain.ErrDuplicateEvent)
	}

	if err := uow.Payments().Record(ctx, &domain.PaymentEvent{
		ReservationID:  r.ID,
		ExternalUserID: r.ExternalUserID,
		Status:         domain.PaymentStatusFailed,
		Amount:         r.Amount,
	}); err != nil {
		return dates, err
	}

	if r.Status != domain.ReservationStatusFailed {
		if err := uow.Reservations().UpdateStatus(ctx, r.ID, r.Status, domain.ReservationStatusFailed); err != nil {
			return dates, err
		}
	}

	if err := s.releaseSeats(ctx, uow, r, domain.SeatStatusReserved); err != nil {
		return dates, err
	}

	if dates, err = uow.Reservations().Dates(ctx, r.ID); err != nil {
		return dates, err
	}
	r.Status = domain.ReservationStatusFailed
	return dates, nil
}

func (s *BookingService) ChangeSeat(ctx context.Context, input ChangeSeatInput) (res *domain.Reservation, err error) {
	defer s.observe("change_seat", &err)

	if err := validateRef(input.ReservationID, input.UserID); err != nil {
		return nil, err
	}
	input.OldSeatID = strings.TrimSpace(input.OldSeatID)
	input.NewSeatID = strings.TrimSpace(input.NewSeatID)
	if input.OldSeatID == "" || input.NewSeatID == "" {
		return nil, domain.NewValidationError("seat_id", "old and new seat ids are required")
	}
	if input.OldSeatID == input.NewSeatID {
		return nil, domain.NewValidationError("new_seat_id", "must differ from old_seat_id")
	}

	var reservation *domain.Reservation
	err = s.tx.WithinTx(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		r, err := lockOwned(ctx, uow, input.ReservationID, input.UserID)
		if err != nil {
			return err
		}
		if r.Status != domain.ReservationStatusPending && r.Status != domain.ReservationStatusPaid {
			return fmt.Errorf("reservation %d is %s: %w", r.ID, r.Status, domain.ErrInvalidState)
		}
		if !r.HasSeat(input.OldSeatID) {
			return fmt.Errorf("reservation %d does not hold seat %s: %w", r.ID, input.OldSeatID, domain.ErrSeatNotFound)
		}

		flight, err := uow.Flights().GetByID(ctx, r.FlightID)
		if err != nil {
			return err
		}
		if flight.Status == domain.FlightStatusCancelled {
			return fmt.Errorf("flight %d: %w", flight.ID, domain.ErrFlightCancelled)
		}

		statuses, err := uow.Seats().Statuses(ctx, r.FlightID, []string{input.NewSeatID})
		if err != nil {
			return err
		}
		if _, ok := statuses[input.NewSeatID]; !ok {
			return &domain.SeatsNotFoundError{FlightID: r.FlightID, SeatIDs: []string{input.NewSeatID}}
		}

		if err := uow.Seats().Reserve(ctx, r.FlightID, input.NewSeatID); err != nil {
			return err
		}
		if r.Status == domain.ReservationStatusPaid {
			if _, err := uow.Seats().Confirm(ctx, r.FlightID, []string{input.NewSeatID}); err != nil {
				return err
			}
		}
		if err := uow.Seats().Release(ctx, r.FlightID, input.OldSeatID, domain.SeatStatusReserved, domain.SeatStatusConfirmed); err != nil {
			return err
		}
		if err := uow.Reservations().ChangeSeat(ctx, r.ID, input.OldSeatID, input.NewSeatID); err != nil {
			return err
		}

		reservation, err = uow.Reservations().Get(ctx, r.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"workflow":       "change_seat",
		"reservation_id": reservation.ID,
		"flight_id":      reservation.FlightID,
		"old_seat":       input.OldSeatID,
		"new_seat":       input.NewSeatID,
	}).Info("seat changed")
	return reservation, nil
}

// CancelAllReservationsForFlight refunds paid reservations and fails pending
// ones, each in its own transaction. The flight is marked CANCELLED only when
// every reservation was handled; otherwise a *domain.PartialFailureError is
// returned together with the result.
func (s *BookingService) CancelAllReservationsForFlight(ctx context.Context, flightID int64) (res *FanOutResult, err error) {
	defer s.observe("cancel_flight", &err)

	if flightID <= 0 {
		return nil, domain.NewValidationError("flight_id", "must be positive")
	}

	var reservations []domain.Reservation
	err = s.tx.WithinTx(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		if _, err := uow.Flights().GetByID(ctx, flightID); err != nil {
			return err
		}
		var err error
		reservations, err = uow.Reservations().ListByFlight(ctx, flightID,
			domain.ReservationStatusPaid,
			domain.ReservationStatusPendingRefund,
			domain.ReservationStatusPending,
		)
		return err
	})
	if err != nil {
		return nil, err
	}

	result := &FanOutResult{FlightID: flightID, Total: len(reservations)}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fanOutConcurrency)
	for _, r := range reservations {
		r := r // per-iteration copy (go.mod targets Go 1.21 loop semantics)
		g.Go(func() error {
			outcome, err := s.cancelForFlight(gctx, r.ID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failures = append(result.Failures, domain.ReservationFailure{ReservationID: r.ID, Err: err})
				return nil
			}
			switch outcome {
			case domain.ReservationStatusCancelled:
				result.Refunded++
			case domain.ReservationStatusFailed:
				result.Failed++
			default:
				result.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(reservations) > 0 {
		s.invalidateFlights(ctx)
	}

	if len(result.Failures) > 0 {
		metrics.AddFanOutFailures(len(result.Failures))
		partial := &domain.PartialFailureError{
			FlightID:  flightID,
			Total:     result.Total,
			Succeeded: result.Total - len(result.Failures),
			Failures:  result.Failures,
		}
		s.log.WithError(partial).WithField("flight_id", flightID).Error("flight cancellation incomplete, flight left active")
		return result, partial
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		return uow.Flights().UpdateStatus(ctx, flightID, domain.FlightStatusCancelled)
	})
	if err != nil {
		return result, err
	}
	result.FlightCancelled = true
	s.invalidateFlights(ctx)

	s.log.WithFields(logrus.Fields{
		"workflow":  "cancel_flight",
		"flight_id": flightID,
		"total":     result.Total,
		"refunded":  result.Refunded,
		"failed":    result.Failed,
		"skipped":   result.Skipped,
	}).Info("flight cancelled")
	return result, nil
}

// cancelForFlight handles one reservation of a cancelled flight and returns the
// status it ended in. A reservation that settled since it was listed is left alone.
func (s *BookingService) cancelForFlight(ctx context.Context, reservationID int64) (domain.ReservationStatus, error) {
	var (
		reservation *domain.Reservation
		dates       domain.ReservationDates
		changed     bool
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		r, err := uow.Reservations().GetForUpdate(ctx, reservationID)
		if err != nil {
			return err
		}
		reservation = r

		switch r.Status {
		case domain.ReservationStatusPaid, domain.ReservationStatusPendingRefund:
			dates, err = s.refund(ctx, uow, r)
		case domain.ReservationStatusPending:
			dates, err = s.fail(ctx, uow, r)
		default:
			return nil
		}
		if err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return "", err
	}
	if changed {
		s.publish(ctx, reservation, dates)
	}
	return reservation.Status, nil
}

// ExpirePendingReservations fails PENDING reservations older than the payment
// timeout. Reservations settled concurrently are counted as skipped.
func (s *BookingService) ExpirePendingReservations(ctx context.Context) (*ExpiryResult, error) {
	deadline := s.now().Add(-s.paymentTimeout)

	var pending []domain.Reservation
	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		var err error
		pending, err = uow.Reservations().ListPendingBefore(ctx, deadline, s.sweepBatchSize)
		return err
	})
	if err != nil {
		return nil, err
	}

	result := &ExpiryResult{Expired: make([]int64, 0, len(pending))}
	for _, r := range pending {
		_, err := s.FailPayment(ctx, PaymentFailure{
			ReservationID: r.ID,
			UserID:        r.ExternalUserID,
			Reason:        ReasonTimeout,
		})
		switch {
		case err == nil:
			result.Expired = append(result.Expired, r.ID)
		case errors.Is(err, domain.ErrDuplicateEvent), errors.Is(err, domain.ErrIllegalTransition):
			result.Skipped++
		default:
			result.Failures = append(result.Failures, domain.ReservationFailure{ReservationID: r.ID, Err: err})
		}
	}

	metrics.AddExpired(len(result.Expired))
	if len(pending) > 0 {
		s.log.WithFields(logrus.Fields{
			"workflow": "expire_pending",
			"deadline": deadline,
			"expired":  len(result.Expired),
			"skipped":  result.Skipped,
			"failures": len(result.Failures),
		}).Info("payment timeout sweep finished")
	}
	return result, nil
}

// publish is best-effort: the state it reports is already committed.
func (s *BookingService) publish(ctx context.Context, r *domain.Reservation, dates domain.ReservationDates) {
	if s.producer == nil || s.reservationsTopic == "" {
		return
	}
	payload := kafka.ReservationUpdated{
		ReservationID:   r.ID,
		NewStatus:       string(r.Status),
		ReservationDate: dates.ReservationDate,
		FlightDate:      dates.FlightDate,
	}
	key := strconv.FormatInt(r.ID, 10)
	logger := s.log.WithFields(logrus.Fields{"reservation_id": r.ID, "status": r.Status})

	event, err := kafka.NewEnvelope(kafka.EventReservationUpdated, payload)
	if err != nil {
		logger.WithError(err).Warn("failed to build reservation.updated event")
		return
	}
	if err := s.producer.Publish(ctx, s.reservationsTopic, key, event); err != nil {
		logger.WithError(err).Warn("failed to publish reservation.updated")
	}

	if s.notificationsTopic == "" {
		return
	}
	notification, err := kafka.NewEnvelope(kafka.EventReservationUpdated, kafka.ReservationNotification{
		ReservationUpdated: payload,
		UserID:             r.ExternalUserID,
		FlightID:           r.FlightID,
		SeatIDs:            r.SeatIDs,
	})
	if err != nil {
		logger.WithError(err).Warn("failed to build notification event")
		return
	}
	if err := s.producer.Publish(ctx, s.notificationsTopic, key, notification); err != nil {
		logger.WithError(err).Warn("failed to publish notification")
	}
}

func (s *BookingService) invalidateFlights(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateFlights(ctx); err != nil {
		s.log.WithError(err).Warn("failed to invalidate flights cache")
	}
}

func (s *BookingService) observe(workflow string, err *error) {
	outcome := "ok"
	if *err != nil {
		outcome = strings.ToLower(string(domain.KindOf(*err)))
	}
	metrics.ObserveWorkflow(workflow, outcome)
}

var _ BookingUseCase = (*BookingService)(nil)
