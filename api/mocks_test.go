package api

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/Domenick1991/airreservations/internal/domain"
	"github.com/Domenick1991/airreservations/internal/service/booking"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockFlightUseCase is a mock implementation of flights.FlightUseCase
type MockFlightUseCase struct {
	mock.Mock
}

func (m *MockFlightUseCase) List(ctx context.Context) ([]domain.Flight, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Flight), args.Error(1)
}

func (m *MockFlightUseCase) GetByID(ctx context.Context, id int64) (*domain.Flight, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Flight), args.Error(1)
}

func (m *MockFlightUseCase) GetByExternalID(ctx context.Context, externalID string) (*domain.Flight, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Flight), args.Error(1)
}

func (m *MockFlightUseCase) Seats(ctx context.Context, flightID int64) ([]domain.Seat, error) {
	args := m.Called(ctx, flightID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Seat), args.Error(1)
}

func (m *MockFlightUseCase) CreateFlight(ctx context.Context, flight domain.Flight, seatIDs []string) (*domain.Flight, bool, error) {
	args := m.Called(ctx, flight, seatIDs)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*domain.Flight), args.Bool(1), args.Error(2)
}

func (m *MockFlightUseCase) UpdateFlight(ctx context.Context, id int64, update domain.FlightUpdate) (*domain.Flight, error) {
	args := m.Called(ctx, id, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Flight), args.Error(1)
}

// MockBookingUseCase is a mock implementation of booking.BookingUseCase
type MockBookingUseCase struct {
	mock.Mock
}

func (m *MockBookingUseCase) reservation(args mock.Arguments) (*domain.Reservation, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Reservation), args.Error(1)
}

func (m *MockBookingUseCase) CreateReservation(ctx context.Context, input booking.CreateReservationInput) (*domain.Reservation, error) {
	return m.reservation(m.Called(ctx, input))
}

func (m *MockBookingUseCase) GetReservation(ctx context.Context, id int64) (*domain.Reservation, error) {
	return m.reservation(m.Called(ctx, id))
}

func (m *MockBookingUseCase) ConfirmPayment(ctx context.Context, reservationID int64, userID string) (*domain.Reservation, error) {
	return m.reservation(m.Called(ctx, reservationID, userID))
}

func (m *MockBookingUseCase) CancelPayment(ctx context.Context, reservationID int64, userID string) (*domain.Reservation, error) {
	return m.reservation(m.Called(ctx, reservationID, userID))
}

func (m *MockBookingUseCase) RequestRefund(ctx context.Context, reservationID int64, userID string) (*domain.Reservation, error) {
	return m.reservation(m.Called(ctx, reservationID, userID))
}

func (m *MockBookingUseCase) FailPayment(ctx context.Context, failure booking.PaymentFailure) (*domain.Reservation, error) {
	return m.reservation(m.Called(ctx, failure))
}

func (m *MockBookingUseCase) ChangeSeat(ctx context.Context, input booking.ChangeSeatInput) (*domain.Reservation, error) {
	return m.reservation(m.Called(ctx, input))
}

func (m *MockBookingUseCase) CancelAllReservationsForFlight(ctx context.Context, flightID int64) (*booking.FanOutResult, error) {
	args := m.Called(ctx, flightID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.FanOutResult), args.Error(1)
}

func (m *MockBookingUseCase) ExpirePendingReservations(ctx context.Context) (*booking.ExpiryResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.ExpiryResult), args.Error(1)
}

type MockCartUseCase struct {
	mock.Mock
}

func (m *MockCartUseCase) AddItem(ctx context.Context, item domain.CartItem) error {
	return m.Called(ctx, item).Error(0)
}

func (m *MockCartUseCase) Items(ctx context.Context, userID string) ([]domain.CartItem, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CartItem), args.Error(1)
}

func silentLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// decode reads the response envelope, re-decoding data into v when given.
func decode(t *testing.T, body []byte, v interface{}) Response {
	t.Helper()
	var raw struct {
		Response
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &raw))
	if v != nil {
		require.NoError(t, json.Unmarshal(raw.Data, v))
	}
	return raw.Response
}
