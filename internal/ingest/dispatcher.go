package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/airreservations/internal/domain"
	"github.com/Domenick1991/airreservations/internal/kafka"
	"github.com/Domenick1991/airreservations/internal/metrics"
	"github.com/Domenick1991/airreservations/internal/service/booking"
	"github.com/go-playground/validator/v10"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type FlightRegistry interface {
	CreateFlight(ctx context.Context, flight domain.Flight, seatIDs []string) (*domain.Flight, bool, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.Flight, error)
	UpdateFlight(ctx context.Context, id int64, update domain.FlightUpdate) (*domain.Flight, error)
}

type FlightCanceller interface {
	CancelAllReservationsForFlight(ctx context.Context, flightID int64) (*booking.FanOutResult, error)
}

type Carts interface {
	AddItem(ctx context.Context, item domain.CartItem) error
}

type Deduper interface {
	EventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID string, ttl time.Duration) error
}

var errDiscard = errors.New("event discarded")

const markTimeout = 5 * time.Second

// Dispatcher turns bus events into registry, booking and cart calls.
// Malformed or unknown events are logged and dropped; only infrastructure
// failures are returned so the consumer retries the message.
type Dispatcher struct {
	flights   FlightRegistry
	bookings  FlightCanceller
	carts     Carts
	dedupe    Deduper
	dedupeTTL time.Duration
	validate  *validator.Validate
	log       *logrus.Logger
}

func NewDispatcher(flights FlightRegistry, bookings FlightCanceller, carts Carts, dedupe Deduper, dedupeTTL time.Duration, log *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		flights:   flights,
		bookings:  bookings,
		carts:     carts,
		dedupe:    dedupe,
		dedupeTTL: dedupeTTL,
		validate:  validator.New(),
		log:       log,
	}
}

// HandleMessage adapts Handle to the kafka consumer.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg kafkago.Message) error {
	return d.Handle(ctx, msg.Value)
}

func (d *Dispatcher) Handle(ctx context.Context, data []byte) error {
	env, err := kafka.DecodeEnvelope(data)
	if err != nil {
		d.log.WithError(err).Warn("undecodable event discarded")
		metrics.IncKafkaConsumed("unknown", "discarded")
		return nil
	}

	logger := d.log.WithFields(logrus.Fields{"event_type": env.EventType, "event_id": env.EventID})
	if env.SchemaVersion != kafka.SchemaVersion {
		logger.WithField("schema_version", env.SchemaVersion).Warn("unsupported schema version, event discarded")
		metrics.IncKafkaConsumed(env.EventType, "discarded")
		return nil
	}

	if env.EventID != "" && d.dedupe != nil {
		seen, err := d.dedupe.EventProcessed(ctx, env.EventID)
		if err != nil {
			return fmt.Errorf("dedupe event %s: %w", env.EventID, err)
		}
		if seen {
			logger.Info("duplicate event skipped")
			metrics.IncKafkaConsumed(env.EventType, "duplicate")
			return nil
		}
	}

	err = d.dispatch(ctx, env)
	switch {
	case err == nil:
		metrics.IncKafkaConsumed(env.EventType, "ok")
	case errors.Is(err, errDiscard) || !retryable(err):
		logger.WithError(err).Warn("event discarded")
		metrics.IncKafkaConsumed(env.EventType, "discarded")
	default:
		metrics.IncKafkaConsumed(env.EventType, "error")
		return err
	}

	d.markProcessed(ctx, env.EventID, logger)
	return nil
}

// markProcessed records a settled event. The marker is written on a context
// detached from the consumer's so a shutdown after dispatch still records it.
func (d *Dispatcher) markProcessed(ctx context.Context, eventID string, logger *logrus.Entry) {
	if eventID == "" || d.dedupe == nil {
		return
	}
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markTimeout)
	defer cancel()
	if err := d.dedupe.MarkEventProcessed(markCtx, eventID, d.dedupeTTL); err != nil {
		logger.WithError(err).Warn("failed to record processed event")
	}
}

// retryable reports whether a later attempt can succeed. A partially failed
// fan-out is retried: the retry only sees reservations that are still live.
func retryable(err error) bool {
	switch domain.KindOf(err) {
	case domain.KindInfrastructure, domain.KindPartialFailure:
		return true
	}
	return false
}

func (d *Dispatcher) dispatch(ctx context.Context, env kafka.Envelope) error {
	switch env.EventType {
	case kafka.EventFlightCreated:
		var p FlightCreatedPayload
		if err := d.decode(env.Payload, &p); err != nil {
			return err
		}
		return d.flightCreated(ctx, p)
	case kafka.EventFlightUpdated:
		var p FlightUpdatedPayload
		if err := d.decode(env.Payload, &p); err != nil {
			return err
		}
		return d.flightUpdated(ctx, p)
	case kafka.EventCartItemAdded:
		var p CartItemAddedPayload
		if err := d.decode(env.Payload, &p); err != nil {
			return err
		}
		return d.carts.AddItem(ctx, p.toDomain())
	default:
		return fmt.Errorf("unknown event type %q: %w", env.EventType, errDiscard)
	}
}

func (d *Dispatcher) decode(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, errDiscard)
	}
	if err := d.validate.Struct(v); err != nil {
		return fmt.Errorf("invalid payload: %v: %w", err, errDiscard)
	}
	return nil
}

func (d *Dispatcher) flightCreated(ctx context.Context, p FlightCreatedPayload) error {
	seatIDs := p.SeatIDs()
	if len(seatIDs) == 0 {
		return fmt.Errorf("flight %s has neither seats nor layout: %w", p.FlightID, errDiscard)
	}
	flight, created, err := d.flights.CreateFlight(ctx, p.toDomain(), seatIDs)
	if err != nil {
		return err
	}
	if !created {
		d.log.WithField("external_id", flight.ExternalID).Info("flight already known")
	}
	return nil
}

func (d *Dispatcher) flightUpdated(ctx context.Context, p FlightUpdatedPayload) error {
	flight, err := d.flights.GetByExternalID(ctx, p.FlightID)
	if err != nil {
		return err
	}

	if update := p.fieldUpdate(); !update.Empty() && flight.Status != domain.FlightStatusCancelled {
		if _, err := d.flights.UpdateFlight(ctx, flight.ID, update); err != nil {
			return err
		}
	}

	if !p.Cancelled() {
		return nil
	}
	result, err := d.bookings.CancelAllReservationsForFlight(ctx, flight.ID)
	if err != nil {
		return err
	}
	d.log.WithFields(logrus.Fields{
		"flight_id": flight.ID,
		"refunded":  result.Refunded,
		"failed":    result.Failed,
	}).Info("flight cancellation event applied")
	return nil
}
