package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/airreservations/config"
	"github.com/Domenick1991/airreservations/internal/bootstrap"
	"github.com/Domenick1991/airreservations/internal/cache"
	"github.com/Domenick1991/airreservations/internal/email"
	"github.com/Domenick1991/airreservations/internal/ingest"
	"github.com/Domenick1991/airreservations/internal/kafka"
	"github.com/Domenick1991/airreservations/internal/metrics"
	"github.com/Domenick1991/airreservations/internal/repository"
	"github.com/Domenick1991/airreservations/internal/service/booking"
	"github.com/Domenick1991/airreservations/internal/service/cart"
	"github.com/Domenick1991/airreservations/internal/service/flights"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("worker: %v", err)
	}
}

func run() error {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		return err
	}
	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := repository.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisCache := cache.NewRedisCache(cfg.Redis, cfg.Booking.FlightsCacheTTLDuration())
	defer redisCache.Close()

	producer := kafka.NewProducer(cfg.Kafka.Brokers, logger)
	defer producer.Close()
	publisher := kafka.NewAsyncPublisher(producer, cfg.Booking.PublishBuffer, cfg.Booking.PublishTimeout(), logger)
	publisher.Start()
	defer publisher.Close()

	tx := repository.NewTransactor(pool)
	flightService := flights.NewFlightService(
		repository.NewFlightRepository(pool),
		repository.NewSeatLedger(pool),
		tx,
		redisCache,
		logger,
	)
	bookingService := booking.NewBookingService(
		tx,
		publisher,
		cfg.Kafka.ReservationsTopic,
		booking.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		booking.WithCache(redisCache),
		booking.WithLogger(logger),
		booking.WithPaymentTimeout(cfg.Booking.PaymentTimeout()),
		booking.WithFanOutConcurrency(cfg.Booking.FanOutConcurrency),
		booking.WithSweepBatchSize(cfg.Worker.SweepBatchSize),
	)
	dispatcher := ingest.NewDispatcher(
		flightService,
		bookingService,
		cart.NewCartService(redisCache),
		redisCache,
		cfg.Booking.DedupeTTL(),
		logger,
	)

	g, ctx := errgroup.WithContext(ctx)

	for _, src := range ingestSources(cfg.Kafka) {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, src.group, src.topic, logger)
		defer consumer.Close()
		g.Go(func() error { return consumer.Consume(ctx, dispatcher.HandleMessage) })
	}

	if cfg.Kafka.NotificationsTopic != "" {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID+"-notifications", cfg.Kafka.NotificationsTopic, logger)
		defer consumer.Close()
		sender := email.NewSender(logger)
		g.Go(func() error { return consumer.Consume(ctx, sender.HandleMessage) })
	}

	g.Go(func() error {
		sweepTimeouts(ctx, bookingService, cfg.Worker.SweepInterval(), logger)
		return nil
	})

	admin := bootstrap.AdminRouter(map[string]bootstrap.HealthCheck{
		"postgres": pool.Ping,
		"redis":    redisCache.Ping,
		"kafka":    producer.CheckConnection,
	})
	g.Go(func() error { return bootstrap.Serve(ctx, cfg.Admin.Address, admin, logger) })

	logger.Info("worker started")
	defer logger.Info("worker stopped")
	return g.Wait()
}

type ingestSource struct {
	topic string
	group string
}

// ingestSources gives every inbound topic its own consumer group so a
// rebalance on one topic does not pause the other.
func ingestSources(k config.KafkaConfig) []ingestSource {
	var sources []ingestSource
	for _, s := range []struct{ topic, suffix string }{
		{k.FlightsTopic, "-flights"},
		{k.CartTopic, "-cart"},
	} {
		if s.topic == "" {
			continue
		}
		sources = append(sources, ingestSource{topic: s.topic, group: k.GroupID + s.suffix})
	}
	return sources
}

// sweepTimeouts fails PENDING reservations whose payment window has passed.
func sweepTimeouts(ctx context.Context, bookings booking.BookingUseCase, interval time.Duration, logger *logrus.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := bookings.ExpirePendingReservations(ctx)
			if err != nil {
				logger.WithError(err).Error("expire pending reservations")
				continue
			}
			for _, f := range result.Failures {
				logger.WithField("reservation_id", f.ReservationID).WithError(f.Err).Warn("reservation not expired, retrying next sweep")
			}
		}
	}
}
