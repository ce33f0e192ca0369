package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/airreservations/api"
	"github.com/Domenick1991/airreservations/config"
	"github.com/Domenick1991/airreservations/internal/bootstrap"
	"github.com/Domenick1991/airreservations/internal/cache"
	"github.com/Domenick1991/airreservations/internal/kafka"
	"github.com/Domenick1991/airreservations/internal/metrics"
	"github.com/Domenick1991/airreservations/internal/repository"
	"github.com/Domenick1991/airreservations/internal/service/booking"
	"github.com/Domenick1991/airreservations/internal/service/cart"
	"github.com/Domenick1991/airreservations/internal/service/flights"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	metrics.Register()
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := repository.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("connect postgres")
	}
	defer pool.Close()

	applied, err := repository.Migrate(ctx, pool)
	if err != nil {
		logger.WithError(err).Fatal("migrate")
	}
	if len(applied) > 0 {
		logger.WithField("migrations", applied).Info("migrations applied")
	}

	redisCache := cache.NewRedisCache(cfg.Redis, cfg.Booking.FlightsCacheTTLDuration())
	defer redisCache.Close()
	if err := redisCache.Ping(ctx); err != nil {
		logger.WithError(err).Warn("redis unavailable, flight list served uncached")
	}

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
	)
	cartService := cart.NewCartService(redisCache)

	router := api.NewRouter(cfg.HTTP, api.Services{
		Flights:  flightService,
		Bookings: bookingService,
		Carts:    cartService,
	}, logger)

	if err := bootstrap.Serve(ctx, cfg.HTTP.Address, router, logger); err != nil {
		logger.WithError(err).Fatal("server error")
	}
}
