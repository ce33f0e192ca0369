package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/Domenick1991/airreservations/config"
	"github.com/Domenick1991/airreservations/internal/domain"
	"github.com/Domenick1991/airreservations/internal/kafka"
	"github.com/Domenick1991/airreservations/internal/repository"
	"github.com/Domenick1991/airreservations/internal/service/booking"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// env is what every command needs once the arguments are valid.
type env struct {
	cfg      *config.Config
	log      *logrus.Logger
	pool     *pgxpool.Pool
	producer *kafka.Producer
}

func openEnv(cmd *cobra.Command) (*env, error) {
	_ = godotenv.Load()

	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "config.yaml"
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	log, err := cfg.Log.NewLogger()
	if err != nil {
		return nil, err
	}
	log.SetOutput(cmd.ErrOrStderr())

	pool, err := repository.NewPool(cmd.Context(), cfg.Database)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log, pool: pool}, nil
}

func (e *env) close() {
	if e.producer != nil {
		e.producer.Close()
	}
	e.pool.Close()
}

// bookings publishes synchronously: the process exits right after the command.
func (e *env) bookings() *booking.BookingService {
	e.producer = kafka.NewProducer(e.cfg.Kafka.Brokers, e.log)
	return booking.NewBookingService(
		repository.NewTransactor(e.pool),
		e.producer,
		e.cfg.Kafka.ReservationsTopic,
		booking.WithNotificationsTopic(e.cfg.Kafka.NotificationsTopic),
		booking.WithLogger(e.log),
		booking.WithPaymentTimeout(e.cfg.Booking.PaymentTimeout()),
		booking.WithFanOutConcurrency(e.cfg.Booking.FanOutConcurrency),
		booking.WithSweepBatchSize(e.cfg.Worker.SweepBatchSize),
	)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseFlightID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid flight id %q", arg)
	}
	return id, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			applied, err := repository.Migrate(cmd.Context(), e.pool)
			if err != nil {
				return err
			}
			for _, name := range applied {
				fmt.Fprintln(cmd.OutOrStdout(), "applied", name)
			}
			return nil
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Fail PENDING reservations whose payment window has passed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			result, err := e.bookings().ExpirePendingReservations(cmd.Context())
			if err != nil {
				return err
			}
			if err := printJSON(cmd, result); err != nil {
				return err
			}
			if len(result.Failures) > 0 {
				return fmt.Errorf("%d reservations could not be expired", len(result.Failures))
			}
			return nil
		},
	}
}

func cancelFlightCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel-flight [flight-id]",
		Short: "Cancel every live reservation of a flight, then the flight",
		Long: `Refunds PAID and PENDING_REFUND reservations and fails PENDING ones,
each in its own transaction. The flight is marked CANCELLED only when every
reservation was settled; rerun the command to retry the failed ones.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flightID, err := parseFlightID(args[0])
			if err != nil {
				return err
			}
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			result, err := e.bookings().CancelAllReservationsForFlight(cmd.Context(), flightID)
			if result != nil {
				if perr := printJSON(cmd, result); perr != nil {
					return perr
				}
			}
			var partial *domain.PartialFailureError
			if errors.As(err, &partial) {
				for _, f := range partial.Failures {
					e.log.WithField("reservation_id", f.ReservationID).WithError(f.Err).Error("reservation not cancelled")
				}
			}
			return err
		},
	}
}

func recountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recount [flight-id]",
		Short: "Rebuild a flight's free/occupied counters from its seats",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flightID, err := parseFlightID(args[0])
			if err != nil {
				return err
			}
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			var flight *domain.Flight
			err = repository.NewTransactor(e.pool).WithinTx(cmd.Context(), func(ctx context.Context, uow repository.UnitOfWork) error {
				var rerr error
				flight, rerr = uow.Flights().RecountSeats(ctx, flightID)
				return rerr
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "flight %d: free=%d occupied=%d\n", flight.ID, flight.FreeSeats, flight.OccupiedSeats)
			return nil
		},
	}
}
