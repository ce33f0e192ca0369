package email

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Domenick1991/airreservations/internal/kafka"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Sender turns reservation notifications into user-facing messages. Delivery
// is a log line; a real mail gateway plugs in behind Send.
type Sender struct {
	log *logrus.Logger
}

func NewSender(log *logrus.Logger) *Sender {
	return &Sender{log: log}
}

func (s *Sender) Send(ctx context.Context, n kafka.ReservationNotification) error {
	if n.UserID == "" {
		return fmt.Errorf("notification for reservation %d has no recipient", n.ReservationID)
	}
	s.log.WithFields(logrus.Fields{
		"user_id":        n.UserID,
		"reservation_id": n.ReservationID,
		"flight_id":      n.FlightID,
		"status":         n.NewStatus,
	}).Info(Subject(n))
	return nil
}

// Subject is the message headline for a status change.
func Subject(n kafka.ReservationNotification) string {
	seats := strings.Join(n.SeatIDs, ", ")
	switch n.NewStatus {
	case "PENDING":
		return fmt.Sprintf("Reservation %d: seats %s held, awaiting payment", n.ReservationID, seats)
	case "PAID":
		return fmt.Sprintf("Reservation %d: payment received, seats %s confirmed", n.ReservationID, seats)
	case "PENDING_REFUND":
		return fmt.Sprintf("Reservation %d: refund requested", n.ReservationID)
	case "FAILED":
		return fmt.Sprintf("Reservation %d: payment failed, seats released", n.ReservationID)
	case "CANCELLED":
		return fmt.Sprintf("Reservation %d: cancelled", n.ReservationID)
	}
	return fmt.Sprintf("Reservation %d: status %s", n.ReservationID, n.NewStatus)
}

// HandleMessage consumes the notifications topic. Undecodable messages are
// dropped so they do not block the partition.
func (s *Sender) HandleMessage(ctx context.Context, msg kafkago.Message) error {
	env, err := kafka.DecodeEnvelope(msg.Value)
	if err != nil {
		s.log.WithError(err).Warn("undecodable notification discarded")
		return nil
	}
	if env.EventType != kafka.EventReservationUpdated {
		return nil
	}
	var n kafka.ReservationNotification
	if err := json.Unmarshal(env.Payload, &n); err != nil {
		s.log.WithError(err).Warn("invalid notification payload discarded")
		return nil
	}
	if err := s.Send(ctx, n); err != nil {
		s.log.WithError(err).Warn("notification not sent")
	}
	return nil
}
