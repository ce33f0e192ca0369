package domain

import "time"

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusRefund  PaymentStatus = "REFUND"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

// PaymentEvent is an append-only audit row. Rows are never updated or deleted.
type PaymentEvent struct {
	ID             int64
	ReservationID  int64
	ExternalUserID string
	Status         PaymentStatus
	Amount         int64
	CreatedAt      time.Time
}
