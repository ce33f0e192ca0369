package domain

import "time"

// CartItem is a seat selection made in the search frontend before booking.
// Carts live in redis only.
type CartItem struct {
	UserID           string    `json:"user_id"`
	FlightExternalID string    `json:"flight_external_id"`
	SeatIDs          []string  `json:"seat_ids"`
	Price            int64     `json:"price"`
	AddedAt          time.Time `json:"added_at"`
}
