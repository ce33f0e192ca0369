package cart

import (
	"context"
	"strings"
	"time"

	"github.com/Domenick1991/airreservations/internal/domain"
)

type CartUseCase interface {
	AddItem(ctx context.Context, item domain.CartItem) error
	Items(ctx context.Context, userID string) ([]domain.CartItem, error)
}

type Store interface {
	AddCartItem(ctx context.Context, item domain.CartItem) error
	GetCart(ctx context.Context, userID string) ([]domain.CartItem, error)
}

type CartService struct {
	store Store
	now   func() time.Time
}

func NewCartService(store Store) *CartService {
	return &CartService{store: store, now: time.Now}
}

func (s *CartService) AddItem(ctx context.Context, item domain.CartItem) error {
	item.UserID = strings.TrimSpace(item.UserID)
	if item.UserID == "" {
		return domain.NewValidationError("user_id", "is required")
	}
	if item.FlightExternalID == "" {
		return domain.NewValidationError("flight_external_id", "is required")
	}
	if len(item.SeatIDs) == 0 {
		return domain.NewValidationError("seat_ids", "must not be empty")
	}
	if item.Price < 0 {
		return domain.NewValidationError("price", "must not be negative")
	}
	if item.AddedAt.IsZero() {
		item.AddedAt = s.now().UTC()
	}
	return s.store.AddCartItem(ctx, item)
}

func (s *CartService) Items(ctx context.Context, userID string) ([]domain.CartItem, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.NewValidationError("user_id", "is required")
	}
	return s.store.GetCart(ctx, userID)
}

var _ CartUseCase = (*CartService)(nil)
