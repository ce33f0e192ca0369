package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/airreservations/config"
	"github.com/Domenick1991/airreservations/internal/domain"
	"github.com/redis/go-redis/v9"
)

const cartTTL = 7 * 24 * time.Hour

type RedisCache struct {
	client     *redis.Client
	flightsTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, flightsTTL time.Duration) *RedisCache {
	return NewRedisCacheWithClient(
		redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		flightsTTL,
	)
}

func NewRedisCacheWithClient(client *redis.Client, flightsTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, flightsTTL: flightsTTL}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// GetFlights returns nil, nil on a cache miss.
func (c *RedisCache) GetFlights(ctx context.Context) ([]domain.Flight, error) {
	data, err := c.client.Get(ctx, flightsKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var flights []domain.Flight
	if err := json.Unmarshal(data, &flights); err != nil {
		return nil, err
	}
	return flights, nil
}

func (c *RedisCache) SetFlights(ctx context.Context, flights []domain.Flight) error {
	payload, err := json.Marshal(flights)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, flightsKey(), payload, c.flightsTTL).Err()
}

func (c *RedisCache) InvalidateFlights(ctx context.Context) error {
	return c.client.Del(ctx, flightsKey()).Err()
}

// EventProcessed reports whether an inbound event id has already been handled.
func (c *RedisCache) EventProcessed(ctx context.Context, eventID string) (bool, error) {
	n, err := c.client.Exists(ctx, eventKey(eventID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkEventProcessed records a handled event id so redeliveries are skipped.
func (c *RedisCache) MarkEventProcessed(ctx context.Context, eventID string, ttl time.Duration) error {
	return c.client.Set(ctx, eventKey(eventID), "1", ttl).Err()
}

func (c *RedisCache) AddCartItem(ctx context.Context, item domain.CartItem) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return err
	}
	key := cartKey(item.UserID)
	if err := c.client.RPush(ctx, key, payload).Err(); err != nil {
		return err
	}
	return c.client.Expire(ctx, key, cartTTL).Err()
}

func (c *RedisCache) GetCart(ctx context.Context, userID string) ([]domain.CartItem, error) {
	raw, err := c.client.LRange(ctx, cartKey(userID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	items := make([]domain.CartItem, 0, len(raw))
	for _, r := range raw {
		var item domain.CartItem
		if err := json.Unmarshal([]byte(r), &item); err != nil {
			return nil, fmt.Errorf("decode cart item: %w", err)
		}
		items = append(items, item)
	}
	return items, nil
}

func flightsKey() string {
	return "cache:flights"
}

func eventKey(eventID string) string {
	return "ingest:event:" + eventID
}

func cartKey(userID string) string {
	return "cart:" + userID
}
