package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultTTL = 24 * time.Hour
	// PendingTTL bounds a reservation whose request never completed, e.g.
	// after a crash. Complete extends the key to the full TTL.
	PendingTTL = 5 * time.Minute

	pendingValue = "pending"
	donePrefix   = "done:"
)

var ErrInProgress = errors.New("idempotency: request with this key is still in progress")

// Reservation is the outcome of Reserve. When Replayed is true, Value holds the
// result recorded by the first request and the caller must not repeat the work.
type Reservation struct {
	Replayed bool
	Value    string
}

type Store interface {
	Reserve(ctx context.Context, scope, key string) (Reservation, error)
	Complete(ctx context.Context, scope, key, value string) error
	Release(ctx context.Context, scope, key string) error
}

type redisStore struct {
	client      *redis.Client
	serviceName string
	ttl         time.Duration
}

func NewRedisStore(client *redis.Client, serviceName string, ttl time.Duration) Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &redisStore{client: client, serviceName: serviceName, ttl: ttl}
}

func (s *redisStore) Reserve(ctx context.Context, scope, key string) (Reservation, error) {
	redisKey := s.generateKey(scope, key)

	acquired, err := s.client.SetNX(ctx, redisKey, pendingValue, min(PendingTTL, s.ttl)).Result()
	if err != nil {
		return Reservation{}, fmt.Errorf("idempotency: failed to reserve key: %w", err)
	}
	if acquired {
		return Reservation{}, nil
	}

	value, err := s.client.Get(ctx, redisKey).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; try once more
		return s.Reserve(ctx, scope, key)
	}
	if err != nil {
		return Reservation{}, fmt.Errorf("idempotency: failed to read key: %w", err)
	}

	if stored, ok := strings.CutPrefix(value, donePrefix); ok {
		return Reservation{Replayed: true, Value: stored}, nil
	}
	return Reservation{}, ErrInProgress
}

func (s *redisStore) Complete(ctx context.Context, scope, key, value string) error {
	if err := s.client.Set(ctx, s.generateKey(scope, key), donePrefix+value, s.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency: failed to record result: %w", err)
	}
	return nil
}

// Release forgets a reservation so the client may retry after a failure.
func (s *redisStore) Release(ctx context.Context, scope, key string) error {
	if err := s.client.Del(ctx, s.generateKey(scope, key)).Err(); err != nil {
		return fmt.Errorf("idempotency: failed to release key: %w", err)
	}
	return nil
}

func (s *redisStore) generateKey(scope, key string) string {
	return fmt.Sprintf("%s:%s:%s", s.serviceName, scope, key)
}
