package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultIdempotencyTTL is how long a submission key is remembered.
const DefaultIdempotencyTTL = 24 * time.Hour

const (
	// pendingMarker holds a key while its submission is being written.
	pendingMarker = "pending"
	// pendingTTL bounds how long a crashed submission can hold a key.
	pendingTTL = time.Minute
)

// IdempotencyStore maps donation Idempotency-Key headers to the donation id
// they produced.
// Key format: idem:donation:<user_id>:<key>
type IdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewIdempotencyStore creates an IdempotencyStore wrapping the given Redis client.
func NewIdempotencyStore(client *redis.Client, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &IdempotencyStore{client: client, ttl: ttl}
}

// Reserve claims the key with SETNX. A caller that loses the claim gets the
// stored donation id, or zero while the winner is still writing.
func (s *IdempotencyStore) Reserve(ctx context.Context, userID, key string) (bool, int, error) {
	k := s.key(userID, key)

	ok, err := s.client.SetNX(ctx, k, pendingMarker, pendingTTL).Result()
	if err != nil {
		return false, 0, fmt.Errorf("idempotency reserve: %w", err)
	}
	if ok {
		return true, 0, nil
	}

	v, err := s.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// Released or expired between the two calls; the client retries.
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("idempotency reserve: %w", err)
	}
	return false, parseDonationID(v), nil
}

// Complete overwrites the pending marker with the donation id.
func (s *IdempotencyStore) Complete(ctx context.Context, userID, key string, donationID int) error {
	if err := s.client.Set(ctx, s.key(userID, key), donationID, s.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency complete: %w", err)
	}
	return nil
}

// Release deletes the key so a retry can submit again.
func (s *IdempotencyStore) Release(ctx context.Context, userID, key string) error {
	if err := s.client.Del(ctx, s.key(userID, key)).Err(); err != nil {
		return fmt.Errorf("idempotency release: %w", err)
	}
	return nil
}

func (s *IdempotencyStore) key(userID, key string) string {
	return fmt.Sprintf("idem:donation:%s:%s", userID, key)
}

// parseDonationID returns 0 for the pending marker or a corrupt value.
func parseDonationID(v string) int {
	if v == pendingMarker {
		return 0
	}
	id, err := strconv.Atoi(v)
	if err != nil || id < 0 {
		return 0
	}
	return id
}
