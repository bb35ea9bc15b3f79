// Package redisres provides a Redis-backed reservation store for
// idempotency keys. SETNX gives the same exactly-one-winner guarantee as
// the SQL unique constraint while letting windowed keys expire on their
// own via TTL.
package redisres

import (
	"context"
	"fmt"
	"time"

	"github.com/campushq/flowline/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "flowline:reservation"

// ReservationRepository implements persistence.ReservationRepository on Redis.
type ReservationRepository struct {
	client *redis.Client
}

// NewReservationRepository wraps an existing Redis client.
func NewReservationRepository(client *redis.Client) *ReservationRepository {
	return &ReservationRepository{client: client}
}

// Reserve claims (workflowID, key) with SETNX. A zero ttl never expires.
func (r *ReservationRepository) Reserve(ctx context.Context, workflowID, key string, ttl time.Duration) error {
	ok, err := r.client.SetNX(ctx, reservationKey(workflowID, key), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return &persistence.ReservationError{WorkflowID: workflowID, Key: key, Err: err}
	}

	if !ok {
		return &persistence.ReservationError{
			WorkflowID: workflowID,
			Key:        key,
			Err:        persistence.ErrDuplicateReservation,
		}
	}

	return nil
}

func (r *ReservationRepository) Release(ctx context.Context, workflowID, key string) error {
	err := r.client.Del(ctx, reservationKey(workflowID, key)).Err()
	if err != nil {
		return fmt.Errorf("failed to release reservation %s/%s: %w", workflowID, key, err)
	}

	return nil
}

// HealthCheck verifies the Redis connection.
func (r *ReservationRepository) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func reservationKey(workflowID, key string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, workflowID, key)
}
