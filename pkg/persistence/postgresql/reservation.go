package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/campushq/flowline/pkg/persistence"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// ReservationRepository implements check-and-reserve on a unique
// (workflow_id, idempotency_key) constraint. The INSERT either lands or
// raises a unique violation; there is no read-then-write window.
type ReservationRepository struct {
	db *sql.DB
}

func NewReservationRepository(db *sql.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

func (r *ReservationRepository) Reserve(ctx context.Context, workflowID, key string, ttl time.Duration) error {
	var expiresAt *time.Time

	if ttl > 0 {
		expiry := time.Now().UTC().Add(ttl)
		expiresAt = &expiry
	}

	// Expired rows are reclaimed lazily at the next contention on the key.
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM idempotency_reservations
		 WHERE workflow_id = $1 AND idempotency_key = $2 AND expires_at IS NOT NULL AND expires_at < NOW()`,
		workflowID, key)
	if err != nil {
		return &persistence.ReservationError{WorkflowID: workflowID, Key: key, Err: err}
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO idempotency_reservations (workflow_id, idempotency_key, expires_at) VALUES ($1, $2, $3)`,
		workflowID, key, expiresAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return &persistence.ReservationError{
				WorkflowID: workflowID,
				Key:        key,
				Err:        persistence.ErrDuplicateReservation,
			}
		}

		return &persistence.ReservationError{WorkflowID: workflowID, Key: key, Err: err}
	}

	return nil
}

func (r *ReservationRepository) Release(ctx context.Context, workflowID, key string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM idempotency_reservations WHERE workflow_id = $1 AND idempotency_key = $2`,
		workflowID, key)
	if err != nil {
		return fmt.Errorf("failed to release reservation %s/%s: %w", workflowID, key, err)
	}

	return nil
}
