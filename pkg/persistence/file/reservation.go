package file

import (
	"context"
	"sync"
	"time"

	"github.com/campushq/flowline/pkg/persistence"
)

// ReservationRepository implements check-and-reserve with an in-process
// map. Works for the single-process deployments the file backend targets;
// anything multi-process needs the SQL or Redis backend.
type ReservationRepository struct {
	mu       sync.Mutex
	reserved map[string]time.Time
	now      func() time.Time
}

func NewReservationRepository() *ReservationRepository {
	return &ReservationRepository{
		reserved: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Reserve claims (workflowID, key) atomically. A zero ttl never expires.
func (r *ReservationRepository) Reserve(_ context.Context, workflowID, key string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	composite := workflowID + "/" + key
	now := r.now()

	if expiry, exists := r.reserved[composite]; exists {
		if expiry.IsZero() || expiry.After(now) {
			return &persistence.ReservationError{
				WorkflowID: workflowID,
				Key:        key,
				Err:        persistence.ErrDuplicateReservation,
			}
		}
	}

	var expiry time.Time
	if ttl > 0 {
		expiry = now.Add(ttl)
	}

	r.reserved[composite] = expiry

	return nil
}

func (r *ReservationRepository) Release(_ context.Context, workflowID, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.reserved, workflowID+"/"+key)

	return nil
}
