package redisres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/campushq/flowline/pkg/persistence"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) (*ReservationRepository, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
	})

	return NewReservationRepository(client), server
}

func TestReserve_FirstClaimWins(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Reserve(ctx, "wf-1", "trigger:t1:B42", time.Minute))

	err := repo.Reserve(ctx, "wf-1", "trigger:t1:B42", time.Minute)
	assert.ErrorIs(t, err, persistence.ErrDuplicateReservation)
}

func TestReserve_ExactlyOneWinnerUnderContention(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	const contenders = 16

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)

	for range contenders {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if err := repo.Reserve(ctx, "wf-1", "trigger:t1:B42", time.Minute); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestReserve_WindowedKeyExpires(t *testing.T) {
	repo, server := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Reserve(ctx, "wf-1", "trigger:t1:1000", 30*time.Second))
	assert.ErrorIs(t, repo.Reserve(ctx, "wf-1", "trigger:t1:1000", 30*time.Second),
		persistence.ErrDuplicateReservation)

	server.FastForward(time.Minute)

	assert.NoError(t, repo.Reserve(ctx, "wf-1", "trigger:t1:1000", 30*time.Second))
}

func TestReserve_ScopedByWorkflow(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Reserve(ctx, "wf-1", "k", 0))
	assert.NoError(t, repo.Reserve(ctx, "wf-2", "k", 0))
}

func TestRelease_ReopensKey(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Reserve(ctx, "wf-1", "k", 0))
	require.NoError(t, repo.Release(ctx, "wf-1", "k"))
	assert.NoError(t, repo.Reserve(ctx, "wf-1", "k", 0))
}
