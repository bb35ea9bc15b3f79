// Package cmd holds the shared construction helpers the flowline binaries
// use to assemble their dependencies from configuration.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/campushq/flowline/pkg/persistence"
	"github.com/campushq/flowline/pkg/persistence/file"
	"github.com/campushq/flowline/pkg/persistence/postgresql"
	"github.com/campushq/flowline/pkg/persistence/redisres"
	"github.com/redis/go-redis/v9"
)

// NewPersistence selects a backend from the URL scheme: postgres:// for
// PostgreSQL, anything else (file://, bare paths) for the JSON file store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		return file.NewPersistence(databaseURL), nil
	}
}

// NewReservations returns the reservation store. With a redis:// URL the
// redis store fronts the persistence backend, giving cross-process
// first-writer-wins; an empty URL falls back to the backend's own store.
func NewReservations(
	store persistence.Persistence,
	reservationURL string,
) (persistence.ReservationRepository, error) {
	if reservationURL == "" {
		return store.ReservationRepository(), nil
	}

	opts, err := redis.ParseURL(reservationURL)
	if err != nil {
		return nil, fmt.Errorf("invalid reservation URL: %w", err)
	}

	return redisres.NewReservationRepository(redis.NewClient(opts)), nil
}
