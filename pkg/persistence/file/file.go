// Package file provides a file-based persistence backend. Every record is
// one JSON document under the root directory; it serves local development
// and tests, not multi-process deployments.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/campushq/flowline/pkg/persistence"
)

// Persistence implements persistence.Persistence on the local file system.
type Persistence struct {
	root string

	workflowRepo    *WorkflowRepository
	triggerRepo     *TriggerRepository
	scheduleRepo    *ScheduleRepository
	executionRepo   *ExecutionRepository
	logRepo         *ExecutionLogRepository
	reservationRepo *ReservationRepository
}

// NewPersistence creates a file persistence layer rooted at the given
// directory. Accepts a plain path or a file:// URL.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:            cleanRoot,
		workflowRepo:    &WorkflowRepository{store: newStore(cleanRoot, "workflows")},
		triggerRepo:     &TriggerRepository{store: newStore(cleanRoot, "triggers")},
		scheduleRepo:    &ScheduleRepository{store: newStore(cleanRoot, "schedules")},
		executionRepo:   &ExecutionRepository{store: newStore(cleanRoot, "executions")},
		logRepo:         NewExecutionLogRepository(newStore(cleanRoot, "execution_logs")),
		reservationRepo: NewReservationRepository(),
	}
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) TriggerRepository() persistence.TriggerRepository {
	return p.triggerRepo
}

func (p *Persistence) ScheduleRepository() persistence.ScheduleRepository {
	return p.scheduleRepo
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executionRepo
}

func (p *Persistence) ExecutionLogRepository() persistence.ExecutionLogRepository {
	return p.logRepo
}

func (p *Persistence) ReservationRepository() persistence.ReservationRepository {
	return p.reservationRepo
}

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. There is nothing to clean up for
// file persistence.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// store reads and writes JSON documents of one collection directory.
type store struct {
	dir string
}

func newStore(root, collection string) *store {
	return &store{dir: filepath.Join(root, collection)}
}

func (s *store) read(id string, out any) error {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fs.ErrNotExist
		}

		return fmt.Errorf("failed to read document %s: %w", id, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode document %s: %w", id, err)
	}

	return nil
}

func (s *store) write(id string, doc any) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create collection directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", id, err)
	}

	if err := os.WriteFile(s.path(id), data, 0o600); err != nil {
		return fmt.Errorf("failed to write document %s: %w", id, err)
	}

	return nil
}

func (s *store) remove(id string) error {
	err := os.Remove(s.path(id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove document %s: %w", id, err)
	}

	if errors.Is(err, fs.ErrNotExist) {
		return fs.ErrNotExist
	}

	return nil
}

func (s *store) ids() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to list collection: %w", err)
	}

	ids := make([]string, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}

	return ids, nil
}

func (s *store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}
