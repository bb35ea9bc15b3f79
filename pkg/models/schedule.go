package models

import (
	"errors"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule binds a cadence to a scheduled workflow. The next execution time
// is precomputed so the runner can poll for due schedules without keeping a
// timer per entry.
type Schedule struct {
	// ID uniquely identifies this schedule entry.
	ID string `json:"id" validate:"required"`

	// WorkflowID identifies the scheduled workflow this cadence fires.
	WorkflowID string `json:"workflow_id" validate:"required"`

	// CronExpression uses the standard 5-field format
	// (minute hour day month weekday).
	CronExpression string `json:"cron_expression" validate:"required"`

	// NextDueAt is the precomputed next execution time.
	NextDueAt time.Time `json:"next_due_at"`

	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrInvalidSchedule is returned when schedule validation fails.
var ErrInvalidSchedule = errors.New("invalid schedule configuration")

// NewSchedule creates a schedule with its first due time computed from now.
func NewSchedule(id, workflowID, cronExpression string) (*Schedule, error) {
	now := time.Now().UTC()
	schedule := &Schedule{
		ID:             id,
		WorkflowID:     workflowID,
		CronExpression: cronExpression,
		CreatedAt:      now,
		UpdatedAt:      now,
		Active:         true,
	}

	if err := schedule.calculateNextDueAt(now); err != nil {
		return nil, err
	}

	return schedule, nil
}

// Advance recomputes the next due time from the given reference, normally
// the tick that just fired.
func (s *Schedule) Advance(reference time.Time) error {
	return s.calculateNextDueAt(reference)
}

func (s *Schedule) calculateNextDueAt(reference time.Time) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	cronSchedule, err := parser.Parse(s.CronExpression)
	if err != nil {
		return err
	}

	s.NextDueAt = cronSchedule.Next(reference)
	s.UpdatedAt = time.Now().UTC()

	return nil
}

// IsDue checks if this schedule should fire at the given time.
func (s *Schedule) IsDue(now time.Time) bool {
	return s.Active && !s.NextDueAt.After(now)
}

// Validate checks the schedule fields and cron expression format.
func (s *Schedule) Validate() error {
	if s.ID == "" || s.WorkflowID == "" || s.CronExpression == "" {
		return ErrInvalidSchedule
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	_, err := parser.Parse(s.CronExpression)

	return err
}
