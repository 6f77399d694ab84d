package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spindle/internal/shared"
)

// Scheduler fires one pipeline run per day at a configured wall-clock time.
// It ticks once a minute and compares against the local clock; a tick that
// lands while a run is still active is skipped, never queued.
type Scheduler struct {
	engine *ETLEngine
	hour   int
	minute int
	logger *log.Logger

	lastFired time.Time
}

// NewScheduler parses fireAt ("HH:MM", 24-hour) and returns a scheduler
// around the given engine.
func NewScheduler(engine *ETLEngine, fireAt string, logger *log.Logger) (*Scheduler, error) {
	t, err := time.Parse("15:04", fireAt)
	if err != nil {
		return nil, fmt.Errorf("%w: fire time %q is not HH:MM", shared.ErrInvalidConfig, fireAt)
	}
	return &Scheduler{
		engine: engine,
		hour:   t.Hour(),
		minute: t.Minute(),
		logger: logger,
	}, nil
}

// shouldFire reports whether now matches the configured daily time and that
// minute has not already fired.
func (s *Scheduler) shouldFire(now time.Time) bool {
	if now.Hour() != s.hour || now.Minute() != s.minute {
		return false
	}
	if !s.lastFired.IsZero() && now.Sub(s.lastFired) < time.Minute {
		return false
	}
	return true
}

// Start blocks, running the pipeline each day at the configured time, until
// the context is cancelled. Run outcomes are logged; a failed run never
// stops the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "fire_at", fmt.Sprintf("%02d:%02d", s.hour, s.minute))

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			return ctx.Err()
		case now := <-ticker.C:
			if !s.shouldFire(now) {
				continue
			}
			s.lastFired = now
			s.fire(ctx)
		}
	}
}

// fire executes one scheduled run.
func (s *Scheduler) fire(ctx context.Context) {
	summary, err := s.engine.Run(ctx, nil)
	switch {
	case errors.Is(err, shared.ErrRunActive):
		s.logger.Warn("scheduled run skipped, previous run still active")
	case err != nil:
		s.logger.Error("scheduled run failed", "run_id", summary.RunID, "error", err)
	default:
		s.logger.Info("scheduled run complete", "run_id", summary.RunID, "duration", summary.Duration())
	}
}
