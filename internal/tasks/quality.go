package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spindle/internal/repositories"
	"github.com/desertthunder/spindle/internal/shared"
)

// CheckResult is the outcome of a single quality check.
type CheckResult struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
	Value   int64  `json:"value"`
}

// QualityReport is the structured output of the post-load checks. Failures
// are observability signals for operators; they never alter the run's
// terminal state or roll anything back.
type QualityReport struct {
	RanAt        time.Time     `json:"ran_at"`
	LookbackDays int           `json:"lookback_days"`
	Checks       []CheckResult `json:"checks"`
}

// Passed reports whether every check passed.
func (r *QualityReport) Passed() bool {
	for _, c := range r.Checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

// RecentTracksCount returns the listening-history row count found within the
// lookback window.
func (r *QualityReport) RecentTracksCount() int64 {
	for _, c := range r.Checks {
		if c.Name == "recent_tracks_count" {
			return c.Value
		}
	}
	return 0
}

// QualityChecker runs read-only assertions against the store after a load.
type QualityChecker struct {
	users    *repositories.UserRepository
	history  *repositories.HistoryRepository
	lookback int
	logger   *log.Logger
}

// NewQualityChecker creates a QualityChecker over the given connection pool.
func NewQualityChecker(db *sql.DB, lookbackDays int, logger *log.Logger) *QualityChecker {
	if lookbackDays <= 0 {
		lookbackDays = 7
	}
	return &QualityChecker{
		users:    repositories.NewUserRepository(db),
		history:  repositories.NewHistoryRepository(db),
		lookback: lookbackDays,
		logger:   logger,
	}
}

// Check runs the post-load assertions for the given user. extractedEvents is
// the number of events the run pulled from the provider: when it is zero, an
// empty lookback window is expected and passes.
func (q *QualityChecker) Check(ctx context.Context, userID string, extractedEvents int) (*QualityReport, error) {
	report := &QualityReport{RanAt: time.Now(), LookbackDays: q.lookback}

	exists, err := q.users.Exists(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrQualityCheck, err)
	}
	userCheck := CheckResult{Name: "user_exists", Passed: exists}
	if exists {
		userCheck.Value = 1
	} else {
		userCheck.Message = fmt.Sprintf("no user row for %s", userID)
	}
	report.Checks = append(report.Checks, userCheck)

	cutoff := report.RanAt.AddDate(0, 0, -q.lookback)
	count, err := q.history.CountSince(ctx, userID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrQualityCheck, err)
	}
	recentCheck := CheckResult{Name: "recent_tracks_count", Value: count, Passed: count > 0 || extractedEvents == 0}
	if !recentCheck.Passed {
		recentCheck.Message = fmt.Sprintf("extracted %d events but found no history rows in the last %d days", extractedEvents, q.lookback)
	}
	report.Checks = append(report.Checks, recentCheck)

	for _, c := range report.Checks {
		if c.Passed {
			q.logger.Debug("quality check passed", "check", c.Name, "value", c.Value)
		} else {
			q.logger.Warn("quality check failed", "check", c.Name, "message", c.Message)
		}
	}

	return report, nil
}
