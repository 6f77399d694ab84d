package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spindle/internal/services"
	"github.com/desertthunder/spindle/internal/shared"
)

// RunState is the orchestrator's position in the pipeline lifecycle.
type RunState int

const (
	StateIdle RunState = iota
	StateExtracting
	StateTransforming
	StateLoading
	StateChecking
	StateDone
	StateFailed
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateExtracting:
		return "EXTRACTING"
	case StateTransforming:
		return "TRANSFORMING"
	case StateLoading:
		return "LOADING"
	case StateChecking:
		return "CHECKING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the state ends a run.
func (s RunState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// ExtractCounts tallies what the extraction stage pulled.
type ExtractCounts struct {
	TopTracks int `json:"top_tracks"`
	Recent    int `json:"recent"`
}

// RunSummary is the record of one pipeline run, emitted whether the run
// succeeded or failed.
type RunSummary struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	State      RunState       `json:"-"`
	StateName  string         `json:"state"`
	Retries    int            `json:"retries"`
	Dropped    int            `json:"dropped"`
	Extracted  ExtractCounts  `json:"extracted"`
	Load       *LoadReport    `json:"load,omitempty"`
	Quality    *QualityReport `json:"quality,omitempty"`
	Failure    string         `json:"failure,omitempty"`
}

// Duration returns the wall-clock time the run took.
func (s *RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// ETLEngine orchestrates one pipeline run at a time through the fixed stage
// sequence: extract, transform, load, check. Stage outputs pass by value to
// the next stage; nothing is re-read from shared mutable state. At most one
// run may be active per engine.
type ETLEngine struct {
	extractor *Extractor
	loader    *Loader
	checker   *QualityChecker
	logger    *log.Logger

	running atomic.Bool
}

// NewETLEngine wires an engine from the provider service, the store's
// connection pool, and the pipeline configuration.
func NewETLEngine(svc services.Service, db *sql.DB, cfg shared.ETLConfig, logger *log.Logger) *ETLEngine {
	return &ETLEngine{
		extractor: NewExtractor(svc, cfg, logger),
		loader:    NewLoader(db, logger),
		checker:   NewQualityChecker(db, cfg.LookbackDays, logger),
		logger:    logger,
	}
}

// Active reports whether a run is currently in flight.
func (e *ETLEngine) Active() bool {
	return e.running.Load()
}

// Run executes one full pipeline pass. It returns a summary for every
// outcome; the error is non-nil when the run ended FAILED, or wraps
// [shared.ErrRunActive] when another run holds the engine.
//
// Progress updates are sent to the channel when the receiver is keeping up;
// a nil or full channel is never blocked on.
func (e *ETLEngine) Run(ctx context.Context, progress chan<- ProgressUpdate) (*RunSummary, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%w: a pipeline run is already in progress", shared.ErrRunActive)
	}
	defer e.running.Store(false)

	summary := &RunSummary{RunID: shared.GenerateID(), StartedAt: time.Now()}
	e.logger.Info("pipeline run starting", "run_id", summary.RunID)

	summary.State = StateExtracting
	e.sendProgress(progress, extractingUpdate())
	raw, retries, err := e.extractor.Extract(ctx)
	summary.Retries = retries
	if err != nil {
		return e.fail(summary, err)
	}
	if err := ctx.Err(); err != nil {
		return e.fail(summary, err)
	}
	for _, tracks := range raw.TopTracks {
		summary.Extracted.TopTracks += len(tracks)
	}
	summary.Extracted.Recent = len(raw.Recent)

	summary.State = StateTransforming
	e.sendProgress(progress, transformingUpdate(summary.Extracted))
	batch, err := Transform(raw, time.Now())
	if err != nil {
		return e.fail(summary, err)
	}
	summary.Dropped = batch.DroppedCount
	if err := ctx.Err(); err != nil {
		return e.fail(summary, err)
	}

	summary.State = StateLoading
	e.sendProgress(progress, loadingUpdate(batch.DroppedCount))
	loadReport, err := e.loader.Load(ctx, batch)
	summary.Load = loadReport
	if err != nil {
		return e.fail(summary, err)
	}
	if err := ctx.Err(); err != nil {
		return e.fail(summary, err)
	}

	summary.State = StateChecking
	e.sendProgress(progress, checkingUpdate())
	quality, err := e.checker.Check(ctx, batch.Profile.UserID, len(batch.Events))
	summary.Quality = quality
	if err != nil {
		// Check failures are observability signals, never run failures.
		e.logger.Warn("quality check stage errored", "run_id", summary.RunID, "error", err)
	}

	summary.State = StateDone
	summary.StateName = summary.State.String()
	summary.FinishedAt = time.Now()
	e.sendProgress(progress, doneUpdate(summary))
	e.logger.Info("pipeline run finished",
		"run_id", summary.RunID,
		"state", summary.StateName,
		"duration", summary.Duration(),
		"written", loadReport.TotalWritten(),
		"dropped", summary.Dropped,
		"retries", summary.Retries,
	)
	return summary, nil
}

// fail finalizes a run in the FAILED state, classifying unrecognized errors
// under [shared.ErrPipeline].
func (e *ETLEngine) fail(summary *RunSummary, err error) (*RunSummary, error) {
	if !inTaxonomy(err) {
		err = fmt.Errorf("%w: %v", shared.ErrPipeline, err)
	}

	stage := summary.State.String()
	summary.State = StateFailed
	summary.StateName = summary.State.String()
	summary.FinishedAt = time.Now()
	summary.Failure = err.Error()
	e.logger.Error("pipeline run failed",
		"run_id", summary.RunID,
		"stage", stage,
		"duration", summary.Duration(),
		"error", err,
	)
	return summary, err
}

func inTaxonomy(err error) bool {
	for _, sentinel := range []error{
		shared.ErrAuth,
		shared.ErrExtraction,
		shared.ErrTransformation,
		shared.ErrLoad,
		shared.ErrQualityCheck,
		shared.ErrPipeline,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// sendProgress delivers an update without ever blocking the pipeline.
func (e *ETLEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}
