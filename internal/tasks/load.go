package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spindle/internal/models"
	"github.com/desertthunder/spindle/internal/repositories"
	"github.com/desertthunder/spindle/internal/shared"
)

// GroupResult records the outcome of loading one entity group.
type GroupResult struct {
	Group     string `json:"group"`
	Attempted int    `json:"attempted"`
	Written   int64  `json:"written"`
	Retried   bool   `json:"retried,omitempty"`
	Error     string `json:"error,omitempty"`
}

// LoadReport summarizes one load stage: a result per entity group, in the
// order the groups were committed.
type LoadReport struct {
	Groups []GroupResult `json:"groups"`
}

// OK reports whether every group committed.
func (r *LoadReport) OK() bool {
	for _, g := range r.Groups {
		if g.Error != "" {
			return false
		}
	}
	return true
}

// FailedGroups returns the names of groups that did not commit.
func (r *LoadReport) FailedGroups() []string {
	var failed []string
	for _, g := range r.Groups {
		if g.Error != "" {
			failed = append(failed, g.Group)
		}
	}
	return failed
}

// TotalWritten returns the number of rows written across all groups.
func (r *LoadReport) TotalWritten() int64 {
	var total int64
	for _, g := range r.Groups {
		total += g.Written
	}
	return total
}

// Loader is the store's sole writer. It commits each entity group as its own
// transaction, in strict dependency order (artists before albums before
// tracks, then the profile, then the facts), so a failure in one group never
// rolls back groups already committed. Failed groups are retried once.
type Loader struct {
	db        *sql.DB
	users     *repositories.UserRepository
	artists   *repositories.ArtistRepository
	albums    *repositories.AlbumRepository
	tracks    *repositories.TrackRepository
	history   *repositories.HistoryRepository
	topTracks *repositories.TopTrackRepository
	logger    *log.Logger
}

// NewLoader creates a Loader and its repositories over the given connection pool.
func NewLoader(db *sql.DB, logger *log.Logger) *Loader {
	return &Loader{
		db:        db,
		users:     repositories.NewUserRepository(db),
		artists:   repositories.NewArtistRepository(db),
		albums:    repositories.NewAlbumRepository(db),
		tracks:    repositories.NewTrackRepository(db),
		history:   repositories.NewHistoryRepository(db),
		topTracks: repositories.NewTopTrackRepository(db),
		logger:    logger,
	}
}

type entityGroup struct {
	name      string
	attempted int
	write     func(tx *sql.Tx) (int64, error)
}

// Load writes the batch to the store. It always returns a report covering
// every group; the error is non-nil (wrapping [shared.ErrLoad]) when at
// least one group failed after its retry.
func (l *Loader) Load(ctx context.Context, batch *models.NormalizedBatch) (*LoadReport, error) {
	if batch == nil || batch.Profile == nil {
		return nil, fmt.Errorf("%w: nil batch", shared.ErrLoad)
	}

	groups := []entityGroup{
		{"artists", len(batch.Artists), func(tx *sql.Tx) (int64, error) {
			return l.artists.InsertBatch(ctx, tx, batch.Artists)
		}},
		{"albums", len(batch.Albums), func(tx *sql.Tx) (int64, error) {
			return l.albums.InsertBatch(ctx, tx, batch.Albums)
		}},
		{"tracks", len(batch.Tracks), func(tx *sql.Tx) (int64, error) {
			return l.tracks.InsertBatch(ctx, tx, batch.Tracks)
		}},
		{"users", 1, func(tx *sql.Tx) (int64, error) {
			return 1, l.users.Upsert(ctx, tx, *batch.Profile)
		}},
		{"listening_history", len(batch.Events), func(tx *sql.Tx) (int64, error) {
			return l.history.InsertBatch(ctx, tx, batch.Events)
		}},
		{"top_tracks", len(batch.Rankings), func(tx *sql.Tx) (int64, error) {
			return l.topTracks.InsertSnapshot(ctx, tx, batch.Rankings)
		}},
	}

	report := &LoadReport{Groups: make([]GroupResult, 0, len(groups))}
	for _, group := range groups {
		report.Groups = append(report.Groups, l.loadGroup(ctx, group))
	}

	if !report.OK() {
		return report, fmt.Errorf("%w: groups failed: %s", shared.ErrLoad, strings.Join(report.FailedGroups(), ", "))
	}
	return report, nil
}

// loadGroup commits one entity group, retrying once on failure.
func (l *Loader) loadGroup(ctx context.Context, group entityGroup) GroupResult {
	result := GroupResult{Group: group.name, Attempted: group.attempted}
	if group.attempted == 0 {
		return result
	}

	written, err := l.writeGroup(ctx, group.write)
	if err != nil {
		l.logger.Warn("entity group failed, retrying once", "group", group.name, "error", err)
		result.Retried = true
		written, err = l.writeGroup(ctx, group.write)
	}

	result.Written = written
	if err != nil {
		result.Error = err.Error()
		l.logger.Error("entity group failed", "group", group.name, "error", err)
	} else {
		l.logger.Debug("entity group committed", "group", group.name, "written", written)
	}
	return result
}

// writeGroup runs one group write inside its own transaction.
func (l *Loader) writeGroup(ctx context.Context, write func(tx *sql.Tx) (int64, error)) (int64, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	written, err := write(tx)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return written, nil
}
