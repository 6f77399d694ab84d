package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/spindle/internal/models"
)

// HistoryRepository persists [models.ListeningEvent] facts.
//
// Events are append-only and deduplicated on (user_id, track_id, played_at);
// re-running the pipeline over the same extraction is a no-op.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository creates a new HistoryRepository with the given database connection
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// InsertBatch writes events, ignoring duplicates of the natural key.
// Returns the number of rows actually inserted.
func (r *HistoryRepository) InsertBatch(ctx context.Context, tx *sql.Tx, events []models.ListeningEvent) (int64, error) {
	rows := make([][]any, 0, len(events))
	for _, e := range events {
		if err := e.Validate(); err != nil {
			return 0, fmt.Errorf("validation failed: %w", err)
		}
		rows = append(rows, []any{e.UserID, e.TrackID, e.PlayedAt.UTC(), e.ContextType})
	}

	query := `
		INSERT INTO listening_history (user_id, track_id, played_at, context_type)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, track_id, played_at) DO NOTHING
	`

	return execBatch(ctx, tx, query, rows)
}

// CountSince returns the number of events for the user played at or after the cutoff.
func (r *HistoryRepository) CountSince(ctx context.Context, userID string, cutoff time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM listening_history WHERE user_id = ? AND played_at >= ?",
		userID, cutoff.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count listening history: %w", err)
	}
	return count, nil
}

// Recent returns up to limit events for the user played at or after the
// cutoff, most recent first.
func (r *HistoryRepository) Recent(ctx context.Context, userID string, cutoff time.Time, limit int) ([]models.ListeningEvent, error) {
	query := `
		SELECT user_id, track_id, played_at, context_type
		FROM listening_history
		WHERE user_id = ? AND played_at >= ?
		ORDER BY played_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, userID, cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query listening history: %w", err)
	}
	defer rows.Close()

	var events []models.ListeningEvent
	for rows.Next() {
		var e models.ListeningEvent
		if err := rows.Scan(&e.UserID, &e.TrackID, &e.PlayedAt, &e.ContextType); err != nil {
			return nil, fmt.Errorf("failed to scan listening event: %w", err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return events, nil
}

// Count returns the total number of stored events.
func (r *HistoryRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM listening_history").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count listening history: %w", err)
	}
	return count, nil
}
