package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/spindle/internal/models"
)

// TopTrackRepository persists [models.TopTrackRanking] snapshots.
//
// Each retrieval appends a fresh snapshot; earlier snapshots are kept as
// point-in-time facts and never pruned.
type TopTrackRepository struct {
	db *sql.DB
}

// NewTopTrackRepository creates a new TopTrackRepository with the given database connection
func NewTopTrackRepository(db *sql.DB) *TopTrackRepository {
	return &TopTrackRepository{db: db}
}

// InsertSnapshot appends ranking rows and returns the number inserted.
func (r *TopTrackRepository) InsertSnapshot(ctx context.Context, tx *sql.Tx, rankings []models.TopTrackRanking) (int64, error) {
	rows := make([][]any, 0, len(rankings))
	for _, rank := range rankings {
		if err := rank.Validate(); err != nil {
			return 0, fmt.Errorf("validation failed: %w", err)
		}
		rows = append(rows, []any{
			rank.UserID, rank.TrackID, string(rank.TimeRange), rank.Rank, rank.RetrievedAt.UTC(),
		})
	}

	query := `
		INSERT INTO top_tracks (user_id, track_id, time_range, rank_position, retrieved_at)
		VALUES (?, ?, ?, ?, ?)
	`

	return execBatch(ctx, tx, query, rows)
}

// LatestSnapshot returns the most recently retrieved ranking for the user
// and time range, ordered by rank position.
func (r *TopTrackRepository) LatestSnapshot(ctx context.Context, userID string, timeRange models.TimeRange) ([]models.TopTrackRanking, error) {
	query := `
		SELECT user_id, track_id, time_range, rank_position, retrieved_at
		FROM top_tracks
		WHERE user_id = ? AND time_range = ?
			AND retrieved_at = (
				SELECT MAX(retrieved_at) FROM top_tracks
				WHERE user_id = ? AND time_range = ?
			)
		ORDER BY rank_position ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID, string(timeRange), userID, string(timeRange))
	if err != nil {
		return nil, fmt.Errorf("failed to query top tracks: %w", err)
	}
	defer rows.Close()

	var rankings []models.TopTrackRanking
	for rows.Next() {
		var rank models.TopTrackRanking
		var tr string
		if err := rows.Scan(&rank.UserID, &rank.TrackID, &tr, &rank.Rank, &rank.RetrievedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ranking: %w", err)
		}
		rank.TimeRange = models.TimeRange(tr)
		rankings = append(rankings, rank)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return rankings, nil
}

// Count returns the total number of stored ranking rows.
func (r *TopTrackRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM top_tracks").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count top tracks: %w", err)
	}
	return count, nil
}
