package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/spindle/internal/models"
)

// TrackRepository persists [models.Track] reference rows.
//
// History loads are insert-if-absent: popularity and preview URLs go stale
// on purpose. RefreshMetadata is the explicit operation that updates them.
type TrackRepository struct {
	db *sql.DB
}

// NewTrackRepository creates a new TrackRepository with the given database connection
func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

// InsertBatch writes tracks insert-if-absent and returns the number of new rows.
func (r *TrackRepository) InsertBatch(ctx context.Context, tx *sql.Tx, tracks []models.Track) (int64, error) {
	rows := make([][]any, 0, len(tracks))
	for _, t := range tracks {
		if err := t.Validate(); err != nil {
			return 0, fmt.Errorf("validation failed: %w", err)
		}
		rows = append(rows, []any{
			t.TrackID, t.Name, t.ArtistID, nullable(t.AlbumID),
			t.DurationMS, t.Popularity, t.Explicit, nullable(t.PreviewURL),
		})
	}

	query := `
		INSERT INTO tracks (track_id, track_name, artist_id, album_id, duration_ms, popularity, explicit, preview_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(track_id) DO NOTHING
	`

	return execBatch(ctx, tx, query, rows)
}

// RefreshMetadata overwrites the mutable columns (popularity, preview_url)
// of tracks that already exist. Returns the number of rows updated.
func (r *TrackRepository) RefreshMetadata(ctx context.Context, tracks []models.Track) (int64, error) {
	query := `
		UPDATE tracks
		SET popularity = ?, preview_url = ?
		WHERE track_id = ?
	`

	var updated int64
	for _, t := range tracks {
		if t.TrackID == "" {
			continue
		}
		res, err := r.db.ExecContext(ctx, query, t.Popularity, nullable(t.PreviewURL), t.TrackID)
		if err != nil {
			return updated, fmt.Errorf("failed to refresh track %s: %w", t.TrackID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return updated, fmt.Errorf("failed to get affected rows: %w", err)
		}
		updated += n
	}

	return updated, nil
}

// Get retrieves a track by ID.
func (r *TrackRepository) Get(ctx context.Context, trackID string) (*models.Track, error) {
	query := `
		SELECT track_id, track_name, artist_id, album_id, duration_ms, popularity, explicit, preview_url
		FROM tracks
		WHERE track_id = ?
	`

	var (
		track      models.Track
		albumID    sql.NullString
		previewURL sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, trackID).Scan(
		&track.TrackID, &track.Name, &track.ArtistID, &albumID,
		&track.DurationMS, &track.Popularity, &track.Explicit, &previewURL,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("track not found: %s", trackID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan track: %w", err)
	}

	track.AlbumID = albumID.String
	track.PreviewURL = previewURL.String
	return &track, nil
}

// Count returns the number of stored tracks.
func (r *TrackRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tracks").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tracks: %w", err)
	}
	return count, nil
}

// nullable maps an empty string to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
