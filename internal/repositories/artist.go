package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/spindle/internal/models"
)

// ArtistRepository persists [models.Artist] reference rows.
type ArtistRepository struct {
	db *sql.DB
}

// NewArtistRepository creates a new ArtistRepository with the given database connection
func NewArtistRepository(db *sql.DB) *ArtistRepository {
	return &ArtistRepository{db: db}
}

// InsertBatch writes artists insert-if-absent and returns the number of new rows.
// Existing artists are never mutated; upstream identifiers are immutable.
func (r *ArtistRepository) InsertBatch(ctx context.Context, tx *sql.Tx, artists []models.Artist) (int64, error) {
	rows := make([][]any, 0, len(artists))
	for _, a := range artists {
		if err := a.Validate(); err != nil {
			return 0, fmt.Errorf("validation failed: %w", err)
		}
		rows = append(rows, []any{a.ArtistID, a.Name})
	}

	query := `
		INSERT INTO artists (artist_id, artist_name)
		VALUES (?, ?)
		ON CONFLICT(artist_id) DO NOTHING
	`

	return execBatch(ctx, tx, query, rows)
}

// Get retrieves an artist by ID.
func (r *ArtistRepository) Get(ctx context.Context, artistID string) (*models.Artist, error) {
	var artist models.Artist
	err := r.db.QueryRowContext(ctx,
		"SELECT artist_id, artist_name FROM artists WHERE artist_id = ?", artistID).
		Scan(&artist.ArtistID, &artist.Name)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("artist not found: %s", artistID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan artist: %w", err)
	}
	return &artist, nil
}

// Count returns the number of stored artists.
func (r *ArtistRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM artists").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count artists: %w", err)
	}
	return count, nil
}
