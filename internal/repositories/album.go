package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/spindle/internal/models"
)

// AlbumRepository persists [models.Album] reference rows.
//
// Albums reference their artist; the loader writes artists first so the
// foreign key holds.
type AlbumRepository struct {
	db *sql.DB
}

// NewAlbumRepository creates a new AlbumRepository with the given database connection
func NewAlbumRepository(db *sql.DB) *AlbumRepository {
	return &AlbumRepository{db: db}
}

// InsertBatch writes albums insert-if-absent and returns the number of new rows.
func (r *AlbumRepository) InsertBatch(ctx context.Context, tx *sql.Tx, albums []models.Album) (int64, error) {
	rows := make([][]any, 0, len(albums))
	for _, a := range albums {
		if err := a.Validate(); err != nil {
			return 0, fmt.Errorf("validation failed: %w", err)
		}
		rows = append(rows, []any{a.AlbumID, a.Name, a.ArtistID})
	}

	query := `
		INSERT INTO albums (album_id, album_name, artist_id)
		VALUES (?, ?, ?)
		ON CONFLICT(album_id) DO NOTHING
	`

	return execBatch(ctx, tx, query, rows)
}

// Get retrieves an album by ID.
func (r *AlbumRepository) Get(ctx context.Context, albumID string) (*models.Album, error) {
	var album models.Album
	err := r.db.QueryRowContext(ctx,
		"SELECT album_id, album_name, artist_id FROM albums WHERE album_id = ?", albumID).
		Scan(&album.AlbumID, &album.Name, &album.ArtistID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("album not found: %s", albumID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan album: %w", err)
	}
	return &album, nil
}
