package tasks

import (
	"fmt"
	"time"

	"github.com/desertthunder/spindle/internal/models"
	"github.com/desertthunder/spindle/internal/services"
	"github.com/desertthunder/spindle/internal/shared"
)

// Transform maps the extraction stage's provider-shaped records into a
// [models.NormalizedBatch]: nested artist/album objects flattened to
// foreign-key references, defaults applied, malformed records dropped and
// counted.
//
// Transform is a pure, total function over its input: an individual record
// missing a required field is skipped, never an abort, and a batch with zero
// transformable records is a valid empty output. The only failure mode is a
// structurally absent profile.
func Transform(raw *RawData, now time.Time) (*models.NormalizedBatch, error) {
	if raw == nil || raw.Profile == nil || raw.Profile.ID == "" {
		return nil, fmt.Errorf("%w: profile missing from extraction output", shared.ErrTransformation)
	}

	b := newBatchBuilder(raw.Profile.ID, now)

	b.batch.Profile = &models.UserProfile{
		UserID:       raw.Profile.ID,
		DisplayName:  raw.Profile.DisplayName,
		Email:        raw.Profile.Email,
		Country:      raw.Profile.Country,
		Followers:    max(raw.Profile.Followers.Total, 0),
		AccountType:  accountType(raw.Profile.Product),
		ETLTimestamp: now,
	}

	for _, tr := range models.TimeRanges {
		for i, track := range raw.TopTracks[tr] {
			trackID, ok := b.addTrack(track)
			if !ok {
				continue
			}
			b.batch.Rankings = append(b.batch.Rankings, models.TopTrackRanking{
				UserID:      b.userID,
				TrackID:     trackID,
				TimeRange:   tr,
				Rank:        i + 1,
				RetrievedAt: now,
			})
		}
	}

	for _, item := range raw.Recent {
		playedAt, err := time.Parse(time.RFC3339, item.PlayedAt)
		if err != nil {
			b.batch.DroppedCount++
			continue
		}

		trackID, ok := b.addTrack(item.Track)
		if !ok {
			continue
		}

		contextType := "recently_played"
		if item.Context != nil && item.Context.Type != "" {
			contextType = item.Context.Type
		}

		b.batch.Events = append(b.batch.Events, models.ListeningEvent{
			UserID:      b.userID,
			TrackID:     trackID,
			PlayedAt:    playedAt.UTC(),
			ContextType: contextType,
		})
	}

	return b.batch, nil
}

// batchBuilder accumulates normalized entities, deduplicating reference
// entities within the batch and preserving first-sighting order.
type batchBuilder struct {
	batch  *models.NormalizedBatch
	userID string

	seenArtists map[string]struct{}
	seenAlbums  map[string]struct{}
	seenTracks  map[string]struct{}
}

func newBatchBuilder(userID string, now time.Time) *batchBuilder {
	return &batchBuilder{
		batch:       &models.NormalizedBatch{ProcessedAt: now},
		userID:      userID,
		seenArtists: make(map[string]struct{}),
		seenAlbums:  make(map[string]struct{}),
		seenTracks:  make(map[string]struct{}),
	}
}

// addTrack normalizes one raw track and its nested artist and album,
// registering whichever reference entities have not been seen yet. Returns
// the track ID and false when the record is malformed (counted as dropped).
func (b *batchBuilder) addTrack(raw services.SpotifyTrack) (string, bool) {
	if raw.ID == "" || len(raw.Artists) == 0 || raw.Artists[0].ID == "" || raw.DurationMS <= 0 {
		b.batch.DroppedCount++
		return "", false
	}

	artist := raw.Artists[0]
	b.addArtist(artist)

	albumID := raw.Album.ID
	if albumID != "" {
		// The album's own primary artist may differ from the track's; it
		// has to exist before the album row is written.
		albumArtist := artist
		if len(raw.Album.Artists) > 0 && raw.Album.Artists[0].ID != "" {
			albumArtist = raw.Album.Artists[0]
			b.addArtist(albumArtist)
		}

		if _, seen := b.seenAlbums[albumID]; !seen {
			b.seenAlbums[albumID] = struct{}{}
			b.batch.Albums = append(b.batch.Albums, models.Album{
				AlbumID:  albumID,
				Name:     raw.Album.Name,
				ArtistID: albumArtist.ID,
			})
		}
	}

	if _, seen := b.seenTracks[raw.ID]; !seen {
		b.seenTracks[raw.ID] = struct{}{}

		previewURL := ""
		if raw.PreviewURL != nil {
			previewURL = *raw.PreviewURL
		}

		b.batch.Tracks = append(b.batch.Tracks, models.Track{
			TrackID:    raw.ID,
			Name:       raw.Name,
			ArtistID:   artist.ID,
			AlbumID:    albumID,
			DurationMS: raw.DurationMS,
			Popularity: clampPopularity(raw.Popularity),
			Explicit:   raw.Explicit,
			PreviewURL: previewURL,
		})
	}

	return raw.ID, true
}

func (b *batchBuilder) addArtist(artist services.SpotifyArtist) {
	if _, seen := b.seenArtists[artist.ID]; seen {
		return
	}
	b.seenArtists[artist.ID] = struct{}{}
	b.batch.Artists = append(b.batch.Artists, models.Artist{
		ArtistID: artist.ID,
		Name:     artist.Name,
	})
}

func accountType(product string) string {
	if product == "" {
		return "free"
	}
	return product
}

func clampPopularity(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
