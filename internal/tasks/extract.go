package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/spindle/internal/models"
	"github.com/desertthunder/spindle/internal/services"
	"github.com/desertthunder/spindle/internal/shared"
)

// RawData is the extraction stage's output: provider-shaped records, in the
// order the API returned them, untouched by any transformation.
type RawData struct {
	Profile   *services.SpotifyUser
	TopTracks map[models.TimeRange][]services.SpotifyTrack
	Recent    []services.SpotifyPlayedItem
}

// Extractor pulls the run's raw records from the provider.
//
// Transient failures (5xx, 429, timeouts) are retried with bounded
// exponential backoff; auth failures (401/403) and other 4xx responses are
// permanent and abort immediately.
type Extractor struct {
	svc           services.Service
	attempts      int
	topTrackLimit int
	recentLimit   int

	// initialInterval seeds the exponential backoff; tests shrink it.
	initialInterval time.Duration

	logger *log.Logger
}

// NewExtractor creates an Extractor around the given provider service.
func NewExtractor(svc services.Service, cfg shared.ETLConfig, logger *log.Logger) *Extractor {
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 3
	}
	topLimit := cfg.TopTrackLimit
	if topLimit <= 0 {
		topLimit = 20
	}
	recentLimit := cfg.RecentLimit
	if recentLimit <= 0 {
		recentLimit = 50
	}

	return &Extractor{
		svc:             svc,
		attempts:        attempts,
		topTrackLimit:   topLimit,
		recentLimit:     recentLimit,
		initialInterval: time.Second,
		logger:          logger,
	}
}

// Extract fetches profile, top tracks for every time range, and recently
// played events. Returns the raw data, the number of retries spent, and the
// first fatal error encountered.
func (x *Extractor) Extract(ctx context.Context) (*RawData, int, error) {
	raw := &RawData{TopTracks: make(map[models.TimeRange][]services.SpotifyTrack, len(models.TimeRanges))}
	retries := 0

	err := x.fetch(ctx, "profile", &retries, func() error {
		profile, err := x.svc.Profile(ctx)
		if err != nil {
			return err
		}
		raw.Profile = profile
		return nil
	})
	if err != nil {
		return nil, retries, err
	}

	for _, tr := range models.TimeRanges {
		tr := tr
		err := x.fetch(ctx, fmt.Sprintf("top_tracks_%s", tr), &retries, func() error {
			tracks, err := x.svc.TopTracks(ctx, tr, x.topTrackLimit)
			if err != nil {
				return err
			}
			raw.TopTracks[tr] = tracks
			return nil
		})
		if err != nil {
			return nil, retries, err
		}
	}

	err = x.fetch(ctx, "recently_played", &retries, func() error {
		items, err := x.svc.RecentlyPlayed(ctx, x.recentLimit)
		if err != nil {
			return err
		}
		raw.Recent = items
		return nil
	})
	if err != nil {
		return nil, retries, err
	}

	return raw, retries, nil
}

// fetch runs one API operation under the retry policy, classifying errors
// into the pipeline taxonomy. Auth failures get zero retries.
func (x *Extractor) fetch(ctx context.Context, name string, retries *int, fn func() error) error {
	op := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if services.IsAuthError(err) {
			return backoff.Permanent(fmt.Errorf("%w: %v", shared.ErrAuth, err))
		}
		if services.IsTransientError(err) {
			return fmt.Errorf("%w: %v", shared.ErrExtraction, err)
		}
		// Non-auth 4xx and anything unclassifiable: not worth retrying.
		return backoff.Permanent(fmt.Errorf("%w: %v", shared.ErrExtraction, err))
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = x.initialInterval

	notify := func(err error, wait time.Duration) {
		*retries++
		x.logger.Warn("retrying extraction", "op", name, "wait", wait, "error", err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(x.attempts-1)), ctx)
	return backoff.RetryNotify(op, policy, notify)
}
