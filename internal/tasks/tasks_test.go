package tasks

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/desertthunder/spindle/internal/models"
	"github.com/desertthunder/spindle/internal/services"
	"github.com/desertthunder/spindle/internal/shared"
	tu "github.com/desertthunder/spindle/internal/testing"
)

func testETLConfig() shared.ETLConfig {
	return shared.ETLConfig{
		LookbackDays:  7,
		RetryAttempts: 3,
		TopTrackLimit: 20,
		RecentLimit:   50,
	}
}

func happyMock() *tu.MockService {
	return &tu.MockService{
		ProfileFn: func(ctx context.Context) (*services.SpotifyUser, error) {
			return &services.SpotifyUser{ID: "u1", DisplayName: "User", Product: "premium"}, nil
		},
		TopTracksFn: func(ctx context.Context, timeRange models.TimeRange, limit int) ([]services.SpotifyTrack, error) {
			return []services.SpotifyTrack{rawTrack("t_"+string(timeRange), "a1")}, nil
		},
		RecentlyPlayedFn: func(ctx context.Context, limit int) ([]services.SpotifyPlayedItem, error) {
			// Stable within a day so replayed runs produce the same event key.
			playedAt := time.Now().UTC().Truncate(24 * time.Hour)
			return []services.SpotifyPlayedItem{
				{Track: rawTrack("t_recent", "a1"), PlayedAt: playedAt.Format(time.RFC3339)},
			}, nil
		},
	}
}

func TestETLEngine(t *testing.T) {
	logger := shared.NewLogger(io.Discard)
	ctx := context.Background()

	t.Run("Successful Run", func(t *testing.T) {
		db := setupTaskDB(t)
		engine := NewETLEngine(happyMock(), db, testETLConfig(), logger)

		progress := make(chan ProgressUpdate, 16)
		summary, err := engine.Run(ctx, progress)
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}

		if summary.State != StateDone {
			t.Errorf("expected DONE, got %s", summary.State)
		}
		if summary.Retries != 0 {
			t.Errorf("expected no retries, got %d", summary.Retries)
		}
		if summary.Extracted.TopTracks != 3 || summary.Extracted.Recent != 1 {
			t.Errorf("unexpected extraction counts: %+v", summary.Extracted)
		}
		if summary.Load == nil || !summary.Load.OK() {
			t.Errorf("expected a clean load report: %+v", summary.Load)
		}
		if summary.Quality == nil || !summary.Quality.Passed() {
			t.Errorf("expected quality checks to pass: %+v", summary.Quality)
		}
		if summary.FinishedAt.Before(summary.StartedAt) {
			t.Error("expected finish after start")
		}

		close(progress)
		var phases []Phase
		for update := range progress {
			phases = append(phases, update.Phase)
		}
		if len(phases) == 0 {
			t.Fatal("expected progress updates")
		}
		if phases[0] != PhaseExtract {
			t.Errorf("expected first phase extract, got %s", phases[0])
		}
		if phases[len(phases)-1] != PhaseDone {
			t.Errorf("expected last phase done, got %s", phases[len(phases)-1])
		}
	})

	t.Run("Run Is Idempotent Across Days", func(t *testing.T) {
		db := setupTaskDB(t)
		engine := NewETLEngine(happyMock(), db, testETLConfig(), logger)

		if _, err := engine.Run(ctx, nil); err != nil {
			t.Fatalf("first run failed: %v", err)
		}
		if _, err := engine.Run(ctx, nil); err != nil {
			t.Fatalf("second run failed: %v", err)
		}

		var events int
		if err := db.QueryRow("SELECT COUNT(*) FROM listening_history").Scan(&events); err != nil {
			t.Fatalf("failed to count events: %v", err)
		}
		if events != 1 {
			t.Errorf("expected replayed event to deduplicate, got %d rows", events)
		}

		var snapshots int
		if err := db.QueryRow("SELECT COUNT(DISTINCT retrieved_at) FROM top_tracks").Scan(&snapshots); err != nil {
			t.Fatalf("failed to count snapshots: %v", err)
		}
		if snapshots != 2 {
			t.Errorf("expected 2 distinct snapshots, got %d", snapshots)
		}
	})

	t.Run("Auth Failure Is Fatal With Zero Retries", func(t *testing.T) {
		db := setupTaskDB(t)
		mock := happyMock()
		mock.ProfileFn = func(ctx context.Context) (*services.SpotifyUser, error) {
			return nil, &services.APIError{StatusCode: 401, Message: "The access token expired"}
		}

		engine := NewETLEngine(mock, db, testETLConfig(), logger)
		summary, err := engine.Run(ctx, nil)

		if !errors.Is(err, shared.ErrAuth) {
			t.Fatalf("expected ErrAuth, got %v", err)
		}
		if summary.State != StateFailed {
			t.Errorf("expected FAILED, got %s", summary.State)
		}
		if summary.Retries != 0 {
			t.Errorf("auth failures must not be retried, got %d retries", summary.Retries)
		}
	})

	t.Run("Transient Failures Retried Then Succeed", func(t *testing.T) {
		db := setupTaskDB(t)
		mock := happyMock()
		calls := 0
		mock.ProfileFn = func(ctx context.Context) (*services.SpotifyUser, error) {
			calls++
			if calls <= 2 {
				return nil, &services.APIError{StatusCode: 503, Message: "service unavailable"}
			}
			return &services.SpotifyUser{ID: "u1"}, nil
		}

		engine := NewETLEngine(mock, db, testETLConfig(), logger)
		engine.extractor.initialInterval = time.Millisecond

		summary, err := engine.Run(ctx, nil)
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if summary.State != StateDone {
			t.Errorf("expected DONE after retries, got %s", summary.State)
		}
		if summary.Retries != 2 {
			t.Errorf("expected 2 retries, got %d", summary.Retries)
		}
	})

	t.Run("Dial Failures Retried Then Succeed", func(t *testing.T) {
		db := setupTaskDB(t)
		mock := happyMock()
		calls := 0
		mock.ProfileFn = func(ctx context.Context) (*services.SpotifyUser, error) {
			calls++
			if calls == 1 {
				return nil, &url.Error{
					Op:  "Get",
					URL: "http://localhost:1/me",
					Err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connect: connection refused")},
				}
			}
			return &services.SpotifyUser{ID: "u1"}, nil
		}

		engine := NewETLEngine(mock, db, testETLConfig(), logger)
		engine.extractor.initialInterval = time.Millisecond

		summary, err := engine.Run(ctx, nil)
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if summary.State != StateDone {
			t.Errorf("expected DONE after retry, got %s", summary.State)
		}
		if summary.Retries != 1 {
			t.Errorf("expected 1 retry for the dial failure, got %d", summary.Retries)
		}
		if calls != 2 {
			t.Errorf("expected 2 profile calls, got %d", calls)
		}
	})

	t.Run("Retries Exhausted Fails The Run", func(t *testing.T) {
		db := setupTaskDB(t)
		mock := happyMock()
		mock.RecentlyPlayedFn = func(ctx context.Context, limit int) ([]services.SpotifyPlayedItem, error) {
			return nil, &services.APIError{StatusCode: 429, Message: "rate limited"}
		}

		engine := NewETLEngine(mock, db, testETLConfig(), logger)
		engine.extractor.initialInterval = time.Millisecond

		summary, err := engine.Run(ctx, nil)
		if !errors.Is(err, shared.ErrExtraction) {
			t.Fatalf("expected ErrExtraction, got %v", err)
		}
		if summary.State != StateFailed {
			t.Errorf("expected FAILED, got %s", summary.State)
		}
		if summary.Retries != 2 {
			t.Errorf("expected attempts-1 retries, got %d", summary.Retries)
		}
	})

	t.Run("Non-Auth Client Errors Abort Immediately", func(t *testing.T) {
		db := setupTaskDB(t)
		mock := happyMock()
		mock.ProfileFn = func(ctx context.Context) (*services.SpotifyUser, error) {
			return nil, &services.APIError{StatusCode: 400, Message: "bad request"}
		}

		engine := NewETLEngine(mock, db, testETLConfig(), logger)
		summary, err := engine.Run(ctx, nil)

		if !errors.Is(err, shared.ErrExtraction) {
			t.Fatalf("expected ErrExtraction, got %v", err)
		}
		if summary.Retries != 0 {
			t.Errorf("permanent client errors must not be retried, got %d retries", summary.Retries)
		}
	})

	t.Run("Single Active Run", func(t *testing.T) {
		db := setupTaskDB(t)
		engine := NewETLEngine(happyMock(), db, testETLConfig(), logger)

		engine.running.Store(true)
		_, err := engine.Run(ctx, nil)
		if !errors.Is(err, shared.ErrRunActive) {
			t.Fatalf("expected ErrRunActive, got %v", err)
		}
		engine.running.Store(false)

		if _, err := engine.Run(ctx, nil); err != nil {
			t.Errorf("expected engine to be reusable after release: %v", err)
		}
	})

	t.Run("Cancelled Context Fails The Run", func(t *testing.T) {
		db := setupTaskDB(t)
		engine := NewETLEngine(happyMock(), db, testETLConfig(), logger)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		summary, err := engine.Run(cancelled, nil)
		if err == nil {
			t.Fatal("expected error for cancelled context")
		}
		if summary.State != StateFailed {
			t.Errorf("expected FAILED, got %s", summary.State)
		}
	})

	t.Run("Unclassified Errors Map To ErrPipeline", func(t *testing.T) {
		db := setupTaskDB(t)
		mock := happyMock()
		mock.ProfileFn = func(ctx context.Context) (*services.SpotifyUser, error) {
			return &services.SpotifyUser{}, nil
		}

		engine := NewETLEngine(mock, db, testETLConfig(), logger)
		summary, err := engine.Run(ctx, nil)

		if !errors.Is(err, shared.ErrTransformation) {
			t.Fatalf("expected ErrTransformation for missing profile id, got %v", err)
		}
		if summary.State != StateFailed {
			t.Errorf("expected FAILED, got %s", summary.State)
		}
	})
}

func TestRunStates(t *testing.T) {
	cases := []struct {
		state RunState
		name  string
	}{
		{StateIdle, "IDLE"},
		{StateExtracting, "EXTRACTING"},
		{StateTransforming, "TRANSFORMING"},
		{StateLoading, "LOADING"},
		{StateChecking, "CHECKING"},
		{StateDone, "DONE"},
		{StateFailed, "FAILED"},
	}
	for _, c := range cases {
		if c.state.String() != c.name {
			t.Errorf("state %d = %s, want %s", c.state, c.state.String(), c.name)
		}
	}

	if StateLoading.Terminal() {
		t.Error("LOADING is not terminal")
	}
	if !StateDone.Terminal() || !StateFailed.Terminal() {
		t.Error("DONE and FAILED are terminal")
	}
}
