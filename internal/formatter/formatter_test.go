package formatter

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/spindle/internal/models"
	"github.com/desertthunder/spindle/internal/tasks"
)

func sampleSummary() *tasks.RunSummary {
	started := time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC)
	return &tasks.RunSummary{
		RunID:      "run-1234",
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		State:      tasks.StateDone,
		StateName:  "DONE",
		Retries:    1,
		Dropped:    2,
		Extracted:  tasks.ExtractCounts{TopTracks: 60, Recent: 50},
		Load: &tasks.LoadReport{Groups: []tasks.GroupResult{
			{Group: "artists", Attempted: 10, Written: 4},
			{Group: "listening_history", Attempted: 50, Written: 48, Retried: true},
		}},
		Quality: &tasks.QualityReport{
			RanAt:        started.Add(3 * time.Second),
			LookbackDays: 7,
			Checks: []tasks.CheckResult{
				{Name: "user_exists", Passed: true, Value: 1},
				{Name: "recent_tracks_count", Passed: true, Value: 48},
			},
		},
	}
}

func TestFormatRunSummary(t *testing.T) {
	t.Run("Successful Run", func(t *testing.T) {
		out := FormatRunSummary(sampleSummary())

		for _, want := range []string{"run-1234", "DONE", "60 top tracks", "50 recent plays", "artists: 4/10", "(retried)", "user_exists"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected output to contain %q\n%s", want, out)
			}
		}
	})

	t.Run("Failed Run", func(t *testing.T) {
		summary := sampleSummary()
		summary.State = tasks.StateFailed
		summary.StateName = "FAILED"
		summary.Failure = "extraction failed: boom"
		summary.Quality = nil

		out := FormatRunSummary(summary)
		if !strings.Contains(out, "FAILED") {
			t.Errorf("expected FAILED marker:\n%s", out)
		}
		if !strings.Contains(out, "extraction failed: boom") {
			t.Errorf("expected failure message:\n%s", out)
		}
	})
}

func TestFormatQualityReport(t *testing.T) {
	report := &tasks.QualityReport{
		Checks: []tasks.CheckResult{
			{Name: "user_exists", Passed: true, Value: 1},
			{Name: "recent_tracks_count", Passed: false, Message: "no rows in window"},
		},
	}

	out := FormatQualityReport(report)
	if !strings.Contains(out, "user_exists") || !strings.Contains(out, "recent_tracks_count") {
		t.Errorf("expected both checks in output:\n%s", out)
	}
	if !strings.Contains(out, "no rows in window") {
		t.Errorf("expected failure message in output:\n%s", out)
	}
}

func TestFormatRankings(t *testing.T) {
	now := time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC)

	t.Run("With Rankings", func(t *testing.T) {
		out := FormatRankings(models.TimeRangeShort, []models.TopTrackRanking{
			{UserID: "u1", TrackID: "t1", TimeRange: models.TimeRangeShort, Rank: 1, RetrievedAt: now},
			{UserID: "u1", TrackID: "t2", TimeRange: models.TimeRangeShort, Rank: 2, RetrievedAt: now},
		})
		if !strings.Contains(out, "short_term") {
			t.Errorf("expected time range in header:\n%s", out)
		}
		if !strings.Contains(out, "1. t1") || !strings.Contains(out, "2. t2") {
			t.Errorf("expected numbered track list:\n%s", out)
		}
	})

	t.Run("Empty Snapshot", func(t *testing.T) {
		out := FormatRankings(models.TimeRangeLong, nil)
		if !strings.Contains(out, "no snapshot") {
			t.Errorf("expected empty-snapshot note:\n%s", out)
		}
	})
}

func TestHistoryToCSV(t *testing.T) {
	playedAt := time.Date(2025, 5, 31, 22, 15, 0, 0, time.UTC)
	events := []models.ListeningEvent{
		{UserID: "u1", TrackID: "t1", PlayedAt: playedAt, ContextType: "recently_played"},
		{UserID: "u1", TrackID: "t2", PlayedAt: playedAt.Add(time.Minute), ContextType: "playlist"},
	}

	data, err := HistoryToCSV(events)
	if err != nil {
		t.Fatalf("failed to generate CSV: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d lines", len(lines))
	}
	if lines[0] != "user_id,track_id,played_at,context_type" {
		t.Errorf("unexpected header: %s", lines[0])
	}
	if !strings.Contains(lines[1], "2025-05-31T22:15:00Z") {
		t.Errorf("expected RFC3339 timestamp in row: %s", lines[1])
	}
}

func TestWriteHistoryExport(t *testing.T) {
	events := []models.ListeningEvent{
		{UserID: "u1", TrackID: "t1", PlayedAt: time.Now(), ContextType: "recently_played"},
	}

	t.Run("Explicit Path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "export.csv")

		written, err := WriteHistoryExport(events, "u1", path)
		if err != nil {
			t.Fatalf("failed to write export: %v", err)
		}
		if written != path {
			t.Errorf("expected path %s, got %s", path, written)
		}

		content, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read export: %v", err)
		}
		if !strings.Contains(string(content), "t1") {
			t.Error("expected track in exported file")
		}
	})

	t.Run("Default Filename", func(t *testing.T) {
		dir := t.TempDir()
		wd, err := os.Getwd()
		if err != nil {
			t.Fatalf("failed to get working directory: %v", err)
		}
		if err := os.Chdir(dir); err != nil {
			t.Fatalf("failed to change directory: %v", err)
		}
		defer os.Chdir(wd)

		written, err := WriteHistoryExport(events, "u1", "")
		if err != nil {
			t.Fatalf("failed to write export: %v", err)
		}
		if written != "history_u1.csv" {
			t.Errorf("expected default filename history_u1.csv, got %s", written)
		}
	})
}
