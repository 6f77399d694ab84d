// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/desertthunder/spindle/internal/models"
	"github.com/desertthunder/spindle/internal/services"
	"golang.org/x/oauth2"
)

// MockService is a configurable test double for [services.Service]. Each
// hook, when set, overrides the zero-value default.
type MockService struct {
	AuthenticateFn   func(ctx context.Context, token *oauth2.Token) error
	ProfileFn        func(ctx context.Context) (*services.SpotifyUser, error)
	TopTracksFn      func(ctx context.Context, timeRange models.TimeRange, limit int) ([]services.SpotifyTrack, error)
	RecentlyPlayedFn func(ctx context.Context, limit int) ([]services.SpotifyPlayedItem, error)
}

func (m *MockService) Authenticate(ctx context.Context, token *oauth2.Token) error {
	if m.AuthenticateFn != nil {
		return m.AuthenticateFn(ctx, token)
	}
	return nil
}

func (m *MockService) Profile(ctx context.Context) (*services.SpotifyUser, error) {
	if m.ProfileFn != nil {
		return m.ProfileFn(ctx)
	}
	return &services.SpotifyUser{ID: "mock_user"}, nil
}

func (m *MockService) TopTracks(ctx context.Context, timeRange models.TimeRange, limit int) ([]services.SpotifyTrack, error) {
	if m.TopTracksFn != nil {
		return m.TopTracksFn(ctx, timeRange, limit)
	}
	return nil, nil
}

func (m *MockService) RecentlyPlayed(ctx context.Context, limit int) ([]services.SpotifyPlayedItem, error) {
	if m.RecentlyPlayedFn != nil {
		return m.RecentlyPlayedFn(ctx, limit)
	}
	return nil, nil
}

func (m *MockService) Name() string { return "mock" }

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
