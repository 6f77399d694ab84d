// package services defines interface Service for read access to a music
// streaming provider's HTTP API.
package services

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/desertthunder/spindle/internal/models"
	"golang.org/x/oauth2"
)

// Service defines the read operations the extraction stage needs from a
// music provider: the authenticated user's profile, their top tracks per
// time range, and their recently played history.
type Service interface {
	// Authenticate installs an OAuth2 token for subsequent requests.
	Authenticate(ctx context.Context, token *oauth2.Token) error

	// Profile retrieves the current authenticated user's profile.
	Profile(ctx context.Context) (*SpotifyUser, error)

	// TopTracks retrieves the user's top tracks for one aggregation window,
	// paginating until limit records are collected or the listing ends.
	TopTracks(ctx context.Context, timeRange models.TimeRange, limit int) ([]SpotifyTrack, error)

	// RecentlyPlayed retrieves the user's listening history, most recent first.
	RecentlyPlayed(ctx context.Context, limit int) ([]SpotifyPlayedItem, error)

	// Name returns the name of the service (e.g., "Spotify")
	Name() string
}

// OAuthService is implemented by services that support the full OAuth2
// authorization-code flow (used by `spindle auth`).
type OAuthService interface {
	Service
	GetAuthURL(state string) string
	GetOAuthConfig() *oauth2.Config
	Token() *oauth2.Token
}

// APIError is a non-2xx provider response, classified by status code so the
// pipeline can decide between fatal abort and bounded retry.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("spotify API error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("spotify API error: status %d: %s", e.StatusCode, e.Message)
}

// IsAuth reports whether the error means credentials are invalid or revoked.
// Auth failures are fatal: retrying without operator intervention cannot succeed.
func (e *APIError) IsAuth() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// IsTransient reports whether the error class is worth retrying (rate
// limiting and server-side failures).
func (e *APIError) IsTransient() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// IsAuthError reports whether err carries an authentication failure from the provider.
func IsAuthError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsAuth()
}

// IsTransientError reports whether err is retryable: a transient provider
// error, a network timeout, a transport failure that never produced a
// response (connection refused, reset), or a cancelled-by-deadline request.
func IsTransientError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsTransient()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
