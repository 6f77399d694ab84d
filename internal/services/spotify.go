// Spotify API implementation of [Service]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/desertthunder/spindle/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	// maxPageLimit is the provider's cap on the limit parameter.
	maxPageLimit = 50
)

type followers struct {
	Total int `json:"total"`
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	Country     string    `json:"country"`
	Product     string    `json:"product"` // premium, free, etc.
	Followers   followers `json:"followers"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []SpotifyArtist `json:"artists"`
	ReleaseDate string          `json:"release_date"`
	URI         string          `json:"uri"`
}

// SpotifyTrack represents a Spotify track with its nested artist and album objects.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      SpotifyAlbum    `json:"album"`
	DurationMS int             `json:"duration_ms"`
	Explicit   bool            `json:"explicit"`
	Popularity int             `json:"popularity"`
	PreviewURL *string         `json:"preview_url"`
	URI        string          `json:"uri"`
}

type playContext struct {
	Type string `json:"type"` // album, artist, playlist
	URI  string `json:"uri"`
}

// SpotifyPlayedItem represents one entry of the recently-played listing.
type SpotifyPlayedItem struct {
	Track    SpotifyTrack `json:"track"`
	PlayedAt string       `json:"played_at"`
	Context  *playContext `json:"context"`
}

// SpotifyPaginatedTracks represents a paginated top-tracks response.
type SpotifyPaginatedTracks struct {
	Items  []SpotifyTrack `json:"items"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
	Next   *string        `json:"next"`
}

type recentCursors struct {
	Before string `json:"before"`
	After  string `json:"after"`
}

// SpotifyRecentlyPlayed represents the cursor-paginated recently-played response.
type SpotifyRecentlyPlayed struct {
	Items   []SpotifyPlayedItem `json:"items"`
	Cursors *recentCursors      `json:"cursors"`
	Next    *string             `json:"next"`
}

// SpotifyService implements the [Service] interface for Spotify API interactions.
//
// Uses [oauth2] for authentication (with transparent token refresh through
// the configured token source) and [rate.Limiter] to keep paginated
// extraction inside the provider's request budget.
type SpotifyService struct {
	config      *oauth2.Config
	tokenSource oauth2.TokenSource
	httpClient  *http.Client
	limiter     *rate.Limiter
	baseURL     string
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
func NewSpotifyService(credentials map[string]string) (*SpotifyService, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("missing client_id in credentials")
	}

	clientSecret, ok := credentials["client_secret"]
	if !ok || clientSecret == "" {
		return nil, fmt.Errorf("missing client_secret in credentials")
	}

	redirectURI, ok := credentials["redirect_uri"]
	if !ok || redirectURI == "" {
		redirectURI = "http://localhost:8080/callback"
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes: []string{
			"user-read-private",
			"user-read-email",
			"user-top-read",
			"user-read-recently-played",
			"user-library-read",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	return &SpotifyService{
		config:     config,
		httpClient: http.DefaultClient,
		limiter:    rate.NewLimiter(rate.Limit(5), 1),
		baseURL:    spotifyBaseURL,
	}, nil
}

// SetRateLimit overrides the default request budget (requests per second).
func (s *SpotifyService) SetRateLimit(rps float64) {
	if rps > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// Authenticate installs the given token. Requests made afterwards refresh it
// transparently via the config's token source when it expires.
func (s *SpotifyService) Authenticate(ctx context.Context, token *oauth2.Token) error {
	if token == nil || (token.AccessToken == "" && token.RefreshToken == "") {
		return fmt.Errorf("missing access or refresh token")
	}
	s.tokenSource = s.config.TokenSource(ctx, token)
	s.httpClient = oauth2.NewClient(ctx, s.tokenSource)
	return nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// GetAuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// GetOAuthConfig exposes the OAuth2 config for the callback server.
func (s *SpotifyService) GetOAuthConfig() *oauth2.Config {
	return s.config
}

// Token returns the current (possibly refreshed) token so callers can
// persist it, or nil when not authenticated.
func (s *SpotifyService) Token() *oauth2.Token {
	if s.tokenSource == nil {
		return nil
	}
	token, err := s.tokenSource.Token()
	if err != nil {
		return nil
	}
	return token
}

// doRequest performs an authenticated, rate-limited GET against the Spotify API.
func (s *SpotifyService) doRequest(ctx context.Context, endpoint string, result any) error {
	if s.tokenSource == nil {
		return fmt.Errorf("not authenticated: call Authenticate first")
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter interrupted: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Message: apiMessage(body)}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// apiMessage pulls the error message out of Spotify's {"error":{"message":...}} envelope.
func apiMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	return envelope.Error.Message
}

// Profile retrieves the current authenticated user's profile.
func (s *SpotifyService) Profile(ctx context.Context) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.doRequest(ctx, "/me", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// TopTracks retrieves the user's top tracks for one time range, following
// offset pagination until limit items are collected.
func (s *SpotifyService) TopTracks(ctx context.Context, timeRange models.TimeRange, limit int) ([]SpotifyTrack, error) {
	if !timeRange.Valid() {
		return nil, fmt.Errorf("invalid time range: %q", timeRange)
	}
	if limit <= 0 {
		limit = 20
	}

	var tracks []SpotifyTrack
	offset := 0

	for len(tracks) < limit {
		pageSize := min(limit-len(tracks), maxPageLimit)
		endpoint := fmt.Sprintf("/me/top/tracks?time_range=%s&limit=%d&offset=%d",
			url.QueryEscape(string(timeRange)), pageSize, offset)

		var page SpotifyPaginatedTracks
		if err := s.doRequest(ctx, endpoint, &page); err != nil {
			return nil, err
		}

		tracks = append(tracks, page.Items...)
		if page.Next == nil || len(page.Items) == 0 {
			break
		}
		offset += len(page.Items)
	}

	return tracks, nil
}

// RecentlyPlayed retrieves the user's listening history, most recent first,
// following the cursor pagination until limit items are collected.
func (s *SpotifyService) RecentlyPlayed(ctx context.Context, limit int) ([]SpotifyPlayedItem, error) {
	if limit <= 0 {
		limit = maxPageLimit
	}

	var items []SpotifyPlayedItem
	before := ""

	for len(items) < limit {
		pageSize := min(limit-len(items), maxPageLimit)
		endpoint := fmt.Sprintf("/me/player/recently-played?limit=%d", pageSize)
		if before != "" {
			endpoint += "&before=" + url.QueryEscape(before)
		}

		var page SpotifyRecentlyPlayed
		if err := s.doRequest(ctx, endpoint, &page); err != nil {
			return nil, err
		}

		items = append(items, page.Items...)
		if page.Next == nil || page.Cursors == nil || page.Cursors.Before == "" || len(page.Items) == 0 {
			break
		}
		before = page.Cursors.Before
	}

	return items, nil
}
