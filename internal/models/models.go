package models

import (
	"fmt"
	"time"
)

// WritePolicy declares how the loader resolves primary-key conflicts for an
// entity type. Mixing the two up (e.g. treating the user profile as
// insert-once) silently drops updates, so the policy is an explicit tag on
// each entity rather than something inferred from SQL strings.
type WritePolicy int

const (
	// Upsert inserts a row or overwrites its mutable fields when the primary key exists.
	Upsert WritePolicy = iota
	// InsertOnce inserts a row only when the primary key (or natural key) is absent; conflicts are no-ops.
	InsertOnce
	// Append always inserts a new row; there is no conflict key.
	Append
)

func (p WritePolicy) String() string {
	switch p {
	case Upsert:
		return "upsert"
	case InsertOnce:
		return "insert_once"
	case Append:
		return "append"
	default:
		return "unknown"
	}
}

// Entity is implemented by every persistable domain type.
type Entity interface {
	Validate() error     // Validate checks the entity's invariants
	Policy() WritePolicy // Policy returns the conflict-resolution rule for this entity type
}

// TimeRange enumerates the Spotify top-track aggregation windows.
type TimeRange string

const (
	TimeRangeShort  TimeRange = "short_term"  // roughly the last 4 weeks
	TimeRangeMedium TimeRange = "medium_term" // roughly the last 6 months
	TimeRangeLong   TimeRange = "long_term"   // all time
)

// TimeRanges lists all supported windows in retrieval order.
var TimeRanges = []TimeRange{TimeRangeShort, TimeRangeMedium, TimeRangeLong}

// ParseTimeRange normalizes a user-supplied window name ("short",
// "short_term", ...) to a TimeRange.
func ParseTimeRange(s string) (TimeRange, error) {
	switch s {
	case "short", "short_term":
		return TimeRangeShort, nil
	case "medium", "medium_term":
		return TimeRangeMedium, nil
	case "long", "long_term":
		return TimeRangeLong, nil
	default:
		return "", fmt.Errorf("invalid time range: %q", s)
	}
}

func (t TimeRange) Valid() bool {
	return t == TimeRangeShort || t == TimeRangeMedium || t == TimeRangeLong
}

// UserProfile is the account the listening data belongs to. Identity
// (UserID) never changes; every other field is overwritten on each run.
type UserProfile struct {
	UserID       string
	DisplayName  string
	Email        string // optional, empty when the API withholds it
	Country      string // optional
	Followers    int
	AccountType  string // premium, free, etc.
	ETLTimestamp time.Time
}

func (u UserProfile) Validate() error {
	if u.UserID == "" {
		return fmt.Errorf("user profile missing user_id")
	}
	if u.Followers < 0 {
		return fmt.Errorf("user %s has negative follower count", u.UserID)
	}
	return nil
}

func (u UserProfile) Policy() WritePolicy { return Upsert }

// Artist is reference data: created on first sighting, never mutated.
type Artist struct {
	ArtistID string
	Name     string
}

func (a Artist) Validate() error {
	if a.ArtistID == "" {
		return fmt.Errorf("artist missing artist_id")
	}
	return nil
}

func (a Artist) Policy() WritePolicy { return InsertOnce }

// Album is reference data owned by exactly one artist.
type Album struct {
	AlbumID  string
	Name     string
	ArtistID string
}

func (a Album) Validate() error {
	if a.AlbumID == "" {
		return fmt.Errorf("album missing album_id")
	}
	if a.ArtistID == "" {
		return fmt.Errorf("album %s missing artist_id", a.AlbumID)
	}
	return nil
}

func (a Album) Policy() WritePolicy { return InsertOnce }

// Track is reference data. Popularity and preview URL go stale over time;
// history loads never refresh them, only explicit track-refresh operations do.
type Track struct {
	TrackID    string
	Name       string
	ArtistID   string
	AlbumID    string // optional, empty when the source record had no album
	DurationMS int
	Popularity int // 0-100
	Explicit   bool
	PreviewURL string // optional
}

func (t Track) Validate() error {
	if t.TrackID == "" {
		return fmt.Errorf("track missing track_id")
	}
	if t.ArtistID == "" {
		return fmt.Errorf("track %s missing artist_id", t.TrackID)
	}
	if t.DurationMS <= 0 {
		return fmt.Errorf("track %s has non-positive duration", t.TrackID)
	}
	if t.Popularity < 0 || t.Popularity > 100 {
		return fmt.Errorf("track %s popularity %d out of range", t.TrackID, t.Popularity)
	}
	return nil
}

func (t Track) Policy() WritePolicy { return InsertOnce }

// ListeningEvent is an append-only fact. The triple (UserID, TrackID,
// PlayedAt) is the canonical uniqueness key; re-inserting the same event is
// a no-op.
type ListeningEvent struct {
	UserID      string
	TrackID     string
	PlayedAt    time.Time
	ContextType string
}

func (e ListeningEvent) Validate() error {
	if e.UserID == "" || e.TrackID == "" {
		return fmt.Errorf("listening event missing user_id or track_id")
	}
	if e.PlayedAt.IsZero() {
		return fmt.Errorf("listening event for track %s missing played_at", e.TrackID)
	}
	return nil
}

func (e ListeningEvent) Policy() WritePolicy { return InsertOnce }

// TopTrackRanking is one row of a point-in-time ranking snapshot. Snapshots
// are never deduplicated against earlier retrievals.
type TopTrackRanking struct {
	UserID      string
	TrackID     string
	TimeRange   TimeRange
	Rank        int
	RetrievedAt time.Time
}

func (r TopTrackRanking) Validate() error {
	if r.UserID == "" || r.TrackID == "" {
		return fmt.Errorf("ranking missing user_id or track_id")
	}
	if !r.TimeRange.Valid() {
		return fmt.Errorf("ranking for track %s has invalid time range %q", r.TrackID, r.TimeRange)
	}
	if r.Rank < 1 {
		return fmt.Errorf("ranking for track %s has rank %d", r.TrackID, r.Rank)
	}
	return nil
}

func (r TopTrackRanking) Policy() WritePolicy { return Append }

// NormalizedBatch is the transformer's output and the loader's input: one
// run's worth of entities in loadable form. Reference entities are
// deduplicated within the batch and ordered by first sighting.
type NormalizedBatch struct {
	Profile  *UserProfile
	Artists  []Artist
	Albums   []Album
	Tracks   []Track
	Events   []ListeningEvent
	Rankings []TopTrackRanking

	// DroppedCount is the number of malformed source records the
	// transformer skipped. Dropping is per-record and never fails a batch.
	DroppedCount int
	// ProcessedAt is the transform timestamp attached to the profile row.
	ProcessedAt time.Time
}

// Empty reports whether the batch carries no loadable entities beyond the profile.
func (b *NormalizedBatch) Empty() bool {
	return len(b.Artists) == 0 && len(b.Albums) == 0 && len(b.Tracks) == 0 &&
		len(b.Events) == 0 && len(b.Rankings) == 0
}
