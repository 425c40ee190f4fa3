package core

import (
	"context"
	"time"
)

type Track struct {
	ID         string
	Name       string
	Artists    string
	ArtworkURL string
	Popularity int
	SavedAt    time.Time
	Genres     []string
	URI        string

	// PlaylistCount is computed against the membership index of the
	// currently selected playlists, not fetched from upstream.
	PlaylistCount int
}

type Playlist struct {
	ID         string
	Name       string
	Owner      string
	TrackTotal int
	ArtworkURL string
}

// HistoryEntry records one confirmed remote addition. Entries leave the
// history only through an explicit undo.
type HistoryEntry struct {
	ID           int
	Track        Track
	PlaylistID   string
	PlaylistName string
	SortedAt     time.Time
}

type SortKey int

const (
	// SortByTitle orders by track display name
	SortByTitle SortKey = iota
	// SortByArtist orders by the flattened artist display string
	SortByArtist
	// SortByGenre orders by the joined genre tag string
	SortByGenre
	// SortBySavedAt orders by the liked-at timestamp
	SortBySavedAt
	// SortByPlaylistCount orders by selected-playlist membership count
	SortByPlaylistCount
	// SortByPopularity orders by upstream popularity score
	SortByPopularity
)

type SortDirection int

const (
	// Ascending sorts smallest/lowest first
	Ascending SortDirection = iota
	// Descending sorts largest/highest first
	Descending
)

// Filters restricts which liked tracks enter the sort queue. Zero time and
// zero numeric bounds mean "unbounded" on that side, matching the stored
// preference format.
type Filters struct {
	MinDate          time.Time
	MaxDate          time.Time
	MinPopularity    int
	MaxPopularity    int
	MinPlaylistCount int
	MaxPlaylistCount int
	Genres           []string
	Unlabeled        bool
}

// DefaultFilters includes every track: unbounded dates, the full popularity
// range, and no genre restriction.
func DefaultFilters() Filters {
	return Filters{
		MaxPopularity:    100,
		MaxPlaylistCount: -1,
	}
}

// Membership is the three-valued result of a duplicate check. Unknown means
// the playlist's contents were never fetched successfully; consumers must not
// treat it as "not a member".
type Membership int

const (
	// MembershipUnknown means the playlist's member set is not loaded
	MembershipUnknown Membership = iota
	// MemberNo means the track is known to be absent
	MemberNo
	// MemberYes means the track is known to be present
	MemberYes
)

// ActionResult is what every UI-facing session operation returns: enough
// state for the presentation layer to render without reaching into internals.
type ActionResult struct {
	OK             bool      `json:"ok"`
	Message        string    `json:"message,omitempty"`
	QueueHead      *Track    `json:"queueHead,omitempty"`
	QueueLen       int       `json:"queueLen"`
	ProcessedCount int       `json:"processedCount"`
	HistoryLen     int       `json:"historyLen"`
	SessionExpired bool      `json:"sessionExpired,omitempty"`
	Notice         string    `json:"notice,omitempty"`
	UndoneTrack    *Track    `json:"undoneTrack,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

type CatalogAPI interface {
	LikedTracks(ctx context.Context) ([]Track, error)
	Playlists(ctx context.Context) ([]Playlist, error)
	PlaylistTrackIDs(ctx context.Context, playlistID string) ([]string, error)
	AddToPlaylist(ctx context.Context, playlistID, trackID string) error
	RemoveFromPlaylist(ctx context.Context, playlistID, trackID string) error
	CreatePlaylist(ctx context.Context, name string) (*Playlist, error)
}

// PreferenceStore is the durable key-value store surviving restarts. All
// methods are best-effort: callers fall back to defaults on error.
type PreferenceStore interface {
	SelectedTrackIDs() ([]string, error)
	SaveSelectedTrackIDs(ids []string) error
	Filters() (*Filters, error)
	SaveFilters(f *Filters) error
	KeyBindings() (map[string]string, error)
	SaveKeyBindings(bindings map[string]string) error
}
