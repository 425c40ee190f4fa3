package http

import (
	"fmt"
	"time"

	"sortify/internal/core"
)

// Request bodies for the session API.

type sortRequest struct {
	TrackID    string `json:"trackId"`
	PlaylistID string `json:"playlistId"`
}

type trackRequest struct {
	TrackID string `json:"trackId"`
}

type undoRequest struct {
	EntryID int `json:"entryId"`
}

type selectRequest struct {
	PlaylistIDs []string `json:"playlistIds"`
}

type createPlaylistRequest struct {
	Name string `json:"name"`
}

type sortOrderRequest struct {
	Key       string `json:"key"`
	Direction string `json:"direction"`
}

// filtersRequest is the wire form of core.Filters. Dates travel as RFC 3339
// strings; empty strings mean unbounded.
type filtersRequest struct {
	MinDate          string   `json:"minDate,omitempty"`
	MaxDate          string   `json:"maxDate,omitempty"`
	MinPopularity    int      `json:"minPopularity"`
	MaxPopularity    int      `json:"maxPopularity"`
	MinPlaylistCount int      `json:"minPlaylistCount"`
	MaxPlaylistCount int      `json:"maxPlaylistCount"`
	Genres           []string `json:"genres,omitempty"`
	Unlabeled        bool     `json:"unlabeled"`
}

func (r *filtersRequest) toCore() (core.Filters, error) {
	filters := core.Filters{
		MinPopularity:    r.MinPopularity,
		MaxPopularity:    r.MaxPopularity,
		MinPlaylistCount: r.MinPlaylistCount,
		MaxPlaylistCount: r.MaxPlaylistCount,
		Genres:           r.Genres,
		Unlabeled:        r.Unlabeled,
	}

	if r.MinDate != "" {
		parsed, err := time.Parse(time.RFC3339, r.MinDate)
		if err != nil {
			return core.Filters{}, fmt.Errorf("invalid minDate: %w", err)
		}
		filters.MinDate = parsed
	}
	if r.MaxDate != "" {
		parsed, err := time.Parse(time.RFC3339, r.MaxDate)
		if err != nil {
			return core.Filters{}, fmt.Errorf("invalid maxDate: %w", err)
		}
		filters.MaxDate = parsed
	}

	return filters, nil
}

var sortKeyNames = map[string]core.SortKey{
	"title":         core.SortByTitle,
	"artist":        core.SortByArtist,
	"genre":         core.SortByGenre,
	"savedAt":       core.SortBySavedAt,
	"playlistCount": core.SortByPlaylistCount,
	"popularity":    core.SortByPopularity,
}

func parseSortKey(name string) (core.SortKey, error) {
	key, ok := sortKeyNames[name]
	if !ok {
		return 0, fmt.Errorf("unknown sort key %q", name)
	}
	return key, nil
}

func parseSortDirection(name string) (core.SortDirection, error) {
	switch name {
	case "asc":
		return core.Ascending, nil
	case "desc":
		return core.Descending, nil
	default:
		return 0, fmt.Errorf("unknown sort direction %q", name)
	}
}

// Response bodies.

type trackJSON struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Artists       string   `json:"artists"`
	ArtworkURL    string   `json:"artworkUrl,omitempty"`
	Popularity    int      `json:"popularity"`
	SavedAt       string   `json:"savedAt,omitempty"`
	Genres        []string `json:"genres,omitempty"`
	PlaylistCount int      `json:"playlistCount"`
}

type playlistJSON struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Owner      string `json:"owner"`
	TrackTotal int    `json:"trackTotal"`
	ArtworkURL string `json:"artworkUrl,omitempty"`
}

type historyEntryJSON struct {
	ID           int       `json:"id"`
	Track        trackJSON `json:"track"`
	PlaylistID   string    `json:"playlistId"`
	PlaylistName string    `json:"playlistName"`
	SortedAt     time.Time `json:"sortedAt"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// actionResultJSON is the wire form of core.ActionResult.
type actionResultJSON struct {
	OK             bool       `json:"ok"`
	Message        string     `json:"message,omitempty"`
	QueueHead      *trackJSON `json:"queueHead,omitempty"`
	QueueLen       int        `json:"queueLen"`
	ProcessedCount int        `json:"processedCount"`
	HistoryLen     int        `json:"historyLen"`
	SessionExpired bool       `json:"sessionExpired,omitempty"`
	Notice         string     `json:"notice,omitempty"`
	UndoneTrack    *trackJSON `json:"undoneTrack,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
}

func toActionResultJSON(result *core.ActionResult) actionResultJSON {
	out := actionResultJSON{
		OK:             result.OK,
		Message:        result.Message,
		QueueLen:       result.QueueLen,
		ProcessedCount: result.ProcessedCount,
		HistoryLen:     result.HistoryLen,
		SessionExpired: result.SessionExpired,
		Notice:         result.Notice,
		Timestamp:      result.Timestamp,
	}
	if result.QueueHead != nil {
		head := toTrackJSON(result.QueueHead)
		out.QueueHead = &head
	}
	if result.UndoneTrack != nil {
		undone := toTrackJSON(result.UndoneTrack)
		out.UndoneTrack = &undone
	}
	return out
}

func toTrackJSON(t *core.Track) trackJSON {
	out := trackJSON{
		ID:            t.ID,
		Name:          t.Name,
		Artists:       t.Artists,
		ArtworkURL:    t.ArtworkURL,
		Popularity:    t.Popularity,
		Genres:        t.Genres,
		PlaylistCount: t.PlaylistCount,
	}
	if !t.SavedAt.IsZero() {
		out.SavedAt = t.SavedAt.Format(time.RFC3339)
	}
	return out
}

func toPlaylistJSON(p *core.Playlist) playlistJSON {
	return playlistJSON{
		ID:         p.ID,
		Name:       p.Name,
		Owner:      p.Owner,
		TrackTotal: p.TrackTotal,
		ArtworkURL: p.ArtworkURL,
	}
}

func toHistoryJSON(entries []core.HistoryEntry) []historyEntryJSON {
	out := make([]historyEntryJSON, 0, len(entries))
	for i := range entries {
		entry := &entries[i]
		out = append(out, historyEntryJSON{
			ID:           entry.ID,
			Track:        toTrackJSON(&entry.Track),
			PlaylistID:   entry.PlaylistID,
			PlaylistName: entry.PlaylistName,
			SortedAt:     entry.SortedAt,
		})
	}
	return out
}

func toQueueJSON(tracks []core.Track) []trackJSON {
	out := make([]trackJSON, 0, len(tracks))
	for i := range tracks {
		out = append(out, toTrackJSON(&tracks[i]))
	}
	return out
}
