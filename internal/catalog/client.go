// Package catalog wraps the Spotify Web API: pagination, timeout, rate-limit
// handling and error normalization for everything the sorting session needs.
package catalog

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/zmb3/spotify/v2"
	"go.uber.org/zap"

	"sortify/internal/core"
)

const (
	// pageLimit is the per-page item count for paginated endpoints
	pageLimit = 50
	// artistBatchSize is the upstream maximum for the artists batch lookup
	artistBatchSize = 50
)

type Client struct {
	config     *core.SpotifyConfig
	logger     *zap.Logger
	api        *spotify.Client
	genreLimit int

	userMutex sync.Mutex
	userID    string
}

// NewClient wraps an authenticated HTTP client. The caller builds httpClient
// through the auth provider so the transport carries the bearer token, the
// request timeout and the rate-limit handling.
func NewClient(config *core.SpotifyConfig, httpClient *http.Client, genreLimit int, logger *zap.Logger) *Client {
	return &Client{
		config:     config,
		logger:     logger,
		api:        spotify.New(httpClient),
		genreLimit: genreLimit,
	}
}

// LikedTracks fetches the full liked-track set, all pages, de-duplicated by
// identifier, with genre tags resolved from each track's primary artist.
func (c *Client) LikedTracks(ctx context.Context) ([]core.Track, error) {
	var tracks []core.Track
	seen := make(map[string]struct{})
	primaryArtists := make(map[string]spotify.ID)

	offset := 0
	for {
		page, err := c.api.CurrentUsersTracks(ctx, spotify.Limit(pageLimit), spotify.Offset(offset))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch liked tracks: %w", normalizeError(err))
		}

		for i := range page.Tracks {
			saved := &page.Tracks[i]
			track := convertSavedTrack(saved)
			if _, dup := seen[track.ID]; dup {
				continue
			}
			seen[track.ID] = struct{}{}
			tracks = append(tracks, track)

			if len(saved.Artists) > 0 && saved.Artists[0].ID != "" {
				primaryArtists[track.ID] = saved.Artists[0].ID
			}
		}

		if len(page.Tracks) < pageLimit {
			break
		}
		offset += pageLimit
	}

	if err := c.attachGenres(ctx, tracks, primaryArtists); err != nil {
		// Genre tags are decoration for filtering; a failed lookup must not
		// sink the whole liked-track fetch.
		c.logger.Warn("Failed to resolve artist genres, tracks stay unlabeled", zap.Error(err))
	}

	c.logger.Info("Fetched liked tracks", zap.Int("count", len(tracks)))
	return tracks, nil
}

// attachGenres batch-resolves primary artists and copies up to genreLimit
// tags onto each track.
func (c *Client) attachGenres(ctx context.Context, tracks []core.Track, primaryArtists map[string]spotify.ID) error {
	unique := make(map[spotify.ID]struct{}, len(primaryArtists))
	for _, artistID := range primaryArtists {
		unique[artistID] = struct{}{}
	}
	if len(unique) == 0 {
		return nil
	}

	ids := make([]spotify.ID, 0, len(unique))
	for artistID := range unique {
		ids = append(ids, artistID)
	}

	genresByArtist := make(map[spotify.ID][]string, len(ids))
	for start := 0; start < len(ids); start += artistBatchSize {
		end := start + artistBatchSize
		if end > len(ids) {
			end = len(ids)
		}

		artists, err := c.api.GetArtists(ctx, ids[start:end]...)
		if err != nil {
			return fmt.Errorf("failed to fetch artist batch: %w", normalizeError(err))
		}
		for _, artist := range artists {
			if artist == nil {
				continue
			}
			genres := artist.Genres
			if len(genres) > c.genreLimit {
				genres = genres[:c.genreLimit]
			}
			genresByArtist[artist.ID] = genres
		}
	}

	for i := range tracks {
		if artistID, ok := primaryArtists[tracks[i].ID]; ok {
			tracks[i].Genres = genresByArtist[artistID]
		}
	}
	return nil
}

// Playlists fetches the user's playlist directory, all pages.
func (c *Client) Playlists(ctx context.Context) ([]core.Playlist, error) {
	var playlists []core.Playlist

	offset := 0
	for {
		page, err := c.api.CurrentUsersPlaylists(ctx, spotify.Limit(pageLimit), spotify.Offset(offset))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch playlists: %w", normalizeError(err))
		}

		for i := range page.Playlists {
			pl := &page.Playlists[i]
			playlist := core.Playlist{
				ID:         string(pl.ID),
				Name:       pl.Name,
				Owner:      pl.Owner.DisplayName,
				TrackTotal: int(pl.Tracks.Total), //nolint:gosec // Spotify playlist counts fit in int
			}
			if len(pl.Images) > 0 {
				playlist.ArtworkURL = pl.Images[0].URL
			}
			playlists = append(playlists, playlist)
		}

		if len(page.Playlists) < pageLimit {
			break
		}
		offset += pageLimit
	}

	c.logger.Debug("Fetched playlist directory", zap.Int("count", len(playlists)))
	return playlists, nil
}

// PlaylistTrackIDs fetches the de-duplicated track ids of one playlist.
// Pages are requested strictly in sequence.
func (c *Client) PlaylistTrackIDs(ctx context.Context, playlistID string) ([]string, error) {
	var trackIDs []string
	seen := make(map[string]struct{})

	offset := 0
	for {
		items, err := c.api.GetPlaylistItems(ctx, spotify.ID(playlistID),
			spotify.Limit(pageLimit), spotify.Offset(offset))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch playlist items: %w", normalizeError(err))
		}

		for i := range items.Items {
			// Only tracks count; episodes and removed items come back nil.
			track := items.Items[i].Track.Track
			if track == nil {
				continue
			}
			id := trackKey(string(track.ID), track.Name, primaryArtistName(track.Artists))
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			trackIDs = append(trackIDs, id)
		}

		if len(items.Items) < pageLimit {
			break
		}
		offset += pageLimit
	}

	c.logger.Debug("Fetched playlist track ids",
		zap.String("playlistID", playlistID),
		zap.Int("count", len(trackIDs)))

	return trackIDs, nil
}

// AddToPlaylist appends one track to a playlist.
func (c *Client) AddToPlaylist(ctx context.Context, playlistID, trackID string) error {
	if _, err := c.api.AddTracksToPlaylist(ctx, spotify.ID(playlistID), spotify.ID(trackID)); err != nil {
		return fmt.Errorf("failed to add track to playlist: %w", normalizeError(err))
	}

	c.logger.Info("Track added to playlist",
		zap.String("trackID", trackID),
		zap.String("playlistID", playlistID))
	return nil
}

// RemoveFromPlaylist removes one track from a playlist (the undo path).
func (c *Client) RemoveFromPlaylist(ctx context.Context, playlistID, trackID string) error {
	if _, err := c.api.RemoveTracksFromPlaylist(ctx, spotify.ID(playlistID), spotify.ID(trackID)); err != nil {
		return fmt.Errorf("failed to remove track from playlist: %w", normalizeError(err))
	}

	c.logger.Info("Track removed from playlist",
		zap.String("trackID", trackID),
		zap.String("playlistID", playlistID))
	return nil
}

// CreatePlaylist creates a private playlist owned by the current user.
func (c *Client) CreatePlaylist(ctx context.Context, name string) (*core.Playlist, error) {
	userID, err := c.currentUserID(ctx)
	if err != nil {
		return nil, err
	}

	created, err := c.api.CreatePlaylistForUser(ctx, userID, name, "", false, false)
	if err != nil {
		return nil, fmt.Errorf("failed to create playlist: %w", normalizeError(err))
	}

	c.logger.Info("Playlist created",
		zap.String("playlistID", string(created.ID)),
		zap.String("name", name))

	return &core.Playlist{
		ID:    string(created.ID),
		Name:  created.Name,
		Owner: created.Owner.DisplayName,
	}, nil
}

func (c *Client) currentUserID(ctx context.Context) (string, error) {
	c.userMutex.Lock()
	defer c.userMutex.Unlock()

	if c.userID != "" {
		return c.userID, nil
	}

	user, err := c.api.CurrentUser(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to fetch current user: %w", normalizeError(err))
	}
	c.userID = user.ID
	return c.userID, nil
}

func convertSavedTrack(saved *spotify.SavedTrack) core.Track {
	artistNames := make([]string, 0, len(saved.Artists))
	for _, artist := range saved.Artists {
		artistNames = append(artistNames, artist.Name)
	}
	primary := primaryArtistName(saved.Artists)

	var savedAt time.Time
	if ts, err := time.Parse(spotify.TimestampLayout, saved.AddedAt); err == nil {
		savedAt = ts
	}

	track := core.Track{
		ID:         trackKey(string(saved.ID), saved.Name, primary),
		Name:       saved.Name,
		Artists:    strings.Join(artistNames, ", "),
		Popularity: saved.Popularity,
		SavedAt:    savedAt,
		URI:        string(saved.URI),
	}
	if len(saved.Album.Images) > 0 {
		track.ArtworkURL = saved.Album.Images[0].URL
	}
	return track
}

// trackKey returns the stable identifier for a track: the upstream id, or a
// synthesized name-artist fallback when upstream omits it. The fallback can
// theoretically collide for two distinct unidentified tracks with the same
// name and artist; accepted limitation.
func trackKey(upstreamID, name, primaryArtist string) string {
	if upstreamID != "" {
		return upstreamID
	}
	return name + "-" + primaryArtist
}

func primaryArtistName(artists []spotify.SimpleArtist) string {
	if len(artists) == 0 {
		return ""
	}
	return artists[0].Name
}
