package core

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"sortify/internal/store"
)

// Membership Index
// For every selected playlist this holds the set of liked-track ids it
// contains. An entry exists only after its fetch completed; a missing entry
// means "unknown", never "empty". One playlist failing to load must not take
// the others down, so fetches run independently and partial results are
// flagged rather than discarded.

type MembershipIndex struct {
	sets         map[string]*store.TrackSet
	names        map[string]string
	mutex        sync.RWMutex
	allSucceeded bool
}

// BuildMembershipIndex fetches, per playlist, the de-duplicated set of track
// ids restricted to likedIDs. Fetches run concurrently; a failed playlist is
// left out of the index and AllSucceeded reports false.
func BuildMembershipIndex(
	ctx context.Context,
	catalog CatalogAPI,
	playlists []Playlist,
	likedIDs map[string]struct{},
	cfg *AppConfig,
	logger *zap.Logger,
) *MembershipIndex {
	idx := &MembershipIndex{
		sets:         make(map[string]*store.TrackSet, len(playlists)),
		names:        make(map[string]string, len(playlists)),
		allSucceeded: true,
	}

	var wg sync.WaitGroup
	for _, playlist := range playlists {
		wg.Add(1)
		go func(pl Playlist) {
			defer wg.Done()

			trackIDs, err := catalog.PlaylistTrackIDs(ctx, pl.ID)
			if err != nil {
				logger.Warn("Failed to fetch playlist membership, continuing with others",
					zap.String("playlistID", pl.ID),
					zap.String("playlistName", pl.Name),
					zap.Error(err))
				idx.markFailed()
				return
			}

			members := store.NewTrackSet(cfg.MembershipMaxTracks, cfg.BloomFalsePositiveRate)
			kept := 0
			for _, trackID := range trackIDs {
				if _, liked := likedIDs[trackID]; !liked {
					continue
				}
				members.Add(trackID)
				kept++
			}

			idx.mutex.Lock()
			idx.sets[pl.ID] = members
			idx.names[pl.ID] = pl.Name
			idx.mutex.Unlock()

			logger.Debug("Playlist membership loaded",
				zap.String("playlistID", pl.ID),
				zap.Int("totalTracks", len(trackIDs)),
				zap.Int("likedTracks", kept))
		}(playlist)
	}
	wg.Wait()

	return idx
}

func (idx *MembershipIndex) markFailed() {
	idx.mutex.Lock()
	idx.allSucceeded = false
	idx.mutex.Unlock()
}

// AllSucceeded reports whether every playlist's membership fetch completed.
// Entries that did load stay usable even when this is false.
func (idx *MembershipIndex) AllSucceeded() bool {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()
	return idx.allSucceeded
}

// Known reports whether the playlist's member set was fetched successfully.
func (idx *MembershipIndex) Known(playlistID string) bool {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()
	_, ok := idx.sets[playlistID]
	return ok
}

// Contains answers the duplicate check for one playlist and track.
func (idx *MembershipIndex) Contains(playlistID, trackID string) Membership {
	idx.mutex.RLock()
	members, ok := idx.sets[playlistID]
	idx.mutex.RUnlock()

	if !ok {
		return MembershipUnknown
	}
	if members.Has(trackID) {
		return MemberYes
	}
	return MemberNo
}

// RecordAdd marks trackID as a member of playlistID. Called exactly once per
// mutation outcome, never on a speculative retry, so counts cannot drift.
func (idx *MembershipIndex) RecordAdd(playlistID, trackID string) {
	idx.mutex.RLock()
	members, ok := idx.sets[playlistID]
	idx.mutex.RUnlock()

	if ok {
		members.Add(trackID)
	}
}

// RecordRemove reverses a RecordAdd for an undone or failed mutation.
func (idx *MembershipIndex) RecordRemove(playlistID, trackID string) {
	idx.mutex.RLock()
	members, ok := idx.sets[playlistID]
	idx.mutex.RUnlock()

	if ok {
		members.Remove(trackID)
	}
}

// CountFor returns in how many successfully-loaded playlists trackID appears.
func (idx *MembershipIndex) CountFor(trackID string) int {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	count := 0
	for _, members := range idx.sets {
		if members.Has(trackID) {
			count++
		}
	}
	return count
}

// PlaylistName returns the display name recorded for a loaded playlist.
func (idx *MembershipIndex) PlaylistName(playlistID string) string {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()
	return idx.names[playlistID]
}
