package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"sortify/internal/i18n"
)

// Sorting Session
// One continuous sorting interaction: a per-track state machine
// (pending -> processed) over the liked-track set, a membership index for
// duplicate prevention, an append-only history for undo, and the mutation
// pipeline for serialized remote writes. All state is owned by this session
// and guarded by one mutex; nothing here is shared across sessions.

type Session struct {
	config    *Config
	catalog   CatalogAPI
	prefs     PreferenceStore
	localizer *i18n.Localizer
	logger    *zap.Logger

	mutex         sync.Mutex
	active        bool
	expired       bool
	liked         []Track
	likedIDs      map[string]struct{}
	selected      []Playlist
	index         *MembershipIndex
	processed     map[string]struct{}
	queue         []Track
	filters       Filters
	sortKey       SortKey
	sortDirection SortDirection
	history       []HistoryEntry
	nextHistoryID int
	notice        string
	pipeline      *MutationPipeline
}

func NewSession(
	config *Config,
	catalog CatalogAPI,
	prefs PreferenceStore,
	localizer *i18n.Localizer,
	logger *zap.Logger,
) *Session {
	s := &Session{
		config:        config,
		catalog:       catalog,
		prefs:         prefs,
		localizer:     localizer,
		logger:        logger,
		processed:     make(map[string]struct{}),
		filters:       DefaultFilters(),
		sortKey:       SortBySavedAt,
		sortDirection: Descending,
		nextHistoryID: 1,
	}
	s.pipeline = NewMutationPipeline(catalog, config.App.MutationQueueSize, logger.Named("pipeline"), s.onMutationDone)
	return s
}

// Start fetches the liked-track set, restores stored preferences, builds the
// membership index for the selected playlists and derives the initial queue.
func (s *Session) Start(ctx context.Context, selected []Playlist) error {
	if len(selected) == 0 {
		return fmt.Errorf("at least one destination playlist is required")
	}
	if len(selected) > s.config.App.MaxSelectedPlaylists {
		return fmt.Errorf("too many destination playlists: %d (max %d)",
			len(selected), s.config.App.MaxSelectedPlaylists)
	}

	liked, err := s.catalog.LikedTracks(ctx)
	if err != nil {
		if IsUnauthorized(err) {
			s.markExpired()
		}
		return fmt.Errorf("failed to fetch liked tracks: %w", err)
	}

	liked = s.applyStoredSelection(liked)
	filters := s.loadStoredFilters()

	likedIDs := make(map[string]struct{}, len(liked))
	for _, track := range liked {
		likedIDs[track.ID] = struct{}{}
	}

	index := BuildMembershipIndex(ctx, s.catalog, selected, likedIDs, &s.config.App, s.logger.Named("membership"))
	if !index.AllSucceeded() {
		s.logger.Warn("Membership index is partial, duplicate checks blocked for unloaded playlists")
	}

	s.mutex.Lock()
	s.active = true
	s.liked = liked
	s.likedIDs = likedIDs
	s.selected = selected
	s.index = index
	s.filters = filters
	s.rebuildQueueLocked()
	s.mutex.Unlock()

	s.logger.Info("Sorting session started",
		zap.Int("likedTracks", len(liked)),
		zap.Int("selectedPlaylists", len(selected)),
		zap.Bool("membershipComplete", index.AllSucceeded()))

	return nil
}

// Run drains the mutation pipeline until ctx is canceled.
func (s *Session) Run(ctx context.Context) error {
	err := s.pipeline.Run(ctx)

	s.mutex.Lock()
	s.active = false
	s.mutex.Unlock()

	return err
}

// applyStoredSelection restricts the liked set to the persisted selected-id
// set. Missing or corrupt preferences fall back to "select all".
func (s *Session) applyStoredSelection(liked []Track) []Track {
	ids, err := s.prefs.SelectedTrackIDs()
	if err != nil {
		s.logger.Warn("Failed to load selected track ids, selecting all", zap.Error(err))
		return liked
	}
	if len(ids) == 0 {
		return liked
	}

	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	selected := make([]Track, 0, len(ids))
	for _, track := range liked {
		if _, ok := wanted[track.ID]; ok {
			selected = append(selected, track)
		}
	}
	if len(selected) == 0 {
		// Stored ids no longer match any liked track; stale prefs.
		return liked
	}
	return selected
}

func (s *Session) loadStoredFilters() Filters {
	stored, err := s.prefs.Filters()
	if err != nil || stored == nil {
		if err != nil {
			s.logger.Warn("Failed to load stored filters, using defaults", zap.Error(err))
		}
		return DefaultFilters()
	}
	return *stored
}

// Sort commits one track to a destination playlist: duplicate checks first,
// then the optimistic local transition, then the queued remote write.
func (s *Session) Sort(trackID, playlistID string) ActionResult {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.expired {
		return s.resultLocked(false, s.localizer.T("error.session_expired"))
	}

	track, ok := s.pendingTrackLocked(trackID)
	if !ok {
		return s.resultLocked(false, s.localizer.T("status.not_pending"))
	}

	switch s.index.Contains(playlistID, trackID) {
	case MembershipUnknown:
		return s.resultLocked(false, s.localizer.T("status.membership_loading"))
	case MemberYes:
		return s.resultLocked(false, s.localizer.T("status.already_member"))
	case MemberNo:
	}

	mutation := PendingMutation{
		Track:        track,
		PlaylistID:   playlistID,
		PlaylistName: s.index.PlaylistName(playlistID),
	}
	if err := s.pipeline.Enqueue(mutation); err != nil {
		s.logger.Warn("Mutation enqueue rejected", zap.Error(err))
		return s.resultLocked(false, s.localizer.T("error.queue_full"))
	}

	// Optimistic half of the contract: local state flips before the remote
	// call resolves. onMutationDone reconciles on failure.
	s.processed[trackID] = struct{}{}
	s.removeFromQueueLocked(trackID)
	s.index.RecordAdd(playlistID, trackID)

	return s.resultLocked(true, "")
}

// Skip marks a track processed with no remote effect and no history entry.
func (s *Session) Skip(trackID string) ActionResult {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.expired {
		return s.resultLocked(false, s.localizer.T("error.session_expired"))
	}

	if _, ok := s.pendingTrackLocked(trackID); !ok {
		return s.resultLocked(false, s.localizer.T("status.not_pending"))
	}

	s.processed[trackID] = struct{}{}
	s.removeFromQueueLocked(trackID)

	return s.resultLocked(true, "")
}

// SkipTo bulk-skips every track ordered before trackID in the current queue.
func (s *Session) SkipTo(trackID string) ActionResult {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.expired {
		return s.resultLocked(false, s.localizer.T("error.session_expired"))
	}

	target := -1
	for i := range s.queue {
		if s.queue[i].ID == trackID {
			target = i
			break
		}
	}
	if target < 0 {
		return s.resultLocked(false, s.localizer.T("status.not_pending"))
	}

	for i := 0; i < target; i++ {
		s.processed[s.queue[i].ID] = struct{}{}
	}
	s.queue = append([]Track{}, s.queue[target:]...)

	return s.resultLocked(true, "")
}

// Undo reverses a confirmed sort: the local state flips back first, then the
// compensating remote removal runs. A failed removal rolls the local reversal
// back so the session never silently desynchronizes from upstream.
func (s *Session) Undo(ctx context.Context, historyEntryID int) ActionResult {
	s.mutex.Lock()

	if s.expired {
		defer s.mutex.Unlock()
		return s.resultLocked(false, s.localizer.T("error.session_expired"))
	}

	position := -1
	for i := range s.history {
		if s.history[i].ID == historyEntryID {
			position = i
			break
		}
	}
	if position < 0 {
		defer s.mutex.Unlock()
		return s.resultLocked(false, s.localizer.T("status.unknown_history"))
	}

	entry := s.history[position]
	s.history = append(s.history[:position], s.history[position+1:]...)
	s.index.RecordRemove(entry.PlaylistID, entry.Track.ID)
	delete(s.processed, entry.Track.ID)
	s.queue = append([]Track{entry.Track}, s.queue...)
	s.mutex.Unlock()

	err := s.catalog.RemoveFromPlaylist(ctx, entry.PlaylistID, entry.Track.ID)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err != nil {
		// Roll the local reversal back: the track stays sorted upstream.
		s.index.RecordAdd(entry.PlaylistID, entry.Track.ID)
		s.processed[entry.Track.ID] = struct{}{}
		s.removeFromQueueLocked(entry.Track.ID)
		s.restoreHistoryLocked(entry, position)

		if IsUnauthorized(err) {
			s.expired = true
			return s.resultLocked(false, s.localizer.T("error.session_expired"))
		}

		s.logger.Error("Compensating removal failed, undo rolled back",
			zap.String("trackID", entry.Track.ID),
			zap.String("playlistID", entry.PlaylistID),
			zap.Error(err))
		return s.resultLocked(false, s.localizer.T("error.undo_failed", entry.Track.Name))
	}

	s.logger.Info("Sort undone",
		zap.String("trackID", entry.Track.ID),
		zap.String("playlistID", entry.PlaylistID))

	result := s.resultLocked(true, "")
	undone := entry.Track
	result.UndoneTrack = &undone
	return result
}

// SetFilters replaces the active filter set, persists it and recomputes the
// queue. Processed tracks stay excluded across the rebuild.
func (s *Session) SetFilters(filters Filters) ActionResult {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.filters = filters
	s.rebuildQueueLocked()

	if err := s.prefs.SaveFilters(&filters); err != nil {
		s.logger.Warn("Failed to persist filters", zap.Error(err))
	}

	return s.resultLocked(true, "")
}

// SetSort replaces the sort key and direction and recomputes the queue.
func (s *Session) SetSort(key SortKey, direction SortDirection) ActionResult {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.sortKey = key
	s.sortDirection = direction
	s.rebuildQueueLocked()

	return s.resultLocked(true, "")
}

// SelectPlaylists swaps the destination playlist set mid-session. The
// membership index is rebuilt; the processed set and history are preserved.
func (s *Session) SelectPlaylists(ctx context.Context, selected []Playlist) error {
	if len(selected) == 0 || len(selected) > s.config.App.MaxSelectedPlaylists {
		return fmt.Errorf("selected playlist count out of range: %d", len(selected))
	}

	s.mutex.Lock()
	likedIDs := s.likedIDs
	s.mutex.Unlock()

	index := BuildMembershipIndex(ctx, s.catalog, selected, likedIDs, &s.config.App, s.logger.Named("membership"))

	s.mutex.Lock()
	s.selected = selected
	s.index = index
	s.rebuildQueueLocked()
	s.mutex.Unlock()

	return nil
}

// Queue returns a snapshot of the visible queue.
func (s *Session) Queue() []Track {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]Track{}, s.queue...)
}

// History returns a snapshot of the sorted history, oldest first.
func (s *Session) History() []HistoryEntry {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]HistoryEntry{}, s.history...)
}

// State returns the current summary without performing any action. A pending
// pipeline failure notice is delivered once and then cleared.
func (s *Session) State() ActionResult {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.resultLocked(true, "")
}

// Expired reports whether the upstream session was invalidated.
func (s *Session) Expired() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.expired
}

// QueueLen reports the current number of pending tracks.
func (s *Session) QueueLen() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.queue)
}

func (s *Session) markExpired() {
	s.mutex.Lock()
	s.expired = true
	s.mutex.Unlock()
}

// onMutationDone reconciles the optimistic transition with the remote
// outcome. Results arriving after the session closed are discarded.
func (s *Session) onMutationDone(result MutationResult) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.active {
		return
	}

	m := result.Mutation
	if result.Err == nil {
		s.history = append(s.history, HistoryEntry{
			ID:           s.nextHistoryID,
			Track:        m.Track,
			PlaylistID:   m.PlaylistID,
			PlaylistName: m.PlaylistName,
			SortedAt:     time.Now(),
		})
		s.nextHistoryID++
		return
	}

	// The remote add failed: reverse the optimistic transition so the track
	// is not lost from the workflow, and surface the failure.
	s.index.RecordRemove(m.PlaylistID, m.Track.ID)
	delete(s.processed, m.Track.ID)
	s.queue = append([]Track{m.Track}, s.queue...)

	switch {
	case IsUnauthorized(result.Err):
		s.expired = true
		s.notice = s.localizer.T("error.session_expired")
	case IsRateLimited(result.Err):
		s.notice = s.localizer.T("error.rate_limited")
	case IsTimeout(result.Err):
		s.notice = s.localizer.T("error.timeout")
	default:
		s.notice = s.localizer.T("error.add_failed", m.Track.Name)
	}
}

func (s *Session) pendingTrackLocked(trackID string) (Track, bool) {
	if _, done := s.processed[trackID]; done {
		return Track{}, false
	}
	for i := range s.queue {
		if s.queue[i].ID == trackID {
			return s.queue[i], true
		}
	}
	return Track{}, false
}

func (s *Session) removeFromQueueLocked(trackID string) {
	for i := range s.queue {
		if s.queue[i].ID == trackID {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

func (s *Session) restoreHistoryLocked(entry HistoryEntry, position int) {
	if position > len(s.history) {
		position = len(s.history)
	}
	s.history = append(s.history, HistoryEntry{})
	copy(s.history[position+1:], s.history[position:])
	s.history[position] = entry
}

func (s *Session) rebuildQueueLocked() {
	countFor := func(string) int { return 0 }
	if s.index != nil {
		countFor = s.index.CountFor
	}
	s.queue = buildQueue(s.liked, s.filters, s.sortKey, s.sortDirection, s.processed, countFor)
}

func (s *Session) resultLocked(ok bool, message string) ActionResult {
	result := ActionResult{
		OK:             ok,
		Message:        message,
		QueueLen:       len(s.queue),
		ProcessedCount: len(s.processed),
		HistoryLen:     len(s.history),
		SessionExpired: s.expired,
		Notice:         s.notice,
		Timestamp:      time.Now(),
	}
	s.notice = ""

	if len(s.queue) > 0 {
		head := s.queue[0]
		result.QueueHead = &head
	}
	return result
}
