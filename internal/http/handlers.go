package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"sortify/internal/core"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	url, err := s.auth.AuthURL()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.HandleCallback(r); err != nil {
		s.logger.Warn("OAuth callback rejected", zap.Error(err))
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	s.writeResult(w, s.session.State())
}

func (s *Server) handleQueue(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, toQueueJSON(s.session.Queue()))
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, toHistoryJSON(s.session.History()))
}

func (s *Server) handlePlaylists(w http.ResponseWriter, r *http.Request) {
	playlists, err := s.directory.Playlists(r.Context())
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}

	out := make([]playlistJSON, 0, len(playlists))
	for i := range playlists {
		out = append(out, toPlaylistJSON(&playlists[i]))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var req createPlaylistRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("playlist name is required"))
		return
	}

	playlist, err := s.directory.CreatePlaylist(r.Context(), req.Name)
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, toPlaylistJSON(playlist))
}

// handleSelect sets the destination playlist set. The first successful call
// starts the sorting session; later calls swap the selection mid-session.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if !s.decode(w, r, &req) {
		return
	}

	playlists, err := s.resolvePlaylists(r, req.PlaylistIDs)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	s.mutex.Lock()
	started := s.started
	s.mutex.Unlock()

	if !started {
		err = s.session.Start(r.Context(), playlists)
		if err == nil {
			s.mutex.Lock()
			s.started = true
			s.mutex.Unlock()
		}
	} else {
		err = s.session.SelectPlaylists(r.Context(), playlists)
	}
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}

	s.writeResult(w, s.session.State())
}

func (s *Server) resolvePlaylists(r *http.Request, ids []string) ([]core.Playlist, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("at least one playlist id is required")
	}

	directory, err := s.directory.Playlists(r.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve playlist ids: %w", err)
	}

	byID := make(map[string]core.Playlist, len(directory))
	for _, playlist := range directory {
		byID[playlist.ID] = playlist
	}

	resolved := make([]core.Playlist, 0, len(ids))
	for _, id := range ids {
		playlist, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("unknown playlist id %q", id)
		}
		resolved = append(resolved, playlist)
	}
	return resolved, nil
}

func (s *Server) handleSort(w http.ResponseWriter, r *http.Request) {
	var req sortRequest
	if !s.decode(w, r, &req) {
		return
	}

	result := s.session.Sort(req.TrackID, req.PlaylistID)
	if result.OK {
		s.metrics.SortsTotal.WithLabelValues("ok").Inc()
	} else {
		s.metrics.SortsTotal.WithLabelValues("rejected").Inc()
	}
	s.writeResult(w, result)
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if !s.decode(w, r, &req) {
		return
	}

	result := s.session.Skip(req.TrackID)
	if result.OK {
		s.metrics.SkipsTotal.Inc()
	}
	s.writeResult(w, result)
}

func (s *Server) handleSkipTo(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.writeResult(w, s.session.SkipTo(req.TrackID))
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	var req undoRequest
	if !s.decode(w, r, &req) {
		return
	}

	result := s.session.Undo(r.Context(), req.EntryID)
	if result.OK {
		s.metrics.UndosTotal.WithLabelValues("ok").Inc()
	} else {
		s.metrics.UndosTotal.WithLabelValues("failed").Inc()
	}
	s.writeResult(w, result)
}

func (s *Server) handleFilters(w http.ResponseWriter, r *http.Request) {
	var req filtersRequest
	if !s.decode(w, r, &req) {
		return
	}

	filters, err := req.toCore()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeResult(w, s.session.SetFilters(filters))
}

func (s *Server) handleSortOrder(w http.ResponseWriter, r *http.Request) {
	var req sortOrderRequest
	if !s.decode(w, r, &req) {
		return
	}

	key, err := parseSortKey(req.Key)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	direction, err := parseSortDirection(req.Direction)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	s.writeResult(w, s.session.SetSort(key, direction))
}

func (s *Server) handleGetKeyBindings(w http.ResponseWriter, _ *http.Request) {
	bindings, err := s.prefs.KeyBindings()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if bindings == nil {
		bindings = map[string]string{}
	}
	s.writeJSON(w, http.StatusOK, bindings)
}

func (s *Server) handlePutKeyBindings(w http.ResponseWriter, r *http.Request) {
	var bindings map[string]string
	if !s.decode(w, r, &bindings) {
		return
	}

	if err := s.prefs.SaveKeyBindings(bindings); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, bindings)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

// writeResult renders an ActionResult and keeps the gauges in step with it.
// Rejected actions come back 409 so clients can distinguish them from
// transport failures; an expired session comes back 401.
func (s *Server) writeResult(w http.ResponseWriter, result core.ActionResult) {
	s.metrics.QueueSize.Set(float64(result.QueueLen))
	s.metrics.HistoryLen.Set(float64(result.HistoryLen))
	if result.Notice != "" {
		// Notices only carry asynchronous pipeline failures.
		s.metrics.MutationFailuresTotal.Inc()
	}

	status := http.StatusOK
	if !result.OK {
		status = http.StatusConflict
		if result.SessionExpired {
			status = http.StatusUnauthorized
		}
	}

	s.writeJSON(w, status, toActionResultJSON(&result))
}

func (s *Server) writeUpstreamError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	class := "upstream"
	switch {
	case core.IsUnauthorized(err):
		// The grant is dead; drop it so the UI prompts for sign-in.
		s.auth.MarkExpired()
		status = http.StatusUnauthorized
		class = "unauthorized"
	case core.IsRateLimited(err):
		status = http.StatusTooManyRequests
		class = "rate_limited"
	case core.IsTimeout(err):
		status = http.StatusGatewayTimeout
		class = "timeout"
	}
	s.metrics.UpstreamErrorsTotal.WithLabelValues(class).Inc()
	s.writeError(w, status, err)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("Failed to write response", zap.Error(err))
	}
}
