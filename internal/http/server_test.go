package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"sortify/internal/core"
)

type mockSession struct {
	result      core.ActionResult
	startErr    error
	selectErr   error
	queue       []core.Track
	history     []core.HistoryEntry
	startedWith []core.Playlist
	lastAction  string
}

func (m *mockSession) Start(_ context.Context, selected []core.Playlist) error {
	m.lastAction = "start"
	m.startedWith = selected
	return m.startErr
}

func (m *mockSession) Sort(trackID, playlistID string) core.ActionResult {
	m.lastAction = "sort:" + trackID + ":" + playlistID
	return m.result
}

func (m *mockSession) Skip(trackID string) core.ActionResult {
	m.lastAction = "skip:" + trackID
	return m.result
}

func (m *mockSession) SkipTo(trackID string) core.ActionResult {
	m.lastAction = "skipto:" + trackID
	return m.result
}

func (m *mockSession) Undo(_ context.Context, id int) core.ActionResult {
	m.lastAction = fmt.Sprintf("undo:%d", id)
	return m.result
}

func (m *mockSession) SetFilters(filters core.Filters) core.ActionResult {
	m.lastAction = fmt.Sprintf("filters:%d", filters.MinPopularity)
	return m.result
}

func (m *mockSession) SetSort(key core.SortKey, direction core.SortDirection) core.ActionResult {
	m.lastAction = fmt.Sprintf("sortorder:%d:%d", key, direction)
	return m.result
}

func (m *mockSession) SelectPlaylists(_ context.Context, selected []core.Playlist) error {
	m.lastAction = "select"
	m.startedWith = selected
	return m.selectErr
}

func (m *mockSession) Queue() []core.Track          { return m.queue }
func (m *mockSession) History() []core.HistoryEntry { return m.history }
func (m *mockSession) State() core.ActionResult     { return m.result }

type mockDirectory struct {
	playlists []core.Playlist
	err       error
	created   string
}

func (m *mockDirectory) Playlists(context.Context) ([]core.Playlist, error) {
	return m.playlists, m.err
}

func (m *mockDirectory) CreatePlaylist(_ context.Context, name string) (*core.Playlist, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.created = name
	return &core.Playlist{ID: "new", Name: name}, nil
}

type mockAuth struct {
	url         string
	callbackErr error
	expired     bool
}

func (m *mockAuth) AuthURL() (string, error)           { return m.url, nil }
func (m *mockAuth) HandleCallback(*http.Request) error { return m.callbackErr }
func (m *mockAuth) MarkExpired()                       { m.expired = true }

type mockPrefs struct {
	bindings map[string]string
}

func (m *mockPrefs) SelectedTrackIDs() ([]string, error)       { return nil, nil }
func (m *mockPrefs) SaveSelectedTrackIDs([]string) error       { return nil }
func (m *mockPrefs) Filters() (*core.Filters, error)           { return nil, nil }
func (m *mockPrefs) SaveFilters(*core.Filters) error           { return nil }
func (m *mockPrefs) KeyBindings() (map[string]string, error)   { return m.bindings, nil }
func (m *mockPrefs) SaveKeyBindings(b map[string]string) error { m.bindings = b; return nil }

// The metrics registry is process-global, so one server instance backs every
// subtest.
func TestServer(t *testing.T) {
	session := &mockSession{}
	directory := &mockDirectory{}
	authMock := &mockAuth{url: "https://accounts.spotify.com/authorize?state=x"}
	prefsMock := &mockPrefs{}

	server := NewServer(
		&core.ServerConfig{Host: "127.0.0.1", Port: 0},
		session,
		directory,
		authMock,
		prefsMock,
		zap.NewNop(),
	)
	handler := server.Handler()

	reset := func() {
		*session = mockSession{result: core.ActionResult{OK: true, QueueLen: 2, Timestamp: time.Now()}}
		*directory = mockDirectory{playlists: []core.Playlist{
			{ID: "p1", Name: "Chill", Owner: "me", TrackTotal: 10},
			{ID: "p2", Name: "Workout", Owner: "me", TrackTotal: 5},
		}}
		*authMock = mockAuth{url: "https://accounts.spotify.com/authorize?state=x"}
		*prefsMock = mockPrefs{}
	}

	do := func(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
		t.Helper()

		var payload bytes.Buffer
		if body != nil {
			if err := json.NewEncoder(&payload).Encode(body); err != nil {
				t.Fatalf("Failed to encode body: %v", err)
			}
		}

		req := httptest.NewRequest(method, path, &payload)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	decodeResult := func(t *testing.T, rec *httptest.ResponseRecorder) actionResultJSON {
		t.Helper()

		var result actionResultJSON
		if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
			t.Fatalf("Failed to decode result: %v (%s)", err, rec.Body.String())
		}
		return result
	}

	t.Run("health endpoints", func(t *testing.T) {
		reset()
		for _, path := range []string{"/healthz", "/readyz"} {
			if rec := do(t, http.MethodGet, path, nil); rec.Code != http.StatusOK {
				t.Errorf("%s should answer 200, got %d", path, rec.Code)
			}
		}
	})

	t.Run("login redirects to the authorize URL", func(t *testing.T) {
		reset()
		rec := do(t, http.MethodGet, "/auth/login", nil)
		if rec.Code != http.StatusFound {
			t.Fatalf("Expected redirect, got %d", rec.Code)
		}
		if got := rec.Header().Get("Location"); got != authMock.url {
			t.Errorf("Redirect target mismatch: %q", got)
		}
	})

	t.Run("callback rejects a failed exchange", func(t *testing.T) {
		reset()
		authMock.callbackErr = fmt.Errorf("state mismatch")
		if rec := do(t, http.MethodGet, "/auth/callback?code=x&state=y", nil); rec.Code != http.StatusBadRequest {
			t.Errorf("Failed callback should answer 400, got %d", rec.Code)
		}
	})

	t.Run("sort dispatches to the session", func(t *testing.T) {
		reset()
		rec := do(t, http.MethodPost, "/api/session/sort", sortRequest{TrackID: "t1", PlaylistID: "p1"})
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if session.lastAction != "sort:t1:p1" {
			t.Errorf("Session received %q", session.lastAction)
		}
		if result := decodeResult(t, rec); !result.OK || result.QueueLen != 2 {
			t.Errorf("Result mismatch: %+v", result)
		}
	})

	t.Run("rejected actions answer 409", func(t *testing.T) {
		reset()
		session.result = core.ActionResult{OK: false, Message: "Track is already in this playlist"}
		rec := do(t, http.MethodPost, "/api/session/sort", sortRequest{TrackID: "t1", PlaylistID: "p1"})
		if rec.Code != http.StatusConflict {
			t.Errorf("Rejected sort should answer 409, got %d", rec.Code)
		}
	})

	t.Run("expired session answers 401", func(t *testing.T) {
		reset()
		session.result = core.ActionResult{OK: false, SessionExpired: true}
		rec := do(t, http.MethodPost, "/api/session/skip", trackRequest{TrackID: "t1"})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("Expired session should answer 401, got %d", rec.Code)
		}
	})

	t.Run("undo carries the entry id", func(t *testing.T) {
		reset()
		rec := do(t, http.MethodPost, "/api/session/undo", undoRequest{EntryID: 7})
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if session.lastAction != "undo:7" {
			t.Errorf("Session received %q", session.lastAction)
		}
	})

	t.Run("filters parse dates and reject garbage", func(t *testing.T) {
		reset()
		rec := do(t, http.MethodPost, "/api/session/filters", filtersRequest{
			MinDate:       "2024-01-01T00:00:00Z",
			MinPopularity: 10,
			MaxPopularity: 90,
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d (%s)", rec.Code, rec.Body.String())
		}
		if session.lastAction != "filters:10" {
			t.Errorf("Session received %q", session.lastAction)
		}

		rec = do(t, http.MethodPost, "/api/session/filters", filtersRequest{MinDate: "yesterday"})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Bad date should answer 400, got %d", rec.Code)
		}
	})

	t.Run("sort order validates key and direction", func(t *testing.T) {
		reset()
		rec := do(t, http.MethodPost, "/api/session/sortorder", sortOrderRequest{Key: "popularity", Direction: "desc"})
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}

		rec = do(t, http.MethodPost, "/api/session/sortorder", sortOrderRequest{Key: "mood", Direction: "desc"})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Unknown sort key should answer 400, got %d", rec.Code)
		}
	})

	t.Run("select starts the session once then reselects", func(t *testing.T) {
		reset()
		server.mutex.Lock()
		server.started = false
		server.mutex.Unlock()

		rec := do(t, http.MethodPost, "/api/session/select", selectRequest{PlaylistIDs: []string{"p1", "p2"}})
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d (%s)", rec.Code, rec.Body.String())
		}
		if session.lastAction != "start" {
			t.Errorf("First select should start the session, got %q", session.lastAction)
		}
		if len(session.startedWith) != 2 || session.startedWith[0].Name != "Chill" {
			t.Errorf("Selected playlists should be resolved from the directory: %+v", session.startedWith)
		}

		rec = do(t, http.MethodPost, "/api/session/select", selectRequest{PlaylistIDs: []string{"p2"}})
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if session.lastAction != "select" {
			t.Errorf("Second select should swap the selection, got %q", session.lastAction)
		}
	})

	t.Run("select rejects unknown playlist ids", func(t *testing.T) {
		reset()
		rec := do(t, http.MethodPost, "/api/session/select", selectRequest{PlaylistIDs: []string{"ghost"}})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Unknown playlist id should answer 400, got %d", rec.Code)
		}
	})

	t.Run("playlists lists the directory", func(t *testing.T) {
		reset()
		rec := do(t, http.MethodGet, "/api/session/playlists", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}

		var got []playlistJSON
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("Failed to decode: %v", err)
		}
		if len(got) != 2 || got[0].ID != "p1" {
			t.Errorf("Directory mismatch: %+v", got)
		}
	})

	t.Run("create playlist requires a name", func(t *testing.T) {
		reset()
		rec := do(t, http.MethodPost, "/api/session/playlists", createPlaylistRequest{Name: "Focus"})
		if rec.Code != http.StatusCreated {
			t.Fatalf("Expected 201, got %d", rec.Code)
		}
		if directory.created != "Focus" {
			t.Errorf("Directory received %q", directory.created)
		}

		rec = do(t, http.MethodPost, "/api/session/playlists", createPlaylistRequest{})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Empty name should answer 400, got %d", rec.Code)
		}
	})

	t.Run("upstream unauthorized marks the grant expired", func(t *testing.T) {
		reset()
		directory.err = fmt.Errorf("fetch: %w", core.ErrUnauthorized)
		rec := do(t, http.MethodGet, "/api/session/playlists", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("Unauthorized upstream should answer 401, got %d", rec.Code)
		}
		if !authMock.expired {
			t.Error("The auth provider should be told the grant is dead")
		}
	})

	t.Run("upstream rate limit answers 429", func(t *testing.T) {
		reset()
		directory.err = fmt.Errorf("fetch: %w", core.ErrRateLimited)
		if rec := do(t, http.MethodGet, "/api/session/playlists", nil); rec.Code != http.StatusTooManyRequests {
			t.Errorf("Rate limited upstream should answer 429, got %d", rec.Code)
		}
	})

	t.Run("queue and history render", func(t *testing.T) {
		reset()
		session.queue = []core.Track{{ID: "t1", Name: "Song", SavedAt: time.Now()}}
		session.history = []core.HistoryEntry{{ID: 1, Track: core.Track{ID: "t1"}, PlaylistID: "p1", PlaylistName: "Chill"}}

		rec := do(t, http.MethodGet, "/api/session/queue", nil)
		var queue []trackJSON
		if err := json.Unmarshal(rec.Body.Bytes(), &queue); err != nil || len(queue) != 1 {
			t.Errorf("Queue render failed: %v (%s)", err, rec.Body.String())
		}

		rec = do(t, http.MethodGet, "/api/session/history", nil)
		var history []historyEntryJSON
		if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil || len(history) != 1 {
			t.Errorf("History render failed: %v (%s)", err, rec.Body.String())
		}
	})

	t.Run("key bindings round trip", func(t *testing.T) {
		reset()
		bindings := map[string]string{"skip": "s", "undo": "u"}
		rec := do(t, http.MethodPut, "/api/prefs/keybindings", bindings)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}

		rec = do(t, http.MethodGet, "/api/prefs/keybindings", nil)
		var got map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("Failed to decode: %v", err)
		}
		if got["skip"] != "s" || got["undo"] != "u" {
			t.Errorf("Bindings mismatch: %v", got)
		}
	})

	t.Run("malformed bodies answer 400", func(t *testing.T) {
		reset()
		req := httptest.NewRequest(http.MethodPost, "/api/session/sort", bytes.NewBufferString("{nope"))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Malformed body should answer 400, got %d", rec.Code)
		}
	})
}
