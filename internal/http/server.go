package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"sortify/internal/core"
)

// SessionAPI is the slice of the sorting session the handlers need.
type SessionAPI interface {
	Start(ctx context.Context, selected []core.Playlist) error
	Sort(trackID, playlistID string) core.ActionResult
	Skip(trackID string) core.ActionResult
	SkipTo(trackID string) core.ActionResult
	Undo(ctx context.Context, historyEntryID int) core.ActionResult
	SetFilters(filters core.Filters) core.ActionResult
	SetSort(key core.SortKey, direction core.SortDirection) core.ActionResult
	SelectPlaylists(ctx context.Context, selected []core.Playlist) error
	Queue() []core.Track
	History() []core.HistoryEntry
	State() core.ActionResult
}

// DirectoryAPI serves the playlist directory, cached, and playlist creation.
type DirectoryAPI interface {
	Playlists(ctx context.Context) ([]core.Playlist, error)
	CreatePlaylist(ctx context.Context, name string) (*core.Playlist, error)
}

// AuthAPI is the browser-facing slice of the OAuth provider.
type AuthAPI interface {
	AuthURL() (string, error)
	HandleCallback(r *http.Request) error
	MarkExpired()
}

type Server struct {
	config    *core.ServerConfig
	logger    *zap.Logger
	server    *http.Server
	metrics   *Metrics
	session   SessionAPI
	directory DirectoryAPI
	auth      AuthAPI
	prefs     core.PreferenceStore

	mutex   sync.Mutex
	started bool
}

type Metrics struct {
	SortsTotal            *prometheus.CounterVec
	SkipsTotal            prometheus.Counter
	UndosTotal            *prometheus.CounterVec
	MutationFailuresTotal prometheus.Counter
	UpstreamErrorsTotal   *prometheus.CounterVec
	QueueSize             prometheus.Gauge
	HistoryLen            prometheus.Gauge
}

func NewServer(
	config *core.ServerConfig,
	session SessionAPI,
	directory DirectoryAPI,
	auth AuthAPI,
	prefs core.PreferenceStore,
	logger *zap.Logger,
) *Server {
	metrics := &Metrics{
		SortsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sortify_sorts_total",
				Help: "Total number of sort actions",
			},
			[]string{"status"},
		),
		SkipsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sortify_skips_total",
				Help: "Total number of skipped tracks",
			},
		),
		UndosTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sortify_undos_total",
				Help: "Total number of undo actions",
			},
			[]string{"status"},
		),
		MutationFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sortify_mutation_failures_total",
				Help: "Total number of failed remote playlist additions",
			},
		),
		UpstreamErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sortify_upstream_errors_total",
				Help: "Total number of upstream failures by class",
			},
			[]string{"class"},
		),
		QueueSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sortify_queue_size",
				Help: "Current number of pending tracks in the sort queue",
			},
		),
		HistoryLen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sortify_history_length",
				Help: "Current number of undoable history entries",
			},
		),
	}

	prometheus.MustRegister(
		metrics.SortsTotal,
		metrics.SkipsTotal,
		metrics.UndosTotal,
		metrics.MutationFailuresTotal,
		metrics.UpstreamErrorsTotal,
		metrics.QueueSize,
		metrics.HistoryLen,
	)

	s := &Server{
		config:    config,
		logger:    logger,
		metrics:   metrics,
		session:   session,
		directory: directory,
		auth:      auth,
		prefs:     prefs,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"sortify"}`))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready","service":"sortify"}`))
	})

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/{$}", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>Sortify</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; }
        .header { color: #333; }
        .endpoint { margin: 10px 0; }
        .endpoint a { text-decoration: none; color: #0066cc; }
        .endpoint a:hover { text-decoration: underline; }
    </style>
</head>
<body>
    <h1 class="header">🎵 Sortify</h1>
    <p>Sort your liked Spotify tracks into playlists.</p>

    <h2>Endpoints</h2>
    <div class="endpoint">🔑 <a href="/auth/login">Sign in</a> - Spotify authorization</div>
    <div class="endpoint">📊 <a href="/metrics">Metrics</a> - Prometheus metrics</div>
    <div class="endpoint">💚 <a href="/healthz">Health</a> - Health check</div>
    <div class="endpoint">✅ <a href="/readyz">Ready</a> - Readiness check</div>
</body>
</html>`))
	})

	mux.HandleFunc("GET /auth/login", s.handleLogin)
	mux.HandleFunc("GET /auth/callback", s.handleCallback)

	mux.HandleFunc("GET /api/session/state", s.handleState)
	mux.HandleFunc("GET /api/session/queue", s.handleQueue)
	mux.HandleFunc("GET /api/session/history", s.handleHistory)
	mux.HandleFunc("GET /api/session/playlists", s.handlePlaylists)
	mux.HandleFunc("POST /api/session/playlists", s.handleCreatePlaylist)
	mux.HandleFunc("POST /api/session/select", s.handleSelect)
	mux.HandleFunc("POST /api/session/sort", s.handleSort)
	mux.HandleFunc("POST /api/session/skip", s.handleSkip)
	mux.HandleFunc("POST /api/session/skipto", s.handleSkipTo)
	mux.HandleFunc("POST /api/session/undo", s.handleUndo)
	mux.HandleFunc("POST /api/session/filters", s.handleFilters)
	mux.HandleFunc("POST /api/session/sortorder", s.handleSortOrder)

	mux.HandleFunc("GET /api/prefs/keybindings", s.handleGetKeyBindings)
	mux.HandleFunc("PUT /api/prefs/keybindings", s.handlePutKeyBindings)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      mux,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return s
}

// Handler exposes the configured mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

func (s *Server) SetQueueSize(size int) {
	s.metrics.QueueSize.Set(float64(size))
}
