// Package prefs persists user preferences across restarts in a local SQLite
// database: the track selection, the queue filters and the key bindings.
package prefs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"sortify/internal/core"
)

const (
	keySelectedTracks = "selected_track_ids"
	keyFilters        = "filters"
	keyKeyBindings    = "key_bindings"
)

const schema = `
CREATE TABLE IF NOT EXISTS preferences (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// Store is a SQLite-backed core.PreferenceStore. Values are stored as JSON
// under fixed keys; a corrupt value is logged and treated as absent rather
// than failing the caller.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewStore(config *core.PrefsConfig, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open preference database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize preference schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SelectedTrackIDs() ([]string, error) {
	var ids []string
	if _, err := s.load(keySelectedTracks, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) SaveSelectedTrackIDs(ids []string) error {
	return s.save(keySelectedTracks, ids)
}

func (s *Store) Filters() (*core.Filters, error) {
	var filters core.Filters
	found, err := s.load(keyFilters, &filters)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &filters, nil
}

func (s *Store) SaveFilters(f *core.Filters) error {
	if f == nil {
		return fmt.Errorf("nil filters")
	}
	return s.save(keyFilters, f)
}

func (s *Store) KeyBindings() (map[string]string, error) {
	var bindings map[string]string
	if _, err := s.load(keyKeyBindings, &bindings); err != nil {
		return nil, err
	}
	return bindings, nil
}

func (s *Store) SaveKeyBindings(bindings map[string]string) error {
	return s.save(keyKeyBindings, bindings)
}

// load unmarshals the stored value for key into out. Returns false when no
// usable value exists; a corrupt row counts as absent, not as a failure.
func (s *Store) load(key string, out interface{}) (bool, error) {
	var raw string
	err := s.db.QueryRow(`SELECT value FROM preferences WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read preference %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		s.logger.Warn("Corrupt preference value, falling back to default",
			zap.String("key", key),
			zap.Error(err))
		return false, nil
	}
	return true, nil
}

func (s *Store) save(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode preference %s: %w", key, err)
	}

	_, err = s.db.Exec(`
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, string(raw))
	if err != nil {
		return fmt.Errorf("failed to write preference %s: %w", key, err)
	}
	return nil
}
