package directory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"sortify/internal/core"
)

func testCache(t *testing.T) (*Cache, *time.Time) {
	t.Helper()

	cfg := &core.CacheConfig{
		DirectoryTTL:      30 * time.Second,
		RateLimitCooldown: 60 * time.Second,
		MaxEntries:        4,
	}
	cache, err := NewCache(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}

	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	return cache, &now
}

func fixedFetch(calls *atomic.Int32, playlists []core.Playlist, err error) FetchFunc {
	return func(context.Context) ([]core.Playlist, error) {
		calls.Add(1)
		return playlists, err
	}
}

func TestCache_ServesFreshEntryWithoutFetching(t *testing.T) {
	cache, now := testCache(t)
	directory := []core.Playlist{{ID: "p1", Name: "Chill"}}

	var calls atomic.Int32
	fetch := fixedFetch(&calls, directory, nil)

	for i := 0; i < 3; i++ {
		got, err := cache.Get(context.Background(), "me", fetch)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if len(got) != 1 || got[0].ID != "p1" {
			t.Fatalf("Unexpected directory: %v", got)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("Repeated reads inside the TTL should fetch once, got %d", calls.Load())
	}

	// Past the TTL, the next read refreshes.
	*now = now.Add(31 * time.Second)
	if _, err := cache.Get(context.Background(), "me", fetch); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("A read past the TTL should refetch, got %d calls", calls.Load())
	}
}

func TestCache_CoalescesConcurrentFetches(t *testing.T) {
	cache, _ := testCache(t)

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context) ([]core.Playlist, error) {
		calls.Add(1)
		<-release
		return []core.Playlist{{ID: "p1"}}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Get(context.Background(), "me", fetch); err != nil {
				t.Errorf("Get failed: %v", err)
			}
		}()
	}

	// Let the goroutines pile onto the in-flight fetch before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("Concurrent reads should share one fetch, got %d", calls.Load())
	}
}

func TestCache_ServesStaleOnRateLimit(t *testing.T) {
	cache, now := testCache(t)
	directory := []core.Playlist{{ID: "p1", Name: "Chill"}}

	var calls atomic.Int32
	if _, err := cache.Get(context.Background(), "me", fixedFetch(&calls, directory, nil)); err != nil {
		t.Fatalf("Seed fetch failed: %v", err)
	}

	// The entry goes stale, and the refresh hits a rate limit: the stale
	// entry is served instead of an error.
	*now = now.Add(time.Minute)
	limited := fixedFetch(&calls, nil, fmt.Errorf("fetch: %w", core.ErrRateLimited))

	got, err := cache.Get(context.Background(), "me", limited)
	if err != nil {
		t.Fatalf("Get should fall back to the stale entry, got %v", err)
	}
	if len(got) != 1 || got[0].ID != "p1" {
		t.Errorf("Stale directory expected, got %v", got)
	}

	// The cooldown is now active: further reads serve stale without fetching.
	before := calls.Load()
	if _, err := cache.Get(context.Background(), "me", limited); err != nil {
		t.Fatalf("Get during cooldown failed: %v", err)
	}
	if calls.Load() != before {
		t.Error("No fetch should happen during the cooldown")
	}

	// After the cooldown a real refresh is attempted again.
	*now = now.Add(2 * time.Minute)
	fresh := []core.Playlist{{ID: "p2", Name: "New"}}
	got, err = cache.Get(context.Background(), "me", fixedFetch(&calls, fresh, nil))
	if err != nil {
		t.Fatalf("Get after cooldown failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "p2" {
		t.Errorf("Fresh directory expected after cooldown, got %v", got)
	}
}

func TestCache_RateLimitWithoutStaleEntryFails(t *testing.T) {
	cache, _ := testCache(t)

	var calls atomic.Int32
	limited := fixedFetch(&calls, nil, fmt.Errorf("fetch: %w", core.ErrRateLimited))

	if _, err := cache.Get(context.Background(), "me", limited); !core.IsRateLimited(err) {
		t.Errorf("With nothing cached the rate limit should surface, got %v", err)
	}

	// The cooldown still engages, so the next read does not fetch either.
	before := calls.Load()
	if _, err := cache.Get(context.Background(), "me", limited); !core.IsRateLimited(err) {
		t.Errorf("Cooldown reads without a stale entry should fail, got %v", err)
	}
	if calls.Load() != before {
		t.Error("No fetch should happen during the cooldown")
	}
}

func TestCache_InvalidateForcesRefetch(t *testing.T) {
	cache, _ := testCache(t)

	var calls atomic.Int32
	fetch := fixedFetch(&calls, []core.Playlist{{ID: "p1"}}, nil)

	if _, err := cache.Get(context.Background(), "me", fetch); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	cache.Invalidate("me")

	if _, err := cache.Get(context.Background(), "me", fetch); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("Invalidate should force a refetch, got %d calls", calls.Load())
	}
}

func TestService_CreateInvalidates(t *testing.T) {
	cache, _ := testCache(t)
	catalog := &stubCatalog{playlists: []core.Playlist{{ID: "p1", Name: "Chill"}}}
	service := NewService(cache, catalog, "me")

	if _, err := service.Playlists(context.Background()); err != nil {
		t.Fatalf("Playlists failed: %v", err)
	}

	created, err := service.CreatePlaylist(context.Background(), "Focus")
	if err != nil {
		t.Fatalf("CreatePlaylist failed: %v", err)
	}

	catalog.playlists = append(catalog.playlists, *created)

	got, err := service.Playlists(context.Background())
	if err != nil {
		t.Fatalf("Playlists failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("The created playlist should be visible immediately, got %d entries", len(got))
	}
}

type stubCatalog struct {
	playlists []core.Playlist
}

func (s *stubCatalog) LikedTracks(context.Context) ([]core.Track, error) { return nil, nil }

func (s *stubCatalog) Playlists(context.Context) ([]core.Playlist, error) {
	return append([]core.Playlist{}, s.playlists...), nil
}

func (s *stubCatalog) PlaylistTrackIDs(context.Context, string) ([]string, error) {
	return nil, nil
}

func (s *stubCatalog) AddToPlaylist(context.Context, string, string) error { return nil }

func (s *stubCatalog) RemoveFromPlaylist(context.Context, string, string) error { return nil }

func (s *stubCatalog) CreatePlaylist(_ context.Context, name string) (*core.Playlist, error) {
	return &core.Playlist{ID: "created", Name: name}, nil
}
