package directory

import (
	"context"

	"sortify/internal/core"
)

// Service binds the cache to the live catalog: reads go through the cache,
// playlist creation invalidates it so the new playlist is visible on the
// next read.
type Service struct {
	cache   *Cache
	catalog core.CatalogAPI
	key     string
}

func NewService(cache *Cache, catalog core.CatalogAPI, key string) *Service {
	return &Service{
		cache:   cache,
		catalog: catalog,
		key:     key,
	}
}

func (s *Service) Playlists(ctx context.Context) ([]core.Playlist, error) {
	return s.cache.Get(ctx, s.key, s.catalog.Playlists)
}

func (s *Service) CreatePlaylist(ctx context.Context, name string) (*core.Playlist, error) {
	playlist, err := s.catalog.CreatePlaylist(ctx, name)
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(s.key)
	return playlist, nil
}
