package core

import (
	"time"
)

type Config struct {
	Spotify SpotifyConfig
	Server  ServerConfig
	Cache   CacheConfig
	Prefs   PrefsConfig
	Log     LogConfig
	App     AppConfig
}

type SpotifyConfig struct {
	ClientID          string
	ClientSecret      string
	RedirectURL       string
	TokenPath         string
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	MaxRetryAfter     time.Duration
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type CacheConfig struct {
	DirectoryTTL      time.Duration
	RateLimitCooldown time.Duration
	MaxEntries        int
}

type PrefsConfig struct {
	Path string
}

type LogConfig struct {
	Level  string
	Format string
}

type AppConfig struct {
	MaxSelectedPlaylists   int
	MutationQueueSize      int
	MembershipMaxTracks    int
	BloomFalsePositiveRate float64
	GenreTagLimit          int
}

func DefaultConfig() *Config {
	return &Config{
		Spotify: SpotifyConfig{
			RedirectURL:       "http://localhost:8080/auth/callback",
			TokenPath:         "./spotify_token.json",
			RequestTimeout:    8 * time.Second,
			RequestsPerSecond: 8,
			MaxRetryAfter:     1500 * time.Millisecond,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Cache: CacheConfig{
			DirectoryTTL:      30 * time.Second,
			RateLimitCooldown: 60 * time.Second,
			MaxEntries:        32,
		},
		Prefs: PrefsConfig{
			Path: "./sortify_prefs.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		App: AppConfig{
			MaxSelectedPlaylists:   5,
			MutationQueueSize:      64,
			MembershipMaxTracks:    20000,
			BloomFalsePositiveRate: 0.001,
			GenreTagLimit:          3,
		},
	}
}
