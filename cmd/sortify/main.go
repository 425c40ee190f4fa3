// Package main provides the Sortify server entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"sortify/internal/auth"
	"sortify/internal/catalog"
	"sortify/internal/core"
	"sortify/internal/directory"
	httpserver "sortify/internal/http"
	"sortify/internal/i18n"
	"sortify/internal/prefs"
)

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sortify",
	Short: "Sortify - sort your liked Spotify tracks into playlists",
	Long: `Sortify is a personal web service for working through your liked Spotify
tracks one by one and sorting them into your playlists, with duplicate
prevention, undo, and filterable queue ordering.`,
	RunE: runSortify,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("spotify-client-id", "", "Spotify client ID")
	rootCmd.PersistentFlags().String("spotify-client-secret", "", "Spotify client secret")
	rootCmd.PersistentFlags().String("spotify-redirect-url", "", "OAuth redirect URL")
	rootCmd.PersistentFlags().String("spotify-token-path", "", "path for the saved OAuth token")
	rootCmd.PersistentFlags().String("prefs-path", "", "path for the preference database")
	rootCmd.PersistentFlags().Int("server-port", 8080, "HTTP server port")
	rootCmd.PersistentFlags().Int("max-playlists", 5, "maximum selectable destination playlists")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(".env")
		viper.SetConfigType("env")
	}

	viper.SetEnvPrefix("SORTIFY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
			os.Exit(1)
		}
	}

	config = buildConfig()
	logger = buildLogger(config.Log.Level)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	cfg.Spotify.ClientID = viper.GetString("spotify-client-id")
	cfg.Spotify.ClientSecret = viper.GetString("spotify-client-secret")
	if url := viper.GetString("spotify-redirect-url"); url != "" {
		cfg.Spotify.RedirectURL = url
	}
	if path := viper.GetString("spotify-token-path"); path != "" {
		cfg.Spotify.TokenPath = path
	}

	if path := viper.GetString("prefs-path"); path != "" {
		cfg.Prefs.Path = path
	}

	if host := viper.GetString("server-host"); host != "" {
		cfg.Server.Host = host
	}
	if port := viper.GetInt("server-port"); port != 0 {
		cfg.Server.Port = port
	}

	if max := viper.GetInt("max-playlists"); max > 0 {
		cfg.App.MaxSelectedPlaylists = max
	}

	cfg.Log.Level = viper.GetString("log-level")

	return cfg
}

func buildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	builtLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return builtLogger
}

func runSortify(_ *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("Starting Sortify",
		zap.String("version", "1.0.0"))

	if err := validateConfig(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	prefStore, err := prefs.NewStore(&config.Prefs, logger.Named("prefs"))
	if err != nil {
		return fmt.Errorf("failed to open preference store: %w", err)
	}
	defer prefStore.Close()

	transport := catalog.NewTransport(&config.Spotify, logger.Named("transport"))
	authProvider := auth.NewProvider(&config.Spotify, transport, logger.Named("auth"))
	if status := authProvider.Load(); status == auth.StatusAuthenticated {
		logger.Info("Using saved Spotify credentials")
	} else {
		logger.Info("Sign-in required, visit /auth/login to authenticate")
	}

	catalogClient := catalog.NewClient(
		&config.Spotify,
		authProvider.Client(),
		config.App.GenreTagLimit,
		logger.Named("catalog"),
	)

	directoryCache, err := directory.NewCache(&config.Cache, logger.Named("directory"))
	if err != nil {
		return fmt.Errorf("failed to create directory cache: %w", err)
	}
	directoryService := directory.NewService(directoryCache, catalogClient, "me")

	localizer := i18n.NewLocalizer(i18n.DefaultLanguage)

	session := core.NewSession(
		config,
		catalogClient,
		prefStore,
		localizer,
		logger.Named("session"),
	)

	httpServer := httpserver.NewServer(
		&config.Server,
		session,
		directoryService,
		authProvider,
		prefStore,
		logger.Named("http"),
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return httpServer.Start(gCtx)
	})

	g.Go(func() error {
		return session.Run(gCtx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				httpServer.SetQueueSize(session.QueueLen())
			}
		}
	})

	logger.Info("Sortify started successfully",
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)))

	if err := g.Wait(); err != nil {
		logger.Error("Sortify stopped with error", zap.Error(err))
		return err
	}

	logger.Info("Sortify stopped gracefully")
	return nil
}

func validateConfig() error {
	if config.Spotify.ClientID == "" {
		return fmt.Errorf("spotify client ID is required")
	}

	if config.Spotify.ClientSecret == "" {
		return fmt.Errorf("spotify client secret is required")
	}

	if config.App.MaxSelectedPlaylists <= 0 {
		return fmt.Errorf("max selectable playlists must be positive")
	}

	return nil
}
