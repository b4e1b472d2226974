// notes/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/ViniZap4/lumi-notes/auth"
	"github.com/ViniZap4/lumi-notes/config"
	httphandlers "github.com/ViniZap4/lumi-notes/http"
	"github.com/ViniZap4/lumi-notes/hub"
	"github.com/ViniZap4/lumi-notes/session"
	"github.com/ViniZap4/lumi-notes/store"
	"github.com/ViniZap4/lumi-notes/store/filesystem"
	"github.com/ViniZap4/lumi-notes/store/memory"
	"github.com/ViniZap4/lumi-notes/store/mongodb"
	"github.com/ViniZap4/lumi-notes/store/postgres"
	"github.com/ViniZap4/lumi-notes/syncer"
)

func main() {
	configPath := flag.String("config", os.Getenv("LUMI_CONFIG"), "path to a YAML config file")
	flag.Parse()

	// A missing .env is fine; a broken one is not.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error: loading .env: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	backend, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.Store.Backend, err)
	}
	defer backend.Close()

	h := hub.New()
	h.SetLogger(logger)
	go h.Run(ctx)

	sessions := session.NewManager(backend, h,
		syncer.WithNamespace(cfg.Store.Namespace),
		syncer.WithWriteTimeout(cfg.Sync.WriteTimeout),
		syncer.WithQueueSize(cfg.Sync.QueueSize),
		syncer.WithLogger(logger),
	)
	sessions.SetLogger(logger)
	defer sessions.Close()

	credentials := auth.NewService(backend,
		auth.WithBcryptCost(cfg.Auth.BcryptCost),
		auth.WithLegacyNameIdentity(cfg.Auth.LegacyNameIdentity),
		auth.WithServiceLogger(logger),
	)
	tokens := auth.NewTokens([]byte(cfg.Auth.JWTSecret))

	server := httphandlers.NewServer(credentials, tokens, sessions, h, httphandlers.Config{
		TokenTTL:  cfg.Auth.TokenTTL,
		KeepAlive: cfg.Server.KeepAlive,
		Logger:    logger,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.Server.Addr).
			Str("store", cfg.Store.Backend).
			Str("namespace", cfg.Store.Namespace).
			Msg("server starting")
		errCh <- server.Listen(cfg.Server.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger zerolog.Logger) (store.Backend, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		s := memory.New()
		s.SetLogger(logger)
		return s, nil
	case config.BackendFilesystem:
		s, err := filesystem.Open(cfg.Root)
		if err != nil {
			return nil, err
		}
		s.SetLogger(logger)
		return s, nil
	case config.BackendPostgres:
		s, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s.SetLogger(logger)
		return s, nil
	case config.BackendMongoDB:
		s, err := mongodb.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		s.SetLogger(logger)
		return s, nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Format == "json" {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return logger.Level(level).With().Timestamp().Logger()
}
