package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/pavel-fokin/filehub/internal/config"
	"github.com/pavel-fokin/filehub/internal/events"
	"github.com/pavel-fokin/filehub/internal/files"
	"github.com/pavel-fokin/filehub/internal/fs"
	"github.com/pavel-fokin/filehub/internal/sqlite"
)

// app holds the wired service and whatever needs closing afterwards
type app struct {
	cfg      *config.Config
	service  *files.Service
	registry *fs.CachedRegistry
	closers  []func() error
}

func setupLogger(level string) {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
}

func newApp(cfg *config.Config) (*app, error) {
	settings, err := cfg.Settings()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(settings.RootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root dir: %w", err)
	}

	a := &app{cfg: cfg}

	store := fs.NewRegistry(settings.RootDir, cfg.RegistryFile, cfg.RegistryRequired)
	a.registry = fs.NewCachedRegistry(store)

	indexer, err := fs.NewIndexer(cfg.IndexExclude)
	if err != nil {
		return nil, err
	}

	var tickets files.TicketRepository
	if cfg.CallbackAPIBase != "" {
		repo, err := sqlite.NewRepository(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize repository: %w", err)
		}
		a.closers = append(a.closers, repo.Close)
		tickets = repo
	}

	a.service = files.NewService(a.registry, indexer, tickets, settings, cfg.HmacKey, cfg.TicketTTL)

	if cfg.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, pub.Close)
		a.service.SetPublisher(pub)
	}

	slog.Info("FileHub configured",
		"root_dir", settings.RootDir,
		"registry", store.Path(),
		"callback", cfg.CallbackAPIBase != "")
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Error("Failed to close resource", "error", err)
		}
	}
}
