package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/renderinc/forumsync/internal/composer"
	"github.com/renderinc/forumsync/internal/config"
	"github.com/renderinc/forumsync/internal/feed"
	"github.com/renderinc/forumsync/internal/forum"
	"github.com/renderinc/forumsync/internal/search"
	"github.com/renderinc/forumsync/internal/session"
	"github.com/renderinc/forumsync/internal/storage"
)

// globalOptions are the persistent root flags
type globalOptions struct {
	configPath string
	dataDir    string
	logLevel   string
}

// app holds the wired components for one command run
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	client   *forum.Client
	db       *storage.DB
	idx      *search.Index
	session  *session.Store
	feed     *feed.Synchronizer
	composer *composer.Composer
}

func newLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func loadConfig(opts *globalOptions) (*config.Config, error) {
	loader := config.NewLoader(newLogger(opts.logLevel))
	loader.ExplicitPath = opts.configPath
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if opts.dataDir != "" {
		cfg.DataDir = opts.dataDir
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openApp loads configuration, opens local state and restores the saved
// session and last-known feed
func openApp(opts *globalOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := storage.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// another forum process may hold the index; carry on without search
	caches := []feed.Cache{db}
	idx, err := search.Open(cfg.IndexPath())
	switch {
	case errors.Is(err, search.ErrIndexBusy):
		logger.Warn("Search index unavailable", slog.String("error", err.Error()))
		idx = nil
	case err != nil:
		db.Close()
		return nil, fmt.Errorf("open search index: %w", err)
	default:
		caches = append(caches, idx)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	client := forum.NewClient(cfg.API.BaseURL,
		forum.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
		forum.WithMetrics(forum.NewMetrics(registry)),
		forum.WithLogger(logger),
	)

	sess := session.NewStore(db, logger)
	sess.Restore()

	synchronizer := feed.NewSynchronizer(client, sess, logger, caches...)
	if cached, err := db.ListPosts(); err != nil {
		logger.Warn("Failed to read cached posts", slog.String("error", err.Error()))
	} else {
		synchronizer.Seed(cached)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		client:   client,
		db:       db,
		idx:      idx,
		session:  sess,
		feed:     synchronizer,
		composer: composer.New(synchronizer, sess),
	}, nil
}

// index returns the search index or ErrIndexBusy when it could not be opened
func (a *app) index() (*search.Index, error) {
	if a.idx == nil {
		return nil, fmt.Errorf("%s: %w", a.cfg.IndexPath(), search.ErrIndexBusy)
	}
	return a.idx, nil
}

func (a *app) Close() {
	if a.idx != nil {
		if err := a.idx.Close(); err != nil {
			a.logger.Warn("Failed to close search index", slog.String("error", err.Error()))
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("Failed to close database", slog.String("error", err.Error()))
	}
}
