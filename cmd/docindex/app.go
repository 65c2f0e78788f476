package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dshills/docindex-mcp/internal/config"
	"github.com/dshills/docindex-mcp/internal/indexer"
	"github.com/dshills/docindex-mcp/internal/logger"
	"github.com/dshills/docindex-mcp/internal/metrics"
	"github.com/dshills/docindex-mcp/internal/searcher"
	"github.com/dshills/docindex-mcp/internal/storage"
	"github.com/dshills/docindex-mcp/internal/tracker"
)

// settingExtensions holds the last extension allow-list passed to index
const settingExtensions = "index.extensions"

// app is the set of components a command works with
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    storage.Storage
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	tracker  *tracker.Tracker
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
}

// loadConfig reads the config file and applies command-line overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagDB != "" {
		cfg.Database.Path = flagDB
	}
	if flagLogLevel != "" {
		cfg.Logging.Level = flagLogLevel
	}
	return cfg, nil
}

// openApp loads configuration, sets up logging and opens the database
func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.Setup(cfg.Logging.Level, cfg.Logging.Format, nil)

	if cfg.Database.Path != storage.MemoryPath {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	log.Debug("database opened", "path", cfg.Database.Path, "driver", storage.DriverName)

	return newApp(cfg, store, log), nil
}

// newApp wires components over an open store
func newApp(cfg *config.Config, store storage.Storage, log *slog.Logger) *app {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	trk := tracker.New(store, tracker.WithLogger(log.With("component", "tracker")))
	return &app{
		cfg:      cfg,
		logger:   log,
		store:    store,
		registry: reg,
		metrics:  m,
		tracker:  trk,
		indexer: indexer.New(store,
			indexer.WithTracker(trk),
			indexer.WithMetrics(m),
			indexer.WithLogger(log.With("component", "indexer")),
		),
		searcher: searcher.NewSearcher(store,
			searcher.WithCacheSize(cfg.Search.CacheSize),
			searcher.WithCacheTTL(cfg.Search.CacheTTL),
			searcher.WithPageChars(cfg.Search.PageChars),
			searcher.WithMetrics(m),
			searcher.WithLogger(log.With("component", "searcher")),
		),
	}
}

func (a *app) Close() error {
	return a.store.Close()
}

// resolveExtensions picks the allow-list for a run. An explicit list is
// saved for next time; otherwise the saved list is used, then the config.
func (a *app) resolveExtensions(ctx context.Context, exts []string, explicit bool) ([]string, error) {
	if explicit {
		exts = indexer.NormalizeExtensions(exts)
		data, err := json.Marshal(exts)
		if err != nil {
			return nil, err
		}
		if err := a.store.SetSetting(ctx, settingExtensions, string(data)); err != nil {
			return nil, err
		}
		return exts, nil
	}

	saved, err := a.store.GetSetting(ctx, settingExtensions)
	switch {
	case err == nil:
		var out []string
		if err := json.Unmarshal([]byte(saved), &out); err != nil {
			a.logger.Warn("ignoring unreadable saved extensions", "value", saved, "error", err)
			return a.cfg.Index.Extensions, nil
		}
		return out, nil
	case errors.Is(err, storage.ErrNotFound):
		return a.cfg.Index.Extensions, nil
	default:
		return nil, err
	}
}
