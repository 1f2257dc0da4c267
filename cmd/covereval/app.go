package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ricesearch/covereval/internal/bus"
	"github.com/ricesearch/covereval/internal/config"
	"github.com/ricesearch/covereval/internal/metrics"
	"github.com/ricesearch/covereval/internal/pkg/logger"
	"github.com/ricesearch/covereval/internal/pkg/security"
	"github.com/ricesearch/covereval/internal/runner"
	"github.com/ricesearch/covereval/internal/store"
)

// app carries what every command needs: configuration, a logger and
// the output writer.
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	out    io.Writer
	format string
}

// newApp loads the configuration named by the global flags.
func newApp(cmd *cobra.Command) (*app, error) {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	format, _ := cmd.Flags().GetString("format")

	if format != "text" && format != "json" {
		return nil, fmt.Errorf("invalid output format: %s (must be text or json)", format)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	return &app{
		cfg:    cfg,
		log:    logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format),
		out:    cmd.OutOrStdout(),
		format: format,
	}, nil
}

func (a *app) openStore() (*store.ResultStore, error) {
	a.log.Debug("Opening result store",
		"type", a.cfg.Store.Type,
		"dir", a.cfg.Store.Dir,
		"redis_url", security.MaskURL(a.cfg.Store.RedisURL),
	)
	results, err := store.Open(store.Config{
		Type:     a.cfg.Store.Type,
		Dir:      a.cfg.Store.Dir,
		RedisURL: a.cfg.Store.RedisURL,
		TTL:      a.cfg.Store.TTL,
	})
	if err != nil {
		return nil, fmt.Errorf("opening result store: %w", err)
	}
	return results, nil
}

// openHistory returns the redis history when runs are stored in redis and
// an in-process history otherwise.
func (a *app) openHistory() (metrics.History, error) {
	if a.cfg.Store.Type != "redis" {
		return metrics.NewMemoryHistory(0), nil
	}
	h, err := metrics.NewRedisHistory(a.cfg.Store.RedisURL, a.cfg.Store.TTL)
	if err != nil {
		return nil, fmt.Errorf("opening run history: %w", err)
	}
	return h, nil
}

func (a *app) openBus() (bus.Bus, error) {
	return bus.NewBus(a.cfg.Bus, a.log)
}

func (a *app) datasets() runner.DatasetLoader {
	return runner.CSVDatasets(a.cfg.Dataset)
}

func (a *app) backends() runner.BackendFactory {
	return runner.QdrantBackends(a.cfg.Search, a.log)
}

// closeQuietly closes c and logs a failure.
func (a *app) closeQuietly(name string, c io.Closer) {
	if err := c.Close(); err != nil {
		a.log.Warn("Failed to close "+name, "error", err)
	}
}
