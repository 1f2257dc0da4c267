package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/ricesearch/covereval/internal/config"
	"github.com/ricesearch/covereval/internal/experiment"
	"github.com/ricesearch/covereval/internal/groundtruth"
	"github.com/ricesearch/covereval/internal/pkg/errors"
	"github.com/ricesearch/covereval/internal/pkg/logger"
	"github.com/ricesearch/covereval/internal/qdrant"
	"github.com/ricesearch/covereval/internal/search"
	"github.com/ricesearch/covereval/internal/search/fusion"
)

// DatasetLoader returns the rows of a split. Every run builds its own
// index from them.
type DatasetLoader func(split experiment.Split) ([]groundtruth.Row, error)

// BackendFactory opens a search backend for one run.
type BackendFactory func(ctx context.Context) (search.Backend, error)

// CSVDatasets loads splits from the configured CSV files. Files are read
// once and the rows shared between runs.
func CSVDatasets(cfg config.DatasetConfig) DatasetLoader {
	var (
		mu    sync.Mutex
		cache = make(map[experiment.Split][]groundtruth.Row)
	)
	return func(split experiment.Split) ([]groundtruth.Row, error) {
		mu.Lock()
		defer mu.Unlock()

		if rows, ok := cache[split]; ok {
			return rows, nil
		}

		path := cfg.TrainCSV
		if split == experiment.SplitTest {
			path = cfg.TestCSV
		}
		if path == "" {
			return nil, errors.ValidationError(fmt.Sprintf("no dataset configured for split %s", split))
		}

		rows, err := groundtruth.LoadCSV(path)
		if err != nil {
			return nil, err
		}
		cache[split] = rows
		return rows, nil
	}
}

// QdrantBackends opens a qdrant client per run, wrapped with pacing,
// retries and a circuit breaker.
func QdrantBackends(cfg config.SearchConfig, log *logger.Logger) BackendFactory {
	return func(ctx context.Context) (search.Backend, error) {
		client, err := qdrant.NewClient(ClientConfig(cfg), log)
		if err != nil {
			return nil, err
		}
		return search.NewResilient(client, ResilientConfig(cfg), log), nil
	}
}

// ClientConfig maps search settings to the qdrant client configuration.
func ClientConfig(cfg config.SearchConfig) qdrant.ClientConfig {
	return qdrant.ClientConfig{
		Host:       cfg.Host,
		Port:       cfg.Port,
		APIKey:     cfg.APIKey,
		UseTLS:     cfg.UseTLS,
		Collection: cfg.Collection,
		Timeout:    cfg.Timeout,
	}
}

// ResilientConfig maps search settings to the resilience wrapper
// configuration.
func ResilientConfig(cfg config.SearchConfig) search.ResilientConfig {
	rc := search.DefaultResilientConfig()
	rc.Name = cfg.Backend
	rc.RateLimit = cfg.RateLimit
	rc.Burst = cfg.Burst
	rc.MaxRetries = cfg.MaxRetries
	rc.BreakerFailures = cfg.BreakerFailures
	rc.BreakerTimeout = cfg.BreakerTimeout
	return rc
}

// Settings maps evaluation settings to experiment settings. Profile and
// size are set per run.
func Settings(cfg config.EvalConfig) (experiment.Settings, error) {
	mode, err := search.ParseQueryMode(cfg.QueryMode)
	if err != nil {
		return experiment.Settings{}, err
	}

	s := experiment.DefaultSettings()
	s.Mode = mode
	s.Size = cfg.Size
	s.LyricsProximity = cfg.LyricsProximity
	s.FieldProximity = cfg.FieldProximity
	s.CreditsProximity = cfg.CreditsProximity
	if cfg.RoleType != "" {
		s.RoleType = cfg.RoleType
	}
	s.RRF = fusion.DefaultRRFConfig()
	return s, nil
}
