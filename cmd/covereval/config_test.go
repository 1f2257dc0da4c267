package main

import (
	"testing"

	"github.com/ricesearch/covereval/internal/config"
)

func defaultTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	return cfg
}
