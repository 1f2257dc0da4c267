// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/ricesearch/covereval/internal/experiment"
	"github.com/ricesearch/covereval/internal/search"
)

// Config holds all application configuration.
type Config struct {
	// Dataset configuration
	Dataset DatasetConfig `yaml:"dataset"`

	// Search backend configuration
	Search SearchConfig `yaml:"search"`

	// Evaluation configuration
	Eval EvalConfig `yaml:"eval"`

	// Result store configuration
	Store StoreConfig `yaml:"store"`

	// Bus configuration
	Bus BusConfig `yaml:"bus"`

	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Logging configuration
	Log LogConfig `yaml:"log"`
}

// DatasetConfig locates the ground-truth CSV files.
type DatasetConfig struct {
	TrainCSV string `envconfig:"COVER_TRAIN_CSV" yaml:"train_csv"`
	TestCSV  string `envconfig:"COVER_TEST_CSV" yaml:"test_csv"`
}

// SearchConfig holds search backend connection and resilience settings.
type SearchConfig struct {
	Backend         string        `envconfig:"COVER_SEARCH_BACKEND" yaml:"backend"`
	Host            string        `envconfig:"COVER_QDRANT_HOST" yaml:"host"`
	Port            int           `envconfig:"COVER_QDRANT_PORT" yaml:"port"`
	APIKey          string        `envconfig:"COVER_QDRANT_API_KEY" yaml:"api_key"`
	UseTLS          bool          `envconfig:"COVER_QDRANT_TLS" yaml:"use_tls"`
	Collection      string        `envconfig:"COVER_QDRANT_COLLECTION" yaml:"collection"`
	Timeout         time.Duration `envconfig:"COVER_SEARCH_TIMEOUT" yaml:"timeout"`
	RateLimit       float64       `envconfig:"COVER_SEARCH_RATE_LIMIT" yaml:"rate_limit"` // 0 = unlimited
	Burst           int           `envconfig:"COVER_SEARCH_BURST" yaml:"burst"`
	MaxRetries      int           `envconfig:"COVER_SEARCH_MAX_RETRIES" yaml:"max_retries"`
	BreakerFailures uint32        `envconfig:"COVER_BREAKER_FAILURES" yaml:"breaker_failures"`
	BreakerTimeout  time.Duration `envconfig:"COVER_BREAKER_TIMEOUT" yaml:"breaker_timeout"`
}

// EvalConfig holds evaluation run settings.
type EvalConfig struct {
	Mode              string   `envconfig:"COVER_EVAL_MODE" yaml:"mode"`
	Profile           string   `envconfig:"COVER_EVAL_PROFILE" yaml:"profile"`
	QueryMode         string   `envconfig:"COVER_QUERY_MODE" yaml:"query_mode"`
	ExcludeDuplicates bool     `envconfig:"COVER_EXCLUDE_DUPLICATES" yaml:"exclude_duplicates"`
	Methods           []string `envconfig:"COVER_METHODS" yaml:"methods"`
	Workers           int      `envconfig:"COVER_WORKERS" yaml:"workers"` // 0 = NumCPU
	Size              int      `envconfig:"COVER_SIZE" yaml:"size"`
	LyricsProximity   float64  `envconfig:"COVER_LYRICS_PROXIMITY" yaml:"lyrics_proximity"`
	FieldProximity    float64  `envconfig:"COVER_FIELD_PROXIMITY" yaml:"field_proximity"`
	CreditsProximity  float64  `envconfig:"COVER_CREDITS_PROXIMITY" yaml:"credits_proximity"`
	AudioThreshold    float64  `envconfig:"COVER_AUDIO_THRESHOLD" yaml:"audio_threshold"`
	RoleType          string   `envconfig:"COVER_ROLE_TYPE" yaml:"role_type"`
	Seed              int64    `envconfig:"COVER_SEED" yaml:"seed"`
}

// StoreConfig holds result store settings.
type StoreConfig struct {
	Type     string        `envconfig:"COVER_STORE_TYPE" yaml:"type"`
	Dir      string        `envconfig:"COVER_STORE_DIR" yaml:"dir"`
	RedisURL string        `envconfig:"COVER_REDIS_URL" yaml:"redis_url"`
	TTL      time.Duration `envconfig:"COVER_STORE_TTL" yaml:"ttl"` // 0 = no expiry
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type         string `envconfig:"COVER_BUS_TYPE" yaml:"type"`
	KafkaBrokers string `envconfig:"COVER_KAFKA_BROKERS" yaml:"kafka_brokers"`
	KafkaGroup   string `envconfig:"COVER_KAFKA_GROUP" yaml:"kafka_group"`
	Topic        string `envconfig:"COVER_BUS_TOPIC" yaml:"topic"`

	// Journal is an optional JSON-lines file every published event is appended to.
	Journal string `envconfig:"COVER_BUS_JOURNAL" yaml:"journal"`
}

// ServerConfig holds HTTP server settings for the serve command.
type ServerConfig struct {
	Host      string  `envconfig:"COVER_HOST" yaml:"host"`
	Port      int     `envconfig:"COVER_PORT" yaml:"port"`
	RateLimit float64 `envconfig:"COVER_SERVER_RATE_LIMIT" yaml:"rate_limit"` // per client, 0 = unlimited
	Burst     int     `envconfig:"COVER_SERVER_BURST" yaml:"burst"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"COVER_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"COVER_LOG_FORMAT" yaml:"format"`
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// Default returns the default configuration.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func setDefaults(cfg *Config) {
	cfg.Dataset = DatasetConfig{
		TrainCSV: "data/shs100k_train.csv",
		TestCSV:  "data/shs100k_test.csv",
	}

	cfg.Search = SearchConfig{
		Backend:         "qdrant",
		Host:            "localhost",
		Port:            6334,
		Collection:      "msd",
		Timeout:         30 * time.Second,
		Burst:           10,
		MaxRetries:      3,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}

	cfg.Eval = EvalConfig{
		Mode:             experiment.SplitTrain.String(),
		Profile:          experiment.ProfileMSD.String(),
		QueryMode:        search.ModeSimpleQuery.String(),
		Methods:          []string{experiment.MethodTitle.String()},
		Size:             100,
		LyricsProximity:  0.5,
		FieldProximity:   1.0,
		CreditsProximity: 0.1,
		AudioThreshold:   0.1,
		RoleType:         "Composer",
		Seed:             42,
	}

	cfg.Store = StoreConfig{
		Type:     "file",
		Dir:      "results",
		RedisURL: "redis://localhost:6379",
	}

	cfg.Bus = BusConfig{
		Type:       "memory",
		KafkaGroup: "covereval",
		Topic:      "covereval.runs",
	}

	cfg.Server = ServerConfig{
		Host:  "0.0.0.0",
		Port:  8080,
		Burst: 40,
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server port must be between 1 and 65535")
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server rate_limit must not be negative")
	}

	// Search validation
	if c.Search.Backend != "qdrant" {
		errs = append(errs, fmt.Sprintf("invalid search backend: %s (must be qdrant)", c.Search.Backend))
	}
	if c.Search.Port < 1 || c.Search.Port > 65535 {
		errs = append(errs, "search port must be between 1 and 65535")
	}
	if c.Search.Timeout <= 0 {
		errs = append(errs, "search timeout must be positive")
	}
	if c.Search.RateLimit < 0 {
		errs = append(errs, "rate_limit must not be negative")
	}
	if c.Search.MaxRetries < 0 {
		errs = append(errs, "max_retries must not be negative")
	}

	// Eval validation
	if _, err := experiment.ParseSplit(c.Eval.Mode); err != nil {
		errs = append(errs, err.Error())
	}
	if _, err := experiment.ParseProfile(c.Eval.Profile); err != nil {
		errs = append(errs, err.Error())
	}
	if _, err := search.ParseQueryMode(c.Eval.QueryMode); err != nil {
		errs = append(errs, err.Error())
	}
	if len(c.Eval.Methods) == 0 {
		errs = append(errs, "at least one method is required")
	}
	for _, m := range c.Eval.Methods {
		if _, err := experiment.ParseMethod(m); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if c.Eval.Size < 1 {
		errs = append(errs, "size must be positive")
	}
	thresholds := []struct {
		name  string
		value float64
	}{
		{"lyrics_proximity", c.Eval.LyricsProximity},
		{"field_proximity", c.Eval.FieldProximity},
		{"credits_proximity", c.Eval.CreditsProximity},
		{"audio_threshold", c.Eval.AudioThreshold},
	}
	for _, th := range thresholds {
		if th.value < 0 || math.IsNaN(th.value) || math.IsInf(th.value, 0) {
			errs = append(errs, fmt.Sprintf("%s must be a finite non-negative number", th.name))
		}
	}

	// Store validation
	validStoreTypes := map[string]bool{"memory": true, "file": true, "redis": true}
	if !validStoreTypes[c.Store.Type] {
		errs = append(errs, fmt.Sprintf("invalid store type: %s (must be memory, file, or redis)", c.Store.Type))
	}
	if c.Store.Type == "file" && c.Store.Dir == "" {
		errs = append(errs, "store dir is required for file store")
	}

	// Bus validation
	validBusTypes := map[string]bool{"memory": true, "kafka": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory or kafka)", c.Bus.Type))
	}
	if c.Bus.Type == "kafka" && c.Bus.KafkaBrokers == "" {
		errs = append(errs, "kafka_brokers is required for kafka bus")
	}
	if c.Bus.Topic == "" {
		errs = append(errs, "bus topic is required")
	}

	// Log validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Address returns the server address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// DatasetPath returns the ground-truth CSV for the configured split.
func (c *Config) DatasetPath(split experiment.Split) string {
	if split == experiment.SplitTest {
		return c.Dataset.TestCSV
	}
	return c.Dataset.TrainCSV
}

// KafkaBrokerList splits the comma-separated broker list.
func (c *Config) KafkaBrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(c.Bus.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Log.Level == "debug"
}
