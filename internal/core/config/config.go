package config

import (
	"time"

	redisclient "github.com/vietddude/warmup/internal/infra/redis"
	"github.com/vietddude/warmup/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Pipeline PipelineConfig     `yaml:"pipeline"`
	Source   SourceConfig       `yaml:"source"`
	Server   ServerConfig       `yaml:"server"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
	History  HistoryConfig      `yaml:"history"`
}

// HistoryConfig controls how long finished run summaries are kept.
type HistoryConfig struct {
	Retention time.Duration `yaml:"retention"` // 0 = keep forever
}

// ServerConfig holds HTTP and gRPC listener settings.
type ServerConfig struct {
	Port     int `yaml:"port"`
	GRPCPort int `yaml:"grpc_port"` // 0 = disabled
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

type InitPolicy string

const (
	// InitAlways runs initialization after loading no matter how many resources failed.
	InitAlways InitPolicy = "always"
	// InitRequireAll skips initialization when any resource failed.
	InitRequireAll InitPolicy = "require_all"
)

// PipelineConfig tunes the loading pipeline.
type PipelineConfig struct {
	MaxConcurrency   int           `yaml:"max_concurrency"`
	PerItemTimeout   time.Duration `yaml:"per_item_timeout"`
	MaxRetries       int           `yaml:"max_retries"`
	BackoffBase      time.Duration `yaml:"backoff_base"`
	BackoffJitterMin float64       `yaml:"backoff_jitter_min"`
	BackoffJitterMax float64       `yaml:"backoff_jitter_max"`
	BackoffMaxDelay  time.Duration `yaml:"backoff_max_delay"` // 0 = uncapped
	RunTimeout       time.Duration `yaml:"run_timeout"`       // 0 = none
	InitPolicy       InitPolicy    `yaml:"init_policy"`
}

type SourceType string

const (
	SourceSimulated SourceType = "simulated"
	SourceFile      SourceType = "file"
	SourceHTTP      SourceType = "http"
)

// SourceConfig selects where manifests and resources come from.
type SourceConfig struct {
	Type SourceType `yaml:"type"`

	// file
	ManifestPath string `yaml:"manifest_path"`
	RootDir      string `yaml:"root_dir"`

	// http
	ManifestURL     string        `yaml:"manifest_url"`
	ResourceBaseURL string        `yaml:"resource_base_url"`
	InitURL         string        `yaml:"init_url"`
	HTTPTimeout     time.Duration `yaml:"http_timeout"`

	Simulated SimulatedConfig `yaml:"simulated"`
}

// SimulatedConfig mirrors the behaviour of an unreliable remote asset store.
type SimulatedConfig struct {
	ResourceCount int           `yaml:"resource_count"`
	ManifestDelay time.Duration `yaml:"manifest_delay"`
	MinLoadDelay  time.Duration `yaml:"min_load_delay"`
	MaxLoadDelay  time.Duration `yaml:"max_load_delay"`
	FailureRate   float64       `yaml:"failure_rate"`
	InitDelay     time.Duration `yaml:"init_delay"`
}

// DefaultPipelineConfig returns the stock pipeline limits.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MaxConcurrency:   3,
		PerItemTimeout:   3 * time.Second,
		MaxRetries:       3,
		BackoffBase:      200 * time.Millisecond,
		BackoffJitterMin: 0.5,
		BackoffJitterMax: 1.5,
		InitPolicy:       InitAlways,
	}
}

// DefaultSimulatedConfig matches the reference asset store: 100 files,
// 1s manifest, 1-5s per file, 1% failures, 1s init.
func DefaultSimulatedConfig() SimulatedConfig {
	return SimulatedConfig{
		ResourceCount: 100,
		ManifestDelay: time.Second,
		MinLoadDelay:  time.Second,
		MaxLoadDelay:  5 * time.Second,
		FailureRate:   0.01,
		InitDelay:     time.Second,
	}
}
