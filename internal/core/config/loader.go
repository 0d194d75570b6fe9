package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// ErrInvalidConfig is returned when a loaded configuration fails validation.
var ErrInvalidConfig = errors.New("invalid config")

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML content on top of the defaults, expanding environment variables.
// Keys missing from the file keep their default values.
func Parse(data []byte) (*AppConfig, error) {
	cfg := Default()
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration using only defaults (simulated source, memory storage).
func Default() *AppConfig {
	return &AppConfig{
		Pipeline: DefaultPipelineConfig(),
		Source: SourceConfig{
			Type:        SourceSimulated,
			HTTPTimeout: 30 * time.Second,
			Simulated:   DefaultSimulatedConfig(),
		},
		Server:  ServerConfig{Port: 8080},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Validate checks values that defaults cannot repair.
func (c *AppConfig) Validate() error {
	p := c.Pipeline
	if p.MaxConcurrency < 1 {
		return fmt.Errorf("%w: max_concurrency must be >= 1, got %d", ErrInvalidConfig, p.MaxConcurrency)
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must be >= 0, got %d", ErrInvalidConfig, p.MaxRetries)
	}
	if p.PerItemTimeout < 0 || p.BackoffBase < 0 || p.RunTimeout < 0 || p.BackoffMaxDelay < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	}
	if p.BackoffJitterMin < 0 || p.BackoffJitterMax < p.BackoffJitterMin {
		return fmt.Errorf(
			"%w: jitter range [%v, %v) is not valid",
			ErrInvalidConfig, p.BackoffJitterMin, p.BackoffJitterMax,
		)
	}
	switch p.InitPolicy {
	case InitAlways, InitRequireAll:
	default:
		return fmt.Errorf("%w: unknown init_policy %q", ErrInvalidConfig, p.InitPolicy)
	}

	s := c.Source
	switch s.Type {
	case SourceSimulated:
		if s.Simulated.FailureRate < 0 || s.Simulated.FailureRate > 1 {
			return fmt.Errorf("%w: simulated.failure_rate must be in [0,1]", ErrInvalidConfig)
		}
		if s.Simulated.MaxLoadDelay < s.Simulated.MinLoadDelay {
			return fmt.Errorf("%w: simulated.max_load_delay < min_load_delay", ErrInvalidConfig)
		}
	case SourceFile:
		if s.ManifestPath == "" {
			return fmt.Errorf("%w: source.manifest_path is required for file source", ErrInvalidConfig)
		}
	case SourceHTTP:
		if s.ManifestURL == "" || s.ResourceBaseURL == "" {
			return fmt.Errorf(
				"%w: source.manifest_url and source.resource_base_url are required for http source",
				ErrInvalidConfig,
			)
		}
	default:
		return fmt.Errorf("%w: unknown source type %q", ErrInvalidConfig, s.Type)
	}

	if c.History.Retention < 0 {
		return fmt.Errorf("%w: history.retention must not be negative", ErrInvalidConfig)
	}
	return nil
}
