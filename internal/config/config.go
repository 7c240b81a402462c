// Package config loads and validates the devildex runtime configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/devildex/devildex/internal/retry"
)

// Config represents the application configuration
type Config struct {
	// DataDir holds the registry database and scheduler state.
	DataDir string `yaml:"data_dir"`
	// DocsetDir is the root under which generated docsets are written.
	DocsetDir string `yaml:"docset_dir"`

	Scheduler SchedulerConfig `yaml:"scheduler"`
	Backends  BackendsConfig  `yaml:"backends"`
	Retry     RetryConfig     `yaml:"retry"`
	Server    ServerConfig    `yaml:"server"`
	Notify    NotifyConfig    `yaml:"notify"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
}

// SchedulerConfig bounds the build worker pool.
type SchedulerConfig struct {
	Workers      int      `yaml:"workers"`
	BuildTimeout Duration `yaml:"build_timeout"`
	HistorySize  int      `yaml:"history_size"`
}

// BackendsConfig configures generator adapters and selection overrides.
type BackendsConfig struct {
	// ProjectOverrides forces a backend per project name.
	ProjectOverrides map[string]string `yaml:"project_overrides,omitempty"`
	// ThemeVersion participates in build fingerprints.
	ThemeVersion string `yaml:"theme_version"`
	// Executables overrides the binary looked up per backend kind.
	Executables map[string]string `yaml:"executables,omitempty"`
	// ReadTheDocsAPI is the base URL of the ReadTheDocs API used by the
	// fetched-readthedocs adapter.
	ReadTheDocsAPI string `yaml:"readthedocs_api"`
	// FetchDir is where VCS package sources are cloned.
	FetchDir string `yaml:"fetch_dir"`
}

// RetryConfig configures the transient-failure backoff policy.
type RetryConfig struct {
	Mode       string   `yaml:"mode"` // fixed|linear|exponential
	Initial    Duration `yaml:"initial"`
	Max        Duration `yaml:"max"`
	MaxRetries int      `yaml:"max_retries"`
}

// Policy converts the raw config into an immutable retry policy.
func (r RetryConfig) Policy() retry.Policy {
	return retry.NewPolicy(retry.Mode(r.Mode), r.Initial.Std(), r.Max.Std(), r.MaxRetries)
}

// ServerConfig configures the signal/trigger HTTP server.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr joins host and port for net.Listen.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// NotifyConfig configures optional NATS build-event publishing.
type NotifyConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// ScheduleConfig configures the periodic refresh job.
type ScheduleConfig struct {
	// RebuildInterval re-enqueues builds for all known docsets; zero disables.
	RebuildInterval Duration `yaml:"rebuild_interval"`
}

// Load loads configuration from the specified file
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists; absence is fine.
	loadEnvFiles()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse unmarshals raw YAML, expands environment references, applies defaults
// and validates.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with all defaults applied, used when no
// config file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
