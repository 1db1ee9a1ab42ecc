package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/himanishpuri/AnchorSync/pkg/utils"
	"gopkg.in/yaml.v3"
)

// Config holds AnchorSync application settings.
type Config struct {
	Session   SessionConfig   `yaml:"session"`
	Readiness ReadinessConfig `yaml:"readiness"`
	Anchor    AnchorConfig    `yaml:"anchor"`
	Storage   StorageConfig   `yaml:"storage"`
	Simulator SimulatorConfig `yaml:"simulator"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type SessionConfig struct {
	// Pause taken before and after creating a session.
	SettleDelay time.Duration `yaml:"settle_delay" env:"ANCHORSYNC_SETTLE_DELAY"`
}

type ReadinessConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" env:"ANCHORSYNC_POLL_INTERVAL"`
	MaxWait      time.Duration `yaml:"max_wait" env:"ANCHORSYNC_MAX_WAIT"`
}

type AnchorConfig struct {
	// Lifetime of saved anchors; 0 disables expiration.
	Expiration time.Duration `yaml:"expiration" env:"ANCHORSYNC_EXPIRATION"`
}

type StorageConfig struct {
	DBPath string `yaml:"db_path" env:"ANCHORSYNC_DB_PATH"`
}

type SimulatorConfig struct {
	ProgressStep  float64       `yaml:"progress_step" env:"ANCHORSYNC_PROGRESS_STEP"`
	LocateLatency time.Duration `yaml:"locate_latency" env:"ANCHORSYNC_LOCATE_LATENCY"`
}

type ServerConfig struct {
	Port           int      `yaml:"port" env:"ANCHORSYNC_PORT"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"ANCHORSYNC_ALLOWED_ORIGINS" envSeparator:","`
}

type LoggingConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL"`
}

// DefaultConfig returns the settings used when no file or environment overrides exist.
func DefaultConfig() *Config {
	return &Config{
		Session: SessionConfig{SettleDelay: 3 * time.Second},
		Readiness: ReadinessConfig{
			PollInterval: 330 * time.Millisecond,
			MaxWait:      2 * time.Minute,
		},
		Anchor:  AnchorConfig{Expiration: 7 * 24 * time.Hour},
		Storage: StorageConfig{DBPath: "anchorsync.sqlite3"},
		Simulator: SimulatorConfig{
			ProgressStep:  0.25,
			LocateLatency: 50 * time.Millisecond,
		},
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"*"},
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads path (when it exists) over the defaults, then applies environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := utils.EnsureParentDir(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Readiness.PollInterval <= 0 {
		return fmt.Errorf("readiness.poll_interval must be positive, got %s", c.Readiness.PollInterval)
	}
	if c.Readiness.MaxWait < c.Readiness.PollInterval {
		return fmt.Errorf("readiness.max_wait (%s) must not be shorter than poll_interval (%s)", c.Readiness.MaxWait, c.Readiness.PollInterval)
	}
	if c.Anchor.Expiration < 0 {
		return fmt.Errorf("anchor.expiration must not be negative")
	}
	if c.Simulator.ProgressStep <= 0 || c.Simulator.ProgressStep > 1 {
		return fmt.Errorf("simulator.progress_step must be in (0, 1], got %v", c.Simulator.ProgressStep)
	}
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	return nil
}
