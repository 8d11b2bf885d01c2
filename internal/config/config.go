package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"enoctl/internal/inventory"
)

const (
	DefaultWaitTimeout  = 10 * time.Second
	DefaultPollInterval = 250 * time.Millisecond
	DefaultHTTPTimeout  = 10 * time.Second

	// EnvInventory overrides the inventory path from the config file.
	EnvInventory = "ENO_INVENTORY"
)

// Config holds harness settings for the controller machine.
type Config struct {
	Inventory       string        `yaml:"inventory"`
	WaitTimeout     time.Duration `yaml:"wait_timeout"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	HTTPTimeout     time.Duration `yaml:"http_timeout"`
	JournalPath     string        `yaml:"journal_path,omitempty"`
	MetricsTextfile string        `yaml:"metrics_textfile,omitempty"`
}

// Load reads and parses a YAML config file. An empty path yields defaults.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	ApplyDefaults(&cfg)
	return cfg, nil
}

// Save writes a YAML config file to disk.
func Save(path string, cfg Config) error {
	ApplyDefaults(&cfg)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate rejects settings the wait loop cannot work with.
func Validate(cfg Config) error {
	if cfg.WaitTimeout <= 0 {
		return fmt.Errorf("wait_timeout must be positive")
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if cfg.PollInterval > cfg.WaitTimeout {
		return fmt.Errorf("poll_interval (%s) exceeds wait_timeout (%s)", cfg.PollInterval, cfg.WaitTimeout)
	}
	if cfg.HTTPTimeout <= 0 {
		return fmt.Errorf("http_timeout must be positive")
	}
	return nil
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	if cfg.Inventory == "" {
		cfg.Inventory = inventory.DefaultPath
	}
	if cfg.WaitTimeout == 0 {
		cfg.WaitTimeout = DefaultWaitTimeout
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = DefaultHTTPTimeout
	}
}

// InventoryPath picks the inventory file: flag, then ENO_INVENTORY, then the
// config value.
func InventoryPath(cfg Config, flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv(EnvInventory); v != "" {
		return v
	}
	if cfg.Inventory != "" {
		return cfg.Inventory
	}
	return inventory.DefaultPath
}

// LoadDotEnv loads .env from the working directory when present. Variables
// already set in the environment win.
func LoadDotEnv() error {
	if _, err := os.Stat(".env"); err == nil {
		return godotenv.Load(".env")
	}
	return nil
}
