package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all btpctl configuration.
type Config struct {
	// Wrapped CLI discovery
	CLI CLIConfig `yaml:"cli"`

	// Process execution and retry policy
	Execution ExecutionConfig `yaml:"execution"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Execution journal
	Journal JournalConfig `yaml:"journal"`
}

// CLIConfig configures how the btp binary is found.
type CLIConfig struct {
	// Path is an explicit binary override. Checked before the search path.
	Path string `yaml:"path"`

	// SearchDirs are appended to the per-OS well-known install directories.
	SearchDirs []string `yaml:"search_dirs"`
}

// JournalConfig configures the SQLite execution journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Execution: ExecutionConfig{
			TimeoutShort:   "60s",
			TimeoutLong:    "120s",
			MaxAttempts:    3,
			BaseDelay:      "1s",
			MaxDelay:       "8s",
			LatencyCeiling: "240s",
			MaxConcurrent:  4,
			MaxOutputBytes: 10 << 20,
			AllowedEnvVars: []string{
				"PATH", "HOME", "USER", "USERPROFILE", "APPDATA", "LOCALAPPDATA",
				"SystemRoot", "TMPDIR", "TEMP", "TMP", "LANG", "LC_ALL",
				"BTP_CLIENTCONFIG", "HTTP_PROXY", "HTTPS_PROXY", "NO_PROXY",
				"http_proxy", "https_proxy", "no_proxy", "SSL_CERT_FILE", "SSL_CERT_DIR",
			},
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},

		Journal: JournalConfig{
			Enabled: false,
			Path:    defaultJournalPath(),
		},
	}
}

// DefaultPath returns the per-user config file location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "btpctl.yaml"
	}
	return filepath.Join(dir, "btpctl", "config.yaml")
}

func defaultJournalPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "btpctl-journal.db"
	}
	return filepath.Join(dir, "btpctl", "journal.db")
}

// Load loads configuration from a YAML file.
// A missing file yields the defaults; env overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if p := strings.TrimSpace(os.Getenv("BTPCTL_CLI_PATH")); p != "" {
		c.CLI.Path = p
	}
	if v := os.Getenv("BTPCTL_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Execution.MaxAttempts = n
		}
	}
	if v := os.Getenv("BTPCTL_TIMEOUT_SHORT"); v != "" {
		c.Execution.TimeoutShort = v
	}
	if v := os.Getenv("BTPCTL_TIMEOUT_LONG"); v != "" {
		c.Execution.TimeoutLong = v
	}
	if v := os.Getenv("BTPCTL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("BTPCTL_JOURNAL_PATH"); v != "" {
		c.Journal.Path = v
		c.Journal.Enabled = true
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Execution.MaxAttempts < 1 {
		return fmt.Errorf("execution.max_attempts must be >= 1, got %d", c.Execution.MaxAttempts)
	}
	if c.Execution.MaxConcurrent < 1 {
		return fmt.Errorf("execution.max_concurrent must be >= 1, got %d", c.Execution.MaxConcurrent)
	}
	for name, raw := range map[string]string{
		"timeout_short":   c.Execution.TimeoutShort,
		"timeout_long":    c.Execution.TimeoutLong,
		"base_delay":      c.Execution.BaseDelay,
		"max_delay":       c.Execution.MaxDelay,
		"latency_ceiling": c.Execution.LatencyCeiling,
	} {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("execution.%s: %w", name, err)
		}
	}
	if c.Journal.Enabled && strings.TrimSpace(c.Journal.Path) == "" {
		return fmt.Errorf("journal.path is required when the journal is enabled")
	}
	return nil
}
