package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Execution.MaxAttempts != 3 {
		t.Errorf("Expected 3 max attempts, got %d", cfg.Execution.MaxAttempts)
	}
	if cfg.GetTimeoutShort() != 60*time.Second {
		t.Errorf("Expected 60s short timeout, got %v", cfg.GetTimeoutShort())
	}
	if cfg.GetTimeoutLong() != 120*time.Second {
		t.Errorf("Expected 120s long timeout, got %v", cfg.GetTimeoutLong())
	}
	if cfg.Execution.MaxConcurrent != 4 {
		t.Errorf("Expected 4 concurrent processes, got %d", cfg.Execution.MaxConcurrent)
	}
	if cfg.Journal.Enabled {
		t.Error("Expected journal disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.CLI.Path = "/opt/sap/btp"
	cfg.Execution.MaxAttempts = 5
	cfg.Execution.TimeoutLong = "300s"

	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if loaded.CLI.Path != "/opt/sap/btp" {
		t.Errorf("Expected CLI path /opt/sap/btp, got %s", loaded.CLI.Path)
	}
	if loaded.Execution.MaxAttempts != 5 {
		t.Errorf("Expected 5 max attempts, got %d", loaded.Execution.MaxAttempts)
	}
	if loaded.GetTimeoutLong() != 300*time.Second {
		t.Errorf("Expected 300s long timeout, got %v", loaded.GetTimeoutLong())
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Execution, cfg.Execution)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("execution:\n  max_attempts: 2\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Execution.MaxAttempts)
	assert.Equal(t, "60s", cfg.Execution.TimeoutShort)
	assert.Equal(t, 4, cfg.Execution.MaxConcurrent)
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("execution: [unclosed"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestValidate(t *testing.T) {
	t.Run("zero attempts", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Execution.MaxAttempts = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad duration", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Execution.BaseDelay = "soon"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "base_delay")
	})

	t.Run("journal without path", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Journal.Enabled = true
		cfg.Journal.Path = " "
		assert.Error(t, cfg.Validate())
	})
}

func TestDurationGettersFallBack(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, time.Second, cfg.GetBaseDelay())
	assert.Equal(t, 8*time.Second, cfg.GetMaxDelay())
	assert.Equal(t, 240*time.Second, cfg.GetLatencyCeiling())

	cfg.Execution.MaxDelay = "-3s"
	assert.Equal(t, 8*time.Second, cfg.GetMaxDelay())
}

func TestLoggerConfig(t *testing.T) {
	lc := LoggingConfig{Level: "debug", Format: "json", File: "/tmp/x.log"}.LoggerConfig()
	assert.Equal(t, "debug", lc.Level)
	assert.Equal(t, "json", lc.Format)
	assert.Equal(t, "/tmp/x.log", lc.File)
}
