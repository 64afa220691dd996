package config

import "time"

// ExecutionConfig configures the process runner and retry policy.
type ExecutionConfig struct {
	// Per-operation bounds: read-style (short) and provisioning (long).
	TimeoutShort string `yaml:"timeout_short" json:"timeout_short,omitempty"`
	TimeoutLong  string `yaml:"timeout_long" json:"timeout_long,omitempty"`

	// Retry policy
	MaxAttempts    int    `yaml:"max_attempts" json:"max_attempts,omitempty"`
	BaseDelay      string `yaml:"base_delay" json:"base_delay,omitempty"`
	MaxDelay       string `yaml:"max_delay" json:"max_delay,omitempty"`
	LatencyCeiling string `yaml:"latency_ceiling" json:"latency_ceiling,omitempty"`

	// Concurrent child processes
	MaxConcurrent int `yaml:"max_concurrent" json:"max_concurrent,omitempty"`

	// Per-stream capture limit
	MaxOutputBytes int64 `yaml:"max_output_bytes" json:"max_output_bytes,omitempty"`

	// Environment variables passed through from the parent
	AllowedEnvVars []string `yaml:"allowed_env_vars" json:"allowed_env_vars,omitempty"`

	// Extra KEY=VALUE pairs added to every child
	ExtraEnv []string `yaml:"extra_env" json:"extra_env,omitempty"`
}

// GetTimeoutShort returns the read-operation timeout.
func (c *Config) GetTimeoutShort() time.Duration {
	return parseDurationOr(c.Execution.TimeoutShort, 60*time.Second)
}

// GetTimeoutLong returns the provisioning-operation timeout.
func (c *Config) GetTimeoutLong() time.Duration {
	return parseDurationOr(c.Execution.TimeoutLong, 120*time.Second)
}

// GetBaseDelay returns the initial backoff unit.
func (c *Config) GetBaseDelay() time.Duration {
	return parseDurationOr(c.Execution.BaseDelay, time.Second)
}

// GetMaxDelay returns the backoff cap.
func (c *Config) GetMaxDelay() time.Duration {
	return parseDurationOr(c.Execution.MaxDelay, 8*time.Second)
}

// GetLatencyCeiling returns the total latency budget across retries.
func (c *Config) GetLatencyCeiling() time.Duration {
	return parseDurationOr(c.Execution.LatencyCeiling, 240*time.Second)
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
