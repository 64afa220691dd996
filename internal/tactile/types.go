// Package tactile is the process layer of btpctl.
// It runs the wrapped CLI as a non-interactive child process with a bounded
// lifetime and returns exactly what the child produced.
//
// Guarantees:
//   - stdin is never inherited; the child reads from the null device
//   - only allow-listed environment variables reach the child, plus forced
//     non-interactive variables
//   - stdout and stderr are captured separately and size-limited
//   - on timeout the whole process tree is killed and ErrTimeout is returned
//     together with the partial outcome
package tactile

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrTimeout is returned when the child exceeded its time budget and was killed.
	ErrTimeout = errors.New("process timed out")

	// ErrBinaryRequired is returned for a command without a binary.
	ErrBinaryRequired = errors.New("binary is required")
)

// Command represents a command to be executed.
type Command struct {
	// Binary is the absolute path of the executable.
	Binary string `json:"binary"`

	// Arguments are the command-line arguments, passed verbatim.
	Arguments []string `json:"arguments"`

	// WorkingDirectory is the directory to execute in.
	// If empty, uses the executor's default working directory.
	WorkingDirectory string `json:"working_directory,omitempty"`

	// Environment holds extra KEY=VALUE pairs appended after the allow-listed
	// and forced variables.
	Environment []string `json:"environment,omitempty"`

	// Timeout bounds the child's wall-clock lifetime.
	// Zero means use the executor's default timeout.
	Timeout time.Duration `json:"timeout,omitempty"`

	// RequestID correlates all attempts of one logical request.
	RequestID string `json:"request_id,omitempty"`

	// Attempt is the 1-based attempt number within the request.
	Attempt int `json:"attempt,omitempty"`
}

// CommandString returns the full command as a string (for display/logging).
func (c Command) CommandString() string {
	if len(c.Arguments) == 0 {
		return c.Binary
	}
	return c.Binary + " " + strings.Join(c.Arguments, " ")
}

// Outcome is the raw result of one physical invocation.
// It is never mutated after Execute returns.
type Outcome struct {
	// ExitCode is the child's exit code (-1 if not available).
	ExitCode int `json:"exit_code"`

	// Stdout is the captured standard output.
	Stdout string `json:"stdout"`

	// Stderr is the captured standard error.
	Stderr string `json:"stderr"`

	// Duration is how long the command ran.
	Duration time.Duration `json:"duration"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Killed indicates the command was forcibly terminated by the executor.
	Killed bool `json:"killed"`

	// KillReason explains why the command was killed.
	KillReason string `json:"kill_reason,omitempty"`

	// Signaled indicates the child died from a signal it did not get from us.
	Signaled bool `json:"signaled,omitempty"`

	// Truncated indicates output was truncated due to size limits.
	Truncated bool `json:"truncated"`

	// TruncatedBytes is how many bytes were discarded.
	TruncatedBytes int64 `json:"truncated_bytes,omitempty"`

	// StartError is set when the process could not be spawned.
	StartError string `json:"start_error,omitempty"`

	// Command is a copy of the command that was executed.
	Command *Command `json:"command,omitempty"`
}

// Combined returns stdout followed by stderr.
func (o *Outcome) Combined() string {
	if o.Stderr == "" {
		return o.Stdout
	}
	if o.Stdout == "" {
		return o.Stderr
	}
	return o.Stdout + "\n" + o.Stderr
}

// Spawned reports whether the child process actually started.
func (o *Outcome) Spawned() bool {
	return o.StartError == ""
}

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventStart    AuditEventType = "start"
	AuditEventComplete AuditEventType = "complete"
	AuditEventKilled   AuditEventType = "killed"
	AuditEventError    AuditEventType = "error"
)

// AuditEvent represents an execution event.
type AuditEvent struct {
	Type      AuditEventType `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Command   Command        `json:"command"`

	// Outcome is set for complete/killed/error events.
	Outcome *Outcome `json:"outcome,omitempty"`

	ExecutorName string `json:"executor_name"`
}

// ExecutorConfig is the configuration for creating executors.
type ExecutorConfig struct {
	// DefaultWorkingDir is used when Command.WorkingDirectory is empty.
	DefaultWorkingDir string `json:"default_working_dir"`

	// DefaultTimeout is used when no timeout is specified.
	DefaultTimeout time.Duration `json:"default_timeout"`

	// MaxTimeout caps all timeout values.
	MaxTimeout time.Duration `json:"max_timeout"`

	// AllowedEnvironment lists environment variables to pass through.
	AllowedEnvironment []string `json:"allowed_environment"`

	// ForcedEnvironment is always set in the child (KEY=VALUE).
	ForcedEnvironment []string `json:"forced_environment"`

	// MaxOutputBytes caps capture per stream (default 10MB).
	MaxOutputBytes int64 `json:"max_output_bytes"`

	// MaxConcurrent bounds the number of live child processes.
	MaxConcurrent int `json:"max_concurrent"`

	// WaitDelay bounds how long to wait for output pipes after the child is killed.
	WaitDelay time.Duration `json:"wait_delay"`
}

// NonInteractiveEnvironment disables prompts, colors and pagers in the child.
var NonInteractiveEnvironment = []string{
	"CI=true",
	"BTP_NON_INTERACTIVE=true",
	"NO_COLOR=1",
	"TERM=dumb",
}

// DefaultExecutorConfig returns sensible defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		DefaultWorkingDir:  "",
		DefaultTimeout:     60 * time.Second,
		MaxTimeout:         10 * time.Minute,
		MaxOutputBytes:     10 * 1024 * 1024, // 10MB
		MaxConcurrent:      4,
		WaitDelay:          2 * time.Second,
		AllowedEnvironment: []string{"PATH", "HOME", "USER", "USERPROFILE", "APPDATA", "LOCALAPPDATA", "SystemRoot", "TMPDIR", "TEMP", "TMP", "LANG", "BTP_CLIENTCONFIG"},
		ForcedEnvironment:  append([]string(nil), NonInteractiveEnvironment...),
	}
}

// timeoutFor resolves the effective timeout for a command.
func (c ExecutorConfig) timeoutFor(cmd Command) time.Duration {
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = c.DefaultTimeout
	}
	if c.MaxTimeout > 0 && timeout > c.MaxTimeout {
		timeout = c.MaxTimeout
	}
	return timeout
}
