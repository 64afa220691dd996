package tactile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"btpctl/internal/logging"
)

// DirectExecutor executes commands directly on the host using os/exec.
type DirectExecutor struct {
	mu     sync.RWMutex
	config ExecutorConfig
	slots  *semaphore.Weighted

	// auditCallback is called for execution events
	auditCallback func(AuditEvent)
}

// NewDirectExecutor creates a new direct executor with default config.
func NewDirectExecutor() *DirectExecutor {
	return NewDirectExecutorWithConfig(DefaultExecutorConfig())
}

// NewDirectExecutorWithConfig creates a new direct executor with custom config.
func NewDirectExecutorWithConfig(config ExecutorConfig) *DirectExecutor {
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = 1
	}
	if config.MaxOutputBytes <= 0 {
		config.MaxOutputBytes = DefaultExecutorConfig().MaxOutputBytes
	}
	logging.TactileDebug("Creating DirectExecutor: timeout=%s, maxOutput=%d bytes, maxConcurrent=%d",
		config.DefaultTimeout, config.MaxOutputBytes, config.MaxConcurrent)
	return &DirectExecutor{
		config: config,
		slots:  semaphore.NewWeighted(int64(config.MaxConcurrent)),
	}
}

// SetAuditCallback sets the callback for audit events.
func (e *DirectExecutor) SetAuditCallback(callback func(AuditEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.auditCallback = callback
}

// emitAudit emits an audit event if a callback is registered.
func (e *DirectExecutor) emitAudit(eventType AuditEventType, cmd Command, outcome *Outcome) {
	e.mu.RLock()
	callback := e.auditCallback
	e.mu.RUnlock()

	if callback != nil {
		callback(AuditEvent{
			Type:         eventType,
			Timestamp:    time.Now(),
			Command:      cmd,
			Outcome:      outcome,
			ExecutorName: "direct",
		})
	}
}

// Execute runs a command directly on the host.
func (e *DirectExecutor) Execute(ctx context.Context, cmd Command) (*Outcome, error) {
	if cmd.Binary == "" {
		return nil, ErrBinaryRequired
	}
	if cmd.WorkingDirectory == "" {
		cmd.WorkingDirectory = e.config.DefaultWorkingDir
	}

	if err := e.slots.Acquire(ctx, 1); err != nil {
		logging.TactileWarn("Gave up waiting for an execution slot: %v", err)
		return nil, fmt.Errorf("waiting for execution slot: %w", err)
	}
	defer e.slots.Release(1)

	timer := logging.StartTimer(logging.CategoryTactile, "Direct command execution")
	defer timer.Stop()

	timeout := e.config.timeoutFor(cmd)
	logging.TactileDebug("Executing: %s (attempt=%d, timeout=%s)", cmd.CommandString(), cmd.Attempt, timeout)

	outcome := &Outcome{
		ExitCode: -1,
		Command:  &cmd,
	}

	e.emitAudit(AuditEventStart, cmd, nil)

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execCmd := exec.CommandContext(execCtx, cmd.Binary, cmd.Arguments...)
	execCmd.Dir = cmd.WorkingDirectory
	execCmd.Env = e.buildEnvironment(cmd.Environment)
	// Stdin stays nil so the child is attached to the null device.
	execCmd.Stdin = nil

	var stdoutBuf, stderrBuf bytes.Buffer
	stdoutLimited := &limitedWriter{w: &stdoutBuf, max: e.config.MaxOutputBytes}
	stderrLimited := &limitedWriter{w: &stderrBuf, max: e.config.MaxOutputBytes}
	execCmd.Stdout = stdoutLimited
	execCmd.Stderr = stderrLimited

	setupProcessGroup(execCmd)
	execCmd.Cancel = func() error { return killProcessGroup(execCmd) }
	execCmd.WaitDelay = e.config.WaitDelay

	outcome.StartedAt = time.Now()
	err := execCmd.Run()
	outcome.FinishedAt = time.Now()
	outcome.Duration = outcome.FinishedAt.Sub(outcome.StartedAt)

	outcome.Stdout = stdoutBuf.String()
	outcome.Stderr = stderrBuf.String()
	if stdoutLimited.truncated || stderrLimited.truncated {
		outcome.Truncated = true
		outcome.TruncatedBytes = stdoutLimited.discarded + stderrLimited.discarded
		logging.TactileWarn("Command output truncated: %d bytes discarded", outcome.TruncatedBytes)
	}

	// The child exited but held its pipes open past WaitDelay; keep its status.
	if errors.Is(err, exec.ErrWaitDelay) && execCmd.ProcessState != nil && execCtx.Err() == nil {
		logging.TactileWarn("Output pipes of %s still open after exit", cmd.Binary)
		err = nil
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		outcome.ExitCode = execCmd.ProcessState.ExitCode()
		logging.TactileDebug("Command exited: %s -> %d", cmd.Binary, outcome.ExitCode)

	case ctx.Err() != nil:
		outcome.Killed = true
		outcome.KillReason = "context canceled"
		logging.TactileDebug("Command canceled: %s", cmd.Binary)
		e.emitAudit(AuditEventKilled, cmd, outcome)
		return outcome, fmt.Errorf("%s: %w", cmd.Binary, ctx.Err())

	case errors.Is(execCtx.Err(), context.DeadlineExceeded):
		outcome.Killed = true
		outcome.KillReason = fmt.Sprintf("timeout after %s", timeout)
		logging.TactileWarn("Command killed (timeout): %s after %s", cmd.Binary, timeout)
		e.emitAudit(AuditEventKilled, cmd, outcome)
		return outcome, fmt.Errorf("%s: %w after %s", cmd.Binary, ErrTimeout, timeout)

	case errors.As(err, &exitErr):
		outcome.ExitCode = exitErr.ExitCode()
		outcome.Signaled = exitSignaled(exitErr)
		logging.TactileDebug("Command exited non-zero: %s -> %d (signaled=%v)",
			cmd.Binary, outcome.ExitCode, outcome.Signaled)

	default:
		outcome.StartError = err.Error()
		logging.TactileError("Command failed to start: %s - %v", cmd.Binary, err)
		e.emitAudit(AuditEventError, cmd, outcome)
		return outcome, fmt.Errorf("failed to start %s: %w", cmd.Binary, err)
	}

	e.emitAudit(AuditEventComplete, cmd, outcome)

	logging.Tactile("Command completed: %s -> exit=%d, duration=%s, stdout=%d bytes, stderr=%d bytes",
		cmd.Binary, outcome.ExitCode, outcome.Duration, len(outcome.Stdout), len(outcome.Stderr))

	return outcome, nil
}

// buildEnvironment creates the child's environment: allow-listed parent
// variables, then forced variables, then command extras.
func (e *DirectExecutor) buildEnvironment(cmdEnv []string) []string {
	env := make([]string, 0, len(e.config.AllowedEnvironment)+len(e.config.ForcedEnvironment)+len(cmdEnv))

	for _, key := range e.config.AllowedEnvironment {
		if val, ok := os.LookupEnv(key); ok && val != "" {
			env = append(env, key+"="+val)
		}
	}

	env = append(env, e.config.ForcedEnvironment...)
	env = append(env, cmdEnv...)

	return env
}

// limitedWriter keeps the first max bytes of a stream and counts the rest.
// It always reports the full length so the child never sees a short write.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
	discarded int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)

	if lw.written >= lw.max {
		lw.truncated = true
		lw.discarded += int64(n)
		return n, nil
	}

	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		lw.discarded += int64(n) - remaining
		written, err := lw.w.Write(p[:remaining])
		lw.written += int64(written)
		return n, err
	}

	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}
