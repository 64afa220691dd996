// Package btp is the execution engine: it validates a request, locates the
// CLI, runs it under the retry policy and returns either a recovered JSON
// payload or a classified error, never both.
package btp

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"btpctl/internal/classify"
	"btpctl/internal/command"
	"btpctl/internal/config"
	"btpctl/internal/failure"
	"btpctl/internal/journal"
	"btpctl/internal/locator"
	"btpctl/internal/logging"
	"btpctl/internal/recovery"
	"btpctl/internal/retry"
	"btpctl/internal/tactile"
)

// BinaryLocator resolves the CLI executable.
type BinaryLocator interface {
	Locate() (locator.Location, error)
}

// Recorder persists per-attempt journal entries.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Result is a successful execution.
type Result struct {
	Payload    interface{}         `json:"payload"`
	Raw        json.RawMessage     `json:"-"`
	Provenance recovery.Provenance `json:"provenance"`
	Attempts   int                 `json:"attempts"`
	Duration   time.Duration       `json:"duration"`
	RequestID  string              `json:"request_id"`
}

// Options wires an Engine. Locator and Executor are required.
type Options struct {
	Locator  BinaryLocator
	Executor tactile.Executor
	Builder  *command.Builder
	Retry    *retry.Controller
	Journal  Recorder

	TimeoutShort time.Duration
	TimeoutLong  time.Duration

	// Env is appended to every child's environment (KEY=VALUE).
	Env []string

	// NewRequestID generates request ids; defaults to uuid.NewString.
	NewRequestID func() string
}

// Engine executes requests against the btp CLI.
type Engine struct {
	opts Options
}

// New creates an Engine, filling unset options with defaults.
func New(opts Options) *Engine {
	if opts.Builder == nil {
		opts.Builder = command.NewBuilder()
	}
	if opts.Retry == nil {
		opts.Retry = retry.New(retry.DefaultPolicy())
	}
	if opts.TimeoutShort <= 0 {
		opts.TimeoutShort = 60 * time.Second
	}
	if opts.TimeoutLong <= 0 {
		opts.TimeoutLong = 120 * time.Second
	}
	if opts.NewRequestID == nil {
		opts.NewRequestID = uuid.NewString
	}
	return &Engine{opts: opts}
}

// NewFromConfig builds the full production stack from configuration.
// The returned close function releases the journal, if one was opened.
func NewFromConfig(cfg *config.Config) (*Engine, func() error, error) {
	loc := locator.New(locator.Options{
		Override:   cfg.CLI.Path,
		SearchDirs: cfg.CLI.SearchDirs,
	})

	execCfg := tactile.DefaultExecutorConfig()
	execCfg.DefaultTimeout = cfg.GetTimeoutShort()
	if long := cfg.GetTimeoutLong(); long > execCfg.MaxTimeout {
		execCfg.MaxTimeout = long
	}
	execCfg.MaxConcurrent = cfg.Execution.MaxConcurrent
	if cfg.Execution.MaxOutputBytes > 0 {
		execCfg.MaxOutputBytes = cfg.Execution.MaxOutputBytes
	}
	if len(cfg.Execution.AllowedEnvVars) > 0 {
		execCfg.AllowedEnvironment = cfg.Execution.AllowedEnvVars
	}
	executor := tactile.NewDirectExecutorWithConfig(execCfg)

	opts := Options{
		Locator:  loc,
		Executor: executor,
		Retry: retry.New(retry.Policy{
			MaxAttempts:    cfg.Execution.MaxAttempts,
			BaseDelay:      cfg.GetBaseDelay(),
			MaxDelay:       cfg.GetMaxDelay(),
			LatencyCeiling: cfg.GetLatencyCeiling(),
		}),
		TimeoutShort: cfg.GetTimeoutShort(),
		TimeoutLong:  cfg.GetTimeoutLong(),
		Env:          cfg.Execution.ExtraEnv,
	}

	closeFn := func() error { return nil }
	if cfg.Journal.Enabled {
		store, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, nil, err
		}
		opts.Journal = store
		closeFn = store.Close
	}

	return New(opts), closeFn, nil
}

// Locate resolves the CLI binary.
func (e *Engine) Locate() (locator.Location, error) {
	return e.opts.Locator.Locate()
}

// Execute runs one request to a terminal result.
func (e *Engine) Execute(ctx context.Context, req command.Request) (*Result, error) {
	requestID := e.opts.NewRequestID()
	log := logging.WithRequestID(logging.CategoryEngine, requestID)
	start := time.Now()

	if err := command.Validate(req); err != nil {
		log.Warn("Rejected %s %s: %v", req.Verb, req.Object, err)
		return nil, err
	}

	loc, err := e.opts.Locator.Locate()
	if err != nil {
		log.Warn("Cannot run %s %s: %v", req.Verb, req.Object, err)
		return nil, err
	}

	argv, err := e.opts.Builder.Build(loc.Path, req)
	if err != nil {
		return nil, err
	}

	timeout := e.opts.TimeoutShort
	if req.TimeoutClass() == command.TimeoutLong {
		timeout = e.opts.TimeoutLong
	}

	log.Debug("Executing %s %s (timeout %s)", req.Verb, req.Object, timeout)

	var payload *recovery.Payload
	stats, err := e.opts.Retry.Do(ctx, func(ctx context.Context, n int) error {
		outcome, runErr := e.opts.Executor.Execute(ctx, tactile.Command{
			Binary:      argv[0],
			Arguments:   argv[1:],
			Environment: e.opts.Env,
			Timeout:     timeout,
			RequestID:   requestID,
			Attempt:     n,
		})

		var attemptErr error
		if fe := classify.Classify(outcome, runErr); fe != nil {
			attemptErr = fe
		} else {
			payload, attemptErr = recovery.Recover(outcome)
		}

		e.record(ctx, requestID, req, argv, n, outcome, attemptErr)
		return attemptErr
	})

	if err != nil {
		var fe *failure.Error
		if !errors.As(err, &fe) {
			err = failure.Wrap(failure.KindUnknown, err, "execution failed")
		}
		log.Warn("%s %s failed after %d attempt(s): %v", req.Verb, req.Object, stats.Attempts, err)
		return nil, err
	}

	result := &Result{
		Payload:    payload.Value,
		Raw:        payload.Raw,
		Provenance: payload.Provenance,
		Attempts:   stats.Attempts,
		Duration:   time.Since(start),
		RequestID:  requestID,
	}
	log.Info("%s %s succeeded (%s, %d attempt(s), %s)",
		req.Verb, req.Object, result.Provenance, result.Attempts, result.Duration)
	return result, nil
}

// record writes one attempt to the journal. Journal failures never fail a request.
func (e *Engine) record(ctx context.Context, requestID string, req command.Request, argv []string, attempt int, outcome *tactile.Outcome, attemptErr error) {
	if e.opts.Journal == nil {
		return
	}

	entry := journal.Entry{
		RequestID: requestID,
		Verb:      req.Verb,
		Object:    req.Object,
		Argv:      argv,
		ExitCode:  -1,
		Attempt:   attempt,
		StartedAt: time.Now(),
	}
	if outcome != nil {
		entry.ExitCode = outcome.ExitCode
		entry.Duration = outcome.Duration
		entry.Killed = outcome.Killed
		if !outcome.StartedAt.IsZero() {
			entry.StartedAt = outcome.StartedAt
		}
	}
	if attemptErr != nil {
		entry.Kind = string(failure.KindOf(attemptErr))
	}

	// Record even when the request's context is already done.
	if err := e.opts.Journal.Record(context.WithoutCancel(ctx), entry); err != nil {
		logging.JournalError("Dropping journal entry for %s: %v", requestID, err)
	}
}
