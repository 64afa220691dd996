package tactile

import (
	"context"
)

// Executor is the interface for command execution.
type Executor interface {
	// Execute runs a command and returns its outcome.
	// A non-nil outcome may accompany a non-nil error (timeout, cancellation,
	// spawn failure). A non-zero exit is not an error at this layer.
	Execute(ctx context.Context, cmd Command) (*Outcome, error)
}

// AuditedExecutor is an executor that reports execution events.
type AuditedExecutor interface {
	Executor

	// SetAuditCallback sets the callback for audit events.
	SetAuditCallback(callback func(AuditEvent))
}
