// Package failure defines the closed set of error kinds btpctl reports and
// the remediation hint attached to each.
package failure

import (
	"errors"
	"fmt"
	"strings"

	"btpctl/internal/tactile"
)

// Kind is a closed enumeration of failure categories.
type Kind string

const (
	KindBinaryNotFound   Kind = "binary_not_found"
	KindValidation       Kind = "validation"
	KindTimeout          Kind = "timeout"
	KindAuthentication   Kind = "authentication"
	KindResourceNotFound Kind = "resource_not_found"
	KindTransient        Kind = "transient"
	KindParse            Kind = "parse"
	KindUnknown          Kind = "unknown"
)

// Kinds lists every kind in a stable order.
var Kinds = []Kind{
	KindBinaryNotFound,
	KindValidation,
	KindTimeout,
	KindAuthentication,
	KindResourceNotFound,
	KindTransient,
	KindParse,
	KindUnknown,
}

// Sentinels for errors.Is checks against a kind.
var (
	ErrBinaryNotFound   = errors.New("btp binary not found")
	ErrValidation       = errors.New("invalid request")
	ErrTimeout          = errors.New("command timed out")
	ErrAuthentication   = errors.New("not authenticated")
	ErrResourceNotFound = errors.New("resource not found")
	ErrTransient        = errors.New("transient failure")
	ErrParse            = errors.New("unparseable output")
	ErrUnknown          = errors.New("command failed")
)

// Sentinel returns the sentinel error for a kind.
func (k Kind) Sentinel() error {
	switch k {
	case KindBinaryNotFound:
		return ErrBinaryNotFound
	case KindValidation:
		return ErrValidation
	case KindTimeout:
		return ErrTimeout
	case KindAuthentication:
		return ErrAuthentication
	case KindResourceNotFound:
		return ErrResourceNotFound
	case KindTransient:
		return ErrTransient
	case KindParse:
		return ErrParse
	default:
		return ErrUnknown
	}
}

// Retryable reports whether a failure of this kind may succeed on a later attempt.
func (k Kind) Retryable() bool {
	return k == KindTransient || k == KindTimeout
}

// Remediation returns the hint shown to the user for a kind.
func Remediation(kind Kind) string {
	switch kind {
	case KindBinaryNotFound:
		return "Install the SAP BTP CLI (https://tools.hana.ondemand.com/#cloud-btpcli) and put it on PATH, or set BTPCTL_CLI_PATH to the btp binary."
	case KindValidation:
		return "Fix your input: check the command, object and parameter values."
	case KindTimeout:
		return "The command did not finish in time. Try again later or use a longer timeout class."
	case KindAuthentication:
		return "Re-authenticate with 'btp login' (add --sso for browser login), then retry."
	case KindResourceNotFound:
		return "Check the identifier and that your user can see the resource in the targeted global account."
	case KindTransient:
		return "The BTP service or network was temporarily unavailable. Try again later."
	case KindParse:
		return "The CLI output contained no JSON payload. Run the command manually to inspect its output."
	default:
		return "Run the command manually to inspect the CLI's diagnostics."
	}
}

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Message string
	Hint    string

	// Outcome is the process result that produced this error, if any.
	Outcome *tactile.Outcome

	// Checked lists the paths probed when the binary could not be located.
	Checked []string

	// Err is the underlying cause, if any.
	Err error
}

// New creates an error of the given kind with its default hint.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Hint:    Remediation(kind),
	}
}

// Wrap creates an error of the given kind around a cause.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	e := New(kind, format, args...)
	e.Err = err
	return e
}

// WithOutcome attaches the originating process outcome.
func (e *Error) WithOutcome(o *tactile.Outcome) *Error {
	e.Outcome = o
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.Sentinel()
}

// KindOf returns the kind of a classified error, or KindUnknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is a classified error of a retryable kind.
func IsRetryable(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind.Retryable()
}
