// Package classify maps a process outcome to a failure kind.
//
// Recognizers run in a fixed order and the first match wins:
//
//	spawn      executable missing, timeout, cancellation
//	auth       expired or missing CLI session
//	not found  unknown resource identifiers
//	validation malformed input rejected by the CLI
//	transient  network trouble, signal death, EX_TEMPFAIL
//	unknown    any other non-zero exit
//
// A zero exit is still checked for auth and validation phrases, because the
// CLI sometimes reports those on stderr without failing.
package classify

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os/exec"
	"strconv"
	"strings"

	"btpctl/internal/failure"
	"btpctl/internal/logging"
	"btpctl/internal/recovery"
	"btpctl/internal/tactile"
)

// exitTempFail is EX_TEMPFAIL from sysexits.h.
const exitTempFail = 75

var (
	authPhrases = []string{
		"not logged in",
		"session has expired",
		"session expired",
		"please log in",
		"login required",
		"refresh token",
		"unauthorized",
	}

	notFoundPhrases = []string{
		"not found",
		"does not exist",
		"no such",
		"could not find",
		"unknown subaccount",
	}

	validationPhrases = []string{
		"invalid",
		"missing required",
		"unknown option",
		"unknown flag",
		"bad request",
		"malformed",
		"usage:",
	}

	networkPhrases = []string{
		"timed out",
		"timeout",
		"connection refused",
		"connection reset",
		"temporarily unavailable",
		"service unavailable",
		"bad gateway",
		"gateway timeout",
		"too many requests",
		"no such host",
		"network is unreachable",
		"tls handshake",
		"unexpected eof",
	}
)

// recognizer inspects lower-cased diagnostic text.
// Phrases listed in unless are blanked out before matching.
type recognizer struct {
	kind    failure.Kind
	phrases []string
	unless  []string
}

var failedExitRecognizers = []recognizer{
	{kind: failure.KindAuthentication, phrases: authPhrases},
	{kind: failure.KindResourceNotFound, phrases: notFoundPhrases, unless: []string{"no such host"}},
	{kind: failure.KindValidation, phrases: validationPhrases},
	{kind: failure.KindTransient, phrases: networkPhrases},
}

var zeroExitRecognizers = []recognizer{
	{kind: failure.KindAuthentication, phrases: authPhrases},
	{kind: failure.KindValidation, phrases: validationPhrases},
}

// Classify returns the classified error for an attempt, or nil when the
// attempt produced no error. runErr is the error returned by the executor.
func Classify(outcome *tactile.Outcome, runErr error) *failure.Error {
	if fe := classifySpawn(outcome, runErr); fe != nil {
		logging.ClassifyDebug("Spawn failure classified as %s", fe.Kind)
		return fe
	}
	if outcome == nil {
		return nil
	}

	message := cliMessage(outcome)

	if outcome.ExitCode == 0 && !outcome.Signaled {
		// Payloads are masked so only the text around them is matched.
		text := strings.ToLower(outcome.Stderr)
		if !recovery.IsDocument(outcome.Stdout) {
			text += "\n" + strings.ToLower(recovery.MaskDocuments(outcome.Stdout))
		}
		if r, phrase := match(zeroExitRecognizers, text); r != nil {
			logging.ClassifyDebug("Exit 0 with %q classified as %s", phrase, r.kind)
			return failure.New(r.kind, "%s", message).WithOutcome(outcome)
		}
		return nil
	}

	text := strings.ToLower(outcome.Combined())
	if r, phrase := match(failedExitRecognizers, text); r != nil {
		logging.ClassifyDebug("Exit %d with %q classified as %s", outcome.ExitCode, phrase, r.kind)
		return failure.New(r.kind, "%s", message).WithOutcome(outcome)
	}

	if outcome.Signaled || outcome.ExitCode == exitTempFail {
		logging.ClassifyDebug("Exit %d (signaled=%v) classified as transient", outcome.ExitCode, outcome.Signaled)
		return failure.New(failure.KindTransient, "%s", message).WithOutcome(outcome)
	}

	logging.ClassifyDebug("Exit %d matched no recognizer", outcome.ExitCode)
	return failure.New(failure.KindUnknown, "%s", message).WithOutcome(outcome)
}

// classifySpawn handles attempts where the executor itself returned an error.
func classifySpawn(outcome *tactile.Outcome, runErr error) *failure.Error {
	if runErr == nil {
		return nil
	}

	switch {
	case errors.Is(runErr, tactile.ErrTimeout):
		return failure.Wrap(failure.KindTimeout, runErr, "the CLI did not finish in time").WithOutcome(outcome)
	case errors.Is(runErr, exec.ErrNotFound), errors.Is(runErr, fs.ErrNotExist):
		return failure.Wrap(failure.KindBinaryNotFound, runErr, "the btp executable could not be started").WithOutcome(outcome)
	case errors.Is(runErr, fs.ErrPermission):
		return failure.Wrap(failure.KindBinaryNotFound, runErr, "the btp executable is not executable").WithOutcome(outcome)
	case errors.Is(runErr, context.DeadlineExceeded):
		return failure.Wrap(failure.KindTimeout, runErr, "the caller's deadline expired").WithOutcome(outcome)
	default:
		return failure.Wrap(failure.KindUnknown, runErr, "execution failed").WithOutcome(outcome)
	}
}

func match(recognizers []recognizer, text string) (*recognizer, string) {
	for i := range recognizers {
		subject := text
		for _, u := range recognizers[i].unless {
			subject = strings.ReplaceAll(subject, u, "")
		}
		for _, phrase := range recognizers[i].phrases {
			if strings.Contains(subject, phrase) {
				return &recognizers[i], phrase
			}
		}
	}
	return nil, ""
}

// cliError is the JSON error body the CLI prints with --format json.
type cliError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// cliMessage picks the most specific human-readable message for an outcome:
// the CLI's own JSON error message, else the first stderr line, else the
// first stdout line, else the exit status.
func cliMessage(outcome *tactile.Outcome) string {
	for _, candidate := range recovery.FindCandidates(outcome.Combined()) {
		var body cliError
		if json.Unmarshal([]byte(candidate), &body) == nil && body.Error.Message != "" {
			return body.Error.Message
		}
	}

	for _, stream := range []string{outcome.Stderr, outcome.Stdout} {
		if line := firstLine(stream); line != "" {
			return line
		}
	}

	if outcome.Signaled {
		return "the CLI was terminated by a signal"
	}
	return "the CLI exited with status " + strconv.Itoa(outcome.ExitCode)
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
