// Package recovery extracts a well-formed JSON payload from CLI output that
// may be interleaved with warnings, banners or partial failures.
package recovery

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"btpctl/internal/failure"
	"btpctl/internal/logging"
	"btpctl/internal/tactile"
)

// Provenance records how a payload was obtained.
type Provenance string

const (
	// ProvenanceClean means stdout was exactly one JSON document.
	ProvenanceClean Provenance = "clean"

	// ProvenanceRecovered means the payload was extracted from mixed text.
	ProvenanceRecovered Provenance = "recovered"
)

// Payload is a decoded JSON document.
type Payload struct {
	// Value is the decoded document; numbers are json.Number.
	Value interface{} `json:"value"`

	// Raw is the exact JSON text that was decoded.
	Raw json.RawMessage `json:"-"`

	Provenance Provenance `json:"provenance"`
}

// Recover returns the payload carried by a process outcome.
func Recover(outcome *tactile.Outcome) (*Payload, error) {
	if outcome == nil {
		return nil, failure.New(failure.KindParse, "no process output")
	}

	text := strings.TrimSpace(strings.TrimPrefix(outcome.Stdout, "\ufeff"))
	if text == "" {
		return nil, failure.New(failure.KindParse, "empty output on stdout").WithOutcome(outcome)
	}

	// Direct path
	if v, err := Decode(text); err == nil {
		logging.RecoveryDebug("Decoded clean payload (%d bytes)", len(text))
		return &Payload{Value: v, Raw: json.RawMessage(text), Provenance: ProvenanceClean}, nil
	}

	// A capped stream has lost its closing delimiters; any inner candidate
	// would be a fragment of the real payload.
	if outcome.Truncated {
		logging.RecoveryWarn("Output truncated (%d bytes discarded), not recovering", outcome.TruncatedBytes)
		return nil, failure.New(failure.KindParse, "output truncated after %d bytes (%d bytes discarded)",
			len(outcome.Stdout), outcome.TruncatedBytes).WithOutcome(outcome)
	}

	// Recovery path: stdout first, then everything the process wrote.
	if p := fromCandidates(outcome.Stdout); p != nil {
		logging.RecoveryDebug("Recovered payload from stdout (%d of %d bytes)", len(p.Raw), len(outcome.Stdout))
		return p, nil
	}
	if outcome.Stderr != "" {
		if p := fromCandidates(outcome.Combined()); p != nil {
			logging.RecoveryWarn("Recovered payload from combined output (%d bytes)", len(p.Raw))
			return p, nil
		}
	}

	logging.RecoveryWarn("No JSON payload in %d bytes of stdout", len(outcome.Stdout))
	return nil, failure.New(failure.KindParse, "no JSON payload found in %d bytes of output", len(outcome.Stdout)).
		WithOutcome(outcome)
}

// fromCandidates tries every balanced candidate, longest first.
func fromCandidates(s string) *Payload {
	candidates := FindCandidates(s)
	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i]) > len(candidates[j])
	})

	for _, c := range candidates {
		v, err := Decode(c)
		if err != nil {
			logging.RecoveryDebug("Candidate rejected (%d bytes): %v", len(c), err)
			continue
		}
		return &Payload{Value: v, Raw: json.RawMessage(c), Provenance: ProvenanceRecovered}
	}
	return nil
}

// Decode strictly decodes s as a single JSON object or array.
// Trailing data after the document is an error.
func Decode(s string) (interface{}, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if err := dec.Decode(new(json.RawMessage)); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("trailing data after JSON document")
	}

	switch v.(type) {
	case map[string]interface{}, []interface{}:
		return v, nil
	default:
		return nil, fmt.Errorf("top-level JSON value is %T, want object or array", v)
	}
}

// IsDocument reports whether s, trimmed, is exactly one JSON object or array.
func IsDocument(s string) bool {
	_, err := Decode(strings.TrimSpace(s))
	return err == nil
}
