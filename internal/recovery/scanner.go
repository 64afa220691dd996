package recovery

// span is a half-open byte range [start, end) of a balanced candidate.
type span struct {
	start, end int
}

// FindCandidates scans s for outermost balanced JSON object or array
// candidates, in order of appearance.
//
// Delimiters inside JSON strings are skipped. A candidate whose brackets do
// not match (for example "[WARN} ...") is abandoned, so a stray bracket in a
// log prefix cannot hide a payload that follows it. An opener that is never
// closed does not hide balanced candidates nested after it.
//
// It is safe to iterate bytes for ASCII delimiters because UTF-8 guarantees
// ASCII bytes never appear inside a multi-byte sequence.
func FindCandidates(s string) []string {
	spans := scan(s)
	if len(spans) == 0 {
		return nil
	}
	candidates := make([]string, len(spans))
	for i, sp := range spans {
		candidates[i] = s[sp.start:sp.end]
	}
	return candidates
}

// scan makes a single pass over s. Every closed pair is recorded; a pair that
// closes around earlier records replaces them, so only outermost spans remain.
func scan(s string) []span {
	var (
		spans    []span
		openers  []int  // positions of unclosed openers
		closers  []byte // expected closer for each opener
		inString bool
		escape   bool
	)

	reset := func() {
		openers = openers[:0]
		closers = closers[:0]
		inString = false
		escape = false
	}

	for i := 0; i < len(s); i++ {
		b := s[i]

		// Quotes only matter inside a candidate; free text may hold apostrophes.
		if len(openers) > 0 && inString {
			switch {
			case escape:
				escape = false
			case b == '\\':
				escape = true
			case b == '"':
				inString = false
			case b == '\n':
				// JSON strings cannot span lines.
				reset()
			}
			continue
		}

		switch b {
		case '"':
			if len(openers) > 0 {
				inString = true
			}
		case '{':
			openers = append(openers, i)
			closers = append(closers, '}')
		case '[':
			openers = append(openers, i)
			closers = append(closers, ']')
		case '}', ']':
			if len(openers) == 0 {
				continue
			}
			top := len(openers) - 1
			if closers[top] != b {
				reset()
				continue
			}
			start := openers[top]
			openers = openers[:top]
			closers = closers[:top]

			for len(spans) > 0 && spans[len(spans)-1].start > start {
				spans = spans[:len(spans)-1]
			}
			spans = append(spans, span{start: start, end: i + 1})
		}
	}

	return spans
}

// MaskDocuments returns s with every candidate that decodes as a JSON
// document replaced by spaces. Offsets and line structure are preserved.
func MaskDocuments(s string) string {
	spans := scan(s)
	if len(spans) == 0 {
		return s
	}

	out := []byte(s)
	masked := false
	for _, sp := range spans {
		if _, err := Decode(s[sp.start:sp.end]); err != nil {
			continue
		}
		for i := sp.start; i < sp.end; i++ {
			if out[i] != '\n' {
				out[i] = ' '
			}
		}
		masked = true
	}
	if !masked {
		return s
	}
	return string(out)
}
