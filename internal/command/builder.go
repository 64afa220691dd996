package command

import (
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"btpctl/internal/failure"
	"btpctl/internal/logging"
)

// allowedVerbs is closed. Session verbs (login, logout, target) are
// deliberately absent: the user owns the CLI session.
var allowedVerbs = map[string]bool{
	"list":        true,
	"get":         true,
	"create":      true,
	"update":      true,
	"delete":      true,
	"assign":      true,
	"unassign":    true,
	"add":         true,
	"remove":      true,
	"enable":      true,
	"subscribe":   true,
	"unsubscribe": true,
	"register":    true,
	"unregister":  true,
	"move":        true,
	"share":       true,
	"unshare":     true,
}

var guidParams = map[string]bool{
	"subaccount":       true,
	"to-subaccount":    true,
	"from-subaccount":  true,
	"global-account":   true,
	"directory":        true,
	"to-directory":     true,
	"parent-directory": true,
}

var emailParams = map[string]bool{
	"user":      true,
	"to-user":   true,
	"from-user": true,
	"email":     true,
}

var nonEmptyParams = map[string]bool{
	"display-name": true,
	"name":         true,
	"region":       true,
}

var (
	objectPattern    = regexp.MustCompile(`^[a-z][a-z0-9-]*(/[a-z][a-z0-9-]*)+$`)
	paramNamePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)
	emailPattern     = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s.]+$`)
	subdomainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)
)

// AllowedVerbs returns the allow-listed verbs in sorted order.
func AllowedVerbs() []string {
	verbs := make([]string, 0, len(allowedVerbs))
	for v := range allowedVerbs {
		verbs = append(verbs, v)
	}
	sort.Strings(verbs)
	return verbs
}

// Builder turns requests into argument vectors.
type Builder struct{}

// NewBuilder creates a Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build validates req and returns the full argument vector, starting with
// binary. Every value is a discrete element; nothing is ever joined into a
// shell string.
func (b *Builder) Build(binary string, req Request) ([]string, error) {
	if binary == "" {
		return nil, failure.New(failure.KindBinaryNotFound, "no binary to run")
	}

	params, err := normalize(req)
	if err != nil {
		logging.BuilderWarn("Rejected %s %s: %v", req.Verb, req.Object, err)
		return nil, err
	}

	argv := []string{binary, "--format", "json", req.Verb}
	if req.Object != "" {
		argv = append(argv, req.Object)
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := params[name]
		if b, ok := value.(bool); ok {
			if b {
				argv = append(argv, "--"+name)
			}
			continue
		}
		argv = append(argv, "--"+name, value.(string))
	}

	logging.BuilderDebug("Built argv: %s", strings.Join(argv[1:], " "))
	return argv, nil
}

// Validate checks req without building an argument vector.
func Validate(req Request) error {
	_, err := normalize(req)
	return err
}

// normalize validates req and returns its parameters keyed by normalized
// name, with values formatted as strings (booleans stay bool).
func normalize(req Request) (map[string]interface{}, error) {
	if req.Verb == "" {
		return nil, invalid("verb is required")
	}
	if !allowedVerbs[req.Verb] {
		return nil, invalid("verb %q is not allowed (allowed: %s)", req.Verb, strings.Join(AllowedVerbs(), ", "))
	}
	if req.Object != "" && !objectPattern.MatchString(req.Object) {
		return nil, invalid("object %q must look like group/object", req.Object)
	}

	params := make(map[string]interface{}, len(req.Params))
	for rawName, rawValue := range req.Params {
		name := strings.TrimLeft(rawName, "-")
		if !paramNamePattern.MatchString(name) {
			return nil, invalid("parameter name %q is invalid", rawName)
		}
		if name == "format" {
			return nil, invalid("parameter %q is reserved; output is always JSON", rawName)
		}
		if _, dup := params[name]; dup {
			return nil, invalid("parameter %q is given more than once", name)
		}

		value, err := formatValue(name, rawValue)
		if err != nil {
			return nil, err
		}
		if s, ok := value.(string); ok {
			if err := checkShape(name, s); err != nil {
				return nil, err
			}
		} else if guidParams[name] || emailParams[name] || nonEmptyParams[name] || name == "subdomain" {
			return nil, invalid("parameter %q needs a value, not a flag", name)
		}
		params[name] = value
	}

	return params, nil
}

// formatValue converts a parameter value to its argv form.
func formatValue(name string, v interface{}) (interface{}, error) {
	var s string
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		s = val
	case json.Number:
		s = val.String()
	case int:
		s = strconv.FormatInt(int64(val), 10)
	case int8:
		s = strconv.FormatInt(int64(val), 10)
	case int16:
		s = strconv.FormatInt(int64(val), 10)
	case int32:
		s = strconv.FormatInt(int64(val), 10)
	case int64:
		s = strconv.FormatInt(val, 10)
	case uint:
		s = strconv.FormatUint(uint64(val), 10)
	case uint8:
		s = strconv.FormatUint(uint64(val), 10)
	case uint16:
		s = strconv.FormatUint(uint64(val), 10)
	case uint32:
		s = strconv.FormatUint(uint64(val), 10)
	case uint64:
		s = strconv.FormatUint(val, 10)
	case float32:
		return formatFloat(name, float64(val), 32)
	case float64:
		return formatFloat(name, val, 64)
	default:
		return nil, invalid("parameter %q has unsupported type %T", name, v)
	}

	if strings.ContainsAny(s, "\x00\r\n") {
		return nil, invalid("parameter %q contains a control character", name)
	}
	if strings.HasPrefix(s, "-") && !isNumber(s) {
		return nil, invalid("parameter %q value may not start with -", name)
	}
	return s, nil
}

// isNumber reports whether s is a plain decimal number such as "-3" or "-0.5".
func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil && !strings.ContainsAny(s, "xXpPnN_")
}

func formatFloat(name string, f float64, bits int) (interface{}, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, invalid("parameter %q is not a finite number", name)
	}
	return strconv.FormatFloat(f, 'f', -1, bits), nil
}

// checkShape applies the per-parameter format rules.
func checkShape(name, value string) error {
	switch {
	case guidParams[name]:
		if _, err := uuid.Parse(value); len(value) != 36 || err != nil {
			return invalid("parameter %q must be a GUID, got %q", name, value)
		}
	case emailParams[name]:
		if !emailPattern.MatchString(value) {
			return invalid("parameter %q must be an email address, got %q", name, value)
		}
	case name == "subdomain":
		if !subdomainPattern.MatchString(value) {
			return invalid("subdomain %q must be lowercase letters, digits and dashes", value)
		}
	case nonEmptyParams[name]:
		if strings.TrimSpace(value) == "" {
			return invalid("parameter %q must not be empty", name)
		}
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return failure.New(failure.KindValidation, format, args...)
}
