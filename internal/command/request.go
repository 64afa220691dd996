// Package command validates execution requests and turns them into argument
// vectors for the btp CLI.
package command

import (
	"sort"
)

// TimeoutClass selects the time budget of a request.
type TimeoutClass int

const (
	// TimeoutDefault derives the class from the verb.
	TimeoutDefault TimeoutClass = iota
	// TimeoutShort is for reads.
	TimeoutShort
	// TimeoutLong is for provisioning and other mutating calls.
	TimeoutLong
)

func (c TimeoutClass) String() string {
	switch c {
	case TimeoutShort:
		return "short"
	case TimeoutLong:
		return "long"
	default:
		return "default"
	}
}

// Request is one logical CLI invocation.
type Request struct {
	// Verb is the CLI action, e.g. "list".
	Verb string `json:"verb"`

	// Object is the optional group/object path, e.g. "accounts/subaccount".
	Object string `json:"object,omitempty"`

	// Params maps parameter names to string, bool, integer or float values.
	Params map[string]interface{} `json:"params,omitempty"`

	// Timeout selects the time budget; TimeoutDefault derives it from Verb.
	Timeout TimeoutClass `json:"timeout,omitempty"`
}

// NewRequest creates a request, copying params.
func NewRequest(verb, object string, params map[string]interface{}) Request {
	return Request{
		Verb:   verb,
		Object: object,
		Params: copyParams(params),
	}
}

// With returns a copy of the request with one more parameter.
func (r Request) With(name string, value interface{}) Request {
	params := copyParams(r.Params)
	if params == nil {
		params = make(map[string]interface{}, 1)
	}
	params[name] = value
	r.Params = params
	return r
}

// WithTimeout returns a copy of the request with an explicit timeout class.
func (r Request) WithTimeout(class TimeoutClass) Request {
	r.Timeout = class
	return r
}

// TimeoutClass resolves the effective timeout class.
func (r Request) TimeoutClass() TimeoutClass {
	if r.Timeout != TimeoutDefault {
		return r.Timeout
	}
	return DefaultTimeoutClass(r.Verb)
}

// ParamNames returns the parameter names in sorted order.
func (r Request) ParamNames() []string {
	names := make([]string, 0, len(r.Params))
	for name := range r.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func copyParams(params map[string]interface{}) map[string]interface{} {
	if params == nil {
		return nil
	}
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}

// DefaultTimeoutClass returns TimeoutLong for verbs that provision or mutate
// and TimeoutShort for everything else.
func DefaultTimeoutClass(verb string) TimeoutClass {
	switch verb {
	case "create", "update", "delete", "subscribe", "unsubscribe", "register", "unregister", "move":
		return TimeoutLong
	default:
		return TimeoutShort
	}
}
