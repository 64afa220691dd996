package btp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btpctl/internal/command"
	"btpctl/internal/config"
	"btpctl/internal/failure"
	"btpctl/internal/journal"
	"btpctl/internal/locator"
	"btpctl/internal/recovery"
	"btpctl/internal/retry"
	"btpctl/internal/tactile"
)

const (
	testBinary = "/opt/sap/btp/btp"
	guid       = "0f7a0b1c-9a1e-4f1d-8d1a-2b7c6e9f0a11"
)

type step struct {
	outcome *tactile.Outcome
	err     error
}

// scriptedExecutor replays steps; the last step repeats.
type scriptedExecutor struct {
	mu    sync.Mutex
	steps []step
	calls []tactile.Command
}

func (s *scriptedExecutor) Execute(ctx context.Context, cmd tactile.Command) (*tactile.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.calls)
	s.calls = append(s.calls, cmd)
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	st := s.steps[i]
	return st.outcome, st.err
}

func (s *scriptedExecutor) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type fixedLocator struct {
	loc locator.Location
	err error
}

func (f fixedLocator) Locate() (locator.Location, error) { return f.loc, f.err }

type memoryJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (m *memoryJournal) Record(ctx context.Context, e journal.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func newTestEngine(exec tactile.Executor, rec Recorder) *Engine {
	return New(Options{
		Locator:  fixedLocator{loc: locator.Location{Path: testBinary, Source: locator.SourceWellKnown}},
		Executor: exec,
		Retry: retry.New(retry.Policy{
			MaxAttempts:    3,
			BaseDelay:      time.Second,
			MaxDelay:       8 * time.Second,
			LatencyCeiling: time.Minute,
		}).WithSleeper(func(ctx context.Context, d time.Duration) error { return ctx.Err() }),
		Journal:      rec,
		TimeoutShort: 60 * time.Second,
		TimeoutLong:  120 * time.Second,
		Env:          []string{"BTPCTL_TRACE=1"},
		NewRequestID: func() string { return "req-test" },
	})
}

func ok(stdout string) step {
	return step{outcome: &tactile.Outcome{ExitCode: 0, Stdout: stdout}}
}

func failed(code int, stderr string) step {
	return step{outcome: &tactile.Outcome{ExitCode: code, Stderr: stderr}}
}

func TestExecute_RejectsBeforeSpawning(t *testing.T) {
	tests := []struct {
		name string
		req  command.Request
	}{
		{"verb not allowed", command.NewRequest("login", "", nil)},
		{"malformed guid", command.NewRequest("get", "accounts/subaccount", map[string]interface{}{"subaccount": "1234"})},
		{"malformed email", command.NewRequest("get", "security/user", map[string]interface{}{"user": "nobody"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &scriptedExecutor{steps: []step{ok(`{}`)}}
			result, err := newTestEngine(exec, nil).Execute(context.Background(), tt.req)

			assert.Nil(t, result)
			assert.Equal(t, failure.KindValidation, failure.KindOf(err))
			assert.Equal(t, 0, exec.callCount())
		})
	}
}

func TestExecute_RecoversPayloadAfterWarning(t *testing.T) {
	exec := &scriptedExecutor{steps: []step{ok("Warning: deprecated flag\n{\"subaccounts\":[]}\n")}}

	result, err := newTestEngine(exec, nil).ListSubaccounts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, recovery.ProvenanceRecovered, result.Provenance)
	assert.Equal(t, map[string]interface{}{"subaccounts": []interface{}{}}, result.Payload)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, "req-test", result.RequestID)

	call := exec.calls[0]
	assert.Equal(t, testBinary, call.Binary)
	assert.Equal(t, []string{"--format", "json", "list", "accounts/subaccount"}, call.Arguments)
	assert.Equal(t, 60*time.Second, call.Timeout)
	assert.Equal(t, []string{"BTPCTL_TRACE=1"}, call.Environment)
	assert.Equal(t, 1, call.Attempt)
}

func TestExecute_CleanPayload(t *testing.T) {
	exec := &scriptedExecutor{steps: []step{ok(`{"ok":true}`)}}

	result, err := newTestEngine(exec, nil).Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, recovery.ProvenanceClean, result.Provenance)
	assert.JSONEq(t, `{"ok":true}`, string(result.Raw))
}

func TestExecute_ExpiredSessionIsNotRetried(t *testing.T) {
	exec := &scriptedExecutor{steps: []step{failed(1, "Error: session has expired")}}
	rec := &memoryJournal{}

	result, err := newTestEngine(exec, rec).ListUsers(context.Background())

	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrAuthentication))
	assert.Equal(t, 1, exec.callCount())

	var fe *failure.Error
	require.True(t, errors.As(err, &fe))
	assert.Contains(t, fe.Hint, "btp login")
	assert.Equal(t, "Error: session has expired", fe.Message)

	require.Len(t, rec.entries, 1)
	assert.Equal(t, "authentication", rec.entries[0].Kind)
}

func TestExecute_RetriesTransientThenSucceeds(t *testing.T) {
	exec := &scriptedExecutor{steps: []step{
		failed(1, "503 Service Unavailable"),
		{outcome: &tactile.Outcome{Killed: true, ExitCode: -1}, err: fmt.Errorf("btp: %w", tactile.ErrTimeout)},
		ok(`[{"name":"eu10"}]`),
	}}
	rec := &memoryJournal{}

	result, err := newTestEngine(exec, rec).ListRegions(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, exec.callCount())
	for i, call := range exec.calls {
		assert.Equal(t, i+1, call.Attempt)
	}

	require.Len(t, rec.entries, 3)
	assert.Equal(t, "transient", rec.entries[0].Kind)
	assert.Equal(t, "timeout", rec.entries[1].Kind)
	assert.True(t, rec.entries[1].Killed)
	assert.Empty(t, rec.entries[2].Kind)
	for _, e := range rec.entries {
		assert.Equal(t, "req-test", e.RequestID)
	}
}

func TestExecute_TransientBudgetExhausted(t *testing.T) {
	exec := &scriptedExecutor{steps: []step{failed(1, "connection reset by peer")}}

	result, err := newTestEngine(exec, nil).ListRoleCollections(context.Background())
	assert.Nil(t, result)
	assert.Equal(t, failure.KindTransient, failure.KindOf(err))
	assert.Equal(t, 3, exec.callCount())
}

func TestExecute_ParseErrorIsNotRetried(t *testing.T) {
	exec := &scriptedExecutor{steps: []step{ok("Subaccount deleted.")}}

	_, err := newTestEngine(exec, nil).DeleteSubaccount(context.Background(), guid, true)
	assert.Equal(t, failure.KindParse, failure.KindOf(err))
	assert.Equal(t, 1, exec.callCount())
	assert.Equal(t, 120*time.Second, exec.calls[0].Timeout)
}

func TestExecute_BinaryNotFound(t *testing.T) {
	exec := &scriptedExecutor{steps: []step{ok(`{}`)}}
	engine := newTestEngine(exec, nil)
	engine.opts.Locator = fixedLocator{err: failure.New(failure.KindBinaryNotFound, "btp executable not found")}

	_, err := engine.GetGlobalAccount(context.Background())
	assert.True(t, errors.Is(err, failure.ErrBinaryNotFound))
	assert.Equal(t, 0, exec.callCount())
}

func TestExecute_PlainExecutorErrorIsClassified(t *testing.T) {
	exec := &scriptedExecutor{steps: []step{{err: errors.New("waiting for execution slot: boom")}}}

	result, err := newTestEngine(exec, nil).ListUsers(context.Background())
	assert.Nil(t, result)
	var fe *failure.Error
	assert.True(t, errors.As(err, &fe))
}

func TestOperationsBuildExpectedArgv(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		call func(e *Engine) (*Result, error)
		want []string
	}{
		{"get subaccount", func(e *Engine) (*Result, error) { return e.GetSubaccount(ctx, guid) },
			[]string{"--format", "json", "get", "accounts/subaccount", "--subaccount", guid}},
		{"create subaccount", func(e *Engine) (*Result, error) {
			return e.CreateSubaccount(ctx, SubaccountSpec{DisplayName: "Dev", Region: "eu10", Subdomain: "dev-1", BetaEnabled: true})
		}, []string{"--format", "json", "create", "accounts/subaccount", "--beta-enabled", "--display-name", "Dev", "--region", "eu10", "--subdomain", "dev-1"}},
		{"delete without confirm", func(e *Engine) (*Result, error) { return e.DeleteSubaccount(ctx, guid, false) },
			[]string{"--format", "json", "delete", "accounts/subaccount", "--subaccount", guid}},
		{"environment instances", func(e *Engine) (*Result, error) { return e.ListEnvironmentInstances(ctx, guid) },
			[]string{"--format", "json", "list", "accounts/environment-instance", "--subaccount", guid}},
		{"get user", func(e *Engine) (*Result, error) { return e.GetUser(ctx, "ana@example.com") },
			[]string{"--format", "json", "get", "security/user", "--user", "ana@example.com"}},
		{"assign role collection", func(e *Engine) (*Result, error) {
			return e.AssignRoleCollection(ctx, "Global Account Viewer", "ana@example.com")
		}, []string{"--format", "json", "assign", "security/role-collection", "--name", "Global Account Viewer", "--to-user", "ana@example.com"}},
		{"unassign role collection", func(e *Engine) (*Result, error) {
			return e.UnassignRoleCollection(ctx, "Global Account Viewer", "ana@example.com")
		}, []string{"--format", "json", "unassign", "security/role-collection", "--from-user", "ana@example.com", "--name", "Global Account Viewer"}},
		{"list entitlements", func(e *Engine) (*Result, error) { return e.ListEntitlements(ctx, guid) },
			[]string{"--format", "json", "list", "accounts/entitlement", "--subaccount", guid}},
		{"assign entitlement", func(e *Engine) (*Result, error) {
			return e.AssignEntitlement(ctx, EntitlementSpec{Subaccount: guid, ServiceName: "xsuaa", PlanName: "application", Amount: 2})
		}, []string{"--format", "json", "assign", "accounts/entitlement", "--amount", "2", "--plan-name", "application", "--service-name", "xsuaa", "--to-subaccount", guid}},
		{"remove entitlement", func(e *Engine) (*Result, error) {
			return e.RemoveEntitlement(ctx, EntitlementSpec{Subaccount: guid, ServiceName: "xsuaa", PlanName: "application"})
		}, []string{"--format", "json", "remove", "accounts/entitlement", "--plan-name", "application", "--service-name", "xsuaa", "--subaccount", guid}},
		{"service instances", func(e *Engine) (*Result, error) { return e.ListServiceInstances(ctx, guid) },
			[]string{"--format", "json", "list", "services/instance", "--subaccount", guid}},
		{"service bindings", func(e *Engine) (*Result, error) { return e.ListServiceBindings(ctx, guid) },
			[]string{"--format", "json", "list", "services/binding", "--subaccount", guid}},
		{"destinations", func(e *Engine) (*Result, error) { return e.ListDestinations(ctx, guid) },
			[]string{"--format", "json", "list", "connectivity/destination", "--subaccount", guid}},
		{"destination", func(e *Engine) (*Result, error) { return e.GetDestination(ctx, guid, "backend") },
			[]string{"--format", "json", "get", "connectivity/destination", "--name", "backend", "--subaccount", guid}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &scriptedExecutor{steps: []step{ok(`{}`)}}
			_, err := tt.call(newTestEngine(exec, nil))
			require.NoError(t, err)
			require.Equal(t, 1, exec.callCount())
			if diff := cmp.Diff(tt.want, exec.calls[0].Arguments); diff != "" {
				t.Errorf("argv mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// TestEndToEnd runs a fake btp script through the production stack.
func TestEndToEnd(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a POSIX shell script as the fake CLI")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "btp")
	require.NoError(t, os.WriteFile(script, []byte(`#!/bin/sh
if [ "$BTP_NON_INTERACTIVE" != "true" ]; then
  echo "prompting" >&2
  exit 9
fi
echo "Warning: a newer version of the btp CLI is available"
echo '{"subaccounts":[{"guid":"`+guid+`","args":"'"$*"'"}]}'
`), 0o755))

	cfg := config.DefaultConfig()
	cfg.CLI.Path = script
	cfg.Journal.Enabled = true
	cfg.Journal.Path = filepath.Join(dir, "journal.db")

	engine, closeFn, err := NewFromConfig(cfg)
	require.NoError(t, err)
	defer closeFn()

	result, err := engine.ListSubaccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, recovery.ProvenanceRecovered, result.Provenance)

	payload := result.Payload.(map[string]interface{})
	subs := payload["subaccounts"].([]interface{})
	require.Len(t, subs, 1)
	assert.Equal(t, "--format json list accounts/subaccount", subs[0].(map[string]interface{})["args"])

	loc, err := engine.Locate()
	require.NoError(t, err)
	assert.Equal(t, locator.SourceOverride, loc.Source)

	store := engine.opts.Journal.(*journal.Store)
	entries, err := store.ForRequest(context.Background(), result.RequestID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 0, entries[0].ExitCode)
	assert.Equal(t, "list", entries[0].Verb)
}
