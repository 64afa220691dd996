package btp

import (
	"context"

	"btpctl/internal/command"
)

// SubaccountSpec describes a subaccount to create.
type SubaccountSpec struct {
	DisplayName string
	Region      string
	Subdomain   string

	// Optional
	Description       string
	Directory         string
	BetaEnabled       bool
	UsedForProduction bool
}

// EntitlementSpec identifies a service plan entitlement.
type EntitlementSpec struct {
	Subaccount  string
	ServiceName string
	PlanName    string

	// Amount is the quota to assign; zero leaves it to the CLI default.
	Amount int
}

func (e *Engine) run(ctx context.Context, verb, object string, params map[string]interface{}) (*Result, error) {
	return e.Execute(ctx, command.NewRequest(verb, object, params))
}

// Ping checks that the CLI is installed and its session is valid.
func (e *Engine) Ping(ctx context.Context) (*Result, error) {
	return e.GetGlobalAccount(ctx)
}

// --- Accounts ---

func (e *Engine) GetGlobalAccount(ctx context.Context) (*Result, error) {
	return e.run(ctx, "get", "accounts/global-account", nil)
}

func (e *Engine) ListSubaccounts(ctx context.Context) (*Result, error) {
	return e.run(ctx, "list", "accounts/subaccount", nil)
}

func (e *Engine) GetSubaccount(ctx context.Context, subaccountID string) (*Result, error) {
	return e.run(ctx, "get", "accounts/subaccount", map[string]interface{}{
		"subaccount": subaccountID,
	})
}

func (e *Engine) CreateSubaccount(ctx context.Context, spec SubaccountSpec) (*Result, error) {
	params := map[string]interface{}{
		"display-name": spec.DisplayName,
		"region":       spec.Region,
		"subdomain":    spec.Subdomain,
	}
	if spec.Description != "" {
		params["description"] = spec.Description
	}
	if spec.Directory != "" {
		params["directory"] = spec.Directory
	}
	if spec.BetaEnabled {
		params["beta-enabled"] = true
	}
	if spec.UsedForProduction {
		params["used-for-production"] = true
	}
	return e.run(ctx, "create", "accounts/subaccount", params)
}

// DeleteSubaccount deletes a subaccount. Without confirm the CLI asks for
// confirmation, which fails in non-interactive mode.
func (e *Engine) DeleteSubaccount(ctx context.Context, subaccountID string, confirm bool) (*Result, error) {
	return e.run(ctx, "delete", "accounts/subaccount", map[string]interface{}{
		"subaccount": subaccountID,
		"confirm":    confirm,
	})
}

func (e *Engine) ListRegions(ctx context.Context) (*Result, error) {
	return e.run(ctx, "list", "accounts/available-region", nil)
}

func (e *Engine) ListEnvironmentInstances(ctx context.Context, subaccountID string) (*Result, error) {
	return e.run(ctx, "list", "accounts/environment-instance", map[string]interface{}{
		"subaccount": subaccountID,
	})
}

// --- Security ---

func (e *Engine) ListUsers(ctx context.Context) (*Result, error) {
	return e.run(ctx, "list", "security/user", nil)
}

func (e *Engine) GetUser(ctx context.Context, email string) (*Result, error) {
	return e.run(ctx, "get", "security/user", map[string]interface{}{
		"user": email,
	})
}

func (e *Engine) ListRoleCollections(ctx context.Context) (*Result, error) {
	return e.run(ctx, "list", "security/role-collection", nil)
}

func (e *Engine) AssignRoleCollection(ctx context.Context, roleCollection, email string) (*Result, error) {
	return e.run(ctx, "assign", "security/role-collection", map[string]interface{}{
		"name":    roleCollection,
		"to-user": email,
	})
}

func (e *Engine) UnassignRoleCollection(ctx context.Context, roleCollection, email string) (*Result, error) {
	return e.run(ctx, "unassign", "security/role-collection", map[string]interface{}{
		"name":      roleCollection,
		"from-user": email,
	})
}

// --- Entitlements ---

func (e *Engine) ListEntitlements(ctx context.Context, subaccountID string) (*Result, error) {
	return e.run(ctx, "list", "accounts/entitlement", map[string]interface{}{
		"subaccount": subaccountID,
	})
}

func (e *Engine) AssignEntitlement(ctx context.Context, spec EntitlementSpec) (*Result, error) {
	params := map[string]interface{}{
		"to-subaccount": spec.Subaccount,
		"service-name":  spec.ServiceName,
		"plan-name":     spec.PlanName,
	}
	if spec.Amount > 0 {
		params["amount"] = spec.Amount
	}
	return e.run(ctx, "assign", "accounts/entitlement", params)
}

func (e *Engine) RemoveEntitlement(ctx context.Context, spec EntitlementSpec) (*Result, error) {
	return e.run(ctx, "remove", "accounts/entitlement", map[string]interface{}{
		"subaccount":   spec.Subaccount,
		"service-name": spec.ServiceName,
		"plan-name":    spec.PlanName,
	})
}

// --- Services ---

func (e *Engine) ListServiceInstances(ctx context.Context, subaccountID string) (*Result, error) {
	return e.run(ctx, "list", "services/instance", map[string]interface{}{
		"subaccount": subaccountID,
	})
}

func (e *Engine) ListServiceBindings(ctx context.Context, subaccountID string) (*Result, error) {
	return e.run(ctx, "list", "services/binding", map[string]interface{}{
		"subaccount": subaccountID,
	})
}

// --- Connectivity ---

func (e *Engine) ListDestinations(ctx context.Context, subaccountID string) (*Result, error) {
	return e.run(ctx, "list", "connectivity/destination", map[string]interface{}{
		"subaccount": subaccountID,
	})
}

func (e *Engine) GetDestination(ctx context.Context, subaccountID, name string) (*Result, error) {
	return e.run(ctx, "get", "connectivity/destination", map[string]interface{}{
		"subaccount": subaccountID,
		"name":       name,
	})
}
