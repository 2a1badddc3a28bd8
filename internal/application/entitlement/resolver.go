package entitlement

import (
	"context"

	"github.com/lexora/backend/internal/domain/entitlement"
	"github.com/lexora/backend/internal/domain/shared"
)

// PlanResolver supplies the active plan for a tenant. The gate never
// resolves plans itself; an unknown tenant-to-plan mapping is the
// resolver's configuration problem, surfaced at startup, not a runtime
// gate failure.
type PlanResolver interface {
	ResolvePlan(ctx context.Context, tenantID string) (entitlement.Plan, error)
}

// StaticPlanResolver resolves plans from the configured plan table with
// optional per-tenant overrides and a default plan for everyone else.
// Subscription lifecycle (upgrades via the payment provider) lives
// outside this service; it feeds this resolver's override table.
type StaticPlanResolver struct {
	plans       map[string]entitlement.Plan
	overrides   map[string]string
	defaultPlan string
}

// NewStaticPlanResolver builds a resolver from the plan table. It fails
// fast when the default plan or any override references an unknown plan
// name, or when a plan fails validation.
func NewStaticPlanResolver(plans []entitlement.Plan, defaultPlan string, overrides map[string]string) (*StaticPlanResolver, error) {
	if len(plans) == 0 {
		return nil, shared.NewDomainError("INVALID_PLAN_TABLE", "Plan table cannot be empty")
	}

	byName := make(map[string]entitlement.Plan, len(plans))
	for _, p := range plans {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		byName[p.Name] = p
	}

	if _, ok := byName[defaultPlan]; !ok {
		return nil, shared.NewDomainError("UNKNOWN_PLAN", "Default plan is not in the plan table: "+defaultPlan)
	}
	for tenantID, planName := range overrides {
		if _, ok := byName[planName]; !ok {
			return nil, shared.NewDomainError("UNKNOWN_PLAN", "Override for tenant "+tenantID+" references unknown plan: "+planName)
		}
	}

	return &StaticPlanResolver{
		plans:       byName,
		overrides:   overrides,
		defaultPlan: defaultPlan,
	}, nil
}

// ResolvePlan returns the tenant's override plan when one exists, the
// default plan otherwise. Never errors after successful construction.
func (r *StaticPlanResolver) ResolvePlan(_ context.Context, tenantID string) (entitlement.Plan, error) {
	if name, ok := r.overrides[tenantID]; ok {
		return r.plans[name], nil
	}
	return r.plans[r.defaultPlan], nil
}

// Plan returns a plan from the table by name.
func (r *StaticPlanResolver) Plan(name string) (entitlement.Plan, bool) {
	p, ok := r.plans[name]
	return p, ok
}
