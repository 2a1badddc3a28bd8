// Package entitlement implements per-request admission control against
// plan usage limits.
package entitlement

import (
	"context"

	"github.com/lexora/backend/internal/domain/entitlement"
	"github.com/lexora/backend/internal/infrastructure/usage"
	"go.uber.org/zap"
)

// Gate decides per-request admission for a tenant against its plan caps
// and keeps the usage counter consistent with that decision. It owns no
// state beyond the injected store.
type Gate struct {
	store  usage.Store
	logger *zap.Logger

	// failOpen controls what happens when the store is unreachable.
	// True (the default) treats a failed read as count=0 and admits the
	// request, so a cache outage does not block all tenant traffic.
	// This is a deliberate availability-over-enforcement trade; flip it
	// with FailClosed for deployments that must never over-admit.
	failOpen bool
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// FailClosed makes store errors surface to the caller instead of
// admitting the request with an assumed zero count.
func FailClosed() GateOption {
	return func(g *Gate) {
		g.failOpen = false
	}
}

// NewGate creates an entitlement gate backed by the given store.
func NewGate(store usage.Store, logger *zap.Logger, opts ...GateOption) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gate{
		store:    store,
		logger:   logger,
		failOpen: true,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CheckAndRecord reads the tenant's counter, decides admission and, only
// when admitted, charges one unit against the counter.
//
// The hard-cap check uses the pre-increment count: the request that
// reaches the cap is allowed, and only the next one is rejected.
// Rejected requests are never charged, so the counter stays at the cap
// instead of silently running past it.
//
// The read and the increment are intentionally not one transaction. Two
// concurrent requests can both read hardCap-1 and both get admitted,
// leaving the counter at hardCap+1; the increment itself is atomic, so
// no update is ever lost. That bounded over-admit is accepted
// rate-limiting behavior, not a bug to tighten.
func (g *Gate) CheckAndRecord(ctx context.Context, tenantID string, plan entitlement.Plan) (entitlement.Decision, error) {
	count, err := g.store.Get(ctx, tenantID, plan.Unit)
	if err != nil {
		if !g.failOpen {
			return entitlement.Decision{}, err
		}
		g.logger.Warn("Usage store read failed, admitting with assumed zero usage",
			zap.String("tenant_id", tenantID),
			zap.String("unit", plan.Unit),
			zap.Error(err))
		count = 0
	}

	if count >= plan.HardCap {
		g.logger.Debug("Hard cap reached, rejecting request",
			zap.String("tenant_id", tenantID),
			zap.String("plan", plan.Name),
			zap.Int64("current_usage", count),
			zap.Int64("hard_cap", plan.HardCap))
		return entitlement.Decision{
			Allowed:        false,
			SoftCapReached: true,
			Remaining:      0,
			CurrentUsage:   count,
		}, nil
	}

	newCount, err := g.store.Increment(ctx, tenantID, plan.Unit, 1)
	if err != nil {
		if !g.failOpen {
			return entitlement.Decision{}, err
		}
		g.logger.Warn("Usage store increment failed, admitting without recording",
			zap.String("tenant_id", tenantID),
			zap.String("unit", plan.Unit),
			zap.Error(err))
		newCount = count + 1
	}

	return entitlement.Decision{
		Allowed:        true,
		SoftCapReached: newCount >= plan.SoftCap,
		Remaining:      entitlement.Remaining(plan, newCount),
		CurrentUsage:   newCount,
	}, nil
}

// Summarize returns the billing view of the tenant's current usage.
// Pure read: it never mutates the counter and is safe to call
// arbitrarily often.
func (g *Gate) Summarize(ctx context.Context, tenantID string, plan entitlement.Plan) (entitlement.BillingSummary, error) {
	count, err := g.store.Get(ctx, tenantID, plan.Unit)
	if err != nil {
		if !g.failOpen {
			return entitlement.BillingSummary{}, err
		}
		g.logger.Warn("Usage store read failed, summarizing with assumed zero usage",
			zap.String("tenant_id", tenantID),
			zap.String("unit", plan.Unit),
			zap.Error(err))
		count = 0
	}

	return entitlement.BillingSummary{
		Unit:         plan.Unit,
		SoftCap:      plan.SoftCap,
		HardCap:      plan.HardCap,
		Remaining:    entitlement.Remaining(plan, count),
		CurrentUsage: count,
		Plan:         plan.Name,
	}, nil
}
