package entitlement

import (
	"github.com/lexora/backend/internal/domain/shared"
)

// UnitAPICalls is the metered unit for general API consumption.
const UnitAPICalls = "api_calls"

// Plan defines the usage limits for a subscription tier.
// Plans are loaded from static configuration at process start and
// are never mutated at runtime.
type Plan struct {
	Name    string // Tier name (e.g. "Free", "Pro", "Team")
	Unit    string // Metered resource (e.g. "api_calls")
	SoftCap int64  // Usage at/above this triggers a warning
	HardCap int64  // Usage at/above this blocks further consumption
}

// Validate checks the plan invariants.
func (p Plan) Validate() error {
	if p.Name == "" {
		return shared.NewDomainError("INVALID_PLAN", "Plan name cannot be empty")
	}
	if p.Unit == "" {
		return shared.NewDomainError("INVALID_PLAN", "Plan unit cannot be empty")
	}
	if p.SoftCap < 0 {
		return shared.NewDomainError("INVALID_PLAN", "Soft cap cannot be negative")
	}
	if p.HardCap < p.SoftCap {
		return shared.NewDomainError("INVALID_PLAN", "Hard cap must be greater than or equal to soft cap")
	}
	return nil
}

// Well-known tier names in ascending order of capability.
const (
	TierFree = "Free"
	TierPro  = "Pro"
	TierTeam = "Team"
)

// tierRank maps known tier names to their ordering. Unknown tiers rank
// lowest so a misconfigured plan never unlocks gated routes.
var tierRank = map[string]int{
	TierFree: 1,
	TierPro:  2,
	TierTeam: 3,
}

// RankOf returns the ordering rank for a tier name, 0 for unknown tiers.
func RankOf(name string) int {
	return tierRank[name]
}

// AtLeast reports whether this plan's tier is equal to or higher than
// the given minimum tier.
func (p Plan) AtLeast(minimum string) bool {
	return RankOf(p.Name) >= RankOf(minimum)
}

// DefaultPlans returns the built-in plan table. Deployments normally
// override these via configuration; the values here match the published
// pricing tiers.
func DefaultPlans() []Plan {
	return []Plan{
		{Name: TierFree, Unit: UnitAPICalls, SoftCap: 500, HardCap: 750},
		{Name: TierPro, Unit: UnitAPICalls, SoftCap: 5000, HardCap: 7500},
		{Name: TierTeam, Unit: UnitAPICalls, SoftCap: 20000, HardCap: 30000},
	}
}
