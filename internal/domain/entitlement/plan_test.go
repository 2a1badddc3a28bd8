package entitlement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanValidate(t *testing.T) {
	tests := []struct {
		name    string
		plan    Plan
		wantErr bool
	}{
		{
			name: "valid plan",
			plan: Plan{Name: "Free", Unit: UnitAPICalls, SoftCap: 500, HardCap: 750},
		},
		{
			name: "soft cap equal to hard cap",
			plan: Plan{Name: "Pro", Unit: UnitAPICalls, SoftCap: 1000, HardCap: 1000},
		},
		{
			name: "zero caps",
			plan: Plan{Name: "Blocked", Unit: UnitAPICalls, SoftCap: 0, HardCap: 0},
		},
		{
			name:    "empty name",
			plan:    Plan{Unit: UnitAPICalls, SoftCap: 1, HardCap: 2},
			wantErr: true,
		},
		{
			name:    "empty unit",
			plan:    Plan{Name: "Free", SoftCap: 1, HardCap: 2},
			wantErr: true,
		},
		{
			name:    "negative soft cap",
			plan:    Plan{Name: "Free", Unit: UnitAPICalls, SoftCap: -1, HardCap: 2},
			wantErr: true,
		},
		{
			name:    "hard cap below soft cap",
			plan:    Plan{Name: "Free", Unit: UnitAPICalls, SoftCap: 100, HardCap: 50},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.plan.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultPlans(t *testing.T) {
	plans := DefaultPlans()
	require.Len(t, plans, 3)

	byName := make(map[string]Plan, len(plans))
	for _, p := range plans {
		require.NoError(t, p.Validate())
		byName[p.Name] = p
	}

	assert.Equal(t, int64(500), byName[TierFree].SoftCap)
	assert.Equal(t, int64(750), byName[TierFree].HardCap)
	assert.Equal(t, int64(5000), byName[TierPro].SoftCap)
	assert.Equal(t, int64(7500), byName[TierPro].HardCap)
	assert.Equal(t, int64(20000), byName[TierTeam].SoftCap)
	assert.Equal(t, int64(30000), byName[TierTeam].HardCap)
}

func TestPlanAtLeast(t *testing.T) {
	free := Plan{Name: TierFree, Unit: UnitAPICalls, SoftCap: 500, HardCap: 750}
	pro := Plan{Name: TierPro, Unit: UnitAPICalls, SoftCap: 5000, HardCap: 7500}
	team := Plan{Name: TierTeam, Unit: UnitAPICalls, SoftCap: 20000, HardCap: 30000}

	assert.True(t, free.AtLeast(TierFree))
	assert.False(t, free.AtLeast(TierPro))
	assert.True(t, pro.AtLeast(TierFree))
	assert.True(t, pro.AtLeast(TierPro))
	assert.False(t, pro.AtLeast(TierTeam))
	assert.True(t, team.AtLeast(TierTeam))

	// Unknown tiers rank lowest and never unlock gated routes
	custom := Plan{Name: "Bespoke", Unit: UnitAPICalls, SoftCap: 1, HardCap: 2}
	assert.False(t, custom.AtLeast(TierFree))
	assert.True(t, free.AtLeast("Bespoke"))
}

func TestStateFor(t *testing.T) {
	plan := Plan{Name: TierFree, Unit: UnitAPICalls, SoftCap: 500, HardCap: 750}

	assert.Equal(t, UsageUnderSoft, StateFor(plan, 0))
	assert.Equal(t, UsageUnderSoft, StateFor(plan, 499))
	assert.Equal(t, UsageAtSoft, StateFor(plan, 500))
	assert.Equal(t, UsageAtSoft, StateFor(plan, 749))
	assert.Equal(t, UsageAtHard, StateFor(plan, 750))
	assert.Equal(t, UsageAtHard, StateFor(plan, 10000))
}

func TestRemaining(t *testing.T) {
	plan := Plan{Name: TierFree, Unit: UnitAPICalls, SoftCap: 500, HardCap: 750}

	assert.Equal(t, int64(750), Remaining(plan, 0))
	assert.Equal(t, int64(1), Remaining(plan, 749))
	assert.Equal(t, int64(0), Remaining(plan, 750))
	// Never negative, even if the counter raced past the cap
	assert.Equal(t, int64(0), Remaining(plan, 751))
}
