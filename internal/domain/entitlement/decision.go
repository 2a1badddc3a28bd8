package entitlement

// Decision is the per-request admission outcome. It is ephemeral and
// never persisted.
type Decision struct {
	Allowed        bool  // Whether the request may proceed
	SoftCapReached bool  // True once usage is at/above the soft cap
	Remaining      int64 // max(hardCap - currentUsage, 0)
	CurrentUsage   int64 // Counter snapshot at decision time
}

// BillingSummary is the read-only usage view exposed to the billing
// endpoint. Field names follow the wire contract (snake_case).
type BillingSummary struct {
	Unit         string `json:"unit"`
	SoftCap      int64  `json:"soft_cap"`
	HardCap      int64  `json:"hard_cap"`
	Remaining    int64  `json:"remaining"`
	CurrentUsage int64  `json:"current_usage"`
	Plan         string `json:"plan"`
}

// UsageState describes where a counter sits relative to its plan caps.
type UsageState string

const (
	// UsageUnderSoft means count < softCap.
	UsageUnderSoft UsageState = "UNDER_SOFT"
	// UsageAtSoft means softCap <= count < hardCap.
	UsageAtSoft UsageState = "AT_SOFT"
	// UsageAtHard means count >= hardCap.
	UsageAtHard UsageState = "AT_HARD"
)

// StateFor classifies a usage count against a plan's caps. Transitions
// only move forward under increments; the only way back is an explicit
// reset or period rollover.
func StateFor(p Plan, count int64) UsageState {
	switch {
	case count >= p.HardCap:
		return UsageAtHard
	case count >= p.SoftCap:
		return UsageAtSoft
	default:
		return UsageUnderSoft
	}
}

// Remaining computes the headroom left under the hard cap, never negative.
func Remaining(p Plan, count int64) int64 {
	if r := p.HardCap - count; r > 0 {
		return r
	}
	return 0
}
