package allocator

import "sort"

// Ranked is the scorer output: the full ordered plan list (so callers
// can fall back to the next-best plan) plus the deterministic winner.
type Ranked struct {
	Plans []Plan
	Top   Plan
}

// Score applies the lookahead penalty to each plan and returns the
// ranked list. It returns a CapacityError when no plan is feasible.
//
// The lookahead penalty protects capacity for anticipated larger
// parties: a plan pays PenaltyWeight x (capacity - partySize) for each
// member table big enough to seat a party of partySize+BlockThreshold
// on its own. The penalty only participates in tie-breaking after
// overage and table count, per the plan ordering in Plan.Less.
func Score(plans []Plan, partySize int, cfg Config) (Ranked, error) {
	if len(plans) == 0 {
		return Ranked{}, &CapacityError{PartySize: partySize, Reason: "no feasible plans"}
	}
	scored := make([]Plan, len(plans))
	copy(scored, plans)
	if cfg.Lookahead.Enabled {
		for i := range scored {
			scored[i].LookaheadPenalty = lookaheadPenalty(scored[i], partySize, cfg.Lookahead)
		}
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Less(scored[j]) })
	return Ranked{Plans: scored, Top: scored[0]}, nil
}

func lookaheadPenalty(p Plan, partySize int, cfg LookaheadConfig) int {
	penalty := 0
	threshold := partySize + cfg.BlockThreshold
	for _, t := range p.Tables {
		if t.Capacity >= threshold {
			penalty += cfg.PenaltyWeight * (t.Capacity - partySize)
		}
	}
	return penalty
}
