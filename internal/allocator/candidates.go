package allocator

import (
	"sort"
	"time"

	"github.com/tablewise/tablewise/internal/model"
)

// Config carries the allocation policy for one restaurant. It is an
// immutable value passed into each component constructor; there is no
// ambient global state.
type Config struct {
	AdjacencyMode         AdjacencyMode
	KMax                  int
	AdjacencyRequired     bool
	AdjacencyMinPartySize int
	MaxOverage            int
	MaxCombinationEvals   int
	Lookahead             LookaheadConfig
}

// LookaheadConfig tunes the penalty that protects large tables for
// anticipated bigger parties. The exact numeric behavior is policy,
// not law: only the ordering contribution is contractual.
type LookaheadConfig struct {
	Enabled        bool
	Window         time.Duration
	PenaltyWeight  int
	BlockThreshold int
}

// RequireAdjacency resolves whether merged plans must satisfy the
// adjacency mode for the given party size.
func (c Config) RequireAdjacency(partySize int) bool {
	return c.AdjacencyRequired && partySize >= c.AdjacencyMinPartySize
}

// Request is the input of one candidate generation run. Tables must
// already be filtered to the ones free in the requested window; the
// generator only reasons about capacity, zones and adjacency.
type Request struct {
	PartySize int
	Zone      string // "" = any zone
	Tables    []model.Table
	Graph     Graph
}

// Diagnostics counts what the search looked at and why candidates
// were skipped, for telemetry and quote responses.
type Diagnostics struct {
	SinglesConsidered      int            `json:"singles_considered"`
	CombinationsEnumerated int            `json:"combinations_enumerated"`
	CombinationsAccepted   int            `json:"combinations_accepted"`
	Skipped                map[string]int `json:"skipped"`
}

func newDiagnostics() Diagnostics {
	return Diagnostics{Skipped: map[string]int{}}
}

// Generate enumerates every feasible plan for the request: each single
// table whose bounds accommodate the party, plus each combination of
// 2..KMax movable tables whose combined capacity accommodates the
// party and whose members satisfy the adjacency mode. The result is
// deterministic for a given table set regardless of input ordering.
func Generate(req Request, cfg Config) ([]Plan, Diagnostics, error) {
	diag := newDiagnostics()
	if req.PartySize <= 0 {
		return nil, diag, &InputValidationError{Field: "party_size", Reason: "must be positive"}
	}

	maxAllowed := req.PartySize + cfg.MaxOverage
	kMax := cfg.KMax
	if kMax < 1 {
		kMax = 1
	}

	eligible := make([]model.Table, 0, len(req.Tables))
	var singles []model.Table
	for _, t := range req.Tables {
		if !t.IsActive || t.Capacity <= 0 {
			diag.Skipped["capacity"]++
			continue
		}
		if t.MinPartySize > 0 && req.PartySize < t.MinPartySize {
			diag.Skipped["capacity"]++
			continue
		}
		if t.MaxPartySize > 0 && req.PartySize > t.MaxPartySize {
			diag.Skipped["capacity"]++
			continue
		}
		// Cross-zone merges are not allowed, so a requested zone
		// restricts singles and combinations alike.
		if req.Zone != "" && t.ZoneID != req.Zone {
			diag.Skipped["zone"]++
			continue
		}
		if t.Capacity > maxAllowed {
			diag.Skipped["overage"]++
			continue
		}
		eligible = append(eligible, t)
		if t.Capacity >= req.PartySize {
			singles = append(singles, t)
		}
	}
	diag.SinglesConsidered = len(singles)

	var plans []Plan
	for _, t := range singles {
		plans = append(plans, NewPlan([]model.Table{t}, req.PartySize))
	}

	if kMax > 1 {
		combos := enumerateCombinations(eligible, req, cfg, kMax, maxAllowed, &diag)
		plans = append(plans, combos...)
	}

	sort.Slice(plans, func(i, j int) bool { return plans[i].Less(plans[j]) })
	return plans, diag, nil
}

// enumerateCombinations runs a depth-first search over movable tables
// sorted by ascending capacity. A path stops extending as soon as its
// accumulated capacity first meets the party size (adding further
// tables only increases overage), and the ascending sort lets the loop
// break outright once the next table would exceed the overage budget.
func enumerateCombinations(tables []model.Table, req Request, cfg Config, kMax, maxAllowed int, diag *Diagnostics) []Plan {
	movable := make([]model.Table, 0, len(tables))
	for _, t := range tables {
		if t.Mobility == model.MobilityMovable {
			movable = append(movable, t)
		}
	}
	if len(movable) < 2 {
		return nil
	}
	sort.Slice(movable, func(i, j int) bool {
		if movable[i].Capacity != movable[j].Capacity {
			return movable[i].Capacity < movable[j].Capacity
		}
		return movable[i].ID < movable[j].ID
	})

	requireAdjacency := cfg.RequireAdjacency(req.PartySize)
	evalLimit := cfg.MaxCombinationEvals
	if evalLimit <= 0 {
		evalLimit = 500
	}

	var plans []Plan
	seen := map[string]struct{}{}
	evaluations := 0
	stopped := false

	var dfs func(startIndex int, selection []model.Table, capacity int, zone string)
	dfs = func(startIndex int, selection []model.Table, capacity int, zone string) {
		if stopped {
			return
		}
		if len(selection) >= 2 && capacity >= req.PartySize {
			diag.CombinationsEnumerated++
			plan := NewPlan(selection, req.PartySize)
			if _, dup := seen[plan.Key]; !dup {
				seen[plan.Key] = struct{}{}
				if requireAdjacency && !req.Graph.Satisfies(plan.TableIDs, cfg.AdjacencyMode) {
					diag.Skipped["adjacency"]++
				} else {
					plans = append(plans, plan)
					diag.CombinationsAccepted++
				}
			}
			evaluations++
			if evaluations >= evalLimit {
				stopped = true
				diag.Skipped["limit"]++
			}
			// Capacity met: extending this path cannot improve it.
			return
		}
		if len(selection) >= kMax {
			diag.Skipped["kmax"]++
			return
		}
		for i := startIndex; i < len(movable); i++ {
			if stopped {
				return
			}
			next := movable[i]
			if zone != "" && next.ZoneID != zone {
				diag.Skipped["zone"]++
				continue
			}
			if capacity+next.Capacity > maxAllowed {
				// Sorted ascending: every later table exceeds too.
				diag.Skipped["overage"]++
				break
			}
			if requireAdjacency && len(selection) > 0 && !adjacentForMode(req.Graph, next, selection, cfg.AdjacencyMode) {
				diag.Skipped["adjacency"]++
				continue
			}
			nextZone := zone
			if nextZone == "" {
				nextZone = next.ZoneID
			}
			dfs(i+1, append(selection, next), capacity+next.Capacity, nextZone)
		}
	}

	for i := 0; i < len(movable) && !stopped; i++ {
		base := movable[i]
		dfs(i+1, []model.Table{base}, base.Capacity, base.ZoneID)
	}
	return plans
}

// adjacentForMode is the branch-pruning form of the adjacency check:
// pairwise needs the candidate adjacent to every selected table, the
// other modes need at least one edge into the selection.
func adjacentForMode(g Graph, candidate model.Table, selection []model.Table, mode AdjacencyMode) bool {
	if mode == ModePairwise {
		for _, s := range selection {
			if !g.Adjacent(candidate.ID, s.ID) {
				return false
			}
		}
		return true
	}
	for _, s := range selection {
		if g.Adjacent(candidate.ID, s.ID) {
			return true
		}
	}
	return false
}
