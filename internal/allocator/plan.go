package allocator

import (
	"sort"
	"strings"

	"github.com/tablewise/tablewise/internal/model"
)

// Plan is a candidate set of tables proposed to seat one booking.
// Plans are value objects: they are never persisted, only the winning
// plan's table ids are. TableIDs is always canonical (sorted
// ascending, deduplicated) so that plan identity and tie-breaking do
// not depend on enumeration order.
type Plan struct {
	TableIDs         []string
	Tables           []model.Table
	TotalCapacity    int
	Overage          int
	TableCount       int
	SameZone         bool
	LookaheadPenalty int
	Key              string
}

// NewPlan builds a Plan from a table selection, canonicalizing the id
// order and deriving the capacity metrics.
func NewPlan(tables []model.Table, partySize int) Plan {
	sorted := make([]model.Table, len(tables))
	copy(sorted, tables)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	ids := make([]string, 0, len(sorted))
	total := 0
	zones := map[string]struct{}{}
	for _, t := range sorted {
		ids = append(ids, t.ID)
		total += t.Capacity
		zones[t.ZoneID] = struct{}{}
	}
	overage := total - partySize
	if overage < 0 {
		overage = 0
	}
	return Plan{
		TableIDs:      ids,
		Tables:        sorted,
		TotalCapacity: total,
		Overage:       overage,
		TableCount:    len(sorted),
		SameZone:      len(zones) <= 1,
		Key:           strings.Join(ids, "+"),
	}
}

// Less is the deterministic plan ordering: ascending overage, then
// ascending table count, then ascending lookahead penalty, then
// lexicographic ascending on the canonical table-id tuple. The final
// rule guarantees a single winner independent of enumeration order.
func (p Plan) Less(other Plan) bool {
	if p.Overage != other.Overage {
		return p.Overage < other.Overage
	}
	if p.TableCount != other.TableCount {
		return p.TableCount < other.TableCount
	}
	if p.LookaheadPenalty != other.LookaheadPenalty {
		return p.LookaheadPenalty < other.LookaheadPenalty
	}
	return p.Key < other.Key
}
