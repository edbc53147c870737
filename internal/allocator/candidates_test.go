package allocator

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tablewise/tablewise/internal/model"
)

func tbl(id string, capacity int, zone string, mobility model.Mobility) model.Table {
	return model.Table{
		ID:           id,
		RestaurantID: "r1",
		TableNumber:  id,
		Capacity:     capacity,
		ZoneID:       zone,
		Mobility:     mobility,
		IsActive:     true,
	}
}

func testConfig() Config {
	return Config{
		AdjacencyMode:         ModeConnected,
		KMax:                  3,
		AdjacencyRequired:     true,
		AdjacencyMinPartySize: 2,
		MaxOverage:            2,
		MaxCombinationEvals:   500,
	}
}

func fullGraph(ids ...string) Graph {
	var edges [][2]string
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			edges = append(edges, [2]string{ids[i], ids[j]})
		}
	}
	return NewGraph(edges)
}

func TestGenerateRejectsInvalidPartySize(t *testing.T) {
	t.Parallel()

	_, _, err := Generate(Request{PartySize: 0}, testConfig())
	var verr *InputValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "party_size", verr.Field)
}

func TestGeneratePrefersExactSingleOverMerge(t *testing.T) {
	t.Parallel()

	tables := []model.Table{
		tbl("A", 6, "main", model.MobilityMovable),
		tbl("B", 4, "main", model.MobilityMovable),
		tbl("C", 4, "main", model.MobilityMovable),
	}
	req := Request{PartySize: 5, Tables: tables, Graph: fullGraph("A", "B", "C")}

	plans, _, err := Generate(req, testConfig())
	require.NoError(t, err)
	require.NotEmpty(t, plans)

	// B+C has capacity 8 against a budget of 7, so the single big table
	// is the only feasible plan.
	require.Len(t, plans, 1)
	require.Equal(t, []string{"A"}, plans[0].TableIDs)
	require.Equal(t, 1, plans[0].Overage)
}

func TestGenerateForcedMerge(t *testing.T) {
	t.Parallel()

	tables := []model.Table{
		tbl("A", 4, "main", model.MobilityMovable),
		tbl("B", 4, "main", model.MobilityMovable),
		tbl("C", 6, "main", model.MobilityMovable),
	}
	req := Request{PartySize: 8, Tables: tables, Graph: fullGraph("A", "B", "C")}

	plans, _, err := Generate(req, testConfig())
	require.NoError(t, err)
	require.NotEmpty(t, plans)

	// No single seats 8; A+B is the zero-overage merge and must rank first.
	require.Equal(t, []string{"A", "B"}, plans[0].TableIDs)
	require.Equal(t, 0, plans[0].Overage)
	for _, p := range plans {
		require.GreaterOrEqual(t, p.TotalCapacity, 8)
	}
}

func TestGenerateDeterministicAcrossInputOrder(t *testing.T) {
	t.Parallel()

	tables := []model.Table{
		tbl("A", 2, "main", model.MobilityMovable),
		tbl("B", 2, "main", model.MobilityMovable),
		tbl("C", 4, "main", model.MobilityMovable),
		tbl("D", 3, "main", model.MobilityMovable),
		tbl("E", 5, "main", model.MobilityMovable),
	}
	g := fullGraph("A", "B", "C", "D", "E")

	base, _, err := Generate(Request{PartySize: 4, Tables: tables, Graph: g}, testConfig())
	require.NoError(t, err)
	require.NotEmpty(t, base)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		shuffled := make([]model.Table, len(tables))
		copy(shuffled, tables)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got, _, err := Generate(Request{PartySize: 4, Tables: shuffled, Graph: g}, testConfig())
		require.NoError(t, err)
		require.Equal(t, len(base), len(got))
		for j := range base {
			require.Equal(t, base[j].Key, got[j].Key)
		}
	}
}

func TestGenerateStopsExtendingOnceCapacityMet(t *testing.T) {
	t.Parallel()

	tables := []model.Table{
		tbl("A", 2, "main", model.MobilityMovable),
		tbl("B", 2, "main", model.MobilityMovable),
		tbl("C", 2, "main", model.MobilityMovable),
	}
	req := Request{PartySize: 4, Tables: tables, Graph: fullGraph("A", "B", "C")}

	plans, _, err := Generate(req, testConfig())
	require.NoError(t, err)
	// Any pair already seats the party; no triple may appear.
	for _, p := range plans {
		require.LessOrEqual(t, p.TableCount, 2)
	}
	require.Len(t, plans, 3) // A+B, A+C, B+C
}

func TestGenerateFixedTablesNeverMerge(t *testing.T) {
	t.Parallel()

	tables := []model.Table{
		tbl("A", 4, "main", model.MobilityFixed),
		tbl("B", 4, "main", model.MobilityFixed),
	}
	req := Request{PartySize: 8, Tables: tables, Graph: fullGraph("A", "B")}

	plans, _, err := Generate(req, testConfig())
	require.NoError(t, err)
	require.Empty(t, plans)
}

func TestGenerateZoneLock(t *testing.T) {
	t.Parallel()

	tables := []model.Table{
		tbl("A", 4, "patio", model.MobilityMovable),
		tbl("B", 4, "main", model.MobilityMovable),
	}
	req := Request{PartySize: 8, Tables: tables, Graph: fullGraph("A", "B")}

	plans, diag, err := Generate(req, testConfig())
	require.NoError(t, err)
	require.Empty(t, plans)
	require.Positive(t, diag.Skipped["zone"])
}

func TestGenerateZoneFilterAppliesToSingles(t *testing.T) {
	t.Parallel()

	tables := []model.Table{
		tbl("A", 4, "patio", model.MobilityMovable),
		tbl("B", 4, "main", model.MobilityMovable),
	}
	req := Request{PartySize: 4, Zone: "patio", Tables: tables, Graph: NewGraph(nil)}

	plans, _, err := Generate(req, testConfig())
	require.NoError(t, err)
	require.Len(t, plans, 1)
	require.Equal(t, []string{"A"}, plans[0].TableIDs)
}

func TestGenerateAdjacencyModesDiffer(t *testing.T) {
	t.Parallel()

	// Chain A-B-C: connected accepts the triple, pairwise rejects it.
	tables := []model.Table{
		tbl("A", 2, "main", model.MobilityMovable),
		tbl("B", 2, "main", model.MobilityMovable),
		tbl("C", 2, "main", model.MobilityMovable),
	}
	g := NewGraph([][2]string{{"A", "B"}, {"B", "C"}})
	req := Request{PartySize: 6, Tables: tables, Graph: g}

	cfg := testConfig()
	cfg.AdjacencyMode = ModeConnected
	connected, _, err := Generate(req, cfg)
	require.NoError(t, err)
	require.Len(t, connected, 1)
	require.Equal(t, []string{"A", "B", "C"}, connected[0].TableIDs)

	cfg.AdjacencyMode = ModePairwise
	pairwise, _, err := Generate(req, cfg)
	require.NoError(t, err)
	require.Empty(t, pairwise)
}

func TestGenerateMinMaxPartyBounds(t *testing.T) {
	t.Parallel()

	big := tbl("A", 8, "main", model.MobilityMovable)
	big.MinPartySize = 6
	small := tbl("B", 4, "main", model.MobilityMovable)
	small.MaxPartySize = 3

	plans, diag, err := Generate(Request{
		PartySize: 4,
		Tables:    []model.Table{big, small},
		Graph:     NewGraph(nil),
	}, testConfig())
	require.NoError(t, err)
	require.Empty(t, plans)
	require.Equal(t, 2, diag.Skipped["capacity"])
}

func TestGenerateEvaluationLimit(t *testing.T) {
	t.Parallel()

	var tables []model.Table
	var ids []string
	for i := 0; i < 16; i++ {
		id := string(rune('a' + i))
		tables = append(tables, tbl(id, 2, "main", model.MobilityMovable))
		ids = append(ids, id)
	}
	cfg := testConfig()
	cfg.MaxCombinationEvals = 5

	plans, diag, err := Generate(Request{PartySize: 4, Tables: tables, Graph: fullGraph(ids...)}, cfg)
	require.NoError(t, err)
	require.LessOrEqual(t, diag.CombinationsEnumerated, 5)
	require.Positive(t, diag.Skipped["limit"])
	require.LessOrEqual(t, len(plans), 5)
}
