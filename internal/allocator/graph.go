package allocator

// AdjacencyMode selects the rule used to decide whether a set of
// tables may be physically merged.
type AdjacencyMode string

const (
	// ModeConnected accepts a set when every table is reachable from
	// every other through merge edges inside the set.
	ModeConnected AdjacencyMode = "connected"
	// ModePairwise accepts a set only when every pair of tables in it
	// is directly adjacent.
	ModePairwise AdjacencyMode = "pairwise"
	// ModeNeighbors accepts a set when each table is adjacent to at
	// least one other member of the set.
	ModeNeighbors AdjacencyMode = "neighbors"
)

// Graph is an undirected adjacency map over table ids, restricted to
// the tables under consideration for one allocation decision. It is
// built once at the store boundary and read-only afterwards.
type Graph map[string]map[string]struct{}

// NewGraph builds a Graph from directed edge pairs, normalizing them
// to an undirected relation (an edge in either direction means the
// two tables may be merged).
func NewGraph(edges [][2]string) Graph {
	g := Graph{}
	for _, e := range edges {
		g.addEdge(e[0], e[1])
		g.addEdge(e[1], e[0])
	}
	return g
}

func (g Graph) addEdge(from, to string) {
	set, ok := g[from]
	if !ok {
		set = map[string]struct{}{}
		g[from] = set
	}
	set[to] = struct{}{}
}

// Adjacent reports whether a and b share a direct merge edge.
func (g Graph) Adjacent(a, b string) bool {
	if set, ok := g[a]; ok {
		if _, ok := set[b]; ok {
			return true
		}
	}
	return false
}

// AdjacentToAny reports whether candidate is directly adjacent to at
// least one id in selection. Used by the combination search to prune
// branches that could never become connected.
func (g Graph) AdjacentToAny(candidate string, selection []string) bool {
	for _, id := range selection {
		if g.Adjacent(candidate, id) {
			return true
		}
	}
	return false
}

// connected runs a BFS restricted to ids and reports whether all of
// them are mutually reachable.
func (g Graph) connected(ids []string) bool {
	if len(ids) <= 1 {
		return true
	}
	member := make(map[string]bool, len(ids))
	for _, id := range ids {
		member[id] = true
	}
	visited := map[string]bool{ids[0]: true}
	queue := []string{ids[0]}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for neighbor := range g[current] {
			if member[neighbor] && !visited[neighbor] {
				visited[neighbor] = true
				queue = append(queue, neighbor)
			}
		}
	}
	return len(visited) == len(ids)
}

func (g Graph) pairwise(ids []string) bool {
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if !g.Adjacent(ids[i], ids[j]) {
				return false
			}
		}
	}
	return true
}

func (g Graph) neighbors(ids []string) bool {
	if len(ids) <= 1 {
		return true
	}
	for i, id := range ids {
		found := false
		for j, other := range ids {
			if i != j && g.Adjacent(id, other) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Satisfies reports whether the table set meets the given adjacency
// mode. Singles always satisfy every mode.
func (g Graph) Satisfies(ids []string, mode AdjacencyMode) bool {
	switch mode {
	case ModePairwise:
		return g.pairwise(ids)
	case ModeNeighbors:
		return g.neighbors(ids)
	default:
		return g.connected(ids)
	}
}
