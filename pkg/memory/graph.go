package memory

import "sync"

// relatedGraph is an id-keyed adjacency structure over memory item ids.
// Edges are symmetric and non-owning: removing a node deletes only its
// own edge list, and the reverse edges left behind are filtered lazily
// on read. Cycles and dangling edges are safe by construction because
// traversal is a map lookup, never an ownership chain.
type relatedGraph struct {
	mu    sync.RWMutex
	edges map[string]map[string]struct{}
}

func newRelatedGraph() *relatedGraph {
	return &relatedGraph{edges: make(map[string]map[string]struct{})}
}

// Link records a symmetric edge between two items.
func (g *relatedGraph) Link(a, b string) {
	if a == b || a == "" || b == "" {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.linkLocked(a, b)
	g.linkLocked(b, a)
}

func (g *relatedGraph) linkLocked(from, to string) {
	set, ok := g.edges[from]
	if !ok {
		set = make(map[string]struct{})
		g.edges[from] = set
	}
	set[to] = struct{}{}
}

// RemoveNode drops the node's own edge list. Peers still pointing at the
// node keep their (now dangling) edges until a traversal prunes them.
func (g *relatedGraph) RemoveNode(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.edges, id)
}

// Neighbors returns the direct neighbors of id whose nodes still exist
// according to the exists predicate. Stale edges discovered along the way
// are pruned in place.
func (g *relatedGraph) Neighbors(id string, exists func(string) bool) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	set, ok := g.edges[id]
	if !ok {
		return nil
	}

	var out []string
	for neighbor := range set {
		if exists(neighbor) {
			out = append(out, neighbor)
		} else {
			delete(set, neighbor)
		}
	}
	return out
}

// Related performs a bounded breadth-first traversal from id, returning
// the ids reachable within depth hops (the start node excluded). Nodes
// that no longer exist are skipped as lookup misses, never faults.
func (g *relatedGraph) Related(id string, depth int, exists func(string) bool) []string {
	if depth <= 0 {
		return nil
	}

	type queueItem struct {
		id    string
		depth int
	}

	visited := map[string]bool{id: true}
	queue := []queueItem{{id, 0}}
	var related []string

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current.depth >= depth {
			continue
		}

		for _, neighbor := range g.Neighbors(current.id, exists) {
			if visited[neighbor] {
				continue
			}
			visited[neighbor] = true
			related = append(related, neighbor)
			queue = append(queue, queueItem{neighbor, current.depth + 1})
		}
	}
	return related
}

// Snapshot returns a copy of the adjacency lists for serialization.
func (g *relatedGraph) Snapshot() map[string][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[string][]string, len(g.edges))
	for id, set := range g.edges {
		neighbors := make([]string, 0, len(set))
		for neighbor := range set {
			neighbors = append(neighbors, neighbor)
		}
		out[id] = neighbors
	}
	return out
}

// Restore replaces the adjacency lists from a snapshot.
func (g *relatedGraph) Restore(edges map[string][]string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.edges = make(map[string]map[string]struct{}, len(edges))
	for id, neighbors := range edges {
		set := make(map[string]struct{}, len(neighbors))
		for _, neighbor := range neighbors {
			set[neighbor] = struct{}{}
		}
		g.edges[id] = set
	}
}
