// Package ppr runs Personalized PageRank over an in-memory heterogeneous
// graph of entity, passage and section nodes.
package ppr

// NodeKind distinguishes the node layers of the walk graph.
type NodeKind int

const (
	KindEntity NodeKind = iota
	KindPassage
	KindSection
)

type arc struct {
	to     int
	weight float64
}

// Graph is an immutable-after-build adjacency arena. Node indexes are
// assigned in insertion order, which fixes iteration order and makes walk
// output deterministic.
type Graph struct {
	ids   []string
	kinds []NodeKind
	index map[string]int
	adj   [][]arc
	wout  []float64
	edges map[[2]string]bool
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		index: make(map[string]int),
		edges: make(map[[2]string]bool),
	}
}

// AddNode registers a node. Re-adding an existing id is a no-op.
func (g *Graph) AddNode(id string, kind NodeKind) {
	if _, ok := g.index[id]; ok {
		return
	}
	g.index[id] = len(g.ids)
	g.ids = append(g.ids, id)
	g.kinds = append(g.kinds, kind)
	g.adj = append(g.adj, nil)
	g.wout = append(g.wout, 0)
}

// AddEdge adds an undirected weighted edge. Both endpoints must exist;
// self-loops, non-positive weights and duplicate pairs (in either
// direction) are ignored.
func (g *Graph) AddEdge(a, b string, weight float64) {
	i, ok1 := g.index[a]
	j, ok2 := g.index[b]
	if !ok1 || !ok2 || i == j || weight <= 0 {
		return
	}
	key := [2]string{a, b}
	if b < a {
		key = [2]string{b, a}
	}
	if g.edges[key] {
		return
	}
	g.edges[key] = true
	g.adj[i] = append(g.adj[i], arc{j, weight})
	g.adj[j] = append(g.adj[j], arc{i, weight})
	g.wout[i] += weight
	g.wout[j] += weight
}

// Len returns the node count.
func (g *Graph) Len() int {
	return len(g.ids)
}

// Has reports whether a node id is in the graph.
func (g *Graph) Has(id string) bool {
	_, ok := g.index[id]
	return ok
}

// Kind returns a node's kind; false when the node is absent.
func (g *Graph) Kind(id string) (NodeKind, bool) {
	i, ok := g.index[id]
	if !ok {
		return 0, false
	}
	return g.kinds[i], true
}
