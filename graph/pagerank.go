package graph

import (
	"context"
)

const (
	pagerankDamping    = 0.85
	pagerankIterations = 20
)

// computePageRank runs global PageRank over the heterogeneous graph of
// entities, passages and sections, and stores the entity scores. The scores
// feed community ranking and seed selection, not query-time walks.
func (b *Builder) computePageRank(ctx context.Context, groupID string) error {
	data, err := b.store.LoadPPRData(ctx, groupID, b.cfg.SynonymThreshold)
	if err != nil {
		return err
	}

	index := make(map[string]int)
	var ids []string
	addNode := func(id string) {
		if _, ok := index[id]; !ok {
			index[id] = len(ids)
			ids = append(ids, id)
		}
	}
	for _, e := range data.Entities {
		addNode(e.ID)
	}
	for _, c := range data.ChunkIDs {
		addNode(c)
	}
	for _, s := range data.SectionIDs {
		addNode(s)
	}
	n := len(ids)
	if n == 0 {
		return nil
	}

	type arc struct {
		to     int
		weight float64
	}
	adj := make([][]arc, n)
	wout := make([]float64, n)
	addEdge := func(a, bID string, w float64) {
		i, ok1 := index[a]
		j, ok2 := index[bID]
		if !ok1 || !ok2 || i == j || w <= 0 {
			return
		}
		adj[i] = append(adj[i], arc{j, w})
		adj[j] = append(adj[j], arc{i, w})
		wout[i] += w
		wout[j] += w
	}
	for _, e := range data.RelationEdges {
		addEdge(e.SourceID, e.TargetID, e.Weight)
	}
	for _, e := range data.Mentions {
		addEdge(e.SourceID, e.TargetID, e.Weight)
	}
	for _, e := range data.SynonymEdges {
		addEdge(e.SourceID, e.TargetID, e.Weight)
	}
	for _, e := range data.ChunkSections {
		addEdge(e.SourceID, e.TargetID, e.Weight)
	}
	for _, e := range data.SectionSimilar {
		addEdge(e.SourceID, e.TargetID, e.Weight)
	}

	rank := make([]float64, n)
	next := make([]float64, n)
	base := 1.0 / float64(n)
	for i := range rank {
		rank[i] = base
	}
	for iter := 0; iter < pagerankIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i := range next {
			next[i] = (1 - pagerankDamping) * base
		}
		for j := 0; j < n; j++ {
			if wout[j] == 0 {
				// Dangling mass is spread uniformly.
				share := pagerankDamping * rank[j] * base
				for i := range next {
					next[i] += share
				}
				continue
			}
			for _, a := range adj[j] {
				next[a.to] += pagerankDamping * rank[j] * a.weight / wout[j]
			}
		}
		rank, next = next, rank
	}

	scores := make(map[string]float64, len(data.Entities))
	for _, e := range data.Entities {
		scores[e.ID] = rank[index[e.ID]]
	}
	return b.store.SetEntityPageRank(ctx, groupID, scores)
}
