package ppr

import (
	"math"
	"sort"
)

// Params controls the power iteration.
type Params struct {
	Damping       float64
	MaxIterations int
	Threshold     float64
}

// DefaultParams matches the query-time walk settings: a low damping factor
// keeps mass near the seeds.
func DefaultParams() Params {
	return Params{Damping: 0.5, MaxIterations: 50, Threshold: 1e-6}
}

// Score is one ranked node.
type Score struct {
	ID    string
	Kind  NodeKind
	Value float64
}

// Run computes Personalized PageRank from the given seed weights. Seeds
// naming absent nodes are dropped; the personalization vector is
// normalised to sum 1. An empty effective seed set returns nil. Output is
// sorted by score descending with insertion-order tie-break, so identical
// inputs give identical output.
func (g *Graph) Run(seeds map[string]float64, params Params) []Score {
	n := len(g.ids)
	if n == 0 {
		return nil
	}
	if params.Damping <= 0 || params.Damping >= 1 {
		params.Damping = 0.5
	}
	if params.MaxIterations <= 0 {
		params.MaxIterations = 50
	}
	if params.Threshold <= 0 {
		params.Threshold = 1e-6
	}

	p := make([]float64, n)
	var total float64
	for id, w := range seeds {
		if w <= 0 {
			continue
		}
		if i, ok := g.index[id]; ok {
			p[i] += w
			total += w
		}
	}
	if total == 0 {
		return nil
	}
	for i := range p {
		p[i] /= total
	}

	rank := make([]float64, n)
	copy(rank, p)
	next := make([]float64, n)
	d := params.Damping

	for iter := 0; iter < params.MaxIterations; iter++ {
		for i := range next {
			next[i] = (1 - d) * p[i]
		}
		for j := 0; j < n; j++ {
			if rank[j] == 0 {
				continue
			}
			if g.wout[j] == 0 {
				// Dangling nodes return their mass to the seeds.
				for i, pi := range p {
					if pi > 0 {
						next[i] += d * rank[j] * pi
					}
				}
				continue
			}
			for _, a := range g.adj[j] {
				next[a.to] += d * rank[j] * a.weight / g.wout[j]
			}
		}

		var delta float64
		for i := range rank {
			delta += math.Abs(next[i] - rank[i])
		}
		rank, next = next, rank
		if delta < params.Threshold {
			break
		}
	}

	scores := make([]Score, 0, n)
	for i, v := range rank {
		if v > 0 {
			scores = append(scores, Score{ID: g.ids[i], Kind: g.kinds[i], Value: v})
		}
	}
	sort.SliceStable(scores, func(a, b int) bool {
		return scores[a].Value > scores[b].Value
	})
	return scores
}

// TopPassages filters a ranking down to its passage nodes, keeping at most
// k entries.
func TopPassages(scores []Score, k int) []Score {
	var out []Score
	for _, s := range scores {
		if s.Kind != KindPassage {
			continue
		}
		out = append(out, s)
		if len(out) == k {
			break
		}
	}
	return out
}
