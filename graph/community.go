package graph

import (
	"fmt"
	"sort"

	"github.com/hippograph/hippograph/store"
)

// communityEdge is an undirected weighted edge for clustering.
type communityEdge struct {
	a, b   string
	weight float64
}

// detectCommunities clusters entities hierarchically. Level 0 is the finest
// partition from greedy modularity merging inside each connected component;
// level 1 is the components themselves. Clusters below minEntities are
// dropped. Output order and ids are deterministic.
func detectCommunities(groupID string, entityIDs []string, edges []communityEdge, minEntities, maxLevels int) []store.Community {
	if len(entityIDs) == 0 {
		return nil
	}
	sorted := append([]string(nil), entityIDs...)
	sort.Strings(sorted)

	adj := make(map[string]map[string]float64, len(sorted))
	for _, id := range sorted {
		adj[id] = make(map[string]float64)
	}
	for _, e := range edges {
		if adj[e.a] == nil || adj[e.b] == nil || e.a == e.b {
			continue
		}
		adj[e.a][e.b] += e.weight
		adj[e.b][e.a] += e.weight
	}

	components := connectedComponents(sorted, adj)
	total := float64(len(sorted))

	var communities []store.Community
	levelCount := make(map[int]int)
	emit := func(level int, members []string) {
		if len(members) < minEntities {
			return
		}
		sort.Strings(members)
		id := fmt.Sprintf("com_L%d_%d", level, levelCount[level])
		levelCount[level]++
		communities = append(communities, store.Community{
			ID:        id,
			GroupID:   groupID,
			Level:     level,
			EntityIDs: members,
			Rank:      float64(len(members)) / total,
		})
	}

	for _, comp := range components {
		for _, cluster := range greedyModularity(comp, adj) {
			emit(0, cluster)
		}
		if maxLevels > 1 {
			emit(1, comp)
		}
	}
	return communities
}

// connectedComponents returns BFS components in deterministic order.
func connectedComponents(ids []string, adj map[string]map[string]float64) [][]string {
	visited := make(map[string]bool, len(ids))
	var components [][]string
	for _, start := range ids {
		if visited[start] {
			continue
		}
		var comp []string
		queue := []string{start}
		visited[start] = true
		for len(queue) > 0 {
			node := queue[0]
			queue = queue[1:]
			comp = append(comp, node)
			var neighbors []string
			for n := range adj[node] {
				neighbors = append(neighbors, n)
			}
			sort.Strings(neighbors)
			for _, n := range neighbors {
				if !visited[n] {
					visited[n] = true
					queue = append(queue, n)
				}
			}
		}
		sort.Strings(comp)
		components = append(components, comp)
	}
	return components
}

// greedyModularity splits a component by repeatedly merging the cluster
// pair with the highest inter-cluster weight relative to cluster sizes,
// stopping when no merge improves density. Small components stay whole.
func greedyModularity(comp []string, adj map[string]map[string]float64) [][]string {
	if len(comp) <= 4 {
		return [][]string{comp}
	}

	cluster := make(map[string]int, len(comp))
	clusters := make([][]string, len(comp))
	for i, id := range comp {
		cluster[id] = i
		clusters[i] = []string{id}
	}

	// Total edge weight inside the component, for the density threshold.
	var totalWeight float64
	for _, id := range comp {
		for _, w := range adj[id] {
			totalWeight += w
		}
	}
	totalWeight /= 2
	if totalWeight == 0 {
		return [][]string{comp}
	}

	for {
		bestGain := 0.0
		bestA, bestB := -1, -1
		for ci := range clusters {
			if clusters[ci] == nil {
				continue
			}
			interWeight := make(map[int]float64)
			for _, id := range clusters[ci] {
				for n, w := range adj[id] {
					cj := cluster[n]
					if cj != ci {
						interWeight[cj] += w
					}
				}
			}
			for cj, w := range interWeight {
				gain := w/totalWeight - float64(len(clusters[ci])*len(clusters[cj]))/float64(len(comp)*len(comp))
				if gain > bestGain || (gain == bestGain && bestGain > 0 && (ci < bestA || (ci == bestA && cj < bestB))) {
					bestGain = gain
					bestA, bestB = ci, cj
				}
			}
		}
		if bestA < 0 || bestGain <= 0 {
			break
		}
		for _, id := range clusters[bestB] {
			cluster[id] = bestA
		}
		clusters[bestA] = append(clusters[bestA], clusters[bestB]...)
		clusters[bestB] = nil
	}

	var out [][]string
	for _, c := range clusters {
		if c != nil {
			sort.Strings(c)
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}
