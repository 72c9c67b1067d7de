package route

import (
	"context"

	"github.com/hippograph/hippograph/ppr"
	"github.com/hippograph/hippograph/store"
	"github.com/hippograph/hippograph/triplestore"
)

// buildSeeds assembles the personalization vector for the walk and reports
// how many entity and passage nodes seeded it. Entity seeds come from
// filtered triple endpoints and are normalised to sum 1. Passage seeds
// carry DPR scores scaled by the passage node weight so dense retrieval
// biases but does not dominate the walk. Structural and community seeds
// add small boosts through section matches and community membership.
func (h *Handler) buildSeeds(ctx context.Context, groupID string, queryVec []float32, triples []triplestore.Hit, dprHits []store.SearchHit) (map[string]float64, int, int, error) {
	seeds := make(map[string]float64)

	entityWeight := make(map[string]float64)
	for _, hit := range triples {
		entityWeight[hit.Triple.SubjectID] += 1
		entityWeight[hit.Triple.ObjectID] += 1
	}

	if h.opts.StructuralWeight > 0 && h.opts.EnableSections {
		structural, err := h.structuralSeeds(ctx, groupID, queryVec)
		if err != nil {
			h.logger.Warn("structural seeds failed", "group", groupID, "error", err)
		}
		for id, w := range structural {
			entityWeight[id] += w
		}
	}

	if h.opts.CommunityWeight > 0 && h.opts.EnableCommunities {
		community, err := h.communitySeeds(ctx, groupID, queryVec)
		if err != nil {
			h.logger.Warn("community seeds failed", "group", groupID, "error", err)
		}
		for id, w := range community {
			entityWeight[id] += w
		}
	}

	var entityTotal float64
	for _, w := range entityWeight {
		entityTotal += w
	}
	if entityTotal > 0 {
		for id, w := range entityWeight {
			seeds[id] = w / entityTotal
		}
	}

	// DPR scores are normalised among themselves, then scaled down so the
	// passage layer nudges rather than drives the walk.
	var dprTotal float64
	for _, hit := range dprHits {
		if hit.Similarity > 0 {
			dprTotal += hit.Similarity
		}
	}
	var passageSeeds int
	if dprTotal > 0 {
		for _, hit := range dprHits {
			if hit.Similarity > 0 {
				seeds[hit.NodeID] += hit.Similarity / dprTotal * h.opts.PassageNodeWeight
				passageSeeds++
			}
		}
	}
	entitySeeds := 0
	if entityTotal > 0 {
		entitySeeds = len(entityWeight)
	}
	return seeds, entitySeeds, passageSeeds, nil
}

// structuralSeeds boosts the top entities of sections that match the query.
func (h *Handler) structuralSeeds(ctx context.Context, groupID string, queryVec []float32) (map[string]float64, error) {
	hits, err := h.store.SectionVectorSearch(ctx, groupID, queryVec, 5)
	if err != nil {
		return nil, err
	}
	var sectionIDs []string
	for _, hit := range hits {
		if hit.Similarity >= h.opts.SectionPPRSim {
			sectionIDs = append(sectionIDs, hit.NodeID)
		}
	}
	if len(sectionIDs) == 0 {
		return nil, nil
	}
	entityIDs, err := h.store.TopEntitiesInSections(ctx, groupID, sectionIDs, 10)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(entityIDs))
	for _, id := range entityIDs {
		out[id] = h.opts.StructuralWeight
	}
	return out, nil
}

// communitySeeds boosts members of communities whose summaries match the
// query.
func (h *Handler) communitySeeds(ctx context.Context, groupID string, queryVec []float32) (map[string]float64, error) {
	hits, err := h.store.CommunityVectorSearch(ctx, groupID, queryVec, 3)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, hit := range hits {
		ids = append(ids, hit.NodeID)
	}
	communities, err := h.store.GetCommunitiesByID(ctx, groupID, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, c := range communities {
		for _, id := range c.EntityIDs {
			out[id] += h.opts.CommunityWeight
		}
	}
	return out, nil
}

// buildGraph assembles the in-memory walk graph from stored edges. Mention
// edges carry the passage node weight, not the stored weight, so passages
// receive a small fixed share of entity mass. Section nodes join the walk
// only when section retrieval is enabled, linked with a small fixed weight
// so structure guides rather than overwhelms.
func buildGraph(data *store.PPRData, passageNodeWeight, sectionEdgeWeight float64, withSections bool) *ppr.Graph {
	g := ppr.NewGraph()
	for _, e := range data.Entities {
		g.AddNode(e.ID, ppr.KindEntity)
	}
	for _, id := range data.ChunkIDs {
		g.AddNode(id, ppr.KindPassage)
	}
	if withSections {
		for _, id := range data.SectionIDs {
			g.AddNode(id, ppr.KindSection)
		}
	}
	for _, e := range data.RelationEdges {
		g.AddEdge(e.SourceID, e.TargetID, e.Weight)
	}
	for _, e := range data.Mentions {
		g.AddEdge(e.SourceID, e.TargetID, passageNodeWeight)
	}
	for _, e := range data.SynonymEdges {
		g.AddEdge(e.SourceID, e.TargetID, e.Weight)
	}
	if withSections {
		for _, e := range data.ChunkSections {
			g.AddEdge(e.SourceID, e.TargetID, sectionEdgeWeight)
		}
		for _, e := range data.SectionSimilar {
			g.AddEdge(e.SourceID, e.TargetID, e.Weight*sectionEdgeWeight)
		}
	}
	return g
}
