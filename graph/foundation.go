package graph

import (
	"context"
	"sort"

	"github.com/hippograph/hippograph/store"
)

// computeImportance scores entities as a weighted blend of normalised degree
// and chunk count, then persists the scores.
func (b *Builder) computeImportance(ctx context.Context, groupID string) (map[string]float64, error) {
	if err := b.store.UpdateEntityStats(ctx, groupID); err != nil {
		return nil, err
	}
	entities, err := b.store.ListEntities(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, nil
	}

	maxDegree, maxChunks := 1, 1
	for _, e := range entities {
		if e.Degree > maxDegree {
			maxDegree = e.Degree
		}
		if e.ChunkCount > maxChunks {
			maxChunks = e.ChunkCount
		}
	}

	scores := make(map[string]float64, len(entities))
	for _, e := range entities {
		scores[e.ID] = 0.3*float64(e.Degree)/float64(maxDegree) +
			0.7*float64(e.ChunkCount)/float64(maxChunks)
	}
	if err := b.store.SetEntityImportance(ctx, groupID, scores); err != nil {
		return nil, err
	}
	return scores, nil
}

// deriveFoundationEdges builds shortcut edges: entity-to-section and
// entity-to-document appearance edges with mention counts, and a
// HAS_HUB_ENTITY edge from each section to its top entities. It also adds
// SHARES_ENTITY edges between cross-document sections with enough entity
// overlap.
func (b *Builder) deriveFoundationEdges(ctx context.Context, groupID string, importance map[string]float64) error {
	chunks, err := b.store.GetChunksByGroup(ctx, groupID)
	if err != nil {
		return err
	}
	mentions, err := b.store.ListMentions(ctx, groupID)
	if err != nil {
		return err
	}

	chunkSection := make(map[string]string)
	chunkDoc := make(map[string]string)
	for _, c := range chunks {
		chunkSection[c.ID] = c.SectionID
		chunkDoc[c.ID] = c.DocumentID
	}

	type pair struct{ a, b string }
	inSection := make(map[pair]int)
	inDocument := make(map[pair]int)
	sectionEntities := make(map[string]map[string]int)
	for _, m := range mentions {
		chunkID, entityID := m.ChunkID, m.EntityID
		if sec := chunkSection[chunkID]; sec != "" {
			inSection[pair{entityID, sec}]++
			if sectionEntities[sec] == nil {
				sectionEntities[sec] = make(map[string]int)
			}
			sectionEntities[sec][entityID]++
		}
		if doc := chunkDoc[chunkID]; doc != "" {
			inDocument[pair{entityID, doc}]++
		}
	}

	var edges []store.FoundationEdge
	for p, count := range inSection {
		edges = append(edges, store.FoundationEdge{
			GroupID: groupID, SourceID: p.a, TargetID: p.b,
			Type: "APPEARS_IN_SECTION", Count: count,
		})
	}
	for p, count := range inDocument {
		edges = append(edges, store.FoundationEdge{
			GroupID: groupID, SourceID: p.a, TargetID: p.b,
			Type: "APPEARS_IN_DOCUMENT", Count: count,
		})
	}

	// Each section points at its three most important entities.
	for sec, ents := range sectionEntities {
		type scored struct {
			id    string
			score float64
		}
		var ranked []scored
		for id := range ents {
			ranked = append(ranked, scored{id, importance[id]})
		}
		sort.Slice(ranked, func(i, j int) bool {
			if ranked[i].score != ranked[j].score {
				return ranked[i].score > ranked[j].score
			}
			return ranked[i].id < ranked[j].id
		})
		if len(ranked) > 3 {
			ranked = ranked[:3]
		}
		for _, r := range ranked {
			edges = append(edges, store.FoundationEdge{
				GroupID: groupID, SourceID: sec, TargetID: r.id,
				Type: "HAS_HUB_ENTITY", Count: ents[r.id],
			})
		}
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].SourceID != edges[j].SourceID {
			return edges[i].SourceID < edges[j].SourceID
		}
		if edges[i].TargetID != edges[j].TargetID {
			return edges[i].TargetID < edges[j].TargetID
		}
		return edges[i].Type < edges[j].Type
	})
	if err := b.store.ReplaceFoundationEdges(ctx, groupID, edges); err != nil {
		return err
	}

	return b.addSharesEntityEdges(ctx, groupID, sectionEntities)
}

// addSharesEntityEdges appends SHARES_ENTITY edges between sections of
// different documents that mention at least two common entities, keeping
// the existing similarity edges in place.
func (b *Builder) addSharesEntityEdges(ctx context.Context, groupID string, sectionEntities map[string]map[string]int) error {
	sections, err := b.store.ListSections(ctx, groupID)
	if err != nil {
		return err
	}
	secDoc := make(map[string]string, len(sections))
	for _, s := range sections {
		secDoc[s.ID] = s.DocumentID
	}

	existing, err := b.store.ListSectionEdges(ctx, groupID)
	if err != nil {
		return err
	}

	var ids []string
	for id := range sectionEntities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	edges := existing
	for i, a := range ids {
		for _, bID := range ids[i+1:] {
			if secDoc[a] == secDoc[bID] {
				continue
			}
			var shared []string
			for ent := range sectionEntities[a] {
				if sectionEntities[bID][ent] > 0 {
					shared = append(shared, ent)
				}
			}
			if len(shared) < 2 {
				continue
			}
			sort.Strings(shared)
			edges = append(edges, store.SectionEdge{
				GroupID:  groupID,
				SourceID: a,
				TargetID: bID,
				Type:     "SHARES_ENTITY",
				Weight:   float64(len(shared)),
				Shared:   shared,
			})
		}
	}
	return b.store.ReplaceSectionEdges(ctx, groupID, edges)
}

// deriveSimilarEntityEdges links entities whose embeddings are close but
// that share no extracted relationship, so isolated synonyms still connect.
func (b *Builder) deriveSimilarEntityEdges(ctx context.Context, groupID string, entities []store.Entity, embeddings map[string][]float32, threshold float64) error {
	connected := make(map[[2]string]bool)
	rels, err := b.store.ListRelationships(ctx, groupID)
	if err != nil {
		return err
	}
	for _, r := range rels {
		a, bID := orderedPair(r.SourceID, r.TargetID)
		connected[[2]string{a, bID}] = true
	}

	var edges []store.EntityEdge
	for i := range entities {
		vi := embeddings[entities[i].ID]
		if len(vi) == 0 {
			continue
		}
		for j := i + 1; j < len(entities); j++ {
			vj := embeddings[entities[j].ID]
			if len(vj) == 0 {
				continue
			}
			a, bID := orderedPair(entities[i].ID, entities[j].ID)
			if connected[[2]string{a, bID}] {
				continue
			}
			sim := cosine32(vi, vj)
			if sim >= threshold {
				edges = append(edges, store.EntityEdge{
					GroupID:  groupID,
					SourceID: a,
					TargetID: bID,
					Type:     "SIMILAR_TO",
					Weight:   sim,
				})
			}
		}
	}
	return b.store.ReplaceEntityEdges(ctx, groupID, edges)
}

func orderedPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}
