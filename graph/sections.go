package graph

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/hippograph/hippograph/store"
)

const (
	sectionSampleChunks  = 3
	sectionSampleChars   = 500
	sectionEmbedCapChars = 2000
)

// sectionID derives a deterministic section id from group, document and the
// joined heading path.
func sectionID(groupID, docID, pathKey string) string {
	sum := sha256.Sum256([]byte(groupID + "\x00" + docID + "\x00" + pathKey))
	return "sec_" + hex.EncodeToString(sum[:12])
}

// deriveSections builds the section hierarchy from chunk heading paths,
// assigns each chunk its leaf section, embeds sections, and links
// semantically similar sections across documents.
func (b *Builder) deriveSections(ctx context.Context, groupID string, chunks []store.Chunk) error {
	type sectionAgg struct {
		section store.Section
		samples []string
	}
	byID := make(map[string]*sectionAgg)
	var order []string

	ensure := func(docID string, path []string) string {
		var parentID string
		var id string
		for depth := range path {
			pathKey := strings.Join(path[:depth+1], " > ")
			id = sectionID(groupID, docID, pathKey)
			if _, ok := byID[id]; !ok {
				byID[id] = &sectionAgg{section: store.Section{
					ID:         id,
					GroupID:    groupID,
					DocumentID: docID,
					PathKey:    pathKey,
					Title:      path[depth],
					Depth:      depth,
					ParentID:   parentID,
				}}
				order = append(order, id)
			}
			parentID = id
		}
		return id
	}

	for i := range chunks {
		path := chunks[i].Metadata.SectionPath
		if len(path) == 0 {
			continue
		}
		leaf := ensure(chunks[i].DocumentID, path)
		chunks[i].SectionID = leaf
		agg := byID[leaf]
		if len(agg.samples) < sectionSampleChunks {
			sample := chunks[i].Text
			if len(sample) > sectionSampleChars {
				sample = sample[:sectionSampleChars]
			}
			agg.samples = append(agg.samples, sample)
		}
	}
	if len(order) == 0 {
		return nil
	}

	sections := make([]store.Section, 0, len(order))
	for _, id := range order {
		sections = append(sections, byID[id].section)
	}
	if err := b.store.UpsertSections(ctx, sections); err != nil {
		return err
	}
	for _, c := range chunks {
		if c.SectionID == "" {
			continue
		}
		if err := b.store.SetChunkSection(ctx, groupID, c.ID, c.SectionID); err != nil {
			return err
		}
	}

	// Embed each section from its title, path and sample chunk text.
	texts := make([]string, len(order))
	for i, id := range order {
		agg := byID[id]
		text := agg.section.Title + "\n" + agg.section.PathKey
		for _, s := range agg.samples {
			text += "\n" + s
		}
		if len(text) > sectionEmbedCapChars {
			text = text[:sectionEmbedCapChars]
		}
		texts[i] = text
	}
	vectors, err := b.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return err
	}
	if err := b.store.UpsertSectionEmbeddings(ctx, groupID, order, vectors); err != nil {
		return err
	}

	edges := similarSectionEdges(groupID, sections, vectors, b.cfg.SectionSimThreshold, b.cfg.SectionEdgeCap)
	return b.store.ReplaceSectionEdges(ctx, groupID, edges)
}

// similarSectionEdges links sections of different documents whose embeddings
// are at least threshold apart in cosine similarity, keeping at most cap
// edges per source section.
func similarSectionEdges(groupID string, sections []store.Section, vectors [][]float32, threshold float64, maxEdges int) []store.SectionEdge {
	var edges []store.SectionEdge
	for i := range sections {
		type scored struct {
			j   int
			sim float64
		}
		var hits []scored
		for j := range sections {
			if i == j || sections[i].DocumentID == sections[j].DocumentID {
				continue
			}
			sim := cosine32(vectors[i], vectors[j])
			if sim >= threshold {
				hits = append(hits, scored{j, sim})
			}
		}
		sort.Slice(hits, func(a, b int) bool {
			if hits[a].sim != hits[b].sim {
				return hits[a].sim > hits[b].sim
			}
			return sections[hits[a].j].ID < sections[hits[b].j].ID
		})
		if maxEdges > 0 && len(hits) > maxEdges {
			hits = hits[:maxEdges]
		}
		for _, h := range hits {
			edges = append(edges, store.SectionEdge{
				GroupID:  groupID,
				SourceID: sections[i].ID,
				TargetID: sections[h.j].ID,
				Type:     "SEMANTICALLY_SIMILAR",
				Weight:   h.sim,
			})
		}
	}
	return edges
}
