// Package graph derives the higher layers of the retrieval graph from
// stored chunks and entities: section hierarchy, importance scores,
// foundation edges, communities with summaries, and global PageRank.
package graph

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/hippograph/hippograph/llm"
	"github.com/hippograph/hippograph/store"
)

// Config holds the derivation knobs.
type Config struct {
	CompletionModel     string
	SectionSimThreshold float64
	SectionEdgeCap      int
	SynonymThreshold    float64
	MinEntities         int
	CommunityMaxLevels  int
	EnableSections      bool
	EnableCommunities   bool
}

// Builder runs graph derivation for one group at a time.
type Builder struct {
	store    *store.Store
	provider llm.Provider
	embedder llm.Embedder
	cfg      Config
	logger   *slog.Logger
}

// NewBuilder wires a Builder.
func NewBuilder(st *store.Store, provider llm.Provider, embedder llm.Embedder, cfg Config, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{store: st, provider: provider, embedder: embedder, cfg: cfg, logger: logger}
}

// BuildResult reports what derivation produced.
type BuildResult struct {
	Sections    int
	Communities int
	Usage       llm.Usage
}

// Build derives all graph layers for a group. Individual derivation steps
// degrade with a warning instead of failing the run; the graph stays usable
// with whatever layers completed.
func (b *Builder) Build(ctx context.Context, groupID string, chunks []store.Chunk, embeddings map[string][]float32) (*BuildResult, error) {
	start := time.Now()
	result := &BuildResult{}

	if b.cfg.EnableSections {
		if err := b.deriveSections(ctx, groupID, chunks); err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			b.logger.Warn("section derivation failed", "group", groupID, "error", err)
		}
	}

	importance, err := b.computeImportance(ctx, groupID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		b.logger.Warn("importance scoring failed", "group", groupID, "error", err)
	}

	entities, err := b.store.ListEntities(ctx, groupID)
	if err != nil {
		return nil, err
	}

	if err := b.deriveSimilarEntityEdges(ctx, groupID, entities, embeddings, b.cfg.SynonymThreshold); err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		b.logger.Warn("entity similarity edges failed", "group", groupID, "error", err)
	}

	if err := b.deriveFoundationEdges(ctx, groupID, importance); err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		b.logger.Warn("foundation edges failed", "group", groupID, "error", err)
	}

	if b.cfg.EnableCommunities {
		count, usage, err := b.buildCommunities(ctx, groupID, entities, chunks, embeddings)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			b.logger.Warn("community detection failed", "group", groupID, "error", err)
		}
		result.Communities = count
		result.Usage.Add(usage)
	}

	if err := b.computePageRank(ctx, groupID); err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		b.logger.Warn("pagerank failed", "group", groupID, "error", err)
	}

	sections, err := b.store.ListSections(ctx, groupID)
	if err == nil {
		result.Sections = len(sections)
	}

	b.logger.Info("graph derivation complete",
		"group", groupID, "sections", result.Sections,
		"communities", result.Communities,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return result, nil
}

// buildCommunities detects, summarises, embeds and persists communities.
// Summaries are grounded on the chunks that mention the most members.
func (b *Builder) buildCommunities(ctx context.Context, groupID string, entities []store.Entity, chunks []store.Chunk, embeddings map[string][]float32) (int, llm.Usage, error) {
	var usage llm.Usage

	rels, err := b.store.ListRelationships(ctx, groupID)
	if err != nil {
		return 0, usage, err
	}
	similar, err := b.store.ListEntityEdges(ctx, groupID, "SIMILAR_TO", b.cfg.SynonymThreshold)
	if err != nil {
		return 0, usage, err
	}
	mentionRows, err := b.store.ListMentions(ctx, groupID)
	if err != nil {
		return 0, usage, err
	}
	chunkByID := make(map[string]store.Chunk, len(chunks))
	for _, c := range chunks {
		chunkByID[c.ID] = c
	}

	ids := make([]string, len(entities))
	byID := make(map[string]store.Entity, len(entities))
	for i, e := range entities {
		ids[i] = e.ID
		byID[e.ID] = e
	}
	edges := make([]communityEdge, 0, len(rels)+len(similar))
	for _, r := range rels {
		edges = append(edges, communityEdge{r.SourceID, r.TargetID, r.Weight})
	}
	for _, e := range similar {
		edges = append(edges, communityEdge{e.SourceID, e.TargetID, e.Weight})
	}

	communities := detectCommunities(groupID, ids, edges, b.cfg.MinEntities, b.cfg.CommunityMaxLevels)

	relIndex := make(map[string][]store.Relationship)
	for _, r := range rels {
		relIndex[r.SourceID] = append(relIndex[r.SourceID], r)
	}

	assignment := make(map[string]string)
	for i := range communities {
		c := &communities[i]
		members := make([]store.Entity, 0, len(c.EntityIDs))
		inCommunity := make(map[string]bool, len(c.EntityIDs))
		for _, id := range c.EntityIDs {
			inCommunity[id] = true
			if e, ok := byID[id]; ok {
				members = append(members, e)
			}
			if c.Level == 0 {
				assignment[id] = c.ID
			}
		}
		var internal []store.Relationship
		for _, id := range c.EntityIDs {
			for _, r := range relIndex[id] {
				if inCommunity[r.TargetID] {
					internal = append(internal, r)
				}
			}
		}
		evidence := b.selectEvidence(ctx, groupID, c.EntityIDs, mentionRows, chunkByID, embeddings)
		usage.Add(b.summarizeCommunity(ctx, c, members, internal, evidence))
	}

	if err := b.store.ReplaceCommunities(ctx, groupID, communities); err != nil {
		return 0, usage, err
	}
	if err := b.store.SetEntityCommunities(ctx, groupID, assignment); err != nil {
		return 0, usage, err
	}

	if len(communities) > 0 {
		texts := make([]string, len(communities))
		embedIDs := make([]string, len(communities))
		for i, c := range communities {
			texts[i] = c.Title + "\n" + c.Summary
			embedIDs[i] = c.ID
		}
		vectors, err := b.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return len(communities), usage, err
		}
		if err := b.store.UpsertCommunityEmbeddings(ctx, groupID, embedIDs, vectors); err != nil {
			return len(communities), usage, err
		}
	}
	return len(communities), usage, nil
}

func cosine32(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
