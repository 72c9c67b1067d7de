// Package hippograph is a graph-augmented retrieval engine. Indexing turns
// documents into a layered graph of chunks, sections, entities, relations,
// communities and sentences in SQLite; querying links questions to stored
// facts, walks the graph with Personalized PageRank, and synthesises
// grounded answers.
package hippograph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/hippograph/hippograph/chunker"
	"github.com/hippograph/hippograph/dedup"
	"github.com/hippograph/hippograph/extract"
	"github.com/hippograph/hippograph/extractor"
	"github.com/hippograph/hippograph/graph"
	"github.com/hippograph/hippograph/llm"
	"github.com/hippograph/hippograph/monitor"
	"github.com/hippograph/hippograph/route"
	"github.com/hippograph/hippograph/sentence"
	"github.com/hippograph/hippograph/store"
)

// Engine is the top-level facade over indexing and querying.
type Engine struct {
	cfg        Config
	store      *store.Store
	provider   llm.Provider
	embedder   llm.Embedder
	extract    *extract.Extractor
	builder    *graph.Builder
	handler    *route.Handler
	extractors *extractor.Registry
	logger     *slog.Logger

	mu       sync.Mutex
	indexing map[string]bool
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	logger      *slog.Logger
	provider    llm.Provider
	embedder    llm.Embedder
	synthesizer route.Synthesizer
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *engineOptions) { o.logger = l }
}

// WithProvider overrides the completion provider. Mainly for tests.
func WithProvider(p llm.Provider) Option {
	return func(o *engineOptions) { o.provider = p }
}

// WithEmbedder overrides the embedding provider. Mainly for tests.
func WithEmbedder(e llm.Embedder) Option {
	return func(o *engineOptions) { o.embedder = e }
}

// WithSynthesizer overrides the answer synthesizer.
func WithSynthesizer(s route.Synthesizer) Option {
	return func(o *engineOptions) { o.synthesizer = s }
}

// New builds an Engine from the configuration.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	if o.provider == nil {
		p, err := llm.NewProvider(llm.Config{
			Provider: cfg.Completion.Provider,
			Model:    cfg.Completion.Model,
			BaseURL:  cfg.Completion.BaseURL,
			APIKey:   cfg.Completion.APIKey,
		})
		if err != nil {
			return nil, err
		}
		o.provider = p
	}
	if o.embedder == nil {
		e, err := llm.NewEmbedder(llm.Config{
			Provider: cfg.Embedding.Provider,
			Model:    cfg.Embedding.Model,
			BaseURL:  cfg.Embedding.BaseURL,
			APIKey:   cfg.Embedding.APIKey,
		})
		if err != nil {
			return nil, err
		}
		o.embedder = e
	}

	st, err := store.New(cfg.DBPath, cfg.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	eng := &Engine{
		cfg:      cfg,
		store:    st,
		provider: o.provider,
		embedder: o.embedder,
		extract: extract.New(o.provider, cfg.Completion.Model,
			extract.WithConcurrency(cfg.ExtractConcurrency),
			extract.WithMinEntities(cfg.MinEntities),
			extract.WithLogger(o.logger)),
		builder: graph.NewBuilder(st, o.provider, o.embedder, graph.Config{
			CompletionModel:     cfg.Completion.Model,
			SectionSimThreshold: cfg.SectionSimThreshold,
			SectionEdgeCap:      cfg.SectionEdgeCap,
			SynonymThreshold:    cfg.SynonymThreshold,
			MinEntities:         cfg.MinEntities,
			CommunityMaxLevels:  cfg.CommunityMaxLevels,
			EnableSections:      cfg.IncludeSectionGraph,
			EnableCommunities:   cfg.CommunitySeedsEnabled || cfg.CommunityMaxLevels > 0,
		}, o.logger),
		extractors: extractor.NewRegistry(),
		logger:     o.logger,
		indexing:   make(map[string]bool),
	}
	eng.handler = route.NewHandler(st, o.provider, o.embedder, o.synthesizer, route.Options{
		CompletionModel:   cfg.Completion.Model,
		TripleTopK:        cfg.TripleTopK,
		DPRTopK:           cfg.DPRTopK,
		PPRPassageTopK:    cfg.PPRPassageTopK,
		SentenceTopK:      cfg.SentenceTopK,
		SentenceLimit:     cfg.SentenceLimit,
		SentenceSim:       cfg.SentenceSimThreshold,
		Damping:           cfg.Damping,
		SynonymThreshold:  cfg.SynonymThreshold,
		PassageNodeWeight: cfg.PassageNodeWeight,
		StructuralWeight:  cfg.StructuralWeight,
		CommunityWeight:   cfg.CommunityWeight,
		SectionEdgeWeight: cfg.SectionEdgeWeight,
		SectionPPRSim:     cfg.SectionPPRSim,
		EnableSections:    cfg.IncludeSectionGraph && cfg.StructuralSeedsEnabled,
		EnableCommunities: cfg.CommunitySeedsEnabled,
		EnableSentences:   cfg.SentenceSearchEnabled,
	}, o.logger)
	return eng, nil
}

// Close releases the underlying store.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store exposes the underlying store for diagnostics.
func (e *Engine) Store() *store.Store {
	return e.store
}

// DocumentInput is one document to index. Either Path or Text must be set;
// Path routes through the format extractors.
type DocumentInput struct {
	ID       string
	Title    string
	Path     string
	Text     string
	Date     string
	Metadata map[string]string
}

// IndexStats summarises an indexing run.
type IndexStats struct {
	GroupID       string        `json:"group_id"`
	Documents     int           `json:"documents"`
	Chunks        int           `json:"chunks"`
	Entities      int           `json:"entities"`
	Relationships int           `json:"relationships"`
	Mentions      int           `json:"mentions"`
	Sentences     int           `json:"sentences"`
	Sections      int           `json:"sections"`
	Communities   int           `json:"communities"`
	RepairRate    float64       `json:"repair_rate"`
	FailureRate   float64       `json:"failure_rate"`
	Warnings      []string      `json:"warnings,omitempty"`
	Elapsed       time.Duration `json:"elapsed"`
	Usage         llm.Usage     `json:"usage"`
}

// Index ingests documents into a group and derives the full graph. Only one
// indexing run may be active per group; a second concurrent call returns
// ErrGroupIndexing. With reindex set, existing group data is dropped first.
func (e *Engine) Index(ctx context.Context, groupID string, docs []DocumentInput, reindex bool) (*IndexStats, error) {
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}

	e.mu.Lock()
	if e.indexing[groupID] {
		e.mu.Unlock()
		return nil, ErrGroupIndexing
	}
	e.indexing[groupID] = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.indexing, groupID)
		e.mu.Unlock()
	}()

	start := time.Now()
	stats := &IndexStats{GroupID: groupID}

	if reindex {
		if err := e.store.DeleteGroup(ctx, groupID); err != nil {
			return nil, err
		}
	}

	var allChunks []store.Chunk
	for _, doc := range docs {
		chunks, err := e.ingestDocument(ctx, groupID, doc)
		if err != nil {
			return nil, err
		}
		allChunks = append(allChunks, chunks...)
		stats.Documents++
	}
	stats.Chunks = len(allChunks)

	texts := make([]string, len(allChunks))
	ids := make([]string, len(allChunks))
	for i, c := range allChunks {
		texts[i] = c.Text
		ids[i] = c.ID
	}
	vectors, err := e.embedBatches(ctx, texts)
	if err != nil {
		return nil, err
	}
	if err := e.store.UpsertChunkEmbeddings(ctx, groupID, ids, vectors); err != nil {
		return nil, err
	}

	results, err := e.extract.ExtractChunks(ctx, allChunks)
	if err != nil {
		return nil, err
	}
	entityCount, relCount, mentionCount, err := e.storeExtractions(ctx, groupID, results)
	if err != nil {
		return nil, err
	}
	stats.Entities = entityCount
	stats.Relationships = relCount
	stats.Mentions = mentionCount
	if mentionCount < e.cfg.MinMentions {
		stats.Warnings = append(stats.Warnings,
			fmt.Sprintf("only %d entity mentions across the group (floor %d); the corpus may be too thin for graph retrieval",
				mentionCount, e.cfg.MinMentions))
	}
	for _, r := range results {
		stats.Usage.Add(r.Usage)
		if r.Repaired {
			stats.RepairRate++
		}
		if r.Failed {
			stats.FailureRate++
		}
	}
	if len(results) > 0 {
		stats.RepairRate /= float64(len(results))
		stats.FailureRate /= float64(len(results))
	}
	if stats.RepairRate > monitor.RepairRateWarn {
		stats.Warnings = append(stats.Warnings,
			fmt.Sprintf("JSON repair rate %.1f%% exceeds %.0f%%; check the extraction model",
				stats.RepairRate*100, monitor.RepairRateWarn*100))
	}
	if stats.FailureRate > monitor.FailureRateWarn {
		stats.Warnings = append(stats.Warnings,
			fmt.Sprintf("extraction failure rate %.1f%% exceeds %.0f%%",
				stats.FailureRate*100, monitor.FailureRateWarn*100))
	}

	sentences := sentence.FromChunks(allChunks)
	if err := e.store.InsertSentences(ctx, sentences); err != nil {
		return nil, err
	}
	stats.Sentences = len(sentences)
	if e.cfg.SentenceSearchEnabled && len(sentences) > 0 {
		sentTexts := make([]string, len(sentences))
		sentIDs := make([]string, len(sentences))
		for i, s := range sentences {
			sentTexts[i] = s.Text
			sentIDs[i] = s.ID
		}
		sentVecs, err := e.embedBatches(ctx, sentTexts)
		if err != nil {
			return nil, err
		}
		if err := e.store.UpsertSentenceEmbeddings(ctx, groupID, sentIDs, sentVecs); err != nil {
			return nil, err
		}
	}

	entities, err := e.store.ListEntities(ctx, groupID)
	if err != nil {
		return nil, err
	}
	embeddings, err := e.entityEmbeddings(ctx, groupID, entities)
	if err != nil {
		return nil, err
	}

	build, err := e.builder.Build(ctx, groupID, allChunks, embeddings)
	if err != nil {
		return nil, err
	}
	stats.Sections = build.Sections
	stats.Communities = build.Communities
	stats.Usage.Add(build.Usage)

	stats.Elapsed = time.Since(start)
	raw, _ := json.Marshal(stats)
	if err := e.store.UpsertGroupMeta(ctx, store.GroupMeta{
		GroupID:      groupID,
		DerivedFresh: true,
		Stats:        raw,
	}); err != nil {
		return nil, err
	}
	e.handler.Invalidate(groupID)

	e.logger.Info("indexing complete", "group", groupID,
		"documents", stats.Documents, "chunks", stats.Chunks,
		"entities", stats.Entities, "relationships", stats.Relationships,
		"sections", stats.Sections, "communities", stats.Communities,
		"elapsed", stats.Elapsed.Round(time.Millisecond))
	return stats, nil
}

// ingestDocument extracts, chunks and persists one document, returning its
// chunks for the group-wide passes.
func (e *Engine) ingestDocument(ctx context.Context, groupID string, doc DocumentInput) ([]store.Chunk, error) {
	var units []extractor.Unit
	switch {
	case doc.Text != "":
		units = extractor.UnitsFromText(doc.Text)
	case doc.Path != "":
		ext, err := e.extractors.ForPath(doc.Path)
		if err != nil {
			return nil, err
		}
		units, err = ext.Extract(ctx, doc.Path)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrEmptyDocument, doc.ID)
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDocument, doc.ID)
	}

	if doc.ID == "" {
		doc.ID = filepath.Base(doc.Path)
	}
	if doc.Title == "" {
		doc.Title = doc.ID
	}
	chunks, err := chunker.Chunk(groupID, doc.ID, units, chunker.Options{
		ChunkSize:    e.cfg.ChunkSize,
		ChunkOverlap: e.cfg.ChunkOverlap,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDocument, doc.ID)
	}

	if err := e.store.InsertDocument(ctx, store.Document{
		ID:           doc.ID,
		GroupID:      groupID,
		Title:        doc.Title,
		Source:       doc.Path,
		DocumentDate: doc.Date,
		Metadata:     doc.Metadata,
	}); err != nil {
		return nil, err
	}
	if err := e.store.InsertChunks(ctx, chunks); err != nil {
		return nil, err
	}

	var pairs []store.KeyValuePair
	for ui, unit := range units {
		for ki, kv := range unit.KeyValues {
			pairs = append(pairs, store.KeyValuePair{
				ID:          fmt.Sprintf("%s_kv_%d_%d", doc.ID, ui, ki),
				GroupID:     groupID,
				DocumentID:  doc.ID,
				Key:         kv.Key,
				Value:       kv.Value,
				Confidence:  kv.Confidence,
				Page:        kv.Page,
				SectionPath: unit.SectionPath,
			})
		}
	}
	if err := e.store.InsertKeyValuePairs(ctx, pairs); err != nil {
		return nil, err
	}
	return chunks, nil
}

// storeExtractions merges extraction results into canonical entities,
// relationships and mentions and persists them.
func (e *Engine) storeExtractions(ctx context.Context, groupID string, results []extract.Result) (int, int, int, error) {
	var candidates []dedup.Candidate
	var rels []store.Relationship
	mentions := make(map[string][]string)
	nameToID := make(map[string]string)

	for _, r := range results {
		for _, ent := range r.Entities {
			id := dedup.EntityID(groupID, ent.Name)
			nameToID[ent.Name] = id
			candidates = append(candidates, dedup.Candidate{Entity: store.Entity{
				ID:          id,
				GroupID:     groupID,
				Name:        ent.Name,
				Type:        ent.Type,
				Description: ent.Description,
				Aliases:     ent.Aliases,
				TextUnitIDs: []string{r.ChunkID},
			}})
			mentions[r.ChunkID] = append(mentions[r.ChunkID], id)
		}
		for _, rel := range r.Relations {
			src, ok1 := nameToID[rel.Source]
			tgt, ok2 := nameToID[rel.Target]
			if !ok1 || !ok2 {
				continue
			}
			rels = append(rels, store.Relationship{
				GroupID:     groupID,
				SourceID:    src,
				TargetID:    tgt,
				Type:        rel.Type,
				Description: rel.Description,
				Weight:      1,
			})
		}
	}
	if len(candidates) == 0 {
		return 0, 0, 0, nil
	}

	// Embed entities for near-duplicate clustering and synonym edges.
	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Entity.Name
		if c.Entity.Description != "" {
			texts[i] += ": " + c.Entity.Description
		}
	}
	vectors, err := e.embedBatches(ctx, texts)
	if err != nil {
		return 0, 0, 0, err
	}
	for i := range candidates {
		candidates[i].Embedding = vectors[i]
	}

	merged := dedup.Merge(candidates, e.cfg.SimilarityThreshold)
	rels = dedup.RemapRelationships(rels, merged.Remap)
	remapped := dedup.RemapMentions(mentions, merged.Remap)
	var mentionCount int
	for _, ids := range remapped {
		mentionCount += len(ids)
	}

	if err := e.store.UpsertEntities(ctx, merged.Entities); err != nil {
		return 0, 0, 0, err
	}
	if err := e.store.InsertRelationships(ctx, rels); err != nil {
		return 0, 0, 0, err
	}
	if err := e.store.InsertMentions(ctx, groupID, remapped); err != nil {
		return 0, 0, 0, err
	}

	embIDs := make([]string, 0, len(merged.Embeddings))
	embVecs := make([][]float32, 0, len(merged.Embeddings))
	for _, ent := range merged.Entities {
		if v, ok := merged.Embeddings[ent.ID]; ok {
			embIDs = append(embIDs, ent.ID)
			embVecs = append(embVecs, v)
		}
	}
	if err := e.store.UpsertEntityEmbeddings(ctx, groupID, embIDs, embVecs); err != nil {
		return 0, 0, 0, err
	}
	return len(merged.Entities), len(rels), mentionCount, nil
}

// entityEmbeddings re-embeds stored entities for derivation passes that run
// after dedup. Uses name plus description, same text as at ingest.
func (e *Engine) entityEmbeddings(ctx context.Context, groupID string, entities []store.Entity) (map[string][]float32, error) {
	if len(entities) == 0 {
		return nil, nil
	}
	texts := make([]string, len(entities))
	for i, ent := range entities {
		texts[i] = ent.Name
		if ent.Description != "" {
			texts[i] += ": " + ent.Description
		}
	}
	vectors, err := e.embedBatches(ctx, texts)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]float32, len(entities))
	for i, ent := range entities {
		out[ent.ID] = vectors[i]
	}
	return out, nil
}

const embedBatchSize = 64

// embedBatches embeds texts in bounded batches and enforces the configured
// dimensionality.
func (e *Engine) embedBatches(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := e.embedder.EmbedDocuments(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("%w: got %d vectors for %d texts",
				ErrEmbeddingFailed, len(vectors), end-start)
		}
		for _, v := range vectors {
			if len(v) != e.cfg.EmbeddingDim {
				return nil, fmt.Errorf("%w: got %d, want %d",
					ErrDimensionMismatch, len(v), e.cfg.EmbeddingDim)
			}
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// Query answers a question over an indexed group. responseType optionally
// names the answer format the caller wants, forwarded to synthesis.
func (e *Engine) Query(ctx context.Context, groupID, question, responseType string) (*route.Result, error) {
	return e.handler.Query(ctx, groupID, question, responseType)
}

// Overview answers a corpus-level question from community summaries.
func (e *Engine) Overview(ctx context.Context, groupID, question string) (*route.Result, error) {
	return e.handler.Overview(ctx, groupID, question)
}

// Stats returns stored object counts for a group.
func (e *Engine) Stats(ctx context.Context, groupID string) (*store.GroupStats, error) {
	return e.store.Stats(ctx, groupID)
}
