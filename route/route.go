package route

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/hippograph/hippograph/llm"
	"github.com/hippograph/hippograph/ppr"
	"github.com/hippograph/hippograph/store"
	"github.com/hippograph/hippograph/triplestore"
)

// ErrTripleLoadFailed is returned when the triple store cannot be loaded
// for a group.
var ErrTripleLoadFailed = errors.New("route: triple store load failed")

// maxEvidenceNodes caps how many walk-ranked entities are surfaced to the
// synthesizer and the caller.
const maxEvidenceNodes = 20

// Options carries the retrieval knobs.
type Options struct {
	CompletionModel   string
	TripleTopK        int
	DPRTopK           int
	PPRPassageTopK    int
	SentenceTopK      int
	SentenceLimit     int
	Damping           float64
	SynonymThreshold  float64
	PassageNodeWeight float64
	StructuralWeight  float64
	CommunityWeight   float64
	SectionEdgeWeight float64
	SectionPPRSim     float64
	SentenceSim       float64
	EnableSections    bool
	EnableCommunities bool
	EnableSentences   bool
}

// groupIndex is the per-group in-memory state: the triple embedding matrix,
// the walk graph and the entity id to name lookup. Loaded lazily and reused
// across queries.
type groupIndex struct {
	triples *triplestore.Store
	graph   *ppr.Graph
	names   map[string]string
}

// Handler answers queries for any group, caching loaded group indexes.
type Handler struct {
	store    *store.Store
	provider llm.Provider
	embedder llm.Embedder
	synth    Synthesizer
	opts     Options
	logger   *slog.Logger

	mu    sync.RWMutex
	cache map[string]*groupIndex
	sf    singleflight.Group
}

// NewHandler wires a query handler. A nil synthesizer gets the default
// model-backed one.
func NewHandler(st *store.Store, provider llm.Provider, embedder llm.Embedder, synth Synthesizer, opts Options, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if synth == nil {
		synth = NewLLMSynthesizer(provider, opts.CompletionModel)
	}
	if opts.SentenceLimit <= 0 {
		opts.SentenceLimit = 8
	}
	return &Handler{
		store:    st,
		provider: provider,
		embedder: embedder,
		synth:    synth,
		opts:     opts,
		logger:   logger,
		cache:    make(map[string]*groupIndex),
	}
}

// Invalidate drops a group's cached index, forcing a reload on the next
// query. Called after reindexing.
func (h *Handler) Invalidate(groupID string) {
	h.mu.Lock()
	delete(h.cache, groupID)
	h.mu.Unlock()
	h.sf.Forget(groupID)
}

// loadGroup returns the group's in-memory index, loading it once per group
// even under concurrent queries. The triple embedding and graph loads run
// in parallel.
func (h *Handler) loadGroup(ctx context.Context, groupID string) (*groupIndex, error) {
	h.mu.RLock()
	idx, ok := h.cache[groupID]
	h.mu.RUnlock()
	if ok {
		return idx, nil
	}

	v, err, _ := h.sf.Do(groupID, func() (interface{}, error) {
		start := time.Now()
		var triples *triplestore.Store
		var graph *ppr.Graph
		var names map[string]string

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			triples, err = triplestore.Load(gctx, h.store, h.embedder, groupID)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrTripleLoadFailed, err)
			}
			return nil
		})
		g.Go(func() error {
			data, err := h.store.LoadPPRData(gctx, groupID, h.opts.SynonymThreshold)
			if err != nil {
				return err
			}
			graph = buildGraph(data, h.opts.PassageNodeWeight, h.opts.SectionEdgeWeight, h.opts.EnableSections)
			names = make(map[string]string, len(data.Entities))
			for _, e := range data.Entities {
				names[e.ID] = e.Name
			}
			return nil
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}

		idx := &groupIndex{triples: triples, graph: graph, names: names}
		h.mu.Lock()
		h.cache[groupID] = idx
		h.mu.Unlock()

		h.logger.Info("group index loaded", "group", groupID,
			"triples", triples.Len(), "nodes", graph.Len(),
			"elapsed", time.Since(start).Round(time.Millisecond))
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*groupIndex), nil
}

// Query runs the full retrieval pipeline and synthesises an answer.
// responseType is an optional free-form instruction for the answer format
// ("short phrase", "bullet list") forwarded to the synthesizer.
func (h *Handler) Query(ctx context.Context, groupID, question, responseType string) (*Result, error) {
	start := time.Now()
	result := &Result{
		QueryID:      uuid.NewString(),
		GroupID:      groupID,
		Question:     question,
		RouteUsed:    RouteName,
		ResponseType: responseType,
		Meta: Meta{
			Damping:           h.opts.Damping,
			PassageNodeWeight: h.opts.PassageNodeWeight,
		},
	}

	meta, err := h.store.GetGroupMeta(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		result.Negative = true
		result.Reason = ReasonNoDocuments
		result.Answer = "No documents have been indexed for this group."
		result.Timings.Total = time.Since(start)
		return result, nil
	}

	loadStart := time.Now()
	idx, err := h.loadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	result.Timings.Load = time.Since(loadStart)

	embedStart := time.Now()
	queryVec, err := h.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, err
	}
	result.Timings.Embed = time.Since(embedStart)

	// First-stage retrieval fans out: triple linking, dense passage
	// retrieval and sentence retrieval are independent.
	retrStart := time.Now()
	var tripleHits []triplestore.Hit
	var dprHits, sentHits []store.SearchHit
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tripleHits = idx.triples.Search(queryVec, h.opts.TripleTopK)
		return nil
	})
	g.Go(func() error {
		var err error
		dprHits, err = h.store.ChunkVectorSearch(gctx, groupID, queryVec, h.opts.DPRTopK)
		return err
	})
	if h.opts.EnableSentences {
		g.Go(func() error {
			var err error
			sentHits, err = h.store.SentenceVectorSearch(gctx, groupID, queryVec, h.opts.SentenceTopK)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	result.Timings.Retrieval = time.Since(retrStart)

	filterStart := time.Now()
	filtered, usage := h.filterTriples(ctx, question, tripleHits)
	result.Usage.Add(usage)
	result.Timings.Filter = time.Since(filterStart)
	result.Meta.SurvivingTriples = len(filtered)

	for _, hit := range filtered {
		result.EvidencePath = append(result.EvidencePath, EvidenceStep{
			Kind: "triple", Text: hit.Triple.Text(), Score: hit.Similarity,
		})
	}

	seeds, entitySeeds, passageSeeds, err := h.buildSeeds(ctx, groupID, queryVec, filtered, dprHits)
	if err != nil {
		return nil, err
	}
	result.Meta.EntitySeeds = entitySeeds
	result.Meta.PassageSeeds = passageSeeds

	walkStart := time.Now()
	chunkIDs, usedFallback := h.rankPassages(idx, seeds, dprHits, result)
	result.Timings.Walk = time.Since(walkStart)
	result.UsedFallback = usedFallback

	if len(chunkIDs) == 0 {
		result.Negative = true
		if len(seeds) == 0 {
			result.Reason = ReasonNoSeeds
		} else {
			result.Reason = ReasonNoChunks
		}
		result.Answer = "No relevant passages were found for this question."
		result.Timings.Total = time.Since(start)
		return result, nil
	}

	evidence, err := h.store.FetchChunks(ctx, groupID, chunkIDs)
	if err != nil {
		return nil, err
	}

	var sentIDs []string
	for _, hit := range sentHits {
		if hit.Similarity < h.opts.SentenceSim {
			continue
		}
		sentIDs = append(sentIDs, hit.NodeID)
		if len(sentIDs) == h.opts.SentenceLimit {
			break
		}
	}
	sentences, err := h.store.GetSentencesByID(ctx, groupID, sentIDs)
	if err != nil {
		return nil, err
	}
	result.Meta.SentenceEvidence = len(sentences)

	for _, ec := range evidence {
		result.Citations = append(result.Citations, Citation{
			ChunkID:       ec.ID,
			DocumentID:    ec.DocumentID,
			DocumentTitle: ec.DocumentTitle,
			SectionTitle:  ec.SectionTitle,
			Page:          ec.Page,
			Snippet:       snippet(ec.Text, 200),
		})
	}

	synthStart := time.Now()
	answer, usage, err := h.synth.Synthesize(ctx, SynthesisInput{
		Question:         question,
		ResponseType:     responseType,
		Evidence:         evidence,
		Sentences:        sentences,
		EvidenceNodes:    result.EvidenceNodes,
		StructuralHeader: structuralHeader(filtered),
	})
	if err != nil {
		return nil, err
	}
	result.Usage.Add(usage)
	result.Timings.Synthesis = time.Since(synthStart)

	result.Answer = answer
	result.Timings.Total = time.Since(start)
	h.logger.Info("query answered", "group", groupID, "query", result.QueryID,
		"chunks", len(evidence), "fallback", usedFallback,
		"elapsed", result.Timings.Total.Round(time.Millisecond))
	return result, nil
}

// rankPassages runs the walk over the seeds and returns the top passage
// ids. The top-ranked entities are recorded on the result in walk order.
// When no seed resolves to a graph node the DPR order stands in, so dense
// retrieval alone still answers.
func (h *Handler) rankPassages(idx *groupIndex, seeds map[string]float64, dprHits []store.SearchHit, result *Result) ([]string, bool) {
	params := ppr.DefaultParams()
	params.Damping = h.opts.Damping

	scores := idx.graph.Run(seeds, params)
	for _, s := range scores {
		if s.Kind != ppr.KindEntity || s.Value <= 0 {
			continue
		}
		name := idx.names[s.ID]
		if name == "" {
			name = s.ID
		}
		result.EvidenceNodes = append(result.EvidenceNodes, EntityScore{Name: name, Score: s.Value})
		result.EvidencePath = append(result.EvidencePath, EvidenceStep{
			Kind: "entity", ID: s.ID, Text: name, Score: s.Value,
		})
		if len(result.EvidenceNodes) == maxEvidenceNodes {
			break
		}
	}
	result.Meta.PPREntities = len(result.EvidenceNodes)

	if len(scores) > 0 {
		passages := ppr.TopPassages(scores, h.opts.PPRPassageTopK)
		if len(passages) > 0 {
			ids := make([]string, len(passages))
			for i, p := range passages {
				ids[i] = p.ID
				result.EvidencePath = append(result.EvidencePath, EvidenceStep{
					Kind: "passage", ID: p.ID, Score: p.Value,
				})
			}
			result.Meta.PPRPassages = len(ids)
			return ids, false
		}
	}

	// DPR fallback.
	var ids []string
	for _, hit := range dprHits {
		ids = append(ids, hit.NodeID)
		result.EvidencePath = append(result.EvidencePath, EvidenceStep{
			Kind: "passage", ID: hit.NodeID, Score: hit.Similarity, Source: "dpr",
		})
		if len(ids) == h.opts.PPRPassageTopK {
			break
		}
	}
	return ids, true
}

// structuralHeader renders the surviving triples as one bullet per fact,
// handed to the synthesizer ahead of the passage evidence.
func structuralHeader(triples []triplestore.Hit) string {
	if len(triples) == 0 {
		return ""
	}
	var b strings.Builder
	for _, hit := range triples {
		fmt.Fprintf(&b, "- %s → %s → %s\n",
			hit.Triple.SubjectName, hit.Triple.Predicate, hit.Triple.ObjectName)
	}
	return b.String()
}

// snippet truncates on a rune boundary so multi-byte text never splits.
func snippet(text string, n int) string {
	if len(text) <= n {
		return text
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "…"
}
