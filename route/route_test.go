//go:build cgo

package route

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/hippograph/hippograph/llm"
	"github.com/hippograph/hippograph/ppr"
	"github.com/hippograph/hippograph/store"
)

// keywordEmbedder maps texts onto fixed axes by keyword so tests control
// similarity exactly.
type keywordEmbedder struct{}

func (keywordEmbedder) vec(text string) []float32 {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "bridge"):
		return []float32{1, 0, 0}
	case strings.Contains(lower, "steel"):
		return []float32{0, 1, 0}
	default:
		return []float32{0, 0, 1}
	}
}

func (e keywordEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vec(t)
	}
	return out, nil
}

func (e keywordEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.vec(text), nil
}

// filterProvider answers the recognition filter with a fixed reply.
type filterProvider struct {
	reply string
}

func (p filterProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if strings.Contains(req.Prompt, "Candidate facts") {
		return &llm.CompletionResponse{Text: p.reply}, nil
	}
	return &llm.CompletionResponse{Text: "A synthesized answer."}, nil
}

// echoSynth returns the evidence chunk ids so tests can assert what was
// retrieved.
type echoSynth struct{}

func (echoSynth) Synthesize(ctx context.Context, in SynthesisInput) (string, llm.Usage, error) {
	var ids []string
	for _, ec := range in.Evidence {
		ids = append(ids, ec.ID)
	}
	return strings.Join(ids, ","), llm.Usage{}, nil
}

// recordingSynth captures the synthesis input for assertions.
type recordingSynth struct {
	last SynthesisInput
}

func (s *recordingSynth) Synthesize(ctx context.Context, in SynthesisInput) (string, llm.Usage, error) {
	s.last = in
	return "recorded", llm.Usage{}, nil
}

func testOptions() Options {
	return Options{
		CompletionModel:   "test-model",
		TripleTopK:        5,
		DPRTopK:           5,
		PPRPassageTopK:    5,
		SentenceTopK:      5,
		Damping:           0.5,
		SynonymThreshold:  0.8,
		PassageNodeWeight: 0.05,
	}
}

func seedGroup(t *testing.T, st *store.Store, groupID string) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, st.InsertDocument(ctx, store.Document{ID: "D1", GroupID: groupID, Title: "Bridge Contract"}))
	require.NoError(t, st.InsertDocument(ctx, store.Document{ID: "D2", GroupID: groupID, Title: "Steel Supply"}))

	chunks := []store.Chunk{
		{ID: "D1_chunk_0", GroupID: groupID, DocumentID: "D1", ChunkIndex: 0,
			Text: "Fabrikam built the bridge over the river."},
		{ID: "D2_chunk_0", GroupID: groupID, DocumentID: "D2", ChunkIndex: 0,
			Text: "Contoso supplied the steel for the project."},
	}
	require.NoError(t, st.InsertChunks(ctx, chunks))
	emb := keywordEmbedder{}
	vecs, _ := emb.EmbedDocuments(ctx, []string{chunks[0].Text, chunks[1].Text})
	require.NoError(t, st.UpsertChunkEmbeddings(ctx, groupID,
		[]string{"D1_chunk_0", "D2_chunk_0"}, vecs))

	entities := []store.Entity{
		{ID: "e_fab", GroupID: groupID, Name: "Fabrikam", Type: "ORGANIZATION"},
		{ID: "e_bridge", GroupID: groupID, Name: "the bridge", Type: "CONCEPT"},
		{ID: "e_con", GroupID: groupID, Name: "Contoso", Type: "ORGANIZATION"},
		{ID: "e_steel", GroupID: groupID, Name: "the steel", Type: "CONCEPT"},
	}
	require.NoError(t, st.UpsertEntities(ctx, entities))
	require.NoError(t, st.InsertRelationships(ctx, []store.Relationship{
		{GroupID: groupID, SourceID: "e_fab", TargetID: "e_bridge", Type: "RELATED_TO",
			Description: "built", Weight: 1},
		{GroupID: groupID, SourceID: "e_con", TargetID: "e_steel", Type: "RELATED_TO",
			Description: "supplied", Weight: 1},
	}))
	require.NoError(t, st.InsertMentions(ctx, groupID, map[string][]string{
		"D1_chunk_0": {"e_fab", "e_bridge"},
		"D2_chunk_0": {"e_con", "e_steel"},
	}))
	require.NoError(t, st.UpsertGroupMeta(ctx, store.GroupMeta{GroupID: groupID, DerivedFresh: true}))
}

func newTestHandler(t *testing.T, reply string) (*Handler, *store.Store) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"), 3)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	h := NewHandler(st, filterProvider{reply: reply}, keywordEmbedder{}, echoSynth{}, testOptions(), nil)
	return h, st
}

func TestQueryAnswersFromGraphWalk(t *testing.T) {
	h, st := newTestHandler(t, "1")
	seedGroup(t, st, "g-test")

	result, err := h.Query(context.Background(), "g-test", "Who built the bridge?", "")
	require.NoError(t, err)
	require.False(t, result.Negative)
	require.False(t, result.UsedFallback)
	require.Equal(t, RouteName, result.RouteUsed)
	require.NotEmpty(t, result.QueryID)

	// The walk ranks the bridge chunk first.
	require.True(t, strings.HasPrefix(result.Answer, "D1_chunk_0"), "answer: %s", result.Answer)
	require.NotEmpty(t, result.Citations)
	require.Equal(t, "Bridge Contract", result.Citations[0].DocumentTitle)

	var tripleSteps int
	for _, step := range result.EvidencePath {
		if step.Kind == "triple" {
			tripleSteps++
			require.Contains(t, step.Text, "bridge")
		}
	}
	require.Equal(t, 1, tripleSteps, "filter kept one fact")
}

func TestQueryUnindexedGroup(t *testing.T) {
	h, _ := newTestHandler(t, "1")
	result, err := h.Query(context.Background(), "never-indexed", "Anything?", "")
	require.NoError(t, err)
	require.True(t, result.Negative)
	require.Equal(t, ReasonNoDocuments, result.Reason)
}

func TestQueryEmptyGroupReturnsNoSeeds(t *testing.T) {
	h, st := newTestHandler(t, "1")
	require.NoError(t, st.UpsertGroupMeta(context.Background(),
		store.GroupMeta{GroupID: "g-empty", DerivedFresh: true}))

	result, err := h.Query(context.Background(), "g-empty", "Who built the bridge?", "")
	require.NoError(t, err)
	require.True(t, result.Negative)
	require.Equal(t, ReasonNoSeeds, result.Reason)
}

func TestQueryFilterRejectsAllFacts(t *testing.T) {
	h, st := newTestHandler(t, "NONE")
	seedGroup(t, st, "g-none")

	result, err := h.Query(context.Background(), "g-none", "Who built the bridge?", "")
	require.NoError(t, err)
	// DPR passage seeds still drive the walk; the answer is not negative.
	require.False(t, result.Negative)
	for _, step := range result.EvidencePath {
		require.NotEqual(t, "triple", step.Kind)
	}
}

func TestQueryCachesGroupIndex(t *testing.T) {
	h, st := newTestHandler(t, "1")
	seedGroup(t, st, "g-cache")
	ctx := context.Background()

	_, err := h.Query(ctx, "g-cache", "Who built the bridge?", "")
	require.NoError(t, err)
	h.mu.RLock()
	_, cached := h.cache["g-cache"]
	h.mu.RUnlock()
	require.True(t, cached)

	h.Invalidate("g-cache")
	h.mu.RLock()
	_, cached = h.cache["g-cache"]
	h.mu.RUnlock()
	require.False(t, cached)
}

func TestRankPassagesFallsBackToDPR(t *testing.T) {
	h, _ := newTestHandler(t, "1")
	idx := &groupIndex{graph: ppr.NewGraph()}
	result := &Result{}

	ids, fallback := h.rankPassages(idx,
		map[string]float64{"absent": 1},
		[]store.SearchHit{{NodeID: "c1", Similarity: 0.9}, {NodeID: "c2", Similarity: 0.5}},
		result)
	require.True(t, fallback)
	require.Equal(t, []string{"c1", "c2"}, ids)
	require.Equal(t, "dpr", result.EvidencePath[0].Source)
}

func TestBuildGraphSkipsSectionsWhenDisabled(t *testing.T) {
	data := &store.PPRData{
		Entities:      []store.PPRNode{{ID: "e1", Name: "E"}},
		ChunkIDs:      []string{"c1"},
		SectionIDs:    []string{"s1"},
		Mentions:      []store.PPREdge{{SourceID: "c1", TargetID: "e1", Weight: 1}},
		ChunkSections: []store.PPREdge{{SourceID: "c1", TargetID: "s1", Weight: 1}},
	}
	g := buildGraph(data, 0.05, 0.1, false)
	require.False(t, g.Has("s1"))
	require.True(t, g.Has("c1"))

	g = buildGraph(data, 0.05, 0.1, true)
	require.True(t, g.Has("s1"))
}

func TestMentionEdgesCarryPassageWeight(t *testing.T) {
	// e1 links to another entity with a full-weight relation and to a chunk
	// through a mention. The chunk's share of e1's mass must be the passage
	// node weight, not the mention row's stored weight.
	data := &store.PPRData{
		Entities:      []store.PPRNode{{ID: "e1", Name: "E1"}, {ID: "e2", Name: "E2"}},
		ChunkIDs:      []string{"c1"},
		RelationEdges: []store.PPREdge{{SourceID: "e1", TargetID: "e2", Weight: 1}},
		Mentions:      []store.PPREdge{{SourceID: "c1", TargetID: "e1", Weight: 1}},
	}
	g := buildGraph(data, 0.05, 0.1, false)

	scores := g.Run(map[string]float64{"e1": 1}, ppr.DefaultParams())
	byID := make(map[string]float64, len(scores))
	for _, s := range scores {
		byID[s.ID] = s.Value
	}
	require.Greater(t, byID["e2"], 0.0)
	require.Greater(t, byID["c1"], 0.0)
	require.InDelta(t, 0.05, byID["c1"]/byID["e2"], 1e-6)
}

func TestQuerySurfacesWalkEntities(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"), 3)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	synth := &recordingSynth{}
	h := NewHandler(st, filterProvider{reply: "1"}, keywordEmbedder{}, synth, testOptions(), nil)
	seedGroup(t, st, "g-nodes")

	result, err := h.Query(context.Background(), "g-nodes", "Who built the bridge?", "short phrase")
	require.NoError(t, err)
	require.False(t, result.Negative)
	require.Equal(t, "short phrase", result.ResponseType)

	require.NotEmpty(t, result.EvidenceNodes)
	var names []string
	for i, n := range result.EvidenceNodes {
		names = append(names, n.Name)
		if i > 0 {
			require.GreaterOrEqual(t, result.EvidenceNodes[i-1].Score, n.Score, "walk order")
		}
	}
	require.Contains(t, names, "Fabrikam")
	require.Contains(t, names, "the bridge")

	var entitySteps int
	for _, step := range result.EvidencePath {
		if step.Kind == "entity" {
			entitySteps++
			require.NotEmpty(t, step.Text)
		}
	}
	require.Equal(t, len(result.EvidenceNodes), entitySteps)

	require.Equal(t, 1, result.Meta.SurvivingTriples)
	require.Equal(t, 2, result.Meta.EntitySeeds)
	require.GreaterOrEqual(t, result.Meta.PassageSeeds, 1)
	require.GreaterOrEqual(t, result.Meta.PPRPassages, 1)
	require.Equal(t, len(result.EvidenceNodes), result.Meta.PPREntities)
	require.InDelta(t, 0.5, result.Meta.Damping, 1e-9)
	require.InDelta(t, 0.05, result.Meta.PassageNodeWeight, 1e-9)

	// The synthesizer sees the same entities plus the surviving facts.
	require.Equal(t, result.EvidenceNodes, synth.last.EvidenceNodes)
	require.Equal(t, "short phrase", synth.last.ResponseType)
	require.Contains(t, synth.last.StructuralHeader, "- Fabrikam → built → the bridge")
}

func TestQueryFiltersSentencesBySimilarity(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"), 3)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	synth := &recordingSynth{}
	opts := testOptions()
	opts.EnableSentences = true
	opts.SentenceSim = 0.2
	h := NewHandler(st, filterProvider{reply: "1"}, keywordEmbedder{}, synth, opts, nil)
	seedGroup(t, st, "g-sent")

	ctx := context.Background()
	sentences := []store.Sentence{
		{ID: "s1", GroupID: "g-sent", ChunkID: "D1_chunk_0", DocumentID: "D1",
			Source: "paragraph", Index: 0, Text: "Fabrikam built the bridge quickly."},
		{ID: "s2", GroupID: "g-sent", ChunkID: "D2_chunk_0", DocumentID: "D2",
			Source: "paragraph", Index: 0, Text: "Contoso supplied extra steel."},
	}
	require.NoError(t, st.InsertSentences(ctx, sentences))
	emb := keywordEmbedder{}
	vecs, _ := emb.EmbedDocuments(ctx, []string{sentences[0].Text, sentences[1].Text})
	require.NoError(t, st.UpsertSentenceEmbeddings(ctx, "g-sent", []string{"s1", "s2"}, vecs))

	result, err := h.Query(ctx, "g-sent", "Who built the bridge?", "")
	require.NoError(t, err)
	require.Equal(t, 1, result.Meta.SentenceEvidence, "orthogonal sentence filtered out")
	require.Len(t, synth.last.Sentences, 1)
	require.Equal(t, "s1", synth.last.Sentences[0].ID)
}

// failEmbedder rejects batch embedding so triple loading cannot succeed.
type failEmbedder struct{ keywordEmbedder }

func (failEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, context.DeadlineExceeded
}

func TestQueryWrapsTripleLoadFailure(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"), 3)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	h := NewHandler(st, filterProvider{reply: "1"}, failEmbedder{}, echoSynth{}, testOptions(), nil)
	seedGroup(t, st, "g-fail")

	_, err = h.Query(context.Background(), "g-fail", "Who built the bridge?", "")
	require.ErrorIs(t, err, ErrTripleLoadFailed)
}

func TestSnippetKeepsRunesWhole(t *testing.T) {
	require.Equal(t, "short", snippet("short", 10))

	long := strings.Repeat("é", 200)
	cut := snippet(long, 199)
	require.True(t, utf8.ValidString(cut), "no split runes")
	require.True(t, strings.HasSuffix(cut, "…"))

	ascii := strings.Repeat("a", 300)
	require.Equal(t, strings.Repeat("a", 200)+"…", snippet(ascii, 200))
}
