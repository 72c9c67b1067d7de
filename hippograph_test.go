//go:build cgo

package hippograph

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hippograph/hippograph/llm"
	"github.com/hippograph/hippograph/route"
	"github.com/hippograph/hippograph/store"
)

// hashEmbedder produces deterministic unit vectors from token hashes, so
// similar texts get similar vectors without a model.
type hashEmbedder struct{ dim int }

func (e hashEmbedder) embed(text string) []float32 {
	v := make([]float32, e.dim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		sum := sha256.Sum256([]byte(word))
		idx := int(binary.LittleEndian.Uint32(sum[:4])) % e.dim
		if idx < 0 {
			idx += e.dim
		}
		v[idx] += 1
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm > 0 {
		inv := 1 / float32(math.Sqrt(norm))
		for i := range v {
			v[i] *= inv
		}
	}
	return v
}

func (e hashEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e hashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

// testProvider answers extraction, filtering and summary prompts with
// plausible fixed output.
type testProvider struct{}

func (testProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	switch {
	case strings.Contains(req.Prompt, "You extract entities"):
		resp := `{"entities": [], "relations": []}`
		if strings.Contains(req.Prompt, "Fabrikam") {
			resp = `{"entities": [
				{"name": "Fabrikam Construction Inc.", "type": "ORGANIZATION", "aliases": ["Fabrikam"]},
				{"name": "Riverside Bridge", "type": "CONCEPT"}],
				"relations": [
				{"source": "Fabrikam Construction Inc.", "target": "Riverside Bridge",
				 "type": "RELATED_TO", "description": "was contracted to build"}]}`
		} else if strings.Contains(req.Prompt, "Contoso") {
			resp = `{"entities": [
				{"name": "Contoso Steel Ltd", "type": "ORGANIZATION"},
				{"name": "Riverside Bridge", "type": "CONCEPT"}],
				"relations": [
				{"source": "Contoso Steel Ltd", "target": "Riverside Bridge",
				 "type": "RELATED_TO", "description": "supplied steel beams for"}]}`
		}
		return &llm.CompletionResponse{Text: resp, Usage: llm.Usage{TotalTokens: 10}}, nil
	case strings.Contains(req.Prompt, "Candidate facts"):
		return &llm.CompletionResponse{Text: "1, 2"}, nil
	case strings.Contains(req.Prompt, "title and summary"):
		return &llm.CompletionResponse{Text: `{"title": "Riverside Bridge project",
			"summary": "A group of related entities involved in the Riverside Bridge project."}`}, nil
	default:
		return &llm.CompletionResponse{Text: "The answer, per the evidence."}, nil
	}
}

func testConfig(t *testing.T) Config {
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "test.db")
	cfg.EmbeddingDim = 64
	cfg.Completion = LLMConfig{Provider: "custom", Model: "test-model"}
	cfg.Embedding = LLMConfig{Provider: "custom", Model: "test-embed"}
	cfg.IncludeSectionGraph = true
	cfg.StructuralSeedsEnabled = true
	cfg.CommunitySeedsEnabled = true
	cfg.SentenceSearchEnabled = true
	cfg.MinEntities = 2
	return cfg
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := New(testConfig(t),
		WithProvider(testProvider{}),
		WithEmbedder(hashEmbedder{dim: 64}))
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	return eng
}

const bridgeDoc = `# Riverside Bridge Contract

## Parties

Fabrikam Construction Inc. was contracted by the city to build the Riverside Bridge.
The agreement names Fabrikam as the sole general contractor for the project.

## Schedule

All foundation work must be complete before the end of March under the agreed schedule.
The Riverside Bridge opens to traffic no later than December of the following year.`

const steelDoc = `# Steel Supply Agreement

## Scope

Contoso Steel Ltd supplied steel beams for the Riverside Bridge superstructure.
Deliveries arrive monthly at the staging yard beside the river crossing.`

func indexTestDocs(t *testing.T, eng *Engine, groupID string) *IndexStats {
	t.Helper()
	stats, err := eng.Index(context.Background(), groupID, []DocumentInput{
		{ID: "D1", Title: "Bridge Contract", Text: bridgeDoc},
		{ID: "D2", Title: "Steel Supply", Text: steelDoc},
	}, false)
	require.NoError(t, err)
	return stats
}

func TestIndexBuildsAllLayers(t *testing.T) {
	eng := newTestEngine(t)
	stats := indexTestDocs(t, eng, "g-test")

	require.Equal(t, 2, stats.Documents)
	require.Greater(t, stats.Chunks, 0)
	require.Greater(t, stats.Entities, 0)
	require.Greater(t, stats.Relationships, 0)
	require.Greater(t, stats.Sentences, 0)
	require.Greater(t, stats.Sections, 0)

	counts, err := eng.Stats(context.Background(), "g-test")
	require.NoError(t, err)
	require.Equal(t, stats.Chunks, counts.Chunks)
	require.Equal(t, stats.Entities, counts.Entities)

	// "Riverside Bridge" appears in both documents and deduplicates to one
	// entity.
	entities, err := eng.Store().ListEntities(context.Background(), "g-test")
	require.NoError(t, err)
	var bridges int
	for _, e := range entities {
		if strings.Contains(e.Name, "Riverside Bridge") {
			bridges++
		}
	}
	require.Equal(t, 1, bridges)
}

func TestQueryEndToEnd(t *testing.T) {
	eng := newTestEngine(t)
	indexTestDocs(t, eng, "g-test")

	result, err := eng.Query(context.Background(), "g-test", "Who built the Riverside Bridge?", "")
	require.NoError(t, err)
	require.False(t, result.Negative)
	require.Equal(t, route.RouteName, result.RouteUsed)
	require.NotEmpty(t, result.Answer)
	require.NotEmpty(t, result.Citations)
	require.NotEmpty(t, result.EvidencePath)
	require.NotEmpty(t, result.EvidenceNodes)
	require.Greater(t, result.Meta.EntitySeeds, 0)
}

func TestQueryUnindexedGroup(t *testing.T) {
	eng := newTestEngine(t)
	result, err := eng.Query(context.Background(), "nothing-here", "Any question", "")
	require.NoError(t, err)
	require.True(t, result.Negative)
	require.Equal(t, route.ReasonNoDocuments, result.Reason)
}

func TestIndexEmptyDocument(t *testing.T) {
	eng := newTestEngine(t)
	_, err := eng.Index(context.Background(), "g-test", []DocumentInput{
		{ID: "empty", Text: "   \n  "},
	}, false)
	require.ErrorIs(t, err, ErrEmptyDocument)
}

func TestIndexNoDocuments(t *testing.T) {
	eng := newTestEngine(t)
	_, err := eng.Index(context.Background(), "g-test", nil, false)
	require.ErrorIs(t, err, ErrNoDocuments)
}

func TestConcurrentIndexSameGroup(t *testing.T) {
	eng := newTestEngine(t)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.Index(context.Background(), "g-race", []DocumentInput{
				{ID: "D1", Text: bridgeDoc},
			}, false)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var busy int
	for err := range errs {
		if errors.Is(err, ErrGroupIndexing) {
			busy++
		} else {
			require.NoError(t, err)
		}
	}
	require.LessOrEqual(t, busy, 1, "at most one run rejected")
}

func TestReindexReplacesGroup(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	indexTestDocs(t, eng, "g-re")

	stats, err := eng.Index(ctx, "g-re", []DocumentInput{
		{ID: "D9", Title: "Only Doc", Text: steelDoc},
	}, true)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Documents)

	docs, err := eng.Store().ListDocuments(ctx, "g-re")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "D9", docs[0].ID)
}

func TestGroupIsolation(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	indexTestDocs(t, eng, "g-a")

	result, err := eng.Query(ctx, "g-b", "Who built the Riverside Bridge?", "")
	require.NoError(t, err)
	require.True(t, result.Negative, "other groups see nothing")
}

func TestDeterministicChunkAndEntityIDs(t *testing.T) {
	eng1 := newTestEngine(t)
	eng2 := newTestEngine(t)
	ctx := context.Background()

	indexTestDocs(t, eng1, "g")
	indexTestDocs(t, eng2, "g")

	c1, err := eng1.Store().GetChunksByGroup(ctx, "g")
	require.NoError(t, err)
	c2, err := eng2.Store().GetChunksByGroup(ctx, "g")
	require.NoError(t, err)
	require.Equal(t, chunkIDs(c1), chunkIDs(c2))

	e1, err := eng1.Store().ListEntities(ctx, "g")
	require.NoError(t, err)
	e2, err := eng2.Store().ListEntities(ctx, "g")
	require.NoError(t, err)
	require.Equal(t, entityIDs(e1), entityIDs(e2))
}

func chunkIDs(chunks []store.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.ID
	}
	return out
}

func entityIDs(entities []store.Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.ID
	}
	return out
}

func TestIndexRecordsGroupMeta(t *testing.T) {
	eng := newTestEngine(t)
	indexTestDocs(t, eng, "g-meta")

	meta, err := eng.Store().GetGroupMeta(context.Background(), "g-meta")
	require.NoError(t, err)
	require.NotNil(t, meta)
	require.True(t, meta.DerivedFresh)
	require.NotEmpty(t, meta.IndexedAt)

	var stats IndexStats
	require.NotEmpty(t, meta.Stats)
	require.NoError(t, json.Unmarshal(meta.Stats, &stats))
	require.Equal(t, "g-meta", stats.GroupID)
	require.Greater(t, stats.Elapsed, time.Duration(0))
}
