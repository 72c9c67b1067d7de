//go:build cgo

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(filepath.Join(t.TempDir(), "test.db"), 3)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestDocumentRoundtrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	doc := Document{
		ID: "D1", GroupID: "g", Title: "Contract", Source: "/tmp/contract.pdf",
		DocumentDate: "2024-03-01", Metadata: map[string]string{"lang": "en"},
	}
	require.NoError(t, st.InsertDocument(ctx, doc))

	got, err := st.GetDocument(ctx, "g", "D1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "Contract", got.Title)
	require.Equal(t, map[string]string{"lang": "en"}, got.Metadata)

	missing, err := st.GetDocument(ctx, "g", "nope")
	require.NoError(t, err)
	require.Nil(t, missing)

	other, err := st.GetDocument(ctx, "other-group", "D1")
	require.NoError(t, err)
	require.Nil(t, other, "documents are group-scoped")
}

func TestChunkRoundtripWithMetadata(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	chunks := []Chunk{
		{ID: "D1_chunk_0", GroupID: "g", DocumentID: "D1", ChunkIndex: 0,
			Text: "first", Tokens: 10,
			Metadata: ChunkMetadata{SectionPath: []string{"A", "B"}, Page: 2}},
		{ID: "D1_chunk_1", GroupID: "g", DocumentID: "D1", ChunkIndex: 1,
			Text: "second", Tokens: 12},
	}
	require.NoError(t, st.InsertChunks(ctx, chunks))

	got, err := st.GetChunksByDocument(ctx, "g", "D1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, []string{"A", "B"}, got[0].Metadata.SectionPath)
	require.Equal(t, 2, got[0].Metadata.Page)
	require.Equal(t, 1, got[1].ChunkIndex)
}

func TestVectorSearchOrdersBySimilarity(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertChunks(ctx, []Chunk{
		{ID: "c1", GroupID: "g", DocumentID: "D1", ChunkIndex: 0, Text: "a"},
		{ID: "c2", GroupID: "g", DocumentID: "D1", ChunkIndex: 1, Text: "b"},
		{ID: "c3", GroupID: "g", DocumentID: "D1", ChunkIndex: 2, Text: "c"},
	}))
	require.NoError(t, st.UpsertChunkEmbeddings(ctx, "g",
		[]string{"c1", "c2", "c3"},
		[][]float32{{1, 0, 0}, {0.9, 0.1, 0}, {0, 0, 1}}))

	hits, err := st.ChunkVectorSearch(ctx, "g", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, "c1", hits[0].NodeID)
	require.Equal(t, "c2", hits[1].NodeID)
	require.Greater(t, hits[0].Similarity, hits[1].Similarity)
}

func TestVectorSearchGroupIsolation(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertChunkEmbeddings(ctx, "g1",
		[]string{"c1"}, [][]float32{{1, 0, 0}}))

	hits, err := st.ChunkVectorSearch(ctx, "g2", []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestUpsertEmbeddingReplaces(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertChunkEmbeddings(ctx, "g",
		[]string{"c1"}, [][]float32{{1, 0, 0}}))
	require.NoError(t, st.UpsertChunkEmbeddings(ctx, "g",
		[]string{"c1"}, [][]float32{{0, 0, 1}}))

	hits, err := st.ChunkVectorSearch(ctx, "g", []float32{0, 0, 1}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1, "stale vector row replaced, not duplicated")
	require.InDelta(t, 1.0, hits[0].Similarity, 1e-5)
}

func TestFetchChunksPreservesOrder(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertDocument(ctx, Document{ID: "D1", GroupID: "g", Title: "Doc One"}))
	require.NoError(t, st.InsertChunks(ctx, []Chunk{
		{ID: "c1", GroupID: "g", DocumentID: "D1", ChunkIndex: 0, Text: "one"},
		{ID: "c2", GroupID: "g", DocumentID: "D1", ChunkIndex: 1, Text: "two"},
	}))

	got, err := st.FetchChunks(ctx, "g", []string{"c2", "missing", "c1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "c2", got[0].ID, "caller order preserved")
	require.Equal(t, "c1", got[1].ID)
	require.Equal(t, "Doc One", got[0].DocumentTitle)
}

func TestEntityRoundtripAndStats(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertEntities(ctx, []Entity{
		{ID: "e1", GroupID: "g", Name: "Fabrikam", Type: "ORGANIZATION",
			Aliases: []string{"Fab"}, TextUnitIDs: []string{"c1"}},
		{ID: "e2", GroupID: "g", Name: "Contoso", Type: "ORGANIZATION"},
	}))
	require.NoError(t, st.InsertRelationships(ctx, []Relationship{
		{GroupID: "g", SourceID: "e1", TargetID: "e2", Type: "RELATED_TO",
			Description: "partners with", Weight: 1},
	}))
	require.NoError(t, st.InsertMentions(ctx, "g", map[string][]string{
		"c1": {"e1", "e2"},
		"c2": {"e1"},
	}))

	require.NoError(t, st.UpdateEntityStats(ctx, "g"))
	entities, err := st.ListEntities(ctx, "g")
	require.NoError(t, err)
	require.Len(t, entities, 2)
	require.Equal(t, "Contoso", entities[1].Name)
	require.Equal(t, 1, entities[0].Degree)
	require.Equal(t, 2, entities[0].ChunkCount)
	require.Equal(t, []string{"Fab"}, entities[0].Aliases)
}

func TestLoadTriplesSkipsEmptyDescriptions(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertEntities(ctx, []Entity{
		{ID: "e1", GroupID: "g", Name: "Fabrikam", Type: "ORGANIZATION"},
		{ID: "e2", GroupID: "g", Name: "Bridge", Type: "CONCEPT"},
	}))
	require.NoError(t, st.InsertRelationships(ctx, []Relationship{
		{GroupID: "g", SourceID: "e1", TargetID: "e2", Type: "RELATED_TO", Description: "built", Weight: 1},
		{GroupID: "g", SourceID: "e2", TargetID: "e1", Type: "RELATED_TO", Description: "", Weight: 1},
	}))

	triples, err := st.LoadTriples(ctx, "g")
	require.NoError(t, err)
	require.Len(t, triples, 1)
	require.Equal(t, "Fabrikam", triples[0].SubjectName)
	require.Equal(t, "built", triples[0].Predicate)
	require.Equal(t, "Bridge", triples[0].ObjectName)
}

func TestLoadPPRData(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertEntities(ctx, []Entity{
		{ID: "e1", GroupID: "g", Name: "A", Type: "CONCEPT"},
		{ID: "e2", GroupID: "g", Name: "B", Type: "CONCEPT"},
	}))
	require.NoError(t, st.InsertChunks(ctx, []Chunk{
		{ID: "c1", GroupID: "g", DocumentID: "D1", ChunkIndex: 0, Text: "t"},
	}))
	require.NoError(t, st.InsertRelationships(ctx, []Relationship{
		{GroupID: "g", SourceID: "e1", TargetID: "e2", Type: "RELATED_TO", Weight: 2},
	}))
	require.NoError(t, st.InsertMentions(ctx, "g", map[string][]string{"c1": {"e1"}}))
	require.NoError(t, st.ReplaceEntityEdges(ctx, "g", []EntityEdge{
		{GroupID: "g", SourceID: "e1", TargetID: "e2", Type: "SIMILAR_TO", Weight: 0.9},
		{GroupID: "g", SourceID: "e1", TargetID: "e2", Type: "SIMILAR_TO_WEAK", Weight: 0.5},
	}))

	data, err := st.LoadPPRData(ctx, "g", 0.8)
	require.NoError(t, err)
	require.Len(t, data.Entities, 2)
	require.Equal(t, []string{"c1"}, data.ChunkIDs)
	require.Len(t, data.RelationEdges, 1)
	require.Equal(t, 2.0, data.RelationEdges[0].Weight)
	require.Len(t, data.Mentions, 1)
	require.Len(t, data.SynonymEdges, 1, "below-threshold similarity edges excluded")
}

func TestGroupMetaAndDelete(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	meta, err := st.GetGroupMeta(ctx, "g")
	require.NoError(t, err)
	require.Nil(t, meta)

	require.NoError(t, st.UpsertGroupMeta(ctx, GroupMeta{GroupID: "g", DerivedFresh: true}))
	meta, err = st.GetGroupMeta(ctx, "g")
	require.NoError(t, err)
	require.NotNil(t, meta)
	require.True(t, meta.DerivedFresh)

	require.NoError(t, st.InsertChunks(ctx, []Chunk{
		{ID: "c1", GroupID: "g", DocumentID: "D1", ChunkIndex: 0, Text: "t"},
	}))
	require.NoError(t, st.UpsertChunkEmbeddings(ctx, "g", []string{"c1"}, [][]float32{{1, 0, 0}}))

	require.NoError(t, st.DeleteGroup(ctx, "g"))
	meta, err = st.GetGroupMeta(ctx, "g")
	require.NoError(t, err)
	require.Nil(t, meta)
	chunks, err := st.GetChunksByGroup(ctx, "g")
	require.NoError(t, err)
	require.Empty(t, chunks)
	hits, err := st.ChunkVectorSearch(ctx, "g", []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestStatsCounts(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertDocument(ctx, Document{ID: "D1", GroupID: "g", Title: "T"}))
	require.NoError(t, st.InsertChunks(ctx, []Chunk{
		{ID: "c1", GroupID: "g", DocumentID: "D1", ChunkIndex: 0, Text: "t"},
	}))

	stats, err := st.Stats(ctx, "g")
	require.NoError(t, err)
	require.Equal(t, 1, stats.Documents)
	require.Equal(t, 1, stats.Chunks)
	require.Equal(t, 0, stats.Entities)
}

func TestSentenceRoundtrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertSentences(ctx, []Sentence{
		{ID: "c1_sent_0", GroupID: "g", ChunkID: "c1", DocumentID: "D1",
			Source: "paragraph", Index: 0, Text: "First sentence here.",
			SectionPath: []string{"A"}, NextID: "c1_sent_1"},
		{ID: "c1_sent_1", GroupID: "g", ChunkID: "c1", DocumentID: "D1",
			Source: "table_row", Index: 1, Text: "Role: Electrician | Rate: 85"},
	}))

	got, err := st.GetSentencesByID(ctx, "g", []string{"c1_sent_1", "c1_sent_0"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "table_row", got[0].Source)
	require.Equal(t, "c1_sent_1", got[1].NextID)
	require.Equal(t, []string{"A"}, got[1].SectionPath)
}

func TestCommunityRoundtrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.ReplaceCommunities(ctx, "g", []Community{
		{ID: "com_L0_0", Level: 0, EntityIDs: []string{"e1", "e2"},
			Title: "Bridge builders", Summary: "Entities around the bridge.", Rank: 0.5},
	}))

	communities, err := st.ListCommunities(ctx, "g")
	require.NoError(t, err)
	require.Len(t, communities, 1)
	require.Equal(t, []string{"e1", "e2"}, communities[0].EntityIDs)

	// Replace drops the old set.
	require.NoError(t, st.ReplaceCommunities(ctx, "g", nil))
	communities, err = st.ListCommunities(ctx, "g")
	require.NoError(t, err)
	require.Empty(t, communities)
}
