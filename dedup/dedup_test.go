package dedup

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hippograph/hippograph/store"
)

func TestCanonicalKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Fabrikam Construction Inc.", "fabrikam construction"},
		{"FABRIKAM CONSTRUCTION", "fabrikam construction"},
		{"Fabrikam  Construction,  Ltd", "fabrikam construction"},
		{"Johnson & Johnson", "johnson and johnson"},
		{"Acme Co.", "acme"},
		{"Inc", "inc"}, // a lone suffix is a name, not a suffix
		{"株式会社日立製作所", "株式会社日立製作所"},
		{"  ", ""},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, CanonicalKey(tt.in), "input %q", tt.in)
	}
}

func TestCanonicalKeyIdempotent(t *testing.T) {
	for _, in := range []string{"Fabrikam Construction Inc.", "Johnson & Johnson", "Acme Co."} {
		once := CanonicalKey(in)
		require.Equal(t, once, CanonicalKey(once))
	}
}

func TestEntityIDDeterministic(t *testing.T) {
	a := EntityID("g1", "Fabrikam Construction Inc.")
	b := EntityID("g1", "FABRIKAM CONSTRUCTION")
	require.Equal(t, a, b, "same canonical key, same id")

	c := EntityID("g2", "Fabrikam Construction Inc.")
	require.NotEqual(t, a, c, "different group, different id")
}

func TestMergeByCanonicalKey(t *testing.T) {
	idA := EntityID("g", "Fabrikam Construction Inc.")
	idB := EntityID("g", "Fabrikam Construction")
	require.Equal(t, idA, idB)

	result := Merge([]Candidate{
		{Entity: store.Entity{ID: idA, GroupID: "g", Name: "Fabrikam Construction Inc.",
			Type: "ORGANIZATION", Description: "A construction company.",
			TextUnitIDs: []string{"D1_chunk_0"}}},
		{Entity: store.Entity{ID: idB, GroupID: "g", Name: "Fabrikam Construction",
			Type: "ORGANIZATION", Description: "A construction company based in Seattle.",
			TextUnitIDs: []string{"D2_chunk_3"}, Aliases: []string{"Fabrikam"}}},
	}, 0.95)

	require.Len(t, result.Entities, 1)
	got := result.Entities[0]
	require.Equal(t, "Fabrikam Construction Inc.", got.Name)
	require.Equal(t, "A construction company based in Seattle.", got.Description, "longest description wins")
	require.ElementsMatch(t, []string{"Fabrikam", "Fabrikam Construction"}, got.Aliases)
	require.ElementsMatch(t, []string{"D1_chunk_0", "D2_chunk_3"}, got.TextUnitIDs)
}

func TestMergeByEmbedding(t *testing.T) {
	near := []float32{1, 0, 0.01}
	far := []float32{0, 1, 0}

	result := Merge([]Candidate{
		{Entity: store.Entity{ID: "e1", Name: "Alpha Widget"}, Embedding: []float32{1, 0, 0}},
		{Entity: store.Entity{ID: "e2", Name: "Alpha Widgets"}, Embedding: near},
		{Entity: store.Entity{ID: "e3", Name: "Beta Gadget"}, Embedding: far},
	}, 0.95)

	require.Len(t, result.Entities, 2)
	// One of e1/e2 absorbed the other.
	survivors := map[string]bool{}
	for _, e := range result.Entities {
		survivors[e.ID] = true
	}
	require.True(t, survivors["e3"])
	require.Len(t, result.Remap, 1)
	for old, canonical := range result.Remap {
		require.True(t, survivors[canonical])
		require.False(t, survivors[old])
	}
}

func TestRemapRelationships(t *testing.T) {
	remap := map[string]string{"e2": "e1"}
	rels := RemapRelationships([]store.Relationship{
		{SourceID: "e2", TargetID: "e3", Description: "supplies"},
		{SourceID: "e1", TargetID: "e3", Description: "supplies"}, // duplicate after remap
		{SourceID: "e2", TargetID: "e1", Description: "same as"},  // self loop after remap
	}, remap)

	require.Len(t, rels, 1)
	require.Equal(t, "e1", rels[0].SourceID)
}

func TestRemapMentionsNeverDrops(t *testing.T) {
	remap := map[string]string{"e2": "e1"}
	mentions := RemapMentions(map[string][]string{
		"c1": {"e1", "e2", "e3"},
	}, remap)
	require.Equal(t, []string{"e1", "e3"}, mentions["c1"])
}
