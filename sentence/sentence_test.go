package sentence

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hippograph/hippograph/store"
)

func chunk(id, text string) store.Chunk {
	return store.Chunk{ID: id, GroupID: "g", DocumentID: "D1", Text: text}
}

func TestFromChunksProse(t *testing.T) {
	sentences := FromChunks([]store.Chunk{chunk("D1_chunk_0",
		"The contractor shall complete all foundation work by the end of March. "+
			"Late delivery incurs a penalty of two percent per week of delay.")})

	require.Len(t, sentences, 2)
	require.Equal(t, "D1_chunk_0_sent_0", sentences[0].ID)
	require.Equal(t, "D1_chunk_0_sent_1", sentences[1].ID)
	require.Equal(t, "paragraph", sentences[0].Source)
	require.Equal(t, sentences[1].ID, sentences[0].NextID, "consecutive sentences chain")
	require.Empty(t, sentences[1].NextID)
}

func TestFromChunksFilters(t *testing.T) {
	sentences := FromChunks([]store.Chunk{chunk("c0",
		"Too short. "+
			"TOTAL AMOUNT DUE NOW. "+
			"Date: 2024-01-05. "+
			"This sentence is long enough and plain enough to keep for retrieval purposes.")})

	require.Len(t, sentences, 1)
	require.Contains(t, sentences[0].Text, "long enough")
}

func TestFromChunksTableRows(t *testing.T) {
	c := chunk("c0", "The rate table is shown below for all labor categories involved.")
	c.Metadata.Tables = []store.ChunkTable{{
		Headers: []string{"Role", "Rate", "Unit"},
		Rows: [][]string{
			{"Electrician", "85", "hour"},
			{"", "", ""},
		},
	}}
	sentences := FromChunks([]store.Chunk{c})

	var rows []store.Sentence
	for _, s := range sentences {
		if s.Source == "table_row" {
			rows = append(rows, s)
		}
	}
	require.Len(t, rows, 1)
	require.Equal(t, "Role: Electrician | Rate: 85 | Unit: hour", rows[0].Text)
}

func TestFromChunksFigureCaptions(t *testing.T) {
	c := chunk("c0", "The figure below illustrates the overall site layout in detail.")
	c.Metadata.Figures = []store.ChunkFigure{
		{ID: "fig1", Caption: "Figure 1: Site layout with access roads"},
		{ID: "fig2", Caption: "short"},
	}
	sentences := FromChunks([]store.Chunk{c})

	var captions int
	for _, s := range sentences {
		if s.Source == "figure_caption" {
			captions++
		}
	}
	require.Equal(t, 1, captions)
}

func TestFromChunksDedupAcrossChunks(t *testing.T) {
	text := "This exact boilerplate sentence appears in every single document chunk."
	sentences := FromChunks([]store.Chunk{chunk("c0", text), chunk("c1", text)})
	require.Len(t, sentences, 1, "case-insensitive group-wide dedup keeps one copy")
}

func TestFromChunksCarriesChunkContext(t *testing.T) {
	c := chunk("c0", "The warranty period runs for two years after practical completion.")
	c.Metadata.SectionPath = []string{"Agreement", "Warranty"}
	c.Metadata.Page = 7
	sentences := FromChunks([]store.Chunk{c})
	require.Len(t, sentences, 1)
	require.Equal(t, []string{"Agreement", "Warranty"}, sentences[0].SectionPath)
	require.Equal(t, 7, sentences[0].Page)
	require.Equal(t, "c0", sentences[0].ChunkID)
	require.Equal(t, "D1", sentences[0].DocumentID)
}
