// Package sentence builds sub-chunk sentence nodes for fine-grained
// retrieval: prose sentences, table row linearisations and figure captions.
package sentence

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/hippograph/hippograph/chunker"
	"github.com/hippograph/hippograph/store"
)

const (
	minProseLen   = 30
	minProseWords = 5
	minRowLen     = 15
	minRowWords   = 3
	minCaptionLen = 15
)

// FromChunks extracts sentence nodes from a group's chunks. Duplicate text
// (case-insensitive, group-wide) is kept once; ids are
// "<chunk_id>_sent_<i>"; consecutive sentences within a chunk are chained
// via NextID.
func FromChunks(chunks []store.Chunk) []store.Sentence {
	seen := make(map[string]bool)
	var out []store.Sentence

	for _, chunk := range chunks {
		var inChunk []store.Sentence
		idx := 0

		add := func(text, source string) {
			text = strings.TrimSpace(text)
			norm := strings.ToLower(text)
			if text == "" || seen[norm] {
				return
			}
			seen[norm] = true
			inChunk = append(inChunk, store.Sentence{
				ID:          fmt.Sprintf("%s_sent_%d", chunk.ID, idx),
				GroupID:     chunk.GroupID,
				ChunkID:     chunk.ID,
				DocumentID:  chunk.DocumentID,
				Source:      source,
				Index:       idx,
				Text:        text,
				SectionPath: chunk.Metadata.SectionPath,
				Page:        chunk.Metadata.Page,
			})
			idx++
		}

		for _, sent := range chunker.SplitSentences(chunk.Text) {
			if keepProse(sent) {
				add(sent, "paragraph")
			}
		}
		for _, table := range chunk.Metadata.Tables {
			for _, row := range table.Rows {
				if text := linearizeRow(table.Headers, row); keepRow(text) {
					add(text, "table_row")
				}
			}
		}
		for _, fig := range chunk.Metadata.Figures {
			if len(fig.Caption) >= minCaptionLen {
				add(fig.Caption, "figure_caption")
			}
		}

		// Chain consecutive sentences so neighbours can be walked at query
		// time.
		for i := 0; i+1 < len(inChunk); i++ {
			inChunk[i].NextID = inChunk[i+1].ID
		}
		out = append(out, inChunk...)
	}
	return out
}

// keepProse filters out fragments that embed poorly: short strings,
// key-value labels, shouting headers, and numeric runs.
func keepProse(s string) bool {
	if len(s) < minProseLen {
		return false
	}
	words := strings.Fields(s)
	if len(words) < minProseWords {
		return false
	}
	// "Label: value" fragments belong to the key-value index, not here.
	if colon := strings.Index(s, ":"); colon > 0 && colon < 30 &&
		len(strings.Fields(s[:colon])) <= 3 && !strings.Contains(s[colon+1:], ":") {
		return false
	}
	if len(words) < 10 && s == strings.ToUpper(s) {
		return false
	}
	letters := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters*2 >= len(s)
}

func keepRow(s string) bool {
	return len(s) >= minRowLen && len(strings.Fields(s)) >= minRowWords
}

// linearizeRow renders a table row as "header: cell | header: cell" pairs.
// Empty cells are skipped; missing headers fall back to the bare cell.
func linearizeRow(headers, row []string) string {
	var parts []string
	for i, cell := range row {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		if i < len(headers) && strings.TrimSpace(headers[i]) != "" {
			parts = append(parts, strings.TrimSpace(headers[i])+": "+cell)
		} else {
			parts = append(parts, cell)
		}
	}
	return strings.Join(parts, " | ")
}
