// Package chunker splits extraction units into embedding-sized chunks with
// sentence-aligned boundaries and carried-over metadata.
package chunker

import (
	"fmt"
	"strings"

	"github.com/hippograph/hippograph/extractor"
	"github.com/hippograph/hippograph/store"
)

// Options controls chunk sizing. Sizes are in estimated tokens.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
}

// DefaultOptions matches the indexing defaults.
func DefaultOptions() Options {
	return Options{ChunkSize: 512, ChunkOverlap: 64}
}

const (
	maxTableRows     = 20
	maxMetadataCells = 200
)

// Chunk splits a document's extraction units into chunks. Chunk ids are
// "<docID>_chunk_<i>" with i strictly increasing. Unit boundaries are
// respected where possible; oversized units are split at sentence
// boundaries with overlap.
func Chunk(groupID, docID string, units []extractor.Unit, opts Options) ([]store.Chunk, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 512
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = opts.ChunkSize / 8
	}

	var chunks []store.Chunk
	var cur strings.Builder
	var curMeta store.ChunkMetadata
	curTokens := 0

	emit := func() {
		text := strings.TrimSpace(cur.String())
		cur.Reset()
		if text == "" {
			curMeta = store.ChunkMetadata{}
			curTokens = 0
			return
		}
		chunks = append(chunks, store.Chunk{
			ID:         fmt.Sprintf("%s_chunk_%d", docID, len(chunks)),
			GroupID:    groupID,
			DocumentID: docID,
			ChunkIndex: len(chunks),
			Text:       text,
			Tokens:     EstimateTokens(text),
			Metadata:   curMeta,
		})
		curMeta = store.ChunkMetadata{}
		curTokens = 0
	}

	for _, unit := range units {
		text := strings.TrimSpace(unit.Text)
		if text == "" {
			continue
		}
		tokens := EstimateTokens(text)

		// A unit that would overflow the current chunk starts a new one.
		if curTokens > 0 && curTokens+tokens > opts.ChunkSize {
			emit()
		}

		if tokens > opts.ChunkSize {
			// Oversized unit: emit whatever is pending, then split the unit
			// itself at sentence boundaries.
			emit()
			for _, part := range splitOversized(text, opts) {
				cur.WriteString(part)
				mergeUnitMetadata(&curMeta, unit)
				emit()
			}
			continue
		}

		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(text)
		mergeUnitMetadata(&curMeta, unit)
		curTokens += tokens
	}
	emit()

	if len(chunks) == 0 {
		return nil, fmt.Errorf("document %s: no chunkable text", docID)
	}
	return chunks, nil
}

// splitOversized breaks a long text into pieces at sentence boundaries,
// carrying overlap sentences between consecutive pieces.
func splitOversized(text string, opts Options) []string {
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		sentences = []string{text}
	}

	var parts []string
	var buf []string
	tokens := 0

	flush := func() {
		if len(buf) == 0 {
			return
		}
		parts = append(parts, strings.Join(buf, " "))

		// Seed the next piece with trailing sentences up to the overlap
		// budget.
		var carry []string
		carried := 0
		for i := len(buf) - 1; i >= 0 && carried < opts.ChunkOverlap; i-- {
			carry = append([]string{buf[i]}, carry...)
			carried += EstimateTokens(buf[i])
		}
		buf = carry
		tokens = carried
	}

	for _, sent := range sentences {
		st := EstimateTokens(sent)
		if tokens > 0 && tokens+st > opts.ChunkSize {
			flush()
		}
		buf = append(buf, sent)
		tokens += st
	}
	if len(buf) > 0 {
		// Drop a trailing piece that is pure overlap.
		tail := strings.Join(buf, " ")
		if len(parts) == 0 || !strings.HasSuffix(parts[len(parts)-1], tail) {
			parts = append(parts, tail)
		}
	}
	return parts
}

// mergeUnitMetadata folds a unit's allow-listed metadata into the pending
// chunk metadata. Tables are row-capped; total cell count is bounded.
func mergeUnitMetadata(meta *store.ChunkMetadata, unit extractor.Unit) {
	if len(meta.SectionPath) == 0 && len(unit.SectionPath) > 0 {
		meta.SectionPath = append([]string(nil), unit.SectionPath...)
	}
	if meta.Page == 0 && unit.Page > 0 {
		meta.Page = unit.Page
	}
	if meta.SourceURL == "" && unit.SourceURL != "" {
		meta.SourceURL = unit.SourceURL
	}
	for _, t := range unit.Tables {
		if cellCount(meta) >= maxMetadataCells {
			break
		}
		ct := store.ChunkTable{Headers: t.Headers, Summary: t.Summary}
		rows := t.Rows
		if len(rows) > maxTableRows {
			rows = rows[:maxTableRows]
		}
		ct.Rows = rows
		meta.Tables = append(meta.Tables, ct)
	}
	for _, f := range unit.Figures {
		meta.Figures = append(meta.Figures, store.ChunkFigure{
			ID: f.ID, Caption: f.Caption, Page: f.Page,
		})
	}
	for _, kv := range unit.KeyValues {
		meta.KeyValues = append(meta.KeyValues, store.ChunkKeyValue{
			Key: kv.Key, Value: kv.Value, Confidence: kv.Confidence, Page: kv.Page,
		})
	}
}

func cellCount(meta *store.ChunkMetadata) int {
	n := 0
	for _, t := range meta.Tables {
		n += len(t.Headers)
		for _, r := range t.Rows {
			n += len(r)
		}
	}
	return n
}

// EstimateTokens approximates the token count of text as characters over
// four, with a word-count floor.
func EstimateTokens(text string) int {
	byChars := len(text) / 4
	byWords := len(strings.Fields(text))
	if byWords > byChars {
		return byWords
	}
	if byChars == 0 && len(text) > 0 {
		return 1
	}
	return byChars
}
