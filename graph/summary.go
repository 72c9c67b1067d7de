package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hippograph/hippograph/llm"
	"github.com/hippograph/hippograph/store"
)

const (
	summaryMaxRetries = 2
	maxEvidenceChunks = 3
	maxRequiredFacts  = 8
	maxExcerptBytes   = 400
)

// communityReport is the JSON shape the summary prompt asks for.
type communityReport struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// selectEvidence picks the chunks that ground a community summary, ranked
// by how many member mentions each chunk carries, with similarity to the
// community theme breaking ties.
func (b *Builder) selectEvidence(ctx context.Context, groupID string, memberIDs []string, mentions []store.Mention, chunks map[string]store.Chunk, embeddings map[string][]float32) []store.Chunk {
	member := make(map[string]bool, len(memberIDs))
	for _, id := range memberIDs {
		member[id] = true
	}
	counts := make(map[string]int)
	for _, m := range mentions {
		if member[m.EntityID] {
			counts[m.ChunkID]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	sims := make(map[string]float64)
	if theme := themeVector(memberIDs, embeddings); theme != nil {
		hits, err := b.store.ChunkVectorSearch(ctx, groupID, theme, len(counts))
		if err != nil {
			b.logger.Warn("community theme search failed", "group", groupID, "error", err)
		}
		for _, h := range hits {
			sims[h.NodeID] = h.Similarity
		}
	}

	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, c := ids[i], ids[j]
		if counts[a] != counts[c] {
			return counts[a] > counts[c]
		}
		if sims[a] != sims[c] {
			return sims[a] > sims[c]
		}
		return a < c
	})

	var out []store.Chunk
	for _, id := range ids {
		c, ok := chunks[id]
		if !ok {
			continue
		}
		out = append(out, c)
		if len(out) == maxEvidenceChunks {
			break
		}
	}
	return out
}

// themeVector is the mean of the member entity embeddings.
func themeVector(memberIDs []string, embeddings map[string][]float32) []float32 {
	var theme []float32
	var n int
	for _, id := range memberIDs {
		v, ok := embeddings[id]
		if !ok || len(v) == 0 {
			continue
		}
		if theme == nil {
			theme = make([]float32, len(v))
		}
		for i := range v {
			theme[i] += v[i]
		}
		n++
	}
	if theme == nil {
		return nil
	}
	for i := range theme {
		theme[i] /= float32(n)
	}
	return theme
}

// summarizeCommunity writes an LLM title and summary for a community from
// its member entities, internal relationships and supporting chunks. The
// summary must carry every concrete figure found in the evidence verbatim
// and may name no entity outside the community; violations are retried,
// then fall back to a mechanical description.
func (b *Builder) summarizeCommunity(ctx context.Context, community *store.Community, entities []store.Entity, rels []store.Relationship, evidence []store.Chunk) llm.Usage {
	var usage llm.Usage

	memberNames := make(map[string]bool, len(entities))
	var factLines []string
	byID := make(map[string]string, len(entities))
	for _, e := range entities {
		memberNames[strings.ToLower(e.Name)] = true
		byID[e.ID] = e.Name
		line := e.Name + " (" + e.Type + ")"
		if e.Description != "" {
			line += ": " + e.Description
		}
		factLines = append(factLines, line)
	}
	for _, r := range rels {
		src, tgt := byID[r.SourceID], byID[r.TargetID]
		if src == "" || tgt == "" || r.Description == "" {
			continue
		}
		factLines = append(factLines, src+" -> "+tgt+": "+r.Description)
	}

	required := factSpans(evidence)

	var b2 strings.Builder
	b2.WriteString("Write a title and summary for a group of related entities found in a document collection.\n\nFacts:\n")
	b2.WriteString(strings.Join(factLines, "\n"))
	if len(evidence) > 0 {
		b2.WriteString("\n\nSupporting passages:\n")
		for _, c := range evidence {
			b2.WriteString("- " + excerpt(c.Text, maxExcerptBytes) + "\n")
		}
	}
	if len(required) > 0 {
		b2.WriteString("\nRequired facts (copy each into the summary exactly as written): ")
		b2.WriteString(strings.Join(required, "; "))
		b2.WriteString("\n")
	}
	b2.WriteString("\nReturn ONLY JSON: {\"title\": \"...\", \"summary\": \"...\"}\n" +
		"The summary is 2-4 sentences, states only the facts above, and names no entity absent from them.")
	prompt := b2.String()

	for attempt := 0; attempt <= summaryMaxRetries; attempt++ {
		resp, err := b.provider.Complete(ctx, llm.CompletionRequest{
			Model:       b.cfg.CompletionModel,
			Prompt:      prompt,
			Temperature: 0,
			MaxTokens:   512,
			JSONMode:    true,
		})
		if err != nil {
			break
		}
		usage.Add(resp.Usage)

		var report communityReport
		text := resp.Text
		if start := strings.Index(text, "{"); start >= 0 {
			if end := strings.LastIndex(text, "}"); end > start {
				text = text[start : end+1]
			}
		}
		if json.Unmarshal([]byte(text), &report) != nil {
			continue
		}
		if report.Title == "" || report.Summary == "" {
			continue
		}
		if hallucinatedEntity(report.Summary, memberNames, entities) {
			continue
		}
		if len(missingFacts(report.Summary, required)) > 0 {
			continue
		}
		community.Title = report.Title
		community.Summary = report.Summary
		return usage
	}

	// Fallback: mechanical description so the community stays searchable.
	// The required figures ride along so they survive the model's failure.
	names := make([]string, 0, len(entities))
	for _, e := range entities {
		names = append(names, e.Name)
	}
	if len(names) > 5 {
		names = names[:5]
	}
	community.Title = strings.Join(names, ", ")
	community.Summary = fmt.Sprintf("A group of %d related entities including %s.",
		len(entities), strings.Join(names, ", "))
	if len(required) > 0 {
		community.Summary += " Key figures: " + strings.Join(required, ", ") + "."
	}
	return usage
}

// factSpanRe matches the concrete figures a summary must not drop: money
// amounts, percentages, ISO dates and written month-day-year dates.
var factSpanRe = regexp.MustCompile(`\$[0-9][0-9,]*(?:\.[0-9]+)?(?:\s?(?:million|billion))?` +
	`|\b[0-9]+(?:\.[0-9]+)?\s?%` +
	`|\b[0-9]{4}-[0-9]{2}-[0-9]{2}\b` +
	`|\b(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+[0-9]{1,2},?\s+[0-9]{4}\b`)

// factSpans extracts the figures and dates from the evidence, deduplicated
// in document order.
func factSpans(evidence []store.Chunk) []string {
	seen := make(map[string]bool)
	var spans []string
	for _, c := range evidence {
		for _, m := range factSpanRe.FindAllString(c.Text, -1) {
			if seen[m] {
				continue
			}
			seen[m] = true
			spans = append(spans, m)
			if len(spans) == maxRequiredFacts {
				return spans
			}
		}
	}
	return spans
}

// missingFacts returns the required spans the summary failed to carry
// verbatim.
func missingFacts(summary string, required []string) []string {
	var missing []string
	for _, span := range required {
		if !strings.Contains(summary, span) {
			missing = append(missing, span)
		}
	}
	return missing
}

func excerpt(text string, n int) string {
	if len(text) <= n {
		return text
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// hallucinatedEntity reports whether the summary names a capitalised
// multi-word span that matches no community member. A loose check: it only
// flags spans that look like proper names and appear in none of the member
// names or aliases.
func hallucinatedEntity(summary string, memberNames map[string]bool, entities []store.Entity) bool {
	aliasText := make([]string, 0, len(entities))
	for _, e := range entities {
		aliasText = append(aliasText, strings.ToLower(e.Name))
		for _, a := range e.Aliases {
			aliasText = append(aliasText, strings.ToLower(a))
		}
	}
	joined := strings.Join(aliasText, "\n")

	for _, span := range properNameSpans(summary) {
		lower := strings.ToLower(span)
		if memberNames[lower] || strings.Contains(joined, lower) {
			continue
		}
		return true
	}
	return false
}

// properNameSpans finds runs of two or more capitalised words, skipping
// sentence starts.
func properNameSpans(text string) []string {
	var spans []string
	var span []string
	sentenceStart := true
	for _, word := range strings.Fields(text) {
		trimmed := strings.Trim(word, ".,;:()\"'")
		capitalized := trimmed != "" && trimmed[0] >= 'A' && trimmed[0] <= 'Z'
		if capitalized && !sentenceStart {
			span = append(span, trimmed)
		} else if capitalized && sentenceStart && len(span) > 0 {
			span = append(span, trimmed)
		} else {
			if len(span) >= 2 {
				spans = append(spans, strings.Join(span, " "))
			}
			span = nil
		}
		sentenceStart = strings.HasSuffix(word, ".") || strings.HasSuffix(word, "!") ||
			strings.HasSuffix(word, "?")
	}
	if len(span) >= 2 {
		spans = append(spans, strings.Join(span, " "))
	}
	return spans
}
