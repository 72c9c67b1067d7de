package route

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hippograph/hippograph/llm"
	"github.com/hippograph/hippograph/triplestore"
)

// filterTriples runs the recognition-memory check: the model sees the
// candidate facts as a numbered list and keeps only the ones relevant to
// the question. On any model or parse failure every candidate passes
// through; the filter only ever narrows.
func (h *Handler) filterTriples(ctx context.Context, question string, hits []triplestore.Hit) ([]triplestore.Hit, llm.Usage) {
	var usage llm.Usage
	if len(hits) <= 1 {
		return hits, usage
	}

	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\nCandidate facts:\n")
	for i, hit := range hits {
		fmt.Fprintf(&b, "%d. %s\n", i+1, hit.Triple.Text())
	}
	b.WriteString("\nWhich facts are relevant to answering the question? " +
		"Reply with the fact numbers separated by commas, or NONE if none are relevant. " +
		"Reply with numbers only.")

	resp, err := h.provider.Complete(ctx, llm.CompletionRequest{
		Model:       h.opts.CompletionModel,
		Prompt:      b.String(),
		Temperature: 0,
		MaxTokens:   128,
	})
	if err != nil {
		h.logger.Warn("triple filter call failed, passing candidates through", "error", err)
		return hits, usage
	}
	usage.Add(resp.Usage)

	keep, ok := parseFilterReply(resp.Text, len(hits))
	if !ok {
		return hits, usage
	}
	if len(keep) == 0 {
		return nil, usage
	}
	out := make([]triplestore.Hit, 0, len(keep))
	for _, idx := range keep {
		out = append(out, hits[idx])
	}
	return out, usage
}

// parseFilterReply reads a comma-separated index list or NONE. Indexes are
// 1-based in the prompt; out-of-range numbers are skipped. A reply with no
// usable tokens returns ok=false so the caller passes candidates through.
func parseFilterReply(reply string, n int) ([]int, bool) {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return nil, false
	}
	if strings.EqualFold(strings.Trim(reply, " ."), "NONE") {
		return nil, true
	}

	seen := make(map[int]bool)
	var keep []int
	for _, tok := range strings.FieldsFunc(reply, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == ';'
	}) {
		tok = strings.Trim(tok, ".")
		v, err := strconv.Atoi(tok)
		if err != nil {
			continue
		}
		if v < 1 || v > n || seen[v] {
			continue
		}
		seen[v] = true
		keep = append(keep, v-1)
	}
	if len(keep) == 0 {
		return nil, false
	}
	return keep, true
}
