package route

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hippograph/hippograph/llm"
)

// Overview answers a corpus-level question from community summaries instead
// of passage retrieval. Used for "what is this collection about" style
// questions where no specific passage holds the answer.
func (h *Handler) Overview(ctx context.Context, groupID, question string) (*Result, error) {
	start := time.Now()
	result := &Result{
		QueryID:   uuid.NewString(),
		GroupID:   groupID,
		Question:  question,
		RouteUsed: RouteName,
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

	communities, err := h.store.ListCommunities(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if len(communities) == 0 {
		result.Negative = true
		result.Reason = ReasonNoCommunities
		result.Answer = "No communities are available for this group."
		result.Timings.Total = time.Since(start)
		return result, nil
	}

	var b strings.Builder
	b.WriteString("Answer the question from these topic summaries of a document collection.\n\n")
	for i, c := range communities {
		if i == 20 {
			break
		}
		fmt.Fprintf(&b, "- %s: %s\n", c.Title, c.Summary)
		result.EvidencePath = append(result.EvidencePath, EvidenceStep{
			Kind: "community", ID: c.ID, Text: c.Title, Score: c.Rank,
		})
	}
	b.WriteString("\nQuestion: " + question + "\nAnswer:")

	synthStart := time.Now()
	resp, err := h.provider.Complete(ctx, llm.CompletionRequest{
		Model:       h.opts.CompletionModel,
		Prompt:      b.String(),
		Temperature: 0.2,
		MaxTokens:   1024,
	})
	if err != nil {
		return nil, err
	}
	result.Usage.Add(resp.Usage)
	result.Timings.Synthesis = time.Since(synthStart)
	result.Answer = strings.TrimSpace(resp.Text)
	result.Timings.Total = time.Since(start)
	return result, nil
}
