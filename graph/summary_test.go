package graph

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hippograph/hippograph/llm"
	"github.com/hippograph/hippograph/store"
)

// scriptProvider replays canned completions, repeating the last one.
type scriptProvider struct {
	replies []string
	calls   int
}

func (p *scriptProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	i := p.calls
	if i >= len(p.replies) {
		i = len(p.replies) - 1
	}
	p.calls++
	return &llm.CompletionResponse{Text: p.replies[i], Usage: llm.Usage{TotalTokens: 5}}, nil
}

func summaryMembers() []store.Entity {
	return []store.Entity{
		{ID: "e1", Name: "Fabrikam Construction", Type: "ORGANIZATION"},
		{ID: "e2", Name: "Riverside Bridge", Type: "CONCEPT"},
	}
}

func summaryEvidence() []store.Chunk {
	return []store.Chunk{
		{ID: "c1", Text: "Fabrikam Construction won the contract worth $1,200,000 on March 3, 2024 for the Riverside Bridge."},
	}
}

func TestFactSpans(t *testing.T) {
	chunks := []store.Chunk{
		{Text: "The bid of $1,200,000 covers 15% of the budget, due 2024-06-30."},
		{Text: "A second payment of $1,200,000 follows on January 5, 2025."},
	}
	spans := factSpans(chunks)
	require.Equal(t, []string{"$1,200,000", "15%", "2024-06-30", "January 5, 2025"}, spans)
}

func TestMissingFacts(t *testing.T) {
	required := []string{"$1,200,000", "15%"}
	require.Empty(t, missingFacts("The $1,200,000 bid covers 15% of costs.", required))
	require.Equal(t, []string{"15%"},
		missingFacts("The $1,200,000 bid covers a portion of costs.", required))
}

func TestSummarizeCommunityRetriesOnOmittedFact(t *testing.T) {
	provider := &scriptProvider{replies: []string{
		`{"title": "Bridge work", "summary": "Fabrikam Construction is building the Riverside Bridge under a large contract."}`,
		`{"title": "Bridge work", "summary": "Fabrikam Construction won the $1,200,000 Riverside Bridge contract on March 3, 2024."}`,
	}}
	b := NewBuilder(nil, provider, nil, Config{CompletionModel: "m"}, nil)
	community := &store.Community{ID: "com1"}

	b.summarizeCommunity(context.Background(), community, summaryMembers(), nil, summaryEvidence())

	require.Equal(t, 2, provider.calls, "first reply dropped the figures")
	require.Contains(t, community.Summary, "$1,200,000")
	require.Contains(t, community.Summary, "March 3, 2024")
}

func TestSummarizeCommunityFallbackKeepsFigures(t *testing.T) {
	provider := &scriptProvider{replies: []string{
		`{"title": "Bridge work", "summary": "Fabrikam Construction is building the Riverside Bridge."}`,
	}}
	b := NewBuilder(nil, provider, nil, Config{CompletionModel: "m"}, nil)
	community := &store.Community{ID: "com1"}

	b.summarizeCommunity(context.Background(), community, summaryMembers(), nil, summaryEvidence())

	require.Equal(t, summaryMaxRetries+1, provider.calls)
	require.True(t, strings.HasPrefix(community.Summary, "A group of 2 related entities"))
	require.Contains(t, community.Summary, "$1,200,000")
}

func TestSummarizeCommunityRejectsOutsideEntities(t *testing.T) {
	provider := &scriptProvider{replies: []string{
		`{"title": "Bridge work", "summary": "The $1,200,000 contract from March 3, 2024 involves Fabrikam Construction and Globex Holdings."}`,
		`{"title": "Bridge work", "summary": "Fabrikam Construction holds the $1,200,000 contract from March 3, 2024."}`,
	}}
	b := NewBuilder(nil, provider, nil, Config{CompletionModel: "m"}, nil)
	community := &store.Community{ID: "com1"}

	b.summarizeCommunity(context.Background(), community, summaryMembers(), nil, summaryEvidence())

	require.Equal(t, 2, provider.calls, "first reply named a non-member")
	require.NotContains(t, community.Summary, "Globex")
}

func TestSelectEvidenceRanksByMemberMentions(t *testing.T) {
	b := NewBuilder(nil, nil, nil, Config{}, nil)
	chunks := map[string]store.Chunk{
		"c1": {ID: "c1", Text: "one member"},
		"c2": {ID: "c2", Text: "two members"},
		"c3": {ID: "c3", Text: "unrelated"},
	}
	mentions := []store.Mention{
		{ChunkID: "c1", EntityID: "e1"},
		{ChunkID: "c2", EntityID: "e1"},
		{ChunkID: "c2", EntityID: "e2"},
		{ChunkID: "c3", EntityID: "other"},
	}

	out := b.selectEvidence(context.Background(), "g", []string{"e1", "e2"}, mentions, chunks, nil)
	require.Len(t, out, 2)
	require.Equal(t, "c2", out[0].ID, "densest chunk first")
	require.Equal(t, "c1", out[1].ID)
}
