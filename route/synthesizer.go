package route

import (
	"context"
	"fmt"
	"strings"

	"github.com/hippograph/hippograph/llm"
	"github.com/hippograph/hippograph/store"
)

// SynthesisInput bundles everything the synthesizer may ground an answer
// on: coverage passages, sentence evidence, the walk-ranked entities and
// the surviving graph facts.
type SynthesisInput struct {
	Question         string
	ResponseType     string
	Evidence         []store.EvidenceChunk
	Sentences        []store.Sentence
	EvidenceNodes    []EntityScore
	StructuralHeader string
}

// Synthesizer turns retrieved evidence into a final answer. Implementations
// that need no model call (tests, raw-evidence callers) can return the
// evidence verbatim.
type Synthesizer interface {
	Synthesize(ctx context.Context, in SynthesisInput) (string, llm.Usage, error)
}

// llmSynthesizer answers with a grounded completion over the evidence.
type llmSynthesizer struct {
	provider llm.Provider
	model    string
}

// NewLLMSynthesizer returns the default model-backed synthesizer.
func NewLLMSynthesizer(provider llm.Provider, model string) Synthesizer {
	return &llmSynthesizer{provider: provider, model: model}
}

func (s *llmSynthesizer) Synthesize(ctx context.Context, in SynthesisInput) (string, llm.Usage, error) {
	var usage llm.Usage
	var b strings.Builder
	b.WriteString("Answer the question using only the evidence below. " +
		"Cite passages as [n]. If the evidence does not contain the answer, say so.\n\n")

	if in.StructuralHeader != "" {
		b.WriteString("Graph facts:\n")
		b.WriteString(in.StructuralHeader)
		b.WriteString("\n")
	}
	if len(in.EvidenceNodes) > 0 {
		var names []string
		for _, n := range in.EvidenceNodes {
			names = append(names, n.Name)
		}
		b.WriteString("Relevant entities: " + strings.Join(names, ", ") + "\n\n")
	}

	for i, ec := range in.Evidence {
		fmt.Fprintf(&b, "[%d] %s", i+1, ec.DocumentTitle)
		if ec.SectionTitle != "" {
			b.WriteString(" / " + ec.SectionTitle)
		}
		if ec.Page > 0 {
			fmt.Fprintf(&b, " (p.%d)", ec.Page)
		}
		b.WriteString(":\n")
		b.WriteString(ec.Text)
		b.WriteString("\n\n")
	}
	if len(in.Sentences) > 0 {
		b.WriteString("Key sentences:\n")
		for _, sent := range in.Sentences {
			b.WriteString("- " + sent.Text + "\n")
		}
		b.WriteString("\n")
	}
	if in.ResponseType != "" {
		b.WriteString("Respond in this format: " + in.ResponseType + "\n")
	}
	b.WriteString("Question: " + in.Question + "\nAnswer:")

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		Model:       s.model,
		Prompt:      b.String(),
		Temperature: 0.2,
		MaxTokens:   1024,
	})
	if err != nil {
		return "", usage, err
	}
	usage.Add(resp.Usage)
	return strings.TrimSpace(resp.Text), usage, nil
}
