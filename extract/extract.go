package extract

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/hippograph/hippograph/llm"
	"github.com/hippograph/hippograph/monitor"
	"github.com/hippograph/hippograph/store"
)

// Result is the validated extraction output for one chunk.
type Result struct {
	ChunkID   string
	Entities  []RawEntity
	Relations []RawRelation
	// Repaired is true when the model's JSON needed mechanical repair.
	Repaired bool
	// Fallback is true when heuristic extraction produced the result after
	// the model failed.
	Fallback bool
	// Failed is true when no method produced entities for the chunk.
	Failed bool
	Usage  llm.Usage
}

// Extractor runs entity and relationship extraction over chunks with a
// bounded worker pool.
type Extractor struct {
	provider    llm.Provider
	model       string
	concurrency int
	minEntities int
	timeout     time.Duration
	logger      *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithConcurrency caps parallel model calls.
func WithConcurrency(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithMinEntities sets the per-chunk entity floor below which the fallback
// cascade keeps going.
func WithMinEntities(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.minEntities = n
		}
	}
}

// WithTimeout caps each per-chunk model call.
func WithTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the extraction logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// New builds an Extractor against the given provider and model.
func New(provider llm.Provider, model string, opts ...Option) *Extractor {
	e := &Extractor{
		provider:    provider,
		model:       model,
		concurrency: 4,
		minEntities: 1,
		timeout:     90 * time.Second,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractChunks runs extraction over all chunks concurrently. Per-chunk
// failures degrade to fallback extraction rather than failing the batch;
// results keep chunk order.
func (e *Extractor) ExtractChunks(ctx context.Context, chunks []store.Chunk) ([]Result, error) {
	results := make([]Result, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	start := time.Now()
	for i, chunk := range chunks {
		g.Go(func() error {
			results[i] = e.extractOne(gctx, chunk)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var repaired, failed, fallback int
	for _, r := range results {
		if r.Repaired {
			repaired++
		}
		if r.Failed {
			failed++
		}
		if r.Fallback {
			fallback++
		}
	}
	e.logger.Info("extraction complete",
		"chunks", len(chunks), "repaired", repaired,
		"fallback", fallback, "failed", failed,
		"elapsed", time.Since(start).Round(time.Millisecond))

	return results, nil
}

// extractOne runs the fallback cascade for a single chunk: JSON-mode model
// call, then a prompt-only retry, then heuristic extraction.
func (e *Extractor) extractOne(ctx context.Context, chunk store.Chunk) Result {
	result := Result{ChunkID: chunk.ID}

	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	prompt := BuildPrompt(chunk.Text)

	for attempt, jsonMode := range []bool{true, false} {
		resp, err := e.provider.Complete(cctx, llm.CompletionRequest{
			Model:       e.model,
			Prompt:      prompt,
			Temperature: 0,
			MaxTokens:   2048,
			JSONMode:    jsonMode,
		})
		if err != nil {
			e.logger.Warn("extraction call failed",
				"chunk", chunk.ID, "attempt", attempt, "error", err)
			continue
		}
		result.Usage.Add(resp.Usage)

		parsed, state := parseExtraction(resp.Text)
		if state == parseFailed {
			monitor.ExtractionFailures.Inc()
			continue
		}
		if state == parseRepaired {
			monitor.JSONRepairs.Inc()
			result.Repaired = true
		}
		entities, relations := validate(parsed)
		if len(entities) > len(result.Entities) {
			result.Entities, result.Relations = entities, relations
		}
		if len(result.Entities) >= e.minEntities {
			return result
		}
	}

	// Below the entity floor after both attempts: heuristic extraction
	// supplements whatever the model produced, so the chunk stays connected
	// to the graph.
	monitor.FallbackExtractions.Inc()
	result.Fallback = true
	seen := make(map[string]bool, len(result.Entities))
	for _, ent := range result.Entities {
		seen[ent.Name] = true
	}
	for _, ent := range heuristicEntities(chunk.Text) {
		if !seen[ent.Name] {
			result.Entities = append(result.Entities, ent)
		}
	}
	if len(result.Entities) == 0 {
		result.Failed = true
	}
	return result
}

// validate prunes malformed candidates: empty names, unknown entity types,
// relations whose endpoints are not extracted entities. Unknown relation
// types are normalised to RELATED_TO instead of dropped.
func validate(raw *rawExtraction) ([]RawEntity, []RawRelation) {
	names := make(map[string]bool)
	var entities []RawEntity
	for _, ent := range raw.Entities {
		ent.Name = strings.TrimSpace(ent.Name)
		ent.Type = strings.ToUpper(strings.TrimSpace(ent.Type))
		if ent.Name == "" || names[ent.Name] {
			monitor.ValidationPrunes.Inc()
			continue
		}
		if !validEntityType(ent.Type) {
			ent.Type = "CONCEPT"
		}
		names[ent.Name] = true
		entities = append(entities, ent)
	}

	var relations []RawRelation
	for _, rel := range raw.Relations {
		rel.Source = strings.TrimSpace(rel.Source)
		rel.Target = strings.TrimSpace(rel.Target)
		if rel.Source == "" || rel.Target == "" || rel.Source == rel.Target ||
			!names[rel.Source] || !names[rel.Target] {
			monitor.ValidationPrunes.Inc()
			continue
		}
		rel.Type = normalizeRelationType(rel.Type)
		relations = append(relations, rel)
	}
	return entities, relations
}

// heuristicEntities extracts capitalised multi-word spans as CONCEPT
// entities. Crude, but it keeps chunks reachable when the model is down.
func heuristicEntities(text string) []RawEntity {
	seen := make(map[string]bool)
	var entities []RawEntity
	var span []string

	flush := func() {
		if len(span) == 0 {
			return
		}
		name := strings.Join(span, " ")
		span = nil
		if len(name) < 3 || seen[name] {
			return
		}
		seen[name] = true
		entities = append(entities, RawEntity{Name: name, Type: "CONCEPT"})
	}

	for _, word := range strings.Fields(text) {
		cleaned := strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if cleaned == "" {
			flush()
			continue
		}
		r := []rune(cleaned)[0]
		if unicode.IsUpper(r) && len(cleaned) > 1 {
			span = append(span, cleaned)
		} else {
			flush()
		}
		if len(entities) >= 20 {
			break
		}
	}
	flush()
	return entities
}
