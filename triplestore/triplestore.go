// Package triplestore holds a group's relationship facts in memory with
// L2-normalised embeddings for fast query-to-triple linking.
package triplestore

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/hippograph/hippograph/llm"
	"github.com/hippograph/hippograph/store"
)

// Triple is one embedded fact.
type Triple struct {
	SubjectID   string `json:"subject_id"`
	SubjectName string `json:"subject_name"`
	Predicate   string `json:"predicate"`
	ObjectID    string `json:"object_id"`
	ObjectName  string `json:"object_name"`
}

// Text renders the fact the way it was embedded.
func (t Triple) Text() string {
	return t.SubjectName + " " + t.Predicate + " " + t.ObjectName
}

// Store is an in-memory matrix of triple embeddings for one group.
// Immutable after Load; safe for concurrent Search.
type Store struct {
	triples []Triple
	vectors [][]float32
	dim     int
}

// Load reads a group's triples and embeds them in one batch. Rows are
// normalised so search is a plain dot product.
func Load(ctx context.Context, st *store.Store, embedder llm.Embedder, groupID string) (*Store, error) {
	rows, err := st.LoadTriples(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("loading triples: %w", err)
	}
	ts := &Store{}
	if len(rows) == 0 {
		return ts, nil
	}

	texts := make([]string, len(rows))
	for i, r := range rows {
		ts.triples = append(ts.triples, Triple{
			SubjectID:   r.SubjectID,
			SubjectName: r.SubjectName,
			Predicate:   r.Predicate,
			ObjectID:    r.ObjectID,
			ObjectName:  r.ObjectName,
		})
		texts[i] = ts.triples[i].Text()
	}

	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding triples: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding triples: got %d vectors for %d texts", len(vectors), len(texts))
	}
	for i := range vectors {
		normalize(vectors[i])
	}
	ts.vectors = vectors
	if len(vectors) > 0 {
		ts.dim = len(vectors[0])
	}
	return ts, nil
}

// Len returns the number of loaded triples.
func (s *Store) Len() int {
	return len(s.triples)
}

// Hit is one search result.
type Hit struct {
	Triple     Triple
	Similarity float64
}

// Search returns the top-k triples by cosine similarity to the query
// vector. Candidates at or below zero similarity are dropped, so an
// orthogonal query yields no hits. Ties break by load order, so results
// are deterministic.
func (s *Store) Search(query []float32, k int) []Hit {
	if k <= 0 || len(s.triples) == 0 || len(query) != s.dim {
		return nil
	}
	q := append([]float32(nil), query...)
	normalize(q)

	type scored struct {
		idx int
		sim float64
	}
	all := make([]scored, 0, len(s.vectors))
	for i, v := range s.vectors {
		var dot float64
		for j := range v {
			dot += float64(v[j]) * float64(q[j])
		}
		if dot <= 0 {
			continue
		}
		all = append(all, scored{i, dot})
	}
	sort.SliceStable(all, func(a, b int) bool { return all[a].sim > all[b].sim })

	if k > len(all) {
		k = len(all)
	}
	hits := make([]Hit, k)
	for i := 0; i < k; i++ {
		hits[i] = Hit{Triple: s.triples[all[i].idx], Similarity: all[i].sim}
	}
	return hits
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}
