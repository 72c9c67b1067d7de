package dedup

import (
	"math"
	"sort"

	"github.com/hippograph/hippograph/store"
)

// Candidate is a pre-merge entity with its embedding.
type Candidate struct {
	Entity    store.Entity
	Embedding []float32
}

// MergeResult is the deduplicated entity set plus the id remapping from
// merged-away ids to their canonical survivor.
type MergeResult struct {
	Entities   []store.Entity
	Embeddings map[string][]float32
	Remap      map[string]string
}

// Merge deduplicates candidates in two passes: exact canonical-key grouping,
// then embedding clustering at or above simThreshold within the remaining
// set. Merging unions aliases, text unit ids and metadata, keeps the longest
// description, and keeps the first non-nil embedding. Output order is
// deterministic.
func Merge(candidates []Candidate, simThreshold float64) *MergeResult {
	// Pass 1: group by canonical key.
	byKey := make(map[string][]Candidate)
	var keys []string
	for _, c := range candidates {
		key := CanonicalKey(c.Entity.Name)
		if _, ok := byKey[key]; !ok {
			keys = append(keys, key)
		}
		byKey[key] = append(byKey[key], c)
	}
	sort.Strings(keys)

	remap := make(map[string]string)
	merged := make([]Candidate, 0, len(keys))
	for _, key := range keys {
		group := byKey[key]
		survivor := mergeGroup(group, remap)
		merged = append(merged, survivor)
	}

	// Pass 2: cluster near-duplicates by embedding. Greedy assignment to the
	// first matching cluster keeps the result deterministic.
	var clusters [][]Candidate
	for _, c := range merged {
		placed := false
		for ci := range clusters {
			head := clusters[ci][0]
			if len(c.Embedding) > 0 && len(head.Embedding) > 0 &&
				cosine(c.Embedding, head.Embedding) >= simThreshold {
				clusters[ci] = append(clusters[ci], c)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, []Candidate{c})
		}
	}

	result := &MergeResult{
		Embeddings: make(map[string][]float32),
		Remap:      remap,
	}
	for _, cluster := range clusters {
		survivor := mergeGroup(cluster, remap)
		result.Entities = append(result.Entities, survivor.Entity)
		if len(survivor.Embedding) > 0 {
			result.Embeddings[survivor.Entity.ID] = survivor.Embedding
		}
	}

	// Collapse remap chains so every old id points at its final survivor.
	for old, target := range remap {
		for {
			next, ok := remap[target]
			if !ok || next == target {
				break
			}
			target = next
		}
		remap[old] = target
	}
	return result
}

// mergeGroup folds a group of duplicates into its first member, recording
// the id remapping for the rest.
func mergeGroup(group []Candidate, remap map[string]string) Candidate {
	if len(group) == 1 {
		return group[0]
	}
	survivor := group[0]
	aliasSet := map[string]bool{}
	unitSet := map[string]bool{}
	for _, a := range survivor.Entity.Aliases {
		aliasSet[a] = true
	}
	for _, u := range survivor.Entity.TextUnitIDs {
		unitSet[u] = true
	}

	for _, other := range group[1:] {
		if other.Entity.ID != survivor.Entity.ID {
			remap[other.Entity.ID] = survivor.Entity.ID
		}
		if other.Entity.Name != survivor.Entity.Name {
			aliasSet[other.Entity.Name] = true
		}
		for _, a := range other.Entity.Aliases {
			if a != survivor.Entity.Name {
				aliasSet[a] = true
			}
		}
		for _, u := range other.Entity.TextUnitIDs {
			unitSet[u] = true
		}
		if len(other.Entity.Description) > len(survivor.Entity.Description) {
			survivor.Entity.Description = other.Entity.Description
		}
		for k, v := range other.Entity.Metadata {
			if survivor.Entity.Metadata == nil {
				survivor.Entity.Metadata = map[string]string{}
			}
			if _, ok := survivor.Entity.Metadata[k]; !ok {
				survivor.Entity.Metadata[k] = v
			}
		}
		if len(survivor.Embedding) == 0 && len(other.Embedding) > 0 {
			survivor.Embedding = other.Embedding
		}
	}

	survivor.Entity.Aliases = sortedSet(aliasSet)
	survivor.Entity.TextUnitIDs = sortedSet(unitSet)
	return survivor
}

// RemapRelationships rewrites relationship endpoints through the remap and
// drops self-loops and duplicate (source, target, description) triples.
func RemapRelationships(rels []store.Relationship, remap map[string]string) []store.Relationship {
	seen := make(map[[3]string]bool)
	out := make([]store.Relationship, 0, len(rels))
	for _, r := range rels {
		if canonical, ok := remap[r.SourceID]; ok {
			r.SourceID = canonical
		}
		if canonical, ok := remap[r.TargetID]; ok {
			r.TargetID = canonical
		}
		if r.SourceID == r.TargetID {
			continue
		}
		key := [3]string{r.SourceID, r.TargetID, r.Description}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

// RemapMentions rewrites mention targets through the remap. Mentions are
// never dropped, only redirected.
func RemapMentions(chunkToEntities map[string][]string, remap map[string]string) map[string][]string {
	out := make(map[string][]string, len(chunkToEntities))
	for chunkID, entityIDs := range chunkToEntities {
		seen := make(map[string]bool)
		var ids []string
		for _, id := range entityIDs {
			if canonical, ok := remap[id]; ok {
				id = canonical
			}
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)
		out[chunkID] = ids
	}
	return out
}

func sortedSet(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
