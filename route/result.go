// Package route answers questions over an indexed group with hybrid
// graph-augmented retrieval: query-to-triple linking, dense passage
// retrieval, Personalized PageRank, and LLM synthesis.
package route

import (
	"time"

	"github.com/hippograph/hippograph/llm"
)

// RouteName identifies the retrieval strategy in results.
const RouteName = "route_7_hipporag2"

// Negative detection reasons.
const (
	ReasonNoDocuments   = "no_documents_indexed"
	ReasonNoSeeds       = "no_seeds_resolved"
	ReasonNoCommunities = "no_communities"
	ReasonNoChunks      = "no_chunks"
)

// Citation points an answer at its source location.
type Citation struct {
	ChunkID       string `json:"chunk_id"`
	DocumentID    string `json:"document_id"`
	DocumentTitle string `json:"document_title"`
	SectionTitle  string `json:"section_title,omitempty"`
	Page          int    `json:"page,omitempty"`
	Snippet       string `json:"snippet,omitempty"`
}

// EvidenceStep is one hop of the retrieval trace.
type EvidenceStep struct {
	Kind   string  `json:"kind"` // triple, entity, passage, sentence, community
	ID     string  `json:"id,omitempty"`
	Text   string  `json:"text,omitempty"`
	Score  float64 `json:"score,omitempty"`
	Source string  `json:"source,omitempty"`
}

// Timings breaks down where query time went.
type Timings struct {
	Load      time.Duration `json:"load"`
	Embed     time.Duration `json:"embed"`
	Retrieval time.Duration `json:"retrieval"`
	Filter    time.Duration `json:"filter"`
	Walk      time.Duration `json:"walk"`
	Synthesis time.Duration `json:"synthesis"`
	Total     time.Duration `json:"total"`
}

// EntityScore is one walk-ranked entity surfaced alongside the answer.
type EntityScore struct {
	Name  string  `json:"entity_name"`
	Score float64 `json:"score"`
}

// Meta carries retrieval counts and walk parameters for diagnostics.
type Meta struct {
	Damping           float64 `json:"damping"`
	PassageNodeWeight float64 `json:"passage_node_weight"`
	SurvivingTriples  int     `json:"surviving_triples"`
	EntitySeeds       int     `json:"entity_seeds_count"`
	PassageSeeds      int     `json:"passage_seeds_count"`
	PPRPassages       int     `json:"num_ppr_passages"`
	PPREntities       int     `json:"num_ppr_entities"`
	SentenceEvidence  int     `json:"sentence_evidence_count"`
}

// Result is the full answer envelope for one query.
type Result struct {
	QueryID       string         `json:"query_id"`
	GroupID       string         `json:"group_id"`
	Question      string         `json:"question"`
	Answer        string         `json:"answer"`
	RouteUsed     string         `json:"route_used"`
	ResponseType  string         `json:"response_type,omitempty"`
	Negative      bool           `json:"negative"`
	Reason        string         `json:"reason,omitempty"`
	Citations     []Citation     `json:"citations,omitempty"`
	EvidencePath  []EvidenceStep `json:"evidence_path,omitempty"`
	EvidenceNodes []EntityScore  `json:"evidence_nodes,omitempty"`
	UsedFallback  bool           `json:"used_fallback,omitempty"`
	Meta          Meta           `json:"metadata"`
	Timings       Timings        `json:"timings"`
	Usage         llm.Usage      `json:"usage"`
}
