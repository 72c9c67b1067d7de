package hippograph

// Config holds all configuration for the hippograph engine.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	DBPath string `json:"db_path" yaml:"db_path"`

	// LLM providers. Completion drives extraction, recognition filtering,
	// and community summaries; Embedding drives all vector work.
	Completion LLMConfig `json:"completion" yaml:"completion"`
	Embedding  LLMConfig `json:"embedding" yaml:"embedding"`

	// EmbeddingDim is the fixed output dimensionality of the embedding
	// model. All vectors in a group must share this dimension; changing it
	// requires a full re-index.
	EmbeddingDim int `json:"embedding_dim" yaml:"embedding_dim"`

	// Chunking.
	ChunkSize    int `json:"chunk_size" yaml:"chunk_size"`       // target tokens per chunk
	ChunkOverlap int `json:"chunk_overlap" yaml:"chunk_overlap"` // tokens shared between neighbours

	// Extraction.
	ExtractConcurrency int  `json:"extract_concurrency" yaml:"extract_concurrency"` // worker pool size (default 4)
	MinEntities        int  `json:"min_entities" yaml:"min_entities"`               // validation floor before fallback
	MinMentions        int  `json:"min_mentions" yaml:"min_mentions"`
	UseNativeExtractor bool `json:"use_native_extractor" yaml:"use_native_extractor"`

	// Deduplication.
	SimilarityThreshold float64 `json:"similarity_threshold" yaml:"similarity_threshold"` // entity merge threshold

	// Section graph.
	SectionSimThreshold float64 `json:"section_sim_threshold" yaml:"section_sim_threshold"` // cross-doc similarity floor
	SectionEdgeCap      int     `json:"section_edge_cap" yaml:"section_edge_cap"`           // max similar edges per section

	// PPR defaults.
	PassageNodeWeight float64 `json:"passage_node_weight" yaml:"passage_node_weight"` // MENTIONS edge weight
	Damping           float64 `json:"damping" yaml:"damping"`
	SynonymThreshold  float64 `json:"synonym_threshold" yaml:"synonym_threshold"`
	SectionPPRSim     float64 `json:"section_ppr_sim" yaml:"section_ppr_sim"`         // section-section floor inside PPR
	SectionEdgeWeight float64 `json:"section_edge_weight" yaml:"section_edge_weight"` // chunk-section weight inside PPR

	// Retrieval widths.
	TripleTopK     int `json:"triple_top_k" yaml:"triple_top_k"`
	DPRTopK        int `json:"dpr_top_k" yaml:"dpr_top_k"`
	PPRPassageTopK int `json:"ppr_passage_top_k" yaml:"ppr_passage_top_k"`
	SentenceTopK   int `json:"sentence_top_k" yaml:"sentence_top_k"`

	// Sentence evidence filtering.
	SentenceSimThreshold float64 `json:"sentence_sim_threshold" yaml:"sentence_sim_threshold"` // similarity floor
	SentenceLimit        int     `json:"sentence_limit" yaml:"sentence_limit"`                 // max sentences handed to synthesis

	// Optional seed weights.
	StructuralWeight float64 `json:"w_structural" yaml:"w_structural"`
	CommunityWeight  float64 `json:"w_community" yaml:"w_community"`

	// Feature flags.
	IncludeSectionGraph    bool `json:"include_section_graph" yaml:"include_section_graph"`
	StructuralSeedsEnabled bool `json:"structural_seeds_enabled" yaml:"structural_seeds_enabled"`
	CommunitySeedsEnabled  bool `json:"community_seeds_enabled" yaml:"community_seeds_enabled"`
	SentenceSearchEnabled  bool `json:"sentence_search_enabled" yaml:"sentence_search_enabled"`

	// Community detection.
	CommunityMaxLevels int `json:"community_max_levels" yaml:"community_max_levels"`
}

// LLMConfig configures a single provider endpoint.
type LLMConfig struct {
	Provider string `json:"provider" yaml:"provider"` // openai, ollama, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

// DefaultConfig returns a Config with the documented defaults.
func DefaultConfig() Config {
	return Config{
		DBPath:       "hippograph.db",
		EmbeddingDim: 3072,

		ChunkSize:    512,
		ChunkOverlap: 64,

		ExtractConcurrency: 4,
		MinEntities:        3,
		MinMentions:        5,
		UseNativeExtractor: true,

		SimilarityThreshold: 0.95,

		SectionSimThreshold: 0.43,
		SectionEdgeCap:      5,

		PassageNodeWeight: 0.05,
		Damping:           0.5,
		SynonymThreshold:  0.8,
		SectionPPRSim:     0.5,
		SectionEdgeWeight: 0.1,

		TripleTopK:     5,
		DPRTopK:        20,
		PPRPassageTopK: 20,
		SentenceTopK:   30,

		SentenceSimThreshold: 0.2,
		SentenceLimit:        8,

		StructuralWeight: 0.2,
		CommunityWeight:  0.1,

		CommunityMaxLevels: 2,
	}
}

// Validate reports configuration errors that must be fatal at startup.
func (c *Config) Validate() error {
	if c.EmbeddingDim <= 0 {
		return ErrInvalidConfig
	}
	if c.Embedding.Provider == "" {
		return ErrInvalidConfig
	}
	if c.ChunkSize > 0 && c.ChunkOverlap >= c.ChunkSize {
		return ErrInvalidConfig
	}
	return nil
}
