package store

import "fmt"

// schemaSQL returns the DDL for all tables. embeddingDim controls the vec0
// virtual table dimensions. Every node and edge table carries group_id and
// every query filters by it; cross-group reads are a bug.
func schemaSQL(embeddingDim int) string {
	return fmt.Sprintf(`
-- Documents, immutable after ingest for a given group
CREATE TABLE IF NOT EXISTS documents (
    id TEXT NOT NULL,
    group_id TEXT NOT NULL,
    title TEXT NOT NULL,
    source TEXT,
    document_date TEXT,
    metadata JSON,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (group_id, id)
);

-- Text chunks (passages); chunk_index is unique and strictly increasing
-- within a document. section_id is the single leaf section, if any.
CREATE TABLE IF NOT EXISTS chunks (
    id TEXT NOT NULL,
    group_id TEXT NOT NULL,
    document_id TEXT NOT NULL,
    chunk_index INTEGER NOT NULL,
    text TEXT NOT NULL,
    tokens INTEGER,
    section_id TEXT,
    metadata JSON,
    PRIMARY KEY (group_id, id),
    UNIQUE (group_id, document_id, chunk_index)
);

-- Derived section hierarchy; path_key is the joined heading chain.
-- parent_id encodes SUBSECTION_OF; depth 0 sections are the HAS_SECTION
-- targets of their document.
CREATE TABLE IF NOT EXISTS sections (
    id TEXT NOT NULL,
    group_id TEXT NOT NULL,
    document_id TEXT NOT NULL,
    path_key TEXT NOT NULL,
    title TEXT NOT NULL,
    depth INTEGER NOT NULL,
    parent_id TEXT,
    PRIMARY KEY (group_id, id)
);

-- Canonical entities; id is deterministic from (group_id, canonical key).
CREATE TABLE IF NOT EXISTS entities (
    id TEXT NOT NULL,
    group_id TEXT NOT NULL,
    name TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    description TEXT,
    aliases JSON,
    text_unit_ids JSON,
    metadata JSON,
    degree INTEGER DEFAULT 0,
    chunk_count INTEGER DEFAULT 0,
    importance REAL DEFAULT 0,
    pagerank REAL DEFAULT 0,
    community_id TEXT,
    PRIMARY KEY (group_id, id)
);

-- Directed entity-entity relationships (RELATED_TO and typed variants);
-- treated as undirected at query time.
CREATE TABLE IF NOT EXISTS relationships (
    rowid INTEGER PRIMARY KEY,
    group_id TEXT NOT NULL,
    source_id TEXT NOT NULL,
    target_id TEXT NOT NULL,
    relation_type TEXT NOT NULL,
    description TEXT,
    weight REAL DEFAULT 1.0
);

-- Chunk MENTIONS entity.
CREATE TABLE IF NOT EXISTS mentions (
    group_id TEXT NOT NULL,
    chunk_id TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    PRIMARY KEY (group_id, chunk_id, entity_id)
);

-- Derived edges between sections: SEMANTICALLY_SIMILAR (cross-document,
-- weight = cosine) and SHARES_ENTITY (shared holds the entity id list).
CREATE TABLE IF NOT EXISTS section_edges (
    group_id TEXT NOT NULL,
    source_id TEXT NOT NULL,
    target_id TEXT NOT NULL,
    edge_type TEXT NOT NULL,
    weight REAL DEFAULT 1.0,
    shared JSON,
    PRIMARY KEY (group_id, source_id, target_id, edge_type)
);

-- Derived entity-entity edges: SIMILAR_TO / SEMANTICALLY_SIMILAR with
-- cosine weight.
CREATE TABLE IF NOT EXISTS entity_edges (
    group_id TEXT NOT NULL,
    source_id TEXT NOT NULL,
    target_id TEXT NOT NULL,
    edge_type TEXT NOT NULL,
    weight REAL DEFAULT 1.0,
    PRIMARY KEY (group_id, source_id, target_id, edge_type)
);

-- Foundation shortcut edges: APPEARS_IN_SECTION, APPEARS_IN_DOCUMENT,
-- HAS_HUB_ENTITY. count carries the supporting mention count.
CREATE TABLE IF NOT EXISTS foundation_edges (
    group_id TEXT NOT NULL,
    source_id TEXT NOT NULL,
    target_id TEXT NOT NULL,
    edge_type TEXT NOT NULL,
    count INTEGER DEFAULT 1,
    PRIMARY KEY (group_id, source_id, target_id, edge_type)
);

-- Hierarchical communities; level 0 is finest.
CREATE TABLE IF NOT EXISTS communities (
    id TEXT NOT NULL,
    group_id TEXT NOT NULL,
    level INTEGER NOT NULL,
    entity_ids JSON NOT NULL,
    title TEXT,
    summary TEXT,
    rank REAL DEFAULT 0,
    PRIMARY KEY (group_id, id)
);

-- Sub-chunk sentences; next_id forms the in-chunk NEXT chain and chunk_id
-- the PART_OF edge.
CREATE TABLE IF NOT EXISTS sentences (
    id TEXT NOT NULL,
    group_id TEXT NOT NULL,
    chunk_id TEXT NOT NULL,
    document_id TEXT NOT NULL,
    source TEXT NOT NULL,
    idx INTEGER NOT NULL,
    text TEXT NOT NULL,
    section_path JSON,
    page INTEGER,
    next_id TEXT,
    PRIMARY KEY (group_id, id)
);

-- Key/value pairs FOUND_IN documents.
CREATE TABLE IF NOT EXISTS kv_pairs (
    id TEXT NOT NULL,
    group_id TEXT NOT NULL,
    document_id TEXT NOT NULL,
    key TEXT NOT NULL,
    value TEXT,
    confidence REAL DEFAULT 0,
    page INTEGER,
    section_path JSON,
    PRIMARY KEY (group_id, id)
);

-- Per-group indexing metadata and run statistics.
CREATE TABLE IF NOT EXISTS group_meta (
    group_id TEXT PRIMARY KEY,
    indexed_at DATETIME,
    derived_fresh INTEGER DEFAULT 0,
    stats JSON
);

-- Vector indexes (cosine); partitioned by group for pre-filtered KNN.
CREATE VIRTUAL TABLE IF NOT EXISTS vec_chunks USING vec0(
    group_id TEXT partition key,
    embedding float[%[1]d] distance_metric=cosine,
    +node_id TEXT
);
CREATE VIRTUAL TABLE IF NOT EXISTS vec_sentences USING vec0(
    group_id TEXT partition key,
    embedding float[%[1]d] distance_metric=cosine,
    +node_id TEXT
);
CREATE VIRTUAL TABLE IF NOT EXISTS vec_sections USING vec0(
    group_id TEXT partition key,
    embedding float[%[1]d] distance_metric=cosine,
    +node_id TEXT
);
CREATE VIRTUAL TABLE IF NOT EXISTS vec_entities USING vec0(
    group_id TEXT partition key,
    embedding float[%[1]d] distance_metric=cosine,
    +node_id TEXT
);
CREATE VIRTUAL TABLE IF NOT EXISTS vec_communities USING vec0(
    group_id TEXT partition key,
    embedding float[%[1]d] distance_metric=cosine,
    +node_id TEXT
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(group_id, document_id);
CREATE INDEX IF NOT EXISTS idx_chunks_section ON chunks(group_id, section_id);
CREATE INDEX IF NOT EXISTS idx_sections_document ON sections(group_id, document_id);
CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(group_id, name);
CREATE INDEX IF NOT EXISTS idx_relationships_group ON relationships(group_id);
CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(group_id, source_id);
CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(group_id, target_id);
CREATE INDEX IF NOT EXISTS idx_mentions_entity ON mentions(group_id, entity_id);
CREATE INDEX IF NOT EXISTS idx_sentences_chunk ON sentences(group_id, chunk_id);
CREATE INDEX IF NOT EXISTS idx_kv_document ON kv_pairs(group_id, document_id);
`, embeddingDim)
}
