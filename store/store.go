// Package store persists the multi-layer retrieval graph in SQLite with
// sqlite-vec vector indexes. All node and edge rows carry a group_id tenant
// key and every query filters by it.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// Document is a document node.
type Document struct {
	ID           string            `json:"id"`
	GroupID      string            `json:"group_id"`
	Title        string            `json:"title"`
	Source       string            `json:"source,omitempty"`
	DocumentDate string            `json:"document_date,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    string            `json:"created_at,omitempty"`
}

// Chunk is a text chunk (passage) node.
type Chunk struct {
	ID         string        `json:"id"`
	GroupID    string        `json:"group_id"`
	DocumentID string        `json:"document_id"`
	ChunkIndex int           `json:"chunk_index"`
	Text       string        `json:"text"`
	Tokens     int           `json:"tokens"`
	SectionID  string        `json:"section_id,omitempty"`
	Metadata   ChunkMetadata `json:"metadata,omitempty"`
}

// ChunkMetadata is the allow-listed subset of extraction-unit metadata kept
// on a stored chunk. Full layout data is dropped to bound row size.
type ChunkMetadata struct {
	SectionPath []string       `json:"section_path,omitempty"`
	Page        int            `json:"page,omitempty"`
	SourceURL   string         `json:"source_url,omitempty"`
	Tables      []ChunkTable   `json:"tables,omitempty"`
	Figures     []ChunkFigure  `json:"figures,omitempty"`
	KeyValues   []ChunkKeyValue `json:"key_values,omitempty"`
}

// ChunkTable is a size-capped table carried in chunk metadata.
type ChunkTable struct {
	Headers []string   `json:"headers,omitempty"`
	Rows    [][]string `json:"rows,omitempty"`
	Summary string     `json:"summary,omitempty"`
}

// ChunkFigure is a figure caption carried in chunk metadata.
type ChunkFigure struct {
	ID      string `json:"id,omitempty"`
	Caption string `json:"caption,omitempty"`
	Page    int    `json:"page,omitempty"`
}

// ChunkKeyValue is a key/value pair carried in chunk metadata.
type ChunkKeyValue struct {
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence,omitempty"`
	Page       int     `json:"page,omitempty"`
}

// Section is a derived hierarchical heading node.
type Section struct {
	ID         string `json:"id"`
	GroupID    string `json:"group_id"`
	DocumentID string `json:"document_id"`
	PathKey    string `json:"path_key"`
	Title      string `json:"title"`
	Depth      int    `json:"depth"`
	ParentID   string `json:"parent_id,omitempty"`
}

// Entity is a canonical entity node.
type Entity struct {
	ID          string            `json:"id"`
	GroupID     string            `json:"group_id"`
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	Description string            `json:"description,omitempty"`
	Aliases     []string          `json:"aliases,omitempty"`
	TextUnitIDs []string          `json:"text_unit_ids,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Degree      int               `json:"degree,omitempty"`
	ChunkCount  int               `json:"chunk_count,omitempty"`
	Importance  float64           `json:"importance,omitempty"`
	PageRank    float64           `json:"pagerank,omitempty"`
	CommunityID string            `json:"community_id,omitempty"`
}

// Relationship is a directed entity-entity edge.
type Relationship struct {
	GroupID     string  `json:"group_id"`
	SourceID    string  `json:"source_id"`
	TargetID    string  `json:"target_id"`
	Type        string  `json:"type"`
	Description string  `json:"description,omitempty"`
	Weight      float64 `json:"weight"`
}

// Community is a cluster of entities at a hierarchy level.
type Community struct {
	ID        string   `json:"id"`
	GroupID   string   `json:"group_id"`
	Level     int      `json:"level"`
	EntityIDs []string `json:"entity_ids"`
	Title     string   `json:"title,omitempty"`
	Summary   string   `json:"summary,omitempty"`
	Rank      float64  `json:"rank"`
}

// Sentence is a sub-chunk sentence node.
type Sentence struct {
	ID          string   `json:"id"`
	GroupID     string   `json:"group_id"`
	ChunkID     string   `json:"chunk_id"`
	DocumentID  string   `json:"document_id"`
	Source      string   `json:"source"` // paragraph, table_row, figure_caption
	Index       int      `json:"index_in_chunk"`
	Text        string   `json:"text"`
	SectionPath []string `json:"section_path,omitempty"`
	Page        int      `json:"page,omitempty"`
	NextID      string   `json:"next_id,omitempty"`
}

// KeyValuePair is a form field found in a document.
type KeyValuePair struct {
	ID          string   `json:"id"`
	GroupID     string   `json:"group_id"`
	DocumentID  string   `json:"document_id"`
	Key         string   `json:"key"`
	Value       string   `json:"value"`
	Confidence  float64  `json:"confidence"`
	Page        int      `json:"page,omitempty"`
	SectionPath []string `json:"section_path,omitempty"`
}

// GroupMeta records the last indexing run for a group.
type GroupMeta struct {
	GroupID      string          `json:"group_id"`
	IndexedAt    string          `json:"indexed_at"`
	DerivedFresh bool            `json:"derived_fresh"`
	Stats        json.RawMessage `json:"stats,omitempty"`
}

// Store wraps the SQLite database for all hippograph persistence.
type Store struct {
	db           *sql.DB
	embeddingDim int
}

// New opens (or creates) a SQLite database at the given path and initialises
// the schema including the sqlite-vec virtual tables.
func New(dbPath string, embeddingDim int) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &Store{db: db, embeddingDim: embeddingDim}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for diagnostic access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// EmbeddingDim returns the configured embedding dimension.
func (s *Store) EmbeddingDim() int {
	return s.embeddingDim
}

// DeleteGroup removes every node and edge belonging to a group. Used by
// reindex=true before a fresh indexing run.
func (s *Store) DeleteGroup(ctx context.Context, groupID string) error {
	tables := []string{
		"documents", "chunks", "sections", "entities", "relationships",
		"mentions", "section_edges", "entity_edges", "foundation_edges",
		"communities", "sentences", "kv_pairs",
		"vec_chunks", "vec_sentences", "vec_sections", "vec_entities", "vec_communities",
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, t := range tables {
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf("DELETE FROM %s WHERE group_id = ?", t), groupID); err != nil {
				return fmt.Errorf("clearing %s: %w", t, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM group_meta WHERE group_id = ?", groupID); err != nil {
			return err
		}
		return nil
	})
}

// UpsertGroupMeta records completion of an indexing run.
func (s *Store) UpsertGroupMeta(ctx context.Context, meta GroupMeta) error {
	fresh := 0
	if meta.DerivedFresh {
		fresh = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_meta (group_id, indexed_at, derived_fresh, stats)
		VALUES (?, CURRENT_TIMESTAMP, ?, ?)
		ON CONFLICT(group_id) DO UPDATE SET
			indexed_at = CURRENT_TIMESTAMP,
			derived_fresh = excluded.derived_fresh,
			stats = excluded.stats
	`, meta.GroupID, fresh, string(meta.Stats))
	return err
}

// GetGroupMeta returns the indexing metadata for a group, or nil if the
// group was never indexed.
func (s *Store) GetGroupMeta(ctx context.Context, groupID string) (*GroupMeta, error) {
	var meta GroupMeta
	var fresh int
	var stats sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT group_id, COALESCE(indexed_at, ''), derived_fresh, stats
		FROM group_meta WHERE group_id = ?
	`, groupID).Scan(&meta.GroupID, &meta.IndexedAt, &fresh, &stats)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	meta.DerivedFresh = fresh != 0
	meta.Stats = json.RawMessage(stats.String)
	return &meta, nil
}

// GroupStats holds counts of key graph objects for a group.
type GroupStats struct {
	Documents     int `json:"documents"`
	Chunks        int `json:"chunks"`
	Sections      int `json:"sections"`
	Entities      int `json:"entities"`
	Relationships int `json:"relationships"`
	Mentions      int `json:"mentions"`
	Communities   int `json:"communities"`
	Sentences     int `json:"sentences"`
}

// Stats returns object counts for a group.
func (s *Store) Stats(ctx context.Context, groupID string) (*GroupStats, error) {
	stats := &GroupStats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM documents WHERE group_id = ?", &stats.Documents},
		{"SELECT COUNT(*) FROM chunks WHERE group_id = ?", &stats.Chunks},
		{"SELECT COUNT(*) FROM sections WHERE group_id = ?", &stats.Sections},
		{"SELECT COUNT(*) FROM entities WHERE group_id = ?", &stats.Entities},
		{"SELECT COUNT(*) FROM relationships WHERE group_id = ?", &stats.Relationships},
		{"SELECT COUNT(*) FROM mentions WHERE group_id = ?", &stats.Mentions},
		{"SELECT COUNT(*) FROM communities WHERE group_id = ?", &stats.Communities},
		{"SELECT COUNT(*) FROM sentences WHERE group_id = ?", &stats.Sentences},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query, groupID).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}
	return stats, nil
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// serializeFloat32 converts a float32 slice to little-endian bytes for
// sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// marshalJSON serialises a value to a JSON string, returning "" for nil-ish
// values so NULLable JSON columns stay compact.
func marshalJSON(v interface{}) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	s := string(data)
	if s == "null" || s == "{}" || s == "[]" {
		return ""
	}
	return s
}

func unmarshalStrings(raw sql.NullString) []string {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(raw.String), &out)
	return out
}

func unmarshalStringMap(raw sql.NullString) map[string]string {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var out map[string]string
	_ = json.Unmarshal([]byte(raw.String), &out)
	return out
}
