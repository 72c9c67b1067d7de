package store

import (
	"context"
	"database/sql"
	"encoding/json"
)

// SearchHit is one vector search result. Similarity is 1 - cosine distance.
type SearchHit struct {
	NodeID     string  `json:"node_id"`
	Similarity float64 `json:"similarity"`
}

// ChunkVectorSearch returns the k nearest chunks to the query vector within
// a group.
func (s *Store) ChunkVectorSearch(ctx context.Context, groupID string, query []float32, k int) ([]SearchHit, error) {
	return s.vectorSearch(ctx, "vec_chunks", groupID, query, k)
}

// SentenceVectorSearch returns the k nearest sentences.
func (s *Store) SentenceVectorSearch(ctx context.Context, groupID string, query []float32, k int) ([]SearchHit, error) {
	return s.vectorSearch(ctx, "vec_sentences", groupID, query, k)
}

// SectionVectorSearch returns the k nearest sections.
func (s *Store) SectionVectorSearch(ctx context.Context, groupID string, query []float32, k int) ([]SearchHit, error) {
	return s.vectorSearch(ctx, "vec_sections", groupID, query, k)
}

// EntityVectorSearch returns the k nearest entities.
func (s *Store) EntityVectorSearch(ctx context.Context, groupID string, query []float32, k int) ([]SearchHit, error) {
	return s.vectorSearch(ctx, "vec_entities", groupID, query, k)
}

// CommunityVectorSearch returns the k nearest community summaries.
func (s *Store) CommunityVectorSearch(ctx context.Context, groupID string, query []float32, k int) ([]SearchHit, error) {
	return s.vectorSearch(ctx, "vec_communities", groupID, query, k)
}

func (s *Store) vectorSearch(ctx context.Context, table, groupID string, query []float32, k int) ([]SearchHit, error) {
	if k <= 0 || len(query) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT node_id, distance FROM `+table+`
		WHERE group_id = ? AND embedding MATCH ? AND k = ?
		ORDER BY distance
	`, groupID, serializeFloat32(query), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var hit SearchHit
		var distance float64
		if err := rows.Scan(&hit.NodeID, &distance); err != nil {
			return nil, err
		}
		hit.Similarity = 1 - distance
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// EvidenceChunk is a chunk joined with its document and section context for
// answer assembly.
type EvidenceChunk struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	ChunkIndex    int      `json:"chunk_index"`
	DocumentID    string   `json:"document_id"`
	DocumentTitle string   `json:"document_title"`
	SectionID     string   `json:"section_id,omitempty"`
	SectionTitle  string   `json:"section_title,omitempty"`
	SectionPath   []string `json:"section_path,omitempty"`
	Page          int      `json:"page,omitempty"`
}

// FetchChunks returns the named chunks with document and section context in
// the order the ids were given.
func (s *Store) FetchChunks(ctx context.Context, groupID string, ids []string) ([]EvidenceChunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
		SELECT c.id, c.text, c.chunk_index, c.document_id, d.title,
		       COALESCE(c.section_id, ''), COALESCE(sec.title, ''), c.metadata
		FROM chunks c
		JOIN documents d ON d.group_id = c.group_id AND d.id = c.document_id
		LEFT JOIN sections sec ON sec.group_id = c.group_id AND sec.id = c.section_id
		WHERE c.group_id = ? AND c.id IN (` + placeholders(len(ids)) + `)`
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, groupID)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]EvidenceChunk, len(ids))
	for rows.Next() {
		var ec EvidenceChunk
		var meta sql.NullString
		if err := rows.Scan(&ec.ID, &ec.Text, &ec.ChunkIndex, &ec.DocumentID,
			&ec.DocumentTitle, &ec.SectionID, &ec.SectionTitle, &meta); err != nil {
			return nil, err
		}
		if meta.Valid && meta.String != "" {
			var cm ChunkMetadata
			if json.Unmarshal([]byte(meta.String), &cm) == nil {
				ec.SectionPath = cm.SectionPath
				ec.Page = cm.Page
			}
		}
		byID[ec.ID] = ec
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]EvidenceChunk, 0, len(ids))
	for _, id := range ids {
		if ec, ok := byID[id]; ok {
			out = append(out, ec)
		}
	}
	return out, nil
}
