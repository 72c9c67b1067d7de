package store

import (
	"context"
	"database/sql"
	"encoding/json"
)

// InsertChunks writes chunk rows in a single transaction.
func (s *Store) InsertChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO chunks
				(id, group_id, document_id, chunk_index, text, tokens, section_id, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, c := range chunks {
			meta := ""
			if data, err := json.Marshal(c.Metadata); err == nil && string(data) != "{}" {
				meta = string(data)
			}
			if _, err := stmt.ExecContext(ctx, c.ID, c.GroupID, c.DocumentID,
				c.ChunkIndex, c.Text, c.Tokens, nullIfEmpty(c.SectionID), meta); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpsertChunkEmbeddings writes chunk vectors into the vec index. ids and
// vectors are parallel slices.
func (s *Store) UpsertChunkEmbeddings(ctx context.Context, groupID string, ids []string, vectors [][]float32) error {
	return s.upsertEmbeddings(ctx, "vec_chunks", groupID, ids, vectors)
}

// SetChunkSection assigns a chunk to its leaf section.
func (s *Store) SetChunkSection(ctx context.Context, groupID, chunkID, sectionID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE chunks SET section_id = ? WHERE group_id = ? AND id = ?",
		sectionID, groupID, chunkID)
	return err
}

// GetChunksByDocument returns a document's chunks in index order.
func (s *Store) GetChunksByDocument(ctx context.Context, groupID, documentID string) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, document_id, chunk_index, text, COALESCE(tokens, 0),
		       COALESCE(section_id, ''), metadata
		FROM chunks WHERE group_id = ? AND document_id = ? ORDER BY chunk_index
	`, groupID, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

// GetChunksByGroup returns every chunk in a group, ordered by document then
// index so downstream passes are deterministic.
func (s *Store) GetChunksByGroup(ctx context.Context, groupID string) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, document_id, chunk_index, text, COALESCE(tokens, 0),
		       COALESCE(section_id, ''), metadata
		FROM chunks WHERE group_id = ? ORDER BY document_id, chunk_index
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

func scanChunks(rows *sql.Rows) ([]Chunk, error) {
	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var meta sql.NullString
		if err := rows.Scan(&c.ID, &c.GroupID, &c.DocumentID, &c.ChunkIndex,
			&c.Text, &c.Tokens, &c.SectionID, &meta); err != nil {
			return nil, err
		}
		if meta.Valid && meta.String != "" {
			_ = json.Unmarshal([]byte(meta.String), &c.Metadata)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// upsertEmbeddings replaces vector rows keyed by node_id in the given vec0
// table. vec0 has no upsert, so stale rows are deleted first.
func (s *Store) upsertEmbeddings(ctx context.Context, table, groupID string, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		del, err := tx.PrepareContext(ctx,
			"DELETE FROM "+table+" WHERE group_id = ? AND node_id = ?")
		if err != nil {
			return err
		}
		defer del.Close()
		ins, err := tx.PrepareContext(ctx,
			"INSERT INTO "+table+" (group_id, embedding, node_id) VALUES (?, ?, ?)")
		if err != nil {
			return err
		}
		defer ins.Close()
		for i, id := range ids {
			if len(vectors[i]) == 0 {
				continue
			}
			if _, err := del.ExecContext(ctx, groupID, id); err != nil {
				return err
			}
			if _, err := ins.ExecContext(ctx, groupID, serializeFloat32(vectors[i]), id); err != nil {
				return err
			}
		}
		return nil
	})
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
