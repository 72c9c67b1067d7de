package store

import (
	"context"
	"database/sql"
)

// InsertSentences writes sentence rows in one transaction.
func (s *Store) InsertSentences(ctx context.Context, sentences []Sentence) error {
	if len(sentences) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO sentences
				(id, group_id, chunk_id, document_id, source, idx, text,
				 section_path, page, next_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, sent := range sentences {
			if _, err := stmt.ExecContext(ctx, sent.ID, sent.GroupID, sent.ChunkID,
				sent.DocumentID, sent.Source, sent.Index, sent.Text,
				marshalJSON(sent.SectionPath), sent.Page, nullIfEmpty(sent.NextID)); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpsertSentenceEmbeddings writes sentence vectors into the vec index.
func (s *Store) UpsertSentenceEmbeddings(ctx context.Context, groupID string, ids []string, vectors [][]float32) error {
	return s.upsertEmbeddings(ctx, "vec_sentences", groupID, ids, vectors)
}

// GetSentencesByID returns the named sentences, skipping absent ids.
func (s *Store) GetSentencesByID(ctx context.Context, groupID string, ids []string) ([]Sentence, error) {
	var sentences []Sentence
	for _, id := range ids {
		row := s.db.QueryRowContext(ctx, `
			SELECT id, group_id, chunk_id, document_id, source, idx, text,
			       section_path, COALESCE(page, 0), COALESCE(next_id, '')
			FROM sentences WHERE group_id = ? AND id = ?
		`, groupID, id)
		var sent Sentence
		var path sql.NullString
		err := row.Scan(&sent.ID, &sent.GroupID, &sent.ChunkID, &sent.DocumentID,
			&sent.Source, &sent.Index, &sent.Text, &path, &sent.Page, &sent.NextID)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		sent.SectionPath = unmarshalStrings(path)
		sentences = append(sentences, sent)
	}
	return sentences, nil
}
