package store

import (
	"context"
	"database/sql"
)

// InsertDocument writes a document node. Existing rows with the same id are
// replaced so a reindex of a single document is idempotent.
func (s *Store) InsertDocument(ctx context.Context, doc Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO documents (id, group_id, title, source, document_date, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.GroupID, doc.Title, doc.Source, doc.DocumentDate, marshalJSON(doc.Metadata))
	return err
}

// GetDocument returns a single document or nil when absent.
func (s *Store) GetDocument(ctx context.Context, groupID, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, group_id, title, COALESCE(source, ''), COALESCE(document_date, ''),
		       metadata, COALESCE(created_at, '')
		FROM documents WHERE group_id = ? AND id = ?
	`, groupID, id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return doc, err
}

// ListDocuments returns all documents in a group ordered by id.
func (s *Store) ListDocuments(ctx context.Context, groupID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, title, COALESCE(source, ''), COALESCE(document_date, ''),
		       metadata, COALESCE(created_at, '')
		FROM documents WHERE group_id = ? ORDER BY id
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// DocumentCount returns the number of documents in a group.
func (s *Store) DocumentCount(ctx context.Context, groupID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM documents WHERE group_id = ?", groupID).Scan(&n)
	return n, err
}

// InsertKeyValuePairs writes form fields extracted from a document.
func (s *Store) InsertKeyValuePairs(ctx context.Context, pairs []KeyValuePair) error {
	if len(pairs) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO kv_pairs
				(id, group_id, document_id, key, value, confidence, page, section_path)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, p := range pairs {
			if _, err := stmt.ExecContext(ctx, p.ID, p.GroupID, p.DocumentID,
				p.Key, p.Value, p.Confidence, p.Page, marshalJSON(p.SectionPath)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListKeyValuePairs returns the form fields of a document.
func (s *Store) ListKeyValuePairs(ctx context.Context, groupID, documentID string) ([]KeyValuePair, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, document_id, key, COALESCE(value, ''), confidence,
		       COALESCE(page, 0), section_path
		FROM kv_pairs WHERE group_id = ? AND document_id = ? ORDER BY id
	`, groupID, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []KeyValuePair
	for rows.Next() {
		var p KeyValuePair
		var path sql.NullString
		if err := rows.Scan(&p.ID, &p.GroupID, &p.DocumentID, &p.Key, &p.Value,
			&p.Confidence, &p.Page, &path); err != nil {
			return nil, err
		}
		p.SectionPath = unmarshalStrings(path)
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var meta sql.NullString
	if err := row.Scan(&doc.ID, &doc.GroupID, &doc.Title, &doc.Source,
		&doc.DocumentDate, &meta, &doc.CreatedAt); err != nil {
		return nil, err
	}
	doc.Metadata = unmarshalStringMap(meta)
	return &doc, nil
}
