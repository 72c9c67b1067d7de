package store

import (
	"context"
	"database/sql"
)

// UpsertSections writes section rows in one transaction.
func (s *Store) UpsertSections(ctx context.Context, sections []Section) error {
	if len(sections) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO sections
				(id, group_id, document_id, path_key, title, depth, parent_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, sec := range sections {
			if _, err := stmt.ExecContext(ctx, sec.ID, sec.GroupID, sec.DocumentID,
				sec.PathKey, sec.Title, sec.Depth, nullIfEmpty(sec.ParentID)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListSections returns all sections in a group ordered by document, depth, id.
func (s *Store) ListSections(ctx context.Context, groupID string) ([]Section, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, document_id, path_key, title, depth, COALESCE(parent_id, '')
		FROM sections WHERE group_id = ? ORDER BY document_id, depth, id
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sections []Section
	for rows.Next() {
		var sec Section
		if err := rows.Scan(&sec.ID, &sec.GroupID, &sec.DocumentID, &sec.PathKey,
			&sec.Title, &sec.Depth, &sec.ParentID); err != nil {
			return nil, err
		}
		sections = append(sections, sec)
	}
	return sections, rows.Err()
}

// UpsertSectionEmbeddings writes section vectors into the vec index.
func (s *Store) UpsertSectionEmbeddings(ctx context.Context, groupID string, ids []string, vectors [][]float32) error {
	return s.upsertEmbeddings(ctx, "vec_sections", groupID, ids, vectors)
}

// SectionEdge is a derived edge between two sections.
type SectionEdge struct {
	GroupID  string   `json:"group_id"`
	SourceID string   `json:"source_id"`
	TargetID string   `json:"target_id"`
	Type     string   `json:"type"`
	Weight   float64  `json:"weight"`
	Shared   []string `json:"shared,omitempty"`
}

// ReplaceSectionEdges deletes the group's derived section edges and writes
// the new set.
func (s *Store) ReplaceSectionEdges(ctx context.Context, groupID string, edges []SectionEdge) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM section_edges WHERE group_id = ?", groupID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO section_edges
				(group_id, source_id, target_id, edge_type, weight, shared)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, e := range edges {
			if _, err := stmt.ExecContext(ctx, groupID, e.SourceID, e.TargetID,
				e.Type, e.Weight, marshalJSON(e.Shared)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListSectionEdges returns the derived section edges for a group.
func (s *Store) ListSectionEdges(ctx context.Context, groupID string) ([]SectionEdge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, target_id, edge_type, weight, shared
		FROM section_edges WHERE group_id = ? ORDER BY source_id, target_id
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []SectionEdge
	for rows.Next() {
		e := SectionEdge{GroupID: groupID}
		var shared sql.NullString
		if err := rows.Scan(&e.SourceID, &e.TargetID, &e.Type, &e.Weight, &shared); err != nil {
			return nil, err
		}
		e.Shared = unmarshalStrings(shared)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
