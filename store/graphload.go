package store

import (
	"context"
	"database/sql"
)

// TripleRow is a (subject, predicate, object) fact read from the
// relationship table for the triple index.
type TripleRow struct {
	SubjectID   string `json:"subject_id"`
	SubjectName string `json:"subject_name"`
	Predicate   string `json:"predicate"`
	ObjectID    string `json:"object_id"`
	ObjectName  string `json:"object_name"`
}

// LoadTriples returns the group's relationship facts with non-empty
// descriptions, joined to the entity names. Row order is deterministic.
func (s *Store) LoadTriples(ctx context.Context, groupID string) ([]TripleRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.source_id, src.name, r.description, r.target_id, tgt.name
		FROM relationships r
		JOIN entities src ON src.group_id = r.group_id AND src.id = r.source_id
		JOIN entities tgt ON tgt.group_id = r.group_id AND tgt.id = r.target_id
		WHERE r.group_id = ? AND r.description IS NOT NULL AND r.description != ''
		ORDER BY r.rowid
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var triples []TripleRow
	for rows.Next() {
		var t TripleRow
		if err := rows.Scan(&t.SubjectID, &t.SubjectName, &t.Predicate,
			&t.ObjectID, &t.ObjectName); err != nil {
			return nil, err
		}
		triples = append(triples, t)
	}
	return triples, rows.Err()
}

// PPRNode is a node loaded for the in-memory random walk graph.
type PPRNode struct {
	ID   string
	Name string
}

// PPREdge is a weighted undirected edge loaded for the random walk graph.
type PPREdge struct {
	SourceID string
	TargetID string
	Weight   float64
}

// PPRData is everything needed to build a group's in-memory random walk
// graph: entity nodes, passage nodes, optional section nodes, and the edges
// between them.
type PPRData struct {
	Entities       []PPRNode
	ChunkIDs       []string
	SectionIDs     []string
	RelationEdges  []PPREdge
	Mentions       []PPREdge // chunk -> entity
	SynonymEdges   []PPREdge // entity -> entity, cosine weight
	ChunkSections  []PPREdge // chunk -> section
	SectionSimilar []PPREdge // section -> section, cosine weight
}

// LoadPPRData reads the group's graph in deterministic order.
// synonymThreshold filters derived entity similarity edges.
func (s *Store) LoadPPRData(ctx context.Context, groupID string, synonymThreshold float64) (*PPRData, error) {
	data := &PPRData{}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name FROM entities WHERE group_id = ? ORDER BY id", groupID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var n PPRNode
		if err := rows.Scan(&n.ID, &n.Name); err != nil {
			rows.Close()
			return nil, err
		}
		data.Entities = append(data.Entities, n)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT id, COALESCE(section_id, '') FROM chunks
		WHERE group_id = ? ORDER BY document_id, chunk_index
	`, groupID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var chunkID, sectionID string
		if err := rows.Scan(&chunkID, &sectionID); err != nil {
			rows.Close()
			return nil, err
		}
		data.ChunkIDs = append(data.ChunkIDs, chunkID)
		if sectionID != "" {
			data.ChunkSections = append(data.ChunkSections,
				PPREdge{SourceID: chunkID, TargetID: sectionID, Weight: 1})
		}
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx,
		"SELECT id FROM sections WHERE group_id = ? ORDER BY id", groupID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		data.SectionIDs = append(data.SectionIDs, id)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT source_id, target_id, weight FROM relationships
		WHERE group_id = ? ORDER BY rowid
	`, groupID)
	if err != nil {
		return nil, err
	}
	data.RelationEdges, err = scanPPREdges(rows)
	if err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT chunk_id, entity_id, 1.0 FROM mentions
		WHERE group_id = ? ORDER BY chunk_id, entity_id
	`, groupID)
	if err != nil {
		return nil, err
	}
	data.Mentions, err = scanPPREdges(rows)
	if err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT source_id, target_id, weight FROM entity_edges
		WHERE group_id = ? AND weight >= ? ORDER BY source_id, target_id
	`, groupID, synonymThreshold)
	if err != nil {
		return nil, err
	}
	data.SynonymEdges, err = scanPPREdges(rows)
	if err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT source_id, target_id, weight FROM section_edges
		WHERE group_id = ? AND edge_type = 'SEMANTICALLY_SIMILAR'
		ORDER BY source_id, target_id
	`, groupID)
	if err != nil {
		return nil, err
	}
	data.SectionSimilar, err = scanPPREdges(rows)
	if err != nil {
		return nil, err
	}

	return data, nil
}

func scanPPREdges(rows *sql.Rows) ([]PPREdge, error) {
	var edges []PPREdge
	for rows.Next() {
		var e PPREdge
		if err := rows.Scan(&e.SourceID, &e.TargetID, &e.Weight); err != nil {
			rows.Close()
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, closeRows(rows)
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	return rows.Close()
}
