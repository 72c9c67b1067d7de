package store

import (
	"context"
	"database/sql"
)

// UpsertEntities writes canonical entity rows in one transaction.
func (s *Store) UpsertEntities(ctx context.Context, entities []Entity) error {
	if len(entities) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO entities
				(id, group_id, name, entity_type, description, aliases, text_unit_ids,
				 metadata, degree, chunk_count, importance, pagerank, community_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, e := range entities {
			if _, err := stmt.ExecContext(ctx, e.ID, e.GroupID, e.Name, e.Type,
				e.Description, marshalJSON(e.Aliases), marshalJSON(e.TextUnitIDs),
				marshalJSON(e.Metadata), e.Degree, e.ChunkCount, e.Importance,
				e.PageRank, nullIfEmpty(e.CommunityID)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListEntities returns all entities in a group ordered by id.
func (s *Store) ListEntities(ctx context.Context, groupID string) ([]Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, name, entity_type, COALESCE(description, ''),
		       aliases, text_unit_ids, metadata, degree, chunk_count,
		       importance, pagerank, COALESCE(community_id, '')
		FROM entities WHERE group_id = ? ORDER BY id
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, *e)
	}
	return entities, rows.Err()
}

// GetEntitiesByID returns the named entities, skipping ids that do not exist.
func (s *Store) GetEntitiesByID(ctx context.Context, groupID string, ids []string) ([]Entity, error) {
	var entities []Entity
	for _, id := range ids {
		row := s.db.QueryRowContext(ctx, `
			SELECT id, group_id, name, entity_type, COALESCE(description, ''),
			       aliases, text_unit_ids, metadata, degree, chunk_count,
			       importance, pagerank, COALESCE(community_id, '')
			FROM entities WHERE group_id = ? AND id = ?
		`, groupID, id)
		e, err := scanEntity(row)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		entities = append(entities, *e)
	}
	return entities, nil
}

func scanEntity(row rowScanner) (*Entity, error) {
	var e Entity
	var aliases, textUnits, meta sql.NullString
	if err := row.Scan(&e.ID, &e.GroupID, &e.Name, &e.Type, &e.Description,
		&aliases, &textUnits, &meta, &e.Degree, &e.ChunkCount,
		&e.Importance, &e.PageRank, &e.CommunityID); err != nil {
		return nil, err
	}
	e.Aliases = unmarshalStrings(aliases)
	e.TextUnitIDs = unmarshalStrings(textUnits)
	e.Metadata = unmarshalStringMap(meta)
	return &e, nil
}

// InsertRelationships writes entity-entity edges in one transaction.
func (s *Store) InsertRelationships(ctx context.Context, rels []Relationship) error {
	if len(rels) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO relationships
				(group_id, source_id, target_id, relation_type, description, weight)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range rels {
			if _, err := stmt.ExecContext(ctx, r.GroupID, r.SourceID, r.TargetID,
				r.Type, r.Description, r.Weight); err != nil {
				return err
			}
		}
		return nil
	})
}

// InsertMentions writes chunk-entity mention edges, ignoring duplicates.
func (s *Store) InsertMentions(ctx context.Context, groupID string, chunkToEntities map[string][]string) error {
	if len(chunkToEntities) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO mentions (group_id, chunk_id, entity_id)
			VALUES (?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for chunkID, entityIDs := range chunkToEntities {
			for _, entityID := range entityIDs {
				if _, err := stmt.ExecContext(ctx, groupID, chunkID, entityID); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Mention is one chunk-entity mention edge.
type Mention struct {
	ChunkID  string
	EntityID string
}

// ListMentions returns all mention edges in a group in deterministic order.
func (s *Store) ListMentions(ctx context.Context, groupID string) ([]Mention, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, entity_id FROM mentions
		WHERE group_id = ? ORDER BY chunk_id, entity_id
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mentions []Mention
	for rows.Next() {
		var m Mention
		if err := rows.Scan(&m.ChunkID, &m.EntityID); err != nil {
			return nil, err
		}
		mentions = append(mentions, m)
	}
	return mentions, rows.Err()
}

// ListRelationships returns all relationship edges in a group in insertion
// order.
func (s *Store) ListRelationships(ctx context.Context, groupID string) ([]Relationship, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT group_id, source_id, target_id, relation_type,
		       COALESCE(description, ''), weight
		FROM relationships WHERE group_id = ? ORDER BY rowid
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rels []Relationship
	for rows.Next() {
		var r Relationship
		if err := rows.Scan(&r.GroupID, &r.SourceID, &r.TargetID, &r.Type,
			&r.Description, &r.Weight); err != nil {
			return nil, err
		}
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

// UpsertEntityEmbeddings writes entity vectors into the vec index.
func (s *Store) UpsertEntityEmbeddings(ctx context.Context, groupID string, ids []string, vectors [][]float32) error {
	return s.upsertEmbeddings(ctx, "vec_entities", groupID, ids, vectors)
}

// UpdateEntityStats refreshes degree, chunk_count and importance from the
// edge and mention tables.
func (s *Store) UpdateEntityStats(ctx context.Context, groupID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE entities SET degree = (
				SELECT COUNT(*) FROM relationships r
				WHERE r.group_id = entities.group_id
				  AND (r.source_id = entities.id OR r.target_id = entities.id)
			) WHERE group_id = ?
		`, groupID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE entities SET chunk_count = (
				SELECT COUNT(*) FROM mentions m
				WHERE m.group_id = entities.group_id AND m.entity_id = entities.id
			) WHERE group_id = ?
		`, groupID); err != nil {
			return err
		}
		return nil
	})
}

// SetEntityImportance writes per-entity importance scores.
func (s *Store) SetEntityImportance(ctx context.Context, groupID string, scores map[string]float64) error {
	return s.setEntityScores(ctx, "importance", groupID, scores)
}

// SetEntityPageRank writes per-entity PageRank scores.
func (s *Store) SetEntityPageRank(ctx context.Context, groupID string, scores map[string]float64) error {
	return s.setEntityScores(ctx, "pagerank", groupID, scores)
}

func (s *Store) setEntityScores(ctx context.Context, column, groupID string, scores map[string]float64) error {
	if len(scores) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			"UPDATE entities SET "+column+" = ? WHERE group_id = ? AND id = ?")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for id, score := range scores {
			if _, err := stmt.ExecContext(ctx, score, groupID, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetEntityCommunities assigns entities to their level-0 community.
func (s *Store) SetEntityCommunities(ctx context.Context, groupID string, assignment map[string]string) error {
	if len(assignment) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			"UPDATE entities SET community_id = ? WHERE group_id = ? AND id = ?")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for entityID, communityID := range assignment {
			if _, err := stmt.ExecContext(ctx, communityID, groupID, entityID); err != nil {
				return err
			}
		}
		return nil
	})
}

// EntityEdge is a derived similarity edge between two entities.
type EntityEdge struct {
	GroupID  string  `json:"group_id"`
	SourceID string  `json:"source_id"`
	TargetID string  `json:"target_id"`
	Type     string  `json:"type"`
	Weight   float64 `json:"weight"`
}

// ReplaceEntityEdges deletes the group's derived entity edges and writes the
// new set.
func (s *Store) ReplaceEntityEdges(ctx context.Context, groupID string, edges []EntityEdge) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM entity_edges WHERE group_id = ?", groupID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO entity_edges
				(group_id, source_id, target_id, edge_type, weight)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, e := range edges {
			if _, err := stmt.ExecContext(ctx, groupID, e.SourceID, e.TargetID,
				e.Type, e.Weight); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListEntityEdges returns the derived entity edges of a type with weight at
// or above the threshold.
func (s *Store) ListEntityEdges(ctx context.Context, groupID, edgeType string, minWeight float64) ([]EntityEdge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, target_id, edge_type, weight
		FROM entity_edges
		WHERE group_id = ? AND edge_type = ? AND weight >= ?
		ORDER BY source_id, target_id
	`, groupID, edgeType, minWeight)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []EntityEdge
	for rows.Next() {
		e := EntityEdge{GroupID: groupID}
		if err := rows.Scan(&e.SourceID, &e.TargetID, &e.Type, &e.Weight); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// FoundationEdge is a derived shortcut edge between heterogeneous nodes.
type FoundationEdge struct {
	GroupID  string `json:"group_id"`
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
	Type     string `json:"type"`
	Count    int    `json:"count"`
}

// ReplaceFoundationEdges deletes the group's foundation edges and writes the
// new set.
func (s *Store) ReplaceFoundationEdges(ctx context.Context, groupID string, edges []FoundationEdge) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM foundation_edges WHERE group_id = ?", groupID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO foundation_edges
				(group_id, source_id, target_id, edge_type, count)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, e := range edges {
			if _, err := stmt.ExecContext(ctx, groupID, e.SourceID, e.TargetID,
				e.Type, e.Count); err != nil {
				return err
			}
		}
		return nil
	})
}

// TopEntitiesInSections returns the highest-importance entities mentioned in
// chunks assigned to the given sections.
func (s *Store) TopEntitiesInSections(ctx context.Context, groupID string, sectionIDs []string, limit int) ([]string, error) {
	if len(sectionIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT DISTINCT e.id
		FROM entities e
		JOIN mentions m ON m.group_id = e.group_id AND m.entity_id = e.id
		JOIN chunks c ON c.group_id = m.group_id AND c.id = m.chunk_id
		WHERE e.group_id = ? AND c.section_id IN (` + placeholders(len(sectionIDs)) + `)
		ORDER BY e.importance DESC, e.id
		LIMIT ?`
	args := make([]interface{}, 0, len(sectionIDs)+2)
	args = append(args, groupID)
	for _, id := range sectionIDs {
		args = append(args, id)
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	out := make([]byte, 0, n*2-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}
