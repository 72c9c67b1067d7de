package store

import (
	"context"
	"database/sql"
	"encoding/json"
)

// ReplaceCommunities deletes the group's communities and writes the new set.
func (s *Store) ReplaceCommunities(ctx context.Context, groupID string, communities []Community) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM communities WHERE group_id = ?", groupID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO communities (id, group_id, level, entity_ids, title, summary, rank)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, c := range communities {
			ids, err := json.Marshal(c.EntityIDs)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, c.ID, groupID, c.Level, string(ids),
				c.Title, c.Summary, c.Rank); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListCommunities returns all communities in a group ordered by level then id.
func (s *Store) ListCommunities(ctx context.Context, groupID string) ([]Community, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, level, entity_ids, COALESCE(title, ''),
		       COALESCE(summary, ''), rank
		FROM communities WHERE group_id = ? ORDER BY level, id
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var communities []Community
	for rows.Next() {
		var c Community
		var ids string
		if err := rows.Scan(&c.ID, &c.GroupID, &c.Level, &ids, &c.Title,
			&c.Summary, &c.Rank); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(ids), &c.EntityIDs)
		communities = append(communities, c)
	}
	return communities, rows.Err()
}

// GetCommunitiesByID returns the named communities, skipping absent ids.
func (s *Store) GetCommunitiesByID(ctx context.Context, groupID string, ids []string) ([]Community, error) {
	var communities []Community
	for _, id := range ids {
		row := s.db.QueryRowContext(ctx, `
			SELECT id, group_id, level, entity_ids, COALESCE(title, ''),
			       COALESCE(summary, ''), rank
			FROM communities WHERE group_id = ? AND id = ?
		`, groupID, id)
		var c Community
		var entityIDs string
		err := row.Scan(&c.ID, &c.GroupID, &c.Level, &entityIDs, &c.Title,
			&c.Summary, &c.Rank)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(entityIDs), &c.EntityIDs)
		communities = append(communities, c)
	}
	return communities, nil
}

// CommunityCount returns the number of communities in a group.
func (s *Store) CommunityCount(ctx context.Context, groupID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM communities WHERE group_id = ?", groupID).Scan(&n)
	return n, err
}

// UpsertCommunityEmbeddings writes community summary vectors into the vec
// index.
func (s *Store) UpsertCommunityEmbeddings(ctx context.Context, groupID string, ids []string, vectors [][]float32) error {
	return s.upsertEmbeddings(ctx, "vec_communities", groupID, ids, vectors)
}
