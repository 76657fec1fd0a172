// Package social reads the platform's follow graph and decides whether two
// users are allowed to share a conversation. The follow edges are owned by
// the REST layer's social endpoints; this package only reads them.
package social

import (
	"context"
	"database/sql"
	"fmt"
)

// FollowStore reads follow edges from PostgreSQL.
type FollowStore struct {
	db *sql.DB
}

// NewFollowStore creates a FollowStore backed by the given database handle.
func NewFollowStore(db *sql.DB) *FollowStore {
	return &FollowStore{db: db}
}

// FollowExists reports whether a directed follow edge from follower to
// followed exists. The follows table carries no uniqueness beyond the pair,
// so LIMIT 1 keeps the lookup cheap either way.
func (s *FollowStore) FollowExists(ctx context.Context, followerID, followedID int64) (bool, error) {
	const query = `
		SELECT 1
		FROM follows
		WHERE follower_id = $1 AND followed_id = $2
		LIMIT 1`

	var one int
	err := s.db.QueryRowContext(ctx, query, followerID, followedID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("social: follow lookup: %w", err)
	}
	return true, nil
}
