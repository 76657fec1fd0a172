package social

import "context"

// EdgeChecker is the follow-edge lookup the guard runs its policy over.
// *FollowStore satisfies it; tests substitute an in-memory graph.
type EdgeChecker interface {
	FollowExists(ctx context.Context, followerID, followedID int64) (bool, error)
}

// Guard decides whether a conversation between two users may be created or
// joined. Policy: strict mutual follow — an edge in each direction must
// exist; one-directional following is insufficient.
type Guard struct {
	edges EdgeChecker
}

// NewGuard creates a Guard over the given edge source.
func NewGuard(edges EdgeChecker) *Guard {
	return &Guard{edges: edges}
}

// CanConverse reports whether userA and userB mutually follow each other.
// The two lookups are independent; both must find an edge.
func (g *Guard) CanConverse(ctx context.Context, userA, userB int64) (bool, error) {
	aToB, err := g.edges.FollowExists(ctx, userA, userB)
	if err != nil {
		return false, err
	}
	if !aToB {
		return false, nil
	}

	bToA, err := g.edges.FollowExists(ctx, userB, userA)
	if err != nil {
		return false, err
	}
	return bToA, nil
}
