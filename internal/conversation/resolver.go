package conversation

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/campuslink/chat-service/internal/metrics"
)

// PairStore is the storage surface the resolver needs. *Store satisfies it;
// tests substitute an in-memory implementation.
type PairStore interface {
	FindByPair(ctx context.Context, low, high int64) (*Conversation, error)
	Insert(ctx context.Context, low, high int64) (*Conversation, error)
}

// Resolver maps an unordered pair of user identifiers to a single
// conversation id, creating the row lazily on first contact.
type Resolver struct {
	store PairStore
}

// NewResolver creates a Resolver over the given store.
func NewResolver(store PairStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the conversation id for the pair {userA, userB},
// creating the row if absent. Two concurrent first-contact sends for the
// same pair must converge to one row: the insert relies on the unique
// constraint on the canonical pair, and a conflict is reconciled by
// re-querying for the row the competing request created.
func (r *Resolver) Resolve(ctx context.Context, userA, userB int64) (int64, error) {
	low, high := CanonicalPair(userA, userB)

	existing, err := r.store.FindByPair(ctx, low, high)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return existing.ID, nil
	}

	created, err := r.store.Insert(ctx, low, high)
	if err == nil {
		return created.ID, nil
	}
	if !errors.Is(err, ErrDuplicatePair) {
		return 0, err
	}

	// Lost the race: another request inserted the row between our lookup
	// and our insert. Re-query and return the winner's row.
	metrics.ResolveConflictsTotal.Inc()
	log.Printf("conversation: pair %d-%d created concurrently, reconciling", low, high)

	existing, err = r.store.FindByPair(ctx, low, high)
	if err != nil {
		return 0, err
	}
	if existing == nil {
		// Unique violation with no row on re-query should not happen while
		// the chat layer never deletes conversations.
		return 0, fmt.Errorf("conversation: pair %d-%d conflicted but not found", low, high)
	}
	return existing.ID, nil
}
