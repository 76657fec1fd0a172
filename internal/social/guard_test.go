package social

import (
	"context"
	"errors"
	"testing"
)

// fakeEdges is an in-memory follow graph keyed by (follower, followed).
type fakeEdges struct {
	edges map[[2]int64]bool
	err   error
}

func (f *fakeEdges) FollowExists(_ context.Context, followerID, followedID int64) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.edges[[2]int64{followerID, followedID}], nil
}

func newFakeEdges(pairs ...[2]int64) *fakeEdges {
	f := &fakeEdges{edges: make(map[[2]int64]bool)}
	for _, p := range pairs {
		f.edges[p] = true
	}
	return f
}

func TestCanConverse_MutualFollow(t *testing.T) {
	g := NewGuard(newFakeEdges([2]int64{5, 9}, [2]int64{9, 5}))

	ok, err := g.CanConverse(context.Background(), 5, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected mutual followers to be allowed")
	}

	// Symmetric in argument order.
	ok, err = g.CanConverse(context.Background(), 9, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected mutual followers to be allowed regardless of order")
	}
}

func TestCanConverse_OneDirectional(t *testing.T) {
	// 5 follows 9, but 9 does not follow 5 back.
	g := NewGuard(newFakeEdges([2]int64{5, 9}))

	ok, err := g.CanConverse(context.Background(), 5, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("one-directional follow must not be sufficient")
	}
}

func TestCanConverse_NoEdges(t *testing.T) {
	g := NewGuard(newFakeEdges())

	ok, err := g.CanConverse(context.Background(), 5, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("strangers must not be allowed")
	}
}

func TestCanConverse_EdgeRemovalFlipsResult(t *testing.T) {
	edges := newFakeEdges([2]int64{5, 9}, [2]int64{9, 5})
	g := NewGuard(edges)

	ok, _ := g.CanConverse(context.Background(), 5, 9)
	if !ok {
		t.Fatal("expected allowed before removal")
	}

	// Removing either edge flips the result to false.
	edges.edges[[2]int64{9, 5}] = false
	ok, _ = g.CanConverse(context.Background(), 5, 9)
	if ok {
		t.Fatal("expected denied after removing the return edge")
	}
}

func TestCanConverse_PropagatesLookupError(t *testing.T) {
	wantErr := errors.New("db down")
	g := NewGuard(&fakeEdges{err: wantErr})

	if _, err := g.CanConverse(context.Background(), 5, 9); !errors.Is(err, wantErr) {
		t.Fatalf("expected lookup error to propagate, got %v", err)
	}
}
