package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// memPairStore is an in-memory PairStore enforcing the same uniqueness the
// database constraint provides, so resolver races can be exercised without
// PostgreSQL.
type memPairStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[[2]int64]*Conversation

	// findErr / insertErr force failures for error-path tests.
	findErr   error
	insertErr error

	// insertDelay widens the race window between find and insert.
	insertDelay time.Duration
}

func newMemPairStore() *memPairStore {
	return &memPairStore{nextID: 1, rows: make(map[[2]int64]*Conversation)}
}

func (s *memPairStore) FindByPair(_ context.Context, low, high int64) (*Conversation, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.rows[[2]int64{low, high}]; ok {
		return c, nil
	}
	return nil, nil
}

func (s *memPairStore) Insert(_ context.Context, low, high int64) (*Conversation, error) {
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	if s.insertDelay > 0 {
		time.Sleep(s.insertDelay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[[2]int64{low, high}]; ok {
		return nil, ErrDuplicatePair
	}
	c := &Conversation{ID: s.nextID, ParticipantLow: low, ParticipantHigh: high, CreatedAt: time.Now()}
	s.nextID++
	s.rows[[2]int64{low, high}] = c
	return c, nil
}

func (s *memPairStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func TestResolve_CreatesOnFirstContact(t *testing.T) {
	store := newMemPairStore()
	r := NewResolver(store)

	id, err := r.Resolve(context.Background(), 5, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == 0 {
		t.Fatal("expected a non-zero conversation id")
	}
	if store.count() != 1 {
		t.Errorf("expected 1 row, got %d", store.count())
	}

	c := store.rows[[2]int64{5, 9}]
	if c == nil {
		t.Fatal("row should be stored under the canonical (low, high) pair")
	}
}

func TestResolve_ReturnsExisting(t *testing.T) {
	store := newMemPairStore()
	r := NewResolver(store)

	first, err := r.Resolve(context.Background(), 5, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := r.Resolve(context.Background(), 5, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Errorf("expected same id, got %d and %d", first, second)
	}
	if store.count() != 1 {
		t.Errorf("expected 1 row, got %d", store.count())
	}
}

func TestResolve_SymmetricInArgumentOrder(t *testing.T) {
	store := newMemPairStore()
	r := NewResolver(store)

	ab, err := r.Resolve(context.Background(), 5, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ba, err := r.Resolve(context.Background(), 9, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ab != ba {
		t.Errorf("Resolve(5,9)=%d and Resolve(9,5)=%d should match", ab, ba)
	}
}

// lostRaceStore scripts the exact interleaving of a lost first-contact race:
// the initial lookup misses, the insert hits the unique constraint, and the
// reconciliation re-query finds the row the competing request created.
type lostRaceStore struct {
	winner *Conversation
	finds  int
}

func (s *lostRaceStore) FindByPair(_ context.Context, low, high int64) (*Conversation, error) {
	s.finds++
	if s.finds == 1 {
		return nil, nil // row not visible yet
	}
	return s.winner, nil
}

func (s *lostRaceStore) Insert(context.Context, int64, int64) (*Conversation, error) {
	return nil, ErrDuplicatePair
}

func TestResolve_ReconcilesDuplicateInsert(t *testing.T) {
	store := &lostRaceStore{
		winner: &Conversation{ID: 77, ParticipantLow: 5, ParticipantHigh: 9},
	}
	r := NewResolver(store)

	id, err := r.Resolve(context.Background(), 5, 9)
	if err != nil {
		t.Fatalf("expected conflict to be reconciled, got error: %v", err)
	}
	if id != 77 {
		t.Errorf("expected winner id 77, got %d", id)
	}
	if store.finds != 2 {
		t.Errorf("expected a reconciliation re-query, finds=%d", store.finds)
	}
}

// A conflict with no row on re-query is a genuine error, not a silent miss.
func TestResolve_ConflictWithoutRowFails(t *testing.T) {
	store := &lostRaceStore{winner: nil}
	r := NewResolver(store)

	if _, err := r.Resolve(context.Background(), 5, 9); err == nil {
		t.Fatal("expected error when conflict reconciliation finds nothing")
	}
}

func TestResolve_ConcurrentFirstContactConverges(t *testing.T) {
	store := newMemPairStore()
	store.insertDelay = time.Millisecond // widen the check-then-insert window
	r := NewResolver(store)

	const n = 16
	ids := make([]int64, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = r.Resolve(context.Background(), 5, 9)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("call %d failed: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("call %d returned id %d, want %d", i, ids[i], ids[0])
		}
	}
	if store.count() != 1 {
		t.Errorf("expected exactly 1 row after %d concurrent resolves, got %d", n, store.count())
	}
}

func TestResolve_PropagatesStoreErrors(t *testing.T) {
	wantErr := errors.New("db down")

	store := newMemPairStore()
	store.findErr = wantErr
	r := NewResolver(store)
	if _, err := r.Resolve(context.Background(), 5, 9); !errors.Is(err, wantErr) {
		t.Fatalf("expected find error to propagate, got %v", err)
	}

	store = newMemPairStore()
	store.insertErr = wantErr
	r = NewResolver(store)
	if _, err := r.Resolve(context.Background(), 5, 9); !errors.Is(err, wantErr) {
		t.Fatalf("expected insert error to propagate, got %v", err)
	}
}
