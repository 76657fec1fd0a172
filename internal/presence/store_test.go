package presence

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
)

// newTestStore creates a Store connected to a local Redis instance and
// removes leftover test keys. Tests that call this helper are skipped when
// Redis is not reachable on localhost:6379.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	clean := func() {
		iter := client.Scan(ctx, 0, KeyPrefix+"9000*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
	}
	clean()
	t.Cleanup(func() {
		clean()
		client.Close()
	})

	return &Store{client: client, serverName: "test-gw"}
}

func TestSetOnlineAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SetOnline(ctx, 900001, "conn-a"); err != nil {
		t.Fatalf("SetOnline() error: %v", err)
	}

	rec, err := store.Get(ctx, 900001)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if rec == nil {
		t.Fatal("expected a presence record")
	}
	if rec.UserID != 900001 || rec.ConnID != "conn-a" || rec.Server != "test-gw" {
		t.Errorf("unexpected record: %+v", rec)
	}

	ttl, err := store.client.TTL(ctx, key(900001)).Result()
	if err != nil {
		t.Fatalf("TTL() error: %v", err)
	}
	if ttl <= 0 || ttl > TTL {
		t.Errorf("expected TTL in (0, %s], got %s", TTL, ttl)
	}
}

func TestGet_Offline(t *testing.T) {
	store := newTestStore(t)

	rec, err := store.Get(context.Background(), 900002)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil for offline user, got %+v", rec)
	}
}

func TestSetOffline_RemovesRecord(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.SetOnline(ctx, 900003, "conn-a")
	if err := store.SetOffline(ctx, 900003, "conn-a"); err != nil {
		t.Fatalf("SetOffline() error: %v", err)
	}

	rec, _ := store.Get(ctx, 900003)
	if rec != nil {
		t.Fatalf("expected user offline, got %+v", rec)
	}
}

// A stale disconnect from an old connection must not knock out the presence
// a newer connection established.
func TestSetOffline_IgnoresStaleConnection(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.SetOnline(ctx, 900004, "conn-old")
	store.SetOnline(ctx, 900004, "conn-new")

	if err := store.SetOffline(ctx, 900004, "conn-old"); err != nil {
		t.Fatalf("SetOffline() error: %v", err)
	}

	rec, err := store.Get(ctx, 900004)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if rec == nil {
		t.Fatal("presence from the newer connection should survive")
	}
	if rec.ConnID != "conn-new" {
		t.Errorf("expected conn-new, got %q", rec.ConnID)
	}
}
