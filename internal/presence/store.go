// Package presence tracks which users currently hold an authenticated chat
// connection. Records live in Redis with a TTL so a crashed server instance
// cannot leave users marked online forever. The REST layer reads these keys
// for its online indicators; the gateway only writes them.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix is the Redis key prefix for all presence hashes.
	KeyPrefix = "presence:"

	// TTL is the time-to-live for presence keys. Refreshed on activity;
	// expiry bounds staleness after an unclean shutdown.
	TTL = 1 * time.Hour
)

// Record is a user's presence state as stored in Redis.
type Record struct {
	UserID      int64  `redis:"user_id"`
	ConnID      string `redis:"conn_id"`
	Server      string `redis:"server"`
	ConnectedAt int64  `redis:"connected_at"`
	LastActive  int64  `redis:"last_active"`
}

// Store manages presence records in Redis.
type Store struct {
	client     *redis.Client
	serverName string // identifier for this gateway instance
}

// NewStore creates a presence store connected to Redis.
func NewStore(redisAddr string, serverName string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	// Verify connection.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("presence: redis connection failed: %w", err)
	}

	return &Store{client: client, serverName: serverName}, nil
}

func key(userID int64) string {
	return fmt.Sprintf("%s%d", KeyPrefix, userID)
}

// SetOnline marks a user online on this instance with a fresh TTL.
func (s *Store) SetOnline(ctx context.Context, userID int64, connID string) error {
	now := time.Now().Unix()
	record := map[string]interface{}{
		"user_id":      userID,
		"conn_id":      connID,
		"server":       s.serverName,
		"connected_at": now,
		"last_active":  now,
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key(userID), record)
	pipe.Expire(ctx, key(userID), TTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Refresh extends the TTL and updates the last-active timestamp.
func (s *Store) Refresh(ctx context.Context, userID int64) error {
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key(userID), "last_active", time.Now().Unix())
	pipe.Expire(ctx, key(userID), TTL)
	_, err := pipe.Exec(ctx)
	return err
}

// SetOffline removes the user's presence record, but only when the record
// still belongs to the given connection. A user who reconnected (new connID
// overwrote the hash) must not be knocked offline by the old connection's
// late disconnect cleanup.
func (s *Store) SetOffline(ctx context.Context, userID int64, connID string) error {
	current, err := s.client.HGet(ctx, key(userID), "conn_id").Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if current != connID {
		return nil
	}
	return s.client.Del(ctx, key(userID)).Err()
}

// Get retrieves a user's presence record. Returns nil if the user is offline.
func (s *Store) Get(ctx context.Context, userID int64) (*Record, error) {
	var record Record
	err := s.client.HGetAll(ctx, key(userID)).Scan(&record)
	if err != nil {
		return nil, err
	}
	if record.UserID == 0 {
		return nil, nil // not found
	}
	return &record, nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client for use by other packages.
func (s *Store) Client() *redis.Client {
	return s.client
}
