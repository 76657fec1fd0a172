package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ErrDuplicatePair is returned by Insert when the unique constraint on the
// canonical participant pair fires, meaning a concurrent request already
// created the row. The resolver recovers from it transparently.
var ErrDuplicatePair = errors.New("conversation: pair already exists")

// uniqueViolation is the PostgreSQL error code for unique_violation.
const uniqueViolation = "23505"

// Conversation is one row of the conversations table. Participants are
// always stored in canonical order (low first).
type Conversation struct {
	ID              int64
	ParticipantLow  int64
	ParticipantHigh int64
	CreatedAt       time.Time
}

// Message is one row of the messages table. Rows are immutable here; the
// read flag is updated by the REST layer only.
type Message struct {
	ID             int64
	ConversationID int64
	SenderID       int64
	Content        string
	SentAt         time.Time
	Read           bool
}

// Store manages conversations and messages in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// FindByPair returns the conversation for the canonical pair (low, high), or
// nil if none exists. It also matches rows stored in the reverse order, in
// case legacy rows predate canonical ordering.
func (s *Store) FindByPair(ctx context.Context, low, high int64) (*Conversation, error) {
	const query = `
		SELECT id, participant_low, participant_high, created_at
		FROM conversations
		WHERE (participant_low = $1 AND participant_high = $2)
		   OR (participant_low = $2 AND participant_high = $1)
		LIMIT 1`

	var c Conversation
	err := s.db.QueryRowContext(ctx, query, low, high).
		Scan(&c.ID, &c.ParticipantLow, &c.ParticipantHigh, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: find by pair: %w", err)
	}
	return &c, nil
}

// Insert creates a conversation row for the canonical pair (low, high).
// A unique-constraint conflict is reported as ErrDuplicatePair so the caller
// can re-query instead of treating it as a failure.
func (s *Store) Insert(ctx context.Context, low, high int64) (*Conversation, error) {
	const query = `
		INSERT INTO conversations (participant_low, participant_high)
		VALUES ($1, $2)
		RETURNING id, participant_low, participant_high, created_at`

	var c Conversation
	err := s.db.QueryRowContext(ctx, query, low, high).
		Scan(&c.ID, &c.ParticipantLow, &c.ParticipantHigh, &c.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, ErrDuplicatePair
		}
		return nil, fmt.Errorf("conversation: insert: %w", err)
	}
	return &c, nil
}

// InsertMessage persists a message with the unread default and returns the
// row with its server-assigned id and timestamp.
func (s *Store) InsertMessage(ctx context.Context, conversationID, senderID int64, content string) (*Message, error) {
	const query = `
		INSERT INTO messages (conversation_id, sender_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, conversation_id, sender_id, content, sent_at, read`

	var m Message
	err := s.db.QueryRowContext(ctx, query, conversationID, senderID, content).
		Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.SentAt, &m.Read)
	if err != nil {
		return nil, fmt.Errorf("conversation: insert message: %w", err)
	}
	return &m, nil
}
