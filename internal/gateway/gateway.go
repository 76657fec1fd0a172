// Package gateway implements the chat protocol: the one-shot authenticate
// gate, mutual-follow authorization at join time, lazy conversation
// resolution, message persistence, and room fan-out. It is the only place
// that wires the registry, the data stores, and the transport together, and
// the boundary at which every store failure is caught and turned into a
// scoped error event.
package gateway

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/campuslink/chat-service/internal/auth"
	"github.com/campuslink/chat-service/internal/conversation"
	"github.com/campuslink/chat-service/internal/metrics"
	"github.com/campuslink/chat-service/internal/protocol"
	"github.com/campuslink/chat-service/internal/ratelimit"
	"github.com/campuslink/chat-service/internal/registry"
	"github.com/campuslink/chat-service/internal/ws"
)

// storeTimeout bounds every data store round-trip issued from a handler.
const storeTimeout = 5 * time.Second

// TokenVerifier validates bearer tokens. *auth.Verifier satisfies it.
type TokenVerifier interface {
	Verify(raw string) (auth.Claims, error)
}

// Authorizer decides whether two users may share a conversation.
// *social.Guard satisfies it.
type Authorizer interface {
	CanConverse(ctx context.Context, userA, userB int64) (bool, error)
}

// Resolver maps a user pair to its conversation id, creating it lazily.
// *conversation.Resolver satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, userA, userB int64) (int64, error)
}

// MessageStore persists chat messages. *conversation.Store satisfies it.
type MessageStore interface {
	InsertMessage(ctx context.Context, conversationID, senderID int64, content string) (*conversation.Message, error)
}

// Sender delivers encoded frames to connections and can force-close them.
// *ws.Server satisfies it; tests substitute a recorder.
type Sender interface {
	SendMessage(connID string, data []byte) error
	CloseConnection(connID string)
}

// RateLimiter throttles per-user actions. *ratelimit.Limiter satisfies it.
// Optional: a nil limiter means unlimited.
type RateLimiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
}

// PresenceTracker records which users hold a live authenticated connection.
// *presence.Store satisfies it directly. Optional.
type PresenceTracker interface {
	SetOnline(ctx context.Context, userID int64, connID string) error
	Refresh(ctx context.Context, userID int64) error
	SetOffline(ctx context.Context, userID int64, connID string) error
}

// RoomRelay forwards room broadcasts to other gateway instances.
// *messaging.Relay satisfies it. Optional: nil means single-instance.
type RoomRelay interface {
	PublishRoom(roomKey string, payload []byte) error
}

// Gateway orchestrates the chat protocol over a set of collaborators.
type Gateway struct {
	verifier TokenVerifier
	guard    Authorizer
	resolver Resolver
	messages MessageStore
	registry *registry.Registry
	sender   Sender

	limiter  RateLimiter     // optional
	presence PresenceTracker // optional
	relay    RoomRelay       // optional
}

// Config collects the gateway's collaborators. Limiter, Presence, and Relay
// may be nil.
type Config struct {
	Verifier TokenVerifier
	Guard    Authorizer
	Resolver Resolver
	Messages MessageStore
	Registry *registry.Registry
	Sender   Sender
	Limiter  RateLimiter
	Presence PresenceTracker
	Relay    RoomRelay
}

// New creates a Gateway from its collaborators.
func New(cfg Config) *Gateway {
	return &Gateway{
		verifier: cfg.Verifier,
		guard:    cfg.Guard,
		resolver: cfg.Resolver,
		messages: cfg.Messages,
		registry: cfg.Registry,
		sender:   cfg.Sender,
		limiter:  cfg.Limiter,
		presence: cfg.Presence,
		relay:    cfg.Relay,
	}
}

// Register wires the gateway's handlers into the transport dispatcher.
func (g *Gateway) Register(d *ws.MessageDispatcher) {
	d.Register(protocol.TypeAuthenticate, func(conn *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.AuthenticateMsg); ok {
			g.Authenticate(conn.ID, m)
		}
	})
	d.Register(protocol.TypeJoinConversation, func(conn *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.JoinConversationMsg); ok {
			g.JoinConversation(conn.ID, m)
		}
	})
	d.Register(protocol.TypeSendMessage, func(conn *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.SendMessageMsg); ok {
			g.SendMessage(conn.ID, m)
		}
	})
	d.Register(protocol.TypeLeaveConversation, func(conn *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.LeaveConversationMsg); ok {
			g.LeaveConversation(conn.ID, m)
		}
	})
}

// Connected records a freshly accepted connection in the Unauthenticated
// state. Wired to the transport's OnConnect callback.
func (g *Gateway) Connected(connID string) {
	g.registry.OnConnect(connID)
}

// Disconnected discards all session state for a connection. Wired to the
// transport's OnDisconnect callback; terminal for the connection.
func (g *Gateway) Disconnected(connID string) {
	identity, wasAuthenticated := g.registry.OnDisconnect(connID)
	if !wasAuthenticated {
		return
	}

	metrics.AuthenticatedSessions.Dec()

	if g.presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := g.presence.SetOffline(ctx, identity.UserID, connID); err != nil {
			log.Printf("gateway: presence offline user=%d conn=%s: %v", identity.UserID, connID, err)
		}
	}
}

// Authenticate handles the authenticate event: the one-shot gate from
// Unauthenticated to Authenticated. On any verification failure the client
// receives authenticated:{success:false} and the socket is closed.
func (g *Gateway) Authenticate(connID string, msg protocol.AuthenticateMsg) {
	if _, already := g.registry.Identity(connID); already {
		g.sendError(connID, "already authenticated")
		return
	}

	claims, err := g.verifier.Verify(msg.Token)
	if err != nil {
		metrics.AuthFailuresTotal.Inc()
		log.Printf("gateway: authentication failed conn=%s: %v", connID, err)

		g.send(connID, protocol.TypeAuthenticated, protocol.AuthenticatedMsg{
			Success: false,
			Error:   "invalid or expired token",
		})
		g.sender.CloseConnection(connID)
		return
	}

	if err := g.registry.SetIdentity(connID, claims.UserID, claims.RoleID); err != nil {
		// The connection vanished between dispatch and now.
		log.Printf("gateway: set identity conn=%s: %v", connID, err)
		return
	}

	metrics.AuthenticatedSessions.Inc()

	if g.presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := g.presence.SetOnline(ctx, claims.UserID, connID); err != nil {
			log.Printf("gateway: presence online user=%d conn=%s: %v", claims.UserID, connID, err)
		}
	}

	g.send(connID, protocol.TypeAuthenticated, protocol.AuthenticatedMsg{
		Success: true,
		UserID:  claims.UserID,
	})

	log.Printf("gateway: authenticated conn=%s user=%d role=%d", connID, claims.UserID, claims.RoleID)
}

// JoinConversation handles the join-conversation event. The requester must
// be authenticated, must be one of the two users named by the pair key, and
// the pair must mutually follow each other. Authorization runs at join time;
// subsequent sends within the membership rely on it.
func (g *Gateway) JoinConversation(connID string, msg protocol.JoinConversationMsg) {
	identity, ok := g.registry.Identity(connID)
	if !ok {
		g.sendError(connID, "authentication required")
		return
	}

	a, b, err := conversation.ParseRoomKey(msg.ConversationID)
	if err != nil {
		g.sendError(connID, "invalid conversation id")
		return
	}

	// Impersonation guard: the authenticated user must be part of the
	// claimed pair, whatever the key's order.
	if identity.UserID != a && identity.UserID != b {
		g.sendError(connID, "not a participant of this conversation")
		return
	}
	other := a
	if identity.UserID == a {
		other = b
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if g.limiter != nil {
		allowed, _ := g.limiter.Allow(ctx, strconv.FormatInt(identity.UserID, 10), ratelimit.RuleJoin)
		if !allowed {
			g.sendError(connID, "joining too fast, slow down")
			return
		}
	}

	allowed, err := g.guard.CanConverse(ctx, identity.UserID, other)
	if err != nil {
		log.Printf("gateway: authorization check conn=%s user=%d other=%d: %v",
			connID, identity.UserID, other, err)
		g.sendError(connID, "could not verify conversation permissions")
		return
	}
	if !allowed {
		g.sendError(connID, "users must follow each other to start a conversation")
		return
	}

	room := conversation.CanonicalKey(a, b)
	if err := g.registry.JoinRoom(connID, room); err != nil {
		g.sendError(connID, "authentication required")
		return
	}

	g.send(connID, protocol.TypeJoinedConversation, protocol.JoinedConversationMsg{
		ConversationID: msg.ConversationID,
		RoomName:       room,
	})

	log.Printf("gateway: joined conn=%s user=%d room=%s", connID, identity.UserID, room)
}

// SendMessage handles the send-message event: require that the sender is a
// pair participant currently joined to the canonical room, then
// resolve the conversation (creating it on first contact), persist the
// message, then broadcast the authoritative row to the whole room including
// the sender. Any store failure is surfaced to the sender only.
func (g *Gateway) SendMessage(connID string, msg protocol.SendMessageMsg) {
	started := time.Now()

	identity, ok := g.registry.Identity(connID)
	if !ok {
		g.sendError(connID, "authentication required")
		return
	}

	a, b, err := conversation.ParseRoomKey(msg.ConversationID)
	if err != nil {
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		g.sendError(connID, "invalid conversation id")
		return
	}
	if identity.UserID != a && identity.UserID != b {
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		g.sendError(connID, "not a participant of this conversation")
		return
	}

	// Room membership is the session-scoped authorization basis: the
	// mutual-follow guard runs at join, so a connection that never joined
	// (or whose join was denied) must not reach the stores.
	room := conversation.CanonicalKey(a, b)
	if !g.registry.InRoom(connID, room) {
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		g.sendError(connID, "join the conversation before sending")
		return
	}

	if err := validateContent(msg.Message); err != nil {
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		g.sendError(connID, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if g.limiter != nil {
		allowed, _ := g.limiter.Allow(ctx, strconv.FormatInt(identity.UserID, 10), ratelimit.RuleSend)
		if !allowed {
			metrics.MessagesTotal.WithLabelValues("rejected").Inc()
			g.sendError(connID, "sending too fast, slow down")
			return
		}
	}

	conversationID, err := g.resolver.Resolve(ctx, a, b)
	if err != nil {
		metrics.MessagesTotal.WithLabelValues("failed").Inc()
		log.Printf("gateway: resolve conversation conn=%s pair=%d-%d: %v", connID, a, b, err)
		g.sendError(connID, "failed to send message")
		return
	}

	persisted, err := g.messages.InsertMessage(ctx, conversationID, identity.UserID, msg.Message)
	if err != nil {
		metrics.MessagesTotal.WithLabelValues("failed").Inc()
		log.Printf("gateway: persist message conn=%s conversation=%d: %v", connID, conversationID, err)
		g.sendError(connID, "failed to send message")
		return
	}
	metrics.MessagesTotal.WithLabelValues("persisted").Inc()

	if g.presence != nil {
		if err := g.presence.Refresh(ctx, identity.UserID); err != nil {
			log.Printf("gateway: presence refresh user=%d: %v", identity.UserID, err)
		}
	}

	payload, err := protocol.NewServerMessage(protocol.TypeNewMessage, protocol.NewMessageMsg{
		ID:             strconv.FormatInt(persisted.ID, 10),
		ConversationID: room,
		Message:        persisted.Content,
		UserID:         identity.UserID,
		Timestamp:      persisted.SentAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		log.Printf("gateway: build new-message conn=%s: %v", connID, err)
		g.sendError(connID, "failed to send message")
		return
	}

	g.broadcastRoom(room, payload)

	if g.relay != nil {
		if err := g.relay.PublishRoom(room, payload); err != nil {
			log.Printf("gateway: relay publish room=%s: %v", room, err)
		}
	}

	metrics.SendLatency.Observe(time.Since(started).Seconds())
}

// LeaveConversation handles the leave-conversation event. Leaving needs no
// authorization check, only a parseable key and an authenticated requester.
func (g *Gateway) LeaveConversation(connID string, msg protocol.LeaveConversationMsg) {
	identity, ok := g.registry.Identity(connID)
	if !ok {
		g.sendError(connID, "authentication required")
		return
	}

	a, b, err := conversation.ParseRoomKey(msg.ConversationID)
	if err != nil {
		g.sendError(connID, "invalid conversation id")
		return
	}

	room := conversation.CanonicalKey(a, b)
	g.registry.LeaveRoom(connID, room)
	log.Printf("gateway: left conn=%s user=%d room=%s", connID, identity.UserID, room)
}

// DeliverRemote delivers a frame relayed from another gateway instance to
// this instance's local room members. Wired to the relay subscription.
func (g *Gateway) DeliverRemote(roomKey string, payload []byte) {
	g.broadcastRoom(roomKey, payload)
}

// broadcastRoom sends an encoded frame to every connection currently joined
// to the room, exactly once each. Individual send failures are logged and
// skipped; the failing connection will be evicted by its own read path or
// the heartbeat.
func (g *Gateway) broadcastRoom(roomKey string, payload []byte) {
	for _, memberID := range g.registry.RoomMembers(roomKey) {
		if err := g.sender.SendMessage(memberID, payload); err != nil {
			log.Printf("gateway: broadcast room=%s conn=%s: %v", roomKey, memberID, err)
			continue
		}
		metrics.MessagesTotal.WithLabelValues("broadcast").Inc()
	}
}

// send builds and delivers a typed server message to one connection.
func (g *Gateway) send(connID string, msgType string, payload interface{}) {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("gateway: build %s conn=%s: %v", msgType, connID, err)
		return
	}
	if err := g.sender.SendMessage(connID, data); err != nil {
		log.Printf("gateway: send %s conn=%s: %v", msgType, connID, err)
	}
}

// sendError delivers a scoped error event to one connection.
func (g *Gateway) sendError(connID string, message string) {
	g.send(connID, protocol.TypeError, protocol.ErrorMsg{Message: message})
}
