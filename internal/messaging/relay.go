// Package messaging provides the NATS relay that extends room fan-out
// across gateway instances. Delivery to sockets on the local instance never
// goes through NATS; the relay only carries persisted messages to the other
// instances so their local room members receive them too.
package messaging

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectRoomPrefix is the subject namespace for room broadcasts. The full
// subject is chat.room.<roomKey>.
const SubjectRoomPrefix = "chat.room."

// RoomEvent is the payload published for each broadcast message. Origin is
// the publishing instance's name; subscribers drop their own events so local
// delivery is never doubled.
type RoomEvent struct {
	Origin  string          `json:"origin"`
	RoomKey string          `json:"roomKey"`
	Payload json.RawMessage `json:"payload"`
}

// RelayConfig holds NATS connection settings.
type RelayConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name, also the event origin
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultRelayConfig returns sensible defaults.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		URL:           "nats://localhost:4222",
		Name:          "chat-gateway",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// Relay wraps the NATS connection used for cross-instance room fan-out.
type Relay struct {
	conn   *nats.Conn
	origin string
	mu     sync.Mutex
	subs   map[string]*nats.Subscription
}

// NewRelay connects to NATS with the given config and returns a ready relay.
// It returns an error if the initial connection fails.
func NewRelay(config RelayConfig) (*Relay, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("relay: nats disconnected: %v", err)
			} else {
				log.Printf("relay: nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("relay: nats reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("relay: nats connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("relay: nats connect: %w", err)
	}

	log.Printf("relay: connected to %s as %s", nc.ConnectedUrl(), config.Name)

	return &Relay{
		conn:   nc,
		origin: config.Name,
		subs:   make(map[string]*nats.Subscription),
	}, nil
}

// PublishRoom publishes an already-encoded server frame for the given room
// so other instances can deliver it to their local room members.
func (r *Relay) PublishRoom(roomKey string, payload []byte) error {
	event, err := json.Marshal(RoomEvent{
		Origin:  r.origin,
		RoomKey: roomKey,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("relay: marshal room event: %w", err)
	}
	return r.conn.Publish(SubjectRoomPrefix+roomKey, event)
}

// SubscribeRooms subscribes to broadcasts for all rooms (chat.room.>) and
// invokes the handler for every event originated by another instance.
func (r *Relay) SubscribeRooms(handler func(roomKey string, payload []byte)) error {
	subject := SubjectRoomPrefix + ">"
	sub, err := r.conn.Subscribe(subject, func(msg *nats.Msg) {
		var event RoomEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Printf("relay: unmarshal room event on %s: %v", msg.Subject, err)
			return
		}
		if event.Origin == r.origin {
			return // locally delivered already
		}
		handler(event.RoomKey, event.Payload)
	})
	if err != nil {
		return fmt.Errorf("relay: nats subscribe %s: %w", subject, err)
	}

	r.mu.Lock()
	r.subs[subject] = sub
	r.mu.Unlock()
	return nil
}

// Close drains all active subscriptions and closes the NATS connection.
func (r *Relay) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for subject, sub := range r.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("relay: drain %s: %v", subject, err)
		}
	}
	r.subs = make(map[string]*nats.Subscription)

	if err := r.conn.Drain(); err != nil {
		log.Printf("relay: connection drain: %v", err)
	}

	log.Printf("relay: closed")
}
