// Package broadcast fans committed events out to live websocket subscribers.
// Delivery is best effort and at most once: a slow client loses messages, the
// commit path never waits, and reconnecting clients re-query instead of
// replaying.
package broadcast

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"CurveLedger/internal/observability"
)

// Event names carried in the wire envelope.
const (
	EventTokenCreated   = "token:created"
	EventTradeExecuted  = "trade:executed"
	EventStakeUpdated   = "stake:updated"
	EventTokenNear      = "token:near"      // graduation progress crossed 50%
	EventTokenGraduated = "token:graduated" // graduation progress reached 100%
)

const (
	sendBuffer   = 256
	pingPeriod   = 30 * time.Second
	pongWait     = 60 * time.Second
	controlWait  = 10 * time.Second
	writeBufSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: writeBufSize,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict origins once the frontend domains are fixed
		return true
	},
}

// Message is the server-to-client envelope.
type Message struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// ClientMessage is the client-to-server subscription protocol.
// Event may be a named event or "*" for everything.
type ClientMessage struct {
	Action string `json:"action"` // "subscribe" or "unsubscribe"
	Event  string `json:"event"`
}

// subscriptions tracks which event names one client wants.
type subscriptions struct {
	mu     sync.RWMutex
	events map[string]bool
}

func newSubscriptions() *subscriptions {
	return &subscriptions{events: make(map[string]bool)}
}

func (s *subscriptions) subscribe(event string)   { s.mu.Lock(); s.events[event] = true; s.mu.Unlock() }
func (s *subscriptions) unsubscribe(event string) { s.mu.Lock(); delete(s.events, event); s.mu.Unlock() }

func (s *subscriptions) wants(event string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.events["*"] {
		return true
	}
	return s.events[event]
}

type client struct {
	send chan Message
	subs *subscriptions
}

// Hub owns the client set. Publish walks it under a read lock and enqueues
// into each client's buffered channel, dropping when the buffer is full.
type Hub struct {
	log     zerolog.Logger
	metrics *observability.Metrics
	mu      sync.RWMutex
	clients map[*client]struct{}
	dropped atomic.Int64
	sent    atomic.Int64
}

func NewHub(log zerolog.Logger, metrics *observability.Metrics) *Hub {
	return &Hub{
		log:     log.With().Str("component", "broadcast").Logger(),
		metrics: metrics,
		clients: make(map[*client]struct{}),
	}
}

// Publish enqueues a message for every subscribed client. Never blocks.
func (h *Hub) Publish(event string, payload any) {
	msg := Message{Event: event, Payload: payload}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.subs.wants(event) {
			continue
		}
		select {
		case c.send <- msg:
			h.sent.Add(1)
			if h.metrics != nil {
				h.metrics.BroadcastSent.Inc()
			}
		default:
			h.dropped.Add(1)
			if h.metrics != nil {
				h.metrics.BroadcastDropped.Inc()
			}
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many messages were discarded on full client buffers.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// Sent returns how many messages were enqueued for delivery.
func (h *Hub) Sent() int64 { return h.sent.Load() }

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.BroadcastClients.Set(float64(n))
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.BroadcastClients.Set(float64(n))
	}
}

// ServeWS upgrades the request and runs the connection until the client goes
// away. The writer drains the send channel; the read loop handles the
// subscribe protocol and pong-based liveness.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	c := &client{
		send: make(chan Message, sendBuffer),
		subs: newSubscriptions(),
	}
	h.register(c)
	defer h.unregister(c)
	h.log.Debug().Str("remote_addr", r.RemoteAddr).Msg("websocket client connected")

	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.writeLoop(conn, c.send, done)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.pingLoop(conn, done)
	}()

	h.readLoop(conn, c)

	close(done)
	wg.Wait()
	h.log.Debug().Str("remote_addr", r.RemoteAddr).Msg("websocket client disconnected")
}

func (h *Hub) writeLoop(conn *websocket.Conn, send <-chan Message, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg := <-send:
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug().Err(err).Msg("websocket write failed")
				return
			}
		}
	}
}

func (h *Hub) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlWait)); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readLoop(conn *websocket.Conn, c *client) {
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Debug().Err(err).Msg("websocket read error")
			}
			return
		}
		if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			return
		}

		switch msg.Action {
		case "subscribe":
			if msg.Event == "" {
				h.trySend(c, Message{Event: "error", Payload: map[string]string{"message": "event is required"}})
				continue
			}
			c.subs.subscribe(msg.Event)
			h.trySend(c, Message{Event: "subscribed", Payload: map[string]string{"event": msg.Event}})
		case "unsubscribe":
			if msg.Event == "" {
				h.trySend(c, Message{Event: "error", Payload: map[string]string{"message": "event is required"}})
				continue
			}
			c.subs.unsubscribe(msg.Event)
			h.trySend(c, Message{Event: "unsubscribed", Payload: map[string]string{"event": msg.Event}})
		default:
			h.trySend(c, Message{Event: "error", Payload: map[string]string{"message": "unknown action: " + msg.Action}})
		}
	}
}

func (h *Hub) trySend(c *client, msg Message) {
	select {
	case c.send <- msg:
	default:
		h.dropped.Add(1)
	}
}
