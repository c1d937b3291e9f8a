package hub

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single frame write to a subscriber.
	writeWait = 10 * time.Second
	// pongWait is how long a subscriber may stay silent before it is
	// considered dead.  Any inbound frame resets the clock.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait so an idle but healthy
	// client is always pinged before its deadline lapses.
	pingPeriod = 45 * time.Second
	// maxMessageSize caps inbound client frames; clients only ever send
	// small ping/pong JSON objects.
	maxMessageSize = 512
	// sendBuffer is the per-subscriber outbound queue.  A subscriber
	// that falls this many events behind is pruned as dead.
	sendBuffer = 32
)

// CloseShowtimeNotFound is the application close code sent when the
// showtime a client subscribed to does not exist.  Validation runs after
// the handshake, so rejection is always a proper close frame.
const CloseShowtimeNotFound = 4004

// Subscriber is one live WebSocket connection bound to a single showtime.
// Its lifecycle is the connection lifetime; nothing is persisted.
type Subscriber struct {
	hub        *Hub
	conn       *websocket.Conn
	showtimeID uint64
	owner      string // optional authenticated identity, may be empty
	send       chan []byte
	closed     atomic.Bool
}

// Subscribe registers a new subscriber for a showtime and starts its
// writer.  The caller must already have completed the handshake and any
// validation, and must then call ReadLoop to drive the connection.
func (h *Hub) Subscribe(conn *websocket.Conn, showtimeID uint64, owner string) *Subscriber {
	sub := &Subscriber{
		hub:        h,
		conn:       conn,
		showtimeID: showtimeID,
		owner:      owner,
		send:       make(chan []byte, sendBuffer),
	}
	h.register(sub)
	go sub.writePump()
	return sub
}

// Send queues a message for this subscriber only (greetings, pongs).
func (s *Subscriber) Send(message []byte) bool {
	return s.enqueue(message)
}

// enqueue hands a message to the writer without blocking.  False means
// the subscriber is closed or its queue is full.
func (s *Subscriber) enqueue(message []byte) bool {
	if s.closed.Load() {
		return false
	}
	select {
	case s.send <- message:
		return true
	default:
		return false
	}
}

// Close tears the connection down and removes the subscriber from the
// registry.  It is safe to call any number of times, from any goroutine,
// including for connections that already failed.
func (s *Subscriber) Close() {
	if s.closed.Swap(true) {
		return
	}
	_ = s.conn.Close()
	s.hub.unregister(s)
}

// shutdown closes with an explicit "server shutting down" frame so
// clients can distinguish process restarts from network failures.
func (s *Subscriber) shutdown() {
	if !s.closed.Load() {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = s.conn.WriteMessage(websocket.CloseMessage, msg)
	}
	s.Close()
}

// writePump is the only goroutine writing to the connection.  It drains
// the send queue and pings idle connections; any write error ends the
// subscriber.
func (s *Subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
	}()
	for {
		select {
		case message := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			// Application-level ping for clients that track liveness
			// in JS rather than at the transport layer.
			ping, _ := json.Marshal(map[string]any{
				"type":      "ping",
				"timestamp": time.Now().UnixMilli(),
			})
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, ping); err != nil {
				return
			}
		}
	}
}

// clientMessage is the only inbound shape clients send.
type clientMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// ReadLoop consumes inbound frames until the connection dies, answering
// application pings and refreshing the liveness deadline.  It blocks and
// must be called from the connection's handler goroutine.
func (s *Subscriber) ReadLoop() {
	defer s.Close()
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue // non-JSON frames are ignored
		}
		switch msg.Type {
		case "ping":
			pong := map[string]any{"type": "pong"}
			if msg.Timestamp != 0 {
				pong["timestamp"] = msg.Timestamp
			}
			if body, err := json.Marshal(pong); err == nil {
				s.enqueue(body)
			}
		case "pong":
			// Already counted as liveness by the deadline reset above.
		}
	}
}
