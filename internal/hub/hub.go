// Package hub owns the registry of live seat-map subscribers and the
// concurrent fan-out of events to them.  All registry access goes through
// Hub's methods; there is no package-level state.
package hub

import (
	"sync"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-locks/internal/metrics"
)

// Hub maps showtime IDs to the set of subscribers watching them.  One Hub
// serves the whole process; it is safe for concurrent use.
type Hub struct {
	mu    sync.RWMutex
	rooms map[uint64]map[*Subscriber]struct{}
	log   *zap.Logger
}

// New returns an empty Hub.
func New(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{rooms: make(map[uint64]map[*Subscriber]struct{}), log: log}
}

// register adds a subscriber to its showtime's room.  Called from
// Subscribe once the transport handshake and validation both succeeded.
func (h *Hub) register(sub *Subscriber) {
	h.mu.Lock()
	room, ok := h.rooms[sub.showtimeID]
	if !ok {
		room = make(map[*Subscriber]struct{})
		h.rooms[sub.showtimeID] = room
	}
	room[sub] = struct{}{}
	count := len(room)
	h.mu.Unlock()

	metrics.Subscribers.Inc()
	h.log.Info("subscriber connected",
		zap.Uint64("showtime_id", sub.showtimeID),
		zap.Int("room_size", count))
}

// unregister removes a subscriber.  Safe to call repeatedly and for
// subscribers that were never registered; disconnect paths race freely.
func (h *Hub) unregister(sub *Subscriber) {
	h.mu.Lock()
	room, ok := h.rooms[sub.showtimeID]
	if ok {
		if _, present := room[sub]; present {
			delete(room, sub)
			metrics.Subscribers.Dec()
		}
		if len(room) == 0 {
			delete(h.rooms, sub.showtimeID)
		}
	}
	h.mu.Unlock()
}

// Count returns the number of live subscribers for a showtime.  The
// orchestrator uses it to skip expensive projections nobody would see.
func (h *Hub) Count(showtimeID uint64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[showtimeID])
}

// Broadcast queues the message to every current subscriber of a showtime
// and returns how many accepted it.  Delivery is concurrent: each
// subscriber has its own buffered send queue and writer goroutine, so one
// stalled peer cannot block the rest.  Subscribers whose queue is full are
// considered dead and pruned after the whole attempt completes.
func (h *Hub) Broadcast(showtimeID uint64, message []byte) int {
	h.mu.RLock()
	room := h.rooms[showtimeID]
	subs := make([]*Subscriber, 0, len(room))
	for sub := range room {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	if len(subs) == 0 {
		return 0
	}

	delivered := 0
	var failed []*Subscriber
	for _, sub := range subs {
		if sub.enqueue(message) {
			delivered++
		} else {
			failed = append(failed, sub)
		}
	}
	// Prune only after every subscriber had its delivery attempt.
	for _, sub := range failed {
		h.log.Warn("pruning unresponsive subscriber",
			zap.Uint64("showtime_id", showtimeID))
		sub.Close()
	}
	return delivered
}

// Shutdown closes every subscriber with a "server shutting down" close
// frame.  New registrations arriving during shutdown are closed by their
// own connection teardown when the HTTP server stops accepting upgrades.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	var all []*Subscriber
	for _, room := range h.rooms {
		for sub := range room {
			all = append(all, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range all {
		sub.shutdown()
	}
	h.log.Info("hub shut down", zap.Int("subscribers_closed", len(all)))
}
