package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-seat-locks/internal/hub"
	"github.com/iliyamo/cinema-seat-locks/internal/model"
)

type stubSource struct {
	mu    sync.Mutex
	calls int
	m     *model.SeatMap
	err   error
}

func (s *stubSource) Project(_ context.Context, showtimeID uint64) (*model.SeatMap, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if s.m != nil {
		return s.m, nil
	}
	return &model.SeatMap{ShowtimeID: showtimeID}, nil
}

func (s *stubSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubRelay struct {
	mu     sync.Mutex
	events []RemoteEvent
}

func (r *stubRelay) Publish(_ context.Context, ev RemoteEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *stubRelay) published() []RemoteEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RemoteEvent, len(r.events))
	copy(out, r.events)
	return out
}

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// subscribeClient attaches one real WebSocket subscriber to the hub and
// returns the client end for reading broadcasts.
func subscribeClient(t *testing.T, h *hub.Hub, showtimeID uint64) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sub := h.Subscribe(conn, showtimeID, "")
		go sub.ReadLoop()
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for h.Count(showtimeID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return client
}

// readEvents reads until it has seen want messages of the given type.
func readEvents(t *testing.T, c *websocket.Conn, eventType string, want int) []map[string]any {
	t.Helper()
	var out []map[string]any
	_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
	for len(out) < want {
		_, data, err := c.ReadMessage()
		require.NoError(t, err)
		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		if m["type"] == eventType {
			out = append(out, m)
		}
	}
	return out
}

func TestSeatsLockedBroadcastsDeltasAndRelays(t *testing.T) {
	h := hub.New(nil)
	relay := &stubRelay{}
	src := &stubSource{}
	o := New(h, src, relay, Options{Workers: 1}, nil)
	defer o.Stop()

	client := subscribeClient(t, h, 1)

	o.SeatsLocked(1, []uint64{10001, 10002}, "sess-1")

	events := readEvents(t, client, EventSeatLocked, 2)
	seat := events[0]["seat"].(map[string]any)
	assert.Equal(t, "sess-1", seat["locked_by"])

	deadline := time.Now().Add(2 * time.Second)
	for len(relay.published()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	pubs := relay.published()
	require.Len(t, pubs, 1)
	assert.Equal(t, EventSeatLocked, pubs[0].Type)
	assert.Equal(t, []uint64{10001, 10002}, pubs[0].SeatIDs)
	assert.Equal(t, "sess-1", pubs[0].Owner)
}

func TestRefreshBroadcastsFullSeatMap(t *testing.T) {
	h := hub.New(nil)
	src := &stubSource{m: &model.SeatMap{
		ShowtimeID: 1,
		Seats:      []model.SeatState{{SeatID: 10000, Row: "A", Number: 1, Status: model.SeatAvailable, Label: "A1"}},
	}}
	o := New(h, src, nil, Options{Workers: 1}, nil)
	defer o.Stop()

	client := subscribeClient(t, h, 1)
	o.RefreshSeatMap(1)

	events := readEvents(t, client, EventSeatUpdate, 1)
	seats := events[0]["seats"].([]any)
	require.Len(t, seats, 1)
	assert.Equal(t, "A1", seats[0].(map[string]any)["label"])
}

func TestRefreshFallsBackToPartialOnProjectionError(t *testing.T) {
	h := hub.New(nil)
	src := &stubSource{err: errors.New("projection too slow")}
	o := New(h, src, nil, Options{Workers: 1}, nil)
	defer o.Stop()

	client := subscribeClient(t, h, 1)
	o.RefreshSeatMap(1)

	events := readEvents(t, client, EventSeatUpdatePartial, 1)
	assert.Equal(t, "partial", events[0]["note"])
}

func TestRefreshSkippedWithoutSubscribers(t *testing.T) {
	h := hub.New(nil)
	src := &stubSource{}
	o := New(h, src, nil, Options{Workers: 1}, nil)
	defer o.Stop()

	o.RefreshSeatMap(1)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, src.callCount())
}

func TestHandleRemoteRebroadcastsWithoutRelaying(t *testing.T) {
	h := hub.New(nil)
	relay := &stubRelay{}
	src := &stubSource{}
	o := New(h, src, relay, Options{Workers: 1}, nil)
	defer o.Stop()

	client := subscribeClient(t, h, 1)

	o.HandleRemote(RemoteEvent{Type: EventSeatLocked, ShowtimeID: 1, SeatIDs: []uint64{10001}, Owner: "sess-9", Origin: "other"})

	readEvents(t, client, EventSeatLocked, 1)
	// A relayed event must not bounce back out.
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, relay.published())
}

func TestHandleRemoteIgnoresUnknownType(t *testing.T) {
	h := hub.New(nil)
	o := New(h, &stubSource{}, nil, Options{Workers: 1}, nil)
	defer o.Stop()

	o.HandleRemote(RemoteEvent{Type: "garbage", ShowtimeID: 1})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, len(o.jobs))
}

func TestRefreshCoalescing(t *testing.T) {
	h := hub.New(nil)
	o := New(h, &stubSource{}, nil, Options{Workers: 1}, nil)

	// Stop the workers so nothing drains the queue; enqueueing still
	// works against the buffered channel.
	o.Stop()

	o.RefreshSeatMap(5)
	o.RefreshSeatMap(5)
	o.RefreshSeatMap(5)

	assert.Equal(t, 1, len(o.jobs))
	o.pendingMu.Lock()
	assert.Len(t, o.pendingRefresh, 1)
	o.pendingMu.Unlock()
}
