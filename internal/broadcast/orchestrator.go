package broadcast

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-locks/internal/hub"
	"github.com/iliyamo/cinema-seat-locks/internal/metrics"
	"github.com/iliyamo/cinema-seat-locks/internal/model"
)

// SeatMapSource produces a full projection; satisfied by the projector.
type SeatMapSource interface {
	Project(ctx context.Context, showtimeID uint64) (*model.SeatMap, error)
}

// Relay forwards delta events to other server instances.  Implemented by
// the AMQP publisher; nil disables cross-instance relay.
type Relay interface {
	Publish(ctx context.Context, ev RemoteEvent) error
}

type jobKind int

const (
	jobSeatsLocked jobKind = iota
	jobSeatsReleased
	jobRefresh
)

type job struct {
	kind       jobKind
	showtimeID uint64
	seatIDs    []uint64
	owner      string
	local      bool // false for events replayed from the relay
}

// Orchestrator consumes lock mutation notifications and drives the hub.
// Jobs go through a bounded queue serviced by a fixed worker pool, so a
// slow projection or a flaky relay can never stall the request handler
// that triggered it.  When the queue is full the job is dropped and
// counted; subscribers recover on the next full refresh.
type Orchestrator struct {
	hub      *hub.Hub
	seatMaps SeatMapSource
	relay    Relay

	jobs           chan job
	projectTimeout time.Duration

	pendingMu      sync.Mutex
	pendingRefresh map[uint64]struct{}

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup

	log *zap.Logger
}

// Options tune the orchestrator's queue and pool.
type Options struct {
	QueueSize      int           // bounded job queue; default 256
	Workers        int           // concurrent job processors; default 2
	ProjectTimeout time.Duration // budget for one full projection; default 1s
}

// New builds an Orchestrator and starts its workers.
func New(h *hub.Hub, seatMaps SeatMapSource, relay Relay, opts Options, log *zap.Logger) *Orchestrator {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.ProjectTimeout <= 0 {
		opts.ProjectTimeout = time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	o := &Orchestrator{
		hub:            h,
		seatMaps:       seatMaps,
		relay:          relay,
		jobs:           make(chan job, opts.QueueSize),
		projectTimeout: opts.ProjectTimeout,
		pendingRefresh: make(map[uint64]struct{}),
		stop:           make(chan struct{}),
		log:            log,
	}
	for i := 0; i < opts.Workers; i++ {
		o.wg.Add(1)
		go o.worker()
	}
	return o
}

// SeatsLocked implements lock.EventSink.
func (o *Orchestrator) SeatsLocked(showtimeID uint64, seatIDs []uint64, owner string) {
	o.enqueue(job{kind: jobSeatsLocked, showtimeID: showtimeID, seatIDs: seatIDs, owner: owner, local: true})
}

// SeatsReleased implements lock.EventSink.
func (o *Orchestrator) SeatsReleased(showtimeID uint64, seatIDs []uint64) {
	o.enqueue(job{kind: jobSeatsReleased, showtimeID: showtimeID, seatIDs: seatIDs, local: true})
}

// RefreshSeatMap implements lock.EventSink.  Refreshes for the same
// showtime are coalesced while one is still queued: broadcasting the
// projection twice in a row buys nothing.
func (o *Orchestrator) RefreshSeatMap(showtimeID uint64) {
	o.pendingMu.Lock()
	if _, dup := o.pendingRefresh[showtimeID]; dup {
		o.pendingMu.Unlock()
		return
	}
	o.pendingRefresh[showtimeID] = struct{}{}
	o.pendingMu.Unlock()

	if !o.enqueueOK(job{kind: jobRefresh, showtimeID: showtimeID}) {
		o.pendingMu.Lock()
		delete(o.pendingRefresh, showtimeID)
		o.pendingMu.Unlock()
	}
}

// HandleRemote rebroadcasts a delta committed on another instance to the
// local hub and schedules a local projection refresh.  Remote events are
// never relayed again.
func (o *Orchestrator) HandleRemote(ev RemoteEvent) {
	switch ev.Type {
	case EventSeatLocked:
		o.enqueue(job{kind: jobSeatsLocked, showtimeID: ev.ShowtimeID, seatIDs: ev.SeatIDs, owner: ev.Owner})
	case EventSeatReleased:
		o.enqueue(job{kind: jobSeatsReleased, showtimeID: ev.ShowtimeID, seatIDs: ev.SeatIDs})
	default:
		o.log.Warn("ignoring unknown relayed event", zap.String("type", ev.Type))
		return
	}
	o.RefreshSeatMap(ev.ShowtimeID)
}

// Stop drains nothing: queued jobs are abandoned, workers exit.  Called
// during process shutdown after the HTTP server has stopped.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stop) })
	o.wg.Wait()
}

func (o *Orchestrator) enqueue(j job) {
	if !o.enqueueOK(j) {
		metrics.BroadcastsDropped.Inc()
		o.log.Warn("broadcast queue full, dropping job",
			zap.Uint64("showtime_id", j.showtimeID))
	}
}

func (o *Orchestrator) enqueueOK(j job) bool {
	select {
	case o.jobs <- j:
		return true
	default:
		return false
	}
}

func (o *Orchestrator) worker() {
	defer o.wg.Done()
	for {
		select {
		case j := <-o.jobs:
			o.process(j)
		case <-o.stop:
			return
		}
	}
}

func (o *Orchestrator) process(j job) {
	switch j.kind {
	case jobSeatsLocked:
		for _, sid := range j.seatIDs {
			if n := o.hub.Broadcast(j.showtimeID, SeatLockedEvent(j.showtimeID, sid, j.owner)); n > 0 {
				metrics.BroadcastsSent.WithLabelValues(EventSeatLocked).Inc()
			}
		}
		o.relayOut(RemoteEvent{Type: EventSeatLocked, ShowtimeID: j.showtimeID, SeatIDs: j.seatIDs, Owner: j.owner}, j.local)
	case jobSeatsReleased:
		for _, sid := range j.seatIDs {
			if n := o.hub.Broadcast(j.showtimeID, SeatReleasedEvent(j.showtimeID, sid)); n > 0 {
				metrics.BroadcastsSent.WithLabelValues(EventSeatReleased).Inc()
			}
		}
		o.relayOut(RemoteEvent{Type: EventSeatReleased, ShowtimeID: j.showtimeID, SeatIDs: j.seatIDs}, j.local)
	case jobRefresh:
		o.refresh(j.showtimeID)
	}
}

func (o *Orchestrator) relayOut(ev RemoteEvent, local bool) {
	if o.relay == nil || !local {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := o.relay.Publish(ctx, ev); err != nil {
		o.log.Warn("relay publish failed",
			zap.Uint64("showtime_id", ev.ShowtimeID), zap.Error(err))
	}
}

// refresh computes and broadcasts the full projection for a showtime.
// With nobody subscribed the projection is skipped entirely.  When the
// projection misses its budget, subscribers get a lightweight refresh
// hint instead of nothing.
func (o *Orchestrator) refresh(showtimeID uint64) {
	o.pendingMu.Lock()
	delete(o.pendingRefresh, showtimeID)
	o.pendingMu.Unlock()

	if o.hub.Count(showtimeID) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.projectTimeout)
	defer cancel()
	m, err := o.seatMaps.Project(ctx, showtimeID)
	if err != nil {
		o.log.Warn("seat map projection for broadcast failed",
			zap.Uint64("showtime_id", showtimeID), zap.Error(err))
		if n := o.hub.Broadcast(showtimeID, SeatUpdatePartialEvent(showtimeID)); n > 0 {
			metrics.BroadcastsSent.WithLabelValues(EventSeatUpdatePartial).Inc()
		}
		return
	}
	if n := o.hub.Broadcast(showtimeID, SeatUpdateEvent(m)); n > 0 {
		metrics.BroadcastsSent.WithLabelValues(EventSeatUpdate).Inc()
	}
}
