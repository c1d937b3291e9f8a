package lock

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-locks/internal/metrics"
)

// EventSink receives notifications about successful lock mutations.  The
// broadcast orchestrator implements it; the service only ever calls it
// after the store has committed, and implementations must return quickly
// because they run on the request path.
type EventSink interface {
	SeatsLocked(showtimeID uint64, seatIDs []uint64, owner string)
	SeatsReleased(showtimeID uint64, seatIDs []uint64)
	RefreshSeatMap(showtimeID uint64)
}

// NopSink discards all events.  Used in tests and while wiring partial
// deployments.
type NopSink struct{}

func (NopSink) SeatsLocked(uint64, []uint64, string) {}
func (NopSink) SeatsReleased(uint64, []uint64)       {}
func (NopSink) RefreshSeatMap(uint64)                {}

// FailureMode picks the behavior when the store is unreachable during a
// mutation.  Reads always fail soft; mutations are fail-closed unless an
// operator explicitly trades correctness for availability.
type FailureMode int

const (
	// FailClosed rejects acquires and extends when the store is down.
	// This is the default: a rejected buyer can retry, a double-booked
	// seat cannot be un-sold.
	FailClosed FailureMode = iota
	// FailOpen grants acquires and extends without store confirmation.
	// Mutual exclusion is void while this mode is active.
	FailOpen
)

// Options bound the tunable parts of the service.
type Options struct {
	DefaultTTL  time.Duration // applied when a request omits ttlMs
	MinTTL      time.Duration // requests below are clamped up
	MaxTTL      time.Duration // requests above are clamped down
	FailureMode FailureMode
}

func (o *Options) fillDefaults() {
	if o.DefaultTTL <= 0 {
		o.DefaultTTL = 3 * time.Minute
	}
	if o.MinTTL <= 0 {
		o.MinTTL = 5 * time.Second
	}
	if o.MaxTTL <= 0 {
		o.MaxTTL = 10 * time.Minute
	}
}

// Service implements time-bounded mutual exclusion over (showtime, seat)
// pairs.  All correctness rests on the store's atomic batch primitives;
// the service validates input, clamps TTLs, applies the failure policy and
// notifies the event sink.  It holds no per-seat state of its own, so any
// number of instances can run against the same store.
type Service struct {
	store Store
	keys  Keys
	sink  EventSink
	opts  Options
	log   *zap.Logger
}

// NewService wires a Service.  A nil sink is replaced with NopSink.
func NewService(store Store, keys Keys, sink EventSink, opts Options, log *zap.Logger) *Service {
	if sink == nil {
		sink = NopSink{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	opts.fillDefaults()
	return &Service{store: store, keys: keys, sink: sink, opts: opts, log: log}
}

// SetSink replaces the event sink.  The broadcast pipeline consumes the
// seat-map projector, which in turn reads locks from this service, so the
// sink can only be attached after both exist.  Call during wiring, before
// the service handles requests.
func (s *Service) SetSink(sink EventSink) {
	if sink == nil {
		sink = NopSink{}
	}
	s.sink = sink
}

// Result is the outcome of an acquire attempt.
type Result struct {
	Success   bool
	Locked    []uint64
	Conflicts []Conflict
	TTL       time.Duration
	ExpiresAt time.Time
}

// ExtendResult reports which seats had their TTL refreshed.
type ExtendResult struct {
	Extended []uint64
	NotOwned []uint64
	TTL      time.Duration
}

// ReleaseResult reports which seats were released.  Degraded means the
// store could not be reached and nothing is known about the outcome.
type ReleaseResult struct {
	Released []uint64
	NotOwned []uint64
	Degraded bool
}

// SeatLockInfo is the read-only view of one seat's lock for inspection.
type SeatLockInfo struct {
	SeatID    uint64
	Owner     string // empty when unlocked
	TTL       time.Duration
	ExpiresAt time.Time // zero when unlocked
}

// Acquire claims all seats for owner or none of them.  Seats already held
// by the same owner count as acquired (idempotent re-request).  On any
// conflict the whole batch is rejected and no new lock survives the
// attempt; the response names each contested seat and its current holder.
func (s *Service) Acquire(ctx context.Context, showtimeID uint64, seatIDs []uint64, owner string, ttl time.Duration) (*Result, error) {
	seatIDs, err := normalizeSeats(seatIDs)
	if err != nil {
		metrics.LockOps.WithLabelValues("acquire", "invalid").Inc()
		return nil, err
	}
	if owner == "" {
		metrics.LockOps.WithLabelValues("acquire", "invalid").Inc()
		return nil, fmt.Errorf("%w: empty owner", ErrInvalidRequest)
	}
	ttl = s.clampTTL(ttl)

	reply, err := s.store.AcquireBatch(ctx, s.keys.Seats(showtimeID, seatIDs), owner, ttl)
	if err != nil {
		s.log.Error("acquire: store error",
			zap.Uint64("showtime_id", showtimeID),
			zap.Error(err))
		metrics.LockOps.WithLabelValues("acquire", "store_error").Inc()
		if s.opts.FailureMode == FailOpen {
			s.log.Warn("acquire: fail-open grants batch without store confirmation",
				zap.Uint64("showtime_id", showtimeID),
				zap.Uint64s("seat_ids", seatIDs))
			s.notifyLocked(showtimeID, seatIDs, owner)
			return &Result{Success: true, Locked: seatIDs, TTL: ttl, ExpiresAt: time.Now().Add(ttl)}, nil
		}
		return nil, ErrStoreUnavailable
	}

	res := &Result{
		Success:   reply.OK,
		Locked:    reply.Locked,
		Conflicts: reply.Conflicts,
		TTL:       ttl,
		ExpiresAt: time.Now().Add(ttl),
	}
	if res.Locked == nil {
		res.Locked = []uint64{}
	}
	if res.Conflicts == nil {
		res.Conflicts = []Conflict{}
	}
	if res.Success {
		metrics.LockOps.WithLabelValues("acquire", "success").Inc()
		metrics.SeatsLocked.Add(float64(len(res.Locked)))
		s.notifyLocked(showtimeID, res.Locked, owner)
	} else {
		metrics.LockOps.WithLabelValues("acquire", "conflict").Inc()
	}
	return res, nil
}

// Extend refreshes the TTL of the seats owner still holds.  Seats held by
// somebody else, or not locked at all, are reported as NotOwned rather
// than treated as errors.
func (s *Service) Extend(ctx context.Context, showtimeID uint64, seatIDs []uint64, owner string, ttl time.Duration) (*ExtendResult, error) {
	seatIDs, err := normalizeSeats(seatIDs)
	if err != nil {
		metrics.LockOps.WithLabelValues("extend", "invalid").Inc()
		return nil, err
	}
	if owner == "" {
		metrics.LockOps.WithLabelValues("extend", "invalid").Inc()
		return nil, fmt.Errorf("%w: empty owner", ErrInvalidRequest)
	}
	ttl = s.clampTTL(ttl)

	flags, err := s.store.ExtendBatch(ctx, s.keys.Seats(showtimeID, seatIDs), owner, ttl)
	if err != nil {
		s.log.Error("extend: store error",
			zap.Uint64("showtime_id", showtimeID),
			zap.Error(err))
		metrics.LockOps.WithLabelValues("extend", "store_error").Inc()
		if s.opts.FailureMode == FailOpen {
			return &ExtendResult{Extended: seatIDs, NotOwned: []uint64{}, TTL: ttl}, nil
		}
		return nil, ErrStoreUnavailable
	}

	res := &ExtendResult{Extended: []uint64{}, NotOwned: []uint64{}, TTL: ttl}
	for i, ok := range flags {
		if ok {
			res.Extended = append(res.Extended, seatIDs[i])
		} else {
			res.NotOwned = append(res.NotOwned, seatIDs[i])
		}
	}
	if len(res.NotOwned) > 0 {
		metrics.LockOps.WithLabelValues("extend", "not_owned").Inc()
	} else {
		metrics.LockOps.WithLabelValues("extend", "success").Inc()
	}
	if len(res.Extended) > 0 {
		s.sink.RefreshSeatMap(showtimeID)
	}
	return res, nil
}

// Release frees the given seats held by owner.  A nil or empty seat list
// releases every lock the owner holds for the showtime; this is what the
// disconnect and post-booking paths call.  Release never fails the caller:
// if the store is unreachable the result is flagged Degraded instead.
func (s *Service) Release(ctx context.Context, showtimeID uint64, seatIDs []uint64, owner string) (*ReleaseResult, error) {
	if owner == "" {
		metrics.LockOps.WithLabelValues("release", "invalid").Inc()
		return nil, fmt.Errorf("%w: empty owner", ErrInvalidRequest)
	}

	var keys []string
	if len(seatIDs) == 0 {
		found, err := s.store.ScanKeys(ctx, s.keys.Pattern(showtimeID))
		if err != nil {
			s.log.Error("release: scan error", zap.Uint64("showtime_id", showtimeID), zap.Error(err))
			metrics.LockOps.WithLabelValues("release", "store_error").Inc()
			return &ReleaseResult{Released: []uint64{}, NotOwned: []uint64{}, Degraded: true}, nil
		}
		keys = keys[:0]
		seatIDs = seatIDs[:0]
		for _, k := range found {
			sid, ok := s.keys.SeatID(k)
			if !ok {
				continue
			}
			keys = append(keys, k)
			seatIDs = append(seatIDs, sid)
		}
		if len(keys) == 0 {
			metrics.LockOps.WithLabelValues("release", "success").Inc()
			return &ReleaseResult{Released: []uint64{}, NotOwned: []uint64{}}, nil
		}
	} else {
		normalized, err := normalizeSeats(seatIDs)
		if err != nil {
			metrics.LockOps.WithLabelValues("release", "invalid").Inc()
			return nil, err
		}
		seatIDs = normalized
		keys = s.keys.Seats(showtimeID, seatIDs)
	}

	states, err := s.store.ReleaseBatch(ctx, keys, owner)
	if err != nil {
		s.log.Error("release: store error", zap.Uint64("showtime_id", showtimeID), zap.Error(err))
		metrics.LockOps.WithLabelValues("release", "store_error").Inc()
		return &ReleaseResult{Released: []uint64{}, NotOwned: []uint64{}, Degraded: true}, nil
	}

	res := &ReleaseResult{Released: []uint64{}, NotOwned: []uint64{}}
	var freed []uint64
	for i, st := range states {
		switch st {
		case Released:
			res.Released = append(res.Released, seatIDs[i])
			freed = append(freed, seatIDs[i])
		case ReleaseAbsent:
			res.Released = append(res.Released, seatIDs[i])
		default:
			res.NotOwned = append(res.NotOwned, seatIDs[i])
		}
	}
	if len(res.NotOwned) > 0 {
		metrics.LockOps.WithLabelValues("release", "not_owned").Inc()
	} else {
		metrics.LockOps.WithLabelValues("release", "success").Inc()
	}
	if len(freed) > 0 {
		s.sink.SeatsReleased(showtimeID, freed)
		s.sink.RefreshSeatMap(showtimeID)
	}
	return res, nil
}

// Inspect reads the lock state of each seat.  It fails soft: when the
// store is unreachable every seat is reported unlocked and the second
// return value is false so callers can flag the answer as degraded.
func (s *Service) Inspect(ctx context.Context, showtimeID uint64, seatIDs []uint64) ([]SeatLockInfo, bool) {
	seatIDs, err := normalizeSeats(seatIDs)
	if err != nil {
		return []SeatLockInfo{}, true
	}
	entries, err := s.store.InspectBatch(ctx, s.keys.Seats(showtimeID, seatIDs))
	if err != nil {
		s.log.Warn("inspect: store error, degrading to no lock information",
			zap.Uint64("showtime_id", showtimeID), zap.Error(err))
		out := make([]SeatLockInfo, len(seatIDs))
		for i, sid := range seatIDs {
			out[i] = SeatLockInfo{SeatID: sid}
		}
		return out, false
	}
	now := time.Now()
	out := make([]SeatLockInfo, len(seatIDs))
	for i, sid := range seatIDs {
		out[i] = SeatLockInfo{SeatID: sid}
		if entries[i].Owner != "" {
			out[i].Owner = entries[i].Owner
			out[i].TTL = entries[i].TTL
			out[i].ExpiresAt = now.Add(entries[i].TTL)
		}
	}
	return out, true
}

// ActiveOwners returns seatID -> owner for every seat of the batch that is
// currently locked.  The projector calls this on every seat-map render, so
// it is a single pipelined store round trip and fails soft like Inspect.
func (s *Service) ActiveOwners(ctx context.Context, showtimeID uint64, seatIDs []uint64) (map[uint64]string, bool) {
	if len(seatIDs) == 0 {
		return map[uint64]string{}, true
	}
	entries, err := s.store.InspectBatch(ctx, s.keys.Seats(showtimeID, seatIDs))
	if err != nil {
		s.log.Warn("projection lock lookup degraded",
			zap.Uint64("showtime_id", showtimeID), zap.Error(err))
		return map[uint64]string{}, false
	}
	owners := make(map[uint64]string)
	for i, e := range entries {
		if e.Owner != "" {
			owners[seatIDs[i]] = e.Owner
		}
	}
	return owners, true
}

// OwnershipReport is the answer to a pre-payment ownership check.
type OwnershipReport struct {
	Valid    bool
	Missing  []uint64 // seats not locked by owner (expired or foreign)
	Degraded bool
}

// ValidateOwnership checks, before a payment commits, that owner still
// holds every listed seat.  It fails soft: a degraded answer reports valid
// with Degraded set so the booking flow can decide whether to proceed.
func (s *Service) ValidateOwnership(ctx context.Context, showtimeID uint64, seatIDs []uint64, owner string) (*OwnershipReport, error) {
	seatIDs, err := normalizeSeats(seatIDs)
	if err != nil {
		return nil, err
	}
	if owner == "" {
		return nil, fmt.Errorf("%w: empty owner", ErrInvalidRequest)
	}
	entries, err := s.store.InspectBatch(ctx, s.keys.Seats(showtimeID, seatIDs))
	if err != nil {
		s.log.Warn("ownership validation degraded",
			zap.Uint64("showtime_id", showtimeID), zap.Error(err))
		return &OwnershipReport{Valid: true, Missing: []uint64{}, Degraded: true}, nil
	}
	report := &OwnershipReport{Valid: true, Missing: []uint64{}}
	for i, e := range entries {
		if e.Owner != owner {
			report.Valid = false
			report.Missing = append(report.Missing, seatIDs[i])
		}
	}
	return report, nil
}

// Ping exposes store reachability for the health endpoint.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) notifyLocked(showtimeID uint64, seatIDs []uint64, owner string) {
	if len(seatIDs) == 0 {
		return
	}
	s.sink.SeatsLocked(showtimeID, seatIDs, owner)
	s.sink.RefreshSeatMap(showtimeID)
}

func (s *Service) clampTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return s.opts.DefaultTTL
	}
	if ttl < s.opts.MinTTL {
		return s.opts.MinTTL
	}
	if ttl > s.opts.MaxTTL {
		return s.opts.MaxTTL
	}
	return ttl
}

// normalizeSeats rejects empty batches and zero IDs, deduplicates and
// sorts so store calls and responses are deterministic.
func normalizeSeats(seatIDs []uint64) ([]uint64, error) {
	if len(seatIDs) == 0 {
		return nil, fmt.Errorf("%w: seat list is empty", ErrInvalidRequest)
	}
	seen := make(map[uint64]struct{}, len(seatIDs))
	out := make([]uint64, 0, len(seatIDs))
	for _, sid := range seatIDs {
		if sid == 0 {
			return nil, fmt.Errorf("%w: seat id must be positive", ErrInvalidRequest)
		}
		if _, dup := seen[sid]; dup {
			continue
		}
		seen[sid] = struct{}{}
		out = append(out, sid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
