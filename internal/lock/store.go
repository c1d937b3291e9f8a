package lock

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the thin adapter over the shared key-value store.  Every method
// is an I/O boundary with a bounded deadline; callers never see a raw
// transport error without the service layer mapping it first.
//
// The mutating batch operations are atomic with respect to every other
// caller on every server instance: each one runs as a single Lua script,
// never as a sequence of independent per-key commands.
type Store interface {
	// AcquireBatch claims every key for owner, all-or-nothing.  Keys
	// already held by the same owner count as acquired.  On conflict no
	// key changes hands and the current holders are reported.
	AcquireBatch(ctx context.Context, keys []string, owner string, ttl time.Duration) (*AcquireReply, error)
	// ExtendBatch refreshes the TTL of every key currently held by
	// owner.  The returned slice parallels keys: true means refreshed.
	ExtendBatch(ctx context.Context, keys []string, owner string, ttl time.Duration) ([]bool, error)
	// ReleaseBatch deletes every key held by owner.  Absent keys count
	// as released (idempotent); keys held by someone else are reported
	// as ReleaseNotOwned.
	ReleaseBatch(ctx context.Context, keys []string, owner string) ([]ReleaseState, error)
	// InspectBatch reads owner and remaining TTL for each key without
	// mutating anything.
	InspectBatch(ctx context.Context, keys []string) ([]Entry, error)
	// ScanKeys lists every key matching the pattern.
	ScanKeys(ctx context.Context, pattern string) ([]string, error)
	// Ping verifies store reachability for health checks.
	Ping(ctx context.Context) error
}

// AcquireReply is the outcome of one atomic batch acquire.
type AcquireReply struct {
	OK        bool
	Locked    []uint64   // seat IDs locked or already held by the owner
	Conflicts []Conflict // populated only when OK is false
}

// Conflict names a seat somebody else holds and who holds it.
type Conflict struct {
	SeatID uint64 `json:"seat_id"`
	Owner  string `json:"owner"`
}

// ReleaseState is the per-key outcome of a batch release.
type ReleaseState int

const (
	ReleaseNotOwned ReleaseState = iota // held by a different owner, untouched
	Released                            // deleted by this call
	ReleaseAbsent                       // no lock existed; released idempotently
)

// Entry is the read-only view of one lock key.
type Entry struct {
	Owner string        // empty when no active lock exists
	TTL   time.Duration // remaining lifetime; zero when unlocked
}

// acquireScript claims a batch of seat keys for one owner in two passes
// inside a single atomic execution: pass one finds conflicts, pass two
// claims.  Because Redis runs the whole script without interleaving other
// commands, check-then-set cannot race and a conflicting batch leaves no
// new locks behind.  Keys already held by the requesting owner are treated
// as acquired without refreshing their TTL; extension is a separate call.
var acquireScript = redis.NewScript(`
local owner = ARGV[1]
local ttl_ms = tonumber(ARGV[2])
local conflicts = {}
local held = {}
for i = 1, #KEYS do
    local current = redis.call('GET', KEYS[i])
    if current and current ~= owner then
        local sid = tonumber(string.match(KEYS[i], ":(%d+)$"))
        table.insert(conflicts, {seat_id = sid, owner = current})
    elseif current then
        held[i] = true
    end
end
if #conflicts > 0 then
    return {0, cjson.encode(conflicts)}
end
local locked = {}
for i = 1, #KEYS do
    if not held[i] then
        redis.call('SET', KEYS[i], owner, 'PX', ttl_ms)
    end
    table.insert(locked, tonumber(string.match(KEYS[i], ":(%d+)$")))
end
return {1, cjson.encode(locked)}
`)

// extendScript refreshes TTLs only for keys the owner still holds.
var extendScript = redis.NewScript(`
local owner = ARGV[1]
local ttl_ms = tonumber(ARGV[2])
local out = {}
for i = 1, #KEYS do
    if redis.call('GET', KEYS[i]) == owner then
        redis.call('PEXPIRE', KEYS[i], ttl_ms)
        out[i] = 1
    else
        out[i] = 0
    end
end
return out
`)

// releaseScript deletes keys the owner holds.  2 = no lock existed,
// 1 = deleted, 0 = held by someone else.
var releaseScript = redis.NewScript(`
local owner = ARGV[1]
local out = {}
for i = 1, #KEYS do
    local current = redis.call('GET', KEYS[i])
    if current == false then
        out[i] = 2
    elseif current == owner then
        redis.call('DEL', KEYS[i])
        out[i] = 1
    else
        out[i] = 0
    end
end
return out
`)

// RedisStore implements Store against a shared Redis.
type RedisStore struct {
	client  *redis.Client
	timeout time.Duration
}

// NewRedisStore wraps the client with a per-operation deadline.  A zero
// timeout defaults to one second, matching the request budget the lock
// endpoints run under.
func NewRedisStore(client *redis.Client, timeout time.Duration) *RedisStore {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &RedisStore{client: client, timeout: timeout}
}

func (s *RedisStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// AcquireBatch runs the atomic multi-key acquire script.
func (s *RedisStore) AcquireBatch(ctx context.Context, keys []string, owner string, ttl time.Duration) (*AcquireReply, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	raw, err := acquireScript.Run(ctx, s.client, keys, owner, ttl.Milliseconds()).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire script: %w", err)
	}
	parts, ok := raw.([]interface{})
	if !ok || len(parts) != 2 {
		return nil, fmt.Errorf("acquire script: unexpected reply %T", raw)
	}
	status, _ := parts[0].(int64)
	payload, _ := parts[1].(string)

	if status == 1 {
		var locked []uint64
		if err := json.Unmarshal([]byte(payload), &locked); err != nil {
			return nil, fmt.Errorf("acquire script: decode locked: %w", err)
		}
		return &AcquireReply{OK: true, Locked: locked}, nil
	}
	var conflicts []Conflict
	if err := json.Unmarshal([]byte(payload), &conflicts); err != nil {
		return nil, fmt.Errorf("acquire script: decode conflicts: %w", err)
	}
	return &AcquireReply{OK: false, Conflicts: conflicts}, nil
}

// ExtendBatch runs the owner-checked TTL refresh script.
func (s *RedisStore) ExtendBatch(ctx context.Context, keys []string, owner string, ttl time.Duration) ([]bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	raw, err := extendScript.Run(ctx, s.client, keys, owner, ttl.Milliseconds()).Result()
	if err != nil {
		return nil, fmt.Errorf("extend script: %w", err)
	}
	flags, ok := raw.([]interface{})
	if !ok || len(flags) != len(keys) {
		return nil, fmt.Errorf("extend script: unexpected reply %T", raw)
	}
	out := make([]bool, len(keys))
	for i, f := range flags {
		n, _ := f.(int64)
		out[i] = n == 1
	}
	return out, nil
}

// ReleaseBatch runs the owner-checked delete script.
func (s *RedisStore) ReleaseBatch(ctx context.Context, keys []string, owner string) ([]ReleaseState, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	raw, err := releaseScript.Run(ctx, s.client, keys, owner).Result()
	if err != nil {
		return nil, fmt.Errorf("release script: %w", err)
	}
	codes, ok := raw.([]interface{})
	if !ok || len(codes) != len(keys) {
		return nil, fmt.Errorf("release script: unexpected reply %T", raw)
	}
	out := make([]ReleaseState, len(keys))
	for i, c := range codes {
		switch n, _ := c.(int64); n {
		case 1:
			out[i] = Released
		case 2:
			out[i] = ReleaseAbsent
		default:
			out[i] = ReleaseNotOwned
		}
	}
	return out, nil
}

// InspectBatch pipelines a GET and PTTL per key so a 300-seat showtime
// costs one round trip, not six hundred.
func (s *RedisStore) InspectBatch(ctx context.Context, keys []string) ([]Entry, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	pipe := s.client.Pipeline()
	gets := make([]*redis.StringCmd, len(keys))
	ttls := make([]*redis.DurationCmd, len(keys))
	for i, k := range keys {
		gets[i] = pipe.Get(ctx, k)
		ttls[i] = pipe.PTTL(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("inspect pipeline: %w", err)
	}

	out := make([]Entry, len(keys))
	for i := range keys {
		owner, err := gets[i].Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("inspect get: %w", err)
		}
		ttl, err := ttls[i].Result()
		if err != nil {
			return nil, fmt.Errorf("inspect pttl: %w", err)
		}
		// A key read between natural expiry and lazy deletion can
		// report a non-positive TTL; such a lock is already dead.
		if ttl <= 0 {
			continue
		}
		out[i] = Entry{Owner: owner, TTL: ttl}
	}
	return out, nil
}

// ScanKeys iterates SCAN until the cursor wraps.
func (s *RedisStore) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %q: %w", pattern, err)
	}
	return keys, nil
}

// Ping checks store reachability.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.client.Ping(ctx).Err()
}
