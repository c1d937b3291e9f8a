package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-locks/internal/lock"
)

// stubShowtimes treats every ID below 1000 as existing.
type stubShowtimes struct{}

func (stubShowtimes) Exists(_ context.Context, id uint64) (bool, error) {
	return id < 1000, nil
}

func newLockHandler(t *testing.T) (*LockHandler, *echo.Echo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc := lock.NewService(lock.NewRedisStore(client, time.Second), lock.NewKeys(""), nil, lock.Options{}, nil)
	e := echo.New()
	e.Validator = NewRequestValidator()
	return &LockHandler{Locks: svc, Showtimes: stubShowtimes{}, Log: zap.NewNop()}, e, mr
}

func doJSON(e *echo.Echo, method, path, body string, params map[string]string, h echo.HandlerFunc) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath(path)
	for k, v := range params {
		c.SetParamNames(k)
		c.SetParamValues(v)
	}
	if err := h(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestAcquireSuccess(t *testing.T) {
	h, e, _ := newLockHandler(t)

	rec := doJSON(e, http.MethodPost, "/v1/showtimes/:id/seats/lock",
		`{"seat_ids":[101,102],"owner":"sess-1"}`, map[string]string{"id": "1"}, h.Acquire)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Success   bool     `json:"success"`
		Locked    []uint64 `json:"locked"`
		TTLMs     int64    `json:"ttl_ms"`
		ExpiresAt int64    `json:"expires_at"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, []uint64{101, 102}, body.Locked)
	assert.Equal(t, int64(180_000), body.TTLMs)
	assert.Greater(t, body.ExpiresAt, time.Now().UnixMilli())
}

func TestAcquireConflictReturns409(t *testing.T) {
	h, e, _ := newLockHandler(t)

	rec := doJSON(e, http.MethodPost, "/v1/showtimes/:id/seats/lock",
		`{"seat_ids":[101],"owner":"alice"}`, map[string]string{"id": "1"}, h.Acquire)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(e, http.MethodPost, "/v1/showtimes/:id/seats/lock",
		`{"seat_ids":[101,102],"owner":"bob"}`, map[string]string{"id": "1"}, h.Acquire)
	require.Equal(t, http.StatusConflict, rec.Code)

	var body struct {
		Conflicts []struct {
			SeatID uint64 `json:"seat_id"`
			Owner  string `json:"owner"`
		} `json:"conflicts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Conflicts, 1)
	assert.Equal(t, uint64(101), body.Conflicts[0].SeatID)
	assert.Equal(t, "alice", body.Conflicts[0].Owner)
}

func TestAcquireOwnerObjectAccepted(t *testing.T) {
	h, e, _ := newLockHandler(t)

	rec := doJSON(e, http.MethodPost, "/v1/showtimes/:id/seats/lock",
		`{"seat_ids":[101],"owner":{"owner_token":"sess-2"}}`, map[string]string{"id": "1"}, h.Acquire)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAcquireRejectsBadInput(t *testing.T) {
	h, e, _ := newLockHandler(t)

	cases := []struct {
		name string
		body string
	}{
		{"empty seats", `{"seat_ids":[],"owner":"x"}`},
		{"missing owner", `{"seat_ids":[101]}`},
		{"zero seat id", `{"seat_ids":[0],"owner":"x"}`},
		{"owner not a token", `{"seat_ids":[101],"owner":{}}`},
	}
	for _, tc := range cases {
		rec := doJSON(e, http.MethodPost, "/v1/showtimes/:id/seats/lock",
			tc.body, map[string]string{"id": "1"}, h.Acquire)
		assert.Equal(t, http.StatusBadRequest, rec.Code, tc.name)
	}
}

func TestAcquireUnknownShowtime(t *testing.T) {
	h, e, _ := newLockHandler(t)

	rec := doJSON(e, http.MethodPost, "/v1/showtimes/:id/seats/lock",
		`{"seat_ids":[101],"owner":"x"}`, map[string]string{"id": "5000"}, h.Acquire)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExtendReportsNotOwned(t *testing.T) {
	h, e, _ := newLockHandler(t)

	doJSON(e, http.MethodPost, "/v1/showtimes/:id/seats/lock",
		`{"seat_ids":[101],"owner":"alice"}`, map[string]string{"id": "1"}, h.Acquire)

	rec := doJSON(e, http.MethodPost, "/v1/showtimes/:id/seats/extend",
		`{"seat_ids":[101,102],"owner":"alice","ttl_ms":60000}`, map[string]string{"id": "1"}, h.Extend)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Extended []uint64 `json:"extended"`
		NotOwned []uint64 `json:"not_owned"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []uint64{101}, body.Extended)
	assert.Equal(t, []uint64{102}, body.NotOwned)
}

func TestReleaseWithoutOwnerIsIdempotent(t *testing.T) {
	h, e, _ := newLockHandler(t)

	rec := doJSON(e, http.MethodPost, "/v1/showtimes/:id/seats/unlock",
		`{"seat_ids":[101]}`, map[string]string{"id": "1"}, h.Release)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		OK       bool     `json:"ok"`
		Released []uint64 `json:"released"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.OK)
	assert.Empty(t, body.Released)
}

func TestReleaseAllSeatsForOwner(t *testing.T) {
	h, e, _ := newLockHandler(t)

	doJSON(e, http.MethodPost, "/v1/showtimes/:id/seats/lock",
		`{"seat_ids":[101,102],"owner":"alice"}`, map[string]string{"id": "1"}, h.Acquire)

	// No seat_ids at all: every lock alice holds for the showtime goes.
	rec := doJSON(e, http.MethodPost, "/v1/showtimes/:id/seats/unlock",
		`{"owner":"alice"}`, map[string]string{"id": "1"}, h.Release)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Released []uint64 `json:"released"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.ElementsMatch(t, []uint64{101, 102}, body.Released)
}

func TestReleaseDegradedWhenStoreDown(t *testing.T) {
	h, e, mr := newLockHandler(t)

	doJSON(e, http.MethodPost, "/v1/showtimes/:id/seats/lock",
		`{"seat_ids":[101],"owner":"alice"}`, map[string]string{"id": "1"}, h.Acquire)
	mr.Close()

	rec := doJSON(e, http.MethodPost, "/v1/showtimes/:id/seats/unlock",
		`{"seat_ids":[101],"owner":"alice"}`, map[string]string{"id": "1"}, h.Release)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		OK       bool `json:"ok"`
		Degraded bool `json:"degraded"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.OK)
	assert.True(t, body.Degraded)
}

func TestAcquireFailsClosedWhenStoreDown(t *testing.T) {
	h, e, mr := newLockHandler(t)
	mr.Close()

	rec := doJSON(e, http.MethodPost, "/v1/showtimes/:id/seats/lock",
		`{"seat_ids":[101],"owner":"alice"}`, map[string]string{"id": "1"}, h.Acquire)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestInspectLocks(t *testing.T) {
	h, e, _ := newLockHandler(t)

	doJSON(e, http.MethodPost, "/v1/showtimes/:id/seats/lock",
		`{"seat_ids":[101],"owner":"alice"}`, map[string]string{"id": "1"}, h.Acquire)

	req := httptest.NewRequest(http.MethodGet, "/v1/showtimes/1/seats/locks?seat_ids=101,102", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, h.Inspect(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Seats []struct {
			SeatID uint64 `json:"seat_id"`
			Locked bool   `json:"locked"`
			Owner  string `json:"owner"`
		} `json:"seats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Seats, 2)
	assert.True(t, body.Seats[0].Locked)
	assert.Equal(t, "alice", body.Seats[0].Owner)
	assert.False(t, body.Seats[1].Locked)
}

func TestValidateOwnershipEndpoint(t *testing.T) {
	h, e, _ := newLockHandler(t)

	doJSON(e, http.MethodPost, "/v1/showtimes/:id/seats/lock",
		`{"seat_ids":[101],"owner":"alice"}`, map[string]string{"id": "1"}, h.Acquire)

	rec := doJSON(e, http.MethodPost, "/v1/showtimes/:id/seats/validate",
		`{"seat_ids":[101,102],"owner":"alice"}`, map[string]string{"id": "1"}, h.Validate)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Valid   bool     `json:"valid"`
		Missing []uint64 `json:"missing"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Valid)
	assert.Equal(t, []uint64{102}, body.Missing)
}
