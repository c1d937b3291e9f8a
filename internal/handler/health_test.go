package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-seat-locks/internal/lock"
)

func TestHealthLive(t *testing.T) {
	h := &HealthHandler{}
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	require.NoError(t, h.Live(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestHealthRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	svc := lock.NewService(lock.NewRedisStore(client, time.Second), lock.NewKeys(""), nil, lock.Options{}, nil)
	h := &HealthHandler{Locks: svc}
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/healthz/redis", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, h.Redis(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)

	mr.Close()
	rec = httptest.NewRecorder()
	require.NoError(t, h.Redis(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
