package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func healthRouter(h *HealthHandler) *gin.Engine {
	r := gin.New()
	r.GET("/health", h.Health)
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)
	return r
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestReadiness(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	tick := time.Date(2024, 3, 1, 23, 30, 0, 0, time.UTC)
	h := NewHealthHandler(pingerFunc(func(context.Context) error { return nil }), client, func() time.Time { return tick }, "test")
	r := healthRouter(h)

	w := get(r, "/readyz")
	require.Equal(t, http.StatusOK, w.Code)

	var res HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "healthy", res.Status)
	assert.Equal(t, "healthy", res.Checks["database"])
	assert.Equal(t, "healthy", res.Checks["redis"])
	assert.Equal(t, "2024-03-01T23:30:00Z", res.Checks["last_reset_tick"])

	// a redis outage degrades but does not fail readiness
	mr.Close()
	w = get(r, "/readyz")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Contains(t, res.Checks["redis"], "degraded")
}

func TestReadiness_DatabaseDown(t *testing.T) {
	h := NewHealthHandler(pingerFunc(func(context.Context) error { return errors.New("connection refused") }), nil, nil, "test")
	r := healthRouter(h)

	w := get(r, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = get(r, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = get(r, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
}
