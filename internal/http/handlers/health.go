package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports on the engine's dependencies: Postgres is required,
// Redis only backs rate limiting and the reset scheduler is informational.
type HealthHandler struct {
	db       Pinger
	redis    *redis.Client
	lastTick func() time.Time
	started  time.Time
	version  string
}

// NewHealthHandler creates a new health handler. redis and lastTick may be nil.
func NewHealthHandler(db Pinger, redisClient *redis.Client, lastTick func() time.Time, version string) *HealthHandler {
	return &HealthHandler{
		db:       db,
		redis:    redisClient,
		lastTick: lastTick,
		started:  time.Now(),
		version:  version,
	}
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version,omitempty"`
	Uptime    string            `json:"uptime,omitempty"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Liveness is the k8s liveness probe. It never touches dependencies.
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness fails only when Postgres is unreachable.
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{
		"database": h.checkDatabase(ctx),
		"redis":    h.checkRedis(ctx),
	}
	if tick := h.lastResetTick(); tick != "" {
		checks["last_reset_tick"] = tick
	}

	res := HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}
	code := http.StatusOK
	if checks["database"] != "healthy" {
		res.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, res)
}

// Health is the short form used by load balancers.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if state := h.checkDatabase(ctx); state != "healthy" {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  "database unavailable",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": h.version})
}

func (h *HealthHandler) checkDatabase(ctx context.Context) string {
	if err := h.db.Ping(ctx); err != nil {
		return "unhealthy: " + err.Error()
	}
	return "healthy"
}

// rate limiting fails open, so a redis outage only degrades
func (h *HealthHandler) checkRedis(ctx context.Context) string {
	if h.redis == nil {
		return "disabled"
	}
	if err := h.redis.Ping(ctx).Err(); err != nil {
		return "degraded: " + err.Error()
	}
	return "healthy"
}

func (h *HealthHandler) lastResetTick() string {
	if h.lastTick == nil {
		return ""
	}
	t := h.lastTick()
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
