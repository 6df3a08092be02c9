package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// HealthHandler answers the liveness probe. Storage backends are
// pinged so a wedged pool fails the probe.
type HealthHandler struct {
	pool  *pgxpool.Pool
	redis redis.UniversalClient
}

// NewHealthHandler constructs the handler.
func NewHealthHandler(pool *pgxpool.Pool, redisClient redis.UniversalClient) *HealthHandler {
	return &HealthHandler{pool: pool, redis: redisClient}
}

// Check handles GET /healthz.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.pool.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
		return
	}
	if err := h.redis.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
