package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const healthCheckTimeout = 2 * time.Second

// CheckFunc checks one dependency.
type CheckFunc func(ctx context.Context) error

// HealthHandler handles health check requests.
type HealthHandler struct {
	judges JudgePool
	checks map[string]CheckFunc
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(judges JudgePool, checks map[string]CheckFunc, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{judges: judges, checks: checks, logger: logger}
}

// Health handles GET /api/v1/health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	services := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("Health check failed", zap.String("service", name), zap.Error(err))
			services[name] = "unavailable"
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		services[name] = "ok"
	}

	judges := gin.H{}
	busy := h.judges.Busy()
	for lang, n := range h.judges.Capacity() {
		judges[lang.String()] = gin.H{"capacity": n, "busy": busy[lang]}
	}

	c.JSON(code, gin.H{
		"status":    status,
		"services":  services,
		"judges":    judges,
		"in_flight": h.judges.InFlight(),
	})
}
