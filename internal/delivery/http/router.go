package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Harsh-BH/alsit/internal/delivery/http/middleware"
	"github.com/Harsh-BH/alsit/internal/usecase"
)

// RouterDeps holds everything the HTTP surface needs.
type RouterDeps struct {
	SubmitUC    *usecase.SubmitTicketUsecase
	GetTicketUC *usecase.GetTicketUsecase
	Judges      JudgePool
	Checks      map[string]CheckFunc
	Logger      *zap.Logger

	RateLimitPerMin int
	BodyLimit       int64
}

// NewRouter creates and configures the Gin router with all routes and middleware.
func NewRouter(deps *RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS())
	router.Use(middleware.Logger(deps.Logger))

	// Metrics endpoint (no rate limiting)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		healthHandler := NewHealthHandler(deps.Judges, deps.Checks, deps.Logger)
		v1.GET("/health", healthHandler.Health)

		langHandler := NewLanguageHandler(deps.Judges)
		v1.GET("/languages", langHandler.List)

		ticketHandler := NewTicketHandler(deps.SubmitUC, deps.GetTicketUC, deps.Logger)
		v1.POST("/tickets",
			middleware.RateLimiter(deps.RateLimitPerMin),
			middleware.BodySizeLimit(deps.BodyLimit),
			ticketHandler.Submit,
		)
		v1.GET("/tickets/:id", ticketHandler.GetByID)

		wsHandler := NewWebSocketHandler(deps.GetTicketUC, deps.Logger)
		v1.GET("/tickets/:id/stream", wsHandler.Stream)
	}

	return router
}
