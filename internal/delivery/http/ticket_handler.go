package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Harsh-BH/alsit/internal/delivery/http/middleware"
	"github.com/Harsh-BH/alsit/internal/domain"
	"github.com/Harsh-BH/alsit/internal/usecase"
)

// TicketHandler handles HTTP requests for tickets.
type TicketHandler struct {
	submitUC    *usecase.SubmitTicketUsecase
	getTicketUC *usecase.GetTicketUsecase
	logger      *zap.Logger
}

// NewTicketHandler creates a new TicketHandler.
func NewTicketHandler(submitUC *usecase.SubmitTicketUsecase, getTicketUC *usecase.GetTicketUsecase, logger *zap.Logger) *TicketHandler {
	return &TicketHandler{
		submitUC:    submitUC,
		getTicketUC: getTicketUC,
		logger:      logger,
	}
}

// Submit handles POST /api/v1/tickets
func (h *TicketHandler) Submit(c *gin.Context) {
	var req domain.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			middleware.AbortPayloadTooLarge(c, maxErr.Limit)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body: " + err.Error(),
		})
		return
	}

	resp, err := h.submitUC.Execute(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnknownLanguage),
			errors.Is(err, domain.ErrEmptySource),
			errors.Is(err, domain.ErrInvalidExercise):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, domain.ErrPayloadTooLarge):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		case errors.Is(err, domain.ErrNoCapacity), errors.Is(err, domain.ErrShuttingDown):
			body := gin.H{"error": err.Error()}
			if resp != nil {
				body["ticket_id"] = resp.TicketID
				body["status"] = resp.Status
			}
			c.JSON(http.StatusServiceUnavailable, body)
		case errors.Is(err, domain.ErrDatabaseUnavailable), errors.Is(err, domain.ErrTicketIDExhausted):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
		default:
			h.logger.Error("Submit ticket failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	c.JSON(http.StatusAccepted, resp)
}

// GetByID handles GET /api/v1/tickets/:id
func (h *TicketHandler) GetByID(c *gin.Context) {
	id, ok := parseTicketID(c)
	if !ok {
		return
	}

	ticket, err := h.getTicketUC.Execute(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrTicketNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Ticket not found"})
			return
		}
		h.logger.Error("Get ticket failed", zap.Error(err), zap.Int64("ticket_id", id))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, ticket)
}

func parseTicketID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ticket ID format"})
		return 0, false
	}
	return id, true
}
