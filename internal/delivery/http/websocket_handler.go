package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Harsh-BH/alsit/internal/domain"
	"github.com/Harsh-BH/alsit/internal/usecase"
)

const streamPollInterval = 500 * time.Millisecond

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler streams ticket status changes over a WebSocket.
type WebSocketHandler struct {
	getTicketUC *usecase.GetTicketUsecase
	logger      *zap.Logger
	interval    time.Duration
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(getTicketUC *usecase.GetTicketUsecase, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		getTicketUC: getTicketUC,
		logger:      logger,
		interval:    streamPollInterval,
	}
}

// Stream handles GET /api/v1/tickets/:id/stream (WebSocket upgrade).
// A message is sent whenever the status changes; the stream closes once the
// ticket is TESTED.
func (h *WebSocketHandler) Stream(c *gin.Context) {
	id, ok := parseTicketID(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.logger.Debug("WebSocket connection opened", zap.Int64("ticket_id", id))

	// Clients never send anything; reading only surfaces a disconnect.
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var last domain.TicketStatus
	for {
		ticket, err := h.getTicketUC.Execute(ctx, id)
		if ctx.Err() != nil {
			h.logger.Debug("WebSocket client disconnected", zap.Int64("ticket_id", id))
			return
		}
		if err != nil {
			msg := "Internal server error"
			if errors.Is(err, domain.ErrTicketNotFound) {
				msg = "Ticket not found"
			}
			conn.WriteJSON(gin.H{"error": msg})
			return
		}

		if ticket.Status != last {
			last = ticket.Status
			if err := conn.WriteJSON(gin.H{"ticket_id": ticket.ID, "status": ticket.Status}); err != nil {
				h.logger.Debug("WebSocket write failed (client disconnected)", zap.Error(err))
				return
			}
		}

		if ticket.Status.IsTerminal() {
			h.logger.Debug("Ticket reached terminal state, closing WebSocket", zap.Int64("ticket_id", id))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
			return
		}

		select {
		case <-ctx.Done():
			h.logger.Debug("WebSocket client disconnected", zap.Int64("ticket_id", id))
			return
		case <-ticker.C:
		}
	}
}
