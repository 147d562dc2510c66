package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/liverlink/liverlink-backend/internal/logger"
	"github.com/liverlink/liverlink-backend/internal/realtime"
)

type SSEHandler struct {
	log *logger.Logger
	hub *realtime.Hub
}

func NewSSEHandler(log *logger.Logger, hub *realtime.Hub) *SSEHandler {
	return &SSEHandler{
		log: log.With("handler", "SSEHandler"),
		hub: hub,
	}
}

// GET /sse/stream?channels=run:<id>,...
// Every stream is subscribed to the global allocations channel; extra
// per-run channels come from the query string.
func (h *SSEHandler) Stream(c *gin.Context) {
	client := h.hub.NewClient()
	defer h.hub.CloseClient(client)

	h.hub.Subscribe(client, realtime.ChannelAllocations)
	for _, ch := range strings.Split(c.Query("channels"), ",") {
		h.hub.Subscribe(client, ch)
	}

	h.log.Debug("SSE stream opened", "client_id", client.ID)
	h.hub.ServeHTTP(c.Writer, c.Request, client)
}
