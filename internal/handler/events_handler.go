package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type eventStream interface {
	ServeWS(w http.ResponseWriter, r *http.Request) error
}

// EventsHandler upgrades clients onto the realtime photo event stream.
type EventsHandler struct {
	stream eventStream
	logger *zap.Logger
}

// NewEventsHandler constructs the handler.
func NewEventsHandler(stream eventStream, logger *zap.Logger) *EventsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventsHandler{stream: stream, logger: logger}
}

// Stream godoc
// @Summary Photo event stream
// @Description Websocket emitting photo workflow events. photoId narrows the stream to one photo.
// @Tags Events
// @Param photoId query string false "Only events for this photo"
// @Success 101
// @Router /ws/events [get]
func (h *EventsHandler) Stream(c *gin.Context) {
	// The upgrader has already written the HTTP error on failure.
	if err := h.stream.ServeWS(c.Writer, c.Request); err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err), zap.String("remote", c.ClientIP()))
	}
}
