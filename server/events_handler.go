package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Simlowker/solduel-gaming-platform/errors"
	"github.com/Simlowker/solduel-gaming-platform/events/kafka"
)

const eventStreamBuffer = 32

// EventsHandler streams per-session lifecycle events from the Kafka
// consumer over SSE. It is only active when an event consumer is attached,
// which is how multi-instance deployments see actions taken on other nodes.
type EventsHandler struct {
	app    *App
	logger zerolog.Logger
}

// NewEventsHandler creates an events handler
func NewEventsHandler(app *App) *EventsHandler {
	return &EventsHandler{
		app:    app,
		logger: app.logger.With().Str("handler", "events").Logger(),
	}
}

// StreamSessionEvents opens an SSE connection carrying every event for one
// session. Route: GET /api/sessions/{id}/events
func (h *EventsHandler) StreamSessionEvents(c *gin.Context) {
	consumer := h.app.EventConsumer()
	if consumer == nil {
		Error(c, http.StatusServiceUnavailable,
			errors.New(errors.ErrServiceUnavailable, "event streaming is not enabled"))
		return
	}

	id, err := sessionIDParam(c)
	if err != nil {
		BadRequest(c, err)
		return
	}

	sub := consumer.Subscribe(id, eventStreamBuffer)
	defer consumer.Unsubscribe(sub)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
	c.Writer.WriteHeader(http.StatusOK)

	flusher := c.Writer.(http.Flusher)
	write := func(v interface{}) bool {
		payload, err := json.Marshal(v)
		if err != nil {
			return false
		}
		if _, err := c.Writer.Write([]byte("data: " + string(payload) + "\n\n")); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !write(gin.H{"type": EventTypeConnected, "session_id": id, "timestamp": time.Now().Unix()}) {
		return
	}

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if !write(gin.H{"type": EventTypeHeartbeat, "timestamp": time.Now().Unix()}) {
				return
			}
		case event, ok := <-sub.Channel:
			if !ok {
				return
			}
			if !write(event) {
				return
			}
			// A terminal event ends the stream.
			if event.Type == kafka.EventSessionResolved || event.Type == kafka.EventSessionCancelled {
				return
			}
		}
	}
}
