package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/Simlowker/solduel-gaming-platform/game"
	"github.com/Simlowker/solduel-gaming-platform/pkg/lobby"
)

const (
	EventTypeConnected = "connected"
	EventTypeUpdated   = "updated"
	EventTypeHeartbeat = "heartbeat"
)

// LobbyHandler bridges lobby.Service to HTTP routes (SSE + WebSocket).
type LobbyHandler struct {
	svc             *lobby.Service
	app             *App
	logger          zerolog.Logger
	heartbeatPeriod time.Duration
	upgrader        websocket.Upgrader
}

// NewLobbyHandler creates a lobby handler.
func NewLobbyHandler(app *App, svc *lobby.Service) *LobbyHandler {
	return &LobbyHandler{
		svc:             svc,
		app:             app,
		logger:          app.logger.With().Str("handler", "lobby").Logger(),
		heartbeatPeriod: 30 * time.Second,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// LobbyResponse is the wire shape of every lobby stream message.
type LobbyResponse struct {
	Type      string         `json:"type"`
	Timestamp int64          `json:"timestamp"`
	Sessions  []lobby.Update `json:"sessions,omitempty"`
}

type streamConfig struct {
	kind      game.Kind
	sessionID uint64
	ctx       context.Context
}

func (cfg *streamConfig) wants(u lobby.Update) bool {
	if cfg.kind != "" && u.Kind != cfg.kind {
		return false
	}
	if cfg.sessionID != 0 && u.SessionID != cfg.sessionID {
		return false
	}
	return true
}

// StreamUpdates opens SSE connection and streams lobby updates.
// Route: GET /api/lobby/updates?kind=simple_duel
func (h *LobbyHandler) StreamUpdates(c *gin.Context) {
	config, err := h.prepareStreamConfig(c)
	if err != nil {
		return
	}

	// Setup SSE headers
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
	c.Writer.WriteHeader(http.StatusOK)

	sender := &sseSender{writer: c.Writer}
	h.streamUpdates(config, sender)
}

// StreamUpdatesWebSocket opens WebSocket connection and streams lobby updates.
// Route: GET /api/lobby/updates/ws?kind=simple_duel
func (h *LobbyHandler) StreamUpdatesWebSocket(c *gin.Context) {
	config, err := h.prepareStreamConfig(c)
	if err != nil {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade to WebSocket")
		return
	}
	defer conn.Close() //nolint:errcheck

	writeDeadline := 10 * time.Second
	conn.SetWriteDeadline(time.Now().Add(writeDeadline)) //nolint:errcheck

	done := make(chan struct{})

	// Detect connection close
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(10 * time.Minute)) //nolint:errcheck
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket connection closed unexpectedly")
			} else {
				h.logger.Debug().Err(err).Msg("WebSocket closed normally")
			}
		}
	}()

	// Send ping to keep connection alive
	pingTicker := time.NewTicker(30 * time.Second)
	go func() {
		defer pingTicker.Stop()
		for {
			select {
			case <-done:
				return
			case <-pingTicker.C:
				deadline := time.Now().Add(5 * time.Second)
				if err := conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
					h.logger.Debug().Err(err).Msg("Failed to send ping")
					return
				}
			}
		}
	}()

	sender := &wsSender{
		conn:          conn,
		done:          done,
		logger:        h.logger,
		writeDeadline: writeDeadline,
	}
	h.streamUpdates(config, sender)
}

// prepareStreamConfig extracts and validates stream filters.
func (h *LobbyHandler) prepareStreamConfig(c *gin.Context) (*streamConfig, error) {
	config := &streamConfig{ctx: c.Request.Context()}

	if kindStr := c.Query("kind"); kindStr != "" {
		kind := game.Kind(kindStr)
		if !kind.Valid() {
			ErrorWithMessage(c, http.StatusBadRequest, "unknown session kind: "+kindStr)
			return nil, errors.New("unknown session kind")
		}
		config.kind = kind
	}

	if idStr := c.Query("session_id"); idStr != "" {
		id, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			ErrorWithMessage(c, http.StatusBadRequest, "invalid session_id")
			return nil, err
		}
		config.sessionID = id
	}

	return config, nil
}

// streamUpdates handles the common streaming logic for both SSE and WebSocket.
func (h *LobbyHandler) streamUpdates(config *streamConfig, sender messageSender) {
	updates, cancel := h.svc.Listen(config.ctx)
	defer cancel()

	// Send connected event
	if err := sender.Send(&LobbyResponse{
		Type:      EventTypeConnected,
		Timestamp: time.Now().Unix(),
	}); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to send connected event, stopping stream")
		return
	}

	// Prime the client with sessions already buffered for the next flush
	if pending := lo.Filter(h.svc.Pending(), func(u lobby.Update, _ int) bool {
		return config.wants(u)
	}); len(pending) > 0 {
		if err := sender.Send(&LobbyResponse{
			Type:      EventTypeUpdated,
			Timestamp: time.Now().Unix(),
			Sessions:  pending,
		}); err != nil {
			h.logger.Warn().Err(err).Msg("Failed to send initial sessions, stopping stream")
			return
		}
	}

	heartbeat := time.NewTicker(h.heartbeatPeriod)
	defer heartbeat.Stop()

	// Check if sender has a done channel (for WebSocket)
	var doneChan <-chan struct{}
	if ws, ok := sender.(*wsSender); ok {
		doneChan = ws.done
	}

	for {
		select {
		case <-config.ctx.Done():
			return
		case <-doneChan:
			h.logger.Debug().Msg("WebSocket connection closed, stopping stream")
			return
		case <-heartbeat.C:
			if err := sender.Send(&LobbyResponse{
				Type:      EventTypeHeartbeat,
				Timestamp: time.Now().Unix(),
			}); err != nil {
				h.logger.Warn().Err(err).Msg("Failed to send heartbeat, stopping stream")
				return
			}
		case batch, ok := <-updates:
			if !ok {
				return
			}
			filtered := lo.Filter(batch, func(u lobby.Update, _ int) bool {
				return config.wants(u)
			})
			if len(filtered) == 0 {
				continue
			}
			if err := sender.Send(&LobbyResponse{
				Type:      EventTypeUpdated,
				Timestamp: time.Now().Unix(),
				Sessions:  filtered,
			}); err != nil {
				h.logger.Warn().
					Err(err).
					Int("session_count", len(filtered)).
					Msg("Failed to send batch update, stopping stream")
				return
			}
		}
	}
}

// messageSender interface for sending messages (SSE or WebSocket).
type messageSender interface {
	Send(*LobbyResponse) error
}

// sseSender sends messages via SSE.
type sseSender struct {
	writer http.ResponseWriter
}

func (s *sseSender) Send(resp *LobbyResponse) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	_, err = s.writer.Write([]byte("data: " + string(payload) + "\n\n"))
	if err != nil {
		return err
	}
	s.writer.(http.Flusher).Flush()
	return nil
}

// wsSender sends messages via WebSocket.
type wsSender struct {
	conn          *websocket.Conn
	done          <-chan struct{}
	logger        zerolog.Logger
	writeDeadline time.Duration
}

func (s *wsSender) Send(resp *LobbyResponse) error {
	// Check if connection is already closed
	select {
	case <-s.done:
		s.logger.Debug().Str("event_type", resp.Type).Msg("Connection already closed, skipping send")
		return io.EOF
	default:
	}

	// Set write deadline before each write
	deadline := time.Now().Add(s.writeDeadline)
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to set write deadline")
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", resp.Type).Msg("Failed to marshal response")
		return err
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		s.logger.Warn().
			Err(err).
			Str("event_type", resp.Type).
			Int("payload_size", len(payload)).
			Msg("Failed to write WebSocket message")
		return err
	}
	return nil
}
