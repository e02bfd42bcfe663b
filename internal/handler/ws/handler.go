package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"OptiFlow/internal/broadcast"
	xlogger "OptiFlow/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	maxMessageSize = 4096
	pongWait       = 90 * time.Second
)

// clientMessage is what subscribers send. A subscribe action replaces the
// connection's whole filter set.
type clientMessage struct {
	Action    string   `json:"action"`
	Channel   string   `json:"channel"`
	Symbols   []string `json:"symbols"`
	Intervals []string `json:"intervals"`
}

// Handler upgrades clients onto the broadcast hub and runs their read loop.
type Handler struct {
	hub      *broadcast.Hub
	logger   *xlogger.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates the realtime socket handler.
func NewHandler(hub *broadcast.Hub, logger *xlogger.Logger) *Handler {
	return &Handler{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// RegisterRoutes wires the socket endpoint.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", h.Serve)
}

// Serve upgrades one client and blocks on its read loop until disconnect.
func (h *Handler) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		return err
	}

	client := h.hub.Register(conn)
	defer h.hub.Unregister(client.ID)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("client read error", xlogger.String("conn_id", client.ID), xlogger.Error(err))
			}
			return nil
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.logger.Debug("bad client message", xlogger.String("conn_id", client.ID), xlogger.Error(err))
			continue
		}

		switch msg.Action {
		case "subscribe", "subscribe:market":
			channel := msg.Channel
			if channel == "" {
				channel = "market"
			}
			h.hub.Subscribe(client.ID, channel, msg.Symbols, msg.Intervals)
		default:
			h.logger.Debug("unknown action ignored",
				xlogger.String("conn_id", client.ID),
				xlogger.String("action", msg.Action))
		}
	}
}
