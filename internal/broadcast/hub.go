package broadcast

import (
	"encoding/json"
	"sync"
	"time"

	"OptiFlow/internal/domain/models"
	drepo "OptiFlow/internal/domain/repository"
	applogger "OptiFlow/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Server event names on the realtime socket.
const (
	EventTick        = "market:tick"
	EventData        = "market:data"
	EventConfirmed   = "subscription:confirmed"
	EventPriceUpdate = "price_update"
)

const defaultQueueSize = 64

// wsConn is the subset of *websocket.Conn the hub writes through. Narrowed
// for tests.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Connection is one registered realtime client. Delivery order is guaranteed
// per connection: all writes go through a single bounded queue drained by one
// writer goroutine.
type Connection struct {
	ID   string
	conn wsConn
	send chan []byte

	mu  sync.RWMutex
	sub *models.Subscription

	closeOnce sync.Once
}

func (c *Connection) subscription() *models.Subscription {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sub
}

// Hub fans derived snapshots and price updates out to subscribed websocket
// clients. Implements repository.SnapshotSink.
type Hub struct {
	logger    *applogger.Logger
	metrics   drepo.Metrics
	queueSize int

	mu    sync.RWMutex
	conns map[string]*Connection
}

// Option configures a Hub.
type Option func(*Hub)

// WithQueueSize sets the per-connection outbound queue depth.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// NewHub creates an empty hub.
func NewHub(l *applogger.Logger, m drepo.Metrics, opts ...Option) *Hub {
	h := &Hub{
		logger:    l,
		metrics:   m,
		queueSize: defaultQueueSize,
		conns:     make(map[string]*Connection),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds a client connection and starts its writer. The returned
// Connection has no subscription yet; it receives nothing until Subscribe.
func (h *Hub) Register(conn wsConn) *Connection {
	c := &Connection{
		ID:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, h.queueSize),
	}

	h.mu.Lock()
	h.conns[c.ID] = c
	n := len(h.conns)
	h.mu.Unlock()

	go h.writeLoop(c)

	h.metrics.SetConnections(n)
	h.logger.Info("client connected", applogger.String("conn_id", c.ID), applogger.Int("connections", n))
	return c
}

// Unregister drops a connection and releases its resources immediately.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	c, ok := h.conns[id]
	if ok {
		delete(h.conns, id)
	}
	n := len(h.conns)
	h.mu.Unlock()
	if !ok {
		return
	}

	c.closeOnce.Do(func() { close(c.send) })
	h.metrics.SetConnections(n)
	h.logger.Info("client disconnected", applogger.String("conn_id", c.ID), applogger.Int("connections", n))
}

// Subscribe replaces the connection's filter set. Previous symbols and
// intervals are gone after this call, not merged.
func (h *Hub) Subscribe(id, channel string, symbols, intervals []string) bool {
	// hold the read lock through the ack so Unregister cannot close the
	// queue mid-send
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[id]
	if !ok {
		return false
	}

	sub := models.NewSubscription(id, channel, symbols, intervals)
	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()

	ack := map[string]any{
		"channel":   channel,
		"symbols":   symbols,
		"intervals": intervals,
	}
	h.sendTo(c, EventConfirmed, ack)
	h.logger.Debug("subscription replaced",
		applogger.String("conn_id", id),
		applogger.Strings("symbols", symbols),
		applogger.Strings("intervals", intervals))
	return true
}

// Publish fans one derived snapshot out to every matching subscriber.
func (h *Hub) Publish(snap *models.DerivedSnapshot) {
	b, err := encode(EventData, snap)
	if err != nil {
		h.metrics.RecordError("broadcast_encode")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.conns {
		if !c.subscription().Matches(snap.Symbol, snap.Interval) {
			continue
		}
		h.enqueue(c, EventData, b)
	}
}

// PublishTick fans a normalized derivative tick out to subscribers of its
// underlying symbol.
func (h *Hub) PublishTick(symbol string, t *models.Tick) {
	payload := map[string]any{
		"symbol":     symbol,
		"token":      t.InstrumentToken,
		"last_price": t.LastPrice,
		"oi":         t.OpenInterest,
		"volume":     t.Volume,
		"time":       t.Timestamp,
	}
	h.fanOut(EventTick, symbol, payload)
}

// PublishPrice fans an underlying spot price update out to subscribers.
func (h *Hub) PublishPrice(symbol string, price float64, at time.Time) {
	payload := map[string]any{
		"symbol": symbol,
		"price":  price,
		"time":   at,
	}
	h.fanOut(EventPriceUpdate, symbol, payload)
}

// Connections returns the current client count.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close drops every connection. Used during shutdown.
func (h *Hub) Close() error {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[string]*Connection)
	h.mu.Unlock()

	for _, c := range conns {
		c.closeOnce.Do(func() { close(c.send) })
	}
	h.metrics.SetConnections(0)
	return nil
}

func (h *Hub) fanOut(event, symbol string, payload any) {
	b, err := encode(event, payload)
	if err != nil {
		h.metrics.RecordError("broadcast_encode")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.conns {
		if !c.subscription().Matches(symbol, "") {
			continue
		}
		h.enqueue(c, event, b)
	}
}

func (h *Hub) sendTo(c *Connection, event string, payload any) {
	b, err := encode(event, payload)
	if err != nil {
		h.metrics.RecordError("broadcast_encode")
		return
	}
	h.enqueue(c, event, b)
}

// enqueue delivers without blocking. A full queue means the consumer is too
// slow; the push is dropped and counted rather than stalling the fan-out.
func (h *Hub) enqueue(c *Connection, event string, b []byte) {
	select {
	case c.send <- b:
		h.metrics.RecordBroadcast(event)
	default:
		h.metrics.RecordBroadcastDrop()
		h.logger.Debug("slow consumer, push dropped", applogger.String("conn_id", c.ID), applogger.String("event", event))
	}
}

func (h *Hub) writeLoop(c *Connection) {
	for b := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			h.logger.Debug("write failed", applogger.String("conn_id", c.ID), applogger.Error(err))
			break
		}
	}
	// drain anything left after a failed write so senders never block
	for range c.send {
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = c.conn.Close()
}

func encode(event string, payload any) ([]byte, error) {
	return json.Marshal(message{Event: event, Data: payload})
}
