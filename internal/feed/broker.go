package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"OptiFlow/internal/domain/models"
	drepo "OptiFlow/internal/domain/repository"
	applogger "OptiFlow/pkg/logger"

	"github.com/gorilla/websocket"
)

// ErrFeedDisconnected signals that the upstream connection dropped. The
// adapter never retries silently; the collector owns reconnect/backoff.
var ErrFeedDisconnected = errors.New("feed: disconnected")

// BrokerClient implements a MarketStream backed by the broker websocket feed.
type BrokerClient struct {
	url          string
	accessToken  string
	tokens       []string
	pingInterval time.Duration
	logger       *applogger.Logger
	metrics      drepo.Metrics

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

// NewBrokerClient creates a broker MarketStream for the given instrument tokens.
func NewBrokerClient(url, accessToken string, tokens []string, pingInterval time.Duration, l *applogger.Logger, m drepo.Metrics) drepo.MarketStream {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &BrokerClient{
		url:          url,
		accessToken:  accessToken,
		tokens:       tokens,
		pingInterval: pingInterval,
		logger:       l,
		metrics:      m,
	}
}

// Connect establishes the websocket connection.
func (c *BrokerClient) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", c.url, c.accessToken)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("broker connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.metrics.SetFeedConnected(true)
	c.logger.Info("broker feed connected", applogger.Int("tokens", len(c.tokens)))
	return nil
}

type subscribeFrame struct {
	Method string   `json:"method"`
	Tokens []string `json:"instrument_keys"`
}

// Subscribe registers interest in the resolved instrument tokens.
func (c *BrokerClient) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()
	if conn == nil || !connected {
		return fmt.Errorf("broker not connected")
	}

	// Upstream caps subscribe frames; chunk to stay under it.
	const chunk = 100
	for start := 0; start < len(c.tokens); start += chunk {
		end := start + chunk
		if end > len(c.tokens) {
			end = len(c.tokens)
		}
		if err := conn.WriteJSON(subscribeFrame{Method: "sub", Tokens: c.tokens[start:end]}); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}
	c.logger.Info("broker feed subscribed", applogger.Int("tokens", len(c.tokens)))
	return nil
}

// Read streams normalized ticks and errors. Malformed messages are counted
// and skipped; a read failure surfaces one ErrFeedDisconnected and ends the
// stream.
func (c *BrokerClient) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	ticks := make(chan *models.Tick, 1024)
	errs := make(chan error, 1)
	// session ends with the read loop so the ping loop never outlives it
	// across reconnect cycles
	session := make(chan struct{})

	// ping loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-session:
				return
			case <-ticker.C:
				c.mu.Lock()
				conn := c.conn
				c.mu.Unlock()
				if conn != nil {
					_ = conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(session)
		defer close(ticks)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn == nil {
				errs <- ErrFeedDisconnected
				return
			}

			_, b, err := conn.ReadMessage()
			if err != nil {
				c.markDisconnected()
				errs <- fmt.Errorf("%w: %v", ErrFeedDisconnected, err)
				return
			}

			tick, err := NormalizeTick(b)
			if err != nil {
				c.metrics.RecordMalformedTick()
				c.logger.Debug("malformed tick skipped", applogger.Error(err))
				continue
			}

			select {
			case ticks <- tick:
			default:
				// drop on backpressure
				c.metrics.RecordError("feed_backpressure")
			}
		}
	}()

	return ticks, errs
}

// Reconnect closes and re-establishes the connection plus subscriptions.
func (c *BrokerClient) Reconnect(ctx context.Context) error {
	_ = c.Close()
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the websocket connection.
func (c *BrokerClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.metrics.SetFeedConnected(false)
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// IsConnected indicates status.
func (c *BrokerClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *BrokerClient) markDisconnected() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	c.metrics.SetFeedConnected(false)
}
