package usecase

import (
	"context"
	"time"

	"OptiFlow/internal/broadcast"
	"OptiFlow/internal/catalog"
	"OptiFlow/internal/domain/models"
	drepo "OptiFlow/internal/domain/repository"
	mid "OptiFlow/internal/middleware"
	applogger "OptiFlow/pkg/logger"
)

// TickCollector drives the market stream: it owns connect/subscribe, the
// reconnect policy, and the hand-off of every tick into the pipeline, the
// relay, and the realtime hub.
type TickCollector struct {
	stream   drepo.MarketStream
	pipe     *mid.TickPipeline
	resolver *catalog.Resolver
	metrics  drepo.Metrics
	logger   *applogger.Logger

	relay drepo.TickRelay
	hub   *broadcast.Hub

	backoffMin time.Duration
	backoffMax time.Duration
}

// CollectorOption configures a TickCollector.
type CollectorOption func(*TickCollector)

// WithRelay forwards every accepted tick to an external relay.
func WithRelay(r drepo.TickRelay) CollectorOption {
	return func(c *TickCollector) { c.relay = r }
}

// WithHub fans ticks and spot prices out to realtime subscribers.
func WithHub(h *broadcast.Hub) CollectorOption {
	return func(c *TickCollector) { c.hub = h }
}

// WithBackoff bounds the reconnect backoff window.
func WithBackoff(min, max time.Duration) CollectorOption {
	return func(c *TickCollector) {
		if min > 0 {
			c.backoffMin = min
		}
		if max >= c.backoffMin {
			c.backoffMax = max
		}
	}
}

// NewTickCollector creates a collector.
func NewTickCollector(stream drepo.MarketStream, pipe *mid.TickPipeline, resolver *catalog.Resolver, metrics drepo.Metrics, logger *applogger.Logger, opts ...CollectorOption) *TickCollector {
	c := &TickCollector{
		stream:     stream,
		pipe:       pipe,
		resolver:   resolver,
		metrics:    metrics,
		logger:     logger,
		backoffMin: time.Second,
		backoffMax: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsConnected reports upstream connectivity.
func (c *TickCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

// Start connects, subscribes, and begins consuming. Returns the initial
// connect/subscribe error; later disconnects are handled internally.
func (c *TickCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	go c.consume(ctx)
	return nil
}

func (c *TickCollector) consume(ctx context.Context) {
	for {
		ticks, errs := c.stream.Read(ctx)
		if !c.drain(ctx, ticks, errs) {
			return
		}
		if !c.reconnect(ctx) {
			return
		}
	}
}

// drain consumes one Read session. Returns false when the context ended,
// true when the stream dropped and a reconnect should follow.
func (c *TickCollector) drain(ctx context.Context, ticks <-chan *models.Tick, errs <-chan error) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case err, ok := <-errs:
			if ok && err != nil {
				c.metrics.RecordError("stream")
				c.logger.Warn("market stream dropped", applogger.Error(err))
			} else if ok {
				continue
			}
			// flush ticks already buffered before the drop
			for {
				select {
				case t, tok := <-ticks:
					if !tok || t == nil {
						return true
					}
					c.handle(ctx, t)
				default:
					return true
				}
			}
		case t, ok := <-ticks:
			if !ok {
				return true
			}
			if t == nil {
				continue
			}
			c.handle(ctx, t)
		}
	}
}

func (c *TickCollector) handle(ctx context.Context, t *models.Tick) {
	if err := c.pipe.Process(ctx, t); err != nil {
		c.logger.Debug("tick rejected", applogger.Error(err))
		return
	}

	if c.relay != nil {
		if err := c.relay.Relay(ctx, t); err != nil {
			c.metrics.RecordError("relay")
			c.logger.Debug("relay failed", applogger.Error(err))
		}
	}

	if c.hub != nil {
		if in, ok := c.resolver.Instrument(t.InstrumentToken); ok {
			symbol := in.AssetSymbol
			if symbol == "" {
				symbol = in.SymbolName
			}
			switch in.OptionType {
			case models.InstrumentIndex, models.InstrumentFut:
				c.hub.PublishPrice(symbol, t.LastPrice, t.Timestamp)
			default:
				c.hub.PublishTick(symbol, t)
			}
		}
	}
}

// reconnect retries with bounded exponential backoff until the stream is
// back or the context ends.
func (c *TickCollector) reconnect(ctx context.Context) bool {
	backoff := c.backoffMin
	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}

		err := c.stream.Reconnect(ctx)
		if err == nil {
			c.logger.Info("market stream reconnected", applogger.Int("attempt", attempt))
			return true
		}
		c.metrics.RecordError("reconnect")
		c.logger.Warn("reconnect failed",
			applogger.Int("attempt", attempt),
			applogger.Duration("backoff", backoff),
			applogger.Error(err))

		backoff *= 2
		if backoff > c.backoffMax {
			backoff = c.backoffMax
		}
	}
}

// Shutdown stops the pipeline and closes the stream.
func (c *TickCollector) Shutdown(context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.stream.Close()
}
