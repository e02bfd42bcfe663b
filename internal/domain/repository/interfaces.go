package repository

import (
	"context"
	"time"

	"OptiFlow/internal/domain/models"
)

// MarketStream is an upstream tick source: the broker websocket feed or the
// built-in simulator. A disconnect surfaces on the error channel; the caller
// owns reconnect policy.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// SnapshotSink receives every recomputed DerivedSnapshot. The in-memory
// store, the broadcast hub, and the archive writer all implement it.
type SnapshotSink interface {
	Publish(snap *models.DerivedSnapshot)
}

// TickRelay forwards normalized ticks to an external backend (Kafka topic or
// ClickHouse table). Optional; a nil relay means ticks stay in-process.
type TickRelay interface {
	Relay(ctx context.Context, t *models.Tick) error
	Close() error
}

// HistoricalStore serves non-live snapshot queries by trading date.
type HistoricalStore interface {
	PutSnapshot(ctx context.Context, date time.Time, snap *models.DerivedSnapshot) error
	GetSnapshot(ctx context.Context, date time.Time, key models.SnapshotKey) (*models.DerivedSnapshot, error)
}

// Metrics records operational counters for the ingest and fan-out paths.
type Metrics interface {
	RecordTick(symbol string)
	RecordStaleTick(symbol string)
	RecordMalformedTick()
	RecordError(kind string)
	RecordBroadcast(event string)
	RecordBroadcastDrop()
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	SetFeedConnected(connected bool)
	SetConnections(n int)
}
