package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"OptiFlow/internal/domain/models"
	"OptiFlow/pkg/cache"
	"OptiFlow/pkg/util"
)

// HistoricalStore persists end-of-interval snapshots keyed by trading date so
// past sessions stay queryable after the in-memory state resets. Backed by
// the cache service (Redis in production, memory in tests).
type HistoricalStore struct {
	cache cache.Service
	ttl   time.Duration
}

// NewHistoricalStore creates a store writing through the given cache.
func NewHistoricalStore(c cache.Service, ttl time.Duration) *HistoricalStore {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &HistoricalStore{cache: c, ttl: ttl}
}

func historicalKey(date time.Time, key models.SnapshotKey) string {
	return cache.Key("hist", date.Format("2006-01-02"), key.String())
}

// PutSnapshot stores one snapshot under its trading date.
func (h *HistoricalStore) PutSnapshot(ctx context.Context, date time.Time, snap *models.DerivedSnapshot) error {
	if err := h.cache.Set(ctx, historicalKey(date, snap.Key()), snap, h.ttl); err != nil {
		return fmt.Errorf("historical put: %w", err)
	}
	return nil
}

const historySinkBuffer = 2048

// HistorySink adapts the historical store to the engine's sink interface.
// Publish never blocks recompute: snapshots queue into a bounded buffer
// drained by one background writer, so a slow Redis cannot pile up an
// unbounded number of in-flight writes. Overflow is dropped; the latest
// snapshot for a key wins anyway.
type HistorySink struct {
	hist *HistoricalStore
	loc  *time.Location

	buf    chan *models.DerivedSnapshot
	done   chan struct{}
	closed sync.Once
	wg     sync.WaitGroup
}

// NewHistorySink creates the sink adapter and starts its writer.
func NewHistorySink(hist *HistoricalStore, loc *time.Location) *HistorySink {
	if loc == nil {
		loc = time.UTC
	}
	s := &HistorySink{
		hist: hist,
		loc:  loc,
		buf:  make(chan *models.DerivedSnapshot, historySinkBuffer),
		done: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.writeLoop()
	return s
}

// Publish queues the snapshot for persistence under its trading date.
func (s *HistorySink) Publish(snap *models.DerivedSnapshot) {
	select {
	case s.buf <- snap:
	default:
	}
}

// Close drains pending writes and stops the writer.
func (s *HistorySink) Close() error {
	s.closed.Do(func() { close(s.done) })
	s.wg.Wait()
	return nil
}

func (s *HistorySink) writeLoop() {
	defer s.wg.Done()
	write := func(snap *models.DerivedSnapshot) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.hist.PutSnapshot(ctx, util.TradingDay(snap.GeneratedAt, s.loc), snap)
	}

	for {
		select {
		case snap := <-s.buf:
			write(snap)
		case <-s.done:
			for {
				select {
				case snap := <-s.buf:
					write(snap)
				default:
					return
				}
			}
		}
	}
}

// GetSnapshot loads one snapshot for a trading date. Payload comes back as
// generic JSON, not the typed payload structs.
func (h *HistoricalStore) GetSnapshot(ctx context.Context, date time.Time, key models.SnapshotKey) (*models.DerivedSnapshot, error) {
	var snap models.DerivedSnapshot
	err := h.cache.Get(ctx, historicalKey(date, key), &snap)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("historical get: %w", err)
	}
	return &snap, nil
}
