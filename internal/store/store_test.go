package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"OptiFlow/internal/domain/models"
	"OptiFlow/pkg/cache"
)

func pcrSnap(symbol string, ratio float64, at time.Time) *models.DerivedSnapshot {
	return &models.DerivedSnapshot{
		Symbol:      symbol,
		Expiry:      "2025-09-30",
		MetricType:  models.MetricPCR,
		GeneratedAt: at,
		Payload:     models.PCRPayload{PCR: &ratio, Sentiment: "Bearish"},
	}
}

func TestSnapshotStoreReplaceAndGet(t *testing.T) {
	s := NewSnapshotStore()
	at := time.Now()

	_, err := s.Get(models.SnapshotKey{Metric: models.MetricPCR, Symbol: "NIFTY", Expiry: "2025-09-30"})
	if !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("err = %v, want ErrSnapshotNotFound", err)
	}

	first := pcrSnap("NIFTY", 0.8, at)
	s.Publish(first)
	second := pcrSnap("NIFTY", 0.9, at.Add(time.Second))
	s.Publish(second)

	got, err := s.Get(first.Key())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != second {
		t.Fatalf("got %v, want the replacing snapshot", got.GeneratedAt)
	}
	if s.Size() != 1 {
		t.Fatalf("size = %d, want 1 (replace, not append)", s.Size())
	}
}

func TestSnapshotStoreBySymbol(t *testing.T) {
	s := NewSnapshotStore()
	at := time.Now()
	s.Publish(pcrSnap("NIFTY", 0.8, at))
	s.Publish(&models.DerivedSnapshot{
		Symbol: "NIFTY", Expiry: "2025-09-30", Interval: models.Interval15Min,
		MetricType: models.MetricOIGainer, GeneratedAt: at,
	})
	s.Publish(pcrSnap("BANKNIFTY", 1.1, at))

	if got := len(s.BySymbol("NIFTY")); got != 2 {
		t.Fatalf("by symbol = %d, want 2", got)
	}
	if got := len(s.BySymbol("FINNIFTY")); got != 0 {
		t.Fatalf("by symbol = %d, want 0", got)
	}
}

func TestHistoricalStoreRoundTrip(t *testing.T) {
	h := NewHistoricalStore(cache.NewMemoryCache(100), time.Hour)
	ctx := context.Background()
	date := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	snap := pcrSnap("NIFTY", 0.75, date.Add(10*time.Hour))

	if err := h.PutSnapshot(ctx, date, snap); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := h.GetSnapshot(ctx, date, snap.Key())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Symbol != "NIFTY" || got.MetricType != models.MetricPCR {
		t.Fatalf("got %+v", got)
	}

	// a different date is a miss
	_, err = h.GetSnapshot(ctx, date.AddDate(0, 0, 1), snap.Key())
	if !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("err = %v, want ErrSnapshotNotFound", err)
	}
}

func TestHistorySinkWritesThroughSingleWriter(t *testing.T) {
	h := NewHistoricalStore(cache.NewMemoryCache(5000), time.Hour)
	sink := NewHistorySink(h, time.UTC)

	at := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	// a burst far larger than any plausible per-tick fan-out must neither
	// block nor spawn a writer per snapshot
	var last *models.DerivedSnapshot
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			last = pcrSnap("NIFTY", float64(i)/1000, at.Add(time.Duration(i)*time.Millisecond))
			sink.Publish(last)
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish burst blocked")
	}

	// Close drains the queue before returning
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	day := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	got, err := h.GetSnapshot(context.Background(), day, last.Key())
	if err != nil {
		t.Fatalf("get after close: %v", err)
	}
	if got.Symbol != "NIFTY" {
		t.Fatalf("got %+v", got)
	}
}

func TestHistorySinkCloseIdempotent(t *testing.T) {
	sink := NewHistorySink(NewHistoricalStore(cache.NewMemoryCache(10), time.Hour), time.UTC)
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
