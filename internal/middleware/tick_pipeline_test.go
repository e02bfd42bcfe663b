package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"OptiFlow/internal/domain/models"
	"OptiFlow/pkg/metrics"
)

type recordingProc struct {
	mu     sync.Mutex
	ticks  []*models.Tick
	failN  int
	failed int
}

func (p *recordingProc) Process(_ context.Context, t *models.Tick) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failed < p.failN {
		p.failed++
		return errors.New("downstream unavailable")
	}
	p.ticks = append(p.ticks, t)
	return nil
}

func (p *recordingProc) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ticks)
}

func validTick(token string) *models.Tick {
	return &models.Tick{
		InstrumentToken: token,
		LastPrice:       120,
		OpenInterest:    1000,
		Volume:          50,
		Timestamp:       time.Now(),
	}
}

func TestPipelineRejectsInvalidTicks(t *testing.T) {
	proc := &recordingProc{}
	p := NewTickPipeline(proc, metrics.Noop{})

	cases := []*models.Tick{
		nil,
		{LastPrice: 10, Timestamp: time.Now()},
		{InstrumentToken: "NSE_FO|1", LastPrice: 10},
		{InstrumentToken: "NSE_FO|1", LastPrice: -1, Timestamp: time.Now()},
	}
	for i, tk := range cases {
		if err := p.Process(context.Background(), tk); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
	if proc.count() != 0 {
		t.Fatalf("invalid ticks reached downstream: %d", proc.count())
	}
}

func TestPipelineThrottlesPerToken(t *testing.T) {
	proc := &recordingProc{}
	p := NewTickPipeline(proc, metrics.Noop{}, WithMaxTicksPerSec(5))

	for i := 0; i < 20; i++ {
		if err := p.Process(context.Background(), validTick("NSE_FO|1")); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	// burst of 5 passes, the rest drop without error
	if got := proc.count(); got < 5 || got >= 20 {
		t.Fatalf("delivered = %d, want burst-limited", got)
	}

	// an independent token has its own budget
	before := proc.count()
	if err := p.Process(context.Background(), validTick("NSE_FO|2")); err != nil {
		t.Fatalf("process: %v", err)
	}
	if proc.count() != before+1 {
		t.Fatal("second token throttled by first token's budget")
	}
}

func TestPipelineBuffersAndFlushes(t *testing.T) {
	proc := &recordingProc{failN: 1}
	p := NewTickPipeline(proc, metrics.Noop{}, WithBufferSize(10))
	p.Start(context.Background())
	defer p.Stop()

	if err := p.Process(context.Background(), validTick("NSE_FO|1")); err == nil {
		t.Fatal("expected downstream error on first attempt")
	}

	deadline := time.Now().Add(2 * time.Second)
	for proc.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("buffered tick never flushed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
