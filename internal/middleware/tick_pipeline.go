package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"OptiFlow/internal/domain/models"
	drepo "OptiFlow/internal/domain/repository"

	"golang.org/x/time/rate"
)

// Proc is the downstream processor the pipeline feeds.
type Proc interface {
	Process(ctx context.Context, t *models.Tick) error
}

// TickPipeline sits between the market feed and the metrics engine. It
// validates, throttles per instrument, and buffers ticks the downstream
// temporarily rejects, flushing them with backoff.
type TickPipeline struct {
	proc    Proc
	metrics drepo.Metrics

	maxRate rate.Limit
	burst   int
	bufCh   chan *models.Tick
	stopCh  chan struct{}

	mu       sync.Mutex
	started  bool
	limiters map[string]*rate.Limiter
}

// PipelineOption configures a TickPipeline.
type PipelineOption func(*TickPipeline)

// WithMaxTicksPerSec caps accepted ticks per second per instrument token.
func WithMaxTicksPerSec(n int) PipelineOption {
	return func(p *TickPipeline) {
		if n > 0 {
			p.maxRate = rate.Limit(n)
			p.burst = n
		}
	}
}

// WithBufferSize sets the retry buffer depth.
func WithBufferSize(n int) PipelineOption {
	return func(p *TickPipeline) {
		if n > 0 {
			p.bufCh = make(chan *models.Tick, n)
		}
	}
}

// NewTickPipeline creates a pipeline in front of proc.
func NewTickPipeline(proc Proc, metrics drepo.Metrics, opts ...PipelineOption) *TickPipeline {
	p := &TickPipeline{
		proc:     proc,
		metrics:  metrics,
		maxRate:  rate.Limit(20),
		burst:    20,
		bufCh:    make(chan *models.Tick, 1000),
		stopCh:   make(chan struct{}),
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches background flushing of buffered ticks.
func (p *TickPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case t := <-p.bufCh:
				if t == nil {
					continue
				}
				if err := p.proc.Process(ctx, t); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					time.Sleep(backoff)
					select {
					case p.bufCh <- t:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop halts background flushing.
func (p *TickPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Process validates, throttles, and forwards one tick, buffering on
// downstream failure.
func (p *TickPipeline) Process(ctx context.Context, t *models.Tick) error {
	start := time.Now()
	if err := validateTick(t); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if !p.allow(t.InstrumentToken) {
		// over budget for this instrument; drop quietly
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.proc.Process(ctx, t); err != nil {
		p.metrics.RecordError("pipeline_process")
		select {
		case p.bufCh <- t:
			p.metrics.RecordLatency("pipeline_buffer_depth", float64(len(p.bufCh)))
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func validateTick(t *models.Tick) error {
	if t == nil {
		return fmt.Errorf("tick nil")
	}
	if t.InstrumentToken == "" {
		return fmt.Errorf("token empty")
	}
	if t.Timestamp.IsZero() {
		return fmt.Errorf("timestamp invalid")
	}
	if t.LastPrice < 0 || t.Volume < 0 {
		return fmt.Errorf("negative price/volume")
	}
	return nil
}

func (p *TickPipeline) allow(token string) bool {
	if p.maxRate <= 0 {
		return true
	}
	p.mu.Lock()
	l, ok := p.limiters[token]
	if !ok {
		l = rate.NewLimiter(p.maxRate, p.burst)
		p.limiters[token] = l
	}
	p.mu.Unlock()
	return l.Allow()
}
