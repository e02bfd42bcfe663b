package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"OptiFlow/internal/domain/models"
	mid "OptiFlow/internal/middleware"
	"OptiFlow/pkg/logger"
	"OptiFlow/pkg/metrics"
)

type scriptedSession struct {
	ticks []*models.Tick
	err   error
}

type scriptedStream struct {
	mu         sync.Mutex
	sessions   []scriptedSession
	session    int
	connected  bool
	reconnects int
}

func (s *scriptedStream) Connect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

func (s *scriptedStream) Subscribe(context.Context) error { return nil }

func (s *scriptedStream) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	s.mu.Lock()
	var sess scriptedSession
	if s.session < len(s.sessions) {
		sess = s.sessions[s.session]
		s.session++
	}
	s.mu.Unlock()

	ticks := make(chan *models.Tick, len(sess.ticks)+1)
	errs := make(chan error, 1)
	go func() {
		for _, t := range sess.ticks {
			ticks <- t
		}
		if sess.err != nil {
			errs <- sess.err
			close(ticks)
			close(errs)
			return
		}
		<-ctx.Done()
		close(ticks)
		close(errs)
	}()
	return ticks, errs
}

func (s *scriptedStream) Reconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnects++
	return nil
}

func (s *scriptedStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

func (s *scriptedStream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *scriptedStream) reconnectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnects
}

type countingProc struct {
	mu    sync.Mutex
	ticks int
}

func (p *countingProc) Process(context.Context, *models.Tick) error {
	p.mu.Lock()
	p.ticks++
	p.mu.Unlock()
	return nil
}

func (p *countingProc) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ticks
}

func streamTick(token string) *models.Tick {
	return &models.Tick{
		InstrumentToken: token,
		LastPrice:       120,
		OpenInterest:    1000,
		Volume:          50,
		Timestamp:       time.Now(),
	}
}

func TestCollectorReconnectsAfterDrop(t *testing.T) {
	stream := &scriptedStream{sessions: []scriptedSession{
		{ticks: []*models.Tick{streamTick("NSE_FO|1"), streamTick("NSE_FO|2")}, err: errors.New("peer reset")},
		{ticks: []*models.Tick{streamTick("NSE_FO|3")}},
	}}
	proc := &countingProc{}
	pipe := mid.NewTickPipeline(proc, metrics.Noop{}, mid.WithMaxTicksPerSec(1000))

	c := NewTickCollector(stream, pipe, nil, metrics.Noop{}, logger.NewNop(),
		WithBackoff(5*time.Millisecond, 20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for proc.count() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("delivered %d ticks, want 3", proc.count())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if stream.reconnectCount() != 1 {
		t.Fatalf("reconnects = %d, want 1", stream.reconnectCount())
	}

	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if c.IsConnected() {
		t.Fatal("still connected after shutdown")
	}
}
