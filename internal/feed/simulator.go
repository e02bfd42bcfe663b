package feed

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"OptiFlow/internal/catalog"
	"OptiFlow/internal/domain/models"
	drepo "OptiFlow/internal/domain/repository"
)

// Simulator implements MarketStream with synthetic ticks for the resolved
// instrument tokens. Prices follow a bounded random walk; OI drifts in steps
// so change-in-OI charts have something to show outside market hours.
type Simulator struct {
	resolver *catalog.Resolver
	tokens   []string
	every    time.Duration
	rng      *rand.Rand

	mu        sync.Mutex
	connected bool
	state     map[string]*simState
}

type simState struct {
	price float64
	oi    float64
}

// NewSimulator creates a simulated MarketStream.
func NewSimulator(resolver *catalog.Resolver, tokens []string, every time.Duration) drepo.MarketStream {
	if every <= 0 {
		every = 500 * time.Millisecond
	}
	return &Simulator{
		resolver: resolver,
		tokens:   tokens,
		every:    every,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		state:    make(map[string]*simState),
	}
}

func (s *Simulator) Connect(context.Context) error {
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	return nil
}

func (s *Simulator) Subscribe(context.Context) error { return nil }

func (s *Simulator) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	ticks := make(chan *models.Tick, 1024)
	errs := make(chan error, 1)

	go func() {
		defer close(ticks)
		defer close(errs)
		ticker := time.NewTicker(s.every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				for _, token := range s.tokens {
					tick := s.nextTick(token, now)
					select {
					case ticks <- tick:
					default:
					}
				}
			}
		}
	}()

	return ticks, errs
}

func (s *Simulator) Reconnect(ctx context.Context) error { return s.Connect(ctx) }

func (s *Simulator) Close() error {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	return nil
}

func (s *Simulator) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Simulator) nextTick(token string, now time.Time) *models.Tick {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.state[token]
	if !ok {
		st = &simState{price: s.seedPrice(token), oi: s.seedOI(token)}
		s.state[token] = st
	}

	st.price = math.Max(0.05, st.price*(1+(s.rng.Float64()-0.5)*0.004))
	if s.rng.Float64() < 0.3 {
		st.oi += float64(s.rng.Intn(2001) - 1000)
		if st.oi < 0 {
			st.oi = 0
		}
	}

	return &models.Tick{
		InstrumentToken: token,
		LastPrice:       round2(st.price),
		OpenInterest:    st.oi,
		Volume:          float64(25 * (1 + s.rng.Intn(40))),
		Timestamp:       now,
	}
}

func (s *Simulator) seedPrice(token string) float64 {
	in, ok := s.resolver.Instrument(token)
	if !ok || in.OptionType == models.InstrumentIndex {
		return 25000 + s.rng.Float64()*100
	}
	switch in.OptionType {
	case models.InstrumentFut:
		return 25000 + s.rng.Float64()*150
	default:
		// rough option premium scale
		return 50 + s.rng.Float64()*250
	}
}

func (s *Simulator) seedOI(token string) float64 {
	in, ok := s.resolver.Instrument(token)
	if !ok || !in.IsDerivative() {
		return 0
	}
	return float64(50000 + s.rng.Intn(150000))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
