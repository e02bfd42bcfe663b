package engine

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"OptiFlow/internal/catalog"
	"OptiFlow/internal/domain/models"
	drepo "OptiFlow/internal/domain/repository"
	applogger "OptiFlow/pkg/logger"
	"OptiFlow/pkg/util"
)

// Config holds engine tunables. The sentiment threshold and mover depth come
// from configuration, not hard-coded cutoffs.
type Config struct {
	Intervals           []models.Interval
	MoversTopN          int
	PCRBullishThreshold float64
	Location            *time.Location
}

// Engine folds the tick stream into per-(symbol, expiry) chain state and
// recomputes derived snapshots on every update. All metrics except the VWAP
// line are snapshot-replace: each recomputation builds a fresh payload and
// publishes it to every sink.
type Engine struct {
	cfg      Config
	resolver *catalog.Resolver
	sinks    []drepo.SnapshotSink
	metrics  drepo.Metrics
	logger   *applogger.Logger

	mu     sync.RWMutex
	chains map[chainKey]*chainState
	spots  map[string]float64
}

type chainKey struct {
	symbol string
	expiry string
}

type sideState struct {
	lastPrice float64
	oi        float64
	haveOI    bool
	dayOpenOI float64
	haveOpen  bool
	volume    float64
}

type strikeState struct {
	ce sideState
	pe sideState
}

// dayChange is the OI delta against the day-opening OI. Zero until the side
// ticks for the current trading day, so a session reset never reports the
// previous day's delta.
func (s *sideState) dayChange() float64 {
	if !s.haveOpen {
		return 0
	}
	return s.oi - s.dayOpenOI
}

// chainState is all mutable aggregation state for one (symbol, expiry).
// Guarded by its own mutex: updates for the same chain are serialized while
// independent chains update concurrently.
type chainState struct {
	mu sync.Mutex

	symbol string
	expiry string
	day    time.Time

	strikes map[float64]*strikeState
	buckets map[models.Interval]*intervalBucket

	straddleStrike float64
	straddle       []models.StraddlePoint
	vwap           vwapAccumulator
	decay          []models.DecayPoint
	lastCE, lastPE float64
	haveCE, havePE bool

	updatedAt time.Time
}

// New creates an Engine publishing to the given sinks.
func New(cfg Config, resolver *catalog.Resolver, metrics drepo.Metrics, logger *applogger.Logger, sinks ...drepo.SnapshotSink) *Engine {
	if cfg.MoversTopN <= 0 {
		cfg.MoversTopN = 5
	}
	if cfg.PCRBullishThreshold <= 0 {
		cfg.PCRBullishThreshold = 1.0
	}
	if len(cfg.Intervals) == 0 {
		cfg.Intervals = models.Intervals()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Engine{
		cfg:      cfg,
		resolver: resolver,
		sinks:    sinks,
		metrics:  metrics,
		logger:   logger,
		chains:   make(map[chainKey]*chainState),
		spots:    make(map[string]float64),
	}
}

// Process folds one tick. Implements the ingest pipeline's processor
// contract. Unknown tokens are skipped; stale ticks are dropped and counted,
// never retro-applied to a closed bucket.
func (e *Engine) Process(_ context.Context, t *models.Tick) error {
	in, ok := e.resolver.Instrument(t.InstrumentToken)
	if !ok {
		e.metrics.RecordError("unknown_token")
		return nil
	}

	symbol := in.AssetSymbol
	if symbol == "" {
		symbol = in.SymbolName
	}

	switch in.OptionType {
	case models.InstrumentIndex, models.InstrumentFut:
		e.setSpot(symbol, t.LastPrice)
		e.metrics.RecordTick(symbol)
		e.metrics.RecordLastPrice(symbol, t.LastPrice)
		return nil
	}

	expiry, hasExpiry := in.ExpiryDate()
	if !hasExpiry {
		e.metrics.RecordError("missing_expiry")
		return nil
	}

	chain := e.chain(symbol, expiry.Format("2006-01-02"))
	snaps := chain.apply(e, in, t)
	if snaps == nil {
		return nil
	}

	e.metrics.RecordTick(symbol)
	e.metrics.RecordLastPrice(symbol, t.LastPrice)
	for _, s := range snaps {
		e.publish(s)
	}
	return nil
}

func (e *Engine) publish(s *models.DerivedSnapshot) {
	for _, sink := range e.sinks {
		sink.Publish(s)
	}
}

func (e *Engine) chain(symbol, expiry string) *chainState {
	key := chainKey{symbol: symbol, expiry: expiry}
	e.mu.RLock()
	c, ok := e.chains[key]
	e.mu.RUnlock()
	if ok {
		return c
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok = e.chains[key]; ok {
		return c
	}
	c = &chainState{
		symbol:  symbol,
		expiry:  expiry,
		strikes: make(map[float64]*strikeState),
		buckets: make(map[models.Interval]*intervalBucket),
	}
	e.chains[key] = c
	return c
}

func (e *Engine) setSpot(symbol string, price float64) {
	e.mu.Lock()
	e.spots[symbol] = price
	e.mu.Unlock()
}

// Spot returns the last seen underlying price for a symbol.
func (e *Engine) Spot(symbol string) (float64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.spots[symbol]
	return p, ok
}

// apply folds the tick under the chain lock and returns the recomputed
// snapshots, or nil when the tick was dropped.
func (c *chainState) apply(e *Engine, in models.Instrument, t *models.Tick) []*models.DerivedSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	day := util.TradingDay(t.Timestamp, e.cfg.Location)
	if c.day.IsZero() || day.After(c.day) {
		c.resetSession(day)
	} else if day.Before(c.day) {
		// previous trading day, long closed
		e.metrics.RecordStaleTick(c.symbol)
		return nil
	}

	// Stale check against every configured interval: a tick whose aligned
	// window precedes an active bucket would retro-apply to a closed
	// boundary, so the whole tick is ignored.
	for _, iv := range e.cfg.Intervals {
		b, ok := c.buckets[iv]
		if !ok {
			continue
		}
		if iv.BucketStart(t.Timestamp, e.cfg.Location).Before(b.windowStart) {
			e.metrics.RecordStaleTick(c.symbol)
			return nil
		}
	}

	st, ok := c.strikes[in.Strike]
	if !ok {
		st = &strikeState{}
		c.strikes[in.Strike] = st
	}
	side := &st.ce
	if in.OptionType == models.OptionPut {
		side = &st.pe
	}

	prevOI, havePrev := side.oi, side.haveOI
	side.lastPrice = t.LastPrice
	side.oi = t.OpenInterest
	side.haveOI = true
	side.volume += t.Volume
	if !side.haveOpen {
		side.dayOpenOI = t.OpenInterest
		side.haveOpen = true
	}

	k := sideKey{strike: in.Strike, side: in.OptionType}
	for _, iv := range e.cfg.Intervals {
		bs := iv.BucketStart(t.Timestamp, e.cfg.Location)
		b, ok := c.buckets[iv]
		switch {
		case !ok:
			b = newIntervalBucket(bs)
			c.buckets[iv] = b
		case bs.After(b.windowStart):
			b = b.rollover(bs)
			c.buckets[iv] = b
		}
		b.observe(k, t.OpenInterest, prevOI, havePrev)
	}

	c.updateStraddle(e, in, t)
	c.updatedAt = t.Timestamp

	return c.recompute(e, t.Timestamp)
}

func (c *chainState) resetSession(day time.Time) {
	c.day = day
	c.buckets = make(map[models.Interval]*intervalBucket)
	c.straddle = nil
	c.decay = nil
	c.vwap.reset()
	c.haveCE, c.havePE = false, false
	c.straddleStrike = 0
	for _, st := range c.strikes {
		st.ce.haveOpen = false
		st.pe.haveOpen = false
		st.ce.volume = 0
		st.pe.volume = 0
	}
}

// updateStraddle maintains the session straddle/decay series for the tracked
// strike. The strike locks to the one nearest spot at first opportunity and
// stays fixed for the session so the series is monotonic append-only.
func (c *chainState) updateStraddle(e *Engine, in models.Instrument, t *models.Tick) {
	if c.straddleStrike == 0 {
		spot, ok := e.Spot(c.symbol)
		if !ok {
			return
		}
		c.straddleStrike = c.nearestStrike(spot)
		if c.straddleStrike == 0 {
			return
		}
	}
	if in.Strike != c.straddleStrike {
		return
	}

	if in.OptionType == models.OptionCall {
		c.lastCE = t.LastPrice
		c.haveCE = true
	} else {
		c.lastPE = t.LastPrice
		c.havePE = true
	}
	if !c.haveCE || !c.havePE {
		return
	}

	price := c.lastCE + c.lastPE
	vwap := c.vwap.Add(price, t.Volume)
	c.straddle = append(c.straddle, models.StraddlePoint{
		Time:     t.Timestamp,
		CEPrice:  c.lastCE,
		PEPrice:  c.lastPE,
		Straddle: price,
		VWAP:     vwap,
	})

	point := models.DecayPoint{
		Time:      t.Timestamp,
		CEPremium: c.lastCE,
		PEPremium: c.lastPE,
	}
	if n := len(c.decay); n > 0 {
		prev := c.decay[n-1]
		point.CEDecay = c.lastCE - prev.CEPremium
		point.PEDecay = c.lastPE - prev.PEPremium
	}
	c.decay = append(c.decay, point)
}

func (c *chainState) nearestStrike(spot float64) float64 {
	best, bestDist := 0.0, math.MaxFloat64
	for strike := range c.strikes {
		if d := math.Abs(strike - spot); d < bestDist {
			best, bestDist = strike, d
		}
	}
	return best
}

// recompute builds fresh payloads for every metric touched by this chain.
func (c *chainState) recompute(e *Engine, at time.Time) []*models.DerivedSnapshot {
	snaps := make([]*models.DerivedSnapshot, 0, 4+2*len(e.cfg.Intervals))

	spot, _ := e.Spot(c.symbol)
	strikes := c.sortedStrikes()

	coi := models.ChangeInOIPayload{SpotPrice: spot, Strikes: make([]models.StrikeOIChange, 0, len(strikes))}
	var totalPutOI, totalCallOI float64
	for _, strike := range strikes {
		st := c.strikes[strike]
		row := models.StrikeOIChange{Strike: strike}
		if st.ce.haveOI {
			row.CallOI = st.ce.oi
			row.CallOIChange = st.ce.dayChange()
			totalCallOI += st.ce.oi
		}
		if st.pe.haveOI {
			row.PutOI = st.pe.oi
			row.PutOIChange = st.pe.dayChange()
			totalPutOI += st.pe.oi
		}
		coi.Strikes = append(coi.Strikes, row)
	}
	snaps = append(snaps, c.snapshot(models.MetricChangeInOI, "", at, coi))

	pcr := computePCR(totalPutOI, totalCallOI, e.cfg.PCRBullishThreshold)
	snaps = append(snaps, c.snapshot(models.MetricPCR, "", at, pcr))

	prices := make(map[sideKey]float64, 2*len(strikes))
	for strike, st := range c.strikes {
		prices[sideKey{strike: strike, side: models.OptionCall}] = st.ce.lastPrice
		prices[sideKey{strike: strike, side: models.OptionPut}] = st.pe.lastPrice
	}
	for _, iv := range e.cfg.Intervals {
		b, ok := c.buckets[iv]
		if !ok {
			continue
		}
		gainers, losers := rankMovers(b, prices, e.cfg.MoversTopN)
		snaps = append(snaps,
			c.snapshot(models.MetricOIGainer, iv, at, models.OIMoversPayload{WindowStart: b.windowStart, Movers: gainers}),
			c.snapshot(models.MetricOILooser, iv, at, models.OIMoversPayload{WindowStart: b.windowStart, Movers: losers}),
		)
	}

	if c.straddleStrike != 0 {
		snaps = append(snaps,
			c.snapshot(models.MetricStraddle, "", at, models.StraddlePayload{
				Strike: c.straddleStrike,
				Points: append([]models.StraddlePoint(nil), c.straddle...),
			}),
			c.snapshot(models.MetricPremiumDecay, "", at, models.PremiumDecayPayload{
				Strike: c.straddleStrike,
				Points: append([]models.DecayPoint(nil), c.decay...),
			}),
		)
	}
	return snaps
}

func (c *chainState) snapshot(metric models.MetricType, iv models.Interval, at time.Time, payload any) *models.DerivedSnapshot {
	return &models.DerivedSnapshot{
		Symbol:      c.symbol,
		Expiry:      c.expiry,
		Interval:    iv,
		MetricType:  metric,
		GeneratedAt: at,
		Payload:     payload,
	}
}

func (c *chainState) sortedStrikes() []float64 {
	out := make([]float64, 0, len(c.strikes))
	for s := range c.strikes {
		out = append(out, s)
	}
	sort.Float64s(out)
	return out
}

// Chain assembles the current option chain surface for REST consumers.
func (e *Engine) Chain(symbol, expiry string) (*models.OptionChain, bool) {
	e.mu.RLock()
	c, ok := e.chains[chainKey{symbol: symbol, expiry: expiry}]
	e.mu.RUnlock()
	if !ok {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	spot, _ := e.Spot(symbol)
	var totalPutOI, totalCallOI float64
	rows := make([]models.ChainRow, 0, len(c.strikes))
	for _, strike := range c.sortedStrikes() {
		st := c.strikes[strike]
		rows = append(rows, models.ChainRow{
			Strike:       strike,
			CallLTP:      st.ce.lastPrice,
			CallOI:       st.ce.oi,
			CallOIChange: st.ce.dayChange(),
			CallVolume:   st.ce.volume,
			PutLTP:       st.pe.lastPrice,
			PutOI:        st.pe.oi,
			PutOIChange:  st.pe.dayChange(),
			PutVolume:    st.pe.volume,
		})
		totalCallOI += st.ce.oi
		totalPutOI += st.pe.oi
	}

	pcr := computePCR(totalPutOI, totalCallOI, e.cfg.PCRBullishThreshold)
	return &models.OptionChain{
		Symbol:    symbol,
		Expiry:    expiry,
		SpotPrice: spot,
		PCR:       pcr.PCR,
		Rows:      rows,
		UpdatedAt: c.updatedAt,
	}, true
}

// Expiries lists expiry dates with live chain state for a symbol.
func (e *Engine) Expiries(symbol string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []string
	for key := range e.chains {
		if key.symbol == symbol {
			out = append(out, key.expiry)
		}
	}
	sort.Strings(out)
	return out
}
