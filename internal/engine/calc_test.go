package engine

import (
	"math"
	"testing"
	"time"

	"OptiFlow/internal/domain/models"
)

func TestComputePCR(t *testing.T) {
	p := computePCR(800, 1500, 1.0)
	if p.PCR == nil {
		t.Fatal("expected defined pcr")
	}
	if got, want := *p.PCR, 800.0/1500.0; math.Abs(got-want) > 1e-12 {
		t.Fatalf("pcr = %v, want %v", got, want)
	}
	if p.Sentiment != "Bearish" {
		t.Fatalf("sentiment = %q, want Bearish", p.Sentiment)
	}

	p = computePCR(1800, 1500, 1.0)
	if p.Sentiment != "Bullish" {
		t.Fatalf("sentiment = %q, want Bullish", p.Sentiment)
	}

	// threshold is exclusive: ratio == threshold stays bearish
	p = computePCR(1500, 1500, 1.0)
	if p.Sentiment != "Bearish" {
		t.Fatalf("sentiment at threshold = %q, want Bearish", p.Sentiment)
	}
}

func TestComputePCRUndefinedOnZeroCallOI(t *testing.T) {
	p := computePCR(500, 0, 1.0)
	if p.PCR != nil {
		t.Fatalf("pcr = %v, want nil", *p.PCR)
	}
	if p.Sentiment != "Undefined" {
		t.Fatalf("sentiment = %q, want Undefined", p.Sentiment)
	}
	if p.TotalPutOI != 500 || p.TotalCallOI != 0 {
		t.Fatalf("totals = %v/%v", p.TotalPutOI, p.TotalCallOI)
	}
}

func TestRankMoversSignedWithStrikeTieBreak(t *testing.T) {
	b := newIntervalBucket(time.Now())
	set := func(strike float64, side models.OptionType, open, cur float64) {
		k := sideKey{strike: strike, side: side}
		b.opening[k] = open
		b.current[k] = cur
	}
	set(25100, models.OptionCall, 1000, 1500) // +500
	set(25000, models.OptionPut, 1000, 800)   // -200
	set(24900, models.OptionCall, 2000, 2500) // +500, lower strike
	set(25200, models.OptionCall, 500, 600)   // +100

	gainers, losers := rankMovers(b, map[sideKey]float64{}, 5)

	if len(gainers) != 3 {
		t.Fatalf("gainers = %d, want 3", len(gainers))
	}
	// equal +500 entries break by ascending strike
	if gainers[0].Strike != 24900 || gainers[1].Strike != 25100 || gainers[2].Strike != 25200 {
		t.Fatalf("gainer order = %v %v %v", gainers[0].Strike, gainers[1].Strike, gainers[2].Strike)
	}
	if len(losers) != 1 || losers[0].Strike != 25000 || losers[0].OIChange != -200 {
		t.Fatalf("losers = %+v", losers)
	}
}

func TestRankMoversTopNAndExcludesFlat(t *testing.T) {
	b := newIntervalBucket(time.Now())
	for i, change := range []float64{400, 300, 200, 100, 0} {
		k := sideKey{strike: 25000 + float64(i)*100, side: models.OptionCall}
		b.opening[k] = 1000
		b.current[k] = 1000 + change
	}

	gainers, losers := rankMovers(b, map[sideKey]float64{}, 2)
	if len(gainers) != 2 || gainers[0].OIChange != 400 || gainers[1].OIChange != 300 {
		t.Fatalf("gainers = %+v", gainers)
	}
	if len(losers) != 0 {
		t.Fatalf("losers = %+v, want none", losers)
	}
}

func TestVWAPStreamMatchesBatch(t *testing.T) {
	prices := []float64{100, 105}
	volumes := []float64{300, 200}

	var acc vwapAccumulator
	var streamed float64
	for i := range prices {
		streamed = acc.Add(prices[i], volumes[i])
	}

	var sumPV, sumV float64
	for i := range prices {
		sumPV += prices[i] * volumes[i]
		sumV += volumes[i]
	}
	batch := sumPV / sumV

	if math.Abs(streamed-batch) > 1e-12 {
		t.Fatalf("streamed vwap %v, batch %v", streamed, batch)
	}
}

func TestVWAPFallbackBeforeVolume(t *testing.T) {
	var acc vwapAccumulator
	if got := acc.Value(101.5); got != 101.5 {
		t.Fatalf("fallback = %v, want 101.5", got)
	}
	if got := acc.Add(100, 0); got != 100 {
		t.Fatalf("zero-volume add = %v, want fallback 100", got)
	}
}

func TestBucketRolloverCarriesCurrentAsOpening(t *testing.T) {
	start := time.Date(2025, 9, 1, 9, 15, 0, 0, time.UTC)
	b := newIntervalBucket(start)
	k := sideKey{strike: 25000, side: models.OptionCall}

	b.observe(k, 1000, 0, false)
	b.observe(k, 1500, 1000, true)
	if change, _ := b.change(k); change != 500 {
		t.Fatalf("change = %v, want 500", change)
	}

	next := b.rollover(start.Add(15 * time.Minute))
	if change, _ := next.change(k); change != 0 {
		t.Fatalf("post-rollover change = %v, want 0", change)
	}
	next.observe(k, 1600, 1500, true)
	if change, _ := next.change(k); change != 100 {
		t.Fatalf("post-rollover change = %v, want 100", change)
	}
}
