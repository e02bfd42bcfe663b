package engine

import (
	"sort"

	"OptiFlow/internal/domain/models"
)

// computePCR derives the put-call ratio from OI totals. A zero call total
// makes the ratio undefined: the payload carries nil, never Inf or NaN.
func computePCR(totalPutOI, totalCallOI, bullishThreshold float64) models.PCRPayload {
	p := models.PCRPayload{
		TotalPutOI:  totalPutOI,
		TotalCallOI: totalCallOI,
		Sentiment:   "Undefined",
	}
	if totalCallOI == 0 {
		return p
	}
	ratio := totalPutOI / totalCallOI
	p.PCR = &ratio
	if ratio > bullishThreshold {
		p.Sentiment = "Bullish"
	} else {
		p.Sentiment = "Bearish"
	}
	return p
}

// rankMovers splits bucket OI changes into gainers (largest positive change
// first) and losers (most negative change first). Gainers and losers rank by
// signed value, not magnitude; ties break by ascending strike.
func rankMovers(b *intervalBucket, prices map[sideKey]float64, topN int) (gainers, losers []models.OIMover) {
	all := make([]models.OIMover, 0, len(b.current))
	for k := range b.current {
		change, ok := b.change(k)
		if !ok {
			continue
		}
		all = append(all, models.OIMover{
			Strike:     k.strike,
			OptionType: k.side,
			OIChange:   change,
			LastPrice:  prices[k],
		})
	}

	byGain := append([]models.OIMover(nil), all...)
	sort.Slice(byGain, func(i, j int) bool {
		if byGain[i].OIChange != byGain[j].OIChange {
			return byGain[i].OIChange > byGain[j].OIChange
		}
		if byGain[i].Strike != byGain[j].Strike {
			return byGain[i].Strike < byGain[j].Strike
		}
		return byGain[i].OptionType < byGain[j].OptionType
	})
	for _, m := range byGain {
		if m.OIChange <= 0 || len(gainers) >= topN {
			break
		}
		gainers = append(gainers, m)
	}

	byLoss := append([]models.OIMover(nil), all...)
	sort.Slice(byLoss, func(i, j int) bool {
		if byLoss[i].OIChange != byLoss[j].OIChange {
			return byLoss[i].OIChange < byLoss[j].OIChange
		}
		if byLoss[i].Strike != byLoss[j].Strike {
			return byLoss[i].Strike < byLoss[j].Strike
		}
		return byLoss[i].OptionType < byLoss[j].OptionType
	})
	for _, m := range byLoss {
		if m.OIChange >= 0 || len(losers) >= topN {
			break
		}
		losers = append(losers, m)
	}
	return gainers, losers
}

// vwapAccumulator maintains a running volume-weighted average incrementally.
// This is the one metric that is NOT snapshot-replace recomputed: chart
// consumers expect the session VWAP line to be stable under streaming.
type vwapAccumulator struct {
	sumPV float64
	sumV  float64
}

// Add folds one (price, volume) sample and returns the running VWAP.
// Zero-volume samples leave the average unchanged.
func (a *vwapAccumulator) Add(price, volume float64) float64 {
	a.sumPV += price * volume
	a.sumV += volume
	return a.Value(price)
}

// Value returns the current VWAP, falling back to the given price before any
// volume has been seen.
func (a *vwapAccumulator) Value(fallback float64) float64 {
	if a.sumV == 0 {
		return fallback
	}
	return a.sumPV / a.sumV
}

func (a *vwapAccumulator) reset() {
	a.sumPV = 0
	a.sumV = 0
}
