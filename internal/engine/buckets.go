package engine

import (
	"time"

	"OptiFlow/internal/domain/models"
)

type sideKey struct {
	strike float64
	side   models.OptionType
}

// intervalBucket tracks per-strike OI within one aligned window.
// openingOI is fixed when a key first appears in the bucket; oiChange is
// always current minus opening of the ACTIVE bucket, never cross-bucket.
type intervalBucket struct {
	windowStart time.Time
	opening     map[sideKey]float64
	current     map[sideKey]float64
}

func newIntervalBucket(windowStart time.Time) *intervalBucket {
	return &intervalBucket{
		windowStart: windowStart,
		opening:     make(map[sideKey]float64),
		current:     make(map[sideKey]float64),
	}
}

// observe folds one OI observation. prevOI seeds the opening value when the
// key is first seen in this bucket and a pre-bucket value is known.
func (b *intervalBucket) observe(k sideKey, oi float64, prevOI float64, havePrev bool) {
	if _, ok := b.opening[k]; !ok {
		if havePrev {
			b.opening[k] = prevOI
		} else {
			b.opening[k] = oi
		}
	}
	b.current[k] = oi
}

// change returns currentOI - openingOI for the key.
func (b *intervalBucket) change(k sideKey) (float64, bool) {
	cur, ok := b.current[k]
	if !ok {
		return 0, false
	}
	return cur - b.opening[k], true
}

// rollover opens a fresh bucket at windowStart, carrying current OI forward
// as the new opening values.
func (b *intervalBucket) rollover(windowStart time.Time) *intervalBucket {
	next := newIntervalBucket(windowStart)
	for k, oi := range b.current {
		next.opening[k] = oi
		next.current[k] = oi
	}
	return next
}
