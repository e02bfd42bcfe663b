package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"OptiFlow/internal/domain/models"
	"OptiFlow/pkg/util"
)

// ErrCatalogLoad marks a fatal catalog read/parse failure. The process
// cannot serve without a catalog, so callers treat it as fatal at startup.
var ErrCatalogLoad = errors.New("catalog: load failed")

// spotKeys maps each supported index to its fixed spot instrument key.
// resolveInstrumentKeys always prepends these, in spotOrder order, ahead of
// the derivative keys.
var spotKeys = map[string]string{
	"NIFTY":      "NSE_INDEX|Nifty 50",
	"BANKNIFTY":  "NSE_INDEX|Nifty Bank",
	"FINNIFTY":   "NSE_INDEX|Nifty Fin Service",
	"MIDCPNIFTY": "NSE_INDEX|NIFTY MID SELECT",
}

var spotOrder = []string{"NIFTY", "BANKNIFTY", "FINNIFTY", "MIDCPNIFTY"}

// Resolver loads the static instrument master once and answers
// expiry/instrument-key lookups. Read-only after load; Reload replaces the
// whole snapshot atomically.
type Resolver struct {
	path string
	now  func() time.Time

	mu          sync.RWMutex
	loaded      bool
	instruments []models.Instrument
	byKey       map[string]models.Instrument
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// NewResolver creates a Resolver for the given instrument master file.
func NewResolver(path string, opts ...Option) *Resolver {
	r := &Resolver{
		path: path,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load reads the instrument master. Idempotent: repeated calls return the
// cached snapshot without re-reading the file.
func (r *Resolver) Load() error {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()
	if loaded {
		return nil
	}
	return r.Reload()
}

// Reload re-reads the instrument master and swaps the cached snapshot.
func (r *Resolver) Reload() error {
	b, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrCatalogLoad, r.path, err)
	}

	var instruments []models.Instrument
	if err := json.Unmarshal(b, &instruments); err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrCatalogLoad, r.path, err)
	}

	byKey := make(map[string]models.Instrument, len(instruments))
	for _, in := range instruments {
		if in.InstrumentKey != "" {
			byKey[in.InstrumentKey] = in
		}
	}

	r.mu.Lock()
	r.instruments = instruments
	r.byKey = byKey
	r.loaded = true
	r.mu.Unlock()
	return nil
}

// Instrument looks up one catalog row by instrument key.
func (r *Resolver) Instrument(key string) (models.Instrument, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	in, ok := r.byKey[key]
	return in, ok
}

// Size returns the number of loaded instruments.
func (r *Resolver) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instruments)
}

// ResolveExpiries returns the ordered, de-duplicated expiry dates for
// indexSymbol within [start of current month, end of month monthsAhead+1].
// Instruments with malformed expiry dates are skipped, never an error.
func (r *Resolver) ResolveExpiries(indexSymbol string, monthsAhead int) []time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()

	windowStart := util.StartOfMonth(r.now().UTC())
	windowEnd := windowStart.AddDate(0, monthsAhead+2, 0) // exclusive

	seen := make(map[time.Time]struct{})
	var expiries []time.Time
	for _, in := range r.instruments {
		if !in.IsDerivative() || in.AssetSymbol != indexSymbol {
			continue
		}
		d, ok := in.ExpiryDate()
		if !ok {
			continue
		}
		if d.Before(windowStart) || !d.Before(windowEnd) {
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		expiries = append(expiries, d)
	}

	sort.Slice(expiries, func(i, j int) bool { return expiries[i].Before(expiries[j]) })
	return expiries
}

// ResolveInstrumentKeys returns de-duplicated derivative instrument keys for
// the given index symbols and expiry set. The fixed spot keys of every
// supported index are always prepended in fixed order, regardless of which
// indices were asked for. When no expiries are given it defaults to
// ResolveExpiries(indexSymbols[0], 1).
func (r *Resolver) ResolveInstrumentKeys(indexSymbols []string, expiries ...time.Time) []string {
	if len(indexSymbols) == 0 {
		return nil
	}
	if len(expiries) == 0 {
		expiries = r.ResolveExpiries(indexSymbols[0], 1)
	}

	wantExpiry := make(map[time.Time]struct{}, len(expiries))
	for _, e := range expiries {
		wantExpiry[time.Date(e.Year(), e.Month(), e.Day(), 0, 0, 0, 0, time.UTC)] = struct{}{}
	}
	wantSymbol := make(map[string]struct{}, len(indexSymbols))
	for _, s := range indexSymbols {
		wantSymbol[s] = struct{}{}
	}

	keys := make([]string, 0, 64)
	dedup := make(map[string]struct{})
	for _, idx := range spotOrder {
		key := spotKeys[idx]
		keys = append(keys, key)
		dedup[key] = struct{}{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, in := range r.instruments {
		if !in.IsDerivative() {
			continue
		}
		if _, ok := wantSymbol[in.AssetSymbol]; !ok {
			continue
		}
		d, ok := in.ExpiryDate()
		if !ok {
			continue
		}
		if _, ok := wantExpiry[d]; !ok {
			continue
		}
		if _, dup := dedup[in.InstrumentKey]; dup {
			continue
		}
		dedup[in.InstrumentKey] = struct{}{}
		keys = append(keys, in.InstrumentKey)
	}
	return keys
}

// SpotKey returns the fixed spot instrument key for a supported index.
func SpotKey(indexSymbol string) (string, bool) {
	key, ok := spotKeys[indexSymbol]
	return key, ok
}

// Indices lists the supported index symbols in fixed order.
func Indices() []string {
	out := make([]string, len(spotOrder))
	copy(out, spotOrder)
	return out
}
