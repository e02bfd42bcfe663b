package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"OptiFlow/internal/domain/models"
)

// ErrMalformedTick marks a raw feed message that cannot become a Tick:
// required numeric fields missing or non-numeric. Out-of-range values (such
// as negative OI) pass through; plausibility is a caller concern.
var ErrMalformedTick = errors.New("feed: malformed tick")

// RawTick is the wire shape of one inbound feed message. Pointer fields
// distinguish absent from zero.
type RawTick struct {
	InstrumentToken string   `json:"instrument_token"`
	LastPrice       *float64 `json:"last_price"`
	OpenInterest    *float64 `json:"open_interest"`
	Volume          *float64 `json:"volume"`
	Timestamp       *int64   `json:"timestamp"` // unix milliseconds
}

// NormalizeTick converts one raw message into a canonical Tick.
func NormalizeTick(b []byte) (*models.Tick, error) {
	var raw RawTick
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTick, err)
	}
	return normalize(&raw)
}

func normalize(raw *RawTick) (*models.Tick, error) {
	if raw.InstrumentToken == "" {
		return nil, fmt.Errorf("%w: missing instrument_token", ErrMalformedTick)
	}
	if raw.LastPrice == nil {
		return nil, fmt.Errorf("%w: missing last_price for %s", ErrMalformedTick, raw.InstrumentToken)
	}

	t := &models.Tick{
		InstrumentToken: raw.InstrumentToken,
		LastPrice:       *raw.LastPrice,
	}
	if raw.OpenInterest != nil {
		t.OpenInterest = *raw.OpenInterest
	}
	if raw.Volume != nil {
		t.Volume = *raw.Volume
	}
	if raw.Timestamp != nil {
		t.Timestamp = time.UnixMilli(*raw.Timestamp)
	} else {
		t.Timestamp = time.Now()
	}
	return t, nil
}
