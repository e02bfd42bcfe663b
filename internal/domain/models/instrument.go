package models

import "time"

type Segment string

const (
	SegmentNSEFO    Segment = "NSE_FO"
	SegmentNSEIndex Segment = "NSE_INDEX"
)

type OptionType string

const (
	OptionCall      OptionType = "CE"
	OptionPut       OptionType = "PE"
	InstrumentFut   OptionType = "FUT"
	InstrumentIndex OptionType = "INDEX"
)

// Instrument is one row of the instrument master. Loaded once at startup
// and treated as read-only until an explicit catalog reload.
type Instrument struct {
	InstrumentKey string     `json:"instrument_key"`
	SymbolName    string     `json:"symbol_name"`
	AssetSymbol   string     `json:"asset_symbol"`
	Segment       Segment    `json:"segment"`
	Expiry        string     `json:"expiry"`
	Strike        float64    `json:"strike"`
	OptionType    OptionType `json:"option_type"`
}

// ExpiryDate parses the raw expiry field. Malformed or absent dates
// return (zero, false) and are excluded from expiry aggregation.
func (i Instrument) ExpiryDate() (time.Time, bool) {
	if i.Expiry == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339, "02-01-2006"} {
		if t, err := time.Parse(layout, i.Expiry); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// IsDerivative reports whether the instrument trades on the derivatives segment.
func (i Instrument) IsDerivative() bool {
	return i.Segment == SegmentNSEFO
}
