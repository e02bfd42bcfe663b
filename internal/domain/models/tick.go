package models

import "time"

// Tick is the canonical normalized market tick keyed by instrument token.
// Ticks are ephemeral: they are folded into interval aggregates and not
// persisted by the core (the relay backend may archive them separately).
type Tick struct {
	InstrumentToken string    `json:"instrument_token"`
	LastPrice       float64   `json:"last_price"`
	OpenInterest    float64   `json:"open_interest"`
	Volume          float64   `json:"volume"`
	Timestamp       time.Time `json:"timestamp"`
}
