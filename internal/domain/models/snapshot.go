package models

import (
	"fmt"
	"time"
)

// MetricType tags the payload variant carried by a DerivedSnapshot.
type MetricType string

const (
	MetricChangeInOI   MetricType = "changeInOI"
	MetricPCR          MetricType = "pcr"
	MetricOIGainer     MetricType = "oiGainer"
	MetricOILooser     MetricType = "oiLooser"
	MetricStraddle     MetricType = "straddlePrice"
	MetricPremiumDecay MetricType = "premiumDecay"
)

// SnapshotKey identifies the latest snapshot for a metric.
type SnapshotKey struct {
	Metric   MetricType
	Symbol   string
	Expiry   string
	Interval Interval
}

func (k SnapshotKey) String() string {
	return fmt.Sprintf("%s:%s:%s:%s", k.Metric, k.Symbol, k.Expiry, k.Interval)
}

// DerivedSnapshot is one recomputed metric payload. Snapshots are immutable
// once published; recomputation replaces the whole value, never mutates it.
type DerivedSnapshot struct {
	Symbol      string     `json:"symbol"`
	Expiry      string     `json:"expiry,omitempty"`
	Interval    Interval   `json:"interval,omitempty"`
	MetricType  MetricType `json:"metric_type"`
	GeneratedAt time.Time  `json:"generated_at"`
	Payload     any        `json:"payload"`
}

// Key returns the store key for this snapshot.
func (s *DerivedSnapshot) Key() SnapshotKey {
	return SnapshotKey{Metric: s.MetricType, Symbol: s.Symbol, Expiry: s.Expiry, Interval: s.Interval}
}

// StrikeOIChange is one chain row of the changeInOI payload.
type StrikeOIChange struct {
	Strike       float64 `json:"strike"`
	CallOI       float64 `json:"call_oi"`
	CallOIChange float64 `json:"call_oi_change"`
	PutOI        float64 `json:"put_oi"`
	PutOIChange  float64 `json:"put_oi_change"`
}

// ChangeInOIPayload carries day change-in-OI per strike, CE and PE split.
type ChangeInOIPayload struct {
	SpotPrice float64          `json:"spot_price"`
	Strikes   []StrikeOIChange `json:"strikes"`
}

// PCRPayload carries the put-call ratio. PCR is nil when total call OI is
// zero: the ratio is undefined, never Infinity.
type PCRPayload struct {
	PCR         *float64 `json:"pcr"`
	Sentiment   string   `json:"sentiment"`
	TotalPutOI  float64  `json:"total_put_oi"`
	TotalCallOI float64  `json:"total_call_oi"`
}

// OIMover is one ranked entry of the gainer/looser payloads.
type OIMover struct {
	Strike     float64    `json:"strike"`
	OptionType OptionType `json:"option_type"`
	OIChange   float64    `json:"oi_change"`
	LastPrice  float64    `json:"last_price"`
}

// OIMoversPayload ranks strikes by signed OI change within the active
// interval bucket.
type OIMoversPayload struct {
	WindowStart time.Time `json:"window_start"`
	Movers      []OIMover `json:"movers"`
}

// StraddlePoint is one sample of the straddle series.
type StraddlePoint struct {
	Time     time.Time `json:"time"`
	CEPrice  float64   `json:"ce_price"`
	PEPrice  float64   `json:"pe_price"`
	Straddle float64   `json:"straddle"`
	VWAP     float64   `json:"vwap"`
}

// StraddlePayload carries the session straddle series for the tracked strike.
type StraddlePayload struct {
	Strike float64         `json:"strike"`
	Points []StraddlePoint `json:"points"`
}

// DecayPoint is one premium-decay step. Decay is a signed delta; it is not
// forced negative.
type DecayPoint struct {
	Time      time.Time `json:"time"`
	CEPremium float64   `json:"ce_premium"`
	PEPremium float64   `json:"pe_premium"`
	CEDecay   float64   `json:"ce_decay"`
	PEDecay   float64   `json:"pe_decay"`
}

// PremiumDecayPayload carries per-step premium deltas for the tracked strike.
type PremiumDecayPayload struct {
	Strike float64      `json:"strike"`
	Points []DecayPoint `json:"points"`
}

// ChainRow is one strike of the option chain surface served over REST.
type ChainRow struct {
	Strike       float64 `json:"strike"`
	CallLTP      float64 `json:"call_ltp"`
	CallOI       float64 `json:"call_oi"`
	CallOIChange float64 `json:"call_oi_change"`
	CallVolume   float64 `json:"call_volume"`
	PutLTP       float64 `json:"put_ltp"`
	PutOI        float64 `json:"put_oi"`
	PutOIChange  float64 `json:"put_oi_change"`
	PutVolume    float64 `json:"put_volume"`
}

// OptionChain is the assembled chain for (symbol, expiry).
type OptionChain struct {
	Symbol    string     `json:"symbol"`
	Expiry    string     `json:"expiry"`
	SpotPrice float64    `json:"spot_price"`
	PCR       *float64   `json:"pcr"`
	Rows      []ChainRow `json:"rows"`
	UpdatedAt time.Time  `json:"updated_at"`
}
