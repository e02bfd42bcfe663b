package feed

import (
	"errors"
	"testing"
	"time"
)

func TestNormalizeTick(t *testing.T) {
	b := []byte(`{"instrument_token":"NSE_FO|50001","last_price":142.5,"open_interest":1500,"volume":300,"timestamp":1755144900000}`)
	tick, err := NormalizeTick(b)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if tick.InstrumentToken != "NSE_FO|50001" {
		t.Fatalf("token = %s", tick.InstrumentToken)
	}
	if tick.LastPrice != 142.5 || tick.OpenInterest != 1500 || tick.Volume != 300 {
		t.Fatalf("unexpected fields: %+v", tick)
	}
	if !tick.Timestamp.Equal(time.UnixMilli(1755144900000)) {
		t.Fatalf("timestamp = %v", tick.Timestamp)
	}
}

func TestNormalizeTickMissingPrice(t *testing.T) {
	_, err := NormalizeTick([]byte(`{"instrument_token":"NSE_FO|50001","open_interest":1500}`))
	if !errors.Is(err, ErrMalformedTick) {
		t.Fatalf("expected ErrMalformedTick, got %v", err)
	}
}

func TestNormalizeTickNonNumericPrice(t *testing.T) {
	_, err := NormalizeTick([]byte(`{"instrument_token":"NSE_FO|50001","last_price":"abc"}`))
	if !errors.Is(err, ErrMalformedTick) {
		t.Fatalf("expected ErrMalformedTick, got %v", err)
	}
}

func TestNormalizeTickMissingToken(t *testing.T) {
	_, err := NormalizeTick([]byte(`{"last_price":100}`))
	if !errors.Is(err, ErrMalformedTick) {
		t.Fatalf("expected ErrMalformedTick, got %v", err)
	}
}

func TestNormalizeTickNegativeOIPassesThrough(t *testing.T) {
	tick, err := NormalizeTick([]byte(`{"instrument_token":"NSE_FO|50001","last_price":100,"open_interest":-50}`))
	if err != nil {
		t.Fatalf("out-of-range values must pass through: %v", err)
	}
	if tick.OpenInterest != -50 {
		t.Fatalf("oi = %v", tick.OpenInterest)
	}
}

func TestNormalizeTickDefaultsTimestamp(t *testing.T) {
	before := time.Now()
	tick, err := NormalizeTick([]byte(`{"instrument_token":"NSE_FO|50001","last_price":100}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if tick.Timestamp.Before(before.Add(-time.Second)) {
		t.Fatalf("expected near-now timestamp, got %v", tick.Timestamp)
	}
}
