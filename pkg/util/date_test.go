package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2025-08-14T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2025, 8, 14, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseDate(t *testing.T) {
	got, ok := ParseDate("2025-08-14")
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Year() != 2025 || got.Month() != time.August || got.Day() != 14 {
		t.Fatalf("unexpected date %v", got)
	}
	if _, ok := ParseDate("14/08/2025"); ok {
		t.Fatalf("expected malformed date to fail")
	}
}

func TestStartOfMonth(t *testing.T) {
	in := time.Date(2025, 8, 14, 13, 45, 0, 0, time.UTC)
	got := StartOfMonth(in)
	want := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestTradingDayCrossesMidnightInLoc(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	// 20:00 UTC is already the next calendar day in IST.
	in := time.Date(2025, 8, 14, 20, 0, 0, 0, time.UTC)
	got := TradingDay(in, ist)
	if got.Day() != 15 {
		t.Fatalf("expected IST day 15, got %v", got)
	}
}
