package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const masterJSON = `[
  {"instrument_key":"NSE_FO|50001","symbol_name":"NIFTY 25000 CE","asset_symbol":"NIFTY","segment":"NSE_FO","expiry":"2025-09-25","strike":25000,"option_type":"CE"},
  {"instrument_key":"NSE_FO|50002","symbol_name":"NIFTY 25000 PE","asset_symbol":"NIFTY","segment":"NSE_FO","expiry":"2025-09-25","strike":25000,"option_type":"PE"},
  {"instrument_key":"NSE_FO|50003","symbol_name":"NIFTY 24900 CE","asset_symbol":"NIFTY","segment":"NSE_FO","expiry":"2025-10-30","strike":24900,"option_type":"CE"},
  {"instrument_key":"NSE_FO|50004","symbol_name":"NIFTY FUT","asset_symbol":"NIFTY","segment":"NSE_FO","expiry":"2026-03-26","strike":0,"option_type":"FUT"},
  {"instrument_key":"NSE_FO|50005","symbol_name":"NIFTY BAD","asset_symbol":"NIFTY","segment":"NSE_FO","expiry":"not-a-date","strike":25100,"option_type":"CE"},
  {"instrument_key":"NSE_FO|60001","symbol_name":"BANKNIFTY 52000 CE","asset_symbol":"BANKNIFTY","segment":"NSE_FO","expiry":"2025-09-30","strike":52000,"option_type":"CE"},
  {"instrument_key":"NSE_EQ|10001","symbol_name":"SOMESTOCK","asset_symbol":"NIFTY","segment":"NSE_EQ","expiry":"2025-09-25","strike":0,"option_type":"CE"}
]`

func fixedNow() time.Time {
	return time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
}

func writeMaster(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "instruments.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write master: %v", err)
	}
	return path
}

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	r := NewResolver(writeMaster(t, masterJSON), WithClock(fixedNow))
	if err := r.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	return r
}

func TestLoadMissingFile(t *testing.T) {
	r := NewResolver("/nonexistent/instruments.json")
	err := r.Load()
	if err == nil {
		t.Fatalf("expected error")
	}
	if !errors.Is(err, ErrCatalogLoad) {
		t.Fatalf("expected ErrCatalogLoad, got %v", err)
	}
}

func TestLoadMalformedJSON(t *testing.T) {
	r := NewResolver(writeMaster(t, "{not json"))
	if err := r.Load(); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoadIdempotent(t *testing.T) {
	path := writeMaster(t, masterJSON)
	r := NewResolver(path, WithClock(fixedNow))
	if err := r.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	// Removing the file must not affect repeated loads.
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := r.Load(); err != nil {
		t.Fatalf("second load should use cache: %v", err)
	}
	if r.Size() != 7 {
		t.Fatalf("expected 7 instruments, got %d", r.Size())
	}
}

func TestResolveExpiriesWindow(t *testing.T) {
	r := newTestResolver(t)

	// monthsAhead=1 with now=2025-09-01 covers Sep..Nov; the 2026-03 future
	// and the malformed expiry are excluded, duplicates collapse.
	got := r.ResolveExpiries("NIFTY", 1)
	want := []string{"2025-09-25", "2025-10-30"}
	if len(got) != len(want) {
		t.Fatalf("got %d expiries, want %d: %v", len(got), len(want), got)
	}
	for i, d := range got {
		if d.Format("2006-01-02") != want[i] {
			t.Fatalf("expiry[%d] = %v, want %s", i, d, want[i])
		}
	}
}

func TestResolveExpiriesOrderedNoDuplicates(t *testing.T) {
	r := newTestResolver(t)
	got := r.ResolveExpiries("NIFTY", 6)
	seen := make(map[string]bool)
	prev := time.Time{}
	for _, d := range got {
		key := d.Format("2006-01-02")
		if seen[key] {
			t.Fatalf("duplicate expiry %s", key)
		}
		seen[key] = true
		if d.Before(prev) {
			t.Fatalf("expiries out of order: %v before %v", d, prev)
		}
		prev = d
	}
}

func TestResolveInstrumentKeysPrependsAllSpots(t *testing.T) {
	r := newTestResolver(t)
	expiry := time.Date(2025, 9, 25, 0, 0, 0, 0, time.UTC)
	keys := r.ResolveInstrumentKeys([]string{"NIFTY"}, expiry)

	// Every supported index spot key leads, in fixed order, even when only
	// one index is requested.
	wantSpots := []string{
		"NSE_INDEX|Nifty 50",
		"NSE_INDEX|Nifty Bank",
		"NSE_INDEX|Nifty Fin Service",
		"NSE_INDEX|NIFTY MID SELECT",
	}
	if len(keys) < len(wantSpots)+2 {
		t.Fatalf("expected %d spots + 2 derivative keys, got %v", len(wantSpots), keys)
	}
	for i, want := range wantSpots {
		if keys[i] != want {
			t.Fatalf("spot[%d] = %s, want %s", i, keys[i], want)
		}
	}
	rest := keys[len(wantSpots):]
	if rest[0] != "NSE_FO|50001" || rest[1] != "NSE_FO|50002" {
		t.Fatalf("unexpected derivative keys %v", rest)
	}
}

func TestResolveInstrumentKeysDefaultsExpiries(t *testing.T) {
	r := newTestResolver(t)
	keys := r.ResolveInstrumentKeys([]string{"NIFTY"})
	// Defaults to ResolveExpiries(NIFTY, 1): Sep + Oct expiries.
	found := make(map[string]bool, len(keys))
	for _, k := range keys {
		found[k] = true
	}
	for _, want := range []string{"NSE_INDEX|Nifty 50", "NSE_FO|50001", "NSE_FO|50002", "NSE_FO|50003"} {
		if !found[want] {
			t.Fatalf("missing key %s in %v", want, keys)
		}
	}
	if found["NSE_FO|50004"] {
		t.Fatalf("future expiry outside window must be excluded")
	}
	if found["NSE_EQ|10001"] {
		t.Fatalf("non-derivative segment must be excluded")
	}
}

func TestResolveInstrumentKeysMultipleIndices(t *testing.T) {
	r := newTestResolver(t)
	sep25 := time.Date(2025, 9, 25, 0, 0, 0, 0, time.UTC)
	sep30 := time.Date(2025, 9, 30, 0, 0, 0, 0, time.UTC)
	keys := r.ResolveInstrumentKeys([]string{"NIFTY", "BANKNIFTY"}, sep25, sep30)

	if keys[0] != "NSE_INDEX|Nifty 50" || keys[1] != "NSE_INDEX|Nifty Bank" {
		t.Fatalf("spot keys must preserve fixed order, got %v", keys[:2])
	}
	found := false
	for _, k := range keys {
		if k == "NSE_FO|60001" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected BANKNIFTY derivative key in %v", keys)
	}
}

func TestReloadSwapsSnapshot(t *testing.T) {
	path := writeMaster(t, masterJSON)
	r := NewResolver(path, WithClock(fixedNow))
	if err := r.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := os.WriteFile(path, []byte(`[]`), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if err := r.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if r.Size() != 0 {
		t.Fatalf("expected empty catalog after reload, got %d", r.Size())
	}
}
