package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"OptiFlow/internal/broadcast"
	"OptiFlow/internal/catalog"
	"OptiFlow/internal/domain/models"
	"OptiFlow/internal/engine"
	"OptiFlow/internal/store"
	"OptiFlow/pkg/cache"
	"OptiFlow/pkg/config"
	"OptiFlow/pkg/logger"
	"OptiFlow/pkg/metrics"

	"github.com/labstack/echo/v4"
)

const handlerCatalogJSON = `[
  {"instrument_key": "NSE_INDEX|Nifty 50", "symbol_name": "Nifty 50", "asset_symbol": "NIFTY", "segment": "NSE_INDEX", "option_type": "INDEX"},
  {"instrument_key": "NSE_FO|49003", "symbol_name": "NIFTY 25000 CE", "asset_symbol": "NIFTY", "segment": "NSE_FO", "expiry": "2025-09-30", "strike": 25000, "option_type": "CE"},
  {"instrument_key": "NSE_FO|49004", "symbol_name": "NIFTY 25000 PE", "asset_symbol": "NIFTY", "segment": "NSE_FO", "expiry": "2025-09-30", "strike": 25000, "option_type": "PE"}
]`

type alwaysConnected struct{}

func (alwaysConnected) IsConnected() bool { return true }

func testConfig(t *testing.T, catalogPath string) *config.Config {
	t.Helper()
	cfg := &config.Config{Environment: "test"}
	cfg.Catalog.Path = catalogPath
	cfg.Catalog.Indices = []string{"NIFTY"}
	cfg.Catalog.MonthsAhead = 1
	cfg.Engine.MoversTopN = 5
	cfg.Engine.PCRBullishThreshold = 1.0
	return cfg
}

func newTestHandler(t *testing.T) (*MarketHandler, *engine.Engine) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "instruments.json")
	if err := os.WriteFile(path, []byte(handlerCatalogJSON), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	resolver := catalog.NewResolver(path)
	if err := resolver.Load(); err != nil {
		t.Fatalf("load catalog: %v", err)
	}

	cfg := testConfig(t, path)
	snaps := store.NewSnapshotStore()
	hist := store.NewHistoricalStore(cache.NewMemoryCache(100), time.Hour)
	hub := broadcast.NewHub(logger.NewNop(), metrics.Noop{})
	eng := engine.New(engine.Config{
		Intervals:           []models.Interval{models.Interval15Min},
		MoversTopN:          5,
		PCRBullishThreshold: 1.0,
		Location:            cfg.Timezone(),
	}, resolver, metrics.Noop{}, logger.NewNop(), snaps)

	h := NewMarketHandler(logger.NewNop(), cfg, resolver, eng, snaps, hist, alwaysConnected{}, hub)
	return h, eng
}

func doRequest(t *testing.T, h *MarketHandler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body %s: %v", rec.Body.String(), err)
	}
	return rec, body
}

func feedTicks(t *testing.T, eng *engine.Engine) {
	t.Helper()
	at := time.Date(2025, 9, 1, 9, 16, 0, 0, time.FixedZone("IST", 5*3600+1800))
	ticks := []*models.Tick{
		{InstrumentToken: "NSE_INDEX|Nifty 50", LastPrice: 25000, Timestamp: at},
		{InstrumentToken: "NSE_FO|49003", LastPrice: 120, OpenInterest: 1500, Volume: 50, Timestamp: at},
		{InstrumentToken: "NSE_FO|49004", LastPrice: 110, OpenInterest: 1200, Volume: 40, Timestamp: at},
	}
	for _, tick := range ticks {
		if err := eng.Process(context.Background(), tick); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
}

func TestHealthEnvelope(t *testing.T) {
	h, _ := newTestHandler(t)
	rec, body := doRequest(t, h, "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["success"] != true {
		t.Fatalf("body = %v", body)
	}
	data := body["data"].(map[string]any)
	if data["feed_connected"] != true {
		t.Fatalf("data = %v", data)
	}
}

func TestPCRAnalysisNotFoundBeforeData(t *testing.T) {
	h, _ := newTestHandler(t)
	rec, body := doRequest(t, h, "/api/oi/pcr-analysis/NIFTY")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if body["success"] != false || body["error"] == nil {
		t.Fatalf("body = %v", body)
	}
}

func TestPCRAnalysisAfterTicks(t *testing.T) {
	h, eng := newTestHandler(t)
	feedTicks(t, eng)

	rec, body := doRequest(t, h, "/api/oi/pcr-analysis/NIFTY?expiry=2025-09-30")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %v", rec.Code, body)
	}
	data := body["data"].(map[string]any)
	payload := data["payload"].(map[string]any)
	want := 1200.0 / 1500.0
	if got := payload["pcr"].(float64); got < want-1e-9 || got > want+1e-9 {
		t.Fatalf("pcr = %v, want %v", got, want)
	}
}

func TestOptionChainEndpoint(t *testing.T) {
	h, eng := newTestHandler(t)
	feedTicks(t, eng)

	rec, body := doRequest(t, h, "/api/options/chain/NIFTY/2025-09-30")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %v", rec.Code, body)
	}
	data := body["data"].(map[string]any)
	rows := data["rows"].([]any)
	if len(rows) != 1 {
		t.Fatalf("rows = %d", len(rows))
	}

	rec, _ = doRequest(t, h, "/api/options/chain/NIFTY/2025-12-30")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing chain status = %d, want 404", rec.Code)
	}
}

func TestHistoricalRequiresDate(t *testing.T) {
	h, _ := newTestHandler(t)
	rec, body := doRequest(t, h, "/api/historical/oi/NIFTY")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %v", rec.Code, body)
	}
}

func TestIntervalsEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)
	rec, body := doRequest(t, h, "/api/config/intervals")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	data := body["data"].(map[string]any)
	if len(data["intervals"].([]any)) != 3 {
		t.Fatalf("intervals = %v", data["intervals"])
	}
}
