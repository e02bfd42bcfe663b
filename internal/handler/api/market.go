package api

import (
	"errors"
	"time"

	"OptiFlow/internal/broadcast"
	"OptiFlow/internal/catalog"
	"OptiFlow/internal/domain/models"
	drepo "OptiFlow/internal/domain/repository"
	"OptiFlow/internal/engine"
	"OptiFlow/internal/store"
	"OptiFlow/pkg/config"
	xhttp "OptiFlow/pkg/http"
	xlogger "OptiFlow/pkg/logger"

	"github.com/labstack/echo/v4"
)

// FeedStatus reports upstream feed connectivity for health/status endpoints.
type FeedStatus interface {
	IsConnected() bool
}

// MarketHandler serves the REST query surface over the latest snapshot store
// and live engine state.
type MarketHandler struct {
	logger   *xlogger.Logger
	cfg      *config.Config
	resolver *catalog.Resolver
	engine   *engine.Engine
	snaps    *store.SnapshotStore
	hist     drepo.HistoricalStore
	feed     FeedStatus
	hub      *broadcast.Hub
}

// NewMarketHandler creates the REST handler.
func NewMarketHandler(logger *xlogger.Logger, cfg *config.Config, resolver *catalog.Resolver, eng *engine.Engine, snaps *store.SnapshotStore, hist drepo.HistoricalStore, feed FeedStatus, hub *broadcast.Hub) *MarketHandler {
	return &MarketHandler{
		logger:   logger,
		cfg:      cfg,
		resolver: resolver,
		engine:   eng,
		snaps:    snaps,
		hist:     hist,
		feed:     feed,
		hub:      hub,
	}
}

// RegisterRoutes wires the /api group.
func (h *MarketHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/health", h.Health)
	g.GET("/market/status", h.MarketStatus)
	g.GET("/market/symbols", h.Symbols)
	g.GET("/options/chain/:symbol/:expiry", h.OptionChain)
	g.GET("/oi/coi-analysis/:symbol", h.COIAnalysis)
	g.GET("/oi/pcr-analysis/:symbol", h.PCRAnalysis)
	g.GET("/positions", h.Positions)
	g.GET("/charts/oi-data/:symbol", h.OIChartData)
	g.GET("/historical/oi/:symbol", h.HistoricalOI)
	g.GET("/config/intervals", h.Intervals)
}

// Health reports service liveness and feed state.
func (h *MarketHandler) Health(c echo.Context) error {
	connected := false
	if h.feed != nil {
		connected = h.feed.IsConnected()
	}
	connections := 0
	if h.hub != nil {
		connections = h.hub.Connections()
	}
	return xhttp.SuccessResponse(c, map[string]any{
		"status":         "ok",
		"environment":    h.cfg.Environment,
		"feed_connected": connected,
		"connections":    connections,
		"instruments":    h.resolver.Size(),
		"time":           time.Now().In(h.cfg.Timezone()),
	})
}

// MarketStatus reports whether the exchange session is open.
func (h *MarketHandler) MarketStatus(c echo.Context) error {
	loc := h.cfg.Timezone()
	now := time.Now().In(loc)

	open := h.cfg.Engine.SessionOpen
	if open == "" {
		open = "09:15"
	}
	closeAt := h.cfg.Engine.SessionClose
	if closeAt == "" {
		closeAt = "15:30"
	}

	isOpen := false
	ot, err1 := time.Parse("15:04", open)
	ct, err2 := time.Parse("15:04", closeAt)
	if err1 == nil && err2 == nil {
		weekday := now.Weekday()
		if weekday != time.Saturday && weekday != time.Sunday {
			sessionOpen := time.Date(now.Year(), now.Month(), now.Day(), ot.Hour(), ot.Minute(), 0, 0, loc)
			sessionClose := time.Date(now.Year(), now.Month(), now.Day(), ct.Hour(), ct.Minute(), 0, 0, loc)
			isOpen = !now.Before(sessionOpen) && now.Before(sessionClose)
		}
	}

	connected := false
	if h.feed != nil {
		connected = h.feed.IsConnected()
	}
	return xhttp.SuccessResponse(c, map[string]any{
		"is_open":        isOpen,
		"session_open":   open,
		"session_close":  closeAt,
		"timezone":       loc.String(),
		"server_time":    now,
		"feed_connected": connected,
	})
}

type symbolEntry struct {
	Symbol   string   `json:"symbol"`
	SpotKey  string   `json:"spot_key,omitempty"`
	Expiries []string `json:"expiries"`
}

// Symbols lists the configured indices and their resolvable expiries.
func (h *MarketHandler) Symbols(c echo.Context) error {
	out := make([]symbolEntry, 0, len(h.cfg.Catalog.Indices))
	for _, symbol := range h.cfg.Catalog.Indices {
		entry := symbolEntry{Symbol: symbol}
		if key, ok := catalog.SpotKey(symbol); ok {
			entry.SpotKey = key
		}
		for _, d := range h.resolver.ResolveExpiries(symbol, h.cfg.Catalog.MonthsAhead) {
			entry.Expiries = append(entry.Expiries, d.Format("2006-01-02"))
		}
		out = append(out, entry)
	}
	return xhttp.SuccessResponse(c, out)
}

// OptionChain serves the assembled chain for (symbol, expiry).
func (h *MarketHandler) OptionChain(c echo.Context) error {
	symbol := c.Param("symbol")
	expiry := c.Param("expiry")
	chain, ok := h.engine.Chain(symbol, expiry)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no chain data for %s %s", symbol, expiry))
	}
	return xhttp.SuccessResponse(c, chain)
}

type snapshotRequest struct {
	Expiry string `query:"expiry"`
}

// COIAnalysis serves the latest change-in-OI snapshot.
func (h *MarketHandler) COIAnalysis(c echo.Context) error {
	return h.latestSnapshot(c, models.MetricChangeInOI)
}

// PCRAnalysis serves the latest put-call-ratio snapshot.
func (h *MarketHandler) PCRAnalysis(c echo.Context) error {
	return h.latestSnapshot(c, models.MetricPCR)
}

func (h *MarketHandler) latestSnapshot(c echo.Context, metric models.MetricType) error {
	symbol := c.Param("symbol")
	req := &snapshotRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	expiry := req.Expiry
	if expiry == "" {
		expiry = h.nearestExpiry(symbol)
	}

	snap, err := h.snaps.Get(models.SnapshotKey{Metric: metric, Symbol: symbol, Expiry: expiry})
	if errors.Is(err, store.ErrSnapshotNotFound) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no snapshot computed for %s", symbol))
	}
	if err != nil {
		h.logger.Error("snapshot lookup failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("snapshot lookup failed").WithError(err))
	}
	return xhttp.SuccessResponse(c, snap)
}

type chartRequest struct {
	Expiry   string `query:"expiry"`
	Interval string `query:"interval" default:"15Min"`
}

// OIChartData bundles the interval-scoped chart series for a symbol.
func (h *MarketHandler) OIChartData(c echo.Context) error {
	symbol := c.Param("symbol")
	req := &chartRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	interval, ok := models.ParseInterval(req.Interval)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("unknown interval %s", req.Interval))
	}
	expiry := req.Expiry
	if expiry == "" {
		expiry = h.nearestExpiry(symbol)
	}

	data := make(map[string]any)
	lookup := func(name string, metric models.MetricType, iv models.Interval) {
		snap, err := h.snaps.Get(models.SnapshotKey{Metric: metric, Symbol: symbol, Expiry: expiry, Interval: iv})
		if err == nil {
			data[name] = snap
		}
	}
	lookup("gainers", models.MetricOIGainer, interval)
	lookup("losers", models.MetricOILooser, interval)
	lookup("straddle", models.MetricStraddle, "")
	lookup("premium_decay", models.MetricPremiumDecay, "")

	if len(data) == 0 {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no chart data for %s", symbol))
	}
	data["symbol"] = symbol
	data["expiry"] = expiry
	data["interval"] = interval
	return xhttp.SuccessResponse(c, data)
}

type positionRow struct {
	Symbol   string    `json:"symbol"`
	Expiry   string    `json:"expiry"`
	Strike   float64   `json:"strike"`
	Straddle float64   `json:"straddle"`
	VWAP     float64   `json:"vwap"`
	CEDecay  float64   `json:"ce_decay"`
	PEDecay  float64   `json:"pe_decay"`
	Time     time.Time `json:"time"`
}

// Positions summarizes the tracked straddle per live chain.
func (h *MarketHandler) Positions(c echo.Context) error {
	rows := make([]positionRow, 0)
	for _, symbol := range h.cfg.Catalog.Indices {
		for _, expiry := range h.engine.Expiries(symbol) {
			snap, err := h.snaps.Get(models.SnapshotKey{Metric: models.MetricStraddle, Symbol: symbol, Expiry: expiry})
			if err != nil {
				continue
			}
			payload, ok := snap.Payload.(models.StraddlePayload)
			if !ok || len(payload.Points) == 0 {
				continue
			}
			last := payload.Points[len(payload.Points)-1]
			row := positionRow{
				Symbol:   symbol,
				Expiry:   expiry,
				Strike:   payload.Strike,
				Straddle: last.Straddle,
				VWAP:     last.VWAP,
				Time:     last.Time,
			}
			if dsnap, err := h.snaps.Get(models.SnapshotKey{Metric: models.MetricPremiumDecay, Symbol: symbol, Expiry: expiry}); err == nil {
				if dp, ok := dsnap.Payload.(models.PremiumDecayPayload); ok && len(dp.Points) > 0 {
					row.CEDecay = dp.Points[len(dp.Points)-1].CEDecay
					row.PEDecay = dp.Points[len(dp.Points)-1].PEDecay
				}
			}
			rows = append(rows, row)
		}
	}
	return xhttp.SuccessResponse(c, rows)
}

type historicalRequest struct {
	Date     string `query:"date" validate:"required"`
	Expiry   string `query:"expiry"`
	Metric   string `query:"metric" default:"changeInOI" validate:"omitempty,oneof=changeInOI pcr oiGainer oiLooser straddlePrice premiumDecay"`
	Interval string `query:"interval"`
}

// HistoricalOI serves a past trading day's snapshot from the historical store.
func (h *MarketHandler) HistoricalOI(c echo.Context) error {
	symbol := c.Param("symbol")
	req := &historicalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.hist == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("historical store not configured"))
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("date must be YYYY-MM-DD"))
	}
	var interval models.Interval
	if req.Interval != "" {
		iv, ok := models.ParseInterval(req.Interval)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("unknown interval %s", req.Interval))
		}
		interval = iv
	}
	expiry := req.Expiry
	if expiry == "" {
		expiry = h.nearestExpiry(symbol)
	}

	key := models.SnapshotKey{
		Metric:   models.MetricType(req.Metric),
		Symbol:   symbol,
		Expiry:   expiry,
		Interval: interval,
	}
	snap, err := h.hist.GetSnapshot(c.Request().Context(), date, key)
	if errors.Is(err, store.ErrSnapshotNotFound) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no historical snapshot for %s on %s", symbol, req.Date))
	}
	if err != nil {
		h.logger.Error("historical lookup failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("historical lookup failed").WithError(err))
	}
	return xhttp.SuccessResponse(c, snap)
}

// Intervals exposes the aggregation windows and engine tunables clients need.
func (h *MarketHandler) Intervals(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]any{
		"intervals":             h.cfg.EngineIntervals(),
		"movers_top_n":          h.cfg.Engine.MoversTopN,
		"pcr_bullish_threshold": h.cfg.Engine.PCRBullishThreshold,
		"timezone":              h.cfg.Timezone().String(),
	})
}

// nearestExpiry falls back to the closest live or resolvable expiry when the
// client omits one.
func (h *MarketHandler) nearestExpiry(symbol string) string {
	if live := h.engine.Expiries(symbol); len(live) > 0 {
		return live[0]
	}
	if resolved := h.resolver.ResolveExpiries(symbol, h.cfg.Catalog.MonthsAhead); len(resolved) > 0 {
		return resolved[0].Format("2006-01-02")
	}
	return ""
}
