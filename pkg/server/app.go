package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"OptiFlow/internal/broadcast"
	drepo "OptiFlow/internal/domain/repository"
	internalrepo "OptiFlow/internal/repository"
	"OptiFlow/internal/store"
	"OptiFlow/internal/usecase"
	"OptiFlow/pkg/cache"
	pkgch "OptiFlow/pkg/clickhouse"
	"OptiFlow/pkg/config"
	xhttp "OptiFlow/pkg/http"
	applogger "OptiFlow/pkg/logger"
)

// App owns the whole service lifecycle: start the collector and HTTP server,
// block on a signal, then unwind everything in order.
type App struct {
	cfg         *config.Config
	logger      *applogger.Logger
	collector   *usecase.TickCollector
	hub         *broadcast.Hub
	httpHandler xhttp.Handler
	httpServer  *xhttp.Server

	relay    drepo.TickRelay
	archive  *internalrepo.SnapshotArchive
	histSink *store.HistorySink
	cacheSvc cache.Service
	chClient *pkgch.Client
}

// AppOption attaches optional infrastructure to the App.
type AppOption func(*App)

// WithRelay registers the tick relay for shutdown.
func WithRelay(r drepo.TickRelay) AppOption {
	return func(a *App) { a.relay = r }
}

// WithArchive registers the snapshot archive for shutdown.
func WithArchive(ar *internalrepo.SnapshotArchive) AppOption {
	return func(a *App) { a.archive = ar }
}

// WithHistorySink registers the historical snapshot writer for shutdown.
func WithHistorySink(s *store.HistorySink) AppOption {
	return func(a *App) { a.histSink = s }
}

// WithCache registers the cache service for shutdown.
func WithCache(c cache.Service) AppOption {
	return func(a *App) { a.cacheSvc = c }
}

// WithClickHouse registers the ClickHouse client for shutdown.
func WithClickHouse(c *pkgch.Client) AppOption {
	return func(a *App) { a.chClient = c }
}

// New creates an App.
func New(cfg *config.Config, l *applogger.Logger, collector *usecase.TickCollector, hub *broadcast.Hub, httpHandler xhttp.Handler, opts ...AppOption) *App {
	a := &App{
		cfg:         cfg,
		logger:      l,
		collector:   collector,
		hub:         hub,
		httpHandler: httpHandler,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts everything and blocks until an interrupt arrives.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(a.logger),
	)

	if err := a.collector.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("collector started",
		applogger.String("feed_mode", a.cfg.Feed.Mode),
		applogger.Strings("indices", a.cfg.Catalog.Indices))

	if err := a.httpServer.Start(); err != nil {
		return err
	}
	a.logger.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.logger.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

// shutdown unwinds in dependency order: stop ingest, stop serving, close
// fan-out, then close infrastructure.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.collector.Shutdown(ctx); err != nil {
		a.logger.Warn("collector stop error", applogger.Error(err))
	}

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.logger.Warn("http shutdown error", applogger.Error(err))
		}
	}

	if err := a.hub.Close(); err != nil {
		a.logger.Warn("hub close error", applogger.Error(err))
	}

	if a.relay != nil {
		if err := a.relay.Close(); err != nil {
			a.logger.Warn("relay close error", applogger.Error(err))
		}
	}
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			a.logger.Warn("archive close error", applogger.Error(err))
		}
	}
	if a.histSink != nil {
		if err := a.histSink.Close(); err != nil {
			a.logger.Warn("history sink close error", applogger.Error(err))
		}
	}
	if a.cacheSvc != nil {
		if err := a.cacheSvc.Close(); err != nil {
			a.logger.Warn("cache close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.logger.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.logger.Info("shutdown complete")
	return nil
}
