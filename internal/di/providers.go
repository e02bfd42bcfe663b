package di

import (
	"context"
	"fmt"
	"time"

	"OptiFlow/internal/broadcast"
	"OptiFlow/internal/catalog"
	"OptiFlow/internal/domain/models"
	drepo "OptiFlow/internal/domain/repository"
	"OptiFlow/internal/engine"
	"OptiFlow/internal/feed"
	"OptiFlow/internal/handler"
	"OptiFlow/internal/handler/api"
	"OptiFlow/internal/handler/ws"
	mid "OptiFlow/internal/middleware"
	internalrepo "OptiFlow/internal/repository"
	"OptiFlow/internal/store"
	"OptiFlow/internal/usecase"
	"OptiFlow/pkg/cache"
	pkgch "OptiFlow/pkg/clickhouse"
	"OptiFlow/pkg/config"
	xhttp "OptiFlow/pkg/http"
	pkgkafka "OptiFlow/pkg/kafka"
	applogger "OptiFlow/pkg/logger"
	"OptiFlow/pkg/metrics"
	"OptiFlow/pkg/server"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideMetrics creates the Prometheus metrics recorder.
func ProvideMetrics() drepo.Metrics {
	return metrics.New()
}

// ProvideResolver loads the instrument catalog. A load failure here is fatal:
// the service cannot resolve anything without the master.
func ProvideResolver(cfg *config.Config) (*catalog.Resolver, error) {
	r := catalog.NewResolver(cfg.Catalog.Path)
	if err := r.Load(); err != nil {
		return nil, err
	}
	return r, nil
}

// ProvideCache picks Redis when enabled, in-process memory otherwise.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(0), nil
	}
	return cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
}

// ProvideSnapshotStore creates the in-memory latest-snapshot store.
func ProvideSnapshotStore() *store.SnapshotStore {
	return store.NewSnapshotStore()
}

// ProvideHistoricalStore creates the date-keyed snapshot store.
func ProvideHistoricalStore(c cache.Service, cfg *config.Config) *store.HistoricalStore {
	return store.NewHistoricalStore(c, cfg.History.TTL)
}

// ProvideHistorySink starts the background writer persisting snapshots per
// trading day.
func ProvideHistorySink(hist *store.HistoricalStore, cfg *config.Config) *store.HistorySink {
	return store.NewHistorySink(hist, cfg.Timezone())
}

// ProvideHub creates the realtime broadcast hub.
func ProvideHub(l *applogger.Logger, m drepo.Metrics) *broadcast.Hub {
	return broadcast.NewHub(l, m)
}

// ProvideClickHouseClient connects to ClickHouse and initializes the schema.
// Returns nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{"CREATE DATABASE IF NOT EXISTS " + cfg.ClickHouse.Database}
	stmts = append(stmts, internalrepo.TickTableSchema(cfg.ClickHouse.Database+".ticks")...)
	stmts = append(stmts, internalrepo.SnapshotTableSchema(cfg.ClickHouse.Database+".snapshots")...)
	if err := client.InitSchema(ctx, stmts); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideTickRelay builds the configured relay backend. Returns nil for
// relay.backend "none".
func ProvideTickRelay(cfg *config.Config, chClient *pkgch.Client) (drepo.TickRelay, error) {
	switch cfg.Relay.Backend {
	case "kafka":
		producer, err := pkgkafka.NewProducer(
			pkgkafka.WithBrokers(cfg.Kafka.Brokers),
			pkgkafka.WithCompression(cfg.Kafka.Compression),
			pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
			pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
			pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
			pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
			pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
			pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
			pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
			pkgkafka.WithHashByKey(true),
		)
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		return internalrepo.NewKafkaTickRelay(producer, cfg.Kafka.Topic), nil
	case "clickhouse":
		if chClient == nil {
			return nil, fmt.Errorf("relay.backend clickhouse requires clickhouse.enabled")
		}
		return internalrepo.NewClickHouseTickRelay(chClient.DB(), cfg.ClickHouse.Database+".ticks"), nil
	default:
		return nil, nil
	}
}

// ProvideSnapshotArchive creates the ClickHouse archive writer, or nil when
// ClickHouse is disabled.
func ProvideSnapshotArchive(cfg *config.Config, chClient *pkgch.Client, l *applogger.Logger) *internalrepo.SnapshotArchive {
	if chClient == nil {
		return nil
	}
	return internalrepo.NewSnapshotArchive(chClient.DB(), cfg.ClickHouse.Database+".snapshots", l)
}

// ProvideEngine creates the derived metrics engine with all its sinks.
func ProvideEngine(
	cfg *config.Config,
	resolver *catalog.Resolver,
	m drepo.Metrics,
	l *applogger.Logger,
	snaps *store.SnapshotStore,
	hub *broadcast.Hub,
	histSink *store.HistorySink,
	archive *internalrepo.SnapshotArchive,
) *engine.Engine {
	intervals := make([]models.Interval, 0, 3)
	for _, raw := range cfg.EngineIntervals() {
		if iv, ok := models.ParseInterval(raw); ok {
			intervals = append(intervals, iv)
		}
	}

	sinks := []drepo.SnapshotSink{snaps, hub, histSink}
	if archive != nil {
		sinks = append(sinks, archive)
	}

	return engine.New(engine.Config{
		Intervals:           intervals,
		MoversTopN:          cfg.Engine.MoversTopN,
		PCRBullishThreshold: cfg.Engine.PCRBullishThreshold,
		Location:            cfg.Timezone(),
	}, resolver, m, l, sinks...)
}

// ProvideMarketStream selects the upstream feed implementation.
func ProvideMarketStream(cfg *config.Config, resolver *catalog.Resolver, l *applogger.Logger, m drepo.Metrics) drepo.MarketStream {
	tokens := resolver.ResolveInstrumentKeys(cfg.Catalog.Indices)
	if cfg.Feed.Mode == "broker" {
		return feed.NewBrokerClient(cfg.Feed.WebSocketURL, cfg.Feed.AccessToken, tokens, cfg.Feed.PingInterval, l, m)
	}
	return feed.NewSimulator(resolver, tokens, cfg.Feed.SimTickEvery)
}

// ProvideCollector wires the stream through the pipeline into the engine.
func ProvideCollector(
	cfg *config.Config,
	stream drepo.MarketStream,
	eng *engine.Engine,
	resolver *catalog.Resolver,
	m drepo.Metrics,
	l *applogger.Logger,
	relay drepo.TickRelay,
	hub *broadcast.Hub,
) *usecase.TickCollector {
	pipe := mid.NewTickPipeline(eng, m,
		mid.WithMaxTicksPerSec(cfg.Feed.MaxTicksPerSec),
		mid.WithBufferSize(cfg.Feed.BufferSize),
	)
	opts := []usecase.CollectorOption{
		usecase.WithHub(hub),
		usecase.WithBackoff(cfg.Feed.ReconnectMin, cfg.Feed.ReconnectMax),
	}
	if relay != nil {
		opts = append(opts, usecase.WithRelay(relay))
	}
	return usecase.NewTickCollector(stream, pipe, resolver, m, l, opts...)
}

// ProvideHTTPHandler bundles the REST and websocket routes.
func ProvideHTTPHandler(
	l *applogger.Logger,
	cfg *config.Config,
	resolver *catalog.Resolver,
	eng *engine.Engine,
	snaps *store.SnapshotStore,
	hist *store.HistoricalStore,
	collector *usecase.TickCollector,
	hub *broadcast.Hub,
) xhttp.Handler {
	return handler.NewRoutes(
		api.NewMarketHandler(l, cfg, resolver, eng, snaps, hist, collector, hub),
		ws.NewHandler(hub, l),
	)
}

// ProvideApp assembles the application lifecycle.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	collector *usecase.TickCollector,
	hub *broadcast.Hub,
	httpHandler xhttp.Handler,
	relay drepo.TickRelay,
	archive *internalrepo.SnapshotArchive,
	histSink *store.HistorySink,
	cacheSvc cache.Service,
	chClient *pkgch.Client,
) *server.App {
	return server.New(cfg, l, collector, hub, httpHandler,
		server.WithRelay(relay),
		server.WithArchive(archive),
		server.WithHistorySink(histSink),
		server.WithCache(cacheSvc),
		server.WithClickHouse(chClient),
	)
}
