package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain repository.Metrics using Prometheus.
type Recorder struct {
	ticksTotal      *prometheus.CounterVec
	staleTicks      *prometheus.CounterVec
	malformedTicks  prometheus.Counter
	errorsTotal     *prometheus.CounterVec
	broadcastsTotal *prometheus.CounterVec
	broadcastDrops  prometheus.Counter
	lastPrice       *prometheus.GaugeVec
	latency         *prometheus.HistogramVec
	feedConnected   prometheus.Gauge
	connections     prometheus.Gauge
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		ticksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optiflow_ticks_total",
				Help: "Total number of ticks folded into aggregates",
			},
			[]string{"symbol"},
		),
		staleTicks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optiflow_stale_ticks_total",
				Help: "Ticks dropped for arriving after their bucket closed",
			},
			[]string{"symbol"},
		),
		malformedTicks: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "optiflow_malformed_ticks_total",
				Help: "Raw feed messages rejected during normalization",
			},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optiflow_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		broadcastsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optiflow_broadcasts_total",
				Help: "Snapshot pushes delivered to realtime subscribers",
			},
			[]string{"event"},
		),
		broadcastDrops: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "optiflow_broadcast_drops_total",
				Help: "Pushes dropped because a subscriber queue was full",
			},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "optiflow_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "optiflow_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		feedConnected: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "optiflow_feed_connected",
				Help: "1 when the upstream market feed is connected",
			},
		),
		connections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "optiflow_ws_connections",
				Help: "Current number of realtime client connections",
			},
		),
	}
}

func (r *Recorder) RecordTick(symbol string) {
	r.ticksTotal.WithLabelValues(symbol).Inc()
}

func (r *Recorder) RecordStaleTick(symbol string) {
	r.staleTicks.WithLabelValues(symbol).Inc()
}

func (r *Recorder) RecordMalformedTick() {
	r.malformedTicks.Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordBroadcast(event string) {
	r.broadcastsTotal.WithLabelValues(event).Inc()
}

func (r *Recorder) RecordBroadcastDrop() {
	r.broadcastDrops.Inc()
}

func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) SetFeedConnected(connected bool) {
	if connected {
		r.feedConnected.Set(1)
		return
	}
	r.feedConnected.Set(0)
}

func (r *Recorder) SetConnections(n int) {
	r.connections.Set(float64(n))
}
