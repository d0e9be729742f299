package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Option configures Recorder.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
	namespace  string
}

// WithRegisterer registers the collectors somewhere other than the default registry.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) { o.registerer = r }
}

// WithNamespace overrides the metric name prefix.
func WithNamespace(ns string) Option {
	return func(o *options) { o.namespace = ns }
}

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	jobsTotal      *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	scansDeferred  *prometheus.CounterVec
	queueDepth     prometheus.Gauge
	anomalies      *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	tradesClosed   *prometheus.CounterVec
	tradePnL       prometheus.Histogram
	fetchErrors    *prometheus.CounterVec
	notifyFailures *prometheus.CounterVec
	latency        *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New(opts ...Option) *Recorder {
	o := &options{registerer: prometheus.DefaultRegisterer, namespace: "spikewatch"}
	for _, opt := range opts {
		opt(o)
	}
	f := promauto.With(o.registerer)

	return &Recorder{
		jobsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: o.namespace,
				Name:      "scheduler_jobs_total",
				Help:      "Scheduler jobs run, by band, name and result",
			},
			[]string{"band", "job", "result"},
		),
		jobDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: o.namespace,
				Name:      "scheduler_job_duration_seconds",
				Help:      "Duration of scheduler jobs",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"band", "job"},
		),
		scansDeferred: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: o.namespace,
				Name:      "scans_deferred_total",
				Help:      "Anomaly scans refused by the scan circuit breaker",
			},
			[]string{"reason"},
		),
		queueDepth: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: o.namespace,
				Name:      "scheduler_queue_depth",
				Help:      "Jobs waiting in the priority queue",
			},
		),
		anomalies: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: o.namespace,
				Name:      "anomalies_detected_total",
				Help:      "Volume anomalies accepted into the watchlist",
			},
			[]string{"direction"},
		),
		transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: o.namespace,
				Name:      "watchlist_transitions_total",
				Help:      "Watchlist state transitions",
			},
			[]string{"kind"},
		),
		tradesClosed: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: o.namespace,
				Name:      "trades_closed_total",
				Help:      "Simulated trades closed, by exit reason",
			},
			[]string{"reason"},
		),
		tradePnL: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: o.namespace,
				Name:      "trade_pnl_percent",
				Help:      "Realized profit or loss of closed trades in percent",
				Buckets:   []float64{-10, -5, -3, -2, -1, 0, 1, 2, 3, 4, 5, 10},
			},
		),
		fetchErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: o.namespace,
				Name:      "market_data_errors_total",
				Help:      "Market data fetch errors by kind",
			},
			[]string{"kind"},
		),
		notifyFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: o.namespace,
				Name:      "notification_failures_total",
				Help:      "Failed notification deliveries by sink",
			},
			[]string{"sink"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: o.namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordJob records one finished scheduler job.
func (r *Recorder) RecordJob(band int, name string, seconds float64, err error) {
	b := strconv.Itoa(band)
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.jobsTotal.WithLabelValues(b, name, result).Inc()
	r.jobDuration.WithLabelValues(b, name).Observe(seconds)
}

func (r *Recorder) RecordScanDeferred(reason string) {
	r.scansDeferred.WithLabelValues(reason).Inc()
}

func (r *Recorder) RecordQueueDepth(depth int) {
	r.queueDepth.Set(float64(depth))
}

func (r *Recorder) RecordAnomaly(direction string) {
	r.anomalies.WithLabelValues(direction).Inc()
}

func (r *Recorder) RecordTransition(kind string) {
	r.transitions.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordTradeClosed(reason string, pnlPercent float64) {
	r.tradesClosed.WithLabelValues(reason).Inc()
	r.tradePnL.Observe(pnlPercent)
}

func (r *Recorder) RecordFetchError(kind string) {
	r.fetchErrors.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordNotifyFailure(sink string) {
	r.notifyFailures.WithLabelValues(sink).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
