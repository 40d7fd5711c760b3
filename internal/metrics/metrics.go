// Package metrics provides the Prometheus instrumentation shared by the
// store models, the Horizon client and the synchronizers.
package metrics

import (
	"errors"
	"strconv"

	"github.com/alitto/pond/v2"
	"github.com/dlmiddlecote/sqlstats"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stellar/go-stellar-sdk/support/log"
)

type MetricsService interface {
	GetRegistry() *prometheus.Registry
	RegisterPoolMetrics(channel string, pool pond.Pool)
	RegisterDBMetrics(name string, db *sqlx.DB)
	ObserveDBQueryDuration(queryType, table string, duration float64)
	IncDBQuery(queryType, table string)
	IncDBQueryError(queryType, table string)
	ObserveHorizonRequestDuration(endpoint string, duration float64)
	IncHorizonRequest(endpoint string, statusCode int)
	ObserveSyncDuration(syncer string, duration float64)
	IncSyncError(syncer string)
}

var _ MetricsService = (*metricsService)(nil)

type metricsService struct {
	registry *prometheus.Registry

	dbQueryDuration        *prometheus.SummaryVec
	dbQueriesTotal         *prometheus.CounterVec
	dbQueryErrorsTotal     *prometheus.CounterVec
	horizonRequestDuration *prometheus.SummaryVec
	horizonRequestsTotal   *prometheus.CounterVec
	syncDuration           *prometheus.HistogramVec
	syncErrorsTotal        *prometheus.CounterVec
}

// NewMetricsService creates a new metrics service with all metrics registered.
func NewMetricsService() MetricsService {
	m := &metricsService{
		registry: prometheus.NewRegistry(),
	}

	m.dbQueryDuration = prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "db_query_duration_seconds",
			Help:       "Duration of DB queries",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"query_type", "table"},
	)
	m.dbQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_queries_total",
			Help: "Total number of DB queries",
		},
		[]string{"query_type", "table"},
	)
	m.dbQueryErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_query_errors_total",
			Help: "Total number of DB query errors",
		},
		[]string{"query_type", "table"},
	)

	m.horizonRequestDuration = prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "horizon_request_duration_seconds",
			Help:       "Duration of Horizon API requests",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"endpoint"},
	)
	m.horizonRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "horizon_requests_total",
			Help: "Total number of Horizon API requests",
		},
		[]string{"endpoint", "status_code"},
	)

	m.syncDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_duration_seconds",
			Help:    "Duration of one sync invocation",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"syncer"},
	)
	m.syncErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_errors_total",
			Help: "Total number of failed sync invocations",
		},
		[]string{"syncer"},
	)

	m.registry.MustRegister(
		m.dbQueryDuration,
		m.dbQueriesTotal,
		m.dbQueryErrorsTotal,
		m.horizonRequestDuration,
		m.horizonRequestsTotal,
		m.syncDuration,
		m.syncErrorsTotal,
	)

	return m
}

// GetRegistry returns the prometheus registry
func (m *metricsService) GetRegistry() *prometheus.Registry {
	return m.registry
}

// register adds collectors to the registry. One service instance can be
// shared by several wallets, so a collector that is already registered is a
// logged no-op instead of the MustRegister panic.
func (m *metricsService) register(collectors ...prometheus.Collector) {
	for _, collector := range collectors {
		if err := m.registry.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				log.Warnf("metrics collector already registered: %v", err)
				continue
			}
			log.Errorf("registering metrics collector: %v", err)
		}
	}
}

// RegisterDBMetrics registers connection-pool statistics of the wallet database.
func (m *metricsService) RegisterDBMetrics(name string, db *sqlx.DB) {
	m.register(sqlstats.NewStatsCollector(name, db))
}

func (m *metricsService) RegisterPoolMetrics(channel string, pool pond.Pool) {
	m.register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name:        "pool_workers_running",
			Help:        "Number of running worker goroutines",
			ConstLabels: prometheus.Labels{"channel": channel},
		},
		func() float64 {
			return float64(pool.RunningWorkers())
		},
	))

	m.register(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name:        "pool_tasks_submitted_total",
			Help:        "Number of tasks submitted",
			ConstLabels: prometheus.Labels{"channel": channel},
		},
		func() float64 {
			return float64(pool.SubmittedTasks())
		},
	))

	m.register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name:        "pool_tasks_waiting",
			Help:        "Number of tasks currently waiting in the queue",
			ConstLabels: prometheus.Labels{"channel": channel},
		},
		func() float64 {
			return float64(pool.WaitingTasks())
		},
	))

	m.register(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name:        "pool_tasks_failed_total",
			Help:        "Number of tasks that completed with panic",
			ConstLabels: prometheus.Labels{"channel": channel},
		},
		func() float64 {
			return float64(pool.FailedTasks())
		},
	))
}

func (m *metricsService) ObserveDBQueryDuration(queryType, table string, duration float64) {
	m.dbQueryDuration.WithLabelValues(queryType, table).Observe(duration)
}

func (m *metricsService) IncDBQuery(queryType, table string) {
	m.dbQueriesTotal.WithLabelValues(queryType, table).Inc()
}

func (m *metricsService) IncDBQueryError(queryType, table string) {
	m.dbQueryErrorsTotal.WithLabelValues(queryType, table).Inc()
}

func (m *metricsService) ObserveHorizonRequestDuration(endpoint string, duration float64) {
	m.horizonRequestDuration.WithLabelValues(endpoint).Observe(duration)
}

func (m *metricsService) IncHorizonRequest(endpoint string, statusCode int) {
	m.horizonRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
}

func (m *metricsService) ObserveSyncDuration(syncer string, duration float64) {
	m.syncDuration.WithLabelValues(syncer).Observe(duration)
}

func (m *metricsService) IncSyncError(syncer string) {
	m.syncErrorsTotal.WithLabelValues(syncer).Inc()
}
