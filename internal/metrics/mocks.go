package metrics

import (
	"github.com/alitto/pond/v2"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
)

type MockMetricsService struct {
	mock.Mock
}

var _ MetricsService = (*MockMetricsService)(nil)

func NewMockMetricsService() *MockMetricsService {
	return &MockMetricsService{}
}

func (m *MockMetricsService) GetRegistry() *prometheus.Registry {
	args := m.Called()
	return args.Get(0).(*prometheus.Registry)
}

func (m *MockMetricsService) RegisterPoolMetrics(channel string, pool pond.Pool) {
	m.Called(channel, pool)
}

func (m *MockMetricsService) RegisterDBMetrics(name string, db *sqlx.DB) {
	m.Called(name, db)
}

func (m *MockMetricsService) ObserveDBQueryDuration(queryType, table string, duration float64) {
	m.Called(queryType, table, duration)
}

func (m *MockMetricsService) IncDBQuery(queryType, table string) {
	m.Called(queryType, table)
}

func (m *MockMetricsService) IncDBQueryError(queryType, table string) {
	m.Called(queryType, table)
}

func (m *MockMetricsService) ObserveHorizonRequestDuration(endpoint string, duration float64) {
	m.Called(endpoint, duration)
}

func (m *MockMetricsService) IncHorizonRequest(endpoint string, statusCode int) {
	m.Called(endpoint, statusCode)
}

func (m *MockMetricsService) ObserveSyncDuration(syncer string, duration float64) {
	m.Called(syncer, duration)
}

func (m *MockMetricsService) IncSyncError(syncer string) {
	m.Called(syncer)
}
