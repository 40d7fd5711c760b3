package metrics

import (
	"testing"

	"github.com/alitto/pond/v2"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatherNames(t *testing.T, ms MetricsService) []string {
	t.Helper()
	families, err := ms.GetRegistry().Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, family := range families {
		names = append(names, family.GetName())
	}
	return names
}

func TestNewMetricsServiceRegistersCoreMetrics(t *testing.T) {
	ms := NewMetricsService()
	require.NotNil(t, ms.GetRegistry())

	ms.IncSyncError("account")
	ms.IncDBQuery("SELECT", "operations")
	ms.IncHorizonRequest("/operations", 200)

	names := gatherNames(t, ms)
	assert.Contains(t, names, "sync_errors_total")
	assert.Contains(t, names, "db_queries_total")
	assert.Contains(t, names, "horizon_requests_total")
}

func TestRegisterPoolMetricsSharedService(t *testing.T) {
	ms := NewMetricsService()

	first := pond.NewPool(1)
	defer first.StopAndWait()
	second := pond.NewPool(1)
	defer second.StopAndWait()

	ms.RegisterPoolMetrics("w1", first)

	// The same wallet registering again, e.g. a kit reopened against a
	// shared service, must not panic.
	assert.NotPanics(t, func() {
		ms.RegisterPoolMetrics("w1", first)
	})

	// A second wallet gets its own labelled series alongside the first.
	ms.RegisterPoolMetrics("w2", second)

	families, err := ms.GetRegistry().Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() == "pool_workers_running" {
			assert.Len(t, family.GetMetric(), 2)
			return
		}
	}
	t.Fatal("pool_workers_running was not registered")
}

func TestRegisterDBMetricsSharedService(t *testing.T) {
	ms := NewMetricsService()

	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	ms.RegisterDBMetrics("w1", db)
	assert.NotPanics(t, func() {
		ms.RegisterDBMetrics("w1", db)
	})

	assert.Contains(t, gatherNames(t, ms), "go_sql_stats_connections_open")
}
