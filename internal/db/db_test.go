package db_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletkit/stellar-kit/internal/db"
	"github.com/walletkit/stellar-kit/internal/db/dbtest"
)

func TestOpenDBConnectionPool(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "wallet.db")
	pool, err := db.OpenDBConnectionPool(dbPath)
	require.NoError(t, err)
	defer pool.Close()

	ctx := context.Background()
	require.NoError(t, pool.Ping(ctx))

	assert.Equal(t, "sqlite3", pool.DriverName())
}

func TestMigrateUpAndDown(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "wallet.db")

	applied, err := db.Migrate(ctx, dbPath, migrate.Up, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	pool, err := db.OpenDBConnectionPool(dbPath)
	require.NoError(t, err)
	defer pool.Close()

	var count int
	err = pool.GetContext(ctx, &count, "SELECT COUNT(*) FROM gorp_migrations")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	reverted, err := db.Migrate(ctx, dbPath, migrate.Down, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, reverted)
}

func TestRunInTransactionRollsBackOnError(t *testing.T) {
	pool := dbtest.Open(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := db.RunInTransaction(ctx, pool, nil, func(dbTx db.Transaction) error {
		_, execErr := dbTx.ExecContext(ctx, "INSERT INTO accounts (account_id, subentry_count) VALUES (?, ?)", "GABC", 0)
		require.NoError(t, execErr)
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, pool.GetContext(ctx, &count, "SELECT COUNT(*) FROM accounts"))
	assert.Zero(t, count)
}

func TestRunInTransactionCommits(t *testing.T) {
	pool := dbtest.Open(t)
	ctx := context.Background()

	err := db.RunInTransaction(ctx, pool, nil, func(dbTx db.Transaction) error {
		_, execErr := dbTx.ExecContext(ctx, "INSERT INTO accounts (account_id, subentry_count) VALUES (?, ?)", "GABC", 3)
		return execErr
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, pool.GetContext(ctx, &count, "SELECT COUNT(*) FROM accounts"))
	assert.Equal(t, 1, count)
}
