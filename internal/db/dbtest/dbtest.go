package dbtest

import (
	"net/http"
	"path/filepath"
	"testing"

	migrate "github.com/rubenv/sql-migrate"

	"github.com/walletkit/stellar-kit/internal/db"
	"github.com/walletkit/stellar-kit/internal/db/migrations"
)

// Open creates a migrated throwaway wallet database for a test and returns a
// connection pool to it. The database file lives in the test's temp dir and
// is cleaned up with the test.
func Open(t *testing.T) db.ConnectionPool {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "stellar-kit-test.db")
	dbConnectionPool, err := db.OpenDBConnectionPool(dbPath)
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() {
		if closeErr := dbConnectionPool.Close(); closeErr != nil {
			t.Logf("closing test database: %v", closeErr)
		}
	})

	sqlDB, err := dbConnectionPool.SqlDB(t.Context())
	if err != nil {
		t.Fatalf("getting sql.DB: %v", err)
	}

	m := migrate.HttpFileSystemMigrationSource{FileSystem: http.FS(migrations.FS)}
	if _, err = migrate.Exec(sqlDB, "sqlite3", m, migrate.Up); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}

	return dbConnectionPool
}
