package testdb

import (
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/phrazzld/genqueue/internal/ciutil"
	"github.com/phrazzld/genqueue/internal/platform/sqlstore"
	"github.com/stretchr/testify/require"
)

// TestTimeout defines a default timeout for test database operations.
const TestTimeout = 10 * time.Second

// PostgresURLEnv names the variable holding the integration database URL.
const PostgresURLEnv = "GENQUEUE_TEST_DATABASE_URL"

// LegacyPostgresURLEnv is read when PostgresURLEnv is unset.
const LegacyPostgresURLEnv = "TEST_DATABASE_URL"

// GetTestDatabaseURL returns the PostgreSQL URL for integration tests, or ""
// when none is configured.
func GetTestDatabaseURL() string {
	return ciutil.GetEnvWithFallbacks([]string{PostgresURLEnv, LegacyPostgresURLEnv}, "", slog.Default())
}

// ShouldSkipDatabaseTest reports whether PostgreSQL integration tests
// should be skipped.
func ShouldSkipDatabaseTest() bool {
	return GetTestDatabaseURL() == ""
}

// OpenSQLite returns a migrated SQLite database in t's temp dir. The
// connection is closed when the test ends.
func OpenSQLite(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobs.db")
	return open(t, sqlstore.SQLite, "file:"+path)
}

// OpenPostgres returns a migrated PostgreSQL database with an empty jobs
// table, skipping the test when no integration database is configured.
func OpenPostgres(t *testing.T) *sql.DB {
	t.Helper()
	if ShouldSkipDatabaseTest() {
		if ciutil.IsCI() {
			t.Logf("Warning: running in CI without %s; PostgreSQL coverage is missing", PostgresURLEnv)
		}
		t.Skip(PostgresURLEnv + " not set - skipping PostgreSQL integration test")
	}

	db := open(t, sqlstore.Postgres, GetTestDatabaseURL())

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()
	_, err := db.ExecContext(ctx, "TRUNCATE TABLE jobs")
	require.NoError(t, err, "failed to truncate jobs table")

	return db
}

func open(t *testing.T, dialect sqlstore.Dialect, url string) *sql.DB {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()

	db, err := sqlstore.Open(ctx, dialect, url)
	require.NoError(t, err, "failed to open %s test database", dialect.Name)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: failed to close test database: %v", err)
		}
	})

	require.NoError(t, sqlstore.Migrate(ctx, db, dialect, "up"), "failed to migrate test database")
	return db
}
