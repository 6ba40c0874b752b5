// Package testdb opens migrated databases for store tests.
//
// SQLite databases live in a per-test temporary directory and need no setup.
// PostgreSQL tests run only when GENQUEUE_TEST_DATABASE_URL is set; they
// share one schema, so each test starts by truncating the jobs table and
// must not call t.Parallel.
//
//	func TestJobStore(t *testing.T) {
//	    db := testdb.OpenSQLite(t)
//	    s := sqlstore.NewJobStore(db, sqlstore.SQLite)
//	    ...
//	}
package testdb
