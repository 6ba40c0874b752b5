// Package sqlstore implements store.JobStore on PostgreSQL (via pgx) and
// SQLite (via modernc.org/sqlite), with embedded goose migrations for each.
package sqlstore
