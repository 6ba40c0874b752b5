package sqlstore

import (
	"fmt"
	"strings"
	"time"
)

// Dialect captures the differences between the SQL backends the job store
// runs on. Queries are written once with $n placeholders and rebound.
type Dialect struct {
	// Name is the dialect name understood by goose.
	Name string
	// Driver is the database/sql driver name.
	Driver string

	positional bool
	// claimLock is appended to the claim subquery.
	claimLock string
	// runningTimeSum sums completed_at - started_at over a row set.
	runningTimeSum  string
	runningTimeUnit time.Duration
	encodeTime      func(time.Time) any
}

// Postgres stores timestamps as TIMESTAMPTZ and claims with SKIP LOCKED.
var Postgres = Dialect{
	Name:            "postgres",
	Driver:          "pgx",
	positional:      true,
	claimLock:       "FOR UPDATE SKIP LOCKED",
	runningTimeSum:  "COALESCE(SUM(EXTRACT(EPOCH FROM (completed_at - started_at)) * 1000000), 0)::BIGINT",
	runningTimeUnit: time.Microsecond,
	encodeTime:      func(t time.Time) any { return t.UTC() },
}

// SQLite stores timestamps as unix nanoseconds. The database serialises
// writers, so the claim takes no row lock.
var SQLite = Dialect{
	Name:            "sqlite3",
	Driver:          "sqlite",
	runningTimeSum:  "COALESCE(SUM(completed_at - started_at), 0)",
	runningTimeUnit: time.Nanosecond,
	encodeTime:      func(t time.Time) any { return t.UTC().UnixNano() },
}

// DialectFor maps a configured driver name to its Dialect.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return Dialect{}, fmt.Errorf("unsupported database driver %q", driver)
}

// rebind rewrites $n placeholders to ? for dialects without positional
// parameters. Every query uses each placeholder once, in ascending order.
func (d Dialect) rebind(query string) string {
	if d.positional {
		return query
	}

	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		j := i + 1
		for j < len(query) && query[j] >= '0' && query[j] <= '9' {
			j++
		}
		if query[i] == '$' && j > i+1 {
			b.WriteByte('?')
			i = j - 1
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (d Dialect) timeArg(t time.Time) any {
	return d.encodeTime(t)
}
