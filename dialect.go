package pgmigrate

import "strconv"

// Dialect covers the few places where supported databases disagree.
type Dialect interface {
	// Placeholder returns the bind parameter marker for the n-th (1-based) argument.
	Placeholder(n int) string

	// ColumnsQuery returns a query yielding (table, column, data type) rows
	// for every user table in the current schema. Data types are lower case.
	ColumnsQuery() string
}

var (
	// Postgres is the dialect for PostgreSQL, used by lib/pq and pgx.
	Postgres Dialect = postgres{}

	// SQLite is the dialect for SQLite.
	SQLite Dialect = sqlite{}
)

type postgres struct{}

func (postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (postgres) ColumnsQuery() string {
	return `
SELECT table_name, column_name, data_type
FROM information_schema.columns
WHERE table_schema = 'public'
ORDER BY table_name, ordinal_position;`[1:]
}

type sqlite struct{}

func (sqlite) Placeholder(int) string { return "?" }

func (sqlite) ColumnsQuery() string {
	return `
SELECT m.name, p.name, lower(p.type)
FROM sqlite_master AS m
JOIN pragma_table_info(m.name) AS p
WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%'
ORDER BY m.name, p.cid;`[1:]
}
