// Pgmigrate is a cli tool for forward and backward schema migrations.
//
// Complete documentation is available at https://github.com/denisbrodbeck/pgmigrate/.
//
// Usage:
//
// 	pgmigrate [arguments] <command>
//
// The commands are
//
// 	migrate [date]  migrate to the given revision, or to now if not given
// 	create          create a migration folder with up.sql and down.sql files
// 	write           write the database schema out to schema.yml
// 	version         print pgmigrate version
//
// The arguments are
//
// 	-database     connection string (default empty, see -host and friends)
// 	-driver       database driver: postgres, pgx or sqlite (default postgres)
// 	-folder       path of the migrations folder (default migrations)
// 	-table        name of the ledger table (default pgSchemaRevision)
// 	-config       config file with one "flag value" pair per line
// 	-debug        show debug info
// 	-lock         serialize runs with a PostgreSQL advisory lock
// 	-timeout      connection timeout in seconds (default 10s)
// 	-host         database hostname (default localhost)
// 	-port         database port (default 5432)
// 	-name         database name (default postgres)
// 	-user         database user (default postgres)
// 	-pass         database password (default empty)
// 	-sslmode      SSL mode (default disable)
// 	-sslcert      PEM encoded cert file location
// 	-sslkey       PEM encoded key file location
// 	-sslrootcert  PEM encoded root certificate file location
//
// Every argument can be set with an environment variable prefixed with
// PGMIGRATE_, e.g. PGMIGRATE_DATABASE.
package main

import (
	"os"
)

var usage = `
pgmigrate runs forward and backward schema migrations.

Complete documentation is available at https://github.com/denisbrodbeck/pgmigrate/.

Usage:

	pgmigrate [arguments] <command>

The commands are:

	migrate [date]  migrate to the given revision, or to now if not given
	create          create a migration folder with up.sql and down.sql files
	write           write the database schema out to schema.yml
	version         print pgmigrate version

The arguments are:

	-database     connection string (default empty, see -host and friends)
	-driver       database driver: postgres, pgx or sqlite (default postgres)
	-folder       path of the migrations folder (default migrations)
	-table        name of the ledger table (default pgSchemaRevision)
	-config       config file with one "flag value" pair per line
	-debug        show debug info
	-lock         serialize runs with a PostgreSQL advisory lock
	-timeout      connection timeout in seconds (default 10s)
	-host         database hostname (default localhost)
	-port         database port (default 5432)
	-name         database name (default postgres)
	-user         database user (default postgres)
	-pass         database password (default empty)
	-sslmode      SSL mode (default disable)
	-sslcert      PEM encoded cert file location
	-sslkey       PEM encoded key file location
	-sslrootcert  PEM encoded root certificate file location

Every argument can be set with an environment variable prefixed with
PGMIGRATE_, e.g. PGMIGRATE_DATABASE.
`[1:]

// set by ldflags when built
var (
	gitTag = "<not set>"
)

func main() {
	// main() is untestable --> do any work outside of main()
	os.Exit(ParseAndRun(os.Stdout, os.Stderr, os.Stdin, os.Args[1:]))
}
