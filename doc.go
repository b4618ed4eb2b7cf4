// Package pgmigrate provides forward and backward SQL schema migrations.
//
//   https://github.com/denisbrodbeck/pgmigrate
//
// Layout
//
// Every migration lives in its own directory below the migrations root. The
// directory name is the migration identifier, a positive integer which is
// conventionally the creation time in milliseconds since the Unix epoch:
//
//   migrations/
//     1441583662000/
//       up.sql
//       down.sql
//
// Revisions
//
// Applied identifiers are kept in a ledger table inside the target database.
// The current revision is the largest identifier in that table, or zero.
// Migrating to a revision above the current one runs the pending up.sql files
// in ascending order. Migrating to a revision at or below the current one runs
// down.sql files in descending order, including the target revision itself.
//
// Transactions
//
// Each statement file runs in a transaction of its own. Files which manage
// transactions themselves (BEGIN/COMMIT) or use statements not allowed inside
// one (VACUUM, CREATE INDEX CONCURRENTLY) must start with the line
//
//   -- pgmigrate:no_transaction
//
// No transaction spans several files of a run.
//
// No assumption is made on the provided driver, the only dependency is `sql.DB`.
// PostgreSQL and SQLite are supported through Dialect.
package pgmigrate
