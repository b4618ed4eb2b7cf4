package pgmigrate

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// Querier is the subset of database/sql shared by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ledger keeps track of applied migration identifiers in a single-column
// table of the target database.
type ledger struct {
	table   string
	dialect Dialect
}

func (l ledger) quotedTable() string { return pq.QuoteIdentifier(l.table) }

// ensureTable creates the ledger table unless it exists.
func (l ledger) ensureTable(ctx context.Context, q Querier) error {
	cmd := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (name bigint PRIMARY KEY);`, l.quotedTable())
	if _, err := q.ExecContext(ctx, cmd); err != nil {
		return &Error{Kind: KindLedgerQuery, Info: "failed to create ledger table " + l.quotedTable(), Err: err}
	}
	return nil
}

// currentRevisions returns all applied identifiers, largest first.
func (l ledger) currentRevisions(ctx context.Context, q Querier) (revisions []int64, err error) {
	cmd := fmt.Sprintf(`SELECT name FROM %s ORDER BY name DESC;`, l.quotedTable())
	rows, err := q.QueryContext(ctx, cmd)
	if err != nil {
		return nil, &Error{Kind: KindLedgerQuery, Info: "failed to query applied revisions", Err: err}
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = &Error{Kind: KindLedgerQuery, Info: "failed to close applied revisions", Err: cerr}
		}
	}()

	revisions = []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, &Error{Kind: KindLedgerQuery, Info: "failed to row scan entry in query for applied revisions", Err: err}
		}
		revisions = append(revisions, id)
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Kind: KindLedgerQuery, Info: "failed to query applied revisions", Err: err}
	}

	return revisions, nil
}

// currentRevision returns the largest applied identifier, or 0 if none is applied.
func (l ledger) currentRevision(ctx context.Context, q Querier) (int64, error) {
	revisions, err := l.currentRevisions(ctx, q)
	if err != nil {
		return 0, err
	}
	if len(revisions) == 0 {
		return 0, nil
	}
	return revisions[0], nil
}

// apply records every id as applied.
func (l ledger) apply(ctx context.Context, q Querier, ids []int64) error {
	cmd := fmt.Sprintf(`INSERT INTO %s (name) VALUES (%s);`, l.quotedTable(), l.dialect.Placeholder(1))
	for _, id := range ids {
		if _, err := q.ExecContext(ctx, cmd, id); err != nil {
			return &Error{Kind: KindLedgerQuery, Migration: id, Info: fmt.Sprintf("failed to record revision %d", id), Err: err}
		}
	}
	return nil
}

// unapply removes every id from the ledger.
func (l ledger) unapply(ctx context.Context, q Querier, ids []int64) error {
	cmd := fmt.Sprintf(`DELETE FROM %s WHERE name = %s;`, l.quotedTable(), l.dialect.Placeholder(1))
	for _, id := range ids {
		if _, err := q.ExecContext(ctx, cmd, id); err != nil {
			return &Error{Kind: KindLedgerQuery, Migration: id, Info: fmt.Sprintf("failed to remove revision %d", id), Err: err}
		}
	}
	return nil
}
