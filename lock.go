package pgmigrate

import (
	"context"
	"database/sql"
	"errors"
	"hash/fnv"
	"sync"
)

// Locker serializes migration runs against the same ledger.
//
// Lock is called on the run's dedicated connection before the ledger is read.
// The returned unlock func is called once the run finished, on any path.
type Locker interface {
	Lock(ctx context.Context, conn *sql.Conn, ledgerTable string) (unlock func(context.Context) error, err error)
}

// PostgresAdvisoryLocker locks the ledger with a session level PostgreSQL
// advisory lock. Concurrent runs on the same ledger table block until the
// holder is done.
type PostgresAdvisoryLocker struct{}

func (PostgresAdvisoryLocker) Lock(ctx context.Context, conn *sql.Conn, ledgerTable string) (func(context.Context) error, error) {
	key := advisoryLockKey(ledgerTable)
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, key); err != nil {
		return nil, err
	}

	unlock := func(ctx context.Context) error {
		var released bool
		if err := conn.QueryRowContext(ctx, `SELECT pg_advisory_unlock($1)`, key).Scan(&released); err != nil {
			return err
		}
		if !released {
			return errors.New("advisory lock was not held")
		}
		return nil
	}
	return unlock, nil
}

// MutexLocker serializes runs within one process. It is meant for stores
// without a server side lock primitive, such as SQLite. The zero value is
// ready to use.
type MutexLocker struct {
	init sync.Once
	sem  chan struct{}
}

func (l *MutexLocker) Lock(ctx context.Context, _ *sql.Conn, _ string) (func(context.Context) error, error) {
	l.init.Do(func() { l.sem = make(chan struct{}, 1) })
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	unlock := func(context.Context) error {
		once.Do(func() { <-l.sem })
		return nil
	}
	return unlock, nil
}

// advisoryLockKey produces a stable int64 key for the ledger table.
func advisoryLockKey(ledgerTable string) int64 {
	h := fnv.New64a()
	h.Write([]byte("pgmigrate:" + ledgerTable))
	return int64(h.Sum64() & 0x7FFFFFFFFFFFFFFF)
}
