package pgmigrate

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	defaultLedgerTable = "pgSchemaRevision"

	// maxConcurrentReads bounds the number of statement files read at once.
	maxConcurrentReads = 8

	noTransactionFlag = `-- pgmigrate:no_transaction`
)

// A Migration runs database migrations stored as up.sql/down.sql pairs in
// one directory per migration, restricted to a specific directory tree.
//
// An empty Migration path is treated as ".".
type Migration struct {
	path   string
	ledger ledger
	logger zerolog.Logger
	locker Locker
	now    func() time.Time
}

// Result describes a finished or aborted migration run.
type Result struct {
	// Current is the revision found in the ledger when the run started.
	Current int64
	// Desired is the caller-supplied target revision.
	Desired int64
	// Direction is the resolved run direction.
	Direction Direction
	// Migrations lists the identifiers whose statements were executed, in
	// execution order. On a failed run it holds the executions that
	// succeeded before the failure.
	Migrations []int64
}

// New returns a new Migration.
func New(path string, options ...Option) *Migration {
	if path == "" {
		path = "."
	}
	mig := &Migration{
		path:   path,
		logger: zerolog.Nop(),
		now:    time.Now,
		ledger: ledger{table: defaultLedgerTable, dialect: Postgres},
	}

	for _, option := range options {
		option(mig)
	}

	return mig
}

// Path returns the migrations root directory.
func (m *Migration) Path() string { return m.path }

// Migrate moves the database to the desired revision.
//
// One connection is taken from db and held for the whole run. Statements of
// all candidate migrations are read before the first one is executed. The
// migrations root is listed before the optional Locker is asked for a lock. The
// ledger is only updated after every candidate executed successfully; there
// is no transaction spanning several migrations, so a failure leaves earlier
// migrations of the same run applied to the schema but not to the ledger.
func (m *Migration) Migrate(ctx context.Context, db *sql.DB, desired int64) (Result, error) {
	res := Result{Desired: desired, Migrations: []int64{}}

	conn, err := db.Conn(ctx)
	if err != nil {
		return res, &Error{Kind: KindConnection, Info: "failed to acquire database connection", Err: err}
	}
	defer logCloser(conn, m.logger)

	available, err := m.available()
	if err != nil {
		return res, err
	}
	m.logger.Debug().Str("path", m.path).Int("count", len(available)).Msg("found migrations")

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, conn, m.ledger.table)
		if err != nil {
			return res, &Error{Kind: KindLock, Info: "failed to lock ledger " + m.ledger.table, Err: err}
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Error().Err(err).Msg("failed to release ledger lock")
			}
		}()
	}

	return m.run(ctx, conn, available, res)
}

func (m *Migration) run(ctx context.Context, conn *sql.Conn, available []int64, res Result) (Result, error) {
	if err := m.ledger.ensureTable(ctx, conn); err != nil {
		return res, err
	}
	current, err := m.ledger.currentRevision(ctx, conn)
	if err != nil {
		return res, err
	}
	res.Current = current
	res.Direction = ResolveDirection(current, res.Desired)
	m.logger.Debug().
		Int64("current", current).
		Int64("desired", res.Desired).
		Str("direction", string(res.Direction)).
		Msg("resolved revision")

	candidates := SelectCandidates(available, current, res.Desired, res.Direction)
	if len(candidates) == 0 {
		m.logger.Debug().Msg("no migrations to run")
		return res, nil
	}
	m.logger.Debug().Ints64("candidates", candidates).Msg("filtered migrations")

	statements, err := m.load(ctx, candidates, res.Direction)
	if err != nil {
		return res, err
	}

	executed, err := m.execute(ctx, conn, res.Direction, candidates, statements)
	res.Migrations = executed
	if err != nil {
		return res, err
	}

	if err := m.record(ctx, conn, res.Direction, candidates); err != nil {
		return res, err
	}
	m.logger.Info().
		Str("direction", string(res.Direction)).
		Ints64("migrations", res.Migrations).
		Msg("migrations completed")

	return res, nil
}

// available lists the migration identifiers below the migrations root in
// ascending order.
func (m *Migration) available() ([]int64, error) {
	entries, err := os.ReadDir(m.path)
	if err != nil {
		return nil, &Error{Kind: KindDirectoryRead, Info: fmt.Sprintf("failed to get list of migrations from %q", m.path), Err: err}
	}

	ids := []int64{}
	seen := map[int64]string{}
	for _, entry := range entries {
		isDir := entry.IsDir()
		if entry.Type()&fs.ModeSymlink != 0 {
			if fi, err := os.Stat(filepath.Join(m.path, entry.Name())); err == nil {
				isDir = fi.IsDir()
			}
		}
		if !isDir {
			continue
		}

		id, err := parseIdentifier(entry.Name())
		if err != nil {
			return nil, &Error{Kind: KindInvalidMigrationName, Info: fmt.Sprintf("invalid migration directory %q", entry.Name()), Err: err}
		}
		if other, ok := seen[id]; ok {
			return nil, &Error{
				Kind:      KindInvalidMigrationName,
				Migration: id,
				Info:      fmt.Sprintf("invalid migration directory %q", entry.Name()),
				Err:       fmt.Errorf("identifier %d already used by %q", id, other),
			}
		}
		seen[id] = entry.Name()
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids, nil
}

// parseIdentifier parses a migration directory name. Only positive decimal
// integers without sign are accepted.
func parseIdentifier(name string) (int64, error) {
	if name == "" {
		return 0, errors.New("empty name")
	}
	for _, r := range name {
		if r < '0' || r > '9' {
			return 0, errors.New("name must only contain decimal digits")
		}
	}
	id, err := strconv.ParseInt(name, 10, 64)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, errors.New("identifier must be greater than zero")
	}
	return id, nil
}

// load reads the statement file matching dir for every candidate. The
// returned bodies are in candidate order.
func (m *Migration) load(ctx context.Context, candidates []int64, dir Direction) ([]string, error) {
	statements := make([]string, len(candidates))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentReads)
	for i, id := range candidates {
		g.Go(func() error {
			path := m.statementPath(id, dir)
			if err := ctx.Err(); err != nil {
				return &Error{Kind: KindStatementRead, Migration: id, Info: fmt.Sprintf("aborted reading %q", path), Err: err}
			}
			buf, err := os.ReadFile(path)
			if errors.Is(err, fs.ErrNotExist) {
				return &Error{Kind: KindMissingStatementFile, Migration: id, Info: fmt.Sprintf("missing statement file %q", path), Err: err}
			}
			if err != nil {
				return &Error{Kind: KindStatementRead, Migration: id, Info: fmt.Sprintf("failed to read file contents of %q", path), Err: err}
			}
			statements[i] = string(buf)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	m.logger.Debug().Int("files", len(statements)).Msg("read statement files")

	return statements, nil
}

func (m *Migration) statementPath(id int64, dir Direction) string {
	return filepath.Join(m.path, strconv.FormatInt(id, 10), string(dir)+".sql")
}

// execute runs the statement bodies one by one and stops at the first
// failure. It returns the identifiers which executed successfully.
func (m *Migration) execute(ctx context.Context, conn *sql.Conn, dir Direction, candidates []int64, statements []string) ([]int64, error) {
	executed := []int64{}
	for i, id := range candidates {
		body := statements[i]
		start := time.Now()
		var err error
		if txSupported([]byte(body)) {
			err = transaction(ctx, conn, m.logger, func(tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, body)
				return err
			})
		} else {
			_, err = conn.ExecContext(ctx, body)
		}
		if err != nil {
			return executed, &Error{
				Kind:      KindStatementExecution,
				Migration: id,
				Info:      "failed to execute SQL script " + m.statementPath(id, dir),
				Err:       err,
			}
		}
		m.logger.Debug().Int64("migration", id).Dur("took", time.Since(start)).Msg("executed migration")
		executed = append(executed, id)
	}
	return executed, nil
}

// record commits the ledger change of a run in a single transaction.
func (m *Migration) record(ctx context.Context, conn *sql.Conn, dir Direction, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	err := transaction(ctx, conn, m.logger, func(tx *sql.Tx) error {
		if dir == Up {
			return m.ledger.apply(ctx, tx, ids)
		}
		return m.ledger.unapply(ctx, tx, ids)
	})
	if err != nil {
		return &Error{Kind: KindLedgerUpdate, Info: "failed to update ledger after executing migrations", Err: err}
	}
	return nil
}

// transaction is a utility function to execute SQL inside a transaction
//
// see: https://stackoverflow.com/a/23502629
func transaction(ctx context.Context, conn *sql.Conn, logger zerolog.Logger, txFunc func(*sql.Tx) error) (err error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin db transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if err := tx.Rollback(); err != nil {
				logger.Error().Err(err).Msg("failed to roll back transaction")
			}
			panic(p) // re-throw panic after Rollback
		} else if err != nil {
			// err is non-nil; don't change it
			if err := tx.Rollback(); err != nil {
				logger.Error().Err(err).Msg("failed to roll back transaction")
			}
		} else {
			err = tx.Commit() // err is nil; if Commit returns error update err
		}
	}()

	err = txFunc(tx)

	return err
}

// txSupported checks whether input is prefixed with `-- pgmigrate:no_transaction`
//
// Returns true if input has no transaction suppressor flag in first line.
func txSupported(s []byte) bool {
	return !bytes.HasPrefix(bytes.TrimSpace(s), []byte(noTransactionFlag))
}

// logCloser is a convenience logger for deferred execution.
//
// This fuction takes any struct implementing the io.Closer interface and closes
// it upon execution. Errors get logged to the provided logger.
//
//   file, _ := os.Open("some/file")
//   defer logCloser(file, logger)
func logCloser(c io.Closer, logger zerolog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to close handle")
	}
}

// Option controls some aspects of migration behavior.
type Option func(*Migration)

// WithLedgerTable tells New to use the provided name as ledger table name
// for applied migrations.
func WithLedgerTable(name string) Option {
	return func(m *Migration) {
		m.ledger.table = name
	}
}

// WithDialect tells New which database dialect to speak.
func WithDialect(d Dialect) Option {
	return func(m *Migration) {
		m.ledger.dialect = d
	}
}

// WithLogger tells New to use the provided logger for internal logging.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Migration) {
		m.logger = logger
	}
}

// WithLocker tells New to serialize runs with the provided Locker.
func WithLocker(l Locker) Option {
	return func(m *Migration) {
		m.locker = l
	}
}

// WithClock tells New to use now instead of time.Now when creating migrations.
func WithClock(now func() time.Time) Option {
	return func(m *Migration) {
		m.now = now
	}
}
