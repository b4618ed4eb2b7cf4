package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/denisbrodbeck/pgmigrate"
	"github.com/peterbourgon/ff"
	"github.com/rs/zerolog"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	exitOK = iota
	exitUsage
	exitConnection
	exitFailure
)

// ParseAndRun parses the command line, and then runs the passed commands.
func ParseAndRun(stdout, stderr io.Writer, stdin io.Reader, args []string) int {
	fs := flag.NewFlagSet("pgmigrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fs.Output().Write([]byte(usage))
	}
	var (
		flagDatabase    = fs.String("database", "", "connection string")
		flagDriver      = fs.String("driver", "postgres", "database driver: postgres, pgx or sqlite")
		flagFolder      = fs.String("folder", "migrations", "path of the migrations folder")
		flagTable       = fs.String("table", "pgSchemaRevision", "name of the ledger table")
		flagDebug       = fs.Bool("debug", false, "show debug info")
		flagLock        = fs.Bool("lock", false, "serialize runs with a PostgreSQL advisory lock")
		flagTimeout     = fs.Duration("timeout", time.Second*10, "connection timeout in seconds (default 10s)")
		flagHost        = fs.String("host", "localhost", "database host")
		flagPort        = fs.String("port", "5432", "database port")
		flagName        = fs.String("name", "postgres", "database name")
		flagUser        = fs.String("user", "postgres", "database user")
		flagPass        = fs.String("pass", "", "database password")
		flagSSLMode     = fs.String("sslmode", "disable", "database SSL mode (see options)")
		flagSSLCert     = fs.String("sslcert", "", "PEM encoded cert file location")
		flagSSLKey      = fs.String("sslkey", "", "PEM encoded key file location")
		flagSSLRootCert = fs.String("sslrootcert", "", "PEM encoded root certificate file location")
		_               = fs.String("config", "", "config file")
	)
	err := ff.Parse(fs, args,
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithEnvVarPrefix("PGMIGRATE"),
	)
	if err != nil {
		if err != flag.ErrHelp {
			fs.Output().Write([]byte(fmt.Sprintf("\nUsage error: %s\n", err)))
		}
		return exitUsage
	}

	level := zerolog.InfoLevel
	if *flagDebug {
		level = zerolog.DebugLevel
	}
	out := newLogger(stdout, level)
	errlog := newLogger(stderr, level)

	driver, dialect, err := lookupDriver(*flagDriver)
	if err != nil {
		errlog.Error().Err(err).Msg("invalid driver")
		return exitUsage
	}

	// wire up migration with user-provided ledger table und connect library logger to stderr
	options := []pgmigrate.Option{
		pgmigrate.WithLedgerTable(*flagTable),
		pgmigrate.WithDialect(dialect),
		pgmigrate.WithLogger(errlog.With().Str("component", "migrate").Logger()),
	}
	if *flagLock {
		if dialect != pgmigrate.Postgres {
			errlog.Error().Str("driver", driver).Msg("-lock requires a PostgreSQL driver")
			return exitUsage
		}
		options = append(options, pgmigrate.WithLocker(pgmigrate.PostgresAdvisoryLocker{}))
	}
	migration := pgmigrate.New(*flagFolder, options...)

	dsn := *flagDatabase
	if dsn == "" && dialect == pgmigrate.Postgres {
		dsn = createDSN(*flagHost, *flagPort, *flagName, *flagUser, *flagPass, *flagSSLMode, *flagSSLCert, *flagSSLKey, *flagSSLRootCert, *flagTimeout)
	}

	// give a generous timeout of 5 minutes
	ctx, cancelFunc := context.WithTimeout(context.Background(), time.Minute*5)
	defer cancelFunc()

	commands := fs.Args()
	if len(commands) == 0 {
		fs.Usage()
		return exitUsage
	}
	switch strings.ToLower(commands[0]) {
	case "create":
		id, err := migration.Create()
		if err != nil {
			errlog.Error().Err(err).Msg("failed to create migration")
			return exitFailure
		}
		out.Info().Int64("migration", id).Str("folder", migration.Path()).Msg("created migration")
	case "migrate":
		desired := time.Now().UnixMilli()
		if len(commands) >= 2 {
			desired, err = strconv.ParseInt(commands[1], 10, 64)
			if err != nil {
				errlog.Error().Str("date", commands[1]).Msg("revision must be an integer timestamp")
				return exitUsage
			}
		}
		if dsn == "" {
			errlog.Error().Msg("required option -database not found")
			return exitUsage
		}

		db, err := connect(driver, dsn, *flagTimeout)
		if err != nil {
			errlog.Error().Err(err).Msg("failed to connect")
			return exitConnection
		}
		defer logCloser(db, errlog)

		out.Info().Int64("revision", desired).Str("driver", driver).Msg("migrating")
		res, err := migration.Migrate(ctx, db, desired)
		if err != nil {
			ev := errlog.Error().Err(err).Str("kind", pgmigrate.KindOf(err).String())
			if len(res.Migrations) > 0 {
				ev = ev.Ints64("executed", res.Migrations)
			}
			ev.Msg("failed to run migrations")
			if dberr := pgmigrate.UnderlyingError(err); dberr != err {
				errlog.Error().Msg("database error\n" + formatDriverError(dberr))
			}
			return exitFailure
		}
		if len(res.Migrations) == 0 {
			out.Info().Int64("revision", res.Current).Msg("no migrations to run")
		} else {
			out.Info().
				Str("direction", string(res.Direction)).
				Ints64("migrations", res.Migrations).
				Msg("ran migrations")
		}

		if !writeSchema(ctx, migration, db, out, errlog) {
			return exitFailure
		}
	case "write":
		if dsn == "" {
			errlog.Error().Msg("required option -database not found")
			return exitUsage
		}
		db, err := connect(driver, dsn, *flagTimeout)
		if err != nil {
			errlog.Error().Err(err).Msg("failed to connect")
			return exitConnection
		}
		defer logCloser(db, errlog)

		if !writeSchema(ctx, migration, db, out, errlog) {
			return exitFailure
		}
	case "version":
		fmt.Fprintln(stdout, gitTag)
	default:
		errlog.Error().Str("command", commands[0]).Msg("unknown command")
		fs.Usage()
		return exitUsage
	}

	return exitOK
}

func writeSchema(ctx context.Context, migration *pgmigrate.Migration, db *sql.DB, out, errlog zerolog.Logger) bool {
	path, err := migration.WriteSchema(ctx, db)
	if err != nil {
		errlog.Error().Err(err).Msg("failed to write schema")
		return false
	}
	out.Info().Str("path", path).Msg("wrote schema")
	return true
}

func newLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true, PartsExclude: []string{zerolog.TimestampFieldName}}).
		Level(level)
}

// lookupDriver maps the -driver flag to a database/sql driver name and dialect.
func lookupDriver(name string) (string, pgmigrate.Dialect, error) {
	switch strings.ToLower(name) {
	case "postgres", "pq":
		return "postgres", pgmigrate.Postgres, nil
	case "pgx":
		return "pgx", pgmigrate.Postgres, nil
	case "sqlite", "sqlite3":
		return "sqlite", pgmigrate.SQLite, nil
	}
	return "", nil, fmt.Errorf("unknown driver %q", name)
}

func createDSN(host, port, name, user, pass, sslmode, sslcert, sslkey, sslrootcert string, timeout time.Duration) string {
	dsn := ""
	if host != "" {
		dsn += fmt.Sprintf("host=%s ", host)
	}
	if port != "" {
		dsn += fmt.Sprintf("port=%s ", port)
	}
	if name != "" {
		dsn += fmt.Sprintf("dbname='%s' ", name)
	}
	if user != "" {
		dsn += fmt.Sprintf("user='%s' ", user)
	}
	if pass != "" {
		// values with spaces must be surrounded with '': e.g. 'se cret'
		// further ' within the value must be escaped with \
		password := strings.Replace(pass, "'", `\'`, -1)
		dsn += fmt.Sprintf("password='%s' ", password)
	}
	if sslmode != "" {
		dsn += fmt.Sprintf("sslmode=%s ", sslmode)
	}
	if sslcert != "" {
		dsn += fmt.Sprintf("sslcert='%s' ", sslcert)
	}
	if sslkey != "" {
		dsn += fmt.Sprintf("sslkey='%s' ", sslkey)
	}
	if sslrootcert != "" {
		dsn += fmt.Sprintf("sslrootcert='%s' ", sslrootcert)
	}
	if timeout.Seconds() > 0 {
		dsn += fmt.Sprintf("connect_timeout=%.f ", timeout.Seconds())
	}

	return strings.TrimSpace(dsn)
}

func connect(driver, dsn string, timeout time.Duration) (*sql.DB, error) {
	// "open" only validates the provided dsn
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection to database: %v", err)
	}

	// dsn did validate, now try to actually reach the database
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database server: %v", err)
	}

	return db, nil
}
