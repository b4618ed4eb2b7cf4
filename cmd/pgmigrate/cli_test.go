package main

import (
	"bytes"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// just define this here so we can run go test ./... from package root without warnings
var flagWithDb = flag.Bool("db", false, "Run tests against a test database.")

func Test_createDSN(t *testing.T) {
	host := "localhost"
	port := "5432"
	name := "app1"
	user := "mike"
	pass := "secret"
	sslmode := "verify-ca"
	sslcert := "certs/db.cert"
	sslkey := "certs/db.key"
	sslrootcert := "certs/ca.cert"
	timeout := time.Second * 42

	want := `host=localhost port=5432 dbname='app1' user='mike' password='secret' sslmode=verify-ca sslcert='certs/db.cert' sslkey='certs/db.key' sslrootcert='certs/ca.cert' connect_timeout=42`
	if got := createDSN(host, port, name, user, pass, sslmode, sslcert, sslkey, sslrootcert, timeout); got != want {
		t.Errorf("createDSN()\ngot  %q\nwant %q", got, want)
	}
	want = `password='ve ry$se\'cret!'`
	if got := createDSN("", "", "", "", `ve ry$se'cret!`, "", "", "", "", time.Second*0); got != want {
		t.Errorf("createDSN()\ngot  %q\nwant %q", got, want)
	}
}

func Test_connect(t *testing.T) {
	if !*flagWithDb {
		t.Skip("skipping test: need a database")
	}
	dsn := "dbname=postgres user=postgres sslmode=disable connect_timeout=5"

	for _, driver := range []string{"postgres", "pgx"} {
		db, err := connect(driver, dsn, time.Second*5)
		if err != nil {
			t.Fatal(err)
		}
		db.Close()
	}
}

func Test_lookupDriver(t *testing.T) {
	for _, name := range []string{"postgres", "pq", "pgx", "sqlite", "SQLite3"} {
		if _, _, err := lookupDriver(name); err != nil {
			t.Errorf("lookupDriver(%q) returned error: %v", name, err)
		}
	}
	if _, _, err := lookupDriver("mysql"); err == nil {
		t.Error("lookupDriver(mysql) should fail")
	}
}

func Test_formatDriverError(t *testing.T) {
	pqErr := &pq.Error{Severity: "ERROR", Code: "42601", Message: `syntax error at or near "TABLEtypo"`, Position: "8"}
	got := formatDriverError(pqErr)
	assert.Contains(t, got, "Error Code : 42601 (syntax_error)")
	assert.Contains(t, got, "Position   : 8")

	pgErr := &pgconn.PgError{Severity: "ERROR", Code: "42P01", Message: `relation "nope" does not exist`, Hint: "create it"}
	got = formatDriverError(pgErr)
	assert.Contains(t, got, "Error Code : 42P01")
	assert.Contains(t, got, "Hint       : create it")

	assert.Equal(t, "plain", formatDriverError(errString("plain")))
}

type errString string

func (e errString) Error() string { return string(e) }

func run(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()

	var out, errOut bytes.Buffer
	code = ParseAndRun(&out, &errOut, strings.NewReader(""), args)
	return code, out.String(), errOut.String()
}

func writeMigration(t *testing.T, root, id, up, down string) {
	t.Helper()

	dir := filepath.Join(root, id)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "up.sql"), []byte(up), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "down.sql"), []byte(down), 0644))
}

func TestParseAndRunUsage(t *testing.T) {
	code, _, stderr := run(t)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "Usage:")

	code, _, stderr = run(t, "launch")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "unknown command")

	code, _, _ = run(t, "-nope", "migrate")
	assert.Equal(t, exitUsage, code)

	code, _, stderr = run(t, "-driver", "mysql", "migrate")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "unknown driver")

	code, _, stderr = run(t, "-driver", "sqlite", "migrate")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "required option -database not found")

	code, _, _ = run(t, "-driver", "sqlite", "-database", "x.db", "migrate", "yesterday")
	assert.Equal(t, exitUsage, code)

	code, _, stderr = run(t, "-driver", "sqlite", "-lock", "migrate")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "-lock requires a PostgreSQL driver")
}

func TestParseAndRunVersion(t *testing.T) {
	code, stdout, _ := run(t, "version")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, gitTag+"\n", stdout)
}

func TestParseAndRunCreate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "migrations")

	code, stdout, stderr := run(t, "-folder", dir, "create")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "created migration")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.FileExists(t, filepath.Join(dir, entries[0].Name(), "up.sql"))
	assert.FileExists(t, filepath.Join(dir, entries[0].Name(), "down.sql"))
}

func TestParseAndRunEnv(t *testing.T) {
	envDir := filepath.Join(t.TempDir(), "env")
	t.Setenv("PGMIGRATE_FOLDER", envDir)

	code, _, stderr := run(t, "create")
	require.Equal(t, exitOK, code, stderr)
	assert.DirExists(t, envDir)
}

func TestParseAndRunConfigFile(t *testing.T) {
	cfgDir := filepath.Join(t.TempDir(), "cfg")
	cfg := filepath.Join(t.TempDir(), "pgmigrate.conf")
	require.NoError(t, os.WriteFile(cfg, []byte("folder "+cfgDir+"\n"), 0644))

	code, _, stderr := run(t, "-config", cfg, "create")
	require.Equal(t, exitOK, code, stderr)
	assert.DirExists(t, cfgDir)
}

func TestParseAndRunMigrate(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "100", `CREATE TABLE users (id integer PRIMARY KEY);`, `DROP TABLE users;`)
	writeMigration(t, dir, "200", `CREATE TABLE posts (id integer PRIMARY KEY);`, `DROP TABLE posts;`)
	dbPath := filepath.Join(t.TempDir(), "app.db")
	args := []string{"-driver", "sqlite", "-database", dbPath, "-folder", dir, "-debug"}

	code, stdout, stderr := run(t, append(args, "migrate", "200")...)
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "ran migrations")
	assert.Contains(t, stderr, "resolved revision", "debug logging of the library")

	buf, err := os.ReadFile(filepath.Join(dir, "schema.yml"))
	require.NoError(t, err)
	assert.Contains(t, string(buf), "revision: 200")
	assert.Contains(t, string(buf), "posts:")

	code, stdout, stderr = run(t, append(args, "migrate", "250")...)
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "no migrations to run")

	code, stdout, stderr = run(t, append(args, "migrate", "200")...)
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "direction=down")

	require.NoError(t, os.Remove(filepath.Join(dir, "schema.yml")))
	code, _, stderr = run(t, append(args, "write")...)
	require.Equal(t, exitOK, code, stderr)
	buf, err = os.ReadFile(filepath.Join(dir, "schema.yml"))
	require.NoError(t, err)
	assert.Contains(t, string(buf), "revision: 100")
}

func TestParseAndRunMigrateFailure(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "100", `CREATE TABLE users (id integer PRIMARY KEY);`, `DROP TABLE users;`)
	writeMigration(t, dir, "200", `CREATE TABLEtypo posts ();`, `DROP TABLE posts;`)
	dbPath := filepath.Join(t.TempDir(), "app.db")

	code, _, stderr := run(t, "-driver", "sqlite", "-database", dbPath, "-folder", dir, "migrate", "200")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "failed to run migrations")
	assert.Contains(t, stderr, "statement execution error")
	assert.NoFileExists(t, filepath.Join(dir, "schema.yml"))
}

func TestParseAndRunConnectionFailure(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "missing", "dir", "app.db")

	code, _, stderr := run(t, "-driver", "sqlite", "-database", dbPath, "-folder", t.TempDir(), "migrate", "1")
	assert.Equal(t, exitConnection, code)
	assert.Contains(t, stderr, "failed to connect")
}
