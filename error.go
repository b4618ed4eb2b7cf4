package pgmigrate

import (
	"errors"
	"strconv"
)

// Kind classifies the stage of a migration run which failed.
type Kind int

const (
	KindUnknown Kind = iota
	KindConnection
	KindLock
	KindDirectoryRead
	KindInvalidMigrationName
	KindLedgerQuery
	KindMissingStatementFile
	KindStatementRead
	KindStatementExecution
	KindLedgerUpdate
)

var kindNames = map[Kind]string{
	KindUnknown:              "unknown error",
	KindConnection:           "connection error",
	KindLock:                 "lock error",
	KindDirectoryRead:        "directory read error",
	KindInvalidMigrationName: "invalid migration name",
	KindLedgerQuery:          "ledger query error",
	KindMissingStatementFile: "missing statement file",
	KindStatementRead:        "statement read error",
	KindStatementExecution:   "statement execution error",
	KindLedgerUpdate:         "ledger update error",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Sentinel errors for use with errors.Is.
var (
	ErrConnection           = &Error{Kind: KindConnection}
	ErrLock                 = &Error{Kind: KindLock}
	ErrDirectoryRead        = &Error{Kind: KindDirectoryRead}
	ErrInvalidMigrationName = &Error{Kind: KindInvalidMigrationName}
	ErrLedgerQuery          = &Error{Kind: KindLedgerQuery}
	ErrMissingStatementFile = &Error{Kind: KindMissingStatementFile}
	ErrStatementRead        = &Error{Kind: KindStatementRead}
	ErrStatementExecution   = &Error{Kind: KindStatementExecution}
	ErrLedgerUpdate         = &Error{Kind: KindLedgerUpdate}
)

// Error records the failed stage, the original (possibly driver-specific)
// error and supporting info that caused it.
type Error struct {
	// Kind is the failed stage
	Kind Kind

	// Migration is the identifier of the offending migration, zero if the
	// failure is not tied to a single migration
	Migration int64

	// Info contains supporting info
	Info string

	// Err is the original error
	Err error
}

func (e *Error) Error() string {
	msg := e.Info
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err == nil {
		return msg
	}
	return msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a sentinel of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Err != nil || t.Info != "" {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// UnderlyingError returns the innermost error wrapped by one or more *Error.
func UnderlyingError(err error) error {
	for {
		e, ok := err.(*Error)
		if !ok || e.Err == nil {
			return err
		}
		err = e.Err
	}
}
