package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

func logCloser(c io.Closer, l zerolog.Logger) {
	if err := c.Close(); err != nil {
		l.Error().Err(err).Msg("failed to close handle")
	}
}

// formatDriverError pretty-prints PostgreSQL errors of lib/pq and pgx.
// Other errors are returned as is.
func formatDriverError(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		msg := fmt.Sprintf("Severity   : %s\n", pqErr.Severity)
		msg += fmt.Sprintf("Error Code : %s (%s)\n", pqErr.Code, pqErr.Code.Name())
		msg += fmt.Sprintf("Message    : %s\n", pqErr.Message)
		if pqErr.Detail != "" {
			msg += fmt.Sprintf("Detail     : %s\n", pqErr.Detail)
		}
		if pqErr.Hint != "" {
			msg += fmt.Sprintf("Hint       : %s\n", pqErr.Hint)
		}
		if pqErr.Position != "" {
			msg += fmt.Sprintf("Position   : %s\n", pqErr.Position)
		}
		return msg
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		msg := fmt.Sprintf("Severity   : %s\n", pgErr.Severity)
		msg += fmt.Sprintf("Error Code : %s\n", pgErr.Code)
		msg += fmt.Sprintf("Message    : %s\n", pgErr.Message)
		if pgErr.Detail != "" {
			msg += fmt.Sprintf("Detail     : %s\n", pgErr.Detail)
		}
		if pgErr.Hint != "" {
			msg += fmt.Sprintf("Hint       : %s\n", pgErr.Hint)
		}
		if pgErr.Position != 0 {
			msg += fmt.Sprintf("Position   : %d\n", pgErr.Position)
		}
		return msg
	}

	return err.Error()
}
