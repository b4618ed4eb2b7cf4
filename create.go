package pgmigrate

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	upPlaceholder   = "-- Write forward migration here\n"
	downPlaceholder = "-- Write backward migration here\n"
)

// Create creates a new migration directory with placeholder up.sql and
// down.sql files in the migrations root.
//
//   cmd:     migration.Create()
//   created: database/migrations/1551107095000/{up,down}.sql
//   return:  1551107095000
//
// The identifier is the current time in milliseconds. The migrations root
// will be automatically created if it doesn't exist.
func (m *Migration) Create() (id int64, err error) {
	id = m.now().UnixMilli()

	if err := os.MkdirAll(m.path, 0755); err != nil {
		return 0, fmt.Errorf("failed to create migrations directory %q: %v", m.path, err)
	}

	dir := filepath.Join(m.path, strconv.FormatInt(id, 10))
	if err := os.Mkdir(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create migration at %q: %v", dir, err)
	}

	files := map[Direction]string{Up: upPlaceholder, Down: downPlaceholder}
	for dirn, body := range files {
		path := m.statementPath(id, dirn)
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			return 0, fmt.Errorf("failed to create migration file %q: %v", path, err)
		}
	}

	m.logger.Debug().Int64("migration", id).Str("path", dir).Msg("created migration")
	return id, nil
}
