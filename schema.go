package pgmigrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SchemaFile is the name of the schema document written by WriteSchema.
const SchemaFile = "schema.yml"

// Schema is a human-readable snapshot of the database structure.
type Schema struct {
	// Revision is the current revision, zero if nothing is applied.
	Revision int64 `yaml:"revision"`
	// Tables maps table names to their columns and column data types.
	Tables map[string]map[string]string `yaml:"tables"`
}

// Dump reads the current revision and every user table with its columns.
// The ledger table itself is left out.
func (m *Migration) Dump(ctx context.Context, q Querier) (*Schema, error) {
	if err := m.ledger.ensureTable(ctx, q); err != nil {
		return nil, err
	}
	revisions, err := m.ledger.currentRevisions(ctx, q)
	if err != nil {
		return nil, err
	}

	schema := &Schema{Tables: map[string]map[string]string{}}
	if len(revisions) > 0 {
		schema.Revision = revisions[0]
	}

	rows, err := q.QueryContext(ctx, m.ledger.dialect.ColumnsQuery())
	if err != nil {
		return nil, fmt.Errorf("failed to query table columns: %w", err)
	}
	defer logCloser(rows, m.logger)

	for rows.Next() {
		var table, column, dataType string
		if err := rows.Scan(&table, &column, &dataType); err != nil {
			return nil, fmt.Errorf("failed to row scan entry in query for table columns: %w", err)
		}
		if table == m.ledger.table {
			continue
		}
		if schema.Tables[table] == nil {
			schema.Tables[table] = map[string]string{}
		}
		schema.Tables[table][column] = dataType
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query table columns: %w", err)
	}

	return schema, nil
}

// WriteSchema dumps the database structure as YAML into schema.yml in the
// migrations root and returns the path of the written file.
func (m *Migration) WriteSchema(ctx context.Context, q Querier) (string, error) {
	schema, err := m.Dump(ctx, q)
	if err != nil {
		return "", err
	}

	buf, err := yaml.Marshal(schema)
	if err != nil {
		return "", fmt.Errorf("failed to encode schema: %w", err)
	}

	path := filepath.Join(m.path, SchemaFile)
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return "", fmt.Errorf("failed to write schema to %q: %w", path, err)
	}
	m.logger.Debug().Str("path", path).Int64("revision", schema.Revision).Msg("wrote schema")

	return path, nil
}
