// Package sqlstore backs DB_UPDATE nodes with a SQL database. Updates are
// built from the node's criteria and values maps; only allow-listed tables
// may be touched.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

type Store struct {
	db     *sql.DB
	tables map[string]bool
}

// NewStore creates a record store limited to the given tables. A node
// naming any other table is rejected before SQL is built.
func NewStore(db *sql.DB, allowedTables []string) *Store {
	tables := make(map[string]bool, len(allowedTables))
	for _, table := range allowedTables {
		tables[table] = true
	}

	return &Store{db: db, tables: tables}
}

func (s *Store) PersistUpdate(ctx context.Context, table string, criteria, values map[string]any) (int64, error) {
	if !s.tables[table] {
		return 0, fmt.Errorf("table '%s' is not allowed for updates", table)
	}

	if len(values) == 0 {
		return 0, fmt.Errorf("update on '%s' has no values", table)
	}

	if len(criteria) == 0 {
		return 0, fmt.Errorf("update on '%s' has no criteria", table)
	}

	// Keys are sorted so the statement text is stable for a given config.
	assignments := make([]string, 0, len(values))
	conditions := make([]string, 0, len(criteria))
	args := make([]any, 0, len(values)+len(criteria))
	placeholder := 1

	for _, column := range sortedKeys(values) {
		assignments = append(assignments, fmt.Sprintf("%s = $%d", column, placeholder))
		args = append(args, values[column])
		placeholder++
	}

	for _, column := range sortedKeys(criteria) {
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, placeholder))
		args = append(args, criteria[column])
		placeholder++
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		table, strings.Join(assignments, ", "), strings.Join(conditions, " AND "))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("update on '%s' failed: %w", table, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return affected, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}
