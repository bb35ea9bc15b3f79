// Package sqlsource backs QUERY nodes with a SQL database. Nodes reference
// queries by ID; the actual SQL lives here, registered at startup, so node
// configs never carry raw SQL.
package sqlsource

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/campushq/flowline/pkg/protocol"
)

// NamedQuery is one registered read. Params lists the parameter names in
// placeholder order: the first name fills $1, the second $2 and so on.
type NamedQuery struct {
	SQL    string
	Params []string
}

type Source struct {
	db      *sql.DB
	queries map[string]NamedQuery
}

func NewSource(db *sql.DB, queries map[string]NamedQuery) *Source {
	if queries == nil {
		queries = map[string]NamedQuery{}
	}

	return &Source{db: db, queries: queries}
}

// Register adds a query after construction.
func (s *Source) Register(queryID string, query NamedQuery) {
	s.queries[queryID] = query
}

func (s *Source) RunQuery(ctx context.Context, queryID string, params map[string]any) ([]map[string]any, error) {
	query, ok := s.queries[queryID]
	if !ok {
		return nil, fmt.Errorf("unknown query '%s'", queryID)
	}

	args := make([]any, 0, len(query.Params))

	for _, name := range query.Params {
		value, ok := params[name]
		if !ok {
			return nil, fmt.Errorf("query '%s' missing parameter '%s'", queryID, name)
		}

		args = append(args, value)
	}

	rows, err := s.db.QueryContext(ctx, query.SQL, args...)
	if err != nil {
		return nil, protocol.Transient(fmt.Errorf("query '%s' failed: %w", queryID, err))
	}
	defer func() { _ = rows.Close() }()

	return scanRows(rows)
}

// scanRows materializes the result set as generic maps, the shape QUERY
// nodes bind into the execution context.
func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	results := make([]map[string]any, 0)

	for rows.Next() {
		values := make([]any, len(columns))
		targets := make([]any, len(columns))

		for i := range values {
			targets[i] = &values[i]
		}

		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]any, len(columns))

		for i, column := range columns {
			if raw, ok := values[i].([]byte); ok {
				row[column] = string(raw)
			} else {
				row[column] = values[i]
			}
		}

		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, protocol.Transient(err)
	}

	return results, nil
}
