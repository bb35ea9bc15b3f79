package cmd

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/campushq/flowline/pkg/collaborators/httpcall"
	"github.com/campushq/flowline/pkg/collaborators/logmessenger"
	"github.com/campushq/flowline/pkg/collaborators/sqlsource"
	"github.com/campushq/flowline/pkg/collaborators/sqlstore"
	"github.com/campushq/flowline/pkg/protocol"

	_ "github.com/lib/pq" // postgres driver for the collaborator connection
)

// CollaboratorConfig describes where node collaborators get their backends.
type CollaboratorConfig struct {
	// DataSourceURL is the SQL connection for QUERY and DB_UPDATE nodes.
	// Empty leaves both unwired; workflows using those kinds will fail.
	DataSourceURL string

	// QueriesFile is a JSON file mapping query IDs to their SQL and
	// parameter order.
	QueriesFile string

	// UpdateTables is the comma-separated allow list for DB_UPDATE.
	UpdateTables string
}

type namedQueryFile map[string]struct {
	SQL    string   `json:"sql"`
	Params []string `json:"params"`
}

// NewCollaborators assembles the collaborator bundle. The messenger is the
// logging dev messenger; a real provider drops in behind the same
// interface.
func NewCollaborators(logger *slog.Logger, cfg CollaboratorConfig) (protocol.Collaborators, error) {
	collaborators := protocol.Collaborators{
		HTTPCaller: httpcall.NewCaller(0),
		Messenger:  logmessenger.NewMessenger(logger),
	}

	if cfg.DataSourceURL == "" {
		return collaborators, nil
	}

	db, err := sql.Open("postgres", cfg.DataSourceURL)
	if err != nil {
		return collaborators, fmt.Errorf("failed to open data source: %w", err)
	}

	queries, err := loadQueries(cfg.QueriesFile)
	if err != nil {
		return collaborators, err
	}

	collaborators.DataSource = sqlsource.NewSource(db, queries)

	if cfg.UpdateTables != "" {
		tables := strings.Split(cfg.UpdateTables, ",")
		for i, table := range tables {
			tables[i] = strings.TrimSpace(table)
		}

		collaborators.RecordStore = sqlstore.NewStore(db, tables)
	}

	return collaborators, nil
}

func loadQueries(path string) (map[string]sqlsource.NamedQuery, error) {
	if path == "" {
		return nil, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read queries file: %w", err)
	}

	var file namedQueryFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse queries file: %w", err)
	}

	queries := make(map[string]sqlsource.NamedQuery, len(file))
	for id, query := range file {
		queries[id] = sqlsource.NamedQuery{SQL: query.SQL, Params: query.Params}
	}

	return queries, nil
}
