package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/people-network-go/internal/apptype"
	"github.com/ZanzyTHEbar/people-network-go/internal/metrics"
)

// CreateConnections creates connections between existing entities
func (dm *DBManager) CreateConnections(ctx context.Context, connections []apptype.Connection) error {
	done := metrics.TimeOp("db_create_connections")
	success := false
	defer func() { done(success) }()

	if len(connections) == 0 {
		return nil
	}
	endpoints := make(map[string]struct{})
	for _, c := range connections {
		if err := dm.structValidator().Struct(c); err != nil {
			return fmt.Errorf("invalid connection %s -> %s: %w", c.From, c.To, err)
		}
		endpoints[c.From] = struct{}{}
		endpoints[c.To] = struct{}{}
	}

	tx, err := dm.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := verifyEndpoints(ctx, tx, endpoints); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO connections (source, target, connection_type) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range connections {
		if _, err := stmt.ExecContext(ctx, c.From, c.To, string(c.Type)); err != nil {
			return fmt.Errorf("failed to insert connection (%s -> %s): %w", c.From, c.To, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	success = true
	return nil
}

// verifyEndpoints fails unless every id names an existing entity
func verifyEndpoints(ctx context.Context, tx *sql.Tx, ids map[string]struct{}) error {
	args := make([]interface{}, 0, len(ids))
	for id := range ids {
		args = append(args, id)
	}
	rows, err := tx.QueryContext(ctx,
		fmt.Sprintf("SELECT id FROM entities WHERE id IN (%s)", placeholders(len(args))), args...)
	if err != nil {
		return fmt.Errorf("failed to verify connection endpoints: %w", err)
	}
	found, err := scanIDSet(rows)
	if err != nil {
		return fmt.Errorf("failed to verify connection endpoints: %w", err)
	}
	missing := make([]string, 0)
	for id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("connection endpoints must exist before linking: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// scanIDSet drains and closes rows of a single id column.
func scanIDSet(rows *sql.Rows) (map[string]bool, error) {
	defer rows.Close()
	found := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan entity id: %w", err)
		}
		found[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return found, nil
}

// DeleteConnection removes every connection matching the tuple
func (dm *DBManager) DeleteConnection(ctx context.Context, from, to string, connectionType apptype.ConnectionType) error {
	done := metrics.TimeOp("db_delete_connection")
	success := false
	defer func() { done(success) }()

	result, err := dm.db.ExecContext(ctx,
		"DELETE FROM connections WHERE source = ? AND target = ? AND connection_type = ?",
		from, to, string(connectionType))
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("connection not found: %s -> %s (%s)", from, to, connectionType)
	}
	success = true
	return nil
}

// GetConnectionsForEntities returns connections with either endpoint in entities
func (dm *DBManager) GetConnectionsForEntities(ctx context.Context, entities []apptype.Entity) ([]apptype.Connection, error) {
	done := metrics.TimeOp("db_get_connections_for_entities")
	success := false
	defer func() { done(success) }()
	if len(entities) == 0 {
		return []apptype.Connection{}, nil
	}
	args := make([]interface{}, 0, len(entities)*2)
	for _, e := range entities {
		args = append(args, e.ID)
	}
	args = append(args, args...)
	ph := placeholders(len(entities))
	query := fmt.Sprintf(`
        SELECT source, target, connection_type FROM connections
        WHERE source IN (%s) OR target IN (%s)
        ORDER BY id`, ph, ph)
	rows, err := dm.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections: %w", err)
	}
	defer rows.Close()
	conns, err := scanConnections(rows)
	if err != nil {
		return nil, err
	}
	success = true
	return conns, nil
}

func scanConnections(rows *sql.Rows) ([]apptype.Connection, error) {
	conns := make([]apptype.Connection, 0)
	for rows.Next() {
		var c apptype.Connection
		var connectionType string
		if err := rows.Scan(&c.From, &c.To, &connectionType); err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		c.Type = apptype.ConnectionType(connectionType)
		conns = append(conns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connections: %w", err)
	}
	return conns, nil
}
