package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ZanzyTHEbar/people-network-go/internal/apptype"
	"github.com/ZanzyTHEbar/people-network-go/internal/metrics"
)

// CreateEntities inserts or updates entities in one transaction. Entities
// without an id are assigned a generated one; the stored entities are
// returned in input order.
func (dm *DBManager) CreateEntities(ctx context.Context, entities []apptype.Entity) ([]apptype.Entity, error) {
	done := metrics.TimeOp("db_create_entities")
	success := false
	defer func() { done(success) }()

	if len(entities) == 0 {
		return []apptype.Entity{}, nil
	}

	out := make([]apptype.Entity, len(entities))
	seen := make(map[string]struct{}, len(entities))
	for i, e := range entities {
		e.Name = strings.TrimSpace(e.Name)
		e.ID = strings.TrimSpace(e.ID)
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if err := dm.structValidator().Struct(e); err != nil {
			return nil, fmt.Errorf("invalid entity %q: %w", e.ID, err)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("duplicate entity id %q in request", e.ID)
		}
		seen[e.ID] = struct{}{}
		out[i] = e
	}

	tx, err := dm.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO entities (id, name, entity_type) VALUES (?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET name = excluded.name, entity_type = excluded.entity_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range out {
		if _, err := stmt.ExecContext(ctx, e.ID, e.Name, string(e.Type)); err != nil {
			return nil, fmt.Errorf("failed to upsert entity %q: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	success = true
	return out, nil
}

// GetEntity retrieves a single entity by id
func (dm *DBManager) GetEntity(ctx context.Context, id string) (*apptype.Entity, error) {
	done := metrics.TimeOp("db_get_entity")
	success := false
	defer func() { done(success) }()

	stmt, err := dm.getPreparedStmt(ctx, "SELECT id, name, entity_type FROM entities WHERE id = ?")
	if err != nil {
		return nil, err
	}
	var e apptype.Entity
	var entityType string
	if err := stmt.QueryRowContext(ctx, id).Scan(&e.ID, &e.Name, &entityType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, id)
		}
		return nil, fmt.Errorf("failed to query entity %q: %w", id, err)
	}
	e.Type = apptype.EntityType(entityType)
	success = true
	return &e, nil
}

// GetEntities retrieves entities by id. Unknown ids are skipped.
func (dm *DBManager) GetEntities(ctx context.Context, ids []string) ([]apptype.Entity, error) {
	done := metrics.TimeOp("db_get_entities")
	success := false
	defer func() { done(success) }()
	if len(ids) == 0 {
		return []apptype.Entity{}, nil
	}
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := fmt.Sprintf("SELECT id, name, entity_type FROM entities WHERE id IN (%s) ORDER BY created_at, id", placeholders(len(ids)))
	rows, err := dm.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()
	entities, err := scanEntities(rows)
	if err != nil {
		return nil, err
	}
	success = true
	return entities, nil
}

// ListEntities returns up to limit entities, oldest first
func (dm *DBManager) ListEntities(ctx context.Context, limit int) ([]apptype.Entity, error) {
	done := metrics.TimeOp("db_list_entities")
	success := false
	defer func() { done(success) }()
	if limit <= 0 {
		limit = 50
	}
	stmt, err := dm.getPreparedStmt(ctx, "SELECT id, name, entity_type FROM entities ORDER BY created_at, id LIMIT ?")
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()
	entities, err := scanEntities(rows)
	if err != nil {
		return nil, err
	}
	success = true
	return entities, nil
}

func scanEntities(rows *sql.Rows) ([]apptype.Entity, error) {
	entities := make([]apptype.Entity, 0)
	for rows.Next() {
		var e apptype.Entity
		var entityType string
		if err := rows.Scan(&e.ID, &e.Name, &entityType); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		e.Type = apptype.EntityType(entityType)
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entities: %w", err)
	}
	return entities, nil
}

// DeleteEntity removes an entity and every connection touching it
func (dm *DBManager) DeleteEntity(ctx context.Context, id string) error {
	done := metrics.TimeOp("db_delete_entity")
	success := false
	defer func() { done(success) }()

	tx, err := dm.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM connections WHERE source = ? OR target = ?", id, id); err != nil {
		return fmt.Errorf("failed to delete connections for %q: %w", id, err)
	}
	result, err := tx.ExecContext(ctx, "DELETE FROM entities WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete entity %q: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	success = true
	return nil
}
