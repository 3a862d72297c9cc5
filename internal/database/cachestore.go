package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ZanzyTHEbar/people-network-go/internal/assetcache"
	"github.com/ZanzyTHEbar/people-network-go/internal/metrics"
)

// CacheStore persists named asset caches in libSQL.
type CacheStore struct {
	dm *DBManager
}

// CacheStore returns the asset cache storage backed by this database.
func (dm *DBManager) CacheStore() *CacheStore {
	return &CacheStore{dm: dm}
}

var _ assetcache.Storage = (*CacheStore)(nil)

func (s *CacheStore) Open(ctx context.Context, name string) (assetcache.Cache, error) {
	done := metrics.TimeOp("db_cache_open")
	success := false
	defer func() { done(success) }()
	if name == "" {
		return nil, errors.New("cache name cannot be empty")
	}
	if _, err := s.dm.db.ExecContext(ctx, "INSERT OR IGNORE INTO asset_caches (name) VALUES (?)", name); err != nil {
		return nil, fmt.Errorf("failed to open cache %q: %w", name, err)
	}
	success = true
	return &storedCache{dm: s.dm, name: name}, nil
}

func (s *CacheStore) Keys(ctx context.Context) ([]string, error) {
	done := metrics.TimeOp("db_cache_keys")
	success := false
	defer func() { done(success) }()
	rows, err := s.dm.db.QueryContext(ctx, "SELECT name FROM asset_caches ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("failed to list caches: %w", err)
	}
	defer rows.Close()
	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan cache name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	success = true
	return names, nil
}

func (s *CacheStore) Delete(ctx context.Context, name string) (bool, error) {
	done := metrics.TimeOp("db_cache_delete")
	success := false
	defer func() { done(success) }()

	tx, err := s.dm.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM asset_cache_entries WHERE cache_name = ?", name); err != nil {
		return false, fmt.Errorf("failed to delete entries of cache %q: %w", name, err)
	}
	result, err := tx.ExecContext(ctx, "DELETE FROM asset_caches WHERE name = ?", name)
	if err != nil {
		return false, fmt.Errorf("failed to delete cache %q: %w", name, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	success = true
	return n > 0, nil
}

type storedCache struct {
	dm   *DBManager
	name string
}

func (c *storedCache) Name() string { return c.name }

// PutAll writes every entry in one transaction.
func (c *storedCache) PutAll(ctx context.Context, entries []assetcache.Entry) error {
	done := metrics.TimeOp("db_cache_put_all")
	success := false
	defer func() { done(success) }()

	tx, err := c.dm.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM asset_caches WHERE name = ?", c.name).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check cache %q: %w", c.name, err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", assetcache.ErrCacheNotFound, c.name)
	}

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO asset_cache_entries (cache_name, request_key, status, header, body) VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(cache_name, request_key) DO UPDATE SET
            status = excluded.status, header = excluded.header, body = excluded.body`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		header, err := json.Marshal(e.Response.Header)
		if err != nil {
			return fmt.Errorf("failed to encode headers for %s: %w", e.Key, err)
		}
		if _, err := stmt.ExecContext(ctx, c.name, e.Key, e.Response.Status, string(header), e.Response.Body); err != nil {
			return fmt.Errorf("failed to store %s in cache %q: %w", e.Key, c.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	success = true
	return nil
}

func (c *storedCache) Match(ctx context.Context, key string) (*assetcache.Response, bool, error) {
	done := metrics.TimeOp("db_cache_match")
	success := false
	defer func() { done(success) }()

	stmt, err := c.dm.getPreparedStmt(ctx, "SELECT status, header, body FROM asset_cache_entries WHERE cache_name = ? AND request_key = ?")
	if err != nil {
		return nil, false, err
	}
	var (
		status int
		header string
		body   []byte
	)
	if err := stmt.QueryRowContext(ctx, c.name, key).Scan(&status, &header, &body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			success = true
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to match %s in cache %q: %w", key, c.name, err)
	}
	resp := &assetcache.Response{Status: status, Header: make(http.Header), Body: body}
	if err := json.Unmarshal([]byte(header), &resp.Header); err != nil {
		return nil, false, fmt.Errorf("failed to decode headers for %s: %w", key, err)
	}
	success = true
	return resp, true, nil
}

func (c *storedCache) Keys(ctx context.Context) ([]string, error) {
	rows, err := c.dm.db.QueryContext(ctx,
		"SELECT request_key FROM asset_cache_entries WHERE cache_name = ? ORDER BY rowid", c.name)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys of cache %q: %w", c.name, err)
	}
	defer rows.Close()
	keys := make([]string, 0)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
