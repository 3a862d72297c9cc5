package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/ZanzyTHEbar/people-network-go/internal/metrics"
)

// NewDBManager opens the database, applies the schema and tunes the pool
func NewDBManager(config *Config) (*DBManager, error) {
	if config == nil {
		config = NewConfig()
	}
	manager := &DBManager{
		config:    config,
		stmtCache: make(map[string]*sql.Stmt),
	}
	db, err := manager.open()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	manager.db = db
	return manager, nil
}

func (dm *DBManager) open() (*sql.DB, error) {
	dbURL := dm.config.URL
	if !strings.HasPrefix(dbURL, "file:") && dm.config.AuthToken != "" {
		// Build URL safely and append/override the authToken parameter
		if u, perr := url.Parse(dbURL); perr == nil {
			q := u.Query()
			q.Set("authToken", dm.config.AuthToken)
			u.RawQuery = q.Encode()
			dbURL = u.String()
		} else if strings.Contains(dbURL, "?") {
			dbURL = dbURL + "&authToken=" + url.QueryEscape(dm.config.AuthToken)
		} else {
			dbURL = dbURL + "?authToken=" + url.QueryEscape(dm.config.AuthToken)
		}
	}

	db, err := sql.Open("libsql", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connector: %w", err)
	}

	if err := dm.initialize(db); err != nil {
		db.Close()
		return nil, err
	}

	if dm.config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(dm.config.MaxOpenConns)
	}
	if dm.config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(dm.config.MaxIdleConns)
	}
	if dm.config.ConnMaxIdleSec > 0 {
		db.SetConnMaxIdleTime(time.Duration(dm.config.ConnMaxIdleSec) * time.Second)
	}
	if dm.config.ConnMaxLifeSec > 0 {
		db.SetConnMaxLifetime(time.Duration(dm.config.ConnMaxLifeSec) * time.Second)
	}

	stats := db.Stats()
	metrics.Default().ObservePoolStats(stats.InUse, stats.Idle)
	return db, nil
}

// initialize creates tables and indexes if they don't exist
func (dm *DBManager) initialize(db *sql.DB) error {
	done := metrics.TimeOp("db_initialize")
	success := false
	defer func() { done(success) }()
	tx, err := db.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for initialization: %w", err)
	}
	defer tx.Rollback()

	for _, statement := range schema {
		if _, err := tx.Exec(statement); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	success = true
	return nil
}
