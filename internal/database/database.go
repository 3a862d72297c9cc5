package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrEntityNotFound is returned when a lookup by id finds nothing.
var ErrEntityNotFound = errors.New("entity not found")

// DBManager handles all database operations
type DBManager struct {
	config *Config
	db     *sql.DB

	stmtMu    sync.RWMutex
	stmtCache map[string]*sql.Stmt

	validateOnce sync.Once
	validate     *validator.Validate
}

// Config returns the configuration the manager was opened with.
func (dm *DBManager) Config() Config {
	return *dm.config
}

// PoolStats returns the in-use and idle connection counts.
func (dm *DBManager) PoolStats() (inUse, idle int) {
	stats := dm.db.Stats()
	return stats.InUse, stats.Idle
}

func (dm *DBManager) structValidator() *validator.Validate {
	dm.validateOnce.Do(func() {
		dm.validate = validator.New()
	})
	return dm.validate
}

// Close closes cached statements and the database handle
func (dm *DBManager) Close() error {
	var errs []string
	dm.stmtMu.Lock()
	for sqlText, stmt := range dm.stmtCache {
		if err := stmt.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("statement %q: %v", sqlText, err))
		}
	}
	dm.stmtCache = make(map[string]*sql.Stmt)
	dm.stmtMu.Unlock()

	if err := dm.db.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing database: %s", strings.Join(errs, "; "))
	}
	return nil
}

func placeholders(n int) string {
	p := strings.Repeat("?,", n)
	return p[:len(p)-1]
}
