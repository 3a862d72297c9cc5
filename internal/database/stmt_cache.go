package database

import (
	"context"
	"database/sql"
	"fmt"
)

// getPreparedStmt returns or prepares and caches a statement on the shared handle
func (dm *DBManager) getPreparedStmt(ctx context.Context, sqlText string) (*sql.Stmt, error) {
	dm.stmtMu.RLock()
	stmt, ok := dm.stmtCache[sqlText]
	dm.stmtMu.RUnlock()
	if ok {
		return stmt, nil
	}

	dm.stmtMu.Lock()
	defer dm.stmtMu.Unlock()
	if stmt, ok := dm.stmtCache[sqlText]; ok {
		return stmt, nil
	}
	stmt, err := dm.db.PrepareContext(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	dm.stmtCache[sqlText] = stmt
	return stmt, nil
}
