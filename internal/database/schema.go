package database

// schema holds the DDL applied on every open.
var schema = []string{
	// People network
	`CREATE TABLE IF NOT EXISTS entities (
        id TEXT PRIMARY KEY,
        name TEXT NOT NULL,
        entity_type TEXT NOT NULL CHECK (entity_type IN ('person', 'group')),
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    )`,
	`CREATE TABLE IF NOT EXISTS connections (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        source TEXT NOT NULL,
        target TEXT NOT NULL,
        connection_type TEXT NOT NULL CHECK (connection_type IN ('one-way', 'bi-directional')),
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (source) REFERENCES entities(id),
        FOREIGN KEY (target) REFERENCES entities(id)
    )`,

	// Asset caches
	`CREATE TABLE IF NOT EXISTS asset_caches (
        name TEXT PRIMARY KEY,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    )`,
	`CREATE TABLE IF NOT EXISTS asset_cache_entries (
        cache_name TEXT NOT NULL,
        request_key TEXT NOT NULL,
        status INTEGER NOT NULL,
        header TEXT NOT NULL,
        body BLOB,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        PRIMARY KEY (cache_name, request_key),
        FOREIGN KEY (cache_name) REFERENCES asset_caches(name)
    )`,

	`CREATE INDEX IF NOT EXISTS idx_entities_created_at ON entities(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_connections_source ON connections(source)`,
	`CREATE INDEX IF NOT EXISTS idx_connections_target ON connections(target)`,
	`CREATE INDEX IF NOT EXISTS idx_connections_src_tgt_type ON connections(source, target, connection_type)`,
}
