package cache

import (
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const schema = `
	CREATE TABLE IF NOT EXISTS catalogs (
		id               TEXT PRIMARY KEY,
		name             TEXT NOT NULL,
		schema_version   TEXT NOT NULL,
		payload          BLOB NOT NULL,
		encoding         INTEGER NOT NULL,
		raw_size         INTEGER NOT NULL,
		signature        TEXT NOT NULL,
		digest           TEXT NOT NULL,
		verified         INTEGER NOT NULL,
		cached_at        INTEGER NOT NULL,
		last_verified_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_catalogs_cached_at ON catalogs(cached_at);

	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value BLOB NOT NULL
	);
`

// openPool opens the connection pool. Every connection gets the standard
// pragmas and the schema on first use.
func openPool(path string, size int) (*sqlitex.Pool, error) {
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    size,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return pool, nil
}

func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
