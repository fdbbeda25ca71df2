package cache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/Dezirae-Stark/QuantumTrader-Pro-sub004/internal/catalog"
	"github.com/Dezirae-Stark/QuantumTrader-Pro-sub004/internal/clock"
)

const (
	// DefaultExpiry is how long a cached catalog stays valid
	DefaultExpiry = 24 * time.Hour
	// DefaultMemoryEntries is the size of the decoded record LRU
	DefaultMemoryEntries = 64
	// DefaultPoolSize is the number of SQLite connections
	DefaultPoolSize = 4
)

const indexKey = "index"

// Config configures a Store. Path is required.
type Config struct {
	// Path is the SQLite database file. Its directory is created on
	// Initialize.
	Path          string
	Expiry        time.Duration
	MemoryEntries int
	PoolSize      int
	Clock         clock.Clock
	Logger        *slog.Logger
}

// Entry is a catalog to be written. Timestamps are stamped by the store.
type Entry struct {
	ID            catalog.CatalogID
	Name          string
	SchemaVersion string
	Payload       []byte
	Signature     string
	Verified      bool
}

// Stats summarizes the cache contents.
type Stats struct {
	Path       string    `json:"path" yaml:"path"`
	Total      int       `json:"total" yaml:"total"`
	Valid      int       `json:"valid" yaml:"valid"`
	Expired    int       `json:"expired" yaml:"expired"`
	Verified   int       `json:"verified" yaml:"verified"`
	Unverified int       `json:"unverified" yaml:"unverified"`
	Oldest     time.Time `json:"oldest,omitzero" yaml:"oldest,omitempty"`
	Newest     time.Time `json:"newest,omitzero" yaml:"newest,omitempty"`
	// SizeBytes is the stored payload size, after compression.
	SizeBytes int64 `json:"size_bytes" yaml:"size_bytes"`
	// RawBytes is the payload size before compression.
	RawBytes int64         `json:"raw_bytes" yaml:"raw_bytes"`
	Expiry   time.Duration `json:"-" yaml:"-"`
}

// Store is the persistent catalog cache. It is safe for concurrent use.
type Store struct {
	path          string
	expiry        time.Duration
	memoryEntries int
	poolSize      int
	clock         clock.Clock
	logger        *slog.Logger

	// mu guards pool and keeps hot coherent with the database: writers hold
	// it exclusively across the database write and the LRU update.
	mu   sync.RWMutex
	pool *sqlitex.Pool
	hot  *lru.Cache[catalog.CatalogID, *catalog.Record]
}

// New creates a store. No file is touched until Initialize.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("cache: Path is required")
	}
	s := &Store{
		path:          cfg.Path,
		expiry:        cfg.Expiry,
		memoryEntries: cfg.MemoryEntries,
		poolSize:      cfg.PoolSize,
		clock:         cfg.Clock,
		logger:        cfg.Logger,
	}
	if s.expiry <= 0 {
		s.expiry = DefaultExpiry
	}
	if s.memoryEntries <= 0 {
		s.memoryEntries = DefaultMemoryEntries
	}
	if s.poolSize <= 0 {
		s.poolSize = DefaultPoolSize
	}
	if s.clock == nil {
		s.clock = clock.Real{}
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Expiry returns the configured expiry duration.
func (s *Store) Expiry() time.Duration { return s.expiry }

// Initialize opens the database, creating it and its schema if needed.
// Calling it again on an open store is a no-op.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return &catalog.CacheError{Op: "initialize", Err: fmt.Errorf("create cache dir: %w", err)}
	}
	pool, err := openPool(s.path, s.poolSize)
	if err != nil {
		return &catalog.CacheError{Op: "initialize", Err: err}
	}

	// Take one connection so pragma and schema errors surface here.
	conn, err := pool.Take(ctx)
	if err != nil {
		pool.Close()
		return &catalog.CacheError{Op: "initialize", Err: err}
	}
	pool.Put(conn)

	hot, err := lru.New[catalog.CatalogID, *catalog.Record](s.memoryEntries)
	if err != nil {
		pool.Close()
		return &catalog.CacheError{Op: "initialize", Err: err}
	}

	s.pool = pool
	s.hot = hot
	s.logger.Info("catalog cache opened", "path", s.path, "expiry", s.expiry)
	return nil
}

// Close closes the database. Later calls return catalog.ErrNotInitialized.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool == nil {
		return nil
	}
	err := s.pool.Close()
	s.pool = nil
	s.hot = nil
	if err != nil {
		return &catalog.CacheError{Op: "close", Err: err}
	}
	s.logger.Info("catalog cache closed", "path", s.path)
	return nil
}

// IsExpired reports whether a record cached at cachedAt is past expiry.
func (s *Store) IsExpired(cachedAt time.Time) bool {
	return s.clock.Now().Sub(cachedAt) > s.expiry
}

// take borrows a connection. The caller must hold mu.
func (s *Store) take(ctx context.Context, op string, id catalog.CatalogID) (*sqlite.Conn, error) {
	if s.pool == nil {
		return nil, &catalog.CacheError{Op: op, ID: id, Err: catalog.ErrNotInitialized}
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, &catalog.CacheError{Op: op, ID: id, Err: err}
	}
	return conn, nil
}

// Put writes e, replacing any existing record for the same id, and stamps
// CachedAt and LastVerifiedAt with the current time.
func (s *Store) Put(ctx context.Context, e Entry) (*catalog.Record, error) {
	if err := e.ID.Validate(); err != nil {
		return nil, &catalog.CacheError{Op: "put", ID: e.ID, Err: err}
	}
	if len(e.Payload) == 0 {
		return nil, &catalog.CacheError{Op: "put", ID: e.ID, Err: fmt.Errorf("empty payload")}
	}

	now := s.clock.Now()
	rec := &catalog.Record{
		ID:             e.ID,
		Name:           e.Name,
		SchemaVersion:  e.SchemaVersion,
		Payload:        append([]byte(nil), e.Payload...),
		Signature:      e.Signature,
		Digest:         Digest(e.Payload),
		Verified:       e.Verified,
		CachedAt:       now,
		LastVerifiedAt: now,
	}
	stored, enc := encodePayload(rec.Payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	conn, err := s.take(ctx, "put", e.ID)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT OR REPLACE INTO catalogs
			(id, name, schema_version, payload, encoding, raw_size, signature,
			 digest, verified, cached_at, last_verified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				string(rec.ID),
				rec.Name,
				rec.SchemaVersion,
				stored,
				int64(enc),
				int64(len(rec.Payload)),
				rec.Signature,
				rec.Digest,
				boolToInt(rec.Verified),
				now.UnixNano(),
				now.UnixNano(),
			},
		})
	if err != nil {
		return nil, &catalog.CacheError{Op: "put", ID: e.ID, Err: err}
	}
	s.hot.Add(rec.ID, rec.Clone())

	s.logger.Debug("catalog cached",
		"catalog_id", rec.ID,
		"verified", rec.Verified,
		"bytes", len(rec.Payload),
		"stored_bytes", len(stored))
	return rec.Clone(), nil
}

// Get returns the record for id. Absent and expired records both yield an
// error matching catalog.ErrNotFound.
func (s *Store) Get(ctx context.Context, id catalog.CatalogID) (*catalog.Record, error) {
	rec, err := s.lookup(ctx, "get", id)
	if err != nil {
		return nil, err
	}
	if s.IsExpired(rec.CachedAt) {
		return nil, &catalog.CacheError{Op: "get", ID: id, Err: catalog.ErrNotFound}
	}
	return rec, nil
}

// Peek returns the record for id whether or not it has expired.
func (s *Store) Peek(ctx context.Context, id catalog.CatalogID) (*catalog.Record, error) {
	return s.lookup(ctx, "peek", id)
}

func (s *Store) lookup(ctx context.Context, op string, id catalog.CatalogID) (*catalog.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pool == nil {
		return nil, &catalog.CacheError{Op: op, ID: id, Err: catalog.ErrNotInitialized}
	}
	if rec, ok := s.hot.Get(id); ok {
		return rec.Clone(), nil
	}

	conn, err := s.take(ctx, op, id)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var (
		rec     *catalog.Record
		scanErr error
	)
	err = sqlitex.Execute(conn, `SELECT `+recordColumns+` FROM catalogs WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{string(id)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				rec, scanErr = scanRecord(stmt)
				return nil
			},
		})
	if err != nil {
		return nil, &catalog.CacheError{Op: op, ID: id, Err: err}
	}
	if scanErr != nil {
		return nil, &catalog.CacheError{Op: op, ID: id, Err: scanErr}
	}
	if rec == nil {
		return nil, &catalog.CacheError{Op: op, ID: id, Err: catalog.ErrNotFound}
	}
	s.hot.Add(id, rec)
	return rec.Clone(), nil
}

const recordColumns = `id, name, schema_version, payload, encoding, raw_size,
	signature, digest, verified, cached_at, last_verified_at`

func scanRecord(stmt *sqlite.Stmt) (*catalog.Record, error) {
	id := catalog.CatalogID(stmt.ColumnText(0))
	stored := make([]byte, stmt.ColumnLen(3))
	stmt.ColumnBytes(3, stored)

	payload, err := decodePayload(stored, payloadEncoding(stmt.ColumnInt64(4)), stmt.ColumnInt64(5))
	if err != nil {
		return nil, fmt.Errorf("decode payload of %s: %w", id, err)
	}
	digest := stmt.ColumnText(7)
	if got := Digest(payload); got != digest {
		return nil, fmt.Errorf("payload of %s is corrupt: digest %s, recorded %s", id, got, digest)
	}

	return &catalog.Record{
		ID:             id,
		Name:           stmt.ColumnText(1),
		SchemaVersion:  stmt.ColumnText(2),
		Payload:        payload,
		Signature:      stmt.ColumnText(6),
		Digest:         digest,
		Verified:       stmt.ColumnInt64(8) != 0,
		CachedAt:       time.Unix(0, stmt.ColumnInt64(9)),
		LastVerifiedAt: time.Unix(0, stmt.ColumnInt64(10)),
	}, nil
}

// GetAll returns every record, expired or not, ordered by id. Records that
// fail to decode are skipped and logged.
func (s *Store) GetAll(ctx context.Context) ([]*catalog.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conn, err := s.take(ctx, "get all", "")
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var records []*catalog.Record
	err = sqlitex.Execute(conn, `SELECT `+recordColumns+` FROM catalogs ORDER BY id`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				rec, err := scanRecord(stmt)
				if err != nil {
					s.logger.Warn("skipping unreadable cache record", "error", err)
					return nil
				}
				records = append(records, rec)
				return nil
			},
		})
	if err != nil {
		return nil, &catalog.CacheError{Op: "get all", Err: err}
	}
	return records, nil
}

// GetValid returns the records that have not expired.
func (s *Store) GetValid(ctx context.Context) ([]*catalog.Record, error) {
	return s.filter(ctx, false)
}

// GetExpired returns the records that have expired but are still stored.
func (s *Store) GetExpired(ctx context.Context) ([]*catalog.Record, error) {
	return s.filter(ctx, true)
}

func (s *Store) filter(ctx context.Context, expired bool) ([]*catalog.Record, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, rec := range all {
		if s.IsExpired(rec.CachedAt) == expired {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ListIDs returns the ids of all stored records, expired or not.
func (s *Store) ListIDs(ctx context.Context) ([]catalog.CatalogID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conn, err := s.take(ctx, "list", "")
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var ids []catalog.CatalogID
	err = sqlitex.Execute(conn, `SELECT id FROM catalogs ORDER BY id`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			ids = append(ids, catalog.CatalogID(stmt.ColumnText(0)))
			return nil
		},
	})
	if err != nil {
		return nil, &catalog.CacheError{Op: "list", Err: err}
	}
	return ids, nil
}

// Remove deletes the record for id. It reports whether a record existed.
func (s *Store) Remove(ctx context.Context, id catalog.CatalogID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, err := s.take(ctx, "remove", id)
	if err != nil {
		return false, err
	}
	defer s.pool.Put(conn)

	if err := sqlitex.Execute(conn, `DELETE FROM catalogs WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{string(id)}}); err != nil {
		return false, &catalog.CacheError{Op: "remove", ID: id, Err: err}
	}
	s.hot.Remove(id)
	return conn.Changes() > 0, nil
}

// Clear deletes every record and the index snapshot. It returns the number
// of catalogs removed.
func (s *Store) Clear(ctx context.Context) (n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, err := s.take(ctx, "clear", "")
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return 0, &catalog.CacheError{Op: "clear", Err: err}
	}
	defer endTransaction(&err)

	if err = sqlitex.Execute(conn, `DELETE FROM catalogs`, nil); err != nil {
		return 0, &catalog.CacheError{Op: "clear", Err: err}
	}
	n = conn.Changes()
	if err = sqlitex.Execute(conn, `DELETE FROM meta`, nil); err != nil {
		return 0, &catalog.CacheError{Op: "clear", Err: err}
	}
	s.hot.Purge()
	s.logger.Info("catalog cache cleared", "removed", n)
	return n, nil
}

// CleanupExpired physically deletes expired records and returns how many
// were removed. Running it again immediately removes nothing.
func (s *Store) CleanupExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, err := s.take(ctx, "cleanup", "")
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	// expired iff now - cached_at > expiry, i.e. cached_at < now - expiry
	threshold := s.clock.Now().Add(-s.expiry).UnixNano()
	if err := sqlitex.Execute(conn, `DELETE FROM catalogs WHERE cached_at < ?`,
		&sqlitex.ExecOptions{Args: []any{threshold}}); err != nil {
		return 0, &catalog.CacheError{Op: "cleanup", Err: err}
	}
	n := conn.Changes()
	if n > 0 {
		s.hot.Purge()
		s.logger.Info("expired catalogs removed", "removed", n)
	}
	return n, nil
}

// TouchVerification records a verification outcome for id without changing
// its payload or CachedAt.
func (s *Store) TouchVerification(ctx context.Context, id catalog.CatalogID, verified bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, err := s.take(ctx, "touch verification", id)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	now := s.clock.Now()
	if err := sqlitex.Execute(conn,
		`UPDATE catalogs SET verified = ?, last_verified_at = ? WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{boolToInt(verified), now.UnixNano(), string(id)}}); err != nil {
		return &catalog.CacheError{Op: "touch verification", ID: id, Err: err}
	}
	if conn.Changes() == 0 {
		return &catalog.CacheError{Op: "touch verification", ID: id, Err: catalog.ErrNotFound}
	}
	if rec, ok := s.hot.Peek(id); ok {
		updated := rec.Clone()
		updated.Verified = verified
		updated.LastVerifiedAt = now
		s.hot.Add(id, updated)
	}
	return nil
}

// Stats summarizes the cache without decoding payloads.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{Path: s.path, Expiry: s.expiry}

	s.mu.RLock()
	defer s.mu.RUnlock()
	conn, err := s.take(ctx, "stats", "")
	if err != nil {
		return st, err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`SELECT verified, cached_at, length(payload), raw_size FROM catalogs`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				cachedAt := time.Unix(0, stmt.ColumnInt64(1))
				st.Total++
				if s.IsExpired(cachedAt) {
					st.Expired++
				} else {
					st.Valid++
				}
				if stmt.ColumnInt64(0) != 0 {
					st.Verified++
				} else {
					st.Unverified++
				}
				if st.Oldest.IsZero() || cachedAt.Before(st.Oldest) {
					st.Oldest = cachedAt
				}
				if cachedAt.After(st.Newest) {
					st.Newest = cachedAt
				}
				st.SizeBytes += stmt.ColumnInt64(2)
				st.RawBytes += stmt.ColumnInt64(3)
				return nil
			},
		})
	if err != nil {
		return st, &catalog.CacheError{Op: "stats", Err: err}
	}
	return st, nil
}

// PutIndex stores idx as the offline index snapshot.
func (s *Store) PutIndex(ctx context.Context, idx *catalog.Index) error {
	data, err := marshalIndex(idx)
	if err != nil {
		return &catalog.CacheError{Op: "put index", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	conn, err := s.take(ctx, "put index", "")
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	if err := sqlitex.Execute(conn, `INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`,
		&sqlitex.ExecOptions{Args: []any{indexKey, data}}); err != nil {
		return &catalog.CacheError{Op: "put index", Err: err}
	}
	return nil
}

// GetIndex returns the stored index snapshot, or an error matching
// catalog.ErrNotFound when none was stored.
func (s *Store) GetIndex(ctx context.Context) (*catalog.Index, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conn, err := s.take(ctx, "get index", "")
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var data []byte
	err = sqlitex.Execute(conn, `SELECT value FROM meta WHERE key = ?`, &sqlitex.ExecOptions{
		Args: []any{indexKey},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			data = make([]byte, stmt.ColumnLen(0))
			stmt.ColumnBytes(0, data)
			return nil
		},
	})
	if err != nil {
		return nil, &catalog.CacheError{Op: "get index", Err: err}
	}
	if data == nil {
		return nil, &catalog.CacheError{Op: "get index", Err: catalog.ErrNotFound}
	}
	idx, err := unmarshalIndex(data)
	if err != nil {
		return nil, &catalog.CacheError{Op: "get index", Err: fmt.Errorf("decode snapshot: %w", err)}
	}
	return idx, nil
}
