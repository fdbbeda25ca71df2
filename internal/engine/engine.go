package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Dezirae-Stark/QuantumTrader-Pro-sub004/internal/cache"
	"github.com/Dezirae-Stark/QuantumTrader-Pro-sub004/internal/catalog"
	"github.com/Dezirae-Stark/QuantumTrader-Pro-sub004/internal/clock"
	"github.com/Dezirae-Stark/QuantumTrader-Pro-sub004/internal/fetch"
	"github.com/Dezirae-Stark/QuantumTrader-Pro-sub004/internal/verify"
)

// DefaultConcurrency bounds batch operations when the caller passes zero.
const DefaultConcurrency = fetch.DefaultConcurrency

// Fetcher downloads catalogs and the index.
type Fetcher interface {
	FetchCatalogPair(ctx context.Context, id catalog.CatalogID) (*fetch.Pair, error)
	FetchEntryPair(ctx context.Context, entry catalog.IndexEntry) (*fetch.Pair, error)
	FetchIndex(ctx context.Context) (*catalog.Index, error)
	BaseURL() string
	Close()
}

// Store persists catalogs.
type Store interface {
	Initialize(ctx context.Context) error
	Close() error
	Path() string
	Expiry() time.Duration
	IsExpired(cachedAt time.Time) bool
	Put(ctx context.Context, e cache.Entry) (*catalog.Record, error)
	Get(ctx context.Context, id catalog.CatalogID) (*catalog.Record, error)
	Peek(ctx context.Context, id catalog.CatalogID) (*catalog.Record, error)
	GetAll(ctx context.Context) ([]*catalog.Record, error)
	ListIDs(ctx context.Context) ([]catalog.CatalogID, error)
	Remove(ctx context.Context, id catalog.CatalogID) (bool, error)
	Clear(ctx context.Context) (int, error)
	CleanupExpired(ctx context.Context) (int, error)
	TouchVerification(ctx context.Context, id catalog.CatalogID, verified bool) error
	Stats(ctx context.Context) (cache.Stats, error)
	PutIndex(ctx context.Context, idx *catalog.Index) error
	GetIndex(ctx context.Context) (*catalog.Index, error)
}

// Options configures an Engine. Fetcher, Verifier and Store are required.
type Options struct {
	Fetcher  Fetcher
	Verifier *verify.Verifier
	Store    Store

	// AllowUnsigned stores catalogs that fail verification, marked
	// unverified, instead of rejecting them. For development hosts only.
	AllowUnsigned bool
	// Concurrency is the default batch bound.
	Concurrency int

	// DiskFree reports free bytes under a path for Status. Optional.
	DiskFree func(ctx context.Context, path string) (uint64, error)
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Engine is the catalog sync orchestrator. It is safe for concurrent use.
type Engine struct {
	fetcher       Fetcher
	verifier      *verify.Verifier
	store         Store
	allowUnsigned bool
	concurrency   int
	diskFree      func(ctx context.Context, path string) (uint64, error)
	clock         clock.Clock
	logger        *slog.Logger

	// inflight coalesces network work per catalog id.
	inflight singleflight.Group

	// lifetime is cancelled by Dispose; shared fetches run under it.
	lifetime context.Context
	cancel   context.CancelFunc

	mu          sync.Mutex
	initialized bool
	disposed    bool
	lastRun     *RunSummary
}

// New creates an engine. Call Initialize before use.
func New(opts Options) (*Engine, error) {
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("engine: Fetcher is required")
	}
	if opts.Verifier == nil {
		return nil, fmt.Errorf("engine: Verifier is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("engine: Store is required")
	}

	e := &Engine{
		fetcher:       opts.Fetcher,
		verifier:      opts.Verifier,
		store:         opts.Store,
		allowUnsigned: opts.AllowUnsigned,
		concurrency:   opts.Concurrency,
		diskFree:      opts.DiskFree,
		clock:         opts.Clock,
		logger:        opts.Logger,
	}
	if e.concurrency <= 0 {
		e.concurrency = DefaultConcurrency
	}
	if e.clock == nil {
		e.clock = clock.Real{}
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	e.lifetime, e.cancel = context.WithCancel(context.Background())
	return e, nil
}

// Initialize opens the store and removes expired records once. Calling it
// again is a no-op.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return &catalog.ServiceError{Op: "initialize", Err: catalog.ErrNotInitialized}
	}
	if e.initialized {
		return nil
	}

	if err := e.store.Initialize(ctx); err != nil {
		return &catalog.ServiceError{Op: "initialize", Err: err}
	}
	removed, err := e.store.CleanupExpired(ctx)
	if err != nil {
		e.logger.Warn("expired catalog cleanup failed", "error", err)
	} else if removed > 0 {
		e.logger.Info("removed expired catalogs", "count", removed)
	}

	if e.allowUnsigned {
		e.logger.Warn("signature enforcement disabled: unverified catalogs will be cached and served")
	}
	e.initialized = true
	return nil
}

// ready returns an error unless the engine is initialized and not disposed.
func (e *Engine) ready(op string, id catalog.CatalogID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized || e.disposed {
		return &catalog.ServiceError{Op: op, ID: id, Err: catalog.ErrNotInitialized}
	}
	return nil
}

// Dispose cancels in-flight work, releases idle connections and closes the
// store. Every later call returns catalog.ErrNotInitialized.
func (e *Engine) Dispose() error {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return nil
	}
	e.disposed = true
	e.mu.Unlock()

	e.cancel()
	e.fetcher.Close()
	if err := e.store.Close(); err != nil {
		return &catalog.ServiceError{Op: "dispose", Err: err}
	}
	e.logger.Debug("catalog engine disposed")
	return nil
}

// trusted reports whether a cached record may be served.
func (e *Engine) trusted(rec *catalog.Record) bool {
	return rec.Verified || e.allowUnsigned
}

// LoadCatalog returns the catalog for id, from the cache when a valid,
// trusted copy exists and from the network otherwise. If the network fetch
// fails, any cached copy is returned with Stale set.
func (e *Engine) LoadCatalog(ctx context.Context, id catalog.CatalogID) (*catalog.Catalog, error) {
	return e.load(ctx, "load catalog", id, nil)
}

func (e *Engine) load(ctx context.Context, op string, id catalog.CatalogID, entry *catalog.IndexEntry) (*catalog.Catalog, error) {
	if err := e.ready(op, id); err != nil {
		return nil, err
	}
	if err := id.Validate(); err != nil {
		return nil, &catalog.ServiceError{Op: op, ID: id, Err: err}
	}

	rec, err := e.store.Get(ctx, id)
	switch {
	case err == nil && e.trusted(rec):
		c, perr := catalog.FromRecord(rec)
		if perr == nil {
			e.logger.Debug("catalog served from cache", "catalog_id", id)
			return c, nil
		}
		e.logger.Warn("cached catalog unreadable, refetching", "catalog_id", id, "error", perr)
	case err == nil:
		e.logger.Debug("cached catalog is unverified, refetching", "catalog_id", id)
	case !catalog.IsNotFound(err):
		e.logger.Warn("cache read failed, refetching", "catalog_id", id, "error", err)
	}

	c, err := e.sync(ctx, id, entry)
	if err == nil {
		return c, nil
	}

	var ferr *fetchError
	if !errors.As(err, &ferr) || ctx.Err() != nil {
		return nil, &catalog.ServiceError{Op: op, ID: id, Err: unwrapFetch(err)}
	}
	return e.fallback(ctx, op, id, ferr.err)
}

// fallback serves any cached copy of id after a failed fetch.
func (e *Engine) fallback(ctx context.Context, op string, id catalog.CatalogID, cause error) (*catalog.Catalog, error) {
	rec, err := e.store.Peek(ctx, id)
	if err != nil {
		return nil, &catalog.ServiceError{Op: op, ID: id, Err: cause}
	}
	if !e.trusted(rec) {
		e.logger.Warn("cached catalog is unverified, not serving it as fallback", "catalog_id", id)
		return nil, &catalog.ServiceError{Op: op, ID: id, Err: cause}
	}
	c, err := catalog.FromRecord(rec)
	if err != nil {
		return nil, &catalog.ServiceError{Op: op, ID: id, Err: cause}
	}
	c.Stale = true
	e.logger.Warn("network unavailable, serving cached catalog",
		"catalog_id", id,
		"cached_at", rec.CachedAt,
		"expired", e.store.IsExpired(rec.CachedAt),
		"error", cause)
	return c, nil
}

// RefreshCatalog fetches, verifies and stores id regardless of the cache.
// It never falls back to a cached copy.
func (e *Engine) RefreshCatalog(ctx context.Context, id catalog.CatalogID) (*catalog.Catalog, error) {
	return e.refresh(ctx, "refresh catalog", id, nil)
}

func (e *Engine) refresh(ctx context.Context, op string, id catalog.CatalogID, entry *catalog.IndexEntry) (*catalog.Catalog, error) {
	if err := e.ready(op, id); err != nil {
		return nil, err
	}
	if err := id.Validate(); err != nil {
		return nil, &catalog.ServiceError{Op: op, ID: id, Err: err}
	}
	c, err := e.sync(ctx, id, entry)
	if err != nil {
		return nil, &catalog.ServiceError{Op: op, ID: id, Err: unwrapFetch(err)}
	}
	return c, nil
}

// fetchError marks a failure of the network step, the only kind that may
// fall back to the cache.
type fetchError struct {
	err error
}

func (e *fetchError) Error() string { return e.err.Error() }
func (e *fetchError) Unwrap() error { return e.err }

func unwrapFetch(err error) error {
	var ferr *fetchError
	if errors.As(err, &ferr) {
		return ferr.err
	}
	return err
}

// sync runs the shared fetch, verify and store step for id. Concurrent
// callers for the same id share one execution; each still returns as soon as
// its own ctx is done.
func (e *Engine) sync(ctx context.Context, id catalog.CatalogID, entry *catalog.IndexEntry) (*catalog.Catalog, error) {
	ch := e.inflight.DoChan(string(id), func() (any, error) {
		return e.fetchVerifyStore(e.lifetime, id, entry)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			e.logger.Debug("joined in-flight fetch", "catalog_id", id)
		}
		return res.Val.(*catalog.Catalog).Clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Engine) fetchVerifyStore(ctx context.Context, id catalog.CatalogID, entry *catalog.IndexEntry) (*catalog.Catalog, error) {
	var (
		pair *fetch.Pair
		err  error
	)
	if entry != nil {
		pair, err = e.fetcher.FetchEntryPair(ctx, *entry)
	} else {
		pair, err = e.fetcher.FetchCatalogPair(ctx, id)
	}
	if err != nil {
		return nil, &fetchError{err: err}
	}

	verified := true
	parsed, err := e.verifier.VerifyAndParse(pair.Payload, pair.Signature)
	if err != nil {
		var verr *catalog.VerificationError
		if !errors.As(err, &verr) {
			return nil, err
		}
		if verr.ID == "" {
			verr.ID = id
		}
		if !e.allowUnsigned {
			e.logger.Warn("catalog rejected", "catalog_id", id, "url", pair.CatalogURL, "error", err)
			return nil, err
		}
		e.logger.Warn("catalog failed verification, storing unverified", "catalog_id", id, "error", err)
		parsed, err = e.verifier.ParseUnverified(pair.Payload, pair.Signature)
		if err != nil {
			return nil, err
		}
		verified = false
	}
	if parsed.ID != "" && parsed.ID != id {
		return nil, &catalog.VerificationError{
			ID:     id,
			Reason: fmt.Sprintf("payload declares catalog_id %q", parsed.ID),
		}
	}

	changed := true
	if prev, err := e.store.Peek(ctx, id); err == nil {
		changed = prev.Digest != cache.Digest(pair.Payload)
	}

	name := parsed.Name
	if name == "" && entry != nil {
		name = entry.Name
	}
	rec, err := e.store.Put(ctx, cache.Entry{
		ID:            id,
		Name:          name,
		SchemaVersion: parsed.SchemaVersion,
		Payload:       pair.Payload,
		Signature:     pair.Signature,
		Verified:      verified,
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("catalog synced",
		"catalog_id", id,
		"schema_version", rec.SchemaVersion,
		"verified", verified,
		"changed", changed)
	return catalog.FromRecord(rec)
}

// GetIndex fetches the index manifest and keeps a local snapshot of it. When
// the fetch fails the snapshot is returned with Stale set.
func (e *Engine) GetIndex(ctx context.Context) (*catalog.Index, error) {
	if err := e.ready("get index", ""); err != nil {
		return nil, err
	}
	idx, err := e.fetcher.FetchIndex(ctx)
	if err == nil {
		if perr := e.store.PutIndex(ctx, idx); perr != nil {
			e.logger.Warn("index snapshot not saved", "error", perr)
		}
		return idx, nil
	}
	if ctx.Err() != nil {
		return nil, &catalog.ServiceError{Op: "get index", Err: err}
	}

	snapshot, serr := e.store.GetIndex(ctx)
	if serr != nil {
		return nil, &catalog.ServiceError{Op: "get index", Err: err}
	}
	snapshot.Stale = true
	e.logger.Warn("index unavailable, serving snapshot",
		"fetched_at", snapshot.FetchedAt,
		"error", err)
	return snapshot, nil
}

// ListCachedIDs returns the ids of every stored catalog, expired or not.
func (e *Engine) ListCachedIDs(ctx context.Context) ([]catalog.CatalogID, error) {
	if err := e.ready("list cached", ""); err != nil {
		return nil, err
	}
	ids, err := e.store.ListIDs(ctx)
	if err != nil {
		return nil, &catalog.ServiceError{Op: "list cached", Err: err}
	}
	return ids, nil
}

// IsCached reports whether a valid, unexpired copy of id is stored.
func (e *Engine) IsCached(ctx context.Context, id catalog.CatalogID) (bool, error) {
	if err := e.ready("is cached", id); err != nil {
		return false, err
	}
	_, err := e.store.Get(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case catalog.IsNotFound(err):
		return false, nil
	default:
		return false, &catalog.ServiceError{Op: "is cached", ID: id, Err: err}
	}
}

// ClearCache removes every cached catalog and the index snapshot.
func (e *Engine) ClearCache(ctx context.Context) (int, error) {
	if err := e.ready("clear cache", ""); err != nil {
		return 0, err
	}
	n, err := e.store.Clear(ctx)
	if err != nil {
		return 0, &catalog.ServiceError{Op: "clear cache", Err: err}
	}
	return n, nil
}

// RemoveCached evicts id. It reports whether a copy existed.
func (e *Engine) RemoveCached(ctx context.Context, id catalog.CatalogID) (bool, error) {
	if err := e.ready("remove cached", id); err != nil {
		return false, err
	}
	removed, err := e.store.Remove(ctx, id)
	if err != nil {
		return false, &catalog.ServiceError{Op: "remove cached", ID: id, Err: err}
	}
	return removed, nil
}

// CleanupExpired removes expired catalogs from the store.
func (e *Engine) CleanupExpired(ctx context.Context) (int, error) {
	if err := e.ready("cleanup", ""); err != nil {
		return 0, err
	}
	n, err := e.store.CleanupExpired(ctx)
	if err != nil {
		return 0, &catalog.ServiceError{Op: "cleanup", Err: err}
	}
	return n, nil
}

// CacheStats summarizes the store.
func (e *Engine) CacheStats(ctx context.Context) (cache.Stats, error) {
	if err := e.ready("cache stats", ""); err != nil {
		return cache.Stats{}, err
	}
	st, err := e.store.Stats(ctx)
	if err != nil {
		return st, &catalog.ServiceError{Op: "cache stats", Err: err}
	}
	return st, nil
}

// CachedInfo summarizes one stored catalog without its payload.
type CachedInfo struct {
	ID             catalog.CatalogID `json:"id" yaml:"id"`
	Name           string            `json:"name" yaml:"name"`
	SchemaVersion  string            `json:"schema_version" yaml:"schema_version"`
	Verified       bool              `json:"verified" yaml:"verified"`
	Expired        bool              `json:"expired" yaml:"expired"`
	CachedAt       time.Time         `json:"cached_at" yaml:"cached_at"`
	LastVerifiedAt time.Time         `json:"last_verified_at" yaml:"last_verified_at"`
	Digest         string            `json:"digest" yaml:"digest"`
	Size           int               `json:"size" yaml:"size"`
}

// ListCached describes every stored catalog, expired or not, ordered by id.
func (e *Engine) ListCached(ctx context.Context) ([]CachedInfo, error) {
	if err := e.ready("list cached", ""); err != nil {
		return nil, err
	}
	records, err := e.store.GetAll(ctx)
	if err != nil {
		return nil, &catalog.ServiceError{Op: "list cached", Err: err}
	}
	out := make([]CachedInfo, 0, len(records))
	for _, rec := range records {
		out = append(out, CachedInfo{
			ID:             rec.ID,
			Name:           rec.Name,
			SchemaVersion:  rec.SchemaVersion,
			Verified:       rec.Verified,
			Expired:        e.store.IsExpired(rec.CachedAt),
			CachedAt:       rec.CachedAt,
			LastVerifiedAt: rec.LastVerifiedAt,
			Digest:         rec.Digest,
			Size:           len(rec.Payload),
		})
	}
	slices.SortFunc(out, func(a, b CachedInfo) int { return strings.Compare(string(a.ID), string(b.ID)) })
	return out, nil
}
