package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Dezirae-Stark/QuantumTrader-Pro-sub004/internal/catalog"
	"github.com/Dezirae-Stark/QuantumTrader-Pro-sub004/internal/verify"
)

// BatchResult collects the per-catalog outcomes of a batch run. Entries are
// independent: one failure never affects another.
type BatchResult struct {
	RunID  string
	Loaded map[catalog.CatalogID]*catalog.Catalog
	Failed map[catalog.CatalogID]error
	// IndexStale is set when the run used the local index snapshot.
	IndexStale bool
}

// StaleCount returns how many loaded catalogs were served from an expired
// or fallback cache entry.
func (r *BatchResult) StaleCount() int {
	n := 0
	for _, c := range r.Loaded {
		if c.Stale {
			n++
		}
	}
	return n
}

// RunSummary describes the most recent batch run.
type RunSummary struct {
	RunID      string    `json:"run_id" yaml:"run_id"`
	Op         string    `json:"op" yaml:"op"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
	Loaded     int       `json:"loaded" yaml:"loaded"`
	Stale      int       `json:"stale" yaml:"stale"`
	Failed     int       `json:"failed" yaml:"failed"`
}

// LoadAll loads every catalog in the index with at most concurrency catalogs
// in flight. With forceRefresh every catalog is refetched; otherwise the
// cache is used where valid. Per-catalog failures are recorded in the result
// and never fail the call; only an unavailable index does.
func (e *Engine) LoadAll(ctx context.Context, concurrency int, forceRefresh bool) (*BatchResult, error) {
	op := batchOp("all", forceRefresh)
	if err := e.ready(op, ""); err != nil {
		return nil, err
	}

	// Dispose cancels the batch.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(e.lifetime, cancel)
	defer stop()

	result := newBatchResult()
	logger := e.logger.With("run_id", result.RunID)

	idx, err := e.GetIndex(ctx)
	if err != nil {
		logger.Error("batch aborted: index unavailable", "op", op, "error", err)
		return nil, err
	}
	result.IndexStale = idx.Stale

	items := make([]batchItem, 0, len(idx.Catalogs))
	for _, entry := range idx.Catalogs {
		items = append(items, batchItem{id: entry.ID, entry: &entry})
	}
	e.runBatch(ctx, op, result, items, concurrency, forceRefresh)
	return result, nil
}

// RefreshAll refetches every catalog in the index.
func (e *Engine) RefreshAll(ctx context.Context, concurrency int) (*BatchResult, error) {
	return e.LoadAll(ctx, concurrency, true)
}

// LoadMany loads the given ids with at most concurrency in flight, cache
// first unless forceRefresh is set. Like LoadAll it is cancelled by Dispose
// and recorded as the last run.
func (e *Engine) LoadMany(ctx context.Context, ids []catalog.CatalogID, concurrency int, forceRefresh bool) (*BatchResult, error) {
	op := batchOp("many", forceRefresh)
	if err := e.ready(op, ""); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(e.lifetime, cancel)
	defer stop()

	items := make([]batchItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, batchItem{id: id})
	}
	result := newBatchResult()
	e.runBatch(ctx, op, result, items, concurrency, forceRefresh)
	return result, nil
}

func batchOp(scope string, forceRefresh bool) string {
	if forceRefresh {
		return "refresh " + scope
	}
	return "load " + scope
}

func newBatchResult() *BatchResult {
	return &BatchResult{
		RunID:  uuid.NewString(),
		Loaded: make(map[catalog.CatalogID]*catalog.Catalog),
		Failed: make(map[catalog.CatalogID]error),
	}
}

// batchItem is one catalog of a run. entry is nil when the id did not come
// from the index.
type batchItem struct {
	id    catalog.CatalogID
	entry *catalog.IndexEntry
}

// runBatch loads items into result with at most concurrency in flight and
// records the run summary.
func (e *Engine) runBatch(ctx context.Context, op string, result *BatchResult, items []batchItem, concurrency int, forceRefresh bool) {
	if concurrency <= 0 {
		concurrency = e.concurrency
	}
	started := e.clock.Now()
	logger := e.logger.With("run_id", result.RunID)
	logger.Info("batch started", "op", op, "catalogs", len(items), "concurrency", concurrency)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(concurrency)
	for _, item := range items {
		g.Go(func() error {
			var (
				c   *catalog.Catalog
				err error
			)
			if forceRefresh {
				c, err = e.refresh(ctx, op, item.id, item.entry)
			} else {
				c, err = e.load(ctx, op, item.id, item.entry)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed[item.id] = err
				logger.Warn("catalog failed", "catalog_id", item.id, "error", err)
				return nil
			}
			result.Loaded[item.id] = c
			return nil
		})
	}
	_ = g.Wait()

	summary := &RunSummary{
		RunID:      result.RunID,
		Op:         op,
		StartedAt:  started,
		FinishedAt: e.clock.Now(),
		Loaded:     len(result.Loaded),
		Stale:      result.StaleCount(),
		Failed:     len(result.Failed),
	}
	e.mu.Lock()
	e.lastRun = summary
	e.mu.Unlock()

	logger.Info("batch finished",
		"op", op,
		"loaded", summary.Loaded,
		"stale", summary.Stale,
		"failed", summary.Failed,
		"duration", summary.FinishedAt.Sub(summary.StartedAt))
}

// ReverifyResult reports a re-verification pass over the cache.
type ReverifyResult struct {
	Checked  int                 `json:"checked" yaml:"checked"`
	Verified int                 `json:"verified" yaml:"verified"`
	Failed   []catalog.CatalogID `json:"failed,omitempty" yaml:"failed,omitempty"`
}

// Reverify checks every cached catalog against the current trust anchor
// without downloading anything, and records each outcome in the store.
func (e *Engine) Reverify(ctx context.Context) (*ReverifyResult, error) {
	if err := e.ready("reverify", ""); err != nil {
		return nil, err
	}
	records, err := e.store.GetAll(ctx)
	if err != nil {
		return nil, &catalog.ServiceError{Op: "reverify", Err: err}
	}

	items := make(map[catalog.CatalogID]verify.Signed, len(records))
	wasVerified := make(map[catalog.CatalogID]bool, len(records))
	for _, rec := range records {
		items[rec.ID] = verify.Signed{Payload: rec.Payload, Signature: rec.Signature}
		wasVerified[rec.ID] = rec.Verified
	}
	outcomes := e.verifier.VerifyBatch(ctx, items)
	if err := ctx.Err(); err != nil {
		return nil, &catalog.ServiceError{Op: "reverify", Err: err}
	}

	result := &ReverifyResult{Checked: len(outcomes)}
	for _, rec := range records {
		ok := outcomes[rec.ID]
		if err := e.store.TouchVerification(ctx, rec.ID, ok); err != nil {
			return nil, &catalog.ServiceError{Op: "reverify", ID: rec.ID, Err: err}
		}
		if ok {
			result.Verified++
			continue
		}
		result.Failed = append(result.Failed, rec.ID)
		if wasVerified[rec.ID] {
			e.logger.Warn("cached catalog no longer verifies", "catalog_id", rec.ID)
		}
	}
	e.logger.Info("reverification finished",
		"checked", result.Checked,
		"verified", result.Verified,
		"failed", len(result.Failed))
	return result, nil
}
