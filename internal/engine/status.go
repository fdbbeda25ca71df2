package engine

import (
	"context"
	"time"

	"github.com/Dezirae-Stark/QuantumTrader-Pro-sub004/internal/cache"
	"github.com/Dezirae-Stark/QuantumTrader-Pro-sub004/internal/verify"
)

// KeyInfo identifies one trusted key.
type KeyInfo struct {
	Algorithm   string `json:"algorithm" yaml:"algorithm"`
	Fingerprint string `json:"fingerprint" yaml:"fingerprint"`
}

// Status is a snapshot of the engine for diagnostics.
type Status struct {
	Initialized       bool        `json:"initialized" yaml:"initialized"`
	BaseURL           string      `json:"base_url" yaml:"base_url"`
	Canonicalization  string      `json:"canonicalization" yaml:"canonicalization"`
	MinSchema         string      `json:"min_schema" yaml:"min_schema"`
	RequireSignatures bool        `json:"require_signatures" yaml:"require_signatures"`
	TrustedKeys       []KeyInfo   `json:"trusted_keys" yaml:"trusted_keys"`
	CacheExpiry       string      `json:"cache_expiry" yaml:"cache_expiry"`
	Cache             cache.Stats `json:"cache" yaml:"cache"`
	DiskFreeBytes     uint64      `json:"disk_free_bytes,omitempty" yaml:"disk_free_bytes,omitempty"`
	IndexFetchedAt    time.Time   `json:"index_fetched_at,omitzero" yaml:"index_fetched_at,omitempty"`
	LastRun           *RunSummary `json:"last_run,omitempty" yaml:"last_run,omitempty"`
}

// Status reports configuration, trust and cache state.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	if err := e.ready("status", ""); err != nil {
		return nil, err
	}

	st := &Status{
		Initialized:       true,
		BaseURL:           e.fetcher.BaseURL(),
		Canonicalization:  verify.CanonicalizationScheme,
		MinSchema:         e.verifier.MinSchema(),
		RequireSignatures: !e.allowUnsigned,
		CacheExpiry:       e.store.Expiry().String(),
	}
	for _, k := range e.verifier.Keys() {
		st.TrustedKeys = append(st.TrustedKeys, KeyInfo{Algorithm: k.Algorithm(), Fingerprint: k.Fingerprint()})
	}

	stats, err := e.CacheStats(ctx)
	if err != nil {
		return nil, err
	}
	st.Cache = stats

	if e.diskFree != nil {
		if free, err := e.diskFree(ctx, e.store.Path()); err == nil {
			st.DiskFreeBytes = free
		} else {
			e.logger.Debug("disk usage unavailable", "error", err)
		}
	}
	if idx, err := e.store.GetIndex(ctx); err == nil {
		st.IndexFetchedAt = idx.FetchedAt
	}

	e.mu.Lock()
	if e.lastRun != nil {
		run := *e.lastRun
		st.LastRun = &run
	}
	e.mu.Unlock()
	return st, nil
}
