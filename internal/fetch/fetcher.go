package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/Dezirae-Stark/QuantumTrader-Pro-sub004/internal/catalog"
	"github.com/Dezirae-Stark/QuantumTrader-Pro-sub004/internal/clock"
)

const (
	// DefaultTimeout bounds a single request attempt
	DefaultTimeout = 10 * time.Second
	// DefaultMaxAttempts is the number of tries for transient failures
	DefaultMaxAttempts = 3
	// DefaultInitialBackoff is the wait before the first retry
	DefaultInitialBackoff = 500 * time.Millisecond
	// DefaultMaxBackoff caps the wait between retries
	DefaultMaxBackoff = 8 * time.Second
	// DefaultConcurrency bounds batch fetches
	DefaultConcurrency = 3
	// DefaultMaxBodyBytes caps a response body
	DefaultMaxBodyBytes = 4 << 20
	// DefaultIndexPath is the index location relative to the base URL
	DefaultIndexPath = "index.json"
	// DefaultCatalogDir holds catalog documents relative to the base URL
	DefaultCatalogDir = "catalogs"
	// DefaultSignatureSuffix is appended to a catalog URL to find its signature
	DefaultSignatureSuffix = ".sig"
	// DefaultUserAgent is the User-Agent header sent with requests
	DefaultUserAgent = "catalogsync/dev"
)

// Config configures a Fetcher. Zero values select the defaults.
type Config struct {
	BaseURL         string
	IndexPath       string
	CatalogDir      string
	SignatureSuffix string

	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxBodyBytes   int64
	UserAgent      string

	// Client overrides the HTTP client. Its Timeout is ignored; attempts are
	// bounded by Timeout instead.
	Client *http.Client
	Clock  clock.Clock
	Logger *slog.Logger
}

// Fetcher downloads remote resources. It keeps no state beyond its HTTP
// client and retry settings and is safe for concurrent use.
type Fetcher struct {
	client *http.Client
	base   *url.URL
	clock  clock.Clock
	logger *slog.Logger

	indexPath       string
	catalogDir      string
	signatureSuffix string
	timeout         time.Duration
	maxAttempts     int
	initialBackoff  time.Duration
	maxBackoff      time.Duration
	maxBodyBytes    int64
	userAgent       string
}

// New creates a fetcher for the catalog host at cfg.BaseURL.
func New(cfg Config) (*Fetcher, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", cfg.BaseURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("base url %q: missing host", cfg.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	f := &Fetcher{
		client:          cfg.Client,
		base:            base,
		clock:           cfg.Clock,
		logger:          cfg.Logger,
		indexPath:       withDefault(cfg.IndexPath, DefaultIndexPath),
		catalogDir:      withDefault(cfg.CatalogDir, DefaultCatalogDir),
		signatureSuffix: withDefault(cfg.SignatureSuffix, DefaultSignatureSuffix),
		timeout:         cfg.Timeout,
		maxAttempts:     cfg.MaxAttempts,
		initialBackoff:  cfg.InitialBackoff,
		maxBackoff:      cfg.MaxBackoff,
		maxBodyBytes:    cfg.MaxBodyBytes,
		userAgent:       withDefault(cfg.UserAgent, DefaultUserAgent),
	}
	if f.client == nil {
		f.client = &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Allow up to 10 redirects
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		}
	}
	if f.clock == nil {
		f.clock = clock.Real{}
	}
	if f.logger == nil {
		f.logger = slog.New(slog.DiscardHandler)
	}
	if f.timeout <= 0 {
		f.timeout = DefaultTimeout
	}
	if f.maxAttempts <= 0 {
		f.maxAttempts = DefaultMaxAttempts
	}
	if f.initialBackoff <= 0 {
		f.initialBackoff = DefaultInitialBackoff
	}
	if f.maxBackoff <= 0 {
		f.maxBackoff = DefaultMaxBackoff
	}
	if f.maxBackoff < f.initialBackoff {
		f.maxBackoff = f.initialBackoff
	}
	if f.maxBodyBytes <= 0 {
		f.maxBodyBytes = DefaultMaxBodyBytes
	}
	return f, nil
}

func withDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// BaseURL returns the normalized base URL.
func (f *Fetcher) BaseURL() string { return f.base.String() }

// IndexURL returns the index manifest URL.
func (f *Fetcher) IndexURL() string {
	return f.base.ResolveReference(&url.URL{Path: f.indexPath}).String()
}

// CatalogURL returns the URL of the catalog document for id.
func (f *Fetcher) CatalogURL(id catalog.CatalogID) (string, error) {
	if err := id.Validate(); err != nil {
		return "", err
	}
	ref := &url.URL{Path: path.Join(f.catalogDir, string(id)+".json")}
	return f.base.ResolveReference(ref).String(), nil
}

// SignatureURL returns the URL of the detached signature for id.
func (f *Fetcher) SignatureURL(id catalog.CatalogID) (string, error) {
	u, err := f.CatalogURL(id)
	if err != nil {
		return "", err
	}
	return u + f.signatureSuffix, nil
}

// resolve resolves an index-relative path and keeps it on the catalog host.
func (f *Fetcher) resolve(p string) (string, error) {
	ref, err := url.Parse(p)
	if err != nil {
		return "", fmt.Errorf("parse path %q: %w", p, err)
	}
	u := f.base.ResolveReference(ref)
	if u.Scheme != f.base.Scheme || u.Host != f.base.Host {
		return "", fmt.Errorf("path %q resolves outside the catalog host", p)
	}
	return u.String(), nil
}

// Close releases idle HTTP connections.
func (f *Fetcher) Close() {
	f.client.CloseIdleConnections()
}

// FetchResource downloads rawURL, retrying transient failures.
func (f *Fetcher) FetchResource(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		if err == nil {
			err = fmt.Errorf("unsupported url")
		}
		return nil, &catalog.NetworkError{URL: rawURL, Err: err}
	}

	attempt := 0
	op := func() ([]byte, error) {
		attempt++
		body, err := f.fetchOnce(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		if !catalog.IsTransient(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     f.initialBackoff,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         f.maxBackoff,
	}
	body, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(f.maxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			f.logger.Warn("retrying fetch",
				"url", rawURL,
				"attempt", attempt,
				"max_attempts", f.maxAttempts,
				"wait", wait,
				"error", err)
		}),
	)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Unwrap()
		}
		return nil, err
	}
	f.logger.Debug("fetched resource", "url", rawURL, "bytes", len(body), "attempts", attempt)
	return body, nil
}

// fetchOnce performs a single attempt bounded by the per-attempt timeout.
func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &catalog.NetworkError{URL: rawURL, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json, text/plain")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &catalog.NetworkError{URL: rawURL, Transient: true, Err: fmt.Errorf("execute request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &catalog.NetworkError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Transient:  transientStatus(resp.StatusCode),
			Err:        fmt.Errorf("unexpected status code: %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		return nil, &catalog.NetworkError{URL: rawURL, Transient: true, Err: fmt.Errorf("read response body: %w", err)}
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, &catalog.NetworkError{URL: rawURL, Err: fmt.Errorf("response body exceeds %d bytes", f.maxBodyBytes)}
	}
	return body, nil
}

func transientStatus(code int) bool {
	switch {
	case code >= 500:
		return true
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

// Pair is a catalog document with its detached signature.
type Pair struct {
	ID           catalog.CatalogID
	Payload      []byte
	Signature    string // whitespace trimmed
	CatalogURL   string
	SignatureURL string
}

// FetchCatalogPair downloads the catalog for id and its signature.
func (f *Fetcher) FetchCatalogPair(ctx context.Context, id catalog.CatalogID) (*Pair, error) {
	catalogURL, err := f.CatalogURL(id)
	if err != nil {
		return nil, fmt.Errorf("catalog url: %w", err)
	}
	return f.fetchPair(ctx, id, catalogURL, catalogURL+f.signatureSuffix)
}

// FetchEntryPair downloads the catalog described by an index entry, using the
// entry's file and signature paths when present.
func (f *Fetcher) FetchEntryPair(ctx context.Context, entry catalog.IndexEntry) (*Pair, error) {
	if entry.File == "" {
		return f.FetchCatalogPair(ctx, entry.ID)
	}
	if err := entry.ID.Validate(); err != nil {
		return nil, fmt.Errorf("catalog url: %w", err)
	}
	catalogURL, err := f.resolve(entry.File)
	if err != nil {
		return nil, &catalog.NetworkError{URL: entry.File, Err: err}
	}
	signatureURL := catalogURL + f.signatureSuffix
	if entry.Signature != "" {
		signatureURL, err = f.resolve(entry.Signature)
		if err != nil {
			return nil, &catalog.NetworkError{URL: entry.Signature, Err: err}
		}
	}
	return f.fetchPair(ctx, entry.ID, catalogURL, signatureURL)
}

func (f *Fetcher) fetchPair(ctx context.Context, id catalog.CatalogID, catalogURL, signatureURL string) (*Pair, error) {
	payload, err := f.FetchResource(ctx, catalogURL)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog %s: %w", id, err)
	}
	sig, err := f.FetchResource(ctx, signatureURL)
	if err != nil {
		return nil, fmt.Errorf("fetch signature %s: %w", id, err)
	}
	return &Pair{
		ID:           id,
		Payload:      payload,
		Signature:    strings.TrimSpace(string(sig)),
		CatalogURL:   catalogURL,
		SignatureURL: signatureURL,
	}, nil
}

// FetchIndex downloads and decodes the index manifest.
func (f *Fetcher) FetchIndex(ctx context.Context) (*catalog.Index, error) {
	body, err := f.FetchResource(ctx, f.IndexURL())
	if err != nil {
		return nil, fmt.Errorf("fetch index: %w", err)
	}
	var idx catalog.Index
	if err := json.Unmarshal(body, &idx); err != nil {
		return nil, &catalog.ParseError{Resource: "index", Err: err}
	}
	if idx.TotalCatalogs != 0 && idx.TotalCatalogs != len(idx.Catalogs) {
		f.logger.Warn("index total_catalogs disagrees with catalog list",
			"total_catalogs", idx.TotalCatalogs,
			"listed", len(idx.Catalogs))
	}
	idx.FetchedAt = f.clock.Now()
	return &idx, nil
}

// Result is the outcome of fetching one index entry.
type Result struct {
	Entry catalog.IndexEntry
	Pair  *Pair
	Err   error
}

// FetchAllCatalogs downloads the index and then every catalog it lists, with
// at most concurrency fetches in flight. Per-entry failures are reported in
// the results; only an index failure fails the call. Results follow index
// order.
func (f *Fetcher) FetchAllCatalogs(ctx context.Context, concurrency int) ([]Result, error) {
	idx, err := f.FetchIndex(ctx)
	if err != nil {
		return nil, err
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	results := make([]Result, len(idx.Catalogs))
	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, entry := range idx.Catalogs {
		results[i].Entry = entry
		g.Go(func() error {
			pair, err := f.FetchEntryPair(ctx, entry)
			results[i].Pair = pair
			results[i].Err = err
			if err != nil {
				f.logger.Warn("catalog fetch failed", "catalog_id", entry.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}
