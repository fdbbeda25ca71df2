package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// CatalogServer is an httptest server publishing signed catalogs in the
// remote layout: /index.json, /catalogs/<id>.json and /catalogs/<id>.json.sig.
// It counts requests per path and can inject failures.
type CatalogServer struct {
	*httptest.Server

	t    testing.TB
	keys KeyPair

	mu       sync.Mutex
	order    []string
	files    map[string][]byte
	names    map[string]string
	requests map[string]int
	status   map[string]int
	down     bool
	gate     chan struct{}
	inFlight int
	peak     int
}

// NewCatalogServer starts a server signing with keys. It is closed when the
// test ends.
func NewCatalogServer(t testing.TB, keys KeyPair) *CatalogServer {
	t.Helper()
	s := &CatalogServer{
		t:        t,
		keys:     keys,
		files:    make(map[string][]byte),
		names:    make(map[string]string),
		requests: make(map[string]int),
		status:   make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Server.Close)
	return s
}

// Keys returns the signing key pair.
func (s *CatalogServer) Keys() KeyPair { return s.keys }

// AddCatalog publishes a correctly signed catalog for id.
func (s *CatalogServer) AddCatalog(id, name, schema string) []byte {
	s.t.Helper()
	payload := CatalogPayload(s.t, id, name, schema, nil)
	s.Publish(id, name, payload, s.keys.Sign(s.t, payload))
	return payload
}

// Publish serves payload and signature for id as given, so tests can publish
// tampered or mis-signed catalogs.
func (s *CatalogServer) Publish(id, name string, payload []byte, signature string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.names[id]; !ok {
		s.order = append(s.order, id)
	}
	s.names[id] = name
	s.files[CatalogPath(id)] = payload
	s.files[CatalogPath(id)+".sig"] = []byte(signature + "\n")
}

// ListOnly adds id to the index without publishing its files.
func (s *CatalogServer) ListOnly(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.names[id]; !ok {
		s.order = append(s.order, id)
	}
	s.names[id] = name
}

// SetStatus forces path to answer with code. A zero code clears the override.
func (s *CatalogServer) SetStatus(path string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code == 0 {
		delete(s.status, path)
		return
	}
	s.status[path] = code
}

// SetDown makes every request fail with 503 while down is true.
func (s *CatalogServer) SetDown(down bool) {
	s.mu.Lock()
	s.down = down
	s.mu.Unlock()
}

// Hold makes catalog requests block until the returned release function is
// called.
func (s *CatalogServer) Hold() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.gate = nil
			s.mu.Unlock()
			close(gate)
		})
	}
}

// Requests returns how many requests path has received.
func (s *CatalogServer) Requests(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[path]
}

// TotalRequests returns the number of requests received on any path.
func (s *CatalogServer) TotalRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.requests {
		n += c
	}
	return n
}

// InFlight returns the number of catalog or signature requests being served.
func (s *CatalogServer) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// PeakInFlight returns the highest InFlight seen since the server started.
func (s *CatalogServer) PeakInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peak
}

// CatalogPath returns the URL path a catalog is served from.
func CatalogPath(id string) string {
	return "/catalogs/" + id + ".json"
}

func (s *CatalogServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests[r.URL.Path]++
	down := s.down
	code := s.status[r.URL.Path]
	gate := s.gate
	catalogReq := strings.HasPrefix(r.URL.Path, "/catalogs/")
	if catalogReq {
		s.inFlight++
		s.peak = max(s.peak, s.inFlight)
	}
	s.mu.Unlock()

	if catalogReq {
		defer func() {
			s.mu.Lock()
			s.inFlight--
			s.mu.Unlock()
		}()
	}

	if gate != nil && catalogReq {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	if down {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	if code != 0 {
		http.Error(w, http.StatusText(code), code)
		return
	}

	if r.URL.Path == "/index.json" {
		s.serveIndex(w)
		return
	}

	s.mu.Lock()
	body, ok := s.files[r.URL.Path]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func (s *CatalogServer) serveIndex(w http.ResponseWriter) {
	type entry struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		File        string `json:"file"`
		Signature   string `json:"signature"`
		LastUpdated string `json:"last_updated"`
	}
	s.mu.Lock()
	entries := make([]entry, 0, len(s.order))
	for _, id := range s.order {
		entries = append(entries, entry{
			ID:          id,
			Name:        s.names[id],
			File:        "catalogs/" + id + ".json",
			Signature:   "catalogs/" + id + ".json.sig",
			LastUpdated: "2025-01-15T00:00:00Z",
		})
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"schema_version": "1.0",
		"last_updated":   "2025-01-15T00:00:00Z",
		"total_catalogs": len(entries),
		"catalogs":       entries,
	})
}
