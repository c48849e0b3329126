// Package cache implements the document cache (spec.md §4.2): a
// TTL-bounded, URL-keyed store for profiles, provider.json descriptors,
// and map sources, with scheme dispatch across file://, http(s)://,
// data:;base64, and registry-relative (bare id, resolved to "<id>.js"
// under a registry base URL) document references.
//
// Grounded on sf_core::cache::DocumentCache in original_source.
package cache

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	fileURLPrefix  = "file://"
	httpURLPrefix  = "http://"
	httpsURLPrefix = "https://"
	base64Prefix   = "data:;base64,"
)

// FileReader abstracts local filesystem access so tests can substitute an
// in-memory filesystem without touching disk, matching the teacher's
// pattern of injecting an http.Client into client.NewHTTPClient rather
// than dialing directly.
type FileReader func(path string) ([]byte, error)

// DocumentCacheError is the taxonomy of fetch/parse failures a cache
// operation can produce, mirroring sf_core::cache::DocumentCacheError.
type DocumentCacheError struct {
	URL string
	Op  string // "file-load", "http-load", "http-body-read", "post-process"
	Err error
}

func (e *DocumentCacheError) Error() string {
	return fmt.Sprintf("cache: %s %q: %v", e.Op, e.URL, e.Err)
}

func (e *DocumentCacheError) Unwrap() error { return e.Err }

// entry[E] is one cached, post-processed document plus the time it was
// fetched, used to decide whether the cached copy is still fresh.
type entry[E any] struct {
	storedAt time.Time
	data     E
}

// DocumentCache is a generic, TTL-bounded cache keyed by the document's
// logical URL (which may be a bare registry id, a file:// path, an
// http(s):// URL, or a data:;base64, literal). E is the post-processed
// representation (e.g. ProfileCacheEntry, ProviderJsonCacheEntry,
// MapCacheEntry).
type DocumentCache[E any] struct {
	mu            sync.Mutex
	entries       map[string]entry[E]
	cacheDuration time.Duration
	registryURL   *url.URL
	userAgent     string

	httpClient *http.Client
	readFile   FileReader
}

// New creates an empty document cache. httpClient performs http(s)
// fetches; readFile performs file:// fetches.
func New[E any](cacheDuration time.Duration, registryURL *url.URL, userAgent string, httpClient *http.Client, readFile FileReader) *DocumentCache[E] {
	return &DocumentCache[E]{
		entries:       make(map[string]entry[E]),
		cacheDuration: cacheDuration,
		registryURL:   registryURL,
		userAgent:     userAgent,
		httpClient:    httpClient,
		readFile:      readFile,
	}
}

// Get returns the cached, post-processed document for url, if present
// (regardless of freshness — callers that need a fresh copy call Cache
// first).
func (c *DocumentCache[E]) Get(docURL string) (E, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[docURL]
	return e.data, ok
}

// Cache ensures docURL is present and fresh in the cache, fetching and
// running postProcess over the raw bytes if the existing entry (if any)
// is older than the cache duration.
func (c *DocumentCache[E]) Cache(docURL string, postProcess func([]byte) (E, error)) error {
	c.mu.Lock()
	if e, ok := c.entries[docURL]; ok && time.Since(e.storedAt) <= c.cacheDuration {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	data, err := c.fetch(docURL)
	if err != nil {
		return err
	}

	processed, err := postProcess(data)
	if err != nil {
		return &DocumentCacheError{URL: docURL, Op: "post-process", Err: err}
	}

	c.mu.Lock()
	c.entries[docURL] = entry[E]{storedAt: time.Now(), data: processed}
	c.mu.Unlock()
	return nil
}

func (c *DocumentCache[E]) fetch(docURL string) ([]byte, error) {
	switch {
	case strings.HasPrefix(docURL, fileURLPrefix):
		return c.fetchFile(docURL)
	case strings.HasPrefix(docURL, base64Prefix):
		return c.fetchBase64(docURL)
	case strings.HasPrefix(docURL, httpURLPrefix), strings.HasPrefix(docURL, httpsURLPrefix):
		return c.fetchHTTP(docURL)
	default:
		// Bare registry-relative reference: resolve "<id>.js" against the
		// registry base URL (SPEC_FULL.md supplement 2).
		rel, err := url.Parse(docURL + ".js")
		if err != nil {
			return nil, &DocumentCacheError{URL: docURL, Op: "http-load", Err: fmt.Errorf("invalid registry id: %w", err)}
		}
		full := c.registryURL.ResolveReference(rel)
		return c.fetchHTTP(full.String())
	}
}

func (c *DocumentCache[E]) fetchFile(docURL string) ([]byte, error) {
	path := strings.TrimPrefix(docURL, fileURLPrefix)
	if path == docURL {
		return nil, &DocumentCacheError{URL: docURL, Op: "file-load", Err: fmt.Errorf("missing %s prefix", fileURLPrefix)}
	}
	data, err := c.readFile(path)
	if err != nil {
		return nil, &DocumentCacheError{URL: path, Op: "file-load", Err: err}
	}
	return data, nil
}

func (c *DocumentCache[E]) fetchBase64(docURL string) ([]byte, error) {
	raw := strings.TrimPrefix(docURL, base64Prefix)
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, &DocumentCacheError{URL: docURL, Op: "post-process", Err: fmt.Errorf("invalid base64 document: %w", err)}
	}
	return data, nil
}

func (c *DocumentCache[E]) fetchHTTP(fullURL string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, &DocumentCacheError{URL: fullURL, Op: "http-load", Err: err}
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &DocumentCacheError{URL: fullURL, Op: "http-load", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &DocumentCacheError{URL: fullURL, Op: "http-load", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &DocumentCacheError{URL: fullURL, Op: "http-body-read", Err: err}
	}
	return data, nil
}
