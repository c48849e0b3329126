// Package hostio implements the test-only reference host: a concrete
// mapstd.Fetcher backed by a real *http.Client, plus a file-open host
// function for file:// document references. spec.md never mandates a
// specific host implementation (hosts are opaque callers across the ABI),
// but cmd/hostsim needs a real one to drive the core natively.
//
// Grounded on the teacher's client.NewHTTPClient: same pooled-transport,
// cookie-jar, keep-alive tuning, generalized from "one client per session"
// (the teacher's ~500-2000 concurrent sessions) to "one client per host
// process" (the core issues HTTP calls strictly sequentially, spec.md §5).
package hostio

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"time"
)

// Config tunes the reference host's HTTP transport.
type Config struct {
	// Proxy is an optional proxy URL string, e.g. "http://host:port".
	// Empty means direct connections.
	Proxy string

	// Timeout is the end-to-end timeout for a single HTTP request/response.
	// Zero means no timeout, matching the core's "host implementation owns
	// cancellation & timeouts" stance (spec.md §5).
	Timeout time.Duration

	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
}

// DefaultConfig returns transport tuning sized for one core process issuing
// requests sequentially against a handful of provider origins.
func DefaultConfig() Config {
	return Config{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		MaxConnsPerHost:     40,
	}
}

// ReferenceHost is the test/native host-side HTTP implementation, wired
// into internal/mapstd as a Fetcher.
type ReferenceHost struct {
	client *http.Client
}

// NewReferenceHost constructs a ReferenceHost with its own dedicated
// transport and cookie jar (never shared with any other ReferenceHost, the
// same isolation the teacher gave each Session).
func NewReferenceHost(cfg Config) (*ReferenceHost, error) {
	transport, err := buildTransport(cfg)
	if err != nil {
		return nil, err
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("hostio: create cookie jar: %w", err)
	}

	return &ReferenceHost{
		client: &http.Client{
			Transport: transport,
			Jar:       jar,
			Timeout:   cfg.Timeout,
		},
	}, nil
}

// buildTransport creates an *http.Transport with pooled-connection tuning.
// If cfg.Proxy is non-empty it is parsed and attached to the transport.
func buildTransport(cfg Config) (*http.Transport, error) {
	t := &http.Transport{
		DisableKeepAlives:     false,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("hostio: parse proxy URL %q: %w", cfg.Proxy, err)
		}
		t.Proxy = http.ProxyURL(proxyURL)
	}

	return t, nil
}

// Fetch implements mapstd.Fetcher: issue req and return its response,
// exactly as an HTTPCallHead invocation expects.
func (h *ReferenceHost) Fetch(req *http.Request) (*http.Response, error) {
	return h.client.Do(req)
}

// HTTPClient exposes the underlying *http.Client, so a native host
// (cmd/hostsim) can hand the same pooled transport to internal/core.Setup
// that internal/mapstd's Fetcher uses, rather than standing up a second,
// unrelated client.
func (h *ReferenceHost) HTTPClient() *http.Client {
	return h.client
}

// Close releases idle connections held by the reference host's transport.
func (h *ReferenceHost) Close() {
	if t, ok := h.client.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
}

// OpenFile is the file-open host function backing file:// document
// references and cache.FileReader: a thin, named wrapper over os.ReadFile
// so caches and tests have a single, mockable seam instead of calling the
// standard library directly (a real host exposes file access as one of its
// capabilities, not just HTTP).
func OpenFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path originates from the provider/profile document, a trusted local reference
	if err != nil {
		return nil, fmt.Errorf("hostio: open %q: %w", path, err)
	}
	return data, nil
}
