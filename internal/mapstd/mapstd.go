// Package mapstd implements the per-perform map runtime state exposed
// under __ffi.unstable.* to the running JS map: in-flight HTTP request and
// stream handle tables, the single-use context/output slots, and the
// response-body peeking behind the transaction-logging setting. Grounded on
// core/core/src/sf_core/map_std_impl/mod.rs.
package mapstd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/oneclientcore/runtime/internal/hostvalue"
	"github.com/oneclientcore/runtime/internal/security"
)

// ErrAlreadyTaken is returned by TakeContext when the map context has
// already been consumed this perform.
var ErrAlreadyTaken = errors.New("mapstd: context already taken")

// ErrAlreadySet is returned by SetOutputSuccess/SetOutputFailure when the
// map has already set its output this perform.
var ErrAlreadySet = errors.New("mapstd: output already set")

// ErrInvalidHandle is returned by the stream/request operations when the
// given handle is unknown.
var ErrInvalidHandle = errors.New("mapstd: invalid handle")

// Fetcher performs an outbound HTTP request on behalf of the map. Kept as
// an interface so internal/hostio's reference implementation and any test
// double can be swapped in without mapstd depending on net/http transport
// details beyond the standard *http.Response shape.
type Fetcher interface {
	Fetch(req *http.Request) (*http.Response, error)
}

// Config mirrors MapStdImplConfig: whether HTTP response bodies are wrapped
// in a PeekableStream, and how many body bytes to peek when they are.
// MapStd holds no logger, so the peeked bytes are not logged.
type Config struct {
	LogHTTPTransactions            bool
	LogHTTPTransactionsBodyMaxSize int
}

// inFlightRequest is a prepared-but-not-yet-issued HTTP call. http_call
// resolves security and stores the request; http_call_head performs it.
type inFlightRequest struct {
	req *http.Request
}

// outcome is the map's final Ok(MapValue) | Err(MapValue) result.
type outcome struct {
	value   hostvalue.Value
	success bool
}

// MapStd owns everything a single perform's running map can reach via
// __ffi.unstable.*. Not safe for concurrent use — spec.md §5 guarantees a
// perform is single-threaded.
type MapStd struct {
	httpRequests *hostvalue.HandleMap[inFlightRequest]
	streams      *hostvalue.HandleMap[io.ReadWriteCloser]

	security *security.SecurityMap
	context  *hostvalue.Value
	output   *outcome

	fetcher Fetcher
	config  Config
}

// New creates an empty MapStd. Call SetContext once before the map runs.
func New(fetcher Fetcher, config Config) *MapStd {
	return &MapStd{
		httpRequests: hostvalue.NewHandleMap[inFlightRequest](),
		streams:      hostvalue.NewHandleMap[io.ReadWriteCloser](),
		fetcher:      fetcher,
		config:       config,
	}
}

// SetContext installs the map's input context and resolved security map.
// May only be called once per perform.
func (m *MapStd) SetContext(context hostvalue.Value, sec *security.SecurityMap) {
	if m.context != nil {
		panic("mapstd: SetContext called twice in one perform")
	}
	m.context = &context
	m.security = sec
}

// TakeOutput returns and clears the map's set output, if any.
func (m *MapStd) TakeOutput() (hostvalue.Value, bool, bool) {
	if m.output == nil {
		return hostvalue.None, false, false
	}
	o := m.output
	m.output = nil
	return o.value, o.success, true
}

// LeakedHandles returns every still-open HTTP request and stream handle,
// for perform teardown to force-close (Open Question (b): handles are
// scoped to exactly one perform and never outlive it).
func (m *MapStd) LeakedHandles() (requests, streams []hostvalue.Handle) {
	return m.httpRequests.Handles(), m.streams.Handles()
}

// CloseAllLeaked force-closes every still-open stream. In-flight HTTP
// requests that were never issued (http_call without a matching
// http_call_head) simply have no response body to close.
func (m *MapStd) CloseAllLeaked() {
	for _, h := range m.streams.Handles() {
		if s := m.streams.TryRemove(h); s != nil {
			(*s).Close()
		}
	}
	for _, h := range m.httpRequests.Handles() {
		m.httpRequests.TryRemove(h)
	}
}

// TakeContext implements __ffi.unstable.take_context, consumable exactly
// once per perform.
func (m *MapStd) TakeContext() (hostvalue.Value, error) {
	if m.context == nil {
		return hostvalue.Value{}, ErrAlreadyTaken
	}
	ctx := *m.context
	m.context = nil
	return ctx, nil
}

// SetOutputSuccess implements __ffi.unstable.set_output_success.
func (m *MapStd) SetOutputSuccess(value hostvalue.Value) error {
	if m.output != nil {
		return ErrAlreadySet
	}
	m.output = &outcome{value: value, success: true}
	return nil
}

// SetOutputFailure implements __ffi.unstable.set_output_failure.
func (m *MapStd) SetOutputFailure(value hostvalue.Value) error {
	if m.output != nil {
		return ErrAlreadySet
	}
	m.output = &outcome{value: value, success: false}
	return nil
}

// HTTPCallParams is the map-supplied shape of an outbound HTTP request
// before security resolution.
type HTTPCallParams struct {
	Method  string
	URL     string
	Headers map[string][]string
	Query   map[string][]string
	Body    []byte
	// Security names the security scheme ids (and strategy) the map wants
	// applied; empty means no security.
	Security security.RequestSecurity
}

// HTTPCall implements __ffi.unstable.http_call: resolves security against
// params, builds the *http.Request, and stores it for a later HTTPCallHead
// without issuing it yet (matching the original's two-phase call/call_head
// split, which lets callers abort before paying for the round trip).
func (m *MapStd) HTTPCall(params HTTPCallParams) (hostvalue.Handle, error) {
	secReq := &security.HTTPRequest{
		URL:     params.URL,
		Headers: params.Headers,
		Query:   params.Query,
		Body:    params.Body,
	}
	if len(params.Security.IDs) > 0 {
		if m.security == nil {
			return hostvalue.NoHandle, fmt.Errorf("mapstd: http_call requested security but none is configured for this perform")
		}
		if err := security.ResolveSecurity(*m.security, secReq, params.Security); err != nil {
			return hostvalue.NoHandle, err
		}
	}

	httpReq, err := http.NewRequest(params.Method, secReq.URL, newBodyReader(secReq.Body))
	if err != nil {
		return hostvalue.NoHandle, fmt.Errorf("mapstd: build request: %w", err)
	}
	for name, values := range secReq.Headers {
		for _, v := range values {
			httpReq.Header.Add(name, v)
		}
	}
	if len(secReq.Query) > 0 {
		q := httpReq.URL.Query()
		for name, values := range secReq.Query {
			for _, v := range values {
				q.Add(name, v)
			}
		}
		httpReq.URL.RawQuery = q.Encode()
	}

	handle := m.httpRequests.Insert(inFlightRequest{req: httpReq})
	return handle, nil
}

// HTTPResponseHead is what HTTPCallHead returns: status, headers, and a
// handle to the (possibly peekable, for logging) response body stream.
type HTTPResponseHead struct {
	Status  int
	Headers http.Header
	Body    hostvalue.Handle
}

// HTTPCallHead implements __ffi.unstable.http_call_head: issues the
// previously-prepared request and returns its status/headers plus a
// stream handle for the body.
func (m *MapStd) HTTPCallHead(handle hostvalue.Handle) (HTTPResponseHead, error) {
	entry := m.httpRequests.TryRemove(handle)
	if entry == nil {
		return HTTPResponseHead{}, ErrInvalidHandle
	}

	resp, err := m.fetcher.Fetch(entry.req)
	if err != nil {
		return HTTPResponseHead{}, fmt.Errorf("mapstd: http call: %w", err)
	}

	var bodyStream io.ReadWriteCloser
	if m.config.LogHTTPTransactions {
		peekable := NewPeekableStream(resp.Body)
		preview, _ := peekable.Peek(m.config.LogHTTPTransactionsBodyMaxSize)
		_ = preview // buffered and replayed to the map's reads; not written to any log sink
		bodyStream = &readWriteCloserAdapter{Reader: peekable, Closer: resp.Body}
	} else {
		bodyStream = &readWriteCloserAdapter{Reader: resp.Body, Closer: resp.Body}
	}

	streamHandle := m.streams.Insert(bodyStream)
	return HTTPResponseHead{Status: resp.StatusCode, Headers: resp.Header, Body: streamHandle}, nil
}

// StreamRead implements __ffi.unstable.stream_read.
func (m *MapStd) StreamRead(handle hostvalue.Handle, buf []byte) (int, error) {
	s := m.streams.Get(handle)
	if s == nil {
		return 0, ErrInvalidHandle
	}
	return (*s).Read(buf)
}

// StreamWrite implements __ffi.unstable.stream_write.
func (m *MapStd) StreamWrite(handle hostvalue.Handle, buf []byte) (int, error) {
	s := m.streams.Get(handle)
	if s == nil {
		return 0, ErrInvalidHandle
	}
	return (*s).Write(buf)
}

// StreamClose implements __ffi.unstable.stream_close.
func (m *MapStd) StreamClose(handle hostvalue.Handle) error {
	s := m.streams.TryRemove(handle)
	if s == nil {
		return ErrInvalidHandle
	}
	return (*s).Close()
}

type readWriteCloserAdapter struct {
	io.Reader
	io.Closer
}

func (a *readWriteCloserAdapter) Write(p []byte) (int, error) {
	return 0, fmt.Errorf("mapstd: response body stream is read-only")
}

func newBodyReader(body []byte) io.Reader {
	if body == nil {
		return nil
	}
	return bytes.NewReader(body)
}
