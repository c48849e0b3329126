package exchange

// This file carries the core→host request shapes spec.md §4.2 names
// (file-open, http-call, http-call-head). In the native build
// (cmd/hostsim) these three never cross a process boundary:
// internal/cache's FileReader and internal/mapstd's Fetcher are wired
// directly to internal/hostio. In cmd/core's wasip1 reactor build,
// hostRoundTripper and hostReadFile send these kinds to the host through
// the go:wasmimport-backed message_exchange. The shapes are grounded on
// core/host_to_core_std/src/unstable/http.rs's define_exchange_core_to_host!
// expansions.

// FileOpenRequest mirrors a standard POSIX open() call's flags.
type FileOpenRequest struct {
	Kind      string `json:"kind"`
	Path      string `json:"path"`
	Read      bool   `json:"read"`
	Write     bool   `json:"write"`
	Append    bool   `json:"append"`
	Truncate  bool   `json:"truncate"`
	Create    bool   `json:"create"`
	CreateNew bool   `json:"create_new"`
}

// NewFileOpenRequest builds a read-only file-open request, the only mode
// the document cache actually needs.
func NewFileOpenRequest(path string) FileOpenRequest {
	return FileOpenRequest{Kind: "file-open", Path: path, Read: true}
}

// FileOpenOk carries the file's full contents. The real ABI would hand
// back a stream handle for large files; this module's document cache
// always wants the whole file anyway (internal/cache never streams), so
// the response is just the bytes.
type FileOpenOk struct {
	Kind string `json:"kind"`
	Data []byte `json:"data"`
}

// FileOpenErr reports a failed file-open, carrying the path and the
// underlying OS error message (spec.md §4.3's "propagate underlying I/O
// error and path").
type FileOpenErr struct {
	Kind    string `json:"kind"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

// HeaderMultiMap is the wire shape of an HTTP headers multi-map: each
// name maps to every value supplied for it, preserving duplicates.
type HeaderMultiMap map[string][]string

// HttpCallRequest asks the host to prepare (but not necessarily issue) an
// outbound HTTP request.
type HttpCallRequest struct {
	Kind    string         `json:"kind"`
	Method  string         `json:"method"`
	URL     string         `json:"url"`
	Headers HeaderMultiMap `json:"headers"`
	Body    []byte         `json:"body,omitempty"`
}

// NewHttpCallRequest builds the http-call envelope.
func NewHttpCallRequest(method, url string, headers HeaderMultiMap, body []byte) HttpCallRequest {
	return HttpCallRequest{Kind: "http-call", Method: method, URL: url, Headers: headers, Body: body}
}

// HttpCallOk carries the handle the host assigned to the prepared
// request, plus an optional stream handle for the request body if the
// host wants to stream rather than buffer it (the WASM core path this
// module does not implement, but the wire shape must still round-trip
// it).
type HttpCallOk struct {
	Kind              string  `json:"kind"`
	RequestBodyStream *uint32 `json:"request_body_stream,omitempty"`
	Handle            uint32  `json:"handle"`
}

// HttpCallErrorCode is the caller-facing error taxonomy for a failed
// outbound HTTP call, grounded on http.rs's HttpCallError enum.
type HttpCallErrorCode string

const (
	HttpCallErrorInvalidURL        HttpCallErrorCode = "InvalidUrl"
	HttpCallErrorConnectionRefused HttpCallErrorCode = "ConnectionRefused"
	HttpCallErrorHostNotFound      HttpCallErrorCode = "HostNotFound"
	HttpCallErrorUnknown           HttpCallErrorCode = "Unknown"
)

// networkErrorCode is the lower-level wire error code the host reports
// (http.rs's ErrorCode enum, the Network* variants); MapNetworkErrorCode
// translates it into the narrower HttpCallErrorCode taxonomy the map
// actually sees.
const (
	networkInvalidURL        = "NetworkInvalidUrl"
	networkConnectionRefused = "NetworkConnectionRefused"
	networkHostNotFound      = "NetworkHostNotFound"
)

// MapNetworkErrorCode implements http.rs's response_error_to_http_call_error:
// translate a host-reported wire error code into the HttpCallErrorCode the
// map surface exposes. Any code not in the known set (including
// NetworkError and NetworkInvalidHandle) maps to Unknown.
func MapNetworkErrorCode(wireCode string) HttpCallErrorCode {
	switch wireCode {
	case networkInvalidURL:
		return HttpCallErrorInvalidURL
	case networkConnectionRefused:
		return HttpCallErrorConnectionRefused
	case networkHostNotFound:
		return HttpCallErrorHostNotFound
	default:
		return HttpCallErrorUnknown
	}
}

// HttpCallErr reports a failed http-call.
type HttpCallErr struct {
	Kind      string            `json:"kind"`
	ErrorCode HttpCallErrorCode `json:"error_code"`
	Message   string            `json:"message"`
}

// HttpCallHeadRequest consumes a previously prepared request handle and
// actually issues the call.
type HttpCallHeadRequest struct {
	Kind   string `json:"kind"`
	Handle uint32 `json:"handle"`
}

// NewHttpCallHeadRequest builds the http-call-head envelope.
func NewHttpCallHeadRequest(handle uint32) HttpCallHeadRequest {
	return HttpCallHeadRequest{Kind: "http-call-head", Handle: handle}
}

// HttpCallHeadOk carries the response status/headers plus a stream
// handle for the (not-yet-read) response body.
type HttpCallHeadOk struct {
	Kind       string         `json:"kind"`
	Status     int            `json:"status"`
	Headers    HeaderMultiMap `json:"headers"`
	BodyStream uint32         `json:"body_stream"`
}

// HttpCallHeadErr reports a failed http-call-head (the handle was
// invalid, or the request itself failed at the network layer once
// issued).
type HttpCallHeadErr struct {
	Kind      string            `json:"kind"`
	ErrorCode HttpCallErrorCode `json:"error_code"`
	Message   string            `json:"message"`
}
