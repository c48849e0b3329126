//go:build wasip1

// Command core is the GOOS=wasip1 reactor build: it exports spec.md §6.1's
// host-callable entry points and imports §6.2's sf_host_unstable host
// functions, wiring both to internal/core and internal/perform.
//
// Grounded on the go:wasmexport/go:wasmimport pattern
// other_examples/reglet-dev-reglet's HTTP plugin (plugins/http/main.go)
// uses: ptr/len uint32 signatures only on the export boundary, a pinned
// allocations map keyed by pointer so the Go GC never reclaims a buffer the
// host still holds, and an allocate/deallocate pair giving the host
// writable memory for passing configuration/request bytes in.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"unsafe"

	"github.com/oneclientcore/runtime/internal/abi"
	"github.com/oneclientcore/runtime/internal/core"
	"github.com/oneclientcore/runtime/internal/exchange"
	"github.com/oneclientcore/runtime/internal/hostvalue"
	"github.com/oneclientcore/runtime/internal/perform"
)

// main is never called; the wasip1 reactor model drives execution entirely
// through the exported functions below.
func main() {}

// allocations pins host-writable buffers: the host writes request bytes at
// a pointer returned by allocate, and the Go GC must not reclaim that
// memory until the host calls deallocate.
var allocations = make(map[uint32][]byte)

//go:wasmexport allocate
func allocate(size uint32) uint32 {
	if size == 0 {
		return 0
	}
	buf := make([]byte, size)
	ptr := uint32(uintptr(unsafe.Pointer(&buf[0])))
	allocations[ptr] = buf
	return ptr
}

//go:wasmexport deallocate
func deallocate(ptr uint32, size uint32) {
	delete(allocations, ptr)
}

// --- sf_host_unstable imports (spec.md §6.2) -------------------------------

//go:wasmimport sf_host_unstable message_exchange
func importMessageExchange(msgPtr, msgLen, outPtr, outLen, retHandlePtr uint32) uint32

//go:wasmimport sf_host_unstable message_exchange_retrieve
func importMessageExchangeRetrieve(handle, outPtr, outLen uint32) uint64

//go:wasmimport sf_host_unstable stream_read
func importStreamRead(handle, outPtr, outLen uint32) uint64

//go:wasmimport sf_host_unstable stream_write
func importStreamWrite(handle, inPtr, inLen uint32) uint64

//go:wasmimport sf_host_unstable stream_close
func importStreamClose(handle uint32) uint64

// hostMessageExchange adapts the two raw message_exchange imports into
// internal/abi's Go-side MessageExchange, the way internal/abi's own doc
// comment describes ("the actual pointer arithmetic ... is the job of the
// go:wasmimport shims in cmd/core; this package works one layer up").
func hostMessageExchange() abi.MessageExchange {
	return abi.MessageExchange{
		Exchange: func(msg []byte, outLen abi.Size) ([]byte, abi.Size, abi.Handle) {
			out := make([]byte, outLen)
			var handle uint32
			msgPtr := uint32(0)
			if len(msg) > 0 {
				msgPtr = uint32(uintptr(unsafe.Pointer(&msg[0])))
			}
			outPtr := uint32(uintptr(unsafe.Pointer(&out[0])))
			retHandlePtr := uint32(uintptr(unsafe.Pointer(&handle)))
			full := importMessageExchange(msgPtr, uint32(len(msg)), outPtr, uint32(len(out)), retHandlePtr)
			written := out
			if abi.Size(full) < abi.Size(len(out)) {
				written = out[:full]
			}
			return written, abi.Size(full), abi.Handle(handle)
		},
		Retrieve: func(handle abi.Handle, outLen abi.Size) ([]byte, error) {
			out := make([]byte, outLen)
			outPtr := uint32(uintptr(unsafe.Pointer(&out[0])))
			word := importMessageExchangeRetrieve(uint32(handle), outPtr, uint32(len(out)))
			n, err := abi.UnpackAbiResult(word).IntoIOResult()
			if err != nil {
				return nil, err
			}
			return out[:n], nil
		},
	}
}

// hostStreams adapts the three raw stream imports into an
// abi.StreamExchange, used by hostRoundTripper to read a response body
// back from the host one stream_read call at a time.
func hostStreams() abi.StreamExchange {
	return abi.StreamExchange{
		Read: func(handle abi.Handle, buf []byte) (abi.AbiResult, error) {
			if len(buf) == 0 {
				return abi.Ok(0), nil
			}
			ptr := uint32(uintptr(unsafe.Pointer(&buf[0])))
			return abi.UnpackAbiResult(importStreamRead(uint32(handle), ptr, uint32(len(buf)))), nil
		},
		Write: func(handle abi.Handle, buf []byte) (abi.AbiResult, error) {
			if len(buf) == 0 {
				return abi.Ok(0), nil
			}
			ptr := uint32(uintptr(unsafe.Pointer(&buf[0])))
			return abi.UnpackAbiResult(importStreamWrite(uint32(handle), ptr, uint32(len(buf)))), nil
		},
		Close: func(handle abi.Handle) (abi.AbiResult, error) {
			return abi.UnpackAbiResult(importStreamClose(uint32(handle))), nil
		},
	}
}

// hostRoundTripper implements http.RoundTripper over the sf_host_unstable
// http-call/http-call-head exchange kinds (internal/exchange/host.go),
// rather than net/http dialing a socket directly: spec.md §5 puts HTTP
// cancellation/timeouts under "the host implementation owns" them, and a
// wasip1 reactor has no direct socket access of its own anyway. Plugging
// this into an *http.Client lets internal/mapstd and internal/perform run
// completely unchanged — they still just call Fetcher.Fetch.
type hostRoundTripper struct {
	exch    abi.MessageExchange
	streams abi.StreamExchange
}

func (t hostRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("cmd/core: read request body: %w", err)
		}
		req.Body.Close()
	}

	callReq := exchange.NewHttpCallRequest(req.Method, req.URL.String(), exchange.HeaderMultiMap(req.Header), body)
	callRaw, err := t.exch.Invoke(exchange.MustMarshal(callReq))
	if err != nil {
		return nil, fmt.Errorf("cmd/core: http-call: %w", err)
	}
	handle, err := decodeHttpCallOk(callRaw)
	if err != nil {
		return nil, err
	}

	headRaw, err := t.exch.Invoke(exchange.MustMarshal(exchange.NewHttpCallHeadRequest(handle)))
	if err != nil {
		return nil, fmt.Errorf("cmd/core: http-call-head: %w", err)
	}
	head, err := decodeHttpCallHeadOk(headRaw)
	if err != nil {
		return nil, err
	}

	return &http.Response{
		StatusCode: head.Status,
		Status:     fmt.Sprintf("%d %s", head.Status, http.StatusText(head.Status)),
		Header:     http.Header(head.Headers),
		Body:       &hostBodyStream{handle: abi.Handle(head.BodyStream), streams: t.streams},
		Request:    req,
	}, nil
}

// decodeHttpCallOk decodes an http-call response, collapsing its
// "ok"/"err" kinds into (handle, nil) or (0, error).
func decodeHttpCallOk(data []byte) (uint32, error) {
	kind, err := exchange.PeekKind(data)
	if err != nil {
		return 0, err
	}
	if kind != "ok" {
		var e exchange.HttpCallErr
		if err := json.Unmarshal(data, &e); err != nil {
			return 0, fmt.Errorf("cmd/core: decode http-call err: %w", err)
		}
		return 0, fmt.Errorf("http-call: %s: %s", e.ErrorCode, e.Message)
	}
	var ok exchange.HttpCallOk
	if err := json.Unmarshal(data, &ok); err != nil {
		return 0, fmt.Errorf("cmd/core: decode http-call ok: %w", err)
	}
	return ok.Handle, nil
}

// decodeHttpCallHeadOk decodes an http-call-head response the same way.
func decodeHttpCallHeadOk(data []byte) (*exchange.HttpCallHeadOk, error) {
	kind, err := exchange.PeekKind(data)
	if err != nil {
		return nil, err
	}
	if kind != "ok" {
		var e exchange.HttpCallHeadErr
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("cmd/core: decode http-call-head err: %w", err)
		}
		return nil, fmt.Errorf("http-call-head: %s: %s", e.ErrorCode, e.Message)
	}
	var ok exchange.HttpCallHeadOk
	if err := json.Unmarshal(data, &ok); err != nil {
		return nil, fmt.Errorf("cmd/core: decode http-call-head ok: %w", err)
	}
	return &ok, nil
}

// hostBodyStream adapts a host stream handle into an io.ReadCloser for
// http.Response.Body. A zero-length Ok read is the host's EOF signal,
// matching internal/abi.StreamExchange.ReadFull's "bytes transferred"
// contract.
type hostBodyStream struct {
	handle  abi.Handle
	streams abi.StreamExchange
}

func (s *hostBodyStream) Read(p []byte) (int, error) {
	n, err := s.streams.ReadFull(s.handle, p)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return int(n), nil
}

func (s *hostBodyStream) Close() error {
	return s.streams.CloseHandle(s.handle)
}

// --- oneclient_core_* exports (spec.md §6.1) -------------------------------

//go:wasmexport oneclient_core_setup
func oneclientCoreSetup() {
	exch := hostMessageExchange()
	client := &http.Client{Transport: hostRoundTripper{exch: exch, streams: hostStreams()}}
	core.Setup(client, hostReadFile(exch), perform.Run)
}

// hostReadFile adapts the file-open exchange kind into a cache.FileReader,
// so document caching goes through the same host boundary as HTTP rather
// than assuming wasip1's preopened directories line up with whatever path
// a profile/provider/map reference names.
func hostReadFile(exch abi.MessageExchange) func(path string) ([]byte, error) {
	return func(path string) ([]byte, error) {
		raw, err := exch.Invoke(exchange.MustMarshal(exchange.NewFileOpenRequest(path)))
		if err != nil {
			return nil, fmt.Errorf("cmd/core: file-open %q: %w", path, err)
		}
		kind, err := exchange.PeekKind(raw)
		if err != nil {
			return nil, err
		}
		if kind != "ok" {
			var e exchange.FileOpenErr
			if err := json.Unmarshal(raw, &e); err != nil {
				return nil, fmt.Errorf("cmd/core: decode file-open err: %w", err)
			}
			return nil, fmt.Errorf("file-open %q: %s", e.Path, e.Message)
		}
		var ok exchange.FileOpenOk
		if err := json.Unmarshal(raw, &ok); err != nil {
			return nil, fmt.Errorf("cmd/core: decode file-open ok: %w", err)
		}
		return ok.Data, nil
	}
}

//go:wasmexport oneclient_core_teardown
func oneclientCoreTeardown() {
	core.Teardown()
}

// oneclientCorePerform is oneclient_core_perform: it owns both ends of one
// perform's exchange traffic that would otherwise cross the process
// boundary twice (host->core carrying perform-input, core->host carrying
// perform-output/-exception). It asks the host for the current perform's
// input via message_exchange, decodes it into internal/perform.Request,
// runs the pipeline, and reports the result back the same way.
//
// A panic inside core.Perform (the map interpreter or a caller bug)
// poisons the global lock and re-panics (internal/core.Guarded); this
// export is the one place spec.md §6.1 expects that panic to be turned
// into a perform-output-exception instead of trapping the whole instance.
//
//go:wasmexport oneclient_core_perform
func oneclientCorePerform() {
	exch := hostMessageExchange()

	reportException := func(code exchange.ExceptionCode, message string) {
		_, _ = exch.Invoke(exchange.MustMarshal(exchange.NewPerformOutputExceptionRequest(code, message)))
	}

	inputRaw, err := exch.Invoke(exchange.MustMarshal(exchange.NewPerformInputRequest()))
	if err != nil {
		reportException(exchange.ExceptionInputError, fmt.Sprintf("fetch perform-input: %v", err))
		return
	}
	input, err := exchange.DecodePerformInputResponse(inputRaw)
	if err != nil {
		reportException(exchange.ExceptionInputError, err.Error())
		return
	}

	requestJSON, err := encodePerformRequest(input)
	if err != nil {
		reportException(exchange.ExceptionInputError, err.Error())
		return
	}

	responseJSON, perr := invokePerformRecovered(requestJSON)
	if perr != nil {
		reportException(exchange.ExceptionInternalError, perr.Error())
		return
	}

	if _, err := exch.Invoke(responseJSON); err != nil {
		// The host's ack itself failed to round-trip; nothing further to
		// report to, since the ack channel is the only way back.
		_ = err
	}
}

// invokePerformRecovered calls core.Perform, converting a poisoned-lock or
// orchestrator panic into an error instead of letting it unwind out of a
// wasmexport boundary.
func invokePerformRecovered(requestJSON []byte) (responseJSON []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("perform panicked: %v", r)
		}
	}()
	responseJSON, err = core.Perform(requestJSON)
	return responseJSON, err
}

// encodePerformRequest converts the host-wire PerformInputOk into
// internal/perform.Request's JSON shape. Every field lines up one-to-one
// except map_security, which PerformInputOk types as
// map[string]exchange.CallerSecurityValue for host-wire documentation but
// internal/perform.Request keeps as a generic hostvalue.Value (the shape
// internal/security.PrepareSecurityMap already consumes directly) — so
// that one field round-trips through JSON instead of a field-by-field copy.
func encodePerformRequest(input *exchange.PerformInputOk) ([]byte, error) {
	securityJSON, err := json.Marshal(input.MapSecurity)
	if err != nil {
		return nil, fmt.Errorf("encode map_security: %w", err)
	}
	var securityValue hostvalue.Value
	if err := json.Unmarshal(securityJSON, &securityValue); err != nil {
		return nil, fmt.Errorf("decode map_security: %w", err)
	}

	req := perform.Request{
		ProfileURL:    input.ProfileURL,
		ProviderURL:   input.ProviderURL,
		MapURL:        input.MapURL,
		Usecase:       input.Usecase,
		MapInput:      input.MapInput,
		MapParameters: input.MapParameters,
		MapSecurity:   securityValue,
	}
	return json.Marshal(req)
}

// --- observability exports (spec.md §6.1) ----------------------------------

// arena keeps the most recently returned metrics/dump buffer alive: the
// host reads it by the (ptr, len) pair this call returns, so the backing
// array must survive until at least the next call overwrites it, matching
// spec.md §6.1's "pointers into a static return arena."
var arena []byte

func packEvents(events [][]byte) []byte {
	var size int
	for _, e := range events {
		size += len(e) + 1
	}
	buf := make([]byte, 0, size)
	for _, e := range events {
		buf = append(buf, e...)
		buf = append(buf, 0)
	}
	return buf
}

// returnArena writes data into the package-level arena and reports it back
// to the host as a (ptr, len) pair via the two out-pointers, per spec.md
// §6.1 ("the second pointer is used when the underlying buffer wraps" — the
// event buffers here are never ring-wrapped at the byte level, so outPtr2
// always receives 0,0: there is exactly one contiguous span to report).
func returnArena(data []byte, ptr1Ptr, len1Ptr, ptr2Ptr, len2Ptr uint32) {
	arena = data
	var ptr1, len1 uint32
	if len(arena) > 0 {
		ptr1 = uint32(uintptr(unsafe.Pointer(&arena[0])))
		len1 = uint32(len(arena))
	}
	writeUint32(ptr1Ptr, ptr1)
	writeUint32(len1Ptr, len1)
	writeUint32(ptr2Ptr, 0)
	writeUint32(len2Ptr, 0)
}

func writeUint32(ptr, value uint32) {
	*(*uint32)(unsafe.Pointer(uintptr(ptr))) = value
}

//go:wasmexport oneclient_core_get_metrics
func oneclientCoreGetMetrics(ptr1Ptr, len1Ptr, ptr2Ptr, len2Ptr uint32) {
	returnArena(packEvents(core.GetMetrics()), ptr1Ptr, len1Ptr, ptr2Ptr, len2Ptr)
}

//go:wasmexport oneclient_core_clear_metrics
func oneclientCoreClearMetrics() {
	core.ClearMetrics()
}

//go:wasmexport oneclient_core_get_developer_dump
func oneclientCoreGetDeveloperDump(ptr1Ptr, len1Ptr, ptr2Ptr, len2Ptr uint32) {
	returnArena(packEvents(core.GetDeveloperDump()), ptr1Ptr, len1Ptr, ptr2Ptr, len2Ptr)
}

// asyncifyAllocStack is the optional export spec.md §6.1 describes:
// allocates (and intentionally leaks — the stack must outlive every
// asyncified call, for the lifetime of the instance) a stack segment for
// the Asyncify transform's suspend/resume machinery, and writes the
// [start, end) bounds at dataPtr as two little-endian uint32 words.
//
//go:wasmexport asyncify_alloc_stack
func asyncifyAllocStack(dataPtr, stackSize uint32) {
	stack := make([]byte, stackSize)
	start := uint32(uintptr(unsafe.Pointer(&stack[0])))
	end := start + stackSize
	allocations[start] = stack // leaked: never deallocated
	writeUint32(dataPtr, start)
	writeUint32(dataPtr+4, end)
}
