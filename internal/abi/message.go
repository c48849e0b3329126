package abi

import (
	"encoding/json"
	"fmt"
)

// defaultResponseBufferSize is the size of the buffer the caller allocates
// before it knows the true size of the response, per spec.md §4.1.
const defaultResponseBufferSize = 1024

// ExchangeFunc sends msg to the host/map side and returns the full response
// size plus, if the response did not fit in outLen, a non-zero handle that
// must be passed to a RetrieveFunc to fetch the rest.
//
// outLen is advisory only in this Go-side model: real callers allocate a
// buffer of that capacity; this signature deals directly in byte slices
// since the pointer/length marshaling into WASM linear memory happens one
// layer below, in the wasmimport shims.
type ExchangeFunc func(msg []byte, outLen Size) (written []byte, fullSize Size, handle Handle)

// RetrieveFunc fetches a previously stored oversized response by handle.
// Returns io.EOF-shaped errors via AbiResult.IntoIOResult on failure.
type RetrieveFunc func(handle Handle, outLen Size) (data []byte, err error)

// MessageExchange bundles the two message-exchange host functions, matching
// spec.md §4.1's "Message exchange" pair. Like the teacher's
// jschallenge.OttoSolver wrapping an *otto.Otto behind a narrow method set,
// MessageExchange wraps two raw function values behind Invoke so production
// code and tests can supply different underlying transports.
type MessageExchange struct {
	Exchange ExchangeFunc
	Retrieve RetrieveFunc
}

// Invoke sends msg and returns the full response bytes, growing the buffer
// and calling Retrieve exactly once if the initial buffer was too small, per
// spec.md §4.1 and the round-trip testable property in spec.md §8 (property
// 2).
func (m MessageExchange) Invoke(msg []byte) ([]byte, error) {
	written, fullSize, handle := m.Exchange(msg, defaultResponseBufferSize)

	if fullSize <= Size(len(written)) {
		// Response fit entirely in the first call.
		return written[:min(int(fullSize), len(written))], nil
	}

	// Response was too large; retrieve it in full using the handle the host
	// gave us, requesting a buffer sized for the full response.
	data, err := m.Retrieve(handle, fullSize)
	if err != nil {
		return nil, fmt.Errorf("abi: retrieve stored message: %w", err)
	}

	n := fullSize
	if Size(len(data)) < n {
		n = Size(len(data))
	}
	return data[:n], nil
}

// InvokeJSON serializes req as JSON, sends it via Invoke, and deserializes
// the response into resp.
func InvokeJSON[Req any, Resp any](m MessageExchange, req Req) (resp Resp, err error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return resp, fmt.Errorf("abi: serialize message: %w", err)
	}

	raw, err := m.Invoke(payload)
	if err != nil {
		return resp, err
	}

	if err := json.Unmarshal(raw, &resp); err != nil {
		return resp, fmt.Errorf("abi: deserialize message: %w", err)
	}
	return resp, nil
}
