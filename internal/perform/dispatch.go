package perform

import (
	"encoding/json"
	"fmt"

	"github.com/oneclientcore/runtime/internal/exchange"
	"github.com/oneclientcore/runtime/internal/hostvalue"
	"github.com/oneclientcore/runtime/internal/mapstd"
	"github.com/oneclientcore/runtime/internal/security"
)

// mapExchangeHandler routes one __ffi.unstable.message_exchange call (the
// core→map requests spec.md §4.2/§4.7 name: take-context,
// set-output-success, set-output-failure, http-call, http-call-head) to
// the running perform's MapStd instance. Unlike internal/exchange's
// host-boundary envelopes, these never leave the Go process — the
// interpreter's message_exchange binding calls straight into this
// function — so request/response bytes exist only to match the real
// core's JSON-over-FFI calling convention the map's JS code is written
// against (interpreter/stdlib.go's stdlibMessageExchange).
type mapExchangeHandler struct {
	ms *mapstd.MapStd
}

func newMapExchangeHandler(ms *mapstd.MapStd) *mapExchangeHandler {
	return &mapExchangeHandler{ms: ms}
}

// handle implements interpreter.MessageExchangeFunc.
func (h *mapExchangeHandler) handle(requestJSON string) (string, error) {
	kind, err := exchange.PeekKind([]byte(requestJSON))
	if err != nil {
		return string(exchange.MarshalErrResponse(err)), nil
	}

	var resp []byte
	switch kind {
	case "take-context":
		resp = h.takeContext()
	case "set-output-success":
		resp = h.setOutput(requestJSON, true)
	case "set-output-failure":
		resp = h.setOutput(requestJSON, false)
	case "http-call":
		resp = h.httpCall(requestJSON)
	case "http-call-head":
		resp = h.httpCallHead(requestJSON)
	default:
		resp = exchange.MarshalUnknownKind(kind)
	}
	return string(resp), nil
}

type okResponse struct {
	Kind string `json:"kind"`
}

func (h *mapExchangeHandler) takeContext() []byte {
	ctx, err := h.ms.TakeContext()
	if err != nil {
		return exchange.MarshalErrResponse(err)
	}
	data, err := json.Marshal(struct {
		Kind    string          `json:"kind"`
		Context hostvalue.Value `json:"context"`
	}{Kind: "ok", Context: ctx})
	if err != nil {
		return exchange.MarshalErrResponse(err)
	}
	return data
}

type setOutputRequest struct {
	Kind  string          `json:"kind"`
	Value hostvalue.Value `json:"value"`
}

func (h *mapExchangeHandler) setOutput(requestJSON string, success bool) []byte {
	var req setOutputRequest
	if err := json.Unmarshal([]byte(requestJSON), &req); err != nil {
		return exchange.MarshalErrResponse(fmt.Errorf("decode set-output request: %w", err))
	}

	var err error
	if success {
		err = h.ms.SetOutputSuccess(req.Value)
	} else {
		err = h.ms.SetOutputFailure(req.Value)
	}
	if err != nil {
		return exchange.MarshalErrResponse(err)
	}
	return exchange.MustMarshal(okResponse{Kind: "ok"})
}

type httpCallRequest struct {
	Kind     string                    `json:"kind"`
	Method   string                    `json:"method"`
	URL      string                    `json:"url"`
	Headers  map[string][]string       `json:"headers"`
	Query    map[string][]string       `json:"query"`
	Body     []byte                    `json:"body,omitempty"`
	Security httpCallRequestedSecurity `json:"security"`
}

type httpCallRequestedSecurity struct {
	Strategy string   `json:"strategy"`
	IDs      []string `json:"ids"`
}

func (h *mapExchangeHandler) httpCall(requestJSON string) []byte {
	var req httpCallRequest
	if err := json.Unmarshal([]byte(requestJSON), &req); err != nil {
		return exchange.MarshalErrResponse(fmt.Errorf("decode http-call request: %w", err))
	}

	handle, err := h.ms.HTTPCall(mapstd.HTTPCallParams{
		Method:   req.Method,
		URL:      req.URL,
		Headers:  req.Headers,
		Query:    req.Query,
		Body:     req.Body,
		Security: securityFromWire(req.Security),
	})
	if err != nil {
		return exchange.MarshalErrResponse(err)
	}

	return exchange.MustMarshal(struct {
		Kind   string           `json:"kind"`
		Handle hostvalue.Handle `json:"handle"`
	}{Kind: "ok", Handle: handle})
}

type httpCallHeadRequest struct {
	Kind   string           `json:"kind"`
	Handle hostvalue.Handle `json:"handle"`
}

func (h *mapExchangeHandler) httpCallHead(requestJSON string) []byte {
	var req httpCallHeadRequest
	if err := json.Unmarshal([]byte(requestJSON), &req); err != nil {
		return exchange.MarshalErrResponse(fmt.Errorf("decode http-call-head request: %w", err))
	}

	head, err := h.ms.HTTPCallHead(req.Handle)
	if err != nil {
		return exchange.MarshalErrResponse(err)
	}

	return exchange.MustMarshal(struct {
		Kind    string              `json:"kind"`
		Status  int                 `json:"status"`
		Headers map[string][]string `json:"headers"`
		Body    hostvalue.Handle    `json:"body"`
	}{Kind: "ok", Status: head.Status, Headers: map[string][]string(head.Headers), Body: head.Body})
}

// securityFromWire converts the JSON request-security shape into
// internal/security's RequestSecurity. An empty strategy defaults to
// first-valid so map authors naming a single id don't have to spell out a
// strategy explicitly.
func securityFromWire(w httpCallRequestedSecurity) security.RequestSecurity {
	strategy := w.Strategy
	if strategy == "" && len(w.IDs) > 0 {
		strategy = security.StrategyFirstValid
	}
	return security.RequestSecurity{Strategy: strategy, IDs: w.IDs}
}
