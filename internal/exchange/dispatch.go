package exchange

import "encoding/json"

// HandlerFunc answers one decoded request kind and returns the raw
// response bytes to send back across the exchange, or an error, which
// Dispatch folds into the {"kind":"err",...} fallback automatically so no
// individual handler needs to hand-format its own error envelope.
type HandlerFunc func(requestJSON []byte) (responseJSON []byte, err error)

// Dispatcher routes incoming message-exchange requests by their "kind"
// field, the host-side half of spec.md §4.2's exchange protocol. Built as
// a small registry rather than a type switch so cmd/hostsim can register
// exactly the kinds it supports (perform-input, perform-output,
// perform-output-exception) without this package needing to know about
// any particular host's backing store.
//
// Grounded on core/host_to_core_std/src/unstable/mod.rs's macro-generated
// dispatch (each define_exchange_core_to_host! request kind gets its own
// match arm; anything else falls through to the unknown-kind response).
type Dispatcher struct {
	handlers map[string]HandlerFunc
}

// NewDispatcher returns an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc)}
}

// Register installs the handler for the given request kind, overwriting
// any previous registration.
func (d *Dispatcher) Register(kind string, handler HandlerFunc) {
	d.handlers[kind] = handler
}

// Dispatch decodes requestJSON's kind, routes to the registered handler,
// and returns its response. An unregistered kind, or a handler/marshal
// failure, both collapse to the {"kind":"err","error":"..."} fallback per
// spec.md §4.2's serialization invariant — Dispatch never returns
// unparsable bytes.
func (d *Dispatcher) Dispatch(requestJSON []byte) []byte {
	kind, err := PeekKind(requestJSON)
	if err != nil {
		return MarshalErrResponse(err)
	}

	handler, ok := d.handlers[kind]
	if !ok {
		return MarshalUnknownKind(kind)
	}

	resp, err := handler(requestJSON)
	if err != nil {
		return MarshalErrResponse(err)
	}
	return resp
}

// MustMarshal is a convenience for handlers: marshal v, panicking only on
// a programmer error (a response type containing something unmarshalable,
// e.g. a channel or function value), which indicates a bug in the
// response type itself rather than anything request-dependent.
func MustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic("exchange: response type failed to marshal: " + err.Error())
	}
	return data
}
