// Package exchange implements the kind-discriminated JSON request/response
// envelopes that cross the host<->core boundary (spec.md §4.2): the
// perform-input/perform-output/perform-output-exception trio the core
// exports to the host, and the file-open/http-call/http-call-head requests
// the core issues outward. Every envelope carries a "kind" discriminator
// field, kebab-case, exactly as spec.md requires.
//
// Grounded on core/host_to_core_std/src/unstable/perform.rs and
// core/host_to_core_std/src/unstable/http.rs's define_exchange_core_to_host!
// macro output (original_source): each macro invocation expands to a
// request struct with a literal "kind" field and a response enum with
// "ok"/"err" variants, which this package represents as two-pass
// json.RawMessage decodes, the same pattern the teacher's dashboard package
// used for heterogeneous SSE payloads (decode a small envelope first, then
// the variant-specific body).
package exchange

import (
	"encoding/json"
	"fmt"

	"github.com/oneclientcore/runtime/internal/hostvalue"
)

// kindEnvelope is the minimal shape every request/response shares: just
// enough to dispatch on before decoding the rest.
type kindEnvelope struct {
	Kind string `json:"kind"`
}

// PeekKind returns the "kind" discriminator of a raw JSON message without
// decoding the rest of it.
func PeekKind(data []byte) (string, error) {
	var env kindEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("exchange: peek kind: %w", err)
	}
	return env.Kind, nil
}

// ErrResponse is the universal failure shape: {"kind":"err","error":"..."}.
// Per spec.md §4.2's serialization invariant, an unknown request kind or a
// serialization failure on the responder side both collapse to this.
type ErrResponse struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// NewErrResponse builds an ErrResponse from any error's message.
func NewErrResponse(err error) ErrResponse {
	return ErrResponse{Kind: "err", Error: err.Error()}
}

// MarshalErrResponse is the last-resort fallback encoder: if even the
// ErrResponse fails to marshal (it shouldn't — it's all strings), fall back
// to a hand-built literal so a responder never returns unparsable bytes.
func MarshalErrResponse(err error) []byte {
	data, marshalErr := json.Marshal(NewErrResponse(err))
	if marshalErr != nil {
		return []byte(`{"kind":"err","error":"exchange: failed to marshal error response"}`)
	}
	return data
}

// MarshalUnknownKind builds the unknown-kind fallback response spec.md
// §4.2 mandates.
func MarshalUnknownKind(kind string) []byte {
	return MarshalErrResponse(fmt.Errorf("unknown request kind %q", kind))
}

// --- perform-input -----------------------------------------------------

// PerformInputRequest is the core's outbound request asking the host for
// the current perform's full context. It carries no fields beyond its
// kind — the host already knows which perform is in flight.
type PerformInputRequest struct {
	Kind string `json:"kind"`
}

// NewPerformInputRequest builds the request envelope.
func NewPerformInputRequest() PerformInputRequest {
	return PerformInputRequest{Kind: "perform-input"}
}

// CallerSecurityValue is one entry of the map_security object: the
// caller-supplied credential shape for a single security scheme id,
// before internal/security validates and resolves it against the
// provider's declared scheme kind.
type CallerSecurityValue struct {
	ApiKey       *string `json:"apikey,omitempty"`
	Username     *string `json:"username,omitempty"`
	Password     *string `json:"password,omitempty"`
	Token        *string `json:"token,omitempty"`
	BearerFormat *string `json:"bearer_format,omitempty"`
}

// PerformInputOk is the successful perform-input response: the full
// PerformInput spec.md §4.4 describes.
type PerformInputOk struct {
	Kind          string                         `json:"kind"`
	ProfileURL    string                         `json:"profile_url"`
	ProviderURL   string                         `json:"provider_url"`
	MapURL        string                         `json:"map_url"`
	Usecase       string                         `json:"usecase"`
	MapInput      hostvalue.Value                `json:"map_input"`
	MapParameters hostvalue.Value                `json:"map_parameters"`
	MapSecurity   map[string]CallerSecurityValue `json:"map_security"`
}

// PerformInputErr is the failed perform-input response: the host could not
// produce a PerformInput (e.g. malformed caller request upstream of the
// core entirely).
type PerformInputErr struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// DecodePerformInputResponse decodes a perform-input response, returning
// exactly one of (ok, nil) or (nil, err) depending on the response's kind.
// An unrecognized kind is itself reported as a Go error rather than
// silently returning zero values.
func DecodePerformInputResponse(data []byte) (*PerformInputOk, error) {
	kind, err := PeekKind(data)
	if err != nil {
		return nil, err
	}
	switch kind {
	case "ok":
		var ok PerformInputOk
		if err := json.Unmarshal(data, &ok); err != nil {
			return nil, fmt.Errorf("exchange: decode perform-input ok: %w", err)
		}
		return &ok, nil
	case "err":
		var errResp PerformInputErr
		if err := json.Unmarshal(data, &errResp); err != nil {
			return nil, fmt.Errorf("exchange: decode perform-input err: %w", err)
		}
		return nil, fmt.Errorf("perform-input: %s", errResp.Error)
	default:
		return nil, fmt.Errorf("exchange: perform-input response: unknown kind %q", kind)
	}
}

// --- perform-output ------------------------------------------------------

// MapResult is the map's Result<HostValue, HostValue>, serialized the way
// the original's serde derive represents a two-variant Rust enum:
// externally tagged by the variant's own name, exactly one of Ok/Err set.
type MapResult struct {
	Ok  *hostvalue.Value `json:"Ok,omitempty"`
	Err *hostvalue.Value `json:"Err,omitempty"`
}

// PerformOutputRequest reports the map's final result back to the host.
type PerformOutputRequest struct {
	Kind      string    `json:"kind"`
	MapResult MapResult `json:"map_result"`
}

// NewPerformOutputRequest builds a perform-output request carrying exactly
// one of a success or failure MapValue, per spec.md §4.2's "exactly one of
// result/error" invariant.
func NewPerformOutputRequest(value hostvalue.Value, success bool) PerformOutputRequest {
	result := MapResult{}
	if success {
		result.Ok = &value
	} else {
		result.Err = &value
	}
	return PerformOutputRequest{Kind: "perform-output", MapResult: result}
}

// PerformOutputAck is the host's acknowledgement of a perform-output (or
// perform-output-exception) request: success carries no payload, failure
// carries a message.
type PerformOutputAck struct {
	Kind  string `json:"kind"`
	Error string `json:"error,omitempty"`
}

// DecodePerformOutputAck decodes the host's ack, returning an error if the
// ack itself reports failure or is malformed.
func DecodePerformOutputAck(data []byte) error {
	kind, err := PeekKind(data)
	if err != nil {
		return err
	}
	if kind == "ok" {
		return nil
	}
	var ack PerformOutputAck
	if err := json.Unmarshal(data, &ack); err != nil {
		return fmt.Errorf("exchange: decode perform-output ack: %w", err)
	}
	return fmt.Errorf("perform-output: host rejected result: %s", ack.Error)
}

// --- perform-output-exception ---------------------------------------------

// ExceptionCode enumerates the exception taxonomy spec.md §7 lists: errors
// the core cannot recover from and reports as an exception rather than a
// mapped Err(HostValue) result.
type ExceptionCode string

const (
	ExceptionInputError              ExceptionCode = "InputError"
	ExceptionParametersFormatError   ExceptionCode = "ParametersFormatError"
	ExceptionPrepareSecurityMapError ExceptionCode = "PrepareSecurityMapError"
	ExceptionPrepareServicesMapError ExceptionCode = "PrepareServicesMapError"
	ExceptionReplacementStdlibError  ExceptionCode = "ReplacementStdlibError"
	ExceptionMapInterpreterError     ExceptionCode = "MapInterpreterError"
	ExceptionJsonSchemaValidation    ExceptionCode = "JsonSchemaValidation"
	ExceptionCacheLoadError          ExceptionCode = "CacheLoadError"
	ExceptionMissingOutputError      ExceptionCode = "MissingOutputError"
	ExceptionDoubleOutputError       ExceptionCode = "DoubleOutputError"

	// ExceptionInternalError reports a recovered panic from inside a
	// perform that none of the above codes describe (spec.md §5: "a
	// perform panic poisons the mutex"; the wasmexport boundary in
	// cmd/core recovers that panic and reports it here rather than
	// letting it trap the whole instance).
	ExceptionInternalError ExceptionCode = "InternalError"
)

// PerformOutputExceptionRequest reports an unrecoverable perform failure.
type PerformOutputExceptionRequest struct {
	Kind      string        `json:"kind"`
	ErrorCode ExceptionCode `json:"error_code"`
	Message   string        `json:"message"`
}

// NewPerformOutputExceptionRequest builds the exception-report envelope.
func NewPerformOutputExceptionRequest(code ExceptionCode, message string) PerformOutputExceptionRequest {
	return PerformOutputExceptionRequest{Kind: "perform-output-exception", ErrorCode: code, Message: message}
}
