// Package abi implements the low-level host<->core wire protocol: a
// length-probed message exchange plus a small stream read/write/close
// surface, and the bit-packed pair/result encodings spec.md §4.1 describes.
//
// The actual pointer arithmetic against WASM linear memory is the job of the
// `//go:wasmimport` shims in cmd/core (the real WASI reactor build);
// this package works one layer up, in the already-decoded Size/Handle/[]byte
// domain, so it can be exercised and tested on any host. Both halves are
// passed around as small bundles of functions rather than concrete types, the
// way spec.md §4.1 asks ("opaque callable bundles so they can be redirected
// in tests") — mirroring how the teacher's worker.WorkerPool holds `func()`
// values on its job queue instead of a committed job type.
package abi

import (
	"fmt"
	"math/bits"
)

// Size is the wire-level unsigned size/length type used throughout the ABI.
type Size = uint32

// Handle is an opaque, non-zero resource identifier. Zero means "none."
type Handle = uint32

const NoHandle Handle = 0

// pairPayloadBits controls the size/handle split used by AbiPair's wire
// encoding. On 64-bit hosts we use a 48/16 split (sizes up to 2^48 are
// unreachable in practice; handles fit in the remaining 16 bits when packed
// with a size). On 32-bit hosts we fall back to an even 32/32 split, which
// only fits when packed into a 64-bit return word.
var pairPayloadBits = func() uint {
	if bits.UintSize == 64 {
		return 48
	}
	return 32
}()

// AbiPair packs two ABI values (size, handle) into one machine word per
// spec.md §4.1's "Pair encoding."
type AbiPair struct {
	Size   Size
	Handle Handle
}

// Pack encodes the pair into a single uint64 word.
func (p AbiPair) Pack() uint64 {
	shift := 64 - pairPayloadBits
	return uint64(p.Size)<<shift | uint64(p.Handle)&((1<<shift)-1)
}

// UnpackAbiPair decodes a word produced by AbiPair.Pack.
func UnpackAbiPair(word uint64) AbiPair {
	shift := 64 - pairPayloadBits
	return AbiPair{
		Size:   Size(word >> shift),
		Handle: Handle(word & ((1 << shift) - 1)),
	}
}

// resultOkTag/resultErrTag distinguish AbiResult.Tag.
type resultTag uint8

const (
	resultTagOk resultTag = iota
	resultTagErr
)

// AbiResult packs a tag (Ok/Err) plus a payload (byte count on Ok, POSIX
// errno on Err) into one machine word, per spec.md §4.1.
type AbiResult struct {
	tag     resultTag
	payload Size
}

// Ok constructs a successful AbiResult carrying a byte count.
func Ok(n Size) AbiResult { return AbiResult{tag: resultTagOk, payload: n} }

// Err constructs a failed AbiResult carrying a POSIX-style errno.
func Err(errno Size) AbiResult { return AbiResult{tag: resultTagErr, payload: errno} }

// Pack encodes the result into a single uint64 word: the low 32 bits are the
// payload, bit 32 is the tag.
func (r AbiResult) Pack() uint64 {
	word := uint64(r.payload)
	if r.tag == resultTagErr {
		word |= 1 << 32
	}
	return word
}

// UnpackAbiResult decodes a word produced by AbiResult.Pack.
func UnpackAbiResult(word uint64) AbiResult {
	tag := resultTagOk
	if word&(1<<32) != 0 {
		tag = resultTagErr
	}
	return AbiResult{tag: tag, payload: Size(word & 0xFFFFFFFF)}
}

// IntoIOResult converts the result into a (bytesTransferred, error) pair the
// way the original's `AbiResult::into_io_result` does. On Err the error is
// an *Errno carrying the raw errno; it is not mapped to any standard
// sentinel error, so callers inspect it with errors.As.
func (r AbiResult) IntoIOResult() (Size, error) {
	if r.tag == resultTagOk {
		return r.payload, nil
	}
	return 0, &Errno{Code: r.payload}
}

// Errno wraps a POSIX-style error code returned by a host stream call.
type Errno struct {
	Code Size
}

func (e *Errno) Error() string {
	return fmt.Sprintf("host stream call failed: errno %d", e.Code)
}

var _ error = (*Errno)(nil)
