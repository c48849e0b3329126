// Package observability implements the four-sink tracing router described
// in spec.md §4.9: events are routed by their target string to a user sink
// (stdout), a metrics sink (JSON event buffer), a developer sink (stderr),
// and a developer-dump sink (buffer, excluding metrics). It also defines the
// structured metric event records (SdkInit, Perform, Panic) that replace the
// reference engine's atomic request counters with one auditable JSON line
// per event.
//
// Grounded on the teacher's logger.Logger (kept as the per-sink writer
// shape) and metrics.Metrics (kept as the "cheap counters" spirit, now
// emitting structured events instead of live-only atomics), generalized to
// match core/observability/mod.rs's four tracing_subscriber layers.
package observability

import (
	"bytes"
	"sync"
)

// eventSeparator terminates every event written to a TracingEventBuffer, per
// spec.md §4.9's "make-writer" contract: one logged line becomes one event.
const eventSeparator = 0x00

// TracingEventBuffer is an append-only byte sink that records null-separated
// events, supports iterating over them without consuming, and can be
// cleared. Grounded on core/observability/buffer/ring.rs's RingEventBuffer
// and the VecEventBuffer it's contrasted against in core/observability/mod.rs.
type TracingEventBuffer interface {
	// Write appends one already-separator-terminated event record.
	Write(event []byte)
	// Events returns the currently buffered events, each with its
	// separator stripped, oldest first.
	Events() [][]byte
	// Clear discards all buffered events.
	Clear()
}

func splitEvents(data []byte) [][]byte {
	if len(data) == 0 {
		return nil
	}
	parts := bytes.Split(data, []byte{eventSeparator})
	// A well-formed buffer always ends on a separator, leaving one empty
	// trailing element from bytes.Split; drop it rather than report a
	// phantom partial event.
	if len(parts) > 0 && len(parts[len(parts)-1]) == 0 {
		parts = parts[:len(parts)-1]
	}
	return parts
}

// LinearEventBuffer is an unbounded, append-only buffer, used for the
// metrics sink (spec.md §4.9: "linear vector, unbounded, typically for
// metrics").
type LinearEventBuffer struct {
	data []byte
}

// NewLinearEventBuffer returns an empty LinearEventBuffer.
func NewLinearEventBuffer() *LinearEventBuffer {
	return &LinearEventBuffer{}
}

func (b *LinearEventBuffer) Write(event []byte) {
	b.data = append(b.data, event...)
}

func (b *LinearEventBuffer) Events() [][]byte {
	return splitEvents(b.data)
}

func (b *LinearEventBuffer) Clear() {
	b.data = b.data[:0]
}

// RingEventBuffer is a fixed-capacity buffer used for the developer-dump
// sink. When a write would overflow capacity, whole events are evicted from
// the front until there's room; an event is never split across the
// eviction boundary. Grounded on core/observability/buffer/ring.rs's
// RingEventBuffer (write/pop_event/free_len), reworked from a two-slice
// VecDeque into a single contiguous slice since Go has no deque in the
// standard library and this preserves the same eviction invariant.
type RingEventBuffer struct {
	capacity int
	data     []byte
}

// NewRingEventBuffer returns an empty RingEventBuffer that can hold at most
// capacity bytes of (separator-terminated) events at a time.
func NewRingEventBuffer(capacity int) *RingEventBuffer {
	return &RingEventBuffer{capacity: capacity}
}

func (b *RingEventBuffer) freeLen() int {
	return b.capacity - len(b.data)
}

// popEvent drops the oldest whole event, including its separator.
func (b *RingEventBuffer) popEvent() {
	idx := bytes.IndexByte(b.data, eventSeparator)
	if idx < 0 {
		// No separator at all: the buffer holds one partial event: drop
		// everything rather than loop forever.
		b.data = b.data[:0]
		return
	}
	b.data = b.data[idx+1:]
}

func (b *RingEventBuffer) Write(event []byte) {
	if b.capacity <= 0 {
		return
	}
	if len(event) > b.capacity {
		// Oversized single write: keep only the trailing capacity-worth of
		// bytes, mirroring ring.rs's write().
		event = event[len(event)-b.capacity:]
	}
	for len(event) > b.freeLen() {
		b.popEvent()
	}
	b.data = append(b.data, event...)
}

func (b *RingEventBuffer) Events() [][]byte {
	return splitEvents(b.data)
}

func (b *RingEventBuffer) Clear() {
	b.data = b.data[:0]
}

// SharedEventBuffer adds the short-lived-lock-per-access sharing spec.md §5
// requires ("global observability buffers are lazy, Arc-shared across the
// writer and the host-facing export functions").
type SharedEventBuffer struct {
	mu  sync.Mutex
	buf TracingEventBuffer
}

// NewSharedEventBuffer wraps buf for concurrent access.
func NewSharedEventBuffer(buf TracingEventBuffer) *SharedEventBuffer {
	return &SharedEventBuffer{buf: buf}
}

func (s *SharedEventBuffer) Write(event []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Write(event)
}

func (s *SharedEventBuffer) Events() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Events()
}

func (s *SharedEventBuffer) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Clear()
}
