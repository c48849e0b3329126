package hostvalue

import "github.com/oneclientcore/runtime/internal/abi"

// Handle re-exports abi.Handle so callers working purely in the value/map
// domain don't need to import internal/abi directly.
type Handle = abi.Handle

// NoHandle is the reserved "none" handle value. Index 0 is never allocated.
const NoHandle = abi.NoHandle

// HandleMap is a stable-handle arena: handles start at 1 and a removed slot
// is reused by the next insertion, exactly as spec.md §4.6 describes
// ("arena+generationless — generational ids are not required because
// handles never escape a single perform"). Internally, slot index i backs
// handle i+1.
//
// Not safe for concurrent use: spec.md §5 guarantees single-threaded access
// to a given MapStd within one perform, so no mutex is carried here (unlike
// the teacher's session.SessionManager, which does need one because it
// really is shared across thousands of concurrent session goroutines).
type HandleMap[T any] struct {
	slots []*T
	free  []int
}

// NewHandleMap creates an empty handle map.
func NewHandleMap[T any]() *HandleMap[T] {
	return &HandleMap[T]{}
}

// Insert stores value and returns its newly allocated, never-zero handle.
func (h *HandleMap[T]) Insert(value T) Handle {
	v := value
	if len(h.free) > 0 {
		idx := h.free[len(h.free)-1]
		h.free = h.free[:len(h.free)-1]
		h.slots[idx] = &v
		return Handle(idx + 1)
	}
	h.slots = append(h.slots, &v)
	return Handle(len(h.slots))
}

// indexOf converts a handle into a slot index, returning false for handle 0
// or any handle outside the currently allocated range.
func (h *HandleMap[T]) indexOf(handle Handle) (int, bool) {
	if handle == NoHandle {
		return 0, false
	}
	idx := int(handle) - 1
	if idx < 0 || idx >= len(h.slots) {
		return 0, false
	}
	return idx, true
}

// Get returns a pointer to the value at handle, or nil if the handle is
// unknown (never allocated, out of range, or already removed).
func (h *HandleMap[T]) Get(handle Handle) *T {
	idx, ok := h.indexOf(handle)
	if !ok {
		return nil
	}
	return h.slots[idx]
}

// TryRemove removes and returns the value at handle, or nil if the handle
// was unknown. The slot is marked free for reuse by a future Insert.
func (h *HandleMap[T]) TryRemove(handle Handle) *T {
	idx, ok := h.indexOf(handle)
	if !ok || h.slots[idx] == nil {
		return nil
	}
	value := h.slots[idx]
	h.slots[idx] = nil
	h.free = append(h.free, idx)
	return value
}

// Handles returns every handle currently occupied, in no particular order.
// Used by perform teardown to force-close leaked stream/request handles.
func (h *HandleMap[T]) Handles() []Handle {
	out := make([]Handle, 0, len(h.slots))
	for i, slot := range h.slots {
		if slot != nil {
			out = append(out, Handle(i+1))
		}
	}
	return out
}
