package observability_test

import (
	"bytes"
	"testing"

	"github.com/oneclientcore/runtime/internal/observability"
)

func TestRingEventBufferWriteSimple(t *testing.T) {
	b := observability.NewRingEventBuffer(10)
	b.Write([]byte{1, 2, 3, 0})
	b.Write([]byte{4, 5, 0})

	events := b.Events()
	if len(events) != 2 {
		t.Fatalf("events = %v, want 2", events)
	}
	if !bytes.Equal(events[0], []byte{1, 2, 3}) {
		t.Errorf("events[0] = %v", events[0])
	}
	if !bytes.Equal(events[1], []byte{4, 5}) {
		t.Errorf("events[1] = %v", events[1])
	}
}

func TestRingEventBufferWriteWrapping(t *testing.T) {
	b := observability.NewRingEventBuffer(10)

	b.Write([]byte{10, 11, 12, 0})
	b.Write([]byte{13, 14, 15, 0})
	// buffer now holds 8 bytes: [10,11,12,0,13,14,15,0], 2 bytes free.

	b.Write([]byte{16, 17, 18, 0})
	// writing 4 bytes needs 4 free; only 2 available, so the oldest event
	// ([10,11,12,0], 4 bytes) is evicted first, leaving exactly enough room.
	events := b.Events()
	if len(events) != 2 {
		t.Fatalf("events after third write = %v, want 2", events)
	}
	if !bytes.Equal(events[0], []byte{13, 14, 15}) {
		t.Errorf("events[0] = %v", events[0])
	}
	if !bytes.Equal(events[1], []byte{16, 17, 18}) {
		t.Errorf("events[1] = %v", events[1])
	}

	b.Write([]byte{19, 0})
	// buffer: [13,14,15,0,16,17,18,0,19,0] = 10 bytes, exactly full.
	events = b.Events()
	if len(events) != 3 {
		t.Fatalf("events after fourth write = %v, want 3", events)
	}
	want := [][]byte{{13, 14, 15}, {16, 17, 18}, {19}}
	for i, w := range want {
		if !bytes.Equal(events[i], w) {
			t.Errorf("events[%d] = %v, want %v", i, events[i], w)
		}
	}
}

func TestRingEventBufferNeverSplitsAnEvent(t *testing.T) {
	b := observability.NewRingEventBuffer(5)
	b.Write([]byte{1, 2, 0})
	b.Write([]byte{3, 4, 5, 0})
	// Second write (4 bytes) can't fit alongside the first (3 bytes) in a
	// 5-byte buffer: the first event must be evicted whole, not truncated.
	events := b.Events()
	if len(events) != 1 || !bytes.Equal(events[0], []byte{3, 4, 5}) {
		t.Fatalf("events = %v, want [[3 4 5]]", events)
	}
}

func TestLinearEventBufferUnbounded(t *testing.T) {
	b := observability.NewLinearEventBuffer()
	for i := 0; i < 100; i++ {
		b.Write([]byte{byte(i + 1), 0})
	}
	if len(b.Events()) != 100 {
		t.Fatalf("events = %d, want 100", len(b.Events()))
	}
	b.Clear()
	if len(b.Events()) != 0 {
		t.Fatalf("events after Clear = %d, want 0", len(b.Events()))
	}
}
