package abi_test

import (
	"bytes"
	"testing"

	"github.com/oneclientcore/runtime/internal/abi"
)

func TestAbiPairRoundTrip(t *testing.T) {
	cases := []abi.AbiPair{
		{Size: 0, Handle: 0},
		{Size: 1, Handle: 1},
		{Size: 4096, Handle: 7},
		{Size: 1 << 20, Handle: 1<<16 - 1},
	}
	for _, c := range cases {
		got := abi.UnpackAbiPair(c.Pack())
		if got != c {
			t.Errorf("AbiPair round-trip: got %+v, want %+v", got, c)
		}
	}
}

func TestAbiResultRoundTrip(t *testing.T) {
	ok := abi.Ok(42)
	n, err := abi.UnpackAbiResult(ok.Pack()).IntoIOResult()
	if err != nil || n != 42 {
		t.Fatalf("Ok round-trip: got (%d, %v)", n, err)
	}

	failed := abi.Err(9)
	_, err = abi.UnpackAbiResult(failed.Pack()).IntoIOResult()
	if err == nil {
		t.Fatal("Err round-trip: expected error")
	}
	var errno *abi.Errno
	if e, ok := err.(*abi.Errno); !ok || e.Code != 9 {
		t.Fatalf("Err round-trip: got %v, want Errno{Code: 9}", errno)
	}
}

// fakeHost models a host-side message responder that stores the response
// instead of writing it directly whenever it doesn't fit into the buffer the
// caller advertised, matching the original Rust test fixture in
// host_to_core_std's abi::exchange tests.
type fakeHost struct {
	stored map[abi.Handle][]byte
	nextID abi.Handle
}

func newFakeHost() *fakeHost {
	return &fakeHost{stored: make(map[abi.Handle][]byte), nextID: 1}
}

func (h *fakeHost) exchange(response []byte) abi.ExchangeFunc {
	return func(msg []byte, outLen abi.Size) ([]byte, abi.Size, abi.Handle) {
		full := abi.Size(len(response))
		if full <= outLen {
			return response, full, abi.NoHandle
		}
		handle := h.nextID
		h.nextID++
		h.stored[handle] = response
		return nil, full, handle
	}
}

func (h *fakeHost) retrieve(handle abi.Handle, outLen abi.Size) ([]byte, error) {
	data, ok := h.stored[handle]
	if !ok {
		return nil, &abi.Errno{Code: 1}
	}
	delete(h.stored, handle)
	if abi.Size(len(data)) > outLen {
		data = data[:outLen]
	}
	return data, nil
}

func TestMessageExchangeFitsInBuffer(t *testing.T) {
	host := newFakeHost()
	response := []byte(`{"kind":"ok"}`)
	mx := abi.MessageExchange{
		Exchange: host.exchange(response),
		Retrieve: host.retrieve,
	}

	got, err := mx.Invoke([]byte(`{"kind":"perform-input"}`))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !bytes.Equal(got, response) {
		t.Errorf("Invoke: got %q, want %q", got, response)
	}
	if len(host.stored) != 0 {
		t.Errorf("Invoke: should not have stored a handle for a small response")
	}
}

func TestMessageExchangeOversizedResponse(t *testing.T) {
	host := newFakeHost()
	large := bytes.Repeat([]byte("na"), 4096)
	mx := abi.MessageExchange{
		Exchange: host.exchange(large),
		Retrieve: host.retrieve,
	}

	got, err := mx.Invoke([]byte(`{"kind":"perform-input"}`))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !bytes.Equal(got, large) {
		t.Errorf("Invoke: got %d bytes, want %d bytes", len(got), len(large))
	}
}

func TestStreamExchangeReadWriteClose(t *testing.T) {
	var writeCalls [][]byte
	closed := false
	stream := abi.StreamExchange{
		Read: func(handle abi.Handle, buf []byte) (abi.AbiResult, error) {
			n := copy(buf, []byte("hello"))
			return abi.Ok(abi.Size(n)), nil
		},
		Write: func(handle abi.Handle, buf []byte) (abi.AbiResult, error) {
			writeCalls = append(writeCalls, append([]byte(nil), buf...))
			return abi.Ok(abi.Size(len(buf))), nil
		},
		Close: func(handle abi.Handle) (abi.AbiResult, error) {
			closed = true
			return abi.Ok(0), nil
		},
	}

	buf := make([]byte, 16)
	n, err := stream.ReadFull(1, buf)
	if err != nil || n != 5 || string(buf[:5]) != "hello" {
		t.Fatalf("ReadFull: got (%d, %v, %q)", n, err, buf[:n])
	}

	n, err = stream.WriteFull(1, []byte("world"))
	if err != nil || n != 5 || len(writeCalls) != 1 {
		t.Fatalf("WriteFull: got (%d, %v)", n, err)
	}

	if err := stream.CloseHandle(1); err != nil || !closed {
		t.Fatalf("CloseHandle: got err=%v closed=%v", err, closed)
	}
}
