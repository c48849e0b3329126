package mapstd

import "io"

// PeekableStream lets a caller inspect the first N bytes of a stream
// (for transaction logging) without consuming them from the map's
// eventual Read calls, grounded on sf_core::map_std_impl::stream::
// PeekableStream.
type PeekableStream struct {
	buffer []byte
	inner  io.Reader
}

// NewPeekableStream wraps inner.
func NewPeekableStream(inner io.Reader) *PeekableStream {
	return &PeekableStream{inner: inner}
}

// Peek returns up to count bytes from the front of the stream, reading
// ahead from inner and buffering them if necessary, without consuming
// them from subsequent Read calls.
func (p *PeekableStream) Peek(count int) ([]byte, error) {
	if len(p.buffer) < count {
		needed := count - len(p.buffer)
		grown := make([]byte, count)
		copy(grown, p.buffer)
		p.buffer = grown

		for needed > 0 {
			filled := len(p.buffer) - needed
			n, err := p.inner.Read(p.buffer[filled:])
			if n > 0 {
				needed -= n
			}
			if err != nil {
				break
			}
			if n == 0 {
				break
			}
		}
		finalLen := count - needed
		p.buffer = p.buffer[:finalLen]
	}

	if count > len(p.buffer) {
		count = len(p.buffer)
	}
	return p.buffer[:count], nil
}

// Read implements io.Reader, draining any peeked-ahead buffer first.
func (p *PeekableStream) Read(buf []byte) (int, error) {
	if len(p.buffer) > 0 {
		n := copy(buf, p.buffer)
		p.buffer = p.buffer[n:]
		return n, nil
	}
	return p.inner.Read(buf)
}

// Close closes the underlying stream if it is closeable.
func (p *PeekableStream) Close() error {
	if closer, ok := p.inner.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
