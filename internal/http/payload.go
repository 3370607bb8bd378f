package http

import (
	"bytes"
	"io"
	"sync"
	"sync/atomic"
)

var (
	bufferPool = sync.Pool{
		New: func() any { return new(bytes.Buffer) },
	}

	livePayloads atomic.Int64
)

// Payload holds a downloaded body. Buffers are pooled; Close returns the
// buffer to the pool and must be called exactly once the payload is no
// longer needed.
type Payload struct {
	buf    *bytes.Buffer
	closed bool
}

func newPayload() *Payload {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	livePayloads.Add(1)
	return &Payload{buf: buf}
}

// NewPayload wraps data in a payload. The data is copied.
func NewPayload(data []byte) *Payload {
	p := newPayload()
	p.buf.Write(data)
	return p
}

// Reader returns a reader positioned at the start of the body.
func (p *Payload) Reader() io.ReadSeeker {
	if p.closed {
		return bytes.NewReader(nil)
	}
	return bytes.NewReader(p.buf.Bytes())
}

// Bytes returns the body. The slice is only valid until Close.
func (p *Payload) Bytes() []byte {
	if p.closed {
		return nil
	}
	return p.buf.Bytes()
}

// Len returns the body size in bytes.
func (p *Payload) Len() int {
	if p.closed {
		return 0
	}
	return p.buf.Len()
}

// Close releases the body. Closing an already closed payload is a no-op.
func (p *Payload) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	livePayloads.Add(-1)

	buf := p.buf
	p.buf = nil
	// Oversized buffers are dropped so the pool does not pin large bodies.
	if buf.Cap() <= 16<<20 {
		bufferPool.Put(buf)
	}
	return nil
}

// LivePayloads returns the number of payloads not yet closed.
func LivePayloads() int64 {
	return livePayloads.Load()
}
