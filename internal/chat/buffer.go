package chat

import (
	"io"

	"github.com/omochice/line-relay/pkg/protocol"
)

// baseCapacity is the first allocation for either direction of a Buffer.
const baseCapacity = 128

// Buffer accumulates the input and output bytes of one connection.
//
// Input bytes before the consumed offset and output bytes before the sent
// offset are logically gone. They are compacted away before a slice grows
// and are never re-read or re-sent.
//
// The zero value is an empty buffer ready to use.
type Buffer struct {
	in     []byte
	inOff  int
	out    []byte
	outOff int
}

// Fill performs one read of up to size bytes from r into the input.
// Framing is left to Frames.
func (b *Buffer) Fill(r io.Reader, size int) (int, error) {
	b.in, b.inOff = reserve(b.in, b.inOff, size)
	start := len(b.in)
	n, err := r.Read(b.in[start : start+size])
	if n > 0 {
		b.in = b.in[:start+n]
	}
	return n, err
}

// Append adds already-read bytes to the input.
func (b *Buffer) Append(p []byte) {
	b.in, b.inOff = reserve(b.in, b.inOff, len(p))
	b.in = append(b.in, p...)
}

// Frames extracts every complete, non-empty frame from the input and
// compacts what was consumed. Empty lines are dropped without producing a
// message.
func (b *Buffer) Frames() []protocol.Message {
	payloads, consumed := protocol.Split(b.in[b.inOff:])

	var msgs []protocol.Message
	for _, p := range payloads {
		msgs = append(msgs, protocol.NewMessage(p))
	}

	b.inOff += consumed
	if b.inOff == len(b.in) {
		b.in = b.in[:0]
	} else if b.inOff > 0 {
		b.in = b.in[:copy(b.in, b.in[b.inOff:])]
	}
	b.inOff = 0

	return msgs
}

// Buffered returns the number of input bytes not yet part of a frame.
func (b *Buffer) Buffered() int {
	return len(b.in) - b.inOff
}

// Feed queues msg followed by the delimiter. It returns true when the output
// was empty before, meaning write interest must now be armed.
func (b *Buffer) Feed(msg protocol.Message) bool {
	wasEmpty := b.Pending() == 0
	b.out, b.outOff = reserve(b.out, b.outOff, len(msg.Payload)+1)
	b.out = append(b.out, msg.Payload...)
	b.out = append(b.out, protocol.Delimiter)
	return wasEmpty
}

// Write queues p unchanged. The caller is responsible for delimiters.
// It returns true when the output was empty before and p is non-empty.
func (b *Buffer) Write(p []byte) bool {
	if len(p) == 0 {
		return false
	}
	wasEmpty := b.Pending() == 0
	b.out, b.outOff = reserve(b.out, b.outOff, len(p))
	b.out = append(b.out, p...)
	return wasEmpty
}

// Pending returns the number of output bytes not yet sent.
func (b *Buffer) Pending() int {
	return len(b.out) - b.outOff
}

// Flush performs one write of the unsent output to w and advances the sent
// offset by however many bytes w accepted. w may accept fewer bytes than
// offered without an error; the rest goes out on a later call.
func (b *Buffer) Flush(w io.Writer) (int, error) {
	if b.Pending() == 0 {
		return 0, nil
	}
	n, err := w.Write(b.out[b.outOff:])
	if n > 0 {
		b.outOff += n
	}
	if b.outOff == len(b.out) {
		b.out = b.out[:0]
		b.outOff = 0
	}
	return n, err
}

// Release drops both slices. The buffer must not be used afterwards.
func (b *Buffer) Release() {
	b.in, b.inOff = nil, 0
	b.out, b.outOff = nil, 0
}

// reserve returns buf with room for n more bytes after len(buf). Dead bytes
// before off are compacted away first; the returned offset is then 0.
func reserve(buf []byte, off, n int) ([]byte, int) {
	if cap(buf)-len(buf) >= n {
		return buf, off
	}
	if off > 0 {
		buf = buf[:copy(buf, buf[off:])]
		off = 0
		if cap(buf)-len(buf) >= n {
			return buf, off
		}
	}
	grown := make([]byte, len(buf), nextCapacity(cap(buf), len(buf)+n))
	copy(grown, buf)
	return grown, off
}

// nextCapacity doubles cur from baseCapacity, or jumps straight to need when
// one doubling step is not enough.
func nextCapacity(cur, need int) int {
	next := cur * 2
	if next < baseCapacity {
		next = baseCapacity
	}
	if next < need {
		next = need
	}
	return next
}
