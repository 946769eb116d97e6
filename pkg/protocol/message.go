// Package protocol defines the relay wire format: a stream of
// newline-delimited byte frames with no length prefix and no escaping.
package protocol

import (
	"bytes"
	"errors"
)

// Delimiter terminates every frame on the wire.
const Delimiter byte = '\n'

// ErrDelimiterInPayload is returned by Validate for payloads that cannot be
// carried as a single frame.
var ErrDelimiterInPayload = errors.New("payload contains frame delimiter")

// Message is one complete frame with the delimiter stripped.
// The payload is owned by whoever popped the message.
type Message struct {
	Payload []byte
}

// NewMessage copies payload into a new Message.
func NewMessage(payload []byte) Message {
	return Message{Payload: bytes.Clone(payload)}
}

// String returns the payload as text.
func (m Message) String() string {
	return string(m.Payload)
}

// Len returns the payload length in bytes.
func (m Message) Len() int {
	return len(m.Payload)
}

// Frame returns payload followed by the delimiter.
func Frame(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+1)
	out = append(out, payload...)
	return append(out, Delimiter)
}

// Validate reports whether payload can be sent as exactly one frame.
func Validate(payload []byte) error {
	if bytes.IndexByte(payload, Delimiter) >= 0 {
		return ErrDelimiterInPayload
	}
	return nil
}

// Split scans data for complete frames. It returns the non-empty payloads
// in order and the number of bytes consumed, which always ends just past the
// last delimiter found. Empty lines are consumed but produce no payload.
// Returned payloads alias data.
func Split(data []byte) (payloads [][]byte, consumed int) {
	for {
		i := bytes.IndexByte(data[consumed:], Delimiter)
		if i < 0 {
			return payloads, consumed
		}
		if i > 0 {
			payloads = append(payloads, data[consumed:consumed+i])
		}
		consumed += i + 1
	}
}
