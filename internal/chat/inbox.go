package chat

import "github.com/omochice/line-relay/pkg/protocol"

// Inbox is a FIFO queue of messages waiting to be popped by the application.
type Inbox struct {
	msgs []protocol.Message
	head int
}

// Push appends msgs in order.
func (q *Inbox) Push(msgs ...protocol.Message) {
	if q.head > 0 && len(q.msgs)+len(msgs) > cap(q.msgs) {
		n := copy(q.msgs, q.msgs[q.head:])
		clear(q.msgs[n:])
		q.msgs = q.msgs[:n]
		q.head = 0
	}
	q.msgs = append(q.msgs, msgs...)
}

// Pop removes and returns the oldest message.
func (q *Inbox) Pop() (protocol.Message, bool) {
	if q.head == len(q.msgs) {
		return protocol.Message{}, false
	}
	msg := q.msgs[q.head]
	q.msgs[q.head] = protocol.Message{}
	q.head++
	if q.head == len(q.msgs) {
		q.msgs = q.msgs[:0]
		q.head = 0
	}
	return msg, true
}

// Len returns the number of queued messages.
func (q *Inbox) Len() int {
	return len(q.msgs) - q.head
}
