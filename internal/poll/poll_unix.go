//go:build unix && !linux

package poll

import (
	"time"

	"github.com/omochice/line-relay/internal/chat"
)

// Poller multiplexes with poll(2).
type Poller struct {
	set *pollSet
}

// New creates a Poller returning at most maxEvents per Wait.
// A non-positive maxEvents selects DefaultMaxEvents.
func New(maxEvents int) (*Poller, error) {
	return &Poller{set: newPollSet(maxEvents)}, nil
}

// Register starts watching fd. tag is returned with every event for fd.
func (p *Poller) Register(fd int, interest Interest, tag uint64) error {
	return p.set.register(fd, interest, tag)
}

// Modify replaces the interest set of a registered fd.
func (p *Poller) Modify(fd int, interest Interest) error {
	return p.set.modify(fd, interest)
}

// Unregister stops watching fd.
func (p *Poller) Unregister(fd int) error {
	return p.set.unregister(fd)
}

// Wait blocks up to timeout for readiness. It returns no events and a nil
// error when the deadline passes quietly.
func (p *Poller) Wait(timeout time.Duration) ([]Event, error) {
	return p.set.wait(timeout)
}

// Fd is not available for poll(2).
func (p *Poller) Fd() (int, error) {
	return -1, chat.ErrNotImplemented
}

// Close forgets every registration.
func (p *Poller) Close() error {
	p.set.close()
	return nil
}
