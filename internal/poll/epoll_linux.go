//go:build linux

package poll

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/omochice/line-relay/internal/chat"
)

// Poller is an epoll instance.
type Poller struct {
	epfd   int
	tags   map[int]uint64
	events []unix.EpollEvent
	closed bool
}

// New creates a Poller returning at most maxEvents per Wait.
// A non-positive maxEvents selects DefaultMaxEvents.
func New(maxEvents int) (*Poller, error) {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, chat.NewSystemError("create epoll", err)
	}
	return &Poller{
		epfd:   epfd,
		tags:   make(map[int]uint64),
		events: make([]unix.EpollEvent, maxEvents),
	}, nil
}

func epollEvents(interest Interest) uint32 {
	var ev uint32
	if interest&Read != 0 {
		ev |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if interest&Write != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

// Register starts watching fd. tag is returned with every event for fd.
func (p *Poller) Register(fd int, interest Interest, tag uint64) error {
	ev := unix.EpollEvent{Events: epollEvents(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return chat.NewSystemError("register descriptor", err)
	}
	p.tags[fd] = tag
	return nil
}

// Modify replaces the interest set of a registered fd.
func (p *Poller) Modify(fd int, interest Interest) error {
	ev := unix.EpollEvent{Events: epollEvents(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return chat.NewSystemError("modify interest", err)
	}
	return nil
}

// Unregister stops watching fd. It must be called before fd is closed.
func (p *Poller) Unregister(fd int) error {
	delete(p.tags, fd)
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return chat.NewSystemError("unregister descriptor", err)
	}
	return nil
}

// Wait blocks up to timeout for readiness. It returns no events and a nil
// error when the deadline passes quietly.
func (p *Poller) Wait(timeout time.Duration) ([]Event, error) {
	if p.closed {
		return nil, chat.NewSystemError("wait", unix.EBADF)
	}

	deadline := time.Now().Add(timeout)
	for {
		n, err := unix.EpollWait(p.epfd, p.events, millis(timeout))
		if err == unix.EINTR {
			timeout = remaining(timeout, deadline)
			continue
		}
		if err != nil {
			return nil, chat.NewSystemError("wait", err)
		}

		var out []Event
		for _, ev := range p.events[:n] {
			fd := int(ev.Fd)
			out = append(out, Event{
				Fd:       fd,
				Tag:      p.tags[fd],
				Readable: ev.Events&(unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLHUP|unix.EPOLLERR) != 0,
				Writable: ev.Events&unix.EPOLLOUT != 0,
			})
		}
		return out, nil
	}
}

// Fd returns the epoll descriptor. It becomes readable whenever any
// registered descriptor is ready, so a Poller can be nested in another
// event loop.
func (p *Poller) Fd() (int, error) {
	if p.closed {
		return -1, chat.ErrNotStarted
	}
	return p.epfd, nil
}

// Close releases the epoll descriptor. Registered descriptors are not closed.
func (p *Poller) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.tags = nil
	return chat.NewSystemError("close epoll", unix.Close(p.epfd))
}
