//go:build unix

package poll

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/omochice/line-relay/internal/chat"
)

// pollSet multiplexes with poll(2). The descriptor set lives in user space,
// so there is no descriptor for the set itself.
type pollSet struct {
	fds       []unix.PollFd
	tags      []uint64
	index     map[int]int
	maxEvents int
	closed    bool
}

func newPollSet(maxEvents int) *pollSet {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	return &pollSet{
		index:     make(map[int]int),
		maxEvents: maxEvents,
	}
}

func pollEvents(interest Interest) int16 {
	var ev int16
	if interest&Read != 0 {
		ev |= unix.POLLIN
	}
	if interest&Write != 0 {
		ev |= unix.POLLOUT
	}
	return ev
}

func (p *pollSet) register(fd int, interest Interest, tag uint64) error {
	if p.closed {
		return chat.NewSystemError("register descriptor", unix.EBADF)
	}
	if _, ok := p.index[fd]; ok {
		return chat.NewSystemError("register descriptor", unix.EEXIST)
	}
	p.index[fd] = len(p.fds)
	p.fds = append(p.fds, unix.PollFd{Fd: int32(fd), Events: pollEvents(interest)})
	p.tags = append(p.tags, tag)
	return nil
}

func (p *pollSet) modify(fd int, interest Interest) error {
	i, ok := p.index[fd]
	if !ok {
		return chat.NewSystemError("modify interest", unix.ENOENT)
	}
	p.fds[i].Events = pollEvents(interest)
	return nil
}

// unregister moves the last entry into the freed slot.
func (p *pollSet) unregister(fd int) error {
	i, ok := p.index[fd]
	if !ok {
		return chat.NewSystemError("unregister descriptor", unix.ENOENT)
	}
	last := len(p.fds) - 1
	if i != last {
		p.fds[i] = p.fds[last]
		p.tags[i] = p.tags[last]
		p.index[int(p.fds[i].Fd)] = i
	}
	p.fds = p.fds[:last]
	p.tags = p.tags[:last]
	delete(p.index, fd)
	return nil
}

func (p *pollSet) wait(timeout time.Duration) ([]Event, error) {
	if p.closed {
		return nil, chat.NewSystemError("wait", unix.EBADF)
	}

	deadline := time.Now().Add(timeout)
	for {
		for i := range p.fds {
			p.fds[i].Revents = 0
		}
		_, err := unix.Poll(p.fds, millis(timeout))
		if err == unix.EINTR {
			timeout = remaining(timeout, deadline)
			continue
		}
		if err != nil {
			return nil, chat.NewSystemError("wait", err)
		}

		var out []Event
		for i, pfd := range p.fds {
			if pfd.Revents == 0 {
				continue
			}
			out = append(out, Event{
				Fd:       int(pfd.Fd),
				Tag:      p.tags[i],
				Readable: pfd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0,
				Writable: pfd.Revents&unix.POLLOUT != 0,
			})
			if len(out) == p.maxEvents {
				break
			}
		}
		return out, nil
	}
}

func (p *pollSet) close() {
	p.closed = true
	p.fds, p.tags, p.index = nil, nil, nil
}
