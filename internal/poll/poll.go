// Package poll waits for readiness on many descriptors at once.
//
// Interest is level-triggered: a registered descriptor is reported on every
// Wait for as long as it stays ready. Callers keep write interest armed only
// while they have output queued, otherwise an idle socket reports writable
// forever.
package poll

import (
	"math"
	"strings"
	"time"
)

// DefaultMaxEvents bounds how many events a single Wait returns.
const DefaultMaxEvents = 128

// Interest selects the readiness conditions a descriptor is watched for.
type Interest uint8

const (
	Read Interest = 1 << iota
	Write
)

func (i Interest) String() string {
	var parts []string
	if i&Read != 0 {
		parts = append(parts, "READ")
	}
	if i&Write != 0 {
		parts = append(parts, "WRITE")
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

// Event reports readiness of one registered descriptor.
// Hang-up and error conditions are reported as Readable so that the next
// read observes them.
type Event struct {
	Fd       int
	Tag      uint64
	Readable bool
	Writable bool
}

// maxWait is the longest timeout the kernel accepts as a C int of
// milliseconds.
const maxWait = math.MaxInt32 * time.Millisecond

// millis converts a Wait timeout to the millisecond argument of the
// underlying syscall, rounding up so short timeouts still block.
// Negative timeouts block indefinitely. Longer timeouts are capped at
// maxWait.
func millis(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}
	if timeout >= maxWait {
		return math.MaxInt32
	}
	return int((timeout + time.Millisecond - 1) / time.Millisecond)
}

// remaining recomputes the timeout after an interrupted wait.
func remaining(timeout time.Duration, deadline time.Time) time.Duration {
	if timeout < 0 {
		return timeout
	}
	left := time.Until(deadline)
	if left < 0 {
		return 0
	}
	return left
}
