// Package netpoll is a thin level-triggered readiness layer over poll(2).
//
// The caller hands Wait the full interest set on every call; nothing is
// registered or persisted between calls. That matches a loop that derives
// its interest set from live state each iteration.
package netpoll

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Readable is reported for POLLIN as well as POLLHUP/POLLERR/POLLNVAL:
// a hung-up or broken descriptor must be read so the caller observes the
// end-of-stream or error and tears the session down.
const readableEvents = unix.POLLIN | unix.POLLHUP | unix.POLLERR | unix.POLLNVAL

// Wait blocks until at least one of fds is ready for reading and returns a
// slice aligned with fds marking the ready ones. There is no timeout; an
// interrupted wait (EINTR) is retried transparently.
func Wait(fds []int) ([]bool, error) {
	pollfds := make([]unix.PollFd, len(fds))
	for i, fd := range fds {
		pollfds[i] = unix.PollFd{Fd: int32(fd), Events: unix.POLLIN}
	}

	for {
		n, err := unix.Poll(pollfds, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("poll: %w", err)
		}
		if n == 0 {
			// Infinite timeout should never report zero; treat as spurious.
			continue
		}
		break
	}

	ready := make([]bool, len(fds))
	for i := range pollfds {
		ready[i] = pollfds[i].Revents&readableEvents != 0
	}
	return ready, nil
}

// Drain consumes whatever is pending on a ready wake descriptor; the bytes
// themselves carry no meaning.
func Drain(fd int) {
	var buf [64]byte
	_, _ = unix.Read(fd, buf[:])
}
