package netio

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// ReadOnce performs a single read against fd. A return of (0, nil) means
// the peer closed the stream. One read is one application-level message;
// there is no framing above the read boundary.
func ReadOnce(fd int, buf []byte) (int, error) {
	for {
		n, err := unix.Read(fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("read: %w", err)
		}
		return n, nil
	}
}

// WriteAll writes p completely, reissuing the write for any unsent
// remainder until everything is on the wire or a write fails outright.
func WriteAll(fd int, p []byte) error {
	for len(p) > 0 {
		n, err := unix.Write(fd, p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("write: %w", err)
		}
		p = p[n:]
	}
	return nil
}

// Close releases fd.
func Close(fd int) error {
	return unix.Close(fd)
}
