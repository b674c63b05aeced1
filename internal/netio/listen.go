// Package netio owns socket construction and descriptor-level I/O for the
// relay and the peer program. Everything above it deals in plain fds.
package netio

import (
	"fmt"
	"net/netip"

	"golang.org/x/sys/unix"
)

const listenBacklog = 10

// Listen opens a TCP listening socket bound to all local addresses on port.
// A dual-stack IPv6 socket is preferred; IPv4 is the fallback. Port 0 asks
// the kernel for an ephemeral port (see ListenPort).
func Listen(port int) (int, error) {
	fd, err6 := listenFamily(unix.AF_INET6, port)
	if err6 == nil {
		return fd, nil
	}
	fd, err4 := listenFamily(unix.AF_INET, port)
	if err4 != nil {
		// Report both failures; either alone hides why the other family
		// was unusable.
		return -1, fmt.Errorf("listen: ipv6: %v; ipv4: %w", err6, err4)
	}
	return fd, nil
}

func listenFamily(family, port int) (int, error) {
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)

	var sa unix.Sockaddr
	if family == unix.AF_INET6 {
		// Clear V6ONLY so the one socket serves IPv4 peers as well.
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0)
		sa = &unix.SockaddrInet6{Port: port}
	} else {
		sa = &unix.SockaddrInet4{Port: port}
	}

	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("bind: %w", err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("listen: %w", err)
	}
	return fd, nil
}

// ListenPort reports the local port a listening socket is bound to.
func ListenPort(fd int) (int, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return 0, fmt.Errorf("getsockname: %w", err)
	}
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return sa.Port, nil
	case *unix.SockaddrInet6:
		return sa.Port, nil
	}
	return 0, fmt.Errorf("getsockname: unexpected address family")
}

// Accept takes exactly one pending connection from a ready listener and
// returns the new descriptor together with the remote address.
func Accept(listenFD int) (int, string, error) {
	for {
		fd, sa, err := unix.Accept(listenFD)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return -1, "", fmt.Errorf("accept: %w", err)
		}
		return fd, sockaddrString(sa), nil
	}
}

func sockaddrString(sa unix.Sockaddr) string {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port)).String()
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(sa.Addr).Unmap(), uint16(sa.Port)).String()
	}
	return "unknown"
}
