package netio

import (
	"errors"
	"fmt"
	"net"
	"net/netip"

	"golang.org/x/sys/unix"
)

// Dial stage errors. Callers map them to distinct process exit codes.
var (
	ErrResolve = errors.New("resolve failed")
	ErrConnect = errors.New("connect failed")
)

// Dial resolves host and connects to the first reachable address, trying
// each resolved address in turn the way getaddrinfo clients do.
func Dial(host string, port int) (int, error) {
	addrs, err := net.LookupHost(host)
	if err != nil {
		return -1, fmt.Errorf("%w: %s: %v", ErrResolve, host, err)
	}

	var lastErr error
	for _, a := range addrs {
		ip, err := netip.ParseAddr(a)
		if err != nil {
			lastErr = err
			continue
		}
		fd, err := connectAddr(ip, port)
		if err != nil {
			lastErr = err
			continue
		}
		return fd, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no usable address")
	}
	return -1, fmt.Errorf("%w: %s:%d: %v", ErrConnect, host, port, lastErr)
}

func connectAddr(ip netip.Addr, port int) (int, error) {
	family := unix.AF_INET6
	var sa unix.Sockaddr
	if ip.Unmap().Is4() {
		family = unix.AF_INET
		sa = &unix.SockaddrInet4{Port: port, Addr: ip.Unmap().As4()}
	} else {
		sa = &unix.SockaddrInet6{Port: port, Addr: ip.As16()}
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	if err := unix.Connect(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("connect %s: %w", ip, err)
	}
	return fd, nil
}
