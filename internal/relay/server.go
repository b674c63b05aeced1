package relay

import (
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/andy6609/chat-relay/internal/netio"
	"github.com/andy6609/chat-relay/internal/netpoll"
)

// maxWaitFailures bounds consecutive non-interrupt multiplexer failures
// before the loop gives up and terminates.
const maxWaitFailures = 8

type sourceKind int

const (
	srcWake sourceKind = iota
	srcListener
	srcSlot
	srcControl
)

type pollEntry struct {
	fd   int
	kind sourceKind
	ref  SlotRef
}

// Server runs the relay: one listening socket, a bounded registry of peer
// connections, and a single-threaded level-triggered event loop. All
// registry and session state is touched only between one wait and the next.
type Server struct {
	cfg     Config
	logger  *slog.Logger
	reg     *Registry
	readBuf []byte

	listenFD  int
	controlFD int
	// Wake pipe: RequestShutdown writes one byte so a blocked wait returns.
	wakeR, wakeW int
	controlGone  bool

	shutdown atomic.Bool
	state    loopState
}

func NewServer(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.ReadBuffer <= 0 {
		cfg.ReadBuffer = defaultReadBuffer
	}
	return &Server{
		cfg:       cfg,
		logger:    logger,
		reg:       NewRegistry(cfg.Capacity),
		readBuf:   make([]byte, cfg.ReadBuffer),
		listenFD:  -1,
		controlFD: cfg.ControlFD,
		wakeR:     -1,
		wakeW:     -1,
	}
}

// Start binds the listening socket and the internal wake pipe. It does not
// run the loop; call Run after a successful Start.
func (s *Server) Start() error {
	lfd, err := netio.Listen(s.cfg.Port)
	if err != nil {
		return err
	}

	var pipe [2]int
	if err := unix.Pipe(pipe[:]); err != nil {
		netio.Close(lfd)
		return fmt.Errorf("wake pipe: %w", err)
	}
	s.listenFD = lfd
	s.wakeR, s.wakeW = pipe[0], pipe[1]

	if port, err := netio.ListenPort(lfd); err == nil {
		s.cfg.Port = port
	}
	s.logger.Info("relay listening", "port", s.cfg.Port, "capacity", s.reg.Capacity())
	return nil
}

// Port reports the bound listening port, which differs from the configured
// one when port 0 was requested.
func (s *Server) Port() int {
	return s.cfg.Port
}

// RequestShutdown flags the loop to tear down and wakes it if blocked.
// Safe to call from a signal-notify goroutine; it performs no I/O on
// connections and no teardown itself.
func (s *Server) RequestShutdown() {
	if s.shutdown.CompareAndSwap(false, true) {
		_, _ = unix.Write(s.wakeW, []byte{0})
	}
}

// Run drives the event loop until shutdown or a fatal multiplexer failure.
// Per wake the service order is fixed: wake pipe, shutdown check, acceptor,
// occupied slots in ascending order, control source.
func (s *Server) Run() error {
	waitFailures := 0
	s.state = stateRunning

	for s.state == stateRunning {
		entries := s.interestSet()
		fds := make([]int, len(entries))
		for i, e := range entries {
			fds[i] = e.fd
		}

		ready, err := netpoll.Wait(fds)
		if err != nil {
			waitFailures++
			s.logger.Error("wait failed", "error", err, "consecutive", waitFailures)
			if waitFailures >= maxWaitFailures {
				s.teardown()
				return fmt.Errorf("multiplexer: %d consecutive failures: %w", waitFailures, err)
			}
			continue
		}
		waitFailures = 0

		if ready[0] {
			netpoll.Drain(s.wakeR)
		}
		if s.shutdown.Load() {
			s.state = stateShuttingDown
			continue
		}

		for i := 1; i < len(entries); i++ {
			if !ready[i] {
				continue
			}
			switch entries[i].kind {
			case srcListener:
				s.acceptOne()
			case srcSlot:
				s.serviceSlot(entries[i].ref)
			case srcControl:
				s.serviceControl()
			}
		}
	}

	if s.state == stateShuttingDown {
		s.teardown()
	}
	return nil
}

// interestSet is rebuilt from scratch every iteration: it is a projection
// of current registry state plus the fixed sources, never carried over.
func (s *Server) interestSet() []pollEntry {
	occupied := s.reg.Occupied()
	entries := make([]pollEntry, 0, len(occupied)+3)
	entries = append(entries, pollEntry{fd: s.wakeR, kind: srcWake})
	entries = append(entries, pollEntry{fd: s.listenFD, kind: srcListener})
	for _, ref := range occupied {
		entries = append(entries, pollEntry{fd: ref.FD, kind: srcSlot, ref: ref})
	}
	if !s.controlGone {
		entries = append(entries, pollEntry{fd: s.controlFD, kind: srcControl})
	}
	return entries
}

// acceptOne takes a single pending connection per wake. The new slot joins
// the interest set on the next iteration, never the current one.
func (s *Server) acceptOne() {
	fd, remote, err := netio.Accept(s.listenFD)
	if err != nil {
		s.logger.Error("accept failed", "error", err)
		return
	}

	index, err := s.reg.Allocate(fd)
	if err != nil {
		// Registry full: the surplus connection is closed, not leaked.
		RejectedConnections.Inc()
		netio.Close(fd)
		s.logger.Warn("connection rejected", "remote", remote, "error", err)
		return
	}
	ConnectedPeers.Set(float64(s.reg.Count()))
	s.logger.Info("client connected", "remote", remote, "slot", index)
}

// serviceControl reads one console line. "quit" triggers shutdown, anything
// else is ignored.
func (s *Server) serviceControl() {
	buf := make([]byte, 64)
	n, err := netio.ReadOnce(s.controlFD, buf)
	if err != nil || n == 0 {
		// Console went away; stop watching it so the loop does not spin.
		s.controlGone = true
		return
	}
	if strings.HasPrefix(string(buf[:n]), "quit") {
		s.logger.Info("quit command received")
		s.RequestShutdown()
		return
	}
	s.logger.Info("command ignored", "input", strings.TrimSpace(string(buf[:n])))
}

// teardown closes everything the loop owns: the listener first, then every
// occupied slot. Single idempotent pass, bounded by registry capacity. The
// wake pipe stays open so a late RequestShutdown never touches a reused fd.
func (s *Server) teardown() {
	if s.listenFD >= 0 {
		netio.Close(s.listenFD)
		s.listenFD = -1
	}
	for _, ref := range s.reg.Occupied() {
		netio.Close(ref.FD)
		s.reg.Free(ref.Index)
	}
	ConnectedPeers.Set(0)
	s.state = stateTerminated
	s.logger.Info("shutdown complete")
}
