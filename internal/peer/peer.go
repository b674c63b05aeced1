// Package peer implements the interactive client half of the relay: one
// connection to the relay multiplexed with console input on a single loop.
package peer

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/andy6609/chat-relay/internal/netio"
	"github.com/andy6609/chat-relay/internal/netpoll"
)

const (
	// Inbound relay traffic is read in bounded chunks; one read is one
	// displayed message, same non-framing contract as the relay side.
	inboundBufferSize = 1024
	inputBufferSize   = 256

	prompt      = "Type Message > "
	quitCommand = "/quit"
)

// Peer owns the relay connection descriptor for its whole lifetime and
// closes it when Run returns.
type Peer struct {
	connFD  int
	inputFD int
	out     io.Writer
	logger  *slog.Logger

	wakeR, wakeW int
	shutdown     atomic.Bool
}

// New wires a peer around an already-connected descriptor. inputFD is the
// console source (stdin in the binary, a pipe in tests); out receives
// incoming messages and notices.
func New(connFD, inputFD int, out io.Writer, logger *slog.Logger) (*Peer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if out == nil {
		out = os.Stdout
	}
	var pipe [2]int
	if err := unix.Pipe(pipe[:]); err != nil {
		return nil, fmt.Errorf("wake pipe: %w", err)
	}
	return &Peer{
		connFD:  connFD,
		inputFD: inputFD,
		out:     out,
		logger:  logger,
		wakeR:   pipe[0],
		wakeW:   pipe[1],
	}, nil
}

// RequestShutdown flags the loop to exit and wakes it if blocked. Safe to
// call from a signal-notify goroutine.
func (p *Peer) RequestShutdown() {
	if p.shutdown.CompareAndSwap(false, true) {
		_, _ = unix.Write(p.wakeW, []byte{0})
	}
}

// Run services the connection and the console until the relay disconnects,
// the operator types /quit, or a shutdown is requested. A local quit does
// not notify the relay; the connection is simply closed.
func (p *Peer) Run() error {
	defer netio.Close(p.connFD)

	inbound := make([]byte, inboundBufferSize)
	input := make([]byte, inputBufferSize)

	fmt.Fprint(p.out, prompt)
	for {
		ready, err := netpoll.Wait([]int{p.wakeR, p.connFD, p.inputFD})
		if err != nil {
			return err
		}

		if ready[0] {
			netpoll.Drain(p.wakeR)
		}
		if p.shutdown.Load() {
			return nil
		}

		if ready[1] {
			n, err := netio.ReadOnce(p.connFD, inbound)
			if err != nil || n == 0 {
				fmt.Fprintln(p.out, "\ndisconnected from relay")
				if err != nil {
					p.logger.Info("relay connection closed", "error", err)
				} else {
					p.logger.Info("relay connection closed")
				}
				return nil
			}
			fmt.Fprintf(p.out, "\n%s\n%s", inbound[:n], prompt)
		}

		if ready[2] {
			n, err := netio.ReadOnce(p.inputFD, input)
			if err != nil || n == 0 {
				// Console closed; exit quietly.
				p.logger.Info("console closed")
				return nil
			}
			line := strings.TrimRight(string(input[:n]), "\r\n")
			if line == quitCommand {
				return nil
			}
			if line == "" {
				fmt.Fprint(p.out, prompt)
				continue
			}
			if err := netio.WriteAll(p.connFD, []byte(line)); err != nil {
				return fmt.Errorf("send: %w", err)
			}
			fmt.Fprint(p.out, prompt)
		}
	}
}
