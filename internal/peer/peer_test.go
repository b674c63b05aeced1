package peer

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/andy6609/chat-relay/internal/netio"
)

type testPeer struct {
	p      *Peer
	relay  int // test-held end of the relay connection
	inputW int // test-held write end of the console pipe
	out    *bytes.Buffer
	logs   *bytes.Buffer
	done   chan error
}

// startPeer wires a Peer to a socketpair standing in for the relay
// connection and a pipe standing in for the console.
func startPeer(t *testing.T) *testPeer {
	t.Helper()

	conn, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	var input [2]int
	if err := unix.Pipe(input[:]); err != nil {
		t.Fatalf("input pipe: %v", err)
	}

	out := &bytes.Buffer{}
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(logs, nil))
	p, err := New(conn[0], input[0], out, logger)
	if err != nil {
		t.Fatalf("new peer: %v", err)
	}

	tp := &testPeer{p: p, relay: conn[1], inputW: input[1], out: out, logs: logs, done: make(chan error, 1)}
	go func() { tp.done <- p.Run() }()

	t.Cleanup(func() {
		p.RequestShutdown()
		select {
		case <-tp.done:
		case <-time.After(2 * time.Second):
		}
		if tp.relay >= 0 {
			unix.Close(tp.relay)
		}
		unix.Close(input[0])
		if tp.inputW >= 0 {
			unix.Close(tp.inputW)
		}
	})
	return tp
}

// join waits for Run to return; only after that is tp.out safe to inspect.
func (tp *testPeer) join(t *testing.T) error {
	t.Helper()
	select {
	case err := <-tp.done:
		tp.done <- err
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("peer loop did not exit")
		return nil
	}
}

func (tp *testPeer) typeLine(t *testing.T, line string) {
	t.Helper()
	if err := netio.WriteAll(tp.inputW, []byte(line+"\n")); err != nil {
		t.Fatalf("console write: %v", err)
	}
}

// readRelay reads one message from the test-held connection end, with a
// poll timeout so a broken peer cannot hang the test.
func (tp *testPeer) readRelay(t *testing.T) (string, bool) {
	t.Helper()
	pollfds := []unix.PollFd{{Fd: int32(tp.relay), Events: unix.POLLIN}}
	n, err := unix.Poll(pollfds, 2000)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if n == 0 {
		t.Fatalf("timeout waiting for peer output")
	}
	buf := make([]byte, 1024)
	rn, err := netio.ReadOnce(tp.relay, buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if rn == 0 {
		return "", false // peer closed the connection
	}
	return string(buf[:rn]), true
}

func TestPeer_ForwardsConsoleLineToRelay(t *testing.T) {
	tp := startPeer(t)

	tp.typeLine(t, "hello")

	msg, open := tp.readRelay(t)
	if !open {
		t.Fatalf("connection closed before message arrived")
	}
	if msg != "hello" {
		t.Fatalf("got %q, want %q (trailing newline must be stripped)", msg, "hello")
	}
}

func TestPeer_QuitExitsWithoutNotifyingRelay(t *testing.T) {
	tp := startPeer(t)

	tp.typeLine(t, "/quit")

	if err := tp.join(t); err != nil {
		t.Fatalf("expected clean exit, got %v", err)
	}

	// The only thing the relay side observes is the connection closing.
	msg, open := tp.readRelay(t)
	if open {
		t.Fatalf("peer sent %q on quit; it must not notify the relay", msg)
	}
}

func TestPeer_DisplaysIncomingMessage(t *testing.T) {
	tp := startPeer(t)

	if err := netio.WriteAll(tp.relay, []byte("yo from B")); err != nil {
		t.Fatalf("relay write: %v", err)
	}
	tp.typeLine(t, "/quit")

	if err := tp.join(t); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(tp.out.String(), "yo from B") {
		t.Fatalf("console output missing incoming message: %q", tp.out.String())
	}
}

func TestPeer_DisconnectNoticeOnRelayClose(t *testing.T) {
	tp := startPeer(t)

	unix.Close(tp.relay)
	tp.relay = -1

	if err := tp.join(t); err != nil {
		t.Fatalf("expected clean exit on disconnect, got %v", err)
	}
	if !strings.Contains(tp.out.String(), "disconnected from relay") {
		t.Fatalf("missing disconnect notice in output: %q", tp.out.String())
	}
	if !strings.Contains(tp.logs.String(), "relay connection closed") {
		t.Fatalf("missing connection-closed log entry: %q", tp.logs.String())
	}
}

func TestPeer_LogsConsoleClose(t *testing.T) {
	tp := startPeer(t)

	unix.Close(tp.inputW)
	tp.inputW = -1

	if err := tp.join(t); err != nil {
		t.Fatalf("expected clean exit on console close, got %v", err)
	}
	if !strings.Contains(tp.logs.String(), "console closed") {
		t.Fatalf("missing console-closed log entry: %q", tp.logs.String())
	}
}

func TestPeer_ShutdownRequestStopsLoop(t *testing.T) {
	tp := startPeer(t)

	tp.p.RequestShutdown()

	if err := tp.join(t); err != nil {
		t.Fatalf("expected clean exit, got %v", err)
	}
}

func TestPeer_EmptyLineIsNotSent(t *testing.T) {
	tp := startPeer(t)

	tp.typeLine(t, "")
	// Let the loop service the blank line before the next one lands, so the
	// two console writes cannot coalesce into a single read.
	time.Sleep(50 * time.Millisecond)
	tp.typeLine(t, "after")

	msg, open := tp.readRelay(t)
	if !open {
		t.Fatalf("connection closed unexpectedly")
	}
	if msg != "after" {
		t.Fatalf("got %q, want %q (empty line must be dropped)", msg, "after")
	}
}
