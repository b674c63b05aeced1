package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/andy6609/chat-relay/internal/netio"
	"github.com/andy6609/chat-relay/internal/peer"
	"github.com/andy6609/chat-relay/internal/relay"
)

func main() {
	host := flag.String("host", "127.0.0.1", "relay host")
	port := flag.Int("port", relay.DefaultPort, "relay port")
	flag.Parse()

	// Stdout is the chat display; diagnostics go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	fd, err := netio.Dial(*host, *port)
	if err != nil {
		logger.Error("connection failed", "error", err)
		if errors.Is(err, netio.ErrResolve) {
			os.Exit(2)
		}
		os.Exit(3)
	}

	p, err := peer.New(fd, int(os.Stdin.Fd()), os.Stdout, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		p.RequestShutdown()
	}()

	fmt.Printf("connected to %s:%d\n", *host, *port)
	if err := p.Run(); err != nil {
		logger.Error("peer terminated", "error", err)
		os.Exit(1)
	}
}
