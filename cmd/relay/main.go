package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/andy6609/chat-relay/internal/relay"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	port := flag.Int("port", 0, "listen port (overrides config)")
	capacity := flag.Int("capacity", 0, "max simultaneous peers (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "metrics listen address (overrides config)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg := relay.DefaultConfig()
	if *configPath != "" {
		loaded, err := relay.LoadConfig(*configPath)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *capacity != 0 {
		cfg.Capacity = *capacity
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	srv := relay.NewServer(cfg, logger)
	if err := srv.Start(); err != nil {
		logger.Error("failed to start relay", "error", err)
		os.Exit(1)
	}

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.MetricsAddr, nil); err != nil {
			logger.Error("metrics endpoint failed", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		srv.RequestShutdown()
	}()

	if err := srv.Run(); err != nil {
		logger.Error("relay terminated", "error", err)
		os.Exit(1)
	}
}
