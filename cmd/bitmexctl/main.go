// bitmexctl is a thin example embedder of internal/bitmex: it loads
// configuration, connects the realtime feed, subscribes to a handful of
// channels, and waits until signaled to stop. It does not print the
// updates it receives.
//
// Architecture:
//
//	main.go                 — entry point: loads config, connects, waits for SIGINT/SIGTERM
//	internal/bitmex         — facade wiring transport, applicator, registries, REST, and orders
//	internal/transport      — WebSocket connection lifecycle, auth, reconnect, send buffer
//	internal/applicator     — single writer translating table frames into domain mutations
//	internal/rest           — signed REST client with rate limiting and response classification
//	internal/orders         — place validation, inflight coalescing, retry, reconciliation
//	internal/domain         — Instrument/OrderBookL2/Position/Wallet/Order entities
//	internal/registry       — concurrent-safe indexes over domain entities
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"log/slog"

	"bitmex-client/internal/bitmex"
	"bitmex-client/internal/config"
	"bitmex-client/internal/metrics"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("BITMEX_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	client := bitmex.New(cfg, metrics.Log{Logger: logger}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}

	if err := client.Subscribe("instrument", "orderBookL2:XBTUSD", "order", "position", "wallet"); err != nil {
		logger.Error("failed to subscribe", "error", err)
	}

	logger.Info("bitmexctl connected", "testnet", cfg.IsTest, "authenticated", cfg.API.ApiKey != "")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	client.Disconnect()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
