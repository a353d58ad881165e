package bitmex

import (
	"log/slog"
	"testing"
	"time"

	"bitmex-client/internal/config"
	"bitmex-client/internal/metrics"
	"bitmex-client/internal/transport"
)

func testConfig() *config.Config {
	return &config.Config{
		IsTest: true,
		API:    config.APIConfig{AuthSkewSec: 60},
		Transport: config.TransportConfig{
			PingInterval:         25 * time.Second,
			PongTimeout:          15 * time.Second,
			ReconnectBaseDelay:   500 * time.Millisecond,
			ReconnectMaxDelay:    30 * time.Second,
			ReconnectMaxAttempts: 0,
			SendBufferLimit:      1000,
			AuthTimeout:          10 * time.Second,
		},
		Rest: config.RestConfig{
			Timeout:          10 * time.Second,
			PlaceTimeout:     5 * time.Second,
			ReconcileTimeout: 5 * time.Second,
		},
		Symbols: config.SymbolsConfig{MappingEnabled: true},
	}
}

func TestNewStartsDisconnectedAndUnauthenticated(t *testing.T) {
	t.Parallel()

	c := New(testConfig(), metrics.Nop{}, slog.Default())
	if c.State() != transport.StateIdle {
		t.Fatalf("State() = %v, want StateIdle", c.State())
	}
	if c.AuthState() != transport.AuthUnauthed {
		t.Fatalf("AuthState() = %v, want AuthUnauthed", c.AuthState())
	}
}

func TestInstrumentAndOrderBookAreLazilyCreated(t *testing.T) {
	t.Parallel()

	c := New(testConfig(), metrics.Nop{}, slog.Default())

	inst := c.Instrument("XBTUSD")
	if inst == nil {
		t.Fatal("expected a non-nil instrument")
	}
	if got := inst.Snapshot().NativeSymbol; got != "XBTUSD" {
		t.Fatalf("symbol = %q, want XBTUSD", got)
	}

	book := c.OrderBook("XBTUSD")
	if book == nil {
		t.Fatal("expected a non-nil order book")
	}
	if book.Snapshot().Symbol != "XBTUSD" {
		t.Fatalf("book symbol = %q, want XBTUSD", book.Snapshot().Symbol)
	}
}

func TestNewClientStartsWithNoActiveOrdersOrPositions(t *testing.T) {
	t.Parallel()

	c := New(testConfig(), metrics.Nop{}, slog.Default())
	if got := len(c.ActiveOrders()); got != 0 {
		t.Fatalf("ActiveOrders() len = %d, want 0", got)
	}
	if got := len(c.OpenPositions()); got != 0 {
		t.Fatalf("OpenPositions() len = %d, want 0", got)
	}
}
