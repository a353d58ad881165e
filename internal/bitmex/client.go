// Package bitmex wires the transport, applicator, registries, signed REST
// client, and order-placement engine into a single embeddable client. It
// holds no business logic of its own — every rule lives in the package it
// delegates to; this package is construction and plumbing.
package bitmex

import (
	"context"
	"log/slog"

	"bitmex-client/internal/applicator"
	"bitmex-client/internal/config"
	"bitmex-client/internal/domain"
	"bitmex-client/internal/metrics"
	"bitmex-client/internal/orders"
	"bitmex-client/internal/registry"
	"bitmex-client/internal/rest"
	"bitmex-client/internal/symbolmap"
	"bitmex-client/internal/transport"
	"bitmex-client/pkg/types"
)

// Client is the embeddable BitMEX realtime/REST client: one WebSocket
// connection for market and private data, one signed REST client for order
// management, and the in-memory registries both sides mutate through the
// applicator.
type Client struct {
	cfg    *config.Config
	logger *slog.Logger

	transport  *transport.Transport
	applicator *applicator.Applicator

	orders    *registry.OrdersRegistry
	positions *registry.PositionsRegistry
	wallets   *registry.Wallets
	symbols   *symbolmap.Mapper

	rest   *rest.Client
	engine *orders.Engine
}

// New builds a Client from cfg. It does not dial; call Connect to start the
// WebSocket connection. sink may be metrics.Nop{} if the embedder doesn't
// care about metrics.
func New(cfg *config.Config, sink metrics.Sink, logger *slog.Logger) *Client {
	if sink == nil {
		sink = metrics.Nop{}
	}

	ordersReg := registry.NewOrdersRegistry()
	positionsReg := registry.NewPositionsRegistry()
	walletsReg := registry.NewWallets()
	symbols := symbolmap.New(cfg.Symbols.MappingEnabled)

	c := &Client{
		cfg:       cfg,
		logger:    logger,
		orders:    ordersReg,
		positions: positionsReg,
		wallets:   walletsReg,
		symbols:   symbols,
	}

	app := applicator.New(ordersReg, positionsReg, walletsReg, symbols, sink, logger, nil)
	c.applicator = app

	tr := transport.New(transport.Config{
		URL:                  cfg.WSURL(),
		ApiKey:               cfg.API.ApiKey,
		ApiSecret:            cfg.API.ApiSecret,
		AuthSkewSec:          cfg.API.AuthSkewSec,
		PingInterval:         cfg.Transport.PingInterval,
		PongTimeout:          cfg.Transport.PongTimeout,
		ReconnectBaseDelay:   cfg.Transport.ReconnectBaseDelay,
		ReconnectMaxDelay:    cfg.Transport.ReconnectMaxDelay,
		ReconnectMaxAttempts: cfg.Transport.ReconnectMaxAttempts,
		SendBufferLimit:      cfg.Transport.SendBufferLimit,
		AuthTimeout:          cfg.Transport.AuthTimeout,
	}, sink, logger, app.Apply)
	c.transport = tr
	app.SetResubscriber(tr)

	restClient := rest.NewClient(rest.Config{
		BaseURL:     cfg.RestBaseURL(),
		ApiKey:      cfg.API.ApiKey,
		ApiSecret:   cfg.API.ApiSecret,
		AuthSkewSec: cfg.API.AuthSkewSec,
		Timeout:     cfg.Rest.Timeout,
	}, logger)
	c.rest = restClient

	c.engine = orders.NewEngine(restClient, ordersReg, sink, logger, cfg.Rest.PlaceTimeout, cfg.Rest.ReconcileTimeout)

	return c
}

// Connect dials the WebSocket connection. The returned error is nil once
// the socket is open; reconnection and relogin continue in the background
// for the lifetime of ctx.
func (c *Client) Connect(ctx context.Context) error {
	return c.transport.Connect(ctx)
}

// Disconnect closes the WebSocket connection and stops all background
// activity started by Connect.
func (c *Client) Disconnect() {
	c.transport.Disconnect()
}

// Authenticate performs a manual WS login. Connect already triggers this
// automatically when credentials are configured; call it directly only to
// retry after a permanent auth failure stopped automatic relogin.
func (c *Client) Authenticate() error {
	return c.transport.Authenticate("manual")
}

// Subscribe sends a subscribe op for one or more channels (e.g.
// "instrument", "orderBookL2:XBTUSD", "order", "position").
func (c *Client) Subscribe(channels ...string) error {
	return c.transport.Subscribe(channels...)
}

// Unsubscribe sends an unsubscribe op for one or more channels.
func (c *Client) Unsubscribe(channels ...string) error {
	return c.transport.Unsubscribe(channels...)
}

// State reports the transport's top-level connection state.
func (c *Client) State() transport.State {
	return c.transport.State()
}

// AuthState reports the transport's authentication sub-state.
func (c *Client) AuthState() transport.AuthState {
	return c.transport.AuthState()
}

// Instrument returns the live instrument entity for a native BitMEX symbol
// (e.g. "XBTUSD"), creating one lazily if this is the first observation.
func (c *Client) Instrument(nativeSymbol string) *domain.Instrument {
	return c.applicator.Instrument(nativeSymbol)
}

// OrderBook returns the live L2 order book for a native BitMEX symbol.
func (c *Client) OrderBook(nativeSymbol string) *domain.OrderBookL2 {
	return c.applicator.OrderBook(nativeSymbol)
}

// Position returns the tracked position for (account, symbol), if any.
func (c *Client) Position(account int64, symbol string) (*domain.Position, bool) {
	return c.positions.Get(account, symbol)
}

// OpenPositions returns every position across all accounts with non-zero
// size.
func (c *Client) OpenPositions() []*domain.Position {
	return c.positions.OpenPositions()
}

// Wallet returns the tracked wallet for (account, currency), if any.
func (c *Client) Wallet(account int64, currency string) (*domain.Wallet, bool) {
	return c.wallets.Get(account, currency)
}

// Order returns the tracked order for a BitMEX orderID, if any.
func (c *Client) Order(orderID string) (*domain.Order, bool) {
	return c.orders.GetByOrderID(orderID)
}

// OrderByClOrdID returns the tracked order for a client order id, if any.
func (c *Client) OrderByClOrdID(clOrdID string) (*domain.Order, bool) {
	return c.orders.GetByClOrdID(clOrdID)
}

// ActiveOrders returns every order whose canonical status is not terminal.
func (c *Client) ActiveOrders() []*domain.Order {
	return c.orders.ActiveOrders()
}

// Buy validates and places a buy order over the signed REST client.
func (c *Client) Buy(ctx context.Context, p orders.PlaceParams) (*domain.Order, error) {
	return c.engine.Buy(ctx, p)
}

// Sell validates and places a sell order over the signed REST client.
func (c *Client) Sell(ctx context.Context, p orders.PlaceParams) (*domain.Order, error) {
	return c.engine.Sell(ctx, p)
}

// Amend submits PUT /order and merges the response into the order store.
func (c *Client) Amend(ctx context.Context, req types.AmendOrderRequest) (*domain.Order, error) {
	return c.engine.Amend(ctx, req)
}

// Cancel submits DELETE /order?orderID=... and merges every resulting row
// into the order store.
func (c *Client) Cancel(ctx context.Context, orderID string) ([]*domain.Order, error) {
	return c.engine.Cancel(ctx, orderID)
}
