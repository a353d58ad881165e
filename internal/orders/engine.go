package orders

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"bitmex-client/internal/domain"
	"bitmex-client/internal/errs"
	"bitmex-client/internal/metrics"
	"bitmex-client/internal/registry"
	"bitmex-client/internal/rest"
	"bitmex-client/pkg/types"
)

// RestClient is the subset of *rest.Client the engine depends on.
type RestClient interface {
	PlaceOrder(ctx context.Context, req types.PlaceOrderRequest) (*types.OrderRow, error)
	AmendOrder(ctx context.Context, req types.AmendOrderRequest) (*types.OrderRow, error)
	CancelOrder(ctx context.Context, orderID string) ([]types.OrderRow, error)
	GetOrderByClOrdID(ctx context.Context, clOrdID string) ([]types.OrderRow, error)
}

var _ RestClient = (*rest.Client)(nil)

// Engine places orders over the signed REST client, coalescing duplicate
// submissions per clOrdID and reconciling against the exchange when a
// submission's overall timeout elapses.
type Engine struct {
	rest    RestClient
	orders  *registry.OrdersRegistry
	logger  *slog.Logger
	metrics metrics.Sink

	overallTimeout   time.Duration
	reconcileTimeout time.Duration
}

// NewEngine builds a placement engine. overallTimeout bounds the initial
// submission plus its single retry; reconcileTimeout bounds the follow-up
// GET /order?clOrdID= query.
func NewEngine(client RestClient, orders *registry.OrdersRegistry, sink metrics.Sink, logger *slog.Logger, overallTimeout, reconcileTimeout time.Duration) *Engine {
	return &Engine{
		rest:             client,
		orders:           orders,
		logger:           logger.With("component", "orders"),
		metrics:          sink,
		overallTimeout:   overallTimeout,
		reconcileTimeout: reconcileTimeout,
	}
}

// Buy validates and places a buy order.
func (e *Engine) Buy(ctx context.Context, p PlaceParams) (*domain.Order, error) {
	p.Side = types.Buy
	return e.Place(ctx, p)
}

// Sell validates and places a sell order.
func (e *Engine) Sell(ctx context.Context, p PlaceParams) (*domain.Order, error) {
	p.Side = types.Sell
	return e.Place(ctx, p)
}

// Place validates p and runs the full submit/reconcile flow for the
// resulting clOrdID, coalescing a duplicate submission for an id already in
// flight.
func (e *Engine) Place(ctx context.Context, p PlaceParams) (*domain.Order, error) {
	input, err := Validate(p)
	if err != nil {
		return nil, err
	}
	return e.submit(ctx, *input)
}

func (e *Engine) submit(ctx context.Context, input NormalizedPlaceInput) (*domain.Order, error) {
	if existing, ok := e.orders.InflightPlaceholder(input.ClOrdID); ok {
		return existing, nil
	}

	placeholder, err := e.orders.EnsureOrder("", input.ClOrdID, input.Symbol)
	if err != nil {
		return nil, errs.Wrap(errs.Unknown, err, "ensure placeholder order")
	}

	if !e.orders.MarkInflight(input.ClOrdID, placeholder) {
		if existing, ok := e.orders.InflightPlaceholder(input.ClOrdID); ok {
			return existing, nil
		}
	}
	defer e.orders.ClearInflight(input.ClOrdID)

	started := time.Now()
	req := buildPlaceRequest(input)

	row, err := e.submitWithRetry(ctx, req)
	if err != nil {
		e.metrics.IncrementCounter(metrics.CreateOrderErrorsTotal, 1, "category", string(errs.CategoryOf(err)))

		if errs.CategoryOf(err) == errs.Timeout {
			reconciled, rerr := e.reconcile(ctx, input.ClOrdID, placeholder)
			if rerr == nil {
				e.metrics.ObserveHistogram(metrics.CreateOrderLatencyMs, float64(time.Since(started).Milliseconds()))
				return reconciled, nil
			}
			return placeholder, err
		}
		return placeholder, err
	}

	placeholder.ApplyFields(*row, "rest-place")
	e.metrics.ObserveHistogram(metrics.CreateOrderLatencyMs, float64(time.Since(started).Milliseconds()))
	return placeholder, nil
}

// submitWithRetry submits req once, retries exactly once for a retryable
// failure, and reports a Timeout-category error if the overall deadline
// elapses on either attempt.
func (e *Engine) submitWithRetry(ctx context.Context, req types.PlaceOrderRequest) (*types.OrderRow, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.overallTimeout)
	defer cancel()

	row, err := e.rest.PlaceOrder(reqCtx, req)
	if err == nil {
		return row, nil
	}
	if reqCtx.Err() != nil {
		return nil, errs.New(errs.Timeout, "order placement timed out")
	}
	if !isRetryablePlacementFailure(err) {
		return nil, err
	}

	e.logger.Warn("retrying order placement after transient failure", "error", err)

	row, err = e.rest.PlaceOrder(reqCtx, req)
	if err == nil {
		return row, nil
	}
	if reqCtx.Err() != nil {
		return nil, errs.New(errs.Timeout, "order placement timed out")
	}
	return nil, err
}

// isRetryablePlacementFailure reports whether a placement failure qualifies
// for the single automatic retry: network errors and HTTP 5xx/408, but
// never a rate limit, which must be surfaced to the caller with its
// retry-after hint rather than retried here.
func isRetryablePlacementFailure(err error) bool {
	switch errs.CategoryOf(err) {
	case errs.Network, errs.ExchangeDown, errs.Timeout:
		return true
	default:
		return false
	}
}

// reconcile queries the exchange once for clOrdID. If a row comes back it
// is merged into placeholder; if none comes back and placeholder carries no
// prior observation (no orderID, no status), the caller's timeout is
// surfaced instead.
func (e *Engine) reconcile(ctx context.Context, clOrdID string, placeholder *domain.Order) (*domain.Order, error) {
	reconcileCtx, cancel := context.WithTimeout(ctx, e.reconcileTimeout)
	defer cancel()

	rows, err := e.rest.GetOrderByClOrdID(reconcileCtx, clOrdID)
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		snap := placeholder.Snapshot()
		if snap.OrderID != "" || snap.Status != "" {
			return placeholder, nil
		}
		return nil, errs.New(errs.Timeout, "reconcile found no order for clOrdID")
	}

	for _, row := range rows {
		placeholder.ApplyFields(row, "rest-reconcile")
	}
	return placeholder, nil
}

// Amend submits PUT /order and merges the response into the order store,
// creating an entry if this is the first observation of the order.
func (e *Engine) Amend(ctx context.Context, req types.AmendOrderRequest) (*domain.Order, error) {
	row, err := e.rest.AmendOrder(ctx, req)
	if err != nil {
		return nil, err
	}

	order, ensureErr := e.orders.EnsureOrder(row.OrderID, row.ClOrdID, row.Symbol)
	if ensureErr != nil {
		return nil, errs.Wrap(errs.Unknown, ensureErr, "ensure order for amend response")
	}
	order.ApplyFields(*row, "rest-amend")
	return order, nil
}

// Cancel submits DELETE /order?orderID=... and merges every row the
// exchange reports as cancelled into the order store.
func (e *Engine) Cancel(ctx context.Context, orderID string) ([]*domain.Order, error) {
	rows, err := e.rest.CancelOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Order, 0, len(rows))
	for _, row := range rows {
		order, ensureErr := e.orders.EnsureOrder(row.OrderID, row.ClOrdID, row.Symbol)
		if ensureErr != nil {
			e.logger.Warn("skipping cancel response row with no identifier", "error", ensureErr)
			continue
		}
		order.ApplyFields(row, "rest-cancel")
		out = append(out, order)
	}
	return out, nil
}

// buildPlaceRequest maps a validated input to the wire POST /order body.
func buildPlaceRequest(in NormalizedPlaceInput) types.PlaceOrderRequest {
	req := types.PlaceOrderRequest{
		Symbol:   in.Symbol,
		Side:     in.Side,
		OrderQty: in.Size.String(),
		OrdType:  in.Type.WireOrdType(),
		ClOrdID:  in.ClOrdID,
		Text:     in.Text,
	}

	if in.TimeInForce != "" {
		req.TimeInForce = in.TimeInForce.WireTimeInForce()
	}
	if in.Price != nil {
		price := in.Price.String()
		req.Price = &price
	}
	if in.StopPx != nil {
		stopPx := in.StopPx.String()
		req.StopPx = &stopPx
	}

	var execInst []string
	if in.PostOnly {
		execInst = append(execInst, "ParticipateDoNotInitiate")
	}
	if in.ReduceOnly {
		execInst = append(execInst, "ReduceOnly")
	}
	req.ExecInst = strings.Join(execInst, ",")

	return req
}
