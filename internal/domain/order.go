package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"bitmex-client/internal/events"
	"bitmex-client/internal/status"
	"bitmex-client/pkg/types"
)

// Execution is one deduplicated fill event merged into an order's
// executions list, in arrival order.
type Execution struct {
	ExecID    string
	Timestamp time.Time
	Qty       decimal.Decimal
	Price     decimal.Decimal
	Liquidity string
}

// OrderSnapshot is an immutable copy of an Order's state.
type OrderSnapshot struct {
	OrderID      string
	ClOrdID      string
	Symbol       string
	Side         types.Side
	OrdType      string
	TimeInForce  string
	ExecInst     string
	Price        decimal.Decimal
	StopPx       decimal.Decimal
	OrderQty     decimal.Decimal
	LeavesQty    decimal.Decimal
	CumQty       decimal.Decimal
	AvgPx        decimal.Decimal
	Status       types.Status
	OrdStatusRaw string
	ExecType     string
	LastQty      decimal.Decimal
	LastPx       decimal.Decimal
	Text         string
	Timestamp    time.Time
	LastUpdate   time.Time

	// FilledQty and AvgFillPrice are derived from Executions: FilledQty is
	// Σ exec.Qty unless this update carried an explicit cumQty, which
	// overrides it; AvgFillPrice is Σ(qty·price)/FilledQty.
	FilledQty    decimal.Decimal
	AvgFillPrice decimal.Decimal
	Executions   []Execution
}

// Order is the mutex-protected entity mutated from order/execution rows.
type Order struct {
	mu   rwMutex
	snap OrderSnapshot
	pub  events.Publisher[OrderSnapshot]
}

// NewOrder creates an entity seeded with its identifiers.
func NewOrder(orderID, clOrdID, symbol string) *Order {
	return &Order{snap: OrderSnapshot{OrderID: orderID, ClOrdID: clOrdID, Symbol: symbol}}
}

// Subscribe registers a listener for snapshot diffs.
func (o *Order) Subscribe(l events.Listener[OrderSnapshot]) func() {
	return o.pub.Subscribe(l)
}

// Snapshot returns a copy of the current state.
func (o *Order) Snapshot() OrderSnapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snap
}

// ApplyFields merges the fields present in row into the order, re-derives
// the canonical Status through the status lattice, and emits a diff for
// every field that changed.
func (o *Order) ApplyFields(row types.OrderRow, reason string) {
	o.mu.Lock()
	prev := o.snap
	next := prev

	var changed []string
	mark := func(field string) { changed = append(changed, field) }

	if row.OrderID != "" && row.OrderID != next.OrderID {
		next.OrderID = row.OrderID
		mark("OrderID")
	}
	if row.ClOrdID != "" && row.ClOrdID != next.ClOrdID {
		next.ClOrdID = row.ClOrdID
		mark("ClOrdID")
	}
	if row.Symbol != "" && row.Symbol != next.Symbol {
		next.Symbol = row.Symbol
		mark("Symbol")
	}
	if row.Side != nil && *row.Side != next.Side {
		next.Side = *row.Side
		mark("Side")
	}
	if row.OrdType != nil && *row.OrdType != next.OrdType {
		next.OrdType = *row.OrdType
		mark("OrdType")
	}
	if row.TimeInForce != nil && *row.TimeInForce != next.TimeInForce {
		next.TimeInForce = *row.TimeInForce
		mark("TimeInForce")
	}
	if row.ExecInst != nil && *row.ExecInst != next.ExecInst {
		next.ExecInst = *row.ExecInst
		mark("ExecInst")
	}
	if row.Price != nil && !row.Price.Equal(next.Price) {
		next.Price = *row.Price
		mark("Price")
	}
	if row.StopPx != nil && !row.StopPx.Equal(next.StopPx) {
		next.StopPx = *row.StopPx
		mark("StopPx")
	}
	if row.OrderQty != nil && !row.OrderQty.Equal(next.OrderQty) {
		next.OrderQty = *row.OrderQty
		mark("OrderQty")
	}
	if row.LeavesQty != nil && !row.LeavesQty.Equal(next.LeavesQty) {
		next.LeavesQty = *row.LeavesQty
		mark("LeavesQty")
	}
	if row.CumQty != nil && !row.CumQty.Equal(next.CumQty) {
		next.CumQty = *row.CumQty
		mark("CumQty")
	}
	if row.AvgPx != nil && !row.AvgPx.Equal(next.AvgPx) {
		next.AvgPx = *row.AvgPx
		mark("AvgPx")
	}
	if row.OrdStatus != nil && *row.OrdStatus != next.OrdStatusRaw {
		next.OrdStatusRaw = *row.OrdStatus
		mark("OrdStatusRaw")
	}
	if row.ExecType != nil && *row.ExecType != next.ExecType {
		next.ExecType = *row.ExecType
		mark("ExecType")
	}
	if row.LastQty != nil && !row.LastQty.Equal(next.LastQty) {
		next.LastQty = *row.LastQty
		mark("LastQty")
	}
	if row.LastPx != nil && !row.LastPx.Equal(next.LastPx) {
		next.LastPx = *row.LastPx
		mark("LastPx")
	}
	if row.Text != nil && *row.Text != next.Text {
		next.Text = *row.Text
		mark("Text")
	}
	if row.Timestamp != nil {
		if ts, err := time.Parse(time.RFC3339, *row.Timestamp); err == nil && !ts.Equal(next.Timestamp) {
			next.Timestamp = ts
			mark("Timestamp")
		}
	}

	if row.ExecID != nil && *row.ExecID != "" && !hasExecution(next.Executions, *row.ExecID) {
		exec := Execution{ExecID: *row.ExecID}
		if row.Timestamp != nil {
			if ts, err := time.Parse(time.RFC3339, *row.Timestamp); err == nil {
				exec.Timestamp = ts
			}
		}
		if row.LastQty != nil {
			exec.Qty = *row.LastQty
		}
		if row.LastPx != nil {
			exec.Price = *row.LastPx
		}
		if row.LastLiquidityInd != nil {
			exec.Liquidity = *row.LastLiquidityInd
		}
		execs := make([]Execution, len(next.Executions), len(next.Executions)+1)
		copy(execs, next.Executions)
		next.Executions = append(execs, exec)
		mark("Executions")
	}

	filledQty := sumExecutionQty(next.Executions)
	if row.CumQty != nil {
		filledQty = *row.CumQty
	}
	avgFillPrice := next.AvgFillPrice
	if !filledQty.IsZero() {
		avgFillPrice = sumExecutionNotional(next.Executions).Div(filledQty)
	} else if row.AvgPx != nil {
		avgFillPrice = *row.AvgPx
	}
	if !filledQty.Equal(next.FilledQty) {
		next.FilledQty = filledQty
		mark("FilledQty")
	}
	if !avgFillPrice.Equal(next.AvgFillPrice) {
		next.AvgFillPrice = avgFillPrice
		mark("AvgFillPrice")
	}

	nextStatus := status.Next(status.Input{
		OrdStatus: next.OrdStatusRaw,
		ExecType:  next.ExecType,
		CumQty:    next.CumQty,
		LeavesQty: next.LeavesQty,
		Prev:      prev.Status,
	})
	if nextStatus != next.Status {
		next.Status = nextStatus
		mark("Status")
	}

	next.LastUpdate = time.Now()
	o.snap = next
	o.mu.Unlock()

	if len(changed) > 0 {
		o.pub.Emit(events.Diff[OrderSnapshot]{Prev: prev, Next: next, Changed: changed, Reason: reason})
	}
}

// IsTerminal reports whether the order's canonical status is terminal.
func (o *Order) IsTerminal() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snap.Status.IsTerminal()
}

func hasExecution(execs []Execution, execID string) bool {
	for _, e := range execs {
		if e.ExecID == execID {
			return true
		}
	}
	return false
}

func sumExecutionQty(execs []Execution) decimal.Decimal {
	var sum decimal.Decimal
	for _, e := range execs {
		sum = sum.Add(e.Qty)
	}
	return sum
}

func sumExecutionNotional(execs []Execution) decimal.Decimal {
	var sum decimal.Decimal
	for _, e := range execs {
		sum = sum.Add(e.Qty.Mul(e.Price))
	}
	return sum
}
