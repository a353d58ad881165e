package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"bitmex-client/internal/events"
	"bitmex-client/pkg/types"
)

// PositionSnapshot is an immutable copy of a Position's state.
type PositionSnapshot struct {
	Account          int64
	Symbol           string
	CurrentQty       decimal.Decimal
	AvgEntryPrice    decimal.Decimal
	MarkPrice        decimal.Decimal
	LiquidationPrice decimal.Decimal
	MaintMargin      decimal.Decimal
	InitMargin       decimal.Decimal
	UnrealisedPnl    decimal.Decimal
	RealisedPnl      decimal.Decimal
	HomeNotional     decimal.Decimal
	ForeignNotional  decimal.Decimal
	LastUpdate       time.Time
}

// IsOpen reports whether the position currently carries non-zero size.
func (s PositionSnapshot) IsOpen() bool {
	return !s.CurrentQty.IsZero()
}

// Side is the sign of CurrentQty: Sell for a negative (short) position,
// Buy for a positive (long) one, and Buy as the tie-break when flat.
func (s PositionSnapshot) Side() types.Side {
	if s.CurrentQty.IsNegative() {
		return types.Sell
	}
	return types.Buy
}

// Size is the unsigned magnitude of CurrentQty; Size is zero exactly when
// CurrentQty is zero, in which case Side reports Buy.
func (s PositionSnapshot) Size() decimal.Decimal {
	return s.CurrentQty.Abs()
}

// Position is the mutex-protected entity mutated from position table rows,
// keyed by account and symbol.
type Position struct {
	mu   rwMutex
	snap PositionSnapshot
	pub  events.Publisher[PositionSnapshot]
}

// NewPosition creates an entity for a freshly observed (account, symbol) pair.
func NewPosition(account int64, symbol string) *Position {
	return &Position{snap: PositionSnapshot{Account: account, Symbol: symbol}}
}

// Subscribe registers a listener for snapshot diffs.
func (p *Position) Subscribe(l events.Listener[PositionSnapshot]) func() {
	return p.pub.Subscribe(l)
}

// Snapshot returns a copy of the current state.
func (p *Position) Snapshot() PositionSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

// ApplyFields merges the fields present in row into the position, emitting
// a diff for every field that changed.
func (p *Position) ApplyFields(row types.PositionRow, reason string) {
	p.mu.Lock()
	prev := p.snap
	next := prev

	var changed []string
	mark := func(field string) { changed = append(changed, field) }

	if row.CurrentQty != nil && !row.CurrentQty.Equal(next.CurrentQty) {
		next.CurrentQty = *row.CurrentQty
		mark("CurrentQty")
	}
	if row.AvgEntryPrice != nil && !row.AvgEntryPrice.Equal(next.AvgEntryPrice) {
		next.AvgEntryPrice = *row.AvgEntryPrice
		mark("AvgEntryPrice")
	}
	if row.MarkPrice != nil && !row.MarkPrice.Equal(next.MarkPrice) {
		next.MarkPrice = *row.MarkPrice
		mark("MarkPrice")
	}
	if row.LiquidationPrice != nil && !row.LiquidationPrice.Equal(next.LiquidationPrice) {
		next.LiquidationPrice = *row.LiquidationPrice
		mark("LiquidationPrice")
	}
	if row.MaintMargin != nil && !row.MaintMargin.Equal(next.MaintMargin) {
		next.MaintMargin = *row.MaintMargin
		mark("MaintMargin")
	}
	if row.InitMargin != nil && !row.InitMargin.Equal(next.InitMargin) {
		next.InitMargin = *row.InitMargin
		mark("InitMargin")
	}
	if row.UnrealisedPnl != nil && !row.UnrealisedPnl.Equal(next.UnrealisedPnl) {
		next.UnrealisedPnl = *row.UnrealisedPnl
		mark("UnrealisedPnl")
	}
	if row.RealisedPnl != nil && !row.RealisedPnl.Equal(next.RealisedPnl) {
		next.RealisedPnl = *row.RealisedPnl
		mark("RealisedPnl")
	}
	if row.HomeNotional != nil && !row.HomeNotional.Equal(next.HomeNotional) {
		next.HomeNotional = *row.HomeNotional
		mark("HomeNotional")
	}
	if row.ForeignNotional != nil && !row.ForeignNotional.Equal(next.ForeignNotional) {
		next.ForeignNotional = *row.ForeignNotional
		mark("ForeignNotional")
	}
	if row.Timestamp != nil {
		if ts, err := time.Parse(time.RFC3339, *row.Timestamp); err == nil {
			next.LastUpdate = ts
		}
	} else {
		next.LastUpdate = time.Now()
	}

	p.snap = next
	p.mu.Unlock()

	if len(changed) > 0 {
		p.pub.Emit(events.Diff[PositionSnapshot]{Prev: prev, Next: next, Changed: changed, Reason: reason})
	}
}

// Reset zeroes every numeric field, used when a "partial" position frame
// arrives and this (account, symbol) pair is absent from it — BitMEX sends
// a full resync on position partials, so absence means flat/closed.
func (p *Position) Reset(reason string) {
	p.mu.Lock()
	prev := p.snap
	next := PositionSnapshot{Account: prev.Account, Symbol: prev.Symbol, LastUpdate: time.Now()}
	p.snap = next
	p.mu.Unlock()

	p.pub.Emit(events.Diff[PositionSnapshot]{Prev: prev, Next: next, Changed: []string{"CurrentQty"}, Reason: reason})
}
