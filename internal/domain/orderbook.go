package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"bitmex-client/internal/events"
	"bitmex-client/pkg/types"
)

// PriceLevel is one level of an order book side, keyed by BitMEX's opaque
// price-level id rather than by price itself (orderBookL2 updates arrive
// addressed by id).
type PriceLevel struct {
	ID    int64
	Price decimal.Decimal
	Size  decimal.Decimal
}

// OrderBookSnapshot is an immutable, price-sorted copy of a book's state.
type OrderBookSnapshot struct {
	Symbol     string
	Bids       []PriceLevel // descending by price
	Asks       []PriceLevel // ascending by price
	InSync     bool
	LastUpdate time.Time
}

// OrderBookL2 is the mutex-protected full-depth book for one symbol,
// maintained from partial/insert/update/delete orderBookL2 rows.
type OrderBookL2 struct {
	mu     rwMutex
	symbol string
	bids   map[int64]PriceLevel
	asks   map[int64]PriceLevel
	inSync bool
	last   time.Time
	pub    events.Publisher[OrderBookSnapshot]
}

// NewOrderBookL2 creates an empty, out-of-sync book for symbol. It becomes
// in-sync on the first ApplyPartial.
func NewOrderBookL2(symbol string) *OrderBookL2 {
	return &OrderBookL2{
		symbol: symbol,
		bids:   make(map[int64]PriceLevel),
		asks:   make(map[int64]PriceLevel),
	}
}

// Subscribe registers a listener for snapshot diffs.
func (b *OrderBookL2) Subscribe(l events.Listener[OrderBookSnapshot]) func() {
	return b.pub.Subscribe(l)
}

// ApplyPartial replaces the entire book with rows and marks it in-sync,
// matching the "snapshot resets prior state" rule for table frames.
func (b *OrderBookL2) ApplyPartial(rows []types.OrderBookL2Row) {
	b.mu.Lock()
	b.bids = make(map[int64]PriceLevel, len(rows))
	b.asks = make(map[int64]PriceLevel, len(rows))
	for _, r := range rows {
		b.upsertLocked(r)
	}
	b.inSync = true
	b.last = time.Now()
	snap := b.snapshotLocked()
	b.mu.Unlock()

	b.pub.Emit(events.Diff[OrderBookSnapshot]{Next: snap, Reason: "partial"})
}

// ApplyInsert adds new levels.
func (b *OrderBookL2) ApplyInsert(rows []types.OrderBookL2Row) { b.applyRows(rows, "insert") }

// ApplyUpdate mutates the size of existing levels; a row referencing an
// unknown id flips the book out-of-sync so the transport can resubscribe.
func (b *OrderBookL2) ApplyUpdate(rows []types.OrderBookL2Row) {
	b.mu.Lock()
	for _, r := range rows {
		side := b.sideMap(r.Side)
		if _, ok := side[r.ID]; !ok {
			b.inSync = false
			continue
		}
		b.upsertLocked(r)
	}
	b.last = time.Now()
	snap := b.snapshotLocked()
	b.mu.Unlock()

	b.pub.Emit(events.Diff[OrderBookSnapshot]{Next: snap, Reason: "update"})
}

// ApplyDelete removes levels by id; a row referencing an unknown id flips
// the book out-of-sync so the transport can resubscribe.
func (b *OrderBookL2) ApplyDelete(rows []types.OrderBookL2Row) {
	b.mu.Lock()
	for _, r := range rows {
		side := b.sideMap(r.Side)
		if _, ok := side[r.ID]; !ok {
			b.inSync = false
			continue
		}
		delete(side, r.ID)
	}
	b.last = time.Now()
	snap := b.snapshotLocked()
	b.mu.Unlock()

	b.pub.Emit(events.Diff[OrderBookSnapshot]{Next: snap, Reason: "delete"})
}

// applyRows handles insert rows; a row whose id is already present is a
// duplicate insert and flips the book out-of-sync so the transport can
// resubscribe.
func (b *OrderBookL2) applyRows(rows []types.OrderBookL2Row, reason string) {
	b.mu.Lock()
	for _, r := range rows {
		if _, ok := b.sideMap(r.Side)[r.ID]; ok {
			b.inSync = false
		}
		b.upsertLocked(r)
	}
	b.last = time.Now()
	snap := b.snapshotLocked()
	b.mu.Unlock()

	b.pub.Emit(events.Diff[OrderBookSnapshot]{Next: snap, Reason: reason})
}

func (b *OrderBookL2) upsertLocked(r types.OrderBookL2Row) {
	level := b.sideMap(r.Side)[r.ID]
	level.ID = r.ID
	if r.Price != nil {
		level.Price = *r.Price
	}
	if r.Size != nil {
		level.Size = *r.Size
	}
	b.sideMap(r.Side)[r.ID] = level
}

func (b *OrderBookL2) sideMap(side types.Side) map[int64]PriceLevel {
	if side == types.Sell {
		return b.asks
	}
	return b.bids
}

// MarkOutOfSync flags the book as needing a fresh partial, e.g. after the
// transport observes a gap or an unknown-id update.
func (b *OrderBookL2) MarkOutOfSync() {
	b.mu.Lock()
	b.inSync = false
	b.mu.Unlock()
}

// InSync reports whether the book currently reflects a complete, ordered
// view (false right after construction or after MarkOutOfSync).
func (b *OrderBookL2) InSync() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.inSync
}

// Snapshot returns a price-sorted copy of the book.
func (b *OrderBookL2) Snapshot() OrderBookSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshotLocked()
}

func (b *OrderBookL2) snapshotLocked() OrderBookSnapshot {
	bids := make([]PriceLevel, 0, len(b.bids))
	for _, l := range b.bids {
		bids = append(bids, l)
	}
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price.GreaterThan(bids[j].Price) })

	asks := make([]PriceLevel, 0, len(b.asks))
	for _, l := range b.asks {
		asks = append(asks, l)
	}
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price.LessThan(asks[j].Price) })

	return OrderBookSnapshot{
		Symbol:     b.symbol,
		Bids:       bids,
		Asks:       asks,
		InSync:     b.inSync,
		LastUpdate: b.last,
	}
}
