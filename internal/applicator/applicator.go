// Package applicator translates inbound partial/insert/update/delete table
// frames into mutations of domain entities and registries. It is the only
// path by which table frames reach a registry; the transport never mutates
// a registry directly, while REST order placement also creates and updates
// orders in the orders registry.
package applicator

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"bitmex-client/internal/domain"
	"bitmex-client/internal/metrics"
	"bitmex-client/internal/registry"
	"bitmex-client/internal/symbolmap"
	"bitmex-client/pkg/types"
)

// Resubscriber lets the applicator ask the transport to resubscribe a
// channel after detecting an out-of-sync order book, without holding a
// reference back to the transport itself.
type Resubscriber interface {
	Resubscribe(channel string)
}

// Applicator owns every table normalizer and the registries/entity maps
// they mutate.
type Applicator struct {
	mu          sync.Mutex
	instruments map[string]*domain.Instrument
	books       map[string]*domain.OrderBookL2

	orders    *registry.OrdersRegistry
	positions *registry.PositionsRegistry
	wallets   *registry.Wallets
	symbols   *symbolmap.Mapper

	metrics metrics.Sink
	logger  *slog.Logger
	resub   Resubscriber

	orderAwaitingSnapshot bool
}

// New creates an Applicator wired to the given registries and collaborators.
func New(orders *registry.OrdersRegistry, positions *registry.PositionsRegistry, wallets *registry.Wallets, symbols *symbolmap.Mapper, sink metrics.Sink, logger *slog.Logger, resub Resubscriber) *Applicator {
	return &Applicator{
		instruments:           make(map[string]*domain.Instrument),
		books:                 make(map[string]*domain.OrderBookL2),
		orders:                orders,
		positions:             positions,
		wallets:               wallets,
		symbols:               symbols,
		metrics:               sink,
		logger:                logger.With("component", "applicator"),
		resub:                 resub,
		orderAwaitingSnapshot: true,
	}
}

// SetResubscriber wires the collaborator used to recover an out-of-sync
// order book after construction, breaking the construction-order cycle
// between the applicator (which needs a FrameHandler) and the transport
// (which needs to exist before it can supply one).
func (a *Applicator) SetResubscriber(resub Resubscriber) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resub = resub
}

// Apply dispatches a table frame to the matching normalizer. It never
// returns an error to the caller — malformed rows are logged at debug and
// dropped, per the module's error-propagation policy.
func (a *Applicator) Apply(frame types.TableFrame) {
	switch frame.Table {
	case "instrument":
		a.handleInstrument(frame)
	case "trade":
		a.handleTrade(frame)
	case "orderBookL2":
		a.handleOrderBookL2(frame)
	case "position":
		a.handlePosition(frame)
	case "wallet":
		a.handleWallet(frame)
	case "order", "execution":
		a.handleOrder(frame)
	case "margin", "liquidation", "settlement", "transact":
		a.handleReserved(frame)
	default:
		a.logger.Debug("unknown table", "table", frame.Table)
	}
}

// handleReserved covers tables the module reserves but does not yet give
// semantics to. Per the design note governing these, they are logged and
// counted, never dropped silently and never guessed at.
func (a *Applicator) handleReserved(frame types.TableFrame) {
	a.logger.Debug("table not implemented", "table", frame.Table, "action", frame.Action, "rows", len(frame.Data))
	a.metrics.IncrementCounter(metrics.TableNotImplementedTotal, 1, "table", frame.Table)
}

// Instrument returns the entity for a native symbol, creating one lazily if
// this is the first observation.
func (a *Applicator) Instrument(nativeSymbol string) *domain.Instrument {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.instrumentLocked(nativeSymbol)
}

func (a *Applicator) instrumentLocked(nativeSymbol string) *domain.Instrument {
	if i, ok := a.instruments[nativeSymbol]; ok {
		return i
	}
	unified, _ := a.symbols.Unified(nativeSymbol)
	i := domain.NewInstrument(nativeSymbol, unified)
	a.instruments[nativeSymbol] = i
	return i
}

// OrderBook returns the book for a native symbol, creating one lazily.
func (a *Applicator) OrderBook(nativeSymbol string) *domain.OrderBookL2 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bookLocked(nativeSymbol)
}

func (a *Applicator) bookLocked(nativeSymbol string) *domain.OrderBookL2 {
	if b, ok := a.books[nativeSymbol]; ok {
		return b
	}
	b := domain.NewOrderBookL2(nativeSymbol)
	a.books[nativeSymbol] = b
	return b
}

func (a *Applicator) handleInstrument(frame types.TableFrame) {
	rows := decodeRows[types.InstrumentRow](a, frame)
	for _, row := range rows {
		if row.Symbol == "" {
			continue
		}
		inst := a.Instrument(row.Symbol)
		if frame.Action == types.ActionUpdate && inst.IsDelisted() {
			a.logger.Debug("dropping update for delisted instrument", "symbol", row.Symbol)
			continue
		}
		inst.ApplyFields(row, string(frame.Action))
	}
}

func (a *Applicator) handleTrade(frame types.TableFrame) {
	rows := decodeRows[types.TradeRow](a, frame)
	for _, row := range rows {
		if row.Symbol == "" {
			continue
		}
		ts, _ := time.Parse(time.RFC3339, row.Timestamp)
		a.Instrument(row.Symbol).RecordTrade(domain.TradeTick{
			Timestamp: ts,
			Side:      row.Side,
			Price:     row.Price,
			Size:      row.Size,
		})
	}
}

func (a *Applicator) handleOrderBookL2(frame types.TableFrame) {
	rows := decodeRows[types.OrderBookL2Row](a, frame)
	if len(rows) == 0 {
		return
	}

	bySymbol := make(map[string][]types.OrderBookL2Row)
	for _, row := range rows {
		bySymbol[row.Symbol] = append(bySymbol[row.Symbol], row)
	}

	for symbol, symRows := range bySymbol {
		book := a.OrderBook(symbol)
		switch frame.Action {
		case types.ActionPartial:
			book.ApplyPartial(symRows)
		case types.ActionInsert:
			book.ApplyInsert(symRows)
		case types.ActionUpdate:
			book.ApplyUpdate(symRows)
		case types.ActionDelete:
			book.ApplyDelete(symRows)
		}
		if frame.Action != types.ActionPartial && !book.InSync() && a.resub != nil {
			a.resub.Resubscribe("orderBookL2:" + symbol)
		}
	}
}

func (a *Applicator) handlePosition(frame types.TableFrame) {
	rows := decodeRows[types.PositionRow](a, frame)

	if frame.Action == types.ActionPartial {
		a.resyncPositions(rows)
		return
	}

	for _, row := range coalesceByNewest(rows, func(r types.PositionRow) (string, *string) {
		return positionRowKey(r), r.Timestamp
	}) {
		pos := a.positions.EnsurePosition(row.Account, row.Symbol)
		allowOlder := frame.Action == types.ActionDelete
		if !timestampAdvances(pos.Snapshot().LastUpdate, row.Timestamp, allowOlder) {
			continue
		}
		if frame.Action == types.ActionDelete {
			pos.Reset("delete")
			continue
		}
		pos.ApplyFields(row, string(frame.Action))
		a.metrics.IncrementCounter(metrics.PositionUpdateCount, 1, "symbol", row.Symbol)
	}
}

func (a *Applicator) resyncPositions(rows []types.PositionRow) {
	seen := make(map[string]struct{}, len(rows))
	byAccount := make(map[int64]struct{})

	for key, row := range coalesceByNewest(rows, func(r types.PositionRow) (string, *string) {
		return positionRowKey(r), r.Timestamp
	}) {
		seen[key] = struct{}{}
		byAccount[row.Account] = struct{}{}
		pos := a.positions.EnsurePosition(row.Account, row.Symbol)
		pos.ApplyFields(row, "partial")
		a.metrics.IncrementCounter(metrics.PositionUpdateCount, 1, "symbol", row.Symbol)
	}

	for account := range byAccount {
		for _, pos := range a.positions.ByAccount(account) {
			snap := pos.Snapshot()
			key := positionRowKey(types.PositionRow{Account: snap.Account, Symbol: snap.Symbol})
			if _, ok := seen[key]; !ok && snap.IsOpen() {
				pos.Reset("partial-resync")
			}
		}
	}
}

func positionRowKey(r types.PositionRow) string {
	return fmt.Sprintf("%d\x00%s", r.Account, r.Symbol)
}

func (a *Applicator) handleWallet(frame types.TableFrame) {
	rows := decodeRows[types.WalletRow](a, frame)

	for _, row := range coalesceByNewest(rows, func(r types.WalletRow) (string, *string) {
		return walletRowKey(r), r.Timestamp
	}) {
		wallet := a.wallets.EnsureWallet(row.Account, row.Currency)
		allowOlder := frame.Action == types.ActionPartial
		if !timestampAdvances(wallet.Snapshot().LastUpdate, row.Timestamp, allowOlder) {
			continue
		}
		wallet.ApplyFields(row, string(frame.Action))
		a.metrics.IncrementCounter(metrics.WalletUpdateCount, 1, "currency", row.Currency)
	}
}

func walletRowKey(r types.WalletRow) string {
	return fmt.Sprintf("%d\x00%s", r.Account, r.Currency)
}

func (a *Applicator) handleOrder(frame types.TableFrame) {
	a.mu.Lock()
	if frame.Table == "order" {
		if frame.Action == types.ActionPartial {
			a.orderAwaitingSnapshot = false
		} else if a.orderAwaitingSnapshot {
			a.mu.Unlock()
			a.logger.Debug("dropping order delta before snapshot", "action", frame.Action)
			return
		}
	}
	a.mu.Unlock()

	rows := decodeRows[types.OrderRow](a, frame)
	for _, row := range rows {
		order, err := a.orders.EnsureOrder(row.OrderID, row.ClOrdID, row.Symbol)
		if err != nil {
			a.logger.Debug("order row missing identifier", "error", err)
			continue
		}
		order.ApplyFields(row, string(frame.Action))
		a.metrics.IncrementCounter(metrics.OrderUpdateCount, 1, "symbol", row.Symbol)
	}
}

// decodeRows JSON-decodes every raw row in frame.Data into T, logging and
// skipping any row that fails to decode.
func decodeRows[T any](a *Applicator, frame types.TableFrame) []T {
	out := make([]T, 0, len(frame.Data))
	for _, raw := range frame.Data {
		var row T
		if err := json.Unmarshal(raw, &row); err != nil {
			a.logger.Debug("malformed row", "table", frame.Table, "error", err)
			continue
		}
		out = append(out, row)
	}
	return out
}

// coalesceByNewest groups rows by a caller-supplied key and keeps, per key,
// the row whose timestamp pointer is newest (a nil timestamp loses to any
// timestamped row and is otherwise kept as-is), matching the "row grouping
// within a batch" rule for position/wallet tables.
func coalesceByNewest[T any](rows []T, keyAndTs func(T) (string, *string)) map[string]T {
	best := make(map[string]T, len(rows))
	bestTs := make(map[string]time.Time)
	seenTs := make(map[string]bool)

	for _, row := range rows {
		key, tsPtr := keyAndTs(row)
		if tsPtr == nil {
			if _, ok := best[key]; !ok {
				best[key] = row
			}
			continue
		}
		ts, err := time.Parse(time.RFC3339, *tsPtr)
		if err != nil {
			continue
		}
		if !seenTs[key] || ts.After(bestTs[key]) {
			best[key] = row
			bestTs[key] = ts
			seenTs[key] = true
		}
	}
	return best
}

// timestampAdvances reports whether a row timestamped ts should be applied
// given the entity's stored last-update time, honoring allowOlder for
// delete/resync paths.
func timestampAdvances(stored time.Time, ts *string, allowOlder bool) bool {
	if allowOlder || ts == nil {
		return true
	}
	parsed, err := time.Parse(time.RFC3339, *ts)
	if err != nil {
		return true
	}
	return parsed.After(stored)
}
