// Package registry implements the in-memory, multi-indexed stores the
// applicator and REST order-placement engine share: OrdersRegistry,
// PositionsRegistry, and Wallets. Every store is safe for concurrent use;
// callers get back domain entities to subscribe to, never registry
// internals.
package registry

import (
	"fmt"
	"sync"

	"bitmex-client/internal/domain"
)

// OrdersRegistry indexes live Order entities by orderID, by clOrdID, and by
// symbol, and separately tracks orders still in flight from a REST place
// call (keyed by clOrdID) so the placement engine can enforce at-most-one
// request per clOrdID.
type OrdersRegistry struct {
	mu         sync.RWMutex
	byOrderID  map[string]*domain.Order
	byClOrdID  map[string]*domain.Order
	bySymbol   map[string]map[*domain.Order]struct{}
	inflight   map[string]*domain.Order // clOrdID -> placeholder order awaiting orderID
}

// NewOrdersRegistry creates an empty registry.
func NewOrdersRegistry() *OrdersRegistry {
	return &OrdersRegistry{
		byOrderID: make(map[string]*domain.Order),
		byClOrdID: make(map[string]*domain.Order),
		bySymbol:  make(map[string]map[*domain.Order]struct{}),
		inflight:  make(map[string]*domain.Order),
	}
}

// GetByOrderID returns the order registered under orderID, if any.
func (r *OrdersRegistry) GetByOrderID(orderID string) (*domain.Order, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.byOrderID[orderID]
	return o, ok
}

// GetByClOrdID returns the order registered under clOrdID, if any.
func (r *OrdersRegistry) GetByClOrdID(clOrdID string) (*domain.Order, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.byClOrdID[clOrdID]
	return o, ok
}

// BySymbol returns a snapshot slice of orders currently indexed under symbol.
func (r *OrdersRegistry) BySymbol(symbol string) []*domain.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.bySymbol[symbol]
	out := make([]*domain.Order, 0, len(set))
	for o := range set {
		out = append(out, o)
	}
	return out
}

// EnsureOrder returns the existing order for (orderID, clOrdID, symbol),
// creating and indexing one if this is the first time either identifier has
// been seen. orderID and clOrdID may each be empty (an execution row may
// carry one but not the other); at least one must be non-empty.
func (r *OrdersRegistry) EnsureOrder(orderID, clOrdID, symbol string) (*domain.Order, error) {
	if orderID == "" && clOrdID == "" {
		return nil, fmt.Errorf("registry: order row has neither orderID nor clOrdID")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if orderID != "" {
		if o, ok := r.byOrderID[orderID]; ok {
			r.indexClOrdIDLocked(clOrdID, o)
			return o, nil
		}
	}
	if clOrdID != "" {
		if o, ok := r.byClOrdID[clOrdID]; ok {
			r.indexOrderIDLocked(orderID, o)
			return o, nil
		}
	}

	o := domain.NewOrder(orderID, clOrdID, symbol)
	r.indexOrderIDLocked(orderID, o)
	r.indexClOrdIDLocked(clOrdID, o)
	r.indexSymbolLocked(symbol, o)
	return o, nil
}

func (r *OrdersRegistry) indexOrderIDLocked(orderID string, o *domain.Order) {
	if orderID == "" {
		return
	}
	r.byOrderID[orderID] = o
}

func (r *OrdersRegistry) indexClOrdIDLocked(clOrdID string, o *domain.Order) {
	if clOrdID == "" {
		return
	}
	r.byClOrdID[clOrdID] = o
}

func (r *OrdersRegistry) indexSymbolLocked(symbol string, o *domain.Order) {
	if symbol == "" {
		return
	}
	set, ok := r.bySymbol[symbol]
	if !ok {
		set = make(map[*domain.Order]struct{})
		r.bySymbol[symbol] = set
	}
	set[o] = struct{}{}
}

// MarkInflight registers clOrdID as having an in-flight REST placement,
// returning false if one is already registered (at-most-one-in-flight).
func (r *OrdersRegistry) MarkInflight(clOrdID string, placeholder *domain.Order) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.inflight[clOrdID]; exists {
		return false
	}
	r.inflight[clOrdID] = placeholder
	return true
}

// ClearInflight removes the in-flight marker for clOrdID.
func (r *OrdersRegistry) ClearInflight(clOrdID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, clOrdID)
}

// InflightPlaceholder returns the placeholder order tracked for clOrdID, if any.
func (r *OrdersRegistry) InflightPlaceholder(clOrdID string) (*domain.Order, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.inflight[clOrdID]
	return o, ok
}

// ActiveOrders returns every order whose canonical status is not terminal.
func (r *OrdersRegistry) ActiveOrders() []*domain.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[*domain.Order]struct{})
	out := make([]*domain.Order, 0, len(r.byOrderID))
	for _, o := range r.byOrderID {
		if _, dup := seen[o]; dup {
			continue
		}
		seen[o] = struct{}{}
		if !o.IsTerminal() {
			out = append(out, o)
		}
	}
	for _, o := range r.byClOrdID {
		if _, dup := seen[o]; dup {
			continue
		}
		seen[o] = struct{}{}
		if !o.IsTerminal() {
			out = append(out, o)
		}
	}
	return out
}
