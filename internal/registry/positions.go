package registry

import (
	"fmt"
	"sync"

	"bitmex-client/internal/domain"
)

func positionKey(account int64, symbol string) string {
	return fmt.Sprintf("%d::%s", account, symbol)
}

// PositionsRegistry indexes live Position entities by (account, symbol),
// with a secondary index by account for account-wide iteration.
type PositionsRegistry struct {
	mu        sync.RWMutex
	primary   map[string]*domain.Position
	byAccount map[int64]map[*domain.Position]struct{}
}

// NewPositionsRegistry creates an empty registry.
func NewPositionsRegistry() *PositionsRegistry {
	return &PositionsRegistry{
		primary:   make(map[string]*domain.Position),
		byAccount: make(map[int64]map[*domain.Position]struct{}),
	}
}

// Get returns the position for (account, symbol), if any.
func (r *PositionsRegistry) Get(account int64, symbol string) (*domain.Position, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.primary[positionKey(account, symbol)]
	return p, ok
}

// EnsurePosition returns the existing position for (account, symbol),
// creating and indexing one on first observation.
func (r *PositionsRegistry) EnsurePosition(account int64, symbol string) *domain.Position {
	key := positionKey(account, symbol)

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.primary[key]; ok {
		return p
	}

	p := domain.NewPosition(account, symbol)
	r.primary[key] = p
	set, ok := r.byAccount[account]
	if !ok {
		set = make(map[*domain.Position]struct{})
		r.byAccount[account] = set
	}
	set[p] = struct{}{}
	return p
}

// ByAccount returns every position tracked for account.
func (r *PositionsRegistry) ByAccount(account int64) []*domain.Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byAccount[account]
	out := make([]*domain.Position, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	return out
}

// OpenPositions returns every position across all accounts with non-zero size.
func (r *PositionsRegistry) OpenPositions() []*domain.Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Position, 0)
	for _, p := range r.primary {
		if p.Snapshot().IsOpen() {
			out = append(out, p)
		}
	}
	return out
}
