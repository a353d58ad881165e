package registry

import (
	"fmt"
	"sync"

	"bitmex-client/internal/domain"
)

func walletKey(account int64, currency string) string {
	return fmt.Sprintf("%d::%s", account, currency)
}

// Wallets indexes live Wallet entities by (account, currency), with a
// secondary index by account.
type Wallets struct {
	mu        sync.RWMutex
	primary   map[string]*domain.Wallet
	byAccount map[int64]map[*domain.Wallet]struct{}
}

// NewWallets creates an empty registry.
func NewWallets() *Wallets {
	return &Wallets{
		primary:   make(map[string]*domain.Wallet),
		byAccount: make(map[int64]map[*domain.Wallet]struct{}),
	}
}

// Get returns the wallet for (account, currency), if any.
func (r *Wallets) Get(account int64, currency string) (*domain.Wallet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.primary[walletKey(account, currency)]
	return w, ok
}

// EnsureWallet returns the existing wallet for (account, currency), creating
// and indexing one on first observation.
func (r *Wallets) EnsureWallet(account int64, currency string) *domain.Wallet {
	key := walletKey(account, currency)

	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.primary[key]; ok {
		return w
	}

	w := domain.NewWallet(account, currency)
	r.primary[key] = w
	set, ok := r.byAccount[account]
	if !ok {
		set = make(map[*domain.Wallet]struct{})
		r.byAccount[account] = set
	}
	set[w] = struct{}{}
	return w
}

// ByAccount returns every wallet tracked for account.
func (r *Wallets) ByAccount(account int64) []*domain.Wallet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byAccount[account]
	out := make([]*domain.Wallet, 0, len(set))
	for w := range set {
		out = append(out, w)
	}
	return out
}
