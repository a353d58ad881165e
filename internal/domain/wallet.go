package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"bitmex-client/internal/events"
	"bitmex-client/pkg/types"
)

// WalletSnapshot is an immutable copy of a Wallet's state.
type WalletSnapshot struct {
	Account        int64
	Currency       string
	Amount         decimal.Decimal
	PendingCredit  decimal.Decimal
	PendingDebit   decimal.Decimal
	ConfirmedDebit decimal.Decimal
	DeltaAmount    decimal.Decimal
	Deposited      decimal.Decimal
	Withdrawn      decimal.Decimal
	TransferIn     decimal.Decimal
	LastUpdate     time.Time
}

// Wallet is the mutex-protected entity mutated from wallet table rows,
// keyed by account and currency.
type Wallet struct {
	mu   rwMutex
	snap WalletSnapshot
	pub  events.Publisher[WalletSnapshot]
}

// NewWallet creates an entity for a freshly observed (account, currency) pair.
func NewWallet(account int64, currency string) *Wallet {
	return &Wallet{snap: WalletSnapshot{Account: account, Currency: currency}}
}

// Subscribe registers a listener for snapshot diffs.
func (w *Wallet) Subscribe(l events.Listener[WalletSnapshot]) func() {
	return w.pub.Subscribe(l)
}

// Snapshot returns a copy of the current state.
func (w *Wallet) Snapshot() WalletSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snap
}

// Age reports how long it has been since the wallet was last updated,
// letting callers detect and discard stale snapshots.
func (w *Wallet) Age() time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.snap.LastUpdate.IsZero() {
		return 0
	}
	return time.Since(w.snap.LastUpdate)
}

// ApplyFields merges the fields present in row into the wallet, emitting a
// diff for every field that changed.
func (w *Wallet) ApplyFields(row types.WalletRow, reason string) {
	w.mu.Lock()
	prev := w.snap
	next := prev

	var changed []string
	mark := func(field string) { changed = append(changed, field) }

	if row.Amount != nil && !row.Amount.Equal(next.Amount) {
		next.Amount = *row.Amount
		mark("Amount")
	}
	if row.PendingCredit != nil && !row.PendingCredit.Equal(next.PendingCredit) {
		next.PendingCredit = *row.PendingCredit
		mark("PendingCredit")
	}
	if row.PendingDebit != nil && !row.PendingDebit.Equal(next.PendingDebit) {
		next.PendingDebit = *row.PendingDebit
		mark("PendingDebit")
	}
	if row.ConfirmedDebit != nil && !row.ConfirmedDebit.Equal(next.ConfirmedDebit) {
		next.ConfirmedDebit = *row.ConfirmedDebit
		mark("ConfirmedDebit")
	}
	if row.DeltaAmount != nil && !row.DeltaAmount.Equal(next.DeltaAmount) {
		next.DeltaAmount = *row.DeltaAmount
		mark("DeltaAmount")
	}
	if row.Deposited != nil && !row.Deposited.Equal(next.Deposited) {
		next.Deposited = *row.Deposited
		mark("Deposited")
	}
	if row.Withdrawn != nil && !row.Withdrawn.Equal(next.Withdrawn) {
		next.Withdrawn = *row.Withdrawn
		mark("Withdrawn")
	}
	if row.TransferIn != nil && !row.TransferIn.Equal(next.TransferIn) {
		next.TransferIn = *row.TransferIn
		mark("TransferIn")
	}

	if row.Timestamp != nil {
		if ts, err := time.Parse(time.RFC3339, *row.Timestamp); err == nil {
			next.LastUpdate = ts
		}
	} else {
		next.LastUpdate = time.Now()
	}
	w.snap = next
	w.mu.Unlock()

	if len(changed) > 0 {
		w.pub.Emit(events.Diff[WalletSnapshot]{Prev: prev, Next: next, Changed: changed, Reason: reason})
	}
}
