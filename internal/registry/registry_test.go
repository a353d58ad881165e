package registry

import "testing"

func TestOrdersRegistryEnsureOrderDedupesByEitherID(t *testing.T) {
	t.Parallel()
	r := NewOrdersRegistry()

	o1, err := r.EnsureOrder("o1", "", "XBTUSD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	o2, err := r.EnsureOrder("o1", "cl1", "XBTUSD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o1 != o2 {
		t.Fatalf("expected same order instance once orderID matches")
	}

	o3, ok := r.GetByClOrdID("cl1")
	if !ok || o3 != o1 {
		t.Fatalf("expected clOrdID index backfilled onto existing order")
	}
}

func TestOrdersRegistryRejectsRowWithNoIdentifier(t *testing.T) {
	t.Parallel()
	r := NewOrdersRegistry()
	if _, err := r.EnsureOrder("", "", "XBTUSD"); err == nil {
		t.Fatalf("expected error for row with neither orderID nor clOrdID")
	}
}

func TestOrdersRegistryInflightGating(t *testing.T) {
	t.Parallel()
	r := NewOrdersRegistry()
	placeholder, _ := r.EnsureOrder("", "cl1", "XBTUSD")

	if !r.MarkInflight("cl1", placeholder) {
		t.Fatalf("expected first MarkInflight to succeed")
	}
	if r.MarkInflight("cl1", placeholder) {
		t.Fatalf("expected second concurrent MarkInflight for same clOrdID to fail")
	}

	r.ClearInflight("cl1")
	if !r.MarkInflight("cl1", placeholder) {
		t.Fatalf("expected MarkInflight to succeed again after ClearInflight")
	}
}

func TestPositionsRegistryEnsureAndByAccount(t *testing.T) {
	t.Parallel()
	r := NewPositionsRegistry()

	p1 := r.EnsurePosition(1, "XBTUSD")
	p2 := r.EnsurePosition(1, "XBTUSD")
	if p1 != p2 {
		t.Fatalf("expected same instance on repeated EnsurePosition")
	}

	r.EnsurePosition(1, "ETHUSD")
	if got := len(r.ByAccount(1)); got != 2 {
		t.Fatalf("expected 2 positions for account, got %d", got)
	}
}

func TestWalletsEnsureAndByAccount(t *testing.T) {
	t.Parallel()
	r := NewWallets()

	w1 := r.EnsureWallet(1, "XBt")
	w2 := r.EnsureWallet(1, "XBt")
	if w1 != w2 {
		t.Fatalf("expected same instance on repeated EnsureWallet")
	}

	if got := len(r.ByAccount(1)); got != 1 {
		t.Fatalf("expected 1 wallet for account, got %d", got)
	}
}
