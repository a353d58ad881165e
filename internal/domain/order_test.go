package domain

import (
	"testing"

	"github.com/shopspring/decimal"

	"bitmex-client/internal/events"
	"bitmex-client/pkg/types"
)

func dec(s string) *decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return &v
}

func strp(s string) *string { return &s }
func sidep(s types.Side) *types.Side { return &s }

func TestOrderApplyFieldsDerivesStatus(t *testing.T) {
	t.Parallel()
	o := NewOrder("o1", "cl1", "XBTUSD")

	o.ApplyFields(types.OrderRow{
		OrderID:   "o1",
		Side:      sidep(types.Buy),
		OrdStatus: strp("New"),
		ExecType:  strp("New"),
		OrderQty:  dec("100"),
		LeavesQty: dec("100"),
		CumQty:    dec("0"),
	}, "insert")

	snap := o.Snapshot()
	if snap.Status != types.StatusPlaced {
		t.Fatalf("expected Placed, got %s", snap.Status)
	}

	o.ApplyFields(types.OrderRow{
		OrdStatus: strp("Filled"),
		ExecType:  strp("Trade"),
		CumQty:    dec("100"),
		LeavesQty: dec("0"),
	}, "update")

	snap = o.Snapshot()
	if snap.Status != types.StatusFilled {
		t.Fatalf("expected Filled, got %s", snap.Status)
	}
	if !o.IsTerminal() {
		t.Fatalf("expected terminal order")
	}
}

func TestOrderApplyFieldsOnlyTouchesPresentKeys(t *testing.T) {
	t.Parallel()
	o := NewOrder("o1", "cl1", "XBTUSD")
	o.ApplyFields(types.OrderRow{Price: dec("50000")}, "insert")
	o.ApplyFields(types.OrderRow{LeavesQty: dec("10")}, "update")

	snap := o.Snapshot()
	if !snap.Price.Equal(*dec("50000")) {
		t.Fatalf("expected price to survive a later partial update, got %s", snap.Price)
	}
	if !snap.LeavesQty.Equal(*dec("10")) {
		t.Fatalf("expected leavesQty applied, got %s", snap.LeavesQty)
	}
}

func TestOrderApplyFieldsAccumulatesExecutions(t *testing.T) {
	t.Parallel()
	o := NewOrder("o1", "cl1", "XBTUSD")

	o.ApplyFields(types.OrderRow{
		ExecID:  strp("exec-1"),
		LastQty: dec("30"),
		LastPx:  dec("50000"),
	}, "update")
	o.ApplyFields(types.OrderRow{
		ExecID:  strp("exec-2"),
		LastQty: dec("20"),
		LastPx:  dec("51000"),
	}, "update")

	snap := o.Snapshot()
	if len(snap.Executions) != 2 {
		t.Fatalf("expected 2 executions, got %d", len(snap.Executions))
	}
	if snap.Executions[0].ExecID != "exec-1" || snap.Executions[1].ExecID != "exec-2" {
		t.Fatalf("expected executions in arrival order, got %+v", snap.Executions)
	}
	if !snap.FilledQty.Equal(*dec("50")) {
		t.Fatalf("expected filledQty 50, got %s", snap.FilledQty)
	}
	want := dec("30").Mul(*dec("50000")).Add(dec("20").Mul(*dec("51000"))).Div(*dec("50"))
	if !snap.AvgFillPrice.Equal(want) {
		t.Fatalf("expected avgFillPrice %s, got %s", want, snap.AvgFillPrice)
	}
}

func TestOrderApplyFieldsCumQtyOverridesFilledQty(t *testing.T) {
	t.Parallel()
	o := NewOrder("o1", "cl1", "XBTUSD")

	o.ApplyFields(types.OrderRow{
		ExecID:  strp("exec-1"),
		LastQty: dec("30"),
		LastPx:  dec("50000"),
		CumQty:  dec("100"),
	}, "update")

	snap := o.Snapshot()
	if !snap.FilledQty.Equal(*dec("100")) {
		t.Fatalf("expected cumQty override to win, got %s", snap.FilledQty)
	}
}

func TestOrderApplyFieldsDuplicateExecIDIsIdempotent(t *testing.T) {
	t.Parallel()
	o := NewOrder("o1", "cl1", "XBTUSD")

	row := types.OrderRow{
		ExecID:  strp("exec-dup"),
		LastQty: dec("60"),
		LastPx:  dec("50500"),
		CumQty:  dec("60"),
		AvgPx:   dec("50500"),
	}

	var diffs []events.Diff[OrderSnapshot]
	unsub := o.Subscribe(func(d events.Diff[OrderSnapshot]) {
		diffs = append(diffs, d)
	})
	defer unsub()

	o.ApplyFields(row, "update")
	if len(diffs) != 1 {
		t.Fatalf("expected 1 diff after first application, got %d", len(diffs))
	}
	if !containsAll(diffs[0].Changed, "FilledQty", "Executions") {
		t.Fatalf("expected FilledQty and Executions in changed set, got %v", diffs[0].Changed)
	}

	o.ApplyFields(row, "update")
	if len(diffs) != 1 {
		t.Fatalf("expected no additional diff on duplicate execID, got %d total", len(diffs))
	}

	snap := o.Snapshot()
	if len(snap.Executions) != 1 {
		t.Fatalf("expected exactly 1 deduplicated execution, got %d", len(snap.Executions))
	}
	if !snap.FilledQty.Equal(*dec("60")) {
		t.Fatalf("expected filledQty 60, got %s", snap.FilledQty)
	}
}

func containsAll(haystack []string, wants ...string) bool {
	for _, w := range wants {
		found := false
		for _, h := range haystack {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func TestOrderSubscribeReceivesDiff(t *testing.T) {
	t.Parallel()
	o := NewOrder("o1", "cl1", "XBTUSD")

	var got *string
	unsub := o.Subscribe(func(d events.Diff[OrderSnapshot]) {
		reason := d.Reason
		got = &reason
	})
	defer unsub()

	o.ApplyFields(types.OrderRow{Price: dec("1")}, "insert")

	if got == nil || *got != "insert" {
		t.Fatalf("expected diff reason insert, got %v", got)
	}
}
