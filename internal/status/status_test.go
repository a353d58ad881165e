package status

import (
	"testing"

	"github.com/shopspring/decimal"

	"bitmex-client/pkg/types"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestNextNewOrder(t *testing.T) {
	t.Parallel()
	got := Next(Input{OrdStatus: "New", ExecType: "New", CumQty: d("0"), LeavesQty: d("100")})
	if got != types.StatusPlaced {
		t.Fatalf("expected Placed, got %s", got)
	}
}

func TestNextPartialFill(t *testing.T) {
	t.Parallel()
	got := Next(Input{OrdStatus: "PartiallyFilled", ExecType: "Trade", CumQty: d("40"), LeavesQty: d("60")})
	if got != types.StatusPartiallyFilled {
		t.Fatalf("expected PartiallyFilled, got %s", got)
	}
}

func TestNextFullFillFromQuantities(t *testing.T) {
	t.Parallel()
	got := Next(Input{OrdStatus: "Filled", ExecType: "Trade", CumQty: d("100"), LeavesQty: d("0")})
	if got != types.StatusFilled {
		t.Fatalf("expected Filled, got %s", got)
	}
}

func TestTerminalProtectionRejectsRegression(t *testing.T) {
	t.Parallel()
	// Stale "New" frame arrives after order already Filled.
	got := Next(Input{OrdStatus: "New", ExecType: "New", CumQty: d("0"), LeavesQty: d("100"), Prev: types.StatusFilled})
	if got != types.StatusFilled {
		t.Fatalf("expected terminal Filled to be protected, got %s", got)
	}
}

func TestCanceledUpgradesToFilledOnLateTrade(t *testing.T) {
	t.Parallel()
	got := Next(Input{OrdStatus: "Filled", ExecType: "Trade", CumQty: d("100"), LeavesQty: d("0"), Prev: types.StatusCanceled})
	if got != types.StatusFilled {
		t.Fatalf("expected Canceled->Filled upgrade, got %s", got)
	}
}

func TestRejectedIsTerminalAndWins(t *testing.T) {
	t.Parallel()
	got := Next(Input{OrdStatus: "Rejected", ExecType: "Rejected", CumQty: d("0"), LeavesQty: d("0")})
	if got != types.StatusRejected {
		t.Fatalf("expected Rejected, got %s", got)
	}
}

func TestNoCandidateKeepsPrev(t *testing.T) {
	t.Parallel()
	got := Next(Input{OrdStatus: "", ExecType: "Funding", CumQty: d("0"), LeavesQty: d("0"), Prev: types.StatusPlaced})
	if got != types.StatusPlaced {
		t.Fatalf("expected unchanged Placed, got %s", got)
	}
}

func TestCancelingPrevAllowsCanceled(t *testing.T) {
	t.Parallel()
	got := Next(Input{OrdStatus: "Canceled", ExecType: "Canceled", CumQty: d("0"), LeavesQty: d("0"), Prev: types.StatusCanceling})
	if got != types.StatusCanceled {
		t.Fatalf("expected Canceled, got %s", got)
	}
}
