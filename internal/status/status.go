// Package status implements the order status lattice: deriving one
// canonical Status from the three noisy signals BitMEX sends on every
// order update (ordStatus, execType, and the cumQty/leavesQty pair), with
// terminal-state protection so a stale update can never regress a
// finished order.
package status

import (
	"github.com/shopspring/decimal"

	"bitmex-client/pkg/types"
)

// Input bundles the three signals the lattice reasons over, plus the
// order's previous canonical status.
type Input struct {
	OrdStatus string
	ExecType  string
	CumQty    decimal.Decimal
	LeavesQty decimal.Decimal
	Prev      types.Status
}

// Next derives the next canonical status for in.
func Next(in Input) types.Status {
	ordCandidate := fromOrdStatus(in.OrdStatus)
	qtyCandidate := fromQuantities(in.OrdStatus, in.CumQty, in.LeavesQty)
	execCandidate := fromExecType(in.ExecType, ordCandidate, qtyCandidate)

	next := highestPriority(ordCandidate, qtyCandidate, execCandidate)
	if next == "" {
		return in.Prev
	}

	if in.Prev.IsTerminal() {
		if !next.IsTerminal() || next.Priority() < in.Prev.Priority() {
			return in.Prev
		}
	}

	return next
}

func fromOrdStatus(ordStatus string) types.Status {
	switch ordStatus {
	case "New":
		return types.StatusPlaced
	case "PartiallyFilled":
		return types.StatusPartiallyFilled
	case "Filled":
		return types.StatusFilled
	case "Canceled":
		return types.StatusCanceled
	case "Rejected":
		return types.StatusRejected
	case "Expired":
		return types.StatusExpired
	case "Triggered":
		return types.StatusPlaced
	default:
		return ""
	}
}

func fromQuantities(ordStatus string, cumQty, leavesQty decimal.Decimal) types.Status {
	switch {
	case cumQty.IsPositive() && !leavesQty.IsPositive():
		return types.StatusFilled
	case cumQty.IsPositive():
		return types.StatusPartiallyFilled
	case ordStatus == "PartiallyFilled" && !leavesQty.IsPositive():
		return types.StatusPartiallyFilled
	case ordStatus == "Filled":
		return types.StatusFilled
	default:
		return ""
	}
}

func fromExecType(execType string, ordCandidate, qtyCandidate types.Status) types.Status {
	eitherFilled := ordCandidate == types.StatusFilled || qtyCandidate == types.StatusFilled
	eitherPartiallyFilled := ordCandidate == types.StatusPartiallyFilled || qtyCandidate == types.StatusPartiallyFilled

	switch execType {
	case "Trade":
		if eitherFilled {
			return types.StatusFilled
		}
		return types.StatusPartiallyFilled
	case "Canceled":
		if eitherFilled {
			return types.StatusFilled
		}
		return types.StatusCanceled
	case "Expired":
		return types.StatusExpired
	case "New":
		if eitherPartiallyFilled {
			return types.StatusPartiallyFilled
		}
		return types.StatusPlaced
	case "Restated", "Calculated":
		if eitherFilled {
			return types.StatusFilled
		}
		if eitherPartiallyFilled {
			return types.StatusPartiallyFilled
		}
		return ""
	case "Settlement":
		if eitherFilled {
			return types.StatusFilled
		}
		return ""
	default:
		// Funding and any unrecognized execType: no opinion.
		return ""
	}
}

// highestPriority returns the non-empty candidate with the highest lattice
// priority, preferring the first argument on ties (ordStatus beats
// quantities beats execType, matching the spec's listed precedence).
func highestPriority(candidates ...types.Status) types.Status {
	var best types.Status
	bestPriority := -1
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if c.Priority() > bestPriority {
			best = c
			bestPriority = c.Priority()
		}
	}
	return best
}
