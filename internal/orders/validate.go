// Package orders implements REST order placement: place-input validation
// (§4.6 of the module's order lifecycle design), inflight coalescing per
// client order id, single-retry submission, and timeout-triggered
// reconciliation against the exchange's order-by-clOrdID query.
package orders

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"bitmex-client/internal/errs"
	"bitmex-client/pkg/types"
)

// PlaceOpts carries the optional, type-dependent parts of a place request.
type PlaceOpts struct {
	StopLimitPrice *decimal.Decimal
	PostOnly       bool
	ReduceOnly     bool
	TimeInForce    types.TimeInForce
	ClOrdID        string
	ClOrdIDSeed    string
	Text           string
}

// PlaceParams is the raw caller-supplied request before normalization.
type PlaceParams struct {
	Symbol  string
	Side    types.Side
	Size    decimal.Decimal
	Price   *decimal.Decimal
	Type    types.OrdType
	Opts    PlaceOpts
	BestBid *decimal.Decimal
	BestAsk *decimal.Decimal
}

// NormalizedPlaceInput is the fully validated, exchange-agnostic order
// description the placement engine submits from.
type NormalizedPlaceInput struct {
	Symbol         string
	Side           types.Side
	Size           decimal.Decimal
	Type           types.OrdType
	Price          *decimal.Decimal // limit price for Limit/StopLimit
	StopPx         *decimal.Decimal // trigger price for Stop/StopLimit
	PostOnly       bool
	ReduceOnly     bool
	TimeInForce    types.TimeInForce
	ClOrdID        string
	Text           string
}

var clOrdIDCounter uint64

// clOrdIDPrefixPattern keeps only lowercase letters and digits from the
// caller's seed.
var clOrdIDPrefixPattern = regexp.MustCompile(`[^a-z0-9]+`)

const defaultClOrdIDPrefix = "ord"

// Validate normalizes and validates p per the module's place-validation
// rules, returning a NormalizedPlaceInput ready for the placement engine.
func Validate(p PlaceParams) (*NormalizedPlaceInput, error) {
	symbol := strings.TrimSpace(p.Symbol)
	if symbol == "" {
		return nil, errs.New(errs.Validation, "symbol is required")
	}
	if p.Side != types.Buy && p.Side != types.Sell {
		return nil, errs.New(errs.Validation, "side must be buy or sell")
	}
	if !isFinitePositive(p.Size) {
		return nil, errs.New(errs.Validation, "size must be a finite positive number")
	}

	ordType := p.Type
	if ordType == types.Stop && p.Opts.StopLimitPrice != nil {
		ordType = types.StopLimit
	}

	out := &NormalizedPlaceInput{
		Symbol:      symbol,
		Side:        p.Side,
		Size:        p.Size,
		Type:        ordType,
		PostOnly:    p.Opts.PostOnly,
		ReduceOnly:  p.Opts.ReduceOnly,
		TimeInForce: p.Opts.TimeInForce,
		Text:        p.Opts.Text,
	}

	switch ordType {
	case types.Market:
		if p.Price != nil {
			return nil, errs.New(errs.Validation, "market orders forbid a price")
		}
		if p.Opts.StopLimitPrice != nil {
			return nil, errs.New(errs.Validation, "market orders forbid a stopLimitPrice")
		}

	case types.Limit:
		if p.Price == nil || !isFinitePositive(*p.Price) {
			return nil, errs.New(errs.Validation, "limit orders require a finite positive price")
		}
		if p.Opts.StopLimitPrice != nil {
			return nil, errs.New(errs.Validation, "limit orders forbid a stopLimitPrice")
		}
		out.Price = p.Price
		if out.TimeInForce == "" {
			out.TimeInForce = types.GTC
		}

	case types.Stop:
		if p.Price == nil || !isFinitePositive(*p.Price) {
			return nil, errs.New(errs.Validation, "stop orders require a finite positive stop price")
		}
		if p.Opts.StopLimitPrice != nil {
			return nil, errs.New(errs.Validation, "stop orders forbid a stopLimitPrice")
		}
		if err := checkStopCrossesBook(p.Side, *p.Price, p.BestBid, p.BestAsk); err != nil {
			return nil, err
		}
		out.StopPx = p.Price

	case types.StopLimit:
		if p.Price == nil || !isFinitePositive(*p.Price) {
			return nil, errs.New(errs.Validation, "stop-limit orders require a stop price")
		}
		if p.Opts.StopLimitPrice == nil || !isFinitePositive(*p.Opts.StopLimitPrice) {
			return nil, errs.New(errs.Validation, "stop-limit orders require a stopLimitPrice")
		}
		if err := checkStopCrossesBook(p.Side, *p.Price, p.BestBid, p.BestAsk); err != nil {
			return nil, err
		}
		out.StopPx = p.Price
		out.Price = p.Opts.StopLimitPrice

	default:
		return nil, errs.New(errs.Validation, fmt.Sprintf("unknown order type %q", ordType))
	}

	if out.PostOnly && ordType != types.Limit {
		return nil, errs.New(errs.Validation, "postOnly is only valid for Limit orders")
	}

	clOrdID := strings.TrimSpace(p.Opts.ClOrdID)
	if p.Opts.ClOrdID != "" && clOrdID == "" {
		return nil, errs.New(errs.Validation, "clOrdID must be non-empty after trimming")
	}
	if clOrdID == "" {
		generated, err := generateClOrdID(p.Opts.ClOrdIDSeed, time.Now())
		if err != nil {
			return nil, err
		}
		clOrdID = generated
	}
	out.ClOrdID = clOrdID

	return out, nil
}

func isFinitePositive(d decimal.Decimal) bool {
	return d.IsPositive()
}

// checkStopCrossesBook enforces the top-of-book cross-check: a buy-stop
// must trigger at or above the best ask, a sell-stop at or below the best
// bid, when that side of the book is known.
func checkStopCrossesBook(side types.Side, stopPx decimal.Decimal, bestBid, bestAsk *decimal.Decimal) error {
	switch side {
	case types.Buy:
		if bestAsk != nil && stopPx.LessThan(*bestAsk) {
			return errs.New(errs.Validation, "buy-stop price must be at or above the best ask")
		}
	case types.Sell:
		if bestBid != nil && stopPx.GreaterThan(*bestBid) {
			return errs.New(errs.Validation, "sell-stop price must be at or below the best bid")
		}
	}
	return nil
}

// generateClOrdID builds a deterministic-shape, collision-resistant client
// order id: "<prefix>-<base36(nowMs)>-<base36(counter,4)><rand2bytes hex>".
func generateClOrdID(seed string, now time.Time) (string, error) {
	prefix := sanitizeClOrdIDPrefix(seed)

	nowMs := now.UnixMilli()
	counter := atomic.AddUint64(&clOrdIDCounter, 1) % 10000

	randBytes := make([]byte, 2)
	if _, err := rand.Read(randBytes); err != nil {
		return "", errs.Wrap(errs.Unknown, err, "generate clOrdID entropy")
	}

	return fmt.Sprintf("%s-%s-%s%s",
		prefix,
		strconv.FormatInt(nowMs, 36),
		strconv.FormatUint(counter, 36),
		hex.EncodeToString(randBytes),
	), nil
}

func sanitizeClOrdIDPrefix(seed string) string {
	lower := strings.ToLower(strings.TrimSpace(seed))
	cleaned := clOrdIDPrefixPattern.ReplaceAllString(lower, "")
	if cleaned == "" {
		return defaultClOrdIDPrefix
	}
	return cleaned
}
