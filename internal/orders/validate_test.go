package orders

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bitmex-client/internal/errs"
	"bitmex-client/pkg/types"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decp(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func TestValidateMarketOrder(t *testing.T) {
	t.Parallel()
	out, err := Validate(PlaceParams{
		Symbol: "XBTUSD",
		Side:   types.Buy,
		Size:   dec("100"),
		Type:   types.Market,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Price != nil || out.StopPx != nil {
		t.Fatal("market orders must carry no price or stopPx")
	}
}

func TestValidateMarketForbidsPrice(t *testing.T) {
	t.Parallel()
	_, err := Validate(PlaceParams{
		Symbol: "XBTUSD",
		Side:   types.Buy,
		Size:   dec("1"),
		Price:  decp("100"),
		Type:   types.Market,
	})
	if errs.CategoryOf(err) != errs.Validation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestValidateLimitRequiresPositivePrice(t *testing.T) {
	t.Parallel()
	_, err := Validate(PlaceParams{
		Symbol: "XBTUSD",
		Side:   types.Buy,
		Size:   dec("1"),
		Type:   types.Limit,
	})
	if errs.CategoryOf(err) != errs.Validation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestValidateLimitDefaultsTimeInForceToGTC(t *testing.T) {
	t.Parallel()
	out, err := Validate(PlaceParams{
		Symbol: "XBTUSD",
		Side:   types.Buy,
		Size:   dec("1"),
		Price:  decp("60000"),
		Type:   types.Limit,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.TimeInForce != types.GTC {
		t.Fatalf("timeInForce = %v, want GTC", out.TimeInForce)
	}
}

func TestValidatePostOnlyWithReduceOnly(t *testing.T) {
	t.Parallel()
	out, err := Validate(PlaceParams{
		Symbol: "XBTUSD",
		Side:   types.Sell,
		Size:   dec("1"),
		Price:  decp("60500"),
		Type:   types.Limit,
		Opts:   PlaceOpts{PostOnly: true, ReduceOnly: true},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req := buildPlaceRequest(*out)
	if req.ExecInst != "ParticipateDoNotInitiate,ReduceOnly" {
		t.Fatalf("execInst = %q", req.ExecInst)
	}
	if req.TimeInForce != "GoodTillCancel" {
		t.Fatalf("timeInForce = %q", req.TimeInForce)
	}
}

func TestValidatePostOnlyRejectedForMarket(t *testing.T) {
	t.Parallel()
	_, err := Validate(PlaceParams{
		Symbol: "XBTUSD",
		Side:   types.Buy,
		Size:   dec("1"),
		Type:   types.Market,
		Opts:   PlaceOpts{PostOnly: true},
	})
	if errs.CategoryOf(err) != errs.Validation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestValidateStopUpgradesToStopLimitWhenStopLimitPriceGiven(t *testing.T) {
	t.Parallel()
	out, err := Validate(PlaceParams{
		Symbol: "XBTUSD",
		Side:   types.Buy,
		Size:   dec("1"),
		Price:  decp("61000"),
		Type:   types.Stop,
		Opts:   PlaceOpts{StopLimitPrice: decp("61100")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Type != types.StopLimit {
		t.Fatalf("type = %v, want StopLimit", out.Type)
	}
	if out.StopPx == nil || !out.StopPx.Equal(dec("61000")) {
		t.Fatalf("stopPx = %v", out.StopPx)
	}
	if out.Price == nil || !out.Price.Equal(dec("61100")) {
		t.Fatalf("price = %v", out.Price)
	}
}

func TestValidateBuyStopMustBeAtOrAboveBestAsk(t *testing.T) {
	t.Parallel()
	_, err := Validate(PlaceParams{
		Symbol:  "XBTUSD",
		Side:    types.Buy,
		Size:    dec("1"),
		Price:   decp("59000"),
		Type:    types.Stop,
		BestAsk: decp("60000"),
	})
	if errs.CategoryOf(err) != errs.Validation {
		t.Fatalf("expected validation error for buy-stop below best ask, got %v", err)
	}
}

func TestValidateSellStopMustBeAtOrBelowBestBid(t *testing.T) {
	t.Parallel()
	_, err := Validate(PlaceParams{
		Symbol:  "XBTUSD",
		Side:    types.Sell,
		Size:    dec("1"),
		Price:   decp("61000"),
		Type:    types.Stop,
		BestBid: decp("60000"),
	})
	if errs.CategoryOf(err) != errs.Validation {
		t.Fatalf("expected validation error for sell-stop above best bid, got %v", err)
	}
}

func TestValidateGeneratesClOrdIDWhenAbsent(t *testing.T) {
	t.Parallel()
	out, err := Validate(PlaceParams{
		Symbol: "XBTUSD",
		Side:   types.Buy,
		Size:   dec("1"),
		Type:   types.Market,
		Opts:   PlaceOpts{ClOrdIDSeed: "My Bot!!"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.ClOrdID == "" {
		t.Fatal("expected a generated clOrdID")
	}
	if got := out.ClOrdID[:6]; got != "mybot-" {
		t.Fatalf("expected sanitized prefix 'mybot-', got %q (full: %s)", got, out.ClOrdID)
	}
}

func TestValidateRejectsBlankClOrdIDAfterTrim(t *testing.T) {
	t.Parallel()
	_, err := Validate(PlaceParams{
		Symbol: "XBTUSD",
		Side:   types.Buy,
		Size:   dec("1"),
		Type:   types.Market,
		Opts:   PlaceOpts{ClOrdID: "   "},
	})
	if errs.CategoryOf(err) != errs.Validation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGenerateClOrdIDDefaultPrefix(t *testing.T) {
	t.Parallel()
	id, err := generateClOrdID("", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id[:4] != "ord-" {
		t.Fatalf("expected default prefix 'ord-', got %q", id)
	}
}

func TestGenerateClOrdIDIsUniqueAcrossCalls(t *testing.T) {
	t.Parallel()
	now := time.Now()
	a, _ := generateClOrdID("seed", now)
	b, _ := generateClOrdID("seed", now)
	if a == b {
		t.Fatal("expected distinct clOrdIDs for concurrent calls with the same seed and timestamp")
	}
}
