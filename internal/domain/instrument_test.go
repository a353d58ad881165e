package domain

import (
	"testing"
	"time"

	"bitmex-client/pkg/types"
)

func TestInstrumentApplyFieldsAndDelisted(t *testing.T) {
	t.Parallel()
	i := NewInstrument("XBTUSD", "btcusdt.perp")

	i.ApplyFields(types.InstrumentRow{
		State:    types.InstrumentOpen,
		LotSize:  dec("1"),
		TickSize: dec("0.5"),
	}, "partial")

	if i.IsDelisted() {
		t.Fatalf("expected not delisted")
	}

	i.ApplyFields(types.InstrumentRow{State: types.InstrumentDelisted}, "update")
	if !i.IsDelisted() {
		t.Fatalf("expected delisted after state update")
	}
}

func TestInstrumentRecordTradeBoundedBuffer(t *testing.T) {
	t.Parallel()
	i := NewInstrument("XBTUSD", "btcusdt.perp")

	for n := 0; n < maxTradeBuffer+5; n++ {
		i.RecordTrade(TradeTick{Timestamp: time.Now(), Side: types.Buy, Price: *dec("1"), Size: *dec("1")})
	}

	snap := i.Snapshot()
	if len(snap.Trades) != maxTradeBuffer {
		t.Fatalf("expected buffer capped at %d, got %d", maxTradeBuffer, len(snap.Trades))
	}
}
