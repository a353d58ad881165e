// Package domain implements the typed entities the channel applicator
// mutates: Instrument, OrderBookL2, Order, Position, and Wallet. Each
// entity is mutex-protected, exposes immutable Snapshot copies to readers,
// and announces mutations through a typed events.Publisher rather than a
// dynamic event emitter.
package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"bitmex-client/internal/events"
	"bitmex-client/pkg/types"
)

// PriceFilter mirrors an instrument's price-band limits.
type PriceFilter struct {
	LimitUp   decimal.Decimal
	LimitDown decimal.Decimal
	MaxPrice  decimal.Decimal
}

// TradeTick is one entry in an instrument's bounded recent-trades buffer.
type TradeTick struct {
	Timestamp time.Time
	Side      types.Side
	Price     decimal.Decimal
	Size      decimal.Decimal
}

// InstrumentSnapshot is an immutable copy of an Instrument's state.
type InstrumentSnapshot struct {
	NativeSymbol   string
	UnifiedSymbol  string
	Status         types.InstrumentStatus
	ProductType    string
	BaseCurrency   string
	QuoteCurrency  string
	LotSize        decimal.Decimal
	TickSize       decimal.Decimal
	Multiplier     int64
	MarkPrice      decimal.Decimal
	IndexPrice     decimal.Decimal
	LastPrice      decimal.Decimal
	LastChangePcnt decimal.Decimal
	FundingRate    decimal.Decimal
	FundingTimestamp string
	FundingInterval  string
	Expiry           string
	Volume24h        decimal.Decimal
	Turnover24h      decimal.Decimal
	OpenInterest     decimal.Decimal
	PriceFilter      PriceFilter
	LastUpdate       time.Time
	Trades           []TradeTick
}

const maxTradeBuffer = 200

// Instrument is the mutable, mutex-protected entity an applicator normalizer
// mutates from instrument/trade table rows.
type Instrument struct {
	mu   instrumentMu
	snap InstrumentSnapshot
	pub  events.Publisher[InstrumentSnapshot]
}

type instrumentMu = rwMutex

// NewInstrument creates an entity for a freshly observed native symbol.
func NewInstrument(nativeSymbol, unifiedSymbol string) *Instrument {
	return &Instrument{
		snap: InstrumentSnapshot{
			NativeSymbol:  nativeSymbol,
			UnifiedSymbol: unifiedSymbol,
		},
	}
}

// Subscribe registers a listener for snapshot diffs.
func (i *Instrument) Subscribe(l events.Listener[InstrumentSnapshot]) func() {
	return i.pub.Subscribe(l)
}

// Snapshot returns a copy of the current state.
func (i *Instrument) Snapshot() InstrumentSnapshot {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.snap
}

// IsDelisted reports whether the instrument's current status is Delisted.
func (i *Instrument) IsDelisted() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.snap.Status == types.InstrumentDelisted
}

// ApplyFields mutates the statically listed writable fields present in row,
// emitting a diff for any field that actually changed. reason is carried
// through to subscribers (e.g. "partial", "insert", "update").
func (i *Instrument) ApplyFields(row types.InstrumentRow, reason string) {
	i.mu.Lock()
	prev := i.snap
	next := prev

	var changed []string
	mark := func(field string) { changed = append(changed, field) }

	if row.State != "" && row.State != next.Status {
		next.Status = row.State
		mark("Status")
	}
	if row.Typ != "" && row.Typ != next.ProductType {
		next.ProductType = row.Typ
		mark("ProductType")
	}
	if row.RootSymbol != "" {
		lower := toLower(row.RootSymbol)
		if lower != next.BaseCurrency {
			next.BaseCurrency = lower
			mark("BaseCurrency")
		}
	}
	if row.QuoteCurrency != "" {
		lower := toLower(row.QuoteCurrency)
		if lower != next.QuoteCurrency {
			next.QuoteCurrency = lower
			mark("QuoteCurrency")
		}
	}
	if row.LotSize != nil && !row.LotSize.Equal(next.LotSize) {
		next.LotSize = *row.LotSize
		mark("LotSize")
	}
	if row.TickSize != nil && !row.TickSize.Equal(next.TickSize) {
		next.TickSize = *row.TickSize
		mark("TickSize")
	}
	if row.Multiplier != nil && *row.Multiplier != next.Multiplier {
		next.Multiplier = *row.Multiplier
		mark("Multiplier")
	}
	if row.MarkPrice != nil && !row.MarkPrice.Equal(next.MarkPrice) {
		next.MarkPrice = *row.MarkPrice
		mark("MarkPrice")
	}
	if row.IndicativeSettlePrice != nil && !row.IndicativeSettlePrice.Equal(next.IndexPrice) {
		next.IndexPrice = *row.IndicativeSettlePrice
		mark("IndexPrice")
	}
	if row.LastPrice != nil && !row.LastPrice.Equal(next.LastPrice) {
		next.LastPrice = *row.LastPrice
		mark("LastPrice")
	}
	if row.LastChangePcnt != nil && !row.LastChangePcnt.Equal(next.LastChangePcnt) {
		next.LastChangePcnt = *row.LastChangePcnt
		mark("LastChangePcnt")
	}
	if row.FundingRate != nil && !row.FundingRate.Equal(next.FundingRate) {
		next.FundingRate = *row.FundingRate
		mark("FundingRate")
	}
	if row.FundingTimestamp != nil && *row.FundingTimestamp != next.FundingTimestamp {
		next.FundingTimestamp = *row.FundingTimestamp
		mark("FundingTimestamp")
	}
	if row.FundingInterval != nil && *row.FundingInterval != next.FundingInterval {
		next.FundingInterval = *row.FundingInterval
		mark("FundingInterval")
	}
	if row.Expiry != nil && *row.Expiry != next.Expiry {
		next.Expiry = *row.Expiry
		mark("Expiry")
	}
	if row.Volume24h != nil && !row.Volume24h.Equal(next.Volume24h) {
		next.Volume24h = *row.Volume24h
		mark("Volume24h")
	}
	if row.Turnover24h != nil && !row.Turnover24h.Equal(next.Turnover24h) {
		next.Turnover24h = *row.Turnover24h
		mark("Turnover24h")
	}
	if row.OpenInterest != nil && !row.OpenInterest.Equal(next.OpenInterest) {
		next.OpenInterest = *row.OpenInterest
		mark("OpenInterest")
	}
	if row.LimitUpPrice != nil && !row.LimitUpPrice.Equal(next.PriceFilter.LimitUp) {
		next.PriceFilter.LimitUp = *row.LimitUpPrice
		mark("PriceFilter.LimitUp")
	}
	if row.LimitDownPrice != nil && !row.LimitDownPrice.Equal(next.PriceFilter.LimitDown) {
		next.PriceFilter.LimitDown = *row.LimitDownPrice
		mark("PriceFilter.LimitDown")
	}
	if row.MaxPrice != nil && !row.MaxPrice.Equal(next.PriceFilter.MaxPrice) {
		next.PriceFilter.MaxPrice = *row.MaxPrice
		mark("PriceFilter.MaxPrice")
	}

	next.LastUpdate = time.Now()
	i.snap = next
	i.mu.Unlock()

	if len(changed) > 0 {
		i.pub.Emit(events.Diff[InstrumentSnapshot]{Prev: prev, Next: next, Changed: changed, Reason: reason})
	}
}

// RecordTrade appends a trade to the bounded FIFO buffer, evicting the
// oldest entry once maxTradeBuffer is exceeded.
func (i *Instrument) RecordTrade(tick TradeTick) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.snap.Trades = append(i.snap.Trades, tick)
	if len(i.snap.Trades) > maxTradeBuffer {
		i.snap.Trades = i.snap.Trades[len(i.snap.Trades)-maxTradeBuffer:]
	}
}

func toLower(s string) string {
	out := make([]byte, len(s))
	for idx := 0; idx < len(s); idx++ {
		c := s[idx]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[idx] = c
	}
	return string(out)
}
