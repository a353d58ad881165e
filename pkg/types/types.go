// Package types defines the shared vocabulary for the BitMEX client: wire
// envelopes exchanged over the WebSocket and REST surfaces, and the small
// set of enums the rest of the module builds on. It has no dependencies on
// internal packages, so it can be imported by any layer.
package types

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "Buy"
	Sell Side = "Sell"
)

// OrdType is the normalized order type accepted by place validation.
type OrdType string

const (
	Market    OrdType = "Market"
	Limit     OrdType = "Limit"
	Stop      OrdType = "Stop"
	StopLimit OrdType = "StopLimit"
)

// WireOrdType returns the BitMEX ordType string for this normalized type.
func (t OrdType) WireOrdType() string {
	switch t {
	case Stop:
		return "Stop"
	case StopLimit:
		return "StopLimit"
	case Limit:
		return "Limit"
	default:
		return "Market"
	}
}

// TimeInForce is the normalized short-form time-in-force accepted by place
// validation; WireTimeInForce expands it to BitMEX's long form.
type TimeInForce string

const (
	GTC TimeInForce = "GTC"
	IOC TimeInForce = "IOC"
	FOK TimeInForce = "FOK"
	Day TimeInForce = "DAY"
)

// WireTimeInForce expands a short-form time-in-force to BitMEX's wire value.
func (f TimeInForce) WireTimeInForce() string {
	switch f {
	case IOC:
		return "ImmediateOrCancel"
	case FOK:
		return "FillOrKill"
	case Day:
		return "Day"
	default:
		return "GoodTillCancel"
	}
}

// Status is the canonical order status derived by the status lattice
// (internal/status), independent of the noisy ordStatus/execType wire pair.
type Status string

const (
	StatusPlaced          Status = "Placed"
	StatusPartiallyFilled Status = "PartiallyFilled"
	StatusFilled          Status = "Filled"
	StatusCanceling       Status = "Canceling"
	StatusCanceled        Status = "Canceled"
	StatusRejected        Status = "Rejected"
	StatusExpired         Status = "Expired"
)

// Priority returns this status's rank in the terminal-protection lattice;
// higher wins. Unknown statuses rank below every known status.
func (s Status) Priority() int {
	switch s {
	case StatusFilled:
		return 6
	case StatusPartiallyFilled:
		return 5
	case StatusRejected:
		return 4
	case StatusCanceled, StatusExpired:
		return 3
	case StatusCanceling:
		return 2
	case StatusPlaced:
		return 1
	default:
		return 0
	}
}

// IsTerminal reports whether no further progress is expected from this status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusRejected, StatusExpired, StatusCanceled:
		return true
	default:
		return false
	}
}

// InstrumentStatus mirrors BitMEX's instrument.state values.
type InstrumentStatus string

const (
	InstrumentOpen     InstrumentStatus = "Open"
	InstrumentClosed   InstrumentStatus = "Closed"
	InstrumentSettled  InstrumentStatus = "Settled"
	InstrumentUnlisted InstrumentStatus = "Unlisted"
	InstrumentDelisted InstrumentStatus = "Delisted"
)

// TableAction is the applicator verb carried by every table frame.
type TableAction string

const (
	ActionPartial TableAction = "partial"
	ActionInsert  TableAction = "insert"
	ActionUpdate  TableAction = "update"
	ActionDelete  TableAction = "delete"
)

// ————————————————————————————————————————————————————————————————————————
// WS envelope — inbound
// ————————————————————————————————————————————————————————————————————————

// WelcomeFrame is the greeting BitMEX sends immediately after connecting.
type WelcomeFrame struct {
	Info      string          `json:"info"`
	Version   json.RawMessage `json:"version"`
	Timestamp string          `json:"timestamp,omitempty"`
	Docs      string          `json:"docs,omitempty"`
}

// SubscribeAck acknowledges a subscribe/unsubscribe request.
type SubscribeAck struct {
	Success   bool `json:"success"`
	Subscribe string `json:"subscribe"`
	Request   struct {
		Op   string   `json:"op"`
		Args []string `json:"args"`
	} `json:"request"`
}

// AuthResponse is the response to an authKeyExpires request.
type AuthResponse struct {
	Success bool            `json:"success"`
	Request json.RawMessage `json:"request"`
	Error   string          `json:"error,omitempty"`
}

// TableFrame is a partial/insert/update/delete delta for one table.
type TableFrame struct {
	Table  string            `json:"table"`
	Action TableAction       `json:"action"`
	Data   []json.RawMessage `json:"data"`
}

// ————————————————————————————————————————————————————————————————————————
// WS envelope — outbound
// ————————————————————————————————————————————————————————————————————————

// OutboundOp is an outgoing op frame: subscribe/unsubscribe/authKeyExpires.
type OutboundOp struct {
	Op   string        `json:"op"`
	Args []interface{} `json:"args"`
}

// ————————————————————————————————————————————————————————————————————————
// REST wire rows
// ————————————————————————————————————————————————————————————————————————

// InstrumentRow is one row of an instrument table frame.
type InstrumentRow struct {
	Symbol                string           `json:"symbol"`
	State                 InstrumentStatus `json:"state,omitempty"`
	Typ                   string           `json:"typ,omitempty"`
	RootSymbol            string           `json:"rootSymbol,omitempty"`
	QuoteCurrency         string           `json:"quoteCurrency,omitempty"`
	LotSize               *decimal.Decimal `json:"lotSize,omitempty"`
	TickSize              *decimal.Decimal `json:"tickSize,omitempty"`
	Multiplier            *int64           `json:"multiplier,omitempty"`
	MarkPrice             *decimal.Decimal `json:"markPrice,omitempty"`
	IndicativeSettlePrice *decimal.Decimal `json:"indicativeSettlePrice,omitempty"`
	LastPrice             *decimal.Decimal `json:"lastPrice,omitempty"`
	LastChangePcnt        *decimal.Decimal `json:"lastChangePcnt,omitempty"`
	FundingRate           *decimal.Decimal `json:"fundingRate,omitempty"`
	FundingTimestamp      *string          `json:"fundingTimestamp,omitempty"`
	FundingInterval       *string          `json:"fundingInterval,omitempty"`
	Expiry                *string          `json:"expiry,omitempty"`
	Volume24h             *decimal.Decimal `json:"volume24h,omitempty"`
	Turnover24h           *decimal.Decimal `json:"turnover24h,omitempty"`
	OpenInterest          *decimal.Decimal `json:"openInterest,omitempty"`
	LimitUpPrice          *decimal.Decimal `json:"limitUpPrice,omitempty"`
	LimitDownPrice        *decimal.Decimal `json:"limitDownPrice,omitempty"`
	MaxPrice              *decimal.Decimal `json:"maxPrice,omitempty"`
	Timestamp             *string          `json:"timestamp,omitempty"`
}

// TradeRow is one row of a trade table frame.
type TradeRow struct {
	Timestamp  string          `json:"timestamp"`
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	Size       decimal.Decimal `json:"size"`
	Price      decimal.Decimal `json:"price"`
	TrdMatchID string          `json:"trdMatchID,omitempty"`
}

// OrderBookL2Row is one row of an orderBookL2 table frame.
type OrderBookL2Row struct {
	Symbol string           `json:"symbol"`
	ID     int64            `json:"id"`
	Side   Side             `json:"side"`
	Size   *decimal.Decimal `json:"size,omitempty"`
	Price  *decimal.Decimal `json:"price,omitempty"`
}

// PositionRow is one row of a position table frame.
type PositionRow struct {
	Account          int64            `json:"account"`
	Symbol           string           `json:"symbol"`
	Timestamp        *string          `json:"timestamp,omitempty"`
	CurrentQty       *decimal.Decimal `json:"currentQty,omitempty"`
	AvgEntryPrice    *decimal.Decimal `json:"avgEntryPrice,omitempty"`
	MarkPrice        *decimal.Decimal `json:"markPrice,omitempty"`
	LiquidationPrice *decimal.Decimal `json:"liquidationPrice,omitempty"`
	MaintMargin      *decimal.Decimal `json:"maintMargin,omitempty"`
	InitMargin       *decimal.Decimal `json:"initMargin,omitempty"`
	UnrealisedPnl    *decimal.Decimal `json:"unrealisedPnl,omitempty"`
	RealisedPnl      *decimal.Decimal `json:"realisedPnl,omitempty"`
	HomeNotional     *decimal.Decimal `json:"homeNotional,omitempty"`
	ForeignNotional  *decimal.Decimal `json:"foreignNotional,omitempty"`
}

// WalletRow is one row of a wallet table frame.
type WalletRow struct {
	Account        int64            `json:"account"`
	Currency       string           `json:"currency"`
	Timestamp      *string          `json:"timestamp,omitempty"`
	Amount         *decimal.Decimal `json:"amount,omitempty"`
	PendingCredit  *decimal.Decimal `json:"pendingCredit,omitempty"`
	PendingDebit   *decimal.Decimal `json:"pendingDebit,omitempty"`
	ConfirmedDebit *decimal.Decimal `json:"confirmedDebit,omitempty"`
	DeltaAmount    *decimal.Decimal `json:"deltaAmount,omitempty"`
	Deposited      *decimal.Decimal `json:"deposited,omitempty"`
	Withdrawn      *decimal.Decimal `json:"withdrawn,omitempty"`
	TransferIn     *decimal.Decimal `json:"transferIn,omitempty"`
}

// OrderRow is one row of an order or execution table frame. Fields are a
// superset of both tables; the applicator reads only what each normalizer
// needs.
type OrderRow struct {
	OrderID          string           `json:"orderID"`
	ClOrdID          string           `json:"clOrdID,omitempty"`
	Symbol           string           `json:"symbol,omitempty"`
	Side             *Side            `json:"side,omitempty"`
	OrdType          *string          `json:"ordType,omitempty"`
	TimeInForce      *string          `json:"timeInForce,omitempty"`
	ExecInst         *string          `json:"execInst,omitempty"`
	Price            *decimal.Decimal `json:"price,omitempty"`
	StopPx           *decimal.Decimal `json:"stopPx,omitempty"`
	OrderQty         *decimal.Decimal `json:"orderQty,omitempty"`
	LeavesQty        *decimal.Decimal `json:"leavesQty,omitempty"`
	CumQty           *decimal.Decimal `json:"cumQty,omitempty"`
	AvgPx            *decimal.Decimal `json:"avgPx,omitempty"`
	OrdStatus        *string          `json:"ordStatus,omitempty"`
	ExecType         *string          `json:"execType,omitempty"`
	ExecID           *string          `json:"execID,omitempty"`
	LastQty          *decimal.Decimal `json:"lastQty,omitempty"`
	LastPx           *decimal.Decimal `json:"lastPx,omitempty"`
	LastLiquidityInd *string          `json:"lastLiquidityInd,omitempty"`
	Text             *string          `json:"text,omitempty"`
	Timestamp        *string          `json:"timestamp,omitempty"`
	TransactTime     *string          `json:"transactTime,omitempty"`
}

// ————————————————————————————————————————————————————————————————————————
// REST request/response payloads
// ————————————————————————————————————————————————————————————————————————

// PlaceOrderRequest is the POST /order request body.
type PlaceOrderRequest struct {
	Symbol      string  `json:"symbol"`
	Side        Side    `json:"side"`
	OrderQty    string  `json:"orderQty"`
	OrdType     string  `json:"ordType"`
	Price       *string `json:"price,omitempty"`
	StopPx      *string `json:"stopPx,omitempty"`
	TimeInForce string  `json:"timeInForce,omitempty"`
	ExecInst    string  `json:"execInst,omitempty"`
	ClOrdID     string  `json:"clOrdID,omitempty"`
	Text        string  `json:"text,omitempty"`
}

// AmendOrderRequest is the PUT /order request body.
type AmendOrderRequest struct {
	OrderID  string  `json:"orderID,omitempty"`
	ClOrdID  string  `json:"origClOrdID,omitempty"`
	OrderQty *string `json:"orderQty,omitempty"`
	Price    *string `json:"price,omitempty"`
}
