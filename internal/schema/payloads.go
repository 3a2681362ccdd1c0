package schema

// TickKind describes the meaning of a tick payload.
type TickKind uint16

const (
	TickUnknown TickKind = iota
	TickTrade
	TickQuote
)

// Tick is the payload for EventTick. Trade ticks carry Price/Size,
// quote ticks carry the bid/ask fields; Kind says which half is live.
type Tick struct {
	SymbolID uint32
	Kind     TickKind
	Flags    uint16
	Price    Price
	Size     Quantity
	BidPrice Price
	BidSize  Quantity
	AskPrice Price
	AskSize  Quantity
}

// Bar flag bits.
const (
	// BarFlagFinal marks a bar whose bucket has closed. Bars without
	// this flag are still accumulating and may be rewritten in place.
	BarFlagFinal uint16 = 1 << 0
)

// Bar is the payload for EventBar: OHLCV for one (instrument,
// resolution, time bucket). OpenTime is the bucket open in unix nanos.
type Bar struct {
	SymbolID   uint32
	Resolution Resolution
	Flags      uint16
	OpenTime   int64
	Open       Price
	High       Price
	Low        Price
	Close      Price
	Volume     Quantity
}

// Final reports whether the bar's bucket has closed.
func (b Bar) Final() bool {
	return b.Flags&BarFlagFinal != 0
}

// OrderSide describes order direction.
type OrderSide uint16

const (
	OrderSideUnknown OrderSide = iota
	OrderSideBuy
	OrderSideSell
)

// OrderType describes order type.
type OrderType uint16

const (
	OrderTypeUnknown OrderType = iota
	OrderTypeLimit
	OrderTypeMarket
)

// TimeInForce describes order time-in-force.
type TimeInForce uint16

const (
	TimeInForceUnknown TimeInForce = iota
	TimeInForceGTC
	TimeInForceIOC
	TimeInForceFOK
)

// OrderIntent is the payload for EventOrderIntent. OrderID is the
// client-assigned id; LocalSeq is a monotonically increasing local
// sequence number used for tie-breaking when broker acks race.
type OrderIntent struct {
	OrderID     uint64
	AccountID   uint32
	SymbolID    uint32
	Side        OrderSide
	Type        OrderType
	TimeInForce TimeInForce
	Flags       uint16
	Price       Price
	Qty         Quantity
	LocalSeq    uint64
}

// OrderAckStatus describes the outcome of an order acknowledgment.
type OrderAckStatus uint16

const (
	OrderAckStatusUnknown OrderAckStatus = iota
	OrderAckStatusAcked
	OrderAckStatusRejected
	OrderAckStatusCanceled
	OrderAckStatusExpired
	OrderAckStatusPartFilled
	OrderAckStatusFilled
)

// OrderAckReason describes the reason for an order acknowledgment.
type OrderAckReason uint16

const (
	OrderAckReasonNone OrderAckReason = iota
	OrderAckReasonExchangeReject
	OrderAckReasonRiskReject
	OrderAckReasonRateLimit
	OrderAckReasonInvalidPrice
	OrderAckReasonInvalidQty
	OrderAckReasonNotAllowed
)

// OrderAck is the payload for EventOrderAck.
type OrderAck struct {
	OrderID   uint64
	AccountID uint32
	SymbolID  uint32
	Status    OrderAckStatus
	Reason    OrderAckReason
	Flags     uint16
	Reserved  uint16
	Price     Price
	Qty       Quantity
	LeavesQty Quantity
}

// Fill is the payload for EventFill. FillID is the broker-assigned id;
// fills are idempotent by FillID and duplicate delivery never
// double-applies.
type Fill struct {
	FillID    uint64
	OrderID   uint64
	AccountID uint32
	SymbolID  uint32
	Side      OrderSide
	Flags     uint16
	Price     Price
	Qty       Quantity
	Fee       Fee
}

// PositionSnapshot is the payload for EventPositionSnapshot: the
// per-(account, instrument) signed quantity and average cost derived
// from applied fills.
type PositionSnapshot struct {
	AccountID uint32
	SymbolID  uint32
	Qty       int64
	AvgCost   Price
}

// RiskAction is the outcome of a pre-trade risk decision.
type RiskAction uint16

const (
	RiskActionUnknown RiskAction = iota
	RiskActionAllow
	RiskActionDeny
)

// RiskReason is a coarse reason code for risk decisions.
type RiskReason uint16

const (
	RiskReasonNone RiskReason = iota
	RiskReasonKillSwitch
	RiskReasonMaxQty
	RiskReasonMaxNotional
	RiskReasonRateLimit
	RiskReasonPriceBand
	RiskReasonPositionLimit
)

// RiskDecision is the payload for EventRiskDecision.
type RiskDecision struct {
	OrderID       uint64
	AccountID     uint32
	SymbolID      uint32
	Action        RiskAction
	Reason        RiskReason
	Flags         uint16
	Reserved      uint16
	ProposedQty   Quantity
	ProposedPrice Price
	CurrentPos    Quantity
	MaxPos        Quantity
	MaxNotional   Notional
}
