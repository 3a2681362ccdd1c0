package ledger

import "main/internal/schema"

// OrderState tracks the lifecycle of an order.
type OrderState uint16

const (
	OrderStateUnknown OrderState = iota
	OrderStateNew
	OrderStateSubmitted
	OrderStatePartFilled
	OrderStateFilled
	OrderStateRejected
	OrderStateCancelled
)

func (s OrderState) String() string {
	switch s {
	case OrderStateNew:
		return "new"
	case OrderStateSubmitted:
		return "submitted"
	case OrderStatePartFilled:
		return "part_filled"
	case OrderStateFilled:
		return "filled"
	case OrderStateRejected:
		return "rejected"
	case OrderStateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s OrderState) Terminal() bool {
	switch s {
	case OrderStateFilled, OrderStateRejected, OrderStateCancelled:
		return true
	default:
		return false
	}
}

// Order is the ledger's view of one client order.
type Order struct {
	ID          uint64
	SymbolID    uint32
	Side        schema.OrderSide
	Type        schema.OrderType
	TimeInForce schema.TimeInForce
	Price       schema.Price
	Qty         schema.Quantity
	LeavesQty   schema.Quantity
	// LocalSeq tie-breaks racing broker acks.
	LocalSeq uint64
	State    OrderState
}
