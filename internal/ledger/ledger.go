// Package ledger reconciles locally issued orders against the
// asynchronous ack/fill stream coming back from a broker. It tolerates
// reordering and duplication: fills are idempotent by broker fill id,
// fills racing ahead of their order are parked rather than lost, and
// positions are derived exclusively from the applied fill sequence.
package ledger

import (
	"errors"
	"sync"
	"time"

	"main/internal/schema"
)

var (
	// ErrDuplicateOrder is returned when submitting an order id twice.
	ErrDuplicateOrder = errors.New("ledger: order already exists")
	// ErrUnknownOrder is returned for operations on an unknown order id.
	ErrUnknownOrder = errors.New("ledger: order not found")
	// ErrInvalidFill rejects fills with a zero id or non-positive quantity.
	ErrInvalidFill = errors.New("ledger: invalid fill")
	// ErrOrphanFill reports a fill parked because its order is unknown.
	ErrOrphanFill = errors.New("ledger: fill references unknown order")
	// ErrTerminalOrder reports an event against an already-settled order.
	ErrTerminalOrder = errors.New("ledger: order in terminal state")
	// ErrAccountMismatch rejects events addressed to another account.
	ErrAccountMismatch = errors.New("ledger: account mismatch")
)

const (
	defaultOrphanLimit = 1024
	defaultOrphanTTL   = 30 * time.Second
)

// Config bounds the orphan-fill buffer.
type Config struct {
	// OrphanLimit caps parked fills; the oldest are evicted past it.
	OrphanLimit int
	// OrphanTTL ages parked fills out into the diagnostic drain.
	OrphanTTL time.Duration
}

// Ledger is the authoritative order/fill/position state for one
// account. All methods are safe for concurrent use.
type Ledger struct {
	account uint32

	mu        sync.Mutex
	orders    map[uint64]*Order
	positions map[uint32]*Position
	applied   map[uint64]uint64 // fill id -> order id
	orphans   *orphanBuffer
	dead      []schema.Fill // evicted or expired orphans awaiting drain
	localSeq  uint64
	recvSeq   uint64
}

// New creates an empty ledger for one account.
func New(account uint32, cfg Config) *Ledger {
	if cfg.OrphanLimit <= 0 {
		cfg.OrphanLimit = defaultOrphanLimit
	}
	if cfg.OrphanTTL <= 0 {
		cfg.OrphanTTL = defaultOrphanTTL
	}
	return &Ledger{
		account:   account,
		orders:    make(map[uint64]*Order),
		positions: make(map[uint32]*Position),
		applied:   make(map[uint64]uint64),
		orphans:   newOrphanBuffer(cfg.OrphanLimit, cfg.OrphanTTL),
	}
}

// Account returns the account this ledger reconciles.
func (l *Ledger) Account() uint32 {
	return l.account
}

// Submit registers a new order and returns its id. Fills that raced
// ahead of the submission are applied immediately.
func (l *Ledger) Submit(intent schema.OrderIntent) (uint64, error) {
	if intent.OrderID == 0 {
		return 0, ErrUnknownOrder
	}
	if intent.AccountID != 0 && intent.AccountID != l.account {
		return 0, ErrAccountMismatch
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.orders[intent.OrderID]; ok {
		return 0, ErrDuplicateOrder
	}

	l.localSeq++
	seq := intent.LocalSeq
	if seq == 0 {
		seq = l.localSeq
	}
	o := &Order{
		ID:          intent.OrderID,
		SymbolID:    intent.SymbolID,
		Side:        intent.Side,
		Type:        intent.Type,
		TimeInForce: intent.TimeInForce,
		Price:       intent.Price,
		Qty:         intent.Qty,
		LeavesQty:   intent.Qty,
		LocalSeq:    seq,
		State:       OrderStateSubmitted,
	}
	l.orders[o.ID] = o

	for _, parked := range l.orphans.take(o.ID) {
		l.applyFillLocked(o, parked.fill)
	}
	return o.ID, nil
}

// ApplyAck folds a broker acknowledgment into the order. Acks for
// settled orders are absorbed as no-ops.
func (l *Ledger) ApplyAck(ack schema.OrderAck) (Order, error) {
	if ack.AccountID != 0 && ack.AccountID != l.account {
		return Order{}, ErrAccountMismatch
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.orders[ack.OrderID]
	if !ok {
		return Order{}, ErrUnknownOrder
	}
	if o.State.Terminal() {
		return *o, nil
	}

	if ack.Qty != 0 {
		o.Qty = ack.Qty
	}
	if ack.LeavesQty != 0 {
		o.LeavesQty = ack.LeavesQty
	}

	switch ack.Status {
	case schema.OrderAckStatusAcked:
		o.State = OrderStateSubmitted
	case schema.OrderAckStatusRejected:
		o.State = OrderStateRejected
	case schema.OrderAckStatusCanceled, schema.OrderAckStatusExpired:
		o.State = OrderStateCancelled
	case schema.OrderAckStatusPartFilled:
		o.State = OrderStatePartFilled
	case schema.OrderAckStatusFilled:
		o.State = OrderStateFilled
		o.LeavesQty = 0
	}
	return *o, nil
}

// ApplyFill folds a broker fill into the order and its position.
// Duplicate delivery of an applied fill id is a no-op. A fill for an
// unknown order is parked and reported via ErrOrphanFill.
func (l *Ledger) ApplyFill(fill schema.Fill) (Order, error) {
	if fill.FillID == 0 || fill.OrderID == 0 || fill.Qty <= 0 || fill.Price <= 0 {
		return Order{}, ErrInvalidFill
	}
	if fill.AccountID != 0 && fill.AccountID != l.account {
		return Order{}, ErrAccountMismatch
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.expireOrphansLocked(time.Now())

	if orderID, dup := l.applied[fill.FillID]; dup {
		if o, ok := l.orders[orderID]; ok {
			return *o, nil
		}
		return Order{}, nil
	}

	o, ok := l.orders[fill.OrderID]
	if !ok {
		l.recvSeq++
		evicted := l.orphans.add(orphanFill{fill: fill, recvSeq: l.recvSeq, at: time.Now()})
		l.dead = append(l.dead, evicted...)
		return Order{}, ErrOrphanFill
	}
	if o.State.Terminal() {
		return *o, ErrTerminalOrder
	}

	l.applyFillLocked(o, fill)
	return *o, nil
}

func (l *Ledger) applyFillLocked(o *Order, fill schema.Fill) {
	if _, dup := l.applied[fill.FillID]; dup {
		return
	}
	if o.State.Terminal() {
		l.dead = append(l.dead, fill)
		return
	}
	l.applied[fill.FillID] = o.ID

	leaves := int64(o.LeavesQty) - int64(fill.Qty)
	if leaves <= 0 {
		o.LeavesQty = 0
		o.State = OrderStateFilled
	} else {
		o.LeavesQty = schema.Quantity(leaves)
		o.State = OrderStatePartFilled
	}

	pos, ok := l.positions[fill.SymbolID]
	if !ok {
		pos = &Position{SymbolID: fill.SymbolID}
		l.positions[fill.SymbolID] = pos
	}
	pos.applyFill(fill)
}

// Cancel requests cancellation. On an order already in a terminal
// state it is a no-op returning the current state.
func (l *Ledger) Cancel(orderID uint64) (OrderState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.orders[orderID]
	if !ok {
		return OrderStateUnknown, ErrUnknownOrder
	}
	if o.State.Terminal() {
		return o.State, nil
	}
	o.State = OrderStateCancelled
	return o.State, nil
}

// Order returns a copy of the current order state.
func (l *Ledger) Order(orderID uint64) (Order, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.orders[orderID]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// Position returns a copy of the current position for a symbol.
func (l *Ledger) Position(symbolID uint32) (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[symbolID]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// OrphanFills drains fills that aged out of or were evicted from the
// orphan buffer, for diagnostic reporting.
func (l *Ledger) OrphanFills() []schema.Fill {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.expireOrphansLocked(time.Now())
	out := l.dead
	l.dead = nil
	return out
}

// PendingOrphans reports how many fills are currently parked.
func (l *Ledger) PendingOrphans() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.orphans.len()
}

func (l *Ledger) expireOrphansLocked(now time.Time) {
	l.dead = append(l.dead, l.orphans.expire(now)...)
}
