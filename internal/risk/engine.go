// Package risk gates order intents with pre-trade checks before they
// reach the broker: kill switch, order rate, per-order size and
// notional caps, a reference-price band for limit orders, and the
// resulting position limit.
package risk

import (
	"time"

	"main/internal/schema"
)

const maxInt64 = int64(^uint64(0) >> 1)

// Config defines static risk limits for one account.
type Config struct {
	Version              uint16          `json:"version"`
	KillSwitch           bool            `json:"killSwitch"`
	MaxOrderQty          schema.Quantity `json:"maxOrderQty"`
	MaxOrderNotional     schema.Notional `json:"maxOrderNotional"`
	MaxPosition          schema.Quantity `json:"maxPosition"`
	OrderRateLimit       int             `json:"orderRateLimit"`
	OrderRateWindow      time.Duration   `json:"orderRateWindow"`
	MaxPriceDeviationBps int64           `json:"maxPriceDeviationBps"`
}

// StateView is the slice of ledger state a decision needs.
type StateView struct {
	Position       schema.Quantity
	ReferencePrice schema.Price
	Now            int64
}

// Engine evaluates risk decisions. Not safe for concurrent use; the
// order path is single-threaded per account.
type Engine struct {
	cfg             Config
	rateWindowStart int64
	rateCount       int
}

// NewEngine creates a risk engine with static limits.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Evaluate applies the pre-trade checks to an order intent.
func (e *Engine) Evaluate(intent schema.OrderIntent, state StateView) schema.RiskDecision {
	decision := schema.RiskDecision{
		OrderID:       intent.OrderID,
		AccountID:     intent.AccountID,
		SymbolID:      intent.SymbolID,
		Action:        schema.RiskActionAllow,
		Reason:        schema.RiskReasonNone,
		Reserved:      e.cfg.Version,
		ProposedQty:   intent.Qty,
		ProposedPrice: intent.Price,
		CurrentPos:    state.Position,
		MaxPos:        e.cfg.MaxPosition,
		MaxNotional:   e.cfg.MaxOrderNotional,
	}

	now := state.Now
	if now == 0 {
		now = time.Now().UTC().UnixNano()
	}

	if e.cfg.KillSwitch {
		return deny(decision, schema.RiskReasonKillSwitch)
	}

	if e.cfg.OrderRateLimit > 0 && e.cfg.OrderRateWindow > 0 {
		window := int64(e.cfg.OrderRateWindow)
		if e.rateWindowStart == 0 || now-e.rateWindowStart >= window {
			e.rateWindowStart = now
			e.rateCount = 0
		}
		e.rateCount++
		if e.rateCount > e.cfg.OrderRateLimit {
			return deny(decision, schema.RiskReasonRateLimit)
		}
	}

	if e.cfg.MaxOrderQty > 0 && intent.Qty > e.cfg.MaxOrderQty {
		return deny(decision, schema.RiskReasonMaxQty)
	}

	if e.cfg.MaxPriceDeviationBps > 0 && intent.Type == schema.OrderTypeLimit && intent.Price > 0 {
		ref := int64(state.ReferencePrice)
		if ref > 0 {
			diff := absInt64(int64(intent.Price) - ref)
			if exceedsDeviation(diff, ref, e.cfg.MaxPriceDeviationBps) {
				return deny(decision, schema.RiskReasonPriceBand)
			}
		}
	}

	notional, overflow := mulNotional(intent.Price, intent.Qty)
	if overflow {
		return deny(decision, schema.RiskReasonMaxNotional)
	}
	if e.cfg.MaxOrderNotional > 0 && notional > e.cfg.MaxOrderNotional {
		return deny(decision, schema.RiskReasonMaxNotional)
	}

	nextPos := applySide(state.Position, intent.Side, intent.Qty)
	if e.cfg.MaxPosition > 0 && absQuantity(nextPos) > e.cfg.MaxPosition {
		return deny(decision, schema.RiskReasonPositionLimit)
	}

	return decision
}

func deny(decision schema.RiskDecision, reason schema.RiskReason) schema.RiskDecision {
	decision.Action = schema.RiskActionDeny
	decision.Reason = reason
	return decision
}

func mulNotional(price schema.Price, qty schema.Quantity) (schema.Notional, bool) {
	p := int64(price)
	q := int64(qty)
	if p == 0 || q == 0 {
		return 0, false
	}
	if p < 0 {
		p = -p
	}
	if q < 0 {
		q = -q
	}
	if p > maxInt64/q {
		return 0, true
	}
	return schema.Notional(int64(price) * int64(qty)), false
}

func applySide(pos schema.Quantity, side schema.OrderSide, qty schema.Quantity) schema.Quantity {
	switch side {
	case schema.OrderSideBuy:
		return schema.Quantity(int64(pos) + int64(qty))
	case schema.OrderSideSell:
		return schema.Quantity(int64(pos) - int64(qty))
	default:
		return pos
	}
}

func absQuantity(q schema.Quantity) schema.Quantity {
	if q < 0 {
		return -q
	}
	return q
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func exceedsDeviation(diff int64, ref int64, bps int64) bool {
	if diff <= 0 || ref <= 0 || bps <= 0 {
		return false
	}
	if diff > maxInt64/10000 {
		return true
	}
	lhs := diff * 10000
	if ref > maxInt64/bps {
		return true
	}
	rhs := ref * bps
	return lhs > rhs
}
