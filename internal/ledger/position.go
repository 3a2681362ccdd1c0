package ledger

import (
	"math/bits"

	"main/internal/schema"
)

// Position is the signed per-instrument exposure derived exclusively
// from applied fills.
type Position struct {
	SymbolID uint32
	Qty      int64
	AvgCost  schema.Price
}

// applyFill folds one fill into the position. Average cost follows
// the weighted-average convention: increasing exposure blends the fill
// price in, reducing it leaves the average untouched, and crossing
// through flat restarts the average at the fill price.
func (p *Position) applyFill(fill schema.Fill) {
	signed := int64(fill.Qty)
	if fill.Side == schema.OrderSideSell {
		signed = -signed
	}
	prev := p.Qty
	next := prev + signed

	switch {
	case prev == 0 || sameSign(prev, signed):
		p.AvgCost = schema.Price(weightedAvg(abs(prev), int64(p.AvgCost), int64(fill.Qty), int64(fill.Price)))
	case next == 0:
		p.AvgCost = 0
	case !sameSign(prev, next):
		// Flipped through flat: the surviving exposure was opened at
		// the fill price.
		p.AvgCost = fill.Price
	}
	p.Qty = next
}

func sameSign(a, b int64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// weightedAvg computes (q1*p1 + q2*p2) / (q1 + q2) with a 128-bit
// intermediate so scaled prices never overflow. All inputs must be
// non-negative and q1+q2 > 0.
func weightedAvg(q1, p1, q2, p2 int64) int64 {
	h1, l1 := bits.Mul64(uint64(q1), uint64(p1))
	h2, l2 := bits.Mul64(uint64(q2), uint64(p2))
	lo, carry := bits.Add64(l1, l2, 0)
	hi := h1 + h2 + carry
	q, _ := bits.Div64(hi, lo, uint64(q1+q2))
	return int64(q)
}
