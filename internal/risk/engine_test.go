package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"main/internal/schema"
)

func limitIntent(qty, price int64) schema.OrderIntent {
	return schema.OrderIntent{
		OrderID: 1, AccountID: 1, SymbolID: 7,
		Side: schema.OrderSideBuy, Type: schema.OrderTypeLimit,
		Price: schema.Price(price), Qty: schema.Quantity(qty),
	}
}

func TestKillSwitch(t *testing.T) {
	e := NewEngine(Config{KillSwitch: true})
	d := e.Evaluate(limitIntent(1_0000, 100_0000), StateView{})
	assert.Equal(t, schema.RiskActionDeny, d.Action)
	assert.Equal(t, schema.RiskReasonKillSwitch, d.Reason)
}

func TestMaxOrderQty(t *testing.T) {
	e := NewEngine(Config{MaxOrderQty: 5_0000})
	d := e.Evaluate(limitIntent(10_0000, 100_0000), StateView{})
	assert.Equal(t, schema.RiskReasonMaxQty, d.Reason)

	d = e.Evaluate(limitIntent(5_0000, 100_0000), StateView{})
	assert.Equal(t, schema.RiskActionAllow, d.Action)
}

func TestMaxNotional(t *testing.T) {
	e := NewEngine(Config{MaxOrderNotional: schema.Notional(500_0000 * 10_000)})
	d := e.Evaluate(limitIntent(10_0000, 100_0000), StateView{})
	assert.Equal(t, schema.RiskReasonMaxNotional, d.Reason)
}

func TestPriceBand(t *testing.T) {
	e := NewEngine(Config{MaxPriceDeviationBps: 100})
	state := StateView{ReferencePrice: 100_0000}

	d := e.Evaluate(limitIntent(1_0000, 102_0000), state)
	assert.Equal(t, schema.RiskReasonPriceBand, d.Reason)

	d = e.Evaluate(limitIntent(1_0000, 100_5000), state)
	assert.Equal(t, schema.RiskActionAllow, d.Action)
}

func TestPositionLimit(t *testing.T) {
	e := NewEngine(Config{MaxPosition: 10_0000})

	d := e.Evaluate(limitIntent(5_0000, 100_0000), StateView{Position: 8_0000})
	assert.Equal(t, schema.RiskReasonPositionLimit, d.Reason)

	// Selling down from a long position passes.
	sell := limitIntent(5_0000, 100_0000)
	sell.Side = schema.OrderSideSell
	d = e.Evaluate(sell, StateView{Position: 8_0000})
	assert.Equal(t, schema.RiskActionAllow, d.Action)
}

func TestOrderRateLimit(t *testing.T) {
	e := NewEngine(Config{OrderRateLimit: 2, OrderRateWindow: time.Second})
	base := time.Now().UnixNano()

	for i := 0; i < 2; i++ {
		d := e.Evaluate(limitIntent(1_0000, 100_0000), StateView{Now: base})
		assert.Equal(t, schema.RiskActionAllow, d.Action)
	}
	d := e.Evaluate(limitIntent(1_0000, 100_0000), StateView{Now: base})
	assert.Equal(t, schema.RiskReasonRateLimit, d.Reason)

	// A fresh window resets the counter.
	d = e.Evaluate(limitIntent(1_0000, 100_0000), StateView{Now: base + int64(2*time.Second)})
	assert.Equal(t, schema.RiskActionAllow, d.Action)
}

func TestNotionalOverflowDenied(t *testing.T) {
	e := NewEngine(Config{})
	d := e.Evaluate(limitIntent(maxInt64/2, 3), StateView{})
	assert.Equal(t, schema.RiskReasonMaxNotional, d.Reason)
}
