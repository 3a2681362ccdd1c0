package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/codec"
	"main/internal/journal"
	"main/internal/ledger"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/risk"
	"main/internal/schema"
)

func main() {
	configPath := flag.String("config", "config.json", "path to JSON config")
	recoverState := flag.Bool("recover", false, "rebuild ledger from snapshot + journal before trading")
	orderCount := flag.Int("orders", 1, "number of simulated orders to run")
	orderInterval := flag.Duration("order-interval", 0, "delay between simulated orders")
	qtyText := flag.String("qty", "1", "order quantity (decimal)")
	priceText := flag.String("price", "100", "limit price (decimal)")
	sideText := flag.String("side", "buy", "order side: buy or sell")
	flag.Parse()

	if err := run(*configPath, *recoverState, *orderCount, *orderInterval, *qtyText, *priceText, *sideText); err != nil {
		logs.Errorf("trader: %v", err)
		os.Exit(1)
	}
}

func run(configPath string, recoverState bool, orderCount int, orderInterval time.Duration, qtyText, priceText, sideText string) error {
	if orderCount <= 0 {
		return fmt.Errorf("orders must be > 0")
	}
	side, err := parseSide(sideText)
	if err != nil {
		return err
	}

	loaded, err := ops.Load(configPath)
	if err != nil {
		return err
	}
	inst, ok := loaded.Registry.InstrumentAt(0)
	if !ok {
		return fmt.Errorf("registry has no instruments")
	}
	qty, err := schema.ParseScaled(qtyText, int(inst.Scale.QuantityScale))
	if err != nil {
		return fmt.Errorf("invalid qty: %w", err)
	}
	price, err := schema.ParseScaled(priceText, int(inst.Scale.PriceScale))
	if err != nil {
		return fmt.Errorf("invalid price: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	led := ledger.New(loaded.Account, ledger.Config{})
	var seq atomic.Uint64
	var nextOrderID uint64 = 1

	if recoverState {
		result, err := journal.RecoverLedger(ctx, led, loaded.Journal.Dir, loaded.Snapshot)
		if err != nil {
			return err
		}
		seq.Store(result.LastSeq)
		logs.Infof("recovered: snapshot=%v replayed=%d skipped=%d orphans=%d last_seq=%d",
			result.SnapshotLoaded, result.Replayed, result.Skipped, result.OrphanFills, result.LastSeq)
	}

	writer, err := journal.NewWriter(loaded.Journal)
	if err != nil {
		return err
	}
	if err := writer.Start(ctx); err != nil {
		return err
	}

	b := bus.New()
	metrics := obs.NewMetrics()
	accountTopic := bus.AccountTopic(schema.AccountID(loaded.Account))

	// Account events must never be dropped; the journaling subscriber
	// applies backpressure instead.
	sub, err := b.Subscribe(accountTopic, loaded.Bus.AccountQueueSize, bus.OverflowBlock)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	journalErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			event, err := sub.Next(ctx)
			if err != nil {
				return
			}
			metrics.ObserveEvent(event.Header)
			if err := writer.Append(ctx, event.Header, event.Payload); err != nil {
				select {
				case journalErr <- err:
				default:
				}
				return
			}
		}
	}()

	record := func(eventType schema.EventType, payload []byte, tsEvent int64) error {
		header := schema.NewHeader(eventType, 0, seq.Add(1), tsEvent, time.Now().UnixNano())
		return b.Publish(ctx, bus.Event{Topic: accountTopic, Header: header, Payload: payload})
	}

	engine := risk.NewEngine(loaded.Risk)
	for i := 0; i < orderCount; i++ {
		start := time.Now()
		intent := schema.OrderIntent{
			OrderID:     nextOrderID,
			AccountID:   loaded.Account,
			SymbolID:    uint32(inst.ID),
			Side:        side,
			Type:        schema.OrderTypeLimit,
			TimeInForce: schema.TimeInForceGTC,
			Price:       schema.Price(price),
			Qty:         schema.Quantity(qty),
		}
		nextOrderID++

		var posQty schema.Quantity
		if pos, ok := led.Position(intent.SymbolID); ok {
			posQty = schema.Quantity(pos.Qty)
		}
		decision := engine.Evaluate(intent, risk.StateView{
			Position:       posQty,
			ReferencePrice: intent.Price,
			Now:            start.UnixNano(),
		})
		metrics.IncRiskReason(decision.Reason)
		if err := record(schema.EventRiskDecision, codec.EncodeRiskDecision(nil, decision), start.UnixNano()); err != nil {
			return err
		}
		if decision.Action != schema.RiskActionAllow {
			logs.Infof("order %d denied: reason=%d", intent.OrderID, decision.Reason)
			continue
		}

		if _, err := led.Submit(intent); err != nil {
			return err
		}
		if err := record(schema.EventOrderIntent, codec.EncodeOrderIntent(nil, intent), start.UnixNano()); err != nil {
			return err
		}

		// Simulated broker: immediate ack and full fill.
		ack := schema.OrderAck{
			OrderID:   intent.OrderID,
			AccountID: intent.AccountID,
			SymbolID:  intent.SymbolID,
			Status:    schema.OrderAckStatusAcked,
			Price:     intent.Price,
			Qty:       intent.Qty,
			LeavesQty: intent.Qty,
		}
		if _, err := led.ApplyAck(ack); err != nil {
			return err
		}
		if err := record(schema.EventOrderAck, codec.EncodeOrderAck(nil, ack), time.Now().UnixNano()); err != nil {
			return err
		}

		fill := schema.Fill{
			FillID:    intent.OrderID,
			OrderID:   intent.OrderID,
			AccountID: intent.AccountID,
			SymbolID:  intent.SymbolID,
			Side:      intent.Side,
			Price:     intent.Price,
			Qty:       intent.Qty,
		}
		if _, err := led.ApplyFill(fill); err != nil {
			return err
		}
		if err := record(schema.EventFill, codec.EncodeFill(nil, fill), time.Now().UnixNano()); err != nil {
			return err
		}
		metrics.ObserveOrderFlow(time.Since(start))

		for range led.OrphanFills() {
			metrics.IncOrphanFill()
		}

		if orderInterval > 0 && i < orderCount-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(orderInterval):
			}
		}
	}

	b.Close()
	wg.Wait()
	if err := writer.Close(); err != nil {
		return err
	}
	select {
	case err := <-journalErr:
		return err
	default:
	}

	if loaded.Snapshot != "" {
		snap := led.Snapshot()
		snap.LastSeq = seq.Load()
		if err := ledger.WriteSnapshot(loaded.Snapshot, snap); err != nil {
			return err
		}
		logs.Infof("snapshot written: %s positions=%d open_orders=%d last_seq=%d",
			loaded.Snapshot, len(snap.Positions), len(snap.OpenOrders), snap.LastSeq)
	}

	ms := metrics.Snapshot()
	logs.Infof("events=%v risk_reasons=%v orphan_fills=%d order_flow=%+v",
		ms.EventCounts, ms.RiskReasonCounts, ms.OrphanFills, ms.OrderFlowLatency)
	return nil
}

func parseSide(s string) (schema.OrderSide, error) {
	switch s {
	case "buy":
		return schema.OrderSideBuy, nil
	case "sell":
		return schema.OrderSideSell, nil
	default:
		return schema.OrderSideUnknown, errors.New("side must be buy or sell")
	}
}
