package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"main/internal/codec"
	"main/internal/journal"
	"main/internal/ledger"
	"main/internal/schema"
)

func main() {
	dir := flag.String("dir", "testdata/journal", "journal directory")
	prefix := flag.String("prefix", "", "journal file prefix (default: journal)")
	speed := flag.Float64("speed", 0, "playback speed (1=real-time, 0=no pacing)")
	useRecv := flag.Bool("use-recv-time", false, "pace by receive timestamps")
	tolerateTorn := flag.Bool("tolerate-torn-tail", true, "treat a torn tail as end of journal")
	maxPayload := flag.Int("max-payload", 0, "max payload size in bytes (0=default)")
	decode := flag.Bool("decode", false, "decode known payload types")
	verifySnapshot := flag.String("verify-snapshot", "", "rebuild the ledger and compare against this snapshot")
	account := flag.Uint("account", 1, "account id for ledger rebuild")
	flag.Parse()

	cfg := journal.PlaybackConfig{
		Dir:              *dir,
		FilePrefix:       *prefix,
		Speed:            *speed,
		UseRecvTime:      *useRecv,
		TolerateTornTail: *tolerateTorn,
		MaxPayloadSize:   *maxPayload,
	}
	pb, err := journal.NewPlayback(cfg)
	if err != nil {
		log.Fatalf("playback init failed: %v", err)
	}

	led := ledger.New(uint32(*account), ledger.Config{})
	rebuild := *verifySnapshot != ""

	ctx := context.Background()
	var index int
	err = pb.Run(ctx, func(header schema.EventHeader, payload []byte) error {
		index++
		fmt.Printf("%06d seq=%d type=%s ts_event=%d ts_recv=%d len=%d\n",
			index, header.Seq, eventTypeName(header.Type), header.TsEvent, header.TsRecv, len(payload))
		if *decode {
			printDecoded(header.Type, payload)
		}
		if rebuild {
			applyLedgerEvent(led, header.Type, payload)
		}
		return nil
	})
	if err != nil {
		log.Fatalf("playback run failed: %v", err)
	}
	fmt.Printf("total=%d\n", index)

	if rebuild {
		expected, err := ledger.ReadSnapshot(*verifySnapshot)
		if err != nil {
			log.Fatalf("read snapshot failed: %v", err)
		}
		if err := ledger.CompareSnapshots(expected, led.Snapshot()); err != nil {
			log.Fatalf("snapshot mismatch: %v", err)
		}
		fmt.Println("snapshot verified")
	}
}

func applyLedgerEvent(led *ledger.Ledger, eventType schema.EventType, payload []byte) {
	switch eventType {
	case schema.EventOrderIntent:
		if intent, err := codec.DecodeOrderIntent(payload); err == nil {
			_, _ = led.Submit(intent)
		}
	case schema.EventOrderAck:
		if ack, err := codec.DecodeOrderAck(payload); err == nil {
			_, _ = led.ApplyAck(ack)
		}
	case schema.EventFill:
		if fill, err := codec.DecodeFill(payload); err == nil {
			_, _ = led.ApplyFill(fill)
		}
	}
}

func eventTypeName(t schema.EventType) string {
	switch t {
	case schema.EventTick:
		return "Tick"
	case schema.EventBar:
		return "Bar"
	case schema.EventOrderIntent:
		return "OrderIntent"
	case schema.EventOrderAck:
		return "OrderAck"
	case schema.EventFill:
		return "Fill"
	case schema.EventPositionSnapshot:
		return "PositionSnapshot"
	case schema.EventRiskDecision:
		return "RiskDecision"
	default:
		return fmt.Sprintf("Unknown(%d)", uint16(t))
	}
}

func printDecoded(t schema.EventType, payload []byte) {
	switch t {
	case schema.EventTick:
		if tick, err := codec.DecodeTick(payload); err == nil {
			fmt.Printf("       tick symbol=%d kind=%d price=%d size=%d\n", tick.SymbolID, tick.Kind, tick.Price, tick.Size)
		}
	case schema.EventBar:
		if bar, err := codec.DecodeBar(payload); err == nil {
			fmt.Printf("       bar symbol=%d res=%s open_time=%d o=%d h=%d l=%d c=%d v=%d\n",
				bar.SymbolID, bar.Resolution, bar.OpenTime, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
		}
	case schema.EventOrderIntent:
		if intent, err := codec.DecodeOrderIntent(payload); err == nil {
			fmt.Printf("       intent order=%d symbol=%d side=%d price=%d qty=%d\n",
				intent.OrderID, intent.SymbolID, intent.Side, intent.Price, intent.Qty)
		}
	case schema.EventOrderAck:
		if ack, err := codec.DecodeOrderAck(payload); err == nil {
			fmt.Printf("       ack order=%d status=%d leaves=%d\n", ack.OrderID, ack.Status, ack.LeavesQty)
		}
	case schema.EventFill:
		if fill, err := codec.DecodeFill(payload); err == nil {
			fmt.Printf("       fill id=%d order=%d price=%d qty=%d\n", fill.FillID, fill.OrderID, fill.Price, fill.Qty)
		}
	case schema.EventRiskDecision:
		if d, err := codec.DecodeRiskDecision(payload); err == nil {
			fmt.Printf("       risk order=%d action=%d reason=%d\n", d.OrderID, d.Action, d.Reason)
		}
	}
}
