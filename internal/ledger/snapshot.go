package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"main/internal/schema"
)

// Snapshot is a consistent point-in-time view of one account:
// positions plus open orders. Consumers receive copies, never
// references into live state.
type Snapshot struct {
	AccountID  uint32          `json:"accountId"`
	Timestamp  int64           `json:"timestamp"`
	LastSeq    uint64          `json:"lastSeq"`
	Positions  []PositionEntry `json:"positions"`
	OpenOrders []OrderEntry    `json:"openOrders"`
}

// PositionEntry is a single instrument position.
type PositionEntry struct {
	SymbolID uint32       `json:"symbolId"`
	Qty      int64        `json:"qty"`
	AvgCost  schema.Price `json:"avgCost"`
}

// OrderEntry is a single open (non-terminal) order.
type OrderEntry struct {
	OrderID   uint64           `json:"orderId"`
	SymbolID  uint32           `json:"symbolId"`
	Side      schema.OrderSide `json:"side"`
	Price     schema.Price     `json:"price"`
	Qty       schema.Quantity  `json:"qty"`
	LeavesQty schema.Quantity  `json:"leavesQty"`
	State     string           `json:"state"`
}

// Snapshot captures positions and open orders under one lock hold.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	positions := make([]PositionEntry, 0, len(l.positions))
	for _, pos := range l.positions {
		if pos.Qty == 0 {
			continue
		}
		positions = append(positions, PositionEntry{
			SymbolID: pos.SymbolID,
			Qty:      pos.Qty,
			AvgCost:  pos.AvgCost,
		})
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].SymbolID < positions[j].SymbolID
	})

	var open []OrderEntry
	for _, o := range l.orders {
		if o.State.Terminal() {
			continue
		}
		open = append(open, OrderEntry{
			OrderID:   o.ID,
			SymbolID:  o.SymbolID,
			Side:      o.Side,
			Price:     o.Price,
			Qty:       o.Qty,
			LeavesQty: o.LeavesQty,
			State:     o.State.String(),
		})
	}
	sort.Slice(open, func(i, j int) bool {
		return open[i].OrderID < open[j].OrderID
	})

	return Snapshot{
		AccountID:  l.account,
		Timestamp:  time.Now().UTC().UnixNano(),
		LastSeq:    l.localSeq,
		Positions:  positions,
		OpenOrders: open,
	}
}

// WriteSnapshot writes a snapshot to disk as JSON.
func WriteSnapshot(path string, snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// RestoreSnapshot replaces the ledger state with the snapshot's view.
// Fill dedup history is not carried by snapshots; replaying the
// journal from the snapshot's sequence restores it.
func (l *Ledger) RestoreSnapshot(snap Snapshot) error {
	if snap.AccountID != 0 && snap.AccountID != l.account {
		return ErrAccountMismatch
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.orders = make(map[uint64]*Order, len(snap.OpenOrders))
	for _, e := range snap.OpenOrders {
		l.orders[e.OrderID] = &Order{
			ID:        e.OrderID,
			SymbolID:  e.SymbolID,
			Side:      e.Side,
			Price:     e.Price,
			Qty:       e.Qty,
			LeavesQty: e.LeavesQty,
			State:     orderStateFromString(e.State),
		}
	}
	l.positions = make(map[uint32]*Position, len(snap.Positions))
	for _, e := range snap.Positions {
		l.positions[e.SymbolID] = &Position{
			SymbolID: e.SymbolID,
			Qty:      e.Qty,
			AvgCost:  e.AvgCost,
		}
	}
	l.applied = make(map[uint64]uint64)
	l.localSeq = snap.LastSeq
	return nil
}

func orderStateFromString(s string) OrderState {
	switch s {
	case "new":
		return OrderStateNew
	case "submitted":
		return OrderStateSubmitted
	case "part_filled":
		return OrderStatePartFilled
	case "filled":
		return OrderStateFilled
	case "rejected":
		return OrderStateRejected
	case "cancelled":
		return OrderStateCancelled
	default:
		return OrderStateUnknown
	}
}

// CompareSnapshots checks that two snapshots describe the same
// positions.
func CompareSnapshots(expected, actual Snapshot) error {
	if len(expected.Positions) != len(actual.Positions) {
		return fmt.Errorf("snapshot length mismatch: expected=%d actual=%d", len(expected.Positions), len(actual.Positions))
	}
	want := make(map[uint32]PositionEntry, len(expected.Positions))
	for _, entry := range expected.Positions {
		want[entry.SymbolID] = entry
	}
	for _, entry := range actual.Positions {
		w, ok := want[entry.SymbolID]
		if !ok {
			return fmt.Errorf("snapshot missing symbol: %d", entry.SymbolID)
		}
		if w.Qty != entry.Qty || w.AvgCost != entry.AvgCost {
			return fmt.Errorf("snapshot position mismatch: symbol=%d expected=%d@%d actual=%d@%d",
				entry.SymbolID, w.Qty, w.AvgCost, entry.Qty, entry.AvgCost)
		}
	}
	return nil
}
