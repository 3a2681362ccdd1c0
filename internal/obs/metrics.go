// Package obs collects lightweight in-process counters and latency
// stats for the hot paths. Everything is atomic; there is no
// registration or export machinery.
package obs

import (
	"sync/atomic"
	"time"

	"main/internal/schema"
)

const (
	maxEventType  = int(schema.EventRiskDecision)
	maxRiskReason = int(schema.RiskReasonPositionLimit)
)

// Metrics collects counters and latency stats.
type Metrics struct {
	eventCounts      [maxEventType + 1]uint64
	riskReasonCounts [maxRiskReason + 1]uint64
	busDrops         uint64
	orphanFills      uint64
	reconnects       uint64
	decodeErrors     uint64

	eventLatency     LatencyStats
	orderFlowLatency LatencyStats
	appendLatency    LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	EventCounts      map[schema.EventType]uint64
	RiskReasonCounts map[schema.RiskReason]uint64
	BusDrops         uint64
	OrphanFills      uint64
	Reconnects       uint64
	DecodeErrors     uint64
	EventLatency     LatencySnapshot
	OrderFlowLatency LatencySnapshot
	AppendLatency    LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveEvent counts one event and tracks feed latency when both
// timestamps are present.
func (m *Metrics) ObserveEvent(header schema.EventHeader) {
	if m == nil {
		return
	}
	idx := int(header.Type)
	if idx >= 0 && idx < len(m.eventCounts) {
		atomic.AddUint64(&m.eventCounts[idx], 1)
	}
	if header.TsEvent > 0 && header.TsRecv > 0 {
		if delta := header.TsRecv - header.TsEvent; delta >= 0 {
			m.eventLatency.Observe(time.Duration(delta))
		}
	}
}

// IncRiskReason counts one denied-order reason.
func (m *Metrics) IncRiskReason(reason schema.RiskReason) {
	if m == nil {
		return
	}
	idx := int(reason)
	if idx >= 0 && idx < len(m.riskReasonCounts) {
		atomic.AddUint64(&m.riskReasonCounts[idx], 1)
	}
}

// AddBusDrops records events evicted by DropOldest subscriptions.
func (m *Metrics) AddBusDrops(n uint64) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.busDrops, n)
}

// IncOrphanFill records a fill surfaced through the orphan drain.
func (m *Metrics) IncOrphanFill() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.orphanFills, 1)
}

// IncReconnect records a channel redial.
func (m *Metrics) IncReconnect() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.reconnects, 1)
}

// IncDecodeError records a malformed inbound frame.
func (m *Metrics) IncDecodeError() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.decodeErrors, 1)
}

// ObserveOrderFlow measures end-to-end order flow latency.
func (m *Metrics) ObserveOrderFlow(d time.Duration) {
	if m == nil {
		return
	}
	m.orderFlowLatency.Observe(d)
}

// ObserveAppend measures series append latency.
func (m *Metrics) ObserveAppend(d time.Duration) {
	if m == nil {
		return
	}
	m.appendLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	eventCounts := make(map[schema.EventType]uint64)
	for i := range m.eventCounts {
		if v := atomic.LoadUint64(&m.eventCounts[i]); v > 0 {
			eventCounts[schema.EventType(i)] = v
		}
	}
	riskCounts := make(map[schema.RiskReason]uint64)
	for i := range m.riskReasonCounts {
		if v := atomic.LoadUint64(&m.riskReasonCounts[i]); v > 0 {
			riskCounts[schema.RiskReason(i)] = v
		}
	}
	return Snapshot{
		EventCounts:      eventCounts,
		RiskReasonCounts: riskCounts,
		BusDrops:         atomic.LoadUint64(&m.busDrops),
		OrphanFills:      atomic.LoadUint64(&m.orphanFills),
		Reconnects:       atomic.LoadUint64(&m.reconnects),
		DecodeErrors:     atomic.LoadUint64(&m.decodeErrors),
		EventLatency:     m.eventLatency.Snapshot(),
		OrderFlowLatency: m.orderFlowLatency.Snapshot(),
		AppendLatency:    m.appendLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(atomic.LoadUint64(&l.min)),
		Max:   time.Duration(atomic.LoadUint64(&l.max)),
		Avg:   time.Duration(atomic.LoadUint64(&l.sum) / count),
	}
}
