// Package codec implements fixed-layout binary codecs for wire
// payloads. Encoding is deterministic; decoding validates structure
// (length and enum range) before any value is trusted, since payloads
// arrive from untrusted network peers. Decoders read straight from the
// caller's slice and never allocate.
package codec

import (
	"errors"

	"main/internal/schema"
)

// ErrMalformed is returned for any structurally invalid payload. The
// offending frame is dropped by callers; it never crashes the process.
var ErrMalformed = errors.New("codec: malformed payload")

func validSide(side schema.OrderSide) bool {
	switch side {
	case schema.OrderSideBuy, schema.OrderSideSell:
		return true
	default:
		return false
	}
}

func validOrderType(t schema.OrderType) bool {
	switch t {
	case schema.OrderTypeLimit, schema.OrderTypeMarket:
		return true
	default:
		return false
	}
}

func validTimeInForce(tif schema.TimeInForce) bool {
	switch tif {
	case schema.TimeInForceUnknown, schema.TimeInForceGTC, schema.TimeInForceIOC, schema.TimeInForceFOK:
		return true
	default:
		return false
	}
}

func validAckStatus(s schema.OrderAckStatus) bool {
	return s >= schema.OrderAckStatusAcked && s <= schema.OrderAckStatusFilled
}

func validResolution(r schema.Resolution) bool {
	return r.Valid()
}

// PayloadSize returns the fixed payload size for an event type, or 0
// when the type is unknown.
func PayloadSize(t schema.EventType) int {
	switch t {
	case schema.EventTick:
		return TickPayloadSize
	case schema.EventBar:
		return BarPayloadSize
	case schema.EventOrderIntent:
		return OrderIntentPayloadSize
	case schema.EventOrderAck:
		return OrderAckPayloadSize
	case schema.EventFill:
		return FillPayloadSize
	case schema.EventPositionSnapshot:
		return PositionSnapshotPayloadSize
	case schema.EventRiskDecision:
		return RiskDecisionPayloadSize
	default:
		return 0
	}
}
