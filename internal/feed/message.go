// Package feed speaks the upstream market-data protocol: JSON messages
// framed with a 4-byte little-endian length prefix over a Unix domain
// socket. Decoded messages become scaled-integer ticks keyed by the
// instrument registry.
package feed

import (
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/decimal"

	"main/internal/schema"
	"main/pkg/scanner"
)

var (
	ErrInvalidMessage = errors.New("feed: invalid message")
	ErrUnknownSymbol  = errors.New("feed: unknown symbol")
)

// Message types on the wire.
const (
	TypeTrade       = "trade"
	TypeQuote       = "quote"
	TypeHeartbeat   = "heartbeat"
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
)

var keyType = []byte(`"type"`)

// TickMessage is a trade or quote update. Prices and sizes travel as
// decimal text and are scaled per instrument on decode.
type TickMessage struct {
	Type    string          `json:"type"`
	Symbol  string          `json:"symbol"`
	Seq     uint64          `json:"seq"`
	Ts      int64           `json:"ts"`
	Price   decimal.Decimal `json:"price,omitempty"`
	Size    decimal.Decimal `json:"size,omitempty"`
	Bid     decimal.Decimal `json:"bid,omitempty"`
	BidSize decimal.Decimal `json:"bidSize,omitempty"`
	Ask     decimal.Decimal `json:"ask,omitempty"`
	AskSize decimal.Decimal `json:"askSize,omitempty"`
}

// HeartbeatMessage keeps the connection alive when the market is quiet.
type HeartbeatMessage struct {
	Type string `json:"type"`
	Ts   int64  `json:"ts"`
}

// ControlMessage subscribes or unsubscribes a topic.
type ControlMessage struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
}

// IsHeartbeat reports whether a raw frame is a heartbeat without
// decoding it.
func IsHeartbeat(frame []byte) bool {
	value, ok := scanner.StringField(frame, keyType)
	if !ok {
		return false
	}
	return string(value) == TypeHeartbeat
}

// Heartbeat encodes a heartbeat frame.
func Heartbeat(now time.Time) ([]byte, error) {
	return sonic.ConfigFastest.Marshal(HeartbeatMessage{Type: TypeHeartbeat, Ts: now.UnixNano()})
}

// Encoder produces subscribe and unsubscribe control frames.
type Encoder struct{}

func (Encoder) EncodeSubscribe(topic string) ([]byte, error) {
	return sonic.ConfigFastest.Marshal(ControlMessage{Type: TypeSubscribe, Topic: topic})
}

func (Encoder) EncodeUnsubscribe(topic string) ([]byte, error) {
	return sonic.ConfigFastest.Marshal(ControlMessage{Type: TypeUnsubscribe, Topic: topic})
}

// Decoder converts wire messages into registry-scaled ticks.
type Decoder struct {
	registry *schema.Registry
}

func NewDecoder(registry *schema.Registry) *Decoder {
	return &Decoder{registry: registry}
}

// DecodeTick parses a trade or quote frame. The symbol must resolve in
// the registry; prices and sizes are scaled with the instrument's
// scale spec.
func (d *Decoder) DecodeTick(frame []byte, recv time.Time) (schema.Tick, schema.EventHeader, error) {
	var msg TickMessage
	if err := sonic.ConfigFastest.Unmarshal(frame, &msg); err != nil {
		return schema.Tick{}, schema.EventHeader{}, err
	}
	if msg.Type != TypeTrade && msg.Type != TypeQuote {
		return schema.Tick{}, schema.EventHeader{}, ErrInvalidMessage
	}
	id, ok := d.registry.InstrumentIDByName(msg.Symbol)
	if !ok {
		return schema.Tick{}, schema.EventHeader{}, ErrUnknownSymbol
	}
	inst, ok := d.registry.Instrument(id)
	if !ok {
		return schema.Tick{}, schema.EventHeader{}, ErrUnknownSymbol
	}

	tick := schema.Tick{SymbolID: uint32(id)}
	priceScale := int(inst.Scale.PriceScale)
	qtyScale := int(inst.Scale.QuantityScale)

	switch msg.Type {
	case TypeTrade:
		tick.Kind = schema.TickTrade
		price, err := parseScaledDecimal(msg.Price, priceScale)
		if err != nil {
			return schema.Tick{}, schema.EventHeader{}, err
		}
		size, err := parseScaledDecimal(msg.Size, qtyScale)
		if err != nil {
			return schema.Tick{}, schema.EventHeader{}, err
		}
		tick.Price = schema.Price(price)
		tick.Size = schema.Quantity(size)
	case TypeQuote:
		tick.Kind = schema.TickQuote
		bid, err := parseScaledDecimal(msg.Bid, priceScale)
		if err != nil {
			return schema.Tick{}, schema.EventHeader{}, err
		}
		ask, err := parseScaledDecimal(msg.Ask, priceScale)
		if err != nil {
			return schema.Tick{}, schema.EventHeader{}, err
		}
		bidSize, err := parseScaledDecimal(msg.BidSize, qtyScale)
		if err != nil {
			return schema.Tick{}, schema.EventHeader{}, err
		}
		askSize, err := parseScaledDecimal(msg.AskSize, qtyScale)
		if err != nil {
			return schema.Tick{}, schema.EventHeader{}, err
		}
		tick.BidPrice = schema.Price(bid)
		tick.AskPrice = schema.Price(ask)
		tick.BidSize = schema.Quantity(bidSize)
		tick.AskSize = schema.Quantity(askSize)
	}

	header := schema.EventHeader{
		Type:    schema.EventTick,
		Version: 1,
		Seq:     msg.Seq,
		TsEvent: msg.Ts,
		TsRecv:  recv.UnixNano(),
	}
	return tick, header, nil
}

func parseScaledDecimal(d decimal.Decimal, scale int) (int64, error) {
	s := d.String()
	if s == "" {
		return 0, nil
	}
	return schema.ParseScaled(s, scale)
}

// Dec parses decimal text through the same codec the wire uses.
func Dec(s string) (decimal.Decimal, error) {
	var d decimal.Decimal
	if err := sonic.ConfigFastest.Unmarshal([]byte(`"`+s+`"`), &d); err != nil {
		return d, err
	}
	return d, nil
}
