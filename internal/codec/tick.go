package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

const TickPayloadSize = 56

// EncodeTick serializes a tick into a fixed-size payload.
func EncodeTick(dst []byte, tick schema.Tick) []byte {
	if cap(dst) < TickPayloadSize {
		dst = make([]byte, TickPayloadSize)
	} else {
		dst = dst[:TickPayloadSize]
	}

	binary.LittleEndian.PutUint32(dst[0:4], tick.SymbolID)
	binary.LittleEndian.PutUint16(dst[4:6], uint16(tick.Kind))
	binary.LittleEndian.PutUint16(dst[6:8], tick.Flags)
	binary.LittleEndian.PutUint64(dst[8:16], uint64(tick.Price))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(tick.Size))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(tick.BidPrice))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(tick.BidSize))
	binary.LittleEndian.PutUint64(dst[40:48], uint64(tick.AskPrice))
	binary.LittleEndian.PutUint64(dst[48:56], uint64(tick.AskSize))

	return dst
}

// DecodeTick parses and validates a fixed-size tick payload.
func DecodeTick(src []byte) (schema.Tick, error) {
	if len(src) < TickPayloadSize {
		return schema.Tick{}, ErrMalformed
	}
	tick := schema.Tick{
		SymbolID: binary.LittleEndian.Uint32(src[0:4]),
		Kind:     schema.TickKind(binary.LittleEndian.Uint16(src[4:6])),
		Flags:    binary.LittleEndian.Uint16(src[6:8]),
		Price:    schema.Price(int64(binary.LittleEndian.Uint64(src[8:16]))),
		Size:     schema.Quantity(int64(binary.LittleEndian.Uint64(src[16:24]))),
		BidPrice: schema.Price(int64(binary.LittleEndian.Uint64(src[24:32]))),
		BidSize:  schema.Quantity(int64(binary.LittleEndian.Uint64(src[32:40]))),
		AskPrice: schema.Price(int64(binary.LittleEndian.Uint64(src[40:48]))),
		AskSize:  schema.Quantity(int64(binary.LittleEndian.Uint64(src[48:56]))),
	}
	if tick.SymbolID == 0 {
		return schema.Tick{}, ErrMalformed
	}
	switch tick.Kind {
	case schema.TickTrade, schema.TickQuote:
	default:
		return schema.Tick{}, ErrMalformed
	}
	return tick, nil
}
