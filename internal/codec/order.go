package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

const OrderIntentPayloadSize = 48

// EncodeOrderIntent serializes an order intent into a fixed-size payload.
func EncodeOrderIntent(dst []byte, intent schema.OrderIntent) []byte {
	if cap(dst) < OrderIntentPayloadSize {
		dst = make([]byte, OrderIntentPayloadSize)
	} else {
		dst = dst[:OrderIntentPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], intent.OrderID)
	binary.LittleEndian.PutUint32(dst[8:12], intent.AccountID)
	binary.LittleEndian.PutUint32(dst[12:16], intent.SymbolID)
	binary.LittleEndian.PutUint16(dst[16:18], uint16(intent.Side))
	binary.LittleEndian.PutUint16(dst[18:20], uint16(intent.Type))
	binary.LittleEndian.PutUint16(dst[20:22], uint16(intent.TimeInForce))
	binary.LittleEndian.PutUint16(dst[22:24], intent.Flags)
	binary.LittleEndian.PutUint64(dst[24:32], uint64(intent.Price))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(intent.Qty))
	binary.LittleEndian.PutUint64(dst[40:48], intent.LocalSeq)

	return dst
}

// DecodeOrderIntent parses and validates a fixed-size order intent payload.
func DecodeOrderIntent(src []byte) (schema.OrderIntent, error) {
	if len(src) < OrderIntentPayloadSize {
		return schema.OrderIntent{}, ErrMalformed
	}
	intent := schema.OrderIntent{
		OrderID:     binary.LittleEndian.Uint64(src[0:8]),
		AccountID:   binary.LittleEndian.Uint32(src[8:12]),
		SymbolID:    binary.LittleEndian.Uint32(src[12:16]),
		Side:        schema.OrderSide(binary.LittleEndian.Uint16(src[16:18])),
		Type:        schema.OrderType(binary.LittleEndian.Uint16(src[18:20])),
		TimeInForce: schema.TimeInForce(binary.LittleEndian.Uint16(src[20:22])),
		Flags:       binary.LittleEndian.Uint16(src[22:24]),
		Price:       schema.Price(int64(binary.LittleEndian.Uint64(src[24:32]))),
		Qty:         schema.Quantity(int64(binary.LittleEndian.Uint64(src[32:40]))),
		LocalSeq:    binary.LittleEndian.Uint64(src[40:48]),
	}
	if intent.OrderID == 0 || intent.SymbolID == 0 {
		return schema.OrderIntent{}, ErrMalformed
	}
	if !validSide(intent.Side) || !validOrderType(intent.Type) || !validTimeInForce(intent.TimeInForce) {
		return schema.OrderIntent{}, ErrMalformed
	}
	if intent.Qty <= 0 {
		return schema.OrderIntent{}, ErrMalformed
	}
	return intent, nil
}
