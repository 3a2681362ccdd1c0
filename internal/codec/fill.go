package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

const FillPayloadSize = 56

// EncodeFill serializes a fill into a fixed-size payload.
func EncodeFill(dst []byte, fill schema.Fill) []byte {
	if cap(dst) < FillPayloadSize {
		dst = make([]byte, FillPayloadSize)
	} else {
		dst = dst[:FillPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], fill.FillID)
	binary.LittleEndian.PutUint64(dst[8:16], fill.OrderID)
	binary.LittleEndian.PutUint32(dst[16:20], fill.AccountID)
	binary.LittleEndian.PutUint32(dst[20:24], fill.SymbolID)
	binary.LittleEndian.PutUint16(dst[24:26], uint16(fill.Side))
	binary.LittleEndian.PutUint16(dst[26:28], fill.Flags)
	binary.LittleEndian.PutUint32(dst[28:32], 0)
	binary.LittleEndian.PutUint64(dst[32:40], uint64(fill.Price))
	binary.LittleEndian.PutUint64(dst[40:48], uint64(fill.Qty))
	binary.LittleEndian.PutUint64(dst[48:56], uint64(fill.Fee))

	return dst
}

// DecodeFill parses and validates a fixed-size fill payload.
func DecodeFill(src []byte) (schema.Fill, error) {
	if len(src) < FillPayloadSize {
		return schema.Fill{}, ErrMalformed
	}
	fill := schema.Fill{
		FillID:    binary.LittleEndian.Uint64(src[0:8]),
		OrderID:   binary.LittleEndian.Uint64(src[8:16]),
		AccountID: binary.LittleEndian.Uint32(src[16:20]),
		SymbolID:  binary.LittleEndian.Uint32(src[20:24]),
		Side:      schema.OrderSide(binary.LittleEndian.Uint16(src[24:26])),
		Flags:     binary.LittleEndian.Uint16(src[26:28]),
		Price:     schema.Price(int64(binary.LittleEndian.Uint64(src[32:40]))),
		Qty:       schema.Quantity(int64(binary.LittleEndian.Uint64(src[40:48]))),
		Fee:       schema.Fee(int64(binary.LittleEndian.Uint64(src[48:56]))),
	}
	if fill.FillID == 0 || fill.OrderID == 0 || fill.SymbolID == 0 {
		return schema.Fill{}, ErrMalformed
	}
	// Price feeds position average-cost math, which assumes positive
	// scaled prices.
	if !validSide(fill.Side) || fill.Qty <= 0 || fill.Price <= 0 {
		return schema.Fill{}, ErrMalformed
	}
	return fill, nil
}
