package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

const OrderAckPayloadSize = 48

// EncodeOrderAck serializes an order acknowledgment into a fixed-size payload.
func EncodeOrderAck(dst []byte, ack schema.OrderAck) []byte {
	if cap(dst) < OrderAckPayloadSize {
		dst = make([]byte, OrderAckPayloadSize)
	} else {
		dst = dst[:OrderAckPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], ack.OrderID)
	binary.LittleEndian.PutUint32(dst[8:12], ack.AccountID)
	binary.LittleEndian.PutUint32(dst[12:16], ack.SymbolID)
	binary.LittleEndian.PutUint16(dst[16:18], uint16(ack.Status))
	binary.LittleEndian.PutUint16(dst[18:20], uint16(ack.Reason))
	binary.LittleEndian.PutUint16(dst[20:22], ack.Flags)
	binary.LittleEndian.PutUint16(dst[22:24], ack.Reserved)
	binary.LittleEndian.PutUint64(dst[24:32], uint64(ack.Price))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(ack.Qty))
	binary.LittleEndian.PutUint64(dst[40:48], uint64(ack.LeavesQty))

	return dst
}

// DecodeOrderAck parses and validates a fixed-size order acknowledgment payload.
func DecodeOrderAck(src []byte) (schema.OrderAck, error) {
	if len(src) < OrderAckPayloadSize {
		return schema.OrderAck{}, ErrMalformed
	}
	ack := schema.OrderAck{
		OrderID:   binary.LittleEndian.Uint64(src[0:8]),
		AccountID: binary.LittleEndian.Uint32(src[8:12]),
		SymbolID:  binary.LittleEndian.Uint32(src[12:16]),
		Status:    schema.OrderAckStatus(binary.LittleEndian.Uint16(src[16:18])),
		Reason:    schema.OrderAckReason(binary.LittleEndian.Uint16(src[18:20])),
		Flags:     binary.LittleEndian.Uint16(src[20:22]),
		Reserved:  binary.LittleEndian.Uint16(src[22:24]),
		Price:     schema.Price(int64(binary.LittleEndian.Uint64(src[24:32]))),
		Qty:       schema.Quantity(int64(binary.LittleEndian.Uint64(src[32:40]))),
		LeavesQty: schema.Quantity(int64(binary.LittleEndian.Uint64(src[40:48]))),
	}
	if ack.OrderID == 0 || !validAckStatus(ack.Status) {
		return schema.OrderAck{}, ErrMalformed
	}
	if ack.Reason > schema.OrderAckReasonNotAllowed {
		return schema.OrderAck{}, ErrMalformed
	}
	return ack, nil
}
