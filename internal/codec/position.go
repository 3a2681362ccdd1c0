package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

const PositionSnapshotPayloadSize = 24

// EncodePositionSnapshot serializes a position snapshot into a fixed-size payload.
func EncodePositionSnapshot(dst []byte, pos schema.PositionSnapshot) []byte {
	if cap(dst) < PositionSnapshotPayloadSize {
		dst = make([]byte, PositionSnapshotPayloadSize)
	} else {
		dst = dst[:PositionSnapshotPayloadSize]
	}

	binary.LittleEndian.PutUint32(dst[0:4], pos.AccountID)
	binary.LittleEndian.PutUint32(dst[4:8], pos.SymbolID)
	binary.LittleEndian.PutUint64(dst[8:16], uint64(pos.Qty))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(pos.AvgCost))

	return dst
}

// DecodePositionSnapshot parses and validates a fixed-size position snapshot payload.
func DecodePositionSnapshot(src []byte) (schema.PositionSnapshot, error) {
	if len(src) < PositionSnapshotPayloadSize {
		return schema.PositionSnapshot{}, ErrMalformed
	}
	pos := schema.PositionSnapshot{
		AccountID: binary.LittleEndian.Uint32(src[0:4]),
		SymbolID:  binary.LittleEndian.Uint32(src[4:8]),
		Qty:       int64(binary.LittleEndian.Uint64(src[8:16])),
		AvgCost:   schema.Price(int64(binary.LittleEndian.Uint64(src[16:24]))),
	}
	if pos.SymbolID == 0 {
		return schema.PositionSnapshot{}, ErrMalformed
	}
	return pos, nil
}
