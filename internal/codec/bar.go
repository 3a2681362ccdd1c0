package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

const BarPayloadSize = 64

// EncodeBar serializes a bar into a fixed-size payload.
func EncodeBar(dst []byte, bar schema.Bar) []byte {
	if cap(dst) < BarPayloadSize {
		dst = make([]byte, BarPayloadSize)
	} else {
		dst = dst[:BarPayloadSize]
	}

	binary.LittleEndian.PutUint32(dst[0:4], bar.SymbolID)
	binary.LittleEndian.PutUint16(dst[4:6], uint16(bar.Resolution.Kind))
	binary.LittleEndian.PutUint16(dst[6:8], bar.Flags)
	binary.LittleEndian.PutUint32(dst[8:12], bar.Resolution.Step)
	binary.LittleEndian.PutUint32(dst[12:16], 0)
	binary.LittleEndian.PutUint64(dst[16:24], uint64(bar.OpenTime))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(bar.Open))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(bar.High))
	binary.LittleEndian.PutUint64(dst[40:48], uint64(bar.Low))
	binary.LittleEndian.PutUint64(dst[48:56], uint64(bar.Close))
	binary.LittleEndian.PutUint64(dst[56:64], uint64(bar.Volume))

	return dst
}

// DecodeBar parses and validates a fixed-size bar payload.
func DecodeBar(src []byte) (schema.Bar, error) {
	if len(src) < BarPayloadSize {
		return schema.Bar{}, ErrMalformed
	}
	bar := schema.Bar{
		SymbolID: binary.LittleEndian.Uint32(src[0:4]),
		Resolution: schema.Resolution{
			Kind: schema.ResolutionKind(binary.LittleEndian.Uint16(src[4:6])),
			Step: binary.LittleEndian.Uint32(src[8:12]),
		},
		Flags:    binary.LittleEndian.Uint16(src[6:8]),
		OpenTime: int64(binary.LittleEndian.Uint64(src[16:24])),
		Open:     schema.Price(int64(binary.LittleEndian.Uint64(src[24:32]))),
		High:     schema.Price(int64(binary.LittleEndian.Uint64(src[32:40]))),
		Low:      schema.Price(int64(binary.LittleEndian.Uint64(src[40:48]))),
		Close:    schema.Price(int64(binary.LittleEndian.Uint64(src[48:56]))),
		Volume:   schema.Quantity(int64(binary.LittleEndian.Uint64(src[56:64]))),
	}
	if bar.SymbolID == 0 || !validResolution(bar.Resolution) {
		return schema.Bar{}, ErrMalformed
	}
	if bar.High < bar.Low {
		return schema.Bar{}, ErrMalformed
	}
	return bar, nil
}
