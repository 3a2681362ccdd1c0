package series

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"

	"main/internal/codec"
	"main/internal/schema"
)

const (
	fileVersion    uint16 = 1
	fileHeaderSize        = 32

	recordVersion      uint16 = 1
	recordHeaderSize          = 24
	recordChecksumSize        = 4

	barRecordSize = recordHeaderSize + codec.BarPayloadSize + recordChecksumSize
)

var (
	fileMagic   = [4]byte{'S', 'R', 'S', '1'}
	recordMagic = [4]byte{'R', 'E', 'C', '1'}
	crcTable    = crc32.MakeTable(crc32.Castagnoli)
)

var (
	ErrInvalidMagic      = errors.New("series: invalid magic")
	ErrUnsupportedVer    = errors.New("series: unsupported version")
	ErrHeaderMismatch    = errors.New("series: file header does not match series key")
	ErrChecksumMismatch  = errors.New("series: record checksum mismatch")
	ErrTruncatedRecord   = errors.New("series: truncated record")
	ErrInvalidRecordSize = errors.New("series: invalid record size")
)

// encodeFileHeader writes the self-describing series file header so a
// reader opening the file independently can identify the series and
// recover the last complete record without external metadata.
func encodeFileHeader(dst []byte, key schema.SeriesKey, createdAt int64) {
	_ = dst[fileHeaderSize-1]
	copy(dst[0:4], fileMagic[:])
	binary.LittleEndian.PutUint16(dst[4:6], fileVersion)
	binary.LittleEndian.PutUint16(dst[6:8], uint16(fileHeaderSize))
	binary.LittleEndian.PutUint32(dst[8:12], uint32(key.Symbol))
	binary.LittleEndian.PutUint16(dst[12:14], uint16(key.Resolution.Kind))
	binary.LittleEndian.PutUint16(dst[14:16], 0)
	binary.LittleEndian.PutUint32(dst[16:20], key.Resolution.Step)
	binary.LittleEndian.PutUint32(dst[20:24], 0)
	binary.LittleEndian.PutUint64(dst[24:32], uint64(createdAt))
}

func decodeFileHeader(src []byte, key schema.SeriesKey) error {
	if len(src) < fileHeaderSize {
		return ErrTruncatedRecord
	}
	if !bytes.Equal(src[0:4], fileMagic[:]) {
		return ErrInvalidMagic
	}
	if binary.LittleEndian.Uint16(src[4:6]) != fileVersion {
		return ErrUnsupportedVer
	}
	if binary.LittleEndian.Uint16(src[6:8]) != uint16(fileHeaderSize) {
		return ErrUnsupportedVer
	}
	symbol := binary.LittleEndian.Uint32(src[8:12])
	kind := schema.ResolutionKind(binary.LittleEndian.Uint16(src[12:14]))
	step := binary.LittleEndian.Uint32(src[16:20])
	if schema.SymbolID(symbol) != key.Symbol || kind != key.Resolution.Kind || step != key.Resolution.Step {
		return ErrHeaderMismatch
	}
	return nil
}

// encodeBarRecord writes one framed bar record at dst and returns the
// record length. The frame is magic, type, flags, payload length, open
// time, payload, then a CRC32C trailer over header and payload.
func encodeBarRecord(dst []byte, bar schema.Bar) int {
	_ = dst[barRecordSize-1]
	copy(dst[0:4], recordMagic[:])
	binary.LittleEndian.PutUint16(dst[4:6], uint16(schema.EventBar))
	binary.LittleEndian.PutUint16(dst[6:8], recordVersion)
	binary.LittleEndian.PutUint32(dst[8:12], uint32(codec.BarPayloadSize))
	binary.LittleEndian.PutUint32(dst[12:16], 0)
	binary.LittleEndian.PutUint64(dst[16:24], uint64(bar.OpenTime))

	codec.EncodeBar(dst[recordHeaderSize:recordHeaderSize:recordHeaderSize+codec.BarPayloadSize], bar)

	sum := crc32.Checksum(dst[:recordHeaderSize+codec.BarPayloadSize], crcTable)
	binary.LittleEndian.PutUint32(dst[recordHeaderSize+codec.BarPayloadSize:barRecordSize], sum)
	return barRecordSize
}

// decodeBarRecord parses one framed bar record starting at src. A torn
// or corrupt record is reported as an error; recovery treats the first
// failure as end of log.
func decodeBarRecord(src []byte) (schema.Bar, int, error) {
	if len(src) < recordHeaderSize {
		return schema.Bar{}, 0, ErrTruncatedRecord
	}
	if !bytes.Equal(src[0:4], recordMagic[:]) {
		return schema.Bar{}, 0, ErrInvalidMagic
	}
	if schema.EventType(binary.LittleEndian.Uint16(src[4:6])) != schema.EventBar {
		return schema.Bar{}, 0, ErrInvalidRecordSize
	}
	if binary.LittleEndian.Uint16(src[6:8]) != recordVersion {
		return schema.Bar{}, 0, ErrUnsupportedVer
	}
	payloadLen := int(binary.LittleEndian.Uint32(src[8:12]))
	if payloadLen != codec.BarPayloadSize {
		return schema.Bar{}, 0, ErrInvalidRecordSize
	}
	total := recordHeaderSize + payloadLen + recordChecksumSize
	if len(src) < total {
		return schema.Bar{}, 0, ErrTruncatedRecord
	}
	expected := binary.LittleEndian.Uint32(src[recordHeaderSize+payloadLen : total])
	if crc32.Checksum(src[:recordHeaderSize+payloadLen], crcTable) != expected {
		return schema.Bar{}, 0, ErrChecksumMismatch
	}
	bar, err := codec.DecodeBar(src[recordHeaderSize : recordHeaderSize+payloadLen])
	if err != nil {
		return schema.Bar{}, 0, err
	}
	return bar, total, nil
}
