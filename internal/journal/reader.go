package journal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"

	"main/internal/schema"
)

var ErrChecksumMismatch = errors.New("journal: checksum mismatch")

// ReaderOptions controls record decoding.
type ReaderOptions struct {
	// TolerateTornTail turns a truncated or checksum-failing record
	// into a clean EOF. Used during recovery, where an interrupted
	// final append is expected and must not read as corruption.
	TolerateTornTail bool
	MaxPayloadSize   int
}

// Reader decodes journal records sequentially.
type Reader struct {
	r         *bufio.Reader
	opts      ReaderOptions
	headerBuf []byte
	payload   []byte
}

// NewReader wraps an io.Reader with journal decoding.
func NewReader(r io.Reader, opts ReaderOptions) *Reader {
	return &Reader{
		r:         bufio.NewReader(r),
		opts:      opts,
		headerBuf: make([]byte, recordHeaderSize),
	}
}

// Next returns the next record header and payload. The payload is
// only valid until the next call.
func (r *Reader) Next() (schema.EventHeader, []byte, error) {
	var header schema.EventHeader

	n, err := io.ReadFull(r.r, r.headerBuf)
	if err != nil {
		if err == io.EOF && n == 0 {
			return header, nil, io.EOF
		}
		return header, nil, r.tailErr(err)
	}

	header, payloadLen, err := decodeRecordHeader(r.headerBuf)
	if err != nil {
		return header, nil, r.tailErr(err)
	}
	if r.opts.MaxPayloadSize > 0 && payloadLen > uint32(r.opts.MaxPayloadSize) {
		return header, nil, r.tailErr(ErrPayloadTooLarge)
	}

	if payloadLen > 0 {
		if cap(r.payload) < int(payloadLen) {
			r.payload = make([]byte, payloadLen)
		}
		r.payload = r.payload[:payloadLen]
		if _, err := io.ReadFull(r.r, r.payload); err != nil {
			return header, nil, r.tailErr(err)
		}
	} else {
		r.payload = r.payload[:0]
	}

	var checksumBuf [recordChecksumSize]byte
	if _, err := io.ReadFull(r.r, checksumBuf[:]); err != nil {
		return header, nil, r.tailErr(err)
	}

	expected := binary.LittleEndian.Uint32(checksumBuf[:])
	if checksum(r.headerBuf, r.payload) != expected {
		return header, nil, r.tailErr(ErrChecksumMismatch)
	}

	return header, r.payload, nil
}

func (r *Reader) tailErr(err error) error {
	if r.opts.TolerateTornTail {
		return io.EOF
	}
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
