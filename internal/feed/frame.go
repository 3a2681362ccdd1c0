package feed

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const frameHeaderSize = 4

// DefaultMaxFrameSize bounds a single feed message.
const DefaultMaxFrameSize = 1 << 20

var ErrFrameTooLarge = errors.New("feed: frame too large")

// WriteFrame writes one length-prefixed frame.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > DefaultMaxFrameSize {
		return ErrFrameTooLarge
	}
	var header [frameHeaderSize]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one length-prefixed frame. The returned slice is
// freshly allocated.
func ReadFrame(r io.Reader, maxSize int) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint32(header[:])
	if int(size) > maxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
