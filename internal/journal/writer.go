// Package journal is the durable log of account events (order intents,
// acks, fills, snapshot markers). The trader replays it on restart to
// rebuild ledger state past the last snapshot. Order events are never
// dropped: Append applies backpressure instead of shedding load.
package journal

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"main/internal/schema"
)

var (
	ErrClosed          = errors.New("journal: writer closed")
	ErrNotStarted      = errors.New("journal: writer not started")
	ErrAlreadyStarted  = errors.New("journal: writer already started")
	ErrPayloadTooLarge = errors.New("journal: payload too large")
)

const maxPayloadLen = uint64(^uint32(0))

type appendRequest struct {
	header  schema.EventHeader
	payload []byte
}

type segment struct {
	file     *os.File
	buf      *bufio.Writer
	size     int64
	openedAt time.Time
}

// Writer appends account events to journal segments from a buffered
// queue drained by a single background goroutine.
type Writer struct {
	cfg Config
	ch  chan appendRequest
	wg  sync.WaitGroup
	err atomic.Value

	started atomic.Bool

	// mu orders Append against Close: appends hold the read side while
	// enqueueing, so the channel can never close mid-send.
	mu     sync.RWMutex
	closed bool
}

// NewWriter creates a journal writer and ensures the directory exists.
func NewWriter(cfg Config) (*Writer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	return &Writer{
		cfg: cfg,
		ch:  make(chan appendRequest, cfg.QueueSize),
	}, nil
}

// Start runs the writer loop in a new goroutine.
func (w *Writer) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
	return nil
}

// Close stops the writer and flushes buffered data. Appends already
// accepted are written out before Close returns.
func (w *Writer) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.ch)
	}
	w.mu.Unlock()
	w.wg.Wait()
	return w.Err()
}

// Err returns the first error observed by the writer, if any.
func (w *Writer) Err() error {
	if v := w.err.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// Append enqueues an event, blocking while the queue is full. The
// payload is copied before Append returns.
func (w *Writer) Append(ctx context.Context, header schema.EventHeader, payload []byte) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrClosed
	}
	if !w.started.Load() {
		return ErrNotStarted
	}
	if err := w.Err(); err != nil {
		return err
	}
	if uint64(len(payload)) > maxPayloadLen {
		return ErrPayloadTooLarge
	}
	if header.Version == 0 {
		header.Version = schema.SchemaVersion
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)

	select {
	case w.ch <- appendRequest{header: header, payload: cp}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) run(ctx context.Context) {
	var (
		seg         *segment
		segID       uint64
		headerBuf   = make([]byte, recordHeaderSize)
		checksumBuf [4]byte
		flushC      <-chan time.Time
		syncC       <-chan time.Time
	)

	if w.cfg.FlushInterval > 0 {
		t := time.NewTicker(w.cfg.FlushInterval)
		defer t.Stop()
		flushC = t.C
	}
	if w.cfg.SyncInterval > 0 {
		t := time.NewTicker(w.cfg.SyncInterval)
		defer t.Stop()
		syncC = t.C
	}

	defer func() {
		if err := w.closeSegment(seg); err != nil && w.Err() == nil {
			w.setErr(err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.drain(&seg, &segID, headerBuf, &checksumBuf)
			return
		case req, ok := <-w.ch:
			if !ok {
				return
			}
			if err := w.writeRecord(&seg, &segID, headerBuf, &checksumBuf, req); err != nil {
				w.setErr(err)
				return
			}
		case <-flushC:
			if err := w.flushSegment(seg); err != nil {
				w.setErr(err)
				return
			}
		case <-syncC:
			if err := w.syncSegment(seg); err != nil {
				w.setErr(err)
				return
			}
		}
	}
}

// drain writes whatever is already queued before shutting down.
func (w *Writer) drain(seg **segment, segID *uint64, headerBuf []byte, checksumBuf *[4]byte) {
	for {
		select {
		case req, ok := <-w.ch:
			if !ok {
				return
			}
			if err := w.writeRecord(seg, segID, headerBuf, checksumBuf, req); err != nil {
				w.setErr(err)
				return
			}
		default:
			return
		}
	}
}

func (w *Writer) writeRecord(seg **segment, segID *uint64, headerBuf []byte, checksumBuf *[4]byte, req appendRequest) error {
	recordSize := int64(recordHeaderSize + len(req.payload) + recordChecksumSize)
	if *seg == nil || (*seg).size+recordSize > w.cfg.SegmentMaxBytes {
		if err := w.closeSegment(*seg); err != nil {
			return err
		}
		opened, err := w.openSegment(segID)
		if err != nil {
			return err
		}
		*seg = opened
	}

	encodeHeader(headerBuf, req.header, len(req.payload))
	binary.LittleEndian.PutUint32(checksumBuf[:], checksum(headerBuf, req.payload))

	s := *seg
	if _, err := s.buf.Write(headerBuf); err != nil {
		return err
	}
	if len(req.payload) > 0 {
		if _, err := s.buf.Write(req.payload); err != nil {
			return err
		}
	}
	if _, err := s.buf.Write(checksumBuf[:]); err != nil {
		return err
	}
	s.size += recordSize
	return nil
}

func (w *Writer) flushSegment(seg *segment) error {
	if seg == nil {
		return nil
	}
	return seg.buf.Flush()
}

func (w *Writer) syncSegment(seg *segment) error {
	if seg == nil {
		return nil
	}
	if err := seg.buf.Flush(); err != nil {
		return err
	}
	return seg.file.Sync()
}

func (w *Writer) closeSegment(seg *segment) error {
	if seg == nil {
		return nil
	}
	if err := seg.buf.Flush(); err != nil {
		_ = seg.file.Close()
		return err
	}
	if err := seg.file.Sync(); err != nil {
		_ = seg.file.Close()
		return err
	}
	return seg.file.Close()
}

func (w *Writer) openSegment(segID *uint64) (*segment, error) {
	now := time.Now().UTC()
	ts := now.Format("20060102-150405")
	for {
		*segID = *segID + 1
		name := fmt.Sprintf("%s-%s-%06d%s", w.cfg.FilePrefix, ts, *segID, fileExt)
		path := filepath.Join(w.cfg.Dir, name)
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if err != nil {
			if errors.Is(err, os.ErrExist) {
				continue
			}
			return nil, err
		}
		return &segment{
			file:     file,
			buf:      bufio.NewWriterSize(file, w.cfg.BufferSize),
			openedAt: now,
		}, nil
	}
}

func (w *Writer) setErr(err error) {
	if err == nil || w.err.Load() != nil {
		return
	}
	w.err.Store(err)
}
