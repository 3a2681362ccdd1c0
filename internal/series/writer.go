package series

import "main/internal/schema"

// Writer is the exclusive append token for one series. At most one
// writer exists per key at a time; release it with Close.
type Writer struct {
	s        *Series
	released bool
}

// AcquireWriter claims the per-key write token.
func (s *Series) AcquireWriter() (*Writer, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrSeriesClosed
	}
	if !s.writerHeld.CompareAndSwap(false, true) {
		return nil, ErrWriterHeld
	}
	return &Writer{s: s}, nil
}

// Close releases the write token. A still-open staged bucket stays
// staged; the next writer for the key continues where this one left
// off.
func (w *Writer) Close() {
	if w == nil || w.released {
		return
	}
	w.released = true
	w.s.writerHeld.Store(false)
}

// Append stores a bar. Open-times must be strictly increasing; the
// only exception is a bar matching the still-open current bucket,
// which is rewritten in place. A bar carrying BarFlagFinal is
// committed immediately and becomes visible to readers; a non-final
// bar is staged as the current bucket and is published once finalized
// (explicitly, or implicitly when a later bucket arrives).
func (w *Writer) Append(bar schema.Bar) error {
	if w == nil || w.released {
		return ErrWriterHeld
	}
	s := w.s
	if bar.SymbolID != uint32(s.key.Symbol) || bar.Resolution != s.key.Resolution {
		return ErrSeriesMismatch
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSeriesClosed
	}

	if s.staged != nil {
		switch {
		case bar.OpenTime == s.staged.OpenTime:
			return s.restageLocked(bar)
		case bar.OpenTime > s.staged.OpenTime:
			if err := s.finalizeStagedLocked(); err != nil {
				return err
			}
		default:
			return ErrOutOfOrderAppend
		}
	}

	if s.hasLast && bar.OpenTime <= s.lastOpen {
		return ErrOutOfOrderAppend
	}
	return s.writeNewLocked(bar)
}

// Current returns the still-open staged bucket, if any.
func (w *Writer) Current() (schema.Bar, bool) {
	if w == nil || w.released {
		return schema.Bar{}, false
	}
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	if w.s.staged == nil {
		return schema.Bar{}, false
	}
	return *w.s.staged, true
}

// Finalize commits the staged bucket, if any, making it visible to
// readers.
func (w *Writer) Finalize() error {
	if w == nil || w.released {
		return ErrWriterHeld
	}
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	if w.s.closed {
		return ErrSeriesClosed
	}
	if w.s.staged == nil {
		return nil
	}
	return w.s.finalizeStagedLocked()
}

func (s *Series) writeNewLocked(bar schema.Bar) error {
	off := s.committed.Load()
	if err := s.ensureCapacity(off, barRecordSize); err != nil {
		return err
	}
	encodeBarRecord(s.data[off:off+barRecordSize], bar)

	if bar.Final() {
		s.lastOpen = bar.OpenTime
		s.hasLast = true
		s.staged = nil
		s.commit(off + barRecordSize)
		return nil
	}
	staged := bar
	s.staged = &staged
	s.stagedOff = off
	return nil
}

// restageLocked rewrites the staged record in place. The staged slot
// sits beyond the committed offset, so readers cannot see the rewrite.
func (s *Series) restageLocked(bar schema.Bar) error {
	encodeBarRecord(s.data[s.stagedOff:s.stagedOff+barRecordSize], bar)
	if bar.Final() {
		s.lastOpen = bar.OpenTime
		s.hasLast = true
		s.staged = nil
		s.commit(s.stagedOff + barRecordSize)
		return nil
	}
	staged := bar
	s.staged = &staged
	return nil
}

func (s *Series) finalizeStagedLocked() error {
	bar := *s.staged
	bar.Flags |= schema.BarFlagFinal
	encodeBarRecord(s.data[s.stagedOff:s.stagedOff+barRecordSize], bar)
	s.lastOpen = bar.OpenTime
	s.hasLast = true
	s.staged = nil
	s.commit(s.stagedOff + barRecordSize)
	return nil
}
