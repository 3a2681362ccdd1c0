package series

import (
	"context"

	"main/internal/schema"

	"golang.org/x/sys/unix"
)

// Cursor is a finite, restartable range read over committed bars. It
// owns a read-only mapping scoped to its lifetime; call Close when
// done.
type Cursor struct {
	data []byte
	off  int64
	from int64
	to   int64
	err  error
}

// ReadRange returns a cursor over committed bars with open-time in
// [from, to]. The cursor observes the commit boundary at call time;
// bars appended later require a new cursor (or Follow).
func (s *Series) ReadRange(from, to int64) (*Cursor, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSeriesClosed
	}
	limit := s.committed.Load()
	data, err := s.mapRead(limit)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &Cursor{data: data, off: fileHeaderSize, from: from, to: to}, nil
}

// Next returns the next bar in range. It returns false at the end of
// the range; check Err to distinguish exhaustion from corruption.
func (c *Cursor) Next() (schema.Bar, bool) {
	for c.err == nil && c.off+barRecordSize <= int64(len(c.data)) {
		bar, n, err := decodeBarRecord(c.data[c.off:])
		if err != nil {
			c.err = err
			break
		}
		c.off += int64(n)
		if bar.OpenTime < c.from {
			continue
		}
		if c.to != 0 && bar.OpenTime > c.to {
			return schema.Bar{}, false
		}
		return bar, true
	}
	return schema.Bar{}, false
}

// Err returns the first decode error encountered, if any.
func (c *Cursor) Err() error {
	return c.err
}

// Close releases the cursor's mapping.
func (c *Cursor) Close() error {
	if c == nil || c.data == nil {
		return nil
	}
	data := c.data
	c.data = nil
	return unix.Munmap(data)
}

// Follower is an open-ended tail read: it yields committed bars and
// then blocks until more are appended. Cancel via the context passed
// to Next; call Close to release the mapping.
type Follower struct {
	s    *Series
	data []byte
	off  int64
	from int64
}

// Follow returns a follower starting at the first committed bar with
// open-time >= from. Use from=0 to follow from the beginning.
func (s *Series) Follow(from int64) *Follower {
	return &Follower{s: s, off: fileHeaderSize, from: from}
}

// Next blocks until a bar is available, the context is cancelled, or
// the series closes (ErrSeriesClosed).
func (f *Follower) Next(ctx context.Context) (schema.Bar, error) {
	for {
		limit := f.s.committed.Load()
		for f.off+barRecordSize <= limit {
			if err := f.ensureMapped(limit); err != nil {
				return schema.Bar{}, err
			}
			bar, n, err := decodeBarRecord(f.data[f.off:])
			if err != nil {
				return schema.Bar{}, err
			}
			f.off += int64(n)
			if bar.OpenTime < f.from {
				continue
			}
			return bar, nil
		}

		f.s.mu.Lock()
		ch := f.s.waitCh
		closed := f.s.closed
		f.s.mu.Unlock()
		if f.s.committed.Load() > limit {
			continue
		}
		if closed {
			return schema.Bar{}, ErrSeriesClosed
		}
		select {
		case <-ctx.Done():
			return schema.Bar{}, ctx.Err()
		case <-f.s.closedCh:
			return schema.Bar{}, ErrSeriesClosed
		case <-ch:
		}
	}
}

// ensureMapped grows the follower's read-only mapping to cover the
// commit boundary.
func (f *Follower) ensureMapped(limit int64) error {
	if int64(len(f.data)) >= limit {
		return nil
	}
	f.s.mu.Lock()
	if f.s.closed {
		f.s.mu.Unlock()
		return ErrSeriesClosed
	}
	data, err := f.s.mapRead(limit)
	f.s.mu.Unlock()
	if err != nil {
		return err
	}
	if f.data != nil {
		_ = unix.Munmap(f.data)
	}
	f.data = data
	return nil
}

// Close releases the follower's mapping.
func (f *Follower) Close() error {
	if f == nil || f.data == nil {
		return nil
	}
	data := f.data
	f.data = nil
	return unix.Munmap(data)
}
