// Package series implements the per-(instrument, resolution) bar
// store: one memory-mapped append-only log per series key, a single
// appending writer per key, and concurrent range/follow readers that
// never observe a partially written record.
package series

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"main/internal/schema"

	"golang.org/x/sys/unix"
)

var (
	ErrOutOfOrderAppend = errors.New("series: bar open-time not after last stored bar")
	ErrWriterHeld       = errors.New("series: writer already held for key")
	ErrSeriesClosed     = errors.New("series: closed")
	ErrSeriesMismatch   = errors.New("series: bar does not match series key")
	ErrInvalidKey       = errors.New("series: invalid series key")
)

const (
	defaultInitialSize = int64(1 << 20)
	fileExt            = ".srs"
)

// Store manages the open series logs under one directory. Contention
// is per series key; unrelated keys never interact.
type Store struct {
	dir string

	mu     sync.Mutex
	series map[schema.SeriesKey]*Series
	closed bool
}

// Open creates the store directory if needed and returns a store.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("series: dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{
		dir:    dir,
		series: make(map[schema.SeriesKey]*Series),
	}, nil
}

// Series opens (or creates) the log for a key, recovering the last
// valid record boundary from disk.
func (s *Store) Series(key schema.SeriesKey) (*Series, error) {
	if key.Symbol == 0 || !key.Resolution.Valid() {
		return nil, ErrInvalidKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSeriesClosed
	}
	if sr, ok := s.series[key]; ok {
		return sr, nil
	}
	path := filepath.Join(s.dir, key.String()+fileExt)
	sr, err := openSeries(key, path)
	if err != nil {
		return nil, err
	}
	s.series[key] = sr
	return sr, nil
}

// Close closes every open series.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var firstErr error
	for _, sr := range s.series {
		if err := sr.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Series is one open memory-mapped log. The mapping is owned by the
// series handle; readers acquire their own scoped read-only mappings
// and never receive raw pointers into the writer mapping.
type Series struct {
	key  schema.SeriesKey
	path string

	mu       sync.Mutex
	file     *os.File
	data     []byte
	size     int64
	waitCh   chan struct{}
	closed   bool
	closedCh chan struct{}

	committed atomic.Int64

	writerHeld atomic.Bool

	// Writer-owned state, guarded by mu.
	lastOpen  int64
	hasLast   bool
	staged    *schema.Bar
	stagedOff int64
}

func openSeries(key schema.SeriesKey, path string) (*Series, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}

	size := info.Size()
	fresh := size < fileHeaderSize
	if size < defaultInitialSize {
		size = defaultInitialSize
		if err := file.Truncate(size); err != nil {
			_ = file.Close()
			return nil, err
		}
	}

	data, err := unix.Mmap(int(file.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = file.Close()
		return nil, err
	}

	sr := &Series{
		key:      key,
		path:     path,
		file:     file,
		data:     data,
		size:     size,
		waitCh:   make(chan struct{}),
		closedCh: make(chan struct{}),
	}

	if fresh {
		encodeFileHeader(data[:fileHeaderSize], key, time.Now().UTC().UnixNano())
		sr.committed.Store(fileHeaderSize)
		return sr, nil
	}

	if err := decodeFileHeader(data[:fileHeaderSize], key); err != nil {
		_ = unix.Munmap(data)
		_ = file.Close()
		return nil, err
	}
	sr.recoverTail()
	return sr, nil
}

// recoverTail scans forward from the file header and stops at the
// first record that fails to parse: that boundary is the recovered
// commit offset, and any trailing torn bytes are simply overwritten by
// the next append. A trailing non-final record is the previous
// writer's still-open bucket; it is restaged rather than committed, so
// readers keep seeing only final bars and the next writer continues
// accumulating the same bucket.
func (s *Series) recoverTail() {
	off := int64(fileHeaderSize)
	for off < s.size {
		bar, n, err := decodeBarRecord(s.data[off:])
		if err != nil {
			break
		}
		if !bar.Final() {
			staged := bar
			s.staged = &staged
			s.stagedOff = off
			break
		}
		s.lastOpen = bar.OpenTime
		s.hasLast = true
		off += int64(n)
	}
	s.committed.Store(off)
}

// Key returns the series key.
func (s *Series) Key() schema.SeriesKey {
	return s.key
}

// Len returns the number of committed bars.
func (s *Series) Len() int {
	limit := s.committed.Load()
	return int((limit - fileHeaderSize) / barRecordSize)
}

// Close syncs and unmaps the log. Followers waiting on new data are
// woken with ErrSeriesClosed.
func (s *Series) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.closedCh)

	err := unix.Msync(s.data, unix.MS_SYNC)
	if unmapErr := unix.Munmap(s.data); err == nil {
		err = unmapErr
	}
	s.data = nil
	if closeErr := s.file.Close(); err == nil {
		err = closeErr
	}
	return err
}

// Sync flushes the mapped region to disk. Appends are not synced per
// record; crash consistency relies on torn-tail recovery instead.
func (s *Series) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSeriesClosed
	}
	return unix.Msync(s.data, unix.MS_SYNC)
}

// ensureCapacity grows the file and remaps the writer mapping so at
// least need bytes are writable at offset off. Reader mappings are
// unaffected: they hold independent mappings of the same pages.
func (s *Series) ensureCapacity(off, need int64) error {
	if off+need <= s.size {
		return nil
	}
	newSize := s.size
	for off+need > newSize {
		newSize *= 2
	}
	if err := unix.Munmap(s.data); err != nil {
		return err
	}
	s.data = nil
	if err := s.file.Truncate(newSize); err != nil {
		return err
	}
	data, err := unix.Mmap(int(s.file.Fd()), 0, int(newSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return err
	}
	s.data = data
	s.size = newSize
	return nil
}

// commit atomically publishes records up to off and wakes followers.
// Record bytes are fully written before the offset moves, so a reader
// can never observe a partial record.
func (s *Series) commit(off int64) {
	s.committed.Store(off)
	ch := s.waitCh
	s.waitCh = make(chan struct{})
	close(ch)
}

func (s *Series) mapRead(limit int64) ([]byte, error) {
	if limit <= fileHeaderSize {
		return nil, nil
	}
	return unix.Mmap(int(s.file.Fd()), 0, int(limit), unix.PROT_READ, unix.MAP_SHARED)
}
