package avplay

import (
	"fmt"
	"io"
	"sync"
)

// Whence values accepted by Source.Seek in addition to io.SeekStart,
// io.SeekCurrent and io.SeekEnd. They share FFmpeg's AVSEEK_* bit values so the
// native backend can pass its whence argument through unchanged.
const (
	SeekSize  = 0x10000 // Return the total size without moving
	SeekForce = 0x20000 // Hint only; masked off
)

// Source adapts a caller-supplied io.ReadSeeker to the read/seek contract the
// demuxers consume. It tracks the cursor and closes the underlying stream on
// Close only when it was handed ownership.
type Source struct {
	rs    io.ReadSeeker
	owned bool

	mu     sync.Mutex
	pos    int64
	size   int64 // -1 until queried
	closed bool
}

// NewSource wraps rs. When takeOwnership is true and rs implements io.Closer,
// Close closes it.
func NewSource(rs io.ReadSeeker, takeOwnership bool) *Source {
	return &Source{rs: rs, owned: takeOwnership, size: -1}
}

// Read reads up to len(p) bytes. It returns io.EOF once the stream is exhausted.
func (s *Source) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	if len(p) == 0 {
		return 0, nil
	}
	n, err := s.rs.Read(p)
	s.pos += int64(n)
	if n == 0 && err == nil {
		return 0, io.ErrNoProgress
	}
	if n > 0 && err == io.EOF {
		// Report the data now and EOF on the next call.
		return n, nil
	}
	return n, err
}

// Seek moves the cursor. whence is io.SeekStart, io.SeekCurrent, io.SeekEnd or
// SeekSize, optionally OR'ed with SeekForce.
func (s *Source) Seek(offset int64, whence int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	whence &^= SeekForce
	if whence == SeekSize {
		return s.sizeLocked()
	}
	switch whence {
	case io.SeekStart, io.SeekCurrent, io.SeekEnd:
	default:
		return 0, fmt.Errorf("seek: invalid whence %d", whence)
	}
	pos, err := s.rs.Seek(offset, whence)
	if err != nil {
		return 0, err
	}
	s.pos = pos
	return pos, nil
}

// Size returns the total stream size, restoring the cursor afterwards.
func (s *Source) Size() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sizeLocked()
}

func (s *Source) sizeLocked() (int64, error) {
	if s.size >= 0 {
		return s.size, nil
	}
	end, err := s.rs.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := s.rs.Seek(s.pos, io.SeekStart); err != nil {
		return 0, err
	}
	s.size = end
	return end, nil
}

// Position returns the current cursor.
func (s *Source) Position() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// Owned reports whether Close releases the underlying stream.
func (s *Source) Owned() bool {
	return s.owned
}

// Close is idempotent.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if !s.owned {
		return nil
	}
	if c, ok := s.rs.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
