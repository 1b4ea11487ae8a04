package avplay

import "sync"

// FrameBuffer is a converted, packed frame ready for presentation.
type FrameBuffer struct {
	Pixels []byte
	Pitch  int
	Width  int
	Height int
	Format PixelFormat
}

// FrameSlot holds the most recently converted video frame. The producer
// publishes by filling the buffer under the slot lock; the consumer takes it
// under the same lock. An unconsumed frame is overwritten by the next publish.
type FrameSlot struct {
	mu    sync.Mutex
	buf   FrameBuffer
	ready bool

	published uint64
	consumed  uint64
	overwrote uint64
}

// Publish runs fill with exclusive access to the slot buffer and marks the
// slot ready when fill succeeds. fill must leave buf untouched when it fails;
// a pending unconsumed frame then stays ready.
func (s *FrameSlot) Publish(fill func(buf *FrameBuffer) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.ready
	s.ready = false
	if err := fill(&s.buf); err != nil {
		s.ready = pending
		return err
	}
	if pending {
		s.overwrote++
	}
	s.ready = true
	s.published++
	return nil
}

// Consume calls use with the ready frame, if any, and clears the ready flag.
// It reports whether a frame was consumed.
func (s *FrameSlot) Consume(use func(buf *FrameBuffer) error) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return false, nil
	}
	s.ready = false
	s.consumed++
	return true, use(&s.buf)
}

// Ready reports whether an unconsumed frame is waiting.
func (s *FrameSlot) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Reset drops the frame and its storage.
func (s *FrameSlot) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = FrameBuffer{}
	s.ready = false
	s.published, s.consumed, s.overwrote = 0, 0, 0
}

// SlotStats counts slot traffic since the last Reset.
type SlotStats struct {
	Published   uint64
	Consumed    uint64
	Overwritten uint64
}

func (s *FrameSlot) Stats() SlotStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SlotStats{Published: s.published, Consumed: s.consumed, Overwritten: s.overwrote}
}
