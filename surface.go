package avplay

import "sync"

// Surface is a caller-owned streaming presentation target, typically a
// window texture.
type Surface interface {
	// Configure (re)creates the surface for frames of the given geometry.
	Configure(width, height int, format PixelFormat) error
	// Update copies packed pixels with the given row pitch into the surface.
	Update(pixels []byte, pitch int) error
	// Present blits the whole surface to its output.
	Present() error
}

// MemorySurface keeps a copy of the last presented frame in memory. It is
// safe for concurrent use.
type MemorySurface struct {
	mu       sync.RWMutex
	frame    FrameBuffer
	configs  uint64
	updates  uint64
	presents uint64
}

func (m *MemorySurface) Configure(width, height int, format PixelFormat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frame = FrameBuffer{Width: width, Height: height, Format: format}
	m.configs++
	return nil
}

func (m *MemorySurface) Update(pixels []byte, pitch int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frame.Pixels = append(m.frame.Pixels[:0], pixels...)
	m.frame.Pitch = pitch
	m.updates++
	return nil
}

func (m *MemorySurface) Present() error {
	m.mu.Lock()
	m.presents++
	m.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the last updated frame and whether one exists.
func (m *MemorySurface) Snapshot() (FrameBuffer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.frame.Pixels == nil {
		return FrameBuffer{}, false
	}
	f := m.frame
	f.Pixels = append([]byte(nil), m.frame.Pixels...)
	return f, true
}

// Counts returns how many Configure, Update and Present calls were made.
func (m *MemorySurface) Counts() (configs, updates, presents uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.configs, m.updates, m.presents
}
