package avplay

// ByteFIFO is a growable ring buffer of PCM bytes. It is owned by the thread
// driving audio consumption and is not safe for concurrent use.
type ByteFIFO struct {
	buf  []byte
	head int // read offset
	n    int // buffered bytes
}

// NewByteFIFO returns a FIFO with the given initial capacity.
func NewByteFIFO(capacity int) *ByteFIFO {
	if capacity < 64 {
		capacity = 64
	}
	return &ByteFIFO{buf: make([]byte, capacity)}
}

// Len returns the number of buffered bytes.
func (f *ByteFIFO) Len() int { return f.n }

// Write appends p, growing the buffer as needed. It never fails.
func (f *ByteFIFO) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	f.grow(len(p))
	tail := (f.head + f.n) % len(f.buf)
	c := copy(f.buf[tail:], p)
	if c < len(p) {
		copy(f.buf, p[c:])
	}
	f.n += len(p)
	return len(p), nil
}

// Read moves up to len(p) bytes out of the FIFO. It returns 0 when empty.
func (f *ByteFIFO) Read(p []byte) (int, error) {
	n := f.Peek(p)
	f.Discard(n)
	return n, nil
}

// Peek copies up to len(p) bytes without consuming them.
func (f *ByteFIFO) Peek(p []byte) int {
	n := min(len(p), f.n)
	if n == 0 {
		return 0
	}
	c := copy(p[:n], f.buf[f.head:])
	if c < n {
		copy(p[c:n], f.buf)
	}
	return n
}

// Discard drops up to n bytes from the front.
func (f *ByteFIFO) Discard(n int) {
	n = min(n, f.n)
	f.head = (f.head + n) % len(f.buf)
	f.n -= n
	if f.n == 0 {
		f.head = 0
	}
}

// Reset empties the FIFO, keeping its storage.
func (f *ByteFIFO) Reset() {
	f.head = 0
	f.n = 0
}

func (f *ByteFIFO) grow(extra int) {
	need := f.n + extra
	if need <= len(f.buf) {
		return
	}
	size := len(f.buf) * 2
	for size < need {
		size *= 2
	}
	buf := make([]byte, size)
	f.Peek(buf[:f.n])
	f.buf = buf
	f.head = 0
}
