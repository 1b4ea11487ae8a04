package avplay

import (
	"fmt"
	"io"
	"sort"
	"sync"
)

// Demuxer opens containers from a byte source.
type Demuxer interface {
	Backend() Backend
	// Probe reports whether the demuxer recognizes the leading bytes of a source.
	Probe(head []byte) bool
	// Open probes the container and its streams. The source stays owned by the
	// caller; Container.Close does not close it.
	Open(src *Source) (Container, error)
}

// Container is an opened demux context with a single sequential read cursor.
// It is not safe for concurrent use.
type Container interface {
	io.Closer
	Streams() []StreamInfo
	// BestStream selects the preferred stream of a kind.
	BestStream(kind MediaKind) (StreamInfo, bool)
	// ReadPacket fills pkt with the next packet in container order and returns
	// io.EOF once the container is exhausted.
	ReadPacket(pkt *Packet) error
	NewVideoDecoder(stream StreamInfo) (VideoDecoder, error)
	NewAudioDecoder(stream StreamInfo) (AudioDecoder, error)
}

// VideoDecoder follows the send/receive model: one packet may yield zero, one
// or several frames. A nil packet starts draining.
type VideoDecoder interface {
	io.Closer
	SendPacket(pkt *Packet) error
	// ReceiveFrame returns ErrAgain when more input is needed and io.EOF once a
	// drained decoder has no frames left. Frame data is valid until the next call.
	ReceiveFrame(frame *VideoFrame) error
}

// AudioDecoder follows the same model as VideoDecoder.
type AudioDecoder interface {
	io.Closer
	SendPacket(pkt *Packet) error
	ReceiveFrame(frame *AudioFrame) error
}

// --- Registry ---

const probeSize = 32

type demuxerEntry struct {
	backend Backend
	load    func() error // nil for pure-Go backends
	factory func() Demuxer
}

type demuxerRegistry struct {
	mu      sync.RWMutex
	entries map[Backend]demuxerEntry
}

var globalDemuxerRegistry = &demuxerRegistry{
	entries: make(map[Backend]demuxerEntry),
}

// registerDemuxer registers a backend factory (called by implementations).
func registerDemuxer(b Backend, load func() error, factory func() Demuxer) {
	globalDemuxerRegistry.mu.Lock()
	defer globalDemuxerRegistry.mu.Unlock()
	globalDemuxerRegistry.entries[b] = demuxerEntry{backend: b, load: load, factory: factory}
	if load == nil {
		setBackendAvailable(b)
	}
}

func lookupDemuxer(b Backend) (demuxerEntry, bool) {
	globalDemuxerRegistry.mu.RLock()
	defer globalDemuxerRegistry.mu.RUnlock()
	e, ok := globalDemuxerRegistry.entries[b]
	return e, ok
}

// registeredBackends returns the registered backends in probe order.
func registeredBackends() []Backend {
	globalDemuxerRegistry.mu.RLock()
	defer globalDemuxerRegistry.mu.RUnlock()
	out := make([]Backend, 0, len(globalDemuxerRegistry.entries))
	for b := range globalDemuxerRegistry.entries {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		return backendInfo[out[i]].Priority < backendInfo[out[j]].Priority
	})
	return out
}

// NewDemuxer returns the demuxer for a backend. BackendAuto probes every
// available backend in priority order.
func NewDemuxer(b Backend) (Demuxer, error) {
	if b == BackendAuto {
		return autoDemuxer{}, nil
	}
	entry, ok := lookupDemuxer(b)
	if !ok || !b.Available() {
		return nil, fmt.Errorf("%w: %s", ErrBackendUnavailable, b)
	}
	return entry.factory(), nil
}

type autoDemuxer struct{}

func (autoDemuxer) Backend() Backend { return BackendAuto }
func (autoDemuxer) Probe(head []byte) bool { return true }

func (autoDemuxer) Open(src *Source) (Container, error) {
	head := make([]byte, probeSize)
	n, err := io.ReadFull(src, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, loadError(ErrOpen, "probe", err)
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, loadError(ErrOpen, "rewind", err)
	}
	head = head[:n]

	for _, b := range registeredBackends() {
		if !b.Available() {
			continue
		}
		entry, _ := lookupDemuxer(b)
		d := entry.factory()
		if d.Probe(head) {
			return d.Open(src)
		}
	}
	return nil, loadError(ErrOpen, "probe", ErrBackendUnavailable)
}
