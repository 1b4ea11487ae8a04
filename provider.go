package avplay

import "sync/atomic"

// Backend identifies a demux/decode implementation.
type Backend uint8

const (
	BackendAuto   Backend = iota // Probe the source and pick the first backend that accepts it
	BackendRaw                   // Pure-Go raw container (AVPR)
	BackendFFmpeg                // libavformat/libavcodec via purego
	backendCount
)

// License represents the software license of a backend's native code.
type License uint8

const (
	LicenseBSD  License = iota // Permissive, pure Go
	LicenseLGPL                // FFmpeg default build
)

func (l License) String() string {
	switch l {
	case LicenseBSD:
		return "BSD"
	case LicenseLGPL:
		return "LGPL"
	default:
		return "unknown"
	}
}

// backendMeta contains static metadata about a backend.
type backendMeta struct {
	Name     string
	License  License
	Native   bool // needs shared libraries at runtime
	Priority int  // lower probes first
}

var backendInfo = [backendCount]backendMeta{
	BackendAuto:   {"auto", LicenseBSD, false, 0},
	BackendRaw:    {"raw", LicenseBSD, false, 10},
	BackendFFmpeg: {"ffmpeg", LicenseLGPL, true, 20},
}

// Runtime availability - set by init() in backend implementations.
var backendAvailable [backendCount]atomic.Bool

// String returns the backend name.
func (b Backend) String() string {
	if b >= backendCount {
		return "unknown"
	}
	return backendInfo[b].Name
}

// ParseBackend maps a name from configuration to a Backend.
func ParseBackend(name string) (Backend, bool) {
	for b := Backend(0); b < backendCount; b++ {
		if backendInfo[b].Name == name {
			return b, true
		}
	}
	return BackendAuto, false
}

// License returns the backend's license type.
func (b Backend) License() License {
	if b >= backendCount {
		return LicenseLGPL
	}
	return backendInfo[b].License
}

// Native reports whether the backend loads shared libraries.
func (b Backend) Native() bool {
	if b >= backendCount {
		return false
	}
	return backendInfo[b].Native
}

// Available returns true if the backend is usable at runtime. Native backends
// attempt to load their libraries on the first call.
func (b Backend) Available() bool {
	if b == BackendAuto {
		return true
	}
	if b >= backendCount {
		return false
	}
	if backendAvailable[b].Load() {
		return true
	}
	entry, ok := lookupDemuxer(b)
	if !ok {
		return false
	}
	if entry.load != nil && entry.load() != nil {
		return false
	}
	setBackendAvailable(b)
	return true
}

func setBackendAvailable(b Backend) {
	if b < backendCount {
		backendAvailable[b].Store(true)
	}
}
