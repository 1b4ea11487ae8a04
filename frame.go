// Core frame, sample and stream types shared by the demuxers and pipelines.
package avplay

import (
	"fmt"
	"math"
)

// PixelFormat represents video pixel formats.
type PixelFormat int

const (
	PixelFormatUnknown PixelFormat = iota
	PixelFormatI420                // YUV 4:2:0 planar (Y + U + V)
	PixelFormatNV12                // YUV 4:2:0 semi-planar (Y + interleaved UV)
	PixelFormatNV21                // YUV 4:2:0 semi-planar (Y + interleaved VU)
	PixelFormatI422                // YUV 4:2:2 planar
	PixelFormatI444                // YUV 4:4:4 planar
	PixelFormatGray8               // Luma only
	PixelFormatRGB24               // Packed RGB, 3 bytes per pixel
	PixelFormatBGR24               // Packed BGR, 3 bytes per pixel
	PixelFormatRGBA32              // Packed RGBA, 4 bytes per pixel
	PixelFormatBGRA32              // Packed BGRA, 4 bytes per pixel
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatI420:
		return "I420"
	case PixelFormatNV12:
		return "NV12"
	case PixelFormatNV21:
		return "NV21"
	case PixelFormatI422:
		return "I422"
	case PixelFormatI444:
		return "I444"
	case PixelFormatGray8:
		return "Gray8"
	case PixelFormatRGB24:
		return "RGB24"
	case PixelFormatBGR24:
		return "BGR24"
	case PixelFormatRGBA32:
		return "RGBA32"
	case PixelFormatBGRA32:
		return "BGRA32"
	default:
		return "Unknown"
	}
}

// ParsePixelFormat maps a case-sensitive format name back to its PixelFormat.
func ParsePixelFormat(s string) (PixelFormat, error) {
	for p := PixelFormatI420; p <= PixelFormatBGRA32; p++ {
		if p.String() == s {
			return p, nil
		}
	}
	return PixelFormatUnknown, fmt.Errorf("%w: %q", ErrUnsupportedPixelFormat, s)
}

// PlaneCount returns the number of planes for this pixel format.
func (p PixelFormat) PlaneCount() int {
	switch p {
	case PixelFormatI420, PixelFormatI422, PixelFormatI444:
		return 3 // Y, U, V
	case PixelFormatNV12, PixelFormatNV21:
		return 2 // Y, UV
	case PixelFormatGray8, PixelFormatRGB24, PixelFormatBGR24, PixelFormatRGBA32, PixelFormatBGRA32:
		return 1
	default:
		return 0
	}
}

// IsPacked reports whether the format stores whole pixels in a single plane.
func (p PixelFormat) IsPacked() bool {
	return p.BytesPerPixel() > 1
}

// BytesPerPixel returns the pixel size of packed RGB formats and 1 for Gray8.
// Planar YUV formats return 0.
func (p PixelFormat) BytesPerPixel() int {
	switch p {
	case PixelFormatGray8:
		return 1
	case PixelFormatRGB24, PixelFormatBGR24:
		return 3
	case PixelFormatRGBA32, PixelFormatBGRA32:
		return 4
	default:
		return 0
	}
}

// planeSize returns the width in bytes and height of plane i for a w x h image.
func (p PixelFormat) planeSize(i, w, h int) (int, int) {
	cw, ch := (w+1)/2, (h+1)/2
	switch p {
	case PixelFormatI420:
		if i == 0 {
			return w, h
		}
		return cw, ch
	case PixelFormatI422:
		if i == 0 {
			return w, h
		}
		return cw, h
	case PixelFormatI444:
		return w, h
	case PixelFormatNV12, PixelFormatNV21:
		if i == 0 {
			return w, h
		}
		return cw * 2, ch
	default:
		return w * p.BytesPerPixel(), h
	}
}

// SampleFormat represents audio sample formats. The P variants store each
// channel in its own plane.
type SampleFormat int

const (
	SampleFormatUnknown SampleFormat = iota
	SampleFormatU8                   // Unsigned 8-bit, interleaved
	SampleFormatS16                  // Signed 16-bit, interleaved
	SampleFormatS32                  // Signed 32-bit, interleaved
	SampleFormatF32                  // 32-bit float, interleaved
	SampleFormatU8P                  // Unsigned 8-bit, planar
	SampleFormatS16P                 // Signed 16-bit, planar
	SampleFormatS32P                 // Signed 32-bit, planar
	SampleFormatF32P                 // 32-bit float, planar
)

func (s SampleFormat) String() string {
	switch s {
	case SampleFormatU8:
		return "U8"
	case SampleFormatS16:
		return "S16"
	case SampleFormatS32:
		return "S32"
	case SampleFormatF32:
		return "F32"
	case SampleFormatU8P:
		return "U8P"
	case SampleFormatS16P:
		return "S16P"
	case SampleFormatS32P:
		return "S32P"
	case SampleFormatF32P:
		return "F32P"
	default:
		return "Unknown"
	}
}

// ParseSampleFormat maps a format name back to its SampleFormat.
func ParseSampleFormat(s string) (SampleFormat, error) {
	for f := SampleFormatU8; f <= SampleFormatF32P; f++ {
		if f.String() == s {
			return f, nil
		}
	}
	return SampleFormatUnknown, fmt.Errorf("%w: %q", ErrUnsupportedSampleFormat, s)
}

// BytesPerSample returns the number of bytes per sample for this format.
func (s SampleFormat) BytesPerSample() int {
	switch s {
	case SampleFormatU8, SampleFormatU8P:
		return 1
	case SampleFormatS16, SampleFormatS16P:
		return 2
	case SampleFormatS32, SampleFormatS32P, SampleFormatF32, SampleFormatF32P:
		return 4
	default:
		return 0
	}
}

// IsPlanar reports whether channels are stored in separate planes.
func (s SampleFormat) IsPlanar() bool {
	return s >= SampleFormatU8P && s <= SampleFormatF32P
}

// Packed returns the interleaved counterpart of a planar format.
// Packed formats are returned unchanged.
func (s SampleFormat) Packed() SampleFormat {
	if s.IsPlanar() {
		return s - (SampleFormatU8P - SampleFormatU8)
	}
	return s
}

// AudioSpec describes an interleaved PCM layout, usually the one negotiated
// with the output device.
type AudioSpec struct {
	Format     SampleFormat
	SampleRate int
	Channels   int
}

// DefaultAudioSpec returns 48 kHz stereo S16, the common device default.
func DefaultAudioSpec() AudioSpec {
	return AudioSpec{
		Format:     SampleFormatS16,
		SampleRate: 48000,
		Channels:   2,
	}
}

// BytesPerFrame returns the size of one sample period across all channels.
func (a AudioSpec) BytesPerFrame() int {
	return a.Format.Packed().BytesPerSample() * a.Channels
}

// Valid reports whether the spec can describe real audio.
func (a AudioSpec) Valid() bool {
	return a.Format.BytesPerSample() > 0 && a.SampleRate > 0 && a.Channels > 0
}

func (a AudioSpec) String() string {
	return fmt.Sprintf("%s/%dHz/%dch", a.Format, a.SampleRate, a.Channels)
}

// NoPTS marks a packet or frame without a timestamp.
const NoPTS int64 = math.MinInt64

// Rational is a time base expressed as Num/Den seconds.
type Rational struct {
	Num, Den int
}

// Seconds converts a timestamp in this time base to seconds.
func (r Rational) Seconds(ts int64) float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(ts) * float64(r.Num) / float64(r.Den)
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// VideoFrame represents a raw video frame.
// The Data slices may point to external memory (e.g., C memory via FFI).
// Decoders only guarantee the data until the next ReceiveFrame call.
type VideoFrame struct {
	Data   [][]byte    // Plane data (1-3 planes depending on format)
	Stride []int       // Stride for each plane in bytes
	Width  int         // Frame width in pixels
	Height int         // Frame height in pixels
	Format PixelFormat // Pixel format
	PTS    int64       // Presentation timestamp in stream time base, or NoPTS
}

// Clone creates a deep copy of the video frame.
// Use this when you need to keep the frame data beyond its original lifetime.
func (f *VideoFrame) Clone() *VideoFrame {
	clone := &VideoFrame{
		Data:   make([][]byte, len(f.Data)),
		Stride: make([]int, len(f.Stride)),
		Width:  f.Width,
		Height: f.Height,
		Format: f.Format,
		PTS:    f.PTS,
	}
	copy(clone.Stride, f.Stride)
	for i, plane := range f.Data {
		if plane != nil {
			clone.Data[i] = make([]byte, len(plane))
			copy(clone.Data[i], plane)
		}
	}
	return clone
}

// AudioFrame holds decoded PCM. Packed formats use a single plane; planar
// formats carry one plane per channel.
type AudioFrame struct {
	Data        [][]byte
	SampleCount int // Samples per channel
	Format      SampleFormat
	SampleRate  int
	Channels    int
	PTS         int64
}

// Spec returns the layout of this frame.
func (f *AudioFrame) Spec() AudioSpec {
	return AudioSpec{Format: f.Format, SampleRate: f.SampleRate, Channels: f.Channels}
}

// Clone creates a deep copy of the audio frame.
func (f *AudioFrame) Clone() *AudioFrame {
	clone := *f
	clone.Data = make([][]byte, len(f.Data))
	for i, plane := range f.Data {
		clone.Data[i] = append([]byte(nil), plane...)
	}
	return &clone
}

// MediaKind identifies the elementary stream type.
type MediaKind int

const (
	MediaKindUnknown MediaKind = iota
	MediaKindVideo
	MediaKindAudio
)

func (k MediaKind) String() string {
	switch k {
	case MediaKindVideo:
		return "video"
	case MediaKindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// StreamInfo describes one elementary stream of an opened container.
type StreamInfo struct {
	Index    int
	Kind     MediaKind
	Codec    string
	TimeBase Rational

	// Video
	Width       int
	Height      int
	PixelFormat PixelFormat

	// Audio
	SampleFormat SampleFormat
	SampleRate   int
	Channels     int
}

// Packet is one compressed unit read from a container. Data is owned by the
// container and valid until the next ReadPacket call.
type Packet struct {
	StreamIndex int
	PTS         int64
	Data        []byte

	native uintptr // backend packet handle, if any
}

func (p *Packet) reset() {
	p.StreamIndex = -1
	p.PTS = NoPTS
	p.Data = nil
	p.native = 0
}
