package avplay

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	ErrMuxerHeaderWritten = errors.New("streams cannot be added after the header is written")
	ErrUnknownStream      = errors.New("unknown stream index")
)

// RawMuxer writes the AVPR container read by RawDemuxer. It is used to build
// synthetic clips and test fixtures; the player itself never writes media.
type RawMuxer struct {
	w          io.Writer
	streams    []StreamInfo
	headerDone bool
	scratch    []byte
}

// NewRawMuxer returns a muxer writing to w. The header is emitted lazily with
// the first packet, or by Close for an empty container.
func NewRawMuxer(w io.Writer) *RawMuxer {
	return &RawMuxer{w: w}
}

// AddVideoStream declares a rawvideo stream and returns its index.
func (m *RawMuxer) AddVideoStream(width, height int, format PixelFormat, tb Rational) (int, error) {
	return m.AddStream(StreamInfo{
		Kind:        MediaKindVideo,
		Codec:       CodecRawVideo,
		TimeBase:    tb,
		Width:       width,
		Height:      height,
		PixelFormat: format,
	})
}

// AddAudioStream declares a pcm stream and returns its index.
func (m *RawMuxer) AddAudioStream(spec AudioSpec, tb Rational) (int, error) {
	return m.AddStream(StreamInfo{
		Kind:         MediaKindAudio,
		Codec:        CodecPCM,
		TimeBase:     tb,
		SampleFormat: spec.Format,
		SampleRate:   spec.SampleRate,
		Channels:     spec.Channels,
	})
}

// AddStream declares an arbitrary stream. Streams with unknown codecs are
// written but never selected by the demuxer.
func (m *RawMuxer) AddStream(info StreamInfo) (int, error) {
	if m.headerDone {
		return -1, ErrMuxerHeaderWritten
	}
	if len(m.streams) == 255 {
		return -1, fmt.Errorf("raw: too many streams")
	}
	info.Index = len(m.streams)
	m.streams = append(m.streams, info)
	return info.Index, nil
}

func (m *RawMuxer) writeHeader() error {
	if m.headerDone {
		return nil
	}
	m.headerDone = true
	b := append(m.scratch[:0], rawMagic...)
	b = append(b, rawVersion, byte(len(m.streams)))
	for _, s := range m.streams {
		b = append(b, byte(s.Kind), byte(len(s.Codec)))
		b = append(b, s.Codec...)
		b = binary.BigEndian.AppendUint32(b, uint32(s.TimeBase.Num))
		b = binary.BigEndian.AppendUint32(b, uint32(s.TimeBase.Den))
		switch s.Kind {
		case MediaKindVideo:
			b = binary.BigEndian.AppendUint32(b, uint32(s.Width))
			b = binary.BigEndian.AppendUint32(b, uint32(s.Height))
			b = append(b, byte(s.PixelFormat))
		case MediaKindAudio:
			b = append(b, byte(s.SampleFormat), byte(s.Channels))
			b = binary.BigEndian.AppendUint32(b, uint32(s.SampleRate))
		}
	}
	m.scratch = b
	_, err := m.w.Write(b)
	return err
}

// WritePacket writes an opaque payload. It is the escape hatch for corrupt or
// foreign packets.
func (m *RawMuxer) WritePacket(stream int, pts int64, payload []byte) error {
	if stream < 0 || stream >= len(m.streams) {
		return fmt.Errorf("%w: %d", ErrUnknownStream, stream)
	}
	if err := m.writeHeader(); err != nil {
		return err
	}
	var hdr [rawPacketHeaderSize]byte
	hdr[0] = byte(stream)
	binary.BigEndian.PutUint64(hdr[1:9], uint64(pts))
	binary.BigEndian.PutUint32(hdr[9:13], uint32(len(payload)))
	if _, err := m.w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := m.w.Write(payload)
	return err
}

// WriteVideo writes one packet carrying every given frame. A decoder yields
// them in order from that single packet.
func (m *RawMuxer) WriteVideo(stream int, pts int64, frames ...*VideoFrame) error {
	if len(frames) > 255 {
		return fmt.Errorf("raw: too many frames in one packet")
	}
	b := append(m.scratch[:0], byte(len(frames)))
	for _, f := range frames {
		planes := f.Format.PlaneCount()
		if planes == 0 || len(f.Data) < planes {
			return fmt.Errorf("%w: %s", ErrUnsupportedPixelFormat, f.Format)
		}
		b = binary.BigEndian.AppendUint32(b, uint32(f.Width))
		b = binary.BigEndian.AppendUint32(b, uint32(f.Height))
		b = append(b, byte(f.Format))
		for p := 0; p < planes; p++ {
			pw, ph := f.Format.planeSize(p, f.Width, f.Height)
			stride := pw
			if p < len(f.Stride) && f.Stride[p] > 0 {
				stride = f.Stride[p]
			}
			for y := 0; y < ph; y++ {
				b = append(b, f.Data[p][y*stride:y*stride+pw]...)
			}
		}
	}
	m.scratch = b
	payload := append([]byte(nil), b...)
	return m.WritePacket(stream, pts, payload)
}

// WriteAudio writes one pcm packet. Planar frames carry one plane per channel.
func (m *RawMuxer) WriteAudio(stream int, pts int64, f *AudioFrame) error {
	bps := f.Format.BytesPerSample()
	if bps == 0 {
		return fmt.Errorf("%w: %s", ErrUnsupportedSampleFormat, f.Format)
	}
	b := append(m.scratch[:0], byte(f.Format), byte(f.Channels))
	b = binary.BigEndian.AppendUint32(b, uint32(f.SampleRate))
	b = binary.BigEndian.AppendUint32(b, uint32(f.SampleCount))
	if f.Format.IsPlanar() {
		if len(f.Data) < f.Channels {
			return fmt.Errorf("raw: planar frame has %d planes for %d channels", len(f.Data), f.Channels)
		}
		for c := 0; c < f.Channels; c++ {
			b = append(b, f.Data[c][:f.SampleCount*bps]...)
		}
	} else {
		if len(f.Data) < 1 {
			return fmt.Errorf("raw: packed frame has no data")
		}
		b = append(b, f.Data[0][:f.SampleCount*f.Channels*bps]...)
	}
	m.scratch = b
	payload := append([]byte(nil), b...)
	return m.WritePacket(stream, pts, payload)
}

// Close writes the header if no packet has been written yet. It does not close
// the underlying writer.
func (m *RawMuxer) Close() error {
	return m.writeHeader()
}
