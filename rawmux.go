package avplay

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"slices"
)

// AVPR raw container layout (all integers big-endian):
//
//	header:  "AVPR" | version u8 | stream count u8
//	stream:  kind u8 | codec len u8 | codec | tb num u32 | tb den u32 |
//	         video: width u32 | height u32 | pixfmt u8
//	         audio: sampfmt u8 | channels u8 | rate u32
//	packet:  stream u8 | pts i64 | size u32 | payload
//
// rawvideo payload: frame count u8, then per frame width u32 | height u32 |
// pixfmt u8 | tightly packed planes. pcm payload: sampfmt u8 | channels u8 |
// rate u32 | samples u32 | interleaved data, or one block per channel when
// the format is planar. Every payload describes its own format so a stream
// may change geometry or sample layout at any packet.
const (
	rawMagic   = "AVPR"
	rawVersion = 1

	CodecRawVideo = "rawvideo"
	CodecPCM      = "pcm"

	rawPacketHeaderSize = 13
	rawMaxDimension     = 1 << 14
	rawMaxChannels      = 32
	rawMaxPacketSize    = 1 << 28
	rawReadChunk        = 1 << 20
)

var errRawTruncated = errors.New("truncated payload")

func init() {
	registerDemuxer(BackendRaw, nil, func() Demuxer { return RawDemuxer{} })
}

// RawDemuxer reads the AVPR container written by RawMuxer.
type RawDemuxer struct{}

func (RawDemuxer) Backend() Backend { return BackendRaw }

func (RawDemuxer) Probe(head []byte) bool {
	return bytes.HasPrefix(head, []byte(rawMagic))
}

func (RawDemuxer) Open(src *Source) (Container, error) {
	r := bufio.NewReaderSize(src, 4096)

	var hdr [6]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, loadError(ErrOpen, "read header", err)
	}
	if string(hdr[:4]) != rawMagic {
		return nil, loadError(ErrOpen, "read header", errors.New("bad magic"))
	}
	if hdr[4] != rawVersion {
		return nil, loadError(ErrOpen, "read header", fmt.Errorf("unsupported version %d", hdr[4]))
	}

	c := &rawContainer{r: r, streams: make([]StreamInfo, hdr[5])}
	for i := range c.streams {
		s, err := readRawStream(r)
		if err != nil {
			return nil, loadError(ErrOpen, "read stream info", err)
		}
		s.Index = i
		c.streams[i] = s
	}
	return c, nil
}

func readRawStream(r *bufio.Reader) (StreamInfo, error) {
	var s StreamInfo
	head := make([]byte, 2)
	if _, err := io.ReadFull(r, head); err != nil {
		return s, err
	}
	s.Kind = MediaKind(head[0])
	codec := make([]byte, head[1])
	if _, err := io.ReadFull(r, codec); err != nil {
		return s, err
	}
	s.Codec = string(codec)

	var tb [8]byte
	if _, err := io.ReadFull(r, tb[:]); err != nil {
		return s, err
	}
	s.TimeBase = Rational{
		Num: int(binary.BigEndian.Uint32(tb[0:4])),
		Den: int(binary.BigEndian.Uint32(tb[4:8])),
	}

	switch s.Kind {
	case MediaKindVideo:
		var v [9]byte
		if _, err := io.ReadFull(r, v[:]); err != nil {
			return s, err
		}
		s.Width = int(binary.BigEndian.Uint32(v[0:4]))
		s.Height = int(binary.BigEndian.Uint32(v[4:8]))
		s.PixelFormat = PixelFormat(v[8])
		if s.Width < 0 || s.Height < 0 || s.Width > rawMaxDimension || s.Height > rawMaxDimension {
			return s, fmt.Errorf("invalid video size %dx%d", s.Width, s.Height)
		}
		if s.Codec == CodecRawVideo && (s.Width == 0 || s.Height == 0) {
			return s, errors.New("rawvideo stream without a frame size")
		}
	case MediaKindAudio:
		var a [6]byte
		if _, err := io.ReadFull(r, a[:]); err != nil {
			return s, err
		}
		s.SampleFormat = SampleFormat(a[0])
		s.Channels = int(a[1])
		s.SampleRate = int(binary.BigEndian.Uint32(a[2:6]))
		if s.Channels > rawMaxChannels || s.SampleRate < 0 {
			return s, fmt.Errorf("invalid audio layout %d channels at %d Hz", s.Channels, s.SampleRate)
		}
	}
	return s, nil
}

type rawContainer struct {
	r       *bufio.Reader
	streams []StreamInfo
	buf     []byte
	closed  bool
}

func (c *rawContainer) Streams() []StreamInfo {
	return c.streams
}

func (c *rawContainer) BestStream(kind MediaKind) (StreamInfo, bool) {
	for _, s := range c.streams {
		if s.Kind == kind && decodableRaw(s) {
			return s, true
		}
	}
	return StreamInfo{}, false
}

func decodableRaw(s StreamInfo) bool {
	switch s.Kind {
	case MediaKindVideo:
		return s.Codec == CodecRawVideo
	case MediaKindAudio:
		return s.Codec == CodecPCM
	}
	return false
}

func (c *rawContainer) ReadPacket(pkt *Packet) error {
	pkt.reset()
	if c.closed {
		return io.EOF
	}
	var hdr [rawPacketHeaderSize]byte
	n, err := io.ReadFull(c.r, hdr[:])
	if err != nil {
		if n == 0 && err == io.EOF {
			return io.EOF
		}
		return fmt.Errorf("raw: packet header: %w", io.ErrUnexpectedEOF)
	}
	size := int64(binary.BigEndian.Uint32(hdr[9:13]))
	if size > rawMaxPacketSize {
		return fmt.Errorf("%w: raw packet of %d bytes", ErrRuntimeDecode, size)
	}
	if c.buf, err = readPayload(c.r, c.buf, int(size)); err != nil {
		return fmt.Errorf("raw: packet payload: %w", io.ErrUnexpectedEOF)
	}
	pkt.StreamIndex = int(hdr[0])
	pkt.PTS = int64(binary.BigEndian.Uint64(hdr[1:9]))
	pkt.Data = c.buf
	return nil
}

// readPayload reads size bytes into buf, growing it chunk by chunk so a
// bogus size on a short stream fails before the whole buffer is allocated.
func readPayload(r io.Reader, buf []byte, size int) ([]byte, error) {
	buf = buf[:0]
	for len(buf) < size {
		chunk := min(size-len(buf), rawReadChunk)
		buf = slices.Grow(buf, chunk)
		n, err := io.ReadFull(r, buf[len(buf):len(buf)+chunk])
		buf = buf[:len(buf)+n]
		if err != nil {
			return buf, err
		}
	}
	return buf, nil
}

func (c *rawContainer) NewVideoDecoder(s StreamInfo) (VideoDecoder, error) {
	if s.Kind != MediaKindVideo || s.Codec != CodecRawVideo {
		return nil, fmt.Errorf("%w: stream %d codec %q", ErrDecoderInit, s.Index, s.Codec)
	}
	return &rawVideoDecoder{}, nil
}

func (c *rawContainer) NewAudioDecoder(s StreamInfo) (AudioDecoder, error) {
	if s.Kind != MediaKindAudio || s.Codec != CodecPCM {
		return nil, fmt.Errorf("%w: stream %d codec %q", ErrDecoderInit, s.Index, s.Codec)
	}
	return &rawAudioDecoder{}, nil
}

func (c *rawContainer) Close() error {
	c.closed = true
	c.buf = nil
	return nil
}

// rawVideoDecoder splits rawvideo payloads into frames that alias the packet.
type rawVideoDecoder struct {
	pending  []VideoFrame
	next     int
	draining bool
}

func (d *rawVideoDecoder) SendPacket(pkt *Packet) error {
	if d.draining {
		return io.EOF
	}
	if pkt == nil {
		d.draining = true
		return nil
	}
	frames, err := parseRawVideo(pkt.Data, pkt.PTS)
	if err != nil {
		return fmt.Errorf("rawvideo: %w", err)
	}
	d.pending = append(d.pending[:0], frames...)
	d.next = 0
	return nil
}

func (d *rawVideoDecoder) ReceiveFrame(f *VideoFrame) error {
	if d.next < len(d.pending) {
		*f = d.pending[d.next]
		d.next++
		return nil
	}
	if d.draining {
		return io.EOF
	}
	return ErrAgain
}

func (d *rawVideoDecoder) Close() error {
	d.pending = nil
	return nil
}

func parseRawVideo(data []byte, pts int64) ([]VideoFrame, error) {
	if len(data) < 1 {
		return nil, errRawTruncated
	}
	count := int(data[0])
	data = data[1:]
	frames := make([]VideoFrame, 0, count)
	for i := 0; i < count; i++ {
		if len(data) < 9 {
			return nil, errRawTruncated
		}
		w := int(binary.BigEndian.Uint32(data[0:4]))
		h := int(binary.BigEndian.Uint32(data[4:8]))
		format := PixelFormat(data[8])
		data = data[9:]
		if w <= 0 || h <= 0 || w > rawMaxDimension || h > rawMaxDimension {
			return nil, fmt.Errorf("invalid frame size %dx%d", w, h)
		}
		planes := format.PlaneCount()
		if planes == 0 {
			return nil, fmt.Errorf("%w: %d", ErrUnsupportedPixelFormat, format)
		}
		f := VideoFrame{
			Data:   make([][]byte, planes),
			Stride: make([]int, planes),
			Width:  w,
			Height: h,
			Format: format,
			PTS:    pts,
		}
		for p := 0; p < planes; p++ {
			pw, ph := format.planeSize(p, w, h)
			size := pw * ph
			if len(data) < size {
				return nil, errRawTruncated
			}
			f.Data[p] = data[:size:size]
			f.Stride[p] = pw
			data = data[size:]
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// rawAudioDecoder yields one frame per pcm payload.
type rawAudioDecoder struct {
	frame    AudioFrame
	ready    bool
	draining bool
}

func (d *rawAudioDecoder) SendPacket(pkt *Packet) error {
	if d.draining {
		return io.EOF
	}
	if pkt == nil {
		d.draining = true
		return nil
	}
	if err := parsePCM(pkt.Data, pkt.PTS, &d.frame); err != nil {
		return fmt.Errorf("pcm: %w", err)
	}
	d.ready = true
	return nil
}

func (d *rawAudioDecoder) ReceiveFrame(f *AudioFrame) error {
	if d.ready {
		*f = d.frame
		d.ready = false
		return nil
	}
	if d.draining {
		return io.EOF
	}
	return ErrAgain
}

func (d *rawAudioDecoder) Close() error {
	d.frame = AudioFrame{}
	return nil
}

func parsePCM(data []byte, pts int64, f *AudioFrame) error {
	if len(data) < 10 {
		return errRawTruncated
	}
	format := SampleFormat(data[0])
	channels := int(data[1])
	rate := int(binary.BigEndian.Uint32(data[2:6]))
	samples := int(binary.BigEndian.Uint32(data[6:10]))
	data = data[10:]

	bps := format.BytesPerSample()
	if bps == 0 {
		return fmt.Errorf("%w: %d", ErrUnsupportedSampleFormat, format)
	}
	if channels <= 0 || channels > rawMaxChannels || rate <= 0 {
		return fmt.Errorf("invalid layout %d channels at %d Hz", channels, rate)
	}
	if len(data) < samples*channels*bps {
		return errRawTruncated
	}

	f.Format = format
	f.Channels = channels
	f.SampleRate = rate
	f.SampleCount = samples
	f.PTS = pts
	if format.IsPlanar() {
		planeSize := samples * bps
		f.Data = make([][]byte, channels)
		for c := 0; c < channels; c++ {
			f.Data[c] = data[c*planeSize : (c+1)*planeSize : (c+1)*planeSize]
		}
	} else {
		size := samples * channels * bps
		f.Data = [][]byte{data[:size:size]}
	}
	return nil
}
