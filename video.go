package avplay

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// VideoPipelineConfig configures a video decode pipeline.
type VideoPipelineConfig struct {
	Width      int         // Destination width (0 = stream width)
	Height     int         // Destination height (0 = stream height)
	Format     PixelFormat // Destination packed format
	PitchAlign int         // Row alignment of the destination buffer
	Logger     zerolog.Logger
}

// VideoPipelineStats tracks video decode statistics.
type VideoPipelineStats struct {
	PacketsDecoded  uint64
	FramesDecoded   uint64
	FramesPublished uint64
	FramesDropped   uint64 // decoded but overwritten within the same packet
	ConverterBuilds uint64
	Errors          uint64
}

// VideoPipeline handles: Packet -> VideoDecoder -> PixelConverter -> FrameSlot.
// The destination geometry is fixed when the pipeline is created.
type VideoPipeline struct {
	dec    VideoDecoder
	stream StreamInfo
	slot   *FrameSlot
	conv   *PixelConverter
	log    zerolog.Logger

	dstW, dstH int
	dstFmt     PixelFormat

	frame VideoFrame

	statsMu sync.Mutex
	stats   VideoPipelineStats
}

// NewVideoPipeline builds the initial converter from the stream parameters.
// A converter that cannot be built is a load-time ErrConversion.
func NewVideoPipeline(dec VideoDecoder, stream StreamInfo, slot *FrameSlot, cfg VideoPipelineConfig) (*VideoPipeline, error) {
	v := &VideoPipeline{
		dec:    dec,
		stream: stream,
		slot:   slot,
		conv:   NewPixelConverter(cfg.PitchAlign),
		log:    cfg.Logger.With().Str("component", "video").Int("stream", stream.Index).Logger(),
		dstW:   cfg.Width,
		dstH:   cfg.Height,
		dstFmt: cfg.Format,
	}
	if v.dstW <= 0 || v.dstH <= 0 {
		v.dstW, v.dstH = stream.Width, stream.Height
	}
	if v.dstFmt == PixelFormatUnknown {
		v.dstFmt = PixelFormatRGB24
	}
	if _, err := v.conv.Ensure(stream.Width, stream.Height, stream.PixelFormat, v.dstW, v.dstH, v.dstFmt); err != nil {
		return nil, err
	}
	v.log.Debug().
		Int("width", v.dstW).
		Int("height", v.dstH).
		Stringer("format", v.dstFmt).
		Msg("video pipeline ready")
	return v, nil
}

// DecodePacket feeds pkt to the decoder and publishes every frame it yields.
// Only the last frame of the packet survives in the slot. Failures are
// ErrRuntimeDecode and leave the pipeline usable.
func (v *VideoPipeline) DecodePacket(pkt *Packet) (int, error) {
	v.statsMu.Lock()
	v.stats.PacketsDecoded++
	v.statsMu.Unlock()

	if err := v.dec.SendPacket(pkt); err != nil && !errors.Is(err, io.EOF) {
		v.countError()
		return 0, fmt.Errorf("%w: video send: %w", ErrRuntimeDecode, err)
	}
	return v.receive()
}

// Drain flushes the decoder and publishes its remaining frames.
func (v *VideoPipeline) Drain() (int, error) {
	if err := v.dec.SendPacket(nil); err != nil && !errors.Is(err, io.EOF) {
		v.countError()
		return 0, fmt.Errorf("%w: video drain: %w", ErrRuntimeDecode, err)
	}
	return v.receive()
}

func (v *VideoPipeline) receive() (int, error) {
	published := 0
	for {
		err := v.dec.ReceiveFrame(&v.frame)
		if errors.Is(err, ErrAgain) || errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			v.countError()
			return published, fmt.Errorf("%w: video receive: %w", ErrRuntimeDecode, err)
		}
		v.statsMu.Lock()
		v.stats.FramesDecoded++
		v.statsMu.Unlock()

		if err := v.publish(&v.frame); err != nil {
			v.countError()
			return published, fmt.Errorf("%w: %w", ErrRuntimeDecode, err)
		}
		published++
	}

	v.statsMu.Lock()
	v.stats.FramesPublished += uint64(published)
	if published > 1 {
		v.stats.FramesDropped += uint64(published - 1)
	}
	v.statsMu.Unlock()
	return published, nil
}

// publish rebuilds the converter if the frame geometry changed, then converts
// into the slot. Both happen under the slot lock.
func (v *VideoPipeline) publish(f *VideoFrame) error {
	return v.slot.Publish(func(buf *FrameBuffer) error {
		old := v.conv.key
		rebuilt, err := v.conv.Ensure(f.Width, f.Height, f.Format, v.dstW, v.dstH, v.dstFmt)
		if err != nil {
			return err
		}
		if rebuilt {
			v.log.Debug().Stringer("from", old).Stringer("to", v.conv.key).Msg("pixel converter rebuilt")
		}
		return v.conv.Convert(f, buf)
	})
}

func (v *VideoPipeline) countError() {
	v.statsMu.Lock()
	v.stats.Errors++
	v.statsMu.Unlock()
}

// Stats returns a snapshot of the pipeline counters.
func (v *VideoPipeline) Stats() VideoPipelineStats {
	v.statsMu.Lock()
	s := v.stats
	v.statsMu.Unlock()
	v.slot.mu.Lock()
	s.ConverterBuilds = v.conv.Builds()
	v.slot.mu.Unlock()
	return s
}

// Close releases the decoder.
func (v *VideoPipeline) Close() error {
	return v.dec.Close()
}
