package avplay

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// AudioPipelineConfig configures an audio decode pipeline.
type AudioPipelineConfig struct {
	Device AudioSpec // Negotiated device layout
	Logger zerolog.Logger
}

// AudioPipelineStats tracks audio decode statistics.
type AudioPipelineStats struct {
	PacketsDecoded  uint64
	FramesDecoded   uint64
	BytesQueued     uint64
	ResamplerBuilds uint64
	ConverterBuilds uint64
	Errors          uint64
}

// presentationClock is written by the decoding thread and read by anyone.
type presentationClock struct {
	bits  atomic.Uint64
	known atomic.Bool
}

func (c *presentationClock) set(sec float64) {
	c.bits.Store(math.Float64bits(sec))
	c.known.Store(true)
}

func (c *presentationClock) markUnknown() { c.known.Store(false) }

func (c *presentationClock) get() (float64, bool) {
	if !c.known.Load() {
		return 0, false
	}
	return math.Float64frombits(c.bits.Load()), true
}

func (c *presentationClock) reset() {
	c.bits.Store(0)
	c.known.Store(false)
}

// AudioPipeline handles: Packet -> AudioDecoder -> Resampler (planar only) ->
// AudioConverter -> ByteFIFO.
type AudioPipeline struct {
	dec    AudioDecoder
	stream StreamInfo
	device AudioSpec
	fifo   *ByteFIFO
	clock  *presentationClock
	log    zerolog.Logger

	key       audioKey
	resampler *Resampler
	conv      *AudioConverter
	frame     AudioFrame

	statsMu sync.Mutex
	stats   AudioPipelineStats
}

// newAudioPipeline builds the converters for the stream's declared layout.
// An undecodable layout is a load-time ErrConversion.
func newAudioPipeline(dec AudioDecoder, stream StreamInfo, fifo *ByteFIFO, clock *presentationClock, cfg AudioPipelineConfig) (*AudioPipeline, error) {
	if !cfg.Device.Valid() || cfg.Device.Format.IsPlanar() {
		return nil, fmt.Errorf("%w: invalid device spec %s", ErrConversion, cfg.Device)
	}
	a := &AudioPipeline{
		dec:    dec,
		stream: stream,
		device: cfg.Device,
		fifo:   fifo,
		clock:  clock,
		log:    cfg.Logger.With().Str("component", "audio").Int("stream", stream.Index).Logger(),
	}
	key := audioKey{stream.SampleFormat, stream.SampleRate, stream.Channels}
	if _, err := a.rebuild(key, defaultFrameCapacity); err != nil {
		return nil, err
	}
	return a, nil
}

// rebuild flushes the previous converter into the FIFO, then replaces the
// resampler and converter for key. It returns the bytes the flush produced.
func (a *AudioPipeline) rebuild(key audioKey, capacity int) (int, error) {
	if key.format.BytesPerSample() == 0 {
		return 0, fmt.Errorf("%w: %w: %s", ErrConversion, ErrUnsupportedSampleFormat, key.format)
	}
	flushed := 0
	if a.conv != nil {
		n, err := a.conv.Flush(a.fifo)
		if err != nil {
			return n, err
		}
		flushed = n
	}

	var resampler *Resampler
	if key.format.IsPlanar() {
		r, err := NewResampler(key.format, key.rate, key.channels, max(capacity, defaultFrameCapacity))
		if err != nil {
			return flushed, err
		}
		resampler = r
	}
	packed := key.spec()
	if resampler != nil {
		packed = resampler.Output()
	}
	conv, err := NewAudioConverter(packed, a.device)
	if err != nil {
		return flushed, err
	}

	a.log.Debug().
		Stringer("from", a.key).
		Stringer("to", key).
		Stringer("device", a.device).
		Bool("planar", resampler != nil).
		Msg("audio converters rebuilt")

	a.key = key
	a.resampler = resampler
	a.conv = conv
	a.statsMu.Lock()
	if resampler != nil {
		a.stats.ResamplerBuilds++
	}
	a.stats.ConverterBuilds++
	a.stats.BytesQueued += uint64(flushed)
	a.statsMu.Unlock()
	return flushed, nil
}

// DecodePacket feeds pkt to the decoder and queues every decoded frame. It
// returns the number of bytes added to the FIFO.
func (a *AudioPipeline) DecodePacket(pkt *Packet) (int, error) {
	a.statsMu.Lock()
	a.stats.PacketsDecoded++
	a.statsMu.Unlock()

	if err := a.dec.SendPacket(pkt); err != nil && !errors.Is(err, io.EOF) {
		a.countError()
		return 0, fmt.Errorf("%w: audio send: %w", ErrRuntimeDecode, err)
	}
	if pkt.PTS != NoPTS {
		a.clock.set(a.stream.TimeBase.Seconds(pkt.PTS))
	} else {
		a.clock.markUnknown()
	}
	return a.receive()
}

// Drain flushes the decoder, queues its remaining frames and flushes the
// destination converter.
func (a *AudioPipeline) Drain() (int, error) {
	if err := a.dec.SendPacket(nil); err != nil && !errors.Is(err, io.EOF) {
		a.countError()
		return 0, fmt.Errorf("%w: audio drain: %w", ErrRuntimeDecode, err)
	}
	n, err := a.receive()
	m, ferr := a.conv.Flush(a.fifo)
	a.statsMu.Lock()
	a.stats.BytesQueued += uint64(m)
	a.statsMu.Unlock()
	if err == nil {
		err = ferr
	}
	return n + m, err
}

func (a *AudioPipeline) receive() (int, error) {
	produced := 0
	for {
		err := a.dec.ReceiveFrame(&a.frame)
		if errors.Is(err, ErrAgain) || errors.Is(err, io.EOF) {
			return produced, nil
		}
		if err != nil {
			a.countError()
			return produced, fmt.Errorf("%w: audio receive: %w", ErrRuntimeDecode, err)
		}
		n, err := a.queue(&a.frame)
		produced += n
		if err != nil {
			a.countError()
			return produced, fmt.Errorf("%w: %w", ErrRuntimeDecode, err)
		}
	}
}

func (a *AudioPipeline) queue(f *AudioFrame) (int, error) {
	a.statsMu.Lock()
	a.stats.FramesDecoded++
	a.statsMu.Unlock()

	produced := 0
	key := audioKey{f.Format, f.SampleRate, f.Channels}
	if key != a.key {
		n, err := a.rebuild(key, f.SampleCount)
		produced += n
		if err != nil {
			return produced, err
		}
	}

	var data []byte
	if a.resampler != nil {
		d, err := a.resampler.Interleave(f)
		if err != nil {
			return produced, err
		}
		data = d
	} else {
		size := f.Channels * f.Format.BytesPerSample() * f.SampleCount
		if len(f.Data) < 1 || len(f.Data[0]) < size {
			return produced, fmt.Errorf("%w: packed frame shorter than %d bytes", ErrConversion, size)
		}
		data = f.Data[0][:size]
	}

	n, err := a.conv.Put(data, a.fifo)
	produced += n
	a.statsMu.Lock()
	a.stats.BytesQueued += uint64(n)
	a.statsMu.Unlock()
	return produced, err
}

func (a *AudioPipeline) countError() {
	a.statsMu.Lock()
	a.stats.Errors++
	a.statsMu.Unlock()
}

// Stats returns a snapshot of the pipeline counters.
func (a *AudioPipeline) Stats() AudioPipelineStats {
	a.statsMu.Lock()
	defer a.statsMu.Unlock()
	return a.stats
}

// Close releases the decoder.
func (a *AudioPipeline) Close() error {
	return a.dec.Close()
}
