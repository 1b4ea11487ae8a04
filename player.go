package avplay

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// DefaultIdleLimit is the number of consecutive empty pulls after which the
// audio consumption loop declares end of stream.
const DefaultIdleLimit = 10

// PlayerConfig configures a Player.
type PlayerConfig struct {
	Logger  zerolog.Logger
	Backend Backend // Ignored when Demuxer is set
	Demuxer Demuxer

	AudioSpec   AudioSpec   // Obtained device spec; see SetAudioSpec
	VideoFormat PixelFormat // Destination pixel format
	VideoWidth  int         // Destination width (0 = source)
	VideoHeight int         // Destination height (0 = source)
	PitchAlign  int         // Destination row alignment in bytes
	IdleLimit   int         // Empty pulls before a forced end of stream
	FIFOSize    int         // Initial output FIFO capacity in bytes
}

// DefaultPlayerConfig returns the configuration the player uses when fields
// are left zero.
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		Logger:      zerolog.Nop(),
		Backend:     BackendAuto,
		AudioSpec:   DefaultAudioSpec(),
		VideoFormat: PixelFormatRGB24,
		PitchAlign:  8,
		IdleLimit:   DefaultIdleLimit,
		FIFOSize:    64 * 1024,
	}
}

// PlayerStats is a snapshot of playback counters for the current session.
type PlayerStats struct {
	PacketsRead      uint64
	PacketsDiscarded uint64
	RuntimeErrors    uint64
	StarvationEnds   uint64
	FIFOBytes        int
	Video            VideoPipelineStats
	Audio            AudioPipelineStats
	Slot             SlotStats
}

// decodeGoal chooses when a decode cycle stops early.
type decodeGoal int

const (
	untilAudio decodeGoal = iota // audio bytes were queued
	untilVideo                   // a video frame was published
)

// closerStack releases resources in reverse acquisition order.
type closerStack []func() error

func (s *closerStack) push(f func() error) { *s = append(*s, f) }

func (s *closerStack) close() error {
	var errs []error
	for i := len(*s) - 1; i >= 0; i-- {
		if err := (*s)[i](); err != nil {
			errs = append(errs, err)
		}
	}
	*s = nil
	return errors.Join(errs...)
}

// Player turns a seekable byte stream into pull-driven PCM and a polled
// latest video frame.
//
// Two call paths may run concurrently: the audio device thread (FillAudio,
// Pull) and the render thread (HasFrame, DrawFrame). Only the frame slot, the
// end-of-stream flag and the presentation clock are shared between them.
type Player struct {
	cfg PlayerConfig
	log zerolog.Logger

	// mu serializes packet consumption and session changes.
	mu        sync.Mutex
	spec      AudioSpec
	closers   closerStack
	container Container
	video     *VideoPipeline
	audio     *AudioPipeline
	vstream   StreamInfo
	astream   StreamInfo
	fifo      *ByteFIFO
	pkt       Packet
	idle      int

	loaded   atomic.Bool
	hasAudio atomic.Bool
	eos      atomic.Bool
	clock    presentationClock
	slot     FrameSlot

	// Render thread only.
	surfW, surfH int
	surfFmt      PixelFormat

	statsMu sync.Mutex
	stats   PlayerStats
}

// NewPlayer returns a closed player.
func NewPlayer(cfg PlayerConfig) *Player {
	def := DefaultPlayerConfig()
	if cfg.VideoFormat == PixelFormatUnknown {
		cfg.VideoFormat = def.VideoFormat
	}
	if cfg.PitchAlign <= 0 {
		cfg.PitchAlign = def.PitchAlign
	}
	if cfg.IdleLimit <= 0 {
		cfg.IdleLimit = def.IdleLimit
	}
	if cfg.FIFOSize <= 0 {
		cfg.FIFOSize = def.FIFOSize
	}
	if !cfg.AudioSpec.Valid() {
		cfg.AudioSpec = def.AudioSpec
	}
	return &Player{
		cfg:  cfg,
		log:  cfg.Logger.With().Str("component", "player").Logger(),
		spec: cfg.AudioSpec,
		fifo: NewByteFIFO(cfg.FIFOSize),
	}
}

// SetAudioSpec records the spec obtained from the audio device. It applies
// to the next Load.
func (p *Player) SetAudioSpec(spec AudioSpec) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.spec = spec
}

// AudioSpec returns the device spec used for the next Load.
func (p *Player) AudioSpec() AudioSpec {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.spec
}

func (p *Player) demuxer() (Demuxer, error) {
	if p.cfg.Demuxer != nil {
		return p.cfg.Demuxer, nil
	}
	return NewDemuxer(p.cfg.Backend)
}

// Load closes the current session and opens rs. When takeOwnership is true
// rs is closed with the session if it implements io.Closer. On failure the
// player is left closed and every partially acquired resource is released.
func (p *Player) Load(rs io.ReadSeeker, takeOwnership bool) (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cerr := p.teardownLocked(); cerr != nil {
		p.log.Warn().Err(cerr).Msg("close previous session")
	}
	p.eos.Store(false)
	p.idle = 0

	var closers closerStack
	stage := "open"
	defer func() {
		if err == nil {
			return
		}
		if cerr := closers.close(); cerr != nil {
			p.log.Warn().Err(cerr).Msg("release partial load")
		}
		p.log.Warn().Err(err).Str("stage", stage).Msg("load failed")
	}()

	src := NewSource(rs, takeOwnership)
	closers.push(src.Close)

	d, err := p.demuxer()
	if err != nil {
		return loadError(ErrOpen, "select backend", err)
	}
	c, err := d.Open(src)
	if err != nil {
		return loadError(ErrOpen, "open container", err)
	}
	closers.push(c.Close)

	stage = "video"
	vs, ok := c.BestStream(MediaKindVideo)
	if !ok {
		return ErrNoVideoStream
	}
	vdec, err := c.NewVideoDecoder(vs)
	if err != nil {
		return loadError(ErrDecoderInit, "video decoder", err)
	}
	closers.push(vdec.Close)
	video, err := NewVideoPipeline(vdec, vs, &p.slot, VideoPipelineConfig{
		Width:      p.cfg.VideoWidth,
		Height:     p.cfg.VideoHeight,
		Format:     p.cfg.VideoFormat,
		PitchAlign: p.cfg.PitchAlign,
		Logger:     p.cfg.Logger,
	})
	if err != nil {
		return loadError(ErrConversion, "video converter", err)
	}

	var audio *AudioPipeline
	as, hasAudio := c.BestStream(MediaKindAudio)
	if hasAudio {
		stage = "audio"
		adec, err := c.NewAudioDecoder(as)
		if err != nil {
			return loadError(ErrDecoderInit, "audio decoder", err)
		}
		closers.push(adec.Close)
		audio, err = newAudioPipeline(adec, as, p.fifo, &p.clock, AudioPipelineConfig{
			Device: p.spec,
			Logger: p.cfg.Logger,
		})
		if err != nil {
			return loadError(ErrConversion, "audio converter", err)
		}
	}

	p.closers = closers
	p.container = c
	p.video = video
	p.audio = audio
	p.vstream = vs
	p.astream = as
	p.hasAudio.Store(hasAudio)
	p.loaded.Store(true)

	ev := p.log.Info().
		Str("backend", d.Backend().String()).
		Str("video_codec", vs.Codec).
		Int("width", vs.Width).
		Int("height", vs.Height).
		Bool("audio", hasAudio)
	if hasAudio {
		ev = ev.Str("audio_codec", as.Codec).Stringer("device", p.spec)
	}
	ev.Msg("media loaded")
	return nil
}

// Close tears down the session. It is idempotent and safe before any Load.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.teardownLocked()
}

func (p *Player) teardownLocked() error {
	err := p.closers.close()
	p.container = nil
	p.video = nil
	p.audio = nil
	p.vstream = StreamInfo{}
	p.astream = StreamInfo{}
	p.fifo.Reset()
	p.pkt.reset()
	p.idle = 0
	p.slot.Reset()
	p.clock.reset()
	p.loaded.Store(false)
	p.hasAudio.Store(false)

	p.statsMu.Lock()
	p.stats = PlayerStats{}
	p.statsMu.Unlock()
	return err
}

// Loaded reports whether a session is open.
func (p *Player) Loaded() bool { return p.loaded.Load() }

// AtEnd reports end of stream for the current session, whether the demuxer
// was exhausted or the starvation guard fired.
func (p *Player) AtEnd() bool { return p.eos.Load() }

// HasAudio reports whether an audio stream was selected at load.
func (p *Player) HasAudio() bool { return p.hasAudio.Load() }

// VideoStream returns the selected video stream.
func (p *Player) VideoStream() (StreamInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.vstream, p.video != nil
}

// AudioStream returns the selected audio stream.
func (p *Player) AudioStream() (StreamInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.astream, p.audio != nil
}

// Time returns the presentation time in seconds derived from the last audio
// packet, or false when it is unknown.
func (p *Player) Time() (float64, bool) { return p.clock.get() }

// Pull copies up to len(buf) bytes of device-format PCM into buf. When the
// FIFO is empty it demuxes and decodes until audio bytes are queued, a decode
// error occurs or the container is exhausted. It may return 0. Without an
// audio stream it returns 0 and never demuxes; Advance drives those sources.
func (p *Player) Pull(buf []byte) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pullLocked(buf)
}

func (p *Player) pullLocked(buf []byte) int {
	if !p.loaded.Load() || p.audio == nil {
		return 0
	}
	if n, _ := p.fifo.Read(buf); n > 0 {
		return n
	}
	if p.eos.Load() {
		return 0
	}
	p.decodeLocked(context.Background(), untilAudio)
	n, _ := p.fifo.Read(buf)
	return n
}

// pullTracked is one step of the consumption loop: a Pull plus idle
// accounting. The idle counter survives across device callbacks.
func (p *Player) pullTracked(buf []byte) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.pullLocked(buf)
	if n > 0 {
		p.idle = 0
		return n
	}
	p.idle++
	if p.idle >= p.cfg.IdleLimit && !p.eos.Load() {
		p.log.Warn().Int("idle_pulls", p.idle).Msg("audio starved, forcing end of stream")
		p.eos.Store(true)
		p.statsMu.Lock()
		p.stats.StarvationEnds++
		p.statsMu.Unlock()
	}
	return 0
}

// FillAudio is the audio device callback body. It fills buf until it is full
// or the stream has ended and the FIFO is drained, and returns the bytes
// written. The caller pads the remainder, typically with silence. Without a
// loaded session or without an audio stream it returns 0 immediately, so a
// device left running across sessions never consumes video-only sources.
//
// The idle counter lives on the Player and is reset only by a pull that
// yields bytes or by Load, never at the start of a callback. The starvation
// guard therefore fires after IdleLimit consecutive empty pulls whether they
// fall in one callback or several.
func (p *Player) FillAudio(buf []byte) int {
	filled := 0
	for filled < len(buf) {
		if !p.loaded.Load() || !p.hasAudio.Load() || (p.eos.Load() && p.buffered() == 0) {
			break
		}
		filled += p.pullTracked(buf[filled:])
	}
	return filled
}

func (p *Player) buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fifo.Len()
}

// Advance drives packet consumption for sources without audio: it decodes
// until one video frame is published, ctx is done or the container is
// exhausted. With an audio stream the device callback drives decoding and
// Advance does nothing. It reports whether playback continues.
func (p *Player) Advance(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded.Load() {
		return false
	}
	if p.eos.Load() {
		return false
	}
	if p.audio != nil {
		return true
	}
	p.decodeLocked(ctx, untilVideo)
	return !p.eos.Load()
}

// decodeLocked reads and dispatches packets until goal is met, a decode
// error aborts the cycle, ctx is done or the container is exhausted.
func (p *Player) decodeLocked(ctx context.Context, goal decodeGoal) {
	for {
		err := p.container.ReadPacket(&p.pkt)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.log.Warn().Err(err).Msg("read packet, treating as end of stream")
			}
			p.finishLocked()
			return
		}
		p.statsMu.Lock()
		p.stats.PacketsRead++
		p.statsMu.Unlock()

		switch {
		case p.audio != nil && p.pkt.StreamIndex == p.astream.Index:
			n, err := p.audio.DecodePacket(&p.pkt)
			if err != nil {
				p.runtimeError(err)
				return
			}
			if n > 0 && goal == untilAudio {
				return
			}
		case p.pkt.StreamIndex == p.vstream.Index:
			n, err := p.video.DecodePacket(&p.pkt)
			if err != nil {
				p.runtimeError(err)
				return
			}
			if n > 0 && goal == untilVideo {
				return
			}
		default:
			p.statsMu.Lock()
			p.stats.PacketsDiscarded++
			p.statsMu.Unlock()
		}

		if ctx.Err() != nil {
			return
		}
	}
}

// finishLocked drains both decoders, flushes the audio converter into the
// FIFO and sets end of stream.
func (p *Player) finishLocked() {
	if _, err := p.video.Drain(); err != nil {
		p.runtimeError(err)
	}
	if p.audio != nil {
		if _, err := p.audio.Drain(); err != nil {
			p.runtimeError(err)
		}
	}
	p.eos.Store(true)
	p.log.Debug().Int("fifo_bytes", p.fifo.Len()).Msg("end of stream")
}

func (p *Player) runtimeError(err error) {
	p.statsMu.Lock()
	p.stats.RuntimeErrors++
	p.statsMu.Unlock()
	p.log.Warn().
		Err(err).
		Int("stream", p.pkt.StreamIndex).
		Int64("pts", p.pkt.PTS).
		Msg("decode cycle aborted")
}

// HasFrame reports whether a converted frame is waiting to be drawn.
func (p *Player) HasFrame() bool { return p.slot.Ready() }

// DrawFrame copies the waiting frame, if any, into s and presents s. The
// surface is reconfigured whenever the frame geometry changes. Present is
// called even when no new frame was waiting. Without a loaded session it
// returns ErrNotLoaded and leaves s untouched.
func (p *Player) DrawFrame(s Surface) error {
	if !p.loaded.Load() {
		return ErrNotLoaded
	}
	_, err := p.slot.Consume(func(buf *FrameBuffer) error {
		if buf.Width != p.surfW || buf.Height != p.surfH || buf.Format != p.surfFmt {
			if err := s.Configure(buf.Width, buf.Height, buf.Format); err != nil {
				return err
			}
			p.surfW, p.surfH, p.surfFmt = buf.Width, buf.Height, buf.Format
		}
		return s.Update(buf.Pixels, buf.Pitch)
	})
	if err != nil {
		return err
	}
	return s.Present()
}

// Stats returns a snapshot of the session counters.
func (p *Player) Stats() PlayerStats {
	p.mu.Lock()
	video, audio, fifo := p.video, p.audio, p.fifo.Len()
	p.mu.Unlock()

	p.statsMu.Lock()
	s := p.stats
	p.statsMu.Unlock()
	s.FIFOBytes = fifo
	if video != nil {
		s.Video = video.Stats()
	}
	if audio != nil {
		s.Audio = audio.Stats()
	}
	s.Slot = p.slot.Stats()
	return s
}
