package avplay

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
)

type clipBuilder struct {
	t   *testing.T
	buf bytes.Buffer
	m   *RawMuxer
}

func newClip(t *testing.T) *clipBuilder {
	c := &clipBuilder{t: t}
	c.m = NewRawMuxer(&c.buf)
	return c
}

func (c *clipBuilder) videoStream(w, h int) int {
	c.t.Helper()
	s, err := c.m.AddVideoStream(w, h, PixelFormatI420, Rational{1, 25})
	if err != nil {
		c.t.Fatal(err)
	}
	return s
}

func (c *clipBuilder) audioStream(spec AudioSpec) int {
	c.t.Helper()
	s, err := c.m.AddAudioStream(spec, Rational{1, spec.SampleRate})
	if err != nil {
		c.t.Fatal(err)
	}
	return s
}

func (c *clipBuilder) video(stream int, pts int64, frames ...*VideoFrame) {
	c.t.Helper()
	if err := c.m.WriteVideo(stream, pts, frames...); err != nil {
		c.t.Fatal(err)
	}
}

func (c *clipBuilder) audio(stream int, pts int64, f *AudioFrame) {
	c.t.Helper()
	if err := c.m.WriteAudio(stream, pts, f); err != nil {
		c.t.Fatal(err)
	}
}

func (c *clipBuilder) corrupt(stream int, pts int64) {
	c.t.Helper()
	if err := c.m.WritePacket(stream, pts, []byte{1}); err != nil {
		c.t.Fatal(err)
	}
}

func (c *clipBuilder) reader() *bytes.Reader {
	c.t.Helper()
	if err := c.m.Close(); err != nil {
		c.t.Fatal(err)
	}
	return bytes.NewReader(c.buf.Bytes())
}

// constAudio builds an S16 or S16P frame holding v in every sample.
func constAudio(spec AudioSpec, samples int, v int16) *AudioFrame {
	f := &AudioFrame{SampleCount: samples, Format: spec.Format, SampleRate: spec.SampleRate, Channels: spec.Channels}
	vals := make([]int16, samples)
	for i := range vals {
		vals[i] = v
	}
	if spec.Format.IsPlanar() {
		for c := 0; c < spec.Channels; c++ {
			f.Data = append(f.Data, s16(vals...))
		}
		return f
	}
	all := make([]int16, samples*spec.Channels)
	for i := range all {
		all[i] = v
	}
	f.Data = [][]byte{s16(all...)}
	return f
}

func newTestPlayer(t *testing.T, mutate func(*PlayerConfig)) *Player {
	t.Helper()
	cfg := DefaultPlayerConfig()
	cfg.Backend = BackendRaw
	if mutate != nil {
		mutate(&cfg)
	}
	p := NewPlayer(cfg)
	t.Cleanup(func() { p.Close() })
	return p
}

// drainAudio runs the device callback until the stream ends and returns
// every byte produced.
func drainAudio(t *testing.T, p *Player, chunk int) []byte {
	t.Helper()
	var out []byte
	buf := make([]byte, chunk)
	for i := 0; i < 100000; i++ {
		n := p.FillAudio(buf)
		out = append(out, buf[:n]...)
		if n < len(buf) {
			return out
		}
	}
	t.Fatal("audio never ended")
	return nil
}

func TestPlayer_VideoOnly(t *testing.T) {
	c := newClip(t)
	vs := c.videoStream(16, 16)
	for i := 0; i < 3; i++ {
		c.video(vs, int64(i), solidI420(16, 16, 235, 128, 128))
	}

	p := newTestPlayer(t, nil)
	if err := p.Load(c.reader(), false); err != nil {
		t.Fatal(err)
	}
	if p.HasAudio() {
		t.Fatal("video-only clip reported audio")
	}
	if p.HasFrame() {
		t.Error("frame ready before any decode")
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if !p.Advance(ctx) {
			t.Fatalf("Advance %d ended playback early", i)
		}
		if !p.HasFrame() {
			t.Fatalf("no frame after Advance %d", i)
		}
		if p.AtEnd() {
			t.Fatalf("AtEnd before the demuxer was exhausted (Advance %d)", i)
		}
		if err := p.DrawFrame(&MemorySurface{}); err != nil {
			t.Fatal(err)
		}
	}
	if p.Advance(ctx) {
		t.Error("Advance past the last packet reported playback continues")
	}
	if !p.AtEnd() {
		t.Error("AtEnd false after demuxer exhaustion")
	}

	st := p.Stats()
	if st.Audio != (AudioPipelineStats{}) || st.FIFOBytes != 0 {
		t.Errorf("audio path touched in video-only playback: %+v", st.Audio)
	}
	if st.Video.FramesPublished != 3 {
		t.Errorf("FramesPublished = %d, want 3", st.Video.FramesPublished)
	}
	if _, ok := p.Time(); ok {
		t.Error("presentation time known without audio")
	}
}

func TestPlayer_VideoOnlyIgnoresAudioCallback(t *testing.T) {
	c := newClip(t)
	vs := c.videoStream(8, 8)
	for i := 0; i < 5; i++ {
		c.video(vs, int64(i), solidI420(8, 8, byte(16+i), 128, 128))
	}

	p := newTestPlayer(t, nil)
	if err := p.Load(c.reader(), false); err != nil {
		t.Fatal(err)
	}

	// A device left running between sessions keeps calling back.
	buf := make([]byte, 3840)
	for i := 0; i < 2*DefaultIdleLimit; i++ {
		if n := p.FillAudio(buf); n != 0 {
			t.Fatalf("FillAudio = %d on a video-only clip", n)
		}
	}
	if n := p.Pull(buf); n != 0 {
		t.Fatalf("Pull = %d on a video-only clip", n)
	}
	st := p.Stats()
	if st.PacketsRead != 0 || st.StarvationEnds != 0 || p.AtEnd() || p.HasFrame() {
		t.Fatalf("audio callback consumed video: %+v AtEnd=%v", st, p.AtEnd())
	}

	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		p.FillAudio(buf)
		if !p.Advance(ctx) {
			t.Fatalf("Advance %d ended playback early", i)
		}
		if got := p.Stats().Video.FramesPublished; got != uint64(i) {
			t.Fatalf("after Advance %d FramesPublished = %d", i, got)
		}
		if err := p.DrawFrame(&MemorySurface{}); err != nil {
			t.Fatal(err)
		}
	}
	if p.Advance(ctx) || !p.AtEnd() {
		t.Error("clip did not end after its last packet")
	}
	if st := p.Stats(); st.Slot.Overwritten != 0 {
		t.Errorf("frames overwritten before display: %d", st.Slot.Overwritten)
	}
}

func TestPlayer_DropLatestWins(t *testing.T) {
	c := newClip(t)
	vs := c.videoStream(8, 8)
	c.video(vs, 0,
		solidI420(8, 8, 16, 128, 128),
		solidI420(8, 8, 16, 128, 128),
		solidI420(8, 8, 235, 128, 128),
	)

	p := newTestPlayer(t, nil)
	if err := p.Load(c.reader(), false); err != nil {
		t.Fatal(err)
	}
	p.Advance(context.Background())

	surface := &MemorySurface{}
	if err := p.DrawFrame(surface); err != nil {
		t.Fatal(err)
	}
	frame, ok := surface.Snapshot()
	if !ok {
		t.Fatal("nothing drawn")
	}
	if frame.Pixels[0] != 255 {
		t.Errorf("presented pixel %d, want the last frame of the packet (255)", frame.Pixels[0])
	}
	st := p.Stats()
	if st.Video.FramesDecoded != 3 || st.Video.FramesPublished != 3 || st.Video.FramesDropped != 2 {
		t.Errorf("video stats = %+v", st.Video)
	}
	if st.Slot.Overwritten != 2 || st.Slot.Consumed != 1 {
		t.Errorf("slot stats = %+v", st.Slot)
	}
}

func TestPlayer_FixedDestinationSize(t *testing.T) {
	c := newClip(t)
	vs := c.videoStream(32, 32)
	c.video(vs, 0, solidI420(32, 32, 100, 128, 128))
	c.video(vs, 1, solidI420(100, 80, 100, 128, 128))
	c.video(vs, 2, solidI420(16, 8, 100, 128, 128))

	tests := []struct {
		name  string
		w, h  int
		wantW int
		wantH int
	}{
		{"source size", 0, 0, 32, 32},
		{"configured size", 64, 48, 64, 48},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPlayer(t, func(cfg *PlayerConfig) {
				cfg.VideoWidth, cfg.VideoHeight = tt.w, tt.h
				cfg.VideoFormat = PixelFormatRGBA32
			})
			if err := p.Load(bytes.NewReader(c.buf.Bytes()), false); err != nil {
				t.Fatal(err)
			}
			surface := &MemorySurface{}
			for p.Advance(context.Background()) {
				if err := p.DrawFrame(surface); err != nil {
					t.Fatal(err)
				}
				frame, _ := surface.Snapshot()
				if frame.Width != tt.wantW || frame.Height != tt.wantH || frame.Format != PixelFormatRGBA32 {
					t.Fatalf("presented %dx%d %s, want %dx%d RGBA32", frame.Width, frame.Height, frame.Format, tt.wantW, tt.wantH)
				}
			}
			configs, updates, presents := surface.Counts()
			if configs != 1 || updates != 3 || presents != 3 {
				t.Errorf("surface counts = %d/%d/%d, want 1/3/3", configs, updates, presents)
			}
			// Load builds once; each new source geometry rebuilds.
			if builds := p.Stats().Video.ConverterBuilds; builds != 3 {
				t.Errorf("ConverterBuilds = %d, want 3", builds)
			}
		})
	}
}

func TestPlayer_DrawFramePresentsWithoutNewFrame(t *testing.T) {
	c := newClip(t)
	vs := c.videoStream(8, 8)
	c.video(vs, 0, solidI420(8, 8, 16, 128, 128))

	p := newTestPlayer(t, nil)
	if err := p.Load(c.reader(), false); err != nil {
		t.Fatal(err)
	}
	p.Advance(context.Background())

	surface := &MemorySurface{}
	p.DrawFrame(surface)
	p.DrawFrame(surface)
	if _, updates, presents := surface.Counts(); updates != 1 || presents != 2 {
		t.Errorf("updates %d presents %d, want 1 and 2", updates, presents)
	}
}

func TestPlayer_RuntimeErrorIsNotFatal(t *testing.T) {
	c := newClip(t)
	vs := c.videoStream(8, 8)
	c.video(vs, 0, solidI420(8, 8, 16, 128, 128))
	c.corrupt(vs, 1)
	c.video(vs, 2, solidI420(8, 8, 235, 128, 128))

	p := newTestPlayer(t, nil)
	if err := p.Load(c.reader(), false); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for p.Advance(ctx) {
	}
	st := p.Stats()
	if st.RuntimeErrors != 1 {
		t.Errorf("RuntimeErrors = %d, want 1", st.RuntimeErrors)
	}
	if st.Video.FramesPublished != 2 {
		t.Errorf("FramesPublished = %d, want 2", st.Video.FramesPublished)
	}
}

func TestPlayer_AudioFormatChange(t *testing.T) {
	device := AudioSpec{SampleFormatS16, 48000, 2}
	low := AudioSpec{SampleFormatS16P, 24000, 2}
	high := AudioSpec{SampleFormatS16P, 48000, 2}

	c := newClip(t)
	vs := c.videoStream(8, 8)
	as := c.audioStream(low)
	c.video(vs, 0, solidI420(8, 8, 16, 128, 128))
	for i := 0; i < 4; i++ {
		c.audio(as, int64(i*240), constAudio(low, 240, 8192))
	}
	for i := 0; i < 4; i++ {
		c.audio(as, int64(i*480), constAudio(high, 480, 8192))
	}

	p := newTestPlayer(t, func(cfg *PlayerConfig) { cfg.AudioSpec = device })
	if err := p.Load(c.reader(), false); err != nil {
		t.Fatal(err)
	}
	if !p.HasAudio() {
		t.Fatal("audio stream not selected")
	}

	out := drainAudio(t, p, 1000)
	// 960 samples at 24 kHz double to 1920, then 1920 pass through.
	if want := (1920 + 1920) * device.BytesPerFrame(); len(out) != want {
		t.Errorf("produced %d bytes, want %d", len(out), want)
	}
	for i, v := range readS16(out) {
		if v != 8192 {
			t.Fatalf("sample %d = %d, want 8192", i, v)
		}
	}
	if !p.AtEnd() {
		t.Error("AtEnd false after the FIFO drained")
	}

	st := p.Stats()
	if st.Audio.ResamplerBuilds != 2 || st.Audio.ConverterBuilds != 2 {
		t.Errorf("rebuilds resampler=%d converter=%d, want 2 and 2", st.Audio.ResamplerBuilds, st.Audio.ConverterBuilds)
	}
	if sec, ok := p.Time(); !ok || sec <= 0 {
		t.Errorf("Time() = %v, %v", sec, ok)
	}
}

func TestPlayer_AllSampleLayouts(t *testing.T) {
	formats := []SampleFormat{
		SampleFormatU8, SampleFormatS16, SampleFormatS32, SampleFormatF32,
		SampleFormatU8P, SampleFormatS16P, SampleFormatS32P, SampleFormatF32P,
	}
	const channels, samples = 3, 50

	for _, format := range formats {
		t.Run(format.String(), func(t *testing.T) {
			spec := AudioSpec{format, 44100, channels}
			bps := format.BytesPerSample()

			// Every byte of channel c, sample s is c*64+s.
			f := &AudioFrame{SampleCount: samples, Format: format, SampleRate: 44100, Channels: channels}
			want := make([]byte, 0, samples*channels*bps)
			for s := 0; s < samples; s++ {
				for c := 0; c < channels; c++ {
					for b := 0; b < bps; b++ {
						want = append(want, byte(c*64+s))
					}
				}
			}
			if format.IsPlanar() {
				for c := 0; c < channels; c++ {
					plane := make([]byte, 0, samples*bps)
					for s := 0; s < samples; s++ {
						for b := 0; b < bps; b++ {
							plane = append(plane, byte(c*64+s))
						}
					}
					f.Data = append(f.Data, plane)
				}
			} else {
				f.Data = [][]byte{want}
			}

			c := newClip(t)
			vs := c.videoStream(8, 8)
			as := c.audioStream(spec)
			c.video(vs, 0, solidI420(8, 8, 16, 128, 128))
			c.audio(as, 0, f)

			p := newTestPlayer(t, func(cfg *PlayerConfig) {
				cfg.AudioSpec = AudioSpec{format.Packed(), 44100, channels}
			})
			if err := p.Load(c.reader(), false); err != nil {
				t.Fatal(err)
			}
			out := drainAudio(t, p, 256)
			if len(out) != channels*bps*samples {
				t.Fatalf("got %d bytes, want %d", len(out), channels*bps*samples)
			}
			if !bytes.Equal(out, want) {
				t.Error("interleaved output differs from the source frame")
			}
		})
	}
}

func TestPlayer_StarvationGuard(t *testing.T) {
	spec := DefaultAudioSpec()
	c := newClip(t)
	vs := c.videoStream(8, 8)
	as := c.audioStream(spec)
	c.video(vs, 0, solidI420(8, 8, 16, 128, 128))
	for i := 0; i < 12; i++ {
		c.corrupt(as, int64(i))
	}
	c.audio(as, 12, constAudio(spec, 480, 1))

	p := newTestPlayer(t, func(cfg *PlayerConfig) { cfg.AudioSpec = spec })
	if err := p.Load(c.reader(), false); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 64)
	for i := 1; i <= DefaultIdleLimit; i++ {
		if n := p.pullTracked(buf); n != 0 {
			t.Fatalf("pull %d returned %d bytes", i, n)
		}
		if got, want := p.AtEnd(), i == DefaultIdleLimit; got != want {
			t.Fatalf("after pull %d AtEnd = %v, want %v", i, got, want)
		}
	}
	if n := p.FillAudio(buf); n != 0 {
		t.Errorf("FillAudio after starvation end = %d", n)
	}
	st := p.Stats()
	if st.StarvationEnds != 1 || st.RuntimeErrors != DefaultIdleLimit {
		t.Errorf("stats = %+v", st)
	}
}

func TestPlayer_IdleCounterResetsOnProgress(t *testing.T) {
	spec := DefaultAudioSpec()
	c := newClip(t)
	vs := c.videoStream(8, 8)
	as := c.audioStream(spec)
	c.video(vs, 0, solidI420(8, 8, 16, 128, 128))
	for round := 0; round < 3; round++ {
		for i := 0; i < DefaultIdleLimit-1; i++ {
			c.corrupt(as, 0)
		}
		c.audio(as, 0, constAudio(spec, 4, 1))
	}

	p := newTestPlayer(t, func(cfg *PlayerConfig) { cfg.AudioSpec = spec })
	if err := p.Load(c.reader(), false); err != nil {
		t.Fatal(err)
	}
	out := drainAudio(t, p, 1024)
	if len(out) != 3*4*spec.BytesPerFrame() {
		t.Errorf("got %d bytes, want %d", len(out), 3*4*spec.BytesPerFrame())
	}
	if st := p.Stats(); st.StarvationEnds != 0 {
		t.Errorf("StarvationEnds = %d, want 0", st.StarvationEnds)
	}
}

func TestPlayer_ReloadResetsState(t *testing.T) {
	spec := DefaultAudioSpec()
	build := func(v int16) *bytes.Reader {
		c := newClip(t)
		vs := c.videoStream(8, 8)
		as := c.audioStream(spec)
		c.video(vs, 0, solidI420(8, 8, 16, 128, 128))
		c.audio(as, 0, constAudio(spec, 480, v))
		return c.reader()
	}

	p := newTestPlayer(t, func(cfg *PlayerConfig) { cfg.AudioSpec = spec })
	if err := p.Load(build(1111), false); err != nil {
		t.Fatal(err)
	}
	if n := p.FillAudio(make([]byte, 16)); n != 16 {
		t.Fatalf("FillAudio = %d", n)
	}
	if !p.HasFrame() || p.Stats().FIFOBytes == 0 {
		t.Fatal("expected a pending frame and buffered audio before reload")
	}

	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := p.Load(build(2222), false); err != nil {
		t.Fatal(err)
	}
	if p.HasFrame() || p.AtEnd() {
		t.Errorf("after reload HasFrame=%v AtEnd=%v, want false/false", p.HasFrame(), p.AtEnd())
	}
	if st := p.Stats(); st.FIFOBytes != 0 || st.PacketsRead != 0 {
		t.Errorf("stale session stats after reload: %+v", st)
	}
	if _, ok := p.Time(); ok {
		t.Error("presentation time survived reload")
	}

	buf := make([]byte, 8)
	if n := p.FillAudio(buf); n != 8 {
		t.Fatalf("FillAudio = %d", n)
	}
	for _, v := range readS16(buf) {
		if v != 2222 {
			t.Fatalf("residual sample %d from previous session", v)
		}
	}

	drainAudio(t, p, 4096)
	if !p.AtEnd() {
		t.Fatal("second clip did not end")
	}
	if err := p.Load(build(3333), false); err != nil {
		t.Fatal(err)
	}
	if p.AtEnd() {
		t.Error("AtEnd survived a reload after end of stream")
	}
}

func TestPlayer_FillAudioStarvation(t *testing.T) {
	spec := DefaultAudioSpec()
	c := newClip(t)
	vs := c.videoStream(8, 8)
	as := c.audioStream(spec)
	c.video(vs, 0, solidI420(8, 8, 16, 128, 128))
	for i := 0; i < 12; i++ {
		c.corrupt(as, int64(i))
	}
	c.audio(as, 12, constAudio(spec, 480, 1))

	p := newTestPlayer(t, func(cfg *PlayerConfig) { cfg.AudioSpec = spec })
	if err := p.Load(c.reader(), false); err != nil {
		t.Fatal(err)
	}

	// Some empty pulls land before the device callback.
	buf := make([]byte, 64)
	for i := 0; i < DefaultIdleLimit-1; i++ {
		p.pullTracked(buf)
	}
	if p.AtEnd() {
		t.Fatal("guard fired early")
	}
	if n := p.FillAudio(buf); n != 0 {
		t.Errorf("FillAudio = %d", n)
	}
	st := p.Stats()
	if !p.AtEnd() || st.StarvationEnds != 1 || st.RuntimeErrors != DefaultIdleLimit {
		t.Errorf("AtEnd = %v, stats = %+v", p.AtEnd(), st)
	}
}

func TestPlayer_CloseBeforeLoad(t *testing.T) {
	p := NewPlayer(PlayerConfig{})
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if p.Loaded() || p.AtEnd() || p.HasFrame() {
		t.Error("fresh player reports a session")
	}
	if n := p.Pull(make([]byte, 8)); n != 0 {
		t.Errorf("Pull without session = %d", n)
	}
	if p.Advance(context.Background()) {
		t.Error("Advance without session reported playback")
	}
	surface := &MemorySurface{}
	if err := p.DrawFrame(surface); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("DrawFrame without session = %v, want ErrNotLoaded", err)
	}
	if c, u, pr := surface.Counts(); c+u+pr != 0 {
		t.Errorf("surface touched without session: %d %d %d", c, u, pr)
	}
}

// failingContainer injects decoder construction failures.
type failingContainer struct {
	Container
}

func (failingContainer) NewVideoDecoder(StreamInfo) (VideoDecoder, error) {
	return nil, errors.New("no hardware")
}

type failingDemuxer struct {
	RawDemuxer
}

func (d failingDemuxer) Open(src *Source) (Container, error) {
	c, err := d.RawDemuxer.Open(src)
	if err != nil {
		return nil, err
	}
	return failingContainer{c}, nil
}

func TestPlayer_LoadErrors(t *testing.T) {
	audioOnly := newClip(t)
	audioOnly.audioStream(DefaultAudioSpec())

	badPixels := newClip(t)
	badPixels.m.AddStream(StreamInfo{Kind: MediaKindVideo, Codec: CodecRawVideo, Width: 8, Height: 8, TimeBase: Rational{1, 25}})

	badSamples := newClip(t)
	badSamples.videoStream(8, 8)
	badSamples.m.AddStream(StreamInfo{Kind: MediaKindAudio, Codec: CodecPCM, SampleRate: 48000, Channels: 2, TimeBase: Rational{1, 48000}})

	foreign := newClip(t)
	foreign.m.AddStream(StreamInfo{Kind: MediaKindVideo, Codec: "h264", Width: 8, Height: 8})

	decoderFail := newClip(t)
	decoderFail.videoStream(8, 8)

	huge := newClip(t)
	huge.m.AddStream(StreamInfo{Kind: MediaKindVideo, Codec: CodecRawVideo, Width: 0x7fffffff, Height: 0x7fffffff, PixelFormat: PixelFormatI420, TimeBase: Rational{1, 25}})

	tests := []struct {
		name    string
		data    *bytes.Reader
		demuxer Demuxer
		want    error
	}{
		{"garbage", bytes.NewReader([]byte("definitely not media")), nil, ErrOpen},
		{"empty", bytes.NewReader(nil), nil, ErrOpen},
		{"no video stream", audioOnly.reader(), nil, ErrNoVideoStream},
		{"undecodable video", foreign.reader(), nil, ErrNoVideoStream},
		{"unsupported pixel format", badPixels.reader(), nil, ErrConversion},
		{"unsupported sample format", badSamples.reader(), nil, ErrConversion},
		{"decoder init", decoderFail.reader(), failingDemuxer{}, ErrDecoderInit},
		{"oversized video stream", huge.reader(), nil, ErrOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPlayer(t, func(cfg *PlayerConfig) { cfg.Demuxer = tt.demuxer })
			rs := &closeTracker{Reader: tt.data}
			err := p.Load(rs, true)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Load error = %v, want %v", err, tt.want)
			}
			if p.Loaded() {
				t.Error("player loaded after failure")
			}
			if rs.closed != 1 {
				t.Errorf("owned source closed %d times, want 1", rs.closed)
			}
		})
	}

	if !errors.Is(ErrNoVideoStream, ErrOpen) {
		t.Error("ErrNoVideoStream is not an ErrOpen")
	}
}

func TestPlayer_ConcurrentRenderAndAudio(t *testing.T) {
	clip, err := NewPatternClip(PatternClipConfig{Width: 32, Height: 24, Frames: 25, Pattern: PatternMovingBox})
	if err != nil {
		t.Fatal(err)
	}
	p := newTestPlayer(t, nil)
	if err := p.Load(clip, false); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		buf := make([]byte, 3840)
		for !p.AtEnd() || p.buffered() > 0 {
			p.FillAudio(buf)
		}
	}()
	surface := &MemorySurface{}
	go func() {
		defer wg.Done()
		for !p.AtEnd() {
			if p.HasFrame() {
				if err := p.DrawFrame(surface); err != nil {
					t.Error(err)
					return
				}
			}
		}
	}()
	wg.Wait()

	st := p.Stats()
	if st.Video.FramesPublished != 25 {
		t.Errorf("FramesPublished = %d, want 25", st.Video.FramesPublished)
	}
	// 1 s of 48 kHz stereo S16.
	if st.Audio.BytesQueued != 48000*4 {
		t.Errorf("BytesQueued = %d, want %d", st.Audio.BytesQueued, 48000*4)
	}
}
