package avplay

import (
	"bytes"
	"fmt"
	"io"
	"math"
)

// PatternType defines the video test pattern of a synthetic clip.
type PatternType int

const (
	PatternColorBars    PatternType = iota // SMPTE color bars
	PatternGradient                        // Horizontal gradient
	PatternCheckerboard                    // Checkerboard pattern
	PatternMovingBox                       // Moving box (animated)
	PatternNoise                           // Random noise (animated)
)

func (p PatternType) String() string {
	switch p {
	case PatternColorBars:
		return "ColorBars"
	case PatternGradient:
		return "Gradient"
	case PatternCheckerboard:
		return "Checkerboard"
	case PatternMovingBox:
		return "MovingBox"
	case PatternNoise:
		return "Noise"
	default:
		return "Unknown"
	}
}

// ParsePatternType maps a pattern name back to its PatternType.
func ParsePatternType(s string) (PatternType, error) {
	for p := PatternColorBars; p <= PatternNoise; p++ {
		if p.String() == s {
			return p, nil
		}
	}
	return PatternColorBars, fmt.Errorf("unknown pattern %q", s)
}

// ToneType defines the audio test signal of a synthetic clip.
type ToneType int

const (
	ToneSilence ToneType = iota
	ToneSine             // Sine wave at Frequency
	ToneSquare           // Square wave at Frequency
	ToneSweep            // Logarithmic sweep from 200 Hz to 2 kHz over the clip
	ToneNoise            // White noise
)

func (t ToneType) String() string {
	switch t {
	case ToneSilence:
		return "Silence"
	case ToneSine:
		return "Sine"
	case ToneSquare:
		return "Square"
	case ToneSweep:
		return "Sweep"
	case ToneNoise:
		return "Noise"
	default:
		return "Unknown"
	}
}

// PatternClipConfig configures a synthetic clip.
type PatternClipConfig struct {
	Width       int         // Frame width (default: 320)
	Height      int         // Frame height (default: 240)
	FPS         int         // Frames per second (default: 25)
	Frames      int         // Clip length in video frames (default: 50)
	Pattern     PatternType // Video pattern
	CheckerSize int         // Checkerboard square size (default: 16)

	NoAudio   bool      // Omit the audio stream
	Audio     AudioSpec // Audio layout, planar formats allowed (default: S16P/48000/2)
	Tone      ToneType  // Audio signal
	Frequency float64   // Tone frequency in Hz (default: 440)
	Amplitude float64   // Amplitude 0.0-1.0 (default: 0.5)
}

// DefaultPatternClipConfig returns a two second colour-bar clip with a 440 Hz tone.
func DefaultPatternClipConfig() PatternClipConfig {
	return PatternClipConfig{
		Width:       320,
		Height:      240,
		FPS:         25,
		Frames:      50,
		Pattern:     PatternColorBars,
		CheckerSize: 16,
		Audio:       AudioSpec{Format: SampleFormatS16P, SampleRate: 48000, Channels: 2},
		Tone:        ToneSine,
		Frequency:   440,
		Amplitude:   0.5,
	}
}

func (c *PatternClipConfig) applyDefaults() {
	def := DefaultPatternClipConfig()
	if c.Width <= 0 {
		c.Width = def.Width
	}
	if c.Height <= 0 {
		c.Height = def.Height
	}
	if c.FPS <= 0 {
		c.FPS = def.FPS
	}
	if c.Frames <= 0 {
		c.Frames = def.Frames
	}
	if c.CheckerSize <= 0 {
		c.CheckerSize = def.CheckerSize
	}
	if !c.Audio.Valid() {
		c.Audio = def.Audio
	}
	if c.Frequency <= 0 {
		c.Frequency = def.Frequency
	}
	if c.Amplitude <= 0 {
		c.Amplitude = def.Amplitude
	}
	c.Amplitude = min(c.Amplitude, 1)
}

// NewPatternClip renders a synthetic clip into memory and returns it as a
// seekable source for Player.Load.
func NewPatternClip(cfg PatternClipConfig) (*bytes.Reader, error) {
	var buf bytes.Buffer
	if err := WritePatternClip(&buf, cfg); err != nil {
		return nil, err
	}
	return bytes.NewReader(buf.Bytes()), nil
}

// WritePatternClip renders a synthetic clip as a raw container. Audio packets
// are interleaved ahead of the video frame they accompany.
func WritePatternClip(w io.Writer, cfg PatternClipConfig) error {
	cfg.applyDefaults()
	m := NewRawMuxer(w)
	vs, err := m.AddVideoStream(cfg.Width, cfg.Height, PixelFormatI420, Rational{1, cfg.FPS})
	if err != nil {
		return err
	}
	as := -1
	if !cfg.NoAudio {
		if as, err = m.AddAudioStream(cfg.Audio, Rational{1, cfg.Audio.SampleRate}); err != nil {
			return err
		}
	}

	g := newPatternGenerator(cfg)
	var audioPTS int64
	for i := 0; i < cfg.Frames; i++ {
		if as >= 0 {
			f := g.tone(i)
			if err := m.WriteAudio(as, audioPTS, f); err != nil {
				return err
			}
			audioPTS += int64(f.SampleCount)
		}
		if err := m.WriteVideo(vs, int64(i), g.picture(i)); err != nil {
			return err
		}
	}
	return m.Close()
}

// patternGenerator holds the reusable frame buffers of one clip.
type patternGenerator struct {
	cfg   PatternClipConfig
	video VideoFrame
	audio AudioFrame

	sampleCount  int
	total        int
	phase        float64
	rngState     uint64
	audioScratch []byte
}

func newPatternGenerator(cfg PatternClipConfig) *patternGenerator {
	g := &patternGenerator{cfg: cfg, rngState: 0x9E3779B97F4A7C15}
	w, h := cfg.Width, cfg.Height
	cw, ch := (w+1)/2, (h+1)/2
	g.video = VideoFrame{
		Data:   [][]byte{make([]byte, w*h), make([]byte, cw*ch), make([]byte, cw*ch)},
		Stride: []int{w, cw, cw},
		Width:  w,
		Height: h,
		Format: PixelFormatI420,
	}
	g.total = cfg.Frames * cfg.Audio.SampleRate / cfg.FPS
	return g
}

// SMPTE color bars (simplified 8-bar pattern)
var colorBarsRGB = [][3]uint8{
	{192, 192, 192}, // White (75%)
	{192, 192, 0},   // Yellow
	{0, 192, 192},   // Cyan
	{0, 192, 0},     // Green
	{192, 0, 192},   // Magenta
	{192, 0, 0},     // Red
	{0, 0, 192},     // Blue
	{16, 16, 16},    // Black
}

func (g *patternGenerator) picture(n int) *VideoFrame {
	f := &g.video
	f.PTS = int64(n)
	yp, up, vp := f.Data[0], f.Data[1], f.Data[2]
	w, h, cw := f.Width, f.Height, f.Stride[1]
	fill(up, 128)
	fill(vp, 128)

	switch g.cfg.Pattern {
	case PatternGradient:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				yp[y*w+x] = uint8(x * 255 / w)
			}
		}
	case PatternCheckerboard:
		size := g.cfg.CheckerSize
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				if ((x/size)+(y/size))%2 == 0 {
					yp[y*w+x] = 235
				} else {
					yp[y*w+x] = 16
				}
			}
		}
	case PatternNoise:
		for i := range yp {
			yp[i] = uint8(g.next())
		}
	case PatternMovingBox:
		fill(yp, 16)
		box := max(min(w, h)/4, 2)
		radius := float64(min(w, h)) / 4
		angle := float64(n) * 0.05
		bx := w/2 + int(radius*math.Cos(angle)) - box/2
		by := h/2 + int(radius*math.Sin(angle)) - box/2
		for y := max(by, 0); y < min(by+box, h); y++ {
			for x := max(bx, 0); x < min(bx+box, w); x++ {
				yp[y*w+x] = 235
			}
		}
	default:
		bar := max(w/8, 1)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				rgb := colorBarsRGB[min(x/bar, 7)]
				yv, u, v := rgbToYUV(rgb[0], rgb[1], rgb[2])
				yp[y*w+x] = yv
				if x%2 == 0 && y%2 == 0 {
					up[(y/2)*cw+x/2] = u
					vp[(y/2)*cw+x/2] = v
				}
			}
		}
	}
	return f
}

// tone renders the audio that accompanies video frame n. Sample counts are
// distributed so the clip lasts exactly Frames/FPS seconds.
func (g *patternGenerator) tone(n int) *AudioFrame {
	spec := g.cfg.Audio
	end := (n + 1) * spec.SampleRate / g.cfg.FPS
	count := end - g.sampleCount

	bps := spec.Format.BytesPerSample()
	size := count * spec.Channels * bps
	if cap(g.audioScratch) < size {
		g.audioScratch = make([]byte, size)
	}
	data := g.audioScratch[:size]

	f := &g.audio
	f.Format = spec.Format
	f.SampleRate = spec.SampleRate
	f.Channels = spec.Channels
	f.SampleCount = count
	f.PTS = int64(g.sampleCount)
	if spec.Format.IsPlanar() {
		f.Data = f.Data[:0]
		plane := count * bps
		for c := 0; c < spec.Channels; c++ {
			f.Data = append(f.Data, data[c*plane:(c+1)*plane])
		}
	} else {
		f.Data = append(f.Data[:0], data)
	}

	for s := 0; s < count; s++ {
		v := float32(g.sample() * g.cfg.Amplitude)
		for c := 0; c < spec.Channels; c++ {
			if spec.Format.IsPlanar() {
				writeSample(f.Data[c][s*bps:], spec.Format, v)
			} else {
				writeSample(data[(s*spec.Channels+c)*bps:], spec.Format, v)
			}
		}
		g.sampleCount++
	}
	return f
}

// sample returns the next signal value in [-1, 1].
func (g *patternGenerator) sample() float64 {
	rate := float64(g.cfg.Audio.SampleRate)
	freq := g.cfg.Frequency
	switch g.cfg.Tone {
	case ToneSilence:
		return 0
	case ToneNoise:
		return float64(g.next())/float64(^uint64(0))*2 - 1
	case ToneSweep:
		progress := float64(g.sampleCount) / float64(max(g.total, 1))
		freq = math.Exp(math.Log(200) + progress*(math.Log(2000)-math.Log(200)))
	}
	v := math.Sin(g.phase)
	g.phase += 2 * math.Pi * freq / rate
	if g.phase > 2*math.Pi {
		g.phase -= 2 * math.Pi
	}
	if g.cfg.Tone == ToneSquare {
		if v >= 0 {
			return 1
		}
		return -1
	}
	return v
}

// next advances the xorshift64 state.
func (g *patternGenerator) next() uint64 {
	g.rngState ^= g.rngState << 13
	g.rngState ^= g.rngState >> 7
	g.rngState ^= g.rngState << 17
	return g.rngState
}
