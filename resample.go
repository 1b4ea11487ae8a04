package avplay

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// audioKey identifies the decoded layout a Resampler or AudioConverter was
// built for.
type audioKey struct {
	format   SampleFormat
	rate     int
	channels int
}

func (k audioKey) spec() AudioSpec {
	return AudioSpec{Format: k.format, SampleRate: k.rate, Channels: k.channels}
}

func (k audioKey) String() string { return k.spec().String() }

// defaultFrameCapacity is the sample count the merge buffer is sized for
// before any frame has been seen.
const defaultFrameCapacity = 4096

// Resampler merges planar frames into their packed counterpart so the
// destination converter only ever sees interleaved PCM.
type Resampler struct {
	key audioKey
	bps int
	buf []byte
}

// NewResampler builds a resampler for a planar layout with room for capacity
// samples per channel.
func NewResampler(format SampleFormat, rate, channels, capacity int) (*Resampler, error) {
	if !format.IsPlanar() {
		return nil, fmt.Errorf("%w: %w: resampler input %s is not planar", ErrConversion, ErrUnsupportedSampleFormat, format)
	}
	if channels <= 0 || rate <= 0 {
		return nil, fmt.Errorf("%w: invalid layout %d channels at %d Hz", ErrConversion, channels, rate)
	}
	if capacity <= 0 {
		capacity = defaultFrameCapacity
	}
	bps := format.BytesPerSample()
	return &Resampler{
		key: audioKey{format, rate, channels},
		bps: bps,
		buf: make([]byte, channels*bps*capacity),
	}, nil
}

// Output returns the packed layout produced by Interleave.
func (r *Resampler) Output() AudioSpec {
	return AudioSpec{Format: r.key.format.Packed(), SampleRate: r.key.rate, Channels: r.key.channels}
}

// Interleave returns the frame as packed bytes. The result aliases an internal
// buffer that is reused by the next call.
func (r *Resampler) Interleave(f *AudioFrame) ([]byte, error) {
	if f.Format != r.key.format || f.SampleRate != r.key.rate || f.Channels != r.key.channels {
		return nil, fmt.Errorf("%w: frame %s does not match resampler %s", ErrConversion, f.Spec(), r.key)
	}
	if len(f.Data) < f.Channels {
		return nil, fmt.Errorf("%w: %d planes for %d channels", ErrConversion, len(f.Data), f.Channels)
	}
	ch, bps := r.key.channels, r.bps
	size := ch * bps * f.SampleCount
	if cap(r.buf) < size {
		r.buf = make([]byte, size)
	}
	out := r.buf[:size]
	frame := ch * bps
	for c := 0; c < ch; c++ {
		plane := f.Data[c]
		if len(plane) < f.SampleCount*bps {
			return nil, fmt.Errorf("%w: plane %d holds %d bytes, want %d", ErrConversion, c, len(plane), f.SampleCount*bps)
		}
		for s := 0; s < f.SampleCount; s++ {
			copy(out[s*frame+c*bps:s*frame+(c+1)*bps], plane[s*bps:(s+1)*bps])
		}
	}
	return out, nil
}

// AudioConverter adapts packed PCM to the device spec: sample format, channel
// count and sample rate. Matching specs pass bytes through untouched. Rate
// conversion is linear and keeps one sample period of history, which Flush
// releases.
type AudioConverter struct {
	src, dst    AudioSpec
	passthrough bool

	srcFrame, dstFrame int
	pending            []byte // partial source sample period

	// Rate conversion state, indexed in source sample periods.
	step      float64
	pos       float64
	hist      []float32 // history frames at destination channel count
	histLen   int
	samples   []float32
	resampled []float32
	out       []byte
	isResamp  bool
}

// NewAudioConverter returns a converter from src to dst. Both must be packed.
func NewAudioConverter(src, dst AudioSpec) (*AudioConverter, error) {
	if !src.Valid() || !dst.Valid() {
		return nil, fmt.Errorf("%w: invalid spec %s -> %s", ErrConversion, src, dst)
	}
	if src.Channels > rawMaxChannels || dst.Channels > rawMaxChannels {
		return nil, fmt.Errorf("%w: more than %d channels", ErrConversion, rawMaxChannels)
	}
	if src.Format.IsPlanar() || dst.Format.IsPlanar() {
		return nil, fmt.Errorf("%w: %w: converter needs packed formats, got %s -> %s", ErrConversion, ErrUnsupportedSampleFormat, src, dst)
	}
	return &AudioConverter{
		src:         src,
		dst:         dst,
		passthrough: src == dst,
		srcFrame:    src.BytesPerFrame(),
		dstFrame:    dst.BytesPerFrame(),
		step:        float64(src.SampleRate) / float64(dst.SampleRate),
		isResamp:    src.SampleRate != dst.SampleRate,
	}, nil
}

// Put converts p and writes the result to w. It returns the number of bytes
// written.
func (c *AudioConverter) Put(p []byte, w io.Writer) (int, error) {
	if c.passthrough {
		return w.Write(p)
	}
	if len(c.pending) > 0 {
		need := c.srcFrame - len(c.pending)
		if len(p) < need {
			c.pending = append(c.pending, p...)
			return 0, nil
		}
		c.pending = append(c.pending, p[:need]...)
		p = p[need:]
		head := c.pending
		c.pending = c.pending[:0]
		n, err := c.convert(head, w)
		if err != nil {
			return n, err
		}
		m, err := c.Put(p, w)
		return n + m, err
	}
	whole := len(p) / c.srcFrame * c.srcFrame
	if rest := p[whole:]; len(rest) > 0 {
		c.pending = append(c.pending[:0], rest...)
	}
	return c.convert(p[:whole], w)
}

func (c *AudioConverter) convert(p []byte, w io.Writer) (int, error) {
	frames := len(p) / c.srcFrame
	if frames == 0 {
		return 0, nil
	}
	ch := c.dst.Channels
	need := frames * ch
	if cap(c.samples) < need {
		c.samples = make([]float32, need)
	}
	c.samples = c.samples[:need]
	c.decode(p, frames)

	if !c.isResamp {
		return c.emit(c.samples, w)
	}

	// Prepend history so interpolation can straddle chunk boundaries.
	c.hist = append(c.hist[:c.histLen*ch], c.samples...)
	total := c.histLen + frames
	outSamples := c.resampled[:0]
	for {
		i := int(c.pos)
		if i+1 >= total {
			break
		}
		frac := float32(c.pos - float64(i))
		a := c.hist[i*ch : (i+1)*ch]
		b := c.hist[(i+1)*ch : (i+2)*ch]
		for k := 0; k < ch; k++ {
			outSamples = append(outSamples, a[k]+(b[k]-a[k])*frac)
		}
		c.pos += c.step
	}
	c.pos -= float64(total - 1)
	copy(c.hist, c.hist[(total-1)*ch:total*ch])
	c.hist = c.hist[:ch]
	c.histLen = 1
	c.resampled = outSamples
	return c.emit(outSamples, w)
}

// Flush drains the interpolation history and any partial input, holding the
// last sample for positions past the end of input. The converter is reset.
func (c *AudioConverter) Flush(w io.Writer) (int, error) {
	c.pending = c.pending[:0]
	if !c.isResamp || c.histLen == 0 {
		return 0, nil
	}
	ch := c.dst.Channels
	var outSamples []float32
	last := c.hist[:ch]
	for c.pos < float64(c.histLen) {
		outSamples = append(outSamples, last...)
		c.pos += c.step
	}
	c.pos = 0
	c.histLen = 0
	c.hist = c.hist[:0]
	return c.emit(outSamples, w)
}

// decode converts frames of source PCM into float samples at the destination
// channel count.
func (c *AudioConverter) decode(p []byte, frames int) {
	sc, dc := c.src.Channels, c.dst.Channels
	bps := c.src.Format.BytesPerSample()
	var in [rawMaxChannels]float32
	for f := 0; f < frames; f++ {
		base := f * c.srcFrame
		for k := 0; k < sc; k++ {
			in[k] = readSample(p[base+k*bps:], c.src.Format)
		}
		out := c.samples[f*dc : (f+1)*dc]
		switch {
		case sc == dc:
			copy(out, in[:sc])
		case sc == 1:
			for k := range out {
				out[k] = in[0]
			}
		case dc == 1:
			var sum float32
			for k := 0; k < sc; k++ {
				sum += in[k]
			}
			out[0] = sum / float32(sc)
		default:
			n := copy(out, in[:min(sc, dc)])
			for k := n; k < dc; k++ {
				out[k] = 0
			}
		}
	}
}

func (c *AudioConverter) emit(samples []float32, w io.Writer) (int, error) {
	if len(samples) == 0 {
		return 0, nil
	}
	bps := c.dst.Format.BytesPerSample()
	size := len(samples) * bps
	if cap(c.out) < size {
		c.out = make([]byte, size)
	}
	c.out = c.out[:size]
	for i, s := range samples {
		writeSample(c.out[i*bps:], c.dst.Format, s)
	}
	return w.Write(c.out)
}

func readSample(b []byte, f SampleFormat) float32 {
	switch f.Packed() {
	case SampleFormatU8:
		return (float32(b[0]) - 128) / 128
	case SampleFormatS16:
		return float32(int16(binary.NativeEndian.Uint16(b))) / 32768
	case SampleFormatS32:
		return float32(float64(int32(binary.NativeEndian.Uint32(b))) / 2147483648)
	case SampleFormatF32:
		return math.Float32frombits(binary.NativeEndian.Uint32(b))
	}
	return 0
}

func writeSample(b []byte, f SampleFormat, s float32) {
	switch f.Packed() {
	case SampleFormatU8:
		b[0] = uint8(clampFloat(math.Round(float64(s)*128+128), 0, 255))
	case SampleFormatS16:
		binary.NativeEndian.PutUint16(b, uint16(int16(clampFloat(math.Round(float64(s)*32768), -32768, 32767))))
	case SampleFormatS32:
		binary.NativeEndian.PutUint32(b, uint32(int32(clampFloat(math.Round(float64(s)*2147483648), -2147483648, 2147483647))))
	case SampleFormatF32:
		binary.NativeEndian.PutUint32(b, math.Float32bits(s))
	}
}
