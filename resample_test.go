package avplay

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func s16(vals ...int16) []byte {
	b := make([]byte, 0, 2*len(vals))
	for _, v := range vals {
		b = binary.NativeEndian.AppendUint16(b, uint16(v))
	}
	return b
}

func readS16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.NativeEndian.Uint16(b[2*i:]))
	}
	return out
}

func TestResampler_Interleave(t *testing.T) {
	r, err := NewResampler(SampleFormatS16P, 48000, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := r.Output(); got != (AudioSpec{SampleFormatS16, 48000, 2}) {
		t.Errorf("Output() = %s", got)
	}
	f := &AudioFrame{
		Data:        [][]byte{s16(1, 2, 3), s16(-1, -2, -3)},
		SampleCount: 3,
		Format:      SampleFormatS16P,
		SampleRate:  48000,
		Channels:    2,
	}
	out, err := r.Interleave(f)
	if err != nil {
		t.Fatal(err)
	}
	want := []int16{1, -1, 2, -2, 3, -3}
	if got := readS16(out); !equalInt16(got, want) {
		t.Errorf("Interleave = %v, want %v", got, want)
	}
}

func TestResampler_Errors(t *testing.T) {
	if _, err := NewResampler(SampleFormatS16, 48000, 2, 0); !errors.Is(err, ErrConversion) {
		t.Errorf("packed input error = %v", err)
	}
	r, _ := NewResampler(SampleFormatF32P, 48000, 2, 16)
	f := &AudioFrame{Data: [][]byte{make([]byte, 8)}, SampleCount: 2, Format: SampleFormatF32P, SampleRate: 48000, Channels: 2}
	if _, err := r.Interleave(f); !errors.Is(err, ErrConversion) {
		t.Errorf("missing plane error = %v", err)
	}
}

func TestAudioConverter_Passthrough(t *testing.T) {
	spec := AudioSpec{SampleFormatS16, 44100, 2}
	c, err := NewAudioConverter(spec, spec)
	if err != nil {
		t.Fatal(err)
	}
	in := s16(1, 2, 3, 4, 5)
	var out bytes.Buffer
	if n, err := c.Put(in, &out); err != nil || n != len(in) {
		t.Fatalf("Put = %d, %v", n, err)
	}
	if !bytes.Equal(out.Bytes(), in) {
		t.Error("passthrough altered bytes")
	}
}

func TestAudioConverter_Formats(t *testing.T) {
	f32 := func(vals ...float32) []byte {
		var b []byte
		for _, v := range vals {
			b = binary.NativeEndian.AppendUint32(b, math.Float32bits(v))
		}
		return b
	}
	s32 := func(vals ...int32) []byte {
		var b []byte
		for _, v := range vals {
			b = binary.NativeEndian.AppendUint32(b, uint32(v))
		}
		return b
	}

	tests := []struct {
		name string
		src  AudioSpec
		dst  AudioSpec
		in   []byte
		want []byte
	}{
		{
			name: "s16 to f32",
			src:  AudioSpec{SampleFormatS16, 48000, 1},
			dst:  AudioSpec{SampleFormatF32, 48000, 1},
			in:   s16(16384, -16384, 0),
			want: f32(0.5, -0.5, 0),
		},
		{
			name: "f32 to s16",
			src:  AudioSpec{SampleFormatF32, 48000, 1},
			dst:  AudioSpec{SampleFormatS16, 48000, 1},
			in:   f32(0.5, -1, 2),
			want: s16(16384, -32768, 32767),
		},
		{
			name: "u8 to s16",
			src:  AudioSpec{SampleFormatU8, 48000, 1},
			dst:  AudioSpec{SampleFormatS16, 48000, 1},
			in:   []byte{128, 192, 64},
			want: s16(0, 16384, -16384),
		},
		{
			name: "s32 to s16",
			src:  AudioSpec{SampleFormatS32, 48000, 1},
			dst:  AudioSpec{SampleFormatS16, 48000, 1},
			in:   s32(1<<30, -(1 << 30)),
			want: s16(16384, -16384),
		},
		{
			name: "mono to stereo",
			src:  AudioSpec{SampleFormatS16, 48000, 1},
			dst:  AudioSpec{SampleFormatS16, 48000, 2},
			in:   s16(100, -200),
			want: s16(100, 100, -200, -200),
		},
		{
			name: "stereo to mono",
			src:  AudioSpec{SampleFormatS16, 48000, 2},
			dst:  AudioSpec{SampleFormatS16, 48000, 1},
			in:   s16(16384, 8192),
			want: s16(12288),
		},
		{
			name: "stereo to quad",
			src:  AudioSpec{SampleFormatS16, 48000, 2},
			dst:  AudioSpec{SampleFormatS16, 48000, 4},
			in:   s16(1000, -1000),
			want: s16(1000, -1000, 0, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewAudioConverter(tt.src, tt.dst)
			if err != nil {
				t.Fatal(err)
			}
			var out bytes.Buffer
			if _, err := c.Put(tt.in, &out); err != nil {
				t.Fatal(err)
			}
			if n, err := c.Flush(&out); n != 0 || err != nil {
				t.Errorf("Flush without rate conversion = %d, %v", n, err)
			}
			if !bytes.Equal(out.Bytes(), tt.want) {
				t.Errorf("output %v, want %v", out.Bytes(), tt.want)
			}
		})
	}
}

func TestAudioConverter_PartialFrames(t *testing.T) {
	src := AudioSpec{SampleFormatS16, 48000, 2}
	dst := AudioSpec{SampleFormatF32, 48000, 2}
	c, err := NewAudioConverter(src, dst)
	if err != nil {
		t.Fatal(err)
	}
	in := s16(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	var out bytes.Buffer
	for i := range in {
		if _, err := c.Put(in[i:i+1], &out); err != nil {
			t.Fatal(err)
		}
	}
	if got := out.Len(); got != len(in)*2 {
		t.Errorf("byte-at-a-time output %d bytes, want %d", got, len(in)*2)
	}
}

func TestAudioConverter_RateConversion(t *testing.T) {
	tests := []struct {
		name    string
		srcRate int
		dstRate int
		frames  int
		want    int
	}{
		{"upsample 2x", 24000, 48000, 100, 200},
		{"downsample 2x", 48000, 24000, 100, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewAudioConverter(
				AudioSpec{SampleFormatS16, tt.srcRate, 1},
				AudioSpec{SampleFormatS16, tt.dstRate, 1},
			)
			if err != nil {
				t.Fatal(err)
			}
			in := make([]int16, tt.frames)
			for i := range in {
				in[i] = 16384
			}
			var out bytes.Buffer
			if _, err := c.Put(s16(in...), &out); err != nil {
				t.Fatal(err)
			}
			if _, err := c.Flush(&out); err != nil {
				t.Fatal(err)
			}
			got := readS16(out.Bytes())
			if len(got) != tt.want {
				t.Errorf("produced %d samples, want %d", len(got), tt.want)
			}
			for i, v := range got {
				if v != 16384 {
					t.Fatalf("sample %d = %d, want 16384", i, v)
				}
			}
		})
	}
}

func TestAudioConverter_Errors(t *testing.T) {
	tests := []struct {
		name     string
		src, dst AudioSpec
	}{
		{"planar source", AudioSpec{SampleFormatS16P, 48000, 2}, DefaultAudioSpec()},
		{"invalid destination", DefaultAudioSpec(), AudioSpec{}},
		{"too many channels", AudioSpec{SampleFormatS16, 48000, 64}, DefaultAudioSpec()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewAudioConverter(tt.src, tt.dst); !errors.Is(err, ErrConversion) {
				t.Errorf("error = %v, want ErrConversion", err)
			}
		})
	}
}

func equalInt16(a, b []int16) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
