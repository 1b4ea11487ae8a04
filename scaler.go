package avplay

import "fmt"

// pixelKey identifies one converter configuration.
type pixelKey struct {
	srcW, srcH int
	srcFmt     PixelFormat
	dstW, dstH int
	dstFmt     PixelFormat
}

func (k pixelKey) String() string {
	return fmt.Sprintf("%dx%d %s -> %dx%d %s", k.srcW, k.srcH, k.srcFmt, k.dstW, k.dstH, k.dstFmt)
}

// PixelConverter scales decoded frames with bilinear filtering and converts
// them to a packed RGB layout. It is rebuilt only when the source geometry,
// source format or destination changes.
type PixelConverter struct {
	align int

	key    pixelKey
	built  bool
	pitch  int
	builds uint64

	// Planar components at destination resolution: Y/U/V or R/G/B/A.
	comp [4][]byte
	// Deinterleaved source planes for semi-planar and packed sources.
	split [4][]byte
}

// NewPixelConverter returns a converter whose output rows are padded to a
// multiple of align bytes.
func NewPixelConverter(align int) *PixelConverter {
	if align <= 0 {
		align = 1
	}
	return &PixelConverter{align: align}
}

// Builds returns how many times the converter has been (re)built.
func (c *PixelConverter) Builds() uint64 { return c.builds }

// Pitch returns the output row size in bytes.
func (c *PixelConverter) Pitch() int { return c.pitch }

// Ensure rebuilds the converter when the key differs from the current one and
// reports whether a rebuild happened.
func (c *PixelConverter) Ensure(srcW, srcH int, srcFmt PixelFormat, dstW, dstH int, dstFmt PixelFormat) (bool, error) {
	key := pixelKey{srcW, srcH, srcFmt, dstW, dstH, dstFmt}
	if c.built && key == c.key {
		return false, nil
	}
	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return false, fmt.Errorf("%w: invalid geometry %s", ErrConversion, key)
	}
	if srcFmt.PlaneCount() == 0 {
		return false, fmt.Errorf("%w: %w: source %s", ErrConversion, ErrUnsupportedPixelFormat, srcFmt)
	}
	if !dstFmt.IsPacked() {
		return false, fmt.Errorf("%w: %w: destination %s", ErrConversion, ErrUnsupportedPixelFormat, dstFmt)
	}

	c.built = false
	n := dstW * dstH
	for i := range c.comp {
		c.comp[i] = nil
		c.split[i] = nil
	}
	for i := 0; i < 4; i++ {
		c.comp[i] = make([]byte, n)
	}

	switch srcFmt {
	case PixelFormatNV12, PixelFormatNV21:
		cw, ch := (srcW+1)/2, (srcH+1)/2
		c.split[1] = make([]byte, cw*ch)
		c.split[2] = make([]byte, cw*ch)
	case PixelFormatRGB24, PixelFormatBGR24, PixelFormatRGBA32, PixelFormatBGRA32:
		for i := 0; i < 4; i++ {
			c.split[i] = make([]byte, srcW*srcH)
		}
	}

	c.pitch = alignUp(dstW*dstFmt.BytesPerPixel(), c.align)
	c.key = key
	c.built = true
	c.builds++
	return true, nil
}

// Convert writes f into dst using the current configuration. dst.Pixels is
// reallocated when it is smaller than pitch x height.
func (c *PixelConverter) Convert(f *VideoFrame, dst *FrameBuffer) error {
	if !c.built {
		return fmt.Errorf("%w: converter not built", ErrConversion)
	}
	k := c.key
	if f.Width != k.srcW || f.Height != k.srcH || f.Format != k.srcFmt {
		return fmt.Errorf("%w: frame %dx%d %s does not match %s", ErrConversion, f.Width, f.Height, f.Format, k)
	}
	if len(f.Data) < f.Format.PlaneCount() || len(f.Stride) < f.Format.PlaneCount() {
		return fmt.Errorf("%w: frame has %d planes, want %d", ErrConversion, len(f.Data), f.Format.PlaneCount())
	}

	size := c.pitch * k.dstH
	if cap(dst.Pixels) < size {
		dst.Pixels = make([]byte, size)
	}
	dst.Pixels = dst.Pixels[:size]
	dst.Pitch = c.pitch
	dst.Width = k.dstW
	dst.Height = k.dstH
	dst.Format = k.dstFmt

	if k.srcFmt.IsPacked() {
		c.scaleRGB(f)
		c.packRGB(dst)
		return nil
	}
	c.scaleYUV(f)
	c.packYUV(dst)
	return nil
}

func (c *PixelConverter) scaleYUV(f *VideoFrame) {
	k := c.key
	scalePlane(f.Data[0], f.Stride[0], 0, 0, k.srcW, k.srcH, c.comp[0], k.dstW, k.dstW, k.dstH)

	switch k.srcFmt {
	case PixelFormatGray8:
		fill(c.comp[1], 128)
		fill(c.comp[2], 128)
	case PixelFormatNV12, PixelFormatNV21:
		cw, ch := (k.srcW+1)/2, (k.srcH+1)/2
		u, v := c.split[1], c.split[2]
		if k.srcFmt == PixelFormatNV21 {
			u, v = v, u
		}
		for y := 0; y < ch; y++ {
			row := f.Data[1][y*f.Stride[1]:]
			for x := 0; x < cw; x++ {
				u[y*cw+x] = row[2*x]
				v[y*cw+x] = row[2*x+1]
			}
		}
		scalePlane(c.split[1], cw, 0, 0, cw, ch, c.comp[1], k.dstW, k.dstW, k.dstH)
		scalePlane(c.split[2], cw, 0, 0, cw, ch, c.comp[2], k.dstW, k.dstW, k.dstH)
	default:
		cw, ch := k.srcFmt.planeSize(1, k.srcW, k.srcH)
		scalePlane(f.Data[1], f.Stride[1], 0, 0, cw, ch, c.comp[1], k.dstW, k.dstW, k.dstH)
		scalePlane(f.Data[2], f.Stride[2], 0, 0, cw, ch, c.comp[2], k.dstW, k.dstW, k.dstH)
	}
}

// scaleRGB splits a packed RGB source into R, G, B, A planes and scales each.
func (c *PixelConverter) scaleRGB(f *VideoFrame) {
	k := c.key
	bpp := k.srcFmt.BytesPerPixel()
	ri, bi := 0, 2
	if k.srcFmt == PixelFormatBGR24 || k.srcFmt == PixelFormatBGRA32 {
		ri, bi = 2, 0
	}
	for y := 0; y < k.srcH; y++ {
		row := f.Data[0][y*f.Stride[0]:]
		for x := 0; x < k.srcW; x++ {
			px := row[x*bpp:]
			i := y*k.srcW + x
			c.split[0][i] = px[ri]
			c.split[1][i] = px[1]
			c.split[2][i] = px[bi]
			if bpp == 4 {
				c.split[3][i] = px[3]
			} else {
				c.split[3][i] = 255
			}
		}
	}
	for i := 0; i < 4; i++ {
		scalePlane(c.split[i], k.srcW, 0, 0, k.srcW, k.srcH, c.comp[i], k.dstW, k.dstW, k.dstH)
	}
}

// packYUV converts the BT.601 limited-range Y/U/V planes to the destination.
func (c *PixelConverter) packYUV(dst *FrameBuffer) {
	k := c.key
	bpp := k.dstFmt.BytesPerPixel()
	ri, bi := channelOrder(k.dstFmt)
	for y := 0; y < k.dstH; y++ {
		row := dst.Pixels[y*c.pitch:]
		for x := 0; x < k.dstW; x++ {
			i := y*k.dstW + x
			r, g, b := yuvToRGB(c.comp[0][i], c.comp[1][i], c.comp[2][i])
			px := row[x*bpp:]
			px[ri] = r
			px[1] = g
			px[bi] = b
			if bpp == 4 {
				px[3] = 255
			}
		}
	}
}

func (c *PixelConverter) packRGB(dst *FrameBuffer) {
	k := c.key
	bpp := k.dstFmt.BytesPerPixel()
	ri, bi := channelOrder(k.dstFmt)
	for y := 0; y < k.dstH; y++ {
		row := dst.Pixels[y*c.pitch:]
		for x := 0; x < k.dstW; x++ {
			i := y*k.dstW + x
			px := row[x*bpp:]
			px[ri] = c.comp[0][i]
			px[1] = c.comp[1][i]
			px[bi] = c.comp[2][i]
			if bpp == 4 {
				px[3] = c.comp[3][i]
			}
		}
	}
}

// channelOrder returns the byte offsets of red and blue in a packed format.
func channelOrder(f PixelFormat) (ri, bi int) {
	if f == PixelFormatBGR24 || f == PixelFormatBGRA32 {
		return 2, 0
	}
	return 0, 2
}

// yuvToRGB converts one BT.601 limited-range sample with 8-bit fixed point.
func yuvToRGB(y, u, v uint8) (r, g, b uint8) {
	c := 298 * (int(y) - 16)
	d := int(u) - 128
	e := int(v) - 128
	r = clampByte((c + 409*e + 128) >> 8)
	g = clampByte((c - 100*d - 208*e + 128) >> 8)
	b = clampByte((c + 516*d + 128) >> 8)
	return
}

// rgbToYUV converts RGB to YUV (BT.601).
func rgbToYUV(r, g, b uint8) (y, u, v uint8) {
	yf := 16.0 + 65.481*float64(r)/255.0 + 128.553*float64(g)/255.0 + 24.966*float64(b)/255.0
	uf := 128.0 - 37.797*float64(r)/255.0 - 74.203*float64(g)/255.0 + 112.0*float64(b)/255.0
	vf := 128.0 + 112.0*float64(r)/255.0 - 93.786*float64(g)/255.0 - 18.214*float64(b)/255.0
	y = uint8(clampFloat(yf+0.5, 16, 235))
	u = uint8(clampFloat(uf+0.5, 16, 240))
	v = uint8(clampFloat(vf+0.5, 16, 240))
	return
}

func clampByte(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}

func alignUp(n, align int) int {
	return (n + align - 1) / align * align
}

// scalePlane scales a single plane using bilinear interpolation.
func scalePlane(src []byte, srcStride, srcX, srcY, srcW, srcH int,
	dst []byte, dstStride, dstW, dstH int) {

	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return
	}

	// Fixed-point scaling factors (16.16)
	xRatio := (srcW << 16) / dstW
	yRatio := (srcH << 16) / dstH

	for y := 0; y < dstH; y++ {
		srcYFP := y * yRatio
		y0 := srcYFP>>16 + srcY
		yWeight := srcYFP & 0xFFFF
		y1 := y0 + 1
		if y1 >= srcY+srcH {
			y1 = y0
		}
		row0 := src[y0*srcStride:]
		row1 := src[y1*srcStride:]
		out := dst[y*dstStride:]

		for x := 0; x < dstW; x++ {
			srcXFP := x * xRatio
			x0 := srcXFP>>16 + srcX
			xWeight := srcXFP & 0xFFFF
			x1 := x0 + 1
			if x1 >= srcX+srcW {
				x1 = x0
			}

			top := (int(row0[x0])*(0x10000-xWeight) + int(row0[x1])*xWeight) >> 16
			bottom := (int(row1[x0])*(0x10000-xWeight) + int(row1[x1])*xWeight) >> 16
			out[x] = byte((top*(0x10000-yWeight) + bottom*yWeight) >> 16)
		}
	}
}
