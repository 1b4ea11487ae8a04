//go:build (darwin || linux) && !noffmpeg

// FFmpeg demuxer and decoders loaded at runtime with purego.
//
// libavformat, libavcodec and libavutil are opened from the paths in
// AVPLAY_FFMPEG_LIB_PATH, next to the executable, under the module's lib/
// directory, or from the system search path. Only FFmpeg 6.x and 7.x are
// accepted since struct fields are read at fixed offsets.

package avplay

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"unsafe"

	"github.com/ebitengine/purego"
)

func init() {
	registerDemuxer(BackendFFmpeg, loadFFmpeg, func() Demuxer { return &FFmpegDemuxer{} })
}

var (
	ffmpegOnce    sync.Once
	ffmpegInitErr error
	ffmpegLoaded  bool
	ffmpegRelease string

	avutilHandle   uintptr
	avcodecHandle  uintptr
	avformatHandle uintptr
)

// libavutil
var (
	avMalloc     func(size uintptr) uintptr
	avFree       func(ptr uintptr)
	avStrerror   func(errnum int32, buf uintptr, size uintptr) int32
	avFrameAlloc func() uintptr
	avFrameFree  func(frame *unsafe.Pointer)
	avFrameUnref func(frame uintptr)
)

// libavcodec
var (
	avcodecVersion         func() uint32
	avcodecFindDecoder     func(id int32) uintptr
	avcodecGetName         func(id int32) uintptr
	avcodecAllocContext3   func(codec uintptr) uintptr
	avcodecFreeContext     func(ctx *unsafe.Pointer)
	avcodecOpen2           func(ctx, codec uintptr, options *unsafe.Pointer) int32
	avcodecParametersToCtx func(ctx, par uintptr) int32
	avcodecSendPacket      func(ctx, pkt uintptr) int32
	avcodecReceiveFrame    func(ctx, frame uintptr) int32
	avPacketAlloc          func() uintptr
	avPacketFree           func(pkt *unsafe.Pointer)
	avPacketUnref          func(pkt uintptr)
)

// libavformat
var (
	avformatVersion        func() uint32
	avformatAllocContext   func() uintptr
	avformatOpenInput      func(ctx *unsafe.Pointer, url string, fmt uintptr, options *unsafe.Pointer) int32
	avformatFindStreamInfo func(ctx uintptr, options *unsafe.Pointer) int32
	avformatCloseInput     func(ctx *unsafe.Pointer)
	avFindBestStream       func(ctx uintptr, mediaType, wanted, related int32, decoder *unsafe.Pointer, flags int32) int32
	avReadFrame            func(ctx, pkt uintptr) int32
	avioAllocContext       func(buffer uintptr, bufferSize, writeFlag int32, opaque uintptr, readPacket, writePacket, seek uintptr) uintptr
	avioContextFree        func(ctx *unsafe.Pointer)
)

const (
	averrorEOF    = -541478725 // FFERRTAG('E','O','F',' ')
	averrorEAGAIN = -int32(syscall.EAGAIN)
	averrorEIO    = -int32(syscall.EIO)
	averrorEINVAL = -int32(syscall.EINVAL)

	avmediaTypeVideo = 0
	avmediaTypeAudio = 1

	ffmpegIOBufferSize = 4096
)

// Struct offsets common to FFmpeg 6.x and 7.x on 64-bit platforms.
// AVCodecParameters differs between the two and lives in parLayout.
const (
	offFormatCtxPB        = 32
	offFormatCtxNbStreams = 44
	offFormatCtxStreams   = 48

	offStreamIndex    = 8
	offStreamCodecpar = 16
	offStreamTimeBase = 32

	offParCodecType = 0
	offParCodecID   = 4

	offPacketPTS         = 8
	offPacketData        = 24
	offPacketSize        = 32
	offPacketStreamIndex = 36

	offFrameData         = 0
	offFrameLinesize     = 64
	offFrameExtendedData = 96
	offFrameWidth        = 104
	offFrameHeight       = 108
	offFrameNbSamples    = 112
	offFrameFormat       = 116
	offFramePTS          = 136

	offIOCtxBuffer = 8
)

// parLayout holds the AVCodecParameters offsets of one FFmpeg release.
type parLayout struct {
	format     uintptr
	width      uintptr
	height     uintptr
	sampleRate uintptr
	channels   uintptr // ch_layout.nb_channels
}

var (
	// 6.x keeps the deprecated channel_layout and channels fields ahead of
	// sample_rate and appends ch_layout.
	parLayoutFF6 = parLayout{format: 28, width: 56, height: 60, sampleRate: 116, channels: 148}
	// 7.x inserts coded_side_data after extradata, adds framerate and moves
	// ch_layout ahead of sample_rate.
	parLayoutFF7 = parLayout{format: 44, width: 72, height: 76, sampleRate: 152, channels: 132}
)

// ffmpegLibSet pairs the library majors of one FFmpeg release with its
// struct layout.
type ffmpegLibSet struct {
	release                  string
	avutil, avcodec, avformat int
	par                       parLayout
}

var ffmpegLibSets = []ffmpegLibSet{
	{release: "7", avutil: 59, avcodec: 61, avformat: 61, par: parLayoutFF7},
	{release: "6", avutil: 58, avcodec: 60, avformat: 60, par: parLayoutFF6},
}

// ffPar is the layout of the loaded release.
var ffPar parLayout

// loadFFmpeg loads the FFmpeg shared libraries.
func loadFFmpeg() error {
	ffmpegOnce.Do(func() {
		ffmpegInitErr = loadFFmpegLibs()
		if ffmpegInitErr == nil {
			ffmpegLoaded = true
		}
	})
	return ffmpegInitErr
}

// FFmpegAvailable reports whether the FFmpeg backend could be loaded.
func FFmpegAvailable() bool {
	return loadFFmpeg() == nil
}

// FFmpegRelease returns the FFmpeg major release that was loaded, or "" when
// the libraries are unavailable.
func FFmpegRelease() string {
	if loadFFmpeg() != nil {
		return ""
	}
	return ffmpegRelease
}

func loadFFmpegLibs() error {
	var lastErr error
	for _, set := range ffmpegLibSets {
		if err := loadFFmpegSet(set); err != nil {
			lastErr = err
			continue
		}
		ffmpegRelease = set.release
		ffPar = set.par
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("failed to load FFmpeg: %w", lastErr)
	}
	return errors.New("FFmpeg not found in any standard location")
}

func loadFFmpegSet(set ffmpegLibSet) error {
	util, err := dlopenFirst(ffmpegLibPaths("avutil", set.avutil))
	if err != nil {
		return err
	}
	codec, err := dlopenFirst(ffmpegLibPaths("avcodec", set.avcodec))
	if err != nil {
		purego.Dlclose(util)
		return err
	}
	format, err := dlopenFirst(ffmpegLibPaths("avformat", set.avformat))
	if err != nil {
		purego.Dlclose(codec)
		purego.Dlclose(util)
		return err
	}
	avutilHandle, avcodecHandle, avformatHandle = util, codec, format
	if err := loadFFmpegSymbols(); err != nil {
		purego.Dlclose(format)
		purego.Dlclose(codec)
		purego.Dlclose(util)
		return err
	}
	var verr error
	if major := int(avformatVersion() >> 16); major != set.avformat {
		verr = fmt.Errorf("unsupported libavformat major %d", major)
	} else if major := int(avcodecVersion() >> 16); major != set.avcodec {
		verr = fmt.Errorf("unsupported libavcodec major %d", major)
	}
	if verr != nil {
		purego.Dlclose(format)
		purego.Dlclose(codec)
		purego.Dlclose(util)
	}
	return verr
}

func dlopenFirst(paths []string) (uintptr, error) {
	var lastErr error
	for _, path := range paths {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err == nil {
			return handle, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no candidate paths")
	}
	return 0, lastErr
}

func ffmpegLibPaths(name string, major int) []string {
	var names []string
	if runtime.GOOS == "darwin" {
		names = []string{
			fmt.Sprintf("lib%s.%d.dylib", name, major),
			fmt.Sprintf("lib%s.dylib", name),
		}
	} else {
		names = []string{
			fmt.Sprintf("lib%s.so.%d", name, major),
			fmt.Sprintf("lib%s.so", name),
		}
	}

	var dirs []string
	if envPath := os.Getenv("AVPLAY_FFMPEG_LIB_PATH"); envPath != "" {
		dirs = append(dirs, envPath)
	}
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		dirs = append(dirs, exeDir, filepath.Join(exeDir, "..", "lib"))
	}
	if root := findModuleRoot(); root != "" {
		dirs = append(dirs, filepath.Join(root, "lib"))
	}
	if runtime.GOOS == "darwin" {
		dirs = append(dirs, "/opt/homebrew/lib", "/usr/local/lib")
	} else {
		dirs = append(dirs, "/usr/lib/x86_64-linux-gnu", "/usr/lib/aarch64-linux-gnu", "/usr/local/lib", "/usr/lib")
	}

	var paths []string
	for _, dir := range dirs {
		for _, n := range names {
			paths = append(paths, filepath.Join(dir, n))
		}
	}
	// System search path last.
	return append(paths, names...)
}

func loadFFmpegSymbols() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to load FFmpeg symbols: %v", r)
		}
	}()

	purego.RegisterLibFunc(&avMalloc, avutilHandle, "av_malloc")
	purego.RegisterLibFunc(&avFree, avutilHandle, "av_free")
	purego.RegisterLibFunc(&avStrerror, avutilHandle, "av_strerror")
	purego.RegisterLibFunc(&avFrameAlloc, avutilHandle, "av_frame_alloc")
	purego.RegisterLibFunc(&avFrameFree, avutilHandle, "av_frame_free")
	purego.RegisterLibFunc(&avFrameUnref, avutilHandle, "av_frame_unref")

	purego.RegisterLibFunc(&avcodecVersion, avcodecHandle, "avcodec_version")
	purego.RegisterLibFunc(&avcodecFindDecoder, avcodecHandle, "avcodec_find_decoder")
	purego.RegisterLibFunc(&avcodecGetName, avcodecHandle, "avcodec_get_name")
	purego.RegisterLibFunc(&avcodecAllocContext3, avcodecHandle, "avcodec_alloc_context3")
	purego.RegisterLibFunc(&avcodecFreeContext, avcodecHandle, "avcodec_free_context")
	purego.RegisterLibFunc(&avcodecOpen2, avcodecHandle, "avcodec_open2")
	purego.RegisterLibFunc(&avcodecParametersToCtx, avcodecHandle, "avcodec_parameters_to_context")
	purego.RegisterLibFunc(&avcodecSendPacket, avcodecHandle, "avcodec_send_packet")
	purego.RegisterLibFunc(&avcodecReceiveFrame, avcodecHandle, "avcodec_receive_frame")
	purego.RegisterLibFunc(&avPacketAlloc, avcodecHandle, "av_packet_alloc")
	purego.RegisterLibFunc(&avPacketFree, avcodecHandle, "av_packet_free")
	purego.RegisterLibFunc(&avPacketUnref, avcodecHandle, "av_packet_unref")

	purego.RegisterLibFunc(&avformatVersion, avformatHandle, "avformat_version")
	purego.RegisterLibFunc(&avformatAllocContext, avformatHandle, "avformat_alloc_context")
	purego.RegisterLibFunc(&avformatOpenInput, avformatHandle, "avformat_open_input")
	purego.RegisterLibFunc(&avformatFindStreamInfo, avformatHandle, "avformat_find_stream_info")
	purego.RegisterLibFunc(&avformatCloseInput, avformatHandle, "avformat_close_input")
	purego.RegisterLibFunc(&avFindBestStream, avformatHandle, "av_find_best_stream")
	purego.RegisterLibFunc(&avReadFrame, avformatHandle, "av_read_frame")
	purego.RegisterLibFunc(&avioAllocContext, avformatHandle, "avio_alloc_context")
	purego.RegisterLibFunc(&avioContextFree, avformatHandle, "avio_context_free")
	return nil
}

// ffmpegError converts a negative FFmpeg return code into an error.
func ffmpegError(ret int32, op string) error {
	switch ret {
	case averrorEOF:
		return io.EOF
	case averrorEAGAIN:
		return ErrAgain
	}
	buf := make([]byte, 128)
	msg := ""
	if avStrerror(ret, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf))) == 0 {
		msg = goStringFromPtr(uintptr(unsafe.Pointer(&buf[0])))
	}
	if msg == "" {
		msg = fmt.Sprintf("error %d", ret)
	}
	return fmt.Errorf("%s: %s", op, msg)
}

func peek[T any](base uintptr, off uintptr) T {
	return *(*T)(unsafe.Pointer(base + off))
}

// Global AVIO callback state for purego
var (
	ioSourcesMu   sync.RWMutex
	ioSources     = make(map[uintptr]*Source)
	ioCounter     uintptr
	ioReadCB      uintptr
	ioSeekCB      uintptr
	ioCallbacksOn sync.Once
)

func initIOCallbacks() {
	ioCallbacksOn.Do(func() {
		ioReadCB = purego.NewCallback(ffmpegReadHandler)
		ioSeekCB = purego.NewCallback(ffmpegSeekHandler)
	})
}

func registerIOSource(src *Source) uintptr {
	ioSourcesMu.Lock()
	defer ioSourcesMu.Unlock()
	ioCounter++
	ioSources[ioCounter] = src
	return ioCounter
}

func unregisterIOSource(id uintptr) {
	ioSourcesMu.Lock()
	delete(ioSources, id)
	ioSourcesMu.Unlock()
}

func lookupIOSource(id uintptr) *Source {
	ioSourcesMu.RLock()
	defer ioSourcesMu.RUnlock()
	return ioSources[id]
}

// ffmpegReadHandler is the AVIO read_packet callback.
func ffmpegReadHandler(opaque uintptr, buf uintptr, size int32) int32 {
	src := lookupIOSource(opaque)
	if src == nil || size <= 0 {
		return averrorEIO
	}
	n, err := src.Read(unsafe.Slice((*byte)(unsafe.Pointer(buf)), int(size)))
	if n > 0 {
		return int32(n)
	}
	if err == nil || errors.Is(err, io.EOF) {
		return averrorEOF
	}
	return averrorEIO
}

// ffmpegSeekHandler is the AVIO seek callback. AVSEEK_SIZE and AVSEEK_FORCE
// are handled by Source.
func ffmpegSeekHandler(opaque uintptr, offset int64, whence int32) int64 {
	src := lookupIOSource(opaque)
	if src == nil {
		return int64(averrorEIO)
	}
	pos, err := src.Seek(offset, int(whence))
	if err != nil {
		return int64(averrorEINVAL)
	}
	return pos
}

// FFmpegDemuxer opens any container libavformat can probe.
type FFmpegDemuxer struct{}

func (*FFmpegDemuxer) Backend() Backend { return BackendFFmpeg }

// Probe accepts everything; libavformat does its own probing in Open.
func (*FFmpegDemuxer) Probe(head []byte) bool { return true }

// Open opens src through a custom AVIO context. src stays owned by the
// caller.
func (*FFmpegDemuxer) Open(src *Source) (Container, error) {
	if err := loadFFmpeg(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	initIOCallbacks()

	c := &ffmpegContainer{ioID: registerIOSource(src)}
	buf := avMalloc(ffmpegIOBufferSize)
	if buf == 0 {
		c.Close()
		return nil, fmt.Errorf("%w: av_malloc failed", ErrOpen)
	}
	c.avio = avioAllocContext(buf, ffmpegIOBufferSize, 0, c.ioID, ioReadCB, 0, ioSeekCB)
	if c.avio == 0 {
		avFree(buf)
		c.Close()
		return nil, fmt.Errorf("%w: avio_alloc_context failed", ErrOpen)
	}

	ctx := avformatAllocContext()
	if ctx == 0 {
		c.Close()
		return nil, fmt.Errorf("%w: avformat_alloc_context failed", ErrOpen)
	}
	*(*uintptr)(unsafe.Pointer(ctx + offFormatCtxPB)) = c.avio

	// avformat_open_input frees ctx on failure.
	p := unsafe.Pointer(ctx)
	if ret := avformatOpenInput(&p, "", 0, nil); ret < 0 {
		c.Close()
		return nil, fmt.Errorf("%w: %w", ErrOpen, ffmpegError(ret, "avformat_open_input"))
	}
	c.ctx = uintptr(p)

	if ret := avformatFindStreamInfo(c.ctx, nil); ret < 0 {
		c.Close()
		return nil, fmt.Errorf("%w: %w", ErrOpen, ffmpegError(ret, "avformat_find_stream_info"))
	}
	if c.pkt = avPacketAlloc(); c.pkt == 0 {
		c.Close()
		return nil, fmt.Errorf("%w: av_packet_alloc failed", ErrOpen)
	}
	c.readStreams()
	return c, nil
}

type ffmpegContainer struct {
	ctx  uintptr
	avio uintptr
	pkt  uintptr
	ioID uintptr

	streams []StreamInfo
	params  []uintptr // AVCodecParameters by stream index
	closed  bool
}

func (c *ffmpegContainer) readStreams() {
	n := int(peek[uint32](c.ctx, offFormatCtxNbStreams))
	arr := peek[uintptr](c.ctx, offFormatCtxStreams)
	c.streams = make([]StreamInfo, 0, n)
	c.params = make([]uintptr, n)
	for i := 0; i < n; i++ {
		st := *(*uintptr)(unsafe.Pointer(arr + uintptr(i)*unsafe.Sizeof(uintptr(0))))
		par := peek[uintptr](st, offStreamCodecpar)
		c.params[i] = par
		id := peek[int32](par, offParCodecID)
		info := StreamInfo{
			Index: int(peek[int32](st, offStreamIndex)),
			Codec: goStringFromPtr(avcodecGetName(id)),
			TimeBase: Rational{
				Num: int(peek[int32](st, offStreamTimeBase)),
				Den: int(peek[int32](st, offStreamTimeBase+4)),
			},
		}
		switch peek[int32](par, offParCodecType) {
		case avmediaTypeVideo:
			info.Kind = MediaKindVideo
			info.Width = int(peek[int32](par, ffPar.width))
			info.Height = int(peek[int32](par, ffPar.height))
			info.PixelFormat = pixelFormatFromAV(peek[int32](par, ffPar.format))
		case avmediaTypeAudio:
			info.Kind = MediaKindAudio
			info.SampleFormat = sampleFormatFromAV(peek[int32](par, ffPar.format))
			info.SampleRate = int(peek[int32](par, ffPar.sampleRate))
			info.Channels = int(peek[int32](par, ffPar.channels))
		}
		c.streams = append(c.streams, info)
	}
}

func (c *ffmpegContainer) Streams() []StreamInfo { return c.streams }

// BestStream asks libavformat for the preferred stream that has a decoder.
func (c *ffmpegContainer) BestStream(kind MediaKind) (StreamInfo, bool) {
	var mt int32
	switch kind {
	case MediaKindVideo:
		mt = avmediaTypeVideo
	case MediaKindAudio:
		mt = avmediaTypeAudio
	default:
		return StreamInfo{}, false
	}
	var dec unsafe.Pointer
	idx := avFindBestStream(c.ctx, mt, -1, -1, &dec, 0)
	if idx < 0 || int(idx) >= len(c.streams) {
		return StreamInfo{}, false
	}
	return c.streams[idx], true
}

func (c *ffmpegContainer) ReadPacket(pkt *Packet) error {
	avPacketUnref(c.pkt)
	if ret := avReadFrame(c.ctx, c.pkt); ret < 0 {
		pkt.reset()
		return ffmpegError(ret, "av_read_frame")
	}
	pkt.StreamIndex = int(peek[int32](c.pkt, offPacketStreamIndex))
	pkt.PTS = peek[int64](c.pkt, offPacketPTS)
	pkt.native = c.pkt
	data := peek[uintptr](c.pkt, offPacketData)
	size := int(peek[int32](c.pkt, offPacketSize))
	if data != 0 && size > 0 {
		pkt.Data = unsafe.Slice((*byte)(unsafe.Pointer(data)), size)
	} else {
		pkt.Data = nil
	}
	return nil
}

func (c *ffmpegContainer) NewVideoDecoder(info StreamInfo) (VideoDecoder, error) {
	d, err := c.openDecoder(info, MediaKindVideo)
	if err != nil {
		return nil, err
	}
	return &ffmpegVideoDecoder{ffmpegDecoder: d}, nil
}

func (c *ffmpegContainer) NewAudioDecoder(info StreamInfo) (AudioDecoder, error) {
	d, err := c.openDecoder(info, MediaKindAudio)
	if err != nil {
		return nil, err
	}
	return &ffmpegAudioDecoder{ffmpegDecoder: d}, nil
}

func (c *ffmpegContainer) openDecoder(info StreamInfo, kind MediaKind) (*ffmpegDecoder, error) {
	if info.Kind != kind || info.Index < 0 || info.Index >= len(c.params) {
		return nil, fmt.Errorf("%w: stream %d is not %s", ErrDecoderInit, info.Index, kind)
	}
	par := c.params[info.Index]
	codec := avcodecFindDecoder(peek[int32](par, offParCodecID))
	if codec == 0 {
		return nil, fmt.Errorf("%w: no decoder for %s", ErrDecoderInit, info.Codec)
	}
	d := &ffmpegDecoder{stream: info}
	if d.ctx = avcodecAllocContext3(codec); d.ctx == 0 {
		return nil, fmt.Errorf("%w: avcodec_alloc_context3 failed", ErrDecoderInit)
	}
	if ret := avcodecParametersToCtx(d.ctx, par); ret < 0 {
		d.Close()
		return nil, fmt.Errorf("%w: %w", ErrDecoderInit, ffmpegError(ret, "avcodec_parameters_to_context"))
	}
	if ret := avcodecOpen2(d.ctx, codec, nil); ret < 0 {
		d.Close()
		return nil, fmt.Errorf("%w: %w", ErrDecoderInit, ffmpegError(ret, "avcodec_open2"))
	}
	if d.frame = avFrameAlloc(); d.frame == 0 {
		d.Close()
		return nil, fmt.Errorf("%w: av_frame_alloc failed", ErrDecoderInit)
	}
	return d, nil
}

// Close releases the demuxer context, the AVIO context and its buffer. It
// is idempotent.
func (c *ffmpegContainer) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.pkt != 0 {
		p := unsafe.Pointer(c.pkt)
		avPacketFree(&p)
		c.pkt = 0
	}
	if c.ctx != 0 {
		p := unsafe.Pointer(c.ctx)
		avformatCloseInput(&p)
		c.ctx = 0
	}
	if c.avio != 0 {
		// The buffer may have been reallocated by libavformat.
		avFree(peek[uintptr](c.avio, offIOCtxBuffer))
		p := unsafe.Pointer(c.avio)
		avioContextFree(&p)
		c.avio = 0
	}
	unregisterIOSource(c.ioID)
	return nil
}

type ffmpegDecoder struct {
	stream StreamInfo
	ctx    uintptr
	frame  uintptr
}

// SendPacket submits a packet read from the owning container. A nil packet
// enters draining mode.
func (d *ffmpegDecoder) SendPacket(pkt *Packet) error {
	var native uintptr
	if pkt != nil {
		if pkt.native == 0 {
			return fmt.Errorf("%w: packet was not read from an FFmpeg container", ErrRuntimeDecode)
		}
		native = pkt.native
	}
	if ret := avcodecSendPacket(d.ctx, native); ret < 0 {
		return ffmpegError(ret, "avcodec_send_packet")
	}
	return nil
}

func (d *ffmpegDecoder) receive() error {
	avFrameUnref(d.frame)
	if ret := avcodecReceiveFrame(d.ctx, d.frame); ret < 0 {
		return ffmpegError(ret, "avcodec_receive_frame")
	}
	return nil
}

func (d *ffmpegDecoder) Close() error {
	if d.frame != 0 {
		p := unsafe.Pointer(d.frame)
		avFrameFree(&p)
		d.frame = 0
	}
	if d.ctx != 0 {
		p := unsafe.Pointer(d.ctx)
		avcodecFreeContext(&p)
		d.ctx = 0
	}
	return nil
}

type ffmpegVideoDecoder struct {
	*ffmpegDecoder
	planes  [4][]byte
	strides [4]int
}

// ReceiveFrame returns the next decoded picture. Plane data aliases the
// AVFrame and is valid until the next call.
func (d *ffmpegVideoDecoder) ReceiveFrame(f *VideoFrame) error {
	if err := d.receive(); err != nil {
		return err
	}
	w := int(peek[int32](d.frame, offFrameWidth))
	h := int(peek[int32](d.frame, offFrameHeight))
	av := peek[int32](d.frame, offFrameFormat)
	format := pixelFormatFromAV(av)
	if format == PixelFormatUnknown {
		return fmt.Errorf("%w: AVPixelFormat %d", ErrUnsupportedPixelFormat, av)
	}
	n := format.PlaneCount()
	for i := 0; i < n; i++ {
		ptr := peek[uintptr](d.frame, offFrameData+uintptr(i)*8)
		stride := int(peek[int32](d.frame, offFrameLinesize+uintptr(i)*4))
		rowBytes, rows := format.planeSize(i, w, h)
		if ptr == 0 || stride < rowBytes {
			return fmt.Errorf("%w: plane %d has stride %d for %d bytes", ErrRuntimeDecode, i, stride, rowBytes)
		}
		d.planes[i] = unsafe.Slice((*byte)(unsafe.Pointer(ptr)), stride*(rows-1)+rowBytes)
		d.strides[i] = stride
	}
	f.Data = d.planes[:n]
	f.Stride = d.strides[:n]
	f.Width, f.Height = w, h
	f.Format = format
	f.PTS = peek[int64](d.frame, offFramePTS)
	return nil
}

type ffmpegAudioDecoder struct {
	*ffmpegDecoder
	planes [][]byte
}

// ReceiveFrame returns the next decoded audio frame. Plane data aliases the
// AVFrame and is valid until the next call.
func (d *ffmpegAudioDecoder) ReceiveFrame(f *AudioFrame) error {
	if err := d.receive(); err != nil {
		return err
	}
	samples := int(peek[int32](d.frame, offFrameNbSamples))
	av := peek[int32](d.frame, offFrameFormat)
	format := sampleFormatFromAV(av)
	if format == SampleFormatUnknown {
		// Surfaces as a conversion failure when the pipeline rebuilds.
		f.Format, f.SampleCount, f.Data = format, 0, nil
		return nil
	}
	channels, rate := d.stream.Channels, d.stream.SampleRate
	if channels <= 0 || channels > rawMaxChannels {
		return fmt.Errorf("%w: %d channels", ErrRuntimeDecode, channels)
	}

	planes, size := 1, samples*channels*format.BytesPerSample()
	if format.IsPlanar() {
		planes, size = channels, samples*format.BytesPerSample()
	}
	ext := peek[uintptr](d.frame, offFrameExtendedData)
	if ext == 0 {
		return fmt.Errorf("%w: frame without data", ErrRuntimeDecode)
	}
	d.planes = d.planes[:0]
	for i := 0; i < planes; i++ {
		ptr := *(*uintptr)(unsafe.Pointer(ext + uintptr(i)*8))
		if ptr == 0 || size == 0 {
			d.planes = append(d.planes, nil)
			continue
		}
		d.planes = append(d.planes, unsafe.Slice((*byte)(unsafe.Pointer(ptr)), size))
	}
	f.Data = d.planes
	f.SampleCount = samples
	f.Format = format
	f.SampleRate = rate
	f.Channels = channels
	f.PTS = peek[int64](d.frame, offFramePTS)
	return nil
}

// pixelFormatFromAV maps AVPixelFormat values to PixelFormat. Full-range
// JPEG variants map to their limited-range counterparts.
func pixelFormatFromAV(v int32) PixelFormat {
	switch v {
	case 0, 12: // yuv420p, yuvj420p
		return PixelFormatI420
	case 4, 13: // yuv422p, yuvj422p
		return PixelFormatI422
	case 5, 14: // yuv444p, yuvj444p
		return PixelFormatI444
	case 23:
		return PixelFormatNV12
	case 24:
		return PixelFormatNV21
	case 8:
		return PixelFormatGray8
	case 2:
		return PixelFormatRGB24
	case 3:
		return PixelFormatBGR24
	case 26:
		return PixelFormatRGBA32
	case 28:
		return PixelFormatBGRA32
	default:
		return PixelFormatUnknown
	}
}

// sampleFormatFromAV maps AVSampleFormat values to SampleFormat. Double
// precision formats are not supported.
func sampleFormatFromAV(v int32) SampleFormat {
	switch v {
	case 0:
		return SampleFormatU8
	case 1:
		return SampleFormatS16
	case 2:
		return SampleFormatS32
	case 3:
		return SampleFormatF32
	case 5:
		return SampleFormatU8P
	case 6:
		return SampleFormatS16P
	case 7:
		return SampleFormatS32P
	case 8:
		return SampleFormatF32P
	default:
		return SampleFormatUnknown
	}
}
