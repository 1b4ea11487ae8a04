// Package avplay decodes a seekable media byte stream into two outputs that
// stay in step: pull-driven PCM for an audio device and a polled "latest
// frame" for a render loop.
//
// Key pieces include:
//   - Source, Demuxer and Container: byte stream adaptation and container demuxing
//   - VideoPipeline with PixelConverter and FrameSlot (drop-latest-wins publication)
//   - AudioPipeline with Resampler, AudioConverter and ByteFIFO
//   - Player: the pull/poll driver shared by the audio and render threads
//   - RawMuxer, WritePatternClip and RTPAudioOutput for synthetic sources and output
//
// # Architecture
//
//   Audio thread:  Player.FillAudio -> ByteFIFO | demux -> AudioDecoder -> AudioConverter -> ByteFIFO
//   Render thread: Player.HasFrame / Player.DrawFrame <- FrameSlot <- PixelConverter <- VideoDecoder
//
// Packet consumption is driven by audio demand. Sources without audio are
// advanced by the render loop through Player.Advance.
//
// # Native Libraries
//
// The FFmpeg backend loads libavformat, libavcodec and libavutil (FFmpeg 6 or
// 7) with purego, so no C toolchain is needed. Set AVPLAY_FFMPEG_LIB_PATH to
// the directory containing these libraries. The raw container backend is pure
// Go and always available.
//
// # Build Tags
//
//   - noffmpeg: disable the FFmpeg backend
package avplay
