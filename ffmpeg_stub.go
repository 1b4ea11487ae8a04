//go:build !(darwin || linux) || noffmpeg

package avplay

// FFmpegAvailable reports whether the FFmpeg backend could be loaded. It is
// always false in this build.
func FFmpegAvailable() bool { return false }

// FFmpegRelease returns "" in builds without the FFmpeg backend.
func FFmpegRelease() string { return "" }
