package avplay

import (
	"errors"
	"fmt"
)

// Load-time failures. Each one leaves the player closed.
var (
	ErrOpen          = errors.New("cannot open media")
	ErrNoVideoStream = fmt.Errorf("%w: no video stream", ErrOpen)
	ErrDecoderInit   = errors.New("cannot initialize decoder")
	ErrConversion    = errors.New("cannot build converter")
)

// Playback-time failures.
var (
	ErrRuntimeDecode = errors.New("decode failed")
	ErrAgain         = errors.New("decoder needs more input")
	ErrNotLoaded     = errors.New("no media loaded")
)

var (
	ErrBackendUnavailable      = errors.New("demux backend not available")
	ErrUnsupportedPixelFormat  = errors.New("unsupported pixel format")
	ErrUnsupportedSampleFormat = errors.New("unsupported sample format")
)

// loadError tags err with the load stage that produced it.
func loadError(kind error, stage string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", kind, stage)
	}
	if errors.Is(err, kind) {
		return fmt.Errorf("%s: %w", stage, err)
	}
	return fmt.Errorf("%w: %s: %w", kind, stage, err)
}
