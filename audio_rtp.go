package avplay

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

// DefaultMTU is the largest RTP packet RTPAudioOutput writes.
const DefaultMTU = 1200

const rtpHeaderSize = 12

// ErrOutputClosed is returned by RTPAudioOutput.Start after Close.
var ErrOutputClosed = errors.New("audio output closed")

// RTPAudioConfig configures an RTPAudioOutput.
type RTPAudioConfig struct {
	Writer      io.Writer     // Receives one RTP packet per Write call
	SampleRate  int           // Default: 48000
	Channels    int           // Default: 2
	Period      time.Duration // Callback period (default: 20ms)
	PayloadType uint8         // Default: 96 (dynamic)
	SSRC        uint32
	MTU         int // Default: DefaultMTU
	Logger      zerolog.Logger
}

// DefaultRTPAudioConfig returns 48 kHz stereo in 20 ms periods.
func DefaultRTPAudioConfig() RTPAudioConfig {
	return RTPAudioConfig{
		SampleRate:  48000,
		Channels:    2,
		Period:      20 * time.Millisecond,
		PayloadType: 96,
		MTU:         DefaultMTU,
		Logger:      zerolog.Nop(),
	}
}

// RTPAudioStats tracks output statistics.
type RTPAudioStats struct {
	Callbacks    uint64
	Underruns    uint64 // callbacks that returned less than a full period
	PacketsSent  uint64
	BytesSent    uint64
	WriteErrors  uint64
	SilenceBytes uint64
}

// RTPAudioOutput is a paced audio device. Every period it asks a fill
// callback for one period of S16 PCM, pads the remainder with silence and
// sends it as L16 RTP packets.
type RTPAudioOutput struct {
	cfg       RTPAudioConfig
	log       zerolog.Logger
	spec      AudioSpec
	period    []byte
	sequencer rtp.Sequencer
	timestamp uint32

	running atomic.Bool
	closed  atomic.Bool
	done    chan struct{}
	once    sync.Once

	statsMu sync.Mutex
	stats   RTPAudioStats
}

// NewRTPAudioOutput validates cfg and returns an idle output.
func NewRTPAudioOutput(cfg RTPAudioConfig) (*RTPAudioOutput, error) {
	def := DefaultRTPAudioConfig()
	if cfg.Writer == nil {
		return nil, errors.New("rtp audio: nil writer")
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = def.Channels
	}
	if cfg.Period <= 0 {
		cfg.Period = def.Period
	}
	if cfg.PayloadType == 0 {
		cfg.PayloadType = def.PayloadType
	}
	if cfg.MTU <= 0 {
		cfg.MTU = def.MTU
	}
	spec := AudioSpec{Format: SampleFormatS16, SampleRate: cfg.SampleRate, Channels: cfg.Channels}
	if cfg.MTU-rtpHeaderSize < spec.BytesPerFrame() {
		return nil, fmt.Errorf("rtp audio: MTU %d cannot carry one sample period", cfg.MTU)
	}
	samples := int(int64(cfg.SampleRate) * int64(cfg.Period) / int64(time.Second))
	if samples <= 0 {
		return nil, fmt.Errorf("rtp audio: period %s is shorter than one sample", cfg.Period)
	}
	return &RTPAudioOutput{
		cfg:       cfg,
		log:       cfg.Logger.With().Str("component", "rtp-audio").Logger(),
		spec:      spec,
		period:    make([]byte, samples*spec.BytesPerFrame()),
		sequencer: rtp.NewRandomSequencer(),
		done:      make(chan struct{}),
	}, nil
}

// Spec returns the obtained device spec, to be passed to Player.SetAudioSpec.
func (o *RTPAudioOutput) Spec() AudioSpec { return o.spec }

// PeriodBytes returns the size of the buffer handed to the fill callback.
func (o *RTPAudioOutput) PeriodBytes() int { return len(o.period) }

// Start runs the device loop until ctx is done or Close is called. fill is
// called from this goroutine only.
func (o *RTPAudioOutput) Start(ctx context.Context, fill func([]byte) int) error {
	if o.closed.Load() {
		return ErrOutputClosed
	}
	if !o.running.CompareAndSwap(false, true) {
		return errors.New("rtp audio: already started")
	}
	defer o.running.Store(false)

	o.log.Info().
		Stringer("spec", o.spec).
		Dur("period", o.cfg.Period).
		Uint8("payload_type", o.cfg.PayloadType).
		Msg("audio output started")

	ticker := time.NewTicker(o.cfg.Period)
	defer ticker.Stop()
	marker := true
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.done:
			return nil
		case <-ticker.C:
		}
		o.Tick(fill, marker)
		marker = false
	}
}

// Tick runs one device period synchronously: fill, pad, packetize and send.
func (o *RTPAudioOutput) Tick(fill func([]byte) int, marker bool) {
	n := fill(o.period)
	n = max(0, min(n, len(o.period)))
	clear(o.period[n:])

	o.statsMu.Lock()
	o.stats.Callbacks++
	if n < len(o.period) {
		o.stats.Underruns++
		o.stats.SilenceBytes += uint64(len(o.period) - n)
	}
	o.statsMu.Unlock()

	o.send(o.period, marker)
}

// send splits one period into MTU-sized L16 packets. Samples are converted
// from native to network byte order.
func (o *RTPAudioOutput) send(pcm []byte, marker bool) {
	frame := o.spec.BytesPerFrame()
	maxPayload := (o.cfg.MTU - rtpHeaderSize) / frame * frame
	for len(pcm) > 0 {
		chunk := pcm[:min(len(pcm), maxPayload)]
		pcm = pcm[len(chunk):]

		payload := make([]byte, len(chunk))
		for i := 0; i+1 < len(chunk); i += 2 {
			binary.BigEndian.PutUint16(payload[i:], binary.NativeEndian.Uint16(chunk[i:]))
		}
		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         marker,
				PayloadType:    o.cfg.PayloadType,
				SequenceNumber: o.sequencer.NextSequenceNumber(),
				Timestamp:      o.timestamp,
				SSRC:           o.cfg.SSRC,
			},
			Payload: payload,
		}
		marker = false
		o.timestamp += uint32(len(chunk) / frame)

		raw, err := pkt.Marshal()
		if err == nil {
			_, err = o.cfg.Writer.Write(raw)
		}
		o.statsMu.Lock()
		if err != nil {
			o.stats.WriteErrors++
		} else {
			o.stats.PacketsSent++
			o.stats.BytesSent += uint64(len(raw))
		}
		o.statsMu.Unlock()
		if err != nil {
			o.log.Warn().Err(err).Msg("rtp write failed")
		}
	}
}

// Stats returns a snapshot of the output counters.
func (o *RTPAudioOutput) Stats() RTPAudioStats {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()
	return o.stats
}

// Close stops a running loop. It does not close the writer.
func (o *RTPAudioOutput) Close() error {
	o.once.Do(func() {
		o.closed.Store(true)
		close(o.done)
	})
	return nil
}
