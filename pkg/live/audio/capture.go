package audio

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/vango-go/vox/pkg/live/wire"
)

// DefaultChunkSamples is the fixed capture chunk size delivered by the
// audio provider: 4096 samples, 256 ms at 16 kHz.
const DefaultChunkSamples = 4096

// CaptureSource yields fixed-size chunks of raw float samples in [-1,1].
type CaptureSource interface {
	// ReadChunk blocks until a full chunk is available or ctx is done.
	ReadChunk(ctx context.Context) ([]float32, error)
}

// FrameSink accepts encoded outbound audio frames. Sends are
// fire-and-forget: the sink must tolerate frames arriving while the
// channel is still connecting by queueing them, never by dropping.
type FrameSink interface {
	SendAudio(frame wire.ClientAudioDelta) error
}

// EncodeFrame packs one capture chunk into an outbound audio frame.
func EncodeFrame(samples []float32) wire.ClientAudioDelta {
	return wire.ClientAudioDelta{
		Type:     "audio_delta",
		MimeType: wire.MimePCM16Mic,
		DataB64:  EncodePCM16(samples),
	}
}

// CaptureEncoder pumps microphone chunks into the channel as encoded
// frames.
type CaptureEncoder struct {
	src    CaptureSource
	sink   FrameSink
	logger *slog.Logger
}

// NewCaptureEncoder wires a capture source to a frame sink.
func NewCaptureEncoder(src CaptureSource, sink FrameSink, logger *slog.Logger) *CaptureEncoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CaptureEncoder{src: src, sink: sink, logger: logger}
}

// Run loops until ctx is cancelled or the source ends. Send failures are
// logged and the loop continues; the session controller decides when the
// channel is truly gone.
func (e *CaptureEncoder) Run(ctx context.Context) error {
	for {
		samples, err := e.src.ReadChunk(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if len(samples) == 0 {
			continue
		}
		if err := e.sink.SendAudio(EncodeFrame(samples)); err != nil {
			e.logger.Warn("drop capture frame", "error", err)
		}
	}
}
