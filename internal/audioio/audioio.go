// Package audioio binds the session layer to real audio hardware: a malgo
// capture device for the microphone and an oto player for agent audio.
package audioio

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"

	"github.com/vango-go/vox/pkg/live/playback"
	"github.com/vango-go/vox/pkg/live/session"
)

// The capture and speaker contexts are process-wide. oto in particular
// allows exactly one context per process, so both are created lazily and
// kept for the process lifetime; per-session state lives in the devices
// and players built on top of them.
var (
	malgoOnce sync.Once
	malgoCtx  *malgo.AllocatedContext
	malgoErr  error

	otoOnce sync.Once
	otoCtx  *oto.Context
	otoRate int
	otoErr  error
)

func captureContext() (malgo.Context, error) {
	malgoOnce.Do(func() {
		cfg := malgo.ContextConfig{}
		cfg.ThreadPriority = malgo.ThreadPriorityRealtime
		malgoCtx, malgoErr = malgo.InitContext(nil, cfg, nil)
	})
	if malgoErr != nil {
		return malgo.Context{}, fmt.Errorf("audioio: init capture context: %w", malgoErr)
	}
	return malgoCtx.Context, nil
}

func speakerContext(sampleRateHz int) (*oto.Context, error) {
	otoOnce.Do(func() {
		var ready chan struct{}
		otoRate = sampleRateHz
		otoCtx, ready, otoErr = oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRateHz,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
			// ~100ms of 16-bit mono; small enough to keep barge-in snappy.
			BufferSize: sampleRateHz / 10 * 2,
		})
		if otoErr == nil {
			<-ready
		}
	})
	if otoErr != nil {
		return nil, fmt.Errorf("audioio: init speaker context: %w", otoErr)
	}
	if sampleRateHz != otoRate {
		return nil, fmt.Errorf("audioio: speaker context is fixed at %d Hz, requested %d", otoRate, sampleRateHz)
	}
	return otoCtx, nil
}

// Provider opens hardware-backed capture streams and playback clocks.
type Provider struct {
	logger *slog.Logger
}

func NewProvider(logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{logger: logger}
}

// Capture opens the default microphone at the given rate, mono S16, and
// returns a stream of chunkSamples-sized float32 chunks.
func (p *Provider) Capture(sampleRateHz, chunkSamples int) (session.CaptureStream, error) {
	ctx, err := captureContext()
	if err != nil {
		return nil, err
	}

	m := &Microphone{
		chunkBytes: chunkSamples * 2,
		notify:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRateHz)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			m.mu.Lock()
			m.buf = append(m.buf, input...)
			m.mu.Unlock()
			select {
			case m.notify <- struct{}{}:
			default:
			}
		},
	}

	device, err := malgo.InitDevice(ctx, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("audioio: open microphone: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("audioio: start microphone: %w", err)
	}
	m.device = device
	p.logger.Debug("microphone opened", "rate_hz", sampleRateHz, "chunk_samples", chunkSamples)
	return m, nil
}

// PlaybackClock opens a speaker-backed clock for agent audio.
func (p *Provider) PlaybackClock(sampleRateHz int) (playback.Clock, error) {
	ctx, err := speakerContext(sampleRateHz)
	if err != nil {
		return nil, err
	}
	c := &SpeakerClock{
		oto:    ctx,
		rate:   sampleRateHz,
		epoch:  time.Now(),
		logger: p.logger,
	}
	c.cond = sync.NewCond(&c.mu)
	p.logger.Debug("speaker clock opened", "rate_hz", sampleRateHz)
	return c, nil
}
