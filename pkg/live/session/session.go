// Package session composes capture, playback, and transcript aggregation
// around a bidirectional channel to the remote conversational agent.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vango-go/vox/internal/metrics"
	"github.com/vango-go/vox/pkg/live/audio"
	"github.com/vango-go/vox/pkg/live/playback"
	"github.com/vango-go/vox/pkg/live/transcript"
	"github.com/vango-go/vox/pkg/live/wire"
)

// State is the session lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateStopping
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateActive:
		return "ACTIVE"
	case StateStopping:
		return "STOPPING"
	default:
		return "UNKNOWN"
	}
}

// Channel is the agent link. Inbound events arrive strictly in wire order;
// SendAudio is fire-and-forget and must queue frames that arrive while the
// setup handshake is still completing.
type Channel interface {
	// WaitReady blocks until the setup handshake completes or the channel
	// terminally fails.
	WaitReady(ctx context.Context) error
	Events() <-chan wire.Event
	SendAudio(frame wire.ClientAudioDelta) error
	// Err returns the terminal channel error once Events is closed; nil
	// means a graceful close.
	Err() error
	Close() error
}

// Dialer opens a channel to the remote agent with the given setup.
type Dialer func(ctx context.Context, setup wire.Setup) (Channel, error)

// CaptureStream is an open microphone stream.
type CaptureStream interface {
	audio.CaptureSource
	Close() error
}

// AudioProvider exposes the platform audio I/O primitives.
type AudioProvider interface {
	// Capture opens the microphone at the given rate, delivering
	// chunkSamples-sized float chunks.
	Capture(sampleRateHz, chunkSamples int) (CaptureStream, error)
	// PlaybackClock opens the output clock used to schedule agent audio.
	PlaybackClock(sampleRateHz int) (playback.Clock, error)
}

// Options configures a Controller.
type Options struct {
	Dial     Dialer
	Provider AudioProvider
	Voice    wire.Voice

	// ChunkSamples is the capture chunk size; defaults to
	// audio.DefaultChunkSamples.
	ChunkSamples int

	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// OnStatus receives user-visible status lines.
	OnStatus func(status string)
	// OnTranscript receives a transcript snapshot after each change.
	OnTranscript func(turns []transcript.Turn)
}

// Controller drives one live voice session at a time through
// Idle -> Connecting -> Active -> Idle.
type Controller struct {
	dial         Dialer
	provider     AudioProvider
	voice        wire.Voice
	chunkSamples int
	logger       *slog.Logger
	metrics      *metrics.Metrics
	onStatus     func(string)
	onTranscript func([]transcript.Turn)

	transcript *transcript.Aggregator

	mu        sync.Mutex
	state     State
	status    string
	ch        Channel
	mic       CaptureStream
	sched     *playback.Scheduler
	cancel    context.CancelFunc
	startedAt time.Time
}

// New creates an idle controller.
func New(opts Options) (*Controller, error) {
	if opts.Dial == nil {
		return nil, fmt.Errorf("session: Dial is required")
	}
	if opts.Provider == nil {
		return nil, fmt.Errorf("session: Provider is required")
	}
	if !wire.ValidVoice(opts.Voice) {
		return nil, fmt.Errorf("session: unknown voice %q", opts.Voice)
	}
	if opts.ChunkSamples <= 0 {
		opts.ChunkSamples = audio.DefaultChunkSamples
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Controller{
		dial:         opts.Dial,
		provider:     opts.Provider,
		voice:        opts.Voice,
		chunkSamples: opts.ChunkSamples,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		onStatus:     opts.OnStatus,
		onTranscript: opts.OnTranscript,
		transcript:   transcript.NewAggregator(),
		state:        StateIdle,
	}, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns the last user-visible status line.
func (c *Controller) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Transcript returns a snapshot of the current conversation.
func (c *Controller) Transcript() []transcript.Turn {
	return c.transcript.Turns()
}

// Start opens a new session. Any existing session is fully torn down
// first; exactly one session is live at a time.
func (c *Controller) Start(ctx context.Context) error {
	c.Stop()

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return fmt.Errorf("session: cannot start from %s", c.state)
	}
	c.state = StateConnecting
	c.mu.Unlock()

	c.setStatus("connecting")
	c.transcript.Reset()

	ch, err := c.dial(ctx, wire.NewSetup(c.voice))
	if err != nil {
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		c.setStatus("connection failed")
		return NewError(FailChannelError, "dial agent channel", err)
	}

	sctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.ch = ch
	c.cancel = cancel
	c.startedAt = time.Now()
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SessionsTotal.Inc()
	}

	go c.run(sctx, ch)
	return nil
}

// run owns the session's single event timeline: it finishes the handshake,
// wires capture, then processes inbound events strictly in arrival order.
func (c *Controller) run(ctx context.Context, ch Channel) {
	if err := ch.WaitReady(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		c.fail(NewError(FailChannelError, "agent channel setup failed", err))
		return
	}

	mic, err := c.provider.Capture(wire.CaptureSampleRateHz, c.chunkSamples)
	if err != nil {
		c.fail(NewError(FailPermissionDenied, "microphone unavailable", err))
		return
	}

	clock, err := c.provider.PlaybackClock(wire.PlaybackSampleRateHz)
	if err != nil {
		if cerr := mic.Close(); cerr != nil {
			c.logger.Warn("close microphone", "error", cerr)
		}
		c.fail(NewError(FailPermissionDenied, "audio output unavailable", err))
		return
	}

	sched := playback.NewScheduler(clock, wire.PlaybackSampleRateHz, c.logger)

	c.mu.Lock()
	if c.state != StateConnecting {
		// Stopped while the handshake was completing.
		c.mu.Unlock()
		_ = mic.Close()
		sched.Stop()
		return
	}
	c.mic = mic
	c.sched = sched
	c.state = StateActive
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SessionsActive.Inc()
	}
	c.setStatus("connected")
	c.logger.Info("session active", "voice", string(c.voice))

	enc := audio.NewCaptureEncoder(mic, &countingSink{ch: ch, metrics: c.metrics}, c.logger)
	go func() {
		if err := enc.Run(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn("capture loop ended", "error", err)
		}
	}()

	for ev := range ch.Events() {
		if !c.handleEvent(ev, sched) {
			return
		}
	}

	// Inbound stream ended without an explicit error/closed frame.
	if ctx.Err() != nil {
		return
	}
	if err := ch.Err(); err != nil {
		c.fail(NewError(FailChannelError, "agent channel failed", err))
		return
	}
	c.fail(NewError(FailChannelClosed, "agent closed the session", nil))
}

// handleEvent applies one inbound event; effects complete before the next
// event is read. Returns false when the session is over.
func (c *Controller) handleEvent(ev wire.Event, sched *playback.Scheduler) bool {
	switch e := ev.(type) {
	case wire.AudioDeltaEvent:
		if c.metrics != nil {
			c.metrics.FramesReceived.Inc()
		}
		if err := sched.OnAudio(e.DataB64); err != nil {
			if c.metrics != nil {
				c.metrics.DecodeFailures.Inc()
			}
			c.logger.Warn("dropped inbound audio frame", "error", err)
		}
	case wire.TranscriptDeltaEvent:
		c.transcript.OnFragment(e.Speaker, e.Text)
		c.notifyTranscript()
	case wire.TurnCompleteEvent:
		c.transcript.OnTurnComplete()
	case wire.InterruptedEvent:
		sched.BargeIn()
		if c.metrics != nil {
			c.metrics.BargeIns.Inc()
		}
	case wire.ErrorEvent:
		c.fail(NewError(FailChannelError, e.Message, nil))
		return false
	case wire.ClosedEvent:
		c.fail(NewError(FailChannelClosed, "agent closed the session", nil))
		return false
	default:
		// setup_ack duplicates and unknown frames are ignored.
	}
	return true
}

// Stop tears the session down deterministically. Calling Stop when already
// idle is a no-op; resources are never double-released.
func (c *Controller) Stop() {
	c.teardown("stopped")
}

// fail surfaces a session failure as a status line and forces teardown.
func (c *Controller) fail(err *Error) {
	switch err.Kind {
	case FailChannelClosed:
		c.logger.Info("session ended", "reason", err.Message)
	default:
		c.logger.Error("session failed", "kind", string(err.Kind), "error", err)
		if c.metrics != nil && err.Kind == FailChannelError {
			c.metrics.ChannelErrors.Inc()
		}
	}
	c.teardown(statusFor(err))
}

func (c *Controller) teardown(status string) {
	c.mu.Lock()
	if c.state == StateIdle || c.state == StateStopping {
		c.mu.Unlock()
		return
	}
	wasActive := c.state == StateActive
	c.state = StateStopping
	ch, mic, sched, cancel := c.ch, c.mic, c.sched, c.cancel
	startedAt := c.startedAt
	c.ch, c.mic, c.sched, c.cancel = nil, nil, nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	// Best-effort, in order: channel, capture, playback clock. A release
	// failure is logged and never blocks the rest of the sequence.
	if ch != nil {
		if err := ch.Close(); err != nil {
			c.logger.Warn("close agent channel", "error", NewError(FailResourceRelease, "channel", err))
		}
	}
	if mic != nil {
		if err := mic.Close(); err != nil {
			c.logger.Warn("close microphone", "error", NewError(FailResourceRelease, "microphone", err))
		}
	}
	if sched != nil {
		sched.Stop()
	}

	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()

	if c.metrics != nil && wasActive {
		c.metrics.SessionsActive.Dec()
		c.metrics.SessionDuration.Observe(time.Since(startedAt).Seconds())
	}
	c.setStatus(status)
}

func statusFor(err *Error) string {
	switch err.Kind {
	case FailPermissionDenied:
		return "microphone or speaker unavailable"
	case FailChannelClosed:
		return "session ended"
	default:
		return "connection error: " + err.Message
	}
}

func (c *Controller) setStatus(status string) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
	if c.onStatus != nil {
		c.onStatus(status)
	}
}

func (c *Controller) notifyTranscript() {
	if c.onTranscript != nil {
		c.onTranscript(c.transcript.Turns())
	}
}

// countingSink forwards capture frames to the channel and counts them.
type countingSink struct {
	ch      Channel
	metrics *metrics.Metrics
}

func (s *countingSink) SendAudio(frame wire.ClientAudioDelta) error {
	if err := s.ch.SendAudio(frame); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.FramesSent.Inc()
	}
	return nil
}
