package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vango-go/vox/pkg/live/audio"
	"github.com/vango-go/vox/pkg/live/playback"
	"github.com/vango-go/vox/pkg/live/wire"
)

type fakeChannel struct {
	ready  chan struct{}
	events chan wire.Event

	mu     sync.Mutex
	sent   []wire.ClientAudioDelta
	closed bool
	err    error
}

func newFakeChannel() *fakeChannel {
	ch := &fakeChannel{
		ready:  make(chan struct{}),
		events: make(chan wire.Event, 64),
	}
	close(ch.ready)
	return ch
}

func (c *fakeChannel) WaitReady(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ready:
		return nil
	}
}

func (c *fakeChannel) Events() <-chan wire.Event { return c.events }

func (c *fakeChannel) SendAudio(frame wire.ClientAudioDelta) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, frame)
	return nil
}

func (c *fakeChannel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	return nil
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeMic struct {
	mu     sync.Mutex
	closed bool
}

func (m *fakeMic) ReadChunk(ctx context.Context) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (m *fakeMic) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *fakeMic) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type fakeHandle struct{}

func (fakeHandle) Stop() {}

type fakeClock struct {
	mu     sync.Mutex
	starts []float64
	closed bool
}

func (c *fakeClock) Now() float64 { return 0 }

func (c *fakeClock) Schedule(samples []float32, startAt float64, onEnded func()) (playback.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts = append(c.starts, startAt)
	return fakeHandle{}, nil
}

func (c *fakeClock) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeClock) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeProvider struct {
	mic     *fakeMic
	clock   *fakeClock
	micErr  error
	clkErr  error
	capture int
}

func (p *fakeProvider) Capture(sampleRateHz, chunkSamples int) (CaptureStream, error) {
	p.capture++
	if p.micErr != nil {
		return nil, p.micErr
	}
	return p.mic, nil
}

func (p *fakeProvider) PlaybackClock(sampleRateHz int) (playback.Clock, error) {
	if p.clkErr != nil {
		return nil, p.clkErr
	}
	return p.clock, nil
}

func newTestController(t *testing.T, ch *fakeChannel, provider *fakeProvider) *Controller {
	t.Helper()
	c, err := New(Options{
		Dial: func(ctx context.Context, setup wire.Setup) (Channel, error) {
			if setup.Voice != wire.VoicePuck {
				t.Errorf("setup voice=%q", setup.Voice)
			}
			return ch, nil
		},
		Provider: provider,
		Voice:    wire.VoicePuck,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func waitState(t *testing.T, c *Controller, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state=%s, want %s", c.State(), want)
}

func waitStatus(t *testing.T, c *Controller, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Status() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("status=%q, want %q", c.Status(), want)
}

func TestControllerStartToActive(t *testing.T) {
	ch := newFakeChannel()
	provider := &fakeProvider{mic: &fakeMic{}, clock: &fakeClock{}}
	c := newTestController(t, ch, provider)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitState(t, c, StateActive)

	if provider.capture != 1 {
		t.Fatalf("capture opened %d times", provider.capture)
	}
	c.Stop()
	waitState(t, c, StateIdle)
}

func TestControllerRoutesEvents(t *testing.T) {
	ch := newFakeChannel()
	provider := &fakeProvider{mic: &fakeMic{}, clock: &fakeClock{}}
	c := newTestController(t, ch, provider)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitState(t, c, StateActive)

	ch.events <- wire.AudioDeltaEvent{DataB64: audio.EncodePCM16(make([]float32, 2400))}
	ch.events <- wire.TranscriptDeltaEvent{Speaker: wire.SpeakerAgent, Text: "Hi "}
	ch.events <- wire.TranscriptDeltaEvent{Speaker: wire.SpeakerAgent, Text: "there"}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		provider.clock.mu.Lock()
		scheduled := len(provider.clock.starts)
		provider.clock.mu.Unlock()
		if scheduled == 1 && len(c.Transcript()) == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	turns := c.Transcript()
	if len(turns) != 1 || turns[0].Text != "Hi there" {
		t.Fatalf("transcript=%+v", turns)
	}

	c.Stop()
	waitState(t, c, StateIdle)
}

func TestControllerStopReleasesResources(t *testing.T) {
	ch := newFakeChannel()
	provider := &fakeProvider{mic: &fakeMic{}, clock: &fakeClock{}}
	c := newTestController(t, ch, provider)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitState(t, c, StateActive)

	c.Stop()
	waitState(t, c, StateIdle)

	if !ch.isClosed() {
		t.Fatal("channel not closed")
	}
	if !provider.mic.isClosed() {
		t.Fatal("microphone not released")
	}
	if !provider.clock.isClosed() {
		t.Fatal("output clock not released")
	}
}

func TestControllerStopIsIdempotent(t *testing.T) {
	ch := newFakeChannel()
	provider := &fakeProvider{mic: &fakeMic{}, clock: &fakeClock{}}
	c := newTestController(t, ch, provider)

	// Stop on a never-started controller is a no-op.
	c.Stop()

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitState(t, c, StateActive)

	c.Stop()
	c.Stop()
	waitState(t, c, StateIdle)
}

func TestControllerStopWhileConnecting(t *testing.T) {
	ch := newFakeChannel()
	ch.ready = make(chan struct{}) // never becomes ready
	provider := &fakeProvider{mic: &fakeMic{}, clock: &fakeClock{}}
	c := newTestController(t, ch, provider)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := c.State(); got != StateConnecting {
		t.Fatalf("state=%s, want CONNECTING", got)
	}

	c.Stop()
	waitState(t, c, StateIdle)
	if !ch.isClosed() {
		t.Fatal("channel not closed")
	}
}

func TestControllerMicrophoneDenied(t *testing.T) {
	ch := newFakeChannel()
	provider := &fakeProvider{micErr: errors.New("access denied"), clock: &fakeClock{}}
	c := newTestController(t, ch, provider)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitState(t, c, StateIdle)
	waitStatus(t, c, "microphone or speaker unavailable")

	if !ch.isClosed() {
		t.Fatal("channel not closed after mic failure")
	}
}

func TestControllerRemoteErrorTearsDown(t *testing.T) {
	ch := newFakeChannel()
	provider := &fakeProvider{mic: &fakeMic{}, clock: &fakeClock{}}
	c := newTestController(t, ch, provider)

	var statuses []string
	var statusMu sync.Mutex
	c.onStatus = func(s string) {
		statusMu.Lock()
		statuses = append(statuses, s)
		statusMu.Unlock()
	}

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitState(t, c, StateActive)

	ch.events <- wire.ErrorEvent{Code: "overloaded", Message: "agent overloaded"}
	waitState(t, c, StateIdle)
	waitStatus(t, c, "connection error: agent overloaded")

	if !provider.mic.isClosed() || !provider.clock.isClosed() {
		t.Fatal("resources not released after channel error")
	}
	statusMu.Lock()
	last := statuses[len(statuses)-1]
	statusMu.Unlock()
	if last != "connection error: agent overloaded" {
		t.Fatalf("status=%q", last)
	}
}

func TestControllerRemoteCloseIsNeutral(t *testing.T) {
	ch := newFakeChannel()
	provider := &fakeProvider{mic: &fakeMic{}, clock: &fakeClock{}}
	c := newTestController(t, ch, provider)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitState(t, c, StateActive)

	ch.events <- wire.ClosedEvent{Reason: "bye"}
	waitState(t, c, StateIdle)
	waitStatus(t, c, "session ended")
}

func TestControllerInterruptedFlushesPlayback(t *testing.T) {
	ch := newFakeChannel()
	provider := &fakeProvider{mic: &fakeMic{}, clock: &fakeClock{}}
	c := newTestController(t, ch, provider)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitState(t, c, StateActive)

	ch.events <- wire.AudioDeltaEvent{DataB64: audio.EncodePCM16(make([]float32, 12000))}
	ch.events <- wire.InterruptedEvent{}
	// A post-interruption frame must schedule from a reset cursor.
	ch.events <- wire.AudioDeltaEvent{DataB64: audio.EncodePCM16(make([]float32, 2400))}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		provider.clock.mu.Lock()
		n := len(provider.clock.starts)
		provider.clock.mu.Unlock()
		if n == 2 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	provider.clock.mu.Lock()
	defer provider.clock.mu.Unlock()
	if len(provider.clock.starts) != 2 {
		t.Fatalf("scheduled=%d, want 2", len(provider.clock.starts))
	}
	if provider.clock.starts[1] != 0 {
		t.Fatalf("post-interrupt start=%f, want 0 (reset cursor)", provider.clock.starts[1])
	}

	c.mu.Lock()
	sched := c.sched
	c.mu.Unlock()
	if sched.Pending() != 1 {
		t.Fatalf("pending=%d, want 1", sched.Pending())
	}
}

func TestNewValidatesOptions(t *testing.T) {
	provider := &fakeProvider{}
	dial := func(ctx context.Context, setup wire.Setup) (Channel, error) { return newFakeChannel(), nil }

	if _, err := New(Options{Provider: provider, Voice: wire.VoicePuck}); err == nil {
		t.Fatal("missing dialer accepted")
	}
	if _, err := New(Options{Dial: dial, Voice: wire.VoicePuck}); err == nil {
		t.Fatal("missing provider accepted")
	}
	if _, err := New(Options{Dial: dial, Provider: provider, Voice: "Narrator"}); err == nil {
		t.Fatal("unknown voice accepted")
	}
}
