package audioio

import (
	"encoding/binary"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/vango-go/vox/pkg/live/playback"
)

// SpeakerClock plays scheduled audio through an oto player and exposes a
// monotonic clock anchored at its creation. Units queue their PCM into a
// shared timeline buffer when their start time arrives; the player pulls
// from that buffer, so back-to-back units play gaplessly.
type SpeakerClock struct {
	oto    *oto.Context
	rate   int
	epoch  time.Time
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	buf     []byte
	player  *oto.Player
	playing bool
	closed  bool
}

// Now returns seconds elapsed since the clock was opened.
func (c *SpeakerClock) Now() float64 {
	return time.Since(c.epoch).Seconds()
}

// Schedule queues samples to start playing at startAt seconds on this
// clock. onEnded fires on a background goroutine once the unit's duration
// has elapsed; it is never invoked from inside Schedule.
func (c *SpeakerClock) Schedule(samples []float32, startAt float64, onEnded func()) (playback.Handle, error) {
	data := make([]byte, len(samples)*2)
	for i, f := range samples {
		v := math.Round(float64(f) * 32768.0)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(data[i*2:], uint16(int16(v)))
	}

	unit := &speakerUnit{stop: make(chan struct{})}
	duration := time.Duration(float64(len(samples)) / float64(c.rate) * float64(time.Second))
	go c.runUnit(unit, data, startAt, duration, onEnded)
	return unit, nil
}

func (c *SpeakerClock) runUnit(unit *speakerUnit, data []byte, startAt float64, duration time.Duration, onEnded func()) {
	if delay := time.Duration((startAt - c.Now()) * float64(time.Second)); delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-unit.stop:
			return
		case <-timer.C:
		}
	}

	if !c.enqueue(data) {
		return
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-unit.stop:
		c.flush()
	case <-timer.C:
		onEnded()
	}
}

// enqueue appends PCM to the timeline and starts the player on first use.
func (c *SpeakerClock) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.buf = append(c.buf, data...)
	if !c.playing {
		c.playing = true
		c.player = c.oto.NewPlayer(c)
		c.player.Play()
	}
	c.cond.Signal()
	return true
}

// flush drops all buffered audio and resets the player so stale agent
// speech stops within one device period.
func (c *SpeakerClock) flush() {
	c.mu.Lock()
	c.buf = c.buf[:0]
	if c.player != nil && c.playing {
		c.playing = false
		player := c.player
		c.player = nil
		c.mu.Unlock()
		player.Pause()
		player.Reset()
		player.Close()
		return
	}
	c.mu.Unlock()
}

// Read feeds the oto player from the timeline buffer.
func (c *SpeakerClock) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.buf) == 0 && !c.closed {
		c.cond.Wait()
	}

	if c.closed && len(c.buf) == 0 {
		// Silence keeps oto draining cleanly until the player closes.
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n := copy(p, c.buf)
	c.buf = c.buf[n:]
	return n, nil
}

// Close releases the player. The shared speaker context stays open for
// the next session.
func (c *SpeakerClock) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.cond.Broadcast()
	player := c.player
	c.player = nil
	c.playing = false
	c.mu.Unlock()

	if player != nil {
		player.Close()
	}
	return nil
}

type speakerUnit struct {
	once sync.Once
	stop chan struct{}
}

func (u *speakerUnit) Stop() {
	u.once.Do(func() { close(u.stop) })
}
