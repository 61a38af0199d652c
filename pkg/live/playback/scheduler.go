// Package playback schedules decoded agent audio for gapless, ordered
// output and supports abrupt cancellation when the user barges in.
package playback

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/vango-go/vox/pkg/live/audio"
)

// Handle controls one scheduled playback unit.
type Handle interface {
	// Stop cancels the unit immediately. Safe to call more than once.
	Stop()
}

// Clock is the output audio clock provided by the audio I/O layer.
// Now and Schedule share one timeline measured in seconds.
type Clock interface {
	Now() float64
	// Schedule queues a sample buffer to start playing at startAt and
	// invokes onEnded once the buffer finishes naturally.
	Schedule(samples []float32, startAt float64, onEnded func()) (Handle, error)
	Close() error
}

// Scheduler decodes inbound audio frames and schedules them back to back
// on the output clock.
//
// All methods are safe for concurrent use; in the session's event-driven
// model they are invoked from a single event loop, and the internal lock
// only guards against a completion callback racing a barge-in.
type Scheduler struct {
	clock  Clock
	rate   int
	logger *slog.Logger

	mu     sync.Mutex
	cursor float64
	gen    uint64
	nextID uint64
	units  map[uint64]Handle
	closed bool
}

// NewScheduler creates a scheduler over the given output clock.
// sampleRateHz is the inbound frame sample rate (24 kHz on this wire).
func NewScheduler(clock Clock, sampleRateHz int, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		clock:  clock,
		rate:   sampleRateHz,
		logger: logger,
		units:  make(map[uint64]Handle),
	}
}

// OnAudio decodes one base64 PCM16 frame and schedules it at
// max(cursor, now): late frames resume immediately instead of being
// scheduled in the past, queued frames stay gapless. A malformed payload
// is dropped and reported; the session continues.
func (s *Scheduler) OnAudio(payload string) error {
	samples, err := audio.DecodePCM16(payload)
	if err != nil {
		return fmt.Errorf("drop inbound audio frame: %w", err)
	}
	if len(samples) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	start := s.cursor
	if now := s.clock.Now(); now > start {
		start = now
	}

	gen := s.gen
	id := s.nextID
	s.nextID++

	handle, err := s.clock.Schedule(samples, start, func() {
		s.onEnded(gen, id)
	})
	if err != nil {
		return fmt.Errorf("schedule inbound audio frame: %w", err)
	}

	s.units[id] = handle
	s.cursor = start + audio.Duration(len(samples), s.rate)
	return nil
}

// onEnded releases a unit after it finished playing. The generation token
// keeps a completion that raced a barge-in from touching state that was
// already reset.
func (s *Scheduler) onEnded(gen, id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	delete(s.units, id)
}

// BargeIn stops every scheduled unit, clears the live set, and resets the
// cursor to zero. Idempotent and safe with an empty set.
func (s *Scheduler) BargeIn() {
	s.mu.Lock()
	stopped := make([]Handle, 0, len(s.units))
	for _, handle := range s.units {
		stopped = append(stopped, handle)
	}
	n := len(s.units)
	s.units = make(map[uint64]Handle)
	s.cursor = 0
	s.gen++
	s.mu.Unlock()

	for _, handle := range stopped {
		handle.Stop()
	}
	if n > 0 {
		s.logger.Debug("barge-in stopped playback", "units", n)
	}
}

// Stop performs barge-in cleanup and releases the output clock. A clock
// release failure is logged, never propagated: teardown must not stall.
func (s *Scheduler) Stop() {
	s.BargeIn()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.clock.Close(); err != nil {
		s.logger.Warn("close output clock", "error", err)
	}
}

// Cursor returns the current scheduling watermark in seconds.
func (s *Scheduler) Cursor() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Pending returns the number of scheduled-but-not-ended units.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.units)
}
