// Package transcript folds speaker-tagged text fragments into an ordered,
// display-ready conversation transcript.
package transcript

import (
	"sync"

	"github.com/vango-go/vox/pkg/live/wire"
)

// Turn is one contiguous utterance by one speaker.
type Turn struct {
	Speaker wire.Speaker
	Text    string
}

// Aggregator accumulates streaming fragments into turns. Fragments from
// the same speaker grow the last turn in place, so the UI shows one
// growing bubble instead of many tiny ones.
//
// Coalescing is keyed on the last entry's speaker only, not on an explicit
// turn id: a fragment from the same speaker after turn_complete still
// merges into the previous entry. This mirrors the upstream wire behavior
// and can mis-merge two separate same-speaker turns if a turn_complete is
// lost; kept deliberately.
type Aggregator struct {
	mu    sync.Mutex
	turns []Turn
	accum map[wire.Speaker]string
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{accum: make(map[wire.Speaker]string)}
}

// OnFragment appends text to the speaker's running accumulation buffer and
// updates the transcript: same speaker as the last turn mutates that turn,
// anything else appends a new one.
func (a *Aggregator) OnFragment(speaker wire.Speaker, text string) {
	if text == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.accum[speaker] += text

	if n := len(a.turns); n > 0 && a.turns[n-1].Speaker == speaker {
		a.turns[n-1].Text = a.accum[speaker]
		return
	}
	a.turns = append(a.turns, Turn{Speaker: speaker, Text: a.accum[speaker]})
}

// OnTurnComplete closes the current turn: both accumulation buffers reset,
// the transcript itself is kept.
func (a *Aggregator) OnTurnComplete() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.accum = make(map[wire.Speaker]string)
}

// Reset clears the transcript and accumulators for a fresh session.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.turns = nil
	a.accum = make(map[wire.Speaker]string)
}

// Turns returns a snapshot of the transcript in conversation order.
func (a *Aggregator) Turns() []Turn {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Turn, len(a.turns))
	copy(out, a.turns)
	return out
}

// Len returns the number of turns.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.turns)
}
