package audioio

import (
	"context"
	"encoding/binary"
	"io"
	"sync"

	"github.com/gen2brain/malgo"
)

// Microphone is an open malgo capture device. The device callback appends
// raw S16LE bytes under mu; ReadChunk blocks until a full chunk is
// buffered and converts it to float32 samples in [-1, 1].
type Microphone struct {
	device     *malgo.Device
	chunkBytes int

	mu     sync.Mutex
	buf    []byte
	closed bool

	notify chan struct{}
	done   chan struct{}
}

// ReadChunk returns the next fixed-size chunk of capture samples. It
// returns io.EOF after Close and ctx.Err when the context ends first.
func (m *Microphone) ReadChunk(ctx context.Context) ([]float32, error) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, io.EOF
		}
		if len(m.buf) >= m.chunkBytes {
			raw := m.buf[:m.chunkBytes]
			samples := make([]float32, m.chunkBytes/2)
			for i := range samples {
				s := int16(binary.LittleEndian.Uint16(raw[i*2:]))
				samples[i] = float32(s) / 32768.0
			}
			m.buf = m.buf[:copy(m.buf, m.buf[m.chunkBytes:])]
			m.mu.Unlock()
			return samples, nil
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-m.done:
		case <-m.notify:
		}
	}
}

// Close stops the capture device and wakes any blocked reader.
func (m *Microphone) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.done)
	if m.device != nil {
		_ = m.device.Stop()
		m.device.Uninit()
	}
	return nil
}
