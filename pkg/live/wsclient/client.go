// Package wsclient implements the live agent channel over a websocket.
//
// Dialing returns as soon as the socket is open and the setup frame is on
// the wire; the setup_ack arrives on the read loop. Audio frames sent
// before the ack are queued and flushed once the channel is ready, so the
// capture side never has to wait on the handshake.
package wsclient

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/vox/pkg/live/wire"
)

const (
	defaultDialTimeout = 15 * time.Second
	eventBuffer        = 256
)

// Options configures a channel dial.
type Options struct {
	// URL is the websocket endpoint of the agent gateway.
	URL string
	// APIKey, when set, is sent as a bearer token on the upgrade request.
	APIKey string
	// DialTimeout bounds the websocket dial when the caller's context has
	// no deadline of its own. Zero means a 15 second default.
	DialTimeout time.Duration
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Channel is a live websocket connection to the agent.
type Channel struct {
	conn   *websocket.Conn
	logger *slog.Logger

	events chan wire.Event
	ready  chan struct{}
	stop   chan struct{}
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool

	pendingMu sync.Mutex
	pending   []wire.ClientAudioDelta
	acked     bool

	errMu sync.Mutex
	err   error
}

// Dial opens the websocket, sends the setup frame, and starts the read
// loop. It does not wait for the setup_ack; use WaitReady for that.
func Dial(ctx context.Context, setup wire.Setup, opts Options) (*Channel, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("wsclient: URL is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}

	headers := make(http.Header)
	if opts.APIKey != "" {
		headers.Set("Authorization", "Bearer "+opts.APIKey)
	}

	dialer := websocket.DefaultDialer
	if dialer == nil {
		dialer = &websocket.Dialer{}
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	conn, resp, err := dialer.DialContext(dialCtx, opts.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("wsclient: dial %s (status %d): %w", opts.URL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("wsclient: dial %s: %w", opts.URL, err)
	}

	if err := conn.WriteJSON(setup); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("wsclient: send setup: %w", err)
	}

	c := &Channel{
		conn:   conn,
		logger: logger,
		events: make(chan wire.Event, eventBuffer),
		ready:  make(chan struct{}),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// WaitReady blocks until the agent acknowledges the setup frame, the
// channel fails, or ctx is done.
func (c *Channel) WaitReady(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("wsclient: channel must not be nil")
	}
	select {
	case <-c.ready:
		return nil
	case <-c.done:
		if err := c.Err(); err != nil {
			return err
		}
		return fmt.Errorf("wsclient: channel closed before setup_ack")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events yields decoded inbound frames in arrival order. The channel is
// closed when the read loop ends.
func (c *Channel) Events() <-chan wire.Event {
	if c == nil {
		return nil
	}
	return c.events
}

// SendAudio writes one captured audio frame. Frames sent before the
// setup_ack are queued and flushed on acknowledgement, preserving order.
func (c *Channel) SendAudio(frame wire.ClientAudioDelta) error {
	if c == nil {
		return fmt.Errorf("wsclient: channel must not be nil")
	}
	if c.closed.Load() {
		return fmt.Errorf("wsclient: channel is closed")
	}

	c.pendingMu.Lock()
	if !c.acked {
		c.pending = append(c.pending, frame)
		c.pendingMu.Unlock()
		return nil
	}
	c.pendingMu.Unlock()

	return c.sendJSON(frame)
}

func (c *Channel) sendJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// flushPending sends frames queued before the ack. Runs once, on the read
// loop goroutine, immediately after the setup_ack.
func (c *Channel) flushPending() {
	c.pendingMu.Lock()
	queued := c.pending
	c.pending = nil
	c.acked = true
	c.pendingMu.Unlock()

	for _, frame := range queued {
		if err := c.sendJSON(frame); err != nil {
			c.logger.Warn("flush queued audio frame", "error", err)
			return
		}
	}
}

// Close sends a normal-closure frame and tears the socket down. Safe to
// call more than once; it returns after the read loop has ended.
func (c *Channel) Close() error {
	if c == nil {
		return nil
	}
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.stop)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(2*time.Second))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
	<-c.done
	return nil
}

// Err returns the terminal channel error, if any, once the read loop has
// ended. A clean remote close yields nil.
func (c *Channel) Err() error {
	if c == nil {
		return nil
	}
	select {
	case <-c.done:
	default:
		return nil
	}
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Channel) setErr(err error) {
	if err == nil {
		return
	}
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *Channel) readLoop() {
	defer close(c.done)
	defer close(c.events)

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			if c.closed.Load() {
				return
			}
			c.setErr(err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		event, err := wire.DecodeServerFrame(data)
		if err != nil {
			c.logger.Warn("dropped malformed frame", "error", err)
			continue
		}

		if _, ok := event.(wire.SetupAckEvent); ok {
			c.flushPending()
			select {
			case <-c.ready:
			default:
				close(c.ready)
			}
		}

		if !c.emit(event) {
			return
		}
	}
}

// emit blocks rather than dropping: inbound ordering is part of the
// protocol contract. A pending Close unblocks it.
func (c *Channel) emit(event wire.Event) bool {
	select {
	case c.events <- event:
		return true
	case <-c.stop:
		return false
	}
}
