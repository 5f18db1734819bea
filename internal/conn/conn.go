package conn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/bluff-sync/internal/notify"
)

var ErrNotConnected = errors.New("not connected")

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

const (
	msgConnecting = "Connecting to game server..."
	msgConnected  = "Successfully connected to game server."
	msgFailed     = "Failed connecting to game server."
	msgLost       = "Lost connection to game server."

	readLimit = 1 << 20
)

type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Handler receives every inbound frame, in order, before anything else
// looks at it.
type Handler interface {
	Deliver(ctx context.Context, data []byte) error
}

// Channel is the live handle to the server. Do not keep it across reconnects.
type Channel interface {
	Send(data []byte) error
}

type Options struct {
	// Server is the default endpoint, "host:port" or a full ws:// URL.
	Server       string
	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

// Manager owns the single connection to the game server. It never
// reconnects on its own.
type Manager struct {
	mu       sync.Mutex
	state    State
	ch       *channel
	override string
	attempt  uint64

	opts     Options
	handler  Handler
	notifier notify.Notifier
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewManager(parent context.Context, opts Options, h Handler, n notify.Notifier, log *zap.Logger) *Manager {
	ctx, cancel := context.WithCancel(parent)
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 3 * time.Second
	}
	return &Manager{
		state:    StateDisconnected,
		opts:     opts,
		handler:  h,
		notifier: n,
		log:      log.Named("conn"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetServerOverride replaces the default endpoint for later attempts. An
// empty value restores the default.
func (m *Manager) SetServerOverride(server string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.override = server
}

func (m *Manager) Endpoint() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endpointLocked()
}

func (m *Manager) endpointLocked() string {
	server := m.opts.Server
	if m.override != "" {
		server = m.override
	}
	if strings.Contains(server, "://") {
		return server
	}
	return "ws://" + server
}

// Channel returns the live handle, or ErrNotConnected.
func (m *Manager) Channel() (Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected || m.ch == nil {
		return nil, ErrNotConnected
	}
	return m.ch, nil
}

// Connect opens a new channel, discarding any previous one. Exactly one of
// the success or failure notifications is emitted per call.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	old := m.ch
	m.ch = nil
	m.attempt++
	attempt := m.attempt
	m.state = StateConnecting
	endpoint := m.endpointLocked()
	m.mu.Unlock()

	if old != nil {
		old.close("reconnecting")
	}

	progress := m.notifier.Progress(msgConnecting)
	dialCtx, cancel := context.WithTimeout(ctx, m.opts.DialTimeout)
	defer cancel()

	c, _, err := websocket.Dial(dialCtx, endpoint, nil)
	progress.Dismiss()
	if err != nil {
		return m.fail(attempt, endpoint, err)
	}
	c.SetReadLimit(readLimit)

	ch := newChannel(m.ctx, c, m.opts.WriteTimeout)

	m.mu.Lock()
	if m.attempt != attempt {
		m.mu.Unlock()
		ch.close("superseded")
		m.notifier.Notify(msgFailed, notify.Failure)
		return &ConnectionError{Endpoint: endpoint, Err: errors.New("superseded by a newer attempt")}
	}
	m.ch = ch
	m.state = StateConnected
	m.mu.Unlock()

	go m.run(ch)

	m.log.Info("connected", zap.String("endpoint", endpoint))
	m.notifier.Notify(msgConnected, notify.Success)
	return nil
}

func (m *Manager) fail(attempt uint64, endpoint string, err error) error {
	m.mu.Lock()
	if m.attempt == attempt {
		m.state = StateError
		m.ch = nil
	}
	m.mu.Unlock()

	m.log.Warn("connection failed", zap.String("endpoint", endpoint), zap.Error(err))
	m.notifier.Notify(msgFailed, notify.Failure)
	return &ConnectionError{Endpoint: endpoint, Err: err}
}

// run pumps frames until either direction fails, then clears the handle if
// it is still the current one.
func (m *Manager) run(ch *channel) {
	g, ctx := errgroup.WithContext(ch.ctx)
	g.Go(func() error { return m.readLoop(ctx, ch) })
	g.Go(func() error { return ch.writeLoop(ctx) })
	err := g.Wait()
	ch.cancel()
	_ = ch.conn.CloseNow()

	m.mu.Lock()
	current := m.ch == ch
	if current {
		m.ch = nil
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			m.state = StateDisconnected
		default:
			m.state = StateError
		}
	}
	m.mu.Unlock()

	if current {
		m.log.Warn("connection lost", zap.Error(err))
		m.notifier.Notify(msgLost, notify.Failure)
	}
}

func (m *Manager) readLoop(ctx context.Context, ch *channel) error {
	for {
		typ, data, err := ch.conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			m.log.Debug("ignoring binary frame", zap.Int("bytes", len(data)))
			continue
		}
		if err := m.handler.Deliver(ctx, data); err != nil {
			return err
		}
	}
}

// Close drops the live channel, if any, and stops the manager.
func (m *Manager) Close() error {
	m.mu.Lock()
	ch := m.ch
	m.ch = nil
	m.state = StateDisconnected
	m.attempt++
	m.mu.Unlock()

	var err error
	if ch != nil {
		err = ch.close("bye")
	}
	m.cancel()
	return err
}

type channel struct {
	conn         *websocket.Conn
	out          chan []byte
	writeTimeout time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
}

func newChannel(parent context.Context, c *websocket.Conn, writeTimeout time.Duration) *channel {
	ctx, cancel := context.WithCancel(parent)
	return &channel{
		conn:         c,
		out:          make(chan []byte, 64),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Send queues one text frame. Writes are not cancellable once queued.
func (c *channel) Send(data []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrNotConnected
	default:
	}
	select {
	case c.out <- data:
		return nil
	case <-c.ctx.Done():
		return ErrNotConnected
	}
}

func (c *channel) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

// close runs the close handshake before cancelling the pumps, so the reader
// sees the peer's close frame rather than a cancelled context.
func (c *channel) close(reason string) error {
	err := c.conn.Close(websocket.StatusNormalClosure, reason)
	c.cancel()
	if err == nil || websocket.CloseStatus(err) != -1 || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
