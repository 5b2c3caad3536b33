package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vowser/controlhub/internal/lifecycle"
	"github.com/vowser/controlhub/internal/logging"
)

// State of the outbound link.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Relayer receives upstream messages that answer no pending request.
type Relayer interface {
	Relay(raw []byte)
}

// RelayFunc adapts a function to Relayer.
type RelayFunc func(raw []byte)

func (f RelayFunc) Relay(raw []byte) { f(raw) }

// Options configures a Link. Zero durations take the defaults below.
type Options struct {
	URL            string
	ReconnectDelay time.Duration
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	ShutdownGrace  time.Duration
	SearchLimit    int
}

const (
	defaultReconnectDelay = 20 * time.Second
	defaultRequestTimeout = 30 * time.Second
	defaultConnectTimeout = 30 * time.Second
	defaultWriteTimeout   = 10 * time.Second
	defaultShutdownGrace  = 5 * time.Second
	defaultSearchLimit    = 3
)

func (o *Options) applyDefaults() {
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = defaultReconnectDelay
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = defaultRequestTimeout
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.ShutdownGrace <= 0 {
		o.ShutdownGrace = defaultShutdownGrace
	}
	if o.SearchLimit <= 0 {
		o.SearchLimit = defaultSearchLimit
	}
}

// Link owns the single persistent connection to the upstream service.
//
// The upstream protocol carries no request id. A correlated request is
// answered by the next inbound message, oldest request first, so Request
// serializes send-and-await sequences.
type Link struct {
	opts   Options
	relay  Relayer
	dialer *websocket.Dialer

	state        atomic.Int32
	connected    atomic.Bool
	shuttingDown atomic.Bool

	connMu sync.Mutex
	conn   *websocket.Conn

	writeMu sync.Mutex

	pending   *pendingSet
	requestMu sync.Mutex

	reconnectMu    sync.Mutex
	reconnectTimer *time.Timer
	reconnects     atomic.Int64

	notifyMu sync.Mutex
	notify   chan struct{}

	// dialed runs after a successful dial, before the conn is published.
	dialed func()

	// ctx is cancelled by Disconnect and aborts in-flight dials.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLink creates a disconnected link. relay may be nil; unsolicited
// messages are then logged and dropped.
func NewLink(opts Options, relay Relayer) *Link {
	opts.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Link{
		opts:    opts,
		relay:   relay,
		dialer:  &websocket.Dialer{HandshakeTimeout: opts.ConnectTimeout},
		pending: newPendingSet(),
		notify:  make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// State returns the current state.
func (l *Link) State() State { return State(l.state.Load()) }

// IsConnected reports whether the transport is open and the link is Connected.
func (l *Link) IsConnected() bool {
	return l.connected.Load() && l.State() == StateConnected
}

// Pending returns the number of outstanding correlated requests.
func (l *Link) Pending() int { return l.pending.len() }

// ReconnectsScheduled counts reconnect attempts scheduled so far.
func (l *Link) ReconnectsScheduled() int64 { return l.reconnects.Load() }

func (l *Link) setState(s State) {
	l.state.Store(int32(s))
	l.notifyMu.Lock()
	close(l.notify)
	l.notify = make(chan struct{})
	l.notifyMu.Unlock()
}

func (l *Link) changed() <-chan struct{} {
	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()
	return l.notify
}

// WaitConnected blocks until the link is connected or ctx ends.
func (l *Link) WaitConnected(ctx context.Context) error {
	for {
		ch := l.changed()
		if l.IsConnected() {
			return nil
		}
		if l.shuttingDown.Load() {
			return ErrShuttingDown
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Connect starts a connection attempt in the background. It is a no-op while
// connecting, connected, or shutting down.
func (l *Link) Connect() {
	l.reconnectMu.Lock()
	defer l.reconnectMu.Unlock()

	if l.shuttingDown.Load() {
		logging.Debugf("[Upstream] connect skipped: shutting down")
		return
	}
	if !l.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return
	}
	l.setState(StateConnecting)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.dial()
	}()
}

func (l *Link) dial() {
	logging.Infof("[Upstream] connecting to %s", l.opts.URL)

	ctx, cancel := context.WithTimeout(l.ctx, l.opts.ConnectTimeout)
	defer cancel()
	conn, _, err := l.dialer.DialContext(ctx, l.opts.URL, nil)
	if err != nil {
		if l.shuttingDown.Load() {
			l.setState(StateDisconnected)
			return
		}
		logging.Errorf("[Upstream] connect to %s failed: %v", l.opts.URL, err)
		l.setState(StateDisconnected)
		l.scheduleReconnect()
		return
	}

	if l.dialed != nil {
		l.dialed()
	}

	// Disconnect sets shuttingDown before it reads conn under connMu, so the
	// conn is either published here and closed there, or dropped here.
	l.connMu.Lock()
	if l.shuttingDown.Load() {
		l.connMu.Unlock()
		conn.Close()
		l.setState(StateDisconnected)
		return
	}
	l.conn = conn
	l.wg.Add(1)
	l.connMu.Unlock()

	l.connected.Store(true)
	l.setState(StateConnected)
	logging.Infof("[Upstream] connected to %s", l.opts.URL)
	lifecycle.Emit(lifecycle.EventUpstreamConnected, l.opts.URL)

	go func() {
		defer l.wg.Done()
		l.readLoop(conn)
	}()
}

func (l *Link) readLoop(conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			l.handleClosed(conn, err)
			return
		}
		l.handleMessage(msg)
	}
}

func (l *Link) handleMessage(msg []byte) {
	logging.Debugf("[Upstream] received: %s", logging.Truncate(string(msg), 200))

	if l.pending.completeOldest(json.RawMessage(msg)) {
		return
	}
	if l.relay == nil {
		logging.Warnf("[Upstream] unsolicited message dropped, no relay configured")
		return
	}
	l.relay.Relay(msg)
}

func (l *Link) handleClosed(conn *websocket.Conn, err error) {
	l.connMu.Lock()
	if l.conn != conn {
		l.connMu.Unlock()
		return
	}
	l.conn = nil
	l.connMu.Unlock()
	conn.Close()

	l.connected.Store(false)
	l.setState(StateDisconnected)
	lifecycle.Emit(lifecycle.EventUpstreamDisconnected, l.opts.URL)

	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		logging.Infof("[Upstream] connection closed normally")
		return
	}
	if l.shuttingDown.Load() {
		return
	}
	logging.Warnf("[Upstream] connection lost: %v", err)
	l.scheduleReconnect()
}

// scheduleReconnect arms a single reconnect attempt after the fixed delay.
func (l *Link) scheduleReconnect() {
	l.reconnectMu.Lock()
	defer l.reconnectMu.Unlock()

	if l.shuttingDown.Load() {
		return
	}
	if l.reconnectTimer != nil {
		// A scheduled attempt still owns the next connect.
		if l.reconnectTimer.Stop() {
			l.reconnectTimer.Reset(l.opts.ReconnectDelay)
			return
		}
	}

	l.reconnects.Add(1)
	logging.Infof("[Upstream] reconnecting in %s", l.opts.ReconnectDelay)
	l.reconnectTimer = time.AfterFunc(l.opts.ReconnectDelay, func() {
		if l.shuttingDown.Load() {
			return
		}
		l.Connect()
	})
}

// Start connects and keeps the link up until ctx ends, then disconnects.
func (l *Link) Start(ctx context.Context) error {
	l.Connect()
	<-ctx.Done()
	l.Disconnect()
	return nil
}

// Disconnect shuts the link down for good: no further reconnects, a normal
// close frame to the peer, and a bounded wait for the reader to exit.
func (l *Link) Disconnect() {
	l.reconnectMu.Lock()
	if !l.shuttingDown.CompareAndSwap(false, true) {
		l.reconnectMu.Unlock()
		return
	}
	if l.reconnectTimer != nil {
		l.reconnectTimer.Stop()
	}
	l.reconnectMu.Unlock()

	logging.Infof("[Upstream] shutting down")
	l.cancel()

	l.setState(StateClosing)

	l.connMu.Lock()
	conn := l.conn
	l.connMu.Unlock()

	if conn != nil {
		l.writeMu.Lock()
		err := conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "application shutting down"),
			time.Now().Add(l.opts.WriteTimeout))
		l.writeMu.Unlock()
		if err != nil {
			logging.Debugf("[Upstream] close frame not sent: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(l.opts.ShutdownGrace):
		logging.Warnf("[Upstream] reader did not stop within %s, forcing close", l.opts.ShutdownGrace)
		l.connMu.Lock()
		if l.conn != nil {
			l.conn.Close()
		}
		l.connMu.Unlock()
		if conn != nil {
			conn.Close()
		}
		<-done
	}

	l.connMu.Lock()
	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
	}
	l.connMu.Unlock()

	l.pending.failAll(ErrShuttingDown)
	l.connected.Store(false)
	l.setState(StateDisconnected)
	logging.Infof("[Upstream] disconnected")
}

func (l *Link) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode upstream message: %w", err)
	}

	l.connMu.Lock()
	conn := l.conn
	l.connMu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(l.opts.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	logging.Debugf("[Upstream] sent: %s", logging.Truncate(string(data), 200))
	return nil
}

// SendFireAndForget writes msg without waiting for any reply.
func (l *Link) SendFireAndForget(msg any) error {
	if !l.IsConnected() {
		logging.Warnf("[Upstream] send skipped: not connected")
		return ErrNotConnected
	}
	if err := l.write(msg); err != nil {
		logging.Errorf("[Upstream] send failed: %v", err)
		return err
	}
	return nil
}

// SendCorrelated writes msg and returns a future for the next inbound
// message. Without a connection the future has already failed with
// ErrNotConnected and nothing is recorded.
func (l *Link) SendCorrelated(msg any) *Future {
	if !l.IsConnected() {
		return failedFuture(ErrNotConnected)
	}

	f := l.pending.add(l.opts.RequestTimeout)
	if err := l.write(msg); err != nil {
		logging.Errorf("[Upstream] correlated send %d failed: %v", f.ID(), err)
		l.pending.fail(f.ID(), err)
	}
	return f
}

// Request is SendCorrelated plus Wait, serialized so that at most one
// correlated request is outstanding from this caller path.
func (l *Link) Request(ctx context.Context, msg any) (json.RawMessage, error) {
	l.requestMu.Lock()
	defer l.requestMu.Unlock()

	f := l.SendCorrelated(msg)
	res, err := f.Wait(ctx)
	if err != nil && f.ID() != 0 && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		// Withdraw the request so the next reply is not matched to it.
		l.pending.fail(f.ID(), err)
	}
	return res, err
}
