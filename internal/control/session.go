package control

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vowser/controlhub/internal/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	PongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than PongWait.
	pingPeriod = (PongWait * 9) / 10

	defaultSendBuffer = 256
)

var (
	ErrNoTarget       = errors.New("no open client session")
	ErrSessionClosed  = errors.New("client session closed")
	ErrSendBufferFull = errors.New("client send buffer full")
)

// Session is one live downstream client connection.
type Session struct {
	ID string

	conn *websocket.Conn
	send chan []byte

	// Registration order, set by Service.Register.
	seq uint64

	ctx    context.Context
	cancel context.CancelFunc

	closed   bool
	closedMu sync.RWMutex
}

// NewSession wraps conn. conn may be nil in tests; writes then only queue.
func NewSession(conn *websocket.Conn, sendBuffer int) *Session {
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ID:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Conn returns the underlying socket.
func (s *Session) Conn() *websocket.Conn { return s.conn }

// IsOpen reports whether the session still accepts writes.
func (s *Session) IsOpen() bool {
	s.closedMu.RLock()
	defer s.closedMu.RUnlock()
	return !s.closed
}

// Done is closed when the session closes.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

// Send queues one text frame. It never blocks.
func (s *Session) Send(data []byte) error {
	s.closedMu.RLock()
	defer s.closedMu.RUnlock()
	if s.closed {
		return ErrSessionClosed
	}
	select {
	case s.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close marks the session closed and stops its write pump. Safe to call
// more than once.
func (s *Session) Close() {
	s.closedMu.Lock()
	if s.closed {
		s.closedMu.Unlock()
		return
	}
	s.closed = true
	close(s.send)
	s.closedMu.Unlock()
	s.cancel()
}

// WritePump drains queued frames to the socket and keeps the peer alive
// with pings. It returns when the session closes or a write fails.
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logging.Warnf("[Control] write to session %s failed: %v", s.ID, err)
				s.Close()
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		}
	}
}
