package control

import (
	"encoding/json"
	"sync"

	"github.com/vowser/controlhub/internal/lifecycle"
	"github.com/vowser/controlhub/internal/logging"
	"github.com/vowser/controlhub/internal/types"
)

// Service tracks downstream client sessions and delivers commands and relayed
// upstream messages to the selected one. Delivery is best effort: nothing is
// queued for a client that is not there.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	seq      uint64
}

// NewService creates an empty session registry.
func NewService() *Service {
	return &Service{sessions: make(map[string]*Session)}
}

// Register adds sess. Registering the same id again is a no-op.
func (s *Service) Register(sess *Session) {
	s.mu.Lock()
	if _, ok := s.sessions[sess.ID]; ok {
		s.mu.Unlock()
		return
	}
	s.seq++
	sess.seq = s.seq
	s.sessions[sess.ID] = sess
	total := len(s.sessions)
	s.mu.Unlock()

	logging.Infof("[Control] session registered: %s (total %d)", sess.ID, total)
	lifecycle.Emit(lifecycle.EventClientConnected, sess.ID)
}

// Unregister removes sess. Safe to call for a session that is already gone.
func (s *Service) Unregister(sess *Session) {
	s.mu.Lock()
	_, ok := s.sessions[sess.ID]
	delete(s.sessions, sess.ID)
	remaining := len(s.sessions)
	s.mu.Unlock()

	if ok {
		logging.Infof("[Control] session unregistered: %s (remaining %d)", sess.ID, remaining)
		lifecycle.Emit(lifecycle.EventClientDisconnected, sess.ID)
	}
}

// ActiveCount returns the number of open sessions.
func (s *Service) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, sess := range s.sessions {
		if sess.IsOpen() {
			n++
		}
	}
	return n
}

// SelectTarget returns the most recently registered open session, or nil.
func (s *Service) SelectTarget() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var target *Session
	for _, sess := range s.sessions {
		if !sess.IsOpen() {
			continue
		}
		if target == nil || sess.seq > target.seq {
			target = sess
		}
	}
	return target
}

// SendCommand serializes cmd and pushes it to the selected session. Failures
// are logged and the command is dropped.
func (s *Service) SendCommand(cmd types.Command) {
	data, err := json.Marshal(cmd)
	if err != nil {
		logging.Errorf("[Control] command serialization failed: %v", err)
		return
	}
	if err := s.deliver(data); err != nil {
		logging.Warnf("[Control] command dropped: %v", err)
		return
	}
	logging.Debugf("[Control] command sent: %s", logging.Truncate(string(data), 200))
}

// SendTo pushes data to one specific session. Used for replies on the
// connection a request arrived on.
func (s *Service) SendTo(sess *Session, data []byte) error {
	if !sess.IsOpen() {
		return ErrSessionClosed
	}
	return sess.Send(data)
}

// Close closes every session. Used at shutdown.
func (s *Service) Close() {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
}

func (s *Service) deliver(data []byte) error {
	target := s.SelectTarget()
	if target == nil {
		return ErrNoTarget
	}
	// The session may close between selection and send; that is a drop.
	return target.Send(data)
}
