package core

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/dkeye/Classroom/internal/domain"
)

var ErrInvalidTransition = errors.New("invalid connection state transition")

// ConnSession implements MemberSession. It owns exactly one room membership
// once Joined and runs its close hooks exactly once.
type ConnSession struct {
	id    ConnID
	state atomic.Int32

	mu     sync.RWMutex
	meta   *domain.Member
	scope  domain.Scope
	signal SignalConnection

	closed   bool
	joined   bool
	onClose  []func()
	closeOne sync.Once
}

func NewConnSession(id ConnID) *ConnSession {
	return &ConnSession{id: id}
}

func (s *ConnSession) ID() ConnID       { return s.id }
func (s *ConnSession) State() ConnState { return ConnState(s.state.Load()) }

func (s *ConnSession) Meta() *domain.Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta
}

func (s *ConnSession) Scope() domain.Scope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scope
}

func (s *ConnSession) Signal() SignalConnection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.signal
}

// BeginAuthorize moves Connecting -> Authorizing.
func (s *ConnSession) BeginAuthorize() error {
	if !s.state.CompareAndSwap(int32(StateConnecting), int32(StateAuthorizing)) {
		return errors.Wrapf(ErrInvalidTransition, "authorize from %s", s.State())
	}
	return nil
}

// Join moves Authorizing -> Joined. It happens at most once per connection.
func (s *ConnSession) Join(meta *domain.Member, scope domain.Scope, signal SignalConnection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.Wrap(ErrInvalidTransition, "join after close")
	}
	if !s.state.CompareAndSwap(int32(StateAuthorizing), int32(StateJoined)) {
		return errors.Wrapf(ErrInvalidTransition, "join from %s", s.State())
	}
	s.meta, s.scope, s.signal = meta, scope, signal
	s.joined = true
	return nil
}

// OnClose registers a teardown hook. Hooks run only for sessions that reached
// Joined; a hook added after Close of a joined session runs immediately.
func (s *ConnSession) OnClose(fn func()) {
	s.mu.Lock()
	if !s.closed {
		s.onClose = append(s.onClose, fn)
		s.mu.Unlock()
		return
	}
	joined := s.joined
	s.mu.Unlock()
	if joined {
		fn()
	}
}

// Close releases the transport first, then runs the hooks (room leave etc).
func (s *ConnSession) Close() bool {
	first := false
	s.closeOne.Do(func() {
		first = true
		s.state.Store(int32(StateClosed))

		s.mu.Lock()
		s.closed = true
		sig, hooks, joined := s.signal, s.onClose, s.joined
		s.onClose = nil
		s.mu.Unlock()

		if sig != nil {
			sig.Close()
		}
		if !joined {
			return
		}
		for _, fn := range hooks {
			fn()
		}
	})
	return first
}
