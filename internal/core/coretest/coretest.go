// Package coretest provides in-memory transports and sessions for tests.
package coretest

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/Classroom/internal/core"
	"github.com/dkeye/Classroom/internal/domain"
)

var ErrFull = errors.New("fake connection full")

// FakeConn records every frame it accepts. Capacity <= 0 means unbounded.
type FakeConn struct {
	mu       sync.Mutex
	frames   []core.Frame
	capacity int
	closed   bool
	closes   int
}

func NewFakeConn(capacity int) *FakeConn { return &FakeConn{capacity: capacity} }

func (c *FakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("closed")
	}
	if c.capacity > 0 && len(c.frames) >= c.capacity {
		return ErrFull
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *FakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.closes++
}

func (c *FakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *FakeConn) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// Wire is the decoded outbound shape.
type Wire struct {
	Action string          `json:"action"`
	Sender string          `json:"sender"`
	Data   json.RawMessage `json:"data"`
}

func (c *FakeConn) Received() []Wire {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Wire, 0, len(c.frames))
	for _, f := range c.frames {
		var w Wire
		_ = json.Unmarshal(f, &w)
		out = append(out, w)
	}
	return out
}

// Actions lists received actions in delivery order.
func (c *FakeConn) Actions() []string {
	var out []string
	for _, w := range c.Received() {
		out = append(out, w.Action)
	}
	return out
}

// Joined builds a ConnSession already in the Joined state.
func Joined(uid domain.UserID, role domain.Role, scope domain.Scope, conn core.SignalConnection) *core.ConnSession {
	s := core.NewConnSession(core.NewConnID())
	if err := s.BeginAuthorize(); err != nil {
		panic(err)
	}
	meta := domain.NewMember(domain.User{ID: uid, Username: string(uid)}, role, scope.RoomKey(), time.Now())
	if err := s.Join(meta, scope, conn); err != nil {
		panic(err)
	}
	return s
}

// MainScope returns a RegularScope for the main room of sessionID.
func MainScope(sessionID string) domain.Scope {
	return domain.RegularScope{Sess: &domain.Session{
		SessionKey: domain.SessionKey{Kind: domain.KindRegular, ID: sessionID},
	}}
}
