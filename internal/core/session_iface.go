package core

import (
	"github.com/google/uuid"

	"github.com/dkeye/Classroom/internal/domain"
)

type ConnID string

func NewConnID() ConnID { return ConnID(uuid.NewString()) }

// ConnState is the lifecycle of one accepted connection:
// Connecting -> Authorizing -> Joined -> Closed.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateAuthorizing
	StateJoined
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthorizing:
		return "authorizing"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// MemberSession binds domain.Member and its transport endpoint.
// This is what a room stores and fans out to.
type MemberSession interface {
	ID() ConnID
	Meta() *domain.Member
	Scope() domain.Scope
	Signal() SignalConnection
	State() ConnState
	// Close tears the session down; only the first call has effect.
	Close() bool
}
