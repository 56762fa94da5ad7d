package core

import (
	"time"

	"github.com/pkg/errors"

	"github.com/dkeye/Classroom/internal/domain"
)

// ErrRoomRetired is returned by Join on a room that was emptied and released.
var ErrRoomRetired = errors.New("room retired")

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Room() *domain.Room
	MemberCount() int
	MembersSnapshot() []domain.Member

	// Join is idempotent per user: a rejoin overwrites role and timestamps and
	// returns the connection it displaced, if any.
	Join(ms MemberSession) (replaced MemberSession, err error)
	// Leave marks the member left only if cid is still its current connection.
	Leave(uid domain.UserID, cid ConnID, at time.Time) bool
	Targets(exclude ConnID) []MemberSession
	Target(uid domain.UserID) (MemberSession, bool)
	// Retire closes an empty room for further joins.
	Retire() bool
}

type RoomInfo struct {
	Key         domain.RoomKey `json:"key"`
	Parent      domain.RoomKey `json:"parent,omitempty"`
	MemberCount int            `json:"member_count"`
}

// RoomRegistry maps room keys to live memberships. Rooms appear on first join
// and disappear when their last member leaves.
type RoomRegistry interface {
	Join(key domain.RoomKey, ms MemberSession) (replaced MemberSession, err error)
	Leave(key domain.RoomKey, uid domain.UserID, cid ConnID, at time.Time) bool
	Members(key domain.RoomKey) []domain.Member
	BroadcastTargets(key domain.RoomKey, exclude ConnID) []MemberSession
	Target(key domain.RoomKey, uid domain.UserID) (MemberSession, bool)
	Get(key domain.RoomKey) (RoomService, bool)
	List() []RoomInfo
}
