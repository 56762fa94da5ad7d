package core_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Classroom/internal/core"
	"github.com/dkeye/Classroom/internal/core/coretest"
	"github.com/dkeye/Classroom/internal/domain"
)

func newRoom(t *testing.T, key domain.RoomKey) core.RoomService {
	room, err := domain.NewRoom(key)
	require.NoError(t, err)
	return core.NewRoomService(room)
}

func TestRoomJoinIsIdempotentPerUser(t *testing.T) {
	scope := coretest.MainScope("s1")
	r := newRoom(t, scope.RoomKey())

	first := coretest.Joined("a", domain.RoleParticipant, scope, coretest.NewFakeConn(0))
	replaced, err := r.Join(first)
	require.NoError(t, err)
	assert.Nil(t, replaced)

	replaced, err = r.Join(first)
	require.NoError(t, err)
	assert.Nil(t, replaced, "same connection joining twice displaces nothing")

	second := coretest.Joined("a", domain.RoleHost, scope, coretest.NewFakeConn(0))
	replaced, err = r.Join(second)
	require.NoError(t, err)
	assert.Equal(t, first.ID(), replaced.ID())

	members := r.MembersSnapshot()
	require.Len(t, members, 1)
	assert.Equal(t, domain.RoleHost, members[0].Role, "later join wins")
	assert.Equal(t, 1, r.MemberCount())

	// stale connection leaving must not mark the member left
	assert.False(t, r.Leave("a", first.ID(), time.Now()))
	assert.Equal(t, 1, r.MemberCount())
	ms, ok := r.Target("a")
	require.True(t, ok)
	assert.Equal(t, second.ID(), ms.ID())
}

func TestRoomLeaveKeepsAttendance(t *testing.T) {
	scope := coretest.MainScope("s1")
	r := newRoom(t, scope.RoomKey())
	a := coretest.Joined("a", domain.RoleHost, scope, coretest.NewFakeConn(0))
	b := coretest.Joined("b", domain.RoleParticipant, scope, coretest.NewFakeConn(0))
	_, _ = r.Join(a)
	_, _ = r.Join(b)

	at := time.Now()
	assert.True(t, r.Leave("b", b.ID(), at))
	assert.False(t, r.Leave("b", b.ID(), at), "leave twice")

	members := r.MembersSnapshot()
	require.Len(t, members, 2)
	for _, m := range members {
		if m.User.ID == "b" {
			require.NotNil(t, m.LeftAt)
			assert.True(t, at.Equal(*m.LeftAt))
		} else {
			assert.Nil(t, m.LeftAt)
		}
	}
	_, ok := r.Target("b")
	assert.False(t, ok)

	// rejoin clears the leave timestamp
	b2 := coretest.Joined("b", domain.RoleParticipant, scope, coretest.NewFakeConn(0))
	_, err := r.Join(b2)
	require.NoError(t, err)
	for _, m := range r.MembersSnapshot() {
		assert.Nil(t, m.LeftAt)
	}
	assert.Equal(t, 2, r.MemberCount())
}

func TestRoomTargetsExcludeOrigin(t *testing.T) {
	scope := coretest.MainScope("s1")
	r := newRoom(t, scope.RoomKey())
	a := coretest.Joined("a", domain.RoleHost, scope, coretest.NewFakeConn(0))
	b := coretest.Joined("b", domain.RoleParticipant, scope, coretest.NewFakeConn(0))
	c := coretest.Joined("c", domain.RoleParticipant, scope, coretest.NewFakeConn(0))
	for _, s := range []core.MemberSession{a, b, c} {
		_, err := r.Join(s)
		require.NoError(t, err)
	}

	assert.Len(t, r.Targets(a.ID()), 2)
	assert.Len(t, r.Targets(""), 3)
	for _, s := range r.Targets(a.ID()) {
		assert.NotEqual(t, a.ID(), s.ID())
	}
}

func TestRoomRetire(t *testing.T) {
	scope := coretest.MainScope("s1")
	r := newRoom(t, scope.RoomKey())
	a := coretest.Joined("a", domain.RoleHost, scope, coretest.NewFakeConn(0))
	_, _ = r.Join(a)
	assert.False(t, r.Retire())

	r.Leave("a", a.ID(), time.Now())
	assert.True(t, r.Retire())
	_, err := r.Join(a)
	assert.Equal(t, core.ErrRoomRetired, err)
}
