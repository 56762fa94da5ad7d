package app

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Classroom/internal/core"
	"github.com/dkeye/Classroom/internal/core/coretest"
	"github.com/dkeye/Classroom/internal/domain"
)

func TestRoomManagerCreatesOnJoinAndReleasesOnLastLeave(t *testing.T) {
	m := NewRoomManager()
	scope := coretest.MainScope("s1")
	key := scope.RoomKey()

	_, ok := m.Get(key)
	assert.False(t, ok)

	a := coretest.Joined("a", domain.RoleHost, scope, coretest.NewFakeConn(0))
	b := coretest.Joined("b", domain.RoleParticipant, scope, coretest.NewFakeConn(0))
	_, err := m.Join(key, a)
	require.NoError(t, err)
	_, err = m.Join(key, b)
	require.NoError(t, err)

	require.Len(t, m.List(), 1)
	assert.Equal(t, 2, m.List()[0].MemberCount)
	assert.Len(t, m.BroadcastTargets(key, a.ID()), 1)

	assert.True(t, m.Leave(key, "a", a.ID(), time.Now()))
	_, ok = m.Get(key)
	assert.True(t, ok)
	assert.True(t, m.Leave(key, "b", b.ID(), time.Now()))
	_, ok = m.Get(key)
	assert.False(t, ok, "empty room is released")
	assert.Nil(t, m.Members(key))
	assert.False(t, m.Leave(key, "b", b.ID(), time.Now()))
}

func TestRoomManagerRejectsInvalidKey(t *testing.T) {
	m := NewRoomManager()
	a := coretest.Joined("a", domain.RoleHost, coretest.MainScope("s1"), coretest.NewFakeConn(0))
	_, err := m.Join("nope", a)
	assert.True(t, errors.Is(err, domain.ErrInvalid))
	assert.Empty(t, m.List())
}

func TestRoomManagerConcurrentJoinsKeepOneMemberPerUser(t *testing.T) {
	m := NewRoomManager()
	scope := coretest.MainScope("s1")
	key := scope.RoomKey()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			uid := domain.UserID("u" + strconv.Itoa(i%5))
			s := coretest.Joined(uid, domain.RoleParticipant, scope, coretest.NewFakeConn(0))
			_, err := m.Join(key, s)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	members := m.Members(key)
	assert.Len(t, members, 5)
	seen := map[domain.UserID]bool{}
	for _, mem := range members {
		assert.False(t, seen[mem.User.ID], "duplicate member %s", mem.User.ID)
		seen[mem.User.ID] = true
	}
	assert.Len(t, m.BroadcastTargets(key, ""), 5)
}

func TestRoomManagerJoinLeaveChurn(t *testing.T) {
	m := NewRoomManager()
	scope := coretest.MainScope("churn")
	key := scope.RoomKey()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			uid := domain.UserID("u" + strconv.Itoa(i))
			for j := 0; j < 20; j++ {
				s := coretest.Joined(uid, domain.RoleParticipant, scope, coretest.NewFakeConn(0))
				_, err := m.Join(key, s)
				if !assert.NoError(t, err) {
					return
				}
				m.Leave(key, uid, s.ID(), time.Now())
			}
		}(i)
	}
	wg.Wait()
	_, ok := m.Get(key)
	assert.False(t, ok)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	scope := coretest.MainScope("s1")
	a := coretest.Joined("a", domain.RoleHost, scope, coretest.NewFakeConn(0))
	b := coretest.Joined("b", domain.RoleParticipant, scope, coretest.NewFakeConn(0))

	canceled := 0
	r.Bind(a, func() { canceled++ })
	r.Bind(b, nil)
	assert.Equal(t, 2, r.Len())

	require.Len(t, r.ConnectionsOf("a"), 1)
	assert.Equal(t, a.ID(), r.ConnectionsOf("a")[0].ID())

	assert.True(t, r.Cancel(a.ID()))
	assert.Equal(t, 1, canceled)
	assert.False(t, r.Cancel("missing"))

	assert.Equal(t, 2, r.CloseAll())
	assert.Equal(t, core.StateClosed, a.State())
	assert.Equal(t, core.StateClosed, b.State())

	r.Unbind(a.ID())
	assert.Empty(t, r.ConnectionsOf("a"))
	assert.Equal(t, 1, r.Len())
}

func TestParsePolicy(t *testing.T) {
	assert.Equal(t, KickMember, ParsePolicy("kick").OnBackPressure(nil, nil))
	assert.Equal(t, DropFrame, ParsePolicy("drop").OnBackPressure(nil, nil))
}
