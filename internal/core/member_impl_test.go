package core_test

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Classroom/internal/core"
	"github.com/dkeye/Classroom/internal/core/coretest"
	"github.com/dkeye/Classroom/internal/domain"
)

func TestConnSessionLifecycle(t *testing.T) {
	s := core.NewConnSession(core.NewConnID())
	assert.Equal(t, core.StateConnecting, s.State())

	require.NoError(t, s.BeginAuthorize())
	assert.Equal(t, core.StateAuthorizing, s.State())
	assert.True(t, errors.Is(s.BeginAuthorize(), core.ErrInvalidTransition))

	conn := coretest.NewFakeConn(0)
	scope := coretest.MainScope("s1")
	meta := domain.NewMember(domain.User{ID: "a"}, domain.RoleHost, scope.RoomKey(), time.Now())
	require.NoError(t, s.Join(meta, scope, conn))
	assert.Equal(t, core.StateJoined, s.State())
	assert.True(t, errors.Is(s.Join(meta, scope, conn), core.ErrInvalidTransition), "joined exactly once")

	hooks := 0
	s.OnClose(func() { hooks++ })
	assert.True(t, s.Close())
	assert.False(t, s.Close(), "second close is a no-op")
	assert.Equal(t, 1, hooks)
	assert.Equal(t, 1, conn.Closes())
	assert.Equal(t, core.StateClosed, s.State())

	s.OnClose(func() { hooks++ })
	assert.Equal(t, 2, hooks, "hook added after close of a joined session runs at once")
}

func TestConnSessionCloseBeforeJoinHasNoSideEffects(t *testing.T) {
	s := core.NewConnSession(core.NewConnID())
	require.NoError(t, s.BeginAuthorize())

	hooks := 0
	s.OnClose(func() { hooks++ })
	assert.True(t, s.Close())
	assert.Equal(t, 0, hooks)

	scope := coretest.MainScope("s1")
	meta := domain.NewMember(domain.User{ID: "a"}, domain.RoleParticipant, scope.RoomKey(), time.Now())
	assert.Error(t, s.Join(meta, scope, coretest.NewFakeConn(0)))
	assert.Equal(t, core.StateClosed, s.State())
}

func TestConnStateString(t *testing.T) {
	assert.Equal(t, "connecting", core.StateConnecting.String())
	assert.Equal(t, "closed", core.StateClosed.String())
	assert.Equal(t, "unknown", core.ConnState(42).String())
}
