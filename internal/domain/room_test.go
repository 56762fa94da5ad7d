package domain

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomKeys(t *testing.T) {
	assert.Equal(t, RoomKey("regular:math-101"), MainRoom("math-101"))
	assert.Equal(t, RoomKey("regular:math-101/breakout:group-1"), BreakoutRoom("math-101", "group-1"))
	assert.Equal(t, RoomKey("instant:abc"), InstantRoom("abc"))

	kind, sid, bid, err := BreakoutRoom("math-101", "group-1").Parse()
	require.NoError(t, err)
	assert.Equal(t, KindRegular, kind)
	assert.Equal(t, "math-101", sid)
	assert.Equal(t, "group-1", bid)
}

func TestRoomKeyInvalid(t *testing.T) {
	for _, k := range []RoomKey{
		"",
		"regular:",
		"video:abc",
		"regular:a b",
		"regular:abc/breakout:",
		"instant:abc/breakout:x",
		"noseparator",
	} {
		_, _, _, err := k.Parse()
		assert.Truef(t, errors.Is(err, ErrInvalid), "key %q should be invalid, got %v", k, err)
	}
}

func TestNewRoom(t *testing.T) {
	r, err := NewRoom(BreakoutRoom("s1", "g1"))
	require.NoError(t, err)
	assert.Equal(t, SessionKey{Kind: KindRegular, ID: "s1"}, r.Session)
	assert.Equal(t, MainRoom("s1"), r.Parent)

	r, err = NewRoom(InstantRoom("i1"))
	require.NoError(t, err)
	assert.Equal(t, KindInstant, r.Session.Kind)
	assert.Empty(t, r.Parent)

	_, err = NewRoom("bogus")
	assert.Error(t, err)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "group-1", Slugify("Group 1"))
	assert.Equal(t, "q-a-room", Slugify("  Q&A  Room! "))
	assert.Equal(t, "", Slugify("!!!"))
}

func TestScopes(t *testing.T) {
	sess := &Session{SessionKey: SessionKey{Kind: KindRegular, ID: "s1"}}
	var sc Scope = RegularScope{Sess: sess}
	assert.Equal(t, MainRoom("s1"), sc.RoomKey())

	sc = RegularScope{Sess: sess, Breakout: &Breakout{SessionID: "s1", Slug: "g1"}}
	assert.Equal(t, BreakoutRoom("s1", "g1"), sc.RoomKey())

	inst := &Session{SessionKey: SessionKey{Kind: KindInstant, ID: "i1"}}
	sc = InstantScope{Sess: inst}
	assert.Equal(t, InstantRoom("i1"), sc.RoomKey())
	assert.Equal(t, InstantRoom("i1"), inst.MainRoom())
}

func TestNewUser(t *testing.T) {
	u, err := NewUser("u1", "")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.Username)

	_, err = NewUser("", "x")
	assert.Equal(t, ErrUserIDEmpty, err)

	_, err = NewUser("u1", "this-name-is-definitely-longer-than-36-chars")
	assert.Equal(t, ErrUsernameTooLong, err)
}
