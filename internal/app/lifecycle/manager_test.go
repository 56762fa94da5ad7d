package lifecycle

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Classroom/internal/app"
	"github.com/dkeye/Classroom/internal/app/orch"
	"github.com/dkeye/Classroom/internal/core/coretest"
	"github.com/dkeye/Classroom/internal/domain"
	"github.com/dkeye/Classroom/internal/store/memory"
	"github.com/dkeye/Classroom/internal/store/storetest"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	os.Exit(m.Run())
}

var (
	clock   = time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	teacher = &domain.User{ID: "teacher", Username: "Ms. Teacher"}
	alice   = &domain.User{ID: "alice", Username: "Alice"}
)

type fixture struct {
	m     *Manager
	o     *orch.Orchestrator
	store *memory.Store
	key   domain.SessionKey
	sess  *domain.Session
}

func setup(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	key := storetest.Seed(t, st)
	sess, err := st.Resolve(context.Background(), key)
	require.NoError(t, err)
	o := &orch.Orchestrator{
		Registry:   app.NewRegistry(),
		Rooms:      app.NewRoomManager(),
		Policy:     app.SimplePolicy{},
		Attendance: st,
	}
	return &fixture{
		m: &Manager{
			Directory:    st,
			Attendance:   st,
			Signals:      o,
			ArtifactBase: "/recordings",
			Now:          func() time.Time { return clock },
		},
		o:     o,
		store: st,
		key:   key,
		sess:  sess,
	}
}

func (f *fixture) join(t *testing.T, uid domain.UserID, role domain.Role, b *domain.Breakout) *coretest.FakeConn {
	t.Helper()
	conn := coretest.NewFakeConn(0)
	scope := domain.RegularScope{Sess: f.sess, Breakout: b}
	require.NoError(t, f.o.Join(context.Background(), coretest.Joined(uid, role, scope, conn), nil))
	return conn
}

func TestRecordingLifecycle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.join(t, "teacher", domain.RoleHost, nil)
	b := f.join(t, "bob", domain.RoleParticipant, nil)

	rec, err := f.m.StartRecording(ctx, teacher, f.key)
	require.NoError(t, err)
	assert.True(t, rec.Active())
	assert.Equal(t, []string{"recording-started"}, a.Actions())
	assert.Equal(t, []string{"recording-started"}, b.Actions())

	_, err = f.m.StartRecording(ctx, teacher, f.key)
	assert.True(t, errors.Is(err, domain.ErrConflict))
	assert.Len(t, a.Actions(), 1, "a rejected start broadcasts nothing")

	stopped, err := f.m.StopRecording(ctx, teacher, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "/recordings/math-101/"+rec.ID+".webm", stopped.ArtifactURL)
	assert.Equal(t, []string{"recording-started", "recording-stopped"}, a.Actions())
	assert.Equal(t, []string{"recording-started", "recording-stopped"}, b.Actions())

	got := b.Received()[1]
	assert.Equal(t, domain.SystemSender, got.Sender)
	var payload domain.Recording
	require.NoError(t, json.Unmarshal(got.Data, &payload))
	assert.Equal(t, stopped.ArtifactURL, payload.ArtifactURL)

	_, err = f.m.StopRecording(ctx, teacher, rec.ID)
	assert.True(t, errors.Is(err, domain.ErrConflict))

	_, err = f.m.StopRecording(ctx, teacher, "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestConcurrentStartRecording(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		results [2]error
	)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.m.StartRecording(ctx, teacher, f.key)
		}(i)
	}
	wg.Wait()

	var ok, conflict int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrConflict):
			conflict++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflict)
}

func TestRecordingReachesBreakoutRooms(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	b, err := f.m.CreateBreakout(ctx, teacher, f.key, "Group 1")
	require.NoError(t, err)
	main := f.join(t, "teacher", domain.RoleHost, nil)
	inBreakout := f.join(t, "bob", domain.RoleParticipant, b)

	_, err = f.m.StartRecording(ctx, teacher, f.key)
	require.NoError(t, err)
	assert.Equal(t, []string{"recording-started"}, main.Actions())
	assert.Contains(t, inBreakout.Actions(), "recording-started")
}

func TestBreakoutAssignmentIsTargeted(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.join(t, "teacher", domain.RoleHost, nil)
	b := f.join(t, "bob", domain.RoleParticipant, nil)

	br, err := f.m.CreateBreakout(ctx, teacher, f.key, "Group 1")
	require.NoError(t, err)
	assert.Equal(t, "group-1", br.Slug)
	assert.Equal(t, []string{"breakout-room-created"}, a.Actions())
	assert.Equal(t, []string{"breakout-room-created"}, b.Actions())

	asg, err := f.m.AssignParticipant(ctx, teacher, f.key, "group-1", "bob")
	require.NoError(t, err)
	assert.Equal(t, "group-1", asg.Breakout)

	assert.Equal(t, []string{"breakout-room-created"}, a.Actions(), "host does not see the targeted assignment")
	require.Equal(t, []string{"breakout-room-created", "user-assigned-to-breakout"}, b.Actions())

	var payload struct {
		Slug   string `json:"slug"`
		Room   string `json:"room"`
		UserID string `json:"user_id"`
	}
	require.NoError(t, json.Unmarshal(b.Received()[1].Data, &payload))
	assert.Equal(t, "group-1", payload.Slug)
	assert.Equal(t, "regular:math-101/breakout:group-1", payload.Room)
	assert.Equal(t, "bob", payload.UserID)

	_, err = f.m.AssignParticipant(ctx, teacher, f.key, "group-1", "mallory")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	_, err = f.m.AssignParticipant(ctx, teacher, f.key, "group-7", "bob")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestReassignReachesUserInsideBreakout(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	g1, err := f.m.CreateBreakout(ctx, teacher, f.key, "Group 1")
	require.NoError(t, err)
	_, err = f.m.CreateBreakout(ctx, teacher, f.key, "Group 2")
	require.NoError(t, err)

	host := f.join(t, "teacher", domain.RoleHost, nil)
	bob := f.join(t, "bob", domain.RoleParticipant, g1)
	alice := f.join(t, "alice", domain.RoleParticipant, g1)

	_, err = f.m.AssignParticipant(ctx, teacher, f.key, "group-2", "bob")
	require.NoError(t, err)

	require.Equal(t, []string{"user-assigned-to-breakout"}, bob.Actions())
	var payload struct {
		Slug string `json:"slug"`
	}
	require.NoError(t, json.Unmarshal(bob.Received()[0].Data, &payload))
	assert.Equal(t, "group-2", payload.Slug)
	assert.Empty(t, alice.Actions())
	assert.Empty(t, host.Actions())
}

func TestAssignmentReachesEveryRoomOfUser(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	g1, err := f.m.CreateBreakout(ctx, teacher, f.key, "Group 1")
	require.NoError(t, err)

	inMain := f.join(t, "bob", domain.RoleParticipant, nil)
	inBreakout := f.join(t, "bob", domain.RoleParticipant, g1)

	res := f.o.SendToSession(f.key, "bob", domain.Signal{Action: domain.ActionAssignedToBreakout})
	assert.Equal(t, 2, res.SendTo)
	assert.Equal(t, []string{"user-assigned-to-breakout"}, inMain.Actions())
	assert.Equal(t, []string{"user-assigned-to-breakout"}, inBreakout.Actions())

	other := f.o.SendToSession(domain.SessionKey{Kind: domain.KindRegular, ID: "other"}, "bob", domain.Signal{Action: domain.ActionAssignedToBreakout})
	assert.Zero(t, other.SendTo)
}

func TestBreakoutCreatedReachesBreakoutRooms(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	g1, err := f.m.CreateBreakout(ctx, teacher, f.key, "Group 1")
	require.NoError(t, err)
	main := f.join(t, "teacher", domain.RoleHost, nil)
	inside := f.join(t, "bob", domain.RoleParticipant, g1)

	_, err = f.m.CreateBreakout(ctx, teacher, f.key, "Group 2")
	require.NoError(t, err)
	assert.Equal(t, []string{"breakout-room-created"}, main.Actions())
	assert.Equal(t, []string{"breakout-room-created"}, inside.Actions())
}

func TestCreateBreakoutFailures(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.join(t, "teacher", domain.RoleHost, nil)

	_, err := f.m.CreateBreakout(ctx, teacher, f.key, "  ")
	assert.True(t, errors.Is(err, domain.ErrInvalid))

	_, err = f.m.CreateBreakout(ctx, alice, f.key, "Group 1")
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	_, err = f.m.CreateBreakout(ctx, nil, f.key, "Group 1")
	assert.True(t, errors.Is(err, domain.ErrUnauthenticated))

	_, err = f.m.CreateBreakout(ctx, teacher, domain.SessionKey{Kind: domain.KindRegular, ID: "nope"}, "Group 1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = f.m.CreateBreakout(ctx, teacher, f.key, "Group 1")
	require.NoError(t, err)
	_, err = f.m.CreateBreakout(ctx, teacher, f.key, "group 1")
	assert.True(t, errors.Is(err, domain.ErrConflict))

	assert.Equal(t, []string{"breakout-room-created"}, a.Actions(), "only the successful create is broadcast")
}

func TestCloseBreakout(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	br, err := f.m.CreateBreakout(ctx, teacher, f.key, "Group 1")
	require.NoError(t, err)
	main := f.join(t, "teacher", domain.RoleHost, nil)
	inside := f.join(t, "bob", domain.RoleParticipant, br)

	closed, err := f.m.CloseBreakout(ctx, teacher, f.key, "group-1")
	require.NoError(t, err)
	assert.False(t, closed.Active)
	assert.Equal(t, []string{"breakout-room-closed"}, main.Actions())
	assert.Contains(t, inside.Actions(), "breakout-room-closed")

	_, err = f.m.CloseBreakout(ctx, teacher, f.key, "group-1")
	assert.True(t, errors.Is(err, domain.ErrConflict))

	_, err = f.m.AssignParticipant(ctx, teacher, f.key, "group-1", "bob")
	assert.True(t, errors.Is(err, domain.ErrConflict))
}

func TestListAttendance(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.join(t, "teacher", domain.RoleHost, nil)
	f.join(t, "bob", domain.RoleParticipant, nil)

	recs, err := f.m.ListAttendance(ctx, teacher, f.key)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, domain.RoleHost, recs[0].Role)

	_, err = f.m.ListAttendance(ctx, alice, f.key)
	assert.True(t, errors.Is(err, domain.ErrForbidden))
}

func TestCreateInstant(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	sess, err := f.m.CreateInstant(ctx, alice, "standup", "")
	require.NoError(t, err)
	assert.Equal(t, domain.KindInstant, sess.Kind)
	assert.Equal(t, "standup", sess.Title)

	ok, err := f.store.IsAdministrator(ctx, sess.SessionKey, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.m.CreateInstant(ctx, teacher, "standup", "")
	assert.True(t, errors.Is(err, domain.ErrConflict))

	_, err = f.m.CreateInstant(ctx, alice, "bad id", "")
	assert.True(t, errors.Is(err, domain.ErrInvalid))

	gen, err := f.m.CreateInstant(ctx, alice, "", "Ad hoc")
	require.NoError(t, err)
	assert.True(t, domain.ValidSegment(gen.ID))

	_, err = f.m.CreateBreakout(ctx, alice, sess.SessionKey, "Group 1")
	assert.True(t, errors.Is(err, domain.ErrInvalid), "no breakouts in instant sessions")

	rec, err := f.m.StartRecording(ctx, alice, sess.SessionKey)
	require.NoError(t, err, "the creator administers the instant session")
	assert.Equal(t, "/recordings/standup/"+rec.ID+".webm", f.m.ArtifactURL(rec))
}
