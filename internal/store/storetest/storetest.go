// Package storetest holds the behavioural suite every core.Store backend must pass.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Classroom/internal/core"
	"github.com/dkeye/Classroom/internal/domain"
)

var epoch = time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)

// Seed loads one regular session "math-101" administered by "teacher",
// plus users "teacher", "alice" and "bob".
func Seed(t *testing.T, s core.Store) domain.SessionKey {
	t.Helper()
	ctx := context.Background()
	for _, u := range []domain.User{
		{ID: "teacher", Username: "Ms. Teacher"},
		{ID: "alice", Username: "Alice"},
		{ID: "bob", Username: "Bob"},
	} {
		require.NoError(t, s.UpsertUser(ctx, u))
	}
	key := domain.SessionKey{Kind: domain.KindRegular, ID: "math-101"}
	require.NoError(t, s.UpsertSession(ctx, domain.Session{
		SessionKey: key,
		Title:      "Algebra",
		CreatedAt:  epoch,
	}, []domain.UserID{"teacher"}))
	return key
}

// Run exercises a fresh store from newStore in every subtest.
func Run(t *testing.T, newStore func(t *testing.T) core.Store) {
	t.Run("Resolve", func(t *testing.T) { testResolve(t, newStore(t)) })
	t.Run("Administrators", func(t *testing.T) { testAdministrators(t, newStore(t)) })
	t.Run("InstantSessions", func(t *testing.T) { testInstant(t, newStore(t)) })
	t.Run("Breakouts", func(t *testing.T) { testBreakouts(t, newStore(t)) })
	t.Run("Assignments", func(t *testing.T) { testAssignments(t, newStore(t)) })
	t.Run("Recordings", func(t *testing.T) { testRecordings(t, newStore(t)) })
	t.Run("ConcurrentRecordingStart", func(t *testing.T) { testConcurrentRecording(t, newStore(t)) })
	t.Run("Attendance", func(t *testing.T) { testAttendance(t, newStore(t)) })
}

func testResolve(t *testing.T, s core.Store) {
	ctx := context.Background()
	key := Seed(t, s)

	got, err := s.Resolve(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "Algebra", got.Title)
	assert.Equal(t, key, got.SessionKey)

	_, err = s.Resolve(ctx, domain.SessionKey{Kind: domain.KindRegular, ID: "nope"})
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	u, err := s.ResolveUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.Username)

	_, err = s.ResolveUser(ctx, "mallory")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func testAdministrators(t *testing.T, s core.Store) {
	ctx := context.Background()
	key := Seed(t, s)

	ok, err := s.IsAdministrator(ctx, key, "teacher")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IsAdministrator(ctx, key, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	// re-seeding replaces the administrator list
	sess, err := s.Resolve(ctx, key)
	require.NoError(t, err)
	require.NoError(t, s.UpsertSession(ctx, *sess, []domain.UserID{"alice"}))
	ok, err = s.IsAdministrator(ctx, key, "teacher")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testInstant(t *testing.T, s core.Store) {
	ctx := context.Background()
	Seed(t, s)
	key := domain.SessionKey{Kind: domain.KindInstant, ID: "standup"}

	created, err := s.CreateInstant(ctx, domain.Session{SessionKey: key, Title: "standup", CreatedBy: "alice", CreatedAt: epoch})
	require.NoError(t, err)
	assert.Equal(t, domain.KindInstant, created.Kind)

	_, err = s.CreateInstant(ctx, domain.Session{SessionKey: key, CreatedBy: "bob", CreatedAt: epoch})
	assert.True(t, errors.Is(err, domain.ErrConflict))

	ok, err := s.IsAdministrator(ctx, key, "alice")
	require.NoError(t, err)
	assert.True(t, ok, "creator administers an instant session")

	ok, err = s.IsAdministrator(ctx, key, "bob")
	require.NoError(t, err)
	assert.False(t, ok)
}

func newBreakout(session, name string) domain.Breakout {
	return domain.Breakout{
		ID:        session + "-" + domain.Slugify(name),
		SessionID: session,
		Name:      name,
		Slug:      domain.Slugify(name),
		Active:    true,
		CreatedAt: epoch,
	}
}

func testBreakouts(t *testing.T, s core.Store) {
	ctx := context.Background()
	key := Seed(t, s)

	b, err := s.CreateBreakout(ctx, newBreakout(key.ID, "Group 1"))
	require.NoError(t, err)
	assert.Equal(t, "group-1", b.Slug)

	_, err = s.CreateBreakout(ctx, newBreakout(key.ID, "Group 1"))
	assert.True(t, errors.Is(err, domain.ErrConflict), "duplicate name")

	_, err = s.CreateBreakout(ctx, newBreakout("unknown", "Group 1"))
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	got, err := s.ResolveBreakout(ctx, key.ID, "group-1")
	require.NoError(t, err)
	assert.True(t, got.Active)

	closed, err := s.CloseBreakout(ctx, key.ID, "group-1", epoch.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, closed.Active)
	require.NotNil(t, closed.ClosedAt)

	_, err = s.CloseBreakout(ctx, key.ID, "group-1", epoch.Add(time.Hour))
	assert.True(t, errors.Is(err, domain.ErrConflict), "already closed")

	_, err = s.CloseBreakout(ctx, key.ID, "group-9", epoch)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func testAssignments(t *testing.T, s core.Store) {
	ctx := context.Background()
	key := Seed(t, s)
	_, err := s.CreateBreakout(ctx, newBreakout(key.ID, "Group 1"))
	require.NoError(t, err)

	a, err := s.AssignParticipant(ctx, domain.Assignment{SessionID: key.ID, Breakout: "group-1", UserID: "alice", AssignedAt: epoch})
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("alice"), a.UserID)

	// reassigning the same user is allowed
	_, err = s.AssignParticipant(ctx, domain.Assignment{SessionID: key.ID, Breakout: "group-1", UserID: "alice", AssignedAt: epoch.Add(time.Minute)})
	require.NoError(t, err)

	_, err = s.AssignParticipant(ctx, domain.Assignment{SessionID: key.ID, Breakout: "group-1", UserID: "mallory", AssignedAt: epoch})
	assert.True(t, errors.Is(err, domain.ErrNotFound), "unknown user")

	_, err = s.AssignParticipant(ctx, domain.Assignment{SessionID: key.ID, Breakout: "group-2", UserID: "bob", AssignedAt: epoch})
	assert.True(t, errors.Is(err, domain.ErrNotFound), "unknown breakout")

	_, err = s.CloseBreakout(ctx, key.ID, "group-1", epoch)
	require.NoError(t, err)
	_, err = s.AssignParticipant(ctx, domain.Assignment{SessionID: key.ID, Breakout: "group-1", UserID: "bob", AssignedAt: epoch})
	assert.True(t, errors.Is(err, domain.ErrConflict), "closed breakout")
}

func testRecordings(t *testing.T, s core.Store) {
	ctx := context.Background()
	key := Seed(t, s)

	rec, err := s.OpenRecording(ctx, domain.Recording{ID: "rec-1", Session: key, StartedBy: "teacher", StartedAt: epoch})
	require.NoError(t, err)
	assert.True(t, rec.Active())

	_, err = s.OpenRecording(ctx, domain.Recording{ID: "rec-2", Session: key, StartedBy: "teacher", StartedAt: epoch})
	assert.True(t, errors.Is(err, domain.ErrConflict), "one active recording per session")

	stopped, err := s.CloseRecording(ctx, "rec-1", "/recordings/math-101/rec-1.webm", epoch.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, stopped.Active())
	assert.Equal(t, "/recordings/math-101/rec-1.webm", stopped.ArtifactURL)

	_, err = s.CloseRecording(ctx, "rec-1", "", epoch.Add(time.Hour))
	assert.True(t, errors.Is(err, domain.ErrConflict), "already stopped")

	_, err = s.CloseRecording(ctx, "rec-9", "", epoch)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	got, err := s.Recording(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("teacher"), got.StartedBy)

	_, err = s.OpenRecording(ctx, domain.Recording{ID: "rec-2", Session: key, StartedBy: "teacher", StartedAt: epoch.Add(2 * time.Hour)})
	require.NoError(t, err, "a new recording may start after the previous one stopped")

	_, err = s.OpenRecording(ctx, domain.Recording{ID: "rec-3", Session: domain.SessionKey{Kind: domain.KindRegular, ID: "nope"}, StartedAt: epoch})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func testConcurrentRecording(t *testing.T, s core.Store) {
	ctx := context.Background()
	key := Seed(t, s)

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.OpenRecording(ctx, domain.Recording{
				ID:        "rec-" + string(rune('a'+i)),
				Session:   key,
				StartedBy: "teacher",
				StartedAt: epoch,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, conflicts)
}

func testAttendance(t *testing.T, s core.Store) {
	ctx := context.Background()
	key := Seed(t, s)
	room := key.MainRoom()

	require.NoError(t, s.RecordJoin(ctx, domain.AttendanceRecord{
		ID: "att-1", Session: key, Room: room, UserID: "alice", Username: "Alice",
		Role: domain.RoleParticipant, JoinedAt: epoch,
	}))
	require.NoError(t, s.RecordJoin(ctx, domain.AttendanceRecord{
		ID: "att-2", Session: key, Room: room, UserID: "teacher", Username: "Ms. Teacher",
		Role: domain.RoleHost, JoinedAt: epoch.Add(time.Minute),
	}))
	require.NoError(t, s.RecordLeave(ctx, room, "alice", epoch, epoch.Add(time.Hour)))

	recs, err := s.ListAttendance(ctx, key)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, domain.UserID("alice"), recs[0].UserID)
	require.NotNil(t, recs[0].LeftAt)
	assert.True(t, recs[0].LeftAt.Equal(epoch.Add(time.Hour)))
	assert.Equal(t, domain.RoleHost, recs[1].Role)
	assert.Nil(t, recs[1].LeftAt)

	// rejoin reopens the same record
	require.NoError(t, s.RecordJoin(ctx, domain.AttendanceRecord{
		ID: "att-3", Session: key, Room: room, UserID: "alice", Username: "Alice",
		Role: domain.RoleParticipant, JoinedAt: epoch.Add(2 * time.Hour),
	}))
	recs, err = s.ListAttendance(ctx, key)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, domain.UserID("teacher"), recs[0].UserID)
	assert.Equal(t, domain.UserID("alice"), recs[1].UserID)
	assert.Nil(t, recs[1].LeftAt)

	// a leave for the earlier join must not close the reopened record
	require.NoError(t, s.RecordLeave(ctx, room, "alice", epoch, epoch.Add(3*time.Hour)))
	recs, err = s.ListAttendance(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, recs[1].LeftAt)

	rejoined := epoch.Add(2*time.Hour + 123456789*time.Nanosecond)
	require.NoError(t, s.RecordJoin(ctx, domain.AttendanceRecord{
		ID: "att-4", Session: key, Room: room, UserID: "alice", Username: "Alice",
		Role: domain.RoleParticipant, JoinedAt: rejoined,
	}))
	require.NoError(t, s.RecordLeave(ctx, room, "alice", rejoined, epoch.Add(4*time.Hour)))
	recs, err = s.ListAttendance(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, recs[1].LeftAt)
	assert.True(t, recs[1].LeftAt.Equal(epoch.Add(4*time.Hour)))

	err = s.RecordLeave(ctx, room, "bob", epoch, epoch)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	other, err := s.ListAttendance(ctx, domain.SessionKey{Kind: domain.KindInstant, ID: "x"})
	require.NoError(t, err)
	assert.Empty(t, other)
}
