// Package lifecycle runs the administrative operations of a session:
// breakouts, assignments, recordings and attendance. Each operation
// authorizes, commits one mutation in the directory, then informs the
// connected clients with a system signal.
package lifecycle

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Classroom/internal/core"
	"github.com/dkeye/Classroom/internal/domain"
)

// Broadcaster is the part of the router the manager talks to.
type Broadcaster interface {
	Broadcast(key domain.RoomKey, sig domain.Signal) core.PublishResult
	BroadcastSession(key domain.SessionKey, sig domain.Signal) core.PublishResult
	SendToSession(key domain.SessionKey, uid domain.UserID, sig domain.Signal) core.PublishResult
}

type Manager struct {
	Directory    core.SessionDirectory
	Attendance   core.AttendanceStore
	Signals      Broadcaster
	ArtifactBase string
	Now          func() time.Time
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now().UTC()
}

// authorize resolves the session and requires caller to administer it.
func (m *Manager) authorize(ctx context.Context, caller *domain.User, key domain.SessionKey) (*domain.Session, error) {
	if caller == nil {
		return nil, domain.ErrUnauthenticated
	}
	sess, err := m.Directory.Resolve(ctx, key)
	if err != nil {
		return nil, err
	}
	ok, err := m.Directory.IsAdministrator(ctx, key, caller.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(domain.ErrForbidden, "%s does not administer %s", caller.ID, key)
	}
	return sess, nil
}

func (m *Manager) emit(sig domain.Signal, err error, send func(domain.Signal) core.PublishResult) {
	if err != nil {
		log.Error().Err(err).Str("module", "lifecycle").Str("action", string(sig.Action)).Msg("build signal")
		return
	}
	res := send(sig)
	log.Debug().Str("module", "lifecycle").Str("action", string(sig.Action)).Int("sent_to", res.SendTo).Msg("system signal")
}

type BreakoutEvent struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Slug string         `json:"slug"`
	Room domain.RoomKey `json:"room"`
}

func breakoutEvent(b *domain.Breakout) BreakoutEvent {
	return BreakoutEvent{ID: b.ID, Name: b.Name, Slug: b.Slug, Room: b.Room()}
}

// CreateBreakout adds a breakout to a regular session. The room itself
// only comes alive on its first join.
func (m *Manager) CreateBreakout(ctx context.Context, caller *domain.User, key domain.SessionKey, name string) (*domain.Breakout, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.Wrap(domain.ErrInvalid, "breakout name required")
	}
	if key.Kind != domain.KindRegular {
		return nil, errors.Wrapf(domain.ErrInvalid, "breakouts need a regular session, got %s", key)
	}
	slug := domain.Slugify(name)
	if !domain.ValidSegment(slug) {
		return nil, errors.Wrapf(domain.ErrInvalid, "breakout name %q", name)
	}
	if _, err := m.authorize(ctx, caller, key); err != nil {
		return nil, err
	}
	b, err := m.Directory.CreateBreakout(ctx, domain.Breakout{
		ID:        uuid.NewString(),
		SessionID: key.ID,
		Name:      name,
		Slug:      slug,
		Active:    true,
		CreatedAt: m.now(),
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "lifecycle").Str("session", key.String()).Str("breakout", b.Slug).Str("uid", string(caller.ID)).Msg("breakout created")

	sig, err := domain.NewSystemSignal(domain.ActionBreakoutCreated, breakoutEvent(b))
	m.emit(sig, err, func(s domain.Signal) core.PublishResult { return m.Signals.BroadcastSession(key, s) })
	return b, nil
}

// AssignParticipant records uid's breakout and tells only that user,
// whichever room of the session it is connected to.
func (m *Manager) AssignParticipant(ctx context.Context, caller *domain.User, key domain.SessionKey, slug string, uid domain.UserID) (*domain.Assignment, error) {
	if uid == "" {
		return nil, errors.Wrap(domain.ErrInvalid, "user_id required")
	}
	if key.Kind != domain.KindRegular {
		return nil, errors.Wrapf(domain.ErrNotFound, "breakout %s in %s", slug, key)
	}
	if _, err := m.authorize(ctx, caller, key); err != nil {
		return nil, err
	}
	b, err := m.Directory.ResolveBreakout(ctx, key.ID, slug)
	if err != nil {
		return nil, err
	}
	a, err := m.Directory.AssignParticipant(ctx, domain.Assignment{
		SessionID:  key.ID,
		Breakout:   b.Slug,
		UserID:     uid,
		AssignedAt: m.now(),
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "lifecycle").Str("session", key.String()).Str("breakout", b.Slug).Str("uid", string(uid)).Msg("participant assigned")

	sig, err := domain.NewSystemSignal(domain.ActionAssignedToBreakout, struct {
		BreakoutEvent
		UserID domain.UserID `json:"user_id"`
	}{breakoutEvent(b), uid})
	m.emit(sig, err, func(s domain.Signal) core.PublishResult { return m.Signals.SendToSession(key, uid, s) })
	return a, nil
}

// CloseBreakout deactivates a breakout; both the main room and the
// breakout room hear about it.
func (m *Manager) CloseBreakout(ctx context.Context, caller *domain.User, key domain.SessionKey, slug string) (*domain.Breakout, error) {
	if key.Kind != domain.KindRegular {
		return nil, errors.Wrapf(domain.ErrNotFound, "breakout %s in %s", slug, key)
	}
	if _, err := m.authorize(ctx, caller, key); err != nil {
		return nil, err
	}
	b, err := m.Directory.CloseBreakout(ctx, key.ID, slug, m.now())
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "lifecycle").Str("session", key.String()).Str("breakout", b.Slug).Str("uid", string(caller.ID)).Msg("breakout closed")

	sig, err := domain.NewSystemSignal(domain.ActionBreakoutClosed, breakoutEvent(b))
	m.emit(sig, err, func(s domain.Signal) core.PublishResult {
		res := m.Signals.Broadcast(key.MainRoom(), s)
		more := m.Signals.Broadcast(b.Room(), s)
		res.SendTo += more.SendTo
		res.Dropped = append(res.Dropped, more.Dropped...)
		return res
	})
	return b, nil
}

// StartRecording opens the session's only active recording.
func (m *Manager) StartRecording(ctx context.Context, caller *domain.User, key domain.SessionKey) (*domain.Recording, error) {
	if _, err := m.authorize(ctx, caller, key); err != nil {
		return nil, err
	}
	rec, err := m.Directory.OpenRecording(ctx, domain.Recording{
		ID:        uuid.NewString(),
		Session:   key,
		StartedBy: caller.ID,
		StartedAt: m.now(),
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "lifecycle").Str("session", key.String()).Str("recording", rec.ID).Str("uid", string(caller.ID)).Msg("recording started")

	sig, err := domain.NewSystemSignal(domain.ActionRecordingStarted, rec)
	m.emit(sig, err, func(s domain.Signal) core.PublishResult { return m.Signals.BroadcastSession(key, s) })
	return rec, nil
}

// ArtifactURL is where the recording's media ends up.
func (m *Manager) ArtifactURL(rec *domain.Recording) string {
	base := m.ArtifactBase
	if base == "" {
		base = "/recordings"
	}
	return path.Join(base, rec.Session.ID, rec.ID+".webm")
}

func (m *Manager) StopRecording(ctx context.Context, caller *domain.User, recordingID string) (*domain.Recording, error) {
	if caller == nil {
		return nil, domain.ErrUnauthenticated
	}
	cur, err := m.Directory.Recording(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	if _, err := m.authorize(ctx, caller, cur.Session); err != nil {
		return nil, err
	}
	rec, err := m.Directory.CloseRecording(ctx, recordingID, m.ArtifactURL(cur), m.now())
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "lifecycle").Str("session", rec.Session.String()).Str("recording", rec.ID).Str("uid", string(caller.ID)).Msg("recording stopped")

	sig, err := domain.NewSystemSignal(domain.ActionRecordingStopped, rec)
	m.emit(sig, err, func(s domain.Signal) core.PublishResult { return m.Signals.BroadcastSession(rec.Session, s) })
	return rec, nil
}

// ListAttendance returns join/leave records of a session, oldest join first.
func (m *Manager) ListAttendance(ctx context.Context, caller *domain.User, key domain.SessionKey) ([]domain.AttendanceRecord, error) {
	if _, err := m.authorize(ctx, caller, key); err != nil {
		return nil, err
	}
	return m.Attendance.ListAttendance(ctx, key)
}

// CreateInstant opens an ad hoc session owned by caller. An empty id is generated.
func (m *Manager) CreateInstant(ctx context.Context, caller *domain.User, id, title string) (*domain.Session, error) {
	if caller == nil {
		return nil, domain.ErrUnauthenticated
	}
	if id == "" {
		id = uuid.NewString()
	}
	if !domain.ValidSegment(id) {
		return nil, errors.Wrapf(domain.ErrInvalid, "instant session id %q", id)
	}
	if title == "" {
		title = id
	}
	sess, err := m.Directory.CreateInstant(ctx, domain.Session{
		SessionKey: domain.SessionKey{Kind: domain.KindInstant, ID: id},
		Title:      title,
		CreatedBy:  caller.ID,
		CreatedAt:  m.now(),
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "lifecycle").Str("session", sess.String()).Str("uid", string(caller.ID)).Msg("instant session created")
	return sess, nil
}
