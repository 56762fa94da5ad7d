// Package memory is a process-local Store. Each session has its own lock;
// the store-wide lock only guards the indexes.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/dkeye/Classroom/internal/core"
	"github.com/dkeye/Classroom/internal/domain"
)

type sessionState struct {
	mu          sync.Mutex
	session     domain.Session
	admins      map[domain.UserID]struct{}
	breakouts   map[string]*domain.Breakout // by slug
	assignments map[domain.UserID]domain.Assignment
	recordings  map[string]*domain.Recording
	active      *domain.Recording
}

func newSessionState(s domain.Session) *sessionState {
	return &sessionState{
		session:     s,
		admins:      make(map[domain.UserID]struct{}),
		breakouts:   make(map[string]*domain.Breakout),
		assignments: make(map[domain.UserID]domain.Assignment),
		recordings:  make(map[string]*domain.Recording),
	}
}

type attendanceKey struct {
	room domain.RoomKey
	user domain.UserID
}

type Store struct {
	mu         sync.RWMutex
	users      map[domain.UserID]domain.User
	sessions   map[domain.SessionKey]*sessionState
	recordings map[string]domain.SessionKey

	attMu      sync.Mutex
	attendance map[attendanceKey]*domain.AttendanceRecord
}

var _ core.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:      make(map[domain.UserID]domain.User),
		sessions:   make(map[domain.SessionKey]*sessionState),
		recordings: make(map[string]domain.SessionKey),
		attendance: make(map[attendanceKey]*domain.AttendanceRecord),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) state(key domain.SessionKey) (*sessionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[key]
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "session %s", key)
	}
	return st, nil
}

func regular(id string) domain.SessionKey {
	return domain.SessionKey{Kind: domain.KindRegular, ID: id}
}

// --- Seeder ---

func (s *Store) UpsertUser(_ context.Context, u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *Store) UpsertSession(_ context.Context, sess domain.Session, admins []domain.UserID) error {
	s.mu.Lock()
	st, ok := s.sessions[sess.SessionKey]
	if !ok {
		st = newSessionState(sess)
		s.sessions[sess.SessionKey] = st
	}
	s.mu.Unlock()

	st.mu.Lock()
	defer st.mu.Unlock()
	st.session = sess
	st.admins = make(map[domain.UserID]struct{}, len(admins))
	for _, a := range admins {
		st.admins[a] = struct{}{}
	}
	return nil
}

// --- SessionDirectory ---

func (s *Store) Resolve(_ context.Context, key domain.SessionKey) (*domain.Session, error) {
	st, err := s.state(key)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	out := st.session
	return &out, nil
}

func (s *Store) ResolveBreakout(_ context.Context, sessionID, slug string) (*domain.Breakout, error) {
	st, err := s.state(regular(sessionID))
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	b, ok := st.breakouts[slug]
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "breakout %s/%s", sessionID, slug)
	}
	out := *b
	return &out, nil
}

func (s *Store) IsAdministrator(_ context.Context, key domain.SessionKey, uid domain.UserID) (bool, error) {
	st, err := s.state(key)
	if err != nil {
		return false, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if key.Kind == domain.KindInstant {
		return st.session.CreatedBy == uid, nil
	}
	_, ok := st.admins[uid]
	return ok, nil
}

func (s *Store) ResolveUser(_ context.Context, uid domain.UserID) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[uid]
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "user %s", uid)
	}
	return &u, nil
}

func (s *Store) CreateInstant(_ context.Context, sess domain.Session) (*domain.Session, error) {
	sess.Kind = domain.KindInstant
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.SessionKey]; ok {
		return nil, errors.Wrapf(domain.ErrConflict, "session %s exists", sess.SessionKey)
	}
	s.sessions[sess.SessionKey] = newSessionState(sess)
	return &sess, nil
}

func (s *Store) CreateBreakout(_ context.Context, b domain.Breakout) (*domain.Breakout, error) {
	st, err := s.state(regular(b.SessionID))
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, existing := range st.breakouts {
		if strings.EqualFold(existing.Name, b.Name) || existing.Slug == b.Slug {
			return nil, errors.Wrapf(domain.ErrConflict, "breakout %q exists", b.Name)
		}
	}
	out := b
	st.breakouts[b.Slug] = &out
	return &b, nil
}

func (s *Store) CloseBreakout(_ context.Context, sessionID, slug string, at time.Time) (*domain.Breakout, error) {
	st, err := s.state(regular(sessionID))
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	b, ok := st.breakouts[slug]
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "breakout %s/%s", sessionID, slug)
	}
	if !b.Active {
		return nil, errors.Wrapf(domain.ErrConflict, "breakout %s/%s already closed", sessionID, slug)
	}
	b.Active = false
	b.ClosedAt = &at
	out := *b
	return &out, nil
}

func (s *Store) AssignParticipant(ctx context.Context, a domain.Assignment) (*domain.Assignment, error) {
	if _, err := s.ResolveUser(ctx, a.UserID); err != nil {
		return nil, err
	}
	st, err := s.state(regular(a.SessionID))
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	b, ok := st.breakouts[a.Breakout]
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "breakout %s/%s", a.SessionID, a.Breakout)
	}
	if !b.Active {
		return nil, errors.Wrapf(domain.ErrConflict, "breakout %s/%s closed", a.SessionID, a.Breakout)
	}
	st.assignments[a.UserID] = a
	return &a, nil
}

func (s *Store) OpenRecording(_ context.Context, r domain.Recording) (*domain.Recording, error) {
	st, err := s.state(r.Session)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	if st.active != nil {
		st.mu.Unlock()
		return nil, errors.Wrapf(domain.ErrConflict, "recording %s already active", st.active.ID)
	}
	rec := r
	rec.StoppedAt = nil
	st.active = &rec
	st.recordings[rec.ID] = &rec
	st.mu.Unlock()

	s.mu.Lock()
	s.recordings[rec.ID] = rec.Session
	s.mu.Unlock()
	out := rec
	return &out, nil
}

func (s *Store) recordingState(id string) (*sessionState, error) {
	s.mu.RLock()
	key, ok := s.recordings[id]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "recording %s", id)
	}
	return s.state(key)
}

func (s *Store) CloseRecording(_ context.Context, id, artifactURL string, at time.Time) (*domain.Recording, error) {
	st, err := s.recordingState(id)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	rec, ok := st.recordings[id]
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "recording %s", id)
	}
	if rec.StoppedAt != nil {
		return nil, errors.Wrapf(domain.ErrConflict, "recording %s already stopped", id)
	}
	rec.StoppedAt = &at
	rec.ArtifactURL = artifactURL
	if st.active == rec {
		st.active = nil
	}
	out := *rec
	return &out, nil
}

func (s *Store) Recording(_ context.Context, id string) (*domain.Recording, error) {
	st, err := s.recordingState(id)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	rec, ok := st.recordings[id]
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "recording %s", id)
	}
	out := *rec
	return &out, nil
}

// --- AttendanceStore ---

func (s *Store) RecordJoin(_ context.Context, rec domain.AttendanceRecord) error {
	k := attendanceKey{room: rec.Room, user: rec.UserID}
	s.attMu.Lock()
	defer s.attMu.Unlock()
	if cur, ok := s.attendance[k]; ok {
		cur.Username = rec.Username
		cur.Role = rec.Role
		cur.JoinedAt = rec.JoinedAt
		cur.LeftAt = nil
		return nil
	}
	rec.LeftAt = nil
	s.attendance[k] = &rec
	return nil
}

func (s *Store) RecordLeave(_ context.Context, room domain.RoomKey, uid domain.UserID, joinedAt, at time.Time) error {
	s.attMu.Lock()
	defer s.attMu.Unlock()
	cur, ok := s.attendance[attendanceKey{room: room, user: uid}]
	if !ok {
		return errors.Wrapf(domain.ErrNotFound, "attendance %s/%s", room, uid)
	}
	if cur.LeftAt == nil && cur.JoinedAt.Equal(joinedAt) {
		cur.LeftAt = &at
	}
	return nil
}

func (s *Store) ListAttendance(_ context.Context, key domain.SessionKey) ([]domain.AttendanceRecord, error) {
	s.attMu.Lock()
	out := make([]domain.AttendanceRecord, 0)
	for _, rec := range s.attendance {
		if rec.Session == key {
			out = append(out, *rec)
		}
	}
	s.attMu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out, nil
}
