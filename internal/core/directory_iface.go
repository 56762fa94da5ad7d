package core

import (
	"context"
	"net/http"
	"time"

	"github.com/dkeye/Classroom/internal/domain"
)

// SessionDirectory resolves and mutates persisted meeting state. Every
// mutation is atomic per session: concurrent duplicates see exactly one
// winner and domain.ErrConflict for the rest.
type SessionDirectory interface {
	Resolve(ctx context.Context, key domain.SessionKey) (*domain.Session, error)
	ResolveBreakout(ctx context.Context, sessionID, slug string) (*domain.Breakout, error)
	IsAdministrator(ctx context.Context, key domain.SessionKey, uid domain.UserID) (bool, error)
	ResolveUser(ctx context.Context, uid domain.UserID) (*domain.User, error)

	CreateInstant(ctx context.Context, s domain.Session) (*domain.Session, error)
	CreateBreakout(ctx context.Context, b domain.Breakout) (*domain.Breakout, error)
	CloseBreakout(ctx context.Context, sessionID, slug string, at time.Time) (*domain.Breakout, error)
	AssignParticipant(ctx context.Context, a domain.Assignment) (*domain.Assignment, error)
	OpenRecording(ctx context.Context, r domain.Recording) (*domain.Recording, error)
	CloseRecording(ctx context.Context, id, artifactURL string, at time.Time) (*domain.Recording, error)
	Recording(ctx context.Context, id string) (*domain.Recording, error)
}

// AttendanceStore persists Member records beyond process lifetime.
type AttendanceStore interface {
	// RecordJoin upserts by (room, user): a rejoin clears left_at.
	RecordJoin(ctx context.Context, rec domain.AttendanceRecord) error
	// RecordLeave closes the record only while it still belongs to the join
	// at joinedAt; a stale leave after a rejoin is a no-op.
	RecordLeave(ctx context.Context, room domain.RoomKey, uid domain.UserID, joinedAt, at time.Time) error
	ListAttendance(ctx context.Context, key domain.SessionKey) ([]domain.AttendanceRecord, error)
}

// Seeder loads users, sessions and administrator lists owned by the LMS.
type Seeder interface {
	UpsertUser(ctx context.Context, u domain.User) error
	UpsertSession(ctx context.Context, s domain.Session, admins []domain.UserID) error
}

type Store interface {
	SessionDirectory
	AttendanceStore
	Seeder
	Close() error
}

// IdentityProvider resolves the caller of a request; domain.ErrUnauthenticated otherwise.
type IdentityProvider interface {
	Authenticate(r *http.Request) (*domain.User, error)
}
