package sqlstore

import (
	"time"

	"github.com/dkeye/Classroom/internal/domain"
)

type sessionRow struct {
	Kind      string     `db:"session_kind"`
	ID        string     `db:"session_id"`
	Title     string     `db:"title"`
	StartsAt  *time.Time `db:"starts_at"`
	EndsAt    *time.Time `db:"ends_at"`
	CreatedBy string     `db:"created_by"`
	CreatedAt time.Time  `db:"created_at"`
}

func (r sessionRow) toDomain() *domain.Session {
	return &domain.Session{
		SessionKey: domain.SessionKey{Kind: domain.SessionKind(r.Kind), ID: r.ID},
		Title:      r.Title,
		StartsAt:   utcPtr(r.StartsAt),
		EndsAt:     utcPtr(r.EndsAt),
		CreatedBy:  domain.UserID(r.CreatedBy),
		CreatedAt:  r.CreatedAt.UTC(),
	}
}

type breakoutRow struct {
	ID        string     `db:"id"`
	SessionID string     `db:"session_id"`
	Name      string     `db:"name"`
	Slug      string     `db:"slug"`
	Active    bool       `db:"active"`
	CreatedAt time.Time  `db:"created_at"`
	ClosedAt  *time.Time `db:"closed_at"`
}

func (r breakoutRow) toDomain() *domain.Breakout {
	return &domain.Breakout{
		ID:        r.ID,
		SessionID: r.SessionID,
		Name:      r.Name,
		Slug:      r.Slug,
		Active:    r.Active,
		CreatedAt: r.CreatedAt.UTC(),
		ClosedAt:  utcPtr(r.ClosedAt),
	}
}

type recordingRow struct {
	ID          string     `db:"id"`
	Kind        string     `db:"session_kind"`
	SessionID   string     `db:"session_id"`
	StartedBy   string     `db:"started_by"`
	StartedAt   time.Time  `db:"started_at"`
	StoppedAt   *time.Time `db:"stopped_at"`
	ArtifactURL string     `db:"artifact_url"`
}

func (r recordingRow) toDomain() *domain.Recording {
	return &domain.Recording{
		ID:          r.ID,
		Session:     domain.SessionKey{Kind: domain.SessionKind(r.Kind), ID: r.SessionID},
		StartedBy:   domain.UserID(r.StartedBy),
		StartedAt:   r.StartedAt.UTC(),
		StoppedAt:   utcPtr(r.StoppedAt),
		ArtifactURL: r.ArtifactURL,
	}
}

type attendanceRow struct {
	ID        string     `db:"id"`
	Kind      string     `db:"session_kind"`
	SessionID string     `db:"session_id"`
	RoomKey   string     `db:"room_key"`
	UserID    string     `db:"user_id"`
	Username  string     `db:"username"`
	Role      string     `db:"role"`
	JoinedAt  time.Time  `db:"joined_at"`
	LeftAt    *time.Time `db:"left_at"`
}

func (r attendanceRow) toDomain() domain.AttendanceRecord {
	return domain.AttendanceRecord{
		ID:       r.ID,
		Session:  domain.SessionKey{Kind: domain.SessionKind(r.Kind), ID: r.SessionID},
		Room:     domain.RoomKey(r.RoomKey),
		UserID:   domain.UserID(r.UserID),
		Username: r.Username,
		Role:     domain.Role(r.Role),
		JoinedAt: r.JoinedAt.UTC(),
		LeftAt:   utcPtr(r.LeftAt),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
