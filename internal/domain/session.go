package domain

import (
	"regexp"
	"strings"
	"time"
)

// SessionKey addresses a persisted meeting record.
type SessionKey struct {
	Kind SessionKind `json:"kind"`
	ID   string      `json:"id"`
}

func (k SessionKey) String() string { return string(k.Kind) + ":" + k.ID }

// MainRoom is the room every participant of the session lands in first.
func (k SessionKey) MainRoom() RoomKey {
	if k.Kind == KindInstant {
		return InstantRoom(k.ID)
	}
	return MainRoom(k.ID)
}

// Session is the persisted meeting record. CreatedBy is the owner of instant sessions.
type Session struct {
	SessionKey
	Title     string     `json:"title"`
	StartsAt  *time.Time `json:"starts_at,omitempty"`
	EndsAt    *time.Time `json:"ends_at,omitempty"`
	CreatedBy UserID     `json:"created_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type Breakout struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session"`
	Name      string     `json:"name"`
	Slug      string     `json:"slug"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

func (b Breakout) Room() RoomKey { return BreakoutRoom(b.SessionID, b.Slug) }

type Assignment struct {
	SessionID  string    `json:"session"`
	Breakout   string    `json:"breakout"`
	UserID     UserID    `json:"user_id"`
	AssignedAt time.Time `json:"assigned_at"`
}

type Recording struct {
	ID          string     `json:"id"`
	Session     SessionKey `json:"session"`
	StartedBy   UserID     `json:"started_by"`
	StartedAt   time.Time  `json:"started_at"`
	StoppedAt   *time.Time `json:"stopped_at"`
	ArtifactURL string     `json:"artifact_url,omitempty"`
}

func (r Recording) Active() bool { return r.StoppedAt == nil }

// AttendanceRecord is the persisted form of a Member.
type AttendanceRecord struct {
	ID       string     `json:"id"`
	Session  SessionKey `json:"session"`
	Room     RoomKey    `json:"room"`
	UserID   UserID     `json:"user_id"`
	Username string     `json:"username"`
	Role     Role       `json:"role"`
	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at"`
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify turns a breakout name into a room key segment ("Group 1" -> "group-1").
func Slugify(name string) string {
	s := slugStrip.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	s = strings.Trim(s, "-")
	if len(s) > 48 {
		s = strings.TrimRight(s[:48], "-")
	}
	return s
}

// Scope is what a connection was authorized for, resolved once:
// either a RegularScope (optionally inside a breakout) or an InstantScope.
type Scope interface {
	RoomKey() RoomKey
	Session() *Session
	isScope()
}

type RegularScope struct {
	Sess     *Session
	Breakout *Breakout
}

func (s RegularScope) RoomKey() RoomKey {
	if s.Breakout != nil {
		return s.Breakout.Room()
	}
	return MainRoom(s.Sess.ID)
}

func (s RegularScope) Session() *Session { return s.Sess }
func (RegularScope) isScope()            {}

type InstantScope struct {
	Sess *Session
}

func (s InstantScope) RoomKey() RoomKey  { return InstantRoom(s.Sess.ID) }
func (s InstantScope) Session() *Session { return s.Sess }
func (InstantScope) isScope()            {}
