package core

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Classroom/internal/domain"
)

type memberEntry struct {
	member domain.Member
	conn   MemberSession // nil once the member left
}

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	room    *domain.Room
	mu      sync.RWMutex
	byUser  map[domain.UserID]*memberEntry
	live    int
	retired bool
}

func NewRoomService(room *domain.Room) RoomService {
	return &roomImpl{
		room:   room,
		byUser: make(map[domain.UserID]*memberEntry),
	}
}

func (r *roomImpl) Room() *domain.Room { return r.room }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.live
}

func (r *roomImpl) Join(ms MemberSession) (MemberSession, error) {
	meta := *ms.Meta()
	meta.Room = r.room.Key
	meta.LeftAt = nil
	uid := meta.User.ID

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.retired {
		return nil, ErrRoomRetired
	}
	var replaced MemberSession
	e, ok := r.byUser[uid]
	switch {
	case !ok:
		r.byUser[uid] = &memberEntry{member: meta, conn: ms}
		r.live++
	case e.conn == nil:
		e.member, e.conn = meta, ms
		r.live++
	default:
		if e.conn.ID() != ms.ID() {
			replaced = e.conn
		}
		e.member, e.conn = meta, ms
	}
	log.Info().Str("module", "core.room").Str("room", string(r.room.Key)).Str("cid", string(ms.ID())).Str("uid", string(uid)).Str("role", string(meta.Role)).Msg("member joined")
	return replaced, nil
}

func (r *roomImpl) Leave(uid domain.UserID, cid ConnID, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byUser[uid]
	if !ok || e.conn == nil || e.conn.ID() != cid {
		return false
	}
	e.conn = nil
	e.member.LeftAt = &at
	r.live--
	log.Info().Str("module", "core.room").Str("room", string(r.room.Key)).Str("cid", string(cid)).Str("uid", string(uid)).Msg("member left")
	return true
}

func (r *roomImpl) Targets(exclude ConnID) []MemberSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberSession, 0, r.live)
	for _, e := range r.byUser {
		if e.conn == nil || e.conn.ID() == exclude {
			continue
		}
		out = append(out, e.conn)
	}
	return out
}

func (r *roomImpl) Target(uid domain.UserID) (MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byUser[uid]
	if !ok || e.conn == nil {
		return nil, false
	}
	return e.conn, true
}

func (r *roomImpl) Retire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.live > 0 {
		return false
	}
	r.retired = true
	return true
}

func (r *roomImpl) MembersSnapshot() []domain.Member {
	r.mu.RLock()
	out := make([]domain.Member, 0, len(r.byUser))
	for _, e := range r.byUser {
		out = append(out, e.member)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out
}
