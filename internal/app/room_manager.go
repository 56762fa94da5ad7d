package app

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Classroom/internal/core"
	"github.com/dkeye/Classroom/internal/domain"
)

// RoomManagerImpl is the in-process Room Registry. The manager lock only
// guards the key->room map; membership changes lock the single room.
type RoomManagerImpl struct {
	mu    sync.RWMutex
	rooms map[domain.RoomKey]core.RoomService
}

var _ core.RoomRegistry = (*RoomManagerImpl)(nil)

func NewRoomManager() *RoomManagerImpl {
	return &RoomManagerImpl{rooms: make(map[domain.RoomKey]core.RoomService)}
}

func (f *RoomManagerImpl) getOrCreate(key domain.RoomKey) (core.RoomService, error) {
	f.mu.RLock()
	room, ok := f.rooms[key]
	f.mu.RUnlock()
	if ok {
		return room, nil
	}
	desc, err := domain.NewRoom(key)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok = f.rooms[key]; ok {
		return room, nil
	}
	room = core.NewRoomService(desc)
	f.rooms[key] = room
	log.Info().Str("module", "app.rooms").Str("room", string(key)).Msg("room created")
	return room, nil
}

func (f *RoomManagerImpl) drop(key domain.RoomKey, room core.RoomService) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rooms[key] == room {
		delete(f.rooms, key)
		log.Info().Str("module", "app.rooms").Str("room", string(key)).Msg("room released")
	}
}

func (f *RoomManagerImpl) Join(key domain.RoomKey, ms core.MemberSession) (core.MemberSession, error) {
	for {
		room, err := f.getOrCreate(key)
		if err != nil {
			return nil, err
		}
		replaced, err := room.Join(ms)
		if errors.Is(err, core.ErrRoomRetired) {
			// lost the race with the last leave; the next lookup creates a fresh room
			f.drop(key, room)
			continue
		}
		return replaced, err
	}
}

func (f *RoomManagerImpl) Leave(key domain.RoomKey, uid domain.UserID, cid core.ConnID, at time.Time) bool {
	room, ok := f.Get(key)
	if !ok {
		return false
	}
	left := room.Leave(uid, cid, at)
	if left && room.Retire() {
		f.drop(key, room)
	}
	return left
}

func (f *RoomManagerImpl) Get(key domain.RoomKey) (core.RoomService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[key]
	return room, ok
}

func (f *RoomManagerImpl) Members(key domain.RoomKey) []domain.Member {
	room, ok := f.Get(key)
	if !ok {
		return nil
	}
	return room.MembersSnapshot()
}

func (f *RoomManagerImpl) BroadcastTargets(key domain.RoomKey, exclude core.ConnID) []core.MemberSession {
	room, ok := f.Get(key)
	if !ok {
		return nil
	}
	return room.Targets(exclude)
}

func (f *RoomManagerImpl) Target(key domain.RoomKey, uid domain.UserID) (core.MemberSession, bool) {
	room, ok := f.Get(key)
	if !ok {
		return nil, false
	}
	return room.Target(uid)
}

func (f *RoomManagerImpl) List() []core.RoomInfo {
	f.mu.RLock()
	out := make([]core.RoomInfo, 0, len(f.rooms))
	for key, r := range f.rooms {
		out = append(out, core.RoomInfo{Key: key, Parent: r.Room().Parent, MemberCount: r.MemberCount()})
	}
	f.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
