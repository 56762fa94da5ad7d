package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Classroom/internal/core"
	"github.com/dkeye/Classroom/internal/domain"
)

type sessionEntry struct {
	Session core.MemberSession
	Cancel  context.CancelFunc
}

// Registry indexes live connections by id, independent of rooms.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.ConnID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[core.ConnID]*sessionEntry)}
}

func (r *Registry) Bind(sess core.MemberSession, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.ID()] = &sessionEntry{Session: sess, Cancel: cancel}
	log.Debug().Str("module", "app.registry").Str("cid", string(sess.ID())).Msg("bound session")
}

func (r *Registry) Unbind(cid core.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, cid)
	log.Debug().Str("module", "app.registry").Str("cid", string(cid)).Msg("unbind session")
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ConnectionsOf returns every live connection of a user across rooms.
func (r *Registry) ConnectionsOf(uid domain.UserID) []core.MemberSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []core.MemberSession
	for _, e := range r.sessions {
		if m := e.Session.Meta(); m != nil && m.User.ID == uid {
			out = append(out, e.Session)
		}
	}
	return out
}

// Cancel stops the pumps of one connection; its teardown follows.
func (r *Registry) Cancel(cid core.ConnID) bool {
	r.mu.RLock()
	e, ok := r.sessions[cid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Msg("canceled session")
	return true
}

// CloseAll tears down every live connection, used on server shutdown.
func (r *Registry) CloseAll() int {
	r.mu.RLock()
	all := make([]*sessionEntry, 0, len(r.sessions))
	for _, e := range r.sessions {
		all = append(all, e)
	}
	r.mu.RUnlock()
	for _, e := range all {
		if e.Cancel != nil {
			e.Cancel()
		}
		e.Session.Close()
	}
	return len(all)
}
