package orch

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Classroom/internal/app"
	"github.com/dkeye/Classroom/internal/core"
	"github.com/dkeye/Classroom/internal/domain"
)

// Orchestrator ties connection sessions to rooms and routes their signals.
type Orchestrator struct {
	Registry   *app.Registry
	Rooms      core.RoomRegistry
	Policy     app.Policy
	Attendance core.AttendanceStore
	Now        func() time.Time
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now().UTC()
}

// Route relays one inbound signal from a joined connection. The sender is
// always stamped from the connection identity; a missing target is a silent drop.
func (o *Orchestrator) Route(from core.MemberSession, sig domain.Signal) core.PublishResult {
	meta := from.Meta()
	sig.Sender = string(meta.User.ID)
	key := from.Scope().RoomKey()

	var recipients []core.MemberSession
	switch {
	case sig.Target != "":
		ms, ok := o.Rooms.Target(key, sig.Target)
		if !ok {
			log.Debug().Str("module", "orch").Str("room", string(key)).Str("action", string(sig.Action)).Str("target", string(sig.Target)).Msg("target not connected, dropped")
			return core.PublishResult{}
		}
		recipients = []core.MemberSession{ms}
	case sig.Action.IsControl():
		recipients = o.Rooms.BroadcastTargets(key, "")
	default:
		recipients = o.Rooms.BroadcastTargets(key, from.ID())
	}
	return o.deliver(key, sig, recipients)
}

// Broadcast delivers a system signal to every connection of a room.
func (o *Orchestrator) Broadcast(key domain.RoomKey, sig domain.Signal) core.PublishResult {
	if sig.Sender == "" {
		sig.Sender = domain.SystemSender
	}
	return o.deliver(key, sig, o.Rooms.BroadcastTargets(key, ""))
}

// BroadcastSession delivers to the main room of a session and all of its breakout rooms.
func (o *Orchestrator) BroadcastSession(key domain.SessionKey, sig domain.Signal) core.PublishResult {
	main := key.MainRoom()
	total := core.PublishResult{}
	for _, info := range o.Rooms.List() {
		if info.Key != main && info.Parent != main {
			continue
		}
		res := o.Broadcast(info.Key, sig)
		total.SendTo += res.SendTo
		total.Dropped = append(total.Dropped, res.Dropped...)
	}
	return total
}

// SendToSession delivers a system signal to one user wherever they are
// connected within a session: the main room or any breakout room.
func (o *Orchestrator) SendToSession(key domain.SessionKey, uid domain.UserID, sig domain.Signal) core.PublishResult {
	if sig.Sender == "" {
		sig.Sender = domain.SystemSender
	}
	total := core.PublishResult{}
	for _, ms := range o.Registry.ConnectionsOf(uid) {
		if ms.Scope().Session().SessionKey != key {
			continue
		}
		room := ms.Scope().RoomKey()
		// a displaced connection stays bound until its own teardown runs
		if cur, ok := o.Rooms.Target(room, uid); !ok || cur.ID() != ms.ID() {
			continue
		}
		res := o.deliver(room, sig, []core.MemberSession{ms})
		total.SendTo += res.SendTo
		total.Dropped = append(total.Dropped, res.Dropped...)
	}
	if total.SendTo == 0 && len(total.Dropped) == 0 {
		log.Debug().Str("module", "orch").Str("session", key.String()).Str("uid", string(uid)).Str("action", string(sig.Action)).Msg("user not connected, dropped")
	}
	return total
}

// Reply sends a system signal straight back to one connection.
func (o *Orchestrator) Reply(to core.MemberSession, sig domain.Signal) core.PublishResult {
	if sig.Sender == "" {
		sig.Sender = domain.SystemSender
	}
	return o.deliver(to.Scope().RoomKey(), sig, []core.MemberSession{to})
}

// deliver enqueues one encoded frame per recipient without blocking; a full
// queue only affects that recipient.
func (o *Orchestrator) deliver(key domain.RoomKey, sig domain.Signal, recipients []core.MemberSession) core.PublishResult {
	res := core.PublishResult{}
	if len(recipients) == 0 {
		return res
	}
	frame, err := sig.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("room", string(key)).Str("action", string(sig.Action)).Msg("encode signal")
		return res
	}
	for _, ms := range recipients {
		sc := ms.Signal()
		if sc == nil {
			continue
		}
		if err := sc.TrySend(frame); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("room", string(key)).Str("cid", string(ms.ID())).Str("action", string(sig.Action)).Msg("delivery failed")
			res.Dropped = append(res.Dropped, ms)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "orch").Str("room", string(key)).Str("action", string(sig.Action)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("signal delivered")
	o.onBackPressure(key, res.Dropped)
	return res
}

func (o *Orchestrator) onBackPressure(key domain.RoomKey, dropped []core.MemberSession) {
	if o.Policy == nil || len(dropped) == 0 {
		return
	}
	room, _ := o.Rooms.Get(key)
	for _, slow := range dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			go o.Kick(slow)
		case app.MarkSlow, app.DropFrame, app.NoAction:
		}
	}
}
