package orch

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Classroom/internal/core"
	"github.com/dkeye/Classroom/internal/domain"
)

const storeTimeout = 5 * time.Second

// Join registers a Joined connection in its room. A previous connection of
// the same user in that room is closed. Teardown of sess triggers Leave.
func (o *Orchestrator) Join(ctx context.Context, sess *core.ConnSession, cancel context.CancelFunc) error {
	if sess.State() != core.StateJoined {
		return errors.Wrapf(core.ErrInvalidTransition, "join room in state %s", sess.State())
	}
	meta := sess.Meta()
	key := sess.Scope().RoomKey()

	replaced, err := o.Rooms.Join(key, sess)
	if err != nil {
		return errors.Wrap(err, "room join")
	}
	o.Registry.Bind(sess, cancel)
	sess.OnClose(func() { o.Leave(ctx, sess) })

	if replaced != nil {
		log.Info().Str("module", "orch").Str("room", string(key)).Str("uid", string(meta.User.ID)).Str("cid", string(replaced.ID())).Msg("replacing previous connection")
		o.Kick(replaced)
	}

	if o.Attendance != nil {
		rec := domain.AttendanceRecord{
			ID:       ulid.Make().String(),
			Session:  sess.Scope().Session().SessionKey,
			Room:     key,
			UserID:   meta.User.ID,
			Username: meta.User.Username,
			Role:     meta.Role,
			JoinedAt: meta.JoinedAt,
		}
		sctx, done := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
		defer done()
		if err := o.Attendance.RecordJoin(sctx, rec); err != nil {
			log.Error().Err(err).Str("module", "orch").Str("room", string(key)).Str("uid", string(meta.User.ID)).Msg("record join")
		}
	}
	log.Info().Str("module", "orch").Str("room", string(key)).Str("uid", string(meta.User.ID)).Str("cid", string(sess.ID())).Str("role", string(meta.Role)).Msg("joined")
	return nil
}

// Leave runs once per connection, after its transport is gone.
func (o *Orchestrator) Leave(ctx context.Context, sess core.MemberSession) {
	o.Registry.Unbind(sess.ID())
	meta := sess.Meta()
	key := sess.Scope().RoomKey()
	at := o.now()

	if !o.Rooms.Leave(key, meta.User.ID, sess.ID(), at) {
		log.Debug().Str("module", "orch").Str("room", string(key)).Str("cid", string(sess.ID())).Msg("leave of displaced connection")
		return
	}
	if o.Attendance != nil {
		sctx, done := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
		defer done()
		if err := o.Attendance.RecordLeave(sctx, key, meta.User.ID, meta.JoinedAt, at); err != nil {
			log.Error().Err(err).Str("module", "orch").Str("room", string(key)).Str("uid", string(meta.User.ID)).Msg("record leave")
		}
	}
	log.Info().Str("module", "orch").Str("room", string(key)).Str("uid", string(meta.User.ID)).Str("cid", string(sess.ID())).Msg("left")

	sig, err := domain.NewSystemSignal(domain.ActionPeerDisconnected, meta.User)
	if err != nil {
		return
	}
	sig.Sender = string(meta.User.ID)
	o.deliver(key, sig, o.Rooms.BroadcastTargets(key, sess.ID()))
}

// Kick closes a connection; its own teardown performs the leave.
func (o *Orchestrator) Kick(sess core.MemberSession) {
	o.Registry.Cancel(sess.ID())
	sess.Close()
}
