package signal

import (
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Classroom/internal/core"
	"github.com/dkeye/Classroom/internal/domain"
)

type welcome struct {
	Room       domain.RoomKey     `json:"room"`
	Session    domain.SessionKey  `json:"session"`
	Breakout   string             `json:"breakout,omitempty"`
	User       domain.User        `json:"user"`
	Role       domain.Role        `json:"role"`
	Members    []domain.Member    `json:"members"`
	ICEServers []webrtc.ICEServer `json:"ice_servers"`
}

// welcome unicasts room-joined: who the caller is, who else is connected
// and which ICE servers to use.
func (ctl *SignalWSController) welcome(sess core.MemberSession) {
	meta := sess.Meta()
	scope := sess.Scope()

	w := welcome{
		Room:       scope.RoomKey(),
		Session:    scope.Session().SessionKey,
		User:       meta.User,
		Role:       meta.Role,
		Members:    []domain.Member{},
		ICEServers: ctl.iceServers(),
	}
	if rs, ok := scope.(domain.RegularScope); ok && rs.Breakout != nil {
		w.Breakout = rs.Breakout.Slug
	}
	for _, m := range ctl.Orch.Rooms.Members(w.Room) {
		if m.Connected() && m.User.ID != meta.User.ID {
			w.Members = append(w.Members, m)
		}
	}

	sig, err := domain.NewSystemSignal(domain.ActionRoomJoined, w)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("build welcome")
		return
	}
	ctl.Orch.Reply(sess, sig)
}
