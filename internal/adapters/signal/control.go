package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Classroom/internal/core"
	"github.com/dkeye/Classroom/internal/domain"
)

const (
	errBadPayload  = "bad_payload"
	errRateLimited = "rate_limited"
)

// replyError tells only the offending connection what went wrong.
func (ctl *SignalWSController) replyError(sess core.MemberSession, code string) {
	sig, err := domain.NewSystemSignal(domain.ActionError, map[string]string{"error": code})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("build error reply")
		return
	}
	ctl.Orch.Reply(sess, sig)
}
