package signal

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Classroom/internal/domain"
)

// Target is what the connection URL asks for.
type Target struct {
	Kind       domain.SessionKind
	SessionID  string
	BreakoutID string
}

func (t Target) String() string {
	if t.BreakoutID != "" {
		return fmt.Sprintf("%s:%s/breakout:%s", t.Kind, t.SessionID, t.BreakoutID)
	}
	return fmt.Sprintf("%s:%s", t.Kind, t.SessionID)
}

// authorize resolves the scope of a connection and the caller's role in
// it. Role is recomputed on every connect.
func (ctl *SignalWSController) authorize(ctx context.Context, caller *domain.User, t Target) (domain.Scope, domain.Role, error) {
	if caller == nil {
		return nil, "", domain.ErrUnauthenticated
	}
	if !domain.ValidSegment(t.SessionID) || (t.BreakoutID != "" && !domain.ValidSegment(t.BreakoutID)) {
		return nil, "", errors.Wrapf(domain.ErrInvalid, "room %s", t)
	}

	var scope domain.Scope
	switch t.Kind {
	case domain.KindRegular:
		s, err := ctl.regularScope(ctx, t)
		if err != nil {
			return nil, "", err
		}
		scope = s
	case domain.KindInstant:
		s, err := ctl.instantScope(ctx, caller, t)
		if err != nil {
			return nil, "", err
		}
		scope = s
	default:
		return nil, "", errors.Wrapf(domain.ErrInvalid, "session kind %q", t.Kind)
	}

	admin, err := ctl.Directory.IsAdministrator(ctx, scope.Session().SessionKey, caller.ID)
	if err != nil {
		return nil, "", err
	}
	if admin {
		return scope, domain.RoleHost, nil
	}
	return scope, domain.RoleParticipant, nil
}

func (ctl *SignalWSController) regularScope(ctx context.Context, t Target) (domain.Scope, error) {
	sess, err := ctl.Directory.Resolve(ctx, domain.SessionKey{Kind: domain.KindRegular, ID: t.SessionID})
	if err != nil {
		return nil, err
	}
	if t.BreakoutID == "" {
		return domain.RegularScope{Sess: sess}, nil
	}
	b, err := ctl.Directory.ResolveBreakout(ctx, t.SessionID, t.BreakoutID)
	if err != nil {
		return nil, err
	}
	if !b.Active {
		return nil, errors.Wrapf(domain.ErrForbidden, "breakout %s closed", t)
	}
	return domain.RegularScope{Sess: sess, Breakout: b}, nil
}

// instantScope resolves an instant session, creating it with the caller as
// owner when allowed. Losing a creation race falls back to the winner's session.
func (ctl *SignalWSController) instantScope(ctx context.Context, caller *domain.User, t Target) (domain.Scope, error) {
	if t.BreakoutID != "" {
		return nil, errors.Wrapf(domain.ErrNotFound, "room %s", t)
	}
	key := domain.SessionKey{Kind: domain.KindInstant, ID: t.SessionID}
	sess, err := ctl.Directory.Resolve(ctx, key)
	if err == nil {
		return domain.InstantScope{Sess: sess}, nil
	}
	if !errors.Is(err, domain.ErrNotFound) || !ctl.Opts.InstantAutoCreate {
		return nil, err
	}
	sess, err = ctl.Directory.CreateInstant(ctx, domain.Session{
		SessionKey: key,
		Title:      t.SessionID,
		CreatedBy:  caller.ID,
		CreatedAt:  time.Now().UTC(),
	})
	if errors.Is(err, domain.ErrConflict) {
		sess, err = ctl.Directory.Resolve(ctx, key)
	}
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "signal").Str("session", key.String()).Str("uid", string(caller.ID)).Msg("instant session created on connect")
	return domain.InstantScope{Sess: sess}, nil
}
