// Package store picks the persistence backend named in config.
package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Classroom/internal/config"
	"github.com/dkeye/Classroom/internal/core"
	"github.com/dkeye/Classroom/internal/domain"
	"github.com/dkeye/Classroom/internal/store/memory"
	"github.com/dkeye/Classroom/internal/store/sqlstore"
)

func Open(ctx context.Context, cfg config.StoreConfig) (core.Store, error) {
	var (
		s   core.Store
		err error
	)
	switch cfg.Driver {
	case "memory", "":
		s = memory.New()
	case "sqlite3", "postgres":
		s, err = sqlstore.Open(ctx, cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, err
		}
	default:
		return nil, errors.Errorf("unknown store driver %q", cfg.Driver)
	}
	if cfg.Fixture != "" {
		f, err := config.LoadFixture(cfg.Fixture)
		if err != nil {
			s.Close()
			return nil, err
		}
		if err := Seed(ctx, s, f); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// Seed upserts every user and session of the fixture.
func Seed(ctx context.Context, s core.Seeder, f *config.Fixture) error {
	for _, fu := range f.Users {
		u, err := domain.NewUser(domain.UserID(fu.ID), fu.Username)
		if err != nil {
			return errors.Wrapf(err, "fixture user %q", fu.ID)
		}
		if err := s.UpsertUser(ctx, *u); err != nil {
			return err
		}
	}
	now := time.Now().UTC()
	for _, fs := range f.Sessions {
		kind, err := domain.ParseSessionKind(fs.Kind)
		if err != nil {
			return errors.Wrapf(err, "fixture session %q", fs.ID)
		}
		if !domain.ValidSegment(fs.ID) {
			return errors.Wrapf(domain.ErrInvalid, "fixture session id %q", fs.ID)
		}
		sess := domain.Session{
			SessionKey: domain.SessionKey{Kind: kind, ID: fs.ID},
			Title:      fs.Title,
			CreatedAt:  now,
		}
		admins := make([]domain.UserID, 0, len(fs.Admins))
		for _, a := range fs.Admins {
			admins = append(admins, domain.UserID(a))
		}
		if kind == domain.KindInstant && len(admins) > 0 {
			sess.CreatedBy = admins[0]
		}
		if err := s.UpsertSession(ctx, sess, admins); err != nil {
			return err
		}
	}
	log.Info().Str("module", "store").Int("users", len(f.Users)).Int("sessions", len(f.Sessions)).Msg("fixture seeded")
	return nil
}
