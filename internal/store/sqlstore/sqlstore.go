// Package sqlstore persists sessions, breakouts, recordings and attendance
// through sqlx. Queries are written with '?' and rebound per driver, so the
// same code serves sqlite3 and postgres.
package sqlstore

import (
	"context"
	"database/sql"
	_ "embed"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Classroom/internal/core"
	"github.com/dkeye/Classroom/internal/domain"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sqlx.DB
}

var _ core.Store = (*Store)(nil)

// Open connects and applies the schema. sqlite3 is pinned to one
// connection so writers serialize instead of failing with SQLITE_BUSY.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", driver)
	}
	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "ping %s", driver)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "apply schema")
	}
	log.Info().Str("module", "store.sql").Str("driver", driver).Msg("schema ready")
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// classify maps driver errors onto the domain taxonomy.
func classify(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrapf(domain.ErrNotFound, format, args...)
	}
	var lite sqlite3.Error
	if errors.As(err, &lite) {
		switch lite.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return errors.Wrapf(domain.ErrConflict, format, args...)
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return errors.Wrapf(domain.ErrConflict, format, args...)
	}
	return errors.Wrapf(err, format, args...)
}

func (s *Store) q(query string) string { return s.db.Rebind(query) }

// inTx runs fn in a transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "commit")
}

// --- Seeder ---

func (s *Store) UpsertUser(ctx context.Context, u domain.User) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO users (id, username) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET username = excluded.username`),
		string(u.ID), u.Username)
	return classify(err, "upsert user %s", u.ID)
}

func (s *Store) UpsertSession(ctx context.Context, sess domain.Session, admins []domain.UserID) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, s.q(`
			INSERT INTO sessions (session_kind, session_id, title, starts_at, ends_at, created_by, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (session_kind, session_id) DO UPDATE SET
				title = excluded.title,
				starts_at = excluded.starts_at,
				ends_at = excluded.ends_at,
				created_by = excluded.created_by`),
			string(sess.Kind), sess.ID, sess.Title, utcPtr(sess.StartsAt), utcPtr(sess.EndsAt),
			string(sess.CreatedBy), sess.CreatedAt.UTC())
		if err != nil {
			return classify(err, "upsert session %s", sess.SessionKey)
		}
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM session_admins WHERE session_kind = ? AND session_id = ?`),
			string(sess.Kind), sess.ID); err != nil {
			return classify(err, "reset admins of %s", sess.SessionKey)
		}
		for _, a := range admins {
			if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO session_admins (session_kind, session_id, user_id) VALUES (?, ?, ?)`),
				string(sess.Kind), sess.ID, string(a)); err != nil {
				return classify(err, "add admin %s to %s", a, sess.SessionKey)
			}
		}
		return nil
	})
}

// --- SessionDirectory ---

const sessionCols = `session_kind, session_id, title, starts_at, ends_at, created_by, created_at`

func (s *Store) Resolve(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, s.q(`SELECT `+sessionCols+` FROM sessions WHERE session_kind = ? AND session_id = ?`),
		string(key.Kind), key.ID)
	if err != nil {
		return nil, classify(err, "session %s", key)
	}
	return row.toDomain(), nil
}

const breakoutCols = `id, session_id, name, slug, active, created_at, closed_at`

func getBreakout(ctx context.Context, q sqlx.QueryerContext, rebind func(string) string, sessionID, slug string) (*domain.Breakout, error) {
	var row breakoutRow
	err := sqlx.GetContext(ctx, q, &row, rebind(`SELECT `+breakoutCols+` FROM breakouts WHERE session_id = ? AND slug = ?`),
		sessionID, slug)
	if err != nil {
		return nil, classify(err, "breakout %s/%s", sessionID, slug)
	}
	return row.toDomain(), nil
}

func (s *Store) ResolveBreakout(ctx context.Context, sessionID, slug string) (*domain.Breakout, error) {
	return getBreakout(ctx, s.db, s.q, sessionID, slug)
}

func (s *Store) IsAdministrator(ctx context.Context, key domain.SessionKey, uid domain.UserID) (bool, error) {
	sess, err := s.Resolve(ctx, key)
	if err != nil {
		return false, err
	}
	if key.Kind == domain.KindInstant {
		return sess.CreatedBy == uid, nil
	}
	var n int
	err = s.db.GetContext(ctx, &n, s.q(`SELECT COUNT(*) FROM session_admins WHERE session_kind = ? AND session_id = ? AND user_id = ?`),
		string(key.Kind), key.ID, string(uid))
	if err != nil {
		return false, classify(err, "admins of %s", key)
	}
	return n > 0, nil
}

func (s *Store) ResolveUser(ctx context.Context, uid domain.UserID) (*domain.User, error) {
	var u struct {
		ID       string `db:"id"`
		Username string `db:"username"`
	}
	if err := s.db.GetContext(ctx, &u, s.q(`SELECT id, username FROM users WHERE id = ?`), string(uid)); err != nil {
		return nil, classify(err, "user %s", uid)
	}
	return &domain.User{ID: domain.UserID(u.ID), Username: u.Username}, nil
}

func (s *Store) CreateInstant(ctx context.Context, sess domain.Session) (*domain.Session, error) {
	sess.Kind = domain.KindInstant
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO sessions (`+sessionCols+`) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		string(sess.Kind), sess.ID, sess.Title, utcPtr(sess.StartsAt), utcPtr(sess.EndsAt),
		string(sess.CreatedBy), sess.CreatedAt.UTC())
	if err != nil {
		return nil, classify(err, "create instant session %s", sess.ID)
	}
	return &sess, nil
}

func (s *Store) CreateBreakout(ctx context.Context, b domain.Breakout) (*domain.Breakout, error) {
	if _, err := s.Resolve(ctx, domain.SessionKey{Kind: domain.KindRegular, ID: b.SessionID}); err != nil {
		return nil, err
	}
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO breakouts (`+breakoutCols+`) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		b.ID, b.SessionID, b.Name, b.Slug, b.Active, b.CreatedAt.UTC(), utcPtr(b.ClosedAt))
	if err != nil {
		return nil, classify(err, "create breakout %q in %s", b.Name, b.SessionID)
	}
	return &b, nil
}

func (s *Store) CloseBreakout(ctx context.Context, sessionID, slug string, at time.Time) (*domain.Breakout, error) {
	var out *domain.Breakout
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		cur, err := getBreakout(ctx, tx, s.q, sessionID, slug)
		if err != nil {
			return err
		}
		if !cur.Active {
			return errors.Wrapf(domain.ErrConflict, "breakout %s/%s already closed", sessionID, slug)
		}
		res, err := tx.ExecContext(ctx, s.q(`UPDATE breakouts SET active = ?, closed_at = ? WHERE id = ? AND active = ?`),
			false, at.UTC(), cur.ID, true)
		if err != nil {
			return classify(err, "close breakout %s/%s", sessionID, slug)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.Wrapf(domain.ErrConflict, "breakout %s/%s already closed", sessionID, slug)
		}
		closedAt := at.UTC()
		cur.Active = false
		cur.ClosedAt = &closedAt
		out = cur
		return nil
	})
	return out, err
}

func (s *Store) AssignParticipant(ctx context.Context, a domain.Assignment) (*domain.Assignment, error) {
	if _, err := s.ResolveUser(ctx, a.UserID); err != nil {
		return nil, err
	}
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		b, err := getBreakout(ctx, tx, s.q, a.SessionID, a.Breakout)
		if err != nil {
			return err
		}
		if !b.Active {
			return errors.Wrapf(domain.ErrConflict, "breakout %s/%s closed", a.SessionID, a.Breakout)
		}
		_, err = tx.ExecContext(ctx, s.q(`
			INSERT INTO assignments (session_id, breakout, user_id, assigned_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (session_id, user_id) DO UPDATE SET
				breakout = excluded.breakout,
				assigned_at = excluded.assigned_at`),
			a.SessionID, a.Breakout, string(a.UserID), a.AssignedAt.UTC())
		return classify(err, "assign %s to %s/%s", a.UserID, a.SessionID, a.Breakout)
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

const recordingCols = `id, session_kind, session_id, started_by, started_at, stopped_at, artifact_url`

// OpenRecording relies on the partial unique index over active recordings,
// so two concurrent starts cannot both succeed.
func (s *Store) OpenRecording(ctx context.Context, r domain.Recording) (*domain.Recording, error) {
	if _, err := s.Resolve(ctx, r.Session); err != nil {
		return nil, err
	}
	r.StoppedAt = nil
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO recordings (`+recordingCols+`) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		r.ID, string(r.Session.Kind), r.Session.ID, string(r.StartedBy), r.StartedAt.UTC(), nil, r.ArtifactURL)
	if err != nil {
		return nil, classify(err, "open recording in %s", r.Session)
	}
	return &r, nil
}

func (s *Store) CloseRecording(ctx context.Context, id, artifactURL string, at time.Time) (*domain.Recording, error) {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE recordings SET stopped_at = ?, artifact_url = ? WHERE id = ? AND stopped_at IS NULL`),
		at.UTC(), artifactURL, id)
	if err != nil {
		return nil, classify(err, "close recording %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "rows affected")
	}
	rec, err := s.Recording(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, errors.Wrapf(domain.ErrConflict, "recording %s already stopped", id)
	}
	return rec, nil
}

func (s *Store) Recording(ctx context.Context, id string) (*domain.Recording, error) {
	var row recordingRow
	if err := s.db.GetContext(ctx, &row, s.q(`SELECT `+recordingCols+` FROM recordings WHERE id = ?`), id); err != nil {
		return nil, classify(err, "recording %s", id)
	}
	return row.toDomain(), nil
}

// --- AttendanceStore ---

const attendanceCols = `id, session_kind, session_id, room_key, user_id, username, role, joined_at, left_at`

// stamp is the stored form of a join time; postgres keeps microseconds.
func stamp(t time.Time) time.Time { return t.UTC().Truncate(time.Microsecond) }

func (s *Store) RecordJoin(ctx context.Context, rec domain.AttendanceRecord) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO attendance (`+attendanceCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT (room_key, user_id) DO UPDATE SET
			username = excluded.username,
			role = excluded.role,
			joined_at = excluded.joined_at,
			left_at = NULL`),
		rec.ID, string(rec.Session.Kind), rec.Session.ID, string(rec.Room), string(rec.UserID),
		rec.Username, string(rec.Role), stamp(rec.JoinedAt))
	return classify(err, "record join %s/%s", rec.Room, rec.UserID)
}

func (s *Store) RecordLeave(ctx context.Context, room domain.RoomKey, uid domain.UserID, joinedAt, at time.Time) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE attendance SET left_at = ? WHERE room_key = ? AND user_id = ? AND joined_at = ? AND left_at IS NULL`),
		at.UTC(), string(room), string(uid), stamp(joinedAt))
	if err != nil {
		return classify(err, "record leave %s/%s", room, uid)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var exists int
	err = s.db.GetContext(ctx, &exists, s.q(`SELECT COUNT(*) FROM attendance WHERE room_key = ? AND user_id = ?`),
		string(room), string(uid))
	if err != nil {
		return classify(err, "attendance %s/%s", room, uid)
	}
	if exists == 0 {
		return errors.Wrapf(domain.ErrNotFound, "attendance %s/%s", room, uid)
	}
	return nil
}

func (s *Store) ListAttendance(ctx context.Context, key domain.SessionKey) ([]domain.AttendanceRecord, error) {
	var rows []attendanceRow
	err := s.db.SelectContext(ctx, &rows, s.q(`SELECT `+attendanceCols+` FROM attendance WHERE session_kind = ? AND session_id = ? ORDER BY joined_at, id`),
		string(key.Kind), key.ID)
	if err != nil {
		return nil, classify(err, "attendance of %s", key)
	}
	out := make([]domain.AttendanceRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}
