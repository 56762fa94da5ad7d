package sqlstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Classroom/internal/core"
	"github.com/dkeye/Classroom/internal/domain"
	"github.com/dkeye/Classroom/internal/store/sqlstore"
	"github.com/dkeye/Classroom/internal/store/storetest"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	os.Exit(m.Run())
}

func openSQLite(t *testing.T) *sqlstore.Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "classroom.db")
	s, err := sqlstore.Open(context.Background(), "sqlite3", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) core.Store { return openSQLite(t) })
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("CLASSROOM_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CLASSROOM_TEST_POSTGRES_DSN not set")
	}
	storetest.Run(t, func(t *testing.T) core.Store {
		s, err := sqlstore.Open(context.Background(), "postgres", dsn)
		require.NoError(t, err)
		db := sqlx.MustConnect("postgres", dsn)
		defer db.Close()
		db.MustExec(`TRUNCATE users, sessions, session_admins, breakouts, assignments, recordings, attendance`)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "classroom.db")

	s, err := sqlstore.Open(ctx, "sqlite3", dsn)
	require.NoError(t, err)
	key := storetest.Seed(t, s)
	require.NoError(t, s.Close())

	s, err = sqlstore.Open(ctx, "sqlite3", dsn)
	require.NoError(t, err)
	defer s.Close()

	sess, err := s.Resolve(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "Algebra", sess.Title)
	assert.Equal(t, domain.KindRegular, sess.Kind)
}
