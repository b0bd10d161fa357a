package service

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/GolferGeek/sync-focus/internal/db"
	"github.com/GolferGeek/sync-focus/internal/repository"
)

func newAuthService(t *testing.T, clock clockwork.Clock) *AuthService {
	t.Helper()
	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, db.RunMigrations(context.Background(), database))

	return NewAuthService(repository.NewAccountRepository(database), "auth-secret", time.Hour, clock, zerolog.Nop())
}

func TestAuthService_UsesInjectedClock(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(start)
	svc := newAuthService(t, clock)

	result, apiErr := svc.Register(context.Background(), "gus@example.com", "secret1", "Gus")
	require.Nil(t, apiErr)
	require.True(t, result.User.CreatedAt.Equal(start))

	subject, apiErr := svc.ParseToken(result.Token)
	require.Nil(t, apiErr)
	require.Equal(t, result.User.ID, subject)

	clock.Advance(59 * time.Minute)
	_, apiErr = svc.ParseToken(result.Token)
	require.Nil(t, apiErr)

	clock.Advance(2 * time.Minute)
	_, apiErr = svc.ParseToken(result.Token)
	require.NotNil(t, apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)

	login, apiErr := svc.Login(context.Background(), "gus@example.com", "secret1")
	require.Nil(t, apiErr)
	_, apiErr = svc.ParseToken(login.Token)
	require.Nil(t, apiErr)
}
