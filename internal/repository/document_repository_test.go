package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/GolferGeek/sync-focus/internal/db"
	"github.com/GolferGeek/sync-focus/internal/docstore"
	"github.com/GolferGeek/sync-focus/internal/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, db.RunMigrations(context.Background(), database))
	return database
}

func TestDocumentRepository_InsertUpdateGet(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(openTestDB(t))
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	tx, err := repo.BeginTx(ctx)
	require.NoError(t, err)
	doc := &docstore.Document{
		Collection: "config",
		ID:         "timer",
		Revision:   1,
		Data:       []byte(`{"status":"IDLE"}`),
		UpdatedAt:  now,
	}
	require.NoError(t, repo.InsertTx(ctx, tx, doc))
	require.NoError(t, tx.Commit())

	got, err := repo.Get(ctx, "config", "timer")
	require.NoError(t, err)
	require.Equal(t, int64(1), got.Revision)
	require.JSONEq(t, `{"status":"IDLE"}`, string(got.Data))
	require.True(t, now.Equal(got.UpdatedAt))

	tx, err = repo.BeginTx(ctx)
	require.NoError(t, err)
	doc.Revision = 2
	doc.Data = []byte(`{"status":"WORK"}`)
	require.NoError(t, repo.UpdateTx(ctx, tx, doc, 1))
	require.NoError(t, tx.Commit())

	tx, err = repo.BeginTx(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	doc.Revision = 3
	require.ErrorIs(t, repo.UpdateTx(ctx, tx, doc, 1), ErrRevisionMismatch)

	current, err := repo.GetTx(ctx, tx, "config", "timer")
	require.NoError(t, err)
	require.Equal(t, int64(2), current.Revision)
}

func TestDocumentRepository_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(openTestDB(t))

	tx, err := repo.BeginTx(ctx)
	require.NoError(t, err)
	for _, id := range []string{"b", "a", "c"} {
		require.NoError(t, repo.InsertTx(ctx, tx, &docstore.Document{
			Collection: "tasks",
			ID:         id,
			Revision:   1,
			Data:       []byte(`{}`),
			UpdatedAt:  time.Now(),
		}))
	}
	require.NoError(t, tx.Commit())

	docs, err := repo.List(ctx, "tasks")
	require.NoError(t, err)
	require.Len(t, docs, 3)
	require.Equal(t, "a", docs[0].ID)

	removed, err := repo.Delete(ctx, "tasks", "a")
	require.NoError(t, err)
	require.True(t, removed)

	removed, err = repo.Delete(ctx, "tasks", "a")
	require.NoError(t, err)
	require.False(t, removed)

	_, err = repo.Get(ctx, "tasks", "a")
	require.ErrorIs(t, err, ErrNotFound)

	empty, err := repo.List(ctx, "projects")
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestAccountRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository(openTestDB(t))
	now := time.Now().UTC()

	account := &model.Account{
		ID:           "acc-1",
		Email:        "ada@example.com",
		DisplayName:  "Ada",
		PasswordHash: "hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, repo.Create(ctx, account))
	require.Error(t, repo.Create(ctx, account))

	byEmail, err := repo.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	require.Equal(t, "Ada", byEmail.DisplayName)
	require.Equal(t, "hash", byEmail.PasswordHash)

	byID, err := repo.GetByID(ctx, "acc-1")
	require.NoError(t, err)
	require.Equal(t, "ada@example.com", byID.Email)

	_, err = repo.GetByID(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}
