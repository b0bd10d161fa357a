package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/GolferGeek/sync-focus/internal/config"
	"github.com/GolferGeek/sync-focus/internal/db"
	"github.com/GolferGeek/sync-focus/internal/docstore"
	"github.com/GolferGeek/sync-focus/internal/model"
	"github.com/GolferGeek/sync-focus/internal/server"
	"github.com/GolferGeek/sync-focus/internal/timer"
)

func startServer(t *testing.T) *httptest.Server {
	t.Helper()
	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "remote.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, db.RunMigrations(context.Background(), database))

	app, err := server.New(config.Config{
		JWTSecret: "remote-secret",
		TokenTTL:  time.Hour,
	}, database, clockwork.NewRealClock(), zerolog.Nop())
	require.NoError(t, err)

	srv := httptest.NewServer(app.Engine)
	t.Cleanup(func() {
		_ = app.Close()
		srv.Close()
	})
	return srv
}

func register(t *testing.T, baseURL, email string) string {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"email": email, "password": "123456"})
	require.NoError(t, err)
	resp, err := http.Post(baseURL+"/api/auth/register", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Token
}

func newClient(t *testing.T, srv *httptest.Server, email string) *Client {
	t.Helper()
	c, err := New(srv.URL, WithToken(register(t, srv.URL, email)), WithRetry(2, time.Millisecond, 5*time.Millisecond))
	require.NoError(t, err)
	return c
}

func receive(t *testing.T, sub *docstore.Subscription) docstore.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.C():
		require.True(t, ok, "subscription closed")
		return snap
	case <-time.After(3 * time.Second):
		t.Fatal("no snapshot delivered")
	}
	return docstore.Snapshot{}
}

func TestClient_DocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, startServer(t), "life@example.com")

	_, err := c.Get(ctx, "tasks", "t1")
	require.ErrorIs(t, err, docstore.ErrNotFound)

	_, err = c.Update(ctx, "tasks", "t1", map[string]any{"completed": true})
	require.ErrorIs(t, err, docstore.ErrNotFound)

	doc, err := c.Set(ctx, "tasks", "t1", model.Task{Title: "Plan sprint", CreatedAt: 10})
	require.NoError(t, err)
	require.Equal(t, int64(1), doc.Revision)

	doc, err = c.Update(ctx, "tasks", "t1", map[string]any{"completed": true})
	require.NoError(t, err)
	require.Equal(t, int64(2), doc.Revision)

	var task model.Task
	require.NoError(t, doc.Decode(&task))
	require.Equal(t, "Plan sprint", task.Title)
	require.True(t, task.Completed)

	added, err := c.Add(ctx, "tasks", model.Task{Title: "Review", CreatedAt: 20})
	require.NoError(t, err)
	require.NotEmpty(t, added.ID)

	docs, err := c.List(ctx, "tasks", docstore.Query{OrderBy: "createdAt", Descending: true})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, added.ID, docs[0].ID)

	require.NoError(t, c.Delete(ctx, "tasks", "t1"))
	require.NoError(t, c.Delete(ctx, "tasks", "t1"))
	_, err = c.Get(ctx, "tasks", "t1")
	require.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestClient_ConditionalWrites(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, startServer(t), "cas@example.com")

	_, err := c.Set(ctx, "config", "timer", model.DefaultTimer(model.WorkTime), docstore.IfRevision(0))
	require.NoError(t, err)

	_, err = c.Set(ctx, "config", "timer", model.DefaultTimer(model.WorkTime), docstore.IfRevision(0))
	require.ErrorIs(t, err, docstore.ErrConflict)

	_, err = c.Set(ctx, "config", "timer", map[string]any{"status": "WORK"}, docstore.Merge(), docstore.IfRevision(1))
	require.NoError(t, err)

	_, err = c.Set(ctx, "no/pe", "timer", map[string]any{})
	require.ErrorIs(t, err, docstore.ErrInvalid)
}

func TestClient_WatchDocument(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := startServer(t)
	c := newClient(t, srv, "watch@example.com")

	sub, err := c.WatchDocument(ctx, "config", "timer")
	require.NoError(t, err)

	initial := receive(t, sub)
	require.False(t, initial.Exists)

	_, err = c.Set(ctx, "config", "timer", model.DefaultTimer(model.WorkTime))
	require.NoError(t, err)
	snap := receive(t, sub)
	require.True(t, snap.Exists)
	require.Equal(t, int64(1), snap.Document.Revision)

	cancel()
	select {
	case <-sub.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("watch not closed after cancel")
	}
}

func TestClient_WatchRequiresToken(t *testing.T) {
	srv := startServer(t)
	c, err := New(srv.URL)
	require.NoError(t, err)

	_, err = c.WatchCollection(context.Background(), "tasks", docstore.Query{})
	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, http.StatusUnauthorized, svcErr.Status)
}

func TestClient_ControllersShareRemoteTimer(t *testing.T) {
	ctx := context.Background()
	srv := startServer(t)
	clock := clockwork.NewFakeClock()

	first := timer.NewController(newClient(t, srv, "one@example.com"), timer.WithClock(clock))
	second := timer.NewController(newClient(t, srv, "two@example.com"), timer.WithClock(clock))

	started, err := first.Start(ctx, 60, model.StatusWork)
	require.NoError(t, err)
	clock.Advance(time.Minute)

	_, advanced, err := first.Complete(ctx, started)
	require.NoError(t, err)
	require.True(t, advanced)

	_, advanced, err = second.Complete(ctx, started)
	require.NoError(t, err)
	require.False(t, advanced)

	cur, err := second.Current(ctx)
	require.NoError(t, err)
	require.Equal(t, model.StatusBreak, cur.Timer.Status)
	require.Equal(t, started.Revision+1, cur.Revision)
}

func TestClient_RetriesIdempotentRequests(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if r.Method == http.MethodPost || n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"document":{"collection":"tasks","id":"t1","revision":4,"data":{"title":"x"}}}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithRetry(3, time.Millisecond, 2*time.Millisecond))
	require.NoError(t, err)

	doc, err := c.Get(context.Background(), "tasks", "t1")
	require.NoError(t, err)
	require.Equal(t, int64(4), doc.Revision)
	require.Equal(t, int32(3), calls.Load())

	calls.Store(0)
	_, err = c.Add(context.Background(), "tasks", map[string]any{"title": "x"})
	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, http.StatusServiceUnavailable, svcErr.Status)
	require.Equal(t, int32(1), calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"code":"revision_conflict","message":"stale"}}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithRetry(3, time.Millisecond, 2*time.Millisecond))
	require.NoError(t, err)

	_, err = c.Set(context.Background(), "config", "timer", map[string]any{"status": "IDLE"}, docstore.IfRevision(2))
	require.ErrorIs(t, err, docstore.ErrConflict)
	require.Equal(t, int32(1), calls.Load())
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := New("ftp://example.com")
	require.Error(t, err)
}
