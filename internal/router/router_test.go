package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/GolferGeek/sync-focus/internal/config"
	"github.com/GolferGeek/sync-focus/internal/db"
	"github.com/GolferGeek/sync-focus/internal/docstore"
	"github.com/GolferGeek/sync-focus/internal/server"
)

type authResponse struct {
	Token string `json:"token"`
	User  struct {
		ID          string `json:"id"`
		Email       string `json:"email"`
		DisplayName string `json:"displayName"`
	} `json:"user"`
}

type documentEnvelope struct {
	Document docstore.Document `json:"document"`
}

type listEnvelope struct {
	Documents []docstore.Document `json:"documents"`
}

type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details struct {
			Revision int64              `json:"revision"`
			Document *docstore.Document `json:"document"`
			Origin   string             `json:"origin"`
		} `json:"details"`
	} `json:"error"`
}

func TestDocumentRevisionConflict(t *testing.T) {
	engine := setupTestEngine(t)
	user := registerUser(t, engine, "ada@example.com", "123456")

	idle := map[string]interface{}{
		"status": "IDLE", "startTime": 0, "endTime": 0, "duration": 1500, "remainingTimeStored": 0,
	}

	// Create-if-absent.
	status, raw := requestJSON(t, engine, http.MethodPut, "/api/docs/config/timer", user.Token, map[string]interface{}{
		"data": idle, "ifRevision": 0,
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200 on create, got %d: %s", status, raw)
	}
	created := decodeDocument(t, raw)
	if created.Revision != 1 {
		t.Fatalf("expected revision 1, got %d", created.Revision)
	}

	// A second creator loses and learns the current revision.
	status, raw = requestJSON(t, engine, http.MethodPut, "/api/docs/config/timer", user.Token, map[string]interface{}{
		"data": idle, "ifRevision": 0,
	})
	if status != http.StatusConflict {
		t.Fatalf("expected 409 for second create, got %d", status)
	}
	var conflict apiErrorEnvelope
	if err := json.Unmarshal(raw, &conflict); err != nil {
		t.Fatalf("unmarshal conflict response: %v", err)
	}
	if conflict.Error.Code != "revision_conflict" {
		t.Fatalf("expected revision_conflict, got %s", conflict.Error.Code)
	}
	if conflict.Error.Details.Revision != 1 || conflict.Error.Details.Document == nil {
		t.Fatalf("expected current document in conflict details, got %+v", conflict.Error.Details)
	}

	// Retry with the revision from the conflict details.
	status, raw = requestJSON(t, engine, http.MethodPut, "/api/docs/config/timer", user.Token, map[string]interface{}{
		"data":       map[string]interface{}{"status": "WORK", "duration": 1500},
		"merge":      true,
		"ifRevision": conflict.Error.Details.Revision,
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200 on conditional write, got %d: %s", status, raw)
	}
	updated := decodeDocument(t, raw)
	if updated.Revision != 2 {
		t.Fatalf("expected revision 2, got %d", updated.Revision)
	}

	status, raw = requestJSON(t, engine, http.MethodGet, "/api/docs/config/timer", user.Token, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 on get, got %d", status)
	}
	var timer struct {
		Status              string `json:"status"`
		RemainingTimeStored *int   `json:"remainingTimeStored"`
	}
	if err := decodeDocument(t, raw).Decode(&timer); err != nil {
		t.Fatalf("decode timer: %v", err)
	}
	if timer.Status != "WORK" || timer.RemainingTimeStored == nil {
		t.Fatalf("expected merged WORK timer, got %+v", timer)
	}
}

func TestDocumentPatchAndDelete(t *testing.T) {
	engine := setupTestEngine(t)
	user := registerUser(t, engine, "grace@example.com", "123456")

	status, _ := requestJSON(t, engine, http.MethodPatch, "/api/docs/tasks/missing", user.Token, map[string]interface{}{
		"data": map[string]interface{}{"completed": true},
	})
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 patching a missing document, got %d", status)
	}

	status, raw := requestJSON(t, engine, http.MethodPost, "/api/docs/tasks", user.Token, map[string]interface{}{
		"data": map[string]interface{}{"title": "Write tests", "completed": false, "createdAt": 1},
	})
	if status != http.StatusCreated {
		t.Fatalf("expected 201 on create, got %d: %s", status, raw)
	}
	task := decodeDocument(t, raw)
	if task.ID == "" {
		t.Fatal("expected generated id")
	}

	status, raw = requestJSON(t, engine, http.MethodPatch, "/api/docs/tasks/"+task.ID, user.Token, map[string]interface{}{
		"data": map[string]interface{}{"completed": true},
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200 on patch, got %d: %s", status, raw)
	}
	var body struct {
		Title     string `json:"title"`
		Completed bool   `json:"completed"`
	}
	if err := decodeDocument(t, raw).Decode(&body); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	if body.Title != "Write tests" || !body.Completed {
		t.Fatalf("unexpected patched task %+v", body)
	}

	status, _ = requestJSON(t, engine, http.MethodDelete, "/api/docs/tasks/"+task.ID, user.Token, nil)
	if status != http.StatusNoContent {
		t.Fatalf("expected 204 on delete, got %d", status)
	}
	status, _ = requestJSON(t, engine, http.MethodGet, "/api/docs/tasks/"+task.ID, user.Token, nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", status)
	}
}

func TestDocumentListOrdering(t *testing.T) {
	engine := setupTestEngine(t)
	user := registerUser(t, engine, "linus@example.com", "123456")

	for id, createdAt := range map[string]int{"a": 20, "b": 30, "c": 10} {
		status, raw := requestJSON(t, engine, http.MethodPut, "/api/docs/projects/"+id, user.Token, map[string]interface{}{
			"data": map[string]interface{}{"name": id, "createdAt": createdAt},
		})
		if status != http.StatusOK {
			t.Fatalf("put project %s: %d %s", id, status, raw)
		}
	}

	status, raw := requestJSON(t, engine, http.MethodGet, "/api/docs/projects?orderBy=createdAt&desc=true", user.Token, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 on list, got %d", status)
	}
	var list listEnvelope
	if err := json.Unmarshal(raw, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	var ids []string
	for _, doc := range list.Documents {
		ids = append(ids, doc.ID)
	}
	if strings.Join(ids, ",") != "b,a,c" {
		t.Fatalf("unexpected order %v", ids)
	}
}

func TestDocumentValidation(t *testing.T) {
	engine := setupTestEngine(t)
	user := registerUser(t, engine, "val@example.com", "123456")

	status, _ := requestJSON(t, engine, http.MethodGet, "/api/docs/tasks", "", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}

	status, raw := requestJSON(t, engine, http.MethodPut, "/api/docs/tasks/a.b", user.Token, map[string]interface{}{
		"data": map[string]interface{}{"title": "x"},
	})
	if status != http.StatusBadRequest || !strings.Contains(string(raw), "invalid_path") {
		t.Fatalf("expected invalid_path, got %d %s", status, raw)
	}

	status, raw = requestJSON(t, engine, http.MethodPut, "/api/docs/tasks/a", user.Token, map[string]interface{}{
		"data": []int{1, 2},
	})
	if status != http.StatusBadRequest || !strings.Contains(string(raw), "invalid_json") {
		t.Fatalf("expected invalid_json, got %d %s", status, raw)
	}
}

func TestAuthMe(t *testing.T) {
	engine := setupTestEngine(t)
	user := registerUserNamed(t, engine, "Mae@Example.com", "123456", "Mae")

	status, raw := requestJSON(t, engine, http.MethodGet, "/api/auth/me", user.Token, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 on me, got %d", status)
	}
	var me struct {
		User struct {
			ID          string `json:"id"`
			Email       string `json:"email"`
			DisplayName string `json:"displayName"`
		} `json:"user"`
	}
	if err := json.Unmarshal(raw, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.User.ID != user.User.ID || me.User.Email != "mae@example.com" || me.User.DisplayName != "Mae" {
		t.Fatalf("unexpected me response %+v", me.User)
	}

	status, _ = requestJSON(t, engine, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "mae@example.com", "password": "wrong-password",
	})
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", status)
	}

	status, _ = requestJSON(t, engine, http.MethodGet, "/api/auth/me", "not-a-token", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", status)
	}
}

func TestCORSPreflight(t *testing.T) {
	engine := setupTestEngine(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	recorder := httptest.NewRecorder()

	engine.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", recorder.Code)
	}
	if recorder.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("unexpected allow-origin header: %s", recorder.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestUnauthorizedDomain(t *testing.T) {
	engine := setupTestEngine(t)

	payload, _ := json.Marshal(map[string]string{"email": "eve@example.com", "password": "123456"})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "https://evil.example.com")
	recorder := httptest.NewRecorder()
	engine.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unknown origin, got %d", recorder.Code)
	}
	var resp apiErrorEnvelope
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error.Code != "unauthorized_domain" || resp.Error.Details.Origin != "https://evil.example.com" {
		t.Fatalf("unexpected error %+v", resp.Error)
	}
}

func TestWatchStreamsSnapshots(t *testing.T) {
	engine := setupTestEngine(t)
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)

	user := registerUser(t, engine, "watcher@example.com", "123456")

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/watch?path=config/timer"
	header := http.Header{}
	header.Set("Authorization", "Bearer "+user.Token)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial watch: %v", err)
	}
	defer resp.Body.Close()
	defer conn.Close()

	initial := readSnapshot(t, conn)
	if initial.Exists || initial.Path != "config/timer" {
		t.Fatalf("unexpected initial snapshot %+v", initial)
	}

	status, raw := requestJSON(t, engine, http.MethodPut, "/api/docs/config/timer", user.Token, map[string]interface{}{
		"data": map[string]interface{}{"status": "WORK"},
	})
	if status != http.StatusOK {
		t.Fatalf("put timer: %d %s", status, raw)
	}

	snap := readSnapshot(t, conn)
	if !snap.Exists || snap.Document == nil || snap.Document.Revision != 1 {
		t.Fatalf("unexpected snapshot after write %+v", snap)
	}

	// Writes to other documents are not delivered to this watch.
	requestJSON(t, engine, http.MethodPut, "/api/docs/config/other", user.Token, map[string]interface{}{
		"data": map[string]interface{}{"x": 1},
	})
	requestJSON(t, engine, http.MethodDelete, "/api/docs/config/timer", user.Token, nil)
	snap = readSnapshot(t, conn)
	if snap.Exists {
		t.Fatalf("expected deletion snapshot, got %+v", snap)
	}
}

func TestWatchRejectsBadRequests(t *testing.T) {
	engine := setupTestEngine(t)
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/watch?path=tasks"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected unauthenticated watch to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 response, got %+v", resp)
	}

	user := registerUser(t, engine, "bad-path@example.com", "123456")
	status, _ := requestJSON(t, engine, http.MethodGet, "/api/watch?path=a/b/c", user.Token, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad path, got %d", status)
	}
}

func readSnapshot(t *testing.T, conn *websocket.Conn) docstore.Snapshot {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(3 * time.Second)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	var snap docstore.Snapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	return snap
}

func setupTestEngine(t *testing.T) http.Handler {
	t.Helper()

	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	if err := db.RunMigrations(context.Background(), database); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	app, err := server.New(config.Config{
		JWTSecret:   "test-secret",
		TokenTTL:    24 * time.Hour,
		CORSOrigins: []string{"http://localhost:5173"},
	}, database, clockwork.NewRealClock(), zerolog.Nop())
	if err != nil {
		t.Fatalf("build server: %v", err)
	}
	t.Cleanup(func() {
		_ = app.Close()
	})
	return app.Engine
}

func registerUser(t *testing.T, server http.Handler, email, password string) authResponse {
	t.Helper()
	return registerUserNamed(t, server, email, password, "")
}

func registerUserNamed(t *testing.T, server http.Handler, email, password, name string) authResponse {
	t.Helper()
	status, body := requestJSON(t, server, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":       email,
		"password":    password,
		"displayName": name,
	})
	if status != http.StatusCreated {
		t.Fatalf("register %s failed with status %d: %s", email, status, string(body))
	}
	var resp authResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("unmarshal register response: %v", err)
	}
	if resp.Token == "" {
		t.Fatalf("empty token for user %s", email)
	}
	return resp
}

func decodeDocument(t *testing.T, raw []byte) docstore.Document {
	t.Helper()
	var env documentEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal document response: %v", err)
	}
	return env.Document
}

func requestJSON(
	t *testing.T,
	server http.Handler,
	method, path, token string,
	body interface{},
) (int, []byte) {
	t.Helper()

	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		payload = raw
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, req)
	return recorder.Code, recorder.Body.Bytes()
}
