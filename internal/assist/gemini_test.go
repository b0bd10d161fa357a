package assist

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GolferGeek/sync-focus/internal/model"
)

type fakeGemini struct {
	calls  atomic.Int32
	handle func(n int32, w http.ResponseWriter)

	mu      sync.Mutex
	lastReq geminiRequest
}

func (f *fakeGemini) last() geminiRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

func (f *fakeGemini) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := f.calls.Add(1)
		assert.Equal(t, "/models/"+DefaultGeminiModel+":generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		f.mu.Lock()
		assert.NoError(t, json.Unmarshal(body, &f.lastReq))
		f.mu.Unlock()
		f.handle(n, w)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func reply(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{"role": "model", "parts": []any{map[string]any{"text": text}}},
		}},
	})
}

func newTestGemini(srv *httptest.Server) *Gemini {
	return NewGemini("test-key", WithBaseURL(srv.URL), WithInitialDelay(time.Millisecond))
}

func TestBreakDownTask(t *testing.T) {
	fake := &fakeGemini{handle: func(_ int32, w http.ResponseWriter) {
		reply(w, `{"subtasks":[" Outline ","","Draft","Review","Edit","Publish","Announce"]}`)
	}}
	g := newTestGemini(fake.server(t))

	subtasks := g.BreakDownTask(context.Background(), "Write blog post")
	require.Equal(t, []string{"Outline", "Draft", "Review", "Edit", "Publish"}, subtasks)
	require.Equal(t, "application/json", fake.last().GenerationConfig.ResponseMIMEType)
	require.Equal(t, "OBJECT", fake.last().GenerationConfig.ResponseSchema.Type)
	require.Contains(t, fake.last().Contents[0].Parts[0].Text, `"Write blog post"`)
}

func TestBreakDownTask_MalformedIsEmpty(t *testing.T) {
	fake := &fakeGemini{handle: func(_ int32, w http.ResponseWriter) { reply(w, "not json") }}
	require.Empty(t, newTestGemini(fake.server(t)).BreakDownTask(context.Background(), "x"))
}

func TestSuggestNextTask(t *testing.T) {
	tasks := make([]model.Task, 20)
	for i := range tasks {
		tasks[i] = model.Task{ID: "t" + string(rune('a'+i)), Title: "Task"}
	}
	tasks[0].ProjectID = model.StringPtr("p1")
	projects := []model.Project{{ID: "p1", Name: "Website"}}

	fake := &fakeGemini{handle: func(_ int32, w http.ResponseWriter) { reply(w, " tb \n") }}
	g := newTestGemini(fake.server(t))

	require.Equal(t, "tb", g.SuggestNextTask(context.Background(), tasks, projects))
	prompt := fake.last().Contents[0].Parts[0].Text
	require.Contains(t, prompt, "[ID: ta] Task (Project: Website)")
	require.Contains(t, prompt, "[ID: tb] Task (Project: Inbox)")
	require.Equal(t, maxSuggestContext, strings.Count(prompt, "[ID: "))
}

func TestSuggestNextTask_RejectsUnknownAnswers(t *testing.T) {
	tasks := []model.Task{{ID: "t1", Title: "One"}}

	fake := &fakeGemini{handle: func(_ int32, w http.ResponseWriter) { reply(w, "I suggest t1") }}
	g := newTestGemini(fake.server(t))
	require.Empty(t, g.SuggestNextTask(context.Background(), tasks, nil))

	require.Empty(t, g.SuggestNextTask(context.Background(), nil, nil))
	require.Equal(t, int32(1), fake.calls.Load())
}

func TestMotivation(t *testing.T) {
	fake := &fakeGemini{handle: func(_ int32, w http.ResponseWriter) { reply(w, "Ship it!") }}
	g := newTestGemini(fake.server(t))

	require.Equal(t, "Ship it!", g.Motivation(context.Background(), 3, "Refactor auth"))
	require.Contains(t, fake.last().Contents[0].Parts[0].Text, `"Refactor auth"`)
	require.Contains(t, fake.last().Contents[0].Parts[0].Text, "finished 3 tasks")
}

func TestGemini_RetriesServerErrors(t *testing.T) {
	fake := &fakeGemini{handle: func(n int32, w http.ResponseWriter) {
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"code":503,"message":"overloaded"}}`))
			return
		}
		reply(w, "Nice work.")
	}}
	g := newTestGemini(fake.server(t))

	require.Equal(t, "Nice work.", g.Motivation(context.Background(), 1, ""))
	require.Equal(t, int32(3), fake.calls.Load())
}

func TestGemini_ClientErrorsFallBack(t *testing.T) {
	fake := &fakeGemini{handle: func(_ int32, w http.ResponseWriter) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid"}}`))
	}}
	g := newTestGemini(fake.server(t))

	require.Equal(t, fallbackMotivation, g.Motivation(context.Background(), 0, ""))
	require.Nil(t, g.BreakDownTask(context.Background(), "x"))
	require.Equal(t, int32(2), fake.calls.Load())
}

func TestNew_WithoutKeyIsNoop(t *testing.T) {
	a := New("")
	require.IsType(t, Noop{}, a)
	require.Nil(t, a.BreakDownTask(context.Background(), "x"))
	require.Empty(t, a.SuggestNextTask(context.Background(), []model.Task{{ID: "t1"}}, nil))
	require.Equal(t, fallbackMotivation, a.Motivation(context.Background(), 0, ""))

	require.IsType(t, &Gemini{}, New("key"))
}
