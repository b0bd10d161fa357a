package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/GolferGeek/sync-focus/internal/model"
)

const (
	geminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel = "gemini-2.5-flash"
	geminiMaxRetries   = 3
	geminiInitialDelay = 1 * time.Second
	geminiTimeout      = 30 * time.Second
)

// Gemini calls the generateContent REST endpoint.
type Gemini struct {
	apiKey       string
	model        string
	baseURL      string
	client       *http.Client
	logger       zerolog.Logger
	initialDelay time.Duration
}

var _ Assistant = (*Gemini)(nil)

type GeminiOption func(*Gemini)

func WithBaseURL(baseURL string) GeminiOption {
	return func(g *Gemini) { g.baseURL = strings.TrimRight(baseURL, "/") }
}

func WithModel(name string) GeminiOption {
	return func(g *Gemini) {
		if name != "" {
			g.model = name
		}
	}
}

func WithHTTPClient(c *http.Client) GeminiOption {
	return func(g *Gemini) { g.client = c }
}

func WithLogger(logger zerolog.Logger) GeminiOption {
	return func(g *Gemini) { g.logger = logger }
}

func WithInitialDelay(d time.Duration) GeminiOption {
	return func(g *Gemini) { g.initialDelay = d }
}

func NewGemini(apiKey string, opts ...GeminiOption) *Gemini {
	g := &Gemini{
		apiKey:       apiKey,
		model:        DefaultGeminiModel,
		baseURL:      geminiBaseURL,
		client:       &http.Client{Timeout: geminiTimeout},
		logger:       zerolog.Nop(),
		initialDelay: geminiInitialDelay,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With().Str("component", "assist").Str("model", g.model).Logger()
	return g
}

// New returns a Gemini assistant, or Noop when apiKey is empty.
func New(apiKey string, opts ...GeminiOption) Assistant {
	if apiKey == "" {
		return Noop{}
	}
	return NewGemini(apiKey, opts...)
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiSchema struct {
	Type       string                  `json:"type"`
	Properties map[string]geminiSchema `json:"properties,omitempty"`
	Items      *geminiSchema           `json:"items,omitempty"`
	Required   []string                `json:"required,omitempty"`
}

type generationConfig struct {
	ResponseMIMEType string        `json:"responseMimeType,omitempty"`
	ResponseSchema   *geminiSchema `json:"responseSchema,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent   `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

type geminiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

var subtaskSchema = &geminiSchema{
	Type: "OBJECT",
	Properties: map[string]geminiSchema{
		"subtasks": {Type: "ARRAY", Items: &geminiSchema{Type: "STRING"}},
	},
	Required: []string{"subtasks"},
}

func (g *Gemini) BreakDownTask(ctx context.Context, title string) []string {
	text, err := g.generate(ctx, breakdownPrompt(title), &generationConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   subtaskSchema,
	})
	if err != nil {
		g.logger.Error().Err(err).Msg("task breakdown failed")
		return nil
	}

	var out struct {
		Subtasks []string `json:"subtasks"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		g.logger.Error().Err(err).Msg("task breakdown returned malformed JSON")
		return nil
	}
	return cleanSubtasks(out.Subtasks)
}

func (g *Gemini) SuggestNextTask(ctx context.Context, tasks []model.Task, projects []model.Project) string {
	if len(tasks) == 0 {
		return ""
	}
	text, err := g.generate(ctx, suggestPrompt(tasks, projects), nil)
	if err != nil {
		g.logger.Error().Err(err).Msg("task suggestion failed")
		return ""
	}
	id := matchTaskID(text, tasks)
	if id == "" {
		g.logger.Warn().Str("answer", text).Msg("suggestion did not name a known task")
	}
	return id
}

func (g *Gemini) Motivation(ctx context.Context, completed int, currentTask string) string {
	text, err := g.generate(ctx, motivationPrompt(completed, currentTask), nil)
	if err != nil {
		g.logger.Debug().Err(err).Msg("motivation failed")
		return fallbackMotivation
	}
	if text = strings.TrimSpace(text); text == "" {
		return defaultMotivation
	}
	return text
}

func (g *Gemini) generate(ctx context.Context, prompt string, cfg *generationConfig) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents:         []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: cfg,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, url.PathEscape(g.model))

	var text string
	backoff := retry.WithMaxRetries(geminiMaxRetries-1, retry.NewExponential(g.initialDelay))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		var callErr error
		text, callErr = g.call(ctx, endpoint, body)
		return callErr
	})
	return text, err
}

func (g *Gemini) call(ctx context.Context, endpoint string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", retry.RetryableError(fmt.Errorf("HTTP request failed: %w", err))
	}
	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return "", retry.RetryableError(fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr geminiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			err = fmt.Errorf("Gemini API error (%d): %s", resp.StatusCode, apiErr.Error.Message)
		} else {
			err = fmt.Errorf("Gemini API error (%d): %s", resp.StatusCode, string(respBody))
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", retry.RetryableError(err)
		}
		return "", err
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(parsed.Candidates) == 0 {
		return "", errors.New("no candidates returned")
	}
	var b strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String(), nil
}
