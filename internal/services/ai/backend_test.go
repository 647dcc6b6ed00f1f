package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	Path string
	Body map[string]interface{}
}

// stageOf names the request shape the way the cascade does.
func (c recordedCall) stageOf() Stage {
	switch {
	case c.Path == "/v1/chat/completions":
		return StageChat
	case c.Body["input"] != nil:
		return StageCompletionAlt
	case c.Body["max_tokens"] != nil:
		return StageCompletion
	default:
		return StageCompletionMinimal
	}
}

type cannedResponse struct {
	status int
	body   string
}

// fakeLMStudio serves /v1/models and answers every completion call from
// a per-stage queue. An exhausted queue repeats its last entry.
type fakeLMStudio struct {
	mu        sync.Mutex
	calls     []recordedCall
	models    []string
	responses map[Stage][]cannedResponse
}

func newFakeLMStudio(t *testing.T, models ...string) (*fakeLMStudio, *httptest.Server) {
	t.Helper()
	f := &fakeLMStudio{models: models, responses: map[Stage][]cannedResponse{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeLMStudio) on(stage Stage, status int, body string) *fakeLMStudio {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[stage] = append(f.responses[stage], cannedResponse{status: status, body: body})
	return f
}

func (f *fakeLMStudio) serve(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.URL.Path == "/v1/models" {
		data := make([]map[string]string, 0, len(f.models))
		for _, id := range f.models {
			data = append(data, map[string]string{"id": id, "object": "model"})
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"object": "list", "data": data})
		return
	}

	raw, _ := io.ReadAll(r.Body)
	call := recordedCall{Path: r.URL.Path, Body: map[string]interface{}{}}
	_ = json.Unmarshal(raw, &call.Body)

	f.mu.Lock()
	f.calls = append(f.calls, call)
	stage := call.stageOf()
	queue := f.responses[stage]
	resp := cannedResponse{status: http.StatusNotFound, body: `{"error":"unexpected call"}`}
	if len(queue) > 0 {
		resp = queue[0]
		if len(queue) > 1 {
			f.responses[stage] = queue[1:]
		}
	}
	f.mu.Unlock()

	w.WriteHeader(resp.status)
	_, _ = io.WriteString(w, resp.body)
}

func (f *fakeLMStudio) stages() []Stage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Stage, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.stageOf())
	}
	return out
}

func (f *fakeLMStudio) call(i int) recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

func chatBody(text string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"model":   "local-model",
		"choices": []map[string]interface{}{{"index": 0, "message": map[string]string{"role": "assistant", "content": text}}},
		"usage":   map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	})
	return string(b)
}

func textBody(text string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"model":   "local-model",
		"choices": []map[string]interface{}{{"index": 0, "text": text}},
		"usage":   map[string]int{"completion_tokens": 7},
	})
	return string(b)
}

func testConfig(baseURL string) *Config {
	cfg := DefaultConfig()
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	cfg.Timeout = 5 * time.Second
	cfg.SystemPrompt = "You are a test assistant."
	return cfg
}

// sleepRecorder replaces real backoff in tests.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) retryConfig(maxRetries int) *RetryConfig {
	return &RetryConfig{
		MaxRetries: maxRetries,
		Delay:      500 * time.Millisecond,
		Timeout:    5 * time.Second,
		Sleep: func(_ context.Context, d time.Duration) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.delays = append(s.delays, d)
			return nil
		},
	}
}

func requireStages(t *testing.T, f *fakeLMStudio, want ...Stage) {
	t.Helper()
	require.Equal(t, want, f.stages())
}

// newHeaderServer captures the Authorization header and answers every call with "ok".
func newHeaderServer(t *testing.T, auth *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*auth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, textBody("ok"))
	}))
	t.Cleanup(srv.Close)
	return srv
}
