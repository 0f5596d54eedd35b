package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarsPain/chunk-wise-data-synthesis/synthesis"
)

// fakeAPI serves canned responses in order and records request bodies.
type fakeAPI struct {
	mu     sync.Mutex
	paths  []string
	bodies []map[string]any
	status []int
	body   string
}

func (f *fakeAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		var decoded map[string]any
		_ = json.Unmarshal(raw, &decoded)

		f.mu.Lock()
		f.paths = append(f.paths, r.URL.Path)
		f.bodies = append(f.bodies, decoded)
		status := http.StatusOK
		if n := len(f.paths); n <= len(f.status) {
			status = f.status[n-1]
		}
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = io.WriteString(w, `{"error":{"message":"request failed","type":"invalid_request_error"}}`)
			return
		}
		_, _ = io.WriteString(w, f.body)
	}
}

const chatReply = `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"test-model",
"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"rewritten chunk"}}]}`

const responsesReply = `{"id":"resp_1","object":"response","created_at":1,"status":"completed","model":"test-model",
"output":[{"type":"message","id":"msg_1","status":"completed","role":"assistant",
"content":[{"type":"output_text","text":"{\"topic\":\"T\"}","annotations":[]}]}],
"parallel_tool_calls":false,"tool_choice":"auto","tools":[]}`

func TestOpenAIChat_Generate(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{body: chatReply}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	m, err := NewOpenAIChat("test-key", srv.URL+"/", "test-model", noWait(1))
	require.NoError(t, err)

	out, err := m.Generate(context.Background(), synthesis.Request{
		Task:   synthesis.TaskRewriteChunk,
		Prompt: "rewrite this",
		Params: synthesis.GenerationParams{Temperature: 0.4, TopP: 0.9, MaxOutputTokens: 256},
	})
	require.NoError(t, err)
	assert.Equal(t, "rewritten chunk", out)

	require.Len(t, api.bodies, 1)
	assert.True(t, strings.HasSuffix(api.paths[0], "/chat/completions"))
	body := api.bodies[0]
	assert.Equal(t, "test-model", body["model"])
	assert.InDelta(t, 0.4, body["temperature"], 1e-9)
	assert.InDelta(t, 256, body["max_tokens"], 1e-9)
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 1)
	assert.Equal(t, "rewrite this", msgs[0].(map[string]any)["content"])
}

func TestOpenAIChat_RetriesRateLimit(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{body: chatReply, status: []int{http.StatusTooManyRequests}}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	m, err := NewOpenAIChat("test-key", srv.URL+"/", "test-model", noWait(2))
	require.NoError(t, err)

	out, err := m.Generate(context.Background(), synthesis.Request{Task: synthesis.TaskSectionGeneration, Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "rewritten chunk", out)
	assert.Len(t, api.paths, 2)
}

func TestOpenAIChat_AuthErrorIsFatal(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{status: []int{http.StatusUnauthorized}}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	m, err := NewOpenAIChat("bad-key", srv.URL+"/", "test-model", noWait(3))
	require.NoError(t, err)

	_, err = m.Generate(context.Background(), synthesis.Request{Task: synthesis.TaskSectionGeneration, Prompt: "p"})
	var be *synthesis.BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, http.StatusUnauthorized, be.StatusCode)
	assert.False(t, be.Retryable)
	assert.Equal(t, synthesis.TaskSectionGeneration, be.Task)
	assert.Len(t, api.paths, 1)
}

func TestOpenAIResponses_StructuredPlan(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{body: responsesReply}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	m, err := NewOpenAIResponses("test-key", srv.URL+"/", "test-model", noWait(1))
	require.NoError(t, err)

	out, err := m.Generate(context.Background(), synthesis.Request{
		Task:       synthesis.TaskPlanGeneration,
		Prompt:     "plan this",
		JSONSchema: GenerateSchema[synthesis.GenerationPlan](),
		SchemaName: "generation_plan",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"topic":"T"}`, out)

	require.Len(t, api.bodies, 1)
	assert.True(t, strings.HasSuffix(api.paths[0], "/responses"))
	format := api.bodies[0]["text"].(map[string]any)["format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
	assert.Equal(t, "generation_plan", format["name"])
	assert.Equal(t, false, format["strict"])
}

func TestOpenAIResponses_PlainText(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{body: responsesReply}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	m, err := NewOpenAIResponses("test-key", srv.URL+"/", "test-model", noWait(1))
	require.NoError(t, err)
	_, err = m.Generate(context.Background(), synthesis.Request{Task: synthesis.TaskRewriteChunk, Prompt: "p"})
	require.NoError(t, err)
	_, hasText := api.bodies[0]["text"]
	assert.False(t, hasText)
}

func TestNewOpenAI_RequiresModel(t *testing.T) {
	t.Parallel()

	_, err := NewOpenAIChat("k", "", " ", DefaultRetryPolicy())
	assert.Error(t, err)
	_, err = NewOpenAIResponses("k", "", "", DefaultRetryPolicy())
	assert.Error(t, err)
}
