package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowdesk/internal/config"
)

const completionWithToolCall = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1730000000,
  "model": "gpt-5.1",
  "choices": [{
    "index": 0,
    "finish_reason": "tool_calls",
    "message": {
      "role": "assistant",
      "content": null,
      "tool_calls": [{
        "id": "call_1",
        "type": "function",
        "function": {"name": "fetchSharePointData", "arguments": "{\"query\":\"awaiting\"}"}
      }]
    }
  }],
  "usage": {"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19}
}`

func newOpenAITestServer(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/"})
}

func TestOpenAIChatToolCalls(t *testing.T) {
	var got map[string]any
	p := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completionWithToolCall))
	})

	resp, err := p.Chat(context.Background(), &ChatRequest{
		Model: "gpt-5.1",
		Messages: []Message{
			{Role: RoleSystem, Content: "sys"},
			{Role: RoleUser, Content: "what is awaiting?"},
		},
		Tools: []ToolDefinition{{Name: "fetchSharePointData", Description: "d", Parameters: json.RawMessage(`{"type":"object","properties":{}}`)}},
	})
	require.NoError(t, err)

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "fetchSharePointData", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"query":"awaiting"}`, string(resp.ToolCalls[0].Arguments))
	assert.Equal(t, "tool_calls", resp.StopReason)
	assert.Equal(t, 12, resp.Usage.InputTokens)

	assert.Equal(t, "gpt-5.1", got["model"])
	assert.Len(t, got["messages"], 2)
	assert.Len(t, got["tools"], 1)
	assert.Equal(t, "auto", got["tool_choice"])
}

func TestOpenAIChatWithoutChoicesIsAnError(t *testing.T) {
	p := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","object":"chat.completion","created":1,"model":"gpt-5.1","choices":[]}`))
	})

	_, err := p.Chat(context.Background(), &ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	var llmErr *LLMError
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, ErrorServerError, llmErr.Type)
}

func TestOpenAIChatRejectsBadToolSchema(t *testing.T) {
	p := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := p.Chat(context.Background(), &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
		Tools:    []ToolDefinition{{Name: "broken", Parameters: json.RawMessage(`[1,2]`)}},
	})
	var llmErr *LLMError
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, ErrorInvalidInput, llmErr.Type)
}

func TestOpenAIChatClassifiesAuthError(t *testing.T) {
	p := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`))
	})

	_, err := p.Chat(context.Background(), &ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	var llmErr *LLMError
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, ErrorAuth, llmErr.Type)
	assert.Equal(t, http.StatusUnauthorized, llmErr.StatusCode)
}

func TestOpenAIProbe(t *testing.T) {
	p := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/models":
			w.Write([]byte(`{"object":"list","data":[{"id":"gpt-4o-realtime-preview","object":"model","created":1,"owned_by":"system"}]}`))
		case "/v1/chat/completions":
			w.Write([]byte(`{"id":"x","object":"chat.completion","created":1,"model":"gpt-4o","choices":[{"index":0,"finish_reason":"length","message":{"role":"assistant","content":"Hi"}}]}`))
		}
	})

	res := p.Probe(context.Background(), "gpt-4o-realtime-preview")
	assert.True(t, res.Success, res.Message)

	res = p.Probe(context.Background(), "gpt-4o")
	assert.True(t, res.Success, res.Message)
	assert.Equal(t, "OpenAI connection successful", res.Message)
}

func TestAnthropicConvertMessages(t *testing.T) {
	system, msgs := anthropicMessages(&ChatRequest{Messages: []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{
			{ID: "a", Name: "fetchSharePointData", Arguments: json.RawMessage(`{}`)},
			{ID: "b", Name: "manageSharePointItem", Arguments: json.RawMessage(`{"flow_type":5}`)},
		}},
		{Role: RoleTool, ToolCallID: "a", Content: `"rows"`},
		{Role: RoleTool, ToolCallID: "b", Content: `{"ok":true}`},
	}})

	require.Len(t, system, 1)
	assert.Equal(t, "sys", system[0].Text)
	require.Len(t, msgs, 3)
	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[2].Role)
	assert.Len(t, msgs[2].Content, 2)
}

func TestAnthropicToolsRejectBadSchema(t *testing.T) {
	_, err := anthropicTools([]ToolDefinition{{Name: "broken", Parameters: json.RawMessage(`"x"`)}})
	assert.ErrorContains(t, err, "broken")

	tools, err := anthropicTools([]ToolDefinition{{Name: "ok", Parameters: json.RawMessage(`{"type":"object"}`)}})
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "ok", tools[0].OfTool.Name)
}

type fakeProvider struct {
	name   string
	err    error
	models []string
}

func (f *fakeProvider) Name() string         { return f.name }
func (f *fakeProvider) DefaultModel() string { return f.name + "-default" }
func (f *fakeProvider) Chat(ctx context.Context, req *ChatRequest) (*LLMResponse, error) {
	f.models = append(f.models, req.Model)
	if f.err != nil {
		return nil, f.err
	}
	return &LLMResponse{Content: "from " + f.name}, nil
}

func TestFallbackProvider(t *testing.T) {
	primary := &fakeProvider{name: "openai", err: &LLMError{Type: ErrorServerError}}
	secondary := &fakeProvider{name: "anthropic"}
	f := NewFallbackProvider(primary, secondary)

	resp, err := f.Chat(context.Background(), &ChatRequest{Model: "gpt-5.1"})
	require.NoError(t, err)
	assert.Equal(t, "from anthropic", resp.Content)
	assert.Equal(t, []string{"gpt-5.1"}, primary.models)
	assert.Equal(t, []string{""}, secondary.models)
}

func TestFallbackStopsOnAuthError(t *testing.T) {
	primary := &fakeProvider{name: "openai", err: &LLMError{Type: ErrorAuth}}
	secondary := &fakeProvider{name: "anthropic"}

	_, err := NewFallbackProvider(primary, secondary).Chat(context.Background(), &ChatRequest{})
	require.Error(t, err)
	assert.Empty(t, secondary.models)
}

func TestNewChain(t *testing.T) {
	p, err := NewChain(config.LLMConfig{Provider: "openai", APIKey: "k"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	p, err = NewChain(config.LLMConfig{Provider: "openai", APIKey: "k"}, &config.LLMConfig{Provider: "anthropic", APIKey: "a"})
	require.NoError(t, err)
	assert.Equal(t, "openai+fallback", p.Name())

	_, err = NewChain(config.LLMConfig{Provider: "gemini"}, nil)
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorRateLimit, classify(errors.New("x"), 429).Type)
	assert.Equal(t, ErrorInvalidInput, classify(errors.New("x"), 400).Type)
	assert.Equal(t, ErrorServerError, classify(errors.New("x"), 503).Type)
	assert.Equal(t, ErrorTimeout, classify(context.DeadlineExceeded, 0).Type)
	assert.Equal(t, ErrorNetwork, classify(errors.New("dial tcp: connection refused"), 0).Type)
}

func TestFallbackJoinsErrorsWhenAllFail(t *testing.T) {
	primary := &fakeProvider{name: "openai", err: &LLMError{Type: ErrorServerError, Message: "down"}}
	secondary := &fakeProvider{name: "anthropic", err: &LLMError{Type: ErrorRateLimit, Message: "busy"}}

	_, err := NewFallbackProvider(primary, secondary).Chat(context.Background(), &ChatRequest{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "openai: down")
	assert.ErrorContains(t, err, "anthropic: busy")
	var llmErr *LLMError
	require.True(t, errors.As(err, &llmErr))
}

func TestToolCallMarshalsMalformedArgumentsAsString(t *testing.T) {
	data, err := json.Marshal(ToolCall{ID: "c1", Name: "fetchSharePointData", Arguments: json.RawMessage(`{"query":`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"c1","name":"fetchSharePointData","arguments":"{\"query\":"}`, string(data))

	data, err = json.Marshal(ToolCall{ID: "c2", Name: "x", Arguments: json.RawMessage(`{"query":"a"}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"c2","name":"x","arguments":{"query":"a"}}`, string(data))
}
