package llm

import "encoding/json"

// Transcript roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one transcript entry. Assistant turns may carry ToolCalls;
// tool turns answer exactly one of them through ToolCallID.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

func SystemMessage(content string) Message { return Message{Role: RoleSystem, Content: content} }
func UserMessage(content string) Message   { return Message{Role: RoleUser, Content: content} }

// AssistantMessage records a model turn as returned.
func AssistantMessage(resp *LLMResponse) Message {
	return Message{Role: RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls}
}

// ToolResult answers the tool call identified by callID.
func ToolResult(callID string, content []byte) Message {
	return Message{Role: RoleTool, ToolCallID: callID, Content: string(content)}
}

// ToolDefinition is a function the model may call. Parameters holds a JSON
// Schema object.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall is a model request to run a tool. Arguments are passed through
// unparsed, exactly as the model produced them.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// MarshalJSON writes Arguments as a JSON string when the model produced
// text that is not valid JSON, so a transcript holding a bad call still
// encodes.
func (tc ToolCall) MarshalJSON() ([]byte, error) {
	type plain ToolCall
	if len(tc.Arguments) == 0 || json.Valid(tc.Arguments) {
		return json.Marshal(plain(tc))
	}
	return json.Marshal(struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	}{tc.ID, tc.Name, string(tc.Arguments)})
}

type LLMResponse struct {
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	Usage      Usage      `json:"usage"`
	StopReason string     `json:"stop_reason"`
}

// Final reports whether the turn ends the conversation.
func (r *LLMResponse) Final() bool { return len(r.ToolCalls) == 0 }

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ChatRequest is one model call. System text may come from SystemPrompt,
// from RoleSystem messages, or both.
type ChatRequest struct {
	Model        string           `json:"model"`
	Messages     []Message        `json:"messages"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	MaxTokens    int              `json:"max_tokens"`
	Temperature  float64          `json:"temperature"`
	SystemPrompt string           `json:"system_prompt,omitempty"`
}

// ErrorType decides whether a failed call is worth repeating elsewhere.
type ErrorType int

const (
	ErrorUnknown ErrorType = iota
	ErrorRateLimit
	ErrorAuth
	ErrorInvalidInput
	ErrorServerError
	ErrorTimeout
	ErrorNetwork
)

var errorTypeNames = [...]string{
	ErrorUnknown:      "unknown",
	ErrorRateLimit:    "rate_limit",
	ErrorAuth:         "auth",
	ErrorInvalidInput: "invalid_input",
	ErrorServerError:  "server_error",
	ErrorTimeout:      "timeout",
	ErrorNetwork:      "network",
}

func (t ErrorType) String() string {
	if t < 0 || int(t) >= len(errorTypeNames) {
		return "unknown"
	}
	return errorTypeNames[t]
}
