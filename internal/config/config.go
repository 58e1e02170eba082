package config

import (
	"encoding/json"
	"time"
)

// Server is the process configuration.
type Server struct {
	HTTP        HTTPConfig     `json:"http"`
	Storage     StorageConfig  `json:"storage"`
	Agent       AgentConfig    `json:"agent"`
	LLM         LLMConfig      `json:"llm"`
	FallbackLLM *LLMConfig     `json:"fallback_llm,omitempty"`
	Channels    ChannelsConfig `json:"channels"`
	Security    SecurityConfig `json:"security"`
	LogLevel    string         `json:"log_level"`
}

type HTTPConfig struct {
	Addr             string   `json:"addr"`
	AllowedOrigins   []string `json:"allowed_origins,omitempty"`
	ReadTimeoutSecs  int      `json:"read_timeout_secs"`
	WriteTimeoutSecs int      `json:"write_timeout_secs"`
}

type StorageConfig struct {
	DataDir     string `json:"data_dir"`
	LogRingSize int    `json:"log_ring_size"`
}

type AgentConfig struct {
	SystemPrompt        string `json:"system_prompt"`
	DefaultModel        string `json:"default_model"`
	ModelTimeoutSecs    int    `json:"model_timeout_secs"`
	DispatchTimeoutSecs int    `json:"dispatch_timeout_secs"`
	DispatchPoolSize    int    `json:"dispatch_pool_size"`
	SequentialDispatch  bool   `json:"sequential_dispatch"`
}

// LLMConfig selects a chat-completions backend. The primary provider takes
// its key from the stored assistant configuration; a fallback carries its own.
type LLMConfig struct {
	Provider   string `json:"provider"`
	Model      string `json:"model,omitempty"`
	APIKey     string `json:"api_key,omitempty"`
	BaseURL    string `json:"base_url,omitempty"`
	MaxRetries int    `json:"max_retries"`
}

type ChannelsConfig struct {
	Telegram *TelegramConfig `json:"telegram,omitempty"`
}

type TelegramConfig struct {
	Token      string  `json:"token"`
	AllowedIDs []int64 `json:"allowed_ids,omitempty"`
}

type SecurityConfig struct {
	VaultPassphrase string `json:"vault_passphrase,omitempty"`
}

// Assistant is the configuration written by the setup flow.
type Assistant struct {
	APIKey        string         `json:"openaiKey"`
	Model         string         `json:"openaiModel"`
	Voice         string         `json:"voice"`
	FetchURL      string         `json:"fetchUrl"`
	ActionURL     string         `json:"actionUrl"`
	ManageURL     string         `json:"manageUrl"`
	SetupComplete bool           `json:"setupComplete"`
	LastUpdated   time.Time      `json:"lastUpdated"`
	History       []HistoryEntry `json:"configHistory"`
}

// HistoryEntry records one save of the assistant configuration.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"` // "created" or "updated"
}

// AssistantInput is the payload accepted by Store.Save.
type AssistantInput struct {
	APIKey    string `json:"openaiKey"`
	Model     string `json:"openaiModel"`
	Voice     string `json:"voice"`
	FetchURL  string `json:"fetchUrl"`
	ActionURL string `json:"actionUrl"`
	ManageURL string `json:"manageUrl"`
}

// Settings tunes the realtime session and text chat.
type Settings struct {
	Instructions      string          `json:"instructions"`
	Temperature       float64         `json:"temperature"`
	VADThreshold      float64         `json:"vadThreshold"`
	PrefixPaddingMS   int             `json:"prefixPadding"`
	SilenceDurationMS int             `json:"silenceDuration"`
	FetchDescription  string          `json:"fetchDescription"`
	FetchSchema       json.RawMessage `json:"fetchSchema"`
	ActionDescription string          `json:"actionDescription"`
	ActionSchema      json.RawMessage `json:"actionSchema"`
	ManageDescription string          `json:"manageDescription"`
	ManageSchema      json.RawMessage `json:"manageSchema"`
	EnableTextChat    bool            `json:"enableTextChat"`
	TextChatModel     string          `json:"textChatModel"`
	LastUpdated       time.Time       `json:"lastUpdated"`
}

// SettingsInput distinguishes omitted numeric fields from explicit zeros.
type SettingsInput struct {
	Instructions      string          `json:"instructions"`
	Temperature       *float64        `json:"temperature"`
	VADThreshold      *float64        `json:"vadThreshold"`
	PrefixPaddingMS   *int            `json:"prefixPadding"`
	SilenceDurationMS *int            `json:"silenceDuration"`
	FetchDescription  string          `json:"fetchDescription"`
	FetchSchema       json.RawMessage `json:"fetchSchema"`
	ActionDescription string          `json:"actionDescription"`
	ActionSchema      json.RawMessage `json:"actionSchema"`
	ManageDescription string          `json:"manageDescription"`
	ManageSchema      json.RawMessage `json:"manageSchema"`
	EnableTextChat    bool            `json:"enableTextChat"`
	TextChatModel     string          `json:"textChatModel"`
}

// Resolve fills omitted fields with defaults.
func (in SettingsInput) Resolve() Settings {
	s := DefaultSettings()
	s.Instructions = in.Instructions
	if in.Temperature != nil {
		s.Temperature = *in.Temperature
	}
	if in.VADThreshold != nil {
		s.VADThreshold = *in.VADThreshold
	}
	if in.PrefixPaddingMS != nil {
		s.PrefixPaddingMS = *in.PrefixPaddingMS
	}
	if in.SilenceDurationMS != nil {
		s.SilenceDurationMS = *in.SilenceDurationMS
	}
	s.FetchDescription = in.FetchDescription
	s.FetchSchema = nullIfEmpty(in.FetchSchema)
	s.ActionDescription = in.ActionDescription
	s.ActionSchema = nullIfEmpty(in.ActionSchema)
	s.ManageDescription = in.ManageDescription
	s.ManageSchema = nullIfEmpty(in.ManageSchema)
	s.EnableTextChat = in.EnableTextChat
	if in.TextChatModel != "" {
		s.TextChatModel = in.TextChatModel
	}
	return s
}

// HasSchema reports whether raw carries a schema override.
func HasSchema(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

func nullIfEmpty(raw json.RawMessage) json.RawMessage {
	if !HasSchema(raw) {
		return nil
	}
	return raw
}
