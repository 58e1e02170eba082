// Package realtime mints short-lived realtime sessions so the browser never
// sees the stored API key.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"flowdesk/internal/config"
	"flowdesk/internal/log"
	"flowdesk/internal/tool"
)

// SettingsSource supplies the session tuning.
type SettingsSource interface {
	LoadSettings(ctx context.Context) (config.Settings, bool, error)
}

// TurnDetection configures server-side voice activity detection.
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms"`
	SilenceDurationMS int     `json:"silence_duration_ms"`
}

// SessionTool is a function tool in realtime session format.
type SessionTool struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type sessionRequest struct {
	Model         string        `json:"model"`
	Voice         string        `json:"voice"`
	Instructions  string        `json:"instructions,omitempty"`
	Temperature   float64       `json:"temperature"`
	TurnDetection TurnDetection `json:"turn_detection"`
	Tools         []SessionTool `json:"tools"`
	ToolChoice    string        `json:"tool_choice"`
}

type sessionResponse struct {
	ID           string `json:"id"`
	Model        string `json:"model"`
	Voice        string `json:"voice"`
	ClientSecret struct {
		Value     string `json:"value"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"client_secret"`
}

// Token is handed to the browser to open a realtime connection.
type Token struct {
	SessionID     string        `json:"sessionId"`
	ClientSecret  string        `json:"clientSecret"`
	ExpiresAt     int64         `json:"expiresAt"`
	Model         string        `json:"model"`
	Voice         string        `json:"voice"`
	Instructions  string        `json:"instructions,omitempty"`
	Temperature   float64       `json:"temperature"`
	TurnDetection TurnDetection `json:"turnDetection"`
	Tools         []SessionTool `json:"tools"`
}

// Issuer creates realtime sessions from the stored configuration.
type Issuer struct {
	configs  config.Provider
	settings SettingsSource
	catalog  *tool.Catalog
	opts     []option.RequestOption
}

// NewIssuer creates an issuer. opts are applied to every API client, after
// the stored key.
func NewIssuer(configs config.Provider, settings SettingsSource, catalog *tool.Catalog, opts ...option.RequestOption) *Issuer {
	return &Issuer{configs: configs, settings: settings, catalog: catalog, opts: opts}
}

// Issue creates a session. Configuration errors are returned unwrapped
// so callers can match config.ErrNotConfigured.
func (i *Issuer) Issue(ctx context.Context) (*Token, error) {
	cfg, err := i.configs.Load(ctx)
	if err != nil {
		return nil, err
	}

	settings := config.DefaultSettings()
	if i.settings != nil {
		s, ok, err := i.settings.LoadSettings(ctx)
		if err != nil {
			log.Warnf("[realtime] load settings, using defaults: %v", err)
		} else if ok {
			settings = s
		}
	}

	model := cfg.Model
	if model == "" {
		model = config.DefaultRealtimeModel
	}
	voice := cfg.Voice
	if voice == "" {
		voice = config.DefaultVoice
	}

	req := sessionRequest{
		Model:        model,
		Voice:        voice,
		Instructions: settings.Instructions,
		Temperature:  settings.Temperature,
		TurnDetection: TurnDetection{
			Type:              "server_vad",
			Threshold:         settings.VADThreshold,
			PrefixPaddingMS:   settings.PrefixPaddingMS,
			SilenceDurationMS: settings.SilenceDurationMS,
		},
		Tools:      SessionTools(i.catalog.WithOverrides(Overrides(settings))),
		ToolChoice: "auto",
	}

	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, i.opts...)...)
	var res sessionResponse
	if err := client.Post(ctx, "realtime/sessions", req, &res); err != nil {
		return nil, fmt.Errorf("create realtime session: %w", err)
	}
	log.Infof("[realtime] session %s issued for %s (%s)", res.ID, model, voice)

	if res.Model != "" {
		model = res.Model
	}
	if res.Voice != "" {
		voice = res.Voice
	}
	return &Token{
		SessionID:     res.ID,
		ClientSecret:  res.ClientSecret.Value,
		ExpiresAt:     res.ClientSecret.ExpiresAt,
		Model:         model,
		Voice:         voice,
		Instructions:  req.Instructions,
		Temperature:   req.Temperature,
		TurnDetection: req.TurnDetection,
		Tools:         req.Tools,
	}, nil
}

// Overrides maps the per-category settings onto catalog overrides.
func Overrides(s config.Settings) map[tool.Category]tool.Override {
	return map[tool.Category]tool.Override{
		tool.CategoryQuery:  {Description: s.FetchDescription, Schema: s.FetchSchema},
		tool.CategoryAction: {Description: s.ActionDescription, Schema: s.ActionSchema},
		tool.CategoryManage: {Description: s.ManageDescription, Schema: s.ManageSchema},
	}
}

// SessionTools converts a catalog to realtime function tools.
func SessionTools(c *tool.Catalog) []SessionTool {
	defs := c.All()
	out := make([]SessionTool, len(defs))
	for i, d := range defs {
		out[i] = SessionTool{Type: "function", Name: d.Name, Description: d.Description, Parameters: d.Parameters}
	}
	return out
}
