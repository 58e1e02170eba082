// Package agent runs the tool-calling conversation loop: it sends the
// transcript and tool catalog to the model, dispatches requested tool calls
// to their webhooks, feeds the results back and repeats until the model
// answers in plain text or the iteration ceiling is reached.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"flowdesk/internal/config"
	"flowdesk/internal/dispatch"
	"flowdesk/internal/eventbus"
	"flowdesk/internal/llm"
	"flowdesk/internal/log"
	"flowdesk/internal/memory"
	"flowdesk/internal/tool"
)

// MaxIterations is the number of model calls allowed per request.
const MaxIterations = 10

// ExhaustedReply is returned when MaxIterations is reached.
const ExhaustedReply = "I apologize, but I reached the maximum number of iterations while processing your request. Please try again with a simpler request."

const (
	defaultModelTimeout = 120 * time.Second
	defaultPoolSize     = 16
)

// ErrEmptyMessage is returned by Run when the request has no message text.
var ErrEmptyMessage = errors.New("message is required")

// ModelError reports a failed language-model call. It ends the request.
type ModelError struct {
	Iteration int
	Err       error
}

func (e *ModelError) Error() string {
	return "model call failed: " + e.Err.Error()
}

func (e *ModelError) Unwrap() error { return e.Err }

// ProviderFactory builds the model provider for a loaded configuration.
type ProviderFactory func(cfg *config.Assistant) (llm.Provider, error)

// Dispatcher performs one webhook call per tool invocation.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, args map[string]any, ep dispatch.Endpoints) (json.RawMessage, error)
}

// SettingsSource supplies the text-chat model choice.
type SettingsSource interface {
	LoadSettings(ctx context.Context) (config.Settings, bool, error)
}

// Request is one top-level user request.
type Request struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// Result is the terminal outcome of a request.
type Result struct {
	ConversationID string
	Reply          string
	Exhausted      bool
	Iterations     int
	Transcript     []llm.Message
}

// Option configures a Driver.
type Option func(*Driver)

// WithBus publishes conversation events on bus.
func WithBus(bus *eventbus.Bus) Option {
	return func(d *Driver) { d.bus = bus }
}

// WithTranscripts archives finished transcripts.
func WithTranscripts(t memory.Transcripts) Option {
	return func(d *Driver) { d.transcripts = t }
}

// WithSettings lets stored settings pick the text-chat model.
func WithSettings(s SettingsSource) Option {
	return func(d *Driver) { d.settings = s }
}

// WithSystemPrompt replaces the system message.
func WithSystemPrompt(prompt string) Option {
	return func(d *Driver) {
		if prompt != "" {
			d.systemPrompt = prompt
		}
	}
}

// WithDefaultModel sets the model used when the configuration names none.
func WithDefaultModel(model string) Option {
	return func(d *Driver) {
		if model != "" {
			d.defaultModel = model
		}
	}
}

// WithModelTimeout bounds each model call.
func WithModelTimeout(timeout time.Duration) Option {
	return func(d *Driver) {
		if timeout > 0 {
			d.modelTimeout = timeout
		}
	}
}

// WithPool dispatches tool calls on pool. The caller owns the pool.
func WithPool(pool *ants.Pool) Option {
	return func(d *Driver) { d.pool = pool }
}

// WithSequentialDispatch dispatches the tool calls of a turn one after
// another in emitted order.
func WithSequentialDispatch() Option {
	return func(d *Driver) { d.sequential = true }
}

// WithTracer records spans with tracer instead of the global provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(d *Driver) { d.tracer = tracer }
}

// Driver runs conversations. It keeps no per-conversation state and may be
// shared by concurrent requests.
type Driver struct {
	configs    config.Provider
	newModel   ProviderFactory
	catalog    *tool.Catalog
	dispatcher Dispatcher

	bus          *eventbus.Bus
	transcripts  memory.Transcripts
	settings     SettingsSource
	systemPrompt string
	defaultModel string
	modelTimeout time.Duration
	pool         *ants.Pool
	ownPool      bool
	sequential   bool
	tracer       trace.Tracer
}

// New creates a Driver.
func New(configs config.Provider, newModel ProviderFactory, catalog *tool.Catalog, dispatcher Dispatcher, opts ...Option) *Driver {
	d := &Driver{
		configs:      configs,
		newModel:     newModel,
		catalog:      catalog,
		dispatcher:   dispatcher,
		systemPrompt: config.ServerDefaults().Agent.SystemPrompt,
		defaultModel: config.DefaultChatModel,
		modelTimeout: defaultModelTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.pool == nil && !d.sequential {
		pool, err := ants.NewPool(defaultPoolSize)
		if err != nil {
			log.Warnf("[agent] dispatch pool unavailable, falling back to sequential dispatch: %v", err)
			d.sequential = true
		} else {
			d.pool, d.ownPool = pool, true
		}
	}
	if d.tracer == nil {
		d.tracer = otel.Tracer("flowdesk/agent")
	}
	return d
}

// Close releases the dispatch pool if the Driver created it.
func (d *Driver) Close() {
	if d.ownPool && d.pool != nil {
		d.pool.Release()
	}
}

// model picks the chat model: the text-chat model when enabled in
// settings, then the configured model, then the default. Realtime models
// are not served over chat completions and are skipped.
func (d *Driver) model(ctx context.Context, cfg *config.Assistant) string {
	if d.settings != nil {
		s, ok, err := d.settings.LoadSettings(ctx)
		if err != nil {
			log.Warnf("[agent] load settings: %v", err)
		} else if ok && s.EnableTextChat && s.TextChatModel != "" {
			return s.TextChatModel
		}
	}
	if cfg.Model != "" && !strings.Contains(cfg.Model, "realtime") {
		return cfg.Model
	}
	return d.defaultModel
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
