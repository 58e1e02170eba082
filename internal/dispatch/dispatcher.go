// Package dispatch sends tool invocations to the webhook serving their
// category.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"flowdesk/internal/config"
	"flowdesk/internal/log"
	"flowdesk/internal/tool"
)

// DefaultTimeout bounds a single webhook call.
const DefaultTimeout = 30 * time.Second

const (
	maxResponseBytes = 4 << 20
	maxSnippetBytes  = 512
)

// ErrUnknownTool is returned for a tool name the catalog does not contain.
var ErrUnknownTool = errors.New("unknown tool")

// Endpoints holds the webhook URL for each tool category.
type Endpoints struct {
	Fetch  string
	Action string
	Manage string
}

// EndpointsFrom reads the webhook URLs from the assistant configuration.
func EndpointsFrom(cfg *config.Assistant) Endpoints {
	return Endpoints{Fetch: cfg.FetchURL, Action: cfg.ActionURL, Manage: cfg.ManageURL}
}

// endpointFor maps every catalog category to its URL.
var endpointFor = map[tool.Category]func(Endpoints) string{
	tool.CategoryQuery:  func(e Endpoints) string { return e.Fetch },
	tool.CategoryAction: func(e Endpoints) string { return e.Action },
	tool.CategoryManage: func(e Endpoints) string { return e.Manage },
}

// StatusError is returned when a webhook answers with a non-2xx status.
type StatusError struct {
	Tool       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s: endpoint returned status %d", e.Tool, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// TransportError is returned when a webhook could not be reached or did not
// answer in time.
type TransportError struct {
	Tool    string
	Err     error
	Timeout bool
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: endpoint timed out: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Tool, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a dispatch timeout.
func IsTimeout(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Timeout
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient sets the client used for webhook calls.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithTimeout sets the per-call timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// Dispatcher posts tool arguments to webhooks. It holds no per-conversation
// state and is safe for concurrent use.
type Dispatcher struct {
	catalog *tool.Catalog
	client  *http.Client
	timeout time.Duration
}

// New creates a dispatcher for the tools in catalog.
func New(catalog *tool.Catalog, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		catalog: catalog,
		client:  http.DefaultClient,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch performs one POST for the named tool and returns the webhook's
// answer as JSON. Text that is not JSON is returned as a JSON string.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any, ep Endpoints) (json.RawMessage, error) {
	def, ok := d.catalog.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	url := endpointFor[def.Category](ep)
	if url == "" {
		return nil, &TransportError{Tool: name, Err: fmt.Errorf("%s endpoint not configured", def.Category)}
	}

	body, err := json.Marshal(requestBody(def.Category, args))
	if err != nil {
		return nil, fmt.Errorf("%s: encode arguments: %w", name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Tool: name, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	log.Debugf("[dispatch] %s -> %s category", name, def.Category)
	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, &TransportError{Tool: name, Err: err, Timeout: isTimeout(err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Tool: name, Err: fmt.Errorf("read response: %w", err), Timeout: isTimeout(err)}
	}
	log.Debugf("[dispatch] %s status=%d bytes=%d in %s", name, resp.StatusCode, len(data), time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Tool: name, StatusCode: resp.StatusCode, Body: snippet(data)}
	}
	return asJSON(data), nil
}

// requestBody shapes the POST payload. The query endpoint only takes the
// query string, and anything that is not a string is sent as ""; the others
// receive the arguments as given.
func requestBody(cat tool.Category, args map[string]any) any {
	if cat != tool.CategoryQuery {
		if args == nil {
			return map[string]any{}
		}
		return args
	}
	q, _ := args["query"].(string)
	return map[string]any{"query": q}
}

func asJSON(data []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	s, _ := json.Marshal(string(data))
	return s
}

func snippet(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > maxSnippetBytes {
		s = s[:maxSnippetBytes] + "..."
	}
	return s
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
