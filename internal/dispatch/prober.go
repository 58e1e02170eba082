package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"flowdesk/internal/log"
)

// ProbeTimeout bounds each probe request.
const ProbeTimeout = 8 * time.Second

// ProbeResult is the outcome of probing one flow.
type ProbeResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ProbeReport holds the outcome for all three flows.
type ProbeReport struct {
	Fetch  ProbeResult `json:"fetchFlow"`
	Action ProbeResult `json:"actionFlow"`
	Manage ProbeResult `json:"manageFlow"`
}

// OK reports whether every flow probe succeeded.
func (r ProbeReport) OK() bool {
	return r.Fetch.Success && r.Action.Success && r.Manage.Success
}

// Probe bodies are harmless: a test query, the no-op action and an update
// of item "0" with an empty patch.
var (
	fetchProbe  = map[string]any{"query": "test"}
	actionProbe = map[string]any{
		"flow_type":       99,
		"description":     "Test connection",
		"client_name":     "Test",
		"client_email":    "test@example.com",
		"email_source":    "test",
		"email_subject":   "Test",
		"email_body":      "Test",
		"body_event":      " ",
		"start_time":      "",
		"end_time":        "",
		"conversation_id": "",
		"message_id":      "",
		"source":          "Setup-Test",
		"sharepoint_id":   0,
	}
	manageProbe = map[string]any{
		"flow_type":                       4,
		"sharepoint_id":                   "0",
		"send_http_request_to_sharepoint": "",
	}
)

// Prober checks that configured flows answer with JSON.
type Prober struct {
	client  *http.Client
	timeout time.Duration
}

// NewProber creates a prober. A nil client uses http.DefaultClient.
func NewProber(client *http.Client) *Prober {
	if client == nil {
		client = http.DefaultClient
	}
	return &Prober{client: client, timeout: ProbeTimeout}
}

// ProbeAll probes the three flows concurrently.
func (p *Prober) ProbeAll(ctx context.Context, ep Endpoints) ProbeReport {
	var (
		report ProbeReport
		wg     sync.WaitGroup
	)
	run := func(dst *ProbeResult, label, url string, body any) {
		defer wg.Done()
		*dst = p.probe(ctx, label, url, body)
	}
	wg.Add(3)
	go run(&report.Fetch, "Fetch Flow", ep.Fetch, fetchProbe)
	go run(&report.Action, "Action Flow", ep.Action, actionProbe)
	go run(&report.Manage, "Manage Flow", ep.Manage, manageProbe)
	wg.Wait()
	return report
}

func (p *Prober) probe(ctx context.Context, label, url string, body any) ProbeResult {
	if url == "" {
		return ProbeResult{Message: label + ": URL not configured"}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return ProbeResult{Message: fmt.Sprintf("%s: %v", label, err)}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return ProbeResult{Message: fmt.Sprintf("%s (%s) error: %v", label, url, err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return ProbeResult{Message: fmt.Sprintf("%s (%s) error: request timed out after %s", label, url, p.timeout)}
		}
		return ProbeResult{Message: fmt.Sprintf("%s (%s) error: %v", label, url, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ProbeResult{Message: fmt.Sprintf("%s (%s) returned status %d", label, url, resp.StatusCode)}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return ProbeResult{Message: fmt.Sprintf("%s (%s) error: %v", label, url, err)}
	}
	contentType := resp.Header.Get("Content-Type")
	log.Debugf("[dispatch] probe %s status=%d content-type=%q", label, resp.StatusCode, contentType)

	text := string(data)
	switch {
	case strings.TrimSpace(text) == "":
		return ProbeResult{Message: fmt.Sprintf("%s (%s): returned empty response", label, url)}
	case !strings.Contains(contentType, "application/json"):
		if contentType == "" {
			contentType = "unknown content type"
		}
		return ProbeResult{Message: fmt.Sprintf("%s (%s): expected JSON but got %s. Response: %s", label, url, contentType, head(text, 200))}
	case !json.Valid(data):
		return ProbeResult{Message: fmt.Sprintf("%s (%s): invalid JSON. Response: %s", label, url, head(text, 200))}
	}
	return ProbeResult{Success: true, Message: fmt.Sprintf("%s responded with status %d", label, resp.StatusCode)}
}

func head(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
