package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProbeAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch r.URL.Path {
		case "/fetch":
			if body["query"] != "test" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Write([]byte(`{"records":[]}`))
		case "/action":
			if body["flow_type"] != 99.0 || body["source"] != "Setup-Test" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html></html>"))
		case "/manage":
			w.Header().Set("Content-Type", "application/json")
		}
	}))
	defer srv.Close()

	report := NewProber(nil).ProbeAll(context.Background(), endpoints(srv.URL))

	assert.True(t, report.Fetch.Success, report.Fetch.Message)
	assert.False(t, report.Action.Success)
	assert.Contains(t, report.Action.Message, "expected JSON")
	assert.False(t, report.Manage.Success)
	assert.Contains(t, report.Manage.Message, "empty response")
	assert.False(t, report.OK())
}

func TestProbeAllBadStatusAndMissingURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	report := NewProber(srv.Client()).ProbeAll(context.Background(), Endpoints{Fetch: srv.URL + "/fetch"})
	assert.Contains(t, report.Fetch.Message, "returned status 404")
	assert.Contains(t, report.Action.Message, "not configured")
	assert.Contains(t, report.Manage.Message, "not configured")
}
