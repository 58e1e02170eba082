package server

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"time"

	"flowdesk/internal/config"
	"flowdesk/internal/dispatch"
	"flowdesk/internal/llm"
	"flowdesk/internal/log"
	"flowdesk/internal/security"
)

type statusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// configView is the stored configuration with the key masked.
type configView struct {
	APIKey      string                `json:"openaiKey"`
	Model       string                `json:"openaiModel"`
	Voice       string                `json:"voice"`
	FetchURL    string                `json:"fetchUrl"`
	ActionURL   string                `json:"actionUrl"`
	ManageURL   string                `json:"manageUrl"`
	LastUpdated time.Time             `json:"lastUpdated"`
	History     []config.HistoryEntry `json:"configHistory"`
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.configs.Load(r.Context())
	if err != nil {
		s.writeConfigError(w, err)
		return
	}
	history := cfg.History
	if history == nil {
		history = []config.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, configView{
		APIKey:      security.MaskKey(cfg.APIKey),
		Model:       cfg.Model,
		Voice:       cfg.Voice,
		FetchURL:    cfg.FetchURL,
		ActionURL:   cfg.ActionURL,
		ManageURL:   cfg.ManageURL,
		LastUpdated: cfg.LastUpdated,
		History:     history,
	})
}

func (s *Server) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	var in config.AssistantInput
	if err := decode(w, r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Message: "request body must be a JSON object"})
		return
	}
	// the setup form echoes the masked key when it is left unchanged
	if existing, err := s.configs.Load(r.Context()); err == nil && in.APIKey == security.MaskKey(existing.APIKey) {
		in.APIKey = existing.APIKey
	}

	err := s.configs.Save(r.Context(), in)
	if errors.Is(err, config.ErrMissingFields) {
		writeJSON(w, http.StatusBadRequest, statusResponse{Message: "Missing required fields"})
		return
	}
	if err != nil {
		log.Errorf("[server] save config: %v", err)
		writeJSON(w, http.StatusInternalServerError, statusResponse{Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Success: true, Message: "Configuration saved successfully"})
}

type configStatus struct {
	Exists        bool `json:"exists"`
	SetupComplete bool `json:"setupComplete"`
}

func (s *Server) handleConfigStatus(w http.ResponseWriter, r *http.Request) {
	exists, complete, err := s.configs.Status(r.Context())
	if err != nil {
		log.Errorf("[server] config status: %v", err)
		writeError(w, http.StatusInternalServerError, codeInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, configStatus{Exists: exists, SetupComplete: complete})
}

func (s *Server) handleResetConfig(w http.ResponseWriter, r *http.Request) {
	if err := s.configs.Reset(r.Context()); err != nil {
		log.Errorf("[server] reset config: %v", err)
		writeJSON(w, http.StatusInternalServerError, statusResponse{Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Success: true, Message: "Configuration reset successfully"})
}

// writeConfigError maps store errors: nothing saved yet is 404, anything
// else is 500.
func (s *Server) writeConfigError(w http.ResponseWriter, err error) {
	if errors.Is(err, config.ErrNotConfigured) {
		writeError(w, http.StatusNotFound, codeNotConfigured, "Configuration not found")
		return
	}
	log.Errorf("[server] load config: %v", err)
	writeError(w, http.StatusInternalServerError, codeInternal, err.Error())
}

type testRequest struct {
	APIKey    string `json:"openaiKey"`
	Model     string `json:"openaiModel"`
	FetchURL  string `json:"fetchUrl"`
	ActionURL string `json:"actionUrl"`
	ManageURL string `json:"manageUrl"`
}

type testReport struct {
	OpenAI llm.ProbeResult `json:"openai"`
	dispatch.ProbeReport
	AllSuccess bool `json:"allSuccess"`
}

// handleTestConfig probes the submitted, not yet saved, configuration.
func (s *Server) handleTestConfig(w http.ResponseWriter, r *http.Request) {
	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mt != "application/json" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Expected JSON request but got "+r.Header.Get("Content-Type"))
		return
	}
	var req testRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "request body must be a JSON object")
		return
	}

	var report testReport
	done := make(chan struct{})
	go func() {
		defer close(done)
		report.OpenAI = s.probeModel(r.Context(), req.APIKey, req.Model)
	}()
	report.ProbeReport = s.prober.ProbeAll(r.Context(), dispatch.Endpoints{
		Fetch:  req.FetchURL,
		Action: req.ActionURL,
		Manage: req.ManageURL,
	})
	<-done
	report.AllSuccess = report.OpenAI.Success && report.ProbeReport.OK()

	log.Infof("[server] config test: openai=%t flows=%t", report.OpenAI.Success, report.ProbeReport.OK())
	writeJSON(w, http.StatusOK, report)
}

// openAIProbe checks the key against the OpenAI API.
func openAIProbe(ctx context.Context, key, model string) llm.ProbeResult {
	if key == "" || model == "" {
		return llm.ProbeResult{Message: "OpenAI error: API key and model are required"}
	}
	ctx, cancel := context.WithTimeout(ctx, dispatch.ProbeTimeout)
	defer cancel()
	return llm.NewOpenAIProvider(llm.OpenAIConfig{APIKey: key, Model: model}).Probe(ctx, model)
}

// settingsView marks whether settings were saved; defaults are reported as
// not existing.
type settingsView struct {
	Exists bool `json:"exists"`
	*config.Settings
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, ok, err := s.configs.LoadSettings(r.Context())
	if err != nil {
		log.Errorf("[server] load settings: %v", err)
		writeError(w, http.StatusInternalServerError, codeInternal, err.Error())
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, settingsView{})
		return
	}
	writeJSON(w, http.StatusOK, settingsView{Exists: true, Settings: &settings})
}

type saveSettingsResponse struct {
	statusResponse
	Settings config.Settings `json:"settings"`
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var in config.SettingsInput
	if err := decode(w, r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Message: "request body must be a JSON object"})
		return
	}
	saved, err := s.configs.SaveSettings(r.Context(), in)
	if err != nil {
		log.Errorf("[server] save settings: %v", err)
		writeJSON(w, http.StatusInternalServerError, statusResponse{Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, saveSettingsResponse{
		statusResponse: statusResponse{Success: true, Message: "Settings saved successfully"},
		Settings:       saved,
	})
}

func (s *Server) handleResetSettings(w http.ResponseWriter, r *http.Request) {
	if err := s.configs.ResetSettings(r.Context()); err != nil {
		log.Errorf("[server] reset settings: %v", err)
		writeJSON(w, http.StatusInternalServerError, statusResponse{Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Success: true, Message: "Settings reset to defaults"})
}

func (s *Server) handleRealtimeToken(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "private, no-cache, no-store, must-revalidate")
	if s.issuer == nil {
		writeError(w, http.StatusServiceUnavailable, codeUnavailable, "realtime sessions are disabled")
		return
	}
	token, err := s.issuer.Issue(r.Context())
	if err != nil {
		if errors.Is(err, config.ErrNotConfigured) {
			writeError(w, http.StatusNotFound, codeNotConfigured, "Configuration not found. Please complete setup first.")
			return
		}
		log.Errorf("[server] realtime token: %v", err)
		writeError(w, http.StatusInternalServerError, codeInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, token)
}
