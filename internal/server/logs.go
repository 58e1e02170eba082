package server

import (
	"net/http"
	"strconv"

	"flowdesk/internal/logsvc"
)

type appendLogRequest struct {
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

type logsResponse struct {
	Logs  []logsvc.Entry `json:"logs"`
	Count int            `json:"count"`
}

func (s *Server) handleAppendLog(w http.ResponseWriter, r *http.Request) {
	var req appendLogRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "request body must be a JSON object")
		return
	}
	s.logs.Append(r.Context(), req.Level, req.Message, req.Data)
	writeJSON(w, http.StatusOK, statusResponse{Success: true})
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	logs := s.logs.List(limit, r.URL.Query().Get("level"))
	writeJSON(w, http.StatusOK, logsResponse{Logs: logs, Count: len(logs)})
}

func (s *Server) handleExportLogs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, s.logs.Export())
}

func (s *Server) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	if err := s.logs.Clear(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Success: true, Message: "Logs cleared"})
}
