package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"flowdesk/internal/agent"
	"flowdesk/internal/config"
	"flowdesk/internal/log"
	"flowdesk/internal/store"
)

type assistantRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type assistantResponse struct {
	Reply          string `json:"assistant_reply"`
	ConversationID string `json:"conversation_id"`
	Exhausted      bool   `json:"exhausted,omitempty"`
}

func (s *Server) handleAssistant(w http.ResponseWriter, r *http.Request) {
	var req assistantRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "request body must be a JSON object")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Message is required")
		return
	}

	res, err := s.conv.Run(r.Context(), agent.Request{
		Message:        req.Message,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		s.writeRunError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assistantResponse{
		Reply:          res.Reply,
		ConversationID: res.ConversationID,
		Exhausted:      res.Exhausted,
	})
}

// writeRunError maps conversation failures to status codes.
func (s *Server) writeRunError(w http.ResponseWriter, err error) {
	var me *agent.ModelError
	switch {
	case errors.Is(err, agent.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
	case errors.Is(err, config.ErrNotConfigured):
		writeError(w, http.StatusNotFound, codeNotConfigured, err.Error())
	case errors.As(err, &me):
		log.Errorf("[server] model unavailable: %v", err)
		writeError(w, http.StatusBadGateway, codeModelUnavailable, me.Err.Error())
	default:
		log.Errorf("[server] assistant error: %v", err)
		writeError(w, http.StatusInternalServerError, codeInternal, err.Error())
	}
}

type toolCallRequest struct {
	Name           string          `json:"name"`
	Arguments      json.RawMessage `json:"arguments"`
	CallID         string          `json:"call_id,omitempty"`
	ConversationID string          `json:"conversation_id,omitempty"`
}

type toolCallResponse struct {
	CallID string          `json:"call_id"`
	Output json.RawMessage `json:"output"`
}

// handleToolCall runs a function call emitted by a realtime voice session.
// The browser never sees the flow URLs; it posts the call here and forwards
// the output back to the session.
func (s *Server) handleToolCall(w http.ResponseWriter, r *http.Request) {
	var req toolCallRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "request body must be a JSON object")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "name is required")
		return
	}
	if req.CallID == "" {
		req.CallID = uuid.NewString()
	}
	if req.ConversationID == "" {
		req.ConversationID = "realtime"
	}

	out, err := s.conv.CallTool(r.Context(), req.ConversationID, req.CallID, req.Name, toolArguments(req.Arguments))
	if err != nil {
		s.writeRunError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toolCallResponse{CallID: req.CallID, Output: out})
}

// toolArguments accepts the arguments either as the JSON-encoded string a
// realtime session emits or as an object.
func toolArguments(raw json.RawMessage) json.RawMessage {
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		return json.RawMessage(encoded)
	}
	return raw
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	if s.transcripts == nil {
		writeError(w, http.StatusServiceUnavailable, codeUnavailable, "conversation archive is disabled")
		return
	}
	id := mux.Vars(r)["id"]
	t, err := s.transcripts.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, codeNotFound, "conversation not found")
		return
	}
	if err != nil {
		log.Errorf("[server] read transcript %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, codeInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, t)
}
