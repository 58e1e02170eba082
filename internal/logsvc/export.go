package logsvc

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// Summary counts the notable events in an export.
type Summary struct {
	TotalLogs           int      `json:"totalLogs"`
	HasSessionUpdated   bool     `json:"hasSessionUpdated"`
	ToolCount           int64    `json:"toolCount"`
	ToolNames           []string `json:"toolNames"`
	FunctionCallCount   int      `json:"functionCallCount"`
	UserTranscriptCount int      `json:"userTranscriptCount"`
	WarningCount        int      `json:"warningCount"`
	ResponseCycleCount  int      `json:"responseCycleCount"`
}

// Export is the full diagnostic dump, entries oldest first.
type Export struct {
	Summary         Summary `json:"summary"`
	SessionUpdated  *Entry  `json:"sessionUpdated"`
	FunctionCalls   []Entry `json:"functionCalls"`
	UserTranscripts []Entry `json:"userTranscripts"`
	Warnings        []Entry `json:"warnings"`
	ResponseCycles  []Entry `json:"responseCycles"`
	AllLogs         []Entry `json:"allLogs"`
}

// Export groups the held entries for troubleshooting a voice session.
func (s *Service) Export() Export {
	all := s.snapshot()
	ex := Export{
		FunctionCalls:   []Entry{},
		UserTranscripts: []Entry{},
		Warnings:        []Entry{},
		ResponseCycles:  []Entry{},
		AllLogs:         all,
	}

	for i := range all {
		e := all[i]
		msg := e.Message
		if ex.SessionUpdated == nil && strings.Contains(msg, "Session updated confirmed") {
			ex.SessionUpdated = &all[i]
		}
		if strings.Contains(msg, "Processing function call") ||
			strings.Contains(msg, "Function call") ||
			strings.Contains(msg, "function_call") {
			ex.FunctionCalls = append(ex.FunctionCalls, e)
		}
		if strings.Contains(msg, "User transcript complete") {
			ex.UserTranscripts = append(ex.UserTranscripts, e)
		}
		if e.Level == LevelWarn || strings.Contains(msg, "NO function call") {
			ex.Warnings = append(ex.Warnings, e)
		}
		if strings.Contains(msg, "Response cycle complete") {
			ex.ResponseCycles = append(ex.ResponseCycles, e)
		}
	}

	ex.Summary = Summary{
		TotalLogs:           len(all),
		HasSessionUpdated:   ex.SessionUpdated != nil,
		ToolNames:           []string{},
		FunctionCallCount:   len(ex.FunctionCalls),
		UserTranscriptCount: len(ex.UserTranscripts),
		WarningCount:        len(ex.Warnings),
		ResponseCycleCount:  len(ex.ResponseCycles),
	}
	if ex.SessionUpdated != nil {
		raw, err := json.Marshal(ex.SessionUpdated.Data)
		if err == nil {
			ex.Summary.ToolCount = gjson.GetBytes(raw, "toolCount").Int()
			for _, name := range gjson.GetBytes(raw, "toolNames").Array() {
				ex.Summary.ToolNames = append(ex.Summary.ToolNames, name.String())
			}
		}
	}
	return ex
}
