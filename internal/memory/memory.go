// Package memory archives finished conversation transcripts for diagnostics.
package memory

import (
	"context"
	"time"

	"flowdesk/internal/llm"
)

// Transcript is the archived record of one conversation id. Repeated runs
// under the same id append their messages.
type Transcript struct {
	ConversationID string        `json:"conversation_id"`
	Messages       []llm.Message `json:"messages"`
	Runs           int           `json:"runs"`
	LastReply      string        `json:"last_reply"`
	Exhausted      bool          `json:"exhausted"`
	Iterations     int           `json:"iterations"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Run describes the outcome of one conversation run.
type Run struct {
	Reply      string
	Exhausted  bool
	Iterations int
	Messages   []llm.Message
}

// Transcripts is the interface for transcript storage.
type Transcripts interface {
	Save(ctx context.Context, conversationID string, run Run) error
	Get(ctx context.Context, conversationID string) (*Transcript, error)
}
