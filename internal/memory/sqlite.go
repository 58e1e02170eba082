package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"flowdesk/internal/llm"
	"flowdesk/internal/store"
)

// SQLiteTranscripts implements Transcripts using SQLite.
type SQLiteTranscripts struct {
	db *sql.DB
}

// NewSQLiteTranscripts creates the transcript tables in db if needed.
func NewSQLiteTranscripts(ctx context.Context, db *sql.DB) (*SQLiteTranscripts, error) {
	if err := store.Migrate(ctx, db, migrations); err != nil {
		return nil, err
	}
	return &SQLiteTranscripts{db: db}, nil
}

// Save appends the run's messages and updates the conversation summary in
// one transaction.
func (m *SQLiteTranscripts) Save(ctx context.Context, conversationID string, run Run) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, msg := range run.Messages {
		var toolCallsJSON *string
		if len(msg.ToolCalls) > 0 {
			data, err := encodeToolCalls(msg.ToolCalls)
			if err != nil {
				return fmt.Errorf("encode tool calls: %w", err)
			}
			s := string(data)
			toolCallsJSON = &s
		}

		var toolCallID *string
		if msg.ToolCallID != "" {
			toolCallID = &msg.ToolCallID
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (conversation_id, role, content, tool_calls, tool_call_id) VALUES (?, ?, ?, ?, ?)`,
			conversationID, msg.Role, msg.Content, toolCallsJSON, toolCallID,
		); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (id, runs, last_reply, exhausted, iterations, updated_at)
		 VALUES (?, 1, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			runs = runs + 1,
			last_reply = excluded.last_reply,
			exhausted = excluded.exhausted,
			iterations = excluded.iterations,
			updated_at = excluded.updated_at`,
		conversationID, run.Reply, run.Exhausted, run.Iterations, time.Now().UTC(),
	); err != nil {
		return err
	}
	return tx.Commit()
}

// Get returns the transcript or store.ErrNotFound.
func (m *SQLiteTranscripts) Get(ctx context.Context, conversationID string) (*Transcript, error) {
	t := &Transcript{ConversationID: conversationID, Messages: []llm.Message{}}
	err := m.db.QueryRowContext(ctx,
		`SELECT runs, last_reply, exhausted, iterations, updated_at FROM conversations WHERE id = ?`,
		conversationID,
	).Scan(&t.Runs, &t.LastReply, &t.Exhausted, &t.Iterations, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := m.db.QueryContext(ctx,
		`SELECT role, content, tool_calls, tool_call_id FROM messages WHERE conversation_id = ? ORDER BY id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var msg llm.Message
		var toolCallsJSON, toolCallID sql.NullString

		if err := rows.Scan(&msg.Role, &msg.Content, &toolCallsJSON, &toolCallID); err != nil {
			return nil, err
		}

		if toolCallsJSON.Valid {
			calls, err := decodeToolCalls(toolCallsJSON.String)
			if err != nil {
				return nil, fmt.Errorf("decode tool calls of %s: %w", conversationID, err)
			}
			msg.ToolCalls = calls
		}
		if toolCallID.Valid {
			msg.ToolCallID = toolCallID.String
		}

		t.Messages = append(t.Messages, msg)
	}

	return t, rows.Err()
}

// storedCall keeps the model's argument text verbatim as a JSON string,
// since it is not guaranteed to be valid JSON.
type storedCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func encodeToolCalls(calls []llm.ToolCall) ([]byte, error) {
	stored := make([]storedCall, len(calls))
	for i, tc := range calls {
		args, err := json.Marshal(string(tc.Arguments))
		if err != nil {
			return nil, err
		}
		stored[i] = storedCall{ID: tc.ID, Name: tc.Name, Arguments: args}
	}
	return json.Marshal(stored)
}

// decodeToolCalls also accepts rows whose arguments were written as a raw
// JSON object.
func decodeToolCalls(data string) ([]llm.ToolCall, error) {
	var stored []storedCall
	if err := json.Unmarshal([]byte(data), &stored); err != nil {
		return nil, err
	}
	calls := make([]llm.ToolCall, len(stored))
	for i, sc := range stored {
		calls[i] = llm.ToolCall{ID: sc.ID, Name: sc.Name, Arguments: sc.Arguments}
		if len(sc.Arguments) > 0 && sc.Arguments[0] == '"' {
			var text string
			if err := json.Unmarshal(sc.Arguments, &text); err != nil {
				return nil, err
			}
			calls[i].Arguments = json.RawMessage(text)
		}
	}
	return calls, nil
}
