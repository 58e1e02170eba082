package memory

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowdesk/internal/llm"
	"flowdesk/internal/store"
)

func newTestTranscripts(t *testing.T) *SQLiteTranscripts {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	mem, err := NewSQLiteTranscripts(context.Background(), db)
	require.NoError(t, err)
	return mem
}

func TestSaveAndGetTranscript(t *testing.T) {
	mem := newTestTranscripts(t)
	ctx := context.Background()

	run := Run{
		Reply:      "Jane has one conversation awaiting response.",
		Iterations: 2,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "sys"},
			{Role: llm.RoleUser, Content: "What is awaiting?"},
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
				{ID: "call_1", Name: "fetchSharePointData", Arguments: json.RawMessage(`{"query":"awaiting"}`)},
			}},
			{Role: llm.RoleTool, ToolCallID: "call_1", Content: `"1|Jane|awaiting"`},
			{Role: llm.RoleAssistant, Content: "Jane has one conversation awaiting response."},
		},
	}
	require.NoError(t, mem.Save(ctx, "conv-1", run))

	got, err := mem.Get(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Runs)
	assert.Equal(t, 2, got.Iterations)
	assert.Equal(t, run.Reply, got.LastReply)
	require.Len(t, got.Messages, 5)
	assert.Equal(t, "call_1", got.Messages[3].ToolCallID)
	require.Len(t, got.Messages[2].ToolCalls, 1)
	assert.Equal(t, "fetchSharePointData", got.Messages[2].ToolCalls[0].Name)
	assert.JSONEq(t, `{"query":"awaiting"}`, string(got.Messages[2].ToolCalls[0].Arguments))
}

func TestSaveAppendsRuns(t *testing.T) {
	mem := newTestTranscripts(t)
	ctx := context.Background()

	require.NoError(t, mem.Save(ctx, "conv-2", Run{Reply: "one", Messages: []llm.Message{{Role: llm.RoleUser, Content: "a"}}}))
	require.NoError(t, mem.Save(ctx, "conv-2", Run{Reply: "two", Exhausted: true, Iterations: 10, Messages: []llm.Message{{Role: llm.RoleUser, Content: "b"}}}))

	got, err := mem.Get(ctx, "conv-2")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Runs)
	assert.Equal(t, "two", got.LastReply)
	assert.True(t, got.Exhausted)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "b", got.Messages[1].Content)
}

func TestGetUnknownConversation(t *testing.T) {
	mem := newTestTranscripts(t)
	_, err := mem.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSaveKeepsMalformedToolArguments(t *testing.T) {
	mem := newTestTranscripts(t)
	ctx := context.Background()

	run := Run{
		Reply:      "I could not read that request.",
		Iterations: 2,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "What is awaiting?"},
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
				{ID: "call_bad", Name: "fetchSharePointData", Arguments: json.RawMessage(`{"query":`)},
			}},
			{Role: llm.RoleTool, ToolCallID: "call_bad", Content: `{"error":true,"message":"invalid arguments"}`},
		},
	}
	require.NoError(t, mem.Save(ctx, "conv-bad", run))

	got, err := mem.Get(ctx, "conv-bad")
	require.NoError(t, err)
	require.Len(t, got.Messages, 3)
	require.Len(t, got.Messages[1].ToolCalls, 1)
	assert.Equal(t, `{"query":`, string(got.Messages[1].ToolCalls[0].Arguments))

	encoded, err := json.Marshal(got)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"arguments":"{\"query\":"`)
}

func TestGetReadsObjectArguments(t *testing.T) {
	mem := newTestTranscripts(t)
	ctx := context.Background()
	require.NoError(t, mem.Save(ctx, "conv-old", Run{Messages: []llm.Message{{Role: llm.RoleUser, Content: "a"}}}))
	_, err := mem.db.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, role, content, tool_calls) VALUES (?, ?, ?, ?)`,
		"conv-old", llm.RoleAssistant, "", `[{"id":"c1","name":"fetchSharePointData","arguments":{"query":"x"}}]`)
	require.NoError(t, err)

	got, err := mem.Get(ctx, "conv-old")
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.JSONEq(t, `{"query":"x"}`, string(got.Messages[1].ToolCalls[0].Arguments))
}

func TestGetReportsCorruptToolCalls(t *testing.T) {
	mem := newTestTranscripts(t)
	ctx := context.Background()
	require.NoError(t, mem.Save(ctx, "conv-corrupt", Run{Messages: []llm.Message{{Role: llm.RoleUser, Content: "a"}}}))
	_, err := mem.db.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, role, content, tool_calls) VALUES (?, ?, ?, ?)`,
		"conv-corrupt", llm.RoleAssistant, "", `not json`)
	require.NoError(t, err)

	_, err = mem.Get(ctx, "conv-corrupt")
	assert.ErrorContains(t, err, "decode tool calls")
}
