package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"flowdesk/internal/dispatch"
	"flowdesk/internal/eventbus"
	"flowdesk/internal/llm"
	"flowdesk/internal/log"
	"flowdesk/internal/tool"
)

// toolError is the payload fed back to the model when a tool call fails.
type toolError struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

// CallTool runs a single tool call outside a chat conversation, as relayed
// from a realtime voice session. Tool failures come back in the payload the
// same way they are fed to the model; only configuration errors are
// returned.
func (d *Driver) CallTool(ctx context.Context, convID, callID, name string, arguments json.RawMessage) (json.RawMessage, error) {
	cfg, err := d.configs.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	tc := llm.ToolCall{ID: callID, Name: name, Arguments: arguments}
	msg := d.resolve(context.WithoutCancel(ctx), convID, 0, tc, dispatch.EndpointsFrom(cfg))
	return json.RawMessage(msg.Content), nil
}

// dispatchTurn resolves every tool call of one assistant turn and returns
// one tool message per call, in emitted order. Calls run on a context that
// ignores caller cancellation so side effects already started are allowed
// to finish; the dispatcher applies its own timeout.
func (d *Driver) dispatchTurn(ctx context.Context, convID string, iteration int, calls []llm.ToolCall, ep dispatch.Endpoints) []llm.Message {
	dctx := context.WithoutCancel(ctx)
	results := make([]llm.Message, len(calls))

	if d.sequential || len(calls) == 1 {
		for i, tc := range calls {
			results[i] = d.resolve(dctx, convID, iteration, tc, ep)
		}
		return results
	}

	var wg sync.WaitGroup
	for i, tc := range calls {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			results[i] = d.resolve(dctx, convID, iteration, tc, ep)
		}
		if err := d.pool.Submit(task); err != nil {
			log.Warnf("[agent] dispatch pool rejected %s, running inline: %v", tc.Name, err)
			task()
		}
	}
	wg.Wait()
	return results
}

// resolve parses and dispatches one tool call. It always returns a tool
// message correlated to tc.ID.
func (d *Driver) resolve(ctx context.Context, convID string, iteration int, tc llm.ToolCall, ep dispatch.Endpoints) llm.Message {
	ctx, span := d.tracer.Start(ctx, "tool.dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("tool.name", tc.Name),
		attribute.String("tool.call_id", tc.ID),
	)

	fields := eventbus.Fields{
		"conversation_id": convID,
		"iteration":       iteration,
		"tool":            tc.Name,
		"call_id":         tc.ID,
	}
	failed := func(kind string, err error) llm.Message {
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		fields["kind"] = kind
		fields["error"] = err.Error()
		var se *dispatch.StatusError
		if errors.As(err, &se) {
			fields["status"] = se.StatusCode
		}
		if kind == "unknown_tool" {
			log.Errorf("[agent] model requested unknown tool %q", tc.Name)
		} else {
			log.Warnf("[agent] tool %s failed (%s): %v", tc.Name, kind, err)
		}
		d.bus.Publish(eventbus.TopicToolFailed, fields)
		return toolMessage(tc.ID, toolError{Error: true, Message: err.Error()})
	}

	parsed := tool.ParseArguments(tc.Arguments)
	if !parsed.OK() {
		return failed("parse", parsed.Err)
	}

	start := time.Now()
	out, err := d.dispatcher.Dispatch(ctx, tc.Name, parsed.Args, ep)
	fields["duration_ms"] = time.Since(start).Milliseconds()
	if err != nil {
		return failed(failureKind(err), err)
	}

	d.bus.Publish(eventbus.TopicToolDispatched, fields)
	return llm.ToolResult(tc.ID, out)
}

func failureKind(err error) string {
	var se *dispatch.StatusError
	switch {
	case errors.Is(err, dispatch.ErrUnknownTool):
		return "unknown_tool"
	case dispatch.IsTimeout(err):
		return "timeout"
	case errors.As(err, &se):
		return "status"
	default:
		return "transport"
	}
}

func toolMessage(callID string, payload toolError) llm.Message {
	data, _ := json.Marshal(payload)
	return llm.ToolResult(callID, data)
}
