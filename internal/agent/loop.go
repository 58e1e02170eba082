package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"flowdesk/internal/dispatch"
	"flowdesk/internal/eventbus"
	"flowdesk/internal/llm"
	"flowdesk/internal/log"
	"flowdesk/internal/memory"
)

// Run drives one request to completion. Configuration and model failures
// are returned as errors; tool failures are fed back to the model and
// exhaustion is a normal Result.
func (d *Driver) Run(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}
	convID := req.ConversationID
	if convID == "" {
		convID = uuid.NewString()
	}

	ctx, span := d.tracer.Start(ctx, "conversation")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", convID))

	cfg, err := d.configs.Load(ctx)
	if err != nil {
		err = fmt.Errorf("load configuration: %w", err)
		d.fail(span, convID, "config", err)
		return nil, err
	}
	provider, err := d.newModel(cfg)
	if err != nil {
		err = fmt.Errorf("create model provider: %w", err)
		d.fail(span, convID, "config", err)
		return nil, err
	}
	endpoints := dispatch.EndpointsFrom(cfg)
	model := d.model(ctx, cfg)
	tools := d.catalog.Definitions()

	log.Infof("[agent] conversation %s: %s", convID, truncate(req.Message, 100))

	transcript := []llm.Message{
		llm.SystemMessage(d.systemPrompt),
		llm.UserMessage(req.Message),
	}

	for iteration := 0; ; {
		if iteration == MaxIterations {
			log.Warnf("[agent] conversation %s: iteration limit %d reached", convID, MaxIterations)
			d.bus.Publish(eventbus.TopicIterationExhausted, eventbus.Fields{
				"conversation_id": convID,
				"iterations":      iteration,
			})
			return d.finish(ctx, convID, transcript, ExhaustedReply, true, iteration), nil
		}
		if err := ctx.Err(); err != nil {
			d.fail(span, convID, "cancelled", err)
			return nil, err
		}

		resp, err := d.chat(ctx, provider, convID, iteration+1, &llm.ChatRequest{
			Model:    model,
			Messages: transcript,
			Tools:    tools,
		})
		iteration++
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				d.fail(span, convID, "cancelled", ctxErr)
				return nil, ctxErr
			}
			merr := &ModelError{Iteration: iteration, Err: err}
			d.fail(span, convID, "model", merr)
			return nil, merr
		}

		transcript = append(transcript, llm.AssistantMessage(resp))
		if resp.Final() {
			return d.finish(ctx, convID, transcript, resp.Content, false, iteration), nil
		}
		if err := ctx.Err(); err != nil {
			d.fail(span, convID, "cancelled", err)
			return nil, err
		}

		results := d.dispatchTurn(ctx, convID, iteration, resp.ToolCalls, endpoints)
		if err := ctx.Err(); err != nil {
			log.Warnf("[agent] conversation %s cancelled; discarding %d tool results", convID, len(results))
			d.fail(span, convID, "cancelled", err)
			return nil, err
		}
		transcript = append(transcript, results...)
	}
}

func (d *Driver) chat(ctx context.Context, provider llm.Provider, convID string, iteration int, req *llm.ChatRequest) (*llm.LLMResponse, error) {
	ctx, span := d.tracer.Start(ctx, "llm.chat")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", provider.Name()),
		attribute.String("llm.model", req.Model),
		attribute.Int("conversation.iteration", iteration),
	)

	d.bus.Publish(eventbus.TopicLLMRequest, eventbus.Fields{
		"conversation_id": convID,
		"iteration":       iteration,
		"model":           req.Model,
		"messages":        len(req.Messages),
	})

	ctx, cancel := context.WithTimeout(ctx, d.modelTimeout)
	defer cancel()
	resp, err := provider.Chat(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	d.bus.Publish(eventbus.TopicLLMResponse, eventbus.Fields{
		"conversation_id": convID,
		"iteration":       iteration,
		"tool_calls":      len(resp.ToolCalls),
		"stop_reason":     resp.StopReason,
		"input_tokens":    resp.Usage.InputTokens,
		"output_tokens":   resp.Usage.OutputTokens,
	})
	return resp, nil
}

func (d *Driver) finish(ctx context.Context, convID string, transcript []llm.Message, reply string, exhausted bool, iterations int) *Result {
	d.bus.Publish(eventbus.TopicConversationDone, eventbus.Fields{
		"conversation_id": convID,
		"iterations":      iterations,
		"exhausted":       exhausted,
	})
	log.Infof("[agent] conversation %s done after %d iteration(s)", convID, iterations)

	if d.transcripts != nil {
		run := memory.Run{Reply: reply, Exhausted: exhausted, Iterations: iterations, Messages: transcript}
		if err := d.transcripts.Save(context.WithoutCancel(ctx), convID, run); err != nil {
			log.Warnf("[agent] archive transcript %s: %v", convID, err)
		}
	}

	return &Result{
		ConversationID: convID,
		Reply:          reply,
		Exhausted:      exhausted,
		Iterations:     iterations,
		Transcript:     transcript,
	}
}

func (d *Driver) fail(span trace.Span, convID, stage string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, stage)
	log.Errorf("[agent] conversation %s failed (%s): %v", convID, stage, err)
	d.bus.Publish(eventbus.TopicError, eventbus.Fields{
		"conversation_id": convID,
		"stage":           stage,
		"error":           err.Error(),
	})
}
