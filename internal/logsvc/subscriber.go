package logsvc

import (
	"context"

	"flowdesk/internal/eventbus"
)

// eventLines maps conversation topics to the level and message recorded for
// them. Messages reuse the phrases the export summary counts.
var eventLines = map[eventbus.Topic]struct{ level, message string }{
	eventbus.TopicLLMRequest:         {LevelDebug, "Model request"},
	eventbus.TopicLLMResponse:        {LevelInfo, "Response cycle complete"},
	eventbus.TopicToolDispatched:     {LevelInfo, "Processing function call"},
	eventbus.TopicToolFailed:         {LevelWarn, "Function call failed"},
	eventbus.TopicIterationExhausted: {LevelWarn, "Iteration limit reached"},
	eventbus.TopicConversationDone:   {LevelInfo, "Conversation complete"},
	eventbus.TopicError:              {LevelError, "Conversation error"},
}

// Subscribe records conversation events published on bus.
func (s *Service) Subscribe(bus *eventbus.Bus) {
	bus.Subscribe(s.record, eventbus.ConversationTopics...)
}

func (s *Service) record(e eventbus.Event) {
	line, ok := eventLines[e.Topic]
	if !ok {
		return
	}
	var data map[string]any
	switch p := e.Payload.(type) {
	case eventbus.Fields:
		data = make(map[string]any, len(p))
		for k, v := range p {
			data[k] = v
		}
	case map[string]any:
		data = p
	case nil:
	default:
		data = map[string]any{"payload": p}
	}
	msg := line.message
	if name, ok := data["tool"].(string); ok && name != "" {
		msg += ": " + name
	}
	s.Append(context.Background(), line.level, msg, data)
}
