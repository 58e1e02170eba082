package eventbus

import "time"

// Topic represents an event topic.
type Topic string

const (
	TopicInboundMessage     Topic = "inbound_message"
	TopicOutboundMessage    Topic = "outbound_message"
	TopicLLMRequest         Topic = "llm_request"
	TopicLLMResponse        Topic = "llm_response"
	TopicToolDispatched     Topic = "tool_dispatched"
	TopicToolFailed         Topic = "tool_failed"
	TopicIterationExhausted Topic = "iteration_exhausted"
	TopicConversationDone   Topic = "conversation_done"
	TopicError              Topic = "error"
)

// ConversationTopics are the topics published by a conversation run.
var ConversationTopics = []Topic{
	TopicLLMRequest,
	TopicLLMResponse,
	TopicToolDispatched,
	TopicToolFailed,
	TopicIterationExhausted,
	TopicConversationDone,
	TopicError,
}

// Fields is the payload used by conversation events.
type Fields map[string]any

// Event is a message passed through the event bus.
type Event struct {
	Topic     Topic
	Payload   any
	Timestamp time.Time
}

// Handler processes an event.
type Handler func(Event)
