// Package channel carries chat traffic between front-ends (Telegram, the
// local console) and the conversation driver. Every inbound message becomes
// one agent request; the reply goes back to the chat it came from.
package channel

import (
	"context"
	"time"

	"flowdesk/internal/agent"
)

type InboundMessage struct {
	ChannelName string
	SenderID    string
	SenderName  string
	// ChatID scopes the conversation; replies are addressed to it.
	ChatID    string
	Text      string
	Timestamp time.Time
}

type OutboundMessage struct {
	ChatID string
	Text   string
}

// Channel is a chat front-end. Implementations deliver messages to the
// handler registered with OnMessage and must tolerate Send being called
// from any goroutine.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg OutboundMessage) error
	OnMessage(handler func(InboundMessage))
	IsRunning() bool
}

// Conversations is the part of the driver channels need.
type Conversations interface {
	Run(ctx context.Context, req agent.Request) (*agent.Result, error)
}
