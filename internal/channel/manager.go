package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"flowdesk/internal/agent"
	"flowdesk/internal/config"
	"flowdesk/internal/eventbus"
	"flowdesk/internal/log"
)

const (
	replyNotConfigured = "The assistant is not set up yet. Please complete setup first."
	replyFailed        = "Sorry, I encountered an error processing your message. Please try again."
)

// Manager manages the lifecycle of all channels.
type Manager struct {
	mu       sync.RWMutex
	channels map[string]Channel
	bus      *eventbus.Bus
}

// NewManager creates a new channel manager. bus may be nil.
func NewManager(bus *eventbus.Bus) *Manager {
	return &Manager{
		channels: make(map[string]Channel),
		bus:      bus,
	}
}

// Register adds a channel to the manager.
func (m *Manager) Register(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Name()] = ch
}

// Route sends every inbound message of every registered channel through
// conv and replies on the same channel.
func (m *Manager) Route(ctx context.Context, conv Conversations) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range m.channels {
		ch.OnMessage(func(msg InboundMessage) {
			m.handle(ctx, ch, conv, msg)
		})
	}
}

// handle runs one message. Each chat keeps one conversation id so its
// transcripts are archived together.
func (m *Manager) handle(ctx context.Context, ch Channel, conv Conversations, msg InboundMessage) {
	m.bus.Publish(eventbus.TopicInboundMessage, msg)
	log.Infof("[channel] message from %s (%s)", msg.SenderName, msg.ChannelName)

	reply := replyFailed
	res, err := conv.Run(ctx, agent.Request{
		Message:        msg.Text,
		ConversationID: msg.ChannelName + "-" + msg.ChatID,
	})
	switch {
	case err == nil:
		reply = res.Reply
	case errors.Is(err, config.ErrNotConfigured):
		reply = replyNotConfigured
	default:
		log.Errorf("[channel] conversation failed: %v", err)
	}
	if reply == "" {
		return
	}

	out := OutboundMessage{ChatID: msg.ChatID, Text: reply}
	m.bus.Publish(eventbus.TopicOutboundMessage, out)
	if err := ch.Send(ctx, out); err != nil {
		log.Errorf("[channel] error sending response on %s: %v", ch.Name(), err)
	}
}

// StartAll starts all registered channels.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, ch := range m.channels {
		if err := ch.Start(ctx); err != nil {
			log.Errorf("[channel] failed to start %s: %v", name, err)
			return fmt.Errorf("start %s: %w", name, err)
		}
		log.Infof("[channel] started %s", name)
	}
	return nil
}

// StopAll stops all running channels.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, ch := range m.channels {
		if ch.IsRunning() {
			if err := ch.Stop(ctx); err != nil {
				log.Warnf("[channel] failed to stop %s: %v", name, err)
			} else {
				log.Infof("[channel] stopped %s", name)
			}
		}
	}
}

// Get returns a channel by name.
func (m *Manager) Get(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// List returns all channel names and their running status.
func (m *Manager) List() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]bool, len(m.channels))
	for name, ch := range m.channels {
		result[name] = ch.IsRunning()
	}
	return result
}
