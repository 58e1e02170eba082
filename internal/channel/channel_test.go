package channel

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowdesk/internal/agent"
	"flowdesk/internal/config"
	"flowdesk/internal/eventbus"
)

type fakeConversations struct {
	mu       sync.Mutex
	requests []agent.Request
	reply    func(req agent.Request) (*agent.Result, error)
}

func (f *fakeConversations) Run(ctx context.Context, req agent.Request) (*agent.Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.reply(req)
}

type fakeChannel struct {
	mu      sync.Mutex
	name    string
	handler func(InboundMessage)
	sent    []OutboundMessage
	running bool
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = true
	return nil
}

func (f *fakeChannel) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	return nil
}

func (f *fakeChannel) Send(ctx context.Context, msg OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeChannel) OnMessage(handler func(InboundMessage)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
}

func (f *fakeChannel) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeChannel) deliver(text string) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h(InboundMessage{ChannelName: f.name, ChatID: "42", SenderName: "Sam", Text: text, Timestamp: time.Now()})
}

func TestRouteRepliesOnSameChat(t *testing.T) {
	conv := &fakeConversations{reply: func(req agent.Request) (*agent.Result, error) {
		return &agent.Result{Reply: "echo: " + req.Message}, nil
	}}
	bus := eventbus.New()
	var mu sync.Mutex
	var topics []eventbus.Topic
	bus.Subscribe(func(e eventbus.Event) {
		mu.Lock()
		topics = append(topics, e.Topic)
		mu.Unlock()
	}, eventbus.TopicInboundMessage, eventbus.TopicOutboundMessage)

	ch := &fakeChannel{name: "telegram"}
	m := NewManager(bus)
	m.Register(ch)
	m.Route(context.Background(), conv)
	require.NoError(t, m.StartAll(context.Background()))

	ch.deliver("hello")

	require.Len(t, ch.sent, 1)
	assert.Equal(t, OutboundMessage{ChatID: "42", Text: "echo: hello"}, ch.sent[0])
	require.Len(t, conv.requests, 1)
	assert.Equal(t, "telegram-42", conv.requests[0].ConversationID)
	assert.Equal(t, []eventbus.Topic{eventbus.TopicInboundMessage, eventbus.TopicOutboundMessage}, topics)
	assert.Equal(t, map[string]bool{"telegram": true}, m.List())

	m.StopAll(context.Background())
	assert.False(t, ch.IsRunning())
}

func TestRouteErrorReplies(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not configured", config.ErrNotConfigured, replyNotConfigured},
		{"other failure", errors.New("boom"), replyFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv := &fakeConversations{reply: func(agent.Request) (*agent.Result, error) { return nil, tt.err }}
			ch := &fakeChannel{name: "telegram"}
			m := NewManager(nil)
			m.Register(ch)
			m.Route(context.Background(), conv)

			ch.deliver("hi")

			require.Len(t, ch.sent, 1)
			assert.Equal(t, tt.want, ch.sent[0].Text)
		})
	}
}

func TestConsoleChannelRoundTrip(t *testing.T) {
	conv := &fakeConversations{reply: func(req agent.Request) (*agent.Result, error) {
		return &agent.Result{Reply: strings.ToUpper(req.Message)}, nil
	}}
	var out bytes.Buffer
	console := NewConsoleChannel(strings.NewReader("first\n\n  second  \n"), &out)

	m := NewManager(nil)
	m.Register(console)
	m.Route(context.Background(), conv)
	require.NoError(t, m.StartAll(context.Background()))

	select {
	case <-console.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("console did not finish reading input")
	}

	require.Len(t, conv.requests, 2)
	assert.Equal(t, "second", conv.requests[1].Message)
	assert.Equal(t, "console-console", conv.requests[0].ConversationID)
	assert.Contains(t, out.String(), "[flowdesk]: FIRST")
	assert.Contains(t, out.String(), "[flowdesk]: SECOND")
}

func TestConsoleChannelStopsOnQuit(t *testing.T) {
	conv := &fakeConversations{reply: func(req agent.Request) (*agent.Result, error) {
		return &agent.Result{Reply: "ok"}, nil
	}}
	console := NewConsoleChannel(strings.NewReader("one\nQUIT\ntwo\n"), io.Discard)

	m := NewManager(nil)
	m.Register(console)
	m.Route(context.Background(), conv)
	require.NoError(t, m.StartAll(context.Background()))

	select {
	case <-console.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("console did not stop on quit")
	}
	require.Len(t, conv.requests, 1)
	assert.Equal(t, "one", conv.requests[0].Message)
}

func TestSplitMessage(t *testing.T) {
	assert.Nil(t, splitMessage("", 10))
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))
	assert.Equal(t, []string{"abcde", "fghij", "k"}, splitMessage("abcdefghijk", 5))
	assert.Equal(t, []string{"ab\n", "cdefg", "h"}, splitMessage("ab\ncdefgh", 5))

	long := strings.Repeat("é", 9)
	chunks := splitMessage(long, 4)
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c))
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 4)
	}
	assert.Equal(t, long, strings.Join(chunks, ""))
}

func TestTelegramSendRequiresStart(t *testing.T) {
	tg := NewTelegramChannel(TelegramConfig{Token: "x"})
	assert.Equal(t, "telegram", tg.Name())
	assert.False(t, tg.IsRunning())
	assert.ErrorIs(t, tg.Send(context.Background(), OutboundMessage{ChatID: "1", Text: "hi"}), errBotNotStarted)
}

func TestTelegramAllowList(t *testing.T) {
	open := NewTelegramChannel(TelegramConfig{Token: "x"})
	assert.True(t, open.allows(7))

	closed := NewTelegramChannel(TelegramConfig{Token: "x", AllowedIDs: []int64{1, 2}})
	assert.True(t, closed.allows(2))
	assert.False(t, closed.allows(7))
}
