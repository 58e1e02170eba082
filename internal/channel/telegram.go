package channel

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tele "gopkg.in/telebot.v3"

	"flowdesk/internal/log"
)

const (
	// Bot API rejects messages over 4096 characters.
	telegramChunk = 4000
	pollTimeout   = 10 * time.Second
	greeting      = "Hi! Ask me about your workflow items, e.g. \"what is awaiting approval?\""
)

var errBotNotStarted = errors.New("telegram bot not started")

type TelegramConfig struct {
	Token string
	// AllowedIDs limits who may talk to the bot. Empty allows everyone.
	AllowedIDs []int64
}

// TelegramChannel long-polls the Bot API. Each text message is handed to
// the handler on its own goroutine so a slow conversation never stalls the
// poller.
type TelegramChannel struct {
	cfg     TelegramConfig
	allowed map[int64]struct{}

	mu      sync.Mutex
	bot     *tele.Bot
	handler func(InboundMessage)
}

func NewTelegramChannel(cfg TelegramConfig) *TelegramChannel {
	allowed := make(map[int64]struct{}, len(cfg.AllowedIDs))
	for _, id := range cfg.AllowedIDs {
		allowed[id] = struct{}{}
	}
	return &TelegramChannel{cfg: cfg, allowed: allowed}
}

func (t *TelegramChannel) Name() string { return "telegram" }

func (t *TelegramChannel) allows(userID int64) bool {
	if len(t.allowed) == 0 {
		return true
	}
	_, ok := t.allowed[userID]
	return ok
}

func (t *TelegramChannel) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bot != nil {
		return nil
	}

	bot, err := tele.NewBot(tele.Settings{
		Token:  t.cfg.Token,
		Poller: &tele.LongPoller{Timeout: pollTimeout},
		OnError: func(err error, _ tele.Context) {
			log.Errorf("[telegram] %v", err)
		},
	})
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}

	bot.Handle("/start", func(c tele.Context) error {
		if !t.allows(c.Sender().ID) {
			return nil
		}
		return c.Send(greeting)
	})
	bot.Handle(tele.OnText, t.onText)

	t.bot = bot
	go bot.Start()
	go func() {
		<-ctx.Done()
		t.mu.Lock()
		current := t.bot == bot
		t.mu.Unlock()
		if current {
			_ = t.Stop(context.Background())
		}
	}()
	log.Infof("[telegram] polling as @%s", bot.Me.Username)
	return nil
}

func (t *TelegramChannel) onText(c tele.Context) error {
	sender := c.Sender()
	if !t.allows(sender.ID) {
		log.Warnf("[telegram] ignoring user %d (%s)", sender.ID, sender.Username)
		return nil
	}

	t.mu.Lock()
	handler := t.handler
	t.mu.Unlock()
	if handler == nil {
		return nil
	}

	if err := c.Notify(tele.Typing); err != nil {
		log.Debugf("[telegram] typing notice: %v", err)
	}
	go handler(InboundMessage{
		ChannelName: t.Name(),
		SenderID:    strconv.FormatInt(sender.ID, 10),
		SenderName:  strings.TrimSpace(sender.FirstName + " " + sender.LastName),
		ChatID:      strconv.FormatInt(c.Chat().ID, 10),
		Text:        c.Text(),
		Timestamp:   c.Message().Time(),
	})
	return nil
}

func (t *TelegramChannel) Stop(_ context.Context) error {
	t.mu.Lock()
	bot := t.bot
	t.bot = nil
	t.mu.Unlock()
	if bot != nil {
		bot.Stop()
	}
	return nil
}

// Send delivers msg.Text in as many messages as the length limit needs.
func (t *TelegramChannel) Send(_ context.Context, msg OutboundMessage) error {
	t.mu.Lock()
	bot := t.bot
	t.mu.Unlock()
	if bot == nil {
		return errBotNotStarted
	}

	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID %q: %w", msg.ChatID, err)
	}
	to := &tele.Chat{ID: chatID}
	for i, part := range splitMessage(msg.Text, telegramChunk) {
		if _, err := bot.Send(to, part); err != nil {
			return fmt.Errorf("telegram send part %d: %w", i+1, err)
		}
	}
	return nil
}

// splitMessage cuts text into pieces of at most limit runes, breaking
// after the last newline inside the window when there is one.
func splitMessage(text string, limit int) []string {
	var chunks []string
	for utf8.RuneCountInString(text) > limit {
		cut, n := 0, 0
		for i := range text {
			if n == limit {
				cut = i
				break
			}
			n++
		}
		if nl := strings.LastIndexByte(text[:cut], '\n'); nl > 0 {
			cut = nl + 1
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

func (t *TelegramChannel) OnMessage(handler func(InboundMessage)) {
	t.mu.Lock()
	t.handler = handler
	t.mu.Unlock()
}

func (t *TelegramChannel) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bot != nil
}
