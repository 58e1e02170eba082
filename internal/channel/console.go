package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"flowdesk/internal/log"
)

// Lines longer than this are rejected by the scanner.
const maxConsoleLine = 64 * 1024

// ConsoleChannel reads prompts line by line and prints replies. It backs the
// chat command and is handy for trying flows without a browser. Typing
// "exit" or "quit" ends the session like end of input does.
type ConsoleChannel struct {
	mu      sync.Mutex
	in      io.Reader
	out     io.Writer
	handler func(InboundMessage)
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewConsoleChannel uses stdin and stdout when in or out is nil.
func NewConsoleChannel(in io.Reader, out io.Writer) *ConsoleChannel {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleChannel{in: in, out: out}
}

func (c *ConsoleChannel) Name() string { return "console" }

func (c *ConsoleChannel) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true
	c.done = make(chan struct{})

	go c.readLoop(ctx, c.done)
	return nil
}

func (c *ConsoleChannel) Stop(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	c.running = false
	return nil
}

func (c *ConsoleChannel) Send(_ context.Context, msg OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "\n[flowdesk]: %s\n\n> ", msg.Text)
	return err
}

func (c *ConsoleChannel) OnMessage(handler func(InboundMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

func (c *ConsoleChannel) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Done is closed once the input is exhausted. It is nil before Start.
func (c *ConsoleChannel) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// readLoop handles lines one at a time so replies never interleave.
func (c *ConsoleChannel) readLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 0, 4096), maxConsoleLine)
	c.prompt()

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		text := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(text) {
		case "":
			c.prompt()
			continue
		case "exit", "quit":
			return
		}

		c.mu.Lock()
		handler := c.handler
		c.mu.Unlock()

		if handler != nil {
			handler(InboundMessage{
				ChannelName: "console",
				SenderID:    "local",
				SenderName:  "User",
				ChatID:      "console",
				Text:        text,
				Timestamp:   time.Now(),
			})
		}
	}
	if err := scanner.Err(); err != nil {
		log.Warnf("[console] read: %v", err)
	}
}

func (c *ConsoleChannel) prompt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, "> ")
}
