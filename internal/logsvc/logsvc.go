// Package logsvc keeps the diagnostic log: a bounded ring of entries posted
// by clients and by conversation events, optionally mirrored to a KV store
// so it survives restarts.
package logsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"flowdesk/internal/log"
	"flowdesk/internal/store"
)

// DefaultCapacity is the number of entries kept when none is configured.
const DefaultCapacity = 1000

const (
	namespace = "voice-chat-logs"
	keyLayout = "20060102T150405.000000000Z"
)

const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Entry is one diagnostic log record.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data"`

	key string
}

// Option configures a Service.
type Option func(*Service)

// WithStore mirrors entries into kv.
func WithStore(kv store.KV) Option {
	return func(s *Service) { s.kv = kv }
}

// Service owns the ring. It is safe for concurrent use.
type Service struct {
	mu    sync.Mutex
	ring  []Entry
	start int
	size  int

	kv  store.KV
	now func() time.Time
}

// New creates a service holding at most capacity entries.
func New(capacity int, opts ...Option) *Service {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Service{
		ring: make([]Entry, capacity),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore loads persisted entries into the ring, oldest first. Entries
// beyond capacity are deleted from the store.
func (s *Service) Restore(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}
	keys, err := s.kv.Keys(ctx, namespace)
	if err != nil {
		return fmt.Errorf("list log entries: %w", err)
	}

	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		raw, err := s.kv.Get(ctx, namespace, k)
		if err != nil {
			return fmt.Errorf("read log entry %s: %w", k, err)
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			log.Warnf("[logsvc] skipping unreadable entry %s: %v", k, err)
			continue
		}
		e.key = k
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})

	s.mu.Lock()
	s.start, s.size = 0, 0
	var evicted []string
	for _, e := range entries {
		if old, ok := s.push(e); ok {
			evicted = append(evicted, old.key)
		}
	}
	s.mu.Unlock()

	for _, k := range evicted {
		s.forget(ctx, k)
	}
	return nil
}

// Append records an entry. An empty level is treated as info and nil data as
// an empty object. Persistence failures are logged, never returned.
func (s *Service) Append(ctx context.Context, level, message string, data map[string]any) Entry {
	if level == "" {
		level = LevelInfo
	}
	if data == nil {
		data = map[string]any{}
	}
	now := s.now().UTC()
	e := Entry{
		Timestamp: now,
		Level:     level,
		Message:   message,
		Data:      data,
		key:       now.Format(keyLayout) + "-" + uuid.NewString()[:8],
	}

	s.mu.Lock()
	old, evicted := s.push(e)
	s.mu.Unlock()

	if s.kv != nil {
		if raw, err := json.Marshal(e); err != nil {
			log.Warnf("[logsvc] encode entry: %v", err)
		} else if err := s.kv.Set(ctx, namespace, e.key, raw); err != nil {
			log.Warnf("[logsvc] persist entry: %v", err)
		}
		if evicted {
			s.forget(ctx, old.key)
		}
	}
	return e
}

// List returns up to limit entries, newest first. A non-empty level keeps
// only entries with that level. limit <= 0 means no limit.
func (s *Service) List(limit int, level string) []Entry {
	all := s.snapshot()
	out := make([]Entry, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if level != "" && all[i].Level != level {
			continue
		}
		out = append(out, all[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Len returns the number of entries held.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Clear drops every entry.
func (s *Service) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.start, s.size = 0, 0
	s.mu.Unlock()

	if s.kv == nil {
		return nil
	}
	keys, err := s.kv.Keys(ctx, namespace)
	if err != nil {
		return fmt.Errorf("list log entries: %w", err)
	}
	for _, k := range keys {
		if err := s.kv.Delete(ctx, namespace, k); err != nil {
			return fmt.Errorf("delete log entry %s: %w", k, err)
		}
	}
	return nil
}

// snapshot returns the entries oldest first.
func (s *Service) snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, s.size)
	for i := 0; i < s.size; i++ {
		out[i] = s.ring[(s.start+i)%len(s.ring)]
	}
	return out
}

// push adds e and returns the entry it overwrote, if any. Callers hold mu.
func (s *Service) push(e Entry) (Entry, bool) {
	if s.size < len(s.ring) {
		s.ring[(s.start+s.size)%len(s.ring)] = e
		s.size++
		return Entry{}, false
	}
	old := s.ring[s.start]
	s.ring[s.start] = e
	s.start = (s.start + 1) % len(s.ring)
	return old, true
}

func (s *Service) forget(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.kv.Delete(ctx, namespace, key); err != nil {
		log.Warnf("[logsvc] delete evicted entry: %v", err)
	}
}
