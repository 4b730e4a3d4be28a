package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/medscan/internal/llm"
)

// MemoryStore holds transcripts in process memory. They are lost on restart.
type MemoryStore struct {
	preamble    string
	ttl         time.Duration
	maxMessages int
	now         func() time.Time
	logger      *slog.Logger

	mu    sync.Mutex
	items map[string]*transcript
}

type transcript struct {
	messages []llm.Message
	touched  time.Time
}

type MemoryOption func(*MemoryStore)

// WithTTL evicts transcripts idle for longer than ttl. Zero disables eviction.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(s *MemoryStore) { s.ttl = ttl }
}

// WithMaxMessages caps the number of non-preamble messages kept per user; the
// oldest are dropped first. Zero means unbounded.
func WithMaxMessages(n int) MemoryOption {
	return func(s *MemoryStore) { s.maxMessages = n }
}

// WithClock overrides the time source used for eviction.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

func WithLogger(l *slog.Logger) MemoryOption {
	return func(s *MemoryStore) { s.logger = l }
}

func NewMemoryStore(preamble string, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		preamble: preamble,
		now:      time.Now,
		logger:   slog.Default(),
		items:    make(map[string]*transcript),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) GetOrInit(_ context.Context, key string) ([]llm.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.getOrInitLocked(key)
	return cloneMessages(t.messages), nil
}

func (s *MemoryStore) Append(_ context.Context, key string, msgs ...llm.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.getOrInitLocked(key)
	t.messages = append(t.messages, msgs...)
	s.capLocked(t)
	return nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.items[key]
	if !ok {
		return nil
	}
	t.messages = preambleMessages(s.preamble)
	t.touched = s.now()
	return nil
}

// Len reports how many users currently hold a transcript.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Evict drops transcripts idle for longer than the configured TTL and returns
// how many were removed.
func (s *MemoryStore) Evict() int {
	if s.ttl <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, t := range s.items {
		if t.touched.Before(cutoff) {
			delete(s.items, k)
			n++
		}
	}
	return n
}

// RunJanitor evicts idle transcripts every interval until ctx is done.
func (s *MemoryStore) RunJanitor(ctx context.Context, interval time.Duration) {
	if s.ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Evict(); n > 0 {
				s.logger.Info("conversation.evicted", "count", n)
			}
		}
	}
}

func (s *MemoryStore) getOrInitLocked(key string) *transcript {
	t, ok := s.items[key]
	if !ok {
		t = &transcript{messages: preambleMessages(s.preamble)}
		s.items[key] = t
	}
	if len(t.messages) == 0 && s.preamble != "" {
		t.messages = preambleMessages(s.preamble)
	}
	t.touched = s.now()
	return t
}

func (s *MemoryStore) capLocked(t *transcript) {
	if s.maxMessages <= 0 {
		return
	}
	head := 0
	if len(t.messages) > 0 && t.messages[0].Role == llm.RoleSystem && s.preamble != "" {
		head = 1
	}
	excess := len(t.messages) - head - s.maxMessages
	if excess <= 0 {
		return
	}
	kept := make([]llm.Message, 0, head+s.maxMessages)
	kept = append(kept, t.messages[:head]...)
	kept = append(kept, t.messages[head+excess:]...)
	t.messages = kept
}

func cloneMessages(in []llm.Message) []llm.Message {
	out := make([]llm.Message, len(in))
	copy(out, in)
	return out
}
