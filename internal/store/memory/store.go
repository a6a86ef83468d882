package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/JulienCr/obs-live-suite-sub002/internal/domain"
	"github.com/JulienCr/obs-live-suite-sub002/internal/store"
)

// memStore keeps messages in memory behind the same contract as the SQLite
// backend. Used for tests and the zero-dependency dev mode.
type memStore struct {
	mu       sync.RWMutex
	messages map[string]domain.Message
}

func NewStore() store.MessageStore {
	return &memStore{messages: make(map[string]domain.Message)}
}

func (s *memStore) Close() error { return nil }

func (s *memStore) Create(_ context.Context, input domain.MessageInput) (*domain.Message, error) {
	now := time.Now()
	createdAt := now
	if input.CreatedAt != nil {
		createdAt = *input.CreatedAt
	}

	msg := domain.Message{
		ID:        ulid.Make().String(),
		Kind:      input.Kind,
		Author:    input.Author,
		Body:      input.Body,
		Pinned:    input.Pinned,
		CreatedAt: createdAt,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.messages[msg.ID] = msg
	s.mu.Unlock()
	return &msg, nil
}

func (s *memStore) Update(_ context.Context, id string, patch domain.MessagePatch) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	if patch.Kind != nil {
		msg.Kind = *patch.Kind
	}
	if patch.Author != nil {
		msg.Author = *patch.Author
	}
	if patch.Body != nil {
		msg.Body = *patch.Body
	}
	if patch.Pinned != nil {
		msg.Pinned = *patch.Pinned
	}
	msg.UpdatedAt = time.Now()

	s.messages[id] = msg
	return &msg, nil
}

func (s *memStore) GetRecent(_ context.Context, limit int, cursor string) ([]domain.Message, error) {
	s.mu.RLock()
	all := s.sortedLocked()
	var cur *domain.Message
	if cursor != "" {
		if m, ok := s.messages[cursor]; ok {
			cur = &m
		}
	}
	s.mu.RUnlock()

	if cursor != "" && cur == nil {
		return nil, store.ErrNotFound
	}

	var out []domain.Message
	for _, msg := range all {
		if cur != nil && !olderThan(msg, *cur) {
			continue
		}
		out = append(out, msg)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) GetPinned(_ context.Context) ([]domain.Message, error) {
	s.mu.RLock()
	all := s.sortedLocked()
	s.mu.RUnlock()

	var out []domain.Message
	for _, msg := range all {
		if msg.Pinned {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (s *memStore) DeleteOld(_ context.Context, keepCount int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var unpinned []domain.Message
	for _, msg := range s.sortedLocked() {
		if !msg.Pinned {
			unpinned = append(unpinned, msg)
		}
	}
	if keepCount < 0 {
		keepCount = 0
	}
	if len(unpinned) <= keepCount {
		return 0, nil
	}

	var deleted int
	for _, msg := range unpinned[keepCount:] {
		delete(s.messages, msg.ID)
		deleted++
	}
	return deleted, nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.messages, id)
	return nil
}

func (s *memStore) ClearAll(_ context.Context) error {
	s.mu.Lock()
	s.messages = make(map[string]domain.Message)
	s.mu.Unlock()
	return nil
}

// sortedLocked returns all messages newest first. Caller holds the lock.
func (s *memStore) sortedLocked() []domain.Message {
	out := make([]domain.Message, 0, len(s.messages))
	for _, msg := range s.messages {
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool { return olderThan(out[j], out[i]) })
	return out
}

// olderThan orders by (createdAt, id) so pagination is total even when
// timestamps collide.
func olderThan(a, b domain.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
