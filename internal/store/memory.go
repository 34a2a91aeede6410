package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eli-ai/eli-backend/internal/model/chat"
)

// MemoryStore keeps everything in process memory. It backs tests and
// lets the server run without a DATABASE_URL during development.
type MemoryStore struct {
	mu     sync.Mutex
	groups map[string]*chat.Group
	chats  map[string]*chat.Chat
	events map[string][]chat.Event
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		groups: make(map[string]*chat.Group),
		chats:  make(map[string]*chat.Chat),
		events: make(map[string][]chat.Event),
	}
}

// CreateGroup inserts a new active chat group.
func (s *MemoryStore) CreateGroup(_ context.Context, now time.Time) (*chat.Group, error) {
	group := &chat.Group{
		ID:                       uuid.NewString(),
		FirstStartTimestamp:      now,
		MostRecentStartTimestamp: now,
		NumChats:                 1,
		Active:                   true,
	}

	s.mu.Lock()
	s.groups[group.ID] = group
	s.mu.Unlock()

	copied := *group
	return &copied, nil
}

// CreateChat inserts an open chat under the given group.
func (s *MemoryStore) CreateChat(_ context.Context, groupID, userID string, now time.Time) (*chat.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[groupID]; !ok {
		return nil, ErrNotFound
	}

	c := &chat.Chat{
		ID:             uuid.NewString(),
		GroupID:        groupID,
		UserID:         userID,
		StartTimestamp: now,
	}
	s.chats[c.ID] = c
	s.events[c.ID] = make([]chat.Event, 0, 16)

	copied := *c
	return &copied, nil
}

// AppendEvent appends the event and increments the chat's event count
// under one lock, mirroring the transactional Postgres write.
func (s *MemoryStore) AppendEvent(_ context.Context, event *chat.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[event.ChatID]
	if !ok {
		return ErrNotFound
	}

	stored := *event
	if stored.EmotionFeatures == nil {
		stored.EmotionFeatures = map[string]float64{}
	}
	s.events[event.ChatID] = append(s.events[event.ChatID], stored)
	c.EventCount++
	return nil
}

// CloseChat sets the end timestamp once.
func (s *MemoryStore) CloseChat(_ context.Context, chatID string, end time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[chatID]
	if !ok {
		return ErrNotFound
	}
	if c.EndTimestamp != nil {
		return ErrChatClosed
	}
	c.EndTimestamp = &end
	return nil
}

// DeactivateGroup clears the group's active flag.
func (s *MemoryStore) DeactivateGroup(_ context.Context, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, ok := s.groups[groupID]
	if !ok {
		return ErrNotFound
	}
	group.Active = false
	return nil
}

// ListChats returns the user's chats, most recent first.
func (s *MemoryStore) ListChats(_ context.Context, userID string) ([]chat.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var chats []chat.Chat
	for _, c := range s.chats {
		if c.UserID == userID {
			chats = append(chats, *c)
		}
	}
	sort.Slice(chats, func(i, j int) bool {
		return chats[i].StartTimestamp.After(chats[j].StartTimestamp)
	})
	return chats, nil
}

// GetChat fetches a single chat by id.
func (s *MemoryStore) GetChat(_ context.Context, chatID string) (*chat.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[chatID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *c
	return &copied, nil
}

// ListEvents returns the chat's events in append order.
func (s *MemoryStore) ListEvents(_ context.Context, chatID string) ([]chat.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, ok := s.events[chatID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := make([]chat.Event, len(events))
	copy(copied, events)
	return copied, nil
}

// EmotionAverages computes mean emotion scores over the chat's user
// messages, strongest emotions first.
func (s *MemoryStore) EmotionAverages(_ context.Context, chatID string) ([]EmotionAverage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, ok := s.events[chatID]
	if !ok {
		return nil, ErrNotFound
	}

	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, ev := range events {
		if ev.Type != chat.EventUserMessage {
			continue
		}
		for emotion, score := range ev.EmotionFeatures {
			sums[emotion] += score
			counts[emotion]++
		}
	}

	averages := make([]EmotionAverage, 0, len(sums))
	for emotion, sum := range sums {
		averages = append(averages, EmotionAverage{
			Emotion:      emotion,
			AverageScore: sum / float64(counts[emotion]),
		})
	}
	sort.Slice(averages, func(i, j int) bool {
		if averages[i].AverageScore == averages[j].AverageScore {
			return averages[i].Emotion < averages[j].Emotion
		}
		return averages[i].AverageScore > averages[j].AverageScore
	})
	return averages, nil
}

// GroupByID exposes group state for assertions in tests.
func (s *MemoryStore) GroupByID(groupID string) (chat.Group, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, ok := s.groups[groupID]
	if !ok {
		return chat.Group{}, false
	}
	return *group, true
}

// Counts reports how many groups, chats and events have been written.
func (s *MemoryStore) Counts() (groups, chats, events int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, evs := range s.events {
		events += len(evs)
	}
	return len(s.groups), len(s.chats), events
}
