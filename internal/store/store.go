package store

import (
	"context"
	"errors"
	"time"

	"github.com/eli-ai/eli-backend/internal/model/chat"
)

var (
	// ErrNotFound is returned when a chat or group does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrChatClosed is returned when finalizing a chat a second time.
	ErrChatClosed = errors.New("store: chat already closed")
)

// EmotionAverage is one row of the per-chat analytics aggregation.
type EmotionAverage struct {
	Emotion      string  `json:"emotion"`
	AverageScore float64 `json:"averageScore"`
}

// Store persists chat groups, chats and their transcript events. Every
// method commits before returning; the relay never batches writes, so
// a crash loses at most the operation in flight.
type Store interface {
	// CreateGroup inserts a new active group with a single chat slot.
	CreateGroup(ctx context.Context, now time.Time) (*chat.Group, error)
	// CreateChat inserts an open chat owned by userID under groupID.
	CreateChat(ctx context.Context, groupID, userID string, now time.Time) (*chat.Chat, error)
	// AppendEvent inserts the event and increments the owning chat's
	// event_count in the same transaction.
	AppendEvent(ctx context.Context, event *chat.Event) error
	// CloseChat sets the end timestamp. Closing twice is an error so
	// teardown races surface in tests instead of silently double-writing.
	CloseChat(ctx context.Context, chatID string, end time.Time) error
	// DeactivateGroup clears the group's active flag.
	DeactivateGroup(ctx context.Context, groupID string) error

	// ListChats returns userID's chats, most recent first.
	ListChats(ctx context.Context, userID string) ([]chat.Chat, error)
	// GetChat fetches a single chat.
	GetChat(ctx context.Context, chatID string) (*chat.Chat, error)
	// ListEvents returns a chat's events in append order.
	ListEvents(ctx context.Context, chatID string) ([]chat.Event, error)
	// EmotionAverages aggregates mean emotion scores over a chat's
	// user messages, strongest first.
	EmotionAverages(ctx context.Context, chatID string) ([]EmotionAverage, error)
}
