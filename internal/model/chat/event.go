package chat

import "time"

// Role identifies who produced a persisted conversation turn.
type Role string

const (
	RoleUser   Role = "USER"
	RoleAgent  Role = "AGENT"
	RoleSystem Role = "SYSTEM"
)

// EventType discriminates the kinds of events written to the transcript.
type EventType string

const (
	EventUserMessage  EventType = "USER_MESSAGE"
	EventAgentMessage EventType = "AGENT_MESSAGE"
	EventSystemPrompt EventType = "SYSTEM_PROMPT"
	EventToolCall     EventType = "TOOL_CALL"
	EventToolResponse EventType = "TOOL_RESPONSE"
	EventChatMetadata EventType = "CHAT_METADATA"
)

// Event persists a single turn together with the emotion scores the
// upstream model attached to it. Events are append-only.
type Event struct {
	ID              string             `json:"id"`
	ChatID          string             `json:"chatId"`
	Timestamp       time.Time          `json:"timestamp"`
	Role            Role               `json:"role"`
	Type            EventType          `json:"type"`
	MessageText     string             `json:"messageText,omitempty"`
	EmotionFeatures map[string]float64 `json:"emotionFeatures"`
}
