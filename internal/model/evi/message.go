package evi

import (
	"encoding/json"

	"github.com/eli-ai/eli-backend/internal/model/chat"
)

// Message types emitted by the EVI websocket. Only user and assistant
// messages represent conversational turns; everything else is control
// or metadata and is forwarded to the client without being persisted.
const (
	TypeUserMessage      = "user_message"
	TypeAssistantMessage = "assistant_message"
	TypeAssistantEnd     = "assistant_end"
	TypeAudioOutput      = "audio_output"
	TypeChatMetadata     = "chat_metadata"
	TypeUserInterruption = "user_interruption"
	TypeToolCall         = "tool_call"
	TypeError            = "error"
)

// Turn carries the transcript portion of a content message.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Models holds the per-message model outputs. Only prosody is read today.
type Models struct {
	Prosody *Prosody `json:"prosody,omitempty"`
}

// Prosody maps emotion names to scores in [0,1].
type Prosody struct {
	Scores map[string]float64 `json:"scores,omitempty"`
}

// Message is one structured frame from the upstream EVI socket. Raw
// keeps the frame exactly as received so the relay can forward it to
// the client verbatim.
type Message struct {
	Type    string  `json:"type"`
	Message *Turn   `json:"message,omitempty"`
	Models  *Models `json:"models,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// Parse decodes a frame and retains the raw bytes.
func Parse(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	msg.Raw = append(json.RawMessage(nil), data...)
	return &msg, nil
}

// Classify maps a message type onto the persisted role/event kind.
// ok is false for control and metadata frames, which must never be
// written to the transcript.
func (m *Message) Classify() (role chat.Role, kind chat.EventType, ok bool) {
	switch m.Type {
	case TypeUserMessage:
		return chat.RoleUser, chat.EventUserMessage, true
	case TypeAssistantMessage:
		return chat.RoleAgent, chat.EventAgentMessage, true
	default:
		return "", "", false
	}
}

// Text returns the transcript content, empty for frames without one.
func (m *Message) Text() string {
	if m.Message == nil {
		return ""
	}
	return m.Message.Content
}

// EmotionScores returns the prosody score map, never nil.
func (m *Message) EmotionScores() map[string]float64 {
	if m.Models == nil || m.Models.Prosody == nil || m.Models.Prosody.Scores == nil {
		return map[string]float64{}
	}
	return m.Models.Prosody.Scores
}

// UserInput is the single frame type the relay sends upstream.
type UserInput struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewUserInput wraps a client utterance for the upstream socket.
func NewUserInput(text string) UserInput {
	return UserInput{Type: "user_input", Text: text}
}
