package chat

import "time"

// Chat is one relay connection's worth of conversation.
type Chat struct {
	ID             string     `json:"id"`
	GroupID        string     `json:"chatGroupId"`
	UserID         string     `json:"userId"`
	StartTimestamp time.Time  `json:"startTimestamp"`
	EndTimestamp   *time.Time `json:"endTimestamp,omitempty"`
	EventCount     int        `json:"eventCount"`
}

// Open reports whether the chat has not been finalized yet.
func (c Chat) Open() bool {
	return c.EndTimestamp == nil
}
