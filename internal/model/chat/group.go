package chat

import "time"

// Group bundles the chats a user accumulates over time. The realtime
// relay creates one group per connection; active stays true while a
// child chat is open and is cleared exactly once at teardown.
type Group struct {
	ID                       string    `json:"id"`
	FirstStartTimestamp      time.Time `json:"firstStartTimestamp"`
	MostRecentStartTimestamp time.Time `json:"mostRecentStartTimestamp"`
	NumChats                 int       `json:"numChats"`
	Active                   bool      `json:"active"`
}
