package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Message is a chat line posted in a room. Content is the moderated text.
type Message struct {
	ID            uuid.UUID
	Room          RoomID
	Author        string
	Content       string
	Lang          string
	CensoredWords []string
	SentAt        time.Time
	// Fields are the client fields relayed next to the text.
	Fields map[string]json.RawMessage
}

// ChatPost is a raw chat line waiting for moderation.
type ChatPost struct {
	Room       RoomID
	Author     string
	Content    string
	Fields     map[string]json.RawMessage
	ReceivedAt time.Time
}
