package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageKind tags what the content field carries: plain text or a
// reference to out-of-core media.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
	KindVoice MessageKind = "voice"
)

// MessageTTL is how long every message stays live. Fixed, not configurable.
const MessageTTL = 300 * time.Second

type Message struct {
	ID        string      `db:"id"`
	Room      string      `db:"room"`
	Author    string      `db:"username"`
	Content   string      `db:"content"`
	Kind      MessageKind `db:"kind"`
	CreatedAt time.Time   `db:"created_at"`
	ExpiresAt time.Time   `db:"expires_at"`
}

// NewMessage stamps a fresh message. ExpiresAt is always CreatedAt + MessageTTL.
func NewMessage(room, author, content string, kind MessageKind, now time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		Room:      room,
		Author:    author,
		Content:   content,
		Kind:      kind,
		CreatedAt: now,
		ExpiresAt: now.Add(MessageTTL),
	}
}

// Live reports whether the message is still visible at now. A message whose
// expiry has arrived exactly is no longer live.
func (m Message) Live(now time.Time) bool {
	return now.Before(m.ExpiresAt)
}
