package relay

import (
	"time"

	"github.com/akkhan00/m5Chat/internal/domain"
)

// Inbound event types accepted from clients.
const (
	EventJoinRoom    = "join_room"
	EventLeaveRoom   = "leave_room"
	EventSendMessage = "send_message"
)

// Outbound event types delivered to clients.
const (
	EventConnected       = "connected"
	EventRoomHistory     = "room_history" // joining session only
	EventNewMessage      = "new_message"
	EventUserJoined      = "user_joined"
	EventUserLeft        = "user_left"
	EventMessagesExpired = "messages_expired"
	EventError           = "error" // originating session only
)

type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type ConnectedPayload struct {
	Message string `json:"message"`
}

type JoinPayload struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

type LeavePayload struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

type SendPayload struct {
	Username string `json:"username"`
	Room     string `json:"room"`
	Content  string `json:"content"`
	Kind     string `json:"type"`
}

type MessageItem struct {
	ID        string    `json:"id"`
	Room      string    `json:"room"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Kind      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type HistoryPayload struct {
	Room     string        `json:"room"`
	Messages []MessageItem `json:"messages"`
}

type NewMessagePayload struct {
	Message MessageItem `json:"message"`
}

// PresencePayload accompanies user_joined and user_left: who moved, plus the
// member list as of the broadcast.
type PresencePayload struct {
	Room     string   `json:"room"`
	Username string   `json:"username"`
	Members  []string `json:"member_list"`
}

type ExpiredPayload struct {
	Room       string   `json:"room"`
	MessageIDs []string `json:"message_ids"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func messageItem(m domain.Message) MessageItem {
	return MessageItem{
		ID:        m.ID,
		Room:      m.Room,
		Username:  m.Author,
		Content:   m.Content,
		Kind:      string(m.Kind),
		CreatedAt: m.CreatedAt,
		ExpiresAt: m.ExpiresAt,
	}
}

func messageItems(msgs []domain.Message) []MessageItem {
	items := make([]MessageItem, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, messageItem(m))
	}
	return items
}
