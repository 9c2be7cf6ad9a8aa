package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/akkhan00/m5Chat/internal/domain"
)

type BannerResponse struct {
	Message string `json:"message"`
}

type CreateRoomRequest struct {
	Name string `json:"name"`
}

type RoomItem struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
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

type MembersResponse struct {
	Room    string   `json:"room"`
	Members []string `json:"members"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func toMessageItem(m domain.Message) MessageItem {
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
