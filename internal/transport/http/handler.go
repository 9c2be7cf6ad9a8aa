package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/akkhan00/m5Chat/internal/domain"
	"github.com/akkhan00/m5Chat/internal/relay"
	"github.com/akkhan00/m5Chat/internal/store"
)

type Handler struct {
	store store.Store
	reg   *relay.Registry
	now   func() time.Time
}

func NewHandler(st store.Store, reg *relay.Registry, now func() time.Time) *Handler {
	if now == nil {
		now = time.Now
	}
	return &Handler{store: st, reg: reg, now: now}
}

// GET /
func (h *Handler) Banner(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, BannerResponse{Message: "m5Chat API is running!"})
}

// GET /rooms
// Active means the room holds at least one live message right now.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.store.ListActiveRooms(r.Context(), h.now())
	if err != nil {
		slog.Error("handler.ListRooms:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	items := make([]RoomItem, 0, len(rooms))
	for _, rm := range rooms {
		items = append(items, RoomItem{Name: rm.Name, CreatedAt: rm.CreatedAt})
	}

	writeJSON(w, http.StatusOK, items)
}

// POST /rooms
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("handler.CreateRoom.Decode:", slog.Any("err", err))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}
	if err := domain.ValidateRoomName(req.Name); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	room, err := h.store.EnsureRoom(r.Context(), req.Name, h.now())
	if err != nil {
		slog.Error("handler.CreateRoom:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusCreated, RoomItem{Name: room.Name, CreatedAt: room.CreatedAt})
}

// GET /rooms/{name}/messages
// Unknown rooms read as empty, same as rooms whose messages all expired.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "name")

	msgs, err := h.store.ListLive(r.Context(), room, h.now())
	if err != nil {
		slog.Error("handler.GetMessages:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	items := make([]MessageItem, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, toMessageItem(m))
	}

	writeJSON(w, http.StatusOK, items)
}

// GET /rooms/{name}/members
func (h *Handler) GetMembers(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "name")

	writeJSON(w, http.StatusOK, MembersResponse{
		Room:    room,
		Members: h.reg.Members(room),
	})
}

// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		slog.Error("handler.Healthz:", slog.Any("err", err))
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}
