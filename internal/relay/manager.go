package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/akkhan00/m5Chat/internal/domain"
	"github.com/akkhan00/m5Chat/internal/metrics"
	"github.com/akkhan00/m5Chat/internal/store"
)

// Manager drives the per-session state machine: Unbound -> Joined -> Unbound.
// Each compound operation (join, send, leave) runs start to finish under its
// room's lock, so every member of a room observes the same event order.
type Manager struct {
	store store.Store
	reg   *Registry
	now   func() time.Time
}

// NewManager wires the state machine to its store and registry. A nil now
// means wall clock.
func NewManager(st store.Store, reg *Registry, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{store: st, reg: reg, now: now}
}

// Join moves s from Unbound to Joined(room): validates, records the room,
// delivers live history to s alone, then broadcasts user_joined with the
// updated member list. On any failure s stays Unbound with no side effects.
func (m *Manager) Join(ctx context.Context, s *Session, username, room string) error {
	if s.state != stateUnbound {
		return fmt.Errorf("%w: already joined to %q", domain.ErrInvalidState, s.room)
	}
	if err := domain.ValidateUsername(username); err != nil {
		return err
	}
	if err := domain.ValidateRoomName(room); err != nil {
		return err
	}

	now := m.now()
	e := m.reg.acquire(room)
	defer m.reg.release(e)

	if _, err := m.store.EnsureRoom(ctx, room, now); err != nil {
		return fmt.Errorf("store.EnsureRoom: %w", err)
	}
	history, err := m.store.ListLive(ctx, room, now)
	if err != nil {
		return fmt.Errorf("store.ListLive: %w", err)
	}

	s.username = username
	s.room = room
	s.state = stateJoined
	s.joinedAt = now
	e.add(s)

	_ = s.conn.Send(Event{
		Type:    EventRoomHistory,
		Payload: HistoryPayload{Room: room, Messages: messageItems(history)},
	})
	e.broadcast(Event{
		Type:    EventUserJoined,
		Payload: PresencePayload{Room: room, Username: username, Members: e.names()},
	})

	slog.Debug("session joined", "session", s.id, "room", room, "username", username)
	return nil
}

// Send persists a message stamped with the canonical id and timestamps, then
// broadcasts it to the whole room, sender included. A failed insert reports
// to the caller only; nothing is broadcast.
func (m *Manager) Send(ctx context.Context, s *Session, content string, kind domain.MessageKind) error {
	if s.state != stateJoined {
		return fmt.Errorf("%w: send before join", domain.ErrInvalidState)
	}
	if kind == "" {
		kind = domain.KindText
	}
	if err := domain.ValidateContent(content, kind); err != nil {
		return err
	}

	e, ok := m.reg.lookup(s.room)
	if !ok {
		return fmt.Errorf("%w: joined room %q has no registry entry", domain.ErrInvalidState, s.room)
	}
	defer m.reg.release(e)

	msg := domain.NewMessage(s.room, s.username, content, kind, m.now())
	if err := m.store.InsertMessage(ctx, &msg); err != nil {
		return fmt.Errorf("store.InsertMessage: %w", err)
	}

	metrics.MessagesStored.WithLabelValues(string(kind)).Inc()
	e.broadcast(Event{Type: EventNewMessage, Payload: NewMessagePayload{Message: messageItem(msg)}})
	return nil
}

// Leave is the explicit path out of a room. Calling it while Unbound is a
// state error so transport bugs surface instead of being swallowed.
func (m *Manager) Leave(s *Session) error {
	if s.state != stateJoined {
		return fmt.Errorf("%w: leave before join", domain.ErrInvalidState)
	}
	m.detach(s)
	return nil
}

// Disconnect handles transport-detected loss. A joined session leaves
// exactly as if it had asked to; an unbound one closing is normal lifecycle.
func (m *Manager) Disconnect(s *Session) {
	if s.state != stateJoined {
		return
	}
	m.detach(s)
}

func (m *Manager) detach(s *Session) {
	e, ok := m.reg.lookup(s.room)
	if ok {
		if e.remove(s) {
			e.broadcast(Event{
				Type:    EventUserLeft,
				Payload: PresencePayload{Room: s.room, Username: s.username, Members: e.names()},
			})
		}
		m.reg.release(e)
	}

	slog.Debug("session left", "session", s.id, "room", s.room, "joined_for", m.now().Sub(s.joinedAt).String())
	s.state = stateUnbound
	s.room = ""
	s.username = ""
}
