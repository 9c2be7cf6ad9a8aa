package relay

import (
	"time"

	"github.com/google/uuid"
)

type sessionState int

const (
	stateUnbound sessionState = iota
	stateJoined
)

// Session binds one live connection to at most one (username, room) pair.
// Its transitions are driven only by the connection's own reader goroutine;
// other goroutines observe the fields under the owning room's lock.
type Session struct {
	id   string
	conn Conn

	state    sessionState
	username string
	room     string
	joinedAt time.Time
}

func NewSession(conn Conn) *Session {
	return &Session{id: uuid.NewString(), conn: conn}
}

func (s *Session) ID() string { return s.id }

// Room returns the current room, or "" while unbound.
func (s *Session) Room() string { return s.room }

func (s *Session) Username() string { return s.username }
