package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/akkhan00/m5Chat/internal/domain"
	"github.com/akkhan00/m5Chat/internal/relay"
)

// Greeting sent to every connection before any event handling.
const welcomeText = "Connected to m5Chat!"

type Server struct {
	upgrader websocket.Upgrader
	manager  *relay.Manager

	pingEvery  time.Duration
	sendBuffer int
}

func NewServer(m *relay.Manager, pingEvery time.Duration, sendBuffer int) *Server {
	if pingEvery <= 0 {
		pingEvery = 15 * time.Second
	}
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Server{
		manager: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pingEvery:  pingEvery,
		sendBuffer: sendBuffer,
	}
}

// WS endpoint: GET /ws
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	c := newWsConn(conn, s.sendBuffer)
	sess := relay.NewSession(c)

	_ = c.Send(relay.Event{
		Type:    relay.EventConnected,
		Payload: relay.ConnectedPayload{Message: welcomeText},
	})

	go c.writeLoop(s.pingEvery)
	s.readLoop(r.Context(), sess, c)

	// connection loss is an implicit leave, effective immediately
	s.manager.Disconnect(sess)
	_ = c.Close()
}

func (s *Server) readLoop(ctx context.Context, sess *relay.Session, c *wsConn) {
	c.conn.SetReadLimit(1 << 20)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var ev relay.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			s.sendError(c, "malformed event")
			continue
		}
		s.dispatch(ctx, sess, c, ev)
	}
}

// dispatch routes one inbound event. Rejected operations answer the sender
// with an error event; the session keeps running either way.
func (s *Server) dispatch(ctx context.Context, sess *relay.Session, c *wsConn, ev relay.Event) {
	switch ev.Type {
	case relay.EventJoinRoom:
		var p relay.JoinPayload
		if err := decode(ev.Payload, &p); err != nil {
			s.sendError(c, "malformed join_room payload")
			return
		}
		if err := s.manager.Join(ctx, sess, strings.TrimSpace(p.Username), strings.TrimSpace(p.Room)); err != nil {
			slog.Debug("ws join rejected", "session", sess.ID(), "err", err)
			s.sendError(c, err.Error())
		}

	case relay.EventLeaveRoom:
		if err := s.manager.Leave(sess); err != nil {
			s.sendError(c, err.Error())
		}

	case relay.EventSendMessage:
		var p relay.SendPayload
		if err := decode(ev.Payload, &p); err != nil {
			s.sendError(c, "malformed send_message payload")
			return
		}
		if err := s.manager.Send(ctx, sess, p.Content, domain.MessageKind(p.Kind)); err != nil {
			slog.Debug("ws send rejected", "session", sess.ID(), "err", err)
			s.sendError(c, err.Error())
		}

	default:
		s.sendError(c, fmt.Sprintf("unknown event type %q", ev.Type))
	}
}

func (s *Server) sendError(c *wsConn, msg string) {
	_ = c.Send(relay.Event{Type: relay.EventError, Payload: relay.ErrorPayload{Message: msg}})
}

// decode re-marshals a generic payload into its concrete struct.
func decode(payload any, dst any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return json.Unmarshal(b, dst)
}
