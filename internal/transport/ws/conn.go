package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/akkhan00/m5Chat/internal/relay"
)

var errConnClosed = errors.New("ws: connection closed")

// wsConn adapts one websocket to the relay.Conn contract. Events go through
// a buffered outbox so broadcasts never block on a slow peer; the writeLoop
// goroutine owns every frame written to the socket.
type wsConn struct {
	conn *websocket.Conn
	out  chan relay.Event

	closed    chan struct{}
	closeOnce sync.Once
}

func newWsConn(c *websocket.Conn, buffer int) *wsConn {
	return &wsConn{
		conn:   c,
		out:    make(chan relay.Event, buffer),
		closed: make(chan struct{}),
	}
}

// Send enqueues ev without blocking. A full outbox means the peer stopped
// draining; the connection is closed and the event dropped.
func (c *wsConn) Send(ev relay.Event) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}

	select {
	case c.out <- ev:
		return nil
	case <-c.closed:
		return errConnClosed
	default:
		_ = c.Close()
		return errors.New("ws: send buffer full, dropping connection")
	}
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

// writeLoop drains the outbox and keeps the peer alive with pings. It exits
// when the connection closes, leaving any queued events behind.
func (c *wsConn) writeLoop(pingEvery time.Duration) {
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()

	for {
		select {
		case ev := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteJSON(ev); err != nil {
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				_ = c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}
