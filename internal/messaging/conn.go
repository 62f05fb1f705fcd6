package messaging

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sudo-init-do/gigmarket/internal/observability"
)

var (
	ErrConnClosed   = errors.New("messaging: connection closed")
	ErrSlowConsumer = errors.New("messaging: send buffer full")
)

const writeWait = 10 * time.Second

// wsConn owns one websocket. All writes happen on writePump; Send only
// enqueues.
type wsConn struct {
	ws           *websocket.Conn
	send         chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	pingInterval time.Duration
}

func newWSConn(ws *websocket.Conn, buffer int, pingInterval time.Duration) *wsConn {
	return &wsConn{
		ws:           ws,
		send:         make(chan []byte, buffer),
		done:         make(chan struct{}),
		pingInterval: pingInterval,
	}
}

func (c *wsConn) Send(eventType string, data any) error {
	payload, err := json.Marshal(wsEvent{Type: eventType, Data: data})
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		observability.PushDropped.WithLabelValues(eventType).Inc()
		return ErrSlowConsumer
	}
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debug().Err(err).Msg("ws write failed")
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		}
	}
}

// close stops the write pump, which closes the socket and so unblocks the
// read loop. Safe to call more than once.
func (c *wsConn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}
