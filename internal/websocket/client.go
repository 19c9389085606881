package websocket

import (
	"errors"
	"net/http"
	"time"

	gwebsocket "github.com/gorilla/websocket"

	"agribot/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 256
)

// ErrHubClosed is returned by Serve after the hub has stopped
var ErrHubClosed = errors.New("websocket hub closed")

var upgrader = gwebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Client is a middleman between one websocket connection and the hub
type Client struct {
	hub       *Hub
	conn      *gwebsocket.Conn
	send      chan []byte
	sessionID string
}

// Serve upgrades the request and attaches the connection to a session.
// It returns once the pumps are started.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sessionID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		sessionID: sessionID,
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return ErrHubClosed
	}

	go client.writePump()
	go client.readPump()
	return nil
}

// readPump drains control frames and detects disconnects. Clients do not
// send application messages.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if gwebsocket.IsUnexpectedCloseError(err, gwebsocket.CloseGoingAway, gwebsocket.CloseAbnormalClosure) {
				log := logger.WithComponent("websocket_client")
				log.Debug().Err(err).Str("session_id", c.sessionID).Msg("websocket closed unexpectedly")
			}
			return
		}
	}
}

// writePump forwards queued messages and keeps the connection alive
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(gwebsocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(gwebsocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(gwebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
