package websocket

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"tradelink/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// Client wraps one websocket connection. Writes go through the Send
// channel so the write pump is the only goroutine touching the
// connection for output.
type Client struct {
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte
}

func NewClient(userID string, conn *websocket.Conn) *Client {
	return &Client{
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, sendBufferSize),
	}
}

// SendJSON queues a payload for delivery. A client whose buffer is full
// loses the payload rather than blocking the caller.
func (c *Client) SendJSON(payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("SendJSON: failed to marshal payload: %v", err)
		return
	}
	select {
	case c.Send <- data:
	default:
		logger.Warn("SendJSON: dropping payload for slow client user=%s", c.UserID)
	}
}

// WritePump drains the Send channel onto the connection and keeps the
// connection alive with pings. It exits when Send is closed or a write
// fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
