package server

import (
	"sync"
	"time"

	"gapper-terminal/src/models"

	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// -----------------------------------------------------------------------------
// Client Structure
// -----------------------------------------------------------------------------

type Client struct {
	hub  *RenderServer
	conn *websocket.Conn
	send chan models.MBridgeMessage

	mu       sync.RWMutex
	channels map[string]struct{} // empty: every channel
}

func newClient(hub *RenderServer, conn *websocket.Conn) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan models.MBridgeMessage, 256),
		channels: make(map[string]struct{}),
	}
}

// -----------------------------------------------------------------------------

func (c *Client) subscribe(channels []string) []string {
	clean := normalizeChannels(channels)
	set := make(map[string]struct{}, len(clean))
	for _, ch := range clean {
		set[ch] = struct{}{}
	}
	c.mu.Lock()
	c.channels = set
	c.mu.Unlock()
	return clean
}

// wants filters per-ticker events; replies, state changes and the live feed
// always go through.
func (c *Client) wants(u models.MSessionUpdate) bool {
	if u.Kind != models.UpdateEvent || u.IsLive {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.channels) == 0 {
		return true
	}
	_, ok := c.channels[u.Channel]
	return ok
}

// trySend queues a direct response without blocking. It must not race with
// the hub closing send, so it holds the hub's state lock.
func (c *Client) trySend(msg models.MBridgeMessage) {
	c.hub.stateMutex.RLock()
	defer c.hub.stateMutex.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// -----------------------------------------------------------------------------
// readPump - handles incoming messages from client
// Act as a Watchdog for the connection
// -----------------------------------------------------------------------------

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.quit:
		}
		c.conn.Close()
		c.hub.Logger.Debug("Renderer disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.Logger.Info("WebSocket error: %v", err)
			}
			break
		}
		c.hub.HandleClientMessage(c, message)
	}
}

// -----------------------------------------------------------------------------
// writePump - sends messages to client
// -----------------------------------------------------------------------------

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
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.hub.Logger.Info("Write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
