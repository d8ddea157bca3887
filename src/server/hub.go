package server

import (
	"context"
	"net/http"

	"gapper-terminal/src/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// -----------------------------------------------------------------------------

// handleWebsockets is the main Hub loop
func (s *RenderServer) handleWebsockets() {
	for {
		select {
		case <-s.quit:
			s.stateMutex.Lock()
			for client := range s.clients {
				delete(s.clients, client)
				close(client.send)
			}
			s.stateMutex.Unlock()
			return

		case client := <-s.register:
			s.stateMutex.Lock()
			s.clients[client] = struct{}{}
			snapshot := s.latestState
			s.stateMutex.Unlock()
			client.send <- models.MBridgeMessage{Type: models.BridgeSnapshot, Data: snapshot}

		case client := <-s.unregister:
			s.stateMutex.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				close(client.send)
			}
			s.stateMutex.Unlock()

		case update := <-s.broadcast:
			msg := models.MBridgeMessage{Type: models.BridgeUpdate, Data: update}
			s.stateMutex.Lock()
			for client := range s.clients {
				if !client.wants(update) {
					continue
				}
				select {
				case client.send <- msg:
				default:
					// Slow renderer; drop it rather than stall the hub
					delete(s.clients, client)
					close(client.send)
				}
			}
			s.stateMutex.Unlock()
		}
	}
}

// -----------------------------------------------------------------------------
// Data Exchange Interface Implementation
// -----------------------------------------------------------------------------

// UpdateAllDatas replaces the snapshot sent to newly connected renderers.
func (s *RenderServer) UpdateAllDatas(data interface{}) {
	snap, ok := asSnapshot(data)
	if !ok {
		s.Logger.Info("UpdateAllDatas expected models.MSessionSnapshot, got %T", data)
		return
	}
	s.stateMutex.Lock()
	s.latestState = snap
	s.stateMutex.Unlock()
}

// -----------------------------------------------------------------------------

// Broadcast queues a session update for every interested renderer.
func (s *RenderServer) Broadcast(message interface{}) {
	update, ok := asUpdate(message)
	if !ok {
		s.Logger.Info("Broadcast expected models.MSessionUpdate, got %T", message)
		return
	}
	select {
	case s.broadcast <- update:
	case <-s.quit:
	default:
		s.Logger.Warning("Broadcast queue full, dropping %s update", update.Kind)
	}
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *RenderServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := newClient(s, conn)
	select {
	case s.register <- client:
	case <-s.quit:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// -----------------------------------------------------------------------------
// Client Message Handling
// -----------------------------------------------------------------------------

func (s *RenderServer) HandleClientMessage(client *Client, message []byte) {
	cmd, err := decodeClientMessage(message)
	if err != nil {
		s.Logger.Info("Bad client command: %v", err)
		client.trySend(models.MBridgeMessage{Type: models.BridgeError, Data: err.Error()})
		return
	}

	switch cmd.Command {
	case "subscribe":
		channels := client.subscribe(cmd.Channels)
		client.trySend(models.MBridgeMessage{Type: models.BridgeSubscribed, Data: channels})

	case "submit":
		// The reply reaches every renderer through Broadcast.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
			defer cancel()
			s.session.Submit(ctx, cmd.Text)
		}()
	}
}
