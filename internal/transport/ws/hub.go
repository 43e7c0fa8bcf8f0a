package ws

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Server-to-client message types
const (
	MsgRankingBuilt       MessageType = "ranking_built"
	MsgRankingReplenished MessageType = "ranking_replenished"
	MsgVisionProcessed    MessageType = "vision_processed"
	MsgConnected          MessageType = "connected"
)

// Message is the WebSocket envelope format
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hub fans notifications out to every open connection of a user
type Hub struct {
	// userID -> open connections (one per tab/device)
	conns map[string]map[*Connection]struct{}

	mu sync.RWMutex

	// Channels for coordination
	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *BroadcastMessage
	done       chan struct{}
	stopped    sync.WaitGroup
	closeOnce  sync.Once

	log *zap.Logger
}

// Connection represents a WebSocket connection
type Connection struct {
	UserID string
	Send   chan []byte
	Hub    *Hub
}

// BroadcastMessage is a message to broadcast
type BroadcastMessage struct {
	UserID  string
	Message *Message
}

// NewHub creates a new WebSocket hub and starts its loop
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		conns:      make(map[string]map[*Connection]struct{}),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
		log:        log.Named("ws"),
	}
	h.stopped.Add(1)
	go h.run()
	return h
}

func (h *Hub) run() {
	defer h.stopped.Done()
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for _, set := range h.conns {
				for conn := range set {
					close(conn.Send)
				}
			}
			h.conns = make(map[string]map[*Connection]struct{})
			h.mu.Unlock()
			return

		case conn := <-h.register:
			h.mu.Lock()
			if h.conns[conn.UserID] == nil {
				h.conns[conn.UserID] = make(map[*Connection]struct{})
			}
			h.conns[conn.UserID][conn] = struct{}{}
			h.mu.Unlock()
			h.log.Debug("user connected", zap.String("user_id", conn.UserID))

		case conn := <-h.unregister:
			h.mu.Lock()
			if set, ok := h.conns[conn.UserID]; ok {
				if _, ok := set[conn]; ok {
					delete(set, conn)
					close(conn.Send)
					if len(set) == 0 {
						delete(h.conns, conn.UserID)
					}
					h.log.Debug("user disconnected", zap.String("user_id", conn.UserID))
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			data, _ := json.Marshal(msg.Message)
			for conn := range h.conns[msg.UserID] {
				select {
				case conn.Send <- data:
				default:
					// Drop message if buffer full
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
		close(conn.Send)
	}
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// BroadcastToUser sends a message to every connection of userID (implements service.Broadcaster)
func (h *Hub) BroadcastToUser(userID string, msgType string, payload interface{}) {
	data, _ := json.Marshal(payload)
	select {
	case h.broadcast <- &BroadcastMessage{
		UserID: userID,
		Message: &Message{
			Type:    MessageType(msgType),
			Payload: data,
		},
	}:
	case <-h.done:
	}
}

// Connections reports how many sockets userID has open
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// Close stops the hub loop and closes every connection's send channel
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
	h.stopped.Wait()
}
