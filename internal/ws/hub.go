package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// Event is the envelope every sync notification is sent in.
type Event struct {
	Type      string      `json:"type"`
	Action    string      `json:"action"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

const eventType = "sync_event"

type Hub struct {
	Clients    map[*websocket.Conn]bool
	Register   chan *websocket.Conn
	Unregister chan *websocket.Conn
	Broadcast  chan []byte
	mutex      sync.Mutex
	logger     *log.Logger
}

func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		Clients:    make(map[*websocket.Conn]bool),
		Register:   make(chan *websocket.Conn),
		Unregister: make(chan *websocket.Conn),
		Broadcast:  make(chan []byte, 64),
		logger:     logger,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.Register:
			h.mutex.Lock()
			h.Clients[conn] = true
			h.mutex.Unlock()
			h.logger.Println("New WS client connected")

		case conn := <-h.Unregister:
			h.mutex.Lock()
			if _, ok := h.Clients[conn]; ok {
				delete(h.Clients, conn)
				conn.Close()
			}
			h.mutex.Unlock()

		case message := <-h.Broadcast:
			h.mutex.Lock()
			for conn := range h.Clients {
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					conn.Close()
					delete(h.Clients, conn)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// ClientCount returns the number of connected sockets.
func (h *Hub) ClientCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.Clients)
}

// Publish queues a sync event for every client. When the buffer is full the
// event is dropped so a slow socket never stalls a sync run.
func (h *Hub) Publish(action string, payload interface{}) {
	msg, err := Encode(action, payload)
	if err != nil {
		h.logger.Printf("Failed to encode %s event: %v", action, err)
		return
	}
	select {
	case h.Broadcast <- msg:
	default:
		h.logger.Printf("Broadcast buffer full, dropping %s event", action)
	}
}

// Encode builds the JSON frame for an event.
func Encode(action string, payload interface{}) ([]byte, error) {
	return json.Marshal(Event{
		Type:      eventType,
		Action:    action,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
}
