package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kbdesk/backend/internal/models"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// WebSocket message types
const (
	// Client -> Server messages
	MsgTypePing = "ping"

	// Server -> Client messages
	MsgTypeConnected    = "connected"
	MsgTypeStagingState = "staging:state"
	MsgTypeTranscript   = "chat:transcript"
	MsgTypePong         = "pong"
	MsgTypeError        = "error"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 32
)

// WebSocket message structure
type WSMessage struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WebSocket error response
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan WSMessage
	once sync.Once
}

func (cl *wsClient) close() {
	cl.once.Do(func() { close(cl.send) })
}

// Hub pushes widget and transcript snapshots to every connected browser.
type Hub struct {
	upgrader       websocket.Upgrader
	widget         Widget
	relay          Relay
	maxMessageSize int64

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

// NewHub creates a hub and subscribes it to widget and relay changes.
func NewHub(w Widget, relay Relay, maxMessageKB int) *Hub {
	if maxMessageKB <= 0 {
		maxMessageKB = 64
	}
	h := &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from dev server
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		widget:         w,
		relay:          relay,
		maxMessageSize: int64(maxMessageKB) * 1024,
		clients:        make(map[*wsClient]struct{}),
	}
	w.Subscribe(func(v models.UploadView) {
		h.Broadcast(MsgTypeStagingState, v)
	})
	relay.Subscribe(func(entries []models.ChatEntry) {
		h.Broadcast(MsgTypeTranscript, entries)
	})
	return h
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast queues a message for every client. Clients whose queue is full
// are dropped.
func (h *Hub) Broadcast(msgType string, payload interface{}) {
	msg := newMessage(msgType, payload)

	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		select {
		case cl.send <- msg:
		default:
			log.Warn().Msg("[ws] client too slow, disconnecting")
			delete(h.clients, cl)
			cl.close()
		}
	}
}

// HandleWebSocket upgrades the connection, sends the current state and then
// relays pushes until the client goes away
func (h *Hub) HandleWebSocket(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	cl := &wsClient{conn: conn, send: make(chan WSMessage, sendBuffer)}
	cl.send <- newMessage(MsgTypeConnected, nil)
	cl.send <- newMessage(MsgTypeStagingState, h.widget.View())
	cl.send <- newMessage(MsgTypeTranscript, h.relay.Transcript())

	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()
	log.Debug().Int("clients", h.ClientCount()).Msg("[ws] client connected")

	go h.writePump(cl)
	h.readPump(cl)

	h.mu.Lock()
	if _, ok := h.clients[cl]; ok {
		delete(h.clients, cl)
		cl.close()
	}
	h.mu.Unlock()
	log.Debug().Msg("[ws] client disconnected")
	return nil
}

func (h *Hub) readPump(cl *wsClient) {
	cl.conn.SetReadLimit(h.maxMessageSize)
	cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg WSMessage
		if err := cl.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("[ws] connection error")
			}
			return
		}

		var reply WSMessage
		switch msg.Type {
		case MsgTypePing:
			reply = newMessage(MsgTypePong, nil)
		default:
			reply = newMessage(MsgTypeError, WSErrorResponse{
				Message: "Unknown message type: " + msg.Type,
				Code:    "INVALID_TYPE",
			})
		}

		h.mu.Lock()
		if _, ok := h.clients[cl]; ok {
			select {
			case cl.send <- reply:
			default:
			}
		}
		h.mu.Unlock()
	}
}

// writePump owns all writes on the connection.
func (h *Hub) writePump(cl *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Msg("[ws] failed to send message")
				return
			}
		case <-ticker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func newMessage(msgType string, payload interface{}) WSMessage {
	msg := WSMessage{Type: msgType, Timestamp: time.Now().UnixMilli()}
	if payload != nil {
		msg.Payload = mustJSON(payload)
	}
	return msg
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
