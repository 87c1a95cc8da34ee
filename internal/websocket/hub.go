package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/sirupsen/logrus"

	"github.com/medcast/podcast-tracker/internal/model"
	"github.com/medcast/podcast-tracker/internal/tracker"
)

// Failure codes carried by "failed" messages
const (
	CodeConnectionLost   = "CONNECTION_LOST"
	CodeGenerationFailed = "GENERATION_FAILED"
)

const (
	sendBuffer      = 256
	broadcastBuffer = 256
	pingInterval    = 30 * time.Second
)

// Client represents a WebSocket viewer of the tracker
type Client struct {
	Conn *websocket.Conn
	Send chan []byte
}

// NewClient creates a client with a buffered send queue
func NewClient(conn *websocket.Conn) *Client {
	return &Client{Conn: conn, Send: make(chan []byte, sendBuffer)}
}

// Hub fans tracker events out to every connected viewer. It implements
// tracker.Listener and tracker.LogListener; event methods never block.
type Hub struct {
	clients map[*Client]bool

	// Register requests
	register chan *Client

	// Unregister requests
	unregister chan *Client

	// Broadcast messages to all viewers
	broadcast chan []byte

	done   chan struct{}
	logger logrus.FieldLogger
	mu     sync.RWMutex
}

var (
	_ tracker.Listener    = (*Hub)(nil)
	_ tracker.LogListener = (*Hub)(nil)
)

// NewHub creates a new Hub
func NewHub(logger logrus.FieldLogger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, broadcastBuffer),
		done:       make(chan struct{}),
		logger:     logger.WithField("component", "ws_hub"),
	}
}

// Run starts the hub's main loop. It returns when ctx is done, closing every
// client's send queue.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.WithField("clients", count).Debug("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.WithField("clients", count).Debug("client unregistered")

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.Send <- msg:
				default:
					close(client.Send)
					delete(h.clients, client)
					h.logger.Warn("dropped slow websocket client")
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.Send)
		delete(h.clients, client)
	}
}

// Register adds a new client. After Run has returned the client's send
// queue is closed instead.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.Send)
	}
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount returns the number of connected viewers
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) OnStarted(job model.Job) {
	h.publish(model.WSJobMessage{Type: model.WSMessageTypeStarted, JobID: job.ID, Job: job})
}

func (h *Hub) OnStatusChanged(job model.Job, progress model.ProgressSnapshot) {
	h.publish(model.WSStatusMessage{Type: model.WSMessageTypeStatus, JobID: job.ID, Job: job, Progress: progress})
}

func (h *Hub) OnCompleted(job model.Job) {
	h.publish(model.WSJobMessage{Type: model.WSMessageTypeCompleted, JobID: job.ID, Job: job})
}

func (h *Hub) OnFailed(job model.Job, err error) {
	h.publish(model.WSFailedMessage{
		Type:  model.WSMessageTypeFailed,
		JobID: job.ID,
		Job:   job,
		Error: model.WSError{Code: failureCode(err), Message: job.ErrorMessage},
	})
}

// OnLogAppended runs under the controller lock; publish never blocks.
func (h *Hub) OnLogAppended(entry model.LogEntry) {
	h.publish(model.WSLogMessage{Type: model.WSMessageTypeLog, Entry: entry})
}

func (h *Hub) publish(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.WithError(err).Error("failed to marshal websocket message")
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("broadcast queue full, dropping message")
	}
}

func failureCode(err error) string {
	var terr *tracker.TransportError
	if errors.As(err, &terr) {
		return CodeConnectionLost
	}
	return CodeGenerationFailed
}

// HandleConnection serves one viewer until it disconnects. greeting, when
// non-nil, is sent before any broadcast.
func (h *Hub) HandleConnection(c *websocket.Conn, greeting interface{}) {
	client := NewClient(c)
	pongs := make(chan struct{}, 1)
	if greeting != nil {
		if data, err := json.Marshal(greeting); err == nil {
			client.Send <- data
		}
	}

	h.Register(client)
	defer h.Unregister(client)

	// Start writer goroutine
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					_ = c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-pongs:
				pong, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})
				if err := c.WriteMessage(websocket.TextMessage, pong); err != nil {
					return
				}

			case <-ticker.C:
				// Send ping for keep-alive
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.WithError(err).Warn("websocket read error")
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			select {
			case pongs <- struct{}{}:
			default:
			}
		}
	}
}
