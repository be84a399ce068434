// Package websocket fans pipeline events out to browsers watching a project.
package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/makeasinger/showrunner/internal/model"
)

const (
	sendBuffer    = 256
	queueSize     = 256
	pingInterval  = 30 * time.Second
	writeDeadline = 10 * time.Second
)

// Client is one connection subscribed to a single project
type Client struct {
	ProjectID string
	Conn      *websocket.Conn
	Send      chan []byte
}

type envelope struct {
	projectID string
	payload   []byte
}

// Hub tracks subscribers per project and implements service.Notifier.
// Membership changes and deliveries are serialized through Run.
type Hub struct {
	mu       sync.RWMutex
	projects map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	outbound   chan envelope
}

func NewHub() *Hub {
	return &Hub{
		projects:   make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		outbound:   make(chan envelope, queueSize),
	}
}

// Run processes registrations and deliveries until the process exits.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.drop(c)
		case env := <-h.outbound:
			h.deliver(env)
		}
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.projects[c.ProjectID]
	if set == nil {
		set = make(map[*Client]struct{})
		h.projects[c.ProjectID] = set
	}
	set[c] = struct{}{}
	slog.Debug("websocket subscribed", "project_id", c.ProjectID, "subscribers", len(set))
}

// drop closes c.Send exactly once, the first time c is removed.
func (h *Hub) drop(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.projects[c.ProjectID]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.Send)
	if len(set) == 0 {
		delete(h.projects, c.ProjectID)
	}
	slog.Debug("websocket unsubscribed", "project_id", c.ProjectID)
}

func (h *Hub) deliver(env envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.projects[env.projectID] {
		select {
		case c.Send <- env.payload:
		default:
			slog.Warn("websocket subscriber lagging, update dropped", "project_id", env.projectID)
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribers returns the number of clients watching a project.
func (h *Hub) Subscribers(projectID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.projects[projectID])
}

// ProjectStatus pushes a project status change
func (h *Hub) ProjectStatus(projectID string, status model.ProjectStatus, shareID string) {
	h.publish(projectID, model.WSProjectMessage{
		Type:      model.WSMessageTypeProject,
		ProjectID: projectID,
		Status:    status,
		ShareID:   shareID,
	})
}

// TrackStatus pushes a track status change
func (h *Hub) TrackStatus(projectID string, trackNumber int, status model.TrackStatus, audioURL string) {
	h.publish(projectID, model.WSTrackMessage{
		Type:        model.WSMessageTypeTrack,
		ProjectID:   projectID,
		TrackNumber: trackNumber,
		Status:      status,
		AudioURL:    audioURL,
	})
}

// BroadcastError pushes a pipeline failure
func (h *Hub) BroadcastError(projectID string, code, message string) {
	h.publish(projectID, model.WSErrorMessage{
		Type:      model.WSMessageTypeError,
		ProjectID: projectID,
		Error:     model.WSError{Code: code, Message: message},
	})
}

// publish never blocks the caller; when the queue is full the update is lost.
func (h *Hub) publish(projectID string, msg any) {
	payload, err := json.Marshal(msg)
	if err != nil {
		slog.Error("websocket message encoding failed", "project_id", projectID, "error", err)
		return
	}
	select {
	case h.outbound <- envelope{projectID: projectID, payload: payload}:
	default:
		slog.Warn("websocket queue full, update dropped", "project_id", projectID)
	}
}

// HandleConnection subscribes conn to projectID and blocks until the peer
// goes away.
func (h *Hub) HandleConnection(conn *websocket.Conn, projectID string) {
	c := &Client{ProjectID: projectID, Conn: conn, Send: make(chan []byte, sendBuffer)}
	h.Register(c)
	defer h.Unregister(c)

	go c.writeLoop()
	c.readLoop()
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case payload, open := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !open {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop answers application pings; anything else from the browser is ignored.
func (c *Client) readLoop() {
	pong, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})
	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read failed", "project_id", c.ProjectID, "error", err)
			}
			return
		}

		var msg model.WSMessage
		if json.Unmarshal(raw, &msg) != nil || msg.Type != model.WSMessageTypePing {
			continue
		}
		select {
		case c.Send <- pong:
		default:
		}
	}
}
