package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/michaelbrown/cadforge/internal/agent"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // served on a trusted network
	},
}

// wsIncoming is a message from the client.
type wsIncoming struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// wsOutgoing is a message to the client.
type wsOutgoing struct {
	Type    string `json:"type"`
	CycleID string `json:"cycle_id,omitempty"`
	Content string `json:"content,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// wsClient serialises writes to one connection.
type wsClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsClient) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// hub tracks connected clients. Every cycle event goes to all of them.
type hub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
	logger  *zap.Logger
}

func newHub(logger *zap.Logger) *hub {
	return &hub{clients: make(map[*wsClient]struct{}), logger: logger}
}

func (h *hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *hub) snapshot() []*wsClient {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

func (h *hub) broadcast(ev agent.Event) {
	msg := wsOutgoing{Type: ev.Type, CycleID: ev.CycleID, Data: ev.Data}
	for _, c := range h.snapshot() {
		if err := c.send(msg); err != nil {
			h.logger.Debug("websocket write failed", zap.Error(err))
		}
	}
}

func (h *hub) closeAll() {
	for _, c := range h.snapshot() {
		c.conn.Close()
		h.remove(c)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Warn("websocket upgrade error", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxBodyBytes)

	client := &wsClient{conn: conn}
	s.hub.add(client)
	defer s.hub.remove(client)

	for {
		var msg wsIncoming
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.Logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		content := strings.TrimSpace(msg.Content)
		if msg.Type != "request" || content == "" {
			client.send(wsOutgoing{Type: "error", Content: "invalid message"})
			continue
		}

		// progress arrives through Broadcast; the final cycle is also sent
		// to the requesting client
		c := s.Processor.Process(r.Context(), content)
		client.send(wsOutgoing{Type: "done", CycleID: c.ID, Data: c})
	}
}
