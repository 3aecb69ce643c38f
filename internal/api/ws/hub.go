package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/apm-agent/internal/control"
	"github.com/GriffinCanCode/apm-agent/internal/notify"
	"github.com/GriffinCanCode/apm-agent/internal/shared/id"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxReadSize    = 512
	defaultBacklog = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are checked by the CORS middleware.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Event is one routed notification as written to clients.
type Event struct {
	ID     id.EventID     `json:"id"`
	Level  notify.Level   `json:"level"`
	Text   string         `json:"text"`
	Source control.Source `json:"source"`
	Type   control.Type   `json:"type"`
	SeqNo  int64          `json:"seqNo"`
}

// Counter receives stream metrics.
type Counter interface {
	IncWSConnections()
	DecWSConnections()
	IncWSMessages()
}

type nopCounter struct{}

func (nopCounter) IncWSConnections() {}
func (nopCounter) DecWSConnections() {}
func (nopCounter) IncWSMessages()    {}

type client struct {
	send chan []byte
}

// Hub fans routed notifications out to connected clients.
type Hub struct {
	ids     *id.Generator
	counter Counter
	logger  *zap.Logger
	backlog int

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates a hub. A nil generator uses id.Default; a nil counter
// discards metrics.
func NewHub(ids *id.Generator, counter Counter, logger *zap.Logger) *Hub {
	if ids == nil {
		ids = id.Default()
	}
	if counter == nil {
		counter = nopCounter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		ids:     ids,
		counter: counter,
		logger:  logger,
		backlog: defaultBacklog,
		clients: make(map[*client]struct{}),
	}
}

// Publish streams entries routed for msg. It matches the notify.Router
// observer signature and never blocks on a slow client.
func (h *Hub) Publish(msg control.Message, entries []notify.Entry) {
	if len(entries) == 0 {
		return
	}

	frames := make([][]byte, 0, len(entries))
	for _, e := range entries {
		frame, err := sonic.Marshal(Event{
			ID:     h.ids.NewEventID(),
			Level:  e.Level,
			Text:   e.Text,
			Source: msg.Source,
			Type:   msg.Type,
			SeqNo:  msg.SeqNo,
		})
		if err != nil {
			h.logger.Warn("Failed to encode notification event", zap.Error(err))
			continue
		}
		frames = append(frames, frame)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		for _, frame := range frames {
			select {
			case c.send <- frame:
			default:
				h.logger.Warn("Dropping slow notification client")
				h.removeLocked(c)
			}
			if _, ok := h.clients[c]; !ok {
				break
			}
		}
	}
}

// Handle upgrades the request and streams events until the client leaves.
func (h *Hub) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}

	cl := &client{send: make(chan []byte, h.backlog)}
	if !h.add(cl) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	go h.write(conn, cl)
	h.read(conn)
	h.remove(cl)
}

func (h *Hub) read(conn *websocket.Conn) {
	conn.SetReadLimit(maxReadSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case frame, ok := <-cl.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
			h.counter.IncWSMessages()
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.counter.IncWSConnections()
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.counter.DecWSConnections()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}
