package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agent-pilot/responderd/internal/monitor"
)

// eventFrame is what subscribers receive for every recorded decision.
type eventFrame struct {
	Type        string    `json:"type"`
	Session     string    `json:"session"`
	Target      string    `json:"target"`
	Category    string    `json:"category"`
	Preset      string    `json:"preset"`
	Action      string    `json:"action"`
	Reason      string    `json:"reason"`
	Fingerprint string    `json:"fingerprint"`
	DecidedAt   time.Time `json:"decided_at"`
}

// Hub fans decisions out to websocket subscribers. A slow subscriber is
// dropped rather than backing up the monitor loops.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
	log     zerolog.Logger
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The control API binds to loopback; origin checks add nothing here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{clients: make(map[*websocket.Conn]chan []byte), log: log}
}

// Record implements monitor.Sink so the hub can sit beside the audit log.
func (h *Hub) Record(dec monitor.Decision) error {
	frame := eventFrame{
		Type:        "decision",
		Session:     dec.Event.SessionName,
		Target:      dec.Event.Target,
		Category:    string(dec.Category),
		Preset:      dec.Preset,
		Action:      string(dec.Action),
		Reason:      dec.Reason,
		Fingerprint: dec.Event.Fingerprint,
		DecidedAt:   dec.DecidedAt,
	}
	b, err := json.Marshal(frame)
	if err != nil {
		return nil
	}
	h.broadcast(b)
	return nil
}

func (h *Hub) broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		select {
		case ch <- msg:
		default:
			delete(h.clients, conn)
			close(ch)
			conn.Close()
		}
	}
}

// ServeHTTP upgrades the request and streams frames until the client
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()

	go h.writeLoop(conn, ch)

	// Drain reads to notice disconnects; the stream is one-way.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(conn)
}

func (h *Hub) writeLoop(conn *websocket.Conn, ch chan []byte) {
	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(conn)
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(conn)
				return
			}
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(ch)
	}
	h.mu.Unlock()
	conn.Close()
}

// Close disconnects every subscriber, used at shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		delete(h.clients, conn)
		close(ch)
		conn.Close()
	}
}
