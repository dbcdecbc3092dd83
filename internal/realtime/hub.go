package realtime

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/seedrank/backend/internal/contracts"
	"github.com/wonny/seedrank/backend/pkg/logger"
)

const (
	// Ping/Pong settings
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second

	clientBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type client struct {
	conn   *websocket.Conn
	out    chan interface{}
	family contracts.StrategyFamily // "" = 전체
}

// Hub fans finished runs out to websocket clients.
// Slow clients drop messages instead of blocking the run.
// ⭐ SSOT: 실행 결과 실시간 전파는 여기서만
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	history []RunEvent
	limit   int
	topN    int

	logger *logger.Logger
}

// NewHub creates a hub that replays the last historyLimit runs
func NewHub(historyLimit, topN int, log *logger.Logger) *Hub {
	if topN <= 0 {
		topN = 10
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		history: make([]RunEvent, 0, historyLimit),
		limit:   historyLimit,
		topN:    topN,
		logger:  log,
	}
}

// OnRun implements contracts.RunListener
func (h *Hub) OnRun(batch contracts.RecommendationBatch) {
	ev := NewRunEvent(batch, h.topN)

	h.mu.Lock()
	if h.limit > 0 {
		h.history = append(h.history, ev)
		if len(h.history) > h.limit {
			h.history = h.history[len(h.history)-h.limit:]
		}
	}
	h.mu.Unlock()

	h.broadcast(ev)
}

// History returns recent runs, optionally for one family
func (h *Hub) History(family contracts.StrategyFamily) []RunEvent {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]RunEvent, 0, len(h.history))
	for _, ev := range h.history {
		if family == "" || ev.StrategyFamily == family {
			out = append(out, ev)
		}
	}
	return out
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(ev RunEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if c.family != "" && c.family != ev.StrategyFamily {
			continue
		}
		select {
		case c.out <- ev:
		default:
			h.logger.WithField("run_id", ev.RunID).Debug("Feed client too slow, dropping run")
		}
	}
}

// ServeHTTP upgrades to a websocket. ?family= limits the feed to one family.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var family contracts.StrategyFamily
	if raw := r.URL.Query().Get("family"); raw != "" {
		f, err := contracts.ParseStrategyFamily(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		family = f
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	c := &client{conn: conn, out: make(chan interface{}, clientBuffer), family: family}
	c.out <- StatusMessage{Type: TypeStatus, Text: "connected"}
	c.out <- HistoryMessage{Type: TypeHistory, Runs: h.History(family)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.WithField("family", family).Debug("Feed client connected")

	done := make(chan struct{})
	go h.writeLoop(c, done)
	h.readLoop(c)

	close(done)
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	conn.Close()

	h.logger.WithField("family", family).Debug("Feed client disconnected")
}

// readLoop only services control frames; clients do not send data
func (h *Hub) readLoop(c *client) {
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.conn.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.conn.Close()
				return
			}
		case <-done:
			return
		}
	}
}
