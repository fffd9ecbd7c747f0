package sender

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	maxConnsPerUser = 10
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = pongWait * 9 / 10
)

var errTooManyConns = errors.New("too many connections for user")

// Hub keeps live websocket connections per user and pushes each
// notification to its recipient.
type Hub struct {
	mu       sync.Mutex
	conns    map[string]map[*websocket.Conn]struct{}
	upgrader websocket.Upgrader
	log      logrus.FieldLogger
}

func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		conns: make(map[string]map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: log,
	}
}

func (h *Hub) Name() string { return "websocket" }

func (h *Hub) add(userID string, c *websocket.Conn) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[userID]
	if !ok {
		set = make(map[*websocket.Conn]struct{})
		h.conns[userID] = set
	}
	if len(set) >= maxConnsPerUser {
		return errTooManyConns
	}
	set[c] = struct{}{}
	return nil
}

func (h *Hub) remove(userID string, c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.conns[userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.conns, userID)
		}
	}
}

// connected returns the number of open connections for userID.
func (h *Hub) connected(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns[userID])
}

// Serve upgrades the request and blocks until the client goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := h.add(userID, conn); err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()), time.Now().Add(writeWait))
		return err
	}
	defer h.remove(userID, conn)
	h.log.WithField("user_id", userID).Debug("websocket connected")

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })

	done := make(chan struct{})
	defer close(done)
	go h.ping(userID, conn, done)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil
		}
	}
}

func (h *Hub) ping(userID string, conn *websocket.Conn, done <-chan struct{}) {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			h.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			h.mu.Unlock()
			if err != nil {
				h.remove(userID, conn)
				return
			}
		}
	}
}

// Deliver writes each notification to its recipient's connections.
// Users without a live connection are skipped.
func (h *Hub) Deliver(_ context.Context, b Broadcast) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, n := range b.Notifications {
		set := h.conns[n.UserID]
		if len(set) == 0 {
			continue
		}
		msg, err := json.Marshal(n)
		if err != nil {
			return err
		}
		for c := range set {
			_ = c.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.WithError(err).WithField("user_id", n.UserID).Warn("websocket write failed, dropping connection")
				delete(set, c)
				_ = c.Close()
			}
		}
		if len(set) == 0 {
			delete(h.conns, n.UserID)
		}
	}
	return nil
}
