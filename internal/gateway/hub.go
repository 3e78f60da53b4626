// internal/gateway/hub.go
package gateway

import (
	"encoding/json"
	"sync"

	"github.com/jason-s-yu/lobbyd/internal/lobby"
	"github.com/sirupsen/logrus"
)

// OpDispatch is the gateway opcode for event dispatches.
const OpDispatch = 0

// Payload is a gateway frame. Only dispatches are sent by this service.
type Payload struct {
	Op       int    `json:"op"`
	Type     string `json:"t,omitempty"`
	Sequence int64  `json:"s,omitempty"`
	Data     any    `json:"d"`
}

// Conn is one authenticated gateway session.
type Conn struct {
	UserID string
	out    chan []byte
	logger logrus.FieldLogger
}

// newConn allocates a connection with a bounded outbound queue.
func newConn(userID string, buffer int, logger logrus.FieldLogger) *Conn {
	return &Conn{
		UserID: userID,
		out:    make(chan []byte, buffer),
		logger: logger,
	}
}

// Write queues a frame without blocking. Frames are dropped when the queue is full.
func (c *Conn) Write(frame []byte) bool {
	select {
	case c.out <- frame:
		return true
	default:
		c.logger.WithField("user_id", c.UserID).Warn("gateway: outbound queue full, dropping frame")
		return false
	}
}

// Hub tracks live gateway sessions by user and dispatches lobby events to them.
// It implements lobby.Notifier.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]map[*Conn]struct{}
	logger logrus.FieldLogger
}

// NewHub returns an empty hub.
func NewHub(logger logrus.FieldLogger) *Hub {
	return &Hub{
		conns:  make(map[string]map[*Conn]struct{}),
		logger: logger,
	}
}

// Register adds a session for its user.
func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[c.UserID]
	if !ok {
		set = make(map[*Conn]struct{})
		h.conns[c.UserID] = set
	}
	set[c] = struct{}{}
}

// Unregister removes a session. Unknown sessions are ignored.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[c.UserID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.conns, c.UserID)
	}
}

// Sessions returns how many sessions userID has open.
func (h *Hub) Sessions(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// Notify encodes evt as a dispatch and queues it on every session of the target
// user: the member for member events, otherwise the owning application.
// The frame's sequence is the store's, so clients can discard stale dispatches.
func (h *Hub) Notify(evt lobby.Event) {
	target := evt.UserID
	if target == "" {
		target = evt.ApplicationID
	}
	if target == "" {
		return
	}

	h.mu.RLock()
	set := h.conns[target]
	if len(set) == 0 {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Conn, 0, len(set))
	for c := range set {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	frame, err := json.Marshal(Payload{
		Op:       OpDispatch,
		Type:     evt.Type,
		Sequence: evt.Seq,
		Data:     evt.Data,
	})
	if err != nil {
		h.logger.WithField("event", evt.Type).Errorf("gateway: failed to encode dispatch: %v", err)
		return
	}
	for _, c := range targets {
		c.Write(frame)
	}
}
