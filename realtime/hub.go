package realtime

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Conn is one registered update connection. Send must be safe for concurrent
// use; the hub serializes nothing beyond its own registry.
type Conn interface {
	Send(data []byte) error
	Close() error
}

// Hub keeps the set of open update connections and fans change events out to
// all of them. One instance per server process, constructor-injected wherever
// it is needed so tests can run isolated hubs in parallel.
type Hub struct {
	logger *log.Logger

	mu    sync.Mutex
	conns map[Conn]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Hub{logger: logger, conns: make(map[Conn]struct{})}
}

// Register adds a connection to the live set.
func (h *Hub) Register(c Conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a connection. Removing an absent connection is a no-op.
func (h *Hub) Unregister(c Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Broadcast serializes the event once and delivers it to every registered
// connection. Delivery is best-effort: a connection that fails to accept the
// write is dropped and closed, and the caller never sees an error.
func (h *Hub) Broadcast(ev Event) {
	data, err := ev.Marshal()
	if err != nil {
		h.logger.WithError(err).Error("marshal event")
		return
	}
	h.BroadcastRaw(data)
}

// BroadcastRaw fans pre-serialized bytes out to every registered connection.
func (h *Hub) BroadcastRaw(data []byte) {
	h.mu.Lock()
	conns := make([]Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		if err := c.Send(data); err != nil {
			h.logger.WithError(err).Debug("drop broken update connection")
			h.Unregister(c)
			_ = c.Close()
		}
	}
}
