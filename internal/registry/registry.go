package registry

import (
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/taraworks/taravoice/internal/observability"
)

var ErrNotFound = errors.New("connection not found")

// Conn is the write side of a downstream client connection. The concrete
// implementation lives in httpapi and serializes writes onto the socket.
type Conn interface {
	SendRaw(data []byte) error
	SendJSON(v any) error
	Close() error
}

type entry struct {
	id       string
	conn     Conn
	attached bool
}

// Registry tracks the set of connected downstream clients and fans upstream
// events out to all of them. Entries are ephemeral: added on websocket
// connect, removed on close or error.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	metrics *observability.Metrics
}

func New(metrics *observability.Metrics) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		metrics: metrics,
	}
}

// Register adds a connection and returns its identity.
func (r *Registry) Register(conn Conn) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.entries[id] = &entry{id: id, conn: conn}
	count := len(r.entries)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ActiveConnections.Set(float64(count))
		r.metrics.ConnectionEvents.WithLabelValues("connected").Inc()
	}
	return id
}

func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	_, ok := r.entries[id]
	delete(r.entries, id)
	count := len(r.entries)
	r.mu.Unlock()

	if ok && r.metrics != nil {
		r.metrics.ActiveConnections.Set(float64(count))
		r.metrics.ConnectionEvents.WithLabelValues("disconnected").Inc()
	}
}

// SetAttached marks whether the connection has completed a session init.
func (r *Registry) SetAttached(id string, attached bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return ErrNotFound
	}
	e.attached = attached
	return nil
}

func (r *Registry) Attached(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return ok && e.attached
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// BroadcastRaw sends a serialized envelope to every registered connection.
// Iteration runs over a snapshot so connects and disconnects during the
// fan-out cannot race the map. A failed send is logged and ignored; one
// misbehaving client must not disturb delivery to the others.
func (r *Registry) BroadcastRaw(data []byte) {
	r.mu.RLock()
	snapshot := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		snapshot = append(snapshot, e)
	}
	r.mu.RUnlock()

	for _, e := range snapshot {
		if err := e.conn.SendRaw(data); err != nil {
			log.Printf("registry: broadcast to %s failed: %v", e.id, err)
			if r.metrics != nil {
				r.metrics.BroadcastErrors.Inc()
			}
		}
	}
}
