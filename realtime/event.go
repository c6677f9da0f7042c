package realtime

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
)

// Event types broadcast over the update channel. Clients treat the whole
// payload as an opaque "something changed" signal and re-fetch over REST.
const (
	EventTodoCreated     = "todo.created"
	EventTodoUpdated     = "todo.updated"
	EventTodoDeleted     = "todo.deleted"
	EventTodosReordered  = "todos.reordered"
	EventCategoryCreated = "category.created"
	EventCategoryUpdated = "category.updated"
	EventCategoryDeleted = "category.deleted"
)

// Event is the envelope sent to every open connection after a mutation.
// Origin carries the X-Request-ID of the request that produced the event so
// clients can discard echoes of their own mutations.
type Event struct {
	Type   string          `json:"type"`
	Data   json.RawMessage `json:"data,omitempty"`
	Origin string          `json:"origin,omitempty"`
	Ts     int64           `json:"ts"`
}

// NewEvent builds an event envelope, serializing data with sonic and stamping
// a monotonic timestamp.
func NewEvent(typ string, data any, origin string) (Event, error) {
	raw, err := sonic.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: typ, Data: raw, Origin: origin, Ts: nextTimestamp()}, nil
}

// Marshal serializes the event for the wire.
func (e Event) Marshal() ([]byte, error) {
	return sonic.Marshal(e)
}

var lastTimestamp int64

// nextTimestamp returns strictly increasing nanosecond timestamps even when
// the wall clock stalls between calls.
func nextTimestamp() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastTimestamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, now) {
			return now
		}
	}
}
