// Package event is a small in-process signal hub. Workflow operations
// publish after their transaction commits; tests and auxiliary
// listeners subscribe to observe that an operation really happened
// without reaching into storage.
package event

import "sync"

// Signal names published by the parcel workflow.
const (
	ParcelCreated     = "parcel-created"
	FileUploaded      = "file-uploaded"
	ParcelFinalized   = "parcel-finalized"
	ParcelDeleted     = "parcel-deleted"
	ParcelFileDeleted = "parcel-file-deleted"
)

// Event carries the facts of one committed workflow operation.
type Event struct {
	Signal   string
	Parcel   string
	Actor    string
	Filename string
	// NextParcel is set on finalize events.
	NextParcel string
}

// Hub fans events out to subscribers. Safe for concurrent use.
type Hub struct {
	mu   sync.RWMutex
	next int
	subs map[string]map[int]func(Event)
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int]func(Event))}
}

// Subscribe registers fn for a signal and returns an unsubscribe
// function.
func (h *Hub) Subscribe(signal string, fn func(Event)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[signal] == nil {
		h.subs[signal] = make(map[int]func(Event))
	}
	id := h.next
	h.next++
	h.subs[signal][id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[signal], id)
	}
}

// Publish delivers ev to every subscriber of its signal, in the
// calling goroutine.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	fns := make([]func(Event), 0, len(h.subs[ev.Signal]))
	for _, fn := range h.subs[ev.Signal] {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(ev)
	}
}
