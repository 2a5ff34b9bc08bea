package stream

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

const keepAliveInterval = 15 * time.Second

// EventsHandler serves broadcast values as a Server-Sent Events stream, one
// JSON object per event.
type EventsHandler[T any] struct {
	events *Broadcaster[T]
	name   string // SSE event name
}

// NewEventsHandler creates an SSE handler that tags every event with name.
func NewEventsHandler[T any](events *Broadcaster[T], name string) *EventsHandler[T] {
	return &EventsHandler[T]{events: events, name: name}
}

func (h *EventsHandler[T]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	listener := h.events.Subscribe()
	defer h.events.Unsubscribe(listener)
	log.Printf("Events listener connected (total: %d)", h.events.ListenerCount())

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-listener.Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		case v := <-listener.C:
			data, err := json.Marshal(v)
			if err != nil {
				log.Printf("Events: marshal error: %v", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", h.name, data); err != nil {
				return
			}
		}
		flusher.Flush()
	}
}
