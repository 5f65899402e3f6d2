package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/givevault/internal/events"
	"github.com/aristath/givevault/internal/utils"
)

const (
	streamBufferSize  = 100
	heartbeatInterval = 30 * time.Second
)

// streamMessage is the JSON form of an event on the SSE and websocket streams
type streamMessage struct {
	Type      string           `json:"type"`
	Module    string           `json:"module,omitempty"`
	Timestamp string           `json:"timestamp"`
	Data      events.EventData `json:"data,omitempty"`
	Message   string           `json:"message,omitempty"`
}

func newStreamMessage(event *events.Event) streamMessage {
	return streamMessage{
		Type:      string(event.Type),
		Module:    event.Module,
		Timestamp: event.Timestamp.Format(time.RFC3339),
		Data:      event.Data,
	}
}

// parseEventTypes reads the comma separated types filter. An empty filter
// selects every known type; unknown names are ignored.
func parseEventTypes(filter string) []events.EventType {
	requested := utils.ParseCSV(filter)
	if len(requested) == 0 {
		return events.AllEventTypes
	}
	known := make(map[events.EventType]bool, len(events.AllEventTypes))
	for _, t := range events.AllEventTypes {
		known[t] = true
	}
	var out []events.EventType
	for _, name := range requested {
		t := events.EventType(strings.ToUpper(name))
		if known[t] {
			out = append(out, t)
		}
	}
	return out
}

// subscription forwards bus events of the given types to a buffered
// channel. Events are dropped when the reader falls behind.
type subscription struct {
	bus *events.Bus
	ids []uint64
	C   chan *events.Event
}

func subscribe(bus *events.Bus, types []events.EventType, log zerolog.Logger) *subscription {
	sub := &subscription{bus: bus, C: make(chan *events.Event, streamBufferSize)}
	handler := func(event *events.Event) {
		select {
		case sub.C <- event:
		default:
			log.Warn().
				Str("event_type", string(event.Type)).
				Msg("Event channel full, dropping event")
		}
	}
	for _, t := range types {
		sub.ids = append(sub.ids, bus.Subscribe(t, handler))
	}
	return sub
}

// Close removes every bus subscription
func (s *subscription) Close() {
	for _, id := range s.ids {
		s.bus.Unsubscribe(id)
	}
	s.ids = nil
}

// EventsStreamHandler handles Server-Sent Events streaming of vault events.
type EventsStreamHandler struct {
	eventBus *events.Bus
	log      zerolog.Logger
}

// NewEventsStreamHandler creates a new events stream handler.
func NewEventsStreamHandler(eventBus *events.Bus, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		eventBus: eventBus,
		log:      log.With().Str("component", "events_stream").Logger(),
	}
}

// ServeHTTP handles GET /api/events/stream requests (SSE).
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	types := parseEventTypes(r.URL.Query().Get("types"))
	if len(types) == 0 {
		http.Error(w, "No known event types requested", http.StatusBadRequest)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := subscribe(h.eventBus, types, h.log)
	defer sub.Close()

	h.log.Info().Int("event_types", len(types)).Msg("Client connected to event stream")

	h.send(w, flusher, streamMessage{
		Type:      "connected",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Message:   "Connected to vault event stream",
	})

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.log.Info().Msg("Client disconnected from event stream")
			return

		case event := <-sub.C:
			h.send(w, flusher, newStreamMessage(event))

		case <-heartbeat.C:
			h.send(w, flusher, streamMessage{
				Type:      "heartbeat",
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			})
		}
	}
}

func (h *EventsStreamHandler) send(w http.ResponseWriter, flusher http.Flusher, msg streamMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Str("event_type", msg.Type).Msg("Failed to marshal event")
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}
