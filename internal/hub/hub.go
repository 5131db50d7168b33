// Package hub streams session events to browsers as Server-Sent Events.
//
// Each frame carries the event type as the SSE event name and a sequence
// number as its id. Clients may narrow the stream with a comma separated
// ?types= query, e.g. /events?types=graph_loaded,selection_changed to skip
// layout ticks.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vouchgraph/internal/service"
)

// KeepAliveInterval is how often idle connections receive a comment line
const KeepAliveInterval = 30 * time.Second

const clientBuffer = 64

type subscriber struct {
	id     string
	types  map[service.EventType]struct{}
	frames chan []byte
}

func (s *subscriber) wants(t service.EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Hub fans events out to SSE subscribers. Run owns the subscriber set.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	join   chan *subscriber
	leave  chan *subscriber
	events chan service.Event
	logger *zap.Logger
}

// New creates a hub; call Run to start delivering
func New(logger *zap.Logger) *Hub {
	return &Hub{
		subs:   make(map[*subscriber]struct{}),
		join:   make(chan *subscriber),
		leave:  make(chan *subscriber),
		events: make(chan service.Event, 256),
		logger: logger,
	}
}

// Run delivers events until ctx is done, then disconnects every subscriber
func (h *Hub) Run(ctx context.Context) {
	var seq uint64
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for s := range h.subs {
				delete(h.subs, s)
				close(s.frames)
			}
			h.mu.Unlock()
			return

		case s := <-h.join:
			h.mu.Lock()
			h.subs[s] = struct{}{}
			n := len(h.subs)
			h.mu.Unlock()
			h.logger.Info("SSE client connected", zap.String("client", s.id), zap.Int("total", n))

		case s := <-h.leave:
			h.mu.Lock()
			if _, ok := h.subs[s]; ok {
				delete(h.subs, s)
				close(s.frames)
			}
			n := len(h.subs)
			h.mu.Unlock()
			h.logger.Info("SSE client disconnected", zap.String("client", s.id), zap.Int("total", n))

		case ev := <-h.events:
			seq++
			frame, err := encodeFrame(seq, ev)
			if err != nil {
				h.logger.Error("Failed to encode event", zap.String("type", string(ev.Type)), zap.Error(err))
				continue
			}
			h.deliver(ev.Type, frame)
		}
	}
}

func (h *Hub) deliver(t service.EventType, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		if !s.wants(t) {
			continue
		}
		select {
		case s.frames <- frame:
		default:
			h.logger.Warn("SSE client is slow, skipping event", zap.String("client", s.id), zap.String("type", string(t)))
		}
	}
}

// encodeFrame renders one SSE frame; data is the whole event as JSON
func encodeFrame(seq uint64, ev service.Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, ev.Type, data)), nil
}

// Broadcast queues ev for delivery. It never blocks; when the queue is
// full the event is dropped.
func (h *Hub) Broadcast(ev service.Event) {
	select {
	case h.events <- ev:
	default:
		h.logger.Warn("Broadcast queue full, dropping event", zap.String("type", string(ev.Type)))
	}
}

// ClientCount returns the number of connected subscribers
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func parseTypes(raw string) map[service.EventType]struct{} {
	types := make(map[service.EventType]struct{})
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			types[service.EventType(t)] = struct{}{}
		}
	}
	return types
}

// ServeHTTP streams events to one subscriber until it disconnects
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	s := &subscriber{
		id:     uuid.NewString(),
		types:  parseTypes(r.URL.Query().Get("types")),
		frames: make(chan []byte, clientBuffer),
	}

	select {
	case h.join <- s:
	case <-r.Context().Done():
		return
	}
	defer func() {
		select {
		case h.leave <- s:
		case <-time.After(time.Second):
		}
	}()

	fmt.Fprintf(w, ": connected %s\n\n", s.id)
	flusher.Flush()

	keepAlive := time.NewTicker(KeepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case frame, ok := <-s.frames:
			if !ok {
				return
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			flusher.Flush()

		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
