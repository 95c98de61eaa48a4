package realtime

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlesng35/happycat/pkg/logger"
	"github.com/charlesng35/happycat/pkg/metrics"
)

// Message is the envelope pushed to websocket subscribers.
type Message struct {
	Stream string         `json:"stream"`
	Event  string         `json:"event"`
	Data   any            `json:"data,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// Publisher fans a message out to everyone listening on a stream.
type Publisher interface {
	BroadcastStream(stream string, message Message)
}

// Hub tracks live subscribers per stream. The zero value is not usable; call NewHub.
type Hub struct {
	mu       sync.RWMutex
	streams  map[string]map[*subscriber]struct{}
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewHub() *Hub {
	return &Hub{
		streams: make(map[string]map[*subscriber]struct{}),
		log:     logger.WithModule("realtime"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOriginOrLoopback,
		},
	}
}

// Serve upgrades the request and joins the initial streams. A nil allowed set
// lets the client subscribe to anything; otherwise streams outside it are ignored.
// Serve blocks until the client disconnects.
func (h *Hub) Serve(userID string, initial []string, allowed map[string]struct{}, w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade rejected", zap.String("user_id", userID), zap.Error(err))
		return
	}

	sub := newSubscriber(h, ws, userID, allowed)
	metrics.RealtimeConnections.Inc()
	h.join(sub, initial)

	go sub.pumpWrites()
	sub.pumpReads()
}

// Subscribers counts the connections currently joined to stream.
func (h *Hub) Subscribers(stream string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.streams[canonicalStream(stream)])
}

// BroadcastStream delivers message to every subscriber of stream. Slow
// subscribers whose buffer is full are disconnected.
func (h *Hub) BroadcastStream(stream string, message Message) {
	stream = canonicalStream(stream)
	if stream == "" {
		return
	}
	message.Stream = stream

	h.mu.RLock()
	targets := make([]*subscriber, 0, len(h.streams[stream]))
	for sub := range h.streams[stream] {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		sub.deliver(message)
	}
}

func (h *Hub) join(sub *subscriber, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range dedupeStreams(streams) {
		if !sub.permits(stream) {
			h.log.Debug("stream not permitted", zap.String("stream", stream), zap.String("user_id", sub.userID))
			continue
		}
		members := h.streams[stream]
		if members == nil {
			members = make(map[*subscriber]struct{})
			h.streams[stream] = members
		}
		members[sub] = struct{}{}
		sub.joined[stream] = struct{}{}
	}
}

func (h *Hub) leave(sub *subscriber, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range dedupeStreams(streams) {
		h.detachLocked(sub, stream)
	}
}

func (h *Hub) drop(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for stream := range sub.joined {
		h.detachLocked(sub, stream)
	}
}

func (h *Hub) detachLocked(sub *subscriber, stream string) {
	delete(sub.joined, stream)
	members, ok := h.streams[stream]
	if !ok {
		return
	}
	delete(members, sub)
	if len(members) == 0 {
		delete(h.streams, stream)
	}
}
