package realtime

import (
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlesng35/happycat/pkg/metrics"
)

const (
	writeDeadline  = 10 * time.Second
	idleTimeout    = 60 * time.Second
	pingInterval   = idleTimeout * 9 / 10
	maxFrameBytes  = 1 << 20
	outboxCapacity = 64
)

// command is a client frame asking to change its stream membership.
type command struct {
	Action  string   `json:"action"`
	Streams []string `json:"streams"`
}

type subscriber struct {
	hub     *Hub
	ws      *websocket.Conn
	userID  string
	allowed map[string]struct{}

	// joined is guarded by hub.mu.
	joined map[string]struct{}

	outbox chan Message
	closed chan struct{}
	once   sync.Once
}

func newSubscriber(hub *Hub, ws *websocket.Conn, userID string, allowed map[string]struct{}) *subscriber {
	return &subscriber{
		hub:     hub,
		ws:      ws,
		userID:  userID,
		allowed: allowed,
		joined:  make(map[string]struct{}),
		outbox:  make(chan Message, outboxCapacity),
		closed:  make(chan struct{}),
	}
}

func (s *subscriber) permits(stream string) bool {
	if s.allowed == nil {
		return true
	}
	_, ok := s.allowed[stream]
	return ok
}

func (s *subscriber) deliver(message Message) {
	select {
	case <-s.closed:
	case s.outbox <- message:
	default:
		s.hub.log.Warn("subscriber too slow, disconnecting", zap.String("user_id", s.userID))
		go s.shutdown()
	}
}

func (s *subscriber) pumpReads() {
	defer s.shutdown()

	s.ws.SetReadLimit(maxFrameBytes)
	extend := func(string) error { return s.ws.SetReadDeadline(time.Now().Add(idleTimeout)) }
	_ = extend("")
	s.ws.SetPongHandler(extend)

	for {
		_, frame, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.hub.log.Debug("websocket closed unexpectedly", zap.String("user_id", s.userID), zap.Error(err))
			}
			return
		}
		if len(frame) > 0 {
			s.handle(frame)
		}
	}
}

func (s *subscriber) handle(frame []byte) {
	var cmd command
	if err := json.Unmarshal(frame, &cmd); err != nil {
		s.hub.log.Debug("malformed client frame", zap.String("user_id", s.userID), zap.Error(err))
		return
	}

	switch strings.ToLower(strings.TrimSpace(cmd.Action)) {
	case "subscribe":
		s.hub.join(s, cmd.Streams)
	case "unsubscribe":
		s.hub.leave(s, cmd.Streams)
	case "ping":
		s.deliver(Message{Event: "pong"})
	default:
		s.hub.log.Debug("unknown client action", zap.String("action", cmd.Action), zap.String("user_id", s.userID))
	}
}

func (s *subscriber) pumpWrites() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.shutdown()
	}()

	for {
		select {
		case <-s.closed:
			_ = s.ws.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeDeadline))
			return
		case message := <-s.outbox:
			frame, err := json.Marshal(message)
			if err != nil {
				s.hub.log.Warn("encode realtime message", zap.String("event", message.Event), zap.Error(err))
				continue
			}
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		}
	}
}

func (s *subscriber) shutdown() {
	s.once.Do(func() {
		s.hub.drop(s)
		close(s.closed)
		_ = s.ws.Close()
		metrics.RealtimeConnections.Dec()
	})
}
