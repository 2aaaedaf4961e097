package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/acVeli/phaserGame/internal/protocol"
)

// Session wraps one websocket connection. Outbound frames go through a
// buffered queue drained by writePump, so a slow or dead peer never blocks
// the goroutine fanning out a broadcast; when the queue is full the frame
// is dropped and counted.
type Session struct {
	ID string

	ws           *websocket.Conn
	send         chan []byte
	writeTimeout time.Duration

	closeOnce sync.Once
	closed    chan struct{}

	metrics *Metrics
	log     *zap.Logger
}

func NewSession(ws *websocket.Conn, queueSize int, writeTimeout time.Duration, m *Metrics, log *zap.Logger) *Session {
	s := &Session{
		ID:           uuid.NewString(),
		ws:           ws,
		send:         make(chan []byte, queueSize),
		writeTimeout: writeTimeout,
		closed:       make(chan struct{}),
		metrics:      m,
		log:          log,
	}
	go s.writePump()
	return s
}

// Enqueue queues a raw frame for delivery. Non-blocking; returns false when
// the frame was dropped because the peer is not keeping up.
func (s *Session) Enqueue(frame []byte) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.send <- frame:
		return true
	default:
		s.metrics.IncDroppedSends()
		return false
	}
}

// SendEvent encodes and queues one protocol event.
func (s *Session) SendEvent(tag string, payload any) {
	frame, err := protocol.Encode(tag, payload)
	if err != nil {
		s.log.Error("encode outbound event", zap.String("event", tag), zap.Error(err))
		return
	}
	s.Enqueue(frame)
}

// SendError unicasts an errorMessage to this session only.
func (s *Session) SendError(msg string) {
	s.SendEvent(protocol.EvError, protocol.ErrorMessage{Message: msg})
}

// Close shuts the connection down. Idempotent; the transport may report a
// disconnect more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.ws.Close()
	})
}

func (s *Session) writePump() {
	defer s.ws.Close()
	for {
		select {
		case frame := <-s.send:
			_ = s.ws.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-s.closed:
			return
		}
	}
}
