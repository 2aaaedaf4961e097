package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/acVeli/phaserGame/internal/protocol"
)

// ErrClosed is returned by Send after the connection is gone.
var ErrClosed = errors.New("connection closed")

// Subscription is a handle to one registered event handler.
type Subscription struct {
	proxy *Proxy
	event string
	seq   uint64
}

// Dispose unregisters the handler. Disposing a stale subscription (one that
// was already replaced) is a no-op.
func (s *Subscription) Dispose() {
	s.proxy.mu.Lock()
	defer s.proxy.mu.Unlock()
	if h, ok := s.proxy.handlers[s.event]; ok && h.seq == s.seq {
		delete(s.proxy.handlers, s.event)
	}
}

type handler struct {
	seq uint64
	fn  func(json.RawMessage)
}

// Proxy is the client's single connection to the sync server. Inbound events
// queue up as they arrive on the read goroutine and are delivered on Drain,
// so handlers always run on the caller's render tick, never concurrently
// with it.
type Proxy struct {
	ws  *websocket.Conn
	log *zap.Logger

	mu       sync.Mutex
	handlers map[string]handler
	seq      uint64
	queue    []protocol.Envelope
	waiters  map[string]chan json.RawMessage
	closed   bool

	writeMu sync.Mutex
	done    chan struct{}
}

// Dial connects to the server's websocket endpoint. There is no automatic
// reconnect: when the connection drops the proxy is dead and the caller
// starts over.
func Dial(url string, log *zap.Logger) (*Proxy, error) {
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	p := &Proxy{
		ws:       ws,
		log:      log,
		handlers: make(map[string]handler),
		waiters:  make(map[string]chan json.RawMessage),
		done:     make(chan struct{}),
	}
	go p.readLoop()
	return p, nil
}

// Send transmits one event.
func (p *Proxy) Send(tag string, payload any) error {
	frame, err := protocol.Encode(tag, payload)
	if err != nil {
		return err
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := p.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("send %s: %w", tag, err)
	}
	return nil
}

// On registers fn for an event, replacing any prior handler for the same
// event. At most one handler per event: re-registering on every scene start
// is safe and never stacks duplicates.
func (p *Proxy) On(event string, fn func(json.RawMessage)) *Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	p.handlers[event] = handler{seq: p.seq, fn: fn}
	return &Subscription{proxy: p, event: event, seq: p.seq}
}

// Drain delivers every queued event to its handler. Call once per render
// tick. Events with no handler are dropped with a debug log.
func (p *Proxy) Drain() {
	p.mu.Lock()
	batch := p.queue
	p.queue = nil
	p.mu.Unlock()

	for _, env := range batch {
		p.mu.Lock()
		h, ok := p.handlers[env.T]
		p.mu.Unlock()
		if !ok {
			p.log.Debug("unhandled event", zap.String("event", env.T))
			continue
		}
		h.fn(env.P)
	}
}

// Request sends an event and waits for the matching reply event, bypassing
// the render-tick queue. On timeout it logs a warning and returns nil so the
// caller renders a default instead of hanging.
func (p *Proxy) Request(tag string, payload any, replyEvent string, timeout time.Duration) json.RawMessage {
	ch := make(chan json.RawMessage, 1)
	p.mu.Lock()
	p.waiters[replyEvent] = ch
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.waiters, replyEvent)
		p.mu.Unlock()
	}()

	if err := p.Send(tag, payload); err != nil {
		p.log.Warn("request send failed", zap.String("event", tag), zap.Error(err))
		return nil
	}

	select {
	case raw := <-ch:
		return raw
	case <-time.After(timeout):
		p.log.Warn("request timed out",
			zap.String("event", tag),
			zap.String("reply", replyEvent),
		)
		return nil
	case <-p.done:
		return nil
	}
}

// Close tears the connection down.
func (p *Proxy) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	_ = p.ws.Close()
}

// Closed reports whether the connection has ended.
func (p *Proxy) Closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *Proxy) readLoop() {
	defer close(p.done)
	for {
		_, frame, err := p.ws.ReadMessage()
		if err != nil {
			p.mu.Lock()
			wasClosed := p.closed
			p.closed = true
			p.mu.Unlock()
			if !wasClosed {
				p.log.Warn("connection lost", zap.Error(err))
			}
			return
		}
		env, err := protocol.DecodeEnvelope(frame)
		if err != nil {
			p.log.Warn("bad frame from server", zap.Error(err))
			continue
		}

		p.mu.Lock()
		if ch, ok := p.waiters[env.T]; ok {
			delete(p.waiters, env.T)
			p.mu.Unlock()
			ch <- env.P
			continue
		}
		p.queue = append(p.queue, env)
		p.mu.Unlock()
	}
}
