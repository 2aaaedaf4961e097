package persist

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Saver is the write-behind path: Enqueue records a save intent and returns
// immediately; a single background goroutine performs the actual store
// writes. Intents coalesce per character — only the latest position for a
// character is ever written — so a burst of movement collapses into one
// upsert. Store failures are logged and swallowed; they are never visible
// to the caller and never delay a broadcast.
type Saver struct {
	store PositionStore
	log   *zap.Logger

	// OnSaved, when set before the first Enqueue, runs on the saver
	// goroutine after each successful write.
	OnSaved func(charID string, pos Position)

	mu      sync.Mutex
	pending map[string]Position
	wake    chan struct{}
	done    chan struct{}
	closed  bool

	maxPending   int
	flushTimeout time.Duration
	saveTimeout  time.Duration
}

func NewSaver(store PositionStore, queueSize int, flushTimeout time.Duration, log *zap.Logger) *Saver {
	s := &Saver{
		store:        store,
		log:          log,
		pending:      make(map[string]Position),
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
		maxPending:   queueSize,
		flushTimeout: flushTimeout,
		saveTimeout:  3 * time.Second,
	}
	go s.loop()
	return s
}

// Enqueue records the latest position for charID. Non-blocking. The pending
// map holds at most queueSize distinct characters; refreshing a character
// already queued is always allowed, an intent for a new character beyond the
// bound is dropped and logged.
func (s *Saver) Enqueue(charID string, pos Position) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if _, queued := s.pending[charID]; !queued && s.maxPending > 0 && len(s.pending) >= s.maxPending {
		s.mu.Unlock()
		s.log.Warn("save queue full, dropping intent", zap.String("char_id", charID))
		return
	}
	s.pending[charID] = pos
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Close stops accepting intents and flushes what is outstanding, bounded by
// the flush timeout.
func (s *Saver) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}

	select {
	case <-s.done:
	case <-time.After(s.flushTimeout):
		s.log.Warn("position saver flush timed out")
	}
}

func (s *Saver) loop() {
	defer close(s.done)
	for {
		<-s.wake

		for {
			batch := s.take()
			if len(batch) == 0 {
				break
			}
			for charID, pos := range batch {
				ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
				err := s.store.Save(ctx, charID, pos)
				cancel()
				if err != nil {
					// Best-effort durability: drop the write, keep the session.
					s.log.Warn("position save failed",
						zap.String("char_id", charID),
						zap.Error(err),
					)
					continue
				}
				if s.OnSaved != nil {
					s.OnSaved(charID, pos)
				}
			}
		}

		s.mu.Lock()
		stop := s.closed && len(s.pending) == 0
		s.mu.Unlock()
		if stop {
			return
		}
	}
}

func (s *Saver) take() map[string]Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}
	batch := s.pending
	s.pending = make(map[string]Position)
	return batch
}
