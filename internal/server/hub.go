package server

import "sync"

// Hub maps transport ids to live sessions. It is transport bookkeeping
// only; player state lives in the world registry.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewHub() *Hub {
	return &Hub{sessions: make(map[string]*Session)}
}

func (h *Hub) Add(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s.ID] = s
}

func (h *Hub) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, id)
}

func (h *Hub) Get(id string) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[id]
}

// ForEachExcept calls fn for every session but the excluded one. The
// session set is snapshotted first so fn runs without the hub lock.
func (h *Hub) ForEachExcept(excludeID string, fn func(*Session)) {
	h.mu.RLock()
	snapshot := make([]*Session, 0, len(h.sessions))
	for id, s := range h.sessions {
		if id == excludeID {
			continue
		}
		snapshot = append(snapshot, s)
	}
	h.mu.RUnlock()

	for _, s := range snapshot {
		fn(s)
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
