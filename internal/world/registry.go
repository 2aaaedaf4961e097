package world

import (
	"sync"
	"time"
)

// PlayerIdentity is the durable character identity, cached here for the
// lifetime of a session. Assigned at character creation, immutable.
type PlayerIdentity struct {
	ID    string
	Name  string
	Level int
}

// SessionEntry is the authoritative in-memory state for one active
// connection. The Registry is its only owner; nothing outside this package
// mutates an entry.
type SessionEntry struct {
	TransportID string
	Identity    PlayerIdentity
	X, Y        float64
	LastUpdate  time.Time

	seq uint64 // insertion order for ListOthers
}

// Registry maps transport sessions to player state. Unlike the original
// single-loop server, each connection here runs its own reader goroutine,
// so all operations take the lock and appear atomic to each other.
type Registry struct {
	mu      sync.RWMutex
	byConn  map[string]*SessionEntry
	byChar  map[string]*SessionEntry
	nextSeq uint64
	now     func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		byConn: make(map[string]*SessionEntry),
		byChar: make(map[string]*SessionEntry),
		now:    time.Now,
	}
}

// Register creates the entry for a new session. If the identity is already
// connected the old entry is evicted and returned so the caller can close
// its transport; the swap happens under one lock acquisition, so no moment
// exists where two entries share an identity.
func (r *Registry) Register(transportID string, id PlayerIdentity, x, y float64) (entry, evicted *SessionEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old := r.byChar[id.ID]; old != nil {
		delete(r.byConn, old.TransportID)
		delete(r.byChar, id.ID)
		evicted = old
	}

	r.nextSeq++
	e := &SessionEntry{
		TransportID: transportID,
		Identity:    id,
		X:           x,
		Y:           y,
		LastUpdate:  r.now(),
		seq:         r.nextSeq,
	}
	r.byConn[transportID] = e
	r.byChar[id.ID] = e
	return e, evicted
}

// Update moves a session to a new position. Unknown transport ids are
// silently dropped: the session already disconnected and a late move is
// not an error.
func (r *Registry) Update(transportID string, x, y float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.byConn[transportID]
	if e == nil {
		return
	}
	e.X = x
	e.Y = y
	e.LastUpdate = r.now()
}

// Remove deletes the session entry and returns a copy of it, or nil if it
// was already gone. Safe to call twice for the same id.
func (r *Registry) Remove(transportID string) *SessionEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.byConn[transportID]
	if e == nil {
		return nil
	}
	delete(r.byConn, transportID)
	// The identity slot may already point at a replacement entry after an
	// eviction race; only clear it if it is still ours.
	if cur := r.byChar[e.Identity.ID]; cur == e {
		delete(r.byChar, e.Identity.ID)
	}
	cp := *e
	return &cp
}

// Get returns a copy of the entry for transportID, or nil.
func (r *Registry) Get(transportID string) *SessionEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e := r.byConn[transportID]
	if e == nil {
		return nil
	}
	cp := *e
	return &cp
}

// ListOthers returns copies of every entry except the excluded transport,
// in insertion order. The snapshot is taken under the lock, so a
// half-removed entry can never appear in it.
func (r *Registry) ListOthers(excludeTransportID string) []SessionEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SessionEntry, 0, len(r.byConn))
	for _, e := range r.byConn {
		if e.TransportID == excludeTransportID {
			continue
		}
		out = append(out, *e)
	}
	sortBySeq(out)
	return out
}

// Len reports the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

func sortBySeq(entries []SessionEntry) {
	// Insertion sort; rosters are small and mostly ordered already.
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].seq < entries[j-1].seq; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}
