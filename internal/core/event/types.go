package event

// --- Session lifecycle events ---

// PlayerJoined is emitted after a session registers and its join has been
// broadcast. Subscribers: boot-time log hooks, metrics.
type PlayerJoined struct {
	TransportID string
	CharID      string
	Name        string
	X, Y        float64
}

// PlayerLeft is emitted after registry cleanup for a disconnect or an
// eviction by a second login.
type PlayerLeft struct {
	TransportID string
	CharID      string
	Evicted     bool // true when replaced by a newer session, not a disconnect
}

// PositionSaved is emitted by the write-behind path after a successful
// durable write. Failures never produce an event; they are log-only.
type PositionSaved struct {
	CharID string
	X, Y   float64
}
