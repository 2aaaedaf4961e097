package server

import "sync/atomic"

// Metrics counts what the sync core is doing. Read via /metrics.
type Metrics struct {
	Joins          int64
	Moves          int64
	LegacyMoves    int64
	Broadcasts     int64
	DroppedSends   int64
	ProtocolErrors int64
	Evictions      int64
}

func (m *Metrics) IncJoins()          { atomic.AddInt64(&m.Joins, 1) }
func (m *Metrics) IncMoves()          { atomic.AddInt64(&m.Moves, 1) }
func (m *Metrics) IncLegacyMoves()    { atomic.AddInt64(&m.LegacyMoves, 1) }
func (m *Metrics) IncBroadcasts()     { atomic.AddInt64(&m.Broadcasts, 1) }
func (m *Metrics) IncDroppedSends()   { atomic.AddInt64(&m.DroppedSends, 1) }
func (m *Metrics) IncProtocolErrors() { atomic.AddInt64(&m.ProtocolErrors, 1) }
func (m *Metrics) IncEvictions()      { atomic.AddInt64(&m.Evictions, 1) }

// Snapshot returns a read-only copy for HTTP output.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"joins":           atomic.LoadInt64(&m.Joins),
		"moves":           atomic.LoadInt64(&m.Moves),
		"legacy_moves":    atomic.LoadInt64(&m.LegacyMoves),
		"broadcasts":      atomic.LoadInt64(&m.Broadcasts),
		"dropped_sends":   atomic.LoadInt64(&m.DroppedSends),
		"protocol_errors": atomic.LoadInt64(&m.ProtocolErrors),
		"evictions":       atomic.LoadInt64(&m.Evictions),
	}
}
