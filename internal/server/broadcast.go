package server

import (
	"go.uber.org/zap"

	"github.com/acVeli/phaserGame/internal/protocol"
	"github.com/acVeli/phaserGame/internal/world"
)

// Router fans state changes out to every session except the originator.
// Each event is encoded once and enqueued per recipient; enqueue is
// non-blocking, so one stalled peer cannot delay the others. Per-recipient
// ordering comes from the per-session queue, ordering across recipients is
// not promised.
type Router struct {
	hub     *Hub
	metrics *Metrics
	log     *zap.Logger
}

func NewRouter(hub *Hub, m *Metrics, log *zap.Logger) *Router {
	return &Router{hub: hub, metrics: m, log: log}
}

// RouteJoin announces a newly joined session to everyone else.
func (r *Router) RouteJoin(entry *world.SessionEntry) {
	r.fanOut(entry.TransportID, protocol.EvPlayerJoined, publicState(entry))
}

// RouteMove fans a normalized movement out to everyone but the mover.
func (r *Router) RouteMove(entry *world.SessionEntry, mv protocol.Move) {
	r.fanOut(entry.TransportID, protocol.EvPositionUpdate, protocol.PositionUpdate{
		ID:      entry.Identity.ID,
		Name:    entry.Identity.Name,
		StartX:  mv.StartX,
		StartY:  mv.StartY,
		TargetX: mv.TargetX,
		TargetY: mv.TargetY,
	})
}

// RouteLeave tells every remaining session that a player is gone.
func (r *Router) RouteLeave(excludeTransportID, charID string) {
	r.fanOut(excludeTransportID, protocol.EvPlayerLeft, protocol.PlayerLeft{ID: charID})
}

func (r *Router) fanOut(excludeTransportID, tag string, payload any) {
	frame, err := protocol.Encode(tag, payload)
	if err != nil {
		r.log.Error("encode broadcast", zap.String("event", tag), zap.Error(err))
		return
	}
	r.hub.ForEachExcept(excludeTransportID, func(s *Session) {
		s.Enqueue(frame)
	})
	r.metrics.IncBroadcasts()
}

// publicState projects a registry entry into its wire shape: identity and
// position only, no transport internals.
func publicState(e *world.SessionEntry) protocol.PlayerState {
	return protocol.PlayerState{
		ID:    e.Identity.ID,
		Name:  e.Identity.Name,
		X:     e.X,
		Y:     e.Y,
		Level: e.Identity.Level,
	}
}
