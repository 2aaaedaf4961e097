package server

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/acVeli/phaserGame/internal/core/event"
	"github.com/acVeli/phaserGame/internal/data"
	"github.com/acVeli/phaserGame/internal/persist"
	"github.com/acVeli/phaserGame/internal/protocol"
	"github.com/acVeli/phaserGame/internal/world"
)

// GoldStore and InventoryStore are external collaborators: the sync core
// only relays their payloads to the client.
type GoldStore interface {
	Gold(ctx context.Context, charID string) (int64, error)
}

type InventoryStore interface {
	Items(ctx context.Context, charID string) ([]protocol.InventoryItem, error)
}

// Deps holds the shared dependencies injected into every connection handler.
type Deps struct {
	Registry  *world.Registry
	Store     persist.PositionStore
	Saver     *persist.Saver
	Router    *Router
	Hub       *Hub
	Spawns    *data.SpawnTable
	Scene     string
	Bus       *event.Bus
	Metrics   *Metrics
	Log       *zap.Logger
	Gold      GoldStore      // optional
	Inventory InventoryStore // optional
}

type connState int

const (
	stateConnecting connState = iota
	stateJoined
	stateDisconnected
)

// Conn drives the protocol state machine for one connection:
// Connecting → Joined → Disconnected. All methods run on the connection's
// read goroutine, so the per-connection fields need no lock.
type Conn struct {
	deps  *Deps
	sess  *Session
	state connState

	charID string
	name   string
}

func NewConn(deps *Deps, sess *Session) *Conn {
	return &Conn{deps: deps, sess: sess}
}

// HandleFrame dispatches one inbound frame according to the current state.
// Malformed or out-of-state messages get a unicast errorMessage; the
// connection stays open and no state is mutated.
func (c *Conn) HandleFrame(frame []byte) {
	env, err := protocol.DecodeEnvelope(frame)
	if err != nil {
		c.protocolError(err)
		return
	}

	switch c.state {
	case stateConnecting:
		switch env.T {
		case protocol.EvLoggedIn, protocol.EvRegistered:
			c.handleJoin(env)
		default:
			c.protocolError(errors.New("join required before " + env.T))
		}
	case stateJoined:
		switch env.T {
		case protocol.EvMove:
			c.handleMove(env)
		case protocol.EvRequestRoster:
			c.handleRoster()
		case protocol.EvGetGold:
			c.handleGetGold()
		case protocol.EvGetInventory:
			c.handleGetInventory()
		case protocol.EvLoggedIn, protocol.EvRegistered:
			c.protocolError(errors.New("session already joined"))
		default:
			c.protocolError(errors.New("unexpected event " + env.T))
		}
	case stateDisconnected:
		// Late frame after transport teardown; nothing to do.
	}
}

func (c *Conn) handleJoin(env protocol.Envelope) {
	join, err := protocol.DecodePayload[protocol.Join](env)
	if err != nil {
		c.protocolError(err)
		return
	}
	if join.PlayerID == "" {
		c.protocolError(errors.New("join without playerId"))
		return
	}
	if join.Level < 1 {
		join.Level = 1
	}

	// The client-declared position wins when present; otherwise last saved
	// position, otherwise the scene spawn point.
	var x, y float64
	switch {
	case join.X != nil && join.Y != nil:
		x, y = *join.X, *join.Y
	default:
		x, y = c.initialPlacement(join.PlayerID)
	}

	identity := world.PlayerIdentity{ID: join.PlayerID, Name: join.Name, Level: join.Level}
	entry, evicted := c.deps.Registry.Register(c.sess.ID, identity, x, y)
	if evicted != nil {
		c.evict(evicted)
	}

	c.state = stateJoined
	c.charID = join.PlayerID
	c.name = join.Name
	c.deps.Metrics.IncJoins()

	c.deps.Router.RouteJoin(entry)
	c.deps.Bus.Emit(event.PlayerJoined{
		TransportID: c.sess.ID,
		CharID:      join.PlayerID,
		Name:        join.Name,
		X:           x,
		Y:           y,
	})
}

func (c *Conn) handleMove(env protocol.Envelope) {
	mv, err := protocol.DecodePayload[protocol.Move](env)
	if err != nil {
		c.protocolError(err)
		return
	}

	entry := c.deps.Registry.Get(c.sess.ID)
	if entry == nil {
		// Evicted between frames; the read loop will see the close shortly.
		return
	}

	if mv.Legacy() {
		c.deps.Metrics.IncLegacyMoves()
		mv.Normalize(entry.X, entry.Y)
	}
	mv.PlayerID = c.charID

	// Order matters: authoritative state first, then the write-behind
	// save, then fan-out. The save can neither fail the move nor delay it.
	c.deps.Registry.Update(c.sess.ID, mv.TargetX, mv.TargetY)
	c.deps.Saver.Enqueue(c.charID, persist.Position{X: mv.TargetX, Y: mv.TargetY})
	entry.X, entry.Y = mv.TargetX, mv.TargetY
	c.deps.Router.RouteMove(entry, mv)
	c.deps.Metrics.IncMoves()
}

func (c *Conn) handleRoster() {
	others := c.deps.Registry.ListOthers(c.sess.ID)
	players := make([]protocol.PlayerState, 0, len(others))
	for i := range others {
		players = append(players, publicState(&others[i]))
	}
	c.sess.SendEvent(protocol.EvAllPlayers, protocol.Roster{Players: players})
}

func (c *Conn) handleGetGold() {
	amount := int64(0)
	if c.deps.Gold != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		a, err := c.deps.Gold.Gold(ctx, c.charID)
		if err != nil {
			c.deps.Log.Warn("gold lookup failed", zap.String("char_id", c.charID), zap.Error(err))
		} else {
			amount = a
		}
	}
	c.sess.SendEvent(protocol.EvGold, protocol.Gold{PlayerID: c.charID, Amount: amount})
}

func (c *Conn) handleGetInventory() {
	items := []protocol.InventoryItem{}
	if c.deps.Inventory != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		got, err := c.deps.Inventory.Items(ctx, c.charID)
		if err != nil {
			c.deps.Log.Warn("inventory lookup failed", zap.String("char_id", c.charID), zap.Error(err))
		} else {
			items = got
		}
	}
	c.sess.SendEvent(protocol.EvInventory, protocol.Inventory{PlayerID: c.charID, Items: items})
}

// HandleDisconnect runs on transport teardown. Idempotent: the registry
// remove of an already absent entry is a no-op and the leave broadcast
// only fires when this connection still owned the entry.
func (c *Conn) HandleDisconnect() {
	if c.state == stateDisconnected {
		return
	}
	prev := c.state
	c.state = stateDisconnected

	c.deps.Hub.Remove(c.sess.ID)
	c.sess.Close()

	if prev != stateJoined {
		return
	}
	removed := c.deps.Registry.Remove(c.sess.ID)
	if removed == nil {
		// Already evicted by a second login; the identity is still live
		// under a new transport, so no playerLeft goes out.
		return
	}
	c.deps.Router.RouteLeave(c.sess.ID, removed.Identity.ID)
	c.deps.Bus.Emit(event.PlayerLeft{
		TransportID: c.sess.ID,
		CharID:      removed.Identity.ID,
	})
}

func (c *Conn) initialPlacement(charID string) (float64, float64) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	pos, found, err := c.deps.Store.Load(ctx, charID)
	if err != nil {
		c.deps.Log.Warn("position load failed, using spawn",
			zap.String("char_id", charID), zap.Error(err))
	} else if found {
		return pos.X, pos.Y
	}
	sp := c.deps.Spawns.Get(c.deps.Scene)
	return sp.X, sp.Y
}

func (c *Conn) evict(old *world.SessionEntry) {
	c.deps.Metrics.IncEvictions()
	if oldSess := c.deps.Hub.Get(old.TransportID); oldSess != nil {
		oldSess.SendError("logged in from another session")
		oldSess.Close()
	}
	c.deps.Bus.Emit(event.PlayerLeft{
		TransportID: old.TransportID,
		CharID:      old.Identity.ID,
		Evicted:     true,
	})
	c.deps.Log.Info("evicted prior session",
		zap.String("char_id", old.Identity.ID),
		zap.String("old_transport", old.TransportID),
	)
}

func (c *Conn) protocolError(err error) {
	c.deps.Metrics.IncProtocolErrors()
	c.deps.Log.Debug("protocol error",
		zap.String("transport", c.sess.ID),
		zap.Error(err),
	)
	c.sess.SendError(err.Error())
}
