package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/acVeli/phaserGame/internal/config"
	"github.com/acVeli/phaserGame/internal/core/event"
	"github.com/acVeli/phaserGame/internal/data"
	"github.com/acVeli/phaserGame/internal/persist"
	"github.com/acVeli/phaserGame/internal/protocol"
	"github.com/acVeli/phaserGame/internal/world"
)

type brokenStore struct{}

func (brokenStore) Load(context.Context, string) (persist.Position, bool, error) {
	return persist.Position{}, false, errors.New("store down")
}

func (brokenStore) Save(context.Context, string, persist.Position) error {
	return errors.New("store down")
}

type testEnv struct {
	srv   *httptest.Server
	deps  *Deps
	saver *persist.Saver
}

func newTestEnv(t *testing.T, store persist.PositionStore) *testEnv {
	t.Helper()
	log := zap.NewNop()
	netCfg := config.NetworkConfig{
		OutQueueSize: 32,
		ReadLimit:    1 << 16,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 2 * time.Second,
	}
	saver := persist.NewSaver(store, 256, time.Second, log)
	deps := &Deps{
		Registry: world.NewRegistry(),
		Store:    store,
		Saver:    saver,
		Hub:      NewHub(),
		Spawns:   &data.SpawnTable{},
		Scene:    "main",
		Bus:      event.NewBus(),
		Metrics:  &Metrics{},
		Log:      log,
	}
	deps.Router = NewRouter(deps.Hub, deps.Metrics, log)

	s := New(netCfg, deps, log)
	hs := httptest.NewServer(http.HandlerFunc(s.serveWS))
	t.Cleanup(func() {
		hs.Close()
		saver.Close()
	})
	return &testEnv{srv: hs, deps: deps, saver: saver}
}

type testClient struct {
	t  *testing.T
	ws *websocket.Conn
}

func (e *testEnv) dial(t *testing.T) *testClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return &testClient{t: t, ws: ws}
}

func (c *testClient) send(tag string, payload any) {
	c.t.Helper()
	frame, err := protocol.Encode(tag, payload)
	if err != nil {
		c.t.Fatalf("encode %s: %v", tag, err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.t.Fatalf("send %s: %v", tag, err)
	}
}

func (c *testClient) sendRaw(frame string) {
	c.t.Helper()
	if err := c.ws.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		c.t.Fatalf("send raw: %v", err)
	}
}

func (c *testClient) recv() protocol.Envelope {
	c.t.Helper()
	_ = c.ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := c.ws.ReadMessage()
	if err != nil {
		c.t.Fatalf("recv: %v", err)
	}
	env, err := protocol.DecodeEnvelope(frame)
	if err != nil {
		c.t.Fatalf("decode %q: %v", frame, err)
	}
	return env
}

// expect reads the next frame and asserts its tag.
func (c *testClient) expect(tag string) protocol.Envelope {
	c.t.Helper()
	env := c.recv()
	if env.T != tag {
		c.t.Fatalf("got event %q, want %q", env.T, tag)
	}
	return env
}

// expectNoBacklog proves the outbound queue is empty with a sentinel
// round-trip: a roster request goes out and the very next frame must be its
// reply, so any stray broadcast queued ahead of it would surface instead.
// A read deadline cannot be used here: gorilla treats a timed-out read as a
// permanent connection error.
func (c *testClient) expectNoBacklog() protocol.Roster {
	c.t.Helper()
	return c.roster()
}

func (c *testClient) join(id, name string) {
	c.t.Helper()
	c.send(protocol.EvLoggedIn, protocol.Join{PlayerID: id, Name: name, Level: 1})
}

func (c *testClient) roster() protocol.Roster {
	c.t.Helper()
	c.send(protocol.EvRequestRoster, protocol.PlayerIDRequest{})
	env := c.expect(protocol.EvAllPlayers)
	roster, err := protocol.DecodePayload[protocol.Roster](env)
	if err != nil {
		c.t.Fatalf("roster payload: %v", err)
	}
	return roster
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached")
}

func TestJoinPlacesAtSpawnAndAnnounces(t *testing.T) {
	env := newTestEnv(t, persist.NewMemoryStore())

	a := env.dial(t)
	a.join("char-a", "Alice")
	waitFor(t, func() bool { return env.deps.Registry.Len() == 1 })

	b := env.dial(t)
	b.join("char-b", "Bob")

	// A hears about B; B hears nothing about itself.
	joined := a.expect(protocol.EvPlayerJoined)
	st, err := protocol.DecodePayload[protocol.PlayerState](joined)
	if err != nil {
		t.Fatalf("playerJoined payload: %v", err)
	}
	if st.ID != "char-b" || st.Name != "Bob" {
		t.Fatalf("announced %+v, want char-b/Bob", st)
	}
	if st.X != 688 || st.Y != 231 {
		t.Fatalf("spawned at (%v,%v), want (688,231)", st.X, st.Y)
	}

	roster := b.roster()
	if len(roster.Players) != 1 {
		t.Fatalf("roster has %d players, want 1", len(roster.Players))
	}
	if p := roster.Players[0]; p.ID != "char-a" || p.X != 688 || p.Y != 231 {
		t.Fatalf("roster entry %+v, want char-a at spawn", p)
	}
}

func TestJoinRestoresSavedPosition(t *testing.T) {
	store := persist.NewMemoryStore()
	if err := store.Save(context.Background(), "char-a", persist.Position{X: 100, Y: 200}); err != nil {
		t.Fatal(err)
	}
	env := newTestEnv(t, store)

	a := env.dial(t)
	a.join("char-a", "Alice")
	waitFor(t, func() bool { return env.deps.Registry.Len() == 1 })

	b := env.dial(t)
	b.join("char-b", "Bob")
	a.expect(protocol.EvPlayerJoined)

	roster := b.roster()
	if len(roster.Players) != 1 || roster.Players[0].X != 100 || roster.Players[0].Y != 200 {
		t.Fatalf("roster %+v, want char-a at (100,200)", roster.Players)
	}
}

func TestClientDeclaredPositionWins(t *testing.T) {
	store := persist.NewMemoryStore()
	if err := store.Save(context.Background(), "char-a", persist.Position{X: 100, Y: 200}); err != nil {
		t.Fatal(err)
	}
	env := newTestEnv(t, store)

	x, y := 42.0, 43.0
	a := env.dial(t)
	a.send(protocol.EvRegistered, protocol.Join{PlayerID: "char-a", Name: "Alice", X: &x, Y: &y, Level: 3})
	waitFor(t, func() bool { return env.deps.Registry.Len() == 1 })

	b := env.dial(t)
	b.join("char-b", "Bob")
	a.expect(protocol.EvPlayerJoined)

	roster := b.roster()
	if roster.Players[0].X != 42 || roster.Players[0].Y != 43 {
		t.Fatalf("roster %+v, want declared (42,43)", roster.Players)
	}
}

func TestMoveBroadcastExcludesSender(t *testing.T) {
	env := newTestEnv(t, persist.NewMemoryStore())

	a := env.dial(t)
	a.join("char-a", "Alice")
	waitFor(t, func() bool { return env.deps.Registry.Len() == 1 })
	b := env.dial(t)
	b.join("char-b", "Bob")
	a.expect(protocol.EvPlayerJoined)

	a.send(protocol.EvMove, protocol.Move{
		StartX: 688, StartY: 231, TargetX: 800, TargetY: 300,
	})

	env2 := b.expect(protocol.EvPositionUpdate)
	upd, err := protocol.DecodePayload[protocol.PositionUpdate](env2)
	if err != nil {
		t.Fatalf("update payload: %v", err)
	}
	if upd.ID != "char-a" || upd.TargetX != 800 || upd.TargetY != 300 {
		t.Fatalf("update %+v, want char-a → (800,300)", upd)
	}
	if upd.StartX != 688 || upd.StartY != 231 {
		t.Fatalf("update start (%v,%v), want (688,231)", upd.StartX, upd.StartY)
	}

	// Exactly one update, and never echoed to the mover.
	b.expectNoBacklog()
	a.expectNoBacklog()
}

func TestLegacyMoveNormalizedToTrajectory(t *testing.T) {
	env := newTestEnv(t, persist.NewMemoryStore())

	a := env.dial(t)
	a.join("char-a", "Alice")
	waitFor(t, func() bool { return env.deps.Registry.Len() == 1 })
	b := env.dial(t)
	b.join("char-b", "Bob")
	a.expect(protocol.EvPlayerJoined)

	x, y := 700.0, 240.0
	a.send(protocol.EvMove, protocol.Move{X: &x, Y: &y})

	env2 := b.expect(protocol.EvPositionUpdate)
	upd, err := protocol.DecodePayload[protocol.PositionUpdate](env2)
	if err != nil {
		t.Fatalf("update payload: %v", err)
	}
	if upd.StartX != 688 || upd.StartY != 231 {
		t.Fatalf("legacy start (%v,%v), want sender position (688,231)", upd.StartX, upd.StartY)
	}
	if upd.TargetX != 700 || upd.TargetY != 240 {
		t.Fatalf("legacy target (%v,%v), want (700,240)", upd.TargetX, upd.TargetY)
	}
	waitFor(t, func() bool { return env.deps.Metrics.Snapshot()["legacy_moves"] == 1 })
}

func TestDisconnectBroadcastsSingleLeave(t *testing.T) {
	env := newTestEnv(t, persist.NewMemoryStore())

	a := env.dial(t)
	a.join("char-a", "Alice")
	waitFor(t, func() bool { return env.deps.Registry.Len() == 1 })
	b := env.dial(t)
	b.join("char-b", "Bob")
	a.expect(protocol.EvPlayerJoined)

	a.ws.Close()

	left := b.expect(protocol.EvPlayerLeft)
	gone, err := protocol.DecodePayload[protocol.PlayerLeft](left)
	if err != nil {
		t.Fatalf("playerLeft payload: %v", err)
	}
	if gone.ID != "char-a" {
		t.Fatalf("left %q, want char-a", gone.ID)
	}

	// One leave only, and the departed player is gone from the roster: the
	// reply must be the very next frame, so a duplicate playerLeft queued
	// ahead of it would fail the expect.
	roster := b.expectNoBacklog()
	if len(roster.Players) != 0 {
		t.Fatalf("roster still lists %+v after disconnect", roster.Players)
	}
}

func TestDuplicateLoginEvictsOldSession(t *testing.T) {
	env := newTestEnv(t, persist.NewMemoryStore())

	first := env.dial(t)
	first.join("char-a", "Alice")
	waitFor(t, func() bool { return env.deps.Registry.Len() == 1 })

	second := env.dial(t)
	second.join("char-a", "Alice")

	// The old transport is torn down; its read ends with the errorMessage
	// or straight with the close, depending on timing.
	_ = first.ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, frame, err := first.ws.ReadMessage()
		if err != nil {
			break
		}
		env2, derr := protocol.DecodeEnvelope(frame)
		if derr != nil {
			t.Fatalf("decode on evicted session: %v", derr)
		}
		if env2.T == protocol.EvError {
			continue
		}
		if env2.T == protocol.EvPlayerJoined {
			continue // replacement's announcement may slip in before close
		}
		t.Fatalf("evicted session got %q", env2.T)
	}

	waitFor(t, func() bool { return env.deps.Metrics.Snapshot()["evictions"] == 1 })
	if n := env.deps.Registry.Len(); n != 1 {
		t.Fatalf("registry has %d entries after eviction, want 1", n)
	}

	witness := env.dial(t)
	witness.join("char-b", "Bob")
	second.expect(protocol.EvPlayerJoined)
	roster := witness.roster()
	if len(roster.Players) != 1 || roster.Players[0].ID != "char-a" {
		t.Fatalf("roster %+v, want exactly one char-a", roster.Players)
	}
}

func TestStoreFailureNeverBlocksBroadcast(t *testing.T) {
	env := newTestEnv(t, brokenStore{})

	a := env.dial(t)
	a.join("char-a", "Alice") // load fails, spawn fallback
	waitFor(t, func() bool { return env.deps.Registry.Len() == 1 })
	b := env.dial(t)
	b.join("char-b", "Bob")
	a.expect(protocol.EvPlayerJoined)

	a.send(protocol.EvMove, protocol.Move{
		StartX: 688, StartY: 231, TargetX: 500, TargetY: 500,
	})
	env2 := b.expect(protocol.EvPositionUpdate)
	upd, _ := protocol.DecodePayload[protocol.PositionUpdate](env2)
	if upd.TargetX != 500 {
		t.Fatalf("broadcast target %v, want 500", upd.TargetX)
	}
}

func TestOutOfStateAndMalformedFrames(t *testing.T) {
	env := newTestEnv(t, persist.NewMemoryStore())

	c := env.dial(t)

	// Move before join.
	c.send(protocol.EvMove, protocol.Move{TargetX: 1, TargetY: 1})
	errEnv := c.expect(protocol.EvError)
	msg, _ := protocol.DecodePayload[protocol.ErrorMessage](errEnv)
	if msg.Message == "" {
		t.Fatal("empty error message")
	}

	// Unknown tag.
	c.sendRaw(`{"t":"teleportHack","p":{}}`)
	c.expect(protocol.EvError)

	// Not JSON at all.
	c.sendRaw(`movementIntent`)
	c.expect(protocol.EvError)

	// The connection survives all of it.
	c.join("char-a", "Alice")
	waitFor(t, func() bool { return env.deps.Registry.Len() == 1 })

	// Second join on a live session.
	c.join("char-a", "Alice")
	c.expect(protocol.EvError)
	if n := env.deps.Registry.Len(); n != 1 {
		t.Fatalf("registry %d after rejected rejoin, want 1", n)
	}
}

func TestGoldAndInventoryDefaults(t *testing.T) {
	env := newTestEnv(t, persist.NewMemoryStore())

	c := env.dial(t)
	c.join("char-a", "Alice")
	waitFor(t, func() bool { return env.deps.Registry.Len() == 1 })

	c.send(protocol.EvGetGold, protocol.PlayerIDRequest{PlayerID: "char-a"})
	gold, err := protocol.DecodePayload[protocol.Gold](c.expect(protocol.EvGold))
	if err != nil {
		t.Fatalf("gold payload: %v", err)
	}
	if gold.PlayerID != "char-a" || gold.Amount != 0 {
		t.Fatalf("gold %+v, want char-a amount 0", gold)
	}

	c.send(protocol.EvGetInventory, protocol.PlayerIDRequest{PlayerID: "char-a"})
	inv, err := protocol.DecodePayload[protocol.Inventory](c.expect(protocol.EvInventory))
	if err != nil {
		t.Fatalf("inventory payload: %v", err)
	}
	if inv.Items == nil || len(inv.Items) != 0 {
		t.Fatalf("inventory %+v, want empty list", inv)
	}
}

func TestMovePersistedWriteBehind(t *testing.T) {
	store := persist.NewMemoryStore()
	env := newTestEnv(t, store)

	a := env.dial(t)
	a.join("char-a", "Alice")
	waitFor(t, func() bool { return env.deps.Registry.Len() == 1 })

	a.send(protocol.EvMove, protocol.Move{
		StartX: 688, StartY: 231, TargetX: 900, TargetY: 100,
	})
	waitFor(t, func() bool {
		pos, found, err := store.Load(context.Background(), "char-a")
		return err == nil && found && pos.X == 900 && pos.Y == 100
	})
}
