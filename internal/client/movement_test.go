package client

import (
	"math"
	"testing"
	"time"

	"github.com/acVeli/phaserGame/internal/protocol"
)

type captureSender struct {
	tags  []string
	moves []protocol.Move
}

func (c *captureSender) Send(tag string, payload any) error {
	c.tags = append(c.tags, tag)
	if mv, ok := payload.(protocol.Move); ok {
		c.moves = append(c.moves, mv)
	}
	return nil
}

func newTestController(speed, x, y float64) (*MovementController, *captureSender, *fakeClock) {
	sender := &captureSender{}
	clk := newFakeClock()
	m := NewMovementController(sender, speed, x, y)
	m.now = clk.now
	return m, sender, clk
}

func TestCommandSendsOneIntentAndGlides(t *testing.T) {
	m, sender, clk := newTestController(160, 688, 231)

	if !m.Command(688, 391) {
		t.Fatal("command rejected")
	}
	if len(sender.tags) != 1 || sender.tags[0] != protocol.EvMove {
		t.Fatalf("sent %v, want exactly one movementIntent", sender.tags)
	}
	mv := sender.moves[0]
	if mv.StartX != 688 || mv.StartY != 231 || mv.TargetX != 688 || mv.TargetY != 391 {
		t.Fatalf("intent %+v carries wrong trajectory", mv)
	}

	// dist 160 at speed 160 = one second.
	clk.advance(250 * time.Millisecond)
	_, y := m.Position()
	if math.Abs(y-271) > 1e-9 {
		t.Fatalf("quarter way y=%v, want 271", y)
	}
	if !m.Moving() {
		t.Fatal("controller reports idle mid-glide")
	}

	clk.advance(time.Second)
	if _, y := m.Position(); y != 391 {
		t.Fatalf("arrived at y=%v, want 391", y)
	}
	if m.Moving() {
		t.Fatal("controller still moving after arrival")
	}
}

func TestBlockedCommandSendsNothing(t *testing.T) {
	m, sender, _ := newTestController(160, 0, 0)
	m.SetBlocker(BlockerFunc(func() bool { return true }))

	if m.Command(100, 100) {
		t.Fatal("blocked command accepted")
	}
	if len(sender.tags) != 0 {
		t.Fatalf("blocked command transmitted %v", sender.tags)
	}
	if x, y := m.Position(); x != 0 || y != 0 {
		t.Fatalf("blocked command moved player to (%v,%v)", x, y)
	}
}

func TestTinyCommandIgnored(t *testing.T) {
	m, sender, _ := newTestController(160, 50, 50)
	if m.Command(51, 51) {
		t.Fatal("sub-epsilon command accepted")
	}
	if len(sender.tags) != 0 {
		t.Fatal("sub-epsilon command transmitted an intent")
	}
}

func TestRetargetMidFlightStartsFromCurrent(t *testing.T) {
	m, sender, clk := newTestController(160, 0, 0)

	m.Command(160, 0)
	clk.advance(500 * time.Millisecond) // rendered at (80,0)

	m.Command(80, 160)
	if len(sender.moves) != 2 {
		t.Fatalf("sent %d intents, want 2", len(sender.moves))
	}
	second := sender.moves[1]
	if math.Abs(second.StartX-80) > 1e-9 || second.StartY != 0 {
		t.Fatalf("second intent starts at (%v,%v), want mid-flight (80,0)", second.StartX, second.StartY)
	}

	clk.advance(time.Hour)
	if x, y := m.Position(); x != 80 || y != 160 {
		t.Fatalf("final (%v,%v), want retarget destination (80,160)", x, y)
	}
}

func TestWarpCancelsGlide(t *testing.T) {
	m, _, clk := newTestController(160, 0, 0)
	m.Command(160, 0)
	clk.advance(100 * time.Millisecond)

	m.Warp(500, 500)
	if m.Moving() {
		t.Fatal("still moving after warp")
	}
	clk.advance(time.Second)
	if x, y := m.Position(); x != 500 || y != 500 {
		t.Fatalf("position (%v,%v) drifted after warp", x, y)
	}
}
