package client

import (
	"math"
	"sync"
	"time"

	"github.com/acVeli/phaserGame/internal/protocol"
)

// Blocker gates movement input. Render code plugs in whatever makes clicks
// inert, an open dialog, a cutscene, a dead character.
type Blocker interface {
	MovementBlocked() bool
}

// BlockerFunc adapts a plain func to the Blocker interface.
type BlockerFunc func() bool

func (f BlockerFunc) MovementBlocked() bool { return f() }

// Sender is the slice of the proxy the controller needs.
type Sender interface {
	Send(tag string, payload any) error
}

// MovementController owns the local player's position. A click becomes one
// trajectory: the controller starts the local glide immediately for
// responsiveness and transmits a single movementIntent carrying the same
// start and target, so peers replay the identical path.
type MovementController struct {
	mu      sync.Mutex
	send    Sender
	blocker Blocker
	speed   float64
	now     func() time.Time

	x, y float64
	tw   *tween
}

func NewMovementController(send Sender, speed float64, startX, startY float64) *MovementController {
	return &MovementController{
		send:  send,
		speed: speed,
		now:   time.Now,
		x:     startX,
		y:     startY,
	}
}

// SetBlocker installs the input gate. Nil means never blocked.
func (m *MovementController) SetBlocker(b Blocker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocker = b
}

// Command requests a move to the target. Blocked or zero-length commands do
// nothing and send nothing. Returns whether a trajectory was started.
func (m *MovementController) Command(targetX, targetY float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.blocker != nil && m.blocker.MovementBlocked() {
		return false
	}

	now := m.now()
	fromX, fromY := m.renderedAt(now)
	dist := math.Hypot(targetX-fromX, targetY-fromY)
	if dist < arrivalEpsilon {
		return false
	}

	m.x, m.y = fromX, fromY
	m.tw = &tween{
		startX: fromX, startY: fromY,
		targetX: targetX, targetY: targetY,
		begin:    now,
		duration: time.Duration(dist / m.speed * float64(time.Second)),
	}

	if err := m.send.Send(protocol.EvMove, protocol.Move{
		StartX: fromX, StartY: fromY,
		TargetX: targetX, TargetY: targetY,
	}); err != nil {
		// The local glide still plays; the server will resync on rejoin.
		return true
	}
	return true
}

// Position returns the current rendered position.
func (m *MovementController) Position() (float64, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.renderedAt(m.now())
}

// Moving reports whether a glide is in progress.
func (m *MovementController) Moving() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tw == nil {
		return false
	}
	_, _, done := m.tw.at(m.now())
	return !done
}

// Warp places the player instantly, cancelling any glide. Used when the
// server restores a saved position on join.
func (m *MovementController) Warp(x, y float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.x, m.y = x, y
	m.tw = nil
}

func (m *MovementController) renderedAt(now time.Time) (float64, float64) {
	if m.tw == nil {
		return m.x, m.y
	}
	x, y, done := m.tw.at(now)
	if done {
		m.x, m.y = x, y
		m.tw = nil
	}
	return x, y
}
