package client

import (
	"math"
	"sync"
	"time"

	"github.com/acVeli/phaserGame/internal/protocol"
)

// tween is one linear glide between two points over a fixed duration.
type tween struct {
	startX, startY   float64
	targetX, targetY float64
	begin            time.Time
	duration         time.Duration
}

func (tw *tween) at(now time.Time) (float64, float64, bool) {
	if tw.duration <= 0 {
		return tw.targetX, tw.targetY, true
	}
	elapsed := now.Sub(tw.begin)
	if elapsed <= 0 {
		return tw.startX, tw.startY, false
	}
	if elapsed >= tw.duration {
		return tw.targetX, tw.targetY, true
	}
	t := float64(elapsed) / float64(tw.duration)
	return tw.startX + (tw.targetX-tw.startX)*t,
		tw.startY + (tw.targetY-tw.startY)*t,
		false
}

// RemoteEntity is the rendered stand-in for another player. Its position is
// whatever the current tween says at render time.
type RemoteEntity struct {
	ID    string
	Name  string
	Level int

	x, y      float64
	tw        *tween
	smoothing *[2]float64
}

// Interpolator animates remote entities between received trajectories. The
// rendered position is derived, never authoritative: every update replaces
// the current tween, starting from wherever the entity is drawn right now,
// so retargets never teleport.
type Interpolator struct {
	mu       sync.Mutex
	speed    float64 // scene units per second
	entities map[string]*RemoteEntity
	now      func() time.Time
}

// smoothing factor for zero-length trajectories, matching the feel of the
// old snapshot protocol.
const snapSmoothing = 0.2

// arrivalEpsilon ends a smoothing glide once the entity is visually there.
const arrivalEpsilon = 4.0

func NewInterpolator(speed float64) *Interpolator {
	return &Interpolator{
		speed:    speed,
		entities: make(map[string]*RemoteEntity),
		now:      time.Now,
	}
}

// Upsert creates or refreshes an entity from a full state, placing it
// directly at the given position (used for joins and roster sync).
func (in *Interpolator) Upsert(st protocol.PlayerState) {
	in.mu.Lock()
	defer in.mu.Unlock()
	e := in.entities[st.ID]
	if e == nil {
		e = &RemoteEntity{ID: st.ID}
		in.entities[st.ID] = e
	}
	e.Name = st.Name
	e.Level = st.Level
	e.x, e.y = st.X, st.Y
	e.tw = nil
}

// Apply starts a glide toward the update's target. The glide begins at the
// entity's current rendered position, not the update's start point, so a
// retarget mid-flight stays continuous. Duration comes from the distance and
// the shared movement speed; a zero-length trajectory falls back to
// per-frame smoothing instead.
func (in *Interpolator) Apply(upd protocol.PositionUpdate) {
	in.mu.Lock()
	defer in.mu.Unlock()
	now := in.now()
	e := in.entities[upd.ID]
	if e == nil {
		// Update for a player we have not met; adopt the trajectory start.
		e = &RemoteEntity{ID: upd.ID, x: upd.StartX, y: upd.StartY}
		in.entities[upd.ID] = e
	}
	if upd.Name != "" {
		e.Name = upd.Name
	}

	fromX, fromY := e.renderedAt(now)
	e.x, e.y = fromX, fromY

	if upd.StartX == upd.TargetX && upd.StartY == upd.TargetY {
		// Zero-length trajectory (legacy snapshot); smooth toward it.
		e.tw = nil
		e.smoothTarget(upd.TargetX, upd.TargetY)
		return
	}

	dist := math.Hypot(upd.TargetX-fromX, upd.TargetY-fromY)
	e.tw = &tween{
		startX: fromX, startY: fromY,
		targetX: upd.TargetX, targetY: upd.TargetY,
		begin:    now,
		duration: time.Duration(dist / in.speed * float64(time.Second)),
	}
}

// Remove drops an entity (playerLeft).
func (in *Interpolator) Remove(id string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	delete(in.entities, id)
}

// Advance steps every smoothing glide one frame. Tweens need no stepping,
// they are evaluated against the clock at render time.
func (in *Interpolator) Advance() {
	in.mu.Lock()
	defer in.mu.Unlock()
	for _, e := range in.entities {
		if e.tw != nil || e.smoothing == nil {
			continue
		}
		tx, ty := e.smoothing[0], e.smoothing[1]
		e.x += (tx - e.x) * snapSmoothing
		e.y += (ty - e.y) * snapSmoothing
		if math.Hypot(tx-e.x, ty-e.y) < arrivalEpsilon {
			e.x, e.y = tx, ty
			e.smoothing = nil
		}
	}
}

// Position returns the rendered position of an entity.
func (in *Interpolator) Position(id string) (x, y float64, ok bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	e := in.entities[id]
	if e == nil {
		return 0, 0, false
	}
	x, y = e.renderedAt(in.now())
	return x, y, true
}

// Entities returns a snapshot of every tracked entity at render positions.
func (in *Interpolator) Entities() []RemoteEntity {
	in.mu.Lock()
	defer in.mu.Unlock()
	now := in.now()
	out := make([]RemoteEntity, 0, len(in.entities))
	for _, e := range in.entities {
		cp := *e
		cp.x, cp.y = e.renderedAt(now)
		cp.tw = nil
		cp.smoothing = nil
		out = append(out, cp)
	}
	return out
}

func (e *RemoteEntity) renderedAt(now time.Time) (float64, float64) {
	if e.tw == nil {
		return e.x, e.y
	}
	x, y, done := e.tw.at(now)
	if done {
		e.x, e.y = x, y
		e.tw = nil
	}
	return x, y
}

func (e *RemoteEntity) smoothTarget(x, y float64) {
	e.smoothing = &[2]float64{x, y}
}

// X and Y expose the snapshot position for render code.
func (e *RemoteEntity) X() float64 { return e.x }
func (e *RemoteEntity) Y() float64 { return e.y }
