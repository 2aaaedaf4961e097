package protocol

// Wire event tags. The set is closed: DecodeEnvelope rejects tags that are
// not listed here, so a typo'd or hostile event name surfaces as a protocol
// error instead of being silently ignored.
const (
	// Client → server.
	EvLoggedIn      = "LoggedIn"
	EvRegistered    = "Registered"
	EvMove          = "movementIntent"
	EvRequestRoster = "requestRoster"
	EvGetGold       = "getGold"
	EvGetInventory  = "getInventory"

	// Server → client.
	EvPlayerJoined   = "playerJoined"
	EvPositionUpdate = "playerPositionUpdate"
	EvPlayerLeft     = "playerLeft"
	EvAllPlayers     = "allPlayers"
	EvError          = "errorMessage"
	EvGold           = "gold"
	EvInventory      = "inventory"
)

var knownEvents = map[string]struct{}{
	EvLoggedIn:       {},
	EvRegistered:     {},
	EvMove:           {},
	EvRequestRoster:  {},
	EvGetGold:        {},
	EvGetInventory:   {},
	EvPlayerJoined:   {},
	EvPositionUpdate: {},
	EvPlayerLeft:     {},
	EvAllPlayers:     {},
	EvError:          {},
	EvGold:           {},
	EvInventory:      {},
}

// Known reports whether tag is part of the protocol.
func Known(tag string) bool {
	_, ok := knownEvents[tag]
	return ok
}

// Join starts a session. Sent with tag LoggedIn or Registered depending on
// whether the character already existed; the server treats both the same.
// X/Y are the client-declared position and are taken as authoritative when
// present (nil means "place me from storage or the spawn table").
type Join struct {
	PlayerID string   `json:"playerId"`
	Name     string   `json:"name"`
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
	Level    int      `json:"level"`
}

// Move is a requested trajectory. Older clients send only X/Y (a discrete
// snapshot); Normalize folds that form into the trajectory shape at the
// boundary so nothing downstream branches on the protocol version.
type Move struct {
	PlayerID string  `json:"playerId"`
	StartX   float64 `json:"startX"`
	StartY   float64 `json:"startY"`
	TargetX  float64 `json:"targetX"`
	TargetY  float64 `json:"targetY"`

	// Legacy snapshot form.
	X *float64 `json:"x,omitempty"`
	Y *float64 `json:"y,omitempty"`
}

// Legacy reports whether the message arrived in the old snapshot form.
func (m *Move) Legacy() bool { return m.X != nil && m.Y != nil }

// Normalize rewrites a legacy snapshot move into a zero-length trajectory
// ending at the snapshot point. curX/curY is the sender's last known
// position and becomes the trajectory start, so receivers still get a
// well-formed (start, target) pair.
func (m *Move) Normalize(curX, curY float64) {
	if !m.Legacy() {
		return
	}
	m.StartX = curX
	m.StartY = curY
	m.TargetX = *m.X
	m.TargetY = *m.Y
	m.X = nil
	m.Y = nil
}

// PlayerState is the public projection of a session broadcast to peers:
// identity plus position, no transport internals.
type PlayerState struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Level int     `json:"level"`
}

// PositionUpdate fans out a normalized movement to everyone but the mover.
type PositionUpdate struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	StartX  float64 `json:"startX"`
	StartY  float64 `json:"startY"`
	TargetX float64 `json:"targetX"`
	TargetY float64 `json:"targetY"`
}

type PlayerLeft struct {
	ID string `json:"id"`
}

type Roster struct {
	Players []PlayerState `json:"players"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}

// Gold and InventoryItem are payload shapes only; the stores behind them
// are external collaborators.
type Gold struct {
	PlayerID string `json:"playerId"`
	Amount   int64  `json:"amount"`
}

type InventoryItem struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

type Inventory struct {
	PlayerID string          `json:"playerId"`
	Items    []InventoryItem `json:"items"`
}

type PlayerIDRequest struct {
	PlayerID string `json:"playerId"`
}
