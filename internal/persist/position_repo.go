package persist

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Position is a player's last committed location in scene coordinates.
type Position struct {
	X float64
	Y float64
}

// PositionStore is the durable backend for last known positions. Keyed by
// the stable character id, not the transport session, so a position
// survives reconnects. Any key-value or document store can satisfy it.
type PositionStore interface {
	// Load returns the saved position, or found=false for a character that
	// has never been saved (caller falls back to a spawn point).
	Load(ctx context.Context, charID string) (Position, bool, error)
	// Save upserts the position. Idempotent; safe to call redundantly.
	Save(ctx context.Context, charID string, pos Position) error
}

// PositionRepo is the PostgreSQL-backed PositionStore.
type PositionRepo struct {
	db *DB
}

func NewPositionRepo(db *DB) *PositionRepo {
	return &PositionRepo{db: db}
}

func (r *PositionRepo) Load(ctx context.Context, charID string) (Position, bool, error) {
	var pos Position
	err := r.db.Pool.QueryRow(ctx,
		`SELECT x, y FROM player_positions WHERE char_id = $1`, charID,
	).Scan(&pos.X, &pos.Y)
	if err == pgx.ErrNoRows {
		return Position{}, false, nil
	}
	if err != nil {
		return Position{}, false, fmt.Errorf("load position %s: %w", charID, err)
	}
	return pos, true, nil
}

func (r *PositionRepo) Save(ctx context.Context, charID string, pos Position) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO player_positions (char_id, x, y, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (char_id) DO UPDATE
		 SET x = EXCLUDED.x, y = EXCLUDED.y, updated_at = now()`,
		charID, pos.X, pos.Y,
	)
	if err != nil {
		return fmt.Errorf("save position %s: %w", charID, err)
	}
	return nil
}
