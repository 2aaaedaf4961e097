package persist

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/acVeli/phaserGame/internal/protocol"
)

// GoldRepo reads character gold. Owned by the account side of the game;
// the sync server only ever reads it.
type GoldRepo struct {
	db *DB
}

func NewGoldRepo(db *DB) *GoldRepo {
	return &GoldRepo{db: db}
}

func (r *GoldRepo) Gold(ctx context.Context, charID string) (int64, error) {
	var amount int64
	err := r.db.Pool.QueryRow(ctx,
		`SELECT amount FROM player_gold WHERE char_id = $1`, charID,
	).Scan(&amount)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load gold %s: %w", charID, err)
	}
	return amount, nil
}

// InventoryRepo reads character inventories, read-only for the same reason.
type InventoryRepo struct {
	db *DB
}

func NewInventoryRepo(db *DB) *InventoryRepo {
	return &InventoryRepo{db: db}
}

func (r *InventoryRepo) Items(ctx context.Context, charID string) ([]protocol.InventoryItem, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT item_id, quantity FROM player_inventory WHERE char_id = $1 ORDER BY item_id`, charID,
	)
	if err != nil {
		return nil, fmt.Errorf("load inventory %s: %w", charID, err)
	}
	defer rows.Close()

	items := []protocol.InventoryItem{}
	for rows.Next() {
		var it protocol.InventoryItem
		if err := rows.Scan(&it.ItemID, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scan inventory %s: %w", charID, err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read inventory %s: %w", charID, err)
	}
	return items, nil
}
