package source

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ecommerce-events/internal/models"
	"ecommerce-events/internal/poller"
)

// InventoryRow is one observed stock level.
type InventoryRow struct {
	ProductID    int64
	ProductName  string
	Quantity     int
	ReorderPoint int
	CostPrice    float64
	UnitPrice    float64
	UpdatedAt    time.Time
}

// ClassifyStock maps a stock observation to its event type. Dropping
// below the reorder point dominates; otherwise the direction of the
// move decides.
func ClassifyStock(current, previous, reorderPoint int) string {
	if current < reorderPoint {
		return models.LowStockAlert
	}
	if current > previous {
		return models.Restock
	}
	return models.StockChange
}

// Inventory polls the inventory table for stock movements. It keeps a
// per-product last-seen quantity so events carry the previous level;
// the cache is owned by a single polling loop and needs no locking.
// Like the watermark it lives in memory only. Observed quantities
// stage in a per-poll map and reach lastSeen through Batch.Commit, so
// a retried batch re-emits events with the same previous levels.
type Inventory struct {
	db       *sql.DB
	topic    string
	lastSeen map[int64]int
}

func NewInventory(db *sql.DB, topic string) *Inventory {
	return &Inventory{db: db, topic: topic, lastSeen: make(map[int64]int)}
}

// observe stages the quantity and returns the previous level from the
// last staged or committed observation. An unseen product reports its
// current level as previous.
func (v *Inventory) observe(staged map[int64]int, productID int64, quantity int) (previous int) {
	prev, seen := staged[productID]
	if !seen {
		prev, seen = v.lastSeen[productID]
	}
	if !seen {
		prev = quantity
	}
	staged[productID] = quantity
	return prev
}

// commit folds staged quantities into the cache once their batch is
// delivered.
func (v *Inventory) commit(staged map[int64]int) {
	for id, quantity := range staged {
		v.lastSeen[id] = quantity
	}
}

const inventoryBaseQuery = `
	SELECT
		i.product_id, p.product_name, i.quantity_on_hand,
		i.reorder_point, p.cost_price, p.unit_price, i.updated_at
	FROM inventory i
	JOIN products p ON p.product_id = i.product_id`

func (v *Inventory) Poll(ctx context.Context, since time.Time, limit int) (poller.Batch, error) {
	query, args := changesQuery(inventoryBaseQuery, "i.updated_at", "p.is_active = 1", since, limit)

	rows, err := v.db.QueryContext(ctx, query, args...)
	if err != nil {
		return poller.Batch{}, fmt.Errorf("failed to query inventory: %w", err)
	}
	defer rows.Close()

	staged := make(map[int64]int)
	batch := poller.Batch{Commit: func() { v.commit(staged) }}
	for rows.Next() {
		var r InventoryRow
		if err := rows.Scan(
			&r.ProductID, &r.ProductName, &r.Quantity,
			&r.ReorderPoint, &r.CostPrice, &r.UnitPrice, &r.UpdatedAt,
		); err != nil {
			return poller.Batch{}, fmt.Errorf("failed to scan inventory row: %w", err)
		}

		previous := v.observe(staged, r.ProductID, r.Quantity)

		batch.Events = append(batch.Events, poller.Event{
			Topic: v.topic,
			Payload: models.InventoryEvent{
				ProductID:     r.ProductID,
				EventType:     ClassifyStock(r.Quantity, previous, r.ReorderPoint),
				CurrentStock:  r.Quantity,
				PreviousStock: previous,
				ReorderPoint:  r.ReorderPoint,
				CostPerUnit:   r.CostPrice,
				Timestamp:     models.Timestamp(r.UpdatedAt),
				Metadata: map[string]any{
					"product_name": r.ProductName,
					"unit_price":   r.UnitPrice,
				},
			},
			Modified: r.UpdatedAt,
		})
		batch.Latest = r.UpdatedAt
	}
	if err := rows.Err(); err != nil {
		return poller.Batch{}, fmt.Errorf("error iterating inventory: %w", err)
	}

	return batch, nil
}
