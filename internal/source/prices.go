package source

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"ecommerce-events/internal/models"
	"ecommerce-events/internal/poller"
)

// ProductRow is one observed state of a product.
type ProductRow struct {
	ProductID   int64
	ProductName string
	UnitPrice   float64
	CostPrice   float64
	UpdatedAt   time.Time
}

// Prices polls the products table and emits a price_change event when
// a product's unit price differs from its last observed value. The
// first sighting of a product only seeds the cache; the row still
// advances the watermark through Batch.Latest. Observed prices stage
// in a per-poll map and reach lastPrice through Batch.Commit, so a
// failed delivery leaves the cache on the old price and the retry
// detects the same change again.
type Prices struct {
	db        *sql.DB
	topic     string
	lastPrice map[int64]float64
}

func NewPrices(db *sql.DB, topic string) *Prices {
	return &Prices{db: db, topic: topic, lastPrice: make(map[int64]float64)}
}

const pricesBaseQuery = `
	SELECT product_id, product_name, unit_price, cost_price, updated_at
	FROM products`

func (p *Prices) Poll(ctx context.Context, since time.Time, limit int) (poller.Batch, error) {
	query, args := changesQuery(pricesBaseQuery, "updated_at", "is_active = 1", since, limit)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return poller.Batch{}, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	staged := make(map[int64]float64)
	batch := poller.Batch{Commit: func() { p.commit(staged) }}
	for rows.Next() {
		var r ProductRow
		if err := rows.Scan(&r.ProductID, &r.ProductName, &r.UnitPrice, &r.CostPrice, &r.UpdatedAt); err != nil {
			return poller.Batch{}, fmt.Errorf("failed to scan product row: %w", err)
		}
		batch.Latest = r.UpdatedAt

		old, changed := p.observe(staged, r.ProductID, r.UnitPrice)
		if !changed {
			continue
		}

		batch.Events = append(batch.Events, poller.Event{
			Topic: p.topic,
			Payload: models.PriceEvent{
				ProductID:          r.ProductID,
				EventType:          models.PriceChange,
				OldPrice:           old,
				NewPrice:           r.UnitPrice,
				DiscountPercentage: DiscountPercentage(old, r.UnitPrice),
				EffectiveDate:      models.Timestamp(r.UpdatedAt),
				Timestamp:          models.Timestamp(r.UpdatedAt),
				Metadata: map[string]any{
					"product_name": r.ProductName,
					"cost_price":   r.CostPrice,
				},
			},
			Modified: r.UpdatedAt,
		})
	}
	if err := rows.Err(); err != nil {
		return poller.Batch{}, fmt.Errorf("error iterating products: %w", err)
	}

	return batch, nil
}

// observe stages the price and reports whether it moved from the last
// staged or committed value. The first sighting of a product only
// seeds the cache.
func (p *Prices) observe(staged map[int64]float64, productID int64, price float64) (old float64, changed bool) {
	prev, seen := staged[productID]
	if !seen {
		prev, seen = p.lastPrice[productID]
	}
	staged[productID] = price
	if !seen || prev == price {
		return 0, false
	}
	return prev, true
}

// commit folds staged prices into the cache once their batch is
// delivered.
func (p *Prices) commit(staged map[int64]float64) {
	for id, price := range staged {
		p.lastPrice[id] = price
	}
}

// DiscountPercentage is how far the price dropped from its previous
// value, in percent rounded to two decimals. Negative for increases.
func DiscountPercentage(oldPrice, newPrice float64) float64 {
	if oldPrice == 0 {
		return 0
	}
	return math.Round((oldPrice-newPrice)/oldPrice*10000) / 100
}
