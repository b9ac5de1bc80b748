package source

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ecommerce-events/internal/models"
	"ecommerce-events/internal/poller"
)

// freshWindow is how close created_at and updated_at must be for a row
// to count as a fresh insert. Recency wins over status: an order
// inserted and immediately confirmed is still reported as created.
const freshWindow = 60 * time.Second

var orderStatusEvents = map[string]string{
	"PENDING":   models.OrderCreated,
	"CONFIRMED": models.OrderConfirmed,
	"SHIPPED":   models.OrderShipped,
	"DELIVERED": models.OrderDelivered,
	"CANCELLED": models.OrderCancelled,
}

// OrderRow is one observed state of an order.
type OrderRow struct {
	OrderID        int64
	CustomerID     int64
	ProductID      int64
	OrderDate      time.Time
	Quantity       int
	UnitPrice      float64
	DiscountAmount float64
	TaxAmount      float64
	TotalAmount    float64
	OrderStatus    string
	PaymentMethod  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ClassifyOrder maps one order row to its event type: fresh inserts
// are created regardless of status, known statuses map through the
// fixed table, and anything else is the updated catch-all.
func ClassifyOrder(row OrderRow) string {
	if row.UpdatedAt.Sub(row.CreatedAt).Abs() < freshWindow {
		return models.OrderCreated
	}
	if event, ok := orderStatusEvents[row.OrderStatus]; ok {
		return event
	}
	return models.OrderUpdated
}

// Event builds the published projection of the row.
func (r OrderRow) Event() models.OrderEvent {
	return models.OrderEvent{
		OrderID:        r.OrderID,
		CustomerID:     r.CustomerID,
		ProductID:      r.ProductID,
		EventType:      ClassifyOrder(r),
		OrderAmount:    r.TotalAmount,
		Quantity:       r.Quantity,
		DiscountAmount: r.DiscountAmount,
		TaxAmount:      r.TaxAmount,
		OrderStatus:    r.OrderStatus,
		PaymentMethod:  r.PaymentMethod,
		Timestamp:      models.Timestamp(r.UpdatedAt),
		Metadata: map[string]any{
			"order_date": models.Timestamp(r.OrderDate),
			"unit_price": r.UnitPrice,
		},
	}
}

// Orders polls the orders table for changed rows.
type Orders struct {
	db    *sql.DB
	topic string
}

func NewOrders(db *sql.DB, topic string) *Orders {
	return &Orders{db: db, topic: topic}
}

const ordersBaseQuery = `
	SELECT
		order_id, customer_id, product_id, order_date,
		quantity, unit_price, discount_amount, tax_amount,
		total_amount, order_status, payment_method,
		created_at, updated_at
	FROM orders`

func (o *Orders) Poll(ctx context.Context, since time.Time, limit int) (poller.Batch, error) {
	query, args := changesQuery(ordersBaseQuery, "updated_at", "", since, limit)

	rows, err := o.db.QueryContext(ctx, query, args...)
	if err != nil {
		return poller.Batch{}, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var batch poller.Batch
	for rows.Next() {
		var r OrderRow
		if err := rows.Scan(
			&r.OrderID, &r.CustomerID, &r.ProductID, &r.OrderDate,
			&r.Quantity, &r.UnitPrice, &r.DiscountAmount, &r.TaxAmount,
			&r.TotalAmount, &r.OrderStatus, &r.PaymentMethod,
			&r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return poller.Batch{}, fmt.Errorf("failed to scan order row: %w", err)
		}
		batch.Events = append(batch.Events, poller.Event{
			Topic:    o.topic,
			Payload:  r.Event(),
			Modified: r.UpdatedAt,
		})
		batch.Latest = r.UpdatedAt
	}
	if err := rows.Err(); err != nil {
		return poller.Batch{}, fmt.Errorf("error iterating orders: %w", err)
	}

	return batch, nil
}
