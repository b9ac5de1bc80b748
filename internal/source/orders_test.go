package source

import (
	"testing"
	"time"

	"ecommerce-events/internal/models"
)

var base = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func orderRow(created, updated time.Time, status string) OrderRow {
	return OrderRow{
		OrderID:     42,
		CustomerID:  7,
		ProductID:   3,
		OrderStatus: status,
		CreatedAt:   created,
		UpdatedAt:   updated,
	}
}

func TestClassifyOrderFreshInsert(t *testing.T) {
	// Recency beats status: a row modified within a minute of creation
	// is created no matter what the status says.
	statuses := []string{"PENDING", "CONFIRMED", "SHIPPED", "DELIVERED", "CANCELLED", "COMPLETED", ""}
	for _, status := range statuses {
		row := orderRow(base, base.Add(10*time.Second), status)
		if got := ClassifyOrder(row); got != models.OrderCreated {
			t.Errorf("status %q modified 10s after creation: got %q, want %q", status, got, models.OrderCreated)
		}
	}
}

func TestClassifyOrderStatusMapping(t *testing.T) {
	tests := []struct {
		status string
		want   string
	}{
		{"PENDING", models.OrderCreated},
		{"CONFIRMED", models.OrderConfirmed},
		{"SHIPPED", models.OrderShipped},
		{"DELIVERED", models.OrderDelivered},
		{"CANCELLED", models.OrderCancelled},
	}
	for _, tt := range tests {
		row := orderRow(base, base.Add(time.Hour), tt.status)
		if got := ClassifyOrder(row); got != tt.want {
			t.Errorf("status %q: got %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestClassifyOrderUnmappedStatus(t *testing.T) {
	for _, status := range []string{"UNKNOWN", "COMPLETED", "REFUNDED", ""} {
		row := orderRow(base, base.Add(time.Hour), status)
		if got := ClassifyOrder(row); got != models.OrderUpdated {
			t.Errorf("status %q: got %q, want %q", status, got, models.OrderUpdated)
		}
	}
}

func TestClassifyOrderFreshnessBoundary(t *testing.T) {
	// Exactly 60s is no longer fresh; the status decides.
	row := orderRow(base, base.Add(60*time.Second), "SHIPPED")
	if got := ClassifyOrder(row); got != models.OrderShipped {
		t.Errorf("at boundary: got %q, want %q", got, models.OrderShipped)
	}

	row = orderRow(base, base.Add(59*time.Second), "SHIPPED")
	if got := ClassifyOrder(row); got != models.OrderCreated {
		t.Errorf("just inside window: got %q, want %q", got, models.OrderCreated)
	}
}

func TestClassifyOrderClockSkew(t *testing.T) {
	// updated_at slightly behind created_at (replica skew) still
	// counts as fresh.
	row := orderRow(base, base.Add(-5*time.Second), "SHIPPED")
	if got := ClassifyOrder(row); got != models.OrderCreated {
		t.Errorf("negative gap: got %q, want %q", got, models.OrderCreated)
	}
}

func TestOrderRowEvent(t *testing.T) {
	row := OrderRow{
		OrderID:        42,
		CustomerID:     7,
		ProductID:      3,
		OrderDate:      base,
		Quantity:       2,
		UnitPrice:      19.99,
		DiscountAmount: 2.50,
		TaxAmount:      3.20,
		TotalAmount:    40.68,
		OrderStatus:    "SHIPPED",
		PaymentMethod:  "CREDIT_CARD",
		CreatedAt:      base,
		UpdatedAt:      base.Add(time.Hour),
	}

	event := row.Event()
	if event.EventType != models.OrderShipped {
		t.Errorf("event type: got %q, want %q", event.EventType, models.OrderShipped)
	}
	if event.OrderID != 42 || event.CustomerID != 7 || event.ProductID != 3 {
		t.Errorf("ids not carried over: %+v", event)
	}
	if event.OrderAmount != 40.68 {
		t.Errorf("order amount: got %v, want 40.68", event.OrderAmount)
	}
	if event.Timestamp != base.Add(time.Hour).Format(time.RFC3339) {
		t.Errorf("timestamp: got %q", event.Timestamp)
	}
	if event.Metadata["unit_price"] != 19.99 {
		t.Errorf("metadata unit_price: got %v", event.Metadata["unit_price"])
	}
	if event.Metadata["order_date"] != base.Format(time.RFC3339) {
		t.Errorf("metadata order_date: got %v", event.Metadata["order_date"])
	}
}
