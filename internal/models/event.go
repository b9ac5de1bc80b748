package models

import "time"

// Order event types. PENDING maps to created as well: a pending order
// that was modified long after creation is still reported as created,
// matching the downstream warehouse model.
const (
	OrderCreated   = "created"
	OrderConfirmed = "confirmed"
	OrderShipped   = "shipped"
	OrderDelivered = "delivered"
	OrderCancelled = "cancelled"
	OrderUpdated   = "updated" // catch-all for unmapped statuses
)

// Inventory event types.
const (
	StockChange   = "stock_change"
	Restock       = "restock"
	LowStockAlert = "low_stock_alert"
)

// PriceChange is the price event type.
const PriceChange = "price_change"

// Customer event types.
const (
	CustomerRegistration  = "registration"
	CustomerProfileUpdate = "profile_update"
)

// Timestamp formats a time for event payloads. All event timestamps
// are ISO-8601 strings.
func Timestamp(t time.Time) string {
	return t.Format(time.RFC3339)
}

// OrderEvent is published to the orders topic, one per observed order
// change.
type OrderEvent struct {
	OrderID        int64          `json:"order_id"`
	CustomerID     int64          `json:"customer_id"`
	ProductID      int64          `json:"product_id"`
	EventType      string         `json:"event_type"`
	OrderAmount    float64        `json:"order_amount"`
	Quantity       int            `json:"quantity"`
	DiscountAmount float64        `json:"discount_amount"`
	TaxAmount      float64        `json:"tax_amount"`
	OrderStatus    string         `json:"order_status"`
	PaymentMethod  string         `json:"payment_method"`
	Timestamp      string         `json:"timestamp"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// InventoryEvent is published to the inventory topic when stock levels
// move.
type InventoryEvent struct {
	ProductID     int64          `json:"product_id"`
	EventType     string         `json:"event_type"`
	CurrentStock  int            `json:"current_stock"`
	PreviousStock int            `json:"previous_stock"`
	ReorderPoint  int            `json:"reorder_point"`
	CostPerUnit   float64        `json:"cost_per_unit"`
	Timestamp     string         `json:"timestamp"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// PriceEvent is published to the prices topic when a product's unit
// price changes between observations.
type PriceEvent struct {
	ProductID          int64          `json:"product_id"`
	EventType          string         `json:"event_type"`
	OldPrice           float64        `json:"old_price"`
	NewPrice           float64        `json:"new_price"`
	DiscountPercentage float64        `json:"discount_percentage"`
	EffectiveDate      string         `json:"effective_date"`
	Timestamp          string         `json:"timestamp"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

// CustomerEvent is published to the customers topic for registrations
// and profile changes.
type CustomerEvent struct {
	CustomerID      int64          `json:"customer_id"`
	EventType       string         `json:"event_type"`
	CustomerSegment string         `json:"customer_segment"`
	ActionDetails   map[string]any `json:"action_details,omitempty"`
	Timestamp       string         `json:"timestamp"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// HealthEvent is published to the health topic by the stats reporter.
type HealthEvent struct {
	Poller          string `json:"poller"`
	Cycles          uint64 `json:"cycles"`
	FailedCycles    uint64 `json:"failed_cycles"`
	EventsPublished uint64 `json:"events_published"`
	Watermark       string `json:"watermark,omitempty"`
	Timestamp       string `json:"timestamp"`
}
