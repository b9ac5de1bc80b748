package source

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ecommerce-events/internal/models"
	"ecommerce-events/internal/poller"
)

// CustomerRow is one observed state of a customer.
type CustomerRow struct {
	CustomerID       int64
	CustomerSegment  string
	Email            string
	RegistrationDate time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ClassifyCustomer applies the freshness rule: a row modified within a
// minute of creation is a registration, anything later is a profile
// update. Behavioral events (logins, cart actions) are not observable
// from table changes and are never produced here.
func ClassifyCustomer(row CustomerRow) string {
	if row.UpdatedAt.Sub(row.CreatedAt).Abs() < freshWindow {
		return models.CustomerRegistration
	}
	return models.CustomerProfileUpdate
}

// Customers polls the customers table for changed rows.
type Customers struct {
	db    *sql.DB
	topic string
}

func NewCustomers(db *sql.DB, topic string) *Customers {
	return &Customers{db: db, topic: topic}
}

const customersBaseQuery = `
	SELECT customer_id, customer_segment, email, registration_date,
		created_at, updated_at
	FROM customers`

func (c *Customers) Poll(ctx context.Context, since time.Time, limit int) (poller.Batch, error) {
	query, args := changesQuery(customersBaseQuery, "updated_at", "is_active = 1", since, limit)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return poller.Batch{}, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()

	var batch poller.Batch
	for rows.Next() {
		var r CustomerRow
		if err := rows.Scan(
			&r.CustomerID, &r.CustomerSegment, &r.Email,
			&r.RegistrationDate, &r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return poller.Batch{}, fmt.Errorf("failed to scan customer row: %w", err)
		}

		eventType := ClassifyCustomer(r)
		details := map[string]any{}
		if eventType == models.CustomerRegistration {
			details["registration_date"] = models.Timestamp(r.RegistrationDate)
		}

		batch.Events = append(batch.Events, poller.Event{
			Topic: c.topic,
			Payload: models.CustomerEvent{
				CustomerID:      r.CustomerID,
				EventType:       eventType,
				CustomerSegment: r.CustomerSegment,
				ActionDetails:   details,
				Timestamp:       models.Timestamp(r.UpdatedAt),
				Metadata: map[string]any{
					"email": r.Email,
				},
			},
			Modified: r.UpdatedAt,
		})
		batch.Latest = r.UpdatedAt
	}
	if err := rows.Err(); err != nil {
		return poller.Batch{}, fmt.Errorf("error iterating customers: %w", err)
	}

	return batch, nil
}
