package storage

import (
	"context"

	"github.com/chatbook/platform/libs/db"
	"github.com/chatbook/platform/services/booking-service/internal/model"
)

type CustomerRepository struct {
	pool *db.Pool
}

func NewCustomerRepository(pool *db.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// UpsertCustomer finds or creates the customer keyed by (business_id, email) in
// one statement, so concurrent first bookings by the same email converge on one
// row. An existing row keeps its name and only gains a phone it did not have.
// created reports whether the row was inserted by this call.
func (r *CustomerRepository) UpsertCustomer(ctx context.Context, c model.Customer) (model.Customer, bool, error) {
	var out model.Customer
	var created bool
	err := r.pool.QueryRow(ctx, `
		INSERT INTO customers (business_id, email, name, phone)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		ON CONFLICT (business_id, email) DO UPDATE
		SET phone = COALESCE(customers.phone, EXCLUDED.phone)
		RETURNING id::text, business_id::text, email, name, COALESCE(phone, ''), created_at, (xmax = 0)
	`, c.BusinessID, c.Email, c.Name, c.Phone).Scan(
		&out.ID,
		&out.BusinessID,
		&out.Email,
		&out.Name,
		&out.Phone,
		&out.CreatedAt,
		&created,
	)
	if err != nil {
		return model.Customer{}, false, classify(err, "upsert customer")
	}
	return out, created, nil
}

func (r *CustomerRepository) GetCustomer(ctx context.Context, businessID, customerID string) (model.Customer, error) {
	var c model.Customer
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, business_id::text, email, name, COALESCE(phone, ''), created_at
		FROM customers
		WHERE id = $1 AND business_id = $2
	`, customerID, businessID).Scan(&c.ID, &c.BusinessID, &c.Email, &c.Name, &c.Phone, &c.CreatedAt)
	if err != nil {
		return model.Customer{}, classify(err, "get customer")
	}
	return c, nil
}
