package storage

import (
	"context"

	"github.com/chatbook/platform/libs/db"
	"github.com/chatbook/platform/services/booking-service/internal/model"
)

// CatalogRepository reads the business configuration the engine schedules against.
type CatalogRepository struct {
	pool *db.Pool
}

func NewCatalogRepository(pool *db.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

func (r *CatalogRepository) GetBusiness(ctx context.Context, businessID string) (model.Business, error) {
	var b model.Business
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, timezone, slot_step_minutes
		FROM businesses
		WHERE id = $1
	`, businessID).Scan(&b.ID, &b.Name, &b.Timezone, &b.SlotStepMinutes)
	if err != nil {
		return model.Business{}, classify(err, "get business")
	}
	return b, nil
}

// GetService matches the service id under the business only.
func (r *CatalogRepository) GetService(ctx context.Context, businessID, serviceID string) (model.Service, error) {
	var s model.Service
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, business_id::text, name, duration_minutes, buffer_minutes, slot_step_minutes, is_active
		FROM services
		WHERE id = $1 AND business_id = $2
	`, serviceID, businessID).Scan(
		&s.ID,
		&s.BusinessID,
		&s.Name,
		&s.DurationMinutes,
		&s.BufferMinutes,
		&s.SlotStepMinutes,
		&s.IsActive,
	)
	if err != nil {
		return model.Service{}, classify(err, "get service")
	}
	return s, nil
}

// ListBusinessHours returns the business-wide rows plus the rows of staffID
// when one is given, in insertion order.
func (r *CatalogRepository) ListBusinessHours(ctx context.Context, businessID, staffID string) ([]model.BusinessHours, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT business_id::text, staff_id, day_of_week, start_time, end_time, is_active
		FROM business_hours
		WHERE business_id = $1 AND (staff_id = '' OR staff_id = $2)
		ORDER BY id ASC
	`, businessID, staffID)
	if err != nil {
		return nil, classify(err, "list business hours")
	}
	defer rows.Close()

	var hours []model.BusinessHours
	for rows.Next() {
		var h model.BusinessHours
		if err := rows.Scan(&h.BusinessID, &h.StaffID, &h.DayOfWeek, &h.StartTime, &h.EndTime, &h.IsActive); err != nil {
			return nil, classify(err, "scan business hours")
		}
		hours = append(hours, h)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "list business hours")
	}
	return hours, nil
}
