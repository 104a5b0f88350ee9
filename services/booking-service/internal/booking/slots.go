package booking

import (
	"context"
	"time"

	cr "github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/chatbook/platform/services/booking-service/internal/apperr"
	"github.com/chatbook/platform/services/booking-service/internal/availability"
	"github.com/chatbook/platform/services/booking-service/internal/calendar"
	"github.com/chatbook/platform/services/booking-service/internal/model"
)

type SlotQuery struct {
	BusinessID string
	ServiceID  string
	// StaffID narrows hours and conflicts to one staff member when set.
	StaffID string
	Date    calendar.Date
}

// ListAvailableSlots returns the bookable [start, start+duration) intervals of
// the service on the business-local date, in window order then step order.
// A closed day yields an empty, non-nil list. Read-only.
func (s *Service) ListAvailableSlots(ctx context.Context, q SlotQuery) (slots []availability.Interval, err error) {
	ctx, span := s.startSpan(ctx, "ListAvailableSlots")
	span.SetAttributes(
		attribute.String("business_id", q.BusinessID),
		attribute.String("service_id", q.ServiceID),
		attribute.String("date", q.Date.String()),
	)
	defer func() { endSpan(span, err) }()

	if q.BusinessID == "" || q.ServiceID == "" {
		return nil, apperr.Validation("business_id and service_id are required")
	}
	business, err := s.business(ctx, q.BusinessID)
	if err != nil {
		return nil, err
	}
	svc, err := s.activeService(ctx, q.BusinessID, q.ServiceID)
	if err != nil {
		return nil, err
	}
	if err := checkServiceConfig(svc); err != nil {
		return nil, err
	}
	loc, err := calendar.LoadLocation(business.Timezone)
	if err != nil {
		return nil, err
	}
	windows, err := s.windows(ctx, q.BusinessID, q.StaffID, q.Date, loc)
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return []availability.Interval{}, nil
	}

	bounds := calendar.DayBounds(q.Date, loc)
	existing, err := s.appts.ListActiveAppointments(ctx, q.BusinessID, s.resourceKey(q.StaffID), bounds.Start.UTC(), bounds.End.UTC())
	if err != nil {
		return nil, cr.Wrap(err, "list existing appointments")
	}
	busy := make([]availability.Interval, 0, len(existing))
	for _, a := range existing {
		busy = append(busy, availability.Interval{Start: a.StartTime, End: a.EndTime})
	}

	reserve := svc.Span()
	step := availability.EffectiveStep(s.configuredStep(business, svc), reserve)
	now := s.opts.Clock.Now()

	slots = []availability.Interval{}
	for _, w := range windows {
		for _, slot := range availability.AvailableSlots(w, reserve, svc.Duration(), step, busy, now) {
			slots = append(slots, availability.Interval{Start: slot.Start.UTC(), End: slot.End.UTC()})
		}
	}
	return slots, nil
}

// configuredStep resolves the slot granularity: service, then business, then
// the service-wide default.
func (s *Service) configuredStep(b model.Business, svc model.Service) time.Duration {
	switch {
	case svc.SlotStepMinutes > 0:
		return time.Duration(svc.SlotStepMinutes) * time.Minute
	case b.SlotStepMinutes > 0:
		return time.Duration(b.SlotStepMinutes) * time.Minute
	}
	return s.opts.DefaultStep
}

// windows returns the opening windows of the date. Staff-specific rows replace
// the business rows when the staff member has any.
func (s *Service) windows(ctx context.Context, businessID, staffID string, date calendar.Date, loc *time.Location) ([]availability.Interval, error) {
	rows, err := s.catalog.ListBusinessHours(ctx, businessID, staffID)
	if err != nil {
		return nil, cr.Wrap(err, "list business hours")
	}
	return calendar.DayWindows(date, loc, hoursFor(rows, staffID))
}

func hoursFor(rows []model.BusinessHours, staffID string) []model.BusinessHours {
	if staffID == "" {
		return filterHours(rows, "")
	}
	if own := filterHours(rows, staffID); len(own) > 0 {
		return own
	}
	return filterHours(rows, "")
}

func filterHours(rows []model.BusinessHours, staffID string) []model.BusinessHours {
	var out []model.BusinessHours
	for _, r := range rows {
		if r.StaffID == staffID {
			out = append(out, r)
		}
	}
	return out
}
