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
	"github.com/chatbook/platform/services/booking-service/internal/outbox"
	"github.com/chatbook/platform/services/booking-service/internal/storage"
)

type CreateAppointmentInput struct {
	BusinessID     string
	ServiceID      string
	CustomerID     string
	StaffID        string
	StartTime      time.Time
	Notes          string
	IdempotencyKey string
}

// CreateAppointment books [start, start+duration) for the customer. The end is
// always derived from the current service row. With an idempotency key, a
// repeated request returns the appointment created by the first one and
// replayed is true. Overlap with an active appointment yields a Conflict
// error; the call is never retried here.
func (s *Service) CreateAppointment(ctx context.Context, in CreateAppointmentInput) (appt model.Appointment, replayed bool, err error) {
	ctx, span := s.startSpan(ctx, "CreateAppointment")
	span.SetAttributes(
		attribute.String("business_id", in.BusinessID),
		attribute.String("service_id", in.ServiceID),
	)
	defer func() { endSpan(span, err) }()

	if in.BusinessID == "" || in.ServiceID == "" || in.CustomerID == "" {
		return model.Appointment{}, false, apperr.Validation("business_id, service_id and customer_id are required")
	}
	if in.StartTime.IsZero() {
		return model.Appointment{}, false, apperr.Validation("start_time is required")
	}

	// A known key is answered before lookups and guardrails, so a retry still
	// gets its appointment after the start time passed or the service retired.
	if in.IdempotencyKey != "" {
		prior, err := s.appts.GetIdempotentAppointment(ctx, in.BusinessID, in.IdempotencyKey)
		switch {
		case err == nil:
			s.logger.Info("appointment replayed", "business_id", prior.BusinessID, "appointment_id", prior.ID)
			return prior, true, nil
		case !cr.Is(err, storage.ErrNotFound):
			return model.Appointment{}, false, cr.Wrap(err, "look up idempotency key")
		}
	}

	business, err := s.business(ctx, in.BusinessID)
	if err != nil {
		return model.Appointment{}, false, err
	}
	svc, err := s.activeService(ctx, in.BusinessID, in.ServiceID)
	if err != nil {
		return model.Appointment{}, false, err
	}
	if err := checkServiceConfig(svc); err != nil {
		return model.Appointment{}, false, err
	}
	if _, err := s.customers.GetCustomer(ctx, in.BusinessID, in.CustomerID); err != nil {
		return model.Appointment{}, false, notFoundOr(err, "customer", in.CustomerID)
	}

	start := in.StartTime.UTC()
	if err := s.checkBookable(ctx, business, svc, in.StaffID, start); err != nil {
		return model.Appointment{}, false, err
	}

	appt = model.Appointment{
		BusinessID:     in.BusinessID,
		ServiceID:      svc.ID,
		CustomerID:     in.CustomerID,
		StaffID:        in.StaffID,
		ResourceKey:    s.resourceKey(in.StaffID),
		StartTime:      start,
		EndTime:        start.Add(svc.Duration()),
		Status:         model.StatusScheduled,
		Timezone:       business.Timezone,
		Notes:          in.Notes,
		IdempotencyKey: in.IdempotencyKey,
	}

	// Only the transaction's own connection is used from here on.
	err = s.appts.WithinTx(ctx, func(tx storage.Tx) error {
		if in.IdempotencyKey != "" {
			// A concurrent request with the same key may have committed meanwhile.
			existingID, err := tx.LockIdempotencyKey(ctx, in.BusinessID, in.IdempotencyKey)
			if err != nil {
				return err
			}
			if existingID != "" {
				prior, err := tx.GetAppointment(ctx, in.BusinessID, existingID)
				if err != nil {
					return cr.Wrap(err, "load idempotent appointment")
				}
				appt, replayed = prior, true
				return nil
			}
		}

		overlap, err := tx.HasOverlap(ctx, appt.BusinessID, appt.ResourceKey, start, start.Add(svc.Span()), "")
		if err != nil {
			return err
		}
		if overlap {
			return apperr.Conflict(errSlotTaken)
		}
		if err := tx.InsertAppointment(ctx, &appt); err != nil {
			return conflictOr(err)
		}
		if in.IdempotencyKey != "" {
			if err := tx.FinalizeIdempotency(ctx, in.BusinessID, in.IdempotencyKey, appt.ID); err != nil {
				return err
			}
		}
		return s.enqueue(ctx, tx, outbox.EventAppointmentCreated, appt, nil)
	})
	if err != nil {
		return model.Appointment{}, false, err
	}

	if replayed {
		s.logger.Info("appointment replayed", "business_id", appt.BusinessID, "appointment_id", appt.ID)
	} else {
		s.logger.Info("appointment created",
			"business_id", appt.BusinessID,
			"appointment_id", appt.ID,
			"start_time", appt.StartTime.Format(time.RFC3339),
		)
	}
	return appt, replayed, nil
}

type RescheduleInput struct {
	BusinessID    string
	AppointmentID string
	NewStartTime  time.Time
}

// Reschedule moves an active appointment to a new start, recomputing the end
// from the service. The status is kept and delivery markers are reset. On any
// error the appointment is left unchanged.
func (s *Service) Reschedule(ctx context.Context, in RescheduleInput) (appt model.Appointment, err error) {
	ctx, span := s.startSpan(ctx, "Reschedule")
	span.SetAttributes(
		attribute.String("business_id", in.BusinessID),
		attribute.String("appointment_id", in.AppointmentID),
	)
	defer func() { endSpan(span, err) }()

	if in.BusinessID == "" || in.AppointmentID == "" {
		return model.Appointment{}, apperr.Validation("business_id and appointment_id are required")
	}
	if in.NewStartTime.IsZero() {
		return model.Appointment{}, apperr.Validation("new_start_time is required")
	}
	business, err := s.business(ctx, in.BusinessID)
	if err != nil {
		return model.Appointment{}, err
	}
	snapshot, err := s.appts.GetAppointment(ctx, in.BusinessID, in.AppointmentID)
	if err != nil {
		return model.Appointment{}, notFoundOr(err, "appointment", in.AppointmentID)
	}
	if !snapshot.Status.IsActive() {
		return model.Appointment{}, apperr.Validationf("appointment is %s and cannot be rescheduled", snapshot.Status)
	}
	svc, err := s.catalog.GetService(ctx, in.BusinessID, snapshot.ServiceID)
	if err != nil {
		return model.Appointment{}, notFoundOr(err, "service", snapshot.ServiceID)
	}
	if err := checkServiceConfig(svc); err != nil {
		return model.Appointment{}, err
	}
	start := in.NewStartTime.UTC()
	if err := s.checkBookable(ctx, business, svc, snapshot.StaffID, start); err != nil {
		return model.Appointment{}, err
	}

	var previous model.Appointment
	err = s.appts.WithinTx(ctx, func(tx storage.Tx) error {
		current, err := tx.GetAppointmentForUpdate(ctx, in.BusinessID, in.AppointmentID)
		if err != nil {
			return notFoundOr(err, "appointment", in.AppointmentID)
		}
		if !current.Status.IsActive() {
			return apperr.Validationf("appointment is %s and cannot be rescheduled", current.Status)
		}
		// service_id and staff_id never change after creation.
		previous = current

		overlap, err := tx.HasOverlap(ctx, current.BusinessID, current.ResourceKey, start, start.Add(svc.Span()), current.ID)
		if err != nil {
			return err
		}
		if overlap {
			return apperr.Conflict(errSlotTaken)
		}
		appt, err = tx.RescheduleAppointment(ctx, in.BusinessID, current.ID, start, start.Add(svc.Duration()))
		if err != nil {
			return conflictOr(err)
		}
		return s.enqueue(ctx, tx, outbox.EventAppointmentRescheduled, appt, &previous)
	})
	if err != nil {
		return model.Appointment{}, err
	}

	s.logger.Info("appointment rescheduled",
		"business_id", appt.BusinessID,
		"appointment_id", appt.ID,
		"from", previous.StartTime.Format(time.RFC3339),
		"to", appt.StartTime.Format(time.RFC3339),
	)
	return appt, nil
}

type CancelInput struct {
	BusinessID    string
	AppointmentID string
	CancelledBy   string
	Reason        string
}

// Cancel marks the appointment cancelled; rows are never deleted. Cancelling
// an already cancelled appointment returns it unchanged.
func (s *Service) Cancel(ctx context.Context, in CancelInput) (appt model.Appointment, err error) {
	ctx, span := s.startSpan(ctx, "Cancel")
	span.SetAttributes(
		attribute.String("business_id", in.BusinessID),
		attribute.String("appointment_id", in.AppointmentID),
	)
	defer func() { endSpan(span, err) }()

	if in.BusinessID == "" || in.AppointmentID == "" {
		return model.Appointment{}, apperr.Validation("business_id and appointment_id are required")
	}

	var changed bool
	err = s.appts.WithinTx(ctx, func(tx storage.Tx) error {
		current, err := tx.GetAppointmentForUpdate(ctx, in.BusinessID, in.AppointmentID)
		if err != nil {
			return notFoundOr(err, "appointment", in.AppointmentID)
		}
		if current.Status == model.StatusCancelled {
			appt = current
			return nil
		}
		if !current.Status.CanTransitionTo(model.StatusCancelled) {
			return apperr.Validationf("appointment is %s and cannot be cancelled", current.Status)
		}
		appt, err = tx.CancelAppointment(ctx, in.BusinessID, current.ID, in.CancelledBy, in.Reason)
		if err != nil {
			return err
		}
		changed = true
		return s.enqueue(ctx, tx, outbox.EventAppointmentCancelled, appt, nil)
	})
	if err != nil {
		return model.Appointment{}, err
	}
	if changed {
		s.logger.Info("appointment cancelled", "business_id", appt.BusinessID, "appointment_id", appt.ID, "cancelled_by", in.CancelledBy)
	}
	return appt, nil
}

func (s *Service) GetAppointment(ctx context.Context, businessID, appointmentID string) (appt model.Appointment, err error) {
	ctx, span := s.startSpan(ctx, "GetAppointment")
	defer func() { endSpan(span, err) }()

	if businessID == "" || appointmentID == "" {
		return model.Appointment{}, apperr.Validation("business_id and appointment_id are required")
	}
	appt, err = s.appts.GetAppointment(ctx, businessID, appointmentID)
	if err != nil {
		return model.Appointment{}, notFoundOr(err, "appointment", appointmentID)
	}
	return appt, nil
}

// checkBookable applies the business-hours guardrail: the reserved span must fit
// one opening window of the local date and start strictly in the future.
func (s *Service) checkBookable(ctx context.Context, b model.Business, svc model.Service, staffID string, start time.Time) error {
	if !s.opts.EnforceHours {
		return nil
	}
	if !start.After(s.opts.Clock.Now()) {
		return apperr.Validation("start_time must be in the future")
	}
	loc, err := calendar.LoadLocation(b.Timezone)
	if err != nil {
		return err
	}
	windows, err := s.windows(ctx, b.ID, staffID, calendar.DateOf(start.In(loc)), loc)
	if err != nil {
		return err
	}
	reserve := availability.Interval{Start: start, End: start.Add(svc.Span())}
	if !availability.Fits(reserve, windows) {
		return apperr.Validation("requested time is outside business hours")
	}
	return nil
}

func (s *Service) enqueue(ctx context.Context, tx storage.Tx, eventType string, appt model.Appointment, previous *model.Appointment) error {
	p := outbox.AppointmentPayload{
		AppointmentID: appt.ID,
		BusinessID:    appt.BusinessID,
		ServiceID:     appt.ServiceID,
		CustomerID:    appt.CustomerID,
		StaffID:       appt.StaffID,
		Status:        string(appt.Status),
		StartTime:     appt.StartTime,
		EndTime:       appt.EndTime,
		Timezone:      appt.Timezone,
		CancelledBy:   appt.CancelledBy,
		Reason:        appt.CancelReason,
	}
	if previous != nil {
		p.PreviousStartTime = &previous.StartTime
		p.PreviousEndTime = &previous.EndTime
	}
	evt, err := outbox.NewAppointmentEvent(eventType, p)
	if err != nil {
		return cr.Wrap(err, "build "+eventType)
	}
	return tx.EnqueueEvent(ctx, evt)
}
