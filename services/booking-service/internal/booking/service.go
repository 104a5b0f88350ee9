// Package booking orchestrates availability listing and the appointment write path.
// Overlap exclusion is ultimately enforced by the database; this package never
// holds in-process locks.
package booking

import (
	"context"
	"log/slog"
	"time"

	cr "github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/chatbook/platform/services/booking-service/internal/apperr"
	"github.com/chatbook/platform/services/booking-service/internal/model"
	"github.com/chatbook/platform/services/booking-service/internal/storage"
)

// Scope selects the conflict partition.
type Scope string

const (
	// ScopeBusiness: one booking at a time per business.
	ScopeBusiness Scope = "business"
	// ScopeStaff: one booking at a time per staff member.
	ScopeStaff Scope = "staff"
)

func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "", ScopeBusiness:
		return ScopeBusiness, nil
	case ScopeStaff:
		return ScopeStaff, nil
	}
	return "", apperr.Configurationf("unknown conflict scope %q", s)
}

const DefaultSlotStep = 15 * time.Minute

type Catalog interface {
	GetBusiness(ctx context.Context, businessID string) (model.Business, error)
	GetService(ctx context.Context, businessID, serviceID string) (model.Service, error)
	ListBusinessHours(ctx context.Context, businessID, staffID string) ([]model.BusinessHours, error)
}

type Customers interface {
	UpsertCustomer(ctx context.Context, c model.Customer) (model.Customer, bool, error)
	GetCustomer(ctx context.Context, businessID, customerID string) (model.Customer, error)
}

type Appointments interface {
	ListActiveAppointments(ctx context.Context, businessID, resourceKey string, from, to time.Time) ([]model.Appointment, error)
	GetAppointment(ctx context.Context, businessID, appointmentID string) (model.Appointment, error)
	// GetIdempotentAppointment returns the appointment a completed request with
	// key created, or storage.ErrNotFound.
	GetIdempotentAppointment(ctx context.Context, businessID, key string) (model.Appointment, error)
	WithinTx(ctx context.Context, fn func(storage.Tx) error) error
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type Options struct {
	// DefaultStep applies when neither the service nor the business sets one.
	DefaultStep time.Duration
	// EnforceHours rejects bookings outside business hours or in the past.
	EnforceHours bool
	Scope        Scope
	Clock        Clock
}

type Service struct {
	catalog   Catalog
	customers Customers
	appts     Appointments
	logger    *slog.Logger
	validate  *validator.Validate
	tracer    trace.Tracer
	opts      Options
}

func NewService(catalog Catalog, customers Customers, appts Appointments, logger *slog.Logger, opts Options) *Service {
	if opts.DefaultStep <= 0 {
		opts.DefaultStep = DefaultSlotStep
	}
	if opts.Scope == "" {
		opts.Scope = ScopeBusiness
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	return &Service{
		catalog:   catalog,
		customers: customers,
		appts:     appts,
		logger:    logger,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		tracer:    otel.Tracer("booking-service/booking"),
		opts:      opts,
	}
}

// resourceKey is the conflict partition an appointment with staffID falls into.
func (s *Service) resourceKey(staffID string) string {
	if s.opts.Scope == ScopeStaff {
		return staffID
	}
	return ""
}

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "booking."+name)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *Service) business(ctx context.Context, businessID string) (model.Business, error) {
	b, err := s.catalog.GetBusiness(ctx, businessID)
	if err != nil {
		return model.Business{}, notFoundOr(err, "business", businessID)
	}
	return b, nil
}

// activeService resolves the service under the business. Inactive services
// are treated as absent.
func (s *Service) activeService(ctx context.Context, businessID, serviceID string) (model.Service, error) {
	svc, err := s.catalog.GetService(ctx, businessID, serviceID)
	if err != nil {
		return model.Service{}, notFoundOr(err, "service", serviceID)
	}
	if !svc.IsActive {
		return model.Service{}, apperr.NotFound("service", serviceID)
	}
	return svc, nil
}

func checkServiceConfig(svc model.Service) error {
	if svc.DurationMinutes <= 0 {
		return apperr.Configurationf("service %s has non-positive duration %d", svc.ID, svc.DurationMinutes)
	}
	if svc.BufferMinutes < 0 {
		return apperr.Configurationf("service %s has negative buffer %d", svc.ID, svc.BufferMinutes)
	}
	return nil
}

// notFoundOr maps storage.ErrNotFound to an apperr NotFound for what/id and
// passes every other error through with context.
func notFoundOr(err error, what, id string) error {
	if cr.Is(err, storage.ErrNotFound) {
		return cr.WithSecondaryError(apperr.NotFound(what, id), err)
	}
	return cr.Wrapf(err, "load %s", what)
}

func conflictOr(err error) error {
	if cr.Is(err, storage.ErrOverlap) {
		return cr.WithSecondaryError(apperr.Conflict(errSlotTaken), err)
	}
	return err
}

const errSlotTaken = "requested time overlaps an existing appointment"
