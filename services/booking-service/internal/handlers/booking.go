package handlers

//go:generate mockgen -source=booking.go -destination=mocks/booking_service.go -package=mocks

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-playground/validator/v10"

	"github.com/chatbook/platform/libs/httpx"
	"github.com/chatbook/platform/services/booking-service/internal/apperr"
	"github.com/chatbook/platform/services/booking-service/internal/availability"
	"github.com/chatbook/platform/services/booking-service/internal/booking"
	"github.com/chatbook/platform/services/booking-service/internal/calendar"
	"github.com/chatbook/platform/services/booking-service/internal/model"
)

// BookingService is the booking.Service surface the HTTP layer depends on.
type BookingService interface {
	ListAvailableSlots(ctx context.Context, q booking.SlotQuery) ([]availability.Interval, error)
	FindOrCreateCustomer(ctx context.Context, in booking.CustomerInput) (model.Customer, bool, error)
	CreateAppointment(ctx context.Context, in booking.CreateAppointmentInput) (model.Appointment, bool, error)
	Reschedule(ctx context.Context, in booking.RescheduleInput) (model.Appointment, error)
	Cancel(ctx context.Context, in booking.CancelInput) (model.Appointment, error)
	GetAppointment(ctx context.Context, businessID, appointmentID string) (model.Appointment, error)
}

type BookingHandler struct {
	svc        BookingService
	logger     *slog.Logger
	validate   *validator.Validate
	retryDelay time.Duration
}

func NewBookingHandler(svc BookingService, logger *slog.Logger, retryDelay time.Duration) *BookingHandler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &BookingHandler{
		svc:        svc,
		logger:     logger,
		validate:   v,
		retryDelay: retryDelay,
	}
}

// Register mounts the routes. public wraps the unauthenticated widget
// endpoints (rate limiting); it may be nil.
func (h *BookingHandler) Register(mux *http.ServeMux, public httpx.Middleware) {
	wrap := func(f http.HandlerFunc) http.Handler {
		if public == nil {
			return f
		}
		return public(f)
	}
	mux.Handle("GET /api/v1/public/slots", wrap(h.Slots))
	mux.Handle("POST /api/v1/public/customers", wrap(h.Customer))
	mux.Handle("POST /api/v1/public/book", wrap(h.Book))
	mux.HandleFunc("GET /api/v1/appointments/{id}", h.Get)
	mux.HandleFunc("POST /api/v1/appointments/{id}/reschedule", h.Reschedule)
	mux.HandleFunc("POST /api/v1/appointments/{id}/cancel", h.Cancel)
}

type slotsQuery struct {
	BusinessID string `json:"business_id" validate:"required,uuid"`
	ServiceID  string `json:"service_id" validate:"required,uuid"`
	StaffID    string `json:"staff_id" validate:"omitempty,max=64"`
	Date       string `json:"date" validate:"required"`
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type slotsResponse struct {
	Date  string     `json:"date"`
	Slots []slotItem `json:"slots"`
}

type customerRequest struct {
	BusinessID string `json:"business_id" validate:"required,uuid"`
	Email      string `json:"email" validate:"required,email,max=254"`
	Name       string `json:"name" validate:"max=255"`
	Phone      string `json:"phone" validate:"max=50"`
}

type customerResponse struct {
	CustomerID string `json:"customer_id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Phone      string `json:"phone,omitempty"`
	Created    bool   `json:"created"`
}

// bookRequest identifies the customer either by id or by contact details, in
// which case the customer is found or created first.
type bookRequest struct {
	BusinessID    string `json:"business_id" validate:"required,uuid"`
	ServiceID     string `json:"service_id" validate:"required,uuid"`
	CustomerID    string `json:"customer_id" validate:"omitempty,uuid"`
	CustomerEmail string `json:"customer_email" validate:"required_without=CustomerID,omitempty,email,max=254"`
	CustomerName  string `json:"customer_name" validate:"max=255"`
	CustomerPhone string `json:"customer_phone" validate:"max=50"`
	StaffID       string `json:"staff_id" validate:"omitempty,max=64"`
	StartTime     string `json:"start_time" validate:"required"`
	Notes         string `json:"notes" validate:"max=1000"`
}

type rescheduleRequest struct {
	BusinessID   string `json:"business_id" validate:"required,uuid"`
	NewStartTime string `json:"new_start_time" validate:"required"`
}

type cancelRequest struct {
	BusinessID  string `json:"business_id" validate:"required,uuid"`
	CancelledBy string `json:"cancelled_by" validate:"omitempty,oneof=customer business system"`
	Reason      string `json:"reason" validate:"max=500"`
}

type appointmentResponse struct {
	AppointmentID string `json:"appointment_id"`
	BusinessID    string `json:"business_id"`
	ServiceID     string `json:"service_id"`
	CustomerID    string `json:"customer_id"`
	StaffID       string `json:"staff_id,omitempty"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
	Timezone      string `json:"timezone"`
	Notes         string `json:"notes,omitempty"`
	CancelledAt   string `json:"cancelled_at,omitempty"`
	CancelledBy   string `json:"cancelled_by,omitempty"`
	CancelReason  string `json:"cancellation_reason,omitempty"`
	CreatedAt     string `json:"created_at"`
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	q := slotsQuery{
		BusinessID: strings.TrimSpace(r.URL.Query().Get("business_id")),
		ServiceID:  strings.TrimSpace(r.URL.Query().Get("service_id")),
		StaffID:    strings.TrimSpace(r.URL.Query().Get("staff_id")),
		Date:       strings.TrimSpace(r.URL.Query().Get("date")),
	}
	if err := h.validate.Struct(q); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	date, err := calendar.ParseDate(q.Date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	slots, err := h.listSlots(r.Context(), booking.SlotQuery{
		BusinessID: q.BusinessID,
		ServiceID:  q.ServiceID,
		StaffID:    q.StaffID,
		Date:       date,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := slotsResponse{Date: date.String(), Slots: make([]slotItem, 0, len(slots))}
	for _, s := range slots {
		resp.Slots = append(resp.Slots, slotItem{
			StartTime: s.Start.UTC().Format(time.RFC3339),
			EndTime:   s.End.UTC().Format(time.RFC3339),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// listSlots retries a listing once when the failure is not a domain error.
// Listing is read-only, so a repeat is harmless.
func (h *BookingHandler) listSlots(ctx context.Context, q booking.SlotQuery) ([]availability.Interval, error) {
	attempt := 0
	return backoff.Retry(ctx, func() ([]availability.Interval, error) {
		attempt++
		slots, err := h.svc.ListAvailableSlots(ctx, q)
		if err == nil {
			return slots, nil
		}
		if apperr.Kind(err) != nil {
			return nil, backoff.Permanent(err)
		}
		if attempt == 1 {
			h.logger.Warn("slot listing failed; retrying", "business_id", q.BusinessID, "err", err)
		}
		return nil, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(h.retryDelay)),
		backoff.WithMaxTries(2),
	)
}

func (h *BookingHandler) Customer(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, created, err := h.svc.FindOrCreateCustomer(r.Context(), booking.CustomerInput{
		BusinessID: req.BusinessID,
		Email:      req.Email,
		Name:       req.Name,
		Phone:      req.Phone,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httpx.WriteJSON(w, status, customerResponse{
		CustomerID: c.ID,
		Email:      c.Email,
		Name:       c.Name,
		Phone:      c.Phone,
		Created:    created,
	})
}

func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if !h.decode(w, r, &req) {
		return
	}
	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid start_time")
		return
	}
	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if len(idempotencyKey) > 255 {
		httpx.WriteError(w, http.StatusBadRequest, "Idempotency-Key is too long")
		return
	}

	ctx := r.Context()
	customerID := req.CustomerID
	if customerID == "" {
		c, _, err := h.svc.FindOrCreateCustomer(ctx, booking.CustomerInput{
			BusinessID: req.BusinessID,
			Email:      req.CustomerEmail,
			Name:       req.CustomerName,
			Phone:      req.CustomerPhone,
		})
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		customerID = c.ID
	}

	appt, replayed, err := h.svc.CreateAppointment(ctx, booking.CreateAppointmentInput{
		BusinessID:     req.BusinessID,
		ServiceID:      req.ServiceID,
		CustomerID:     customerID,
		StaffID:        req.StaffID,
		StartTime:      startTime,
		Notes:          strings.TrimSpace(req.Notes),
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	w.Header().Set("Location", "/api/v1/appointments/"+appt.ID+"?business_id="+appt.BusinessID)
	httpx.WriteJSON(w, status, toAppointmentResponse(appt))
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	businessID := strings.TrimSpace(r.URL.Query().Get("business_id"))
	if err := h.validate.Var(businessID, "required,uuid"); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "business_id must be a uuid")
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	appt, err := h.svc.GetAppointment(r.Context(), businessID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req rescheduleRequest
	if !h.decode(w, r, &req) {
		return
	}
	newStart, err := time.Parse(time.RFC3339, req.NewStartTime)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid new_start_time")
		return
	}
	appt, err := h.svc.Reschedule(r.Context(), booking.RescheduleInput{
		BusinessID:    req.BusinessID,
		AppointmentID: id,
		NewStartTime:  newStart,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if !h.decode(w, r, &req) {
		return
	}
	appt, err := h.svc.Cancel(r.Context(), booking.CancelInput{
		BusinessID:    req.BusinessID,
		AppointmentID: id,
		CancelledBy:   req.CancelledBy,
		Reason:        strings.TrimSpace(req.Reason),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *BookingHandler) pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if err := h.validate.Var(id, "required,uuid"); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "appointment id must be a uuid")
		return "", false
	}
	return id, true
}

// decode reads a JSON body into dst and validates it, writing a 400 on failure.
func (h *BookingHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func (h *BookingHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"err", err,
		)
		httpx.WriteError(w, status, "internal error")
		return
	}
	httpx.WriteError(w, status, err.Error())
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required", "required_without":
		return fe.Field() + " is required"
	case "uuid":
		return fe.Field() + " must be a uuid"
	case "email":
		return fe.Field() + " must be a valid email"
	case "max":
		return fe.Field() + " is too long"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	}
	return fe.Field() + " is invalid"
}

func toAppointmentResponse(a model.Appointment) appointmentResponse {
	resp := appointmentResponse{
		AppointmentID: a.ID,
		BusinessID:    a.BusinessID,
		ServiceID:     a.ServiceID,
		CustomerID:    a.CustomerID,
		StaffID:       a.StaffID,
		StartTime:     a.StartTime.UTC().Format(time.RFC3339),
		EndTime:       a.EndTime.UTC().Format(time.RFC3339),
		Status:        string(a.Status),
		Timezone:      a.Timezone,
		Notes:         a.Notes,
		CancelledBy:   a.CancelledBy,
		CancelReason:  a.CancelReason,
		CreatedAt:     a.CreatedAt.UTC().Format(time.RFC3339),
	}
	if a.CancelledAt != nil {
		resp.CancelledAt = a.CancelledAt.UTC().Format(time.RFC3339)
	}
	return resp
}
