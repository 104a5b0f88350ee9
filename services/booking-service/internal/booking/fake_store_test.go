package booking

import (
	"context"
	"strconv"
	"sync"
	"time"

	cr "github.com/cockroachdb/errors"

	"github.com/chatbook/platform/services/booking-service/internal/model"
	"github.com/chatbook/platform/services/booking-service/internal/outbox"
	"github.com/chatbook/platform/services/booking-service/internal/storage"
)

// fakeStore is an in-memory stand-in for the pg repositories. Transactions are
// serialised and applied to a copy that is swapped in on commit; inserts are
// checked against the same exclusion rule the database enforces.
type fakeStore struct {
	mu sync.Mutex // held for the duration of a transaction

	businesses map[string]model.Business
	services   map[string]model.Service
	hours      []model.BusinessHours

	state fakeState
	seq   int

	// Customers live outside transactions, like the pool-level upsert.
	custMu    sync.Mutex
	customers map[string]model.Customer
	custSeq   int

	// blindPrecheck makes HasOverlap always report false, simulating two
	// transactions whose pre-checks both ran before either inserted.
	blindPrecheck bool
	listErr       error
}

type fakeState struct {
	appointments map[string]model.Appointment
	idempotency  map[string]string
	events       []outbox.Event
}

func (s fakeState) clone() fakeState {
	c := fakeState{
		appointments: make(map[string]model.Appointment, len(s.appointments)),
		idempotency:  make(map[string]string, len(s.idempotency)),
		events:       append([]outbox.Event(nil), s.events...),
	}
	for k, v := range s.appointments {
		c.appointments[k] = v
	}
	for k, v := range s.idempotency {
		c.idempotency[k] = v
	}
	return c
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		businesses: map[string]model.Business{},
		services:   map[string]model.Service{},
		customers:  map[string]model.Customer{},
		state: fakeState{
			appointments: map[string]model.Appointment{},
			idempotency:  map[string]string{},
		},
	}
}

func (f *fakeStore) nextID(prefix string) string {
	f.seq++
	return prefix + "-" + strconv.Itoa(f.seq)
}

func (f *fakeStore) GetBusiness(_ context.Context, businessID string) (model.Business, error) {
	b, ok := f.businesses[businessID]
	if !ok {
		return model.Business{}, cr.Mark(cr.New("no rows"), storage.ErrNotFound)
	}
	return b, nil
}

func (f *fakeStore) GetService(_ context.Context, businessID, serviceID string) (model.Service, error) {
	s, ok := f.services[serviceID]
	if !ok || s.BusinessID != businessID {
		return model.Service{}, cr.Mark(cr.New("no rows"), storage.ErrNotFound)
	}
	return s, nil
}

func (f *fakeStore) ListBusinessHours(_ context.Context, businessID, staffID string) ([]model.BusinessHours, error) {
	var out []model.BusinessHours
	for _, h := range f.hours {
		if h.BusinessID == businessID && (h.StaffID == "" || h.StaffID == staffID) {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertCustomer(_ context.Context, c model.Customer) (model.Customer, bool, error) {
	f.custMu.Lock()
	defer f.custMu.Unlock()
	for id, existing := range f.customers {
		if existing.BusinessID == c.BusinessID && existing.Email == c.Email {
			if existing.Phone == "" {
				existing.Phone = c.Phone
				f.customers[id] = existing
			}
			return existing, false, nil
		}
	}
	f.custSeq++
	c.ID = "cust-" + strconv.Itoa(f.custSeq)
	c.CreatedAt = time.Now()
	f.customers[c.ID] = c
	return c, true, nil
}

func (f *fakeStore) GetCustomer(_ context.Context, businessID, customerID string) (model.Customer, error) {
	f.custMu.Lock()
	defer f.custMu.Unlock()
	c, ok := f.customers[customerID]
	if !ok || c.BusinessID != businessID {
		return model.Customer{}, cr.Mark(cr.New("no rows"), storage.ErrNotFound)
	}
	return c, nil
}

func (f *fakeStore) ListActiveAppointments(_ context.Context, businessID, resourceKey string, from, to time.Time) ([]model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []model.Appointment
	for _, a := range f.state.appointments {
		if a.BusinessID == businessID && a.ResourceKey == resourceKey && a.Status.IsActive() &&
			a.StartTime.Before(to) && a.EndTime.After(from) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) GetAppointment(_ context.Context, businessID, appointmentID string) (model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.get(businessID, appointmentID)
}

func (f *fakeStore) GetIdempotentAppointment(_ context.Context, businessID, key string) (model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.state.idempotency[businessID+"/"+key]
	if !ok {
		return model.Appointment{}, cr.Mark(cr.New("no rows"), storage.ErrNotFound)
	}
	return f.state.get(businessID, id)
}

func (f *fakeStore) WithinTx(_ context.Context, fn func(storage.Tx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx := &fakeTx{store: f, state: f.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	f.state = tx.state
	return nil
}

func (f *fakeStore) appointment(id string) model.Appointment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.appointments[id]
}

func (f *fakeStore) events() []outbox.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]outbox.Event(nil), f.state.events...)
}

func (s fakeState) get(businessID, appointmentID string) (model.Appointment, error) {
	a, ok := s.appointments[appointmentID]
	if !ok || a.BusinessID != businessID {
		return model.Appointment{}, cr.Mark(cr.New("no rows"), storage.ErrNotFound)
	}
	return a, nil
}

type fakeTx struct {
	store *fakeStore
	state fakeState
}

func (t *fakeTx) LockIdempotencyKey(_ context.Context, businessID, key string) (string, error) {
	return t.state.idempotency[businessID+"/"+key], nil
}

func (t *fakeTx) FinalizeIdempotency(_ context.Context, businessID, key, appointmentID string) error {
	t.state.idempotency[businessID+"/"+key] = appointmentID
	return nil
}

func (t *fakeTx) overlaps(businessID, resourceKey string, start, end time.Time, excludeID string) bool {
	for _, a := range t.state.appointments {
		if a.ID == excludeID || a.BusinessID != businessID || a.ResourceKey != resourceKey || !a.Status.IsActive() {
			continue
		}
		if a.StartTime.Before(end) && a.EndTime.After(start) {
			return true
		}
	}
	return false
}

func (t *fakeTx) HasOverlap(_ context.Context, businessID, resourceKey string, start, end time.Time, excludeID string) (bool, error) {
	if t.store.blindPrecheck {
		return false, nil
	}
	return t.overlaps(businessID, resourceKey, start, end, excludeID), nil
}

func (t *fakeTx) InsertAppointment(_ context.Context, appt *model.Appointment) error {
	if t.overlaps(appt.BusinessID, appt.ResourceKey, appt.StartTime, appt.EndTime, "") {
		return cr.Mark(cr.New("conflicting key value violates exclusion constraint"), storage.ErrOverlap)
	}
	appt.ID = t.store.nextID("appt")
	appt.CreatedAt = time.Now()
	appt.UpdatedAt = appt.CreatedAt
	t.state.appointments[appt.ID] = *appt
	return nil
}

func (t *fakeTx) GetAppointment(_ context.Context, businessID, appointmentID string) (model.Appointment, error) {
	return t.state.get(businessID, appointmentID)
}

func (t *fakeTx) GetAppointmentForUpdate(ctx context.Context, businessID, appointmentID string) (model.Appointment, error) {
	return t.GetAppointment(ctx, businessID, appointmentID)
}

func (t *fakeTx) RescheduleAppointment(_ context.Context, businessID, appointmentID string, start, end time.Time) (model.Appointment, error) {
	a, err := t.state.get(businessID, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if t.overlaps(businessID, a.ResourceKey, start, end, appointmentID) {
		return model.Appointment{}, cr.Mark(cr.New("conflicting key value violates exclusion constraint"), storage.ErrOverlap)
	}
	a.StartTime, a.EndTime = start, end
	a.ConfirmationSentAt, a.ReminderSentAt = nil, nil
	t.state.appointments[appointmentID] = a
	return a, nil
}

func (t *fakeTx) CancelAppointment(_ context.Context, businessID, appointmentID, cancelledBy, reason string) (model.Appointment, error) {
	a, err := t.state.get(businessID, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	now := time.Now()
	a.Status = model.StatusCancelled
	a.CancelledAt = &now
	a.CancelledBy = cancelledBy
	a.CancelReason = reason
	t.state.appointments[appointmentID] = a
	return a, nil
}

func (t *fakeTx) EnqueueEvent(_ context.Context, evt outbox.Event) error {
	t.state.events = append(t.state.events, evt)
	return nil
}
