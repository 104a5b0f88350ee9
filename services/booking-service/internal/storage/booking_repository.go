package storage

import (
	"context"
	"time"

	cr "github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"

	"github.com/chatbook/platform/libs/db"
	"github.com/chatbook/platform/services/booking-service/internal/model"
	"github.com/chatbook/platform/services/booking-service/internal/outbox"
)

// Tx is the set of writes that must commit or roll back together.
type Tx interface {
	// LockIdempotencyKey claims (business, key) for the rest of the transaction.
	// It returns the appointment id recorded by an earlier completed request, or "".
	LockIdempotencyKey(ctx context.Context, businessID, key string) (string, error)
	FinalizeIdempotency(ctx context.Context, businessID, key, appointmentID string) error
	// HasOverlap checks for an active appointment in the resource partition
	// intersecting [start, end), ignoring excludeID.
	HasOverlap(ctx context.Context, businessID, resourceKey string, start, end time.Time, excludeID string) (bool, error)
	InsertAppointment(ctx context.Context, appt *model.Appointment) error
	GetAppointment(ctx context.Context, businessID, appointmentID string) (model.Appointment, error)
	GetAppointmentForUpdate(ctx context.Context, businessID, appointmentID string) (model.Appointment, error)
	RescheduleAppointment(ctx context.Context, businessID, appointmentID string, start, end time.Time) (model.Appointment, error)
	CancelAppointment(ctx context.Context, businessID, appointmentID, cancelledBy, reason string) (model.Appointment, error)
	EnqueueEvent(ctx context.Context, evt outbox.Event) error
}

type BookingRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewBookingRepository(pool *db.Pool, outboxRepo *outbox.Repository) *BookingRepository {
	return &BookingRepository{pool: pool, outbox: outboxRepo}
}

// WithinTx runs fn in a transaction that commits only if fn returns nil.
func (r *BookingRepository) WithinTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return classify(err, "begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx, outbox: r.outbox}); err != nil {
		return err
	}
	return classify(tx.Commit(ctx), "commit transaction")
}

// ListActiveAppointments returns scheduled and confirmed appointments of the
// resource partition that intersect [from, to).
func (r *BookingRepository) ListActiveAppointments(ctx context.Context, businessID, resourceKey string, from, to time.Time) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE business_id = $1
			AND resource_key = $2
			AND status IN ('scheduled', 'confirmed')
			AND start_time < $4
			AND end_time > $3
		ORDER BY start_time ASC
	`, businessID, resourceKey, from, to)
	if err != nil {
		return nil, classify(err, "list active appointments")
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, classify(err, "scan appointment")
		}
		appts = append(appts, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "list active appointments")
	}
	return appts, nil
}

func (r *BookingRepository) GetAppointment(ctx context.Context, businessID, appointmentID string) (model.Appointment, error) {
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND business_id = $2
	`, appointmentID, businessID))
	if err != nil {
		return model.Appointment{}, classify(err, "get appointment")
	}
	return appt, nil
}

func (r *BookingRepository) GetIdempotentAppointment(ctx context.Context, businessID, key string) (model.Appointment, error) {
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+qualifiedAppointmentColumns+`
		FROM booking_idempotency_keys k
		JOIN appointments a ON a.id = k.appointment_id
		WHERE k.business_id = $1 AND k.idempotency_key = $2
	`, businessID, key))
	if err != nil {
		return model.Appointment{}, classify(err, "get idempotent appointment")
	}
	return appt, nil
}

type pgTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *pgTx) LockIdempotencyKey(ctx context.Context, businessID, key string) (string, error) {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (business_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (business_id, idempotency_key) DO NOTHING
	`, businessID, key)
	if err != nil {
		return "", classify(err, "claim idempotency key")
	}

	// Blocks until a concurrent request holding the key commits or rolls back.
	var appointmentID string
	err = t.tx.QueryRow(ctx, `
		SELECT COALESCE(appointment_id::text, '')
		FROM booking_idempotency_keys
		WHERE business_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, businessID, key).Scan(&appointmentID)
	if err != nil {
		return "", classify(err, "lock idempotency key")
	}
	return appointmentID, nil
}

func (t *pgTx) FinalizeIdempotency(ctx context.Context, businessID, key, appointmentID string) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET appointment_id = $3,
			updated_at = now()
		WHERE business_id = $1 AND idempotency_key = $2
	`, businessID, key, appointmentID)
	return classify(err, "finalize idempotency key")
}

func (t *pgTx) HasOverlap(ctx context.Context, businessID, resourceKey string, start, end time.Time, excludeID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE business_id = $1
				AND resource_key = $2
				AND status IN ('scheduled', 'confirmed')
				AND start_time < $4
				AND end_time > $3
				AND ($5 = '' OR id::text <> $5)
		)
	`, businessID, resourceKey, start, end, excludeID).Scan(&exists)
	if err != nil {
		return false, classify(err, "check overlap")
	}
	return exists, nil
}

func (t *pgTx) InsertAppointment(ctx context.Context, appt *model.Appointment) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO appointments
			(business_id, service_id, customer_id, staff_id, resource_key, start_time, end_time,
			 status, timezone, notes, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''))
		RETURNING id::text, created_at, updated_at
	`, appt.BusinessID, appt.ServiceID, appt.CustomerID, appt.StaffID, appt.ResourceKey,
		appt.StartTime, appt.EndTime, string(appt.Status), appt.Timezone, appt.Notes, appt.IdempotencyKey,
	).Scan(&appt.ID, &appt.CreatedAt, &appt.UpdatedAt)
	return classify(err, "insert appointment")
}

func (t *pgTx) GetAppointment(ctx context.Context, businessID, appointmentID string) (model.Appointment, error) {
	appt, err := scanAppointment(t.tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND business_id = $2
	`, appointmentID, businessID))
	if err != nil {
		return model.Appointment{}, classify(err, "get appointment")
	}
	return appt, nil
}

func (t *pgTx) GetAppointmentForUpdate(ctx context.Context, businessID, appointmentID string) (model.Appointment, error) {
	appt, err := scanAppointment(t.tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND business_id = $2
		FOR UPDATE
	`, appointmentID, businessID))
	if err != nil {
		return model.Appointment{}, classify(err, "lock appointment")
	}
	return appt, nil
}

// RescheduleAppointment moves the appointment and clears the delivery markers
// so confirmations and reminders are sent again for the new time.
func (t *pgTx) RescheduleAppointment(ctx context.Context, businessID, appointmentID string, start, end time.Time) (model.Appointment, error) {
	appt, err := scanAppointment(t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET start_time = $3,
			end_time = $4,
			confirmation_sent_at = NULL,
			reminder_sent_at = NULL,
			updated_at = now()
		WHERE id = $1 AND business_id = $2
		RETURNING `+appointmentColumns+`
	`, appointmentID, businessID, start, end))
	if err != nil {
		return model.Appointment{}, classify(err, "reschedule appointment")
	}
	return appt, nil
}

func (t *pgTx) CancelAppointment(ctx context.Context, businessID, appointmentID, cancelledBy, reason string) (model.Appointment, error) {
	appt, err := scanAppointment(t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = now(),
			cancelled_by = NULLIF($3, ''),
			cancellation_reason = NULLIF($4, ''),
			updated_at = now()
		WHERE id = $1 AND business_id = $2
		RETURNING `+appointmentColumns+`
	`, appointmentID, businessID, cancelledBy, reason))
	if err != nil {
		return model.Appointment{}, classify(err, "cancel appointment")
	}
	return appt, nil
}

func (t *pgTx) EnqueueEvent(ctx context.Context, evt outbox.Event) error {
	return classify(t.outbox.Insert(ctx, t.tx, evt), "enqueue "+evt.EventType)
}

const appointmentColumns = `id::text, business_id::text, service_id::text, customer_id::text,
	staff_id, resource_key, start_time, end_time, status, timezone, COALESCE(notes, ''),
	COALESCE(idempotency_key, ''), confirmation_sent_at, reminder_sent_at, cancelled_at,
	COALESCE(cancelled_by, ''), COALESCE(cancellation_reason, ''), created_at, updated_at`

const qualifiedAppointmentColumns = `a.id::text, a.business_id::text, a.service_id::text, a.customer_id::text,
	a.staff_id, a.resource_key, a.start_time, a.end_time, a.status, a.timezone, COALESCE(a.notes, ''),
	COALESCE(a.idempotency_key, ''), a.confirmation_sent_at, a.reminder_sent_at, a.cancelled_at,
	COALESCE(a.cancelled_by, ''), COALESCE(a.cancellation_reason, ''), a.created_at, a.updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var status string
	err := row.Scan(
		&appt.ID,
		&appt.BusinessID,
		&appt.ServiceID,
		&appt.CustomerID,
		&appt.StaffID,
		&appt.ResourceKey,
		&appt.StartTime,
		&appt.EndTime,
		&status,
		&appt.Timezone,
		&appt.Notes,
		&appt.IdempotencyKey,
		&appt.ConfirmationSentAt,
		&appt.ReminderSentAt,
		&appt.CancelledAt,
		&appt.CancelledBy,
		&appt.CancelReason,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.Status = model.Status(status)
	if !appt.Status.Valid() {
		return model.Appointment{}, cr.Newf("appointment %s has unknown status %q", appt.ID, status)
	}
	appt.StartTime = appt.StartTime.UTC()
	appt.EndTime = appt.EndTime.UTC()
	return appt, nil
}
