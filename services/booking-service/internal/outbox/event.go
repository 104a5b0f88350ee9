package outbox

import (
	"encoding/json"
	"time"
)

// Event types emitted by the booking service. The Kafka topic name equals the event type.
const (
	EventAppointmentCreated     = "booking.appointment.created.v1"
	EventAppointmentRescheduled = "booking.appointment.rescheduled.v1"
	EventAppointmentCancelled   = "booking.appointment.cancelled.v1"
)

// Event is the domain event envelope written to the outbox table in the same
// transaction as the state change it describes.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Record is an unpublished outbox row.
type Record struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Traceparent   string
	Tracestate    string
	CreatedAt     time.Time
}

// AppointmentPayload is the body of every appointment event. Calendar sync and
// email consumers read it; Previous* are set only for reschedules.
type AppointmentPayload struct {
	AppointmentID     string     `json:"appointment_id"`
	BusinessID        string     `json:"business_id"`
	ServiceID         string     `json:"service_id"`
	CustomerID        string     `json:"customer_id"`
	StaffID           string     `json:"staff_id,omitempty"`
	Status            string     `json:"status"`
	StartTime         time.Time  `json:"start_time"`
	EndTime           time.Time  `json:"end_time"`
	Timezone          string     `json:"timezone"`
	PreviousStartTime *time.Time `json:"previous_start_time,omitempty"`
	PreviousEndTime   *time.Time `json:"previous_end_time,omitempty"`
	CancelledBy       string     `json:"cancelled_by,omitempty"`
	Reason            string     `json:"reason,omitempty"`
}

func NewAppointmentEvent(eventType string, p AppointmentPayload) (Event, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "appointment",
		AggregateID:   p.AppointmentID,
		EventType:     eventType,
		Payload:       b,
	}, nil
}
