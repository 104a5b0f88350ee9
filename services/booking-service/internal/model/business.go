package model

import "time"

type Business struct {
	ID              string
	Name            string
	Timezone        string
	SlotStepMinutes int
}

type Service struct {
	ID              string
	BusinessID      string
	Name            string
	DurationMinutes int
	BufferMinutes   int
	SlotStepMinutes int
	IsActive        bool
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// Span is the time a booking of this service reserves: duration plus buffer.
func (s Service) Span() time.Duration {
	return time.Duration(s.DurationMinutes+s.BufferMinutes) * time.Minute
}

// BusinessHours is one opening window for a weekday. Start and End are local
// wall-clock strings ("09:00", "17:30:00"); End may be "24:00".
type BusinessHours struct {
	BusinessID string
	StaffID    string
	DayOfWeek  int
	StartTime  string
	EndTime    string
	IsActive   bool
}

type Customer struct {
	ID         string
	BusinessID string
	Email      string
	Name       string
	Phone      string
	CreatedAt  time.Time
}
