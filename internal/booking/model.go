package booking

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/booking-engine/internal/schedule"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusAccepted   Status = "ACCEPTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCanceled   Status = "CANCELED"
	StatusDisputed   Status = "DISPUTED"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusAccepted, StatusCanceled},
	StatusAccepted:   {StatusInProgress, StatusCanceled},
	StatusInProgress: {StatusCompleted, StatusDisputed},
	StatusCompleted:  {StatusDisputed},
}

// OccupiesTime reports whether a booking in this status blocks the
// employee's calendar. Disputed bookings still consumed their time.
func (s Status) OccupiesTime() bool {
	return s != StatusCanceled
}

func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusInProgress, StatusCompleted, StatusCanceled, StatusDisputed:
		return true
	}
	return false
}

type Business struct {
	ID              uuid.UUID
	Name            string
	Timezone        string
	SlotStepMinutes int
	LeadTimeMinutes int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Location is the business's canonical wall-clock zone.
func (b *Business) Location() (*time.Location, error) {
	if b.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return nil, fmt.Errorf("business %s timezone %q: %w", b.ID, b.Timezone, err)
	}
	return loc, nil
}

type BusinessHours struct {
	BusinessID uuid.UUID
	DayOfWeek  time.Weekday
	StartTime  schedule.Clock
	EndTime    schedule.Clock
	IsClosed   bool
}

func (h BusinessHours) Day() *schedule.BusinessDay {
	return &schedule.BusinessDay{
		Window: schedule.Window{Start: h.StartTime, End: h.EndTime},
		Closed: h.IsClosed,
	}
}

type BusinessService struct {
	ID              uuid.UUID
	BusinessID      uuid.UUID
	Name            string
	DurationMinutes int
	PriceCents      int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (s *BusinessService) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

type EmployeeAvailability struct {
	DayOfWeek time.Weekday
	StartTime schedule.Clock
	EndTime   schedule.Clock
}

type Employee struct {
	ID             uuid.UUID
	BusinessID     uuid.UUID
	Name           string
	Active         bool
	ServiceIDs     []uuid.UUID
	Availabilities []EmployeeAvailability
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (e *Employee) CanPerform(serviceID uuid.UUID) bool {
	for _, id := range e.ServiceIDs {
		if id == serviceID {
			return true
		}
	}
	return false
}

// WindowsOn returns the employee's raw availability windows for a weekday.
func (e *Employee) WindowsOn(day time.Weekday) []schedule.Window {
	var out []schedule.Window
	for _, a := range e.Availabilities {
		if a.DayOfWeek == day {
			out = append(out, schedule.Window{Start: a.StartTime, End: a.EndTime})
		}
	}
	return out
}

type Booking struct {
	ID                uuid.UUID
	BusinessID        uuid.UUID
	EmployeeID        uuid.UUID
	BusinessServiceID uuid.UUID
	RequesterID       uuid.UUID
	ScheduledAt       time.Time
	EndsAt            time.Time
	Status            Status
	Notes             *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (b *Booking) Busy() schedule.Busy {
	return schedule.Busy{Start: b.ScheduledAt, End: b.EndsAt}
}

type EventLog struct {
	ID        int64
	EventType string
	BookingID *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}

// DaySlots is the slot list of one business-local calendar day.
type DaySlots struct {
	Date  time.Time
	Slots []schedule.Slot
}
