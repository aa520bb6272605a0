package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	RoutingBookingCreated       = "booking.created"
	RoutingBookingStatusChanged = "booking.status_changed"
	RoutingBookingExpired       = "booking.expired"
)

// BookingEvent is the message published for every booking state change.
type BookingEvent struct {
	Type        string    `json:"type"`
	BookingID   uuid.UUID `json:"bookingId"`
	BusinessID  uuid.UUID `json:"businessId"`
	EmployeeID  uuid.UUID `json:"employeeId"`
	Status      string    `json:"status"`
	PrevStatus  string    `json:"previousStatus,omitempty"`
	ScheduledAt time.Time `json:"scheduledAt"`
	EndsAt      time.Time `json:"endsAt"`
	OccurredAt  time.Time `json:"occurredAt"`
}

type Publisher interface {
	Publish(ctx context.Context, routingKey string, ev BookingEvent) error
	Close() error
}

// NopPublisher drops every event. Used when AMQP_URL is not configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, BookingEvent) error { return nil }

func (NopPublisher) Close() error { return nil }
