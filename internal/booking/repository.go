package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

var (
	ErrBusinessNotFound = fmt.Errorf("business %w", ErrNotFound)
	ErrEmployeeNotFound = fmt.Errorf("employee %w", ErrNotFound)
	ErrServiceNotFound  = fmt.Errorf("business service %w", ErrNotFound)
	ErrBookingNotFound  = fmt.Errorf("booking %w", ErrNotFound)

	// ErrBookingOverlap is returned by CreateBookingIfFree when an occupying
	// booking for the same employee intersects the new one.
	ErrBookingOverlap = errors.New("booking overlaps an existing booking")
)

// Repository contains all storage interactions needed by the service.
type Repository interface {
	GetBusinessByID(ctx context.Context, id uuid.UUID) (*Business, error)
	GetServiceByID(ctx context.Context, id uuid.UUID) (*BusinessService, error)
	// GetEmployeeByID returns the employee with its service ids and availability windows.
	GetEmployeeByID(ctx context.Context, id uuid.UUID) (*Employee, error)

	// Settings
	ListBusinessHours(ctx context.Context, businessID uuid.UUID) ([]BusinessHours, error)
	ReplaceBusinessHours(ctx context.Context, businessID uuid.UUID, hours []BusinessHours) error
	// ReplaceEmployeeSchedule swaps the availability windows and, when serviceIDs
	// is non-nil, the service assignments in one transaction.
	ReplaceEmployeeSchedule(ctx context.Context, employeeID uuid.UUID, availability []EmployeeAvailability, serviceIDs []uuid.UUID) error

	// For conflict checks
	ListOccupyingBookings(ctx context.Context, employeeID uuid.UUID, from, to time.Time) ([]Booking, error)

	// Creation and updates
	CreateBookingIfFree(ctx context.Context, b *Booking) (*Booking, error)
	GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Booking, error)

	// Expiry worker
	FindStalePending(ctx context.Context, before time.Time) ([]Booking, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
