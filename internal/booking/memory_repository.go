package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/booking-engine/internal/schedule"
)

// MemoryRepository is an in-process Repository used by the simulator's
// dry-run mode and by tests. A single mutex makes CreateBookingIfFree's
// check-and-insert atomic.
type MemoryRepository struct {
	mu         sync.RWMutex
	businesses map[uuid.UUID]Business
	services   map[uuid.UUID]BusinessService
	employees  map[uuid.UUID]Employee
	hours      map[uuid.UUID]map[time.Weekday]BusinessHours
	bookings   map[uuid.UUID]Booking
	events     []EventLog
	nextEvent  int64
	now        func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		businesses: make(map[uuid.UUID]Business),
		services:   make(map[uuid.UUID]BusinessService),
		employees:  make(map[uuid.UUID]Employee),
		hours:      make(map[uuid.UUID]map[time.Weekday]BusinessHours),
		bookings:   make(map[uuid.UUID]Booking),
		now:        time.Now,
	}
}

func (r *MemoryRepository) PutBusiness(b Business) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.businesses[b.ID] = b
}

func (r *MemoryRepository) PutService(s BusinessService) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[s.ID] = s
}

func (r *MemoryRepository) PutEmployee(e Employee) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.ServiceIDs = append([]uuid.UUID(nil), e.ServiceIDs...)
	e.Availabilities = append([]EmployeeAvailability(nil), e.Availabilities...)
	r.employees[e.ID] = e
}

// Bookings returns a snapshot of every stored booking ordered by start time.
func (r *MemoryRepository) Bookings() []Booking {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Booking, 0, len(r.bookings))
	for _, b := range r.bookings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out
}

func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]EventLog(nil), r.events...)
}

func (r *MemoryRepository) GetBusinessByID(_ context.Context, id uuid.UUID) (*Business, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.businesses[id]
	if !ok {
		return nil, ErrBusinessNotFound
	}
	return &b, nil
}

func (r *MemoryRepository) GetServiceByID(_ context.Context, id uuid.UUID) (*BusinessService, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.services[id]
	if !ok {
		return nil, ErrServiceNotFound
	}
	return &s, nil
}

func (r *MemoryRepository) GetEmployeeByID(_ context.Context, id uuid.UUID) (*Employee, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.employees[id]
	if !ok {
		return nil, ErrEmployeeNotFound
	}
	e.ServiceIDs = append([]uuid.UUID(nil), e.ServiceIDs...)
	e.Availabilities = append([]EmployeeAvailability(nil), e.Availabilities...)
	return &e, nil
}

func (r *MemoryRepository) ListBusinessHours(_ context.Context, businessID uuid.UUID) ([]BusinessHours, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []BusinessHours
	for _, h := range r.hours[businessID] {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DayOfWeek < out[j].DayOfWeek })
	return out, nil
}

func (r *MemoryRepository) ReplaceBusinessHours(_ context.Context, businessID uuid.UUID, hours []BusinessHours) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.businesses[businessID]
	if !ok {
		return ErrBusinessNotFound
	}
	week := make(map[time.Weekday]BusinessHours, len(hours))
	for _, h := range hours {
		h.BusinessID = businessID
		week[h.DayOfWeek] = h
	}
	r.hours[businessID] = week
	b.UpdatedAt = r.now()
	r.businesses[businessID] = b
	return nil
}

func (r *MemoryRepository) ReplaceEmployeeSchedule(_ context.Context, employeeID uuid.UUID, availability []EmployeeAvailability, serviceIDs []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.employees[employeeID]
	if !ok {
		return ErrEmployeeNotFound
	}
	e.Availabilities = append([]EmployeeAvailability(nil), availability...)
	if serviceIDs != nil {
		e.ServiceIDs = append([]uuid.UUID{}, serviceIDs...)
	}
	e.UpdatedAt = r.now()
	r.employees[employeeID] = e
	return nil
}

func (r *MemoryRepository) ListOccupyingBookings(_ context.Context, employeeID uuid.UUID, from, to time.Time) ([]Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.occupying(employeeID, from, to), nil
}

func (r *MemoryRepository) occupying(employeeID uuid.UUID, from, to time.Time) []Booking {
	var out []Booking
	for _, b := range r.bookings {
		if b.EmployeeID != employeeID || !b.Status.OccupiesTime() {
			continue
		}
		if schedule.Overlaps(b.ScheduledAt, b.EndsAt, from, to) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out
}

func (r *MemoryRepository) CreateBookingIfFree(_ context.Context, b *Booking) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.employees[b.EmployeeID]; !ok {
		return nil, ErrEmployeeNotFound
	}
	if len(r.occupying(b.EmployeeID, b.ScheduledAt, b.EndsAt)) > 0 {
		return nil, ErrBookingOverlap
	}

	created := *b
	now := r.now()
	created.CreatedAt = now
	created.UpdatedAt = now
	r.bookings[created.ID] = created
	return &created, nil
}

func (r *MemoryRepository) GetBookingByID(_ context.Context, id uuid.UUID) (*Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	return &b, nil
}

func (r *MemoryRepository) UpdateBookingStatus(_ context.Context, id uuid.UUID, from, to Status) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok || b.Status != from {
		return nil, ErrBookingNotFound
	}
	b.Status = to
	b.UpdatedAt = r.now()
	r.bookings[id] = b
	return &b, nil
}

func (r *MemoryRepository) FindStalePending(_ context.Context, before time.Time) ([]Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Booking
	for _, b := range r.bookings {
		if b.Status == StatusPending && b.ScheduledAt.Before(before) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextEvent++
	ev.ID = r.nextEvent
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.now()
	}
	r.events = append(r.events, ev)
	return nil
}
