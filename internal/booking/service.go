package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/booking-engine/internal/events"
	redisclient "github.com/hackgods/booking-engine/internal/redis"
	"github.com/hackgods/booking-engine/internal/schedule"
)

const (
	EventBookingCreated       = "BOOKING_CREATED"
	EventBookingStatusChanged = "BOOKING_STATUS_CHANGED"
	EventBookingExpired       = "BOOKING_EXPIRED"
)

var routingKeys = map[string]string{
	EventBookingCreated:       events.RoutingBookingCreated,
	EventBookingStatusChanged: events.RoutingBookingStatusChanged,
	EventBookingExpired:       events.RoutingBookingExpired,
}

var (
	ErrSlotConflict            = errors.New("slot is no longer available")
	ErrInvalidSlot             = errors.New("requested time is not a bookable slot")
	ErrServiceNotAssigned      = errors.New("employee does not perform this service")
	ErrBusinessMismatch        = fmt.Errorf("employee and service belong to different businesses: %w", ErrNotFound)
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrInvalidInput            = errors.New("invalid input")
)

type Options struct {
	// DefaultStepMinutes applies when the business has no step of its own.
	// Zero means slots are spaced by the service duration.
	DefaultStepMinutes int
	// Parallelism bounds the per-date fan-out of range queries.
	Parallelism  int
	MaxRangeDays int
	// PendingGrace is how long after its start a PENDING booking survives
	// before the expiry sweep cancels it.
	PendingGrace time.Duration
	Now          func() time.Time
}

type Service struct {
	repo      Repository
	locker    redisclient.Locker
	publisher events.Publisher
	log       *zap.Logger
	opts      Options
}

// NewService wires the booking service. A nil locker skips the per-employee
// commit lock and leaves exclusion to the repository transaction; processes
// that never commit bookings, like the expiry worker, pass nil.
func NewService(repo Repository, locker redisclient.Locker, publisher events.Publisher, log *zap.Logger, opts Options) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 4
	}
	if opts.MaxRangeDays <= 0 {
		opts.MaxRangeDays = 31
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:      repo,
		locker:    locker,
		publisher: publisher,
		log:       log,
		opts:      opts,
	}
}

// calendar is everything needed to resolve one employee's days for one service.
type calendar struct {
	business *Business
	loc      *time.Location
	service  *BusinessService
	employee *Employee
	hours    map[time.Weekday]BusinessHours
	step     int
}

func (c *calendar) windows(date time.Time) []schedule.Window {
	if !c.employee.Active {
		return nil
	}
	h, ok := c.hours[date.Weekday()]
	if !ok {
		return nil
	}
	return schedule.Resolve(h.Day(), c.employee.WindowsOn(date.Weekday()))
}

func (c *calendar) leadTime() time.Duration {
	return time.Duration(c.business.LeadTimeMinutes) * time.Minute
}

func (s *Service) loadCalendar(ctx context.Context, employeeID, serviceID uuid.UUID) (*calendar, error) {
	svc, err := s.repo.GetServiceByID(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("load service: %w", err)
	}

	emp, err := s.repo.GetEmployeeByID(ctx, employeeID)
	if err != nil {
		return nil, fmt.Errorf("load employee: %w", err)
	}
	if emp.BusinessID != svc.BusinessID {
		return nil, ErrBusinessMismatch
	}
	if !emp.CanPerform(svc.ID) {
		return nil, ErrServiceNotAssigned
	}

	biz, err := s.repo.GetBusinessByID(ctx, svc.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("load business: %w", err)
	}
	loc, err := biz.Location()
	if err != nil {
		return nil, err
	}

	list, err := s.repo.ListBusinessHours(ctx, biz.ID)
	if err != nil {
		return nil, fmt.Errorf("load business hours: %w", err)
	}
	hours := make(map[time.Weekday]BusinessHours, len(list))
	for _, h := range list {
		hours[h.DayOfWeek] = h
	}

	step := biz.SlotStepMinutes
	if step <= 0 {
		step = s.opts.DefaultStepMinutes
	}
	if step <= 0 {
		step = svc.DurationMinutes
	}

	return &calendar{
		business: biz,
		loc:      loc,
		service:  svc,
		employee: emp,
		hours:    hours,
		step:     step,
	}, nil
}

// daySlots runs Resolver -> Generator -> Conflict Filter for one local day.
func (s *Service) daySlots(ctx context.Context, cal *calendar, date time.Time, now time.Time) (DaySlots, error) {
	slots := schedule.Generate(schedule.GenerateParams{
		Date:            date,
		Windows:         cal.windows(date),
		DurationMinutes: cal.service.DurationMinutes,
		StepMinutes:     cal.step,
		Now:             now,
		LeadTime:        cal.leadTime(),
	})
	if len(slots) == 0 {
		return DaySlots{Date: date, Slots: []schedule.Slot{}}, nil
	}

	from := slots[0].Start
	to := slots[len(slots)-1].End
	booked, err := s.repo.ListOccupyingBookings(ctx, cal.employee.ID, from, to)
	if err != nil {
		return DaySlots{}, fmt.Errorf("list bookings for %s: %w", date.Format(schedule.DateLayout), err)
	}

	busy := make([]schedule.Busy, 0, len(booked))
	for i := range booked {
		busy = append(busy, booked[i].Busy())
	}

	return DaySlots{Date: date, Slots: schedule.MarkConflicts(slots, busy)}, nil
}

type SlotQuery struct {
	EmployeeID uuid.UUID
	ServiceID  uuid.UUID
	Date       string
}

// GetAvailableSlots returns every slot of one business-local day with its
// availability. A day without slots is a valid, empty result.
func (s *Service) GetAvailableSlots(ctx context.Context, q SlotQuery) (*DaySlots, error) {
	cal, err := s.loadCalendar(ctx, q.EmployeeID, q.ServiceID)
	if err != nil {
		return nil, err
	}

	date, err := schedule.ParseDate(q.Date, cal.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
	}

	day, err := s.daySlots(ctx, cal, date, s.opts.Now())
	if err != nil {
		return nil, err
	}
	return &day, nil
}

type RangeQuery struct {
	EmployeeID uuid.UUID
	ServiceID  uuid.UUID
	From       string
	To         string
}

// GetAvailableSlotsRange computes [From, To] (inclusive) in parallel, one
// goroutine per date, and returns the days in calendar order.
func (s *Service) GetAvailableSlotsRange(ctx context.Context, q RangeQuery) ([]DaySlots, error) {
	cal, err := s.loadCalendar(ctx, q.EmployeeID, q.ServiceID)
	if err != nil {
		return nil, err
	}

	from, err := schedule.ParseDate(q.From, cal.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: from must be YYYY-MM-DD", ErrInvalidInput)
	}
	to, err := schedule.ParseDate(q.To, cal.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: to must be YYYY-MM-DD", ErrInvalidInput)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: to is before from", ErrInvalidInput)
	}

	var dates []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
		if len(dates) > s.opts.MaxRangeDays {
			return nil, fmt.Errorf("%w: range exceeds %d days", ErrInvalidInput, s.opts.MaxRangeDays)
		}
	}

	now := s.opts.Now()
	days := make([]DaySlots, len(dates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Parallelism)
	for i, d := range dates {
		g.Go(func() error {
			day, err := s.daySlots(gctx, cal, d, now)
			if err != nil {
				return err
			}
			days[i] = day
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return days, nil
}

type CreateBookingInput struct {
	EmployeeID  uuid.UUID
	ServiceID   uuid.UUID
	RequesterID uuid.UUID
	ScheduledAt time.Time
	Notes       *string
}

// CreateBooking re-validates the requested slot against the current calendar
// and commits a PENDING booking. The check-and-insert runs under the
// employee's lock and inside a storage transaction, so concurrent requests for
// overlapping time produce exactly one booking; the others get ErrSlotConflict.
func (s *Service) CreateBooking(ctx context.Context, in CreateBookingInput) (*Booking, error) {
	if in.RequesterID == uuid.Nil {
		return nil, fmt.Errorf("%w: requester id is required", ErrInvalidInput)
	}
	if in.ScheduledAt.IsZero() {
		return nil, fmt.Errorf("%w: scheduledAt is required", ErrInvalidInput)
	}

	cal, err := s.loadCalendar(ctx, in.EmployeeID, in.ServiceID)
	if err != nil {
		return nil, err
	}

	start := in.ScheduledAt.In(cal.loc)
	if start.Second() != 0 || start.Nanosecond() != 0 {
		return nil, fmt.Errorf("%w: scheduledAt must be on a whole minute", ErrInvalidSlot)
	}

	date := schedule.StartOfDay(start, cal.loc)
	at := schedule.ClockOf(start)
	if !schedule.OnGrid(cal.windows(date), at, cal.service.DurationMinutes, cal.step) {
		return nil, fmt.Errorf("%w: %s %s is outside the employee's open hours", ErrInvalidSlot, date.Format(schedule.DateLayout), at)
	}
	if start.Before(s.opts.Now().Add(cal.leadTime())) {
		return nil, fmt.Errorf("%w: slot starts in the past or inside the booking lead time", ErrInvalidSlot)
	}

	candidate := &Booking{
		ID:                uuid.New(),
		BusinessID:        cal.business.ID,
		EmployeeID:        cal.employee.ID,
		BusinessServiceID: cal.service.ID,
		RequesterID:       in.RequesterID,
		ScheduledAt:       start,
		EndsAt:            start.Add(cal.service.Duration()),
		Status:            StatusPending,
		Notes:             in.Notes,
	}

	var created *Booking

	err = s.withEmployeeLock(ctx, cal.employee.ID, func(lockCtx context.Context) error {
		b, err := s.repo.CreateBookingIfFree(lockCtx, candidate)
		if err != nil {
			return err
		}
		created = b
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrBookingOverlap):
			return nil, ErrSlotConflict
		case errors.Is(err, redisclient.ErrLockNotAcquired):
			return nil, fmt.Errorf("%w: employee calendar is busy, refresh and retry", ErrSlotConflict)
		case errors.Is(err, ErrNotFound):
			return nil, err
		}
		return nil, fmt.Errorf("commit booking: %w", err)
	}

	s.log.Info("booking created",
		zap.String("booking_id", created.ID.String()),
		zap.String("employee_id", created.EmployeeID.String()),
		zap.Time("scheduled_at", created.ScheduledAt),
	)
	s.logEvent(ctx, created, EventBookingCreated, "")

	return created, nil
}

func (s *Service) withEmployeeLock(ctx context.Context, employeeID uuid.UUID, fn func(ctx context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	return s.locker.WithEmployeeLock(ctx, employeeID, fn)
}

func (s *Service) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	b, err := s.repo.GetBookingByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

func (s *Service) logEvent(ctx context.Context, b *Booking, eventType string, prev Status) {
	ev := events.BookingEvent{
		Type:        eventType,
		BookingID:   b.ID,
		BusinessID:  b.BusinessID,
		EmployeeID:  b.EmployeeID,
		Status:      string(b.Status),
		PrevStatus:  string(prev),
		ScheduledAt: b.ScheduledAt,
		EndsAt:      b.EndsAt,
		OccurredAt:  s.opts.Now(),
	}

	data, err := json.Marshal(ev)
	if err != nil {
		s.log.Warn("marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	bookingID := b.ID
	if err := s.repo.InsertEvent(ctx, EventLog{
		EventType: eventType,
		BookingID: &bookingID,
		Payload:   data,
		CreatedAt: ev.OccurredAt,
	}); err != nil {
		s.log.Warn("insert event log", zap.String("event", eventType), zap.String("booking_id", b.ID.String()), zap.Error(err))
	}

	if err := s.publisher.Publish(ctx, routingKeys[eventType], ev); err != nil {
		s.log.Warn("publish event", zap.String("event", eventType), zap.String("booking_id", b.ID.String()), zap.Error(err))
	}
}
