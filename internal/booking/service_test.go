package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"

	"github.com/hackgods/booking-engine/internal/events"
	redisclient "github.com/hackgods/booking-engine/internal/redis"
	"github.com/hackgods/booking-engine/internal/schedule"
)

// 2030-06-03 is a Monday.
const monday = "2030-06-03"

type fixture struct {
	repo     *MemoryRepository
	svc      *Service
	business Business
	service  BusinessService
	employee Employee
	now      time.Time
}

func hhmm(t *testing.T, s string) schedule.Clock {
	t.Helper()
	c, err := schedule.ParseClock(s)
	if err != nil {
		t.Fatalf("parse clock %q: %v", s, err)
	}
	return c
}

// newFixture builds a business open Mon 09:00-18:00 with one employee
// available 09:00-12:00 and 14:00-18:00 for a 60 minute service.
func newFixture(t *testing.T, step int) *fixture {
	t.Helper()
	return newFixtureIn(t, "UTC", step)
}

// newFixtureIn is newFixture for a business whose wall clock is tz.
func newFixtureIn(t *testing.T, tz string, step int) *fixture {
	t.Helper()

	f := &fixture{
		repo: NewMemoryRepository(),
		now:  time.Date(2030, 6, 3, 8, 0, 0, 0, time.UTC),
	}

	f.business = Business{ID: uuid.New(), Name: "Cut & Co", Timezone: tz, SlotStepMinutes: step}
	f.service = BusinessService{ID: uuid.New(), BusinessID: f.business.ID, Name: "Haircut", DurationMinutes: 60}
	f.employee = Employee{
		ID:         uuid.New(),
		BusinessID: f.business.ID,
		Name:       "Sam",
		Active:     true,
		ServiceIDs: []uuid.UUID{f.service.ID},
		Availabilities: []EmployeeAvailability{
			{DayOfWeek: time.Monday, StartTime: hhmm(t, "09:00"), EndTime: hhmm(t, "12:00")},
			{DayOfWeek: time.Monday, StartTime: hhmm(t, "14:00"), EndTime: hhmm(t, "18:00")},
		},
	}

	f.repo.PutBusiness(f.business)
	f.repo.PutService(f.service)
	f.repo.PutEmployee(f.employee)

	if err := f.repo.ReplaceBusinessHours(context.Background(), f.business.ID, []BusinessHours{
		{DayOfWeek: time.Monday, StartTime: hhmm(t, "09:00"), EndTime: hhmm(t, "18:00")},
		{DayOfWeek: time.Sunday, IsClosed: true},
	}); err != nil {
		t.Fatalf("seed hours: %v", err)
	}

	f.svc = NewService(f.repo, redisclient.NewLocalEmployeeLocker(5*time.Second), nil, nil, Options{
		PendingGrace: 15 * time.Minute,
		Now:          func() time.Time { return f.now },
	})
	return f
}

func (f *fixture) slots(t *testing.T, date string) *DaySlots {
	t.Helper()
	day, err := f.svc.GetAvailableSlots(context.Background(), SlotQuery{
		EmployeeID: f.employee.ID,
		ServiceID:  f.service.ID,
		Date:       date,
	})
	if err != nil {
		t.Fatalf("GetAvailableSlots: %v", err)
	}
	return day
}

func (f *fixture) book(at time.Time) (*Booking, error) {
	return f.svc.CreateBooking(context.Background(), CreateBookingInput{
		EmployeeID:  f.employee.ID,
		ServiceID:   f.service.ID,
		RequesterID: uuid.New(),
		ScheduledAt: at,
	})
}

func at(hour, minute int) time.Time {
	return time.Date(2030, 6, 3, hour, minute, 0, 0, time.UTC)
}

func available(day *DaySlots) map[string]bool {
	out := make(map[string]bool, len(day.Slots))
	for _, s := range day.Slots {
		out[s.Time.String()] = s.Available
	}
	return out
}

func TestGetAvailableSlotsMondayExample(t *testing.T) {
	f := newFixture(t, 0)

	day := f.slots(t, monday)
	if day.Date.Weekday() != time.Monday {
		t.Fatalf("%s is a %s", monday, day.Date.Weekday())
	}

	want := []string{"09:00", "10:00", "11:00", "14:00", "15:00", "16:00", "17:00"}
	if len(day.Slots) != len(want) {
		t.Fatalf("got %d slots, want %d", len(day.Slots), len(want))
	}
	for i, s := range day.Slots {
		if s.Time.String() != want[i] {
			t.Errorf("slot %d = %s, want %s", i, s.Time, want[i])
		}
		if !s.Available {
			t.Errorf("slot %s unavailable on an empty calendar", s.Time)
		}
	}
}

func TestGetAvailableSlotsClosedAndUnconfiguredDays(t *testing.T) {
	f := newFixture(t, 0)

	// Sunday is explicitly closed, Tuesday has no business hours row.
	for _, date := range []string{"2030-06-02", "2030-06-04"} {
		if day := f.slots(t, date); len(day.Slots) != 0 {
			t.Errorf("%s: got %d slots, want none", date, len(day.Slots))
		}
	}
}

func TestGetAvailableSlotsIsIdempotent(t *testing.T) {
	f := newFixture(t, 30)
	if _, err := f.book(at(10, 30)); err != nil {
		t.Fatalf("book: %v", err)
	}

	first := available(f.slots(t, monday))
	second := available(f.slots(t, monday))
	if len(first) != len(second) {
		t.Fatalf("slot count changed between identical queries: %d vs %d", len(first), len(second))
	}
	for k, v := range first {
		if second[k] != v {
			t.Errorf("slot %s changed between identical queries", k)
		}
	}
}

func TestPendingBookingBlocksSlotUntilCanceled(t *testing.T) {
	f := newFixture(t, 0)

	b, err := f.book(at(10, 0))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if b.Status != StatusPending {
		t.Fatalf("status = %s, want PENDING", b.Status)
	}
	if !b.EndsAt.Equal(at(11, 0)) {
		t.Fatalf("endsAt = %s, want 11:00", b.EndsAt)
	}

	got := available(f.slots(t, monday))
	for slot, free := range got {
		if slot == "10:00" && free {
			t.Errorf("10:00 still available after booking")
		}
		if slot != "10:00" && !free {
			t.Errorf("%s blocked by the 10:00 booking", slot)
		}
	}

	if _, err := f.svc.Cancel(context.Background(), b.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !available(f.slots(t, monday))["10:00"] {
		t.Errorf("10:00 not available after cancellation")
	}
	if _, err := f.book(at(10, 0)); err != nil {
		t.Errorf("rebook after cancel: %v", err)
	}
}

func TestPartialOverlapOnFinerGrid(t *testing.T) {
	f := newFixture(t, 15)

	if _, err := f.book(at(10, 30)); err != nil {
		t.Fatalf("book: %v", err)
	}

	got := available(f.slots(t, monday))
	blocked := []string{"09:45", "10:00", "10:15", "10:30", "10:45", "11:00"}
	for _, s := range blocked {
		if got[s] {
			t.Errorf("%s should overlap the 10:30-11:30 booking", s)
		}
	}
	for _, s := range []string{"09:00", "09:30", "14:00"} {
		if !got[s] {
			t.Errorf("%s should be free", s)
		}
	}

	if _, err := f.book(at(10, 0)); !errors.Is(err, ErrSlotConflict) {
		t.Errorf("overlapping commit: got %v, want ErrSlotConflict", err)
	}
	if _, err := f.book(at(9, 30)); err != nil {
		t.Errorf("touching commit 09:30-10:30: %v", err)
	}
}

func TestCreateBookingRejectsInvalidSlots(t *testing.T) {
	f := newFixture(t, 0)

	cases := []struct {
		name string
		at   time.Time
	}{
		{"off grid", at(10, 15)},
		{"lunch gap", at(12, 0)},
		{"runs past window", at(11, 30)},
		{"before opening", at(8, 0)},
		{"not a whole minute", at(10, 0).Add(30 * time.Second)},
		{"closed day", time.Date(2030, 6, 2, 10, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.book(tc.at); !errors.Is(err, ErrInvalidSlot) {
				t.Errorf("got %v, want ErrInvalidSlot", err)
			}
		})
	}

	f.now = at(10, 30)
	if _, err := f.book(at(10, 0)); !errors.Is(err, ErrInvalidSlot) {
		t.Errorf("past slot: got %v, want ErrInvalidSlot", err)
	}
	if len(f.repo.Bookings()) != 0 {
		t.Errorf("rejected commits left %d bookings behind", len(f.repo.Bookings()))
	}
}

func TestCreateBookingLeadTime(t *testing.T) {
	f := newFixture(t, 0)
	f.business.LeadTimeMinutes = 120
	f.repo.PutBusiness(f.business)
	f.now = at(8, 30)

	if _, err := f.book(at(10, 0)); !errors.Is(err, ErrInvalidSlot) {
		t.Errorf("inside lead time: got %v, want ErrInvalidSlot", err)
	}
	if _, err := f.book(at(11, 0)); err != nil {
		t.Errorf("outside lead time: %v", err)
	}

	day := f.slots(t, monday)
	if len(day.Slots) == 0 || day.Slots[0].Time.String() != "11:00" {
		t.Errorf("first offered slot = %v, want 11:00", day.Slots)
	}
}

func TestCreateBookingReferenceErrors(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	other := BusinessService{ID: uuid.New(), BusinessID: f.business.ID, Name: "Shave", DurationMinutes: 30}
	f.repo.PutService(other)

	foreign := BusinessService{ID: uuid.New(), BusinessID: uuid.New(), Name: "Massage", DurationMinutes: 60}
	f.repo.PutService(foreign)

	cases := []struct {
		name    string
		in      CreateBookingInput
		wantErr error
	}{
		{
			name:    "unknown employee",
			in:      CreateBookingInput{EmployeeID: uuid.New(), ServiceID: f.service.ID, RequesterID: uuid.New(), ScheduledAt: at(10, 0)},
			wantErr: ErrNotFound,
		},
		{
			name:    "unknown service",
			in:      CreateBookingInput{EmployeeID: f.employee.ID, ServiceID: uuid.New(), RequesterID: uuid.New(), ScheduledAt: at(10, 0)},
			wantErr: ErrNotFound,
		},
		{
			name:    "service of another business",
			in:      CreateBookingInput{EmployeeID: f.employee.ID, ServiceID: foreign.ID, RequesterID: uuid.New(), ScheduledAt: at(10, 0)},
			wantErr: ErrNotFound,
		},
		{
			name:    "service not assigned",
			in:      CreateBookingInput{EmployeeID: f.employee.ID, ServiceID: other.ID, RequesterID: uuid.New(), ScheduledAt: at(10, 0)},
			wantErr: ErrServiceNotAssigned,
		},
		{
			name:    "missing requester",
			in:      CreateBookingInput{EmployeeID: f.employee.ID, ServiceID: f.service.ID, ScheduledAt: at(10, 0)},
			wantErr: ErrInvalidInput,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.CreateBooking(ctx, tc.in); !errors.Is(err, tc.wantErr) {
				t.Errorf("got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestInactiveEmployeeHasNoSlots(t *testing.T) {
	f := newFixture(t, 0)
	f.employee.Active = false
	f.repo.PutEmployee(f.employee)

	if day := f.slots(t, monday); len(day.Slots) != 0 {
		t.Errorf("inactive employee offered %d slots", len(day.Slots))
	}
	if _, err := f.book(at(10, 0)); !errors.Is(err, ErrInvalidSlot) {
		t.Errorf("got %v, want ErrInvalidSlot", err)
	}
}

func TestConcurrentCommitsSameSlot(t *testing.T) {
	f := newFixture(t, 0)

	const attempts = 50
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
		others    []error
	)
	start := make(chan struct{})

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.book(at(10, 0))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrSlotConflict):
				conflicts++
			default:
				others = append(others, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if successes != 1 {
		t.Errorf("successes = %d, want exactly 1", successes)
	}
	if conflicts != attempts-1 {
		t.Errorf("conflicts = %d, want %d", conflicts, attempts-1)
	}
	for _, err := range others {
		t.Errorf("unexpected error: %v", err)
	}
	if n := len(f.repo.Bookings()); n != 1 {
		t.Errorf("stored bookings = %d, want 1", n)
	}
}

func TestConcurrentCommitsNeverOverlap(t *testing.T) {
	f := newFixture(t, 15)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for h := 9; h < 11; h++ {
		for m := 0; m < 60; m += 15 {
			for r := 0; r < 5; r++ {
				wg.Add(1)
				go func(at time.Time) {
					defer wg.Done()
					<-start
					_, _ = f.book(at)
				}(time.Date(2030, 6, 3, h, m, 0, 0, time.UTC))
			}
		}
	}
	close(start)
	wg.Wait()

	booked := f.repo.Bookings()
	if len(booked) == 0 {
		t.Fatal("no booking succeeded")
	}
	for i := range booked {
		for j := i + 1; j < len(booked); j++ {
			a, b := booked[i], booked[j]
			if schedule.Overlaps(a.ScheduledAt, a.EndsAt, b.ScheduledAt, b.EndsAt) {
				t.Errorf("double booking: %s-%s and %s-%s",
					a.ScheduledAt.Format("15:04"), a.EndsAt.Format("15:04"),
					b.ScheduledAt.Format("15:04"), b.EndsAt.Format("15:04"))
			}
		}
	}
}

func TestGetAvailableSlotsRange(t *testing.T) {
	f := newFixture(t, 0)
	if _, err := f.book(at(14, 0)); err != nil {
		t.Fatalf("book: %v", err)
	}

	days, err := f.svc.GetAvailableSlotsRange(context.Background(), RangeQuery{
		EmployeeID: f.employee.ID,
		ServiceID:  f.service.ID,
		From:       "2030-06-02",
		To:         "2030-06-10",
	})
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(days) != 9 {
		t.Fatalf("got %d days, want 9", len(days))
	}

	for i, d := range days {
		if i > 0 && !d.Date.After(days[i-1].Date) {
			t.Fatalf("days out of order at %d", i)
		}
		if d.Date.Weekday() != time.Monday && len(d.Slots) != 0 {
			t.Errorf("%s: %d slots on a closed day", d.Date.Format(schedule.DateLayout), len(d.Slots))
		}
	}

	first := available(&days[1])
	if len(first) != 7 || first["14:00"] {
		t.Errorf("first Monday = %v, want 7 slots with 14:00 taken", first)
	}
	second := available(&days[8])
	if len(second) != 7 || !second["14:00"] {
		t.Errorf("second Monday = %v, want 7 free slots", second)
	}
}

func TestGetAvailableSlotsRangeValidation(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	cases := []RangeQuery{
		{From: "2030-06-10", To: "2030-06-03"},
		{From: "2030-06-01", To: "2030-08-01"},
		{From: "June 1", To: "2030-06-03"},
	}
	for _, q := range cases {
		q.EmployeeID = f.employee.ID
		q.ServiceID = f.service.ID
		if _, err := f.svc.GetAvailableSlotsRange(ctx, q); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s..%s: got %v, want ErrInvalidInput", q.From, q.To, err)
		}
	}
}

func TestBookingLifecycle(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	b, err := f.book(at(9, 0))
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	if _, err := f.svc.Complete(ctx, b.ID); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("PENDING -> COMPLETED: got %v, want ErrInvalidStatusTransition", err)
	}

	steps := []struct {
		fn   func(context.Context, uuid.UUID) (*Booking, error)
		want Status
	}{
		{f.svc.Accept, StatusAccepted},
		{f.svc.Accept, StatusAccepted},
		{f.svc.Start, StatusInProgress},
		{f.svc.Complete, StatusCompleted},
		{f.svc.Dispute, StatusDisputed},
	}
	for _, s := range steps {
		got, err := s.fn(ctx, b.ID)
		if err != nil {
			t.Fatalf("-> %s: %v", s.want, err)
		}
		if got.Status != s.want {
			t.Fatalf("status = %s, want %s", got.Status, s.want)
		}
	}

	if _, err := f.svc.Cancel(ctx, b.ID); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Errorf("DISPUTED -> CANCELED: got %v, want ErrInvalidStatusTransition", err)
	}
	if available(f.slots(t, monday))["09:00"] {
		t.Errorf("09:00 freed by a disputed booking")
	}

	if _, err := f.svc.Accept(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown booking: got %v, want ErrNotFound", err)
	}

	changes := 0
	for _, ev := range f.repo.Events() {
		if ev.EventType == EventBookingStatusChanged {
			changes++
		}
	}
	if changes != 4 {
		t.Errorf("status change events = %d, want 4", changes)
	}
}

func TestExpireStalePending(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	stale, err := f.book(at(9, 0))
	if err != nil {
		t.Fatalf("book stale: %v", err)
	}
	accepted, err := f.book(at(10, 0))
	if err != nil {
		t.Fatalf("book accepted: %v", err)
	}
	if _, err := f.svc.Accept(ctx, accepted.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	fresh, err := f.book(at(11, 0))
	if err != nil {
		t.Fatalf("book fresh: %v", err)
	}

	f.now = at(10, 50)
	n, err := f.svc.ExpireStalePending(ctx)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired %d bookings, want 1", n)
	}

	want := map[uuid.UUID]Status{
		stale.ID:    StatusCanceled,
		accepted.ID: StatusAccepted,
		fresh.ID:    StatusPending,
	}
	for id, status := range want {
		b, err := f.svc.GetBooking(ctx, id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if b.Status != status {
			t.Errorf("booking at %s: status %s, want %s", b.ScheduledAt.Format("15:04"), b.Status, status)
		}
	}

	var expired int
	for _, ev := range f.repo.Events() {
		if ev.EventType == EventBookingExpired {
			expired++
		}
	}
	if expired != 1 {
		t.Errorf("expired events = %d, want 1", expired)
	}
}

func TestSetBusinessHours(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	bad := [][]BusinessHours{
		{{DayOfWeek: 7, StartTime: hhmm(t, "09:00"), EndTime: hhmm(t, "17:00")}},
		{
			{DayOfWeek: time.Monday, StartTime: hhmm(t, "09:00"), EndTime: hhmm(t, "17:00")},
			{DayOfWeek: time.Monday, StartTime: hhmm(t, "10:00"), EndTime: hhmm(t, "12:00")},
		},
		{{DayOfWeek: time.Friday, StartTime: hhmm(t, "17:00"), EndTime: hhmm(t, "09:00")}},
	}
	for i, hours := range bad {
		if _, err := f.svc.SetBusinessHours(ctx, f.business.ID, hours); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("case %d: got %v, want ErrInvalidInput", i, err)
		}
	}

	got, err := f.svc.SetBusinessHours(ctx, f.business.ID, []BusinessHours{
		{DayOfWeek: time.Monday, StartTime: hhmm(t, "10:00"), EndTime: hhmm(t, "16:00")},
		{DayOfWeek: time.Saturday, IsClosed: true},
	})
	if err != nil {
		t.Fatalf("set hours: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2", len(got))
	}

	want := []string{"10:00", "11:00", "14:00", "15:00"}
	day := f.slots(t, monday)
	if len(day.Slots) != len(want) {
		t.Fatalf("got %d slots after narrowing hours, want %d", len(day.Slots), len(want))
	}
	for i, s := range day.Slots {
		if s.Time.String() != want[i] {
			t.Errorf("slot %d = %s, want %s", i, s.Time, want[i])
		}
	}

	if _, err := f.svc.SetBusinessHours(ctx, uuid.New(), nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown business: got %v, want ErrNotFound", err)
	}
}

func TestUpdateEmployee(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	foreign := BusinessService{ID: uuid.New(), BusinessID: uuid.New(), Name: "Other", DurationMinutes: 30}
	f.repo.PutService(foreign)

	if _, err := f.svc.UpdateEmployee(ctx, f.employee.ID, UpdateEmployeeInput{ServiceIDs: []uuid.UUID{foreign.ID}}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("foreign service: got %v, want ErrInvalidInput", err)
	}
	if _, err := f.svc.UpdateEmployee(ctx, f.employee.ID, UpdateEmployeeInput{
		Availabilities: []EmployeeAvailability{{DayOfWeek: time.Monday, StartTime: hhmm(t, "12:00"), EndTime: hhmm(t, "12:00")}},
	}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty window: got %v, want ErrInvalidInput", err)
	}

	// Overlapping windows are accepted and unioned.
	emp, err := f.svc.UpdateEmployee(ctx, f.employee.ID, UpdateEmployeeInput{
		Availabilities: []EmployeeAvailability{
			{DayOfWeek: time.Monday, StartTime: hhmm(t, "09:00"), EndTime: hhmm(t, "11:00")},
			{DayOfWeek: time.Monday, StartTime: hhmm(t, "10:00"), EndTime: hhmm(t, "12:00")},
		},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(emp.ServiceIDs) != 1 || emp.ServiceIDs[0] != f.service.ID {
		t.Errorf("service assignments changed: %v", emp.ServiceIDs)
	}

	day := f.slots(t, monday)
	if len(day.Slots) != 3 {
		t.Errorf("got %d slots, want 3 (09:00-12:00)", len(day.Slots))
	}

	if _, err := f.svc.UpdateEmployee(ctx, f.employee.ID, UpdateEmployeeInput{ServiceIDs: []uuid.UUID{}}); err != nil {
		t.Fatalf("clear services: %v", err)
	}
	if _, err := f.svc.GetAvailableSlots(ctx, SlotQuery{EmployeeID: f.employee.ID, ServiceID: f.service.ID, Date: monday}); !errors.Is(err, ErrServiceNotAssigned) {
		t.Errorf("after unassigning: got %v, want ErrServiceNotAssigned", err)
	}
}

func TestCreateBookingRecordsEvent(t *testing.T) {
	f := newFixture(t, 0)

	b, err := f.book(at(15, 0))
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	evs := f.repo.Events()
	if len(evs) != 1 {
		t.Fatalf("got %d events, want 1", len(evs))
	}
	if evs[0].EventType != EventBookingCreated || evs[0].BookingID == nil || *evs[0].BookingID != b.ID {
		t.Errorf("unexpected event %+v", evs[0])
	}
	if len(evs[0].Payload) == 0 {
		t.Error("event payload is empty")
	}
}

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
	evs  []events.BookingEvent
}

func (p *recordingPublisher) Publish(_ context.Context, key string, ev events.BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	p.evs = append(p.evs, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func TestEventsArePublished(t *testing.T) {
	f := newFixture(t, 0)
	pub := &recordingPublisher{}
	f.svc = NewService(f.repo, redisclient.NewLocalEmployeeLocker(time.Second), pub, nil, Options{
		Now: func() time.Time { return f.now },
	})

	b, err := f.book(at(16, 0))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := f.svc.Accept(context.Background(), b.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	wantKeys := []string{events.RoutingBookingCreated, events.RoutingBookingStatusChanged}
	if len(pub.keys) != len(wantKeys) {
		t.Fatalf("published %v, want %v", pub.keys, wantKeys)
	}
	for i, k := range wantKeys {
		if pub.keys[i] != k {
			t.Errorf("event %d routed to %s, want %s", i, pub.keys[i], k)
		}
	}
	last := pub.evs[1]
	if last.Status != string(StatusAccepted) || last.PrevStatus != string(StatusPending) || last.BookingID != b.ID {
		t.Errorf("status change event = %+v", last)
	}
}

func TestSlotsFollowBusinessTimezone(t *testing.T) {
	f := newFixtureIn(t, "America/New_York", 0)

	day := f.slots(t, monday)
	if len(day.Slots) != 7 {
		t.Fatalf("got %d slots, want 7", len(day.Slots))
	}
	// 09:00 EDT is 13:00 UTC.
	if first := day.Slots[0]; first.Time.String() != "09:00" || !first.Start.Equal(at(13, 0)) {
		t.Fatalf("first slot %s starts at %s, want 13:00Z", first.Time, first.Start.UTC())
	}

	b, err := f.book(at(14, 0))
	if err != nil {
		t.Fatalf("book 14:00Z: %v", err)
	}
	if b.ScheduledAt.Location().String() != "America/New_York" || b.ScheduledAt.Hour() != 10 {
		t.Errorf("scheduledAt = %s, want 10:00 local", b.ScheduledAt)
	}

	for slot, free := range available(f.slots(t, monday)) {
		if (slot == "10:00") == free {
			t.Errorf("slot %s available = %v", slot, free)
		}
	}

	// 10:00 UTC is 06:00 local, before opening.
	if _, err := f.book(at(10, 0)); !errors.Is(err, ErrInvalidSlot) {
		t.Errorf("06:00 local: got %v, want ErrInvalidSlot", err)
	}
}

func TestSpringForwardDayHasNoDuplicateSlots(t *testing.T) {
	f := newFixtureIn(t, "America/New_York", 0)
	ctx := context.Background()
	f.now = time.Date(2030, 3, 1, 0, 0, 0, 0, time.UTC)

	if _, err := f.svc.SetBusinessHours(ctx, f.business.ID, []BusinessHours{
		{DayOfWeek: time.Sunday, StartTime: hhmm(t, "00:00"), EndTime: hhmm(t, "06:00")},
	}); err != nil {
		t.Fatalf("set hours: %v", err)
	}
	if _, err := f.svc.UpdateEmployee(ctx, f.employee.ID, UpdateEmployeeInput{
		Availabilities: []EmployeeAvailability{{DayOfWeek: time.Sunday, StartTime: hhmm(t, "00:00"), EndTime: hhmm(t, "05:00")}},
	}); err != nil {
		t.Fatalf("update employee: %v", err)
	}

	// 2030-03-10 02:00 EST does not exist; clocks jump to 03:00 EDT.
	day := f.slots(t, "2030-03-10")
	want := []string{"00:00", "01:00", "03:00", "04:00"}
	if len(day.Slots) != len(want) {
		t.Fatalf("got %d slots, want %v", len(day.Slots), want)
	}
	starts := make(map[time.Time]bool)
	for i, s := range day.Slots {
		if s.Time.String() != want[i] {
			t.Errorf("slot %d = %s, want %s", i, s.Time, want[i])
		}
		if starts[s.Start] {
			t.Errorf("slot %s repeats start %s", s.Time, s.Start)
		}
		starts[s.Start] = true
	}

	// 06:00Z is 01:00 EST and 07:00Z is 03:00 EDT: back-to-back, both bookable.
	for _, at := range []time.Time{
		time.Date(2030, 3, 10, 6, 0, 0, 0, time.UTC),
		time.Date(2030, 3, 10, 7, 0, 0, 0, time.UTC),
	} {
		if _, err := f.book(at); err != nil {
			t.Errorf("book %s: %v", at, err)
		}
	}
}

func TestCreateBookingWithoutLocker(t *testing.T) {
	f := newFixture(t, 0)
	f.svc = NewService(f.repo, nil, nil, nil, Options{
		Now: func() time.Time { return f.now },
	})

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.book(at(11, 0))
			if err != nil && !errors.Is(err, ErrSlotConflict) {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("successes = %d, want 1", successes)
	}
}
