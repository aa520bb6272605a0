package main

import (
	"context"
	"net/http/httptest"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/booking-engine/internal/api"
	"github.com/hackgods/booking-engine/internal/booking"
	redisclient "github.com/hackgods/booking-engine/internal/redis"
	"github.com/hackgods/booking-engine/internal/schedule"
)

type inProcessEnv struct {
	*httptest.Server
	repo    *booking.MemoryRepository
	targets []target
}

// startInProcess serves the real router over an in-memory store populated
// with fake staff, so the commit path can be stressed without Postgres or
// Redis.
func startInProcess(log *zap.Logger, employees int) *inProcessEnv {
	if employees <= 0 || employees > 50 {
		employees = 10
	}

	repo := booking.NewMemoryRepository()
	gofakeit.Seed(0)

	businessID := uuid.New()
	repo.PutBusiness(booking.Business{ID: businessID, Name: gofakeit.Company(), Timezone: "UTC"})

	hours := make([]booking.BusinessHours, 0, 7)
	for day := time.Sunday; day <= time.Saturday; day++ {
		hours = append(hours, booking.BusinessHours{DayOfWeek: day, StartTime: 9 * 60, EndTime: 18 * 60})
	}
	_ = repo.ReplaceBusinessHours(context.Background(), businessID, hours)

	services := make([]booking.BusinessService, 0, 3)
	for _, minutes := range []int{30, 45, 60} {
		svc := booking.BusinessService{
			ID:              uuid.New(),
			BusinessID:      businessID,
			Name:            gofakeit.JobTitle(),
			DurationMinutes: minutes,
		}
		repo.PutService(svc)
		services = append(services, svc)
	}

	env := &inProcessEnv{repo: repo}
	for i := 0; i < employees; i++ {
		emp := booking.Employee{
			ID:         uuid.New(),
			BusinessID: businessID,
			Name:       gofakeit.Name(),
			Active:     true,
		}
		for _, svc := range services {
			emp.ServiceIDs = append(emp.ServiceIDs, svc.ID)
			env.targets = append(env.targets, target{EmployeeID: emp.ID, ServiceID: svc.ID})
		}
		for day := time.Sunday; day <= time.Saturday; day++ {
			emp.Availabilities = append(emp.Availabilities,
				booking.EmployeeAvailability{DayOfWeek: day, StartTime: schedule.Clock(9 * 60), EndTime: schedule.Clock(12 * 60)},
				booking.EmployeeAvailability{DayOfWeek: day, StartTime: schedule.Clock(13 * 60), EndTime: schedule.Clock(18 * 60)},
			)
		}
		repo.PutEmployee(emp)
	}

	svc := booking.NewService(repo, redisclient.NewLocalEmployeeLocker(2*time.Second), nil, log, booking.Options{})
	env.Server = httptest.NewServer(api.NewRouter(api.RouterConfig{
		Service:        svc,
		Logger:         zap.NewNop(),
		Env:            "simulate",
		RequestTimeout: 5 * time.Second,
	}))
	return env
}

// audit checks every pair of active bookings per employee for overlap.
func (e *inProcessEnv) audit(context.Context) (int, error) {
	byEmployee := make(map[uuid.UUID][]booking.Booking)
	for _, b := range e.repo.Bookings() {
		if b.Status.OccupiesTime() {
			byEmployee[b.EmployeeID] = append(byEmployee[b.EmployeeID], b)
		}
	}

	overlaps := 0
	for _, list := range byEmployee {
		for i := range list {
			for j := i + 1; j < len(list); j++ {
				if schedule.Overlaps(list[i].ScheduledAt, list[i].EndsAt, list[j].ScheduledAt, list[j].EndsAt) {
					overlaps++
				}
			}
		}
	}
	return overlaps, nil
}
