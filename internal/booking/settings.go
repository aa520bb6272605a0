package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func (s *Service) GetBusinessHours(ctx context.Context, businessID uuid.UUID) ([]BusinessHours, error) {
	if _, err := s.repo.GetBusinessByID(ctx, businessID); err != nil {
		return nil, fmt.Errorf("load business: %w", err)
	}
	hours, err := s.repo.ListBusinessHours(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("list business hours: %w", err)
	}
	return hours, nil
}

// SetBusinessHours replaces the whole week. Weekdays missing from hours are
// treated as closed afterwards.
func (s *Service) SetBusinessHours(ctx context.Context, businessID uuid.UUID, hours []BusinessHours) ([]BusinessHours, error) {
	seen := make(map[time.Weekday]bool, len(hours))
	for _, h := range hours {
		if h.DayOfWeek < time.Sunday || h.DayOfWeek > time.Saturday {
			return nil, fmt.Errorf("%w: dayOfWeek must be 0-6, got %d", ErrInvalidInput, h.DayOfWeek)
		}
		if seen[h.DayOfWeek] {
			return nil, fmt.Errorf("%w: dayOfWeek %d listed twice", ErrInvalidInput, h.DayOfWeek)
		}
		seen[h.DayOfWeek] = true
		if !h.IsClosed && h.EndTime <= h.StartTime {
			return nil, fmt.Errorf("%w: %s must open before it closes", ErrInvalidInput, h.DayOfWeek)
		}
	}

	if err := s.repo.ReplaceBusinessHours(ctx, businessID, hours); err != nil {
		return nil, fmt.Errorf("replace business hours: %w", err)
	}
	return s.GetBusinessHours(ctx, businessID)
}

func (s *Service) GetEmployee(ctx context.Context, id uuid.UUID) (*Employee, error) {
	e, err := s.repo.GetEmployeeByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get employee: %w", err)
	}
	return e, nil
}

// UpdateEmployeeInput carries the replaceable parts of an employee. A nil
// slice leaves that part unchanged; an empty one clears it.
type UpdateEmployeeInput struct {
	Availabilities []EmployeeAvailability
	ServiceIDs     []uuid.UUID
}

func (s *Service) UpdateEmployee(ctx context.Context, id uuid.UUID, in UpdateEmployeeInput) (*Employee, error) {
	emp, err := s.repo.GetEmployeeByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load employee: %w", err)
	}

	availability := emp.Availabilities
	if in.Availabilities != nil {
		for _, a := range in.Availabilities {
			if a.DayOfWeek < time.Sunday || a.DayOfWeek > time.Saturday {
				return nil, fmt.Errorf("%w: dayOfWeek must be 0-6, got %d", ErrInvalidInput, a.DayOfWeek)
			}
			if a.EndTime <= a.StartTime {
				return nil, fmt.Errorf("%w: availability %s-%s on %s is empty", ErrInvalidInput, a.StartTime, a.EndTime, a.DayOfWeek)
			}
		}
		availability = in.Availabilities
	}

	for _, serviceID := range in.ServiceIDs {
		svc, err := s.repo.GetServiceByID(ctx, serviceID)
		if err != nil {
			return nil, fmt.Errorf("load service %s: %w", serviceID, err)
		}
		if svc.BusinessID != emp.BusinessID {
			return nil, fmt.Errorf("%w: service %s belongs to another business", ErrInvalidInput, serviceID)
		}
	}

	if err := s.repo.ReplaceEmployeeSchedule(ctx, id, availability, in.ServiceIDs); err != nil {
		return nil, fmt.Errorf("replace employee schedule: %w", err)
	}
	return s.GetEmployee(ctx, id)
}
