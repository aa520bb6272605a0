package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (s *Service) Accept(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return s.Transition(ctx, id, StatusAccepted)
}

func (s *Service) Start(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return s.Transition(ctx, id, StatusInProgress)
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return s.Transition(ctx, id, StatusCompleted)
}

// Cancel frees the booking's time for new commits.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return s.Transition(ctx, id, StatusCanceled)
}

func (s *Service) Dispute(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return s.Transition(ctx, id, StatusDisputed)
}

// Transition moves a booking to the given status. Repeating a transition that
// already happened returns the booking unchanged.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to Status) (*Booking, error) {
	b, err := s.repo.GetBookingByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load booking: %w", err)
	}

	if b.Status == to {
		return b, nil
	}
	if !b.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, b.Status, to)
	}

	updated, err := s.repo.UpdateBookingStatus(ctx, b.ID, b.Status, to)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			// Someone else changed the status between our read and write.
			return nil, fmt.Errorf("%w: booking changed concurrently", ErrInvalidStatusTransition)
		}
		return nil, fmt.Errorf("update booking status: %w", err)
	}

	s.logEvent(ctx, updated, EventBookingStatusChanged, b.Status)

	return updated, nil
}

// ExpireStalePending cancels PENDING bookings that were never accepted and whose
// start (plus the configured grace) has passed. It is intended to be called by
// the worker periodically.
func (s *Service) ExpireStalePending(ctx context.Context) (int, error) {
	cutoff := s.opts.Now().Add(-s.opts.PendingGrace)

	candidates, err := s.repo.FindStalePending(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find stale pending bookings: %w", err)
	}

	expired := 0
	for i := range candidates {
		b := candidates[i]
		updated, err := s.repo.UpdateBookingStatus(ctx, b.ID, StatusPending, StatusCanceled)
		if err != nil {
			if !errors.Is(err, ErrBookingNotFound) {
				s.log.Warn("expire booking", zap.String("booking_id", b.ID.String()), zap.Error(err))
			}
			continue
		}
		expired++
		s.logEvent(ctx, updated, EventBookingExpired, StatusPending)
	}

	return expired, nil
}
