package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/booking-engine/internal/schedule"
)

const (
	pgExclusionViolation = "23P01"
	pgUniqueViolation    = "23505"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

const bookingColumns = `id, business_id, employee_id, business_service_id, requester_id,
	scheduled_at, ends_at, status, notes, created_at, updated_at`

func scanBusiness(row pgx.Row) (*Business, error) {
	var b Business

	err := row.Scan(
		&b.ID,
		&b.Name,
		&b.Timezone,
		&b.SlotStepMinutes,
		&b.LeadTimeMinutes,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBusinessNotFound
		}
		return nil, err
	}

	return &b, nil
}

func scanService(row pgx.Row) (*BusinessService, error) {
	var s BusinessService

	err := row.Scan(
		&s.ID,
		&s.BusinessID,
		&s.Name,
		&s.DurationMinutes,
		&s.PriceCents,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}

	return &s, nil
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var notes *string

	err := row.Scan(
		&b.ID,
		&b.BusinessID,
		&b.EmployeeID,
		&b.BusinessServiceID,
		&b.RequesterID,
		&b.ScheduledAt,
		&b.EndsAt,
		&b.Status,
		&notes,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}

	b.Notes = notes
	return &b, nil
}

func collectBookings(rows pgx.Rows) ([]Booking, error) {
	defer rows.Close()

	var result []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func isOverlapViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgExclusionViolation || pgErr.Code == pgUniqueViolation
}

// Interface methods

func (r *PgRepository) GetBusinessByID(ctx context.Context, id uuid.UUID) (*Business, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, timezone, slot_step_minutes, lead_time_minutes, created_at, updated_at
		FROM businesses
		WHERE id = $1
	`, id)
	return scanBusiness(row)
}

func (r *PgRepository) GetServiceByID(ctx context.Context, id uuid.UUID) (*BusinessService, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, business_id, name, duration_minutes, price_cents, created_at, updated_at
		FROM business_services
		WHERE id = $1
	`, id)
	return scanService(row)
}

func (r *PgRepository) GetEmployeeByID(ctx context.Context, id uuid.UUID) (*Employee, error) {
	var e Employee
	err := r.pool.QueryRow(ctx, `
		SELECT id, business_id, name, active, created_at, updated_at
		FROM employees
		WHERE id = $1
	`, id).Scan(&e.ID, &e.BusinessID, &e.Name, &e.Active, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEmployeeNotFound
		}
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT business_service_id
		FROM employee_services
		WHERE employee_id = $1
		ORDER BY business_service_id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load employee services: %w", err)
	}
	e.ServiceIDs, err = pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("load employee services: %w", err)
	}

	rows, err = r.pool.Query(ctx, `
		SELECT day_of_week, start_minute, end_minute
		FROM employee_availabilities
		WHERE employee_id = $1
		ORDER BY day_of_week, start_minute
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load employee availability: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var day, start, end int16
		if err := rows.Scan(&day, &start, &end); err != nil {
			return nil, err
		}
		e.Availabilities = append(e.Availabilities, EmployeeAvailability{
			DayOfWeek: time.Weekday(day),
			StartTime: schedule.Clock(start),
			EndTime:   schedule.Clock(end),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &e, nil
}

func (r *PgRepository) ListBusinessHours(ctx context.Context, businessID uuid.UUID) ([]BusinessHours, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT day_of_week, start_minute, end_minute, is_closed
		FROM business_hours
		WHERE business_id = $1
		ORDER BY day_of_week
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []BusinessHours
	for rows.Next() {
		var day, start, end int16
		var closed bool
		if err := rows.Scan(&day, &start, &end, &closed); err != nil {
			return nil, err
		}
		result = append(result, BusinessHours{
			BusinessID: businessID,
			DayOfWeek:  time.Weekday(day),
			StartTime:  schedule.Clock(start),
			EndTime:    schedule.Clock(end),
			IsClosed:   closed,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) ReplaceBusinessHours(ctx context.Context, businessID uuid.UUID, hours []BusinessHours) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE businesses SET updated_at = now() WHERE id = $1`, businessID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrBusinessNotFound
		}

		if _, err := tx.Exec(ctx, `DELETE FROM business_hours WHERE business_id = $1`, businessID); err != nil {
			return fmt.Errorf("clear business hours: %w", err)
		}

		for _, h := range hours {
			_, err := tx.Exec(ctx, `
				INSERT INTO business_hours (business_id, day_of_week, start_minute, end_minute, is_closed)
				VALUES ($1, $2, $3, $4, $5)
			`, businessID, int16(h.DayOfWeek), int16(h.StartTime), int16(h.EndTime), h.IsClosed)
			if err != nil {
				return fmt.Errorf("insert business hours for day %d: %w", h.DayOfWeek, err)
			}
		}
		return nil
	})
}

func (r *PgRepository) ReplaceEmployeeSchedule(ctx context.Context, employeeID uuid.UUID, availability []EmployeeAvailability, serviceIDs []uuid.UUID) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE employees SET updated_at = now() WHERE id = $1`, employeeID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrEmployeeNotFound
		}

		if _, err := tx.Exec(ctx, `DELETE FROM employee_availabilities WHERE employee_id = $1`, employeeID); err != nil {
			return fmt.Errorf("clear availability: %w", err)
		}
		for _, a := range availability {
			_, err := tx.Exec(ctx, `
				INSERT INTO employee_availabilities (employee_id, day_of_week, start_minute, end_minute)
				VALUES ($1, $2, $3, $4)
			`, employeeID, int16(a.DayOfWeek), int16(a.StartTime), int16(a.EndTime))
			if err != nil {
				return fmt.Errorf("insert availability: %w", err)
			}
		}

		if serviceIDs == nil {
			return nil
		}

		if _, err := tx.Exec(ctx, `DELETE FROM employee_services WHERE employee_id = $1`, employeeID); err != nil {
			return fmt.Errorf("clear employee services: %w", err)
		}
		for _, id := range serviceIDs {
			_, err := tx.Exec(ctx, `
				INSERT INTO employee_services (employee_id, business_service_id)
				VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, employeeID, id)
			if err != nil {
				return fmt.Errorf("assign service %s: %w", id, err)
			}
		}
		return nil
	})
}

func (r *PgRepository) ListOccupyingBookings(ctx context.Context, employeeID uuid.UUID, from, to time.Time) ([]Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE employee_id = $1
		  AND status <> 'CANCELED'
		  AND scheduled_at < $3
		  AND ends_at > $2
		ORDER BY scheduled_at
	`, employeeID, from, to)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

// CreateBookingIfFree locks the employee row, re-checks for an overlapping
// occupying booking and inserts inside one transaction. The bookings_no_overlap
// exclusion constraint backs the check up.
func (r *PgRepository) CreateBookingIfFree(ctx context.Context, b *Booking) (*Booking, error) {
	var created *Booking

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var locked uuid.UUID
		err := tx.QueryRow(ctx, `SELECT id FROM employees WHERE id = $1 FOR UPDATE`, b.EmployeeID).Scan(&locked)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrEmployeeNotFound
			}
			return fmt.Errorf("lock employee: %w", err)
		}

		var overlapping bool
		err = tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1
				FROM bookings
				WHERE employee_id = $1
				  AND status <> 'CANCELED'
				  AND scheduled_at < $3
				  AND ends_at > $2
			)
		`, b.EmployeeID, b.ScheduledAt, b.EndsAt).Scan(&overlapping)
		if err != nil {
			return fmt.Errorf("check overlap: %w", err)
		}
		if overlapping {
			return ErrBookingOverlap
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO bookings (id, business_id, employee_id, business_service_id, requester_id,
				scheduled_at, ends_at, status, notes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
			RETURNING `+bookingColumns,
			b.ID, b.BusinessID, b.EmployeeID, b.BusinessServiceID, b.RequesterID,
			b.ScheduledAt, b.EndsAt, b.Status, b.Notes)

		created, err = scanBooking(row)
		if err != nil {
			if isOverlapViolation(err) {
				return ErrBookingOverlap
			}
			return fmt.Errorf("insert booking: %w", err)
		}
		return nil
	})
	if err != nil {
		if isOverlapViolation(err) {
			return nil, ErrBookingOverlap
		}
		return nil, err
	}

	return created, nil
}

func (r *PgRepository) GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
	`, id)
	return scanBooking(row)
}

func (r *PgRepository) UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE bookings
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+bookingColumns,
		id, to, from)

	return scanBooking(row)
}

func (r *PgRepository) FindStalePending(ctx context.Context, before time.Time) ([]Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status = 'PENDING'
		  AND scheduled_at < $1
		ORDER BY scheduled_at
	`, before)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, booking_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.BookingID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
