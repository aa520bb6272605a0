package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/booking-engine/internal/config"
	"github.com/hackgods/booking-engine/internal/db"
	"github.com/hackgods/booking-engine/internal/logger"
)

var timezones = []string{
	"UTC",
	"Europe/Berlin",
	"Europe/London",
	"America/New_York",
	"America/Sao_Paulo",
	"Asia/Tokyo",
}

var serviceNames = []string{
	"Haircut",
	"Beard Trim",
	"Manicure",
	"Massage",
	"Facial",
	"Coloring",
	"Consultation",
	"Physiotherapy",
}

var durations = []int{15, 30, 45, 60, 90}

func main() {
	businesses := flag.Int("businesses", 20, "number of businesses to create")
	employees := flag.Int("employees", 5, "employees per business")
	services := flag.Int("services", 4, "services per business")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config load error: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		os.Stderr.WriteString("logger init error: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 4, AppName: "booking-seed"})
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if _, err := db.Migrate(context.Background(), pool); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	gofakeit.Seed(0)

	for i := 0; i < *businesses; i++ {
		id, err := seedBusiness(context.Background(), pool, *employees, *services)
		if err != nil {
			log.Fatal("seed business", zap.Error(err))
		}
		log.Info("business seeded", zap.String("business_id", id.String()), zap.Int("n", i+1), zap.Int("of", *businesses))
	}

	log.Info("seed complete")
}

// seedBusiness creates one business with its week, services, and staff in a
// single transaction.
func seedBusiness(ctx context.Context, pool *pgxpool.Pool, employeeCount, serviceCount int) (uuid.UUID, error) {
	businessID := uuid.New()

	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		step := gofakeit.RandomInt([]int{0, 0, 15, 30})
		lead := gofakeit.RandomInt([]int{0, 30, 60, 120})

		if _, err := tx.Exec(ctx, `
			INSERT INTO businesses (id, name, timezone, slot_step_minutes, lead_time_minutes)
			VALUES ($1, $2, $3, $4, $5)
		`, businessID, gofakeit.Company(), gofakeit.RandomString(timezones), step, lead); err != nil {
			return err
		}

		open := gofakeit.RandomInt([]int{7, 8, 9, 10}) * 60
		closeAt := gofakeit.RandomInt([]int{17, 18, 19, 20}) * 60
		for day := 0; day < 7; day++ {
			closed := day == 0 || (day == 6 && gofakeit.Bool())
			if _, err := tx.Exec(ctx, `
				INSERT INTO business_hours (business_id, day_of_week, start_minute, end_minute, is_closed)
				VALUES ($1, $2, $3, $4, $5)
			`, businessID, day, open, closeAt, closed); err != nil {
				return err
			}
		}

		serviceIDs := make([]uuid.UUID, 0, serviceCount)
		for i := 0; i < serviceCount; i++ {
			id := uuid.New()
			if _, err := tx.Exec(ctx, `
				INSERT INTO business_services (id, business_id, name, duration_minutes, price_cents)
				VALUES ($1, $2, $3, $4, $5)
			`, id, businessID, gofakeit.RandomString(serviceNames), gofakeit.RandomInt(durations), gofakeit.Number(1000, 15000)); err != nil {
				return err
			}
			serviceIDs = append(serviceIDs, id)
		}

		for i := 0; i < employeeCount; i++ {
			employeeID := uuid.New()
			if _, err := tx.Exec(ctx, `
				INSERT INTO employees (id, business_id, name, active)
				VALUES ($1, $2, $3, $4)
			`, employeeID, businessID, gofakeit.Name(), gofakeit.Number(0, 9) > 0); err != nil {
				return err
			}

			for _, serviceID := range serviceIDs {
				if gofakeit.Number(0, 3) == 0 {
					continue
				}
				if _, err := tx.Exec(ctx, `
					INSERT INTO employee_services (employee_id, business_service_id)
					VALUES ($1, $2)
				`, employeeID, serviceID); err != nil {
					return err
				}
			}

			// Morning and afternoon shifts around a lunch break.
			lunch := gofakeit.Number(12, 13) * 60
			for day := 1; day <= 6; day++ {
				if gofakeit.Number(0, 4) == 0 {
					continue
				}
				shifts := [][2]int{
					{open, lunch + gofakeit.RandomInt([]int{0, 0, 30})},
					{lunch + 60, closeAt},
				}
				for _, s := range shifts {
					if _, err := tx.Exec(ctx, `
						INSERT INTO employee_availabilities (employee_id, day_of_week, start_minute, end_minute)
						VALUES ($1, $2, $3, $4)
					`, employeeID, day, s[0], s[1]); err != nil {
						return err
					}
				}
			}
		}

		return nil
	})

	return businessID, err
}
