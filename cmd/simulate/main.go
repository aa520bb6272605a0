package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"

	"github.com/hackgods/booking-engine/internal/db"
	"github.com/hackgods/booking-engine/internal/logger"
	"github.com/hackgods/booking-engine/internal/schedule"
)

type SimConfig struct {
	APIBaseURL string        `envconfig:"SIM_API_BASE_URL" default:"http://localhost:8080"`
	Duration   time.Duration `envconfig:"SIM_DURATION" default:"30s"`
	Workers    int           `envconfig:"SIM_WORKERS" default:"10"`

	// Days is how far ahead workers look for slots.
	Days        int     `envconfig:"SIM_DAYS" default:"7"`
	TargetLimit int     `envconfig:"SIM_TARGET_LIMIT" default:"200"`
	HotRatio    float64 `envconfig:"SIM_HOT_RATIO" default:"0.3"`

	// InProcess runs the API against an in-memory store instead of a
	// deployed server and Postgres.
	InProcess   bool   `envconfig:"SIM_IN_PROCESS" default:"false"`
	PostgresDSN string `envconfig:"POSTGRES_DSN"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
}

// target is an (employee, service) pair that can be booked.
type target struct {
	EmployeeID uuid.UUID
	ServiceID  uuid.UUID
}

type hotSlot struct {
	target      target
	scheduledAt time.Time
}

type Simulator struct {
	config  SimConfig
	log     *zap.Logger
	client  *http.Client
	targets []target
	hot     *hotSlot
	metrics Metrics

	mu       sync.RWMutex
	bookings []uuid.UUID
}

func main() {
	_ = godotenv.Load()

	var cfg SimConfig
	if err := envconfig.Process("", &cfg); err != nil {
		os.Stderr.WriteString("config error: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New("dev", cfg.LogLevel)
	if err != nil {
		os.Stderr.WriteString("logger init error: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := validateConfig(cfg); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	log.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("hot_ratio", cfg.HotRatio),
		zap.Bool("in_process", cfg.InProcess),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		targets []target
		audit   func(context.Context) (int, error)
	)

	if cfg.InProcess {
		env := startInProcess(log, cfg.TargetLimit)
		defer env.Close()
		cfg.APIBaseURL = env.URL
		targets = env.targets
		audit = env.audit
	} else {
		pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2, AppName: "booking-simulate"})
		if err != nil {
			log.Fatal("connect postgres", zap.Error(err))
		}
		defer pgPool.Close()

		targets, err = loadTargets(ctx, pgPool, cfg.TargetLimit)
		if err != nil {
			log.Fatal("load targets", zap.Error(err))
		}
		audit = func(ctx context.Context) (int, error) { return auditOverlaps(ctx, pgPool) }
	}

	log.Info("targets loaded", zap.Int("count", len(targets)))

	sim := &Simulator{
		config:  cfg,
		log:     log,
		client:  &http.Client{Timeout: 10 * time.Second},
		targets: targets,
	}
	sim.hot = sim.findHotSlot(ctx)
	if sim.hot != nil {
		log.Info("hot slot selected",
			zap.String("employee_id", sim.hot.target.EmployeeID.String()),
			zap.Time("scheduled_at", sim.hot.scheduledAt),
		)
	}

	sim.Run()

	auditCtx, cancelAudit := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelAudit()
	overlaps, err := audit(auditCtx)
	if err != nil {
		log.Fatal("audit", zap.Error(err))
	}

	printReport(cfg, &sim.metrics, overlaps)
	if overlaps > 0 {
		os.Exit(2)
	}
}

func validateConfig(cfg SimConfig) error {
	if !cfg.InProcess && cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required unless SIM_IN_PROCESS is set")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Days <= 0 {
		return fmt.Errorf("SIM_DAYS must be > 0")
	}
	return nil
}

func loadTargets(ctx context.Context, pool *pgxpool.Pool, limit int) ([]target, error) {
	rows, err := pool.Query(ctx, `
		SELECT es.employee_id, es.business_service_id
		FROM employee_services es
		JOIN employees e ON e.id = es.employee_id
		WHERE e.active
		ORDER BY random()
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query targets: %w", err)
	}

	targets, err := pgx.CollectRows(rows, pgx.RowToStructByPos[target])
	if err != nil {
		return nil, fmt.Errorf("scan targets: %w", err)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("no bookable employees found, run cmd/seed first")
	}
	return targets, nil
}

// auditOverlaps counts pairs of active bookings of one employee whose
// intervals intersect. Anything above zero is a double booking.
func auditOverlaps(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM bookings a
		JOIN bookings b
		  ON a.employee_id = b.employee_id
		 AND a.id < b.id
		 AND a.scheduled_at < b.ends_at
		 AND b.scheduled_at < a.ends_at
		WHERE a.status <> 'CANCELED' AND b.status <> 'CANCELED'
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("audit overlaps: %w", err)
	}
	return n, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	requester := uuid.New()

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < 0.1:
			s.doReadByID(ctx, rng)
		case r < 0.25:
			s.doLifecycle(ctx, rng)
		case s.hot != nil && r < 0.25+s.config.HotRatio*0.75:
			s.doBooking(ctx, requester, s.hot.target, s.hot.scheduledAt)
		default:
			s.doQueryAndBook(ctx, rng, requester)
		}
	}
}

type slotsResponse struct {
	Date  string `json:"date"`
	Slots []struct {
		Time        string    `json:"time"`
		ScheduledAt time.Time `json:"scheduledAt"`
		Available   bool      `json:"available"`
	} `json:"slots"`
}

func (s *Simulator) querySlots(ctx context.Context, t target, date string) (*slotsResponse, int, time.Duration, error) {
	path := fmt.Sprintf("/employees/slots?employeeId=%s&businessServiceId=%s&date=%s", t.EmployeeID, t.ServiceID, date)

	var out slotsResponse
	start := time.Now()
	code, err := s.do(ctx, http.MethodGet, path, nil, nil, &out)
	return &out, code, time.Since(start), err
}

// findHotSlot picks one available slot that every hot worker will race for.
func (s *Simulator) findHotSlot(ctx context.Context) *hotSlot {
	for _, t := range s.targets {
		for d := 1; d <= s.config.Days; d++ {
			date := time.Now().AddDate(0, 0, d).Format(schedule.DateLayout)
			resp, code, _, err := s.querySlots(ctx, t, date)
			if err != nil || code != http.StatusOK {
				continue
			}
			for _, slot := range resp.Slots {
				if slot.Available {
					return &hotSlot{target: t, scheduledAt: slot.ScheduledAt}
				}
			}
		}
	}
	return nil
}

func (s *Simulator) doQueryAndBook(ctx context.Context, rng *rand.Rand, requester uuid.UUID) {
	t := s.targets[rng.Intn(len(s.targets))]
	date := time.Now().AddDate(0, 0, rng.Intn(s.config.Days)).Format(schedule.DateLayout)

	resp, code, latency, err := s.querySlots(ctx, t, date)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Slots.Record(latency, err == nil && code == http.StatusOK, false)
	if err != nil || code != http.StatusOK {
		return
	}

	var free []time.Time
	for _, slot := range resp.Slots {
		if slot.Available {
			free = append(free, slot.ScheduledAt)
		}
	}
	if len(free) == 0 {
		return
	}

	s.doBooking(ctx, requester, t, free[rng.Intn(len(free))])
}

func (s *Simulator) doBooking(ctx context.Context, requester uuid.UUID, t target, at time.Time) {
	body := map[string]string{
		"businessServiceId": t.ServiceID.String(),
		"employeeId":        t.EmployeeID.String(),
		"scheduledAt":       at.Format(time.RFC3339),
	}

	var created struct {
		ID uuid.UUID `json:"id"`
	}
	start := time.Now()
	code, err := s.do(ctx, http.MethodPost, "/bookings", body, map[string]string{"X-User-Id": requester.String()}, &created)
	if ctx.Err() != nil {
		return
	}

	success := err == nil && code == http.StatusCreated
	if success && created.ID != uuid.Nil {
		s.mu.Lock()
		s.bookings = append(s.bookings, created.ID)
		s.mu.Unlock()
	}
	s.metrics.Booking.Record(time.Since(start), success, code == http.StatusConflict || code == http.StatusTooManyRequests)
}

func (s *Simulator) randomBooking(rng *rand.Rand) (uuid.UUID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.bookings) == 0 {
		return uuid.Nil, false
	}
	return s.bookings[rng.Intn(len(s.bookings))], true
}

func (s *Simulator) doLifecycle(ctx context.Context, rng *rand.Rand) {
	id, ok := s.randomBooking(rng)
	if !ok {
		return
	}
	actions := []string{"accept", "cancel", "start", "complete"}
	action := actions[rng.Intn(len(actions))]

	start := time.Now()
	code, err := s.do(ctx, http.MethodPost, fmt.Sprintf("/bookings/%s/%s", id, action), nil, nil, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Lifecycle.Record(time.Since(start), err == nil && code == http.StatusOK, code == http.StatusConflict)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	id, ok := s.randomBooking(rng)
	if !ok {
		return
	}

	start := time.Now()
	code, err := s.do(ctx, http.MethodGet, "/bookings/"+id.String(), nil, nil, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.ReadByID.Record(time.Since(start), err == nil && code == http.StatusOK, false)
}

// do sends a JSON request and decodes a 2xx body into out when it is non-nil.
func (s *Simulator) do(ctx context.Context, method, path string, body any, headers map[string]string, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
		return resp.StatusCode, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
