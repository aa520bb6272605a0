package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/booking-engine/internal/booking"
)

type RouterConfig struct {
	Service *booking.Service
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Logger  *zap.Logger
	Env     string
	Version string
	// RequestTimeout bounds every non-health request. Zero disables it.
	RequestTimeout       time.Duration
	BookingRatePerMinute int
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	h := &handlers{svc: cfg.Service, log: log}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Group(func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
		}

		r.Get("/employees/slots", h.getSlots)
		r.Get("/employees/slots/range", h.getSlotsRange)
		r.Get("/employees/{id}", h.getEmployee)
		r.Put("/employees/{id}", h.updateEmployee)

		r.Get("/business/hours", h.getBusinessHours)
		r.Put("/business/hours", h.setBusinessHours)

		r.Route("/bookings", func(r chi.Router) {
			r.With(RateLimitMiddleware(cfg.BookingRatePerMinute, log)).Post("/", h.createBooking)
			r.Get("/{id}", h.getBooking)
			r.Post("/{id}/accept", h.transition(booking.StatusAccepted))
			r.Post("/{id}/start", h.transition(booking.StatusInProgress))
			r.Post("/{id}/complete", h.transition(booking.StatusCompleted))
			r.Post("/{id}/cancel", h.transition(booking.StatusCanceled))
			r.Post("/{id}/dispute", h.transition(booking.StatusDisputed))
		})
	})

	return r
}
