package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	Server  *Server
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Env     string
	Version string
	Log     zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	s := cfg.Server

	r.Post("/bookings", s.createBooking)

	r.Get("/appointments", s.listAppointments)
	r.Get("/appointments/{id}", s.getAppointment)
	r.Post("/appointments/{id}/cancel", s.cancelAppointment)
	r.Post("/appointments/{id}/complete", s.completeAppointment)

	r.Post("/availability", s.publishAvailability)
	r.Delete("/availability/{id}", s.deleteSlot)
	r.Get("/availability", s.getAvailability)
	r.Get("/availability/open", s.getOpenAvailability)

	r.Get("/doctors/{id}/patients", s.getRoster)

	return r
}
