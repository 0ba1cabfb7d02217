package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/medisched/hospital-scheduling/internal/scheduling"
)

type RouterConfig struct {
	Appointments *scheduling.Service
	Queue        *scheduling.QueueService
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Env          string
	Version      string
	Log          zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Appointment lifecycle
	r.Post("/appointments", createAppointmentHandler(cfg.Appointments))
	r.Get("/appointments", listAppointmentsHandler(cfg.Appointments))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Appointments))
	r.Patch("/appointments/{id}/status", updateStatusHandler(cfg.Appointments))
	r.Post("/appointments/{id}/reschedule", rescheduleHandler(cfg.Appointments))
	r.Post("/appointments/{id}/follow-up", followUpHandler(cfg.Appointments))
	r.Get("/appointments/{id}/confirm", confirmHandler(cfg.Appointments))
	r.Post("/appointments/{id}/resend-confirmation", resendConfirmationHandler(cfg.Appointments))
	r.Post("/appointments/{id}/cancel", cancelHandler(cfg.Appointments))

	// Waiting queue
	r.Post("/queue", joinQueueHandler(cfg.Queue))
	r.Get("/queue", listQueueHandler(cfg.Queue))
	r.Patch("/queue/{id}", updateQueueHandler(cfg.Queue))
	r.Delete("/queue/{id}", leaveQueueHandler(cfg.Queue))
	r.Post("/queue/{id}/promote", promoteHandler(cfg.Queue))

	return r
}
