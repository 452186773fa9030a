package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinic-scheduling/internal/appointment"
	"github.com/clinicore/clinic-scheduling/internal/report"
)

type RouterConfig struct {
	Service *appointment.Service
	Reports *report.Engine
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Log     zerolog.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", bookAppointmentHandler(cfg.Service))
		r.Get("/", listAppointmentsHandler(cfg.Service))
		r.Get("/{id}", getAppointmentHandler(cfg.Service))
		r.Patch("/{id}", updateAppointmentHandler(cfg.Service))
		r.Post("/{id}/cancel", cancelAppointmentHandler(cfg.Service))
		r.Post("/{id}/reschedule", rescheduleAppointmentHandler(cfg.Service))
	})

	r.Get("/doctors/{id}/availability", availabilityHandler(cfg.Service))

	r.Route("/reports", func(r chi.Router) {
		r.Get("/doctors", reportDoctorsHandler(cfg.Reports))
		r.Get("/status-distribution", statusDistributionHandler(cfg.Reports))
		r.Get("/doctor-performance", doctorPerformanceHandler(cfg.Reports))
		r.Get("/patients", patientReportHandler(cfg.Reports))
		r.Get("/trends", trendsHandler(cfg.Reports))
		r.Get("/monthly-revenue", monthlyRevenueHandler(cfg.Reports))
		r.Get("/dashboard", dashboardHandler(cfg.Reports))
		r.Get("/{type}/export.csv", exportCSVHandler(cfg.Reports))
	})

	return r
}
