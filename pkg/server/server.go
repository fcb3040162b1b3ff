package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/de-tools/advisor-reports/pkg/handlers"
	analyticshandler "github.com/de-tools/advisor-reports/pkg/handlers/analytics"
	insightshandler "github.com/de-tools/advisor-reports/pkg/handlers/insights"
	jobshandler "github.com/de-tools/advisor-reports/pkg/handlers/jobs"
	"github.com/de-tools/advisor-reports/pkg/services/analytics"

	advisormiddleware "github.com/de-tools/advisor-reports/pkg/server/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type WebAPI struct {
	router          chi.Router
	logger          *zerolog.Logger
	server          *http.Server
	shutdownTimeout time.Duration
}

// HealthCheck reports whether the backing store is reachable.
type HealthCheck func(ctx context.Context) error

type Dependencies struct {
	Jobs      jobshandler.Service
	Analytics analytics.Service
	Insights  insightshandler.Service
	Costs     insightshandler.Ingestor
	Health    HealthCheck
	Gatherer  prometheus.Gatherer
}

type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Dependencies    Dependencies
}

func NewWebAPI(logger zerolog.Logger, config Config) *WebAPI {
	router := ConfigureRouter(&logger, config.Dependencies)

	return &WebAPI{
		router: router,
		logger: &logger,
		server: &http.Server{
			Addr:         config.Addr,
			Handler:      otelhttp.NewHandler(router, "advisor-api"),
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
		},
		shutdownTimeout: config.ShutdownTimeout,
	}
}

func ConfigureRouter(logger *zerolog.Logger, deps Dependencies) chi.Router {
	jobs := jobshandler.NewHandler(deps.Jobs)
	stats := analyticshandler.NewHandler(deps.Analytics)
	insights := insightshandler.NewHandler(deps.Insights, deps.Costs)

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(advisormiddleware.Logger(logger))
	router.Use(middleware.Recoverer)

	router.Get("/healthz", healthz(deps.Health))
	if deps.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/jobs", jobs.Submit)
		r.Get("/jobs", jobs.List)
		r.Get("/jobs/{id}", jobs.Get)
		r.Post("/jobs/{id}/cancel", jobs.Cancel)
		r.Get("/reports/{id}", jobs.GetReport)

		r.Route("/analytics", func(r chi.Router) {
			r.Get("/dashboard", stats.Dashboard)
			r.Get("/trends", stats.Trends)
			r.Get("/top-users", stats.TopUsers)
			r.Get("/cost-insights", stats.CostInsights)
		})

		r.Get("/anomalies", insights.Anomalies)
		r.Post("/anomalies/{id}/acknowledge", insights.Acknowledge)
		r.Get("/forecasts/{subscriptionId}", insights.Forecasts)
		r.Post("/costs", insights.IngestCosts)
	})

	return router
}

func healthz(check HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				zerolog.Ctx(r.Context()).Warn().Err(err).Msg("health check failed")
				handlers.WriteJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		handlers.WriteJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// Start serves until ctx is cancelled, then drains outstanding requests for
// at most the configured shutdown timeout.
func (w *WebAPI) Start(ctx context.Context) error {
	serverErrors := make(chan error, 1)

	go func() {
		w.logger.Info().Str("addr", w.server.Addr).Msg("starting server")
		serverErrors <- w.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		w.logger.Info().Msg("shutdown initiated")

		timeout := w.shutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		err := w.server.Shutdown(shutdownCtx)
		if err != nil {
			w.logger.Error().Err(err).Msg("graceful shutdown failed")
			err = w.server.Close()
		}
		return err
	}
}
