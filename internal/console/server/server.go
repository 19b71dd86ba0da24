package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xela07ax/proctor/internal/console/handler"
	"github.com/xela07ax/proctor/internal/domain"
	"github.com/xela07ax/proctor/internal/infra/auth"
)

// ConsoleServer is the proctoring command surface.
type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger

	// nil disables authentication
	authValidator auth.TokenValidator
	metrics       prometheus.Gatherer

	detection *handler.DetectionHandler
}

// NewConsoleServer wires the routes. validator and metrics may be nil.
func NewConsoleServer(logger *zap.Logger, validator auth.TokenValidator, metrics prometheus.Gatherer, detection *handler.DetectionHandler) *ConsoleServer {
	s := &ConsoleServer{
		router:        chi.NewRouter(),
		logger:        logger.Named("console-api"),
		authValidator: validator,
		metrics:       metrics,
		detection:     detection,
	}
	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// public
	r.Group(func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		if s.metrics != nil {
			r.Handle("/metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Logger)
		if s.authValidator != nil {
			r.Use(auth.NewMiddleware(s.authValidator, s.logger))
		}

		r.Route("/v1/halls/{id}", func(r chi.Router) {
			r.With(auth.RequireScope(domain.ScopeDetectionControl)).Post("/detection", s.detection.ToggleHall)
			r.With(auth.RequireScope(domain.ScopeDetectionControl)).Post("/attendance", s.detection.ToggleAttendance)
			r.With(auth.RequireScope(domain.ScopeStatsRead)).Get("/attendance", s.detection.AttendanceStatus)
			r.With(auth.RequireScope(domain.ScopeStatsRead)).Get("/stats", s.detection.HallStats)
		})

		r.Route("/v1/cameras/{id}", func(r chi.Router) {
			r.Use(auth.RequireScope(domain.ScopeStatsRead))
			r.Get("/stats", s.detection.CameraStats)
			r.Get("/frame", s.detection.LatestFrame)
			r.Get("/tracks", s.detection.Tracks)
		})

		r.With(auth.RequireScope(domain.ScopeStatsRead)).Get("/v1/offenders", s.detection.RepeatOffenders)
	})
}

func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
