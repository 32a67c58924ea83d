package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/savegress/fleetwatch/internal/tracker"
)

// Server represents the API server
type Server struct {
	router  chi.Router
	tracker *tracker.Tracker
}

// NewServer creates a new API server
func NewServer(t *tracker.Tracker) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		tracker: t,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	s.router.Get("/health", s.healthCheck)

	// API v1
	s.router.Route("/api/v1", func(r chi.Router) {
		// Ingestion
		r.Post("/telemetry", s.ingestTelemetry)

		// Devices
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.listDevices)
			r.Get("/{id}", s.getDevice)
		})

		// Queues
		r.Route("/queues", func(r chi.Router) {
			r.Get("/", s.listQueueStats)
			r.Get("/{name}", s.getQueueStats)
		})

		// Metrics
		r.Get("/metrics", s.getMetrics)

		// Manual triggers for deployments driving cadence externally
		r.Post("/sweep", s.triggerSweep)
		r.Post("/retries/drain", s.triggerRetryDrain)
	})
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}
