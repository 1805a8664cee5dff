package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/todmy/isoforest/internal/anomaly"
	"github.com/todmy/isoforest/internal/auth"
	"github.com/todmy/isoforest/internal/registry"
	"github.com/todmy/isoforest/internal/storage"
	"github.com/todmy/isoforest/pkg/iforest"
)

const defaultMaxUploadSize = 32 << 20 // 32 MB

// ServerConfig wires the server's collaborators
type ServerConfig struct {
	Auth          auth.Service
	Datasets      storage.DatasetRepository
	Registry      *registry.Registry
	Anomaly       anomaly.Config
	Observer      iforest.Observer
	MaxUploadSize int64
}

type Server struct {
	router        *chi.Mux
	authService   auth.Service
	authHandlers  *auth.Handlers
	datasets      storage.DatasetRepository
	registry      *registry.Registry
	anomaly       anomaly.Config
	observer      iforest.Observer
	maxUploadSize int64
}

func NewServer(config ServerConfig) *Server {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if config.MaxUploadSize <= 0 {
		config.MaxUploadSize = defaultMaxUploadSize
	}

	s := &Server{
		router:        r,
		authService:   config.Auth,
		authHandlers:  auth.NewHandlers(config.Auth),
		datasets:      config.Datasets,
		registry:      config.Registry,
		anomaly:       config.Anomaly,
		observer:      config.Observer,
		maxUploadSize: config.MaxUploadSize,
	}
	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	// API v1
	s.router.Route("/api/v1", func(r chi.Router) {
		// Auth routes (public)
		r.Post("/auth/register", s.authHandlers.Register)
		r.Post("/auth/token", s.authHandlers.Token)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(s.authService))

			r.Get("/auth/me", s.authHandlers.Me)

			r.Route("/datasets", func(r chi.Router) {
				r.Get("/", s.handleListDatasets)
				r.Post("/", s.handleCreateDataset)
				r.Post("/upload", s.handleUploadDataset)
				r.Get("/{datasetID}", s.handleGetDataset)
				r.Delete("/{datasetID}", s.handleDeleteDataset)
				r.Post("/{datasetID}/detect", s.handleDetect)
				r.Get("/{datasetID}/projection", s.handleProjection)
			})

			r.Route("/models", func(r chi.Router) {
				r.Get("/", s.handleListModels)
				r.Post("/", s.handleCreateModel)
				r.Post("/import", s.handleImportModel)
				r.Get("/{modelID}", s.handleGetModel)
				r.Delete("/{modelID}", s.handleDeleteModel)
				r.Post("/{modelID}/score", s.handleScore)
				r.Get("/{modelID}/export", s.handleExportModel)
			})
		})
	})
}

// ServeHTTP makes the server usable as an http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) Run(addr string) error {
	return http.ListenAndServe(addr, s.router)
}

// service returns an anomaly service for one request, with overrides applied
func (s *Server) service(overrides func(*anomaly.Config)) *anomaly.Service {
	config := s.anomaly
	if overrides != nil {
		overrides(&config)
	}
	return anomaly.NewService(config, s.observer)
}

// Helper to send JSON responses
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
