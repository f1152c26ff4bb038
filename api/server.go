package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/docutag/enricher/auth"
	"github.com/docutag/enricher/db"
	"github.com/docutag/enricher/enrich"
	"github.com/docutag/enricher/metrics"
	"github.com/docutag/enricher/models"
	"github.com/docutag/enricher/search"
	"github.com/docutag/enricher/storage"
)

// maxUploadSize bounds multipart CSV uploads
const maxUploadSize = 32 << 20

// Server represents the API server
type Server struct {
	db       *db.DB
	runner   *enrich.Runner
	blobs    storage.Blob
	verifier *auth.Verifier
	search   *search.Service
	metrics  *metrics.Metrics
	logger   *slog.Logger
	config   Config
	router   chi.Router
	server   *http.Server
}

// Config contains server configuration
type Config struct {
	Addr        string
	CORSEnabled bool
	Tracing     bool // Wrap the router in an OpenTelemetry handler

	// Stage defaults used when a request omits a value
	ScrapeLimit       int
	ScrapeDelay       time.Duration
	GenerateRateLimit int
	GenerateDelay     time.Duration
	MaxTokens         int
	DefaultModel      string
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		CORSEnabled:       true,
		ScrapeLimit:       enrich.DefaultScrapeLimit,
		ScrapeDelay:       enrich.DefaultScrapeDelay,
		GenerateRateLimit: enrich.DefaultRateLimit,
		GenerateDelay:     enrich.DefaultGenerateDelay,
		MaxTokens:         enrich.DefaultMaxTokens,
		DefaultModel:      enrich.DefaultGenerationModel,
	}
}

// Dependencies are the collaborators a Server routes requests to
type Dependencies struct {
	DB       *db.DB
	Runner   *enrich.Runner
	Blobs    storage.Blob
	Verifier *auth.Verifier
	Search   *search.Service
	Metrics  *metrics.Metrics // Optional
	Logger   *slog.Logger     // Optional
}

// NewServer creates a new API server
func NewServer(config Config, deps Dependencies) (*Server, error) {
	switch {
	case deps.DB == nil:
		return nil, errors.New("database is required")
	case deps.Runner == nil:
		return nil, errors.New("stage runner is required")
	case deps.Blobs == nil:
		return nil, errors.New("blob storage is required")
	case deps.Verifier == nil:
		return nil, errors.New("token verifier is required")
	case deps.Search == nil:
		return nil, errors.New("search service is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		db:       deps.DB,
		runner:   deps.Runner,
		blobs:    deps.Blobs,
		verifier: deps.Verifier,
		search:   deps.Search,
		metrics:  deps.Metrics,
		logger:   logger,
		config:   config,
	}

	s.registerRoutes()

	var handler http.Handler = s.router
	if config.Tracing {
		handler = otelhttp.NewHandler(handler, "enricher-api")
	}

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute, // Stage passes run inside the request
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// registerRoutes sets up all API routes
func (s *Server) registerRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)
	r.Use(s.logRequests)

	r.Get("/api/health", s.handleHealth)
	r.Get("/metrics", s.metrics.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(s.requireUser)

		r.Route("/api/csvs", func(r chi.Router) {
			r.Get("/", s.handleListCSVs)
			r.Post("/", s.handleUploadCSV)
		})

		r.Route("/api/models", func(r chi.Router) {
			r.Get("/", s.handleListModels)
			r.Post("/", s.handleCreateModel)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetModel)
				r.Delete("/", s.handleDeleteModel)
				r.Post("/scrape", s.handleScrape)
				r.Post("/generate-alt-content", s.handleGenerate)
				r.Post("/rate-content", s.handleRate)
				r.Post("/test", s.handleTest)
				r.Post("/add-url", s.handleAddURL)
			})
		})
	})

	s.router = r
}

// Handler returns the server's root handler
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the API server
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.config.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server and closes the database
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	return s.db.Close()
}

// cors applies permissive CORS headers when enabled
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.CORSEnabled {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// logRequests measures every request and logs all but health and metrics scrapes
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		s.metrics.ObserveRequest(r.Method, status, duration)

		if r.URL.Path == "/api/health" || r.URL.Path == "/metrics" {
			return
		}
		s.logger.Info("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration", duration,
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type userKey struct{}

// requireUser authenticates the Authorization header and stores the caller on the context
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.verifier.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if errors.Is(err, auth.ErrUnauthorized) {
			respondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		if err != nil {
			s.internalError(w, r, "failed to authenticate request", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	})
}

// userFrom returns the caller set by requireUser
func userFrom(r *http.Request) *models.User {
	user, _ := r.Context().Value(userKey{}).(*models.User)
	return user
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// internalError logs err and sends a generic 500
func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.logger.Error(msg, "error", err, "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()))
	respondError(w, http.StatusInternalServerError, msg)
}
