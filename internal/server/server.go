package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/sertdev/msgproxy/internal/config"
)

// ProxyHandler defines the proxy endpoints mounted under /v1.
type ProxyHandler interface {
	HandleMessages(w http.ResponseWriter, r *http.Request)
	HandleModels(w http.ResponseWriter, r *http.Request)
}

// Options holds the optional middleware and handlers wired into the router.
// Nil fields are skipped.
type Options struct {
	Auth      func(http.Handler) http.Handler
	RateLimit func(http.Handler) http.Handler
	Metrics   func(http.Handler) http.Handler

	MetricsHandler http.Handler
	Readiness      http.HandlerFunc
}

// New creates and configures the chi router with all routes mounted.
func New(cfg *config.Config, proxy ProxyHandler, opts Options) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(requestID)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "x-api-key", "anthropic-version"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	if opts.Metrics != nil {
		r.Use(opts.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		if cfg.MaxRequestBytes > 0 {
			r.Use(maxBytes(cfg.MaxRequestBytes))
		}
		if opts.Auth != nil {
			r.Use(opts.Auth)
		}
		if opts.RateLimit != nil {
			r.Use(opts.RateLimit)
		}
		r.Post("/messages", proxy.HandleMessages)
		r.Get("/models", proxy.HandleModels)
	})

	// Probes and metrics bypass auth.
	r.Get("/health", HealthHandler())
	if opts.Readiness != nil {
		r.Get("/ready", opts.Readiness)
	}
	if opts.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", opts.MetricsHandler)
	}

	return r
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func maxBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
