package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sertdev/msgproxy/internal/auth"
	"github.com/sertdev/msgproxy/internal/config"
	"github.com/sertdev/msgproxy/internal/metrics"
	"github.com/sertdev/msgproxy/internal/proxy"
	"github.com/sertdev/msgproxy/internal/ratelimit"
	"github.com/sertdev/msgproxy/internal/server"
	"github.com/sertdev/msgproxy/internal/slogger"
	"github.com/sertdev/msgproxy/internal/store"
	"github.com/sertdev/msgproxy/internal/trace"
)

func main() {
	createKey := flag.String("create-key", "", "create an API key with the given name, print it, and exit")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// 2. Validate config
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("config validation failed: %v", err)
	}

	// 3. Setup structured logging
	slogger.Setup(cfg.LogFormat)

	// 4. Initialize database connection pool with configurable sizes
	pool, err := store.NewPool(context.Background(), cfg.DatabaseURL, store.PoolOptions{
		MaxConns: cfg.MaxDBConns,
		MinConns: cfg.MinDBConns,
		Schema:   cfg.DatabaseSchema,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer pool.Close()

	// 5. Initialize store and run migrations
	st := store.New(pool)
	if err := st.Migrate(context.Background()); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	if *createKey != "" {
		createKeyAndExit(st, *createKey)
	}

	// 6. Initialize metrics (if enabled)
	var m *metrics.Metrics
	var metricsMiddleware func(http.Handler) http.Handler
	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		m = metrics.New()
		metricsMiddleware = metrics.Middleware(m)
		metricsHandler = m.Handler()
	}

	// 7. Initialize trace recorder and retention sweeper
	recorder := trace.NewRecorder(st, cfg.TraceBufferSize)
	defer recorder.Close()
	if m != nil {
		recorder.SetDroppedCounter(m.DroppedTracesTotal)
	}

	sweeper := trace.NewSweeper(st, cfg.TraceRetentionDays)
	defer sweeper.Close()

	// 8. Initialize auth (if required)
	var authMiddleware func(http.Handler) http.Handler
	if cfg.AuthRequired {
		authenticator := auth.NewAuthenticator(st, 60*time.Second)
		lastUsedTracker := auth.NewLastUsedTracker(st)
		defer lastUsedTracker.Close()
		authMiddleware = auth.Middleware(authenticator, lastUsedTracker)
	}

	// 9. Initialize rate limiter (if configured)
	var rateLimitMiddleware func(http.Handler) http.Handler
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = int(cfg.RateLimitRPS * 2) // default burst = 2x RPS
		}
		limiter := ratelimit.NewLimiter(cfg.RateLimitRPS, burst)
		defer limiter.Close()

		var onLimited func()
		if m != nil {
			onLimited = m.RateLimitedTotal.Inc
		}
		rateLimitMiddleware = ratelimit.Middleware(limiter, onLimited)
	}

	// 10. Initialize upstream client and proxy handler
	upstream := proxy.NewUpstreamClient(cfg.UpstreamURL, cfg.UpstreamAPIKey)
	proxyHandler := proxy.NewHandler(upstream, cfg, recorder, m)

	// 11. Build the router
	router := server.New(cfg, proxyHandler, server.Options{
		Auth:           authMiddleware,
		RateLimit:      rateLimitMiddleware,
		Metrics:        metricsMiddleware,
		MetricsHandler: metricsHandler,
		Readiness:      server.ReadinessHandler(pool),
	})

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // disabled: streaming responses can run for 10+ minutes
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("msgproxy listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-done
	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server shutdown failed: %v", err)
	}
	log.Println("server stopped")
}

// createKeyAndExit generates an API key, stores its hash, and prints the
// plaintext once. There is no way to recover it later.
func createKeyAndExit(st *store.Store, name string) {
	plaintext, hash, prefix, err := auth.GenerateKey()
	if err != nil {
		log.Fatalf("failed to generate key: %v", err)
	}
	key, err := st.CreateKey(context.Background(), hash, prefix, name)
	if err != nil {
		log.Fatalf("failed to store key: %v", err)
	}
	fmt.Printf("created key %q (id %s)\n%s\n", name, key.ID, plaintext)
	os.Exit(0)
}
