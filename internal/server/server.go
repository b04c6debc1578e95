// Package server provides the HTTP server for the address pool API.
package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/limiquantix/addrpool/internal/config"
	"github.com/limiquantix/addrpool/internal/metrics"
	"github.com/limiquantix/addrpool/internal/repository/etcd"
	"github.com/limiquantix/addrpool/internal/repository/memory"
	"github.com/limiquantix/addrpool/internal/repository/postgres"
	"github.com/limiquantix/addrpool/internal/repository/redis"
	"github.com/limiquantix/addrpool/internal/services/network"
	"github.com/limiquantix/addrpool/internal/services/workload"
)

// Version is the API server version reported by /api/v1/info.
const Version = "0.1.0"

// Server represents the main HTTP server.
type Server struct {
	config     *config.Config
	logger     *zap.Logger
	httpServer *http.Server
	mux        *http.ServeMux

	// Infrastructure
	db    *postgres.DB
	cache *redis.Cache
	etcd  *etcd.Client

	// Repository interfaces (abstracted for swappable backends)
	profileRepo  network.ProfileRepository
	workloadRepo interface {
		workload.Repository
		network.WorkloadStore
	}

	// Local fan-out for the WebSocket event stream
	events *memory.EventBus

	// Services
	profileService  *network.ProfileService
	workloadService *workload.Service
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithPostgreSQL enables PostgreSQL as the data store.
func WithPostgreSQL(db *postgres.DB) ServerOption {
	return func(s *Server) {
		s.db = db
	}
}

// WithRedis enables Redis caching and cross-instance events.
func WithRedis(cache *redis.Cache) ServerOption {
	return func(s *Server) {
		s.cache = cache
	}
}

// WithEtcd enables etcd for distributed locking.
func WithEtcd(client *etcd.Client) ServerOption {
	return func(s *Server) {
		s.etcd = client
	}
}

// New creates a new server instance.
func New(cfg *config.Config, logger *zap.Logger, opts ...ServerOption) *Server {
	mux := http.NewServeMux()

	s := &Server{
		config: cfg,
		logger: logger,
		mux:    mux,
		events: memory.NewEventBus(0),
	}

	// Apply options
	for _, opt := range opts {
		opt(s)
	}

	// Initialize repositories
	s.initRepositories()

	// Initialize services
	s.initServices()

	// Register routes
	s.registerRoutes()

	// Create HTTP server
	handler := s.setupMiddleware(mux)
	s.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s
}

// initRepositories initializes data repositories.
func (s *Server) initRepositories() {
	if s.db != nil {
		s.logger.Info("Initializing PostgreSQL repositories")
		s.profileRepo = postgres.NewProfileRepository(s.db, s.logger)
		s.workloadRepo = postgres.NewWorkloadRepository(s.db, s.logger)
	} else {
		// Use in-memory repositories (development mode)
		s.logger.Info("Initializing in-memory repositories")
		s.profileRepo = memory.NewProfileRepository()
		s.workloadRepo = memory.NewWorkloadRepository()
	}

	s.logger.Info("Repositories initialized",
		zap.Bool("postgres", s.db != nil),
		zap.Bool("redis", s.cache != nil),
		zap.Bool("etcd", s.etcd != nil),
	)
}

// initServices initializes business logic services.
func (s *Server) initServices() {
	s.logger.Info("Initializing services")

	// With Redis, every instance publishes to the shared channel and Run
	// feeds that channel back into the local bus.
	var publisher network.EventPublisher = s.events
	if s.cache != nil {
		publisher = s.cache
	}

	profileOpts := []network.ProfileServiceOption{network.WithEventPublisher(publisher)}
	workloadOpts := []workload.Option{workload.WithEventPublisher(publisher)}

	if s.cache != nil {
		profileOpts = append(profileOpts, network.WithCache(s.cache))
	}
	if s.etcd != nil {
		profileOpts = append(profileOpts, network.WithLocker(s.etcd.NewLocker("profiles/", s.config.Pool.LockTimeout)))
		workloadOpts = append(workloadOpts, workload.WithLocker(s.etcd.NewLocker("workloads/", s.config.Pool.LockTimeout)))
	}

	s.profileService = network.NewProfileService(s.profileRepo, s.workloadRepo, s.config.Pool, s.logger, profileOpts...)
	s.workloadService = workload.NewService(s.workloadRepo, s.profileService, s.logger, workloadOpts...)

	s.logger.Info("Services initialized",
		zap.Int("max_host_count", s.config.Pool.MaxHostCount),
		zap.Duration("lock_timeout", s.config.Pool.LockTimeout),
		zap.Bool("distributed_locks", s.etcd != nil),
	)
}

// registerRoutes registers all HTTP routes.
func (s *Server) registerRoutes() {
	// Health endpoints
	s.mux.HandleFunc("/health", s.healthHandler)
	s.mux.HandleFunc("/healthz", s.healthHandler) // Kubernetes-style endpoint
	s.mux.HandleFunc("/ready", s.readyHandler)
	s.mux.HandleFunc("/live", s.liveHandler)

	// API info
	s.mux.HandleFunc("/api/v1/info", s.infoHandler)

	// Prometheus metrics
	s.mux.HandleFunc("/metrics", metrics.Handler())

	NewProfileHandler(s.profileService, s.workloadService, s.logger).RegisterRoutes(s.mux)
	NewWorkloadHandler(s.workloadService, s.logger).RegisterRoutes(s.mux)
	NewEventsHandler(s.events, s.logger).RegisterRoutes(s.mux)

	s.logger.Info("All routes registered")
}

// setupMiddleware configures middleware chain.
func (s *Server) setupMiddleware(handler http.Handler) http.Handler {
	// CORS middleware
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   s.config.CORS.AllowedOrigins,
		AllowedMethods:   s.config.CORS.AllowedMethods,
		AllowedHeaders:   s.config.CORS.AllowedHeaders,
		AllowCredentials: s.config.CORS.AllowCredentials,
		MaxAge:           86400, // 24 hours
	})

	// Apply middleware
	handler = corsHandler.Handler(handler)
	handler = s.loggingMiddleware(handler)
	handler = s.recoveryMiddleware(handler)

	return handler
}

// loggingMiddleware logs HTTP requests and records request metrics.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		// Skip logging for health checks and scrapes
		switch r.URL.Path {
		case "/health", "/healthz", "/ready", "/live", "/metrics":
			return
		}

		duration := time.Since(start)
		metrics.RecordHTTPRequest(r.Method, wrapped.statusCode, duration.Seconds())

		s.logger.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.statusCode),
			zap.Duration("duration", duration),
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("user_agent", r.UserAgent()),
		)
	})
}

// recoveryMiddleware recovers from panics.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("Panic recovered",
					zap.Any("error", err),
					zap.String("path", r.URL.Path),
				)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the events stream take over the connection.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

// healthHandler returns health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "addrpool",
	})
}

// readyHandler returns readiness status.
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ready := true
	details := map[string]string{}

	// Check PostgreSQL
	if s.db != nil {
		if err := s.db.Health(ctx); err != nil {
			ready = false
			details["postgres"] = "unhealthy"
		} else {
			details["postgres"] = "healthy"
		}
	}

	// Check Redis
	if s.cache != nil {
		if err := s.cache.Health(ctx); err != nil {
			ready = false
			details["redis"] = "unhealthy"
		} else {
			details["redis"] = "healthy"
		}
	}

	// Check etcd
	if s.etcd != nil {
		if err := s.etcd.Health(ctx); err != nil {
			ready = false
			details["etcd"] = "unhealthy"
		} else {
			details["etcd"] = "healthy"
		}
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(s.logger, w, status, map[string]interface{}{
		"ready":      ready,
		"components": details,
	})
}

// liveHandler returns liveness status.
func (s *Server) liveHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]bool{"alive": true})
}

// infoHandler returns API information.
func (s *Server) infoHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]interface{}{
		"name":        "addrpool",
		"version":     Version,
		"api_version": "v1",
		"description": "Network address pool engine",
		"pool": map[string]interface{}{
			"max_host_count": s.config.Pool.MaxHostCount,
		},
		"infrastructure": map[string]bool{
			"postgres": s.db != nil,
			"redis":    s.cache != nil,
			"etcd":     s.etcd != nil,
		},
	})
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ProfileService returns the profile service.
func (s *Server) ProfileService() *network.ProfileService {
	return s.profileService
}

// WorkloadService returns the workload service.
func (s *Server) WorkloadService() *workload.Service {
	return s.workloadService
}

// Run starts the HTTP server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Starting server",
		zap.String("address", s.config.Server.Address()),
	)

	if s.cache != nil {
		go s.forwardEvents(ctx)
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		s.logger.Info("Shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown
	return s.Shutdown()
}

// forwardEvents copies events from the shared Redis channel to local
// WebSocket subscribers until ctx is done.
func (s *Server) forwardEvents(ctx context.Context) {
	s.logger.Info("Forwarding Redis events", zap.String("channel", redis.EventsChannel))
	for event := range s.cache.Subscribe(ctx) {
		s.events.PublishEvent(ctx, event)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down server...")

	// Close HTTP server
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP shutdown error: %w", err)
	}

	// Close infrastructure connections
	if s.etcd != nil {
		if err := s.etcd.Close(); err != nil {
			s.logger.Warn("Failed to close etcd", zap.Error(err))
		}
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Warn("Failed to close Redis", zap.Error(err))
		}
	}
	if s.db != nil {
		s.db.Close()
	}

	s.logger.Info("Server stopped gracefully")
	return nil
}

// Address returns the server address.
func (s *Server) Address() string {
	return s.config.Server.Address()
}
