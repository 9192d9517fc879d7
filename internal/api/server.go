// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/polytracker/scanner/internal/logging"
	"github.com/polytracker/scanner/internal/metrics"
	"github.com/polytracker/scanner/internal/models"
	"github.com/polytracker/scanner/internal/scanner"
	"github.com/polytracker/scanner/internal/service"
	"github.com/polytracker/scanner/internal/types"
)

// Service interfaces for dependency injection and testing

// TrackingServiceInterface defines the tracked wallet and market operations
type TrackingServiceInterface interface {
	AddWallet(ctx context.Context, in service.AddWalletInput) (*models.TrackedWallet, error)
	RemoveWallet(ctx context.Context, wallet string) error
	ListWallets(ctx context.Context, includeInactive bool) ([]*models.TrackedWallet, error)
	AddMarket(ctx context.Context, in service.AddMarketInput) (*models.TrackedMarket, error)
	RemoveMarket(ctx context.Context, marketID string) error
	ListMarkets(ctx context.Context, includeInactive bool) ([]*models.TrackedMarket, error)
}

// QueryServiceInterface defines the read-only dashboard queries
type QueryServiceInterface interface {
	ListTrades(ctx context.Context, limit, offset int) (*service.TradePage, error)
	GetTrade(ctx context.Context, tradeRef string) (*service.TradeDetail, error)
	GetWallet(ctx context.Context, wallet string, limit int) (*service.WalletProfile, error)
	Stats(ctx context.Context, top int) (*models.DashboardStats, error)
	ListScans(ctx context.Context, limit int) ([]*models.ScanRun, error)
}

// ScanTrigger starts ad-hoc scans. Implemented by scanner.Scheduler.
type ScanTrigger interface {
	Trigger(mode types.ScanMode) error
	Status() scanner.SchedulerStatus
}

// Pinger reports store health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	handler    http.Handler
	httpServer *http.Server
	tracking   TrackingServiceInterface
	query      QueryServiceInterface
	scans      ScanTrigger
	store      Pinger
	metrics    *metrics.Metrics
	logger     *logging.Logger
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RateLimitRPS    int // Requests per second per client IP; 0 disables limiting
	RateLimitBurst  int
}

// Option configures a Server
type Option func(*Server)

// WithScanTrigger enables POST /api/scans and the scheduler status endpoint
func WithScanTrigger(t ScanTrigger) Option {
	return func(s *Server) { s.scans = t }
}

// WithHealthCheck makes /health ping the store
func WithHealthCheck(p Pinger) Option {
	return func(s *Server) { s.store = p }
}

// WithMetrics sets the request metrics and the /metrics registry
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the request logger
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, tracking TrackingServiceInterface, query QueryServiceInterface, opts ...Option) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		tracking: tracking,
		query:    query,
		config:   config,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrGlobal(s.logger).WithField("component", "api")

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware(s.logger, s.metrics))
	s.router.Use(RecoveryMiddleware(s.logger))
	if s.config.RateLimitRPS > 0 {
		s.router.Use(RateLimitMiddleware(NewRateLimiter(s.config.RateLimitRPS, s.config.RateLimitBurst)))
	}
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	// CORS wraps the router so preflight requests are answered before route matching
	s.handler = CORSMiddleware(s.router)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Detected trades
	api.HandleFunc("/trades", s.handleListTrades).Methods("GET")
	api.HandleFunc("/trades/{ref}", s.handleGetTrade).Methods("GET")
	api.HandleFunc("/wallets/{wallet}", s.handleGetWallet).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")

	// Tracking registry
	api.HandleFunc("/tracked/wallets", s.handleListTrackedWallets).Methods("GET")
	api.HandleFunc("/tracked/wallets", s.handleAddTrackedWallet).Methods("POST")
	api.HandleFunc("/tracked/wallets/{wallet}", s.handleRemoveTrackedWallet).Methods("DELETE")
	api.HandleFunc("/tracked/markets", s.handleListTrackedMarkets).Methods("GET")
	api.HandleFunc("/tracked/markets", s.handleAddTrackedMarket).Methods("POST")
	api.HandleFunc("/tracked/markets/{market}", s.handleRemoveTrackedMarket).Methods("DELETE")

	// Scans
	api.HandleFunc("/scans", s.handleListScans).Methods("GET")
	api.HandleFunc("/scans", s.handleTriggerScan).Methods("POST")
	api.HandleFunc("/scans/status", s.handleScanStatus).Methods("GET")
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			s.logger.WithError(err).Warn("Health check failed")
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "unhealthy",
				"service": "polytracker",
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "polytracker",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
