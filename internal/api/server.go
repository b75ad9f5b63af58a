package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/arb-engine/flashloan-arb-engine/internal/config"
	"github.com/arb-engine/flashloan-arb-engine/pkg/interfaces"
	"github.com/arb-engine/flashloan-arb-engine/pkg/metrics"
)

// Server exposes the engine over REST and WebSocket.
type Server struct {
	config          *config.Config
	server          *http.Server
	handlers        *Handlers
	authService     *AuthService
	rateLimiter     *RateLimiter
	websocketServer *WebSocketServer

	metricsCollector interfaces.MetricsCollector
	startTime        time.Time
}

// NewServer creates the API server and wires its routes.
func NewServer(
	cfg *config.Config,
	metricsCollector interfaces.MetricsCollector,
	risk interfaces.RiskController,
	gasCtrl interfaces.GasController,
	dedup interfaces.DedupEngine,
	engine EngineStats,
	latency LatencyReader,
) *Server {
	server := &Server{
		config:           cfg,
		handlers:         NewHandlers(metricsCollector, risk, gasCtrl, dedup, engine, latency),
		authService:      NewAuthService(),
		rateLimiter:      NewRateLimiter(),
		websocketServer:  NewWebSocketServer(),
		metricsCollector: metricsCollector,
		startTime:        time.Now(),
	}

	server.setupServer()

	return server
}

// Start launches the HTTP server, the WebSocket loop and the stats stream.
func (s *Server) Start(ctx context.Context) error {
	log.Printf("Starting API server on %s:%d", s.config.Server.Host, s.config.Server.Port)

	if err := s.websocketServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start WebSocket server: %w", err)
	}

	go s.rateLimiterCleanup(ctx)
	go s.streamStats(ctx)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("API server error: %v", err)
		}
	}()

	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.websocketServer.Stop(ctx); err != nil {
		log.Printf("Error stopping WebSocket server: %v", err)
	}

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown API server: %w", err)
	}

	return nil
}

// Router returns the HTTP handler, used by tests.
func (s *Server) Router() http.Handler {
	return s.server.Handler
}

func (s *Server) setupServer() {
	router := mux.NewRouter()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	router.Use(s.loggingMiddleware)
	router.Use(s.rateLimiter.RateLimitMiddleware)

	// Public routes
	router.HandleFunc("/health", s.healthCheck).Methods("GET")
	router.Handle("/metrics", metrics.PrometheusHandler()).Methods("GET")
	router.HandleFunc("/ws", s.websocketServer.HandleWebSocket)

	// Protected API routes
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.authService.AuthMiddleware)

	api.HandleFunc("/status", s.handlers.GetSystemStatus).Methods("GET")
	api.HandleFunc("/stats", s.handlers.GetPipelineStats).Methods("GET")
	api.HandleFunc("/risk", s.handlers.GetRiskStatus).Methods("GET")
	api.HandleFunc("/gas", s.handlers.GetGasStatus).Methods("GET")
	api.HandleFunc("/dedup", s.handlers.GetDedupStats).Methods("GET")
	api.HandleFunc("/metrics/latency/{operation}", s.handlers.GetLatencyMetrics).Methods("GET")

	// Operator routes
	operatorRoutes := api.PathPrefix("").Subrouter()
	operatorRoutes.Use(RequireRole(interfaces.UserRoleOperator))
	operatorRoutes.HandleFunc("/dedup/clear", s.handlers.ClearDedupCache).Methods("POST")

	handler := c.Handler(router)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port),
		Handler:      handler,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		log.Printf("%s %s %d %v %s",
			r.Method,
			r.RequestURI,
			wrapper.statusCode,
			time.Since(start),
			r.RemoteAddr,
		)
	})
}

// streamStats pushes a pipeline snapshot to WebSocket clients every few
// seconds while any are connected.
func (s *Server) streamStats(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.websocketServer.ConnectedClients() == 0 {
				continue
			}
			if err := s.websocketServer.BroadcastStats(s.metricsCollector.Snapshot()); err != nil {
				log.Printf("Stats broadcast failed: %v", err)
			}
		}
	}
}

func (s *Server) rateLimiterCleanup(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.rateLimiter.CleanupExpiredClients()
		}
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
