package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/fairlens/escrow-engine/internal/facade"
	"github.com/fairlens/escrow-engine/internal/ledger"
	"github.com/fairlens/escrow-engine/internal/metrics"
	"github.com/fairlens/escrow-engine/internal/notify"
	"github.com/fairlens/escrow-engine/internal/query"
	"github.com/fairlens/escrow-engine/internal/storage"
	"github.com/fairlens/escrow-engine/pkg/utils"
)

// Config holds HTTP server configuration
type Config struct {
	Port          int           `json:"port"`
	Host          string        `json:"host"`
	ReadTimeout   time.Duration `json:"read_timeout"`
	WriteTimeout  time.Duration `json:"write_timeout"`
	EnableMetrics bool          `json:"enable_metrics"`
	EnableHealth  bool          `json:"enable_health"`
}

// HTTPServer exposes the escrow engine over REST
type HTTPServer struct {
	config      *Config
	server      *http.Server
	router      *mux.Router
	facade      *facade.Facade
	query       *query.Service
	storage     storage.Storage
	nodeManager *ledger.NodeManager
	notifier    *notify.Manager
	metrics     *metrics.PrometheusMetrics
	registry    *prometheus.Registry
	logger      *logrus.Logger
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(
	config *Config,
	escrowFacade *facade.Facade,
	queryService *query.Service,
	store storage.Storage,
	nodeManager *ledger.NodeManager,
	notifier *notify.Manager,
	promMetrics *metrics.PrometheusMetrics,
	registry *prometheus.Registry,
) *HTTPServer {
	server := &HTTPServer{
		config:      config,
		facade:      escrowFacade,
		query:       queryService,
		storage:     store,
		nodeManager: nodeManager,
		notifier:    notifier,
		metrics:     promMetrics,
		registry:    registry,
		logger:      utils.GetLogger(),
	}

	server.setupRouter()

	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      server.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return server
}

// setupRouter sets up the HTTP routes
func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	// Middleware
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	if s.metrics != nil {
		s.router.Use(s.metricsMiddleware)
	}

	// API routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Health check endpoints
	if s.config.EnableHealth {
		api.HandleFunc("/health", s.healthHandler).Methods("GET")
		api.HandleFunc("/health/detailed", s.detailedHealthHandler).Methods("GET")
	}

	// Metrics endpoints
	if s.config.EnableMetrics {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
		api.HandleFunc("/stats", s.statsHandler).Methods("GET")
	}

	// Contract endpoints
	api.HandleFunc("/contracts", s.listContractsHandler).Methods("GET")
	api.HandleFunc("/contracts/deploy", s.deployContractHandler).Methods("POST")
	api.HandleFunc("/contracts/{id}", s.getContractHandler).Methods("GET")
	api.HandleFunc("/contracts/{id}/events", s.listEventsHandler).Methods("GET")
	api.HandleFunc("/contracts/{id}/sync", s.syncContractHandler).Methods("POST")

	// Milestone endpoints
	api.HandleFunc("/contracts/{id}/milestones", s.listMilestonesHandler).Methods("GET")
	api.HandleFunc("/contracts/{id}/milestones", s.addMilestoneHandler).Methods("POST")
	api.HandleFunc("/contracts/{id}/milestones/{index}", s.getMilestoneHandler).Methods("GET")
	api.HandleFunc("/contracts/{id}/milestones/{index}/submit-proof", s.submitProofHandler).Methods("POST")
	api.HandleFunc("/contracts/{id}/milestones/{index}/verify", s.verifyMilestoneHandler).Methods("POST")
	api.HandleFunc("/contracts/{id}/milestones/{index}/release-payment", s.releasePaymentHandler).Methods("POST")

	// Contract administration endpoints
	api.HandleFunc("/contracts/{id}/pause", s.pauseContractHandler).Methods("POST")
	api.HandleFunc("/contracts/{id}/resume", s.resumeContractHandler).Methods("POST")
	api.HandleFunc("/contracts/{id}/terminate", s.terminateContractHandler).Methods("POST")
	api.HandleFunc("/contracts/{id}/verifier", s.updateVerifierHandler).Methods("PUT")

	// Transaction endpoints
	api.HandleFunc("/transactions/{txId}", s.getTransactionHandler).Methods("GET")
	api.HandleFunc("/transactions/resolve", s.resolvePendingHandler).Methods("POST")
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.WithFields(logrus.Fields{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.EnableMetrics,
	}).Info("Starting HTTP server")

	errChan := make(chan error, 1)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server error")
			errChan <- err
		}
	}()

	// Catch immediate binding errors before reporting success
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop stops the HTTP server
func (s *HTTPServer) Stop() error {
	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// Health Handlers

// healthHandler returns basic health status
func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":          "healthy",
		"timestamp":       time.Now().UTC().Format(time.RFC3339Nano),
		"metrics_enabled": s.config.EnableMetrics,
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// detailedHealthHandler returns per-component health status
func (s *HTTPServer) detailedHealthHandler(w http.ResponseWriter, r *http.Request) {
	storageHealthy := s.storage.Ping() == nil
	nodeHealthy := s.nodeManager.IsHealthy()
	notifierHealthy := s.notifier.IsHealthy()

	if s.metrics != nil {
		s.metrics.UpdateComponentHealth("storage", storageHealthy)
		s.metrics.UpdateComponentHealth("ledger", nodeHealthy)
		s.metrics.UpdateComponentHealth("notifications", notifierHealthy)
	}

	status := "healthy"
	code := http.StatusOK
	if !storageHealthy || !nodeHealthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	s.writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"components": map[string]interface{}{
			"storage":       storageHealthy,
			"ledger":        nodeHealthy,
			"notifications": notifierHealthy,
		},
	})
}

// statsHandler returns application statistics
func (s *HTTPServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	storageStats, err := s.storage.GetStats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"timestamp":     time.Now().UTC(),
		"storage":       storageStats,
		"ledger":        s.nodeManager.Stats(),
		"notifications": s.notifier.GetStats(),
	})
}

// Utility Methods

// writeJSON writes a JSON response
func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeError maps a typed error onto an HTTP status and writes it
func (s *HTTPServer) writeError(w http.ResponseWriter, err error) {
	code := utils.ErrorCode(err)
	status := httpStatusForCode(code)

	response := map[string]interface{}{
		"error":     err.Error(),
		"code":      code,
		"status":    status,
		"timestamp": time.Now().UTC(),
	}

	if appErr, ok := err.(*utils.AppError); ok {
		response["error"] = appErr.Message
		if appErr.Details != "" {
			response["details"] = appErr.Details
		}
	}

	if status >= 500 {
		s.logger.WithFields(logrus.Fields{
			"code":  code,
			"error": err.Error(),
		}).Error("HTTP error")
	}

	s.writeJSON(w, status, response)
}

// httpStatusForCode maps error codes onto HTTP statuses
func httpStatusForCode(code string) int {
	switch code {
	case utils.ErrCodeNotFound:
		return http.StatusNotFound
	case utils.ErrCodeUnauthorized:
		return http.StatusForbidden
	case utils.ErrCodeInvalidArgument, utils.ErrCodeSignatureInvalid:
		return http.StatusBadRequest
	case utils.ErrCodeInvalidState, utils.ErrCodeInvalidTransition,
		utils.ErrCodeDuplicateIndex, utils.ErrCodeSigningCancelled:
		return http.StatusConflict
	case utils.ErrCodeBudgetExceeded, utils.ErrCodeInsufficientEscrow, utils.ErrCodeRejected:
		return http.StatusUnprocessableEntity
	case utils.ErrCodePending:
		return http.StatusAccepted
	case utils.ErrCodeTransport, utils.ErrCodeConnection:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
